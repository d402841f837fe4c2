// Package manifest parses and validates the user-authored environment
// description (repro-env.toml): a container image reference and an
// optional set of distribution package dependencies.
package manifest

import (
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/reproenv/repro-env/internal/lockfile"
	"github.com/reproenv/repro-env/internal/reproerr"
)

// Manifest is the parsed contents of repro-env.toml.
type Manifest struct {
	Container Container `toml:"container"`
	Packages  *Packages `toml:"packages,omitempty"`
}

// Container names the base image. Unlike lockfile.Container, the
// manifest's image reference carries no digest.
type Container struct {
	Image string `toml:"image"`
}

// Packages names the target distribution and the packages the user asked
// for, in the order they were written.
type Packages struct {
	System       string   `toml:"system"`
	Dependencies []string `toml:"dependencies"`
}

// Parse decodes manifest TOML from buf. Unknown keys are rejected.
func Parse(buf []byte) (*Manifest, error) {
	var m Manifest
	md, err := toml.Decode(string(buf), &m)
	if err != nil {
		return nil, reproerr.Wrap(reproerr.KindParse, "failed to parse manifest", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, reproerr.New(reproerr.KindParse, "manifest contains unknown keys: "+keysToString(undecoded))
	}
	return &m, nil
}

// ReadFile reads and parses a manifest file from disk.
func ReadFile(path string) (*Manifest, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, reproerr.Wrap(reproerr.KindParse, "failed to read manifest file", err)
	}
	return Parse(buf)
}

// SatisfiedBy checks that every requested dependency is provided by some
// package in lock, either by name or via its provides list. Version
// constraints embedded as "name=version" are matched on name only.
func (m *Manifest) SatisfiedBy(lock *lockfile.Lockfile) error {
	if m.Packages == nil {
		return nil
	}

	provided := make(map[string]struct{}, len(lock.Packages)*2)
	for _, pkg := range lock.Packages {
		provided[pkg.Name] = struct{}{}
		for _, p := range pkg.Provides {
			provided[p] = struct{}{}
		}
	}

	for _, dep := range m.Packages.Dependencies {
		name := dep
		if idx := strings.IndexByte(dep, '='); idx >= 0 {
			name = dep[:idx]
		}
		if _, ok := provided[name]; !ok {
			return reproerr.New(reproerr.KindResolve, "lockfile does not satisfy dependency: "+dep)
		}
	}

	return nil
}

func keysToString(keys []toml.Key) string {
	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(k.String())
	}
	return sb.String()
}
