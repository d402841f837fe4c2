// Package lockfile (de)serializes repro-env.lock: a pinned container image
// digest plus an ordered, deterministic list of resolved packages.
package lockfile

import (
	"bytes"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/reproenv/repro-env/internal/reproerr"
)

// Lockfile is the full contents of repro-env.lock.
type Lockfile struct {
	Container Container `toml:"container"`
	Packages  []Package `toml:"package,omitempty"`
}

// Container pins the base image by digest.
type Container struct {
	Image string `toml:"image"`
}

// Package is one fully identified, pinned package. Field order matches the
// original tool's serde struct order so emitted TOML is byte-stable.
type Package struct {
	Name      string   `toml:"name"`
	Version   string   `toml:"version"`
	System    string   `toml:"system"`
	URL       string   `toml:"url"`
	Provides  []string `toml:"provides,omitempty"`
	Sha256    string   `toml:"sha256"`
	Signature *string  `toml:"signature,omitempty"`
	Installed bool     `toml:"installed,omitempty"`
}

// Sort orders packages lexicographically by (system, name, version), the
// ordering the lockfile serializer emits and invariant 5 of the data model
// requires for deterministic re-resolution.
func Sort(pkgs []Package) {
	sort.Slice(pkgs, func(i, j int) bool {
		a, b := pkgs[i], pkgs[j]
		if a.System != b.System {
			return a.System < b.System
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.Version < b.Version
	})
}

// Parse decodes lockfile TOML from buf. Unknown keys fail with a Parse
// error, matching spec.md §4.8's "parsing is strict" requirement.
func Parse(buf []byte) (*Lockfile, error) {
	var l Lockfile
	md, err := toml.Decode(string(buf), &l)
	if err != nil {
		return nil, reproerr.Wrap(reproerr.KindParse, "failed to parse lockfile", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, reproerr.New(reproerr.KindParse, "lockfile contains unknown keys: "+strings.Join(keys, ", "))
	}
	return &l, nil
}

// ReadFile reads and parses a lockfile from disk.
func ReadFile(path string) (*Lockfile, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, reproerr.Wrap(reproerr.KindParse, "failed to read lockfile", err)
	}
	return Parse(buf)
}

// Serialize encodes the lockfile as TOML: [container] first, then
// [[package]] entries, in the order they're already stored (callers sort
// before serializing), with a trailing newline.
func (l *Lockfile) Serialize() ([]byte, error) {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	if err := enc.Encode(l); err != nil {
		return nil, reproerr.Wrap(reproerr.KindParse, "failed to serialize lockfile", err)
	}

	out := buf.Bytes()
	if len(out) == 0 || out[len(out)-1] != '\n' {
		out = append(out, '\n')
	}
	return out, nil
}

// WriteFile serializes and writes the lockfile to path.
func (l *Lockfile) WriteFile(path string) error {
	data, err := l.Serialize()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return reproerr.Wrap(reproerr.KindGeneral, "failed to write lockfile", err)
	}
	return nil
}
