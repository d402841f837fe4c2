// Package debian implements the Debian distribution plugin: verifying and
// parsing a snapshot.debian.org repository's InRelease/Packages metadata,
// resolving a dependency closure, and staging/installing packages with
// dpkg.
package debian

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/reproenv/repro-env/internal/archive"
	"github.com/reproenv/repro-env/internal/fetch"
	"github.com/reproenv/repro-env/internal/lockfile"
	"github.com/reproenv/repro-env/internal/pgp"
	"github.com/reproenv/repro-env/internal/reproerr"
	"github.com/reproenv/repro-env/internal/resolver"
)

const (
	defaultSuite = "bookworm"
	defaultArch  = "amd64"
	snapshotBase = "https://snapshot.debian.org/archive/debian"
)

// defaultComponents is the component list assumed when sources.list gives
// a suite but no explicit components (or isn't readable at all).
var defaultComponents = []string{"main"}

func init() {
	resolver.Register(&Plugin{})
}

// Plugin implements resolver.Plugin for debian.
type Plugin struct{}

func (p *Plugin) System() string { return "debian" }

// stanza is one RFC-822 paragraph from a Packages or Release file: field
// name to its (possibly multi-line) value, folded continuation lines
// already trimmed and joined with newlines.
type stanza map[string]string

// parseStanzas splits an RFC-822-style document (Packages, Release) into
// its blank-line-delimited stanzas.
func parseStanzas(data []byte) ([]stanza, error) {
	var stanzas []stanza
	current := stanza{}
	var lastKey string

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	flush := func() {
		if len(current) > 0 {
			stanzas = append(stanzas, current)
			current = stanza{}
		}
		lastKey = ""
	}

	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		if (strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")) && lastKey != "" {
			current[lastKey] += "\n" + strings.TrimSpace(line)
			continue
		}
		idx := strings.Index(line, ":")
		if idx < 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])
		current[key] = value
		lastKey = key
	}
	flush()

	if err := scanner.Err(); err != nil {
		return nil, reproerr.Parse("failed to scan RFC-822 document", err)
	}
	return stanzas, nil
}

// snapshotTimestamp picks the snapshot.debian.org dated snapshot to
// pin against. Resolved Open Question: repro-env update always pins to the
// latest snapshot available at the time it runs, recording the chosen
// timestamp in the lockfile's package URLs so a later `build` replays
// exactly those bytes regardless of what the snapshot service serves later.
func snapshotTimestamp(now time.Time) string {
	return now.UTC().Format("20060102T150405Z")
}

// sourcesFromAptSources extracts the suite (e.g. "bookworm") and component
// list (e.g. ["main", "contrib", "non-free"]) referenced by a
// sources.list-style body's first "deb" line. Falls back to defaultSuite
// and defaultComponents when nothing parses, or when a line has a suite
// but no explicit components.
func sourcesFromAptSources(data []byte) (string, []string) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		fields := strings.Fields(strings.TrimSpace(scanner.Text()))
		if len(fields) < 3 || fields[0] != "deb" {
			continue
		}
		components := fields[3:]
		if len(components) == 0 {
			components = defaultComponents
		}
		return fields[2], components
	}
	return defaultSuite, defaultComponents
}

// Resolve verifies the repository's InRelease clearsign, parses its
// Packages stanzas, and performs the BFS dependency closure.
func (p *Plugin) Resolve(ctx context.Context, req resolver.ResolveRequest) ([]lockfile.Package, error) {
	suite := defaultSuite
	components := defaultComponents
	if req.ReadImageFile != nil {
		if data, err := req.ReadImageFile(ctx, "/etc/apt/sources.list"); err == nil {
			suite, components = sourcesFromAptSources(data)
		}
	}

	client, err := fetch.NewClient()
	if err != nil {
		return nil, err
	}

	ts := snapshotTimestamp(time.Now())
	releaseURL := fmt.Sprintf("%s/%s/dists/%s/InRelease", snapshotBase, ts, suite)

	raw, err := client.GetBytes(ctx, releaseURL)
	if err != nil {
		return nil, err
	}

	keyring, err := pgp.LoadEmbeddedKeyring(pgp.KeyringDebian)
	if err != nil {
		return nil, err
	}

	plaintext, err := pgp.VerifyClearsigned(raw, keyring)
	if err != nil {
		return nil, err
	}

	releaseStanzas, err := parseStanzas(plaintext)
	if err != nil {
		return nil, err
	}
	releaseSHA256, err := parseReleaseSHA256(releaseStanzas)
	if err != nil {
		return nil, err
	}

	idx := resolver.NewIndex()
	for _, component := range components {
		relPath := fmt.Sprintf("%s/binary-%s/Packages.xz", component, defaultArch)
		expectedSha256, ok := releaseSHA256[relPath]
		if !ok {
			return nil, reproerr.Parse("InRelease does not pin "+relPath, nil)
		}

		packagesURL := fmt.Sprintf("%s/%s/dists/%s/%s", snapshotBase, ts, suite, relPath)
		if err := importPackages(ctx, client, packagesURL, expectedSha256, ts, idx); err != nil {
			return nil, err
		}
	}

	entries, err := idx.Closure(req.Dependencies)
	if err != nil {
		return nil, err
	}

	out := make([]lockfile.Package, len(entries))
	for i, e := range entries {
		out[i] = e.Locked
	}
	return out, nil
}

// parseReleaseSHA256 extracts InRelease's (or Release's) multi-line
// "SHA256:" field into a map of dists/<suite>-relative path to the
// SHA-256 that file must hash to. This is the chain of trust from the
// clearsigned InRelease down to the per-component Packages index:
// spec.md §4.6 step 3, "verify its SHA-256 from InRelease".
func parseReleaseSHA256(stanzas []stanza) (map[string]string, error) {
	if len(stanzas) == 0 {
		return nil, reproerr.Parse("InRelease contained no stanzas", nil)
	}

	field, ok := stanzas[0]["SHA256"]
	if !ok {
		return nil, reproerr.Parse("InRelease is missing a SHA256 field", nil)
	}

	idx := make(map[string]string)
	for _, line := range strings.Split(field, "\n") {
		fields := strings.Fields(line)
		if len(fields) != 3 {
			continue
		}
		hash, path := fields[0], fields[2]
		idx[path] = hash
	}
	return idx, nil
}

// verifySha256 checks data against an expected lowercase-hex SHA-256
// digest, returning a HashMismatch error on disagreement.
func verifySha256(data []byte, expected string) error {
	sum := sha256.Sum256(data)
	observed := hex.EncodeToString(sum[:])
	if observed != expected {
		return reproerr.HashMismatch(expected, observed)
	}
	return nil
}

// importPackages fetches a Packages.xz index, checks it against the
// SHA-256 InRelease pinned for it, decompresses, and registers each
// stanza into idx.
func importPackages(ctx context.Context, client *fetch.Client, url, expectedSha256, snapshotTS string, idx *resolver.Index) error {
	data, err := client.GetBytes(ctx, url)
	if err != nil {
		return err
	}

	if err := verifySha256(data, expectedSha256); err != nil {
		return err
	}

	decoded, _, err := archive.DecompressAuto(bytes.NewReader(data))
	if err != nil {
		return err
	}

	plain, err := io.ReadAll(decoded)
	if err != nil {
		return reproerr.Archive("failed to read Packages index", err)
	}

	stanzas, err := parseStanzas(plain)
	if err != nil {
		return err
	}

	for _, s := range stanzas {
		name := s["Package"]
		version := s["Version"]
		filename := s["Filename"]
		sha256 := s["SHA256"]
		if name == "" || filename == "" || sha256 == "" {
			continue
		}

		provides := splitList(s["Provides"])

		var depGroups [][]string
		depGroups = append(depGroups, parseDependsField(s["Depends"])...)
		depGroups = append(depGroups, parseDependsField(s["Pre-Depends"])...)

		idx.Add(&resolver.Entry{
			Name:     name,
			Version:  version,
			Provides: provides,
			Depends:  depGroups,
			Locked: lockfile.Package{
				Name:     name,
				Version:  version,
				System:   "debian",
				URL:      fmt.Sprintf("%s/%s/%s", snapshotBase, snapshotTS, filename),
				Provides: provides,
				Sha256:   sha256,
			},
		})
	}
	return nil
}

// parseDependsField parses a Depends/Pre-Depends field, which is a
// comma-separated list of requirements, each optionally an "a | b | c"
// alternative group with embedded version constraints in parens.
func parseDependsField(field string) [][]string {
	if field == "" {
		return nil
	}
	var groups [][]string
	for _, clause := range strings.Split(field, ",") {
		var group []string
		for _, alt := range strings.Split(clause, "|") {
			name := strings.TrimSpace(alt)
			if idx := strings.IndexByte(name, ' '); idx >= 0 {
				name = name[:idx]
			}
			if name != "" {
				group = append(group, name)
			}
		}
		if len(group) > 0 {
			groups = append(groups, group)
		}
	}
	return groups
}

func splitList(field string) []string {
	if field == "" {
		return nil
	}
	parts := strings.Split(field, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		name := strings.TrimSpace(p)
		if idx := strings.IndexByte(name, ' '); idx >= 0 {
			name = name[:idx]
		}
		if name != "" {
			out = append(out, name)
		}
	}
	return out
}

// Stage installs the staged packages' .deb files (under the workflow's
// /extra bind-mount) with dpkg, then resolves any residual dependency
// bookkeeping with apt-get.
func (p *Plugin) Stage(ctx context.Context, c resolver.Container, pkgs []resolver.StagedPackage) error {
	if len(pkgs) == 0 {
		return nil
	}

	cmd := []string{"dpkg", "--install"}
	for _, pkg := range pkgs {
		cmd = append(cmd, pkg.CachePath)
	}
	resolver.LogInstallCommand(cmd)
	if err := c.Exec(ctx, cmd); err != nil {
		return err
	}

	return c.Exec(ctx, []string{"apt-get", "install", "-f", "-y", "--no-install-recommends"})
}
