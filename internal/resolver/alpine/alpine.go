// Package alpine implements the Alpine distribution plugin: fetching and
// parsing APKINDEX archives, resolving a dependency closure, and
// staging/installing packages with apk.
//
// Alpine's APKINDEX "C:" checksum is a base64-encoded SHA-1 over a partial
// "control data" segment of the .apk, not a SHA-256 over the whole file, so
// unlike the Arch and Debian plugins it cannot be used as a pre-download
// cache key. Its lockfile entries therefore carry an empty sha256; the fetch
// and build workflows download each such package and let the cache compute
// its SHA-256 from the bytes actually received.
package alpine

import (
	"archive/tar"
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/reproenv/repro-env/internal/archive"
	"github.com/reproenv/repro-env/internal/fetch"
	"github.com/reproenv/repro-env/internal/lockfile"
	"github.com/reproenv/repro-env/internal/reproerr"
	"github.com/reproenv/repro-env/internal/resolver"
)

const (
	defaultRepo = "https://dl-cdn.alpinelinux.org/alpine/latest-stable/main"
	defaultArch = "x86_64"
)

func init() {
	resolver.Register(&Plugin{})
}

// Plugin implements resolver.Plugin for alpine.
type Plugin struct{}

func (p *Plugin) System() string { return "alpine" }

// record is one package entry from an APKINDEX, keyed by its single-letter
// field prefix (P, V, D, p, ...).
type record map[byte]string

// parseAPKIndex splits an unpacked APKINDEX body into its blank-line
// delimited records.
func parseAPKIndex(data []byte) []record {
	var records []record
	current := record{}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			if len(current) > 0 {
				records = append(records, current)
				current = record{}
			}
			continue
		}
		if len(line) < 2 || line[1] != ':' {
			continue
		}
		current[line[0]] = line[2:]
	}
	if len(current) > 0 {
		records = append(records, current)
	}
	return records
}

// repoBaseFromApkRepositories returns the first non-comment repository URL
// from an /etc/apk/repositories body, or defaultRepo if none parse.
func repoBaseFromApkRepositories(data []byte) string {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		return line
	}
	return defaultRepo
}

func packageURL(repoBase, name, version string) string {
	return fmt.Sprintf("%s/%s/%s-%s.apk", strings.TrimSuffix(repoBase, "/"), defaultArch, name, version)
}

// Resolve fetches the APKINDEX, parses its records, and performs the BFS
// dependency closure. No signature verification is performed (spec.md
// §4.7): APKINDEX.tar.gz's own embedded .SIGN is not checked.
func (p *Plugin) Resolve(ctx context.Context, req resolver.ResolveRequest) ([]lockfile.Package, error) {
	repoBase := defaultRepo
	if req.ReadImageFile != nil {
		if data, err := req.ReadImageFile(ctx, "/etc/apk/repositories"); err == nil {
			repoBase = repoBaseFromApkRepositories(data)
		}
	}

	client, err := fetch.NewClient()
	if err != nil {
		return nil, err
	}

	indexURL := strings.TrimSuffix(repoBase, "/") + "/" + defaultArch + "/APKINDEX.tar.gz"
	data, err := client.GetBytes(ctx, indexURL)
	if err != nil {
		return nil, err
	}

	idx, err := importAPKIndex(data, repoBase)
	if err != nil {
		return nil, err
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

// importAPKIndex decompresses the gzipped tar, extracts the "APKINDEX"
// member, and registers each record into a fresh Index.
func importAPKIndex(gzData []byte, repoBase string) (*resolver.Index, error) {
	decoded, _, err := archive.DecompressAuto(bytes.NewReader(gzData))
	if err != nil {
		return nil, err
	}

	var indexBody []byte
	err = archive.WalkTar(decoded, func(hdr *tar.Header, r io.Reader) error {
		if hdr.Name != "APKINDEX" {
			return nil
		}
		body, err := io.ReadAll(r)
		if err != nil {
			return reproerr.Archive("failed to read APKINDEX entry", err)
		}
		indexBody = body
		return nil
	})
	if err != nil {
		return nil, err
	}
	if indexBody == nil {
		return nil, reproerr.Archive("APKINDEX.tar.gz did not contain an APKINDEX entry", nil)
	}

	idx := resolver.NewIndex()
	for _, rec := range parseAPKIndex(indexBody) {
		name := rec['P']
		version := rec['V']
		if name == "" || version == "" {
			continue
		}

		var provides []string
		if p := rec['p']; p != "" {
			for _, tok := range strings.Fields(p) {
				provides = append(provides, stripConstraint(tok))
			}
		}

		var depGroups [][]string
		if d := rec['D']; d != "" {
			for _, tok := range strings.Fields(d) {
				if strings.HasPrefix(tok, "!") {
					continue
				}
				depGroups = append(depGroups, []string{stripConstraint(tok)})
			}
		}

		idx.Add(&resolver.Entry{
			Name:     name,
			Version:  version,
			Provides: provides,
			Depends:  depGroups,
			Locked: lockfile.Package{
				Name:     name,
				Version:  version,
				System:   "alpine",
				URL:      packageURL(repoBase, name, version),
				Provides: provides,
				// Sha256 stays empty: the APKINDEX checksum isn't a
				// whole-file SHA-256. The workflow layer names the cache
				// entry by the digest it observes on download
				// (cache.PutComputingHash).
			},
		})
	}

	return idx, nil
}

// stripConstraint drops any trailing version comparator clause ("=", ">=",
// "<=", ">", "<", "~") from a depends/provides token. Tag-namespace prefixes
// such as "so:" are kept, so a dependency and its provider meet on the same
// prefixed symbol.
func stripConstraint(s string) string {
	if idx := strings.IndexAny(s, "=<>~"); idx >= 0 {
		s = s[:idx]
	}
	return s
}

// Stage installs the staged packages' .apk files (under the workflow's
// /extra bind-mount) with apk, entirely offline since they're already on
// disk.
func (p *Plugin) Stage(ctx context.Context, c resolver.Container, pkgs []resolver.StagedPackage) error {
	if len(pkgs) == 0 {
		return nil
	}

	cmd := []string{"apk", "add", "--no-network", "--"}
	for _, pkg := range pkgs {
		cmd = append(cmd, pkg.CachePath)
	}
	resolver.LogInstallCommand(cmd)
	return c.Exec(ctx, cmd)
}
