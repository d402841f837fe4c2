// Package archlinux implements the Arch Linux distribution plugin: fetching
// and parsing repository .db indices, resolving a dependency closure, and
// staging/installing resolved packages via pacman.
package archlinux

import (
	"archive/tar"
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ProtonMail/go-crypto/openpgp/packet"

	"github.com/reproenv/repro-env/internal/archive"
	"github.com/reproenv/repro-env/internal/cache"
	"github.com/reproenv/repro-env/internal/fetch"
	"github.com/reproenv/repro-env/internal/lockfile"
	"github.com/reproenv/repro-env/internal/pgp"
	"github.com/reproenv/repro-env/internal/reproerr"
	"github.com/reproenv/repro-env/internal/resolver"
)

const (
	mirrorBase  = "https://archive.archlinux.org/packages"
	dbMirrorFmt = "https://archive.archlinux.org/repos/last/%s/os/x86_64/%[1]s.db"
)

func init() {
	resolver.Register(&Plugin{})
}

// Plugin implements resolver.Plugin for archlinux.
type Plugin struct{}

func (p *Plugin) System() string { return "archlinux" }

// block is one %KEY%-delimited section parsed out of a .db "desc" file.
type block map[string][]string

func (b block) single(key string) (string, error) {
	values, ok := b[key]
	if !ok || len(values) == 0 {
		return "", reproerr.Parse(fmt.Sprintf("missing %s in package metadata", key), nil)
	}
	if len(values) > 1 {
		return "", reproerr.Parse(fmt.Sprintf("unexpected multiple values for %s", key), nil)
	}
	return values[0], nil
}

// parseDesc parses a "desc" file's %KEY%\nvalue...\n\n block format.
func parseDesc(data []byte) (block, error) {
	b := make(block)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var section string
	var values []string
	flush := func() {
		if section != "" {
			b[section] = values
		}
	}

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			flush()
			section = ""
			values = nil
			continue
		}
		if section == "" && strings.HasPrefix(line, "%") && strings.HasSuffix(line, "%") {
			section = line
			continue
		}
		values = append(values, line)
	}
	flush()

	if err := scanner.Err(); err != nil {
		return nil, reproerr.Archive("failed to scan desc file", err)
	}
	return b, nil
}

// archiveURL builds a package's archive.archlinux.org URL, percent-encoding
// the ":" an epoch'd filename (e.g. "rust-1:1.70.0-1-x86_64.pkg.tar.zst")
// carries in its version segment.
func archiveURL(name, filename string) string {
	return fmt.Sprintf("%s/%s/%s/%s", mirrorBase, string(name[0]), name, strings.ReplaceAll(filename, ":", "%3A"))
}

// repoNamesFromPacmanConf extracts enabled repository ([section]) names
// from a pacman.conf body, excluding the reserved "options" section.
func repoNamesFromPacmanConf(data []byte) []string {
	var repos []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "[") || !strings.HasSuffix(line, "]") {
			continue
		}
		name := strings.TrimSuffix(strings.TrimPrefix(line, "["), "]")
		if name != "" && name != "options" {
			repos = append(repos, name)
		}
	}
	if len(repos) == 0 {
		repos = []string{"core", "extra"}
	}
	return repos
}

// Resolve fetches repository indices and performs the BFS dependency
// closure for the requested packages.
func (p *Plugin) Resolve(ctx context.Context, req resolver.ResolveRequest) ([]lockfile.Package, error) {
	var repos []string
	if req.ReadImageFile != nil {
		if data, err := req.ReadImageFile(ctx, "/etc/pacman.conf"); err == nil {
			repos = repoNamesFromPacmanConf(data)
		}
	}
	if len(repos) == 0 {
		repos = []string{"core", "extra"}
	}

	client, err := fetch.NewClient()
	if err != nil {
		return nil, err
	}

	idx := resolver.NewIndex()
	for _, repo := range repos {
		if err := importRepo(ctx, client, repo, idx); err != nil {
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

	if err := verifyPackageSignatures(ctx, client, out); err != nil {
		return nil, err
	}

	return out, nil
}

// verifyPackageSignatures downloads every closed package carrying a
// detached %PGPSIG% and checks it against the bundled Arch packager
// keyring, failing the whole resolve on the first unverified package:
// spec.md §4.5 step 5, "update fails on any unverified package".
// Downloads go through the same content-addressed cache the later fetch
// and build steps use, so this never re-downloads a package twice.
func verifyPackageSignatures(ctx context.Context, client *fetch.Client, pkgs []lockfile.Package) error {
	var signed []lockfile.Package
	for _, pkg := range pkgs {
		if pkg.Signature != nil {
			signed = append(signed, pkg)
		}
	}
	if len(signed) == 0 {
		return nil
	}

	keyring, err := pgp.LoadEmbeddedKeyring(pgp.KeyringArchLinux)
	if err != nil {
		return err
	}

	store, err := cache.New()
	if err != nil {
		return err
	}

	for _, pkg := range signed {
		cachePath, err := store.GetOrFetch(pkg.URL, pkg.Sha256, func(url string) (io.ReadCloser, error) {
			return client.Get(ctx, url)
		})
		if err != nil {
			return err
		}

		data, err := os.ReadFile(cachePath)
		if err != nil {
			return reproerr.Wrap(reproerr.KindGeneral, "failed to read cached package for signature verification", err)
		}

		sig, err := base64.StdEncoding.DecodeString(*pkg.Signature)
		if err != nil {
			return reproerr.Parse("failed to decode package signature for "+pkg.Name, err)
		}

		if err := pgp.VerifyDetached(sig, data, keyring); err != nil {
			return reproerr.SignatureInvalid("signature verification failed for "+pkg.Name, err)
		}
	}

	return nil
}

// importRepo fetches a repo's .db tarball and registers every package
// "desc" entry it finds into idx.
func importRepo(ctx context.Context, client *fetch.Client, repo string, idx *resolver.Index) error {
	url := fmt.Sprintf(dbMirrorFmt, repo)
	data, err := client.GetBytes(ctx, url)
	if err != nil {
		return reproerr.Wrap(reproerr.KindNetwork, "failed to fetch "+repo+".db", err)
	}

	decoded, _, err := archive.DecompressAuto(bytes.NewReader(data))
	if err != nil {
		return err
	}

	return archive.WalkTar(decoded, func(hdr *tar.Header, r io.Reader) error {
		if !strings.HasSuffix(hdr.Name, "/desc") {
			return nil
		}

		buf, err := io.ReadAll(r)
		if err != nil {
			return reproerr.Archive("failed to read desc entry", err)
		}

		b, err := parseDesc(buf)
		if err != nil {
			return err
		}

		name, err := b.single("%NAME%")
		if err != nil {
			return err
		}
		version, err := b.single("%VERSION%")
		if err != nil {
			return err
		}
		filename, err := b.single("%FILENAME%")
		if err != nil {
			return err
		}
		sha256, err := b.single("%SHA256SUM%")
		if err != nil {
			return err
		}

		var sigPtr *string
		if sig, err := b.single("%PGPSIG%"); err == nil {
			sigPtr = &sig
		}

		var depGroups [][]string
		for _, dep := range b["%DEPENDS%"] {
			depGroups = append(depGroups, []string{stripVersionConstraint(dep)})
		}

		provides := make([]string, 0, len(b["%PROVIDES%"]))
		for _, prov := range b["%PROVIDES%"] {
			provides = append(provides, stripVersionConstraint(prov))
		}

		idx.Add(&resolver.Entry{
			Name:     name,
			Version:  version,
			Provides: provides,
			Depends:  depGroups,
			Locked: lockfile.Package{
				Name:      name,
				Version:   version,
				System:    "archlinux",
				URL:       archiveURL(name, filename),
				Provides:  provides,
				Sha256:    sha256,
				Signature: sigPtr,
			},
		})
		return nil
	})
}

// stripVersionConstraint drops a trailing "=version", ">=version" etc. from
// a depends/provides entry; the closure tracks package names only.
func stripVersionConstraint(s string) string {
	if idx := strings.IndexAny(s, "=<>"); idx >= 0 {
		return s[:idx]
	}
	return s
}

// Stage installs the staged packages' .pkg.tar.zst files with pacman,
// reading them off the workflow's /extra bind-mount (CachePath holds each
// package's container-visible path under /extra). Since base images are
// often older than the packages being installed, pacman's build-time
// signature checks can reject a package as "signed in the future" against
// the container's own clock; Stage advances the clock to the newest
// signature creation time found among the staged packages before running
// pacman, the same guard the original tool applies via its signature
// timestamp lookup.
func (p *Plugin) Stage(ctx context.Context, c resolver.Container, pkgs []resolver.StagedPackage) error {
	if len(pkgs) == 0 {
		return nil
	}

	if max, ok := maxSignatureTime(pkgs); ok {
		ts := strconv.FormatInt(max.Unix(), 10)
		if err := c.Exec(ctx, []string{"date", "-s", "@" + ts}); err != nil {
			return err
		}
	}

	cmd := []string{"pacman", "-U", "--noconfirm", "--"}
	for _, pkg := range pkgs {
		cmd = append(cmd, pkg.CachePath)
	}
	resolver.LogInstallCommand(cmd)
	return c.Exec(ctx, cmd)
}

// maxSignatureTime returns the newest OpenPGP signature creation time found
// among pkgs' detached signatures, if any carry one.
func maxSignatureTime(pkgs []resolver.StagedPackage) (time.Time, bool) {
	var max time.Time
	var found bool

	for _, pkg := range pkgs {
		if pkg.Locked.Signature == nil {
			continue
		}
		t, ok := signatureCreationTime(*pkg.Locked.Signature)
		if !ok {
			continue
		}
		if !found || t.After(max) {
			max = t
			found = true
		}
	}
	return max, found
}

// signatureCreationTime extracts the creation timestamp from a base64
// encoded detached OpenPGP signature's first signature packet.
func signatureCreationTime(sigB64 string) (time.Time, bool) {
	raw, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil {
		return time.Time{}, false
	}

	reader := packet.NewReader(bytes.NewReader(raw))
	for {
		pkt, err := reader.Next()
		if err != nil {
			return time.Time{}, false
		}
		if sig, ok := pkt.(*packet.Signature); ok && sig.CreationTime.Unix() > 0 {
			return sig.CreationTime, true
		}
	}
}
