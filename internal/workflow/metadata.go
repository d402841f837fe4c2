package workflow

import (
	"archive/tar"
	"bytes"
	"io"
	"strings"

	"github.com/blakesmith/ar"

	"github.com/reproenv/repro-env/internal/archive"
	"github.com/reproenv/repro-env/internal/lockfile"
	"github.com/reproenv/repro-env/internal/reproerr"
)

// embeddedPkg is the name/version pair recovered from a package's own
// embedded metadata (.PKGINFO for Arch, control for Debian), independent of
// whatever a repository index claimed about it.
type embeddedPkg struct {
	name    string
	version string
}

// verifyEmbeddedMetadata re-derives a package's name and version straight
// from the bytes just fetched and checks them against what the lockfile
// pinned, closing the gap between "the index said this file is foo 1.2" and
// "the file downloaded is actually foo 1.2". Packages of any other system,
// Alpine included, are returned unchecked: their bytes are not parsed.
func verifyEmbeddedMetadata(pkg lockfile.Package, data []byte) error {
	var got *embeddedPkg
	var err error

	switch pkg.System {
	case "archlinux":
		got, err = parsePkgInfo(data)
	case "debian":
		got, err = parseControl(data)
	default:
		return nil
	}
	if err != nil {
		return err
	}

	if got.name != pkg.Name {
		return reproerr.New(reproerr.KindArchive, "embedded metadata name mismatch for "+pkg.Name+": package file claims "+got.name)
	}
	if got.version != pkg.Version {
		return reproerr.New(reproerr.KindArchive, "embedded metadata version mismatch for "+pkg.Name+": pinned "+pkg.Version+", package file claims "+got.version)
	}
	return nil
}

// parsePkgInfo decompresses an Arch .pkg.tar.{zst,xz,...} and extracts
// pkgname/pkgver from its .PKGINFO member.
func parsePkgInfo(data []byte) (*embeddedPkg, error) {
	decoded, _, err := archive.DecompressAuto(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	var got *embeddedPkg
	err = archive.WalkTar(decoded, func(hdr *tar.Header, r io.Reader) error {
		if got != nil || hdr.Name != ".PKGINFO" {
			return nil
		}
		buf, err := io.ReadAll(r)
		if err != nil {
			return reproerr.Archive("failed to read .PKGINFO", err)
		}
		got = parsePkgInfoFields(buf)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if got == nil {
		return nil, reproerr.New(reproerr.KindArchive, "package archive has no .PKGINFO member")
	}
	return got, nil
}

// parsePkgInfoFields scans .PKGINFO's "key = value" lines for pkgname and
// pkgver.
func parsePkgInfoFields(data []byte) *embeddedPkg {
	p := &embeddedPkg{}
	for _, line := range strings.Split(string(data), "\n") {
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		switch key {
		case "pkgname":
			p.name = value
		case "pkgver":
			p.version = value
		}
	}
	return p
}

// parseControl walks a .deb's outer ar archive to find its control.tar.*
// member, decompresses it, and extracts Package/Version from the inner
// tar's control entry.
func parseControl(data []byte) (*embeddedPkg, error) {
	controlTarBytes, err := findArMember(data, "control.tar")
	if err != nil {
		return nil, err
	}
	if controlTarBytes == nil {
		return nil, reproerr.New(reproerr.KindArchive, "deb archive has no control.tar member")
	}

	decoded, _, err := archive.DecompressAuto(bytes.NewReader(controlTarBytes))
	if err != nil {
		return nil, err
	}

	var got *embeddedPkg
	err = archive.WalkTar(decoded, func(hdr *tar.Header, r io.Reader) error {
		if got != nil {
			return nil
		}
		name := strings.TrimPrefix(hdr.Name, "./")
		if name != "control" {
			return nil
		}
		buf, err := io.ReadAll(r)
		if err != nil {
			return reproerr.Archive("failed to read control entry", err)
		}
		got = parseControlFields(buf)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if got == nil {
		return nil, reproerr.New(reproerr.KindArchive, "control.tar member has no control entry")
	}
	return got, nil
}

// findArMember returns the content of the first ar member whose name has
// the given prefix (e.g. "control.tar", to match "control.tar.xz",
// "control.tar.zst", ...), or nil if none is found.
func findArMember(data []byte, prefix string) ([]byte, error) {
	var found []byte
	err := archive.WalkAr(bytes.NewReader(data), func(hdr *ar.Header, r io.Reader) error {
		if found != nil || !strings.HasPrefix(strings.TrimSpace(hdr.Name), prefix) {
			return nil
		}
		buf, err := io.ReadAll(r)
		if err != nil {
			return reproerr.Archive("failed to read ar member "+hdr.Name, err)
		}
		found = buf
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// parseControlFields scans a control stanza's "Package:"/"Version:" fields.
func parseControlFields(data []byte) *embeddedPkg {
	p := &embeddedPkg{}
	for _, line := range strings.Split(string(data), "\n") {
		switch {
		case strings.HasPrefix(line, "Package:"):
			p.name = strings.TrimSpace(strings.TrimPrefix(line, "Package:"))
		case strings.HasPrefix(line, "Version:"):
			p.version = strings.TrimSpace(strings.TrimPrefix(line, "Version:"))
		}
	}
	return p
}
