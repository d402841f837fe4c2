package workflow

import (
	"context"
	"encoding/base64"
	"io"
	"net/url"
	"os"
	"path"
	"sync"

	securejoin "github.com/cyphar/filepath-securejoin"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sys/unix"

	"github.com/reproenv/repro-env/internal/cache"
	"github.com/reproenv/repro-env/internal/fetch"
	"github.com/reproenv/repro-env/internal/lockfile"
	"github.com/reproenv/repro-env/internal/paths"
	"github.com/reproenv/repro-env/internal/reproerr"
	"github.com/reproenv/repro-env/internal/resolver"
)

// stageExtra downloads every package in pkgs (if not already cached) and
// copies each artifact into a fresh temporary directory meant to be
// bind-mounted into the container as /extra, grouped by distribution so
// each plugin's Stage only sees its own packages. Arch packages carrying a
// detached signature get a ".sig" sidecar written alongside them, matching
// pacman's expectation of finding it next to the package file it signs.
// Downloads and copies run concurrently, bounded by REPRO_ENV_JOBS.
//
// Returned paths are the container-visible /extra/<filename> form, not the
// host tempdir path, since that's what ends up on the Stage command line.
func stageExtra(ctx context.Context, client *fetch.Client, store *cache.Cache, pkgs []lockfile.Package) (hostDir string, staged map[string][]resolver.StagedPackage, cleanup func(), err error) {
	base, err := paths.HomeDir()
	if err != nil {
		return "", nil, nil, err
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return "", nil, nil, reproerr.Wrap(reproerr.KindGeneral, "failed to create state directory", err)
	}

	dir, err := os.MkdirTemp(base, "extra-")
	if err != nil {
		return "", nil, nil, reproerr.Wrap(reproerr.KindGeneral, "failed to create staging directory", err)
	}
	cleanup = func() { os.RemoveAll(dir) }

	staged = make(map[string][]resolver.StagedPackage)
	var mu sync.Mutex

	sem := semaphore.NewWeighted(jobLimit())
	g, gctx := errgroup.WithContext(ctx)

	for _, pkg := range pkgs {
		pkg := pkg
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			return stageOne(gctx, client, store, dir, pkg, staged, &mu)
		})
	}

	if err := g.Wait(); err != nil {
		cleanup()
		return "", nil, nil, err
	}

	return dir, staged, cleanup, nil
}

// stageOne fetches a single package, copies it into dir, writes its
// signature sidecar if any, and records the result into staged under mu.
func stageOne(ctx context.Context, client *fetch.Client, store *cache.Cache, dir string, pkg lockfile.Package, staged map[string][]resolver.StagedPackage, mu *sync.Mutex) error {
	cachePath, sha256Hex, err := fetchPackage(ctx, client, store, pkg)
	if err != nil {
		return err
	}
	pkg.Sha256 = sha256Hex

	data, err := os.ReadFile(cachePath)
	if err != nil {
		return reproerr.Wrap(reproerr.KindGeneral, "failed to read cached package for metadata re-check", err)
	}
	if err := verifyEmbeddedMetadata(pkg, data); err != nil {
		return err
	}

	filename := filenameFromURL(pkg.URL)
	dstPath, err := securejoin.SecureJoin(dir, filename)
	if err != nil {
		return reproerr.Wrap(reproerr.KindParse, "failed to construct staging path for "+filename, err)
	}

	if err := reflinkOrCopy(dstPath, cachePath); err != nil {
		return err
	}

	if pkg.Signature != nil {
		sig, err := base64.StdEncoding.DecodeString(*pkg.Signature)
		if err != nil {
			return reproerr.Wrap(reproerr.KindParse, "failed to decode package signature", err)
		}
		if err := os.WriteFile(dstPath+".sig", sig, 0o644); err != nil {
			return reproerr.Wrap(reproerr.KindGeneral, "failed to write signature sidecar", err)
		}
	}

	mu.Lock()
	staged[pkg.System] = append(staged[pkg.System], resolver.StagedPackage{
		Locked:    pkg,
		CachePath: path.Join("/extra", filename),
	})
	mu.Unlock()
	return nil
}

// filenameFromURL returns the final path segment of a package URL, the
// name pacman/dpkg/apk expect to see on disk.
func filenameFromURL(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		return path.Base(u.Path)
	}
	return path.Base(rawURL)
}

// reflinkOrCopy tries a copy-on-write clone of src onto dst (cheap on
// btrfs/xfs/overlayfs), falling back to a plain byte-for-byte copy when the
// filesystem doesn't support it.
func reflinkOrCopy(dst, src string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return reproerr.Wrap(reproerr.KindGeneral, "failed to open cached package", err)
	}
	defer srcFile.Close()

	dstFile, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return reproerr.Wrap(reproerr.KindGeneral, "failed to create staged package file", err)
	}
	defer dstFile.Close()

	if err := unix.IoctlFileClone(int(dstFile.Fd()), int(srcFile.Fd())); err == nil {
		return nil
	}

	if _, err := srcFile.Seek(0, io.SeekStart); err != nil {
		return reproerr.Wrap(reproerr.KindGeneral, "failed to rewind cached package", err)
	}
	if _, err := io.Copy(dstFile, srcFile); err != nil {
		return reproerr.Wrap(reproerr.KindGeneral, "failed to copy cached package", err)
	}
	return nil
}
