package workflow

import (
	"context"
	"io"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/reproenv/repro-env/internal/cache"
	"github.com/reproenv/repro-env/internal/container"
	"github.com/reproenv/repro-env/internal/fetch"
	"github.com/reproenv/repro-env/internal/lockfile"
	"github.com/reproenv/repro-env/internal/logging"
)

// FetchOptions configures Fetch.
type FetchOptions struct {
	LockfilePath string
	NoPull       bool
}

// Fetch downloads every locked, not-already-installed package into the
// local cache without creating a container, so a later build need not
// download any package pinned by sha256 (or can run against a cache
// populated on another machine). Packages without a pinned sha256 (Alpine)
// are downloaded again by every fetch and build. Unless NoPull, it also
// makes sure the lockfile's pinned base
// image itself is present locally (inspecting first, pulling only if it
// isn't cached), the same pre-warming `original_source/src/fetch.rs`'s own
// `fetch()` performs before downloading packages. Downloads run
// concurrently, bounded by REPRO_ENV_JOBS (default 4), the same way the
// original tool parallelizes its fetch across packages.
func Fetch(ctx context.Context, opts FetchOptions) error {
	lf, err := lockfile.ReadFile(opts.LockfilePath)
	if err != nil {
		return err
	}

	if !opts.NoPull {
		if err := ensureImageCached(ctx, lf.Container.Image); err != nil {
			return err
		}
	}

	client, err := fetch.NewClient()
	if err != nil {
		return err
	}

	store, err := cache.New()
	if err != nil {
		return err
	}

	sem := semaphore.NewWeighted(jobLimit())
	g, gctx := errgroup.WithContext(ctx)

	for _, pkg := range lf.Packages {
		pkg := pkg
		if pkg.Installed {
			continue
		}
		if ok, err := hasPackage(store, pkg); err != nil {
			return err
		} else if ok {
			continue
		}

		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			logging.UserInfo("fetching %s %s (%s)", pkg.Name, pkg.Version, pkg.System)
			_, _, err := fetchPackage(gctx, client, store, pkg)
			return err
		})
	}

	return g.Wait()
}

// ensureImageCached makes sure image is present in the local container
// engine's image cache, pulling it only if an inspect fails to find it.
func ensureImageCached(ctx context.Context, image string) error {
	engine, err := container.Detect()
	if err != nil {
		return err
	}

	if _, err := engine.Inspect(ctx, image); err == nil {
		logging.UserInfo("found container image in local cache: %s", image)
		return nil
	}

	logging.UserInfo("pulling %s", image)
	return engine.Pull(ctx, image)
}

func hasPackage(store *cache.Cache, pkg lockfile.Package) (bool, error) {
	if pkg.Sha256 == "" {
		return false, nil
	}
	return store.Has(pkg.Sha256)
}

// fetchPackage ensures pkg's artifact is present in store, downloading it
// if necessary. Packages with a pinned Sha256 (Arch, Debian) are
// deduplicated against the cache before ever touching the network;
// packages without one (Alpine's APKINDEX "C:" field is a partial-content
// SHA-1, not a whole-file SHA-256) are always downloaded and named by the
// digest actually observed.
func fetchPackage(ctx context.Context, client *fetch.Client, store *cache.Cache, pkg lockfile.Package) (path, sha256Hex string, err error) {
	if pkg.Sha256 != "" {
		path, err = store.GetOrFetch(pkg.URL, pkg.Sha256, func(url string) (io.ReadCloser, error) {
			return client.Get(ctx, url)
		})
		return path, pkg.Sha256, err
	}

	body, err := client.Get(ctx, pkg.URL)
	if err != nil {
		return "", "", err
	}
	defer body.Close()

	return store.PutComputingHash(body)
}
