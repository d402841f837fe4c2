// Package workflow composes the per-distribution resolver plugins and the
// container orchestrator into the three top-level operations the CLI
// exposes: update (resolve a manifest into a lockfile), fetch (warm the
// package cache), and build (stage and install a lockfile's packages, then
// run the user's command).
package workflow

import (
	"context"

	"github.com/reproenv/repro-env/internal/container"
	"github.com/reproenv/repro-env/internal/lockfile"
	"github.com/reproenv/repro-env/internal/logging"
	"github.com/reproenv/repro-env/internal/manifest"
	"github.com/reproenv/repro-env/internal/resolver"
)

// UpdateOptions configures Update.
type UpdateOptions struct {
	ManifestPath string
	LockfilePath string
	NoPull       bool
	Keep         bool
}

// Update resolves a manifest into a fresh lockfile. The base image is
// pulled (unless NoPull) and pinned to the digest `image inspect` reports;
// any requested packages are then resolved to a closed, locked set against
// a short-lived container created from that pinned image, which exists
// only so a distribution plugin can read its repository configuration
// files (e.g. /etc/pacman.conf) before the container is torn down.
func Update(ctx context.Context, opts UpdateOptions) error {
	man, err := manifest.ReadFile(opts.ManifestPath)
	if err != nil {
		return err
	}

	engine, err := container.Detect()
	if err != nil {
		return err
	}

	if !opts.NoPull {
		logging.UserInfo("pulling %s", man.Container.Image)
		if err := engine.Pull(ctx, man.Container.Image); err != nil {
			return err
		}
	}

	img, err := engine.Inspect(ctx, man.Container.Image)
	if err != nil {
		return err
	}
	imgRef := container.ParseImageRef(man.Container.Image).WithDigest(img.Digest)

	lf := &lockfile.Lockfile{Container: lockfile.Container{Image: imgRef.String()}}

	if man.Packages != nil {
		plugin, err := resolver.Lookup(man.Packages.System)
		if err != nil {
			return err
		}

		c, err := engine.Create(ctx, imgRef.String(), container.CreateConfig{})
		if err != nil {
			return err
		}

		var packages []lockfile.Package
		runErr := c.Run(ctx, func(ctx context.Context) error {
			logging.UserInfo("resolving %d %s package(s)", len(man.Packages.Dependencies), man.Packages.System)
			resolved, err := plugin.Resolve(ctx, resolver.ResolveRequest{
				Image:         imgRef.String(),
				Dependencies:  man.Packages.Dependencies,
				Keep:          opts.Keep,
				ReadImageFile: c.ReadFile,
			})
			if err != nil {
				return err
			}
			packages = resolved
			return nil
		}, opts.Keep)
		if runErr != nil {
			return runErr
		}

		lockfile.Sort(packages)
		lf.Packages = packages
	}

	if err := lf.WriteFile(opts.LockfilePath); err != nil {
		return err
	}

	logging.UserSuccess("wrote %s", opts.LockfilePath)
	return nil
}
