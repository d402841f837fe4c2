package workflow

import (
	"context"
	"os"

	"github.com/reproenv/repro-env/internal/cache"
	"github.com/reproenv/repro-env/internal/container"
	"github.com/reproenv/repro-env/internal/fetch"
	"github.com/reproenv/repro-env/internal/lockfile"
	"github.com/reproenv/repro-env/internal/logging"
	"github.com/reproenv/repro-env/internal/manifest"
	"github.com/reproenv/repro-env/internal/reproerr"
	"github.com/reproenv/repro-env/internal/resolver"
)

// BuildOptions configures Build.
type BuildOptions struct {
	ManifestPath string
	LockfilePath string
	Keep         bool
	Env          []string
	Cmd          []string
}

// Build stages every locked, not-yet-installed package into a container
// created from the lockfile's pinned image, installs them with each
// package's distribution plugin, then runs Cmd with the current working
// directory bind-mounted at /build. The returned exit code is Cmd's own
// (0 if Cmd is empty); err is non-nil only for failures in the repro-env
// machinery itself, never for a nonzero Cmd exit.
func Build(ctx context.Context, opts BuildOptions) (exitCode int, err error) {
	man, err := manifest.ReadFile(opts.ManifestPath)
	if err != nil {
		return 0, err
	}
	lf, err := lockfile.ReadFile(opts.LockfilePath)
	if err != nil {
		return 0, err
	}

	if err := man.SatisfiedBy(lf); err != nil {
		logging.UserWarning("%s (run `repro-env update` to refresh repro-env.lock)", err)
	}

	var pending []lockfile.Package
	for _, pkg := range lf.Packages {
		if !pkg.Installed {
			pending = append(pending, pkg)
		}
	}

	engine, err := container.Detect()
	if err != nil {
		return 0, err
	}

	client, err := fetch.NewClient()
	if err != nil {
		return 0, err
	}
	store, err := cache.New()
	if err != nil {
		return 0, err
	}

	extraDir, staged, cleanup, err := stageExtra(ctx, client, store, pending)
	if err != nil {
		return 0, err
	}
	defer cleanup()

	cwd, err := os.Getwd()
	if err != nil {
		return 0, reproerr.Wrap(reproerr.KindGeneral, "failed to determine working directory", err)
	}

	c, err := engine.Create(ctx, lf.Container.Image, container.CreateConfig{
		Mounts: []container.Mount{
			{Source: cwd, Target: "/build"},
			{Source: extraDir, Target: "/extra", ReadOnly: true},
		},
	})
	if err != nil {
		return 0, err
	}

	runErr := c.Run(ctx, func(ctx context.Context) error {
		for system, pkgs := range staged {
			plugin, err := resolver.Lookup(system)
			if err != nil {
				return err
			}
			logging.UserInfo("installing %d %s package(s)", len(pkgs), system)
			if err := plugin.Stage(ctx, c, pkgs); err != nil {
				return err
			}
		}

		if len(opts.Cmd) == 0 {
			return nil
		}

		code, err := c.ExecInteractive(ctx, opts.Cmd, container.ExecOptions{Cwd: "/build", Env: opts.Env})
		if err != nil {
			return err
		}
		exitCode = code
		return nil
	}, opts.Keep)

	if runErr != nil {
		return exitCode, runErr
	}
	return exitCode, nil
}
