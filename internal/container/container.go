package container

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/reproenv/repro-env/internal/logging"
)

// Mount is one bind mount applied when a container is created.
type Mount struct {
	Source   string
	Target   string
	ReadOnly bool
}

func (m Mount) arg() string {
	arg := fmt.Sprintf("-v=%s:%s", m.Source, m.Target)
	if m.ReadOnly {
		arg += ":ro"
	}
	return arg
}

// CreateConfig configures Engine.Create.
type CreateConfig struct {
	Mounts []Mount
	// ExposeFuse maps /dev/fuse into the container, needed by some package
	// managers' post-install scripts.
	ExposeFuse bool
}

// Container is a running container created from a pinned image, identified
// by its engine-assigned ID.
type Container struct {
	engine *Engine
	ID     string
}

// Create starts a detached, auto-removing container from image using
// catatonit as PID 1 so it idles until explicitly killed. The container
// runs with host networking (required to reach package mirrors) and
// whatever bind mounts the caller passes, typically the staged package
// directory at /extra and the working directory at /build.
func (e *Engine) Create(ctx context.Context, image string, cfg CreateConfig) (*Container, error) {
	args := []string{
		"container", "run",
		"--detach",
		"--rm",
		"--network=host",
		"-v=/usr/bin/catatonit:/__:ro",
		"--entrypoint=/__",
	}

	for _, m := range cfg.Mounts {
		args = append(args, m.arg())
	}
	if cfg.ExposeFuse {
		args = append(args, "--device=/dev/fuse")
	}

	args = append(args, "--", image, "-P")

	logging.Debug("creating container", "image", image)
	out, err := e.run(ctx, args, execOptions{captureStdout: true})
	if err != nil {
		return nil, err
	}

	id := firstLine(out)
	return &Container{engine: e, ID: id}, nil
}

func firstLine(b []byte) string {
	for i, c := range b {
		if c == '\n' {
			return string(b[:i])
		}
	}
	return string(b)
}

// ExecOptions configures Container.Exec / Container.Output.
type ExecOptions struct {
	Cwd  string
	User string
	Env  []string
}

func (o ExecOptions) argsPrefix() []string {
	var args []string
	if o.Cwd != "" {
		args = append(args, "-w", o.Cwd)
	}
	if o.User != "" {
		args = append(args, "-u", o.User)
	}
	for _, e := range o.Env {
		args = append(args, "-e", e)
	}
	return args
}

// Exec runs cmd inside the container, streaming its stdout/stderr to this
// process's own so install output (pacman/apt/apk) stays visible. It
// implements the narrow resolver.Container contract.
func (c *Container) Exec(ctx context.Context, cmd []string) error {
	_, err := c.exec(ctx, cmd, ExecOptions{}, false)
	return err
}

// ExecWith runs cmd with the given options, streaming output.
func (c *Container) ExecWith(ctx context.Context, cmd []string, opts ExecOptions) error {
	_, err := c.exec(ctx, cmd, opts, false)
	return err
}

// Output runs cmd and returns its captured stdout, used for short reads
// like cat-ing a configuration file.
func (c *Container) Output(ctx context.Context, cmd []string, opts ExecOptions) ([]byte, error) {
	return c.exec(ctx, cmd, opts, true)
}

func (c *Container) exec(ctx context.Context, cmd []string, opts ExecOptions, captureStdout bool) ([]byte, error) {
	args := append([]string{"container", "exec"}, opts.argsPrefix()...)
	args = append(args, "--", c.ID)
	args = append(args, cmd...)
	return c.engine.run(ctx, args, execOptions{captureStdout: captureStdout})
}

// ReadFile returns the contents of path inside the container, satisfying
// resolver.ResolveRequest.ReadImageFile.
func (c *Container) ReadFile(ctx context.Context, path string) ([]byte, error) {
	return c.Output(ctx, []string{"cat", "--", path}, ExecOptions{})
}

// ExecInteractive runs cmd with stdio connected directly to this process's
// own, for forwarding the user's build command. Unlike the original tool's
// (and the teacher's) use of a process-replacing exec, this uses
// exec.CommandContext rather than syscall.Exec so that container teardown
// still runs once the command exits.
func (c *Container) ExecInteractive(ctx context.Context, cmd []string, opts ExecOptions) (int, error) {
	args := append([]string{"container", "exec", "-it"}, opts.argsPrefix()...)
	args = append(args, "--", c.ID)
	args = append(args, cmd...)

	return c.engine.runInteractive(ctx, args)
}

// Kill stops and removes the container. The --rm flag it was created with
// means the engine reclaims it as soon as it dies.
func (c *Container) Kill(ctx context.Context) error {
	_, err := c.engine.run(ctx, []string{"container", "kill", c.ID}, execOptions{captureStdout: true})
	return err
}

// runInteractive execs the engine command with this process's own stdio,
// returning the child's exit code (not an error) when it runs to
// completion, so the caller can propagate it unchanged.
func (e *Engine) runInteractive(ctx context.Context, args []string) (int, error) {
	logging.Debug("spawning interactive container engine command", "engine", e.Command, "args", args)

	cmd := exec.CommandContext(ctx, e.Command, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		return 0, err
	}
	return 0, nil
}
