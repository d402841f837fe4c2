// Package container drives a rootless podman (or docker) container: pulling
// and inspecting the pinned base image, running a short-lived container to
// read repository configuration files, staging resolved packages into it,
// and finally execing the user's command with its stdio connected straight
// through.
package container

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/reproenv/repro-env/internal/logging"
	"github.com/reproenv/repro-env/internal/reproerr"
)

// Engine wraps whichever container command (podman preferred, docker as
// fallback) is available on PATH.
type Engine struct {
	Command string
}

// Detect auto-selects podman over docker, matching the original tool's
// preference for a rootless-by-default engine.
func Detect() (*Engine, error) {
	if _, err := exec.LookPath("podman"); err == nil {
		return &Engine{Command: "podman"}, nil
	}
	if _, err := exec.LookPath("docker"); err == nil {
		return &Engine{Command: "docker"}, nil
	}
	return nil, reproerr.New(reproerr.KindContainerEngine, "neither podman nor docker found in PATH")
}

// execOptions controls how a single engine invocation runs.
type execOptions struct {
	stdin         []byte
	captureStdout bool
	silenceStderr bool
}

// run invokes the engine command once, returning captured stdout when
// requested.
func (e *Engine) run(ctx context.Context, args []string, opts execOptions) ([]byte, error) {
	logging.Debug("spawning container engine command", "engine", e.Command, "args", args)

	cmd := exec.CommandContext(ctx, e.Command, args...)

	var stdout, stderr bytes.Buffer
	if opts.captureStdout {
		cmd.Stdout = &stdout
	}
	if !opts.silenceStderr {
		cmd.Stderr = &stderr
	}
	if opts.stdin != nil {
		cmd.Stdin = bytes.NewReader(opts.stdin)
	}

	if err := cmd.Run(); err != nil {
		return nil, reproerr.ContainerEngine(strings.Join(args, " "), fmt.Errorf("%w: %s", err, stderr.String()))
	}

	return stdout.Bytes(), nil
}

// Pull fetches image, following whatever tag/digest it names.
func (e *Engine) Pull(ctx context.Context, image string) error {
	_, err := e.run(ctx, []string{"image", "pull", "--", image}, execOptions{})
	return err
}

// Image is the subset of `image inspect` this tool needs.
type Image struct {
	Digest string `json:"Digest"`
}

// Inspect resolves image to its canonical digest, requiring `image inspect`
// to name exactly one image (failing if the reference is ambiguous).
func (e *Engine) Inspect(ctx context.Context, image string) (Image, error) {
	out, err := e.run(ctx, []string{"image", "inspect", "--", image}, execOptions{captureStdout: true, silenceStderr: true})
	if err != nil {
		return Image{}, err
	}

	var images []Image
	if err := json.Unmarshal(out, &images); err != nil {
		return Image{}, reproerr.Wrap(reproerr.KindContainerEngine, "failed to parse image inspect output", err)
	}
	if len(images) == 0 {
		return Image{}, reproerr.New(reproerr.KindContainerEngine, fmt.Sprintf("no such image: %s", image))
	}
	if len(images) > 1 {
		return Image{}, reproerr.New(reproerr.KindContainerEngine, fmt.Sprintf("image reference %q is not canonical, inspect returned %d images", image, len(images)))
	}
	return images[0], nil
}
