package container

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/reproenv/repro-env/internal/logging"
	"github.com/reproenv/repro-env/internal/reproerr"
)

const killTimeout = 30 * time.Second

// Run invokes fn with the container already created, guaranteeing the
// container is killed afterward regardless of how fn returns. If keep is
// true, Run blocks after fn succeeds until interrupted (SIGINT/SIGTERM),
// mirroring `repro-env build --keep`'s "leave the container up for
// inspection" behavior. An interrupt during fn itself also triggers
// teardown rather than leaving the container running.
func (c *Container) Run(ctx context.Context, fn func(ctx context.Context) error, keep bool) error {
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	done := make(chan error, 1)
	go func() {
		err := fn(sigCtx)
		if err != nil {
			done <- err
			return
		}
		if keep {
			logging.UserInfo("keeping container around until interrupted")
			<-sigCtx.Done()
			done <- reproerr.New(reproerr.KindGeneral, "interrupted")
			return
		}
		done <- nil
	}()

	var result error
	select {
	case result = <-done:
	case <-sigCtx.Done():
		result = reproerr.New(reproerr.KindGeneral, "interrupted")
	}

	logging.Debug("removing container", "id", c.ID)
	killCtx, cancel := context.WithTimeout(context.Background(), killTimeout)
	defer cancel()
	if err := c.Kill(killCtx); err != nil {
		logging.Warn("failed to kill container", "id", c.ID, "error", err)
	}

	return result
}
