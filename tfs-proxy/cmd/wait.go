package cmd

import (
	"context"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/edgelesssys/sagemaker-tfs/internal/tfs"
)

const waitInterval = time.Second

type prober interface {
	Probe(context.Context, tfs.Target) error
}

// waitForBackend probes the backend until it serves target or timeout expires.
func waitForBackend(ctx context.Context, prober prober, target tfs.Target, timeout time.Duration, log *slog.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	log.Info("Waiting for backend", "target", target.Path(false), "timeout", timeout)
	return retry.New(
		retry.Context(ctx),
		retry.Attempts(0),
		retry.Delay(waitInterval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Info("Backend not ready", "attempt", n+1, "error", err)
		}),
	).Do(func() error {
		return prober.Probe(ctx, target)
	})
}
