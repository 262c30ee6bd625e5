package stakingd

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"stakegov/core"
	stakeerrors "stakegov/core/errors"
)

// Finalizer periodically closes proposals whose voting window has ended.
type Finalizer struct {
	coord    *core.Coordinator
	interval time.Duration
	logger   *slog.Logger
}

// NewFinalizer returns a sweep over coord every interval.
func NewFinalizer(coord *core.Coordinator, interval time.Duration, logger *slog.Logger) *Finalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Finalizer{coord: coord, interval: interval, logger: logger}
}

// Run sweeps until ctx is cancelled.
func (f *Finalizer) Run(ctx context.Context) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := f.Sweep(ctx); err != nil && ctx.Err() == nil {
				f.logger.Warn("finalize sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Sweep finalizes every active proposal past its end block and returns how
// many were closed. Failures on individual proposals are logged and skipped.
func (f *Finalizer) Sweep(ctx context.Context) (int, error) {
	views, err := f.coord.ActiveProposals(ctx)
	if err != nil {
		return 0, err
	}
	closed := 0
	for _, view := range views {
		// Views are ordered by end block and share one height.
		if view.CurrentBlock < view.EndBlock {
			break
		}
		proposal, err := f.coord.Finalize(ctx, view.ID)
		switch {
		case err == nil:
			closed++
			f.logger.Info("proposal finalized",
				slog.Uint64("proposal", proposal.ID),
				slog.String("status", string(proposal.Status)),
			)
		case errors.Is(err, stakeerrors.ErrProposalClosed):
		default:
			f.logger.Warn("finalize proposal",
				slog.Uint64("proposal", view.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return closed, nil
}
