// Package refresh re-runs the inbox sync on the user's auto refresh interval.
package refresh

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/TobiSchelling/Supernova/internal/aggregate"
)

// idlePoll is how often a disabled scheduler re-reads the interval.
const idlePoll = 5 * time.Second

// Syncer runs one sync pass.
type Syncer interface {
	SyncAll(ctx context.Context) (*aggregate.SyncResult, error)
}

// Runner triggers Syncer on a schedule. Interval is consulted before every
// wait so settings changes apply without a restart; zero disables syncing.
type Runner struct {
	Syncer   Syncer
	Interval func() time.Duration
	Logger   *zap.Logger
}

// Run blocks until ctx is cancelled. Each tick starts a sync in the
// background without waiting for the previous one; the aggregator collapses
// overlapping runs. Run returns only after every started sync has finished.
func (r *Runner) Run(ctx context.Context) error {
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		wait := r.Interval()
		enabled := wait > 0
		if !enabled {
			wait = idlePoll
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Debug("auto refresh stopped")
			return ctx.Err()
		case <-timer.C:
		}
		if !enabled {
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := r.Syncer.SyncAll(ctx)
			if err != nil {
				logger.Warn("auto refresh failed", zap.Error(err))
				return
			}
			logger.Debug("auto refresh finished",
				zap.Int("added", res.Added),
				zap.Int("fetched", res.Fetched),
				zap.Bool("shared", res.Shared))
		}()
	}
}
