package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// JobReclaimer recovers jobs that were abandoned by a crashed worker or whose
// queue message was lost.
type JobReclaimer interface {
	ReclaimStale(ctx context.Context) (int, error)
	RepublishPending(ctx context.Context) (int, error)
}

// Reaper periodically sweeps the job store for abandoned work.
type Reaper struct {
	jobs     JobReclaimer
	interval time.Duration
	logger   zerolog.Logger
}

func NewReaper(jobs JobReclaimer, interval time.Duration, logger zerolog.Logger) *Reaper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Reaper{
		jobs:     jobs,
		interval: interval,
		logger:   logger.With().Str("component", "reaper").Logger(),
	}
}

func (r *Reaper) Run(ctx context.Context) error {
	r.logger.Info().Dur("interval", r.interval).Msg("Reaper started")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("Reaper stopped")
			return nil
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep runs one reclaim pass. Errors are logged and retried on the next tick.
func (r *Reaper) Sweep(ctx context.Context) {
	reclaimed, err := r.jobs.ReclaimStale(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to reclaim stale jobs")
	} else if reclaimed > 0 {
		r.logger.Warn().Int("count", reclaimed).Msg("Reclaimed stale jobs")
	}

	if _, err := r.jobs.RepublishPending(ctx); err != nil {
		r.logger.Error().Err(err).Msg("Failed to republish pending jobs")
	}
}
