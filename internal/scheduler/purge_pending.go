package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// PendingPurger deletes unverified signups past their retention window
type PendingPurger interface {
	PurgeExpiredPending(ctx context.Context) (int64, error)
}

// PurgePendingJob enforces the retention window of pending signups
type PurgePendingJob struct {
	purger  PendingPurger
	timeout time.Duration
	log     zerolog.Logger
}

// NewPurgePendingJob creates the job. Each run is bounded by timeout.
func NewPurgePendingJob(purger PendingPurger, timeout time.Duration, log zerolog.Logger) *PurgePendingJob {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &PurgePendingJob{
		purger:  purger,
		timeout: timeout,
		log:     log.With().Str("job", "purge_pending").Logger(),
	}
}

// Name returns the job name
func (j *PurgePendingJob) Name() string {
	return "purge_pending"
}

// Run deletes expired pending signups
func (j *PurgePendingJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	n, err := j.purger.PurgeExpiredPending(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		j.log.Info().Int64("deleted", n).Msg("Purged expired pending signups")
	}
	return nil
}
