package signals

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// DefaultRetention keeps signals well beyond the longest strategy lookback
const DefaultRetention = 365 * 24 * time.Hour

// RetentionJob deletes signals older than the retention window
type RetentionJob struct {
	repo      *Repository
	retention time.Duration
	now       func() time.Time
	log       zerolog.Logger
}

// NewRetentionJob creates the retention job. retention <= 0 uses DefaultRetention.
func NewRetentionJob(repo *Repository, retention time.Duration, log zerolog.Logger) *RetentionJob {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &RetentionJob{
		repo:      repo,
		retention: retention,
		now:       time.Now,
		log:       log.With().Str("job", "signal_retention").Logger(),
	}
}

// Run deletes expired signals
func (j *RetentionJob) Run() error {
	deleted, err := j.repo.DeleteOlderThan(context.Background(), j.now().Add(-j.retention))
	if err != nil {
		return err
	}
	if deleted > 0 {
		j.log.Info().Int64("deleted", deleted).Msg("Pruned old signals")
	}
	return nil
}

// Name returns the job name
func (j *RetentionJob) Name() string {
	return "signal_retention"
}
