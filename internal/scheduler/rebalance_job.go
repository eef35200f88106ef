package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/aristath/capitol/internal/modules/rebalancing"
	"github.com/rs/zerolog"
)

// DefaultCycleTimeout bounds one scheduled cycle
const DefaultCycleTimeout = 15 * time.Minute

// CycleRunner runs one rebalance cycle
type CycleRunner interface {
	RunCycle(ctx context.Context, dryRun bool) (*rebalancing.CycleResult, error)
}

// RebalanceJob runs the rebalance cycle on schedule
type RebalanceJob struct {
	runner  CycleRunner
	dryRun  bool
	timeout time.Duration
	log     zerolog.Logger
}

// NewRebalanceJob creates a new RebalanceJob
func NewRebalanceJob(runner CycleRunner, dryRun bool, log zerolog.Logger) *RebalanceJob {
	return &RebalanceJob{
		runner:  runner,
		dryRun:  dryRun,
		timeout: DefaultCycleTimeout,
		log:     log.With().Str("job", "rebalance").Logger(),
	}
}

// Name returns the job name
func (j *RebalanceJob) Name() string {
	return "rebalance"
}

// Run executes one cycle. A cycle already running in this process is not an error.
func (j *RebalanceJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	result, err := j.runner.RunCycle(ctx, j.dryRun)
	if errors.Is(err, rebalancing.ErrCycleInProgress) {
		j.log.Warn().Msg("Previous cycle still running, skipping tick")
		return nil
	}
	if err != nil {
		return err
	}

	evt := j.log.Info().Bool("dry_run", j.dryRun).Int("orders", len(result.Plan.Orders))
	if result.Report != nil {
		evt = evt.Int("submitted", result.Report.Submitted).Int("failed", result.Report.Failed)
	}
	evt.Msg("Scheduled rebalance finished")
	return nil
}
