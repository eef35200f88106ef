package rebalancing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aristath/capitol/internal/config"
	"github.com/aristath/capitol/internal/domain"
	"github.com/aristath/capitol/internal/metrics"
	"github.com/aristath/capitol/internal/modules/blending"
	"github.com/rs/zerolog"
)

// ErrCycleInProgress is returned when a cycle is already running in this process
var ErrCycleInProgress = errors.New("rebalance cycle already in progress")

// PortfolioLoader returns the current portfolio configuration
type PortfolioLoader func() (*config.PortfolioConfig, error)

// CycleResult is everything one cycle produced
type CycleResult struct {
	Mode     string                  `json:"mode"`
	DryRun   bool                    `json:"dry_run"`
	Equity   float64                 `json:"equity"`
	Blend    *blending.Result        `json:"blend"`
	Plan     *RebalancePlan          `json:"plan"`
	Report   *ExecutionReport        `json:"report,omitempty"`
	Snapshot *domain.AccountSnapshot `json:"-"`
}

// Service runs rebalancing cycles: snapshot, blend, plan, execute, record.
// Only one cycle runs at a time per process; overlapping processes against
// the same account are not coordinated.
type Service struct {
	broker    domain.BrokerClient
	blender   *blending.Blender
	executor  *Executor
	runs      *RunRepository // Optional
	portfolio PortfolioLoader
	mode      string
	mu        sync.Mutex
	baseLog   zerolog.Logger
	log       zerolog.Logger
}

// NewService creates a rebalancing service. runs may be nil.
func NewService(
	broker domain.BrokerClient,
	blender *blending.Blender,
	executor *Executor,
	runs *RunRepository,
	portfolio PortfolioLoader,
	mode string,
	log zerolog.Logger,
) *Service {
	return &Service{
		broker:    broker,
		blender:   blender,
		executor:  executor,
		runs:      runs,
		portfolio: portfolio,
		mode:      mode,
		baseLog:   log,
		log:       log.With().Str("service", "rebalancing").Logger(),
	}
}

// Snapshot reads equity, positions and open orders from the brokerage
func (s *Service) Snapshot(ctx context.Context) (*domain.AccountSnapshot, error) {
	account, err := s.broker.GetAccount(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	positions, err := s.broker.GetPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get positions: %w", err)
	}
	orders, err := s.broker.ListOpenOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list open orders: %w", err)
	}
	return &domain.AccountSnapshot{
		TakenAt:    time.Now().UTC(),
		Positions:  positions,
		OpenOrders: orders,
		Equity:     account.Equity,
		Cash:       account.Cash,
	}, nil
}

// Blend builds the target portfolio without planning any orders
func (s *Service) Blend(ctx context.Context) (*blending.Result, error) {
	pc, err := s.portfolio()
	if err != nil {
		return nil, fmt.Errorf("failed to load portfolio config: %w", err)
	}
	snapshot, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return s.blender.Blend(ctx, equityFor(pc, snapshot), pc.StrategyWeights, blending.OptionsFromPortfolio(pc))
}

// RunCycle runs one full cycle. With dryRun the plan is built and recorded
// but nothing is sent to the brokerage.
func (s *Service) RunCycle(ctx context.Context, dryRun bool) (*CycleResult, error) {
	if !s.mu.TryLock() {
		return nil, ErrCycleInProgress
	}
	defer s.mu.Unlock()

	started := time.Now().UTC()
	result, err := s.runCycle(ctx, dryRun, started)

	outcome := "success"
	switch {
	case err != nil:
		outcome = "error"
	case result.Report != nil && result.Report.Failed > 0:
		outcome = "partial"
	case dryRun:
		outcome = "dry_run"
	}
	metrics.CyclesTotal.WithLabelValues(s.mode, outcome).Inc()
	metrics.CycleDuration.Observe(time.Since(started).Seconds())

	if err != nil {
		s.log.Error().Err(err).Bool("dry_run", dryRun).Msg("Rebalance cycle failed")
		return nil, err
	}
	return result, nil
}

func (s *Service) runCycle(ctx context.Context, dryRun bool, started time.Time) (*CycleResult, error) {
	pc, err := s.portfolio()
	if err != nil {
		return nil, fmt.Errorf("failed to load portfolio config: %w", err)
	}

	snapshot, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	equity := equityFor(pc, snapshot)

	blend, err := s.blender.Blend(ctx, equity, pc.StrategyWeights, blending.OptionsFromPortfolio(pc))
	if err != nil {
		return nil, fmt.Errorf("failed to blend portfolio: %w", err)
	}

	planner := NewPlanner(PlannerConfig{MinTradeValue: pc.MinTradeValue, AllowShorts: pc.EnableShorts}, s.baseLog)
	plan := planner.Plan(blend.Positions, *snapshot, s.frozenSymbols(ctx, blend, snapshot)...)

	result := &CycleResult{
		Mode:     s.mode,
		DryRun:   dryRun,
		Equity:   equity,
		Blend:    blend,
		Plan:     plan,
		Snapshot: snapshot,
	}

	var orders []OrderRecord
	if dryRun {
		for _, intent := range plan.Orders {
			orders = append(orders, OrderRecord{
				Symbol:   intent.Symbol,
				Side:     string(intent.Side),
				Reason:   string(intent.Reason),
				Status:   StatusSkipped,
				Notional: intent.Notional,
				Qty:      intent.Qty,
			})
		}
	} else {
		result.Report = s.executor.Execute(ctx, plan)
		orders = OrderRecords(result.Report.Results)
	}

	run := RunRecord{
		CycleID:             plan.CycleID,
		StartedAt:           started,
		FinishedAt:          time.Now().UTC(),
		Mode:                s.mode,
		DryRun:              dryRun,
		Equity:              equity,
		GrossExposure:       blend.Metadata.GrossExposure,
		NetExposure:         blend.Metadata.NetExposure,
		StrategiesSucceeded: blend.Metadata.StrategiesSucceeded,
		StrategiesFailed:    blend.Metadata.StrategiesFailed,
	}
	if r := result.Report; r != nil {
		run.Submitted, run.Failed, run.Skipped, run.Flagged = r.Submitted, r.Failed, r.Skipped, r.Flagged
	}
	if s.runs != nil {
		// Ledger failures are logged and the cycle result is still returned
		if err := s.runs.Record(ctx, run, orders); err != nil {
			s.log.Error().Err(err).Str("cycle_id", plan.CycleID).Msg("Failed to record rebalance run")
		}
	}

	s.log.Info().
		Str("cycle_id", plan.CycleID).
		Str("mode", s.mode).
		Bool("dry_run", dryRun).
		Float64("equity", equity).
		Int("targets", len(blend.Positions)).
		Int("orders", len(plan.Orders)).
		Int("submitted", run.Submitted).
		Int("failed", run.Failed).
		Dur("duration", time.Since(started)).
		Msg("Rebalance cycle completed")

	return result, nil
}

// frozenSymbols lists symbols under an untradeable cooldown: those the blend
// excluded plus any held position that is flagged. They get no orders.
func (s *Service) frozenSymbols(ctx context.Context, blend *blending.Result, snapshot *domain.AccountSnapshot) []string {
	frozen := append([]string(nil), blend.Metadata.ExcludedUntradeable...)
	seen := make(map[string]struct{}, len(frozen))
	for _, symbol := range frozen {
		seen[symbol] = struct{}{}
	}

	var held []string
	for _, pos := range snapshot.Positions {
		if _, ok := seen[pos.Symbol]; ok {
			continue
		}
		seen[pos.Symbol] = struct{}{}
		held = append(held, pos.Symbol)
	}
	return append(frozen, s.blender.Flagged(ctx, held)...)
}

// Runs returns recent ledger entries
func (s *Service) Runs(ctx context.Context, limit int) ([]RunRecord, error) {
	if s.runs == nil {
		return nil, nil
	}
	return s.runs.Recent(ctx, limit)
}

// equityFor uses the configured total equity, or the live account equity when it is 0
func equityFor(pc *config.PortfolioConfig, snapshot *domain.AccountSnapshot) float64 {
	if pc.TotalEquity > 0 {
		return pc.TotalEquity
	}
	return snapshot.Equity
}
