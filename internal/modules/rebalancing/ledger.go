package rebalancing

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/capitol/internal/database"
	"github.com/rs/zerolog"
)

// RunRecord is one row of rebalance_runs
type RunRecord struct {
	CycleID             string    `json:"cycle_id"`
	StartedAt           time.Time `json:"started_at"`
	FinishedAt          time.Time `json:"finished_at"`
	Mode                string    `json:"mode"`
	DryRun              bool      `json:"dry_run"`
	Equity              float64   `json:"equity"`
	GrossExposure       float64   `json:"gross_exposure"`
	NetExposure         float64   `json:"net_exposure"`
	StrategiesSucceeded int       `json:"strategies_succeeded"`
	StrategiesFailed    int       `json:"strategies_failed"`
	Submitted           int       `json:"submitted"`
	Failed              int       `json:"failed"`
	Skipped             int       `json:"skipped"`
	Flagged             int       `json:"flagged"`
}

// OrderRecord is one row of rebalance_orders
type OrderRecord struct {
	Symbol    string  `json:"symbol"`
	Side      string  `json:"side"`
	Reason    string  `json:"reason"`
	Status    string  `json:"status"`
	Notional  float64 `json:"notional"`
	Qty       float64 `json:"qty"`
	OrderID   string  `json:"order_id"`
	Rejection string  `json:"rejection"`
	Error     string  `json:"error"`
}

// RunRepository persists cycle summaries and their orders to the ledger database
type RunRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRunRepository creates a run ledger repository
func NewRunRepository(db *sql.DB, log zerolog.Logger) *RunRepository {
	return &RunRepository{
		db:  db,
		log: log.With().Str("repo", "rebalance_runs").Logger(),
	}
}

// Record writes a run and its orders in one transaction
func (r *RunRepository) Record(ctx context.Context, run RunRecord, orders []OrderRecord) error {
	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO rebalance_runs (
				cycle_id, started_at, finished_at, mode, dry_run, equity,
				gross_exposure, net_exposure, strategies_succeeded, strategies_failed,
				submitted, failed, skipped, flagged
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.CycleID, run.StartedAt.Unix(), run.FinishedAt.Unix(), run.Mode, boolToInt(run.DryRun), run.Equity,
			run.GrossExposure, run.NetExposure, run.StrategiesSucceeded, run.StrategiesFailed,
			run.Submitted, run.Failed, run.Skipped, run.Flagged,
		)
		if err != nil {
			return fmt.Errorf("failed to insert run: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO rebalance_orders (cycle_id, symbol, side, reason, status, notional, qty, order_id, rejection, error)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare order insert: %w", err)
		}
		defer stmt.Close()

		for _, o := range orders {
			if _, err := stmt.ExecContext(ctx, run.CycleID, o.Symbol, o.Side, o.Reason, o.Status, o.Notional, o.Qty, o.OrderID, o.Rejection, o.Error); err != nil {
				return fmt.Errorf("failed to insert order for %s: %w", o.Symbol, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.log.Debug().Str("cycle_id", run.CycleID).Int("orders", len(orders)).Msg("Recorded rebalance run")
	return nil
}

// Recent returns the latest runs, newest first
func (r *RunRepository) Recent(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT cycle_id, started_at, finished_at, mode, dry_run, equity, gross_exposure, net_exposure,
		       strategies_succeeded, strategies_failed, submitted, failed, skipped, flagged
		FROM rebalance_runs
		ORDER BY started_at DESC, cycle_id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var (
			run             RunRecord
			started, finish int64
			dryRun          int
		)
		if err := rows.Scan(&run.CycleID, &started, &finish, &run.Mode, &dryRun, &run.Equity, &run.GrossExposure, &run.NetExposure,
			&run.StrategiesSucceeded, &run.StrategiesFailed, &run.Submitted, &run.Failed, &run.Skipped, &run.Flagged); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run.StartedAt = time.Unix(started, 0).UTC()
		run.FinishedAt = time.Unix(finish, 0).UTC()
		run.DryRun = dryRun != 0
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Orders returns the orders recorded for a cycle
func (r *RunRepository) Orders(ctx context.Context, cycleID string) ([]OrderRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT symbol, side, reason, status, notional, qty, order_id, rejection, error
		FROM rebalance_orders
		WHERE cycle_id = ?
		ORDER BY id`, cycleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []OrderRecord
	for rows.Next() {
		var o OrderRecord
		if err := rows.Scan(&o.Symbol, &o.Side, &o.Reason, &o.Status, &o.Notional, &o.Qty, &o.OrderID, &o.Rejection, &o.Error); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// OrderRecords converts execution results into ledger rows
func OrderRecords(results []OrderResult) []OrderRecord {
	out := make([]OrderRecord, 0, len(results))
	for _, res := range results {
		out = append(out, OrderRecord{
			Symbol:    res.Intent.Symbol,
			Side:      string(res.Intent.Side),
			Reason:    string(res.Intent.Reason),
			Status:    res.Status,
			Notional:  res.Notional,
			Qty:       res.Qty,
			OrderID:   res.OrderID,
			Rejection: string(res.Rejection),
			Error:     res.Error,
		})
	}
	return out
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
