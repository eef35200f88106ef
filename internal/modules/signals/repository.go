// Package signals provides the SQLite-backed trade signal source.
package signals

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/capitol/internal/domain"
	"github.com/rs/zerolog"
)

// Repository reads and writes rows of the trade_signals table.
// Rows are written by the external ingestion process.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

var _ domain.SignalSource = (*Repository)(nil)

// NewRepository creates a new signal repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "signals").Logger(),
	}
}

// Insert stores a validated signal
func (r *Repository) Insert(ctx context.Context, s domain.TradeSignal) error {
	if err := s.Validate(); err != nil {
		return err
	}

	observed := s.ObservedAt
	if observed.IsZero() {
		observed = time.Now()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO trade_signals (symbol, direction, strength, source_strategy, observed_at, provenance)
		VALUES (?, ?, ?, ?, ?, ?)`,
		s.Symbol, string(s.Direction), s.Strength, s.SourceStrategy, observed.Unix(), s.Provenance,
	)
	if err != nil {
		return fmt.Errorf("failed to insert signal for %s: %w", s.Symbol, err)
	}
	return nil
}

// Signals implements domain.SignalSource. Rows whose symbol fails ticker
// validation are dropped and logged, never corrected.
func (r *Repository) Signals(ctx context.Context, strategy domain.StrategyName, since time.Time, minStrength float64) ([]domain.TradeSignal, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT symbol, direction, strength, source_strategy, observed_at, provenance
		FROM trade_signals
		WHERE source_strategy = ? AND observed_at >= ? AND strength >= ?
		ORDER BY observed_at ASC, id ASC`,
		string(strategy), since.Unix(), minStrength,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query signals for %s: %w", strategy, err)
	}
	defer rows.Close()

	var out []domain.TradeSignal
	dropped := 0
	for rows.Next() {
		var (
			s          domain.TradeSignal
			direction  string
			observedAt int64
		)
		if err := rows.Scan(&s.Symbol, &direction, &s.Strength, &s.SourceStrategy, &observedAt, &s.Provenance); err != nil {
			return nil, fmt.Errorf("failed to scan signal: %w", err)
		}
		s.Direction = domain.Direction(direction)
		s.ObservedAt = time.Unix(observedAt, 0).UTC()

		if err := s.Validate(); err != nil {
			dropped++
			r.log.Warn().Err(err).Str("provenance", s.Provenance).Msg("Dropping invalid signal")
			continue
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate signals: %w", err)
	}

	r.log.Debug().
		Str("strategy", string(strategy)).
		Int("loaded", len(out)).
		Int("dropped", dropped).
		Msg("Loaded signals")

	return out, nil
}

// DeleteOlderThan removes signals observed before cutoff
func (r *Repository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM trade_signals WHERE observed_at < ?", cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to delete old signals: %w", err)
	}
	return result.RowsAffected()
}
