package rebalancing

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/capitol/internal/domain"
	"github.com/rs/zerolog"
)

// DefaultFlagTTL is the cooldown applied to untradeable symbols
const DefaultFlagTTL = 7 * 24 * time.Hour

// Untradeable reasons. Each is stored so a cooldown can be lifted for the
// right cause.
const (
	FlagNoPriceData      = "no_price_data"
	FlagNotionalTooSmall = "notional_too_small"
	FlagNotFractionable  = "not_fractionable"
	FlagInvalidSymbol    = "invalid_symbol"
)

// Flag is one active or expired untradeable record
type Flag struct {
	Symbol    string    `json:"symbol"`
	Reason    string    `json:"reason"`
	Detail    string    `json:"detail,omitempty"`
	FlaggedAt time.Time `json:"flagged_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// FlagRepository stores untradeable symbols with an expiry timestamp.
// A flag is active while expires_at > now.
type FlagRepository struct {
	db  *sql.DB
	now func() time.Time
	log zerolog.Logger
}

var _ domain.UntradeableFlagger = (*FlagRepository)(nil)

// NewFlagRepository creates a flag repository on the operational database
func NewFlagRepository(db *sql.DB, log zerolog.Logger) *FlagRepository {
	return &FlagRepository{
		db:  db,
		now: time.Now,
		log: log.With().Str("repo", "untradeable_symbols").Logger(),
	}
}

// Flag marks a symbol untradeable for ttl, replacing any existing flag
func (r *FlagRepository) Flag(ctx context.Context, symbol, reason string, ttl time.Duration) error {
	return r.FlagWithDetail(ctx, symbol, reason, "", ttl)
}

// FlagWithDetail is Flag with a free-text detail for operators
func (r *FlagRepository) FlagWithDetail(ctx context.Context, symbol, reason, detail string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultFlagTTL
	}
	now := r.now()
	_, err := r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO untradeable_symbols (symbol, reason, detail, flagged_at, expires_at)
		VALUES (?, ?, ?, ?, ?)`,
		symbol, reason, detail, now.Unix(), now.Add(ttl).Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to flag %s: %w", symbol, err)
	}
	r.log.Debug().Str("symbol", symbol).Str("reason", reason).Dur("ttl", ttl).Msg("Flagged symbol")
	return nil
}

// IsFlagged reports whether a symbol has an active flag
func (r *FlagRepository) IsFlagged(ctx context.Context, symbol string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM untradeable_symbols WHERE symbol = ? AND expires_at > ?",
		symbol, r.now().Unix(),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check flag for %s: %w", symbol, err)
	}
	return n > 0, nil
}

// Active returns all unexpired flags ordered by symbol
func (r *FlagRepository) Active(ctx context.Context) ([]Flag, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT symbol, reason, detail, flagged_at, expires_at
		FROM untradeable_symbols
		WHERE expires_at > ?
		ORDER BY symbol`,
		r.now().Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query flags: %w", err)
	}
	defer rows.Close()

	var flags []Flag
	for rows.Next() {
		var (
			f                  Flag
			flaggedAt, expires int64
		)
		if err := rows.Scan(&f.Symbol, &f.Reason, &f.Detail, &flaggedAt, &expires); err != nil {
			return nil, fmt.Errorf("failed to scan flag: %w", err)
		}
		f.FlaggedAt = time.Unix(flaggedAt, 0).UTC()
		f.ExpiresAt = time.Unix(expires, 0).UTC()
		flags = append(flags, f)
	}
	return flags, rows.Err()
}

// Clear lifts the flag on a symbol. Returns domain.ErrNotFound if none exists.
func (r *FlagRepository) Clear(ctx context.Context, symbol string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM untradeable_symbols WHERE symbol = ?", symbol)
	if err != nil {
		return fmt.Errorf("failed to clear flag for %s: %w", symbol, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to clear flag for %s: %w", symbol, err)
	}
	if n == 0 {
		return fmt.Errorf("flag for %s: %w", symbol, domain.ErrNotFound)
	}
	return nil
}

// DeleteExpired removes flags whose cooldown has ended
func (r *FlagRepository) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM untradeable_symbols WHERE expires_at <= ?", r.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired flags: %w", err)
	}
	return res.RowsAffected()
}

// FlagCleanupJob removes expired untradeable flags. It runs daily.
type FlagCleanupJob struct {
	repo *FlagRepository
	log  zerolog.Logger
}

// NewFlagCleanupJob creates the cleanup job
func NewFlagCleanupJob(repo *FlagRepository, log zerolog.Logger) *FlagCleanupJob {
	return &FlagCleanupJob{
		repo: repo,
		log:  log.With().Str("job", "untradeable_cleanup").Logger(),
	}
}

// Run deletes expired flags
func (j *FlagCleanupJob) Run() error {
	deleted, err := j.repo.DeleteExpired(context.Background())
	if err != nil {
		j.log.Error().Err(err).Msg("Failed to delete expired untradeable flags")
		return err
	}
	if deleted > 0 {
		j.log.Info().Int64("deleted", deleted).Msg("Lifted expired untradeable flags")
	}
	return nil
}

// Name returns the job name for scheduling and logging
func (j *FlagCleanupJob) Name() string {
	return "untradeable_cleanup"
}
