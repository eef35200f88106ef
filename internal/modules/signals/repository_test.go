package signals

import (
	"context"
	"testing"
	"time"

	"github.com/aristath/capitol/internal/database"
	"github.com/aristath/capitol/internal/domain"
	testingpkg "github.com/aristath/capitol/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepository_InsertAndQuery(t *testing.T) {
	db := testingpkg.NewMemoryDB(t, database.NameCapitol)
	repo := NewRepository(db, zerolog.Nop())
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	signals := []domain.TradeSignal{
		{Symbol: "AAPL", Direction: domain.DirectionBuy, Strength: 2, SourceStrategy: "congressional", ObservedAt: now.Add(-48 * time.Hour), Provenance: "ptr-1"},
		{Symbol: "MSFT", Direction: domain.DirectionSell, Strength: 1, SourceStrategy: "congressional", ObservedAt: now.Add(-24 * time.Hour), Provenance: "ptr-2"},
		{Symbol: "NVDA", Direction: domain.DirectionBuy, Strength: 0.2, SourceStrategy: "congressional", ObservedAt: now, Provenance: "ptr-3"},
		{Symbol: "OLD", Direction: domain.DirectionBuy, Strength: 5, SourceStrategy: "congressional", ObservedAt: now.AddDate(0, 0, -90), Provenance: "ptr-4"},
		{Symbol: "TSLA", Direction: domain.DirectionBuy, Strength: 3, SourceStrategy: "insider", ObservedAt: now, Provenance: "f4-1"},
	}
	for _, s := range signals {
		require.NoError(t, repo.Insert(ctx, s))
	}

	got, err := repo.Signals(ctx, "congressional", now.AddDate(0, 0, -45), 0.5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "AAPL", got[0].Symbol)
	assert.Equal(t, "MSFT", got[1].Symbol)
	assert.Equal(t, domain.DirectionSell, got[1].Direction)
	assert.Equal(t, now.Add(-24*time.Hour), got[1].ObservedAt)
}

func TestRepository_InsertRejectsInvalidSymbol(t *testing.T) {
	db := testingpkg.NewMemoryDB(t, database.NameCapitol)
	repo := NewRepository(db, zerolog.Nop())

	err := repo.Insert(context.Background(), domain.TradeSignal{Symbol: "brk.b", Direction: domain.DirectionBuy, SourceStrategy: "insider"})
	assert.ErrorIs(t, err, domain.ErrInvalidSymbol)
}

func TestRepository_DropsInvalidRows(t *testing.T) {
	db := testingpkg.NewMemoryDB(t, database.NameCapitol)
	repo := NewRepository(db, zerolog.Nop())
	ctx := context.Background()

	// Rows written by the ingestion process bypass Insert validation
	_, err := db.Exec(`INSERT INTO trade_signals (symbol, direction, strength, source_strategy, observed_at) VALUES
		('aapl', 'buy', 1, 'insider', ?),
		('BRK.B', 'buy', 1, 'insider', ?),
		('GOOG', 'buy', 1, 'insider', ?)`,
		time.Now().Unix(), time.Now().Unix(), time.Now().Unix())
	require.NoError(t, err)

	got, err := repo.Signals(ctx, "insider", time.Now().Add(-time.Hour), 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "GOOG", got[0].Symbol)
}

func TestRepository_DeleteOlderThan(t *testing.T) {
	db := testingpkg.NewMemoryDB(t, database.NameCapitol)
	repo := NewRepository(db, zerolog.Nop())
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, repo.Insert(ctx, domain.TradeSignal{Symbol: "AAPL", Direction: domain.DirectionBuy, SourceStrategy: "x", ObservedAt: now.AddDate(-1, 0, 0)}))
	require.NoError(t, repo.Insert(ctx, domain.TradeSignal{Symbol: "MSFT", Direction: domain.DirectionBuy, SourceStrategy: "x", ObservedAt: now}))

	deleted, err := repo.DeleteOlderThan(ctx, now.AddDate(0, -6, 0))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}
