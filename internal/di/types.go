// Package di wires the application's dependencies from configuration.
package di

import (
	"github.com/aristath/capitol/internal/clients/alpaca"
	"github.com/aristath/capitol/internal/config"
	"github.com/aristath/capitol/internal/database"
	"github.com/aristath/capitol/internal/marketdata"
	"github.com/aristath/capitol/internal/modules/blending"
	"github.com/aristath/capitol/internal/modules/rebalancing"
	"github.com/aristath/capitol/internal/modules/rebalancing/handlers"
	"github.com/aristath/capitol/internal/modules/signals"
	"github.com/aristath/capitol/internal/modules/sizing"
	"github.com/aristath/capitol/internal/modules/strategies"
	"github.com/aristath/capitol/internal/reliability"
)

// Container holds every long-lived dependency
type Container struct {
	// Databases
	CapitolDB *database.DB // signals, untradeable flags
	LedgerDB  *database.DB // rebalance run audit trail

	// Clients
	Broker   *alpaca.Gateway
	BarCache *marketdata.RedisBarCache // nil when REDIS_ADDR is unset

	// Repositories
	SignalRepo *signals.Repository
	FlagRepo   *rebalancing.FlagRepository
	RunRepo    *rebalancing.RunRepository

	// Services
	History          *marketdata.HistoryProvider
	Sizer            *sizing.Sizer
	Registry         *strategies.Registry
	Blender          *blending.Blender
	Executor         *rebalancing.Executor
	RebalanceService *rebalancing.Service
	BackupService    *reliability.BackupService // nil when backups are disabled

	// Handlers
	RebalancingHandler *handlers.Handler

	Portfolio rebalancing.PortfolioLoader
	Config    *config.Config
}

// Close releases databases and the cache connection
func (c *Container) Close() error {
	var firstErr error
	if c.BarCache != nil {
		if err := c.BarCache.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, db := range []*database.DB{c.CapitolDB, c.LedgerDB} {
		if db == nil {
			continue
		}
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
