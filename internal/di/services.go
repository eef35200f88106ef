package di

import (
	"context"
	"fmt"

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
	"github.com/rs/zerolog"
)

// InitializeRepositories creates the SQLite-backed repositories
func InitializeRepositories(container *Container, log zerolog.Logger) {
	container.SignalRepo = signals.NewRepository(container.CapitolDB.Conn(), log)
	container.FlagRepo = rebalancing.NewFlagRepository(container.CapitolDB.Conn(), log)
	container.RunRepo = rebalancing.NewRunRepository(container.LedgerDB.Conn(), log)
}

// InitializeServices builds clients and services on top of the repositories
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	key, secret := cfg.Broker.Credentials()
	broker, err := alpaca.NewGateway(alpaca.Config{
		Mode:              cfg.Broker.Mode,
		LiveConfirmed:     cfg.Broker.LiveConfirmed,
		KeyID:             key,
		SecretKey:         secret,
		DataURL:           cfg.Broker.DataURL,
		Timeout:           cfg.Broker.Timeout,
		RequestsPerMinute: cfg.Broker.RequestsPerMinute,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to create brokerage gateway: %w", err)
	}
	container.Broker = broker

	// Price-history cache is optional; a dead redis only costs extra API calls
	var cache marketdata.BarCache
	if cfg.RedisAddr != "" {
		redisCache, err := marketdata.NewRedisBarCache(cfg.RedisAddr)
		if err != nil {
			log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("Redis unavailable, price history will not be cached")
		} else {
			container.BarCache = redisCache
			cache = redisCache
		}
	}

	container.History = marketdata.NewHistoryProvider(broker, cache, log)
	container.Sizer = sizing.NewSizer(container.History, broker, sizing.DefaultConfig(), log)
	container.Registry = strategies.NewDefaultRegistry(container.SignalRepo, container.Sizer, log)
	container.Blender = blending.NewBlender(container.Registry, container.FlagRepo, log)
	container.Executor = rebalancing.NewExecutor(broker, container.FlagRepo, log)

	portfolioPath := cfg.PortfolioPath
	container.Portfolio = func() (*config.PortfolioConfig, error) {
		return config.LoadPortfolio(portfolioPath)
	}

	container.RebalanceService = rebalancing.NewService(
		broker,
		container.Blender,
		container.Executor,
		container.RunRepo,
		container.Portfolio,
		string(cfg.Broker.Mode),
		log,
	)
	container.RebalancingHandler = handlers.NewHandler(container.RebalanceService, container.FlagRepo, log)

	if cfg.Backup != nil && cfg.Backup.Enabled {
		store, err := reliability.NewS3Client(context.Background(), cfg.Backup, log)
		if err != nil {
			return fmt.Errorf("failed to create backup client: %w", err)
		}
		container.BackupService = reliability.NewBackupService(store, map[string]*database.DB{
			database.NameCapitol: container.CapitolDB,
			database.NameLedger:  container.LedgerDB,
		}, cfg.DataDir, log)
	}

	log.Info().
		Str("mode", string(cfg.Broker.Mode)).
		Bool("price_cache", cache != nil).
		Bool("backups", container.BackupService != nil).
		Int("strategies", len(container.Registry.Names())).
		Msg("Services initialized")

	return nil
}
