package di

import (
	"fmt"
	"path/filepath"

	"github.com/aristath/capitol/internal/config"
	"github.com/aristath/capitol/internal/database"
	"github.com/rs/zerolog"
)

// InitializeDatabases opens both databases and applies their schemas
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{Config: cfg}

	// capitol.db - signals and untradeable flags
	capitolDB, err := openDatabase(cfg.DataDir, database.NameCapitol, database.ProfileStandard)
	if err != nil {
		return nil, err
	}
	container.CapitolDB = capitolDB

	// ledger.db - append-only rebalance audit trail
	ledgerDB, err := openDatabase(cfg.DataDir, database.NameLedger, database.ProfileLedger)
	if err != nil {
		capitolDB.Close()
		return nil, err
	}
	container.LedgerDB = ledgerDB

	log.Info().
		Str("capitol", capitolDB.Path()).
		Str("ledger", ledgerDB.Path()).
		Msg("Databases initialized")

	return container, nil
}

func openDatabase(dataDir, name string, profile database.DatabaseProfile) (*database.DB, error) {
	db, err := database.New(database.Config{
		Path:    filepath.Join(dataDir, name+".db"),
		Profile: profile,
		Name:    name,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s database: %w", name, err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate %s database: %w", name, err)
	}
	return db, nil
}
