package database

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wekeepgrowing/academy-payments/internal/domain/model"
)

// customIndexes are indexes GORM doesn't create from struct tags
var customIndexes = []string{
	// One ledger entry per gateway transaction; entries without one yet are exempt.
	`CREATE UNIQUE INDEX IF NOT EXISTS uniq_ledger_entries_external_transaction_id ON ledger_entries (external_transaction_id) WHERE external_transaction_id IS NOT NULL`,
	// Stale pending sweep and status listings
	`CREATE INDEX IF NOT EXISTS idx_ledger_entries_status_created_at ON ledger_entries (status, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_entries_beneficiary_created_at ON ledger_entries (beneficiary_id, created_at DESC)`,
	// Retention eviction
	`CREATE INDEX IF NOT EXISTS idx_processed_events_processed_at ON processed_events (processed_at)`,
}

// Migrate runs database migrations
func Migrate(db *gorm.DB, logger *zap.Logger) error {
	logger.Info("Running database migrations...")

	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "pgcrypto"`).Error; err != nil {
		logger.Error("Failed to create extensions", zap.Error(err))
		return err
	}

	logger.Info("Running GORM auto-migrations...")
	if err := db.AutoMigrate(
		&model.LedgerEntry{},
		&model.ProcessedEvent{},
	); err != nil {
		logger.Error("Failed to run migrations", zap.Error(err))
		return err
	}

	logger.Info("Creating custom indexes...")
	if err := createCustomIndexes(db); err != nil {
		logger.Error("Failed to create custom indexes", zap.Error(err))
		return err
	}

	logger.Info("Database migrations completed successfully")
	return nil
}

func createCustomIndexes(db *gorm.DB) error {
	for _, stmt := range customIndexes {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}
