package database

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wekeepgrowing/academy-payments/internal/adapter/repository"
	domainRepo "github.com/wekeepgrowing/academy-payments/internal/domain/repository"
)

// Repositories holds all repository instances
type Repositories struct {
	Ledger domainRepo.LedgerStore
}

// NewRepositories creates new repository instances with database connection
func NewRepositories(db *gorm.DB, logger *zap.Logger) *Repositories {
	return &Repositories{
		Ledger: repository.NewLedgerRepository(db, logger),
	}
}
