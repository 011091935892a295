package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/wekeepgrowing/academy-payments/internal/domain/model"
)

// ErrDuplicateKey is returned when an insert collides with an existing
// ledger id or external transaction id.
var ErrDuplicateKey = errors.New("duplicate key")

// LedgerQuery filters ledger listings
type LedgerQuery struct {
	BeneficiaryID string
	Status        model.LedgerStatus
	Limit         int
	Offset        int
}

// LedgerStore owns ledger entries and processed-event markers.
// Lookups return errors.ErrLedgerEntryNotFound when nothing matches.
type LedgerStore interface {
	Create(ctx context.Context, entry *model.LedgerEntry) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.LedgerEntry, error)
	GetByExternalID(ctx context.Context, externalID string) (*model.LedgerEntry, error)
	List(ctx context.Context, query LedgerQuery) ([]*model.LedgerEntry, int64, error)
	ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]*model.LedgerEntry, error)

	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	EvictProcessedEvents(ctx context.Context, processedBefore time.Time) (int64, error)

	// RunInTx runs fn in one transaction. The transaction commits when fn
	// returns nil and rolls back otherwise.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx LedgerTx) error) error
}

// LedgerTx is the transactional view of the store.
type LedgerTx interface {
	// MarkEventProcessed inserts the marker and returns false when the event id
	// was already recorded.
	MarkEventProcessed(ctx context.Context, event *model.ProcessedEvent) (bool, error)
	// GetForUpdate and GetByExternalIDForUpdate lock the row until the transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*model.LedgerEntry, error)
	GetByExternalIDForUpdate(ctx context.Context, externalID string) (*model.LedgerEntry, error)
	Create(ctx context.Context, entry *model.LedgerEntry) error
	Save(ctx context.Context, entry *model.LedgerEntry) error
}
