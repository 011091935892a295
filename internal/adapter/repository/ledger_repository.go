package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domainErrors "github.com/wekeepgrowing/academy-payments/internal/domain/errors"
	"github.com/wekeepgrowing/academy-payments/internal/domain/model"
	"github.com/wekeepgrowing/academy-payments/internal/domain/repository"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

type ledgerRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewLedgerRepository creates a Postgres-backed ledger store
func NewLedgerRepository(db *gorm.DB, logger *zap.Logger) repository.LedgerStore {
	return &ledgerRepository{
		db:     db,
		logger: logger,
	}
}

// translateError maps driver errors onto the store's error contract.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domainErrors.ErrLedgerEntryNotFound
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %v", repository.ErrDuplicateKey, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", repository.ErrDuplicateKey, pgErr.ConstraintName)
	}
	return err
}

func (r *ledgerRepository) Create(ctx context.Context, entry *model.LedgerEntry) error {
	return createEntry(r.db.WithContext(ctx), entry)
}

func (r *ledgerRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.LedgerEntry, error) {
	var entry model.LedgerEntry
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&entry).Error
	if err != nil {
		return nil, translateError(err)
	}
	return &entry, nil
}

func (r *ledgerRepository) GetByExternalID(ctx context.Context, externalID string) (*model.LedgerEntry, error) {
	var entry model.LedgerEntry
	err := r.db.WithContext(ctx).Where("external_transaction_id = ?", externalID).First(&entry).Error
	if err != nil {
		return nil, translateError(err)
	}
	return &entry, nil
}

// List returns entries newest first with the total count for the filter
func (r *ledgerRepository) List(ctx context.Context, query repository.LedgerQuery) ([]*model.LedgerEntry, int64, error) {
	limit := query.Limit
	if limit <= 0 {
		limit = defaultListLimit
	} else if limit > maxListLimit {
		limit = maxListLimit
	}

	q := r.db.WithContext(ctx).Model(&model.LedgerEntry{})
	if query.BeneficiaryID != "" {
		q = q.Where("beneficiary_id = ?", query.BeneficiaryID)
	}
	if query.Status != "" {
		q = q.Where("status = ?", query.Status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		r.logger.Error("Failed to count ledger entries", zap.Error(err))
		return nil, 0, fmt.Errorf("failed to count ledger entries: %w", err)
	}

	var entries []*model.LedgerEntry
	err := q.Order("created_at DESC").
		Limit(limit).
		Offset(query.Offset).
		Find(&entries).Error
	if err != nil {
		r.logger.Error("Failed to list ledger entries", zap.Error(err))
		return nil, 0, fmt.Errorf("failed to list ledger entries: %w", err)
	}

	return entries, total, nil
}

// ListStalePending returns pending entries created before the cutoff, oldest first
func (r *ledgerRepository) ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]*model.LedgerEntry, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}

	var entries []*model.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", model.LedgerStatusPending, createdBefore).
		Order("created_at ASC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		r.logger.Error("Failed to list stale pending entries", zap.Error(err))
		return nil, fmt.Errorf("failed to list stale pending entries: %w", err)
	}
	return entries, nil
}

func (r *ledgerRepository) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.ProcessedEvent{}).
		Where("event_id = ?", eventID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check processed event: %w", err)
	}
	return count > 0, nil
}

// EvictProcessedEvents deletes markers older than the retention cutoff
func (r *ledgerRepository) EvictProcessedEvents(ctx context.Context, processedBefore time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("processed_at < ?", processedBefore).
		Delete(&model.ProcessedEvent{})
	if result.Error != nil {
		r.logger.Error("Failed to evict processed events", zap.Error(result.Error))
		return 0, fmt.Errorf("failed to evict processed events: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (r *ledgerRepository) RunInTx(ctx context.Context, fn func(ctx context.Context, tx repository.LedgerTx) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, &ledgerTx{db: tx})
	})
}

// ledgerTx implements repository.LedgerTx on an open gorm transaction
type ledgerTx struct {
	db *gorm.DB
}

// MarkEventProcessed relies on the primary key: a concurrent delivery of the
// same event either blocks on the insert or affects zero rows.
func (t *ledgerTx) MarkEventProcessed(ctx context.Context, event *model.ProcessedEvent) (bool, error) {
	result := t.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(event)
	if result.Error != nil {
		err := translateError(result.Error)
		if errors.Is(err, repository.ErrDuplicateKey) {
			return false, nil
		}
		return false, fmt.Errorf("failed to record processed event: %w", err)
	}
	return result.RowsAffected > 0, nil
}

func (t *ledgerTx) GetForUpdate(ctx context.Context, id uuid.UUID) (*model.LedgerEntry, error) {
	var entry model.LedgerEntry
	err := t.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&entry).Error
	if err != nil {
		return nil, translateError(err)
	}
	return &entry, nil
}

func (t *ledgerTx) GetByExternalIDForUpdate(ctx context.Context, externalID string) (*model.LedgerEntry, error) {
	var entry model.LedgerEntry
	err := t.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("external_transaction_id = ?", externalID).
		First(&entry).Error
	if err != nil {
		return nil, translateError(err)
	}
	return &entry, nil
}

func (t *ledgerTx) Create(ctx context.Context, entry *model.LedgerEntry) error {
	return createEntry(t.db.WithContext(ctx), entry)
}

func (t *ledgerTx) Save(ctx context.Context, entry *model.LedgerEntry) error {
	return saveEntry(t.db.WithContext(ctx), entry)
}

func createEntry(db *gorm.DB, entry *model.LedgerEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if err := db.Create(entry).Error; err != nil {
		return translateError(err)
	}
	return nil
}

func saveEntry(db *gorm.DB, entry *model.LedgerEntry) error {
	result := db.Model(entry).Select("*").Omit("id", "created_at").Updates(entry)
	if result.Error != nil {
		return translateError(result.Error)
	}
	if result.RowsAffected == 0 {
		return domainErrors.ErrLedgerEntryNotFound
	}
	return nil
}
