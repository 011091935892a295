package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	domainErrors "github.com/wekeepgrowing/academy-payments/internal/domain/errors"
	"github.com/wekeepgrowing/academy-payments/internal/domain/model"
	"github.com/wekeepgrowing/academy-payments/internal/domain/money"
	"github.com/wekeepgrowing/academy-payments/internal/domain/repository"
	"github.com/wekeepgrowing/academy-payments/internal/domain/settings"
	apperrors "github.com/wekeepgrowing/academy-payments/pkg/errors"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// LedgerEntryView is a ledger entry as reported to administrators
type LedgerEntryView struct {
	ID                    uuid.UUID          `json:"id"`
	ExternalTransactionID string             `json:"external_transaction_id,omitempty"`
	Amount                decimal.Decimal    `json:"amount"`
	AmountMinorUnits      int64              `json:"amount_minor_units"`
	Currency              string             `json:"currency"`
	Status                model.LedgerStatus `json:"status"`
	BeneficiaryID         string             `json:"beneficiary_id"`
	InitiatorID           string             `json:"initiator_id,omitempty"`
	Reference             string             `json:"reference,omitempty"`
	FailureReason         string             `json:"failure_reason,omitempty"`
	Gateway               string             `json:"gateway"`
	Placeholder           bool               `json:"placeholder"`
	CreatedAt             time.Time          `json:"created_at"`
	UpdatedAt             time.Time          `json:"updated_at"`
	DueDate               *time.Time         `json:"due_date,omitempty"`
}

// LedgerPage is one page of a ledger listing
type LedgerPage struct {
	Entries []LedgerEntryView `json:"entries"`
	Total   int64             `json:"total"`
	Limit   int               `json:"limit"`
	Offset  int               `json:"offset"`
}

// LedgerQueryService serves read-only ledger reports
type LedgerQueryService struct {
	store    repository.LedgerStore
	settings settings.Provider
	logger   *zap.Logger
	now      func() time.Time
}

// NewLedgerQueryService creates a new ledger query service
func NewLedgerQueryService(store repository.LedgerStore, settingsProvider settings.Provider, logger *zap.Logger) *LedgerQueryService {
	return &LedgerQueryService{
		store:    store,
		settings: settingsProvider,
		logger:   logger,
		now:      time.Now,
	}
}

// Get returns one entry by ledger id
func (s *LedgerQueryService) Get(ctx context.Context, id uuid.UUID) (*LedgerEntryView, error) {
	entry, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	dueDays := s.dueDays(ctx)
	view := toView(entry, dueDays)
	return &view, nil
}

// GetByExternalID looks an entry up by the gateway's transaction id
func (s *LedgerQueryService) GetByExternalID(ctx context.Context, externalID string) (*LedgerEntryView, error) {
	if externalID == "" {
		return nil, domainErrors.NewValidationError("external_transaction_id", "must not be empty")
	}
	entry, err := s.store.GetByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}
	view := toView(entry, s.dueDays(ctx))
	return &view, nil
}

// List returns entries newest first
func (s *LedgerQueryService) List(ctx context.Context, query repository.LedgerQuery) (*LedgerPage, error) {
	if query.Status != "" && !query.Status.Valid() {
		return nil, domainErrors.NewValidationError("status", "unknown status %q", query.Status)
	}
	if query.Offset < 0 {
		return nil, domainErrors.NewValidationError("offset", "must not be negative")
	}
	query.Limit = clampLimit(query.Limit)

	entries, total, err := s.store.List(ctx, query)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list ledger entries")
	}

	dueDays := s.dueDays(ctx)
	page := &LedgerPage{
		Entries: make([]LedgerEntryView, 0, len(entries)),
		Total:   total,
		Limit:   query.Limit,
		Offset:  query.Offset,
	}
	for _, entry := range entries {
		page.Entries = append(page.Entries, toView(entry, dueDays))
	}
	return page, nil
}

// ListStalePending returns pending entries created more than olderThan ago
func (s *LedgerQueryService) ListStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]LedgerEntryView, error) {
	if olderThan < 0 {
		return nil, domainErrors.NewValidationError("older_than", "must not be negative")
	}
	cutoff := s.now().Add(-olderThan)

	entries, err := s.store.ListStalePending(ctx, cutoff, clampLimit(limit))
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list stale pending entries")
	}

	dueDays := s.dueDays(ctx)
	views := make([]LedgerEntryView, 0, len(entries))
	for _, entry := range entries {
		views = append(views, toView(entry, dueDays))
	}
	return views, nil
}

// dueDays falls back to no due date when settings cannot be read.
func (s *LedgerQueryService) dueDays(ctx context.Context) int {
	days, err := s.settings.DueDays(ctx)
	if err != nil {
		s.logger.Warn("Failed to read due days, omitting due dates", zap.Error(err))
		return 0
	}
	return days
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultListLimit
	case limit > maxListLimit:
		return maxListLimit
	}
	return limit
}

func toView(entry *model.LedgerEntry, dueDays int) LedgerEntryView {
	view := LedgerEntryView{
		ID:                    entry.ID,
		ExternalTransactionID: entry.ExternalID(),
		AmountMinorUnits:      entry.AmountMinorUnits,
		Currency:              entry.Currency,
		Status:                entry.Status,
		BeneficiaryID:         entry.BeneficiaryID,
		InitiatorID:           entry.InitiatorID,
		Gateway:               entry.Gateway,
		Placeholder:           entry.Placeholder,
		CreatedAt:             entry.CreatedAt,
		UpdatedAt:             entry.UpdatedAt,
	}
	if exp, err := money.Exponent(entry.Currency); err == nil {
		view.Amount = decimal.New(entry.AmountMinorUnits, -exp)
	}
	if entry.Reference != nil {
		view.Reference = *entry.Reference
	}
	if entry.FailureReason != nil {
		view.FailureReason = *entry.FailureReason
	}
	if entry.Status == model.LedgerStatusPending && dueDays > 0 {
		due := entry.CreatedAt.AddDate(0, 0, dueDays)
		view.DueDate = &due
	}
	return view
}
