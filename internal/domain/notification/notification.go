package notification

import (
	"context"
	"time"

	"github.com/wekeepgrowing/academy-payments/internal/domain/model"
)

// Outcome describes the terminal state a ledger entry reached
type Outcome struct {
	Status           model.LedgerStatus `json:"status"`
	BeneficiaryID    string             `json:"beneficiary_id"`
	InitiatorID      string             `json:"initiator_id,omitempty"`
	AmountMinorUnits int64              `json:"amount_minor_units"`
	Currency         string             `json:"currency"`
	FailureReason    string             `json:"failure_reason,omitempty"`
	EventID          string             `json:"event_id"`
	OccurredAt       time.Time          `json:"occurred_at"`
}

// Dispatcher informs users of payment outcomes. Callers treat it as
// fire-and-forget: errors are logged, never retried.
type Dispatcher interface {
	Notify(ctx context.Context, ledgerEntryID string, outcome Outcome) error
}

// OutcomeFromEntry builds the outcome for an entry that just transitioned.
func OutcomeFromEntry(entry *model.LedgerEntry, eventID string) Outcome {
	outcome := Outcome{
		Status:           entry.Status,
		BeneficiaryID:    entry.BeneficiaryID,
		InitiatorID:      entry.InitiatorID,
		AmountMinorUnits: entry.AmountMinorUnits,
		Currency:         entry.Currency,
		EventID:          eventID,
		OccurredAt:       entry.UpdatedAt,
	}
	if entry.FailureReason != nil {
		outcome.FailureReason = *entry.FailureReason
	}
	return outcome
}
