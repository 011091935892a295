package model

import (
	"database/sql/driver"
	"time"

	"github.com/google/uuid"

	domainErrors "github.com/wekeepgrowing/academy-payments/internal/domain/errors"
)

// LedgerStatus represents the lifecycle state of a ledger entry
type LedgerStatus string

const (
	LedgerStatusPending   LedgerStatus = "pending"
	LedgerStatusSucceeded LedgerStatus = "succeeded"
	LedgerStatusFailed    LedgerStatus = "failed"
	LedgerStatusRefunded  LedgerStatus = "refunded"
)

// Scan implements sql.Scanner interface
func (s *LedgerStatus) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		*s = LedgerStatus(v)
	case []byte:
		*s = LedgerStatus(v)
	default:
		*s = LedgerStatusPending
	}
	return nil
}

// Value implements driver.Valuer interface
func (s LedgerStatus) Value() (driver.Value, error) {
	return string(s), nil
}

// Valid reports whether s is one of the known statuses.
func (s LedgerStatus) Valid() bool {
	switch s {
	case LedgerStatusPending, LedgerStatusSucceeded, LedgerStatusFailed, LedgerStatusRefunded:
		return true
	}
	return false
}

// IsTerminal reports whether the status has left pending. Only succeeded may
// move further, to refunded.
func (s LedgerStatus) IsTerminal() bool {
	return s != LedgerStatusPending
}

// LedgerEntry is the durable record of one payment attempt
type LedgerEntry struct {
	ID                    uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	ExternalTransactionID *string      `gorm:"column:external_transaction_id;size:255" json:"external_transaction_id,omitempty"`
	AmountMinorUnits      int64        `gorm:"not null" json:"amount_minor_units"`
	Currency              string       `gorm:"size:3;not null" json:"currency"`
	Status                LedgerStatus `gorm:"size:20;not null;default:'pending'" json:"status"`
	BeneficiaryID         string       `gorm:"size:255;not null;index" json:"beneficiary_id"`
	InitiatorID           string       `gorm:"size:255" json:"initiator_id,omitempty"`
	Reference             *string      `json:"reference,omitempty"`
	FailureReason         *string      `json:"failure_reason,omitempty"`
	Gateway               string       `gorm:"size:32" json:"gateway"`
	// Placeholder is set when the entry was first created from a webhook.
	Placeholder bool      `gorm:"not null;default:false" json:"placeholder"`
	CreatedAt   time.Time `gorm:"autoCreateTime:false;not null" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime:false;not null" json:"updated_at"`
}

// TableName specifies the table name for GORM
func (LedgerEntry) TableName() string {
	return "ledger_entries"
}

// Transition moves the entry to next and reports whether anything changed.
// Repeated or stale outcomes are no-ops; outcomes that contradict the current
// state return an InvalidTransitionError and leave the entry untouched.
func (e *LedgerEntry) Transition(next LedgerStatus, failureReason string, at time.Time) (bool, error) {
	invalid := &domainErrors.InvalidTransitionError{
		LedgerEntryID: e.ID.String(),
		From:          string(e.Status),
		To:            string(next),
	}

	switch next {
	case LedgerStatusSucceeded:
		switch e.Status {
		case LedgerStatusPending:
		case LedgerStatusSucceeded, LedgerStatusRefunded:
			return false, nil
		default:
			return false, invalid
		}
	case LedgerStatusFailed:
		if e.Status.IsTerminal() {
			return false, nil
		}
		reason := failureReason
		if reason == "" {
			reason = "payment failed"
		}
		e.FailureReason = &reason
	case LedgerStatusRefunded:
		switch e.Status {
		case LedgerStatusSucceeded:
		case LedgerStatusRefunded:
			return false, nil
		default:
			return false, invalid
		}
	default:
		return false, invalid
	}

	e.Status = next
	e.UpdatedAt = at
	return true, nil
}

// ExternalID returns the gateway transaction id or an empty string.
func (e *LedgerEntry) ExternalID() string {
	if e.ExternalTransactionID == nil {
		return ""
	}
	return *e.ExternalTransactionID
}
