package model

import (
	"time"

	"github.com/google/uuid"
)

// EventOutcome records what handling a gateway event did to the ledger
type EventOutcome string

const (
	EventOutcomeApplied           EventOutcome = "applied"
	EventOutcomeNoop              EventOutcome = "noop"
	EventOutcomeInvalidTransition EventOutcome = "invalid_transition"
	EventOutcomeIgnored           EventOutcome = "ignored"
)

// ProcessedEvent marks a gateway event id as handled. Rows are never updated.
type ProcessedEvent struct {
	EventID       string       `gorm:"primaryKey;size:255" json:"event_id"`
	EventType     string       `gorm:"size:100;not null" json:"event_type"`
	LedgerEntryID *uuid.UUID   `gorm:"type:uuid;index" json:"ledger_entry_id,omitempty"`
	Outcome       EventOutcome `gorm:"size:32;not null" json:"outcome"`
	ProcessedAt   time.Time    `gorm:"not null;index" json:"processed_at"`
}

// TableName specifies the table name for GORM
func (ProcessedEvent) TableName() string {
	return "processed_events"
}
