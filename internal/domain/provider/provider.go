package provider

import (
	"context"
	"errors"
	"time"
)

// Gateway is the narrow capability the payment flow needs from a payment gateway.
type Gateway interface {
	// Name returns the gateway name stored on ledger entries.
	Name() string

	// CreateIntent creates a remote payment intent. Implementations must pass
	// req.IdempotencyKey to the gateway so a retried call never double-charges.
	CreateIntent(ctx context.Context, req *CreateIntentRequest) (*CreateIntentResponse, error)

	// VerifyAndParseEvent checks the webhook signature before decoding the payload.
	// It returns an error wrapping errors.ErrInvalidSignature on mismatch.
	VerifyAndParseEvent(payload []byte, signatureHeader string) (*Event, error)
}

// GatewayType identifies a gateway implementation
type GatewayType string

const (
	GatewayTypeNone     GatewayType = "none"
	GatewayTypeStripe   GatewayType = "stripe"
	GatewayTypeRazorpay GatewayType = "razorpay"
)

// Metadata keys attached to every outbound intent
const (
	MetadataLedgerEntryID = "ledger_entry_id"
	MetadataBeneficiaryID = "beneficiary_id"
	MetadataInitiatorID   = "initiator_id"
	MetadataDescription   = "description"
)

// ErrTimeout is wrapped by gateway errors caused by the call deadline.
var ErrTimeout = errors.New("gateway call timed out")

// CreateIntentRequest represents a gateway-agnostic payment intent request
type CreateIntentRequest struct {
	LedgerEntryID    string
	AmountMinorUnits int64
	Currency         string
	Description      string
	BeneficiaryID    string
	InitiatorID      string
	IdempotencyKey   string
}

// CreateIntentResponse is returned by a successful CreateIntent
type CreateIntentResponse struct {
	ExternalTransactionID string
	ClientSecret          string
}

// EventKind is the gateway-agnostic meaning of a webhook event
type EventKind string

const (
	EventKindIntentSucceeded EventKind = "intent_succeeded"
	EventKindIntentFailed    EventKind = "intent_failed"
	EventKindRefundCompleted EventKind = "refund_completed"
	EventKindIgnored         EventKind = "ignored"
)

// Event is a verified webhook event
type Event struct {
	ID   string
	Type string
	Kind EventKind

	// CorrelationID is the ledger entry id echoed back from intent metadata.
	CorrelationID         string
	ExternalTransactionID string
	AmountMinorUnits      int64
	Currency              string
	BeneficiaryID         string
	InitiatorID           string
	Description           string
	FailureReason         string
	CreatedAt             time.Time
}

// GatewayError is a rejection reported by the gateway itself
type GatewayError struct {
	Gateway    string
	Code       string
	Message    string
	HTTPStatus int
}

func (e *GatewayError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}
