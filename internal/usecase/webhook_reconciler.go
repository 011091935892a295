package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	domainErrors "github.com/wekeepgrowing/academy-payments/internal/domain/errors"
	"github.com/wekeepgrowing/academy-payments/internal/domain/model"
	"github.com/wekeepgrowing/academy-payments/internal/domain/notification"
	"github.com/wekeepgrowing/academy-payments/internal/domain/provider"
	"github.com/wekeepgrowing/academy-payments/internal/domain/repository"
	apperrors "github.com/wekeepgrowing/academy-payments/pkg/errors"
)

// errDuplicateDelivery rolls back a transaction whose marker insert lost the race.
var errDuplicateDelivery = errors.New("event already processed")

// Ack is the reconciler's answer for one delivery
type Ack struct {
	EventID       string
	EventType     string
	Duplicate     bool
	Outcome       model.EventOutcome
	LedgerEntryID *uuid.UUID
}

// WebhookReconciler applies verified gateway events to the ledger exactly once
type WebhookReconciler struct {
	verifier   provider.Gateway
	store      repository.LedgerStore
	guard      *IdempotencyGuard
	dispatcher notification.Dispatcher
	recorder   Recorder
	logger     *zap.Logger
	now        func() time.Time
}

// WebhookOption customizes a WebhookReconciler
type WebhookOption func(*WebhookReconciler)

// WithWebhookRecorder sets the metrics recorder
func WithWebhookRecorder(r Recorder) WebhookOption {
	return func(w *WebhookReconciler) { w.recorder = r }
}

// WithWebhookClock overrides the time source
func WithWebhookClock(fn func() time.Time) WebhookOption {
	return func(w *WebhookReconciler) { w.now = fn }
}

// NewWebhookReconciler creates a new webhook reconciler
func NewWebhookReconciler(
	verifier provider.Gateway,
	store repository.LedgerStore,
	guard *IdempotencyGuard,
	dispatcher notification.Dispatcher,
	logger *zap.Logger,
	opts ...WebhookOption,
) *WebhookReconciler {
	w := &WebhookReconciler{
		verifier:   verifier,
		store:      store,
		guard:      guard,
		dispatcher: dispatcher,
		recorder:   nopRecorder{},
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// HandleEvent verifies, deduplicates and applies one webhook delivery.
// Any returned error other than ErrInvalidSignature means nothing was
// committed and the gateway should retry.
func (w *WebhookReconciler) HandleEvent(ctx context.Context, payload []byte, signatureHeader string) (*Ack, error) {
	event, err := w.verifier.VerifyAndParseEvent(payload, signatureHeader)
	if err != nil {
		if errors.Is(err, domainErrors.ErrInvalidSignature) {
			w.logger.Warn("Rejected webhook with invalid signature", zap.Error(err))
			w.recorder.WebhookHandled("unknown", "invalid_signature")
			return nil, err
		}
		// Authentic but unreadable: fail so the gateway redelivers while someone looks.
		apperrors.LogError(w.logger, err, "Failed to parse verified webhook event")
		w.recorder.WebhookHandled("unknown", "malformed")
		return nil, apperrors.Wrap(err, "failed to parse webhook event")
	}

	logger := w.logger.With(
		zap.String("event_id", event.ID),
		zap.String("event_type", event.Type))

	seen, err := w.guard.Seen(ctx, event.ID)
	if err != nil {
		return nil, err
	}
	if seen {
		logger.Debug("Duplicate webhook delivery")
		w.recorder.WebhookHandled(event.Type, "duplicate")
		return &Ack{EventID: event.ID, EventType: event.Type, Duplicate: true}, nil
	}

	if event.Kind == provider.EventKindIgnored || event.Kind == "" {
		return w.recordIgnored(ctx, event, logger)
	}

	var (
		entry   *model.LedgerEntry
		outcome model.EventOutcome
		applied bool
	)
	err = w.store.RunInTx(ctx, func(ctx context.Context, tx repository.LedgerTx) error {
		current, created, err := w.locate(ctx, tx, event)
		if err != nil {
			return err
		}

		var transitionErr error
		outcome, transitionErr = w.apply(current, event)

		var entryID *uuid.UUID
		if current != nil {
			id := current.ID
			entryID = &id
		}
		inserted, err := w.guard.Record(ctx, tx, event, entryID, outcome)
		if err != nil {
			return err
		}
		if !inserted {
			return errDuplicateDelivery
		}

		if transitionErr != nil {
			logInvalidTransition(logger, current, event, transitionErr)
			entry = current
			return nil
		}

		switch {
		case created:
			err = tx.Create(ctx, current)
		case outcome == model.EventOutcomeApplied || attachExternal(current, event):
			err = tx.Save(ctx, current)
		}
		if err != nil {
			return err
		}
		entry = current
		applied = outcome == model.EventOutcomeApplied
		return nil
	})
	if errors.Is(err, errDuplicateDelivery) {
		w.recorder.WebhookHandled(event.Type, "duplicate")
		return &Ack{EventID: event.ID, EventType: event.Type, Duplicate: true}, nil
	}
	if err != nil {
		apperrors.LogError(logger, err, "Failed to apply webhook event")
		return nil, apperrors.Wrap(err, fmt.Sprintf("failed to apply event %s", event.ID))
	}

	w.recorder.WebhookHandled(event.Type, string(outcome))
	ack := &Ack{EventID: event.ID, EventType: event.Type, Outcome: outcome}
	if entry != nil {
		id := entry.ID
		ack.LedgerEntryID = &id
	}

	if applied && entry.Status.IsTerminal() {
		logger.Info("Ledger entry reconciled",
			zap.String("ledger_entry_id", entry.ID.String()),
			zap.String("status", string(entry.Status)),
			zap.Bool("placeholder", entry.Placeholder))
		w.notify(ctx, entry, event.ID, logger)
	}
	return ack, nil
}

func (w *WebhookReconciler) recordIgnored(ctx context.Context, event *provider.Event, logger *zap.Logger) (*Ack, error) {
	err := w.store.RunInTx(ctx, func(ctx context.Context, tx repository.LedgerTx) error {
		inserted, err := w.guard.Record(ctx, tx, event, nil, model.EventOutcomeIgnored)
		if err != nil {
			return err
		}
		if !inserted {
			return errDuplicateDelivery
		}
		return nil
	})
	if errors.Is(err, errDuplicateDelivery) {
		w.recorder.WebhookHandled(event.Type, "duplicate")
		return &Ack{EventID: event.ID, EventType: event.Type, Duplicate: true}, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(err, fmt.Sprintf("failed to record event %s", event.ID))
	}

	logger.Debug("Ignored webhook event")
	w.recorder.WebhookHandled(event.Type, string(model.EventOutcomeIgnored))
	return &Ack{EventID: event.ID, EventType: event.Type, Outcome: model.EventOutcomeIgnored}, nil
}

// locate finds and locks the entry an event refers to. When no entry exists
// yet for a succeeded or failed event, it returns an unsaved pending
// placeholder built from the event and created=true.
func (w *WebhookReconciler) locate(ctx context.Context, tx repository.LedgerTx, event *provider.Event) (*model.LedgerEntry, bool, error) {
	correlationID, hasCorrelation := parseCorrelationID(event.CorrelationID)

	if hasCorrelation {
		entry, err := tx.GetForUpdate(ctx, correlationID)
		if err == nil {
			return entry, false, nil
		}
		if !errors.Is(err, domainErrors.ErrLedgerEntryNotFound) {
			return nil, false, err
		}
	}
	if event.ExternalTransactionID != "" {
		entry, err := tx.GetByExternalIDForUpdate(ctx, event.ExternalTransactionID)
		if err == nil {
			return entry, false, nil
		}
		if !errors.Is(err, domainErrors.ErrLedgerEntryNotFound) {
			return nil, false, err
		}
	}

	if event.Kind == provider.EventKindRefundCompleted {
		return nil, false, nil
	}

	id := correlationID
	if !hasCorrelation {
		id = uuid.New()
	}
	createdAt := event.CreatedAt
	if createdAt.IsZero() {
		createdAt = w.now()
	}
	placeholder := &model.LedgerEntry{
		ID:               id,
		AmountMinorUnits: event.AmountMinorUnits,
		Currency:         event.Currency,
		Status:           model.LedgerStatusPending,
		BeneficiaryID:    event.BeneficiaryID,
		InitiatorID:      event.InitiatorID,
		Gateway:          w.verifier.Name(),
		Placeholder:      true,
		CreatedAt:        createdAt.UTC(),
		UpdatedAt:        createdAt.UTC(),
	}
	if event.ExternalTransactionID != "" {
		external := event.ExternalTransactionID
		placeholder.ExternalTransactionID = &external
	}
	if event.Description != "" {
		description := event.Description
		placeholder.Reference = &description
	}
	w.logger.Info("Creating placeholder ledger entry for early webhook",
		zap.String("event_id", event.ID),
		zap.String("ledger_entry_id", id.String()),
		zap.Bool("correlated", hasCorrelation))
	return placeholder, true, nil
}

// apply computes the transition for event on entry in memory.
func (w *WebhookReconciler) apply(entry *model.LedgerEntry, event *provider.Event) (model.EventOutcome, error) {
	target := targetStatus(event.Kind)
	if entry == nil {
		return model.EventOutcomeInvalidTransition, &domainErrors.InvalidTransitionError{
			To: string(target),
		}
	}

	changed, err := entry.Transition(target, event.FailureReason, w.now().UTC())
	switch {
	case err != nil:
		return model.EventOutcomeInvalidTransition, err
	case changed:
		return model.EventOutcomeApplied, nil
	default:
		return model.EventOutcomeNoop, nil
	}
}

func (w *WebhookReconciler) notify(ctx context.Context, entry *model.LedgerEntry, eventID string, logger *zap.Logger) {
	if w.dispatcher == nil {
		return
	}
	outcome := notification.OutcomeFromEntry(entry, eventID)
	if err := w.dispatcher.Notify(context.WithoutCancel(ctx), entry.ID.String(), outcome); err != nil {
		logger.Warn("Failed to dispatch payment outcome",
			zap.String("ledger_entry_id", entry.ID.String()),
			zap.Error(err))
	}
}

// attachExternal copies the gateway transaction id onto an entry that lacks one.
func attachExternal(entry *model.LedgerEntry, event *provider.Event) bool {
	if entry == nil || entry.ExternalTransactionID != nil || event.ExternalTransactionID == "" {
		return false
	}
	external := event.ExternalTransactionID
	entry.ExternalTransactionID = &external
	return true
}

func targetStatus(kind provider.EventKind) model.LedgerStatus {
	switch kind {
	case provider.EventKindIntentSucceeded:
		return model.LedgerStatusSucceeded
	case provider.EventKindIntentFailed:
		return model.LedgerStatusFailed
	case provider.EventKindRefundCompleted:
		return model.LedgerStatusRefunded
	}
	return model.LedgerStatusPending
}

func parseCorrelationID(raw string) (uuid.UUID, bool) {
	if raw == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

func logInvalidTransition(logger *zap.Logger, entry *model.LedgerEntry, event *provider.Event, err error) {
	fields := []zap.Field{
		zap.String("to", string(targetStatus(event.Kind))),
	}
	if entry != nil {
		fields = append(fields,
			zap.String("ledger_entry_id", entry.ID.String()),
			zap.String("from", string(entry.Status)))
	} else {
		fields = append(fields, zap.String("external_transaction_id", event.ExternalTransactionID))
	}
	apperrors.LogError(logger, err, "Webhook event does not fit ledger state, needs manual review", fields...)
}
