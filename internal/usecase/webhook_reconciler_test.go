package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wekeepgrowing/academy-payments/internal/adapter/repository/memory"
	domainErrors "github.com/wekeepgrowing/academy-payments/internal/domain/errors"
	"github.com/wekeepgrowing/academy-payments/internal/domain/model"
	"github.com/wekeepgrowing/academy-payments/internal/domain/provider"
	"github.com/wekeepgrowing/academy-payments/internal/usecase"
)

const testSignature = "t=1,v1=abc"

type webhookFixture struct {
	store      *memory.LedgerStore
	gateway    *MockGateway
	dispatcher *recordingDispatcher
	recorder   *fakeRecorder
	logs       *observer.ObservedLogs
	reconciler *usecase.WebhookReconciler
}

func newWebhookFixture(t *testing.T) *webhookFixture {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	f := &webhookFixture{
		store:      memory.NewLedgerStore(),
		gateway:    new(MockGateway),
		dispatcher: newRecordingDispatcher(),
		recorder:   newFakeRecorder(),
		logs:       logs,
	}
	f.reconciler = usecase.NewWebhookReconciler(
		f.gateway,
		f.store,
		usecase.NewIdempotencyGuard(f.store, logger),
		f.dispatcher,
		logger,
		usecase.WithWebhookRecorder(f.recorder),
	)
	return f
}

// deliver registers event under its own id as payload and handles it.
func (f *webhookFixture) deliver(t *testing.T, event *provider.Event) (*usecase.Ack, error) {
	t.Helper()
	payload := []byte(event.ID)
	f.gateway.On("VerifyAndParseEvent", payload, testSignature).Return(event, nil).Maybe()
	return f.reconciler.HandleEvent(context.Background(), payload, testSignature)
}

func (f *webhookFixture) seedPending(t *testing.T, externalID string) *model.LedgerEntry {
	t.Helper()
	created := time.Now().Add(-time.Minute).UTC()
	entry := &model.LedgerEntry{
		ID:               uuid.New(),
		AmountMinorUnits: 4999,
		Currency:         "USD",
		Status:           model.LedgerStatusPending,
		BeneficiaryID:    "player-7",
		InitiatorID:      "parent-1",
		Gateway:          "stripe",
		CreatedAt:        created,
		UpdatedAt:        created,
	}
	if externalID != "" {
		entry.ExternalTransactionID = &externalID
	}
	require.NoError(t, f.store.Create(context.Background(), entry))
	return entry
}

func succeededEvent(id string, entry *model.LedgerEntry) *provider.Event {
	return &provider.Event{
		ID:                    id,
		Type:                  "payment_intent.succeeded",
		Kind:                  provider.EventKindIntentSucceeded,
		CorrelationID:         entry.ID.String(),
		ExternalTransactionID: entry.ExternalID(),
		AmountMinorUnits:      entry.AmountMinorUnits,
		Currency:              entry.Currency,
	}
}

func TestWebhookReconciler_SucceededThenReplay(t *testing.T) {
	f := newWebhookFixture(t)
	ctx := context.Background()
	entry := f.seedPending(t, "pi_1")
	event := succeededEvent("evt_1", entry)

	ack, err := f.deliver(t, event)
	require.NoError(t, err)
	assert.False(t, ack.Duplicate)
	assert.Equal(t, model.EventOutcomeApplied, ack.Outcome)
	require.NotNil(t, ack.LedgerEntryID)
	assert.Equal(t, entry.ID, *ack.LedgerEntryID)

	stored, err := f.store.GetByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, model.LedgerStatusSucceeded, stored.Status)
	assert.True(t, stored.UpdatedAt.After(entry.UpdatedAt))
	firstUpdate := stored.UpdatedAt

	replay, err := f.deliver(t, event)
	require.NoError(t, err)
	assert.True(t, replay.Duplicate)

	stored, err = f.store.GetByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, model.LedgerStatusSucceeded, stored.Status)
	assert.Equal(t, firstUpdate, stored.UpdatedAt)

	assert.Equal(t, 1, f.dispatcher.count(entry.ID.String()))
	assert.Len(t, f.store.ProcessedEvents(), 1)
	assert.Equal(t, 1, f.recorder.webhookCount("duplicate"))
}

func TestWebhookReconciler_LocatesByExternalID(t *testing.T) {
	f := newWebhookFixture(t)
	entry := f.seedPending(t, "pi_ext")
	event := succeededEvent("evt_ext", entry)
	event.CorrelationID = ""

	ack, err := f.deliver(t, event)

	require.NoError(t, err)
	assert.Equal(t, model.EventOutcomeApplied, ack.Outcome)
	stored, err := f.store.GetByID(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.Equal(t, model.LedgerStatusSucceeded, stored.Status)
}

func TestWebhookReconciler_WebhookBeforeLocalWrite(t *testing.T) {
	f := newWebhookFixture(t)
	ctx := context.Background()
	ledgerID := uuid.New()

	ack, err := f.deliver(t, &provider.Event{
		ID:                    "evt_early",
		Type:                  "payment_intent.succeeded",
		Kind:                  provider.EventKindIntentSucceeded,
		CorrelationID:         ledgerID.String(),
		ExternalTransactionID: "pi_early",
		AmountMinorUnits:      4999,
		Currency:              "USD",
		BeneficiaryID:         "player-7",
	})

	require.NoError(t, err)
	assert.Equal(t, model.EventOutcomeApplied, ack.Outcome)
	require.NotNil(t, ack.LedgerEntryID)
	assert.Equal(t, ledgerID, *ack.LedgerEntryID)

	placeholder, err := f.store.GetByID(ctx, ledgerID)
	require.NoError(t, err)
	assert.True(t, placeholder.Placeholder)
	assert.Equal(t, model.LedgerStatusSucceeded, placeholder.Status)
	assert.Equal(t, int64(4999), placeholder.AmountMinorUnits)
	assert.Equal(t, "pi_early", placeholder.ExternalID())
	assert.Equal(t, "player-7", placeholder.BeneficiaryID)
	assert.Equal(t, 1, f.dispatcher.count(ledgerID.String()))
}

func TestWebhookReconciler_PlaceholderWithoutCorrelation(t *testing.T) {
	f := newWebhookFixture(t)

	ack, err := f.deliver(t, &provider.Event{
		ID:                    "evt_orphan",
		Type:                  "payment_intent.payment_failed",
		Kind:                  provider.EventKindIntentFailed,
		CorrelationID:         "not-a-uuid",
		ExternalTransactionID: "pi_orphan",
		AmountMinorUnits:      1000,
		Currency:              "USD",
		FailureReason:         "card declined",
	})

	require.NoError(t, err)
	assert.Equal(t, model.EventOutcomeApplied, ack.Outcome)
	stored, err := f.store.GetByExternalID(context.Background(), "pi_orphan")
	require.NoError(t, err)
	assert.Equal(t, model.LedgerStatusFailed, stored.Status)
	require.NotNil(t, stored.FailureReason)
	assert.Equal(t, "card declined", *stored.FailureReason)
}

func TestWebhookReconciler_InvalidSignature(t *testing.T) {
	f := newWebhookFixture(t)
	entry := f.seedPending(t, "pi_1")
	f.gateway.On("VerifyAndParseEvent", []byte("forged"), "bad").
		Return(nil, fmt.Errorf("%w: signature mismatch", domainErrors.ErrInvalidSignature)).Once()

	ack, err := f.reconciler.HandleEvent(context.Background(), []byte("forged"), "bad")

	assert.Nil(t, ack)
	assert.ErrorIs(t, err, domainErrors.ErrInvalidSignature)
	assert.Equal(t, "invalid webhook signature: signature mismatch", err.Error())
	assert.Equal(t, 1, f.recorder.webhookCount("invalid_signature"))
	assert.Empty(t, f.store.ProcessedEvents())

	stored, err := f.store.GetByID(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.Equal(t, model.LedgerStatusPending, stored.Status)
	assert.Zero(t, f.dispatcher.total())
}

func TestWebhookReconciler_MalformedEventIsNotASignatureFailure(t *testing.T) {
	f := newWebhookFixture(t)
	entry := f.seedPending(t, "pi_1")
	decodeErr := fmt.Errorf("%w: failed to decode payment intent: %w",
		domainErrors.ErrMalformedEvent, errors.New("json: cannot unmarshal string into Go struct field"))
	f.gateway.On("VerifyAndParseEvent", []byte("signed"), testSignature).Return(nil, decodeErr).Once()

	ack, err := f.reconciler.HandleEvent(context.Background(), []byte("signed"), testSignature)

	assert.Nil(t, ack)
	require.Error(t, err)
	assert.ErrorIs(t, err, domainErrors.ErrMalformedEvent)
	assert.False(t, errors.Is(err, domainErrors.ErrInvalidSignature))
	assert.Empty(t, f.store.ProcessedEvents())
	assert.Equal(t, 1, f.recorder.webhookCount("malformed"))
	assert.Zero(t, f.recorder.webhookCount("invalid_signature"))

	failures := f.logs.FilterMessage("Failed to parse verified webhook event").All()
	require.Len(t, failures, 1)
	assert.Equal(t, zapcore.ErrorLevel, failures[0].Level)
	assert.Zero(t, f.logs.FilterMessage("Rejected webhook with invalid signature").Len())

	stored, err := f.store.GetByID(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.Equal(t, model.LedgerStatusPending, stored.Status)
}

func TestWebhookReconciler_TransitionRules(t *testing.T) {
	t.Run("refund on pending is acknowledged as invalid transition", func(t *testing.T) {
		f := newWebhookFixture(t)
		entry := f.seedPending(t, "pi_1")

		ack, err := f.deliver(t, &provider.Event{
			ID:                    "evt_refund",
			Type:                  "charge.refunded",
			Kind:                  provider.EventKindRefundCompleted,
			ExternalTransactionID: "pi_1",
		})

		require.NoError(t, err)
		assert.False(t, ack.Duplicate)
		assert.Equal(t, model.EventOutcomeInvalidTransition, ack.Outcome)

		stored, err := f.store.GetByID(context.Background(), entry.ID)
		require.NoError(t, err)
		assert.Equal(t, model.LedgerStatusPending, stored.Status)
		assert.Len(t, f.store.ProcessedEvents(), 1)
		assert.Zero(t, f.dispatcher.total())

		warnings := f.logs.FilterLevelExact(zapcore.WarnLevel).FilterField(zap.String("from", "pending")).All()
		require.Len(t, warnings, 1)
		fields := warnings[0].ContextMap()
		assert.Equal(t, entry.ID.String(), fields["ledger_entry_id"])
		assert.Equal(t, "evt_refund", fields["event_id"])
		assert.Equal(t, "refunded", fields["to"])
		assert.Equal(t, "INVALID_TRANSITION", fields["error_code"])
	})

	t.Run("refund for unknown entry creates nothing", func(t *testing.T) {
		f := newWebhookFixture(t)

		ack, err := f.deliver(t, &provider.Event{
			ID:                    "evt_refund_unknown",
			Type:                  "charge.refunded",
			Kind:                  provider.EventKindRefundCompleted,
			ExternalTransactionID: "pi_missing",
		})

		require.NoError(t, err)
		assert.Equal(t, model.EventOutcomeInvalidTransition, ack.Outcome)
		assert.Nil(t, ack.LedgerEntryID)
		_, err = f.store.GetByExternalID(context.Background(), "pi_missing")
		assert.ErrorIs(t, err, domainErrors.ErrLedgerEntryNotFound)
	})

	t.Run("succeeded then refunded", func(t *testing.T) {
		f := newWebhookFixture(t)
		entry := f.seedPending(t, "pi_1")

		_, err := f.deliver(t, succeededEvent("evt_ok", entry))
		require.NoError(t, err)
		ack, err := f.deliver(t, &provider.Event{
			ID:                    "evt_refund",
			Type:                  "charge.refunded",
			Kind:                  provider.EventKindRefundCompleted,
			ExternalTransactionID: "pi_1",
		})
		require.NoError(t, err)
		assert.Equal(t, model.EventOutcomeApplied, ack.Outcome)

		again, err := f.deliver(t, &provider.Event{
			ID:                    "evt_refund_2",
			Type:                  "charge.refunded",
			Kind:                  provider.EventKindRefundCompleted,
			ExternalTransactionID: "pi_1",
		})
		require.NoError(t, err)
		assert.Equal(t, model.EventOutcomeNoop, again.Outcome)

		stored, err := f.store.GetByID(context.Background(), entry.ID)
		require.NoError(t, err)
		assert.Equal(t, model.LedgerStatusRefunded, stored.Status)
		assert.Equal(t, 2, f.dispatcher.count(entry.ID.String()))
	})

	t.Run("failed entry never becomes succeeded", func(t *testing.T) {
		f := newWebhookFixture(t)
		entry := f.seedPending(t, "pi_1")

		failed, err := f.deliver(t, &provider.Event{
			ID:            "evt_fail",
			Type:          "payment_intent.payment_failed",
			Kind:          provider.EventKindIntentFailed,
			CorrelationID: entry.ID.String(),
		})
		require.NoError(t, err)
		assert.Equal(t, model.EventOutcomeApplied, failed.Outcome)

		late, err := f.deliver(t, succeededEvent("evt_late", entry))
		require.NoError(t, err)
		assert.Equal(t, model.EventOutcomeInvalidTransition, late.Outcome)

		stored, err := f.store.GetByID(context.Background(), entry.ID)
		require.NoError(t, err)
		assert.Equal(t, model.LedgerStatusFailed, stored.Status)
		require.NotNil(t, stored.FailureReason)
		assert.Equal(t, "payment failed", *stored.FailureReason)
	})

	t.Run("second success event is a noop", func(t *testing.T) {
		f := newWebhookFixture(t)
		entry := f.seedPending(t, "pi_1")

		_, err := f.deliver(t, succeededEvent("evt_a", entry))
		require.NoError(t, err)
		ack, err := f.deliver(t, succeededEvent("evt_b", entry))
		require.NoError(t, err)

		assert.Equal(t, model.EventOutcomeNoop, ack.Outcome)
		assert.Equal(t, 1, f.dispatcher.count(entry.ID.String()))
		assert.Len(t, f.store.ProcessedEvents(), 2)
	})

	t.Run("unrelated event types are ignored", func(t *testing.T) {
		f := newWebhookFixture(t)

		ack, err := f.deliver(t, &provider.Event{
			ID:   "evt_customer",
			Type: "customer.created",
			Kind: provider.EventKindIgnored,
		})

		require.NoError(t, err)
		assert.Equal(t, model.EventOutcomeIgnored, ack.Outcome)
		events := f.store.ProcessedEvents()
		require.Len(t, events, 1)
		assert.Equal(t, model.EventOutcomeIgnored, events[0].Outcome)
	})
}

func TestWebhookReconciler_ConcurrentDuplicateDeliveries(t *testing.T) {
	f := newWebhookFixture(t)
	entry := f.seedPending(t, "pi_1")
	event := succeededEvent("evt_race", entry)
	f.gateway.On("VerifyAndParseEvent", []byte(event.ID), testSignature).Return(event, nil)

	const deliveries = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ack, err := f.reconciler.HandleEvent(context.Background(), []byte(event.ID), testSignature)
			if !assert.NoError(t, err) {
				return
			}
			if !ack.Duplicate {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, applied)
	assert.Equal(t, 1, f.dispatcher.count(entry.ID.String()))
	assert.Len(t, f.store.ProcessedEvents(), 1)
}

func TestWebhookReconciler_StorageFailureIsRetryable(t *testing.T) {
	f := newWebhookFixture(t)
	entry := f.seedPending(t, "pi_1")
	f.store.FailTransactions(errors.New("connection reset"))

	ack, err := f.deliver(t, succeededEvent("evt_retry", entry))

	assert.Nil(t, ack)
	require.Error(t, err)
	assert.False(t, errors.Is(err, domainErrors.ErrInvalidSignature))
	assert.Empty(t, f.store.ProcessedEvents())

	f.store.FailTransactions(nil)
	ack, err = f.deliver(t, succeededEvent("evt_retry", entry))
	require.NoError(t, err)
	assert.Equal(t, model.EventOutcomeApplied, ack.Outcome)
}

func TestWebhookReconciler_DispatchFailureIsNotReported(t *testing.T) {
	f := newWebhookFixture(t)
	f.dispatcher.err = errors.New("redis down")
	entry := f.seedPending(t, "pi_1")

	ack, err := f.deliver(t, succeededEvent("evt_1", entry))

	require.NoError(t, err)
	assert.Equal(t, model.EventOutcomeApplied, ack.Outcome)
	assert.Equal(t, 1, f.logs.FilterMessage("Failed to dispatch payment outcome").Len())
}

func TestIdempotencyGuard_Evict(t *testing.T) {
	f := newWebhookFixture(t)
	guard := usecase.NewIdempotencyGuard(f.store, zap.NewNop())
	ctx := context.Background()

	_, err := f.deliver(t, &provider.Event{ID: "evt_old", Type: "customer.created", Kind: provider.EventKindIgnored})
	require.NoError(t, err)

	n, err := guard.Evict(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = guard.Evict(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)

	time.Sleep(5 * time.Millisecond)
	n, err = guard.Evict(ctx, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	seen, err := guard.Seen(ctx, "evt_old")
	require.NoError(t, err)
	assert.False(t, seen)
}
