package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wekeepgrowing/academy-payments/internal/adapter/repository/memory"
	domainErrors "github.com/wekeepgrowing/academy-payments/internal/domain/errors"
	"github.com/wekeepgrowing/academy-payments/internal/domain/model"
	"github.com/wekeepgrowing/academy-payments/internal/domain/money"
	"github.com/wekeepgrowing/academy-payments/internal/domain/provider"
	"github.com/wekeepgrowing/academy-payments/internal/domain/repository"
	"github.com/wekeepgrowing/academy-payments/internal/usecase"
)

type intentFixture struct {
	store    *memory.LedgerStore
	gateway  *MockGateway
	settings *fakeSettings
	service  *usecase.PaymentIntentService
	ledgerID uuid.UUID
	logs     *observer.ObservedLogs
}

func newIntentFixture(t *testing.T) *intentFixture {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	f := &intentFixture{
		logs:     logs,
		store:    memory.NewLedgerStore(),
		gateway:  new(MockGateway),
		settings: &fakeSettings{currency: "USD", dueDays: 7, selection: provider.GatewayTypeStripe},
		ledgerID: uuid.New(),
	}
	f.service = usecase.NewPaymentIntentService(
		f.store,
		f.settings,
		staticResolver{gateway: f.gateway},
		money.NewNormalizer(decimal.NewFromInt(10000)),
		usecase.PaymentIntentConfig{
			SupportedCurrencies: []string{"EUR"},
			GatewayTimeout:      time.Second,
			DefaultDescription:  "Academy fee",
		},
		zap.New(core),
		usecase.WithIDGenerator(func() uuid.UUID { return f.ledgerID }),
	)
	return f
}

func (f *intentFixture) entries(t *testing.T) []*model.LedgerEntry {
	t.Helper()
	entries, _, err := f.store.List(context.Background(), repository.LedgerQuery{})
	require.NoError(t, err)
	return entries
}

func TestPaymentIntentService_CreateIntent(t *testing.T) {
	ctx := context.Background()

	t.Run("writes pending entry before calling the gateway", func(t *testing.T) {
		f := newIntentFixture(t)

		f.gateway.On("CreateIntent", mock.Anything, mock.MatchedBy(func(req *provider.CreateIntentRequest) bool {
			// The entry must already exist when the gateway is called.
			entry, err := f.store.GetByID(context.Background(), f.ledgerID)
			return err == nil &&
				entry.Status == model.LedgerStatusPending &&
				req.LedgerEntryID == f.ledgerID.String() &&
				req.IdempotencyKey == f.ledgerID.String() &&
				req.AmountMinorUnits == 4999 &&
				req.Currency == "USD" &&
				req.BeneficiaryID == "player-7" &&
				req.InitiatorID == "parent-1" &&
				req.Description == "Academy fee"
		})).Return(&provider.CreateIntentResponse{
			ExternalTransactionID: "pi_123",
			ClientSecret:          "pi_123_secret_abc",
		}, nil).Once()

		result, err := f.service.CreateIntent(ctx, &usecase.CreateIntentRequest{
			InitiatorID:   "parent-1",
			BeneficiaryID: "player-7",
			Amount:        decimal.RequireFromString("49.99"),
		})

		require.NoError(t, err)
		assert.Equal(t, "pi_123_secret_abc", result.ClientSecret)
		assert.Equal(t, f.ledgerID, result.LedgerEntryID)
		assert.Equal(t, int64(4999), result.AmountMinorUnits)
		assert.Equal(t, "USD", result.Currency)

		entry, err := f.store.GetByID(ctx, f.ledgerID)
		require.NoError(t, err)
		assert.Equal(t, model.LedgerStatusPending, entry.Status)
		assert.Equal(t, "pi_123", entry.ExternalID())
		assert.Equal(t, "stripe", entry.Gateway)
		require.NotNil(t, entry.Reference)
		assert.Equal(t, "Academy fee", *entry.Reference)
		f.gateway.AssertExpectations(t)
	})

	t.Run("accepts supported currency in any case", func(t *testing.T) {
		f := newIntentFixture(t)
		f.gateway.On("CreateIntent", mock.Anything, mock.MatchedBy(func(req *provider.CreateIntentRequest) bool {
			return req.Currency == "EUR" && req.AmountMinorUnits == 1050
		})).Return(&provider.CreateIntentResponse{ExternalTransactionID: "pi_eur", ClientSecret: "s"}, nil).Once()

		result, err := f.service.CreateIntent(ctx, &usecase.CreateIntentRequest{
			InitiatorID:   "parent-1",
			BeneficiaryID: "player-7",
			Amount:        decimal.RequireFromString("10.5"),
			Currency:      "eur",
		})

		require.NoError(t, err)
		assert.Equal(t, "EUR", result.Currency)
		f.gateway.AssertExpectations(t)
	})

	t.Run("validation errors never reach the ledger or the gateway", func(t *testing.T) {
		tests := []struct {
			name  string
			req   *usecase.CreateIntentRequest
			field string
		}{
			{
				name:  "missing beneficiary",
				req:   &usecase.CreateIntentRequest{InitiatorID: "parent-1", Amount: decimal.NewFromInt(10)},
				field: "beneficiaryId",
			},
			{
				name:  "zero amount",
				req:   &usecase.CreateIntentRequest{InitiatorID: "parent-1", BeneficiaryID: "player-7"},
				field: "amount",
			},
			{
				name:  "negative amount",
				req:   &usecase.CreateIntentRequest{InitiatorID: "parent-1", BeneficiaryID: "player-7", Amount: decimal.NewFromInt(-5)},
				field: "amount",
			},
			{
				name:  "unsupported currency",
				req:   &usecase.CreateIntentRequest{InitiatorID: "parent-1", BeneficiaryID: "player-7", Amount: decimal.NewFromInt(10), Currency: "GBP"},
				field: "currency",
			},
			{
				name:  "malformed currency",
				req:   &usecase.CreateIntentRequest{InitiatorID: "parent-1", BeneficiaryID: "player-7", Amount: decimal.NewFromInt(10), Currency: "U1"},
				field: "currency",
			},
			{
				name:  "above ceiling",
				req:   &usecase.CreateIntentRequest{InitiatorID: "parent-1", BeneficiaryID: "player-7", Amount: decimal.NewFromInt(10001)},
				field: "amount",
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				f := newIntentFixture(t)

				result, err := f.service.CreateIntent(ctx, tt.req)

				assert.Nil(t, result)
				var validationErr *domainErrors.ValidationError
				require.ErrorAs(t, err, &validationErr)
				assert.Equal(t, tt.field, validationErr.Field)
				assert.Empty(t, f.entries(t))
				f.gateway.AssertNotCalled(t, "CreateIntent", mock.Anything, mock.Anything)
			})
		}
	})

	t.Run("no gateway selected writes nothing", func(t *testing.T) {
		f := newIntentFixture(t)
		f.settings.selection = provider.GatewayTypeNone

		result, err := f.service.CreateIntent(ctx, &usecase.CreateIntentRequest{
			InitiatorID:   "parent-1",
			BeneficiaryID: "player-7",
			Amount:        decimal.NewFromInt(10),
		})

		assert.Nil(t, result)
		var unavailable *domainErrors.GatewayUnavailableError
		require.ErrorAs(t, err, &unavailable)
		assert.False(t, unavailable.Timeout)
		assert.Empty(t, f.entries(t))
	})

	t.Run("gateway rejection marks the entry failed", func(t *testing.T) {
		f := newIntentFixture(t)
		f.gateway.On("CreateIntent", mock.Anything, mock.Anything).
			Return(nil, &provider.GatewayError{Gateway: "stripe", Code: "card_declined", Message: "Your card was declined."}).Once()

		result, err := f.service.CreateIntent(ctx, &usecase.CreateIntentRequest{
			InitiatorID:   "parent-1",
			BeneficiaryID: "player-7",
			Amount:        decimal.NewFromInt(10),
		})

		assert.Nil(t, result)
		var unavailable *domainErrors.GatewayUnavailableError
		require.ErrorAs(t, err, &unavailable)
		assert.Equal(t, f.ledgerID.String(), unavailable.LedgerEntryID)

		entry, err := f.store.GetByID(ctx, f.ledgerID)
		require.NoError(t, err)
		assert.Equal(t, model.LedgerStatusFailed, entry.Status)
		require.NotNil(t, entry.FailureReason)
		assert.Equal(t, "gateway: Your card was declined.", *entry.FailureReason)
	})

	t.Run("gateway timeout leaves the entry pending", func(t *testing.T) {
		f := newIntentFixture(t)
		f.gateway.On("CreateIntent", mock.Anything, mock.Anything).
			Return(nil, fmt.Errorf("%w: request canceled", provider.ErrTimeout)).Once()

		_, err := f.service.CreateIntent(ctx, &usecase.CreateIntentRequest{
			InitiatorID:   "parent-1",
			BeneficiaryID: "player-7",
			Amount:        decimal.NewFromInt(10),
		})

		var unavailable *domainErrors.GatewayUnavailableError
		require.ErrorAs(t, err, &unavailable)
		assert.True(t, unavailable.Timeout)

		entry, err := f.store.GetByID(ctx, f.ledgerID)
		require.NoError(t, err)
		assert.Equal(t, model.LedgerStatusPending, entry.Status)
		assert.Nil(t, entry.FailureReason)
	})

	t.Run("client cancellation does not abandon the gateway call", func(t *testing.T) {
		f := newIntentFixture(t)
		f.gateway.On("CreateIntent", mock.MatchedBy(func(c context.Context) bool {
			return c.Err() == nil
		}), mock.Anything).Return(&provider.CreateIntentResponse{ExternalTransactionID: "pi_9", ClientSecret: "s"}, nil).Once()

		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		result, err := f.service.CreateIntent(cancelled, &usecase.CreateIntentRequest{
			InitiatorID:   "parent-1",
			BeneficiaryID: "player-7",
			Amount:        decimal.NewFromInt(10),
		})

		require.NoError(t, err)
		entry, err := f.store.GetByID(ctx, result.LedgerEntryID)
		require.NoError(t, err)
		assert.Equal(t, "pi_9", entry.ExternalID())
	})

	t.Run("reconciles into a placeholder created by an early webhook", func(t *testing.T) {
		f := newIntentFixture(t)
		placedAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
		require.NoError(t, f.store.Create(ctx, &model.LedgerEntry{
			ID:               f.ledgerID,
			AmountMinorUnits: 4999,
			Currency:         "USD",
			Status:           model.LedgerStatusSucceeded,
			Gateway:          "stripe",
			Placeholder:      true,
			CreatedAt:        placedAt,
			UpdatedAt:        placedAt,
		}))
		f.gateway.On("CreateIntent", mock.Anything, mock.Anything).
			Return(&provider.CreateIntentResponse{ExternalTransactionID: "pi_early", ClientSecret: "s"}, nil).Once()

		result, err := f.service.CreateIntent(ctx, &usecase.CreateIntentRequest{
			InitiatorID:   "parent-1",
			BeneficiaryID: "player-7",
			Amount:        decimal.RequireFromString("49.99"),
		})

		require.NoError(t, err)
		assert.Equal(t, f.ledgerID, result.LedgerEntryID)

		entry, err := f.store.GetByID(ctx, f.ledgerID)
		require.NoError(t, err)
		assert.Equal(t, model.LedgerStatusSucceeded, entry.Status)
		assert.False(t, entry.Placeholder)
		assert.Equal(t, "player-7", entry.BeneficiaryID)
		assert.Equal(t, "parent-1", entry.InitiatorID)
		assert.Equal(t, "pi_early", entry.ExternalID())
		assert.Equal(t, placedAt, entry.UpdatedAt)
		assert.Len(t, f.entries(t), 1)
	})

	t.Run("settled placeholder keeps its amount", func(t *testing.T) {
		f := newIntentFixture(t)
		placedAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
		require.NoError(t, f.store.Create(ctx, &model.LedgerEntry{
			ID:          f.ledgerID,
			Status:      model.LedgerStatusFailed,
			Gateway:     "stripe",
			Placeholder: true,
			CreatedAt:   placedAt,
			UpdatedAt:   placedAt,
		}))
		f.gateway.On("CreateIntent", mock.Anything, mock.Anything).
			Return(&provider.CreateIntentResponse{ExternalTransactionID: "pi_late", ClientSecret: "s"}, nil).Once()

		_, err := f.service.CreateIntent(ctx, &usecase.CreateIntentRequest{
			InitiatorID:   "parent-1",
			BeneficiaryID: "player-7",
			Amount:        decimal.RequireFromString("49.99"),
		})

		require.NoError(t, err)
		entry, err := f.store.GetByID(ctx, f.ledgerID)
		require.NoError(t, err)
		assert.Equal(t, model.LedgerStatusFailed, entry.Status)
		assert.Zero(t, entry.AmountMinorUnits)
		assert.Empty(t, entry.Currency)
		assert.Equal(t, "player-7", entry.BeneficiaryID)

		mismatch := f.logs.FilterMessage("Placeholder amount differs from request, keeping placeholder amount").All()
		require.Len(t, mismatch, 1)
		assert.Equal(t, "failed", mismatch[0].ContextMap()["status"])
		assert.Equal(t, int64(4999), mismatch[0].ContextMap()["request_amount"])
	})

	t.Run("pending placeholder takes the request amount", func(t *testing.T) {
		f := newIntentFixture(t)
		placedAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
		require.NoError(t, f.store.Create(ctx, &model.LedgerEntry{
			ID:          f.ledgerID,
			Status:      model.LedgerStatusPending,
			Gateway:     "stripe",
			Placeholder: true,
			CreatedAt:   placedAt,
			UpdatedAt:   placedAt,
		}))
		f.gateway.On("CreateIntent", mock.Anything, mock.Anything).
			Return(&provider.CreateIntentResponse{ExternalTransactionID: "pi_early", ClientSecret: "s"}, nil).Once()

		_, err := f.service.CreateIntent(ctx, &usecase.CreateIntentRequest{
			InitiatorID:   "parent-1",
			BeneficiaryID: "player-7",
			Amount:        decimal.RequireFromString("49.99"),
		})

		require.NoError(t, err)
		entry, err := f.store.GetByID(ctx, f.ledgerID)
		require.NoError(t, err)
		assert.Equal(t, int64(4999), entry.AmountMinorUnits)
		assert.Equal(t, "USD", entry.Currency)
		assert.Zero(t, f.logs.FilterMessage("Placeholder amount differs from request, keeping placeholder amount").Len())
	})

	t.Run("storage failure is not a gateway error", func(t *testing.T) {
		f := newIntentFixture(t)
		f.settings.err = errors.New("settings unavailable")

		_, err := f.service.CreateIntent(ctx, &usecase.CreateIntentRequest{
			InitiatorID:   "parent-1",
			BeneficiaryID: "player-7",
			Amount:        decimal.NewFromInt(10),
		})

		require.Error(t, err)
		var unavailable *domainErrors.GatewayUnavailableError
		assert.False(t, errors.As(err, &unavailable))
		assert.Empty(t, f.entries(t))
	})
}
