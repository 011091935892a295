package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	domainErrors "github.com/wekeepgrowing/academy-payments/internal/domain/errors"
	"github.com/wekeepgrowing/academy-payments/internal/domain/model"
	"github.com/wekeepgrowing/academy-payments/internal/domain/money"
	"github.com/wekeepgrowing/academy-payments/internal/domain/provider"
	"github.com/wekeepgrowing/academy-payments/internal/domain/repository"
	"github.com/wekeepgrowing/academy-payments/internal/domain/settings"
	apperrors "github.com/wekeepgrowing/academy-payments/pkg/errors"
)

// CreateIntentRequest is a validated-on-entry request to charge a payer
type CreateIntentRequest struct {
	InitiatorID   string          `validate:"required,max=255"`
	BeneficiaryID string          `validate:"required,max=255"`
	Amount        decimal.Decimal `validate:"-"`
	Currency      string          `validate:"omitempty,len=3,alpha"`
	Description   string          `validate:"max=500"`
}

// CreateIntentResult is returned to the front end to complete the charge
type CreateIntentResult struct {
	ClientSecret     string
	LedgerEntryID    uuid.UUID
	AmountMinorUnits int64
	Currency         string
}

// PaymentIntentConfig holds intent creation settings
type PaymentIntentConfig struct {
	SupportedCurrencies []string
	GatewayTimeout      time.Duration
	DefaultDescription  string
}

// PaymentIntentService creates gateway payment intents backed by a pending ledger entry
type PaymentIntentService struct {
	store      repository.LedgerStore
	settings   settings.Provider
	gateways   GatewayResolver
	normalizer *money.Normalizer
	validate   *validator.Validate
	config     PaymentIntentConfig
	recorder   Recorder
	logger     *zap.Logger
	now        func() time.Time
	newID      func() uuid.UUID
}

// PaymentIntentOption customizes a PaymentIntentService
type PaymentIntentOption func(*PaymentIntentService)

// WithIntentRecorder sets the metrics recorder
func WithIntentRecorder(r Recorder) PaymentIntentOption {
	return func(s *PaymentIntentService) { s.recorder = r }
}

// WithIDGenerator overrides ledger id generation
func WithIDGenerator(fn func() uuid.UUID) PaymentIntentOption {
	return func(s *PaymentIntentService) { s.newID = fn }
}

// WithIntentClock overrides the time source
func WithIntentClock(fn func() time.Time) PaymentIntentOption {
	return func(s *PaymentIntentService) { s.now = fn }
}

// NewPaymentIntentService creates a new payment intent service
func NewPaymentIntentService(
	store repository.LedgerStore,
	settingsProvider settings.Provider,
	gateways GatewayResolver,
	normalizer *money.Normalizer,
	config PaymentIntentConfig,
	logger *zap.Logger,
	opts ...PaymentIntentOption,
) *PaymentIntentService {
	if config.GatewayTimeout <= 0 {
		config.GatewayTimeout = 10 * time.Second
	}
	s := &PaymentIntentService{
		store:      store,
		settings:   settingsProvider,
		gateways:   gateways,
		normalizer: normalizer,
		validate:   validator.New(),
		config:     config,
		recorder:   nopRecorder{},
		logger:     logger,
		now:        time.Now,
		newID:      uuid.New,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateIntent writes a pending ledger entry, then asks the gateway for an
// intent. Everything after validation runs detached from the caller's
// cancellation so the ledger always reflects what the gateway saw.
func (s *PaymentIntentService) CreateIntent(ctx context.Context, req *CreateIntentRequest) (*CreateIntentResult, error) {
	currency, err := s.validateRequest(ctx, req)
	if err != nil {
		var validationErr *domainErrors.ValidationError
		if errors.As(err, &validationErr) {
			s.recorder.IntentCreated("validation_error")
		}
		return nil, err
	}

	selection, err := s.settings.GatewaySelection(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to read gateway selection")
	}
	gateway, err := s.gateways.Resolve(selection)
	if err != nil {
		s.logger.Warn("No payment gateway available",
			zap.String("selection", string(selection)),
			zap.Error(err))
		s.recorder.IntentCreated("gateway_unavailable")
		return nil, &domainErrors.GatewayUnavailableError{Gateway: string(selection), Err: err}
	}

	minor, err := s.normalizer.ToMinorUnits(req.Amount, currency)
	if err != nil {
		s.recorder.IntentCreated("validation_error")
		return nil, err
	}

	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = s.config.DefaultDescription
	}

	ctx = context.WithoutCancel(ctx)
	now := s.now().UTC()
	entry := &model.LedgerEntry{
		ID:               s.newID(),
		AmountMinorUnits: minor,
		Currency:         currency,
		Status:           model.LedgerStatusPending,
		BeneficiaryID:    req.BeneficiaryID,
		InitiatorID:      req.InitiatorID,
		Gateway:          gateway.Name(),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if description != "" {
		entry.Reference = &description
	}

	if err := s.store.Create(ctx, entry); err != nil {
		if !errors.Is(err, repository.ErrDuplicateKey) {
			apperrors.LogError(s.logger, err, "Failed to write pending ledger entry",
				zap.String("ledger_entry_id", entry.ID.String()))
			return nil, apperrors.Wrap(err, "failed to create ledger entry")
		}
		if entry, err = s.adoptPlaceholder(ctx, entry); err != nil {
			return nil, err
		}
	}

	logger := s.logger.With(
		zap.String("ledger_entry_id", entry.ID.String()),
		zap.String("gateway", gateway.Name()))

	callCtx, cancel := context.WithTimeout(ctx, s.config.GatewayTimeout)
	defer cancel()

	started := time.Now()
	resp, err := gateway.CreateIntent(callCtx, &provider.CreateIntentRequest{
		LedgerEntryID:    entry.ID.String(),
		AmountMinorUnits: entry.AmountMinorUnits,
		Currency:         entry.Currency,
		Description:      description,
		BeneficiaryID:    entry.BeneficiaryID,
		InitiatorID:      entry.InitiatorID,
		IdempotencyKey:   entry.ID.String(),
	})
	elapsed := time.Since(started)

	if err != nil {
		if isTimeout(err, callCtx) {
			s.recorder.GatewayCall(gateway.Name(), "timeout", elapsed)
			s.recorder.IntentCreated("gateway_timeout")
			logger.Warn("Gateway call timed out, leaving entry pending",
				zap.Duration("timeout", s.config.GatewayTimeout),
				zap.Error(err))
			return nil, &domainErrors.GatewayUnavailableError{
				Gateway:       gateway.Name(),
				LedgerEntryID: entry.ID.String(),
				Timeout:       true,
				Err:           err,
			}
		}

		s.recorder.GatewayCall(gateway.Name(), "error", elapsed)
		s.recorder.IntentCreated("gateway_unavailable")
		logger.Error("Gateway rejected payment intent", zap.Error(err))
		if markErr := s.markFailed(ctx, entry.ID, "gateway: "+gatewayMessage(err)); markErr != nil {
			logger.Error("Failed to record gateway failure on ledger entry", zap.Error(markErr))
		}
		return nil, &domainErrors.GatewayUnavailableError{
			Gateway:       gateway.Name(),
			LedgerEntryID: entry.ID.String(),
			Err:           err,
		}
	}
	s.recorder.GatewayCall(gateway.Name(), "ok", elapsed)

	if err := s.attachExternalID(ctx, entry.ID, resp.ExternalTransactionID); err != nil {
		// The webhook still correlates through the ledger id in the intent metadata.
		logger.Error("Failed to store external transaction id",
			zap.String("external_transaction_id", resp.ExternalTransactionID),
			zap.Error(err))
	}

	s.recorder.IntentCreated("created")
	logger.Info("Payment intent created",
		zap.String("external_transaction_id", resp.ExternalTransactionID),
		zap.Int64("amount_minor_units", entry.AmountMinorUnits),
		zap.String("currency", entry.Currency))

	return &CreateIntentResult{
		ClientSecret:     resp.ClientSecret,
		LedgerEntryID:    entry.ID,
		AmountMinorUnits: entry.AmountMinorUnits,
		Currency:         entry.Currency,
	}, nil
}

// validateRequest checks the request shape and resolves the charge currency.
func (s *PaymentIntentService) validateRequest(ctx context.Context, req *CreateIntentRequest) (string, error) {
	if req == nil {
		return "", domainErrors.NewValidationError("", "request body is required")
	}
	req.BeneficiaryID = strings.TrimSpace(req.BeneficiaryID)
	if err := s.validate.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return "", domainErrors.NewValidationError(fieldName(fe.Field()), "failed %s validation", fe.Tag())
		}
		return "", domainErrors.NewValidationError("", "%s", err.Error())
	}
	if !req.Amount.IsPositive() {
		return "", domainErrors.NewValidationError("amount", "must be greater than zero")
	}

	academyCurrency, err := s.settings.Currency(ctx)
	if err != nil {
		return "", apperrors.Wrap(err, "failed to read academy currency")
	}
	if req.Currency == "" {
		return money.NormalizeCurrency(academyCurrency)
	}

	currency, err := money.NormalizeCurrency(req.Currency)
	if err != nil {
		return "", err
	}
	if strings.EqualFold(currency, academyCurrency) {
		return currency, nil
	}
	for _, supported := range s.config.SupportedCurrencies {
		if strings.EqualFold(currency, supported) {
			return currency, nil
		}
	}
	return "", domainErrors.NewValidationError("currency", "%s is not supported", currency)
}

// adoptPlaceholder reconciles into an entry a webhook created under the same
// ledger id. Status is never reset; missing request fields are filled in.
// The amount is only taken from the request while the entry is pending.
func (s *PaymentIntentService) adoptPlaceholder(ctx context.Context, fresh *model.LedgerEntry) (*model.LedgerEntry, error) {
	var adopted *model.LedgerEntry
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx repository.LedgerTx) error {
		existing, err := tx.GetForUpdate(ctx, fresh.ID)
		if err != nil {
			return err
		}

		mismatch := existing.AmountMinorUnits != fresh.AmountMinorUnits || existing.Currency != fresh.Currency
		switch {
		case existing.Status == model.LedgerStatusPending && existing.AmountMinorUnits == 0:
			existing.AmountMinorUnits = fresh.AmountMinorUnits
			existing.Currency = fresh.Currency
		case mismatch:
			s.logger.Warn("Placeholder amount differs from request, keeping placeholder amount",
				zap.String("ledger_entry_id", existing.ID.String()),
				zap.String("status", string(existing.Status)),
				zap.Int64("placeholder_amount", existing.AmountMinorUnits),
				zap.String("placeholder_currency", existing.Currency),
				zap.Int64("request_amount", fresh.AmountMinorUnits),
				zap.String("request_currency", fresh.Currency))
		}
		if existing.BeneficiaryID == "" {
			existing.BeneficiaryID = fresh.BeneficiaryID
		}
		if existing.InitiatorID == "" {
			existing.InitiatorID = fresh.InitiatorID
		}
		if existing.Reference == nil {
			existing.Reference = fresh.Reference
		}
		if existing.Gateway == "" {
			existing.Gateway = fresh.Gateway
		}
		existing.Placeholder = false

		if err := tx.Save(ctx, existing); err != nil {
			return err
		}
		adopted = existing
		return nil
	})
	if err != nil {
		return nil, apperrors.Wrap(err, fmt.Sprintf("failed to reconcile placeholder entry %s", fresh.ID))
	}

	s.logger.Info("Reconciled intent into webhook placeholder",
		zap.String("ledger_entry_id", adopted.ID.String()),
		zap.String("status", string(adopted.Status)))
	return adopted, nil
}

// markFailed records a gateway-side rejection. An entry a webhook already
// moved on is left alone.
func (s *PaymentIntentService) markFailed(ctx context.Context, id uuid.UUID, reason string) error {
	return s.store.RunInTx(ctx, func(ctx context.Context, tx repository.LedgerTx) error {
		entry, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		changed, err := entry.Transition(model.LedgerStatusFailed, reason, s.now().UTC())
		if err != nil || !changed {
			return err
		}
		return tx.Save(ctx, entry)
	})
}

// attachExternalID stores the gateway's id without touching status.
func (s *PaymentIntentService) attachExternalID(ctx context.Context, id uuid.UUID, externalID string) error {
	if externalID == "" {
		return nil
	}
	return s.store.RunInTx(ctx, func(ctx context.Context, tx repository.LedgerTx) error {
		entry, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		switch current := entry.ExternalID(); {
		case current == externalID:
			return nil
		case current != "":
			s.logger.Error("Ledger entry already bound to a different gateway transaction",
				zap.String("ledger_entry_id", id.String()),
				zap.String("current", current),
				zap.String("received", externalID))
			return nil
		}
		entry.ExternalTransactionID = &externalID
		return tx.Save(ctx, entry)
	})
}

func isTimeout(err error, callCtx context.Context) bool {
	return errors.Is(err, provider.ErrTimeout) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(callCtx.Err(), context.DeadlineExceeded)
}

func gatewayMessage(err error) string {
	var gwErr *provider.GatewayError
	if errors.As(err, &gwErr) && gwErr.Message != "" {
		return gwErr.Message
	}
	return err.Error()
}

// fieldName maps struct field names to their JSON spelling.
func fieldName(field string) string {
	switch field {
	case "BeneficiaryID":
		return "beneficiaryId"
	case "InitiatorID":
		return "initiatorId"
	default:
		return strings.ToLower(field[:1]) + field[1:]
	}
}
