package http

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	domainErrors "github.com/wekeepgrowing/academy-payments/internal/domain/errors"
	"github.com/wekeepgrowing/academy-payments/internal/middleware/auth"
	"github.com/wekeepgrowing/academy-payments/internal/usecase"
)

// IntentCreator creates payment intents
type IntentCreator interface {
	CreateIntent(ctx context.Context, req *usecase.CreateIntentRequest) (*usecase.CreateIntentResult, error)
}

type PaymentHandler struct {
	intents IntentCreator
	logger  *zap.Logger
}

func NewPaymentHandler(intents IntentCreator, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		intents: intents,
		logger:  logger,
	}
}

type createIntentRequest struct {
	Amount        *decimal.Decimal `json:"amount"`
	Currency      string           `json:"currency"`
	BeneficiaryID string           `json:"beneficiaryId"`
	Description   string           `json:"description"`
}

type createIntentResponse struct {
	ClientSecret     string `json:"clientSecret"`
	LedgerEntryID    string `json:"ledgerEntryId"`
	AmountMinorUnits int64  `json:"amountMinorUnits"`
	Currency         string `json:"currency"`
}

// CreateIntent handles POST /api/v1/payments/intents
func (h *PaymentHandler) CreateIntent(c echo.Context) error {
	// Get authenticated user from JWT
	user, err := auth.RequireAuth(c)
	if err != nil {
		return err // RequireAuth already returns the JSON error response
	}

	var body createIntentRequest
	if err := c.Bind(&body); err != nil {
		return domainErrors.NewValidationError("", "malformed request body")
	}
	if body.Amount == nil {
		return domainErrors.NewValidationError("amount", "is required")
	}

	result, err := h.intents.CreateIntent(c.Request().Context(), &usecase.CreateIntentRequest{
		InitiatorID:   user.UserID,
		BeneficiaryID: body.BeneficiaryID,
		Amount:        *body.Amount,
		Currency:      body.Currency,
		Description:   body.Description,
	})
	if err != nil {
		return err
	}

	h.logger.Debug("Payment intent issued",
		zap.String("user_id", user.UserID),
		zap.String("ledger_entry_id", result.LedgerEntryID.String()))

	return c.JSON(http.StatusOK, createIntentResponse{
		ClientSecret:     result.ClientSecret,
		LedgerEntryID:    result.LedgerEntryID.String(),
		AmountMinorUnits: result.AmountMinorUnits,
		Currency:         result.Currency,
	})
}
