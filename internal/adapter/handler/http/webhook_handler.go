package http

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	domainErrors "github.com/wekeepgrowing/academy-payments/internal/domain/errors"
	"github.com/wekeepgrowing/academy-payments/internal/usecase"
)

const signatureHeader = "Stripe-Signature"

// EventHandler applies webhook deliveries to the ledger
type EventHandler interface {
	HandleEvent(ctx context.Context, payload []byte, signatureHeader string) (*usecase.Ack, error)
}

type WebhookHandler struct {
	events       EventHandler
	maxBodyBytes int64
	logger       *zap.Logger
}

func NewWebhookHandler(events EventHandler, maxBodyBytes int64, logger *zap.Logger) *WebhookHandler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = 64 << 10
	}
	return &WebhookHandler{
		events:       events,
		maxBodyBytes: maxBodyBytes,
		logger:       logger,
	}
}

type webhookResponse struct {
	Received  bool   `json:"received"`
	Duplicate bool   `json:"duplicate"`
	Outcome   string `json:"outcome,omitempty"`
}

// HandleWebhook handles POST /webhook. Signature failures are 400; any other
// failure is a 500 so the gateway redelivers.
func (h *WebhookHandler) HandleWebhook(c echo.Context) error {
	body, err := io.ReadAll(http.MaxBytesReader(c.Response(), c.Request().Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.logger.Warn("Webhook body too large", zap.Int64("limit", tooLarge.Limit))
			return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "request body too large")
		}
		h.logger.Error("Error reading request body", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "error reading request body")
	}

	ack, err := h.events.HandleEvent(c.Request().Context(), body, c.Request().Header.Get(signatureHeader))
	if err != nil {
		if errors.Is(err, domainErrors.ErrInvalidSignature) {
			return domainErrors.ErrInvalidSignature
		}
		return err
	}

	return c.JSON(http.StatusOK, webhookResponse{
		Received:  true,
		Duplicate: ack.Duplicate,
		Outcome:   string(ack.Outcome),
	})
}
