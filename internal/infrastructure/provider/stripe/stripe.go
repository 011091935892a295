package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"
	"go.uber.org/zap"

	domainErrors "github.com/wekeepgrowing/academy-payments/internal/domain/errors"
	"github.com/wekeepgrowing/academy-payments/internal/domain/provider"
)

const gatewayName = string(provider.GatewayTypeStripe)

// Config configures the Stripe gateway
type Config struct {
	SecretKey     string
	WebhookSecret string
	// APIURL overrides the API base URL. Empty means api.stripe.com.
	APIURL            string
	MaxNetworkRetries int64
	HTTPClient        *http.Client
}

// Gateway implements provider.Gateway on top of stripe-go
type Gateway struct {
	api           *client.API
	webhookSecret string
	logger        *zap.Logger
}

var _ provider.Gateway = (*Gateway)(nil)

// NewGateway creates a Stripe gateway with its own API client
func NewGateway(cfg Config, logger *zap.Logger) *Gateway {
	backendConfig := &stripe.BackendConfig{
		LeveledLogger:     logger.Named("stripe").Sugar(),
		MaxNetworkRetries: stripe.Int64(cfg.MaxNetworkRetries),
		HTTPClient:        cfg.HTTPClient,
	}
	if cfg.APIURL != "" {
		backendConfig.URL = stripe.String(cfg.APIURL)
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, backendConfig)

	api := &client.API{}
	api.Init(cfg.SecretKey, &stripe.Backends{
		API:     backend,
		Connect: backend,
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, backendConfig),
	})

	return &Gateway{
		api:           api,
		webhookSecret: cfg.WebhookSecret,
		logger:        logger,
	}
}

// Name returns the gateway name
func (g *Gateway) Name() string {
	return gatewayName
}

// CreateIntent creates a PaymentIntent keyed by the ledger entry id
func (g *Gateway) CreateIntent(ctx context.Context, req *provider.CreateIntentRequest) (*provider.CreateIntentResponse, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.AmountMinorUnits),
		Currency: stripe.String(strings.ToLower(req.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)
	params.AddMetadata(provider.MetadataLedgerEntryID, req.LedgerEntryID)
	params.AddMetadata(provider.MetadataBeneficiaryID, req.BeneficiaryID)
	if req.InitiatorID != "" {
		params.AddMetadata(provider.MetadataInitiatorID, req.InitiatorID)
	}
	if req.Description != "" {
		params.AddMetadata(provider.MetadataDescription, req.Description)
	}

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return nil, g.translateError(ctx, err)
	}

	g.logger.Debug("Stripe payment intent created",
		zap.String("payment_intent_id", pi.ID),
		zap.String("ledger_entry_id", req.LedgerEntryID),
		zap.String("status", string(pi.Status)))

	return &provider.CreateIntentResponse{
		ExternalTransactionID: pi.ID,
		ClientSecret:          pi.ClientSecret,
	}, nil
}

// VerifyAndParseEvent checks the Stripe-Signature header and maps the event
func (g *Gateway) VerifyAndParseEvent(payload []byte, signatureHeader string) (*provider.Event, error) {
	if g.webhookSecret == "" {
		return nil, fmt.Errorf("%w: webhook secret not configured", domainErrors.ErrInvalidSignature)
	}

	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, g.webhookSecret,
		webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domainErrors.ErrInvalidSignature, err)
	}

	out := &provider.Event{
		ID:        event.ID,
		Type:      string(event.Type),
		Kind:      provider.EventKindIgnored,
		CreatedAt: time.Unix(event.Created, 0).UTC(),
	}

	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		pi, err := decodePaymentIntent(event.Data.Raw)
		if err != nil {
			return nil, err
		}
		fillFromPaymentIntent(out, pi)
		out.Kind = provider.EventKindIntentSucceeded

	case stripe.EventTypePaymentIntentPaymentFailed, stripe.EventTypePaymentIntentCanceled:
		pi, err := decodePaymentIntent(event.Data.Raw)
		if err != nil {
			return nil, err
		}
		fillFromPaymentIntent(out, pi)
		out.Kind = provider.EventKindIntentFailed
		switch {
		case pi.LastPaymentError != nil && pi.LastPaymentError.Msg != "":
			out.FailureReason = pi.LastPaymentError.Msg
		case event.Type == stripe.EventTypePaymentIntentCanceled:
			out.FailureReason = "payment canceled"
			if pi.CancellationReason != "" {
				out.FailureReason += ": " + string(pi.CancellationReason)
			}
		}

	case stripe.EventTypeChargeRefunded:
		var charge stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
			return nil, fmt.Errorf("%w: failed to decode charge: %w", domainErrors.ErrMalformedEvent, err)
		}
		// Partial refunds leave the payment succeeded.
		if !charge.Refunded {
			g.logger.Info("Ignoring partial refund",
				zap.String("event_id", event.ID),
				zap.String("charge_id", charge.ID),
				zap.Int64("amount_refunded", charge.AmountRefunded))
			break
		}
		out.Kind = provider.EventKindRefundCompleted
		out.CorrelationID = charge.Metadata[provider.MetadataLedgerEntryID]
		out.AmountMinorUnits = charge.Amount
		out.Currency = strings.ToUpper(string(charge.Currency))
		if charge.PaymentIntent != nil {
			out.ExternalTransactionID = charge.PaymentIntent.ID
		}
	}

	return out, nil
}

func decodePaymentIntent(raw json.RawMessage) (*stripe.PaymentIntent, error) {
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(raw, &pi); err != nil {
		return nil, fmt.Errorf("%w: failed to decode payment intent: %w", domainErrors.ErrMalformedEvent, err)
	}
	return &pi, nil
}

func fillFromPaymentIntent(out *provider.Event, pi *stripe.PaymentIntent) {
	out.ExternalTransactionID = pi.ID
	out.AmountMinorUnits = pi.Amount
	out.Currency = strings.ToUpper(string(pi.Currency))
	out.CorrelationID = pi.Metadata[provider.MetadataLedgerEntryID]
	out.BeneficiaryID = pi.Metadata[provider.MetadataBeneficiaryID]
	out.InitiatorID = pi.Metadata[provider.MetadataInitiatorID]
	out.Description = pi.Description
	if out.Description == "" {
		out.Description = pi.Metadata[provider.MetadataDescription]
	}
}

// translateError separates deadline failures from gateway rejections.
func (g *Gateway) translateError(ctx context.Context, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(ctx.Err(), context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %v", provider.ErrTimeout, err)
	}

	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		msg := stripeErr.Msg
		if msg == "" {
			msg = string(stripeErr.Type)
		}
		return &provider.GatewayError{
			Gateway:    gatewayName,
			Code:       string(stripeErr.Code),
			Message:    msg,
			HTTPStatus: stripeErr.HTTPStatusCode,
		}
	}

	return &provider.GatewayError{Gateway: gatewayName, Message: err.Error()}
}
