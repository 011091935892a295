package provider

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/wekeepgrowing/academy-payments/internal/config"
	"github.com/wekeepgrowing/academy-payments/internal/domain/provider"
	stripeProvider "github.com/wekeepgrowing/academy-payments/internal/infrastructure/provider/stripe"
)

// Factory resolves the configured payment gateway for a settings selection
type Factory struct {
	gateways map[provider.GatewayType]provider.Gateway
	logger   *zap.Logger
}

// NewFactory creates a new provider factory. Gateways whose credentials are
// missing are left out and resolve as unavailable.
func NewFactory(cfg *config.Config, logger *zap.Logger) *Factory {
	f := &Factory{
		gateways: make(map[provider.GatewayType]provider.Gateway),
		logger:   logger,
	}

	if cfg.Service.StripeSecretKey != "" {
		f.gateways[provider.GatewayTypeStripe] = stripeProvider.NewGateway(stripeProvider.Config{
			SecretKey:     cfg.Service.StripeSecretKey,
			WebhookSecret: cfg.Service.StripeWebhookSecret,
			APIURL:        cfg.Service.StripeAPIURL,
		}, logger)
	} else {
		logger.Warn("Stripe secret key not configured, intent creation disabled")
	}

	return f
}

// NewFactoryWithGateways creates a factory over prebuilt gateways
func NewFactoryWithGateways(logger *zap.Logger, gateways ...provider.Gateway) *Factory {
	f := &Factory{
		gateways: make(map[provider.GatewayType]provider.Gateway, len(gateways)),
		logger:   logger,
	}
	for _, g := range gateways {
		f.gateways[provider.GatewayType(g.Name())] = g
	}
	return f
}

// Resolve returns the gateway for selection
func (f *Factory) Resolve(selection provider.GatewayType) (provider.Gateway, error) {
	switch selection {
	case provider.GatewayTypeNone, "":
		return nil, fmt.Errorf("no payment gateway selected")
	case provider.GatewayTypeStripe, provider.GatewayTypeRazorpay:
		g, ok := f.gateways[selection]
		if !ok {
			return nil, fmt.Errorf("%s gateway not configured", selection)
		}
		return g, nil
	default:
		return nil, fmt.Errorf("unsupported gateway type: %s", selection)
	}
}

// Gateway returns a configured gateway by type, used to verify webhooks
// independently of the current selection.
func (f *Factory) Gateway(gatewayType provider.GatewayType) (provider.Gateway, bool) {
	g, ok := f.gateways[gatewayType]
	return g, ok
}
