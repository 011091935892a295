package usecase

import (
	"time"

	"github.com/wekeepgrowing/academy-payments/internal/domain/provider"
)

// Recorder receives business metrics from the payment flow.
type Recorder interface {
	IntentCreated(result string)
	GatewayCall(gateway, result string, d time.Duration)
	WebhookHandled(eventType, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) IntentCreated(string)                      {}
func (nopRecorder) GatewayCall(string, string, time.Duration) {}
func (nopRecorder) WebhookHandled(string, string)             {}

// GatewayResolver returns the gateway for a settings selection.
type GatewayResolver interface {
	Resolve(selection provider.GatewayType) (provider.Gateway, error)
}
