package config

type ServiceConfig struct {
	Name                string `mapstructure:"name"`
	Environment         string `mapstructure:"environment"`
	Version             string `mapstructure:"version"`
	StripeSecretKey     string `mapstructure:"stripe_secret_key"`
	StripeWebhookSecret string `mapstructure:"stripe_webhook_secret"`
	// StripeAPIURL overrides the Stripe API base URL (stripe-mock in local setups).
	StripeAPIURL string `mapstructure:"stripe_api_url"`
}
