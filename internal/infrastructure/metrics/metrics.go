package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the payment service's Prometheus collectors
type Metrics struct {
	intentsTotal      *prometheus.CounterVec
	gatewayLatency    *prometheus.HistogramVec
	webhookEvents     *prometheus.CounterVec
	notificationsSent *prometheus.CounterVec
	httpRequests      *prometheus.CounterVec
	httpLatency       *prometheus.HistogramVec
}

// New registers the collectors on reg
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		intentsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "payment_intents_total",
			Help: "Payment intent creations by result",
		}, []string{"result"}),
		gatewayLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "payment_gateway_request_duration_seconds",
			Help:    "Latency of outbound gateway calls",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"gateway", "result"}),
		webhookEvents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "payment_webhook_events_total",
			Help: "Webhook events by type and outcome",
		}, []string{"event_type", "outcome"}),
		notificationsSent: f.NewCounterVec(prometheus.CounterOpts{
			Name: "payment_notifications_total",
			Help: "Outcome notifications by result",
		}, []string{"result"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "payment_http_requests_total",
			Help: "HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
		httpLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "payment_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

func (m *Metrics) IntentCreated(result string) {
	m.intentsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) GatewayCall(gateway, result string, d time.Duration) {
	m.gatewayLatency.WithLabelValues(gateway, result).Observe(d.Seconds())
}

func (m *Metrics) WebhookHandled(eventType, outcome string) {
	m.webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

func (m *Metrics) NotificationSent(result string) {
	m.notificationsSent.WithLabelValues(result).Inc()
}

func (m *Metrics) HTTPRequest(method, route, status string, d time.Duration) {
	m.httpRequests.WithLabelValues(method, route, status).Inc()
	m.httpLatency.WithLabelValues(method, route).Observe(d.Seconds())
}
