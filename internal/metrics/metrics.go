package metrics

import "github.com/prometheus/client_golang/prometheus"

// Prometheus metrics for monitoring the verification pipeline
var (
	OrdersIngestedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "verifly_orders_ingested_total",
			Help: "Total number of order webhooks ingested",
		},
	)

	VerificationsStartedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "verifly_verifications_started_total",
			Help: "Total number of verification sessions started",
		},
	)

	DecisionsReconciledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verifly_decisions_reconciled_total",
			Help: "Total number of provider decisions reconciled, by status",
		},
		[]string{"provider", "status"},
	)

	WebhookSignatureFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verifly_webhook_signature_failures_total",
			Help: "Total number of webhook deliveries rejected for bad signatures",
		},
		[]string{"provider"},
	)

	VerificationEmailsSentTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "verifly_verification_emails_sent_total",
			Help: "Total number of verification request emails sent",
		},
	)
)

// Register registers all Prometheus metrics
func Register() {
	prometheus.MustRegister(OrdersIngestedTotal)
	prometheus.MustRegister(VerificationsStartedTotal)
	prometheus.MustRegister(DecisionsReconciledTotal)
	prometheus.MustRegister(WebhookSignatureFailuresTotal)
	prometheus.MustRegister(VerificationEmailsSentTotal)
}
