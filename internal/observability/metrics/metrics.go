package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes application-level instruments.
type Metrics struct {
	webhookEvents *prometheus.CounterVec
	payments      *prometheus.CounterVec
	payouts       *prometheus.CounterVec
}

// New registers escrow domain counters on the given registerer.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "escrow_webhook_events_total",
			Help: "Inbound gateway webhook events by type and outcome.",
		}, []string{"event_type", "result"}),
		payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "escrow_payments_total",
			Help: "Escrow transactions by funding source and outcome.",
		}, []string{"funding", "result"}),
		payouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "escrow_payouts_total",
			Help: "Payout transitions by resulting status.",
		}, []string{"status"}),
	}

	for _, c := range []prometheus.Collector{m.webhookEvents, m.payments, m.payouts} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RecordWebhookEvent counts an inbound webhook event outcome.
// result is one of: processed, duplicate, failed, signature_rejected,
// invalid_payload.
func (m *Metrics) RecordWebhookEvent(eventType, result string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(normalize(eventType), normalize(result)).Inc()
}

// RecordPayment counts an escrow funding outcome.
func (m *Metrics) RecordPayment(funding, result string) {
	if m == nil {
		return
	}
	m.payments.WithLabelValues(normalize(funding), normalize(result)).Inc()
}

// RecordPayoutStatus counts a payout status transition.
func (m *Metrics) RecordPayoutStatus(status string) {
	if m == nil {
		return
	}
	m.payouts.WithLabelValues(normalize(status)).Inc()
}

func normalize(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return "unknown"
	}
	return v
}
