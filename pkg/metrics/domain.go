package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// Low-stock event outcomes.
const (
	StockEventIgnored    = "ignored"
	StockEventSuppressed = "suppressed"
	StockEventRecorded   = "recorded"
	StockEventDegraded   = "degraded"
)

// DomainMetrics counts order, return and low-stock activity.
type DomainMetrics struct {
	ordersCreated     *prometheus.CounterVec
	ordersRejected    *prometheus.CounterVec
	orderTransitions  *prometheus.CounterVec
	returnTransitions *prometheus.CounterVec
	stockEvents       *prometheus.CounterVec
	webhookFailures   prometheus.Counter
}

// NewDomainMetrics registers the storefront counters on reg. A nil registerer
// yields a no-op recorder.
func NewDomainMetrics(reg prometheus.Registerer) *DomainMetrics {
	if reg == nil {
		return &DomainMetrics{}
	}
	m := &DomainMetrics{
		ordersCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "created_total",
			Help:      "Orders created, by currency.",
		}, []string{"currency"}),
		ordersRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "rejected_total",
			Help:      "Checkout attempts rejected, by error code.",
		}, []string{"code"}),
		orderTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "transitions_total",
			Help:      "Order status changes, by resulting status.",
		}, []string{"status"}),
		returnTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "returns",
			Name:      "transitions_total",
			Help:      "Return status changes, by resulting status.",
		}, []string{"status"}),
		stockEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "low_stock",
			Name:      "events_total",
			Help:      "Stock observations, by outcome.",
		}, []string{"outcome"}),
		webhookFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "low_stock",
			Name:      "webhook_failures_total",
			Help:      "Low-stock webhook deliveries that failed or were short-circuited.",
		}),
	}
	reg.MustRegister(m.ordersCreated, m.ordersRejected, m.orderTransitions, m.returnTransitions, m.stockEvents, m.webhookFailures)
	return m
}

func (m *DomainMetrics) OrderCreated(currency string) {
	if m == nil || m.ordersCreated == nil {
		return
	}
	m.ordersCreated.WithLabelValues(normalizeLabel(currency)).Inc()
}

func (m *DomainMetrics) OrderRejected(code string) {
	if m == nil || m.ordersRejected == nil {
		return
	}
	m.ordersRejected.WithLabelValues(normalizeLabel(code)).Inc()
}

func (m *DomainMetrics) OrderTransition(status string) {
	if m == nil || m.orderTransitions == nil {
		return
	}
	m.orderTransitions.WithLabelValues(normalizeLabel(status)).Inc()
}

func (m *DomainMetrics) ReturnTransition(status string) {
	if m == nil || m.returnTransitions == nil {
		return
	}
	m.returnTransitions.WithLabelValues(normalizeLabel(status)).Inc()
}

func (m *DomainMetrics) StockEvent(outcome string) {
	if m == nil || m.stockEvents == nil {
		return
	}
	m.stockEvents.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *DomainMetrics) WebhookFailure() {
	if m == nil || m.webhookFailures == nil {
		return
	}
	m.webhookFailures.Inc()
}

// normalizeLabel lowercases a label value; blanks become "unknown".
func normalizeLabel(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return "unknown"
	}
	return value
}
