// Package telemetry exposes Prometheus counters for the analytics core.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the instrument set shared by the bus, sink, and alerting engine.
// All record methods are nil-safe so components can run uninstrumented.
type Metrics struct {
	eventsPublished  *prometheus.CounterVec
	publishFailures  prometheus.Counter
	listenerFailures prometheus.Counter
	flushBatches     *prometheus.CounterVec
	flushFailures    *prometheus.CounterVec
	rowsWritten      *prometheus.CounterVec
	rulesEvaluated   prometheus.Counter
	rulesTriggered   prometheus.Counter
	deliveries       *prometheus.CounterVec
}

// NewMetrics creates and registers the instrument set on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "analytics_events_published_total",
			Help: "Events accepted by the event bus, by category.",
		}, []string{"category"}),
		publishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "analytics_publish_failures_total",
			Help: "Publish calls that failed after exhausting broker retries.",
		}),
		listenerFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "analytics_listener_failures_total",
			Help: "Listener callbacks that returned an error or panicked.",
		}),
		flushBatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "analytics_sink_flush_batches_total",
			Help: "Successful warehouse batch writes, by table.",
		}, []string{"table"}),
		flushFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "analytics_sink_flush_failures_total",
			Help: "Failed warehouse batch writes, by table.",
		}, []string{"table"}),
		rowsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "analytics_sink_rows_written_total",
			Help: "Event rows durably written to the warehouse, by table.",
		}, []string{"table"}),
		rulesEvaluated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alerting_rules_evaluated_total",
			Help: "Alert rule evaluations performed.",
		}),
		rulesTriggered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alerting_rules_triggered_total",
			Help: "Alert rule evaluations that crossed their threshold.",
		}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alerting_deliveries_total",
			Help: "Notification delivery attempts, by channel and status.",
		}, []string{"channel", "status"}),
	}

	reg.MustRegister(
		m.eventsPublished, m.publishFailures, m.listenerFailures,
		m.flushBatches, m.flushFailures, m.rowsWritten,
		m.rulesEvaluated, m.rulesTriggered, m.deliveries,
	)
	return m
}

func (m *Metrics) EventPublished(category string) {
	if m == nil {
		return
	}
	m.eventsPublished.WithLabelValues(category).Inc()
}

func (m *Metrics) PublishFailed() {
	if m == nil {
		return
	}
	m.publishFailures.Inc()
}

func (m *Metrics) ListenerFailed() {
	if m == nil {
		return
	}
	m.listenerFailures.Inc()
}

func (m *Metrics) FlushSucceeded(table string, rows int) {
	if m == nil {
		return
	}
	m.flushBatches.WithLabelValues(table).Inc()
	m.rowsWritten.WithLabelValues(table).Add(float64(rows))
}

func (m *Metrics) FlushFailed(table string) {
	if m == nil {
		return
	}
	m.flushFailures.WithLabelValues(table).Inc()
}

func (m *Metrics) RuleEvaluated() {
	if m == nil {
		return
	}
	m.rulesEvaluated.Inc()
}

func (m *Metrics) RuleTriggered() {
	if m == nil {
		return
	}
	m.rulesTriggered.Inc()
}

func (m *Metrics) DeliveryRecorded(channel, status string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(channel, status).Inc()
}
