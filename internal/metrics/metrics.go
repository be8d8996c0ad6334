package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"laundry-queue-backend/internal/apperr"
	"laundry-queue-backend/internal/model"
)

// Metrics collects Prometheus counters for laundryd. A nil *Metrics is a valid no-op.
type Metrics struct {
	registry               *prometheus.Registry
	queueOperationsTotal   *prometheus.CounterVec
	queuePurgedTotal       prometheus.Counter
	turnNotificationsTotal *prometheus.CounterVec
	issueTransitionsTotal  *prometheus.CounterVec
	machineStatusTotal     *prometheus.CounterVec
	pushDeliveriesTotal    *prometheus.CounterVec
	feedCyclesTotal        *prometheus.CounterVec
}

// New constructs a metrics registry and registers all collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	queueOperationsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "laundry",
			Subsystem: "queue",
			Name:      "operations_total",
			Help:      "Queue operations by kind and outcome.",
		},
		[]string{"op", "result"},
	)
	queuePurgedTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "laundry",
			Subsystem: "queue",
			Name:      "purged_entries_total",
			Help:      "Queue entries removed by cascade purges.",
		},
	)
	turnNotificationsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "laundry",
			Subsystem: "queue",
			Name:      "turn_notifications_total",
			Help:      "Head-of-line notifications by outcome.",
		},
		[]string{"result"},
	)
	issueTransitionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "laundry",
			Subsystem: "issue",
			Name:      "transitions_total",
			Help:      "Issue report status changes.",
		},
		[]string{"to"},
	)
	machineStatusTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "laundry",
			Subsystem: "machine",
			Name:      "status_changes_total",
			Help:      "Operation status changes applied to machines.",
		},
		[]string{"status"},
	)
	pushDeliveriesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "laundry",
			Subsystem: "push",
			Name:      "deliveries_total",
			Help:      "Web push delivery attempts by outcome.",
		},
		[]string{"result"},
	)
	feedCyclesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "laundry",
			Subsystem: "feed",
			Name:      "cycles_total",
			Help:      "Upstream occupancy feed cycles by outcome.",
		},
		[]string{"result"},
	)

	registry.MustRegister(
		queueOperationsTotal,
		queuePurgedTotal,
		turnNotificationsTotal,
		issueTransitionsTotal,
		machineStatusTotal,
		pushDeliveriesTotal,
		feedCyclesTotal,
	)

	return &Metrics{
		registry:               registry,
		queueOperationsTotal:   queueOperationsTotal,
		queuePurgedTotal:       queuePurgedTotal,
		turnNotificationsTotal: turnNotificationsTotal,
		issueTransitionsTotal:  issueTransitionsTotal,
		machineStatusTotal:     machineStatusTotal,
		pushDeliveriesTotal:    pushDeliveriesTotal,
		feedCyclesTotal:        feedCyclesTotal,
	}
}

// Handler returns an HTTP handler that serves the metrics registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// IncQueueOp records a queue operation; the result label is the error kind or "ok".
func (m *Metrics) IncQueueOp(op string, err error) {
	if m == nil {
		return
	}
	m.queueOperationsTotal.WithLabelValues(op, resultLabel(err)).Inc()
}

func (m *Metrics) AddPurged(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.queuePurgedTotal.Add(float64(n))
}

func (m *Metrics) IncTurnNotification(result string) {
	if m == nil {
		return
	}
	m.turnNotificationsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) IncIssueTransition(to model.IssueStatus) {
	if m == nil {
		return
	}
	m.issueTransitionsTotal.WithLabelValues(string(to)).Inc()
}

func (m *Metrics) IncMachineStatus(status model.OperationStatus) {
	if m == nil {
		return
	}
	m.machineStatusTotal.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) IncPushDelivery(result string) {
	if m == nil {
		return
	}
	m.pushDeliveriesTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) IncFeedCycle(err error) {
	if m == nil {
		return
	}
	m.feedCyclesTotal.WithLabelValues(resultLabel(err)).Inc()
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return string(apperr.KindOf(err))
}
