// Package metrics exposes Prometheus collectors for the engine, RPC layer and jobs.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var histogramBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5}

type Metrics struct {
	rpcTotal       *prometheus.CounterVec
	rpcLatency     *prometheus.HistogramVec
	operations     *prometheus.CounterVec
	moneyMoved     *prometheus.CounterVec
	cyclesOpened   prometheus.Counter
	jobRuns        *prometheus.CounterVec
	rateLimitHits  *prometheus.CounterVec
	auditFailures  prometheus.Counter
	notifyFailures prometheus.Counter
}

// New creates the collectors and registers them with reg. Collectors that are already
// registered are reused, so New may be called more than once against the same registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		rpcTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "susu",
			Subsystem: "rpc",
			Name:      "requests_total",
			Help:      "Count of handled RPCs",
		}, []string{"procedure", "code"}),
		rpcLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "susu",
			Subsystem: "rpc",
			Name:      "request_duration_seconds",
			Help:      "Latency distribution of RPC handlers",
			Buckets:   histogramBuckets,
		}, []string{"procedure"}),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "susu",
			Subsystem: "engine",
			Name:      "operations_total",
			Help:      "Engine operations by outcome; outcome is ok or the error kind",
		}, []string{"operation", "outcome"}),
		moneyMoved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "susu",
			Subsystem: "engine",
			Name:      "money_moved_total",
			Help:      "Sum of amounts sent to the wallet ledger",
		}, []string{"direction"}),
		cyclesOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "susu",
			Subsystem: "engine",
			Name:      "cycles_opened_total",
			Help:      "Number of contribution cycles opened",
		}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "susu",
			Subsystem: "scheduler",
			Name:      "job_runs_total",
			Help:      "Background job runs by outcome",
		}, []string{"job", "outcome"}),
		rateLimitHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "susu",
			Subsystem: "rpc",
			Name:      "rate_limit_hits_total",
			Help:      "Number of rate-limited requests",
		}, []string{"procedure"}),
		auditFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "susu",
			Subsystem: "engine",
			Name:      "audit_failures_total",
			Help:      "Audit entries that could not be written",
		}),
		notifyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "susu",
			Subsystem: "engine",
			Name:      "notify_failures_total",
			Help:      "Notification batches that could not be delivered",
		}),
	}

	m.rpcTotal = register(reg, m.rpcTotal)
	m.rpcLatency = register(reg, m.rpcLatency)
	m.operations = register(reg, m.operations)
	m.moneyMoved = register(reg, m.moneyMoved)
	m.cyclesOpened = register(reg, m.cyclesOpened)
	m.jobRuns = register(reg, m.jobRuns)
	m.rateLimitHits = register(reg, m.rateLimitHits)
	m.auditFailures = register(reg, m.auditFailures)
	m.notifyFailures = register(reg, m.notifyFailures)
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}

func (m *Metrics) RPC(procedure, code string, d time.Duration) {
	if m == nil {
		return
	}
	m.rpcTotal.WithLabelValues(procedure, code).Inc()
	m.rpcLatency.WithLabelValues(procedure).Observe(d.Seconds())
}

// Operation counts one engine call; outcome is "ok" or an error kind.
func (m *Metrics) Operation(name, outcome string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(name, outcome).Inc()
}

// Credited adds to the total credited into group pools.
func (m *Metrics) Credited(amount float64) {
	if m == nil {
		return
	}
	m.moneyMoved.WithLabelValues("credit").Add(amount)
}

// Disbursed adds to the total paid out to members.
func (m *Metrics) Disbursed(amount float64) {
	if m == nil {
		return
	}
	m.moneyMoved.WithLabelValues("disburse").Add(amount)
}

func (m *Metrics) CycleOpened() {
	if m == nil {
		return
	}
	m.cyclesOpened.Inc()
}

func (m *Metrics) JobRun(job string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.jobRuns.WithLabelValues(job, outcome).Inc()
}

func (m *Metrics) RateLimited(procedure string) {
	if m == nil {
		return
	}
	m.rateLimitHits.WithLabelValues(procedure).Inc()
}

func (m *Metrics) AuditFailed() {
	if m == nil {
		return
	}
	m.auditFailures.Inc()
}

func (m *Metrics) NotifyFailed() {
	if m == nil {
		return
	}
	m.notifyFailures.Inc()
}
