// Package metrics owns the Prometheus collectors of the bot process.
//
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "raskhody"

var histogramBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5}

type Metrics struct {
	messages        *prometheus.CounterVec
	storeOps        *prometheus.CounterVec
	storeDuration   *prometheus.HistogramVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	workerQueueSize *prometheus.GaugeVec
	cacheLookups    *prometheus.CounterVec
}

// New registers the collectors on reg. Collectors already registered by an
// earlier call are reused.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bot",
			Name:      "messages_total",
			Help:      "Inbound messages by classified intent and outcome",
		}, []string{"intent", "outcome"}),

		storeOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Store operations by result",
		}, []string{"operation", "status"}),

		storeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Latency distribution of store operations",
			Buckets:   histogramBuckets,
		}, []string{"operation"}),

		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Count of processed HTTP requests",
		}, []string{"method", "route", "status"}),

		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency distribution of HTTP handlers",
			Buckets:   histogramBuckets,
		}, []string{"method", "route"}),

		workerQueueSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "queue_length",
			Help:      "Messages waiting per worker shard",
		}, []string{"shard"}),

		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "cache_lookups_total",
			Help:      "Closed-day read cache lookups by result",
		}, []string{"result"}),
	}

	var err error
	if m.messages, err = register(reg, m.messages); err != nil {
		return nil, err
	}
	if m.storeOps, err = register(reg, m.storeOps); err != nil {
		return nil, err
	}
	if m.storeDuration, err = register(reg, m.storeDuration); err != nil {
		return nil, err
	}
	if m.httpRequests, err = register(reg, m.httpRequests); err != nil {
		return nil, err
	}
	if m.httpDuration, err = register(reg, m.httpDuration); err != nil {
		return nil, err
	}
	if m.workerQueueSize, err = register(reg, m.workerQueueSize); err != nil {
		return nil, err
	}
	if m.cacheLookups, err = register(reg, m.cacheLookups); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// Message outcomes.
const (
	OutcomeOK          = "ok"
	OutcomeRejected    = "rejected"
	OutcomeStoreError  = "store_error"
	OutcomeSendFailure = "send_failure"
	OutcomePanic       = "panic"
)

func (m *Metrics) ObserveMessage(intent, outcome string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(intent, outcome).Inc()
}

func (m *Metrics) ObserveStore(operation string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.storeOps.WithLabelValues(operation, status).Inc()
	m.storeDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *Metrics) ObserveHTTP(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func (m *Metrics) SetQueueLength(shard, length int) {
	if m == nil {
		return
	}
	m.workerQueueSize.WithLabelValues(strconv.Itoa(shard)).Set(float64(length))
}

func (m *Metrics) ObserveCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}
