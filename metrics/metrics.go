// Package metrics exposes the pipeline's Prometheus collectors: per-topic
// consume/send counters, the dropped-message counter, commit and retry
// counters, and a per-worker state gauge, served over an optional HTTP
// listener.
package metrics

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/variable-kang/0.9to0.10MirrorMaker/types"
)

const namespace = "mirrormaker"

// Metrics holds every collector the pipeline emits. All increment helpers are
// nil-receiver safe, so call sites never guard on whether metrics were set up.
type Metrics struct {
	Registry *prometheus.Registry

	recordsConsumed *prometheus.CounterVec
	recordsSent     *prometheus.CounterVec
	recordsDropped  prometheus.Counter
	sendRetries     prometheus.Counter
	commits         prometheus.Counter
	commitFailures  prometheus.Counter
	workerState     *prometheus.GaugeVec
	flushDuration   prometheus.Histogram
}

// New builds a Metrics instance backed by its own registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		Registry: registry,
		recordsConsumed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_consumed_total",
			Help:      "Records pulled from the source cluster",
		}, []string{"topic"}),
		recordsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_sent_total",
			Help:      "Records acknowledged by the destination cluster",
		}, []string{"topic"}),
		recordsDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_messages_total",
			Help:      "Records whose destination send permanently failed",
		}),
		sendRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_retries_total",
			Help:      "Produce attempts repeated after a retriable failure",
		}),
		commits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "offset_commits_total",
			Help:      "Successful source offset commits",
		}),
		commitFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "offset_commit_failures_total",
			Help:      "Source offset commits that failed",
		}),
		workerState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "worker_state",
			Help:      "Lifecycle state per worker: 0 initializing, 1 polling, 2 draining, 3 stopped",
		}, []string{"worker"}),
		flushDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "flush_duration_seconds",
			Help:      "Time spent waiting for in-flight sends to resolve",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
	}
}

var (
	defaultMu      sync.Mutex
	defaultMetrics *Metrics
)

// Init sets up the process-wide instance. Safe to call more than once; the
// first call wins.
func Init() *Metrics {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultMetrics == nil {
		defaultMetrics = New()
	}
	return defaultMetrics
}

func (m *Metrics) IncConsumed(topic string) {
	if m == nil {
		return
	}
	m.recordsConsumed.WithLabelValues(topic).Inc()
}

func (m *Metrics) IncSent(topic string) {
	if m == nil {
		return
	}
	m.recordsSent.WithLabelValues(topic).Inc()
}

func (m *Metrics) IncDropped() {
	if m == nil {
		return
	}
	m.recordsDropped.Inc()
}

func (m *Metrics) IncSendRetry() {
	if m == nil {
		return
	}
	m.sendRetries.Inc()
}

func (m *Metrics) IncCommit() {
	if m == nil {
		return
	}
	m.commits.Inc()
}

func (m *Metrics) IncCommitFailure() {
	if m == nil {
		return
	}
	m.commitFailures.Inc()
}

func (m *Metrics) SetWorkerState(worker string, state types.PipelineState) {
	if m == nil {
		return
	}
	m.workerState.WithLabelValues(worker).Set(float64(state))
}

// ObserveFlush records a flush duration. Use with defer:
// defer m.ObserveFlush(time.Now())
func (m *Metrics) ObserveFlush(start time.Time) {
	if m == nil {
		return
	}
	m.flushDuration.Observe(time.Since(start).Seconds())
}

// StartServer serves the registry on /metrics plus a trivial /health probe.
// Blocks until the listener fails, so run it on its own goroutine.
func (m *Metrics) StartServer(port int) error {
	if m == nil {
		return fmt.Errorf("metrics not initialized")
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return http.ListenAndServe(fmt.Sprintf(":%d", port), mux)
}
