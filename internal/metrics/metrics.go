package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "stakescope"

// Metrics holds the Prometheus collectors of the indexer.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	RPCCalls            *prometheus.CounterVec
	RPCRetries          *prometheus.CounterVec
	Batches             *prometheus.CounterVec
	EventsIndexed       *prometheus.CounterVec
	LastIndexedBlock    *prometheus.GaugeVec
	PassInFlight        *prometheus.GaugeVec
	ViewRefreshes       *prometheus.CounterVec
	ViewRefreshDuration prometheus.Histogram
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RPCCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "calls_total",
			Help:      "Node calls by method and outcome",
		}, []string{"method", "outcome"}),
		RPCRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "retries_total",
			Help:      "Retried node calls by method and error classification",
		}, []string{"method", "kind"}),
		Batches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "batches_total",
			Help:      "Indexed block batches by stream and outcome",
		}, []string{"stream", "outcome"}),
		EventsIndexed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "events_total",
			Help:      "Newly stored event rows by stream",
		}, []string{"stream"}),
		LastIndexedBlock: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "last_indexed_block",
			Help:      "Persisted cursor by stream",
		}, []string{"stream"}),
		PassInFlight: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "pass_in_flight",
			Help:      "1 while an indexing pass is running for the stream",
		}, []string{"stream"}),
		ViewRefreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analytics",
			Name:      "refreshes_total",
			Help:      "Deposit summary rebuilds by outcome",
		}, []string{"outcome"}),
		ViewRefreshDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "analytics",
			Name:      "refresh_duration_seconds",
			Help:      "Deposit summary rebuild latency",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (m *Metrics) ObserveRPC(method string, err error) {
	if m == nil {
		return
	}
	m.RPCCalls.WithLabelValues(method, outcome(err)).Inc()
}

func (m *Metrics) ObserveRetry(method, kind string) {
	if m == nil {
		return
	}
	m.RPCRetries.WithLabelValues(method, kind).Inc()
}

func (m *Metrics) ObserveBatch(stream string, events int, err error) {
	if m == nil {
		return
	}
	m.Batches.WithLabelValues(stream, outcome(err)).Inc()
	if events > 0 {
		m.EventsIndexed.WithLabelValues(stream).Add(float64(events))
	}
}

func (m *Metrics) SetCursor(stream string, block uint64) {
	if m == nil {
		return
	}
	m.LastIndexedBlock.WithLabelValues(stream).Set(float64(block))
}

func (m *Metrics) SetInFlight(stream string, running bool) {
	if m == nil {
		return
	}
	v := 0.0
	if running {
		v = 1
	}
	m.PassInFlight.WithLabelValues(stream).Set(v)
}

func (m *Metrics) ObserveRefresh(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.ViewRefreshes.WithLabelValues(outcome(err)).Inc()
	m.ViewRefreshDuration.Observe(d.Seconds())
}
