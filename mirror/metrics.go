package mirror

import (
	cmap "github.com/orcaman/concurrent-map"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsRegistry owns the prometheus collectors shared by every replication
// flow in the process. Per-flow handles are created lazily on first use and
// reused afterwards; concurrent first use for the same flow is resolved
// idempotently.
type MetricsRegistry struct {
	recordCount     *prometheus.CounterVec
	recordAge       *prometheus.GaugeVec
	heartbeatCount  *prometheus.CounterVec
	checkpointCount *prometheus.CounterVec
	replicationLag  *prometheus.GaugeVec

	byFlow cmap.ConcurrentMap
}

func NewMetricsRegistry(metricsNamespace string, registerer prometheus.Registerer) *MetricsRegistry {
	factory := promauto.With(registerer)
	labels := []string{"source", "target"}

	return &MetricsRegistry{
		recordCount: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "records_replicated_total",
			Help:      "Number of source records replicated to the target cluster.",
		}, labels),
		recordAge: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "record_age_ms",
			Help:      "Age of the most recent source record seen by the replication task.",
		}, labels),
		heartbeatCount: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "heartbeats_emitted_total",
			Help:      "Number of heartbeats sent from source to target cluster.",
		}, labels),
		checkpointCount: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "checkpoints_emitted_total",
			Help:      "Number of consumer group checkpoints sent to the target cluster.",
		}, labels),
		replicationLag: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "replication_lag_ms",
			Help:      "Time it takes heartbeats to get replicated from source to target cluster.",
		}, labels),
		byFlow: cmap.New(),
	}
}

// For returns the metrics handle for one replication flow. The first caller
// for a flow constructs it, all later callers get the same handle back.
func (r *MetricsRegistry) For(st SourceAndTarget) *Metrics {
	res := r.byFlow.Upsert(st.String(), nil, func(exists bool, valueInMap, _ interface{}) interface{} {
		if exists {
			return valueInMap
		}
		return &Metrics{
			recordCount:     r.recordCount.WithLabelValues(st.Source, st.Target),
			recordAge:       r.recordAge.WithLabelValues(st.Source, st.Target),
			heartbeatCount:  r.heartbeatCount.WithLabelValues(st.Source, st.Target),
			checkpointCount: r.checkpointCount.WithLabelValues(st.Source, st.Target),
			replicationLag:  r.replicationLag.WithLabelValues(st.Source, st.Target),
		}
	})
	return res.(*Metrics)
}

// Metrics is the per-flow view into the registry.
type Metrics struct {
	recordCount     prometheus.Counter
	recordAge       prometheus.Gauge
	heartbeatCount  prometheus.Counter
	checkpointCount prometheus.Counter
	replicationLag  prometheus.Gauge
}

func (m *Metrics) CountRecord()                { m.recordCount.Inc() }
func (m *Metrics) RecordAge(ageMillis int64)   { m.recordAge.Set(float64(ageMillis)) }
func (m *Metrics) CountHeartbeat()             { m.heartbeatCount.Inc() }
func (m *Metrics) CountCheckpoint()            { m.checkpointCount.Inc() }
func (m *Metrics) ReplicationLag(millis int64) { m.replicationLag.Set(float64(millis)) }
