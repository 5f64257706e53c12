package mirror

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRegistryForIsIdempotent(t *testing.T) {
	registry := NewMetricsRegistry("test", prometheus.NewRegistry())

	st := SourceAndTarget{Source: "us-east", Target: "us-west"}
	m1 := registry.For(st)
	m2 := registry.For(st)
	assert.Same(t, m1, m2)

	other := registry.For(SourceAndTarget{Source: "us-west", Target: "us-east"})
	assert.NotSame(t, m1, other)
}

func TestMetricsHandleUpdates(t *testing.T) {
	promRegistry := prometheus.NewRegistry()
	registry := NewMetricsRegistry("test", promRegistry)
	metrics := registry.For(SourceAndTarget{Source: "us-east", Target: "us-west"})

	metrics.CountRecord()
	metrics.CountRecord()
	metrics.CountHeartbeat()
	metrics.CountCheckpoint()
	metrics.RecordAge(1500)
	metrics.ReplicationLag(250)

	families, err := promRegistry.Gather()
	assert.NoError(t, err)

	values := make(map[string]float64)
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			if metric.GetCounter() != nil {
				values[family.GetName()] = metric.GetCounter().GetValue()
			}
			if metric.GetGauge() != nil {
				values[family.GetName()] = metric.GetGauge().GetValue()
			}
		}
	}

	assert.Equal(t, float64(2), values["test_records_replicated_total"])
	assert.Equal(t, float64(1), values["test_heartbeats_emitted_total"])
	assert.Equal(t, float64(1), values["test_checkpoints_emitted_total"])
	assert.Equal(t, float64(1500), values["test_record_age_ms"])
	assert.Equal(t, float64(250), values["test_replication_lag_ms"])
}
