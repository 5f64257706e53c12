package mirror

import (
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Heartbeat is the periodic liveness record emitted for one replication flow.
// Heartbeat topics replicate onward like any other topic, which is what makes
// multi-hop topologies discoverable.
type Heartbeat struct {
	SourceClusterAlias string
	TargetClusterAlias string
	Timestamp          int64 // epoch millis
}

type heartbeatKey struct {
	SourceClusterAlias string `json:"sourceClusterAlias"`
	TargetClusterAlias string `json:"targetClusterAlias"`
}

type heartbeatValue struct {
	Timestamp int64 `json:"timestamp"`
}

// Record serializes the heartbeat for the given topic. Heartbeats are a
// low-volume side channel and always go to partition 0.
func (h Heartbeat) Record(topic string) (*kgo.Record, error) {
	key, err := json.Marshal(heartbeatKey{
		SourceClusterAlias: h.SourceClusterAlias,
		TargetClusterAlias: h.TargetClusterAlias,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to serialize heartbeat key: %w", err)
	}
	value, err := json.Marshal(heartbeatValue{Timestamp: h.Timestamp})
	if err != nil {
		return nil, fmt.Errorf("failed to serialize heartbeat value: %w", err)
	}

	return &kgo.Record{
		Topic:     topic,
		Partition: 0,
		Key:       key,
		Value:     value,
	}, nil
}

// DecodeHeartbeat parses a heartbeat record.
func DecodeHeartbeat(rec *kgo.Record) (Heartbeat, error) {
	var key heartbeatKey
	if err := json.Unmarshal(rec.Key, &key); err != nil {
		return Heartbeat{}, fmt.Errorf("failed to decode heartbeat key: %w", err)
	}
	var value heartbeatValue
	if err := json.Unmarshal(rec.Value, &value); err != nil {
		return Heartbeat{}, fmt.Errorf("failed to decode heartbeat value: %w", err)
	}

	return Heartbeat{
		SourceClusterAlias: key.SourceClusterAlias,
		TargetClusterAlias: key.TargetClusterAlias,
		Timestamp:          value.Timestamp,
	}, nil
}
