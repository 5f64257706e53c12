package mirror

import (
	"context"

	"github.com/twmb/franz-go/pkg/kgo"
)

// SourceRecord pairs a record destined for the target cluster with the source
// coordinates it was derived from. The coordinates are what the offset store
// persists, so a restarted flow can resume exactly where it left off.
type SourceRecord struct {
	Record *kgo.Record

	// SourcePartition is {topic, partition, cluster}.
	SourcePartition map[string]interface{}
	// SourceOffset is {offset}.
	SourceOffset map[string]interface{}
}

// Task is the cooperative polling contract driven by the mirror service. Each
// task runs on its own goroutine: the service calls Poll in a loop, produces
// every returned record to the target cluster, and invokes Acknowledge once
// the sink reports the outcome of that produce.
//
// Poll must return promptly once its context is cancelled. Acknowledge may be
// called concurrently with Poll and after Stop, because sink acknowledgments
// complete asynchronously.
type Task interface {
	Start(ctx context.Context) error
	Poll(ctx context.Context) ([]SourceRecord, error)
	Acknowledge(rec SourceRecord, produced *kgo.Record, err error)
	Stop()
}
