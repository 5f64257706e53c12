package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	cmap "github.com/orcaman/concurrent-map"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
)

// WrapSourcePartition encodes the provenance of a replicated record: which
// topic partition on which cluster it came from.
func WrapSourcePartition(tp TopicPartition, sourceClusterAlias string) map[string]interface{} {
	return map[string]interface{}{
		"topic":     tp.Topic,
		"partition": tp.Partition,
		"cluster":   sourceClusterAlias,
	}
}

// WrapSourceOffset encodes a source offset for the offset store.
func WrapSourceOffset(offset int64) map[string]interface{} {
	return map[string]interface{}{"offset": offset}
}

// UnwrapSourcePartition is the inverse of WrapSourcePartition.
func UnwrapSourcePartition(wrapped map[string]interface{}) (TopicPartition, string) {
	topic, _ := wrapped["topic"].(string)
	cluster, _ := wrapped["cluster"].(string)
	return TopicPartition{Topic: topic, Partition: int32(asInt64(wrapped["partition"]))}, cluster
}

// UnwrapSourceOffset is the inverse of WrapSourceOffset. A nil wrapper means
// the coordinates were never synced and maps to -1, never to zero.
func UnwrapSourceOffset(wrapped map[string]interface{}) int64 {
	if wrapped == nil {
		return -1
	}
	return asInt64(wrapped["offset"])
}

// asInt64 normalizes the numeric types a wrapper value can carry. In-memory
// wrappers hold int32/int64, wrappers that round-tripped through JSON hold
// float64.
func asInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return -1
	}
}

// OffsetStore persists the last durably replicated source offset per source
// partition in a compacted single-partition topic on the target cluster.
// Commits are fire-and-forget: losing one only widens the resume replay
// window, it never corrupts state.
type OffsetStore struct {
	logger      *zap.Logger
	topic       string
	producer    *kgo.Client
	newConsumer func(opts ...kgo.Opt) (*kgo.Client, error)

	offsets cmap.ConcurrentMap
}

func NewOffsetStore(logger *zap.Logger, topic string, producer *kgo.Client,
	newConsumer func(opts ...kgo.Opt) (*kgo.Client, error)) *OffsetStore {
	return &OffsetStore{
		logger:      logger,
		topic:       topic,
		producer:    producer,
		newConsumer: newConsumer,
		offsets:     cmap.New(),
	}
}

// Load replays the offsets topic from the beginning until the read position
// catches up with the end offsets, or the timeout elapses. A timeout is not
// an error; whatever was read so far is kept and missing entries simply
// resolve to -1 (replicate from the start).
func (s *OffsetStore) Load(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	consumer, err := s.newConsumer(
		kgo.ClientID("kmirror-offset-load-"+uuid.NewString()),
		kgo.ConsumePartitions(map[string]map[int32]kgo.Offset{
			s.topic: {0: kgo.NewOffset().AtStart()},
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to create offset store consumer: %w", err)
	}
	defer consumer.Close()

	adm := kadm.NewClient(consumer)
	positions := map[int32]int64{0: 0}
	loaded := 0

	for time.Now().Before(deadline) {
		endOffsets, err := listEndOffsets(ctx, adm, s.topic)
		if err != nil {
			return fmt.Errorf("failed to list offsets topic end offsets: %w", err)
		}
		if caughtUp(positions, endOffsets) {
			break
		}

		pollCtx, cancel := context.WithDeadline(ctx, deadline)
		fetches := consumer.PollFetches(pollCtx)
		cancel()
		if err := ctx.Err(); err != nil {
			return err
		}

		for _, fetchErr := range fetches.Errors() {
			if errors.Is(fetchErr.Err, context.DeadlineExceeded) || errors.Is(fetchErr.Err, context.Canceled) {
				continue
			}
			s.logger.Warn("failed to fetch records from offsets topic",
				zap.String("topic", fetchErr.Topic),
				zap.Int32("partition", fetchErr.Partition),
				zap.Error(fetchErr.Err))
		}

		iter := fetches.RecordIter()
		for !iter.Done() {
			rec := iter.Next()
			positions[rec.Partition] = rec.Offset + 1
			if rec.Value == nil {
				// Tombstone
				s.offsets.Remove(string(rec.Key))
				continue
			}
			var wrapped map[string]interface{}
			if err := json.Unmarshal(rec.Value, &wrapped); err != nil {
				s.logger.Warn("skipping malformed offset store record",
					zap.Int64("offset", rec.Offset), zap.Error(err))
				continue
			}
			s.offsets.Set(string(rec.Key), UnwrapSourceOffset(wrapped))
			loaded++
		}
	}

	s.logger.Info("loaded offset store", zap.Int("records", loaded), zap.String("topic", s.topic))
	return nil
}

// Commit records that everything up to and including the given source offset
// has been durably replicated. The write to the offsets topic is asynchronous.
func (s *OffsetStore) Commit(sourcePartition, sourceOffset map[string]interface{}) {
	key, err := json.Marshal(sourcePartition)
	if err != nil {
		s.logger.Error("failed to serialize source partition", zap.Error(err))
		return
	}
	value, err := json.Marshal(sourceOffset)
	if err != nil {
		s.logger.Error("failed to serialize source offset", zap.Error(err))
		return
	}

	s.offsets.Set(string(key), UnwrapSourceOffset(sourceOffset))

	rec := &kgo.Record{Topic: s.topic, Partition: 0, Key: key, Value: value}
	s.producer.Produce(context.Background(), rec, func(_ *kgo.Record, err error) {
		if err != nil {
			s.logger.Warn("failed to persist source offset", zap.Error(err))
		}
	})
}

// LastOffset returns the last committed source offset for the given source
// partition, or -1 when the partition was never synced.
func (s *OffsetStore) LastOffset(sourcePartition map[string]interface{}) int64 {
	key, err := json.Marshal(sourcePartition)
	if err != nil {
		return -1
	}
	val, exists := s.offsets.Get(string(key))
	if !exists {
		return -1
	}
	return val.(int64)
}
