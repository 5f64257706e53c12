package mirror

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// SourceTask consumes the replicated topics on the source cluster and turns
// every fetched record into a renamed copy for the target cluster. It also
// drives the offset sync store so the checkpoint task can translate consumer
// group offsets.
type SourceTask struct {
	cfg             Config
	logger          *zap.Logger
	sourceAndTarget SourceAndTarget
	policy          ReplicationPolicy
	metrics         *Metrics

	client *kgo.Client
	adm    *kadm.Client

	syncStore   *OffsetSyncStore
	offsetStore *OffsetStore
	topicFilter *filter

	// heartbeatsTopic in its unprefixed form, compared against the original
	// topic of every fetched record to measure replication lag.
	heartbeatsTopic string

	mu               sync.Mutex
	partitionStates  map[TopicPartition]*partitionState
	assigned         map[TopicPartition]bool
	lastTopicRefresh time.Time

	stopped *atomic.Bool
}

func NewSourceTask(
	cfg Config,
	logger *zap.Logger,
	sourceClient *kgo.Client,
	policy ReplicationPolicy,
	metrics *Metrics,
	syncStore *OffsetSyncStore,
	offsetStore *OffsetStore,
) (*SourceTask, error) {
	topicFilter, err := newFilter(cfg.Topics)
	if err != nil {
		return nil, fmt.Errorf("failed to compile topic filter: %w", err)
	}

	return &SourceTask{
		cfg:             cfg,
		logger:          logger,
		sourceAndTarget: SourceAndTarget{Source: cfg.SourceClusterAlias, Target: cfg.TargetClusterAlias},
		policy:          policy,
		metrics:         metrics,
		client:          sourceClient,
		adm:             kadm.NewClient(sourceClient),
		syncStore:       syncStore,
		offsetStore:     offsetStore,
		topicFilter:     topicFilter,
		heartbeatsTopic: cfg.HeartbeatsTopic,
		partitionStates: make(map[TopicPartition]*partitionState),
		assigned:        make(map[TopicPartition]bool),
		stopped:         atomic.NewBool(false),
	}, nil
}

func (t *SourceTask) Start(ctx context.Context) error {
	if err := t.refreshTopicAssignments(ctx); err != nil {
		return fmt.Errorf("failed to assign source partitions: %w", err)
	}
	return nil
}

// refreshTopicAssignments lists the source topic catalog and adds every
// eligible partition that is not consumed yet, resuming at the last offset
// the offset store knows to be durably replicated. Partitions are never
// removed; a topic deleted on the source simply stops yielding records.
func (t *SourceTask) refreshTopicAssignments(ctx context.Context) error {
	topicDetails, err := t.adm.ListTopics(ctx)
	if err != nil {
		return fmt.Errorf("failed to list topics: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	assignments := make(map[string]map[int32]kgo.Offset)
	for _, detail := range topicDetails {
		if detail.Err != nil || !t.shouldReplicate(detail.Topic) {
			continue
		}
		for partition := range detail.Partitions {
			tp := TopicPartition{Topic: detail.Topic, Partition: partition}
			if t.assigned[tp] {
				continue
			}

			offset := kgo.NewOffset().AtStart()
			if lastOffset := t.offsetStore.LastOffset(WrapSourcePartition(tp, t.sourceAndTarget.Source)); lastOffset >= 0 {
				offset = kgo.NewOffset().At(lastOffset + 1)
			}

			if assignments[tp.Topic] == nil {
				assignments[tp.Topic] = make(map[int32]kgo.Offset)
			}
			assignments[tp.Topic][tp.Partition] = offset
			t.assigned[tp] = true
		}
	}
	t.lastTopicRefresh = time.Now()

	if len(assignments) == 0 {
		return nil
	}

	t.client.AddConsumePartitions(assignments)
	for topic, partitions := range assignments {
		t.logger.Info("consuming source topic",
			zap.String("topic", topic),
			zap.Int("partitions", len(partitions)))
	}
	return nil
}

// shouldReplicate decides whether a source topic takes part in this flow.
// Topics the target cluster already replicated back to the source are skipped,
// otherwise two opposing flows would bounce records forever. Checkpoint topics
// never travel further than one hop, and the offset store is internal.
func (t *SourceTask) shouldReplicate(topic string) bool {
	if t.policy.TopicSource(topic) == t.sourceAndTarget.Target {
		return false
	}
	if t.policy.OriginalTopic(topic) == t.cfg.CheckpointsTopic {
		return false
	}
	if topic == t.cfg.OffsetsTopic {
		return false
	}
	return t.topicFilter.IsAllowed(topic)
}

func (t *SourceTask) Poll(ctx context.Context) ([]SourceRecord, error) {
	if t.stopped.Load() {
		return nil, nil
	}

	t.mu.Lock()
	refreshDue := time.Since(t.lastTopicRefresh) > t.cfg.TopicRefreshInterval
	t.mu.Unlock()
	if refreshDue {
		if err := t.refreshTopicAssignments(ctx); err != nil {
			t.logger.Warn("failed to refresh topic assignments", zap.Error(err))
		}
	}

	fetches := t.client.PollFetches(ctx)
	if fetches.IsClientClosed() {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, fetchErr := range fetches.Errors() {
		if errors.Is(fetchErr.Err, context.Canceled) {
			continue
		}
		t.logger.Warn("failed to fetch records from source cluster",
			zap.String("topic", fetchErr.Topic),
			zap.Int32("partition", fetchErr.Partition),
			zap.Error(fetchErr.Err))
	}

	var records []SourceRecord
	now := time.Now()
	iter := fetches.RecordIter()
	for !iter.Done() {
		rec := iter.Next()
		t.metrics.RecordAge(now.Sub(rec.Timestamp).Milliseconds())
		if t.policy.OriginalTopic(rec.Topic) == t.heartbeatsTopic {
			t.metrics.ReplicationLag(now.Sub(rec.Timestamp).Milliseconds())
		}
		records = append(records, t.convertRecord(rec))
	}
	return records, nil
}

// convertRecord renames the record for the target cluster and preserves
// everything else: key, value, headers, partition and the original timestamp.
func (t *SourceTask) convertRecord(rec *kgo.Record) SourceRecord {
	tp := TopicPartition{Topic: rec.Topic, Partition: rec.Partition}
	return SourceRecord{
		Record: &kgo.Record{
			Topic:     t.policy.FormatRemoteTopic(t.sourceAndTarget.Source, rec.Topic),
			Partition: rec.Partition,
			Key:       rec.Key,
			Value:     rec.Value,
			Headers:   rec.Headers,
			Timestamp: rec.Timestamp,
		},
		SourcePartition: WrapSourcePartition(tp, t.sourceAndTarget.Source),
		SourceOffset:    WrapSourceOffset(rec.Offset),
	}
}

// Acknowledge is invoked by the produce promise for every replicated record.
// On success it feeds the upstream/downstream offset pair into the per
// partition sync state; a failed produce yields no pair, so no sync state
// advances for it.
func (t *SourceTask) Acknowledge(rec SourceRecord, produced *kgo.Record, err error) {
	tp, _ := UnwrapSourcePartition(rec.SourcePartition)
	if err != nil {
		t.logger.Warn("failed to replicate record",
			zap.String("topic", tp.Topic),
			zap.Int32("partition", tp.Partition),
			zap.Error(err))
		return
	}

	t.metrics.CountRecord()

	upstreamOffset := UnwrapSourceOffset(rec.SourceOffset)
	downstreamOffset := produced.Offset

	t.mu.Lock()
	state, exists := t.partitionStates[tp]
	if !exists {
		state = newPartitionState(t.cfg.MaxOffsetLag)
		t.partitionStates[tp] = state
	}
	shouldSync := state.Update(upstreamOffset, downstreamOffset)
	t.mu.Unlock()

	if shouldSync {
		t.syncStore.Record(tp, upstreamOffset, downstreamOffset)
	}
}

func (t *SourceTask) Stop() {
	t.stopped.Store(true)
}
