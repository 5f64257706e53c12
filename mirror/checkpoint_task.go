package mirror

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
)

// CheckpointTask periodically snapshots the committed offsets of every
// eligible consumer group on the source cluster, translates them downstream
// via the offset sync store and emits them as checkpoint records to the
// target cluster. Consumers migrating to the target can resume from these.
type CheckpointTask struct {
	logger          *zap.Logger
	sourceAndTarget SourceAndTarget
	policy          ReplicationPolicy
	metrics         *Metrics
	adm             *kadm.Client
	syncStore       *OffsetSyncStore
	groupFilter     *filter
	interval        time.Duration

	// checkpointsTopic is the already renamed topic on the target cluster,
	// e.g. "us-east.checkpoints".
	checkpointsTopic string

	stopped  chan struct{}
	stopOnce sync.Once
}

func NewCheckpointTask(
	cfg Config,
	logger *zap.Logger,
	sourceClient *kgo.Client,
	policy ReplicationPolicy,
	metrics *Metrics,
	syncStore *OffsetSyncStore,
) (*CheckpointTask, error) {
	groupFilter, err := newFilter(cfg.ConsumerGroups)
	if err != nil {
		return nil, fmt.Errorf("failed to compile consumer group filter: %w", err)
	}

	return &CheckpointTask{
		logger:           logger,
		sourceAndTarget:  SourceAndTarget{Source: cfg.SourceClusterAlias, Target: cfg.TargetClusterAlias},
		policy:           policy,
		metrics:          metrics,
		adm:              kadm.NewClient(sourceClient),
		syncStore:        syncStore,
		groupFilter:      groupFilter,
		interval:         cfg.EmitCheckpoints.Interval,
		checkpointsTopic: policy.FormatRemoteTopic(cfg.SourceClusterAlias, cfg.CheckpointsTopic),
	}, nil
}

func (t *CheckpointTask) Start(context.Context) error {
	t.stopped = make(chan struct{})
	return nil
}

func (t *CheckpointTask) Poll(ctx context.Context) ([]SourceRecord, error) {
	timer := time.NewTimer(t.interval)
	defer timer.Stop()

	select {
	case <-t.stopped:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
	}

	listedGroups, err := t.adm.ListGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list consumer groups: %w", err)
	}

	var records []SourceRecord
	for _, group := range listedGroups.Groups() {
		if !t.groupFilter.IsAllowed(group) {
			continue
		}

		checkpoints, err := t.checkpointsForGroup(ctx, group)
		if err != nil {
			t.logger.Warn("failed to checkpoint consumer group",
				zap.String("consumer_group", group),
				zap.Error(err))
			continue
		}
		records = append(records, checkpoints...)
	}
	return records, nil
}

// checkpointsForGroup translates a group's committed offsets downstream. A
// partition whose committed offset predates the latest sync is skipped; it
// will be checkpointed once replication caught up far enough for the sync
// store to cover it.
func (t *CheckpointTask) checkpointsForGroup(ctx context.Context, group string) ([]SourceRecord, error) {
	offsets, err := t.adm.FetchOffsets(ctx, group)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch committed offsets: %w", err)
	}
	if err := offsets.Error(); err != nil {
		return nil, fmt.Errorf("failed to fetch committed offsets: %w", err)
	}

	var records []SourceRecord
	var iterErr error
	offsets.Each(func(resp kadm.OffsetResponse) {
		if iterErr != nil || resp.Err != nil || resp.At < 0 {
			return
		}

		upstreamTp := TopicPartition{Topic: resp.Topic, Partition: resp.Partition}
		downstreamOffset, ok := t.syncStore.TranslateDownstream(upstreamTp, resp.At)
		if !ok {
			return
		}

		checkpoint := Checkpoint{
			ConsumerGroupID: group,
			TopicPartition: TopicPartition{
				Topic:     t.policy.FormatRemoteTopic(t.sourceAndTarget.Source, resp.Topic),
				Partition: resp.Partition,
			},
			UpstreamOffset:   resp.At,
			DownstreamOffset: downstreamOffset,
			Metadata:         resp.Metadata,
		}
		rec, err := checkpoint.Record(t.checkpointsTopic)
		if err != nil {
			iterErr = err
			return
		}

		// No source coordinates: checkpoints are recomputed from scratch on
		// every tick, there is no position to resume.
		records = append(records, SourceRecord{Record: rec})
	})
	if iterErr != nil {
		return nil, iterErr
	}
	return records, nil
}

func (t *CheckpointTask) Acknowledge(_ SourceRecord, _ *kgo.Record, err error) {
	if err != nil {
		t.logger.Warn("failed to emit checkpoint", zap.Error(err))
		return
	}
	t.metrics.CountCheckpoint()
}

func (t *CheckpointTask) Stop() {
	t.stopOnce.Do(func() { close(t.stopped) })
}
