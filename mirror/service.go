package mirror

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cloudhut/kmirror/kafka"
)

// Service owns one replication flow from a source to a target cluster. It
// wires the tasks to the two clusters and runs each task's poll/produce loop
// on its own goroutine.
type Service struct {
	cfg    Config
	logger *zap.Logger

	sourceAndTarget SourceAndTarget
	policy          ReplicationPolicy

	sourceSvc *kafka.Service
	targetSvc *kafka.Service

	syncStore   *OffsetSyncStore
	offsetStore *OffsetStore
	client      *Client
	tasks       []Task
}

func NewService(cfg Config, logger *zap.Logger, sourceSvc, targetSvc *kafka.Service, registry *MetricsRegistry) (*Service, error) {
	policy, err := NewReplicationPolicy(cfg.ReplicationPolicy)
	if err != nil {
		return nil, err
	}

	st := SourceAndTarget{Source: cfg.SourceClusterAlias, Target: cfg.TargetClusterAlias}
	metrics := registry.For(st)
	syncStore := NewOffsetSyncStore()
	offsetStore := NewOffsetStore(logger.Named("offset_store"), cfg.OffsetsTopic, targetSvc.Client, targetSvc.CreateClient)

	sourceTask, err := NewSourceTask(cfg, logger.Named("source_task"), sourceSvc.Client, policy, metrics, syncStore, offsetStore)
	if err != nil {
		return nil, fmt.Errorf("failed to create source task: %w", err)
	}

	tasks := []Task{sourceTask}
	if cfg.EmitHeartbeats.Enabled {
		tasks = append(tasks, NewHeartbeatTask(cfg, logger.Named("heartbeat_task"), metrics))
	}
	if cfg.EmitCheckpoints.Enabled {
		checkpointTask, err := NewCheckpointTask(cfg, logger.Named("checkpoint_task"), sourceSvc.Client, policy, metrics, syncStore)
		if err != nil {
			return nil, fmt.Errorf("failed to create checkpoint task: %w", err)
		}
		tasks = append(tasks, checkpointTask)
	}

	return &Service{
		cfg:             cfg,
		logger:          logger,
		sourceAndTarget: st,
		policy:          policy,
		sourceSvc:       sourceSvc,
		targetSvc:       targetSvc,
		syncStore:       syncStore,
		offsetStore:     offsetStore,
		client:          NewClient(logger.Named("client"), policy, cfg.HeartbeatsTopic, cfg.CheckpointsTopic, targetSvc),
		tasks:           tasks,
	}, nil
}

// Client returns the topology client for the target cluster of this flow.
func (s *Service) Client() *Client {
	return s.client
}

// Start validates connectivity to both clusters, restores the replication
// positions from the offset store, and then runs all tasks until the context
// is cancelled or a task fails to start.
func (s *Service) Start(ctx context.Context) error {
	if err := s.sourceSvc.TestConnection(ctx); err != nil {
		return fmt.Errorf("failed to test source cluster connection: %w", err)
	}
	if err := s.targetSvc.TestConnection(ctx); err != nil {
		return fmt.Errorf("failed to test target cluster connection: %w", err)
	}

	if err := s.offsetStore.Load(ctx, s.cfg.OffsetLoadTimeout); err != nil {
		return fmt.Errorf("failed to load offset store: %w", err)
	}

	s.logger.Info("starting replication flow",
		zap.String("source", s.sourceAndTarget.Source),
		zap.String("target", s.sourceAndTarget.Target),
		zap.Int("tasks", len(s.tasks)))

	g, ctx := errgroup.WithContext(ctx)
	for _, task := range s.tasks {
		task := task
		g.Go(func() error {
			return s.runTask(ctx, task)
		})
	}
	return g.Wait()
}

// runTask drives one task's poll loop. Poll errors other than cancellation
// are treated as transient and retried after a short pause; the task stays
// alive as long as the flow does.
func (s *Service) runTask(ctx context.Context, task Task) error {
	if err := task.Start(ctx); err != nil {
		return fmt.Errorf("failed to start task: %w", err)
	}
	defer task.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		records, err := task.Poll(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			s.logger.Error("task poll failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		for _, rec := range records {
			rec := rec
			s.targetSvc.Client.Produce(ctx, rec.Record, func(produced *kgo.Record, err error) {
				task.Acknowledge(rec, produced, err)
				if err == nil && rec.SourcePartition != nil {
					s.offsetStore.Commit(rec.SourcePartition, rec.SourceOffset)
				}
			})
		}
	}
}
