package mirror

import (
	"context"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
)

// HeartbeatTask emits one heartbeat record per interval into the heartbeats
// topic on the target cluster. Downstream flows replicate that topic onward,
// so the presence of "<alias>.heartbeats" style topics reveals the whole
// replication topology.
type HeartbeatTask struct {
	logger          *zap.Logger
	sourceAndTarget SourceAndTarget
	metrics         *Metrics
	topic           string
	interval        time.Duration

	stopped  chan struct{}
	stopOnce sync.Once
}

func NewHeartbeatTask(cfg Config, logger *zap.Logger, metrics *Metrics) *HeartbeatTask {
	return &HeartbeatTask{
		logger:          logger,
		sourceAndTarget: SourceAndTarget{Source: cfg.SourceClusterAlias, Target: cfg.TargetClusterAlias},
		metrics:         metrics,
		topic:           cfg.HeartbeatsTopic,
		interval:        cfg.EmitHeartbeats.Interval,
	}
}

func (t *HeartbeatTask) Start(context.Context) error {
	t.stopped = make(chan struct{})
	return nil
}

// Poll waits out one interval and returns a single heartbeat. A stop that
// arrives during the wait wins over the tick: no further heartbeat is emitted
// once Stop was called.
func (t *HeartbeatTask) Poll(ctx context.Context) ([]SourceRecord, error) {
	timer := time.NewTimer(t.interval)
	defer timer.Stop()

	select {
	case <-t.stopped:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
	}

	heartbeat := Heartbeat{
		SourceClusterAlias: t.sourceAndTarget.Source,
		TargetClusterAlias: t.sourceAndTarget.Target,
		Timestamp:          time.Now().UnixMilli(),
	}
	rec, err := heartbeat.Record(t.topic)
	if err != nil {
		return nil, err
	}

	// No source coordinates: heartbeats originate here, there is nothing to
	// resume from.
	return []SourceRecord{{Record: rec}}, nil
}

func (t *HeartbeatTask) Acknowledge(_ SourceRecord, _ *kgo.Record, err error) {
	if err != nil {
		t.logger.Warn("failed to emit heartbeat", zap.Error(err))
		return
	}
	t.metrics.CountHeartbeat()
}

func (t *HeartbeatTask) Stop() {
	t.stopOnce.Do(func() { close(t.stopped) })
}
