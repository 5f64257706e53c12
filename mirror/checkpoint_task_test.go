package mirror

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestCheckpointTask(t *testing.T) *CheckpointTask {
	t.Helper()

	cfg := testMirrorConfig()
	policy, err := NewReplicationPolicy(cfg.ReplicationPolicy)
	require.NoError(t, err)
	registry := NewMetricsRegistry("test", prometheus.NewRegistry())
	metrics := registry.For(SourceAndTarget{Source: cfg.SourceClusterAlias, Target: cfg.TargetClusterAlias})

	task, err := NewCheckpointTask(cfg, zap.NewNop(), nil, policy, metrics, NewOffsetSyncStore())
	require.NoError(t, err)
	require.NoError(t, task.Start(context.Background()))
	return task
}

func TestCheckpointTaskTargetsRenamedTopic(t *testing.T) {
	task := newTestCheckpointTask(t)
	defer task.Stop()

	// Checkpoints land on the target cluster under the source-prefixed name.
	assert.Equal(t, "us-east.checkpoints", task.checkpointsTopic)
}

func TestCheckpointTaskStopWinsOverTick(t *testing.T) {
	task := newTestCheckpointTask(t)
	task.Stop()

	records, err := task.Poll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)

	task.Stop()
}

func TestCheckpointTaskPollHonorsContext(t *testing.T) {
	task := newTestCheckpointTask(t)
	defer task.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := task.Poll(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
