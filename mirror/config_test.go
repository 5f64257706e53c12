package mirror

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	cfg := testMirrorConfig()
	require.NoError(t, cfg.Validate())

	t.Run("missing source alias", func(t *testing.T) {
		cfg := testMirrorConfig()
		cfg.SourceClusterAlias = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("identical aliases", func(t *testing.T) {
		cfg := testMirrorConfig()
		cfg.TargetClusterAlias = cfg.SourceClusterAlias
		assert.Error(t, cfg.Validate())
	})

	t.Run("unknown replication policy", func(t *testing.T) {
		cfg := testMirrorConfig()
		cfg.ReplicationPolicy.Type = "madeup"
		assert.Error(t, cfg.Validate())
	})

	t.Run("invalid topic filter expression", func(t *testing.T) {
		cfg := testMirrorConfig()
		cfg.Topics.Allowed = []string{"/*invalid/"}
		assert.Error(t, cfg.Validate())
	})

	t.Run("enabled emit with zero interval", func(t *testing.T) {
		cfg := testMirrorConfig()
		cfg.EmitHeartbeats.Interval = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("disabled emit ignores interval", func(t *testing.T) {
		cfg := testMirrorConfig()
		cfg.EmitCheckpoints = EmitConfig{Enabled: false, Interval: 0}
		assert.NoError(t, cfg.Validate())
	})

	t.Run("negative max offset lag", func(t *testing.T) {
		cfg := testMirrorConfig()
		cfg.MaxOffsetLag = -1
		assert.Error(t, cfg.Validate())
	})
}

func TestConfigSetDefaults(t *testing.T) {
	var cfg Config
	cfg.SetDefaults()

	assert.Equal(t, ReplicationPolicyTypeDefault, cfg.ReplicationPolicy.Type)
	assert.Equal(t, ".", cfg.ReplicationPolicy.Separator)
	assert.Equal(t, "heartbeats", cfg.HeartbeatsTopic)
	assert.Equal(t, "checkpoints", cfg.CheckpointsTopic)
	assert.Equal(t, int64(100), cfg.MaxOffsetLag)
	assert.Equal(t, time.Second, cfg.EmitHeartbeats.Interval)
	assert.True(t, cfg.EmitHeartbeats.Enabled)
	assert.True(t, cfg.EmitCheckpoints.Enabled)
}
