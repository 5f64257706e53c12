package mirror

import (
	"fmt"
	"time"
)

const (
	ReplicationPolicyTypeDefault  = "default"
	ReplicationPolicyTypeIdentity = "identity"
)

type Config struct {
	// SourceClusterAlias and TargetClusterAlias name the two ends of this
	// replication flow. The source alias becomes the topic prefix on the
	// target cluster.
	SourceClusterAlias string `koanf:"sourceClusterAlias"`
	TargetClusterAlias string `koanf:"targetClusterAlias"`

	ReplicationPolicy ReplicationPolicyConfig `koanf:"replicationPolicy"`

	Topics         FilterConfig `koanf:"topics"`
	ConsumerGroups FilterConfig `koanf:"consumerGroups"`

	// Base names of the control topics. They are subject to the same
	// aliasing rule as any replicated topic when chained across hops.
	HeartbeatsTopic  string `koanf:"heartbeatsTopic"`
	CheckpointsTopic string `koanf:"checkpointsTopic"`

	// OffsetsTopic is the internal compacted topic on the target cluster
	// that stores the source offsets the flow has durably replicated,
	// used to resume after a restart.
	OffsetsTopic string `koanf:"offsetsTopic"`

	EmitHeartbeats  EmitConfig `koanf:"emitHeartbeats"`
	EmitCheckpoints EmitConfig `koanf:"emitCheckpoints"`

	// MaxOffsetLag bounds how many upstream records a consumer resuming
	// from the latest offset sync may have to replay.
	MaxOffsetLag int64 `koanf:"maxOffsetLag"`

	// OffsetLoadTimeout bounds the replay of the offsets topic at startup.
	OffsetLoadTimeout time.Duration `koanf:"offsetLoadTimeout"`

	// TopicRefreshInterval is how often the source topic catalog is
	// re-listed to pick up newly created topics.
	TopicRefreshInterval time.Duration `koanf:"topicRefreshInterval"`
}

type ReplicationPolicyConfig struct {
	Type      string `koanf:"type"`
	Separator string `koanf:"separator"`
}

func (c *ReplicationPolicyConfig) SetDefaults() {
	c.Type = ReplicationPolicyTypeDefault
	c.Separator = "."
}

func (c *ReplicationPolicyConfig) Validate() error {
	switch c.Type {
	case ReplicationPolicyTypeDefault, ReplicationPolicyTypeIdentity:
	default:
		return fmt.Errorf("unknown replication policy type '%v'", c.Type)
	}
	if c.Type == ReplicationPolicyTypeDefault && c.Separator == "" {
		return fmt.Errorf("replication policy separator must not be empty")
	}
	return nil
}

// FilterConfig selects topics or consumer groups by allow and ignore
// expressions. Strings enclosed in '/' are regular expressions, anything else
// matches literally.
type FilterConfig struct {
	Allowed []string `koanf:"allowed"`
	Ignored []string `koanf:"ignored"`
}

func (c *FilterConfig) Validate() error {
	if _, err := compileRegexes(c.Allowed); err != nil {
		return fmt.Errorf("failed to compile allowed expressions: %w", err)
	}
	if _, err := compileRegexes(c.Ignored); err != nil {
		return fmt.Errorf("failed to compile ignored expressions: %w", err)
	}
	return nil
}

type EmitConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Interval time.Duration `koanf:"interval"`
}

func (c *EmitConfig) Validate() error {
	if c.Enabled && c.Interval <= 0 {
		return fmt.Errorf("emit interval must be greater than zero")
	}
	return nil
}

func (c *Config) SetDefaults() {
	c.ReplicationPolicy.SetDefaults()

	c.Topics.Allowed = []string{"/.*/"}
	c.Topics.Ignored = []string{"/__.*/"}
	c.ConsumerGroups.Allowed = []string{"/.*/"}
	c.ConsumerGroups.Ignored = []string{}

	c.HeartbeatsTopic = "heartbeats"
	c.CheckpointsTopic = "checkpoints"
	c.OffsetsTopic = "kmirror-offsets"

	c.EmitHeartbeats = EmitConfig{Enabled: true, Interval: time.Second}
	c.EmitCheckpoints = EmitConfig{Enabled: true, Interval: time.Minute}

	c.MaxOffsetLag = 100
	c.OffsetLoadTimeout = 30 * time.Second
	c.TopicRefreshInterval = 5 * time.Minute
}

func (c *Config) Validate() error {
	if c.SourceClusterAlias == "" {
		return fmt.Errorf("sourceClusterAlias must be configured")
	}
	if c.TargetClusterAlias == "" {
		return fmt.Errorf("targetClusterAlias must be configured")
	}
	if c.SourceClusterAlias == c.TargetClusterAlias {
		return fmt.Errorf("sourceClusterAlias and targetClusterAlias must differ")
	}

	if err := c.ReplicationPolicy.Validate(); err != nil {
		return fmt.Errorf("failed to validate replication policy config: %w", err)
	}
	if err := c.Topics.Validate(); err != nil {
		return fmt.Errorf("failed to validate topics config: %w", err)
	}
	if err := c.ConsumerGroups.Validate(); err != nil {
		return fmt.Errorf("failed to validate consumer groups config: %w", err)
	}
	if err := c.EmitHeartbeats.Validate(); err != nil {
		return fmt.Errorf("failed to validate emitHeartbeats config: %w", err)
	}
	if err := c.EmitCheckpoints.Validate(); err != nil {
		return fmt.Errorf("failed to validate emitCheckpoints config: %w", err)
	}

	if c.HeartbeatsTopic == "" || c.CheckpointsTopic == "" || c.OffsetsTopic == "" {
		return fmt.Errorf("heartbeatsTopic, checkpointsTopic and offsetsTopic must not be empty")
	}
	if c.MaxOffsetLag < 0 {
		return fmt.Errorf("maxOffsetLag must not be negative")
	}

	return nil
}
