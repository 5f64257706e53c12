package mirror

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultReplicationPolicy(t *testing.T) {
	policy := NewDefaultReplicationPolicy(".")

	assert.Equal(t, "us-east.orders", policy.FormatRemoteTopic("us-east", "orders"))

	assert.Equal(t, "us-east", policy.TopicSource("us-east.orders"))
	assert.Equal(t, "orders", policy.UpstreamTopic("us-east.orders"))
	assert.Equal(t, "orders", policy.OriginalTopic("us-east.orders"))

	// Multi-hop names strip one alias per hop.
	assert.Equal(t, "us-west", policy.TopicSource("us-west.us-east.orders"))
	assert.Equal(t, "us-east.orders", policy.UpstreamTopic("us-west.us-east.orders"))
	assert.Equal(t, "orders", policy.OriginalTopic("us-west.us-east.orders"))

	// Locally originated topics have no source.
	assert.Equal(t, "", policy.TopicSource("orders"))
	assert.Equal(t, "", policy.UpstreamTopic("orders"))
	assert.Equal(t, "orders", policy.OriginalTopic("orders"))

	// A leading separator would mean an empty alias, which we never produce.
	assert.Equal(t, "", policy.TopicSource(".orders"))
	assert.Equal(t, ".orders", policy.OriginalTopic(".orders"))
}

func TestIdentityReplicationPolicy(t *testing.T) {
	policy := &IdentityReplicationPolicy{}

	assert.Equal(t, "orders", policy.FormatRemoteTopic("us-east", "orders"))
	assert.Equal(t, "", policy.TopicSource("us-east.orders"))
	assert.Equal(t, "", policy.UpstreamTopic("us-east.orders"))
	assert.Equal(t, "us-east.orders", policy.OriginalTopic("us-east.orders"))
}

func TestNewReplicationPolicy(t *testing.T) {
	policy, err := NewReplicationPolicy(ReplicationPolicyConfig{Type: ReplicationPolicyTypeDefault, Separator: "_"})
	require.NoError(t, err)
	assert.Equal(t, "us-east_orders", policy.FormatRemoteTopic("us-east", "orders"))

	policy, err = NewReplicationPolicy(ReplicationPolicyConfig{Type: ReplicationPolicyTypeIdentity})
	require.NoError(t, err)
	assert.Equal(t, "orders", policy.FormatRemoteTopic("us-east", "orders"))

	_, err = NewReplicationPolicy(ReplicationPolicyConfig{Type: "invalid"})
	assert.Error(t, err)
}
