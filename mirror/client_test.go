package mirror

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, topics []string) *Client {
	t.Helper()

	client := NewClient(zap.NewNop(), NewDefaultReplicationPolicy("."), "heartbeats", "checkpoints", nil)
	client.listTopics = func(context.Context) ([]string, error) {
		return topics, nil
	}
	return client
}

var topologyTopics = []string{
	"heartbeats",
	"us-east.heartbeats",
	"us-west.us-east.heartbeats",
	"us-east.checkpoints",
	"checkpoints",
	"orders",
	"us-east.orders",
	"kmirror-offsets",
}

func TestClientHeartbeatTopics(t *testing.T) {
	client := newTestClient(t, topologyTopics)

	heartbeatTopics, err := client.HeartbeatTopics(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"heartbeats",
		"us-east.heartbeats",
		"us-west.us-east.heartbeats",
	}, heartbeatTopics)
}

func TestClientCheckpointTopics(t *testing.T) {
	client := newTestClient(t, topologyTopics)

	checkpointTopics, err := client.CheckpointTopics(context.Background())
	require.NoError(t, err)
	// The local "checkpoints" topic carries no source prefix and is not a
	// replicated checkpoint topic.
	assert.ElementsMatch(t, []string{"us-east.checkpoints"}, checkpointTopics)
}

func TestClientUpstreamClusters(t *testing.T) {
	client := newTestClient(t, topologyTopics)

	clusters, err := client.UpstreamClusters(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"us-east", "us-west"}, clusters)
}

func TestClientUpstreamClustersOnlyDirect(t *testing.T) {
	// us-east's heartbeats arrive here only via us-west, so us-west is the
	// sole direct upstream. us-east is two hops away, not upstream.
	client := newTestClient(t, []string{"us-west.us-east.heartbeats"})

	clusters, err := client.UpstreamClusters(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"us-west"}, clusters)
}

func TestClientReplicationHops(t *testing.T) {
	client := newTestClient(t, topologyTopics)
	ctx := context.Background()

	// us-east feeds this cluster both directly and via us-west; the shortest
	// path wins.
	hops, err := client.ReplicationHops(ctx, "us-east")
	require.NoError(t, err)
	assert.Equal(t, 1, hops)

	hops, err = client.ReplicationHops(ctx, "us-west")
	require.NoError(t, err)
	assert.Equal(t, 1, hops)

	hops, err = client.ReplicationHops(ctx, "eu")
	require.NoError(t, err)
	assert.Equal(t, -1, hops)
}

func TestCountHopsForTopic(t *testing.T) {
	client := newTestClient(t, nil)

	assert.Equal(t, 1, client.countHopsForTopic("us-east.heartbeats", "us-east"))
	assert.Equal(t, 2, client.countHopsForTopic("us-west.us-east.heartbeats", "us-east"))
	assert.Equal(t, -1, client.countHopsForTopic("heartbeats", "us-east"))
	assert.Equal(t, -1, client.countHopsForTopic("us-west.heartbeats", "us-east"))
}

func TestRemoteConsumerOffsetsZeroTimeout(t *testing.T) {
	client := newTestClient(t, nil)

	// A zero timeout leaves no time to read anything, so no consumer is even
	// created and the result is empty rather than an error.
	offsets, err := client.RemoteConsumerOffsets(context.Background(), "billing", "us-east", 0)
	require.NoError(t, err)
	assert.Empty(t, offsets)
}

func TestApplyCheckpoint(t *testing.T) {
	logger := zap.NewNop()
	offsets := make(map[TopicPartition]OffsetAndMetadata)
	tp := TopicPartition{Topic: "us-east.orders", Partition: 0}

	rec, err := Checkpoint{
		ConsumerGroupID:  "billing",
		TopicPartition:   tp,
		UpstreamOffset:   100,
		DownstreamOffset: 90,
	}.Record("us-east.checkpoints")
	require.NoError(t, err)
	applyCheckpoint(offsets, rec, "billing", logger)
	assert.Equal(t, OffsetAndMetadata{Offset: 90}, offsets[tp])

	// A later checkpoint for the same partition replaces the earlier one.
	rec, err = Checkpoint{
		ConsumerGroupID:  "billing",
		TopicPartition:   tp,
		UpstreamOffset:   200,
		DownstreamOffset: 185,
	}.Record("us-east.checkpoints")
	require.NoError(t, err)
	applyCheckpoint(offsets, rec, "billing", logger)
	assert.Equal(t, OffsetAndMetadata{Offset: 185}, offsets[tp])

	// Checkpoints of other groups are ignored.
	rec, err = Checkpoint{
		ConsumerGroupID:  "shipping",
		TopicPartition:   tp,
		UpstreamOffset:   300,
		DownstreamOffset: 280,
	}.Record("us-east.checkpoints")
	require.NoError(t, err)
	applyCheckpoint(offsets, rec, "billing", logger)
	assert.Equal(t, OffsetAndMetadata{Offset: 185}, offsets[tp])
	assert.Len(t, offsets, 1)

	// Malformed records are skipped, not fatal.
	rec.Key = []byte("not json")
	applyCheckpoint(offsets, rec, "billing", logger)
	assert.Len(t, offsets, 1)
}

func TestApplyCheckpointReplayIsDeterministic(t *testing.T) {
	logger := zap.NewNop()

	var records []*kgo.Record
	for i, downstream := range []int64{10, 20, 15} {
		rec, err := Checkpoint{
			ConsumerGroupID:  "billing",
			TopicPartition:   TopicPartition{Topic: "us-east.orders", Partition: int32(i % 2)},
			UpstreamOffset:   int64(i * 100),
			DownstreamOffset: downstream,
		}.Record("us-east.checkpoints")
		require.NoError(t, err)
		records = append(records, rec)
	}

	replay := func() map[TopicPartition]OffsetAndMetadata {
		offsets := make(map[TopicPartition]OffsetAndMetadata)
		for _, rec := range records {
			applyCheckpoint(offsets, rec, "billing", logger)
		}
		return offsets
	}

	first := replay()
	second := replay()
	assert.Equal(t, first, second)
	assert.Equal(t, OffsetAndMetadata{Offset: 15}, first[TopicPartition{Topic: "us-east.orders", Partition: 0}])
	assert.Equal(t, OffsetAndMetadata{Offset: 20}, first[TopicPartition{Topic: "us-east.orders", Partition: 1}])
}

func TestCaughtUp(t *testing.T) {
	assert.True(t, caughtUp(map[int32]int64{}, map[int32]int64{}))
	assert.True(t, caughtUp(map[int32]int64{0: 0}, map[int32]int64{0: 0}))
	assert.True(t, caughtUp(map[int32]int64{0: 5}, map[int32]int64{0: 5}))
	assert.False(t, caughtUp(map[int32]int64{0: 4}, map[int32]int64{0: 5}))
	// A partition never read yet counts as position 0.
	assert.False(t, caughtUp(map[int32]int64{}, map[int32]int64{0: 1}))
}

func TestClientTopicCatalogCache(t *testing.T) {
	calls := 0
	client := NewClient(zap.NewNop(), NewDefaultReplicationPolicy("."), "heartbeats", "checkpoints", nil)
	client.listTopics = func(context.Context) ([]string, error) {
		calls++
		return []string{"us-east.heartbeats"}, nil
	}

	ctx := context.Background()
	_, err := client.HeartbeatTopics(ctx)
	require.NoError(t, err)
	_, err = client.CheckpointTopics(ctx)
	require.NoError(t, err)
	_, err = client.UpstreamClusters(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
}
