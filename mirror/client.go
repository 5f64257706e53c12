package mirror

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v2"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/cloudhut/kmirror/kafka"
)

const (
	topicCatalogCacheKey = "topics"
	topicCatalogCacheTTL = 5 * time.Second

	// maxReplicationHops bounds the topology walk. A topic name that still
	// carries a source prefix after this many strips was not produced by a
	// sane replication chain.
	maxReplicationHops = 100
)

// Client answers topology questions about a cluster that receives replicated
// topics: which upstream clusters feed it, how many hops away they are, and
// what a migrating consumer group should commit. It is the interop surface
// for tooling that fails over consumers between clusters.
type Client struct {
	logger           *zap.Logger
	policy           ReplicationPolicy
	heartbeatsTopic  string
	checkpointsTopic string
	kafkaSvc         *kafka.Service

	// listTopics is swappable for tests.
	listTopics   func(ctx context.Context) ([]string, error)
	catalogCache *ttlcache.Cache
	requestGroup singleflight.Group
}

func NewClient(logger *zap.Logger, policy ReplicationPolicy, heartbeatsTopic, checkpointsTopic string, kafkaSvc *kafka.Service) *Client {
	cache := ttlcache.NewCache()
	_ = cache.SetTTL(topicCatalogCacheTTL)

	c := &Client{
		logger:           logger,
		policy:           policy,
		heartbeatsTopic:  heartbeatsTopic,
		checkpointsTopic: checkpointsTopic,
		kafkaSvc:         kafkaSvc,
		catalogCache:     cache,
	}
	c.listTopics = c.listTopicsFromCluster
	return c
}

func (c *Client) listTopicsFromCluster(ctx context.Context) ([]string, error) {
	adm := kadm.NewClient(c.kafkaSvc.Client)
	details, err := adm.ListTopics(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list topics: %w", err)
	}
	return details.Names(), nil
}

// cachedTopics serves the topic catalog from a short-lived cache so the bursts
// of lookups the topology methods cause don't each hit the cluster. Concurrent
// cache misses are collapsed into a single metadata request.
func (c *Client) cachedTopics(ctx context.Context) ([]string, error) {
	if cached, err := c.catalogCache.Get(topicCatalogCacheKey); err == nil {
		return cached.([]string), nil
	}

	topics, err, _ := c.requestGroup.Do(topicCatalogCacheKey, func() (interface{}, error) {
		listed, err := c.listTopics(ctx)
		if err != nil {
			return nil, err
		}
		_ = c.catalogCache.Set(topicCatalogCacheKey, listed)
		return listed, nil
	})
	if err != nil {
		return nil, err
	}
	return topics.([]string), nil
}

func (c *Client) isHeartbeatTopic(topic string) bool {
	return c.policy.OriginalTopic(topic) == c.heartbeatsTopic
}

// isCheckpointTopic matches only replicated checkpoint topics. The local
// cluster's own checkpoint emissions always target a remote cluster, so an
// unprefixed name never qualifies.
func (c *Client) isCheckpointTopic(topic string) bool {
	return c.policy.OriginalTopic(topic) == c.checkpointsTopic && c.policy.TopicSource(topic) != ""
}

// HeartbeatTopics returns all heartbeat topics on the cluster, the local one
// and every replicated one.
func (c *Client) HeartbeatTopics(ctx context.Context) ([]string, error) {
	topics, err := c.cachedTopics(ctx)
	if err != nil {
		return nil, err
	}

	var heartbeatTopics []string
	for _, topic := range topics {
		if c.isHeartbeatTopic(topic) {
			heartbeatTopics = append(heartbeatTopics, topic)
		}
	}
	return heartbeatTopics, nil
}

// CheckpointTopics returns all checkpoint topics replicated onto the cluster.
func (c *Client) CheckpointTopics(ctx context.Context) ([]string, error) {
	topics, err := c.cachedTopics(ctx)
	if err != nil {
		return nil, err
	}

	var checkpointTopics []string
	for _, topic := range topics {
		if c.isCheckpointTopic(topic) {
			checkpointTopics = append(checkpointTopics, topic)
		}
	}
	return checkpointTopics, nil
}

// UpstreamClusters returns the aliases of the clusters directly replicating
// into this cluster, derived from the outermost prefix of each heartbeat
// topic. Clusters further up a multi-hop chain are not upstream of this one;
// ReplicationHops answers reachability questions across hops.
func (c *Client) UpstreamClusters(ctx context.Context) ([]string, error) {
	heartbeatTopics, err := c.HeartbeatTopics(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var clusters []string
	for _, topic := range heartbeatTopics {
		source := c.policy.TopicSource(topic)
		if source == "" || seen[source] {
			continue
		}
		seen[source] = true
		clusters = append(clusters, source)
	}
	return clusters, nil
}

// ReplicationHops returns the shortest replication distance from the given
// cluster to this one, derived from heartbeat topic names, or -1 when no
// heartbeat chain from that cluster reaches this cluster.
func (c *Client) ReplicationHops(ctx context.Context, upstreamClusterAlias string) (int, error) {
	heartbeatTopics, err := c.HeartbeatTopics(ctx)
	if err != nil {
		return -1, err
	}

	hops := -1
	for _, topic := range heartbeatTopics {
		topicHops := c.countHopsForTopic(topic, upstreamClusterAlias)
		if topicHops == -1 {
			continue
		}
		if hops == -1 || topicHops < hops {
			hops = topicHops
		}
	}
	return hops, nil
}

func (c *Client) countHopsForTopic(topic, upstreamClusterAlias string) int {
	hops := 0
	for hops < maxReplicationHops {
		hops++
		source := c.policy.TopicSource(topic)
		if source == "" {
			return -1
		}
		if source == upstreamClusterAlias {
			return hops
		}
		topic = c.policy.UpstreamTopic(topic)
	}
	return -1
}

// RemoteConsumerOffsets reads the checkpoint topic replicated from the given
// cluster and returns, for one consumer group, the latest translated offsets
// keyed by target-side topic partition. The returned offsets can be committed
// on this cluster directly. Reading stops once the replay caught up with the
// end of the topic or the timeout elapsed, whichever comes first; a timeout
// returns whatever was read so far.
func (c *Client) RemoteConsumerOffsets(ctx context.Context, consumerGroupID, remoteClusterAlias string,
	timeout time.Duration) (map[TopicPartition]OffsetAndMetadata, error) {
	offsets := make(map[TopicPartition]OffsetAndMetadata)
	deadline := time.Now().Add(timeout)
	if !time.Now().Before(deadline) {
		return offsets, nil
	}

	checkpointTopic := c.policy.FormatRemoteTopic(remoteClusterAlias, c.checkpointsTopic)
	consumer, err := c.kafkaSvc.CreateClient(
		kgo.ClientID("kmirror-checkpoint-replay-"+uuid.NewString()),
		kgo.ConsumePartitions(map[string]map[int32]kgo.Offset{
			checkpointTopic: {0: kgo.NewOffset().AtStart()},
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkpoint consumer: %w", err)
	}
	defer consumer.Close()

	adm := kadm.NewClient(consumer)
	positions := map[int32]int64{0: 0}

	for time.Now().Before(deadline) {
		endOffsets, err := listEndOffsets(ctx, adm, checkpointTopic)
		if err != nil {
			return nil, fmt.Errorf("failed to list checkpoint topic end offsets: %w", err)
		}
		if caughtUp(positions, endOffsets) {
			break
		}

		pollCtx, cancel := context.WithDeadline(ctx, deadline)
		fetches := consumer.PollFetches(pollCtx)
		cancel()
		if err := ctx.Err(); err != nil {
			return offsets, err
		}

		for _, fetchErr := range fetches.Errors() {
			if errors.Is(fetchErr.Err, context.DeadlineExceeded) || errors.Is(fetchErr.Err, context.Canceled) {
				continue
			}
			c.logger.Warn("failed to fetch checkpoint records",
				zap.String("topic", fetchErr.Topic),
				zap.Int32("partition", fetchErr.Partition),
				zap.Error(fetchErr.Err))
		}

		iter := fetches.RecordIter()
		for !iter.Done() {
			rec := iter.Next()
			positions[rec.Partition] = rec.Offset + 1
			applyCheckpoint(offsets, rec, consumerGroupID, c.logger)
		}
	}
	return offsets, nil
}

// applyCheckpoint folds one checkpoint record into the offsets map. Later
// records override earlier ones for the same partition, which makes the map
// converge to the newest checkpoint per partition.
func applyCheckpoint(offsets map[TopicPartition]OffsetAndMetadata, rec *kgo.Record, consumerGroupID string, logger *zap.Logger) {
	checkpoint, err := DecodeCheckpoint(rec)
	if err != nil {
		logger.Warn("skipping malformed checkpoint record",
			zap.Int64("offset", rec.Offset),
			zap.Error(err))
		return
	}
	if checkpoint.ConsumerGroupID != consumerGroupID {
		return
	}
	offsets[checkpoint.TopicPartition] = checkpoint.OffsetAndMetadata()
}

// caughtUp reports whether the read positions have reached an end offsets
// snapshot. The snapshot may be stale by the time this returns; it answers
// "no more data known right now", not a linearizable end-of-topic check.
func caughtUp(positions, endOffsets map[int32]int64) bool {
	for partition, end := range endOffsets {
		if positions[partition] < end {
			return false
		}
	}
	return true
}

func listEndOffsets(ctx context.Context, adm *kadm.Client, topic string) (map[int32]int64, error) {
	listed, err := adm.ListEndOffsets(ctx, topic)
	if err != nil {
		return nil, err
	}

	endOffsets := make(map[int32]int64)
	var listErr error
	listed.Each(func(o kadm.ListedOffset) {
		if o.Err != nil {
			listErr = o.Err
			return
		}
		endOffsets[o.Partition] = o.Offset
	})
	if listErr != nil {
		return nil, listErr
	}
	return endOffsets, nil
}
