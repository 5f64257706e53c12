package mirror

import (
	"fmt"
	"strings"
)

// ReplicationPolicy decides how replicated topics are named on the target
// cluster and how the origin of a replicated topic name is recovered.
//
// TopicSource and UpstreamTopic return "" for topics that did not originate
// from replication. A topic name that cannot be unambiguously split into
// alias and original is treated the same way, never as an error.
type ReplicationPolicy interface {
	// FormatRemoteTopic renames a source topic for the target cluster.
	FormatRemoteTopic(sourceClusterAlias, topic string) string

	// TopicSource returns the alias of the cluster this topic was
	// replicated from, or "" if the topic originated locally.
	TopicSource(topic string) string

	// UpstreamTopic returns the topic name one replication hop closer to
	// the origin, or "" if the topic originated locally.
	UpstreamTopic(topic string) string

	// OriginalTopic strips all replication prefixes.
	OriginalTopic(topic string) string
}

// DefaultReplicationPolicy prefixes remote topics with the source cluster
// alias, e.g. "us-east.orders". Aliases must not contain the separator,
// otherwise topic names no longer round-trip.
type DefaultReplicationPolicy struct {
	Separator string
}

func NewDefaultReplicationPolicy(separator string) *DefaultReplicationPolicy {
	return &DefaultReplicationPolicy{Separator: separator}
}

func (p *DefaultReplicationPolicy) FormatRemoteTopic(sourceClusterAlias, topic string) string {
	return sourceClusterAlias + p.Separator + topic
}

func (p *DefaultReplicationPolicy) TopicSource(topic string) string {
	idx := strings.Index(topic, p.Separator)
	if idx <= 0 {
		// No separator, or an empty alias. Either way this is not a name
		// we produced, so the topic counts as locally originated.
		return ""
	}
	return topic[:idx]
}

func (p *DefaultReplicationPolicy) UpstreamTopic(topic string) string {
	source := p.TopicSource(topic)
	if source == "" {
		return ""
	}
	return topic[len(source)+len(p.Separator):]
}

func (p *DefaultReplicationPolicy) OriginalTopic(topic string) string {
	source := p.TopicSource(topic)
	if source == "" {
		return topic
	}
	return p.OriginalTopic(p.UpstreamTopic(topic))
}

// IdentityReplicationPolicy keeps topic names unchanged across clusters.
// Topology discovery (TopicSource, UpstreamTopic) is unavailable with this
// policy, so heartbeat chains cannot be walked; it exists for migrations
// into clusters whose consumers expect unprefixed names.
type IdentityReplicationPolicy struct{}

func (p *IdentityReplicationPolicy) FormatRemoteTopic(_, topic string) string { return topic }
func (p *IdentityReplicationPolicy) TopicSource(string) string                { return "" }
func (p *IdentityReplicationPolicy) UpstreamTopic(string) string              { return "" }
func (p *IdentityReplicationPolicy) OriginalTopic(topic string) string        { return topic }

// NewReplicationPolicy builds the policy selected in the config.
func NewReplicationPolicy(cfg ReplicationPolicyConfig) (ReplicationPolicy, error) {
	switch cfg.Type {
	case ReplicationPolicyTypeDefault:
		return NewDefaultReplicationPolicy(cfg.Separator), nil
	case ReplicationPolicyTypeIdentity:
		return &IdentityReplicationPolicy{}, nil
	default:
		return nil, fmt.Errorf("unknown replication policy type '%v'", cfg.Type)
	}
}
