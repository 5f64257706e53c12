package mirror

import "fmt"

// TopicPartition identifies one partition of one topic. Equality is by
// field pair, so the type is usable as a map key.
type TopicPartition struct {
	Topic     string
	Partition int32
}

func (tp TopicPartition) String() string {
	return fmt.Sprintf("%s-%d", tp.Topic, tp.Partition)
}

// SourceAndTarget identifies one replication flow. It is the key that scopes
// metrics and offset-sync state per flow.
type SourceAndTarget struct {
	Source string
	Target string
}

func (st SourceAndTarget) String() string {
	return fmt.Sprintf("%s->%s", st.Source, st.Target)
}

// OffsetAndMetadata is a consumer group offset along with the metadata string
// the group committed with it.
type OffsetAndMetadata struct {
	Offset   int64
	Metadata string
}
