package mirror

import (
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Checkpoint maps one consumer group's committed upstream offset to its
// downstream equivalent. TopicPartition carries the renamed (target-side)
// topic so the returned offsets can be committed on the target cluster as-is.
type Checkpoint struct {
	ConsumerGroupID  string
	TopicPartition   TopicPartition
	UpstreamOffset   int64
	DownstreamOffset int64
	Metadata         string
}

type checkpointKey struct {
	ConsumerGroupID string `json:"consumerGroupId"`
	Topic           string `json:"topic"`
	Partition       int32  `json:"partition"`
}

type checkpointValue struct {
	UpstreamOffset   int64  `json:"upstreamOffset"`
	DownstreamOffset int64  `json:"downstreamOffset"`
	Metadata         string `json:"metadata"`
}

// Record serializes the checkpoint for the given topic. The checkpoints topic
// has a single partition and is compacted by key, so the latest record per
// (group, topic, partition) wins.
func (c Checkpoint) Record(topic string) (*kgo.Record, error) {
	key, err := json.Marshal(checkpointKey{
		ConsumerGroupID: c.ConsumerGroupID,
		Topic:           c.TopicPartition.Topic,
		Partition:       c.TopicPartition.Partition,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to serialize checkpoint key: %w", err)
	}
	value, err := json.Marshal(checkpointValue{
		UpstreamOffset:   c.UpstreamOffset,
		DownstreamOffset: c.DownstreamOffset,
		Metadata:         c.Metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to serialize checkpoint value: %w", err)
	}

	return &kgo.Record{
		Topic:     topic,
		Partition: 0,
		Key:       key,
		Value:     value,
	}, nil
}

// DecodeCheckpoint parses a checkpoint record.
func DecodeCheckpoint(rec *kgo.Record) (Checkpoint, error) {
	var key checkpointKey
	if err := json.Unmarshal(rec.Key, &key); err != nil {
		return Checkpoint{}, fmt.Errorf("failed to decode checkpoint key: %w", err)
	}
	var value checkpointValue
	if err := json.Unmarshal(rec.Value, &value); err != nil {
		return Checkpoint{}, fmt.Errorf("failed to decode checkpoint value: %w", err)
	}

	return Checkpoint{
		ConsumerGroupID:  key.ConsumerGroupID,
		TopicPartition:   TopicPartition{Topic: key.Topic, Partition: key.Partition},
		UpstreamOffset:   value.UpstreamOffset,
		DownstreamOffset: value.DownstreamOffset,
		Metadata:         value.Metadata,
	}, nil
}

// OffsetAndMetadata returns the downstream offset in the shape a consumer
// group commit expects.
func (c Checkpoint) OffsetAndMetadata() OffsetAndMetadata {
	return OffsetAndMetadata{Offset: c.DownstreamOffset, Metadata: c.Metadata}
}
