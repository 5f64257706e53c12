package mirror

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"
)

func TestCheckpointSerde(t *testing.T) {
	checkpoint := Checkpoint{
		ConsumerGroupID:  "billing",
		TopicPartition:   TopicPartition{Topic: "us-east.orders", Partition: 4},
		UpstreamOffset:   1000,
		DownstreamOffset: 970,
		Metadata:         "some metadata",
	}

	rec, err := checkpoint.Record("us-east.checkpoints")
	require.NoError(t, err)
	assert.Equal(t, "us-east.checkpoints", rec.Topic)
	assert.Equal(t, int32(0), rec.Partition)

	decoded, err := DecodeCheckpoint(rec)
	require.NoError(t, err)
	assert.Equal(t, checkpoint, decoded)

	assert.Equal(t, OffsetAndMetadata{Offset: 970, Metadata: "some metadata"}, decoded.OffsetAndMetadata())
}

func TestDecodeCheckpointMalformed(t *testing.T) {
	_, err := DecodeCheckpoint(&kgo.Record{Key: []byte("not json"), Value: []byte("{}")})
	assert.Error(t, err)

	_, err = DecodeCheckpoint(&kgo.Record{Key: []byte("{}"), Value: []byte("not json")})
	assert.Error(t, err)
}
