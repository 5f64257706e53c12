package mirror

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPartitionStateUpdate(t *testing.T) {
	state := newPartitionState(50)

	// First pair after startup always syncs.
	assert.True(t, state.Update(0, 100))
	// Upstream skipped an offset (e.g. compaction).
	assert.True(t, state.Update(2, 102))
	// Downstream drift equal to maxOffsetLag does not sync, only exceeding it does.
	assert.False(t, state.Update(3, 153))
	assert.False(t, state.Update(4, 154))
	assert.False(t, state.Update(5, 155))
	assert.True(t, state.Update(6, 207))
	// Upstream offset went backwards.
	assert.True(t, state.Update(2, 208))
	assert.False(t, state.Update(3, 209))
	// Downstream offset went backwards (target topic recreated).
	assert.True(t, state.Update(4, 3))
	assert.False(t, state.Update(5, 4))
}

func TestPartitionStateFirstUpdateAlwaysSyncs(t *testing.T) {
	state := newPartitionState(0)
	assert.True(t, state.Update(42, 42))
	assert.False(t, state.Update(43, 43))
}

func TestOffsetSyncStoreTranslateDownstream(t *testing.T) {
	store := NewOffsetSyncStore()
	tp := TopicPartition{Topic: "orders", Partition: 3}

	// Unknown partition cannot be translated.
	_, ok := store.TranslateDownstream(tp, 100)
	assert.False(t, ok)

	store.Record(tp, 100, 250)

	downstream, ok := store.TranslateDownstream(tp, 100)
	assert.True(t, ok)
	assert.Equal(t, int64(250), downstream)

	// Offsets past the sync extrapolate linearly.
	downstream, ok = store.TranslateDownstream(tp, 110)
	assert.True(t, ok)
	assert.Equal(t, int64(260), downstream)

	// Offsets older than the latest sync are not translatable.
	_, ok = store.TranslateDownstream(tp, 99)
	assert.False(t, ok)

	// A newer sync replaces the previous one.
	store.Record(tp, 200, 400)
	downstream, ok = store.TranslateDownstream(tp, 205)
	assert.True(t, ok)
	assert.Equal(t, int64(405), downstream)
}

func TestOffsetSyncStoreLatest(t *testing.T) {
	store := NewOffsetSyncStore()
	tp := TopicPartition{Topic: "orders", Partition: 0}

	_, exists := store.Latest(tp)
	assert.False(t, exists)

	store.Record(tp, 1, 2)
	sync, exists := store.Latest(tp)
	assert.True(t, exists)
	assert.Equal(t, OffsetSync{TopicPartition: tp, UpstreamOffset: 1, DownstreamOffset: 2}, sync)

	// Partitions of the same topic do not interfere.
	_, exists = store.Latest(TopicPartition{Topic: "orders", Partition: 1})
	assert.False(t, exists)
}
