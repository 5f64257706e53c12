package mirror

import (
	cmap "github.com/orcaman/concurrent-map"
)

// partitionState tracks the correspondence between upstream and downstream
// offsets for one replicated partition and decides when a fresh offset sync
// must be emitted. It keeps only the most recent pair, so memory stays O(1)
// per partition regardless of replication volume.
//
// Instances are not safe for concurrent use. The source task serializes
// updates per partition.
type partitionState struct {
	previousUpstreamOffset   int64
	previousDownstreamOffset int64
	lastSyncUpstreamOffset   int64
	lastSyncDownstreamOffset int64
	maxOffsetLag             int64
}

func newPartitionState(maxOffsetLag int64) *partitionState {
	return &partitionState{
		previousUpstreamOffset:   -1,
		previousDownstreamOffset: -1,
		lastSyncUpstreamOffset:   -1,
		lastSyncDownstreamOffset: -1,
		maxOffsetLag:             maxOffsetLag,
	}
}

// Update records a newly replicated offset pair and reports whether an offset
// sync must be emitted for it. A sync is due when:
//   - this is the first pair seen since the task started (a restarted task
//     always resyncs, nothing is persisted across restarts),
//   - the downstream offset drifted more than maxOffsetLag past the linear
//     extrapolation of the last sync, so a consumer resuming from that sync
//     would replay too much,
//   - the upstream offset skipped or regressed (compaction, transaction
//     markers, log truncation), or
//   - the downstream offset regressed (target topic was recreated).
//
// State is advanced regardless of the result. A caller that fails to write
// the sync record simply loses this sync opportunity until the next
// qualifying update.
func (p *partitionState) Update(upstreamOffset, downstreamOffset int64) bool {
	shouldSyncOffsets := false
	extrapolated := p.lastSyncDownstreamOffset + (upstreamOffset - p.lastSyncUpstreamOffset)
	if p.lastSyncDownstreamOffset == -1 ||
		downstreamOffset-extrapolated > p.maxOffsetLag ||
		upstreamOffset-p.previousUpstreamOffset != 1 ||
		downstreamOffset < p.previousDownstreamOffset {
		p.lastSyncUpstreamOffset = upstreamOffset
		p.lastSyncDownstreamOffset = downstreamOffset
		shouldSyncOffsets = true
	}
	p.previousUpstreamOffset = upstreamOffset
	p.previousDownstreamOffset = downstreamOffset
	return shouldSyncOffsets
}

// OffsetSync is one emitted upstream->downstream offset mapping.
type OffsetSync struct {
	TopicPartition   TopicPartition
	UpstreamOffset   int64
	DownstreamOffset int64
}

// OffsetSyncStore holds the latest offset sync per upstream partition. The
// source task writes it on every emitted sync; the checkpoint task reads it
// to translate consumer group offsets downstream.
type OffsetSyncStore struct {
	syncs cmap.ConcurrentMap
}

func NewOffsetSyncStore() *OffsetSyncStore {
	return &OffsetSyncStore{syncs: cmap.New()}
}

func (s *OffsetSyncStore) Record(tp TopicPartition, upstreamOffset, downstreamOffset int64) {
	s.syncs.Set(tp.String(), OffsetSync{
		TopicPartition:   tp,
		UpstreamOffset:   upstreamOffset,
		DownstreamOffset: downstreamOffset,
	})
}

func (s *OffsetSyncStore) Latest(tp TopicPartition) (OffsetSync, bool) {
	val, exists := s.syncs.Get(tp.String())
	if !exists {
		return OffsetSync{}, false
	}
	return val.(OffsetSync), true
}

// TranslateDownstream converts an upstream consumer offset into its downstream
// equivalent by extrapolating linearly from the latest sync. Offsets older
// than the latest sync cannot be translated; the consumer would need an older
// sync that is no longer retained.
func (s *OffsetSyncStore) TranslateDownstream(tp TopicPartition, upstreamOffset int64) (int64, bool) {
	sync, exists := s.Latest(tp)
	if !exists || upstreamOffset < sync.UpstreamOffset {
		return -1, false
	}
	return sync.DownstreamOffset + (upstreamOffset - sync.UpstreamOffset), true
}
