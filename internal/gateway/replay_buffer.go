package gateway

import "github.com/is42day/binance-trading-agent-sub000/internal/ringbuf"

// replayEntry holds a single broadcast envelope for replay.
type replayEntry struct {
	Seq     int64
	Channel string
	Data    []byte // pre-built envelope JSON
}

// ReplayBuffer keeps the most recent envelopes so clients that connect
// late, or reconnect after a gap, can catch up.
type ReplayBuffer struct {
	ring *ringbuf.Ring[replayEntry]
}

// NewReplayBuffer creates a replay buffer with the given capacity.
func NewReplayBuffer(capacity int) *ReplayBuffer {
	if capacity <= 0 {
		capacity = 500
	}
	return &ReplayBuffer{ring: ringbuf.New[replayEntry](capacity)}
}

// Push appends an envelope to the buffer. Overwrites oldest entry when full.
func (rb *ReplayBuffer) Push(seq int64, channel string, data []byte) {
	rb.ring.Push(replayEntry{Seq: seq, Channel: channel, Data: data})
}

// Range returns all entries with seq in [fromSeq, toSeq] (inclusive),
// in seq order.
func (rb *ReplayBuffer) Range(fromSeq, toSeq int64) []replayEntry {
	var result []replayEntry
	for _, e := range rb.ring.Snapshot() {
		if e.Seq >= fromSeq && e.Seq <= toSeq {
			result = append(result, e)
		}
	}
	return result
}

// Len returns the number of entries currently in the buffer.
func (rb *ReplayBuffer) Len() int { return rb.ring.Len() }
