package stream

import (
	"errors"

	"github.com/tsvnode/vnode-core/queryop"
)

// ErrQueueOutOfMemory signals output backpressure (spec section 7):
// the caller must destroy the block it was about to send and retry
// later rather than treat this as a terminal error.
var ErrQueueOutOfMemory = errors.New("stream: output queue out of memory")

// StreamDataBlock is the spec section 3.2 Stream Data Block: a batch of
// result blocks a task dumps downstream in one call.
type StreamDataBlock struct {
	SourceVer int64
	Blocks    []*queryop.DataBlock
}

// OutputSink is the downstream queue a task dumps result batches into.
type OutputSink interface {
	Send(block *StreamDataBlock) error
}

// ChannelSink is a bounded in-memory sink grounded on the spec's
// QUEUE_OUT_OF_MEMORY backpressure signal: once its channel buffer is
// full, Send reports ErrQueueOutOfMemory instead of blocking.
type ChannelSink struct {
	ch chan *StreamDataBlock
}

func NewChannelSink(capacity int) *ChannelSink {
	return &ChannelSink{ch: make(chan *StreamDataBlock, capacity)}
}

func (c *ChannelSink) Send(block *StreamDataBlock) error {
	select {
	case c.ch <- block:
		return nil
	default:
		return ErrQueueOutOfMemory
	}
}

// Recv drains one pending block, used by a downstream task's own input
// adapter or by tests.
func (c *ChannelSink) Recv() (*StreamDataBlock, bool) {
	select {
	case b := <-c.ch:
		return b, true
	default:
		return nil, false
	}
}
