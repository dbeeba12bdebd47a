package events

import (
	"sync"

	"github.com/segmentio/kafka-go"
)

type partitionKey struct {
	topic     string
	partition int
}

// offsetTracker orders commits for messages that finish out of order. A
// partition's offset only advances past messages that have all finished.
type offsetTracker struct {
	mu         sync.Mutex
	partitions map[partitionKey]*partitionOffsets
}

type partitionOffsets struct {
	// pending holds fetched offsets in fetch order, which is ascending.
	pending []int64
	done    map[int64]kafka.Message
}

func newOffsetTracker() *offsetTracker {
	return &offsetTracker{partitions: make(map[partitionKey]*partitionOffsets)}
}

func (t *offsetTracker) partition(msg kafka.Message) *partitionOffsets {
	key := partitionKey{topic: msg.Topic, partition: msg.Partition}
	p, ok := t.partitions[key]
	if !ok {
		p = &partitionOffsets{done: make(map[int64]kafka.Message)}
		t.partitions[key] = p
	}
	return p
}

// track registers a fetched message before it is handed to a worker.
func (t *offsetTracker) track(msg kafka.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := t.partition(msg)
	p.pending = append(p.pending, msg.Offset)
}

// forget drops a tracked message that was never dispatched.
func (t *offsetTracker) forget(msg kafka.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := t.partition(msg)
	for i, off := range p.pending {
		if off == msg.Offset {
			p.pending = append(p.pending[:i], p.pending[i+1:]...)
			break
		}
	}
	delete(p.done, msg.Offset)
}

// complete marks msg finished and returns the last message of the finished
// prefix of its partition. ok is false when an earlier message is still
// in flight.
func (t *offsetTracker) complete(msg kafka.Message) (kafka.Message, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := t.partition(msg)
	p.done[msg.Offset] = msg

	var last kafka.Message
	advanced := false
	for len(p.pending) > 0 {
		m, ok := p.done[p.pending[0]]
		if !ok {
			break
		}
		delete(p.done, p.pending[0])
		p.pending = p.pending[1:]
		last, advanced = m, true
	}
	return last, advanced
}
