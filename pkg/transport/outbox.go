package transport

import "sync"

// DefaultOutboxLimit is the default capacity of the pre-connect outbox.
const DefaultOutboxLimit = 256

// Outbox is a bounded FIFO of payloads awaiting a live connection.
//
// Enqueue appends; Drain removes and returns everything in original enqueue
// order. When full, the oldest payload is dropped: a stale signaling message
// is superseded by a later one, so dropping from the head loses the least.
type Outbox struct {
	mu      sync.Mutex
	items   [][]byte
	limit   int
	dropped uint64
}

// NewOutbox creates an Outbox. A non-positive limit selects DefaultOutboxLimit.
func NewOutbox(limit int) *Outbox {
	if limit <= 0 {
		limit = DefaultOutboxLimit
	}
	return &Outbox{limit: limit}
}

// Enqueue appends a payload, dropping the oldest entry if the outbox is full.
func (o *Outbox) Enqueue(payload []byte) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if len(o.items) >= o.limit {
		o.items = o.items[1:]
		o.dropped++
	}
	o.items = append(o.items, payload)
}

// Drain removes and returns all buffered payloads in enqueue order.
func (o *Outbox) Drain() [][]byte {
	o.mu.Lock()
	defer o.mu.Unlock()

	items := o.items
	o.items = nil
	return items
}

// Len returns the number of buffered payloads.
func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.items)
}

// Dropped returns the number of payloads discarded due to overflow.
func (o *Outbox) Dropped() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.dropped
}
