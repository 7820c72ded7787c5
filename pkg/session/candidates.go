package session

import "github.com/campair/campair/pkg/signal"

// candidateBuffer is the FIFO of remote candidates that arrived before a
// remote description existed for the current epoch. Enqueue appends; Drain
// removes and returns everything in arrival order, so each entry is applied
// exactly once. The buffer is owned by the controller's run loop and needs
// no locking of its own.
type candidateBuffer struct {
	items []signal.CandidateInit
}

// Enqueue appends a candidate.
func (b *candidateBuffer) Enqueue(candidate signal.CandidateInit) {
	b.items = append(b.items, candidate)
}

// Drain removes and returns all buffered candidates in arrival order.
func (b *candidateBuffer) Drain() []signal.CandidateInit {
	items := b.items
	b.items = nil
	return items
}

// Len returns the number of buffered candidates.
func (b *candidateBuffer) Len() int {
	return len(b.items)
}
