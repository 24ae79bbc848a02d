package services

import (
	"sync"

	"downpour/types"
)

// ProgressUpdate is one delta pushed by a collaborator's progress callback.
type ProgressUpdate struct {
	ItemID   string
	Status   types.DownloadStatus // empty means "leave status alone"
	Progress float64
	Speed    *string
	ETA      *string
}

// ProgressBridge relays progress deltas from synchronous collaborator
// callbacks (running on whatever goroutine drives the subprocess) to the
// queue manager's consumer loop. Producers never block and never touch
// queue state; the consumer drains in FIFO order on a fixed interval.
type ProgressBridge struct {
	mu      sync.Mutex
	pending []ProgressUpdate
}

// NewProgressBridge creates an empty relay.
func NewProgressBridge() *ProgressBridge {
	return &ProgressBridge{}
}

// Push appends an update without blocking.
func (b *ProgressBridge) Push(u ProgressUpdate) {
	b.mu.Lock()
	b.pending = append(b.pending, u)
	b.mu.Unlock()
}

// Drain returns all queued updates in push order and resets the relay.
func (b *ProgressBridge) Drain() []ProgressUpdate {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.pending) == 0 {
		return nil
	}
	out := b.pending
	b.pending = nil
	return out
}

// CancelSet is the shared set of cancelled item ids. It carries its own lock
// because membership is checked inline on every progress callback, the
// hottest path in the system, and must never contend with the queue lock.
type CancelSet struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

// NewCancelSet creates an empty set.
func NewCancelSet() *CancelSet {
	return &CancelSet{ids: make(map[string]struct{})}
}

// Add marks an item cancelled.
func (s *CancelSet) Add(id string) {
	s.mu.Lock()
	s.ids[id] = struct{}{}
	s.mu.Unlock()
}

// Remove clears an item's cancellation flag (used by retry).
func (s *CancelSet) Remove(id string) {
	s.mu.Lock()
	delete(s.ids, id)
	s.mu.Unlock()
}

// Contains reports whether an item has been cancelled.
func (s *CancelSet) Contains(id string) bool {
	s.mu.Lock()
	_, ok := s.ids[id]
	s.mu.Unlock()
	return ok
}
