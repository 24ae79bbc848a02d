package services

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"downpour/types"
)

const (
	workerIdleInterval   = 1 * time.Second
	bridgeDrainInterval  = 100 * time.Millisecond
	subscriberBufferSize = 64
)

// ItemExecutor runs a single queue item end to end.
type ItemExecutor interface {
	Execute(ctx context.Context, item *types.QueueItem) (string, error)
}

// QueueManager interface defines the methods for managing the download queue
type QueueManager interface {
	Start(ctx context.Context)
	Add(req types.DownloadRequest) *types.QueueItem
	AddBatch(reqs []types.DownloadRequest) []*types.QueueItem
	Get(id string) (*types.QueueItem, bool)
	List() *types.QueueSnapshot
	Remove(id string) bool
	Cancel(id string) bool
	Retry(id string) bool
	ClearCompleted() int
	CancelAll() int
	Subscribe() chan types.QueueEvent
	Unsubscribe(ch chan types.QueueEvent)
}

// queueManager holds queue items in insertion order behind a single mutex.
// The cancelled-id set lives in its own finer lock so the pipeline can poll
// it mid-download without contending with queue operations.
type queueManager struct {
	mu          sync.Mutex
	items       map[string]*types.QueueItem
	order       []string
	subscribers map[chan types.QueueEvent]struct{}
	active      string

	executor ItemExecutor
	bridge   *ProgressBridge
	cancels  *CancelSet
}

// NewQueueManager creates a new queue manager
func NewQueueManager(executor ItemExecutor, bridge *ProgressBridge, cancels *CancelSet) QueueManager {
	return &queueManager{
		items:       make(map[string]*types.QueueItem),
		subscribers: make(map[chan types.QueueEvent]struct{}),
		executor:    executor,
		bridge:      bridge,
		cancels:     cancels,
	}
}

// Start launches the single worker loop and the progress drain loop.
func (m *queueManager) Start(ctx context.Context) {
	go m.runWorker(ctx)
	go m.runBridgeConsumer(ctx)
}

// Add queues a new download
func (m *queueManager) Add(req types.DownloadRequest) *types.QueueItem {
	item := &types.QueueItem{
		ID:            uuid.New().String(),
		VideoID:       req.VideoID,
		URL:           req.URL,
		Title:         req.Title,
		Thumbnail:     req.Thumbnail,
		FormatID:      req.FormatID,
		FormatLabel:   req.FormatLabel,
		IsAudioOnly:   req.IsAudioOnly,
		AudioQuality:  req.AudioQuality,
		AudioCodec:    req.AudioCodec,
		SendToLibrary: req.SendToLibrary,
		ConvertVideo:  req.ConvertVideo,
		Status:        types.StatusQueued,
		CreatedAt:     time.Now(),
	}

	m.mu.Lock()
	m.items[item.ID] = item
	m.order = append(m.order, item.ID)
	clone := item.Clone()
	m.broadcastLocked(types.QueueEvent{Type: types.EventItemUpdate, Item: clone})
	m.mu.Unlock()
	return clone
}

// AddBatch queues several downloads in request order
func (m *queueManager) AddBatch(reqs []types.DownloadRequest) []*types.QueueItem {
	items := make([]*types.QueueItem, 0, len(reqs))
	for _, req := range reqs {
		items = append(items, m.Add(req))
	}
	return items
}

// Get retrieves a queue item by ID
func (m *queueManager) Get(id string) (*types.QueueItem, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, exists := m.items[id]
	if !exists {
		return nil, false
	}
	return item.Clone(), true
}

// List returns all items in insertion order with aggregate counts
func (m *queueManager) List() *types.QueueSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *queueManager) snapshotLocked() *types.QueueSnapshot {
	snap := &types.QueueSnapshot{Items: make([]*types.QueueItem, 0, len(m.order))}
	for _, id := range m.order {
		item := m.items[id]
		snap.Items = append(snap.Items, item.Clone())
		switch item.Status {
		case types.StatusDownloading, types.StatusProcessing:
			snap.ActiveDownloads++
		case types.StatusCompleted:
			snap.CompletedCount++
		case types.StatusFailed:
			snap.FailedCount++
		}
	}
	return snap
}

// Remove deletes an item from the queue, cancelling it first if in flight
func (m *queueManager) Remove(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, exists := m.items[id]
	if !exists {
		return false
	}
	if item.Status == types.StatusDownloading || item.Status == types.StatusProcessing {
		m.cancels.Add(id)
		item.Status = types.StatusCancelled
	}

	clone := item.Clone()
	delete(m.items, id)
	for i, ordered := range m.order {
		if ordered == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.broadcastLocked(types.QueueEvent{Type: types.EventItemUpdate, Item: clone, Removed: true})
	return true
}

// Cancel cancels a queued or downloading item. Post-processing items are
// only cancellable in bulk through CancelAll.
func (m *queueManager) Cancel(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, exists := m.items[id]
	if !exists || item.Status == types.StatusProcessing {
		return false
	}
	return m.cancelLocked(item)
}

func (m *queueManager) cancelLocked(item *types.QueueItem) bool {
	switch item.Status {
	case types.StatusQueued:
		// Never picked up by the worker; no subprocess to stop.
		now := time.Now()
		item.CompletedAt = &now
	case types.StatusDownloading, types.StatusProcessing:
		// The worker observes the set and kills the subprocess at its
		// next progress line; the status flips now so observers see the
		// cancellation without waiting for that.
		m.cancels.Add(item.ID)
	default:
		return false
	}
	item.Status = types.StatusCancelled
	m.broadcastLocked(types.QueueEvent{Type: types.EventItemUpdate, Item: item.Clone()})
	return true
}

// Retry requeues a failed or cancelled item
func (m *queueManager) Retry(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, exists := m.items[id]
	if !exists {
		return false
	}
	if item.Status != types.StatusFailed && item.Status != types.StatusCancelled {
		return false
	}

	m.cancels.Remove(id)
	item.Status = types.StatusQueued
	item.Progress = 0
	item.Speed = nil
	item.ETA = nil
	item.Error = nil
	item.CompletedAt = nil
	item.FilePath = nil
	m.broadcastLocked(types.QueueEvent{Type: types.EventItemUpdate, Item: item.Clone()})
	return true
}

// ClearCompleted removes all completed items and returns how many were
// removed. Failed and cancelled items stay because they are retry-eligible.
func (m *queueManager) ClearCompleted() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	var kept []string
	removed := 0
	for _, id := range m.order {
		if m.items[id].Status == types.StatusCompleted {
			delete(m.items, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	m.order = kept
	if removed > 0 {
		m.broadcastLocked(types.QueueEvent{Type: types.EventFullUpdate, Queue: m.snapshotLocked()})
	}
	return removed
}

// CancelAll cancels every queued and in-flight item
func (m *queueManager) CancelAll() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cancelled := 0
	for _, id := range m.order {
		if m.cancelLocked(m.items[id]) {
			cancelled++
		}
	}
	return cancelled
}

// Subscribe registers a new event subscriber channel
func (m *queueManager) Subscribe() chan types.QueueEvent {
	ch := make(chan types.QueueEvent, subscriberBufferSize)
	m.mu.Lock()
	m.subscribers[ch] = struct{}{}
	m.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber channel
func (m *queueManager) Unsubscribe(ch chan types.QueueEvent) {
	m.mu.Lock()
	delete(m.subscribers, ch)
	m.mu.Unlock()
}

// broadcastLocked fans an event out to all subscribers. A subscriber whose
// buffer is full loses the event rather than blocking the queue lock.
func (m *queueManager) broadcastLocked(ev types.QueueEvent) {
	for ch := range m.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}

// runWorker processes queued items one at a time, rescanning when idle.
func (m *queueManager) runWorker(ctx context.Context) {
	ticker := time.NewTicker(workerIdleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for m.processNext(ctx) {
				// Drain ready items back to back before idling again.
				if ctx.Err() != nil {
					return
				}
			}
		}
	}
}

// processNext claims the oldest queued item and runs it to a terminal state.
// Returns false when the queue had nothing to do.
func (m *queueManager) processNext(ctx context.Context) bool {
	m.mu.Lock()
	var item *types.QueueItem
	for _, id := range m.order {
		if candidate := m.items[id]; candidate.Status == types.StatusQueued {
			item = candidate
			break
		}
	}
	if item == nil {
		m.mu.Unlock()
		return false
	}

	item.Status = types.StatusDownloading
	item.Progress = 0
	m.active = item.ID
	claimed := item.Clone()
	m.broadcastLocked(types.QueueEvent{Type: types.EventItemUpdate, Item: claimed})
	m.mu.Unlock()

	path, err := m.executor.Execute(ctx, claimed)
	m.finishItem(claimed.ID, path, err)
	return true
}

// finishItem records the terminal state of an executed item.
func (m *queueManager) finishItem(id, path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.active = ""
	wasCancelled := m.cancels.Contains(id)
	m.cancels.Remove(id)

	item, exists := m.items[id]
	if !exists {
		// Removed mid-flight; nothing left to report.
		return
	}

	now := time.Now()
	item.CompletedAt = &now
	item.Speed = nil
	item.ETA = nil

	switch {
	case wasCancelled || IsCancelled(err):
		item.Status = types.StatusCancelled
		log.Printf("Download %s cancelled", id)
	case err != nil:
		item.Status = types.StatusFailed
		msg := err.Error()
		item.Error = &msg
		log.Printf("Download %s failed: %v", id, err)
	default:
		item.Status = types.StatusCompleted
		item.Progress = 100
		item.FilePath = &path
		log.Printf("Download %s completed: %s", id, path)
	}
	m.broadcastLocked(types.QueueEvent{Type: types.EventItemUpdate, Item: item.Clone()})
}

// runBridgeConsumer drains pipeline progress updates into queue items.
func (m *queueManager) runBridgeConsumer(ctx context.Context) {
	ticker := time.NewTicker(bridgeDrainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.applyProgress(m.bridge.Drain())
		}
	}
}

// applyProgress folds drained updates into their items and broadcasts one
// event per touched item. Progress never decreases within a status span.
func (m *queueManager) applyProgress(updates []ProgressUpdate) {
	if len(updates) == 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	touched := make(map[string]bool)
	var touchedOrder []string
	for _, u := range updates {
		item, exists := m.items[u.ItemID]
		if !exists || item.Status.Terminal() {
			continue
		}

		status := u.Status
		if status == "" {
			status = item.Status
		}
		// Drop stale same-status updates from before one already applied.
		if status != item.Status || u.Progress >= item.Progress {
			item.Status = status
			item.Progress = u.Progress
		}
		item.Speed = u.Speed
		item.ETA = u.ETA

		if !touched[u.ItemID] {
			touched[u.ItemID] = true
			touchedOrder = append(touchedOrder, u.ItemID)
		}
	}
	for _, id := range touchedOrder {
		m.broadcastLocked(types.QueueEvent{Type: types.EventItemUpdate, Item: m.items[id].Clone()})
	}
}
