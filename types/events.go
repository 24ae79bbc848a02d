package types

// QueueEvent is the envelope broadcast to subscribers.
// Two shapes are emitted: item_update carries Item/Removed,
// full_update carries Queue.
type QueueEvent struct {
	Type    string         `json:"type"` // "item_update" or "full_update"
	Item    *QueueItem     `json:"item,omitempty"`
	Removed bool           `json:"removed,omitempty"`
	Queue   *QueueSnapshot `json:"queue,omitempty"`
}

const (
	EventItemUpdate = "item_update"
	EventFullUpdate = "full_update"
)
