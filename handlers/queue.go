package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"downpour/services"
	"downpour/types"
	"downpour/websocket"
)

// QueueHandler handles queue management and the event stream endpoint
type QueueHandler struct {
	queue services.QueueManager
	hub   websocket.Hub
}

// NewQueueHandler creates a new queue handler
func NewQueueHandler(queue services.QueueManager, hub websocket.Hub) *QueueHandler {
	return &QueueHandler{
		queue: queue,
		hub:   hub,
	}
}

// GetQueue returns the full queue state
func (h *QueueHandler) GetQueue(c *gin.Context) {
	c.JSON(http.StatusOK, h.queue.List())
}

// RemoveItem deletes an item, cancelling it first if in flight
func (h *QueueHandler) RemoveItem(c *gin.Context) {
	if !h.queue.Remove(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "item not found",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "item removed",
	})
}

// CancelItem cancels a queued or downloading item
func (h *QueueHandler) CancelItem(c *gin.Context) {
	if !h.queue.Cancel(c.Param("id")) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "item cannot be cancelled (not found, finished or post-processing)",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "item cancelled",
	})
}

// RetryItem requeues a failed or cancelled item
func (h *QueueHandler) RetryItem(c *gin.Context) {
	if !h.queue.Retry(c.Param("id")) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "item cannot be retried (not found or not in a failed state)",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "item requeued",
	})
}

// ClearCompleted removes all finished items from the queue
func (h *QueueHandler) ClearCompleted(c *gin.Context) {
	removed := h.queue.ClearCompleted()
	c.JSON(http.StatusOK, gin.H{
		"message": "completed items cleared",
		"removed": removed,
	})
}

// CancelAll cancels every queued and in-flight item
func (h *QueueHandler) CancelAll(c *gin.Context) {
	cancelled := h.queue.CancelAll()
	c.JSON(http.StatusOK, gin.H{
		"message":   "all items cancelled",
		"cancelled": cancelled,
	})
}

// HandleWebSocket upgrades the connection and streams queue events. The
// first frame is always a full queue snapshot.
func (h *QueueHandler) HandleWebSocket(c *gin.Context) {
	upgrader := websocket.GetUpgrader()
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	client := websocket.NewClient(h.hub, conn)
	h.hub.RegisterClient(client)
	client.Send(types.QueueEvent{
		Type:  types.EventFullUpdate,
		Queue: h.queue.List(),
	})
	client.StartPumps()
}
