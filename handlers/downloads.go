package handlers

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"downpour/services"
	"downpour/types"
)

// DownloadHandler handles analysis and download queueing endpoints
type DownloadHandler struct {
	queue     services.QueueManager
	extractor services.Extractor
}

// NewDownloadHandler creates a new download handler
func NewDownloadHandler(queue services.QueueManager, extractor services.Extractor) *DownloadHandler {
	return &DownloadHandler{
		queue:     queue,
		extractor: extractor,
	}
}

// Analyze inspects a URL without downloading it
func (h *DownloadHandler) Analyze(c *gin.Context) {
	var req types.AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "url is required",
		})
		return
	}

	result, err := h.extractor.Analyze(c.Request.Context(), req.URL)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "failed to analyze URL",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, result)
}

// QueueDownload queues a single download
func (h *DownloadHandler) QueueDownload(c *gin.Context) {
	var req types.DownloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "url and title are required",
		})
		return
	}

	item := h.queue.Add(req)
	c.JSON(http.StatusCreated, gin.H{
		"message": "Download queued successfully",
		"item":    item,
	})
}

// BatchRequest is the payload for queueing several downloads at once
type BatchRequest struct {
	Items []types.DownloadRequest `json:"items" binding:"required,min=1,dive"`
}

// QueueBatch queues several downloads in request order
func (h *DownloadHandler) QueueBatch(c *gin.Context) {
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "items array is required and every item needs url and title",
		})
		return
	}

	items := h.queue.AddBatch(req.Items)
	c.JSON(http.StatusCreated, gin.H{
		"message": "Batch queued successfully",
		"queued":  len(items),
		"items":   items,
	})
}

// GetItemFile serves the finished file of a completed queue item
func (h *DownloadHandler) GetItemFile(c *gin.Context) {
	itemID := c.Param("itemId")
	item, exists := h.queue.Get(itemID)
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "item not found",
		})
		return
	}
	if item.Status != types.StatusCompleted || item.FilePath == nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "item has no finished file",
		})
		return
	}
	if _, err := os.Stat(*item.FilePath); err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "file no longer exists on disk",
		})
		return
	}

	c.FileAttachment(*item.FilePath, filepath.Base(*item.FilePath))
}
