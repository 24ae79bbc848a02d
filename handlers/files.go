package handlers

import (
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"downpour/config"
	"downpour/services"
)

// FileHandler handles media file discovery and streaming endpoints
type FileHandler struct {
	library services.LibraryService
}

// NewFileHandler creates a new file handler
func NewFileHandler(library services.LibraryService) *FileHandler {
	return &FileHandler{
		library: library,
	}
}

// ListFiles returns all discovered media files under the download directory
func (h *FileHandler) ListFiles(c *gin.Context) {
	root := config.GetDownloadDir()

	files, err := h.library.ScanMediaFiles(root)
	if err != nil {
		log.Printf("Error scanning media files: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "failed to scan files",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"files": files,
		"count": len(files),
	})
}

// StreamFile streams a media file with range request support
func (h *FileHandler) StreamFile(c *gin.Context) {
	requestedPath := strings.TrimPrefix(c.Param("filepath"), "/")

	if err := h.library.ValidateFilePath(requestedPath); err != nil {
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "path security violation",
			"details": err.Error(),
		})
		return
	}

	contentType := h.library.GetContentType(requestedPath)
	if contentType == "application/octet-stream" {
		c.JSON(http.StatusForbidden, gin.H{
			"error": "file extension not allowed",
		})
		return
	}

	root := config.GetDownloadDir()
	fullPath := filepath.Join(root, requestedPath)

	// Resolved path must stay inside the download directory.
	absRoot, err := filepath.Abs(root)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "server configuration error",
		})
		return
	}
	absRequest, err := filepath.Abs(fullPath)
	if err != nil || !strings.HasPrefix(absRequest, absRoot) {
		c.JSON(http.StatusForbidden, gin.H{
			"error": "path traversal not allowed",
		})
		return
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "file not found",
				"path":  requestedPath,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "file access error",
			"details": err.Error(),
		})
		return
	}
	if info.IsDir() {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "path is a directory, not a file",
		})
		return
	}

	file, err := os.Open(fullPath)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "failed to open file",
			"details": err.Error(),
		})
		return
	}
	defer file.Close()

	c.Header("Content-Type", contentType)
	c.Header("Cache-Control", "public, max-age=3600")
	// ServeContent handles Range headers for seeking.
	http.ServeContent(c.Writer, c.Request, info.Name(), info.ModTime(), file)
}
