package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"downpour/config"
	"downpour/services"
)

// HealthHandler handles health check endpoints
type HealthHandler struct {
	mounts *services.MountGuard
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(mounts *services.MountGuard) *HealthHandler {
	return &HealthHandler{mounts: mounts}
}

// HealthCheck returns the health status of the service
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   "downpour",
		"version":   "1.0.0",
		"timestamp": time.Now().Unix(),
	})
}

// APIStatus returns the status of the API and its storage roots
func (h *HealthHandler) APIStatus(c *gin.Context) {
	downloadDir := config.GetDownloadDir()
	musicDir := config.GetMusicDir()
	moviesDir := config.GetMoviesDir()

	c.JSON(http.StatusOK, gin.H{
		"message":      "Downpour API is running",
		"download_dir": downloadDir,
		"music_dir":    musicDir,
		"movies_dir":   moviesDir,
		"mounts": gin.H{
			"download_dir": h.mounts.Probe(downloadDir),
			"music_dir":    h.mounts.Probe(musicDir),
			"movies_dir":   h.mounts.Probe(moviesDir),
		},
	})
}
