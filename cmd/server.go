package cmd

import (
	"context"
	"log"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"

	"downpour/config"
	"downpour/handlers"
	"downpour/middleware"
	"downpour/services"
	"downpour/websocket"
)

// StartWebServer starts the web server
func StartWebServer(port int) {
	// Set production mode if not specified
	if mode := os.Getenv("GIN_MODE"); mode != "" {
		gin.SetMode(mode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()

	// Initialize services
	hub := websocket.NewHub()
	go hub.Run()

	extractor := services.NewYTDLPService(config.GetYTDLPPath())
	transcoder := services.NewTranscodeEngine(config.GetFFmpegPath(), config.GetFFprobePath())
	tagger := services.NewFFmpegTagger(config.GetFFmpegPath())
	library := services.NewLibraryService()

	mounts := services.NewMountGuard(config.GetDownloadDir(), config.GetMusicDir(), config.GetMoviesDir())
	go mounts.RunHealthMonitor(ctx)

	planner := services.NewPlacementPlanner(config.GetDownloadDir(), config.GetMusicDir(), config.GetMoviesDir())
	bridge := services.NewProgressBridge()
	cancels := services.NewCancelSet()
	pipeline := services.NewPipeline(extractor, transcoder, tagger, planner, mounts, bridge, cancels)

	queue := services.NewQueueManager(pipeline, bridge, cancels)
	queue.Start(ctx)

	// Pump queue events into the websocket hub
	events := queue.Subscribe()
	go func() {
		for event := range events {
			hub.Broadcast(event)
		}
	}()

	// Initialize handlers
	downloadHandler := handlers.NewDownloadHandler(queue, extractor)
	queueHandler := handlers.NewQueueHandler(queue, hub)
	fileHandler := handlers.NewFileHandler(library)
	healthHandler := handlers.NewHealthHandler(mounts)
	settingsHandler := handlers.NewSettingsHandler()

	// Setup router
	r := gin.Default()

	// Apply middleware
	r.Use(middleware.CORS())
	r.Use(middleware.Logging())
	r.Use(middleware.Security())

	// Setup routes
	setupRoutes(r, downloadHandler, queueHandler, fileHandler, healthHandler, settingsHandler)

	// Start server
	portStr := strconv.Itoa(port)
	if serverPort := os.Getenv("SERVER_PORT"); serverPort != "" {
		portStr = serverPort
	}

	log.Printf("Downpour web server starting on port %s", portStr)
	if err := r.Run(":" + portStr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// setupRoutes configures all the HTTP routes
func setupRoutes(r *gin.Engine, downloadHandler *handlers.DownloadHandler, queueHandler *handlers.QueueHandler, fileHandler *handlers.FileHandler, healthHandler *handlers.HealthHandler, settingsHandler *handlers.SettingsHandler) {
	// Health check endpoint
	r.GET("/health", healthHandler.HealthCheck)

	// API routes group
	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/status", healthHandler.APIStatus)

		// Analysis and download queueing
		apiGroup.POST("/analyze", downloadHandler.Analyze)
		apiGroup.POST("/download", downloadHandler.QueueDownload)
		apiGroup.POST("/download/batch", downloadHandler.QueueBatch)

		// Queue Management Endpoints
		queueGroup := apiGroup.Group("/queue")
		{
			queueGroup.GET("", queueHandler.GetQueue)
			queueGroup.DELETE("/:id", queueHandler.RemoveItem)
			queueGroup.POST("/:id/cancel", queueHandler.CancelItem)
			queueGroup.POST("/:id/retry", queueHandler.RetryItem)
			queueGroup.POST("/clear-completed", queueHandler.ClearCompleted)
			queueGroup.POST("/cancel-all", queueHandler.CancelAll)
		}

		// WebSocket endpoint for real-time queue events
		wsGroup := apiGroup.Group("/ws")
		{
			wsGroup.GET("/queue", queueHandler.HandleWebSocket)
		}

		// File discovery, item download and streaming endpoints
		apiGroup.GET("/files", fileHandler.ListFiles)
		apiGroup.GET("/files/stream/*filepath", fileHandler.StreamFile)
		apiGroup.GET("/files/:itemId", downloadHandler.GetItemFile)

		// Settings endpoints
		apiGroup.GET("/settings", settingsHandler.GetSettings)
		apiGroup.POST("/settings", settingsHandler.UpdateSettings)
	}
}
