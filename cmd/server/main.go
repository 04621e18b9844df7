package main

import (
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/lynx-remote/backend/api/handlers"
	"github.com/lynx-remote/backend/internal/blob"
	"github.com/lynx-remote/backend/internal/db"
	"github.com/lynx-remote/backend/internal/presence"
	"github.com/lynx-remote/backend/internal/relay"
	"github.com/lynx-remote/backend/internal/repository"
	"github.com/lynx-remote/backend/internal/task"
)

func main() {
	// Get configuration from environment
	port := getEnv("PORT", "9991")
	dbPath := getEnv("DB_PATH", "data/lynx.db")
	screenshotDir := getEnv("SCREENSHOT_DIR", "data/screenshots")
	poolSize := getEnvInt("TASK_POOL_SIZE", 8)

	// Ensure data directories exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		log.Fatalf("Failed to create database directory: %v", err)
	}

	// Initialize database
	database, err := db.InitDB(dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.CloseDB()

	// Initialize repository
	deviceRepo := repository.NewDeviceRepository(database)

	// Initialize screenshot store
	screenshots, err := blob.NewStore(screenshotDir)
	if err != nil {
		log.Fatalf("Failed to initialize screenshot store: %v", err)
	}

	// Initialize background task queue for persistence and blob writes
	tasks, err := task.New(poolSize)
	if err != nil {
		log.Fatalf("Failed to initialize task queue: %v", err)
	}
	defer tasks.Release()

	// Initialize presence synchronizer and relay service
	presenceSync := presence.NewSynchronizer(deviceRepo, tasks)
	relayService := relay.NewService(presenceSync, screenshots, tasks)
	defer relayService.Close()

	// Initialize handlers
	deviceHandler := handlers.NewDeviceHandler(deviceRepo, relayService, screenshots)
	wsHandler := handlers.NewWebSocketHandler(relayService.Handler())

	// Initialize Gin router
	r := gin.Default()

	// Enable CORS for development
	r.Use(corsMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
		})
	})

	// Stored screenshot blobs
	r.Static("/api/screenshots", screenshotDir)

	// API routes
	api := r.Group("/api")
	{
		deviceHandler.RegisterRoutes(api)
		wsHandler.RegisterRoutes(api)
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Println("Shutting down server...")
		relayService.Close()
		tasks.Release()
		db.CloseDB()
		os.Exit(0)
	}()

	// Start server
	log.Printf("Starting server on port %s", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

// corsMiddleware returns a CORS middleware for development.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, PATCH, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
