package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// ServerConfig contains all of the server settings
type ServerConfig struct {
	ListenAddrIP      string
	ListenAddrPort    string
	DatabaseType      string
	DatabaseHost      string
	DatabasePort      string
	DatabaseUser      string
	DatabasePassword  string
	DatabaseDbname    string
	DatabaseSslmode   string
	StoragePath       string // absolute path for uploaded PDFs
	RenderPath        string // absolute path for rendered page output
	RenderWidth       int    // default output width in pixels
	ThumbnailWidth    int
	RenderBackend     string // pdfium or fitz
	JobRetentionHours int
	PurgeInterval     int // minutes between purge runs
	UseReverseProxy   bool
	BaseURL           string
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	boolVal, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return boolVal
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intVal, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intVal
}

// SetupServer loads configuration and returns ServerConfig and Logger
func SetupServer() (ServerConfig, *slog.Logger) {
	serverConfigLive := ServerConfig{}

	// Load .env file (silently ignore if doesn't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load("config.env")

	logger := setupLogging()
	Logger = logger

	// Server configuration
	serverConfigLive.ListenAddrPort = getEnv("SERVER_PORT", "8000")
	serverConfigLive.ListenAddrIP = getEnv("SERVER_ADDR", "")

	// Database configuration
	serverConfigLive.DatabaseType = getEnv("DATABASE_TYPE", "sqlite")
	serverConfigLive.DatabaseHost = getEnv("DATABASE_HOST", "localhost")
	serverConfigLive.DatabasePort = getEnv("DATABASE_PORT", "5432")
	serverConfigLive.DatabaseUser = getEnv("DATABASE_USER", "pdfbridge")
	serverConfigLive.DatabasePassword = getEnv("DATABASE_PASSWORD", "")
	serverConfigLive.DatabaseDbname = getEnv("DATABASE_NAME", "pdfbridge")
	serverConfigLive.DatabaseSslmode = getEnv("DATABASE_SSLMODE", "")

	logger.Info("Database configuration loaded", "type", serverConfigLive.DatabaseType)

	fmt.Println("\n========================================")
	fmt.Println("   pdfbridge - PDF Rendering Service")
	fmt.Println("========================================")
	fmt.Printf("Server will start on: %s:%s\n", serverConfigLive.ListenAddrIP, serverConfigLive.ListenAddrPort)
	if serverConfigLive.ListenAddrIP == "" {
		fmt.Println("(Listening on all network interfaces)")
	}
	fmt.Printf("Detailed logs: %s\n", getEnv("LOG_FILE", "pdfbridge.log"))
	fmt.Println("Initializing...")

	// Storage configuration
	storageDir := filepath.ToSlash(getEnv("STORAGE_PATH", "storage"))
	storageDirAbs, err := filepath.Abs(storageDir)
	if err != nil {
		logger.Error("Failed creating absolute path for storage directory", "error", err)
	}
	serverConfigLive.StoragePath = storageDirAbs

	renderDir := filepath.ToSlash(getEnv("RENDER_PATH", "renders"))
	renderDirAbs, err := filepath.Abs(renderDir)
	if err != nil {
		logger.Error("Failed creating absolute path for render directory", "error", err)
	}
	serverConfigLive.RenderPath = renderDirAbs

	// Rendering configuration
	serverConfigLive.RenderWidth = getEnvInt("RENDER_WIDTH", 1024)
	if serverConfigLive.RenderWidth <= 0 {
		logger.Warn("RENDER_WIDTH must be positive, using default", "value", serverConfigLive.RenderWidth)
		serverConfigLive.RenderWidth = 1024
	}
	serverConfigLive.ThumbnailWidth = getEnvInt("THUMBNAIL_WIDTH", 256)
	if serverConfigLive.ThumbnailWidth <= 0 {
		logger.Warn("THUMBNAIL_WIDTH must be positive, using default", "value", serverConfigLive.ThumbnailWidth)
		serverConfigLive.ThumbnailWidth = 256
	}
	serverConfigLive.RenderBackend = normalizeBackend(getEnv("RENDER_BACKEND", "pdfium"), logger)

	// Job housekeeping configuration
	serverConfigLive.JobRetentionHours = getEnvInt("JOB_RETENTION_HOURS", 24)
	serverConfigLive.PurgeInterval = getEnvInt("PURGE_INTERVAL", 60)

	// Reverse proxy configuration
	serverConfigLive.UseReverseProxy = getEnvBool("PROXY_ENABLED", false)
	serverConfigLive.BaseURL = getEnv("BASE_URL", "")

	if serverConfigLive.UseReverseProxy {
		logger.Info("Using Reverse Proxy", "baseURL", serverConfigLive.BaseURL)
	} else {
		logger.Info("Using relative URLs in render manifests")
	}

	logger.Info("About to setup database", "type", serverConfigLive.DatabaseType)

	return serverConfigLive, logger
}

// setupLogging configures the application logger
func setupLogging() *slog.Logger {
	logLevel := getEnv("LOG_LEVEL", "debug")
	var level slog.Level

	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelDebug
	}

	handlerOptions := &slog.HandlerOptions{Level: level}

	logOutput := getEnv("LOG_OUTPUT", "file")
	var logWriter io.Writer

	if logOutput == "stdout" {
		logWriter = os.Stdout
	} else {
		logPath, err := filepath.Abs(filepath.ToSlash(getEnv("LOG_FILE", "pdfbridge.log")))
		if err != nil {
			fmt.Printf("Error creating log file path: %v\n", err)
			logWriter = os.Stdout
		} else {
			logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
			if err != nil {
				fmt.Printf("Failed to open log file: %v\n", err)
				logWriter = os.Stdout
			} else {
				logWriter = logFile
				fmt.Println("Logging to file: ", logPath)
			}
		}
	}

	handler := slog.NewTextHandler(logWriter, handlerOptions)
	return slog.New(handler)
}

// normalizeBackend validates the configured render backend, falling back to
// pdfium for anything it does not recognize
func normalizeBackend(backend string, logger *slog.Logger) string {
	switch backend {
	case "pdfium", "fitz":
		return backend
	default:
		logger.Warn("Unknown render backend, using pdfium", "backend", backend)
		return "pdfium"
	}
}
