package engine

import (
	"fmt"
	"os"

	"github.com/drummonds/pdfbridge/config"
)

// StartupChecks performs all the checks to make sure everything works
func (serverHandler *ServerHandler) StartupChecks() error {
	serverConfig := serverHandler.ServerConfig
	renderBackendChecks(serverConfig)
	if err := storageDirectoryChecks(serverConfig); err != nil {
		return err
	}
	if err := renderDirectoryChecks(serverConfig); err != nil {
		return err
	}
	return nil
}

// renderBackendChecks logs which rendering backend is active
func renderBackendChecks(serverConfig config.ServerConfig) error {
	switch serverConfig.RenderBackend {
	case "fitz":
		Logger.Info("Using the MuPDF render backend; the binary must be built with CGo")
	default:
		Logger.Info("Using the PDFium WebAssembly render backend (pure Go, no CGo)")
	}
	return nil
}

// storageDirectoryChecks ensures the upload storage directory exists
func storageDirectoryChecks(serverConfig config.ServerConfig) error {
	if serverConfig.StoragePath == "" {
		Logger.Warn("Storage path not configured")
		return nil
	}

	// Check if directory exists
	storageInfo, err := os.Stat(serverConfig.StoragePath)
	if err != nil {
		if os.IsNotExist(err) {
			// Create the directory
			Logger.Info("Creating storage directory", "path", serverConfig.StoragePath)
			err = os.MkdirAll(serverConfig.StoragePath, 0755)
			if err != nil {
				Logger.Error("Failed to create storage directory", "path", serverConfig.StoragePath, "error", err)
				return err
			}
			Logger.Info("Storage directory created successfully", "path", serverConfig.StoragePath)
			return nil
		}
		Logger.Error("Error checking storage directory", "path", serverConfig.StoragePath, "error", err)
		return err
	}

	// Check if it's actually a directory
	if !storageInfo.IsDir() {
		Logger.Error("Storage path exists but is not a directory", "path", serverConfig.StoragePath)
		return fmt.Errorf("storage path is not a directory: %s", serverConfig.StoragePath)
	}

	Logger.Info("Storage directory exists", "path", serverConfig.StoragePath)
	return nil
}

// renderDirectoryChecks ensures the render output directory exists
func renderDirectoryChecks(serverConfig config.ServerConfig) error {
	if serverConfig.RenderPath == "" {
		Logger.Warn("Render path not configured")
		return nil
	}

	// Check if directory exists
	renderInfo, err := os.Stat(serverConfig.RenderPath)
	if err != nil {
		if os.IsNotExist(err) {
			// Create the directory
			Logger.Info("Creating render directory", "path", serverConfig.RenderPath)
			err = os.MkdirAll(serverConfig.RenderPath, 0755)
			if err != nil {
				Logger.Error("Failed to create render directory", "path", serverConfig.RenderPath, "error", err)
				return err
			}
			Logger.Info("Render directory created successfully", "path", serverConfig.RenderPath)
			return nil
		}
		Logger.Error("Error checking render directory", "path", serverConfig.RenderPath, "error", err)
		return err
	}

	// Check if it's actually a directory
	if !renderInfo.IsDir() {
		Logger.Error("Render path exists but is not a directory", "path", serverConfig.RenderPath)
		return fmt.Errorf("render path is not a directory: %s", serverConfig.RenderPath)
	}

	Logger.Info("Render directory exists", "path", serverConfig.RenderPath)
	return nil
}
