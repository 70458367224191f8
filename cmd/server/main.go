package main

import (
	"github.com/browsercluster/browsercluster/internal/app"
	"github.com/browsercluster/browsercluster/internal/config"
	"github.com/browsercluster/browsercluster/pkg/logger"
)

func main() {
	// Load configuration from config.toml
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration: %v", err)
	}

	// Create and run application
	application := app.NewApp(cfg)

	logger.Info("Browser cluster starting...")

	if err := application.Run(); err != nil {
		logger.Fatal("Server error: %v", err)
	}
}
