package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"signal-relay/src/config"
	"signal-relay/src/interfaces"
	"signal-relay/src/logger"
	"signal-relay/src/network"
	"signal-relay/src/notify"
	"signal-relay/src/queue"
	"signal-relay/src/server"
	signalsvc "signal-relay/src/signal"
	"signal-relay/src/storage"
)

// -----------------------------------------------------------------------------

func main() {

	// Parse command line flags
	configPath := flag.String("config", "config/default.yaml", "path to config file")
	flag.Parse()

	// Pick up SECRET_KEY and friends from a local .env in development
	_ = godotenv.Load()

	// Load config from YAML file
	config, err := config.NewConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := config.ValidateServer(); err != nil {
		fmt.Printf("Invalid config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	appLogger := logger.NewLogger(config.MConfig, config.Name)

	// 1. Storage
	var db interfaces.IDatabase

	switch config.Storage.DBType {
	case "postgres":
		db, err = storage.NewPostgresDB(config.MConfig, appLogger)
	default:
		// Default to SQLite
		db, err = storage.NewSQLiteDB(config.MConfig, appLogger)
	}

	if err != nil {
		appLogger.Critical("Failed to init db: %v", err)
		os.Exit(1)
	}
	if err := db.Initialize(); err != nil {
		appLogger.Critical("Failed to migrate db: %v", err)
		os.Exit(1)
	}

	// 2. Telegram alerts ride on the retrying HTTP client
	var networkManager interfaces.INetworkManager = network.NewNetworkManager(config.MConfig, appLogger)
	notifier := notify.NewTelegramNotifier(config.MConfig, networkManager, appLogger)

	// 3. Signal service. The event publisher slot is filled below, once the
	// web server that owns the websocket hub exists.
	service := signalsvc.NewService(config.MConfig, db, notifier, nil, appLogger)

	// 4. HTTP API + websocket feed
	api := server.NewFastAPIServer(config.MConfig, service, db, appLogger)
	service.Publisher = api

	// 5. Retry queue. The service executes retries, the database records
	// terminal dispositions as admin reports.
	retryQueue := queue.NewRetryQueue(config.MConfig, service, db, notifier, appLogger)
	service.AttachQueue(retryQueue)
	retryQueue.StartWorker()

	// 6. TCP signal server for the EAs
	tcpServer := server.NewSignalTCPServer(server.Options{
		Host:          config.Server.Host,
		Port:          config.Server.Port,
		SecretKey:     config.Security.SecretKey,
		ReadTimeout:   time.Duration(config.Server.ReadTimeoutSeconds) * time.Second,
		AuthTimeout:   time.Duration(config.Server.AuthTimeoutSeconds) * time.Second,
		MaxFrameBytes: config.Server.MaxFrameBytes,
		TLSCertFile:   config.Server.TLSCertFile,
		TLSKeyFile:    config.Server.TLSKeyFile,
		Processor:     service,
	}, appLogger)

	if err := tcpServer.Start(); err != nil {
		appLogger.Critical("Failed to start TCP server: %v", err)
		os.Exit(1)
	}

	// 7. Web server (webhook + admin + dashboard feed)
	if config.HTTP.Enabled {
		if err := api.Start(); err != nil {
			appLogger.Critical("Failed to start HTTP server: %v", err)
			os.Exit(1)
		}
	}

	appLogger.Info("%s is up. TCP on %s, HTTP enabled=%v", config.Name, tcpServer.Addr(), config.HTTP.Enabled)

	// 8. Block until told to stop
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down...")

	// Stop intake first, then the retry worker, then the web server. The
	// worker finishes its in-flight item before StopWorker returns.
	tcpServer.Stop()
	retryQueue.StopWorker()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := api.Stop(ctx); err != nil {
		appLogger.Warning("HTTP shutdown: %v", err)
	}

	if err := db.Close(); err != nil {
		appLogger.Warning("Closing database: %v", err)
	}

	appLogger.Info("Shutdown complete.")
}
