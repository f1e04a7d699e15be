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
	"signal-relay/src/logger"
	"signal-relay/src/metrics"
	"signal-relay/src/relay"
	"signal-relay/src/server"
)

// -----------------------------------------------------------------------------

// The bridge sits next to the EAs, usually on the same VPS. It accepts the
// same framed protocol the main server speaks, queues signals while the
// upstream link is down, and routes responses back to whichever EA sent the
// signal.

func main() {

	// Parse command line flags
	configPath := flag.String("config", "config/bridge.yaml", "path to config file")
	flag.Parse()

	// Pick up SECRET_KEY and friends from a local .env in development
	_ = godotenv.Load()

	// Load config from YAML file
	config, err := config.NewConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := config.ValidateBridge(); err != nil {
		fmt.Printf("Invalid config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	appLogger := logger.NewLogger(config.MConfig, config.Name+"-bridge")

	// 1. Relay core: correlation map, outbound queue, upstream client
	bridge := relay.NewRelay(config.MConfig, appLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bridge.Start(ctx)

	// 2. Local TCP server the EAs connect to. The relay handles every
	// authenticated envelope and drops correlations when an EA disconnects.
	tcpServer := server.NewSignalTCPServer(server.Options{
		Host:           config.Bridge.ListenHost,
		Port:           config.Bridge.ListenPort,
		SecretKey:      config.Security.SecretKey,
		ReadTimeout:    time.Duration(config.Server.ReadTimeoutSeconds) * time.Second,
		AuthTimeout:    time.Duration(config.Server.AuthTimeoutSeconds) * time.Second,
		MaxFrameBytes:  config.Server.MaxFrameBytes,
		Processor:      bridge,
		OnSessionClose: bridge.OnSessionClose,
	}, appLogger)

	if err := tcpServer.Start(); err != nil {
		appLogger.Critical("Failed to start bridge listener: %v", err)
		os.Exit(1)
	}

	// 3. Standalone metrics endpoint. Empty addr disables it.
	metricsServer := metrics.Serve(config.Bridge.MetricsAddr)

	appLogger.Info("Bridge is up. Listening on %s, relaying to %s:%d",
		tcpServer.Addr(), config.Bridge.UpstreamHost, config.Bridge.UpstreamPort)

	// 4. Block until told to stop
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down...")

	// Queued signals are lost on shutdown; the EAs re-send on reconnect.
	tcpServer.Stop()
	cancel()

	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer shutdownCancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}

	appLogger.Info("Shutdown complete.")
}
