package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/glyphworks/canvasbridge/internal/bridge"
	"github.com/glyphworks/canvasbridge/internal/config"
	"github.com/glyphworks/canvasbridge/internal/logger"
	"github.com/glyphworks/canvasbridge/internal/mcp"
)

// Version is set at build time via -ldflags "-X main.Version=v1.0.0"
var Version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "Print version and exit")
	configDir := flag.String("config", "", "Directory containing canvasbridge.jsonc")
	addrFlag := flag.String("addr", "", "Listen address (overrides config)")
	relayFlag := flag.String("relay-url", "", "Relay websocket URL (overrides config)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("canvasbridge %s\n", Version)
		os.Exit(0)
	}

	// Precedence: flag > CANVASBRIDGE_CONFIG env > search path.
	dir := *configDir
	if dir == "" {
		dir = os.Getenv("CANVASBRIDGE_CONFIG")
	}

	cfg, err := config.Load(dir)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *addrFlag != "" {
		cfg.Server.Address = *addrFlag
	}
	if *relayFlag != "" {
		cfg.Relay.URL = *relayFlag
	}

	if err := logger.Init(cfg.Log.Directory); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Close() }()
	if err := logger.InitSlog(cfg.Log.Directory, cfg.Log.JSON); err != nil {
		log.Fatalf("Failed to initialize structured logger: %v", err)
	}
	defer func() { _ = logger.CloseSlog() }()

	logger.Info("canvasbridge %s starting", Version)
	logger.Info("relay: %s", cfg.Relay.URL)

	bridgeCfg := bridge.Config{
		RelayURL:             cfg.Relay.URL,
		AutoReconnect:        cfg.Bridge.AutoReconnect,
		ReconnectInitial:     cfg.Bridge.ReconnectInitial(),
		ReconnectMax:         cfg.Bridge.ReconnectMax(),
		MaxReconnectAttempts: cfg.Bridge.MaxReconnectAttempts,
		DefaultTimeout:       cfg.Bridge.CommandTimeout(),
		PingInterval:         cfg.Bridge.PingInterval(),
	}
	manager := bridge.NewManager(bridgeCfg)
	server := mcp.NewServer(manager)

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Serve(cfg.Server.Address)
	}()

	select {
	case err := <-serverErr:
		logger.Error("server error: %v", err)
		os.Exit(1)
	case sig := <-shutdownChan:
		logger.Info("received signal %v, shutting down", sig)

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("shutdown: %v", err)
		}
		logger.Info("shutdown complete")
	}
}
