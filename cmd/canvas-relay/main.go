package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/glyphworks/canvasbridge/internal/config"
	"github.com/glyphworks/canvasbridge/internal/logger"
	"github.com/glyphworks/canvasbridge/internal/relay"
)

// Version is set at build time via -ldflags "-X main.Version=v1.0.0"
var Version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "Print version and exit")
	configDir := flag.String("config", "", "Directory containing canvasbridge.jsonc")
	addrFlag := flag.String("addr", "", "Listen address (overrides config)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("canvas-relay %s\n", Version)
		os.Exit(0)
	}

	dir := *configDir
	if dir == "" {
		dir = os.Getenv("CANVASBRIDGE_CONFIG")
	}

	cfg, err := config.Load(dir)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *addrFlag != "" {
		cfg.Relay.Address = *addrFlag
	}

	if err := logger.Init(cfg.Log.Directory); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Close() }()

	logger.Info("canvas-relay %s starting", Version)

	relayCfg := relay.DefaultConfig()
	relayCfg.Addr = cfg.Relay.Address
	relayCfg.RateLimit = cfg.Relay.RateLimit
	relayCfg.RateBurst = cfg.Relay.RateBurst
	relayCfg.MaxFrameSize = cfg.Relay.MaxFrameSize()

	server := relay.NewServer(relayCfg)

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("relay error: %v", err)
			os.Exit(1)
		}
	case sig := <-shutdownChan:
		logger.Info("received signal %v, shutting down", sig)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("shutdown: %v", err)
		}
		logger.Info("shutdown complete")
	}
}
