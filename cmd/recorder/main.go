package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shbatm/ha-mcp-sub001/internal/api"
	"github.com/shbatm/ha-mcp-sub001/internal/config"
	"github.com/shbatm/ha-mcp-sub001/internal/connection"
	"github.com/shbatm/ha-mcp-sub001/internal/database"
	"github.com/shbatm/ha-mcp-sub001/internal/operation"
	"github.com/shbatm/ha-mcp-sub001/internal/poller"
	"github.com/shbatm/ha-mcp-sub001/internal/recorder"
	"github.com/shbatm/ha-mcp-sub001/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/recorder.local.yaml", "path to config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Set up structured logging
	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	logger.Info("starting recorder",
		"version", version.Version,
		"commit", version.Commit,
		"instance_id", cfg.Instance.ID,
		"homeassistant_url", cfg.HomeAssistant.URL,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Connect to database
	logger.Info("connecting to database",
		"host", cfg.Database.Postgres.Host,
		"port", cfg.Database.Postgres.Port,
		"database", cfg.Database.Postgres.Name,
	)

	pool, err := database.Connect(ctx, cfg.Database.Postgres)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	logger.Info("database connected")

	// Create REST client and verify the instance is reachable
	apiClient := api.NewClient(
		cfg.HomeAssistant.URL,
		cfg.HomeAssistant.Token,
		api.WithLogger(logger),
		api.WithTimeout(cfg.HomeAssistant.Timeout),
		api.WithRetries(cfg.HomeAssistant.MaxRetries, time.Second),
	)

	if err := apiClient.CheckAPI(ctx); err != nil {
		logger.Error("home assistant api unreachable", "error", err)
		os.Exit(1)
	}
	logger.Info("home assistant api reachable")

	// Database recorders share the batch settings
	recCfg := recorder.Config{
		BatchSize:     cfg.Writers.BatchSize,
		FlushInterval: cfg.Writers.FlushInterval,
		BufferSize:    cfg.Writers.BufferSize,
	}
	changes := recorder.NewChangeRecorder(recCfg, pool, logger)
	snapshots := recorder.NewSnapshotRecorder(recCfg, pool, logger)

	// Device-operation tracker, fed by the same event stream
	tracker := operation.NewTracker(logger)

	if err := changes.Start(ctx); err != nil {
		logger.Error("failed to start change recorder", "error", err)
		os.Exit(1)
	}

	// Snapshot poller reconciles events missed across reconnects
	snapPoller := poller.New(poller.Config{
		Interval: cfg.Poller.Interval,
		Timeout:  cfg.HomeAssistant.Timeout,
	}, apiClient, snapshots, logger)

	if err := snapPoller.Start(ctx); err != nil {
		logger.Error("failed to start poller", "error", err)
		os.Exit(1)
	}

	// WebSocket connection for the live event stream
	wsCfg := connection.DefaultClientConfig()
	wsCfg.BaseURL = cfg.HomeAssistant.URL
	wsCfg.Token = cfg.HomeAssistant.Token
	wsCfg.AuthTimeout = cfg.WebSocket.AuthTimeout
	wsCfg.CommandTimeout = cfg.WebSocket.CommandTimeout
	wsCfg.PingInterval = cfg.WebSocket.PingInterval
	wsCfg.PingTimeout = cfg.WebSocket.PingTimeout
	wsCfg.MaxFrameSize = cfg.WebSocket.MaxFrameSize

	mgr := connection.NewManager(wsCfg, logger)
	handlers := []connection.EventHandler{changes.HandleEvent, tracker.HandleEvent}

	conn, err := connectAndSubscribe(ctx, mgr, handlers, logger)
	if err != nil {
		logger.Error("failed to connect websocket", "error", err)
		os.Exit(1)
	}

	go supervise(ctx, mgr, conn, handlers, wsCfg, logger)

	logger.Info("recorder running", "instance_id", cfg.Instance.ID)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	mgr.Disconnect()
	snapPoller.Stop(shutdownCtx)
	changes.Stop(shutdownCtx)

	logger.Info("recorder stopped")
}

// newLogger builds the process logger from config.
func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// connectAndSubscribe builds a connection through the manager, registers the
// event handlers, and subscribes to state changes. Handlers and subscriptions
// are per-connection state, so every rebuild repeats both.
func connectAndSubscribe(ctx context.Context, mgr *connection.Manager, handlers []connection.EventHandler, logger *slog.Logger) (connection.Conn, error) {
	conn, err := mgr.GetClient(ctx)
	if err != nil {
		return nil, err
	}

	for _, h := range handlers {
		conn.AddEventHandler("state_changed", h)
	}

	sub, err := conn.SubscribeEvents(ctx, "state_changed")
	if err != nil {
		mgr.Disconnect()
		return nil, err
	}

	logger.Info("subscribed to state changes", "subscription", sub)
	return conn, nil
}

// supervise pings the connection at the keep-alive interval and rebuilds it
// through the manager when the link goes dead. Disconnecting before each
// rebuild guarantees connectAndSubscribe starts from a fresh connection, so
// handlers are registered exactly once per connection.
func supervise(ctx context.Context, mgr *connection.Manager, conn connection.Conn, handlers []connection.EventHandler, wsCfg connection.ClientConfig, logger *slog.Logger) {
	ticker := time.NewTicker(wsCfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, pingCancel := context.WithTimeout(ctx, wsCfg.PingTimeout)
			err := conn.Ping(pingCtx)
			pingCancel()
			if err == nil {
				continue
			}
			if ctx.Err() != nil {
				return
			}

			logger.Warn("websocket ping failed, reconnecting", "error", err)
			mgr.Disconnect()

			fresh, err := connectAndSubscribe(ctx, mgr, handlers, logger)
			if err != nil {
				logger.Error("reconnect failed, will retry", "error", err)
				continue
			}
			conn = fresh
			logger.Info("websocket reconnected")
		}
	}
}
