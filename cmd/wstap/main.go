// wstap connects to a Home Assistant WebSocket API and prints the event
// stream to stdout as JSON lines.
// Usage: go run ./cmd/wstap -events state_changed,call_service
//
// Credentials fall back to environment variables:
//
//	HOMEASSISTANT_URL   - Base URL, e.g. http://homeassistant.local:8123
//	HOMEASSISTANT_TOKEN - Long-lived access token
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/shbatm/ha-mcp-sub001/internal/connection"
	"github.com/shbatm/ha-mcp-sub001/internal/model"
)

func main() {
	url := flag.String("url", os.Getenv("HOMEASSISTANT_URL"), "Home Assistant base URL")
	token := flag.String("token", os.Getenv("HOMEASSISTANT_TOKEN"), "long-lived access token")
	events := flag.String("events", "state_changed", "comma-separated event types to tap")
	verbose := flag.Bool("verbose", false, "log connection details")
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if *url == "" || *token == "" {
		fmt.Fprintln(os.Stderr, "set -url/-token flags or HOMEASSISTANT_URL/HOMEASSISTANT_TOKEN")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	cfg := connection.DefaultClientConfig()
	cfg.BaseURL = *url
	cfg.Token = *token

	client := connection.NewClient(cfg, logger)
	if err := client.Connect(ctx); err != nil {
		logger.Error("connect failed", "error", err)
		os.Exit(1)
	}
	defer client.Disconnect()

	out := json.NewEncoder(os.Stdout)
	printEvent := func(ev model.Event) {
		if err := out.Encode(ev); err != nil {
			logger.Warn("encode event", "error", err)
		}
	}

	for _, eventType := range strings.Split(*events, ",") {
		eventType = strings.TrimSpace(eventType)
		if eventType == "" {
			continue
		}

		client.AddEventHandler(eventType, printEvent)
		sub, err := client.SubscribeEvents(ctx, eventType)
		if err != nil {
			logger.Error("subscribe failed", "event_type", eventType, "error", err)
			os.Exit(1)
		}
		logger.Info("subscribed", "event_type", eventType, "subscription", sub)
	}

	fmt.Fprintln(os.Stderr, "streaming events - press Ctrl+C to stop")

	// Wait for shutdown
	<-ctx.Done()
}
