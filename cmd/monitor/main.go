package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openfutarchy/futarchy-data/internal/allowlist"
	"github.com/openfutarchy/futarchy-data/internal/bus"
	"github.com/openfutarchy/futarchy-data/internal/chain"
	"github.com/openfutarchy/futarchy-data/internal/config"
	"github.com/openfutarchy/futarchy-data/internal/database"
	"github.com/openfutarchy/futarchy-data/internal/decode"
	"github.com/openfutarchy/futarchy-data/internal/history"
	"github.com/openfutarchy/futarchy-data/internal/monitor"
	"github.com/openfutarchy/futarchy-data/internal/rpc"
	"github.com/openfutarchy/futarchy-data/internal/sse"
	"github.com/openfutarchy/futarchy-data/internal/version"
	"github.com/openfutarchy/futarchy-data/internal/writer"
)

func main() {
	configPath := flag.String("config", "configs/monitor.local.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting monitor",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"rpc_http", cfg.RPC.HTTPURL,
		"rpc_ws", cfg.RPC.WSURL,
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

	// Connect to the history store
	logger.Info("connecting to database",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"database", cfg.Database.Name,
	)

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := database.EnsureSchema(ctx, pool); err != nil {
		logger.Error("failed to apply schema", "error", err)
		os.Exit(1)
	}
	logger.Info("database connected")

	// Chain account reader
	rpcClient := rpc.NewClient(
		cfg.RPC.HTTPURL,
		cfg.RPC.Commitment,
		rpc.WithLogger(logger),
		rpc.WithTimeout(cfg.RPC.Timeout),
		rpc.WithRetries(cfg.RPC.MaxRetries, time.Second),
	)

	allow := allowlist.NewStore(pool, cfg.Monitor.AllowlistTTL, logger)

	// Event bus and broadcast hub
	eventBus := bus.New(cfg.Writer.BufferSize, logger)
	defer eventBus.Close()

	hub := sse.NewHub(sse.HubConfig{
		KeepaliveInterval: cfg.Stream.KeepaliveInterval,
		ClientQueueSize:   cfg.Stream.ClientQueueSize,
		WriteTimeout:      cfg.Stream.WriteTimeout,
	}, logger)
	defer hub.CloseAll()

	// Proposal monitor
	mon := monitor.New(monitor.Config{
		AutocratProgram:   cfg.Programs.Autocrat,
		EnrichTimeout:     cfg.Monitor.EnrichTimeout,
		ReconcileInterval: cfg.Monitor.ReconcileInterval,
	}, rpcClient, allow, eventBus, logger)

	if err := mon.Start(ctx); err != nil {
		logger.Error("failed to start monitor", "error", err)
		os.Exit(1)
	}
	defer stopComponent(mon.Stop, "monitor", logger)

	// Trade writer
	tradeWriter := writer.New(writer.Config{
		BatchSize:     cfg.Writer.BatchSize,
		FlushInterval: cfg.Writer.FlushInterval,
	}, pool, eventBus, logger)

	if err := tradeWriter.Start(ctx); err != nil {
		logger.Error("failed to start trade writer", "error", err)
		os.Exit(1)
	}
	defer stopComponent(tradeWriter.Stop, "trade writer", logger)

	// Relay bus messages to the stream
	go relayToHub(eventBus, hub)

	// Log subscriber and decode loop
	subCfg := chain.DefaultSubscriberConfig()
	subCfg.URL = cfg.RPC.WSURL
	subCfg.Programs = []string{cfg.Programs.AMM, cfg.Programs.Autocrat}
	subCfg.Commitment = cfg.RPC.Commitment
	subCfg.ReconnectBaseDelay = cfg.Stream.ReconnectBaseDelay
	subCfg.ReconnectMaxDelay = cfg.Stream.ReconnectMaxDelay

	subscriber := chain.NewSubscriber(subCfg, logger)

	// The decode loop hands events to the monitor, so it must drain
	// before the monitor stops.
	decodeDone := make(chan struct{})
	defer func() {
		select {
		case <-decodeDone:
		case <-time.After(5 * time.Second):
			logger.Warn("decode loop did not drain in time")
		}
	}()

	if err := subscriber.Start(ctx); err != nil {
		logger.Error("failed to start log subscriber", "error", err)
		os.Exit(1)
	}
	defer stopComponent(subscriber.Stop, "log subscriber", logger)

	decoder := decode.NewDecoder(logger)
	go func() {
		defer close(decodeDone)
		for bundle := range subscriber.Bundles() {
			for _, ev := range decoder.DecodeBundle(bundle) {
				mon.HandleEvent(ctx, ev, bundle)
			}
		}
	}()

	// HTTP surface
	mux := http.NewServeMux()
	mux.Handle("GET /stream", hub)
	history.NewHandler(history.NewService(pool, logger), logger).Register(mux)
	mux.HandleFunc("GET /status", statusHandler(mon, hub))
	mux.HandleFunc("GET /health", healthHandler(pool, subscriber, mon))

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: mux,
	}

	go func() {
		logger.Info("starting http server", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
		}
	}()

	logger.Info("monitor running",
		"instance_id", cfg.Instance.ID,
		"stream_url", fmt.Sprintf("http://localhost:%d/stream", cfg.Server.Port),
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)

	logger.Info("monitor stopped")
}

func stopComponent(stop func(context.Context) error, name string, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := stop(ctx); err != nil {
		logger.Error("failed to stop component", "component", name, "error", err)
	}
}

// relayToHub forwards bus messages onto the broadcast stream.
func relayToHub(b *bus.Bus, hub *sse.Hub) {
	added := b.Subscribe(bus.KindProposalAdded)
	removed := b.Subscribe(bus.KindProposalRemoved)
	swaps := b.Subscribe(bus.KindSwapObserved)

	for added != nil || removed != nil || swaps != nil {
		select {
		case msg, ok := <-added:
			if !ok {
				added = nil
				continue
			}
			hub.Publish(sse.EventProposalTracked, sse.NewProposalPayload(msg.(bus.ProposalAdded).Proposal))
		case msg, ok := <-removed:
			if !ok {
				removed = nil
				continue
			}
			hub.Publish(sse.EventProposalRemoved, sse.NewProposalPayload(msg.(bus.ProposalRemoved).Proposal))
		case msg, ok := <-swaps:
			if !ok {
				swaps = nil
				continue
			}
			swap := msg.(bus.SwapObserved).Swap
			hub.Publish(sse.EventCondSwap, sse.NewSwapPayload(swap))
			if price, ok := sse.NewPricePayload(swap); ok {
				hub.Publish(sse.EventPriceUpdate, price)
			}
		}
	}
}

// statusHandler reports the tracked proposal set.
func statusHandler(mon *monitor.Monitor, hub *sse.Hub) http.HandlerFunc {
	type proposalStatus struct {
		PDA           string `json:"pda"`
		ID            uint64 `json:"id"`
		Name          string `json:"name"`
		EndsAt        string `json:"endsAt"`
		TimeRemaining int64  `json:"timeRemaining"` // milliseconds, floored at zero
	}

	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now()
		tracked := mon.Proposals()

		proposals := make([]proposalStatus, 0, len(tracked))
		for _, p := range tracked {
			proposals = append(proposals, proposalStatus{
				PDA:           p.Proposal,
				ID:            p.ProposalID,
				Name:          p.Name,
				EndsAt:        p.EndsAt.UTC().Format(time.RFC3339),
				TimeRemaining: p.TimeRemaining(now).Milliseconds(),
			})
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"monitored": len(proposals),
			"clients":   hub.ClientCount(),
			"proposals": proposals,
		})
	}
}

// healthHandler reports component health.
func healthHandler(pool *pgxpool.Pool, sub *chain.Subscriber, mon *monitor.Monitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		if err := pool.Ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components["database"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components["database"] = "connected"
		}

		stats := sub.Stats()
		health.Components["log_subscriber"] = map[string]any{
			"notifications": stats.Notifications,
			"reconnects":    stats.Reconnects,
			"dropped":       stats.DroppedBundles,
		}

		health.Components["monitor"] = map[string]any{
			"tracked": mon.Stats().Tracked,
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	}
}
