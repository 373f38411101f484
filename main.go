// Package main our entry point.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/johndosdos/chatrelay/internal/broker"
	"github.com/johndosdos/chatrelay/internal/broker/worker"
	"github.com/johndosdos/chatrelay/internal/config"
	"github.com/johndosdos/chatrelay/internal/handler"
	"github.com/johndosdos/chatrelay/internal/presence"
	ratelimiter "github.com/johndosdos/chatrelay/internal/rate_limiter"
	"github.com/johndosdos/chatrelay/internal/store"
	ws "github.com/johndosdos/chatrelay/internal/websocket"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.SetOutput(os.Stdout)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	level, _ := cfg.SlogLevel()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Println("Starting application...")

	// Init DB
	log.Println("Initializing Database connection...")
	st, err := store.Open(ctx, cfg.DBURL)
	if err != nil {
		log.Fatalf("could not open the database: %v", err)
	}

	// Init bus
	bus := connectBus(ctx, cfg)

	tracker := presence.NewTracker()
	hub := ws.NewHub(bus, ws.NewRouter(), tracker, st, ws.Config{
		Topic:         cfg.BusTopic,
		DefaultRoom:   cfg.DefaultRoom,
		MessageRate:   cfg.MessageRate,
		MessageWindow: cfg.MessageRateWindow,
	})

	// The subscription ends with bus.Disconnect, not with the signal.
	if err := bus.Subscribe(context.WithoutCancel(ctx), cfg.BusTopic, worker.WorkerHub(hub)); err != nil {
		log.Fatalf("failed to subscribe to topic %s: %v", cfg.BusTopic, err)
	}

	// hub.Run is our central hub that is always listening for client related
	// events. It outlives the signal context so open connections can still
	// announce their leave after the HTTP server stops accepting.
	hubCtx, stopHub := context.WithCancel(context.WithoutCancel(ctx))
	defer stopHub()
	go hub.Run(hubCtx)

	var limiter *ratelimiter.IPRateLimiter
	if cfg.ConnectRate > 0 {
		limiter = ratelimiter.NewIPRateLimiter(cfg.ConnectRate, cfg.ConnectRateWindow, ratelimiter.CleanupOpts{})
		defer limiter.Stop()
	}

	server := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       30 * time.Second,
		Handler: handler.Routes(handler.Deps{
			Hub:      hub,
			Presence: tracker,
			Messages: st,
			Limiter:  limiter,
			Origins:  cfg.FrontendURL,
		}),
	}

	go func() {
		log.Printf("Server starting at 0.0.0.0:%s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("Shutdown signal received; shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Println(err)
	}

	stopHub()
	select {
	case <-hub.Done():
	case <-shutdownCtx.Done():
		log.Println("hub did not stop in time")
	}

	// The bus goes last so leave events from the hub drain still publish.
	if err := bus.Disconnect(); err != nil {
		log.Printf("couldn't disconnect bus: %+v", err)
	}

	if err := st.Close(); err != nil {
		log.Printf("couldn't close database: %+v", err)
	}

	log.Println("Server stopped")
}

// connectBus builds the bus strategy and connects it. A broker that cannot
// be reached is fatal unless BUS_FALLBACK_DIRECT is set.
func connectBus(ctx context.Context, cfg config.Config) broker.Bus {
	if !cfg.BusEnabled {
		log.Println("Bus disabled; delivering directly")
		bus := broker.New(false, nil, 0)
		if err := bus.Connect(ctx); err != nil {
			log.Fatalf("failed to connect direct bus: %v", err)
		}
		return bus
	}

	log.Println("Initializing NATS connection...")
	bus := broker.New(true, broker.NewJetStream(cfg.JetStream()), cfg.BusPublishTimeout)
	err := bus.Connect(ctx)
	if err == nil {
		return bus
	}

	if !cfg.BusFallbackDirect {
		log.Fatalf("failed to connect to nats: %v", err)
	}

	slog.WarnContext(ctx, "broker unreachable, falling back to direct delivery", "error", err)
	direct := broker.New(false, nil, 0)
	if err := direct.Connect(ctx); err != nil {
		log.Fatalf("failed to connect direct bus: %v", err)
	}
	return direct
}
