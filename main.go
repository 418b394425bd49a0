package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pliu/chatcore/internal/auth"
	"github.com/pliu/chatcore/internal/chat"
	"github.com/pliu/chatcore/internal/config"
	"github.com/pliu/chatcore/internal/events"
	"github.com/pliu/chatcore/internal/handlers"
	"github.com/pliu/chatcore/internal/realtime"
	"github.com/pliu/chatcore/internal/store/sqlstore"
	"github.com/pliu/chatcore/internal/ws"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := cfg.Logger(os.Stdout)

	store, err := sqlstore.New(cfg.DBDriver, cfg.DBDSN, sqlstore.WithReceiptMode(cfg.Receipts()))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		log.Info("Closing store")
		_ = store.Close()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The hub and queue outlive the signal so in-flight requests can still
	// enqueue and deliver while the server drains.
	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	hub := ws.NewHub(log)
	go hub.Run(bgCtx)

	queue := events.NewQueue(log, cfg.FanoutQueueSize, cfg.FanoutMaxAttempts, cfg.FanoutRetryDelay)
	queue.Subscribe(
		realtime.NewFanout(hub, log),
		realtime.NewVideoTeardown(store, log),
	)
	queueDone := make(chan struct{})
	go func() {
		defer close(queueDone)
		queue.Run(bgCtx)
	}()

	service := chat.NewService(store, store, queue, log, chat.Config{
		ReceiptMode:  cfg.Receipts(),
		SystemSender: cfg.SystemSender,
	})
	chatHandler := &handlers.ChatHandler{
		Service:  service,
		Hub:      hub,
		Upgrader: ws.NewUpgrader(cfg.AllowedOrigins()),
		Log:      log,
	}
	router := handlers.NewRouter(chatHandler, auth.NewJWTResolver(cfg.JWTSecret, cfg.JWTIssuer), store.Ping, log)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting server", "addr", cfg.Addr, "driver", cfg.DBDriver, "receipts", cfg.Receipts())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully")
	case err := <-errChan:
		bgCancel()
		<-queueDone
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP shutdown failed", "error", err)
	}
	bgCancel()
	<-queueDone
	log.Info("Server stopped cleanly")
	return nil
}
