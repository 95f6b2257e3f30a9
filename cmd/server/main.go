// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/zainab674/voiceagents-sub004/internal/app"
	"github.com/zainab674/voiceagents-sub004/internal/config"
	"github.com/zainab674/voiceagents-sub004/internal/db"
	"github.com/zainab674/voiceagents-sub004/internal/logging"
	"github.com/zainab674/voiceagents-sub004/internal/queue"
	"github.com/zainab674/voiceagents-sub004/internal/telephony"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("server: %v", err)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.App.LogLevel, cfg.App.IsProduction())
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	database, err := db.Open(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer database.Close()

	provider := telephony.NewHTTPClient(cfg.Telephony, logger)
	engine := app.NewEngine(cfg, app.PostgresStores(database), provider, logger)

	q, err := app.OpenQueue(cfg.Queue, logger)
	if err != nil {
		return fmt.Errorf("open call event queue: %w", err)
	}
	defer q.Close()

	// With RabbitMQ the worker binary may consume too; both apply events idempotently.
	if err := queue.StartCallEventSubscriber(q, cfg.Queue.CallEventsQueue, engine.Recorder, logger); err != nil {
		return fmt.Errorf("subscribe to call events: %w", err)
	}

	router := app.NewRouter(app.RouterDeps{
		Service: engine.Service,
		Queue:   q,
		Topic:   cfg.Queue.CallEventsQueue,
		DB:      database,
		Logger:  logger,
	})

	server := &http.Server{
		Addr:           cfg.Server.GetServerAddr(),
		Handler:        h2c.NewHandler(router, &http2.Server{MaxConcurrentStreams: 1000}),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	if err := engine.Scheduler.Start(ctx); err != nil {
		return err
	}
	defer engine.Scheduler.Stop()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	return nil
}
