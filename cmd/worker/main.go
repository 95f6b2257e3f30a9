// cmd/worker/main.go
package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/zainab674/voiceagents-sub004/internal/app"
	"github.com/zainab674/voiceagents-sub004/internal/config"
	"github.com/zainab674/voiceagents-sub004/internal/db"
	"github.com/zainab674/voiceagents-sub004/internal/logging"
	"github.com/zainab674/voiceagents-sub004/internal/queue"
	"github.com/zainab674/voiceagents-sub004/internal/telephony"
)

// The worker consumes provider call events from RabbitMQ and applies them to
// campaign aggregates. It does not dial.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("worker: %v", err)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	if cfg.Queue.AMQPURL == "" {
		return errors.New("QUEUE_AMQP_URL is required for the worker")
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

	q, err := queue.DialAMQP(cfg.Queue.AMQPURL, cfg.Queue.MaxRetries, logger)
	if err != nil {
		return err
	}
	defer q.Close()

	if err := queue.StartCallEventSubscriber(q, cfg.Queue.CallEventsQueue, engine.Recorder, logger); err != nil {
		return err
	}

	logger.Info("worker running, waiting for call events",
		zap.String("queue", cfg.Queue.CallEventsQueue),
	)
	<-ctx.Done()
	logger.Info("worker stopping")
	return nil
}
