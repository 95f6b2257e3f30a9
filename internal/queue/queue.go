package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zainab674/voiceagents-sub004/internal/logging"
)

// Handler processes one message body. Returning an error requeues the message
// until MaxRetries is reached, unless the error is wrapped with Permanent.
type Handler func(ctx context.Context, body []byte) error

// Queue interface
type Queue interface {
	Publish(ctx context.Context, topic string, payload any) error
	Subscribe(topic string, handler Handler) error
	Close() error
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// InMemoryQueue delivers messages to in-process subscribers with retry and
// linear backoff.
type InMemoryQueue struct {
	mu       sync.Mutex
	handlers map[string][]Handler

	MaxRetries int
	Backoff    time.Duration
	logger     *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewInMemoryQueue creates a new queue
func NewInMemoryQueue(maxRetries int, logger *zap.Logger) *InMemoryQueue {
	ctx, cancel := context.WithCancel(context.Background())
	return &InMemoryQueue{
		handlers:   make(map[string][]Handler),
		MaxRetries: maxRetries,
		Backoff:    500 * time.Millisecond,
		logger:     logging.OrNop(logger).Named("queue"),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// job wraps a message body with retry info
type job struct {
	topic      string
	body       []byte
	retryCount int
}

// Publish sends a message to all subscribers
func (q *InMemoryQueue) Publish(ctx context.Context, topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	q.mu.Lock()
	handlers := q.handlers[topic]
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}
	if q.ctx.Err() != nil {
		return errors.New("queue closed")
	}

	for _, handler := range handlers {
		q.wg.Add(1)
		go q.processJob(handler, job{topic: topic, body: body})
	}
	return nil
}

// processJob handles retries and errors
func (q *InMemoryQueue) processJob(handler Handler, j job) {
	defer q.wg.Done()

	for {
		err := handler(q.ctx, j.body)
		if err == nil {
			q.logger.Debug("job processed", zap.String("topic", j.topic), zap.Int("attempt", j.retryCount+1))
			return
		}
		if IsPermanent(err) {
			q.logger.Warn("job rejected", zap.String("topic", j.topic), zap.Error(err))
			return
		}

		j.retryCount++
		if j.retryCount > q.MaxRetries {
			q.logger.Error("job permanently failed",
				zap.String("topic", j.topic),
				zap.Int("attempts", j.retryCount),
				zap.Error(err),
			)
			return
		}
		q.logger.Warn("job failed, retrying",
			zap.String("topic", j.topic),
			zap.Int("attempt", j.retryCount),
			zap.Int("max_retries", q.MaxRetries),
			zap.Error(err),
		)

		select {
		case <-q.ctx.Done():
			return
		case <-time.After(time.Duration(j.retryCount) * q.Backoff):
		}
	}
}

// Subscribe adds a handler for a topic
func (q *InMemoryQueue) Subscribe(topic string, handler Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

// Close stops pending retries and waits for in-flight handlers.
func (q *InMemoryQueue) Close() error {
	q.cancel()
	q.wg.Wait()
	return nil
}

var _ Queue = (*InMemoryQueue)(nil)
