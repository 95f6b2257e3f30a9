package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"github.com/zainab674/voiceagents-sub004/internal/logging"
)

const retryHeader = "x-retry-count"

// AMQPQueue publishes and consumes JSON messages on durable RabbitMQ queues
// named after the topic. Failed deliveries are republished with an
// incremented retry header until MaxRetries, after a linear backoff.
type AMQPQueue struct {
	conn *amqp.Connection

	pubMu    sync.Mutex
	pub      *amqp.Channel
	declared map[string]bool

	MaxRetries int
	Backoff    time.Duration
	logger     *zap.Logger

	republish func(topic string, body []byte, retries int) error

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func DialAMQP(url string, maxRetries int, logger *zap.Logger) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &AMQPQueue{
		conn:       conn,
		pub:        ch,
		declared:   make(map[string]bool),
		MaxRetries: maxRetries,
		Backoff:    500 * time.Millisecond,
		logger:     logging.OrNop(logger).Named("amqp"),
		ctx:        ctx,
		cancel:     cancel,
	}
	q.republish = q.publish
	return q, nil
}

func declare(ch *amqp.Channel, topic string) error {
	_, err := ch.QueueDeclare(
		topic, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", topic, err)
	}
	return nil
}

func (q *AMQPQueue) Publish(ctx context.Context, topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}
	return q.publish(topic, body, 0)
}

func (q *AMQPQueue) publish(topic string, body []byte, retries int) error {
	q.pubMu.Lock()
	defer q.pubMu.Unlock()

	if !q.declared[topic] {
		if err := declare(q.pub, topic); err != nil {
			return err
		}
		q.declared[topic] = true
	}

	err := q.pub.Publish("", topic, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Headers:      amqp.Table{retryHeader: int32(retries)},
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

// Subscribe starts a consumer goroutine on its own channel.
func (q *AMQPQueue) Subscribe(topic string, handler Handler) error {
	ch, err := q.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open a channel: %w", err)
	}
	if err := declare(ch, topic); err != nil {
		ch.Close()
		return err
	}
	msgs, err := ch.Consume(
		topic,
		"",
		false, // autoAck = false for reliability
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		defer ch.Close()
		for {
			select {
			case <-q.ctx.Done():
				return
			case d, ok := <-msgs:
				if !ok {
					return
				}
				q.deliver(topic, d, handler)
			}
		}
	}()
	return nil
}

func (q *AMQPQueue) deliver(topic string, d amqp.Delivery, handler Handler) {
	err := handler(q.ctx, d.Body)
	if err == nil {
		_ = d.Ack(false)
		return
	}

	retries := retryCount(d.Headers)
	switch {
	case IsPermanent(err):
		q.logger.Warn("message rejected", zap.String("topic", topic), zap.Error(err))
	case retries >= q.MaxRetries:
		q.logger.Error("message permanently failed",
			zap.String("topic", topic),
			zap.Int("attempts", retries+1),
			zap.Error(err),
		)
	default:
		// Unacked while waiting; the broker redelivers it if we go away.
		select {
		case <-q.ctx.Done():
			_ = d.Nack(false, true)
			return
		case <-time.After(time.Duration(retries+1) * q.Backoff):
		}
		if perr := q.republish(topic, d.Body, retries+1); perr != nil {
			q.logger.Error("requeue failed, returning to broker", zap.Error(perr))
			_ = d.Nack(false, true)
			return
		}
		q.logger.Warn("message failed, requeued",
			zap.String("topic", topic),
			zap.Int("attempt", retries+1),
			zap.Error(err),
		)
	}
	_ = d.Ack(false)
}

func retryCount(headers amqp.Table) int {
	switch v := headers[retryHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	case int16:
		return int(v)
	case int8:
		return int(v)
	}
	return 0
}

func (q *AMQPQueue) Close() error {
	q.cancel()
	q.wg.Wait()
	q.pubMu.Lock()
	defer q.pubMu.Unlock()
	q.pub.Close()
	return q.conn.Close()
}

var _ Queue = (*AMQPQueue)(nil)
