package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRetryCount(t *testing.T) {
	assert.Equal(t, 0, retryCount(nil))
	assert.Equal(t, 0, retryCount(amqp.Table{}))
	assert.Equal(t, 2, retryCount(amqp.Table{retryHeader: int32(2)}))
	assert.Equal(t, 3, retryCount(amqp.Table{retryHeader: int64(3)}))
	assert.Equal(t, 0, retryCount(amqp.Table{retryHeader: "3"}))
}

// fakeAcker records what the consumer told the broker.
type fakeAcker struct {
	mu      sync.Mutex
	acks    int
	nacks   int
	requeue bool
}

func (a *fakeAcker) Ack(tag uint64, multiple bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acks++
	return nil
}

func (a *fakeAcker) Nack(tag uint64, multiple, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacks++
	a.requeue = requeue
	return nil
}

func (a *fakeAcker) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

type republished struct {
	at      time.Time
	retries int
}

func newTestAMQPQueue(backoff time.Duration) (*AMQPQueue, *[]republished) {
	ctx, cancel := context.WithCancel(context.Background())
	var sent []republished
	q := &AMQPQueue{
		MaxRetries: 3,
		Backoff:    backoff,
		logger:     zap.NewNop(),
		ctx:        ctx,
		cancel:     cancel,
	}
	q.republish = func(topic string, body []byte, retries int) error {
		sent = append(sent, republished{at: time.Now(), retries: retries})
		return nil
	}
	return q, &sent
}

func failing(ctx context.Context, body []byte) error { return errors.New("store down") }

func TestDeliver_WaitsBeforeRepublish(t *testing.T) {
	q, sent := newTestAMQPQueue(20 * time.Millisecond)
	defer q.cancel()

	acker := &fakeAcker{}
	start := time.Now()
	q.deliver("events", amqp.Delivery{
		Acknowledger: acker,
		Headers:      amqp.Table{retryHeader: int32(1)},
		Body:         []byte(`{}`),
	}, failing)

	require.Len(t, *sent, 1)
	assert.Equal(t, 2, (*sent)[0].retries)
	assert.GreaterOrEqual(t, (*sent)[0].at.Sub(start), 40*time.Millisecond, "second retry waits two backoffs")
	assert.Equal(t, 1, acker.acks)
	assert.Zero(t, acker.nacks)
}

func TestDeliver_ShutdownDuringBackoffReturnsMessage(t *testing.T) {
	q, sent := newTestAMQPQueue(time.Hour)
	q.cancel()

	acker := &fakeAcker{}
	q.deliver("events", amqp.Delivery{Acknowledger: acker, Body: []byte(`{}`)}, failing)

	assert.Empty(t, *sent)
	assert.Zero(t, acker.acks)
	assert.Equal(t, 1, acker.nacks)
	assert.True(t, acker.requeue)
}

func TestDeliver_PermanentAndExhaustedAreNotRepublished(t *testing.T) {
	q, sent := newTestAMQPQueue(time.Hour)
	defer q.cancel()

	acker := &fakeAcker{}
	q.deliver("events", amqp.Delivery{Acknowledger: acker, Body: []byte(`{}`)},
		func(ctx context.Context, body []byte) error { return Permanent(errors.New("bad event")) })
	q.deliver("events", amqp.Delivery{
		Acknowledger: acker,
		Headers:      amqp.Table{retryHeader: int32(3)},
		Body:         []byte(`{}`),
	}, failing)

	assert.Empty(t, *sent)
	assert.Equal(t, 2, acker.acks)
}
