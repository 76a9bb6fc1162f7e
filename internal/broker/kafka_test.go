package broker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		msg := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) Committed() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func TestConsumerRetriesFailedMessageBeforeCommitting(t *testing.T) {
	reader := &fakeReader{queue: []kafka.Message{{Offset: 7}, {Offset: 8}}}
	c := newConsumer(reader, "pos-sale-events")
	c.retryBase = time.Millisecond
	c.retryLimit = 2 * time.Millisecond

	var (
		mu       sync.Mutex
		attempts = map[int64]int{}
		handled  []int64
	)
	handler := func(_ context.Context, msg kafka.Message) error {
		mu.Lock()
		defer mu.Unlock()
		attempts[msg.Offset]++
		if msg.Offset == 7 && attempts[7] < 3 {
			return errors.New("crm store unavailable")
		}
		handled = append(handled, msg.Offset)
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.StartConsuming(ctx, handler) }()

	require.Eventually(t, func() bool { return len(reader.Committed()) == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	assert.Equal(t, []int64{7, 8}, reader.Committed())
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, attempts[7])
	assert.Equal(t, []int64{7, 8}, handled)
}

func TestConsumerStopsRetryingWhenCancelled(t *testing.T) {
	reader := &fakeReader{queue: []kafka.Message{{Offset: 1}}}
	c := newConsumer(reader, "pos-sale-events")
	c.retryBase = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	calls := make(chan struct{}, 100)
	handler := func(context.Context, kafka.Message) error {
		select {
		case calls <- struct{}{}:
		default:
		}
		return errors.New("still failing")
	}

	done := make(chan error, 1)
	go func() { done <- c.StartConsuming(ctx, handler) }()

	<-calls
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Empty(t, reader.Committed())
}
