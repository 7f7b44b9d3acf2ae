package messaging

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/blogem/otel-poc/models"
)

// MemoryBus delivers messages in-process through a bounded worker pool
type MemoryBus struct {
	jobs    chan Envelope
	workers int
	inst    instrumentation

	mu         sync.RWMutex
	closed     bool
	subscribed bool
	wg         sync.WaitGroup
}

// NewMemoryBus creates an in-process bus. Publish fails with ErrBusFull once
// bufferSize messages are waiting.
func NewMemoryBus(bufferSize, workers int, opts Options) *MemoryBus {
	if workers < 1 {
		workers = 1
	}
	return &MemoryBus{
		jobs:    make(chan Envelope, bufferSize),
		workers: workers,
		inst:    newInstrumentation("memory", opts),
	}
}

// Publish enqueues msg without blocking
func (b *MemoryBus) Publish(ctx context.Context, msg models.SomeMessage) error {
	return b.inst.publish(ctx, msg, func(_ context.Context, env Envelope) error {
		b.mu.RLock()
		defer b.mu.RUnlock()

		if b.closed {
			return ErrClosed
		}

		select {
		case b.jobs <- env:
			return nil
		default:
			return ErrBusFull
		}
	})
}

// Subscribe starts the worker pool
func (b *MemoryBus) Subscribe(ctx context.Context, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	if b.subscribed {
		return ErrAlreadySubscribed
	}
	b.subscribed = true

	for i := 0; i < b.workers; i++ {
		b.wg.Add(1)
		go b.worker(ctx, handler)
	}
	return nil
}

func (b *MemoryBus) worker(ctx context.Context, handler Handler) {
	defer b.wg.Done()

	for env := range b.jobs {
		// deliver logs and counts failures, nothing is redelivered
		_ = b.inst.deliver(ctx, env, handler)
	}
}

// Close stops accepting messages and waits for queued ones to be handled
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.jobs)
	b.mu.Unlock()

	b.wg.Wait()
	if pending := len(b.jobs); pending > 0 {
		b.inst.logger.Warn("dropping undelivered messages", zap.Int("count", pending))
	}
	return nil
}
