package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/blogem/otel-poc/models"
)

// RedisConfig configures the Redis bus
type RedisConfig struct {
	Addr     string
	Password string
}

// RedisBus publishes envelopes on a Redis pub/sub channel named after the topic
type RedisBus struct {
	client *redis.Client
	inst   instrumentation

	mu     sync.Mutex
	pubsub *redis.PubSub
	wg     sync.WaitGroup
}

// NewRedisBus creates a Redis bus and checks the connection
func NewRedisBus(ctx context.Context, cfg RedisConfig, opts Options) (*RedisBus, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisBus{
		client: client,
		inst:   newInstrumentation("redis", opts),
	}, nil
}

// Publish sends the encoded envelope to the channel
func (b *RedisBus) Publish(ctx context.Context, msg models.SomeMessage) error {
	return b.inst.publish(ctx, msg, func(ctx context.Context, env Envelope) error {
		payload, err := env.Encode()
		if err != nil {
			return err
		}
		if err := b.client.Publish(ctx, b.inst.topic, payload).Err(); err != nil {
			return fmt.Errorf("redis publish: %w", err)
		}
		return nil
	})
}

// Subscribe subscribes to the channel and delivers messages in the background
func (b *RedisBus) Subscribe(ctx context.Context, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pubsub != nil {
		return ErrAlreadySubscribed
	}

	pubsub := b.client.Subscribe(ctx, b.inst.topic)
	// Wait for the subscription confirmation so no message is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}
	b.pubsub = pubsub

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for msg := range pubsub.Channel() {
			env, err := DecodeEnvelope([]byte(msg.Payload))
			if err != nil {
				b.inst.logger.Warn("skipping undecodable message", zap.Error(err))
				continue
			}
			_ = b.inst.deliver(ctx, env, handler)
		}
	}()

	return nil
}

// Close unsubscribes and closes the client
func (b *RedisBus) Close() error {
	b.mu.Lock()
	pubsub := b.pubsub
	b.mu.Unlock()

	var errs []error
	if pubsub != nil {
		if err := pubsub.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	b.wg.Wait()

	if err := b.client.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
