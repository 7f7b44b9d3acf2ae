package messaging

import (
	"context"
	"fmt"

	"github.com/blogem/otel-poc/config"
)

// NewBus creates the bus selected by the messaging configuration
func NewBus(ctx context.Context, cfg config.MessagingConfig, opts Options) (Bus, error) {
	if opts.Topic == "" {
		opts.Topic = cfg.Topic
	}

	switch cfg.Broker {
	case "memory":
		return NewMemoryBus(cfg.BufferSize, cfg.Workers, opts), nil
	case "kafka":
		return NewKafkaBus(KafkaConfig{Brokers: cfg.KafkaBrokers, ConsumerGroup: cfg.ConsumerGroup}, opts)
	case "redis":
		return NewRedisBus(ctx, RedisConfig{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}, opts)
	default:
		return nil, fmt.Errorf("unsupported message broker %q", cfg.Broker)
	}
}
