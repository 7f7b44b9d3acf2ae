package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/blogem/otel-poc/models"
	"github.com/blogem/otel-poc/telemetry"
)

// KafkaConfig configures the Kafka bus
type KafkaConfig struct {
	Brokers       []string
	ConsumerGroup string
}

// KafkaBus publishes with a sync producer and consumes through a consumer group
type KafkaBus struct {
	producer sarama.SyncProducer
	newGroup func() (sarama.ConsumerGroup, error)
	inst     instrumentation

	mu    sync.Mutex
	group sarama.ConsumerGroup
	wg    sync.WaitGroup
}

// NewKafkaBus connects a producer to the brokers. The consumer group is
// created on Subscribe.
func NewKafkaBus(cfg KafkaConfig, opts Options) (*KafkaBus, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.ClientID = "otel-poc"
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Consumer.Return.Errors = true
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	newGroup := func() (sarama.ConsumerGroup, error) {
		return sarama.NewConsumerGroup(cfg.Brokers, cfg.ConsumerGroup, saramaConfig)
	}

	return newKafkaBus(producer, newGroup, opts), nil
}

func newKafkaBus(producer sarama.SyncProducer, newGroup func() (sarama.ConsumerGroup, error), opts Options) *KafkaBus {
	return &KafkaBus{
		producer: producer,
		newGroup: newGroup,
		inst:     newInstrumentation("kafka", opts),
	}
}

// Publish sends msg to the topic, keyed by message ID, with trace headers
func (b *KafkaBus) Publish(ctx context.Context, msg models.SomeMessage) error {
	return b.inst.publish(ctx, msg, func(ctx context.Context, env Envelope) error {
		value, err := env.Encode()
		if err != nil {
			return err
		}

		record := &sarama.ProducerMessage{
			Topic:     b.inst.topic,
			Key:       sarama.StringEncoder(env.MessageID),
			Value:     sarama.ByteEncoder(value),
			Timestamp: env.SentTime,
		}
		for k, v := range env.Headers {
			telemetry.KafkaHeaderCarrier{Headers: &record.Headers}.Set(k, v)
		}

		if _, _, err := b.producer.SendMessage(record); err != nil {
			return fmt.Errorf("kafka send: %w", err)
		}
		return nil
	})
}

// Subscribe joins the consumer group and consumes in the background
func (b *KafkaBus) Subscribe(ctx context.Context, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.group != nil {
		return ErrAlreadySubscribed
	}

	group, err := b.newGroup()
	if err != nil {
		return fmt.Errorf("create kafka consumer group: %w", err)
	}
	b.group = group

	b.wg.Add(2)
	go b.consumeLoop(ctx, group, &groupHandler{bus: b, handler: handler})
	go b.handleErrors(group)

	return nil
}

func (b *KafkaBus) consumeLoop(ctx context.Context, group sarama.ConsumerGroup, handler sarama.ConsumerGroupHandler) {
	defer b.wg.Done()

	for {
		// Consume returns on every rebalance and must be called again
		if err := group.Consume(ctx, []string{b.inst.topic}, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return
			}
			b.inst.logger.Error("kafka consume failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (b *KafkaBus) handleErrors(group sarama.ConsumerGroup) {
	defer b.wg.Done()

	for err := range group.Errors() {
		b.inst.logger.Error("kafka consumer group error", zap.Error(err))
	}
}

// Close leaves the consumer group and closes the producer
func (b *KafkaBus) Close() error {
	b.mu.Lock()
	group := b.group
	b.mu.Unlock()

	var errs []error
	if group != nil {
		if err := group.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close consumer group: %w", err))
		}
	}
	b.wg.Wait()

	if err := b.producer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close producer: %w", err))
	}
	return errors.Join(errs...)
}

// groupHandler implements sarama.ConsumerGroupHandler
type groupHandler struct {
	bus     *KafkaBus
	handler Handler
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim delivers every record of the claim and marks it consumed.
// Undecodable records are logged and skipped.
func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case record, ok := <-claim.Messages():
			if !ok {
				return nil
			}

			env, err := DecodeEnvelope(record.Value)
			if err != nil {
				h.bus.inst.logger.Warn("skipping undecodable record",
					zap.Int32("partition", record.Partition),
					zap.Int64("offset", record.Offset),
					zap.Error(err),
				)
				session.MarkMessage(record, "")
				continue
			}
			// The record headers are authoritative for trace context.
			env.Headers = telemetry.ConsumedHeaders(record.Headers)

			_ = h.bus.inst.deliver(session.Context(), env, h.handler)
			session.MarkMessage(record, "")
		case <-session.Context().Done():
			return nil
		}
	}
}
