package repository

import (
	"context"
	"time"

	"SigFlow/internal/domain/models"
	"SigFlow/internal/domain/repository"
	pkgkafka "SigFlow/pkg/kafka"
)

// KafkaEventPublisher emits pipeline facts to Kafka: executed trades on the
// trades topic, terminally rejected signals on the dead-letter topic.
type KafkaEventPublisher struct {
	producer   *pkgkafka.Producer
	tradeTopic string
	dlqTopic   string
}

// NewKafkaEventPublisher creates the publisher.
func NewKafkaEventPublisher(producer *pkgkafka.Producer, tradeTopic, dlqTopic string) repository.EventPublisher {
	return &KafkaEventPublisher{producer: producer, tradeTopic: tradeTopic, dlqTopic: dlqTopic}
}

func (p *KafkaEventPublisher) PublishTradeExecuted(ctx context.Context, result *models.ExecutionResult, signalID string) error {
	return p.producer.Publish(ctx, p.tradeTopic, []byte(signalID), map[string]interface{}{
		"event":              "trade_executed",
		"trade_id":           result.TradeID,
		"signal_id":          signalID,
		"successful_brokers": result.SuccessfulBrokers(),
		"total_brokers":      len(result.Results),
		"ts":                 time.Now().Unix(),
	})
}

func (p *KafkaEventPublisher) PublishSignalDeadLetter(ctx context.Context, signalID string, attempts int, reason string) error {
	return p.producer.Publish(ctx, p.dlqTopic, []byte(signalID), map[string]interface{}{
		"event":     "signal_rejected",
		"signal_id": signalID,
		"attempts":  attempts,
		"reason":    reason,
		"ts":        time.Now().Unix(),
	})
}

// PublishMessage satisfies the log collector's publisher contract so
// aggregated error logs can ship over the same producer.
func (p *KafkaEventPublisher) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return p.producer.Publish(ctx, topic, nil, payload)
}

func (p *KafkaEventPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// NoopEventPublisher is used when Kafka is not configured.
type NoopEventPublisher struct{}

func (NoopEventPublisher) PublishTradeExecuted(context.Context, *models.ExecutionResult, string) error {
	return nil
}

func (NoopEventPublisher) PublishSignalDeadLetter(context.Context, string, int, string) error {
	return nil
}

func (NoopEventPublisher) Close() error { return nil }
