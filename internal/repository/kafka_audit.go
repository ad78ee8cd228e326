package repository

import (
	"context"

	"RatePulse/internal/domain/models"
	domrepo "RatePulse/internal/domain/repository"
	pkgkafka "RatePulse/pkg/kafka"
)

// KafkaAuditPublisher streams applied rate changes and alerts to an audit
// topic, keyed by pair so per-pair ordering survives partitioning.
type KafkaAuditPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaAuditPublisher(producer *pkgkafka.Producer, topic string) domrepo.EventPublisher {
	return &KafkaAuditPublisher{producer: producer, topic: topic}
}

func (p *KafkaAuditPublisher) PublishEvent(ctx context.Context, ev *models.ChangeEvent) error {
	payload := map[string]interface{}{
		"category":  ev.Category,
		"pair":      ev.Pair,
		"storeId":   ev.StoreID,
		"timestamp": ev.Timestamp,
	}
	if ev.Rate != nil {
		payload["rate"] = ev.Rate
	}
	if ev.Alert != nil {
		payload["alert"] = ev.Alert
	}
	return p.producer.Publish(ctx, p.topic, []byte(ev.Pair), payload)
}

func (p *KafkaAuditPublisher) Close() error {
	return nil // producer owned by the app
}
