package repository

import (
	"context"

	"FinCast/internal/domain/models"
)

// keyedProducer is satisfied by *kafka.Producer.
type keyedProducer interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	Close() error
}

// KafkaForecastPublisher publishes forecast events keyed by asset type so
// events of one asset stay ordered within a partition.
type KafkaForecastPublisher struct {
	producer keyedProducer
	topic    string
}

func NewKafkaForecastPublisher(p keyedProducer, topic string) *KafkaForecastPublisher {
	return &KafkaForecastPublisher{producer: p, topic: topic}
}

func (p *KafkaForecastPublisher) PublishForecast(ctx context.Context, ev *models.ForecastEvent) error {
	return p.producer.Publish(ctx, p.topic, []byte(ev.AssetType), ev)
}

func (p *KafkaForecastPublisher) Close() error { return p.producer.Close() }
