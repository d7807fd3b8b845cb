package repository

import (
	"context"
	"testing"
	"time"

	"FinCast/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingProducer struct {
	topic  string
	key    []byte
	value  interface{}
	closed bool
}

func (p *recordingProducer) Publish(_ context.Context, topic string, key []byte, value interface{}) error {
	p.topic, p.key, p.value = topic, key, value
	return nil
}

func (p *recordingProducer) Close() error {
	p.closed = true
	return nil
}

func TestKafkaForecastPublisherKeysByAsset(t *testing.T) {
	prod := &recordingProducer{}
	pub := NewKafkaForecastPublisher(prod, "fincast.forecasts")

	ev := &models.ForecastEvent{AssetType: "BTC", GeneratedAt: time.Now().UTC(), Steps: 3}
	require.NoError(t, pub.PublishForecast(context.Background(), ev))
	assert.Equal(t, "fincast.forecasts", prod.topic)
	assert.Equal(t, []byte("BTC"), prod.key)
	assert.Same(t, ev, prod.value)

	require.NoError(t, pub.Close())
	assert.True(t, prod.closed)
}
