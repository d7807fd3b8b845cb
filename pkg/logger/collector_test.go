package logger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu      sync.Mutex
	topic   string
	batches [][]AggregatedLogEntry
}

func (p *capturePublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topic = topic
	p.batches = append(p.batches, payload.([]AggregatedLogEntry))
	return nil
}

func (p *capturePublisher) all() []AggregatedLogEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []AggregatedLogEntry
	for _, b := range p.batches {
		out = append(out, b...)
	}
	return out
}

func TestCollectorAggregatesDuplicates(t *testing.T) {
	pub := &capturePublisher{}
	l := Nop()
	l.AddCollector(&CollectionConfig{
		Service:        "fincast",
		TimeInterval:   time.Hour,
		CountThreshold: 100,
		Topic:          "logs",
		Publisher:      pub,
	})

	for i := 0; i < 3; i++ {
		l.Error("load failed", String("asset", "BTC"), Error(errors.New("timeout")))
	}
	l.Error("load failed", String("asset", "ETH"))
	l.Warn("not collected")
	l.RemoveCollector()

	entries := pub.all()
	require.Len(t, entries, 2)
	assert.Equal(t, "logs", pub.topic)

	counts := map[interface{}]int{}
	for _, e := range entries {
		assert.Equal(t, "fincast", e.Service)
		assert.Equal(t, "error", e.Level)
		counts[e.Fields["asset"]] = e.Count
	}
	assert.Equal(t, 3, counts["BTC"])
	assert.Equal(t, 1, counts["ETH"])
}

func TestCollectorIncludeWarn(t *testing.T) {
	pub := &capturePublisher{}
	l := Nop()
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, IncludeWarn: true, Publisher: pub})
	l.Warn("dropped rows", Int("count", 2))
	l.RemoveCollector()

	entries := pub.all()
	require.Len(t, entries, 1)
	assert.Equal(t, "warn", entries[0].Level)
}
