package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Publisher enqueues messages for a Job.
type Publisher interface {
	Enqueue(ctx context.Context, msgType string, payload interface{}) (string, error)
}

// QueueConfig contains the configuration for the queue.
type QueueConfig struct {
	Workers      int           // zero runs producer-only
	RetryLimit   int           // retries after the first attempt
	RetryDelay   time.Duration // delay before a failed message is retried
	PollInterval time.Duration // how often due retries are moved back
}

// Message is the envelope stored in Redis.
type Message struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	Attempts   int             `json:"attempts"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// ParsePayload decodes the message payload into T.
func ParsePayload[T any](msg *Message) (*T, error) {
	var result T
	if len(msg.Payload) == 0 {
		return nil, fmt.Errorf("message %s has no payload", msg.ID)
	}
	if err := json.Unmarshal(msg.Payload, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	return &result, nil
}
