package queue

import "context"

// Job handles every message of one Type.
type Job interface {
	// Name is used in logs.
	Name() string

	// Type selects the messages routed to this job.
	Type() string

	// Handle processes a message. A returned error schedules a retry until
	// the retry limit, after which the message lands in the dead-letter list.
	Handle(ctx context.Context, msg *Message) error
}
