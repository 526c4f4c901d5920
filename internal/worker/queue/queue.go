package queue

import (
	"context"
	"time"
)

// Message is one delivery from the work queue. Exactly one of Ack or Nack
// must be called.
type Message struct {
	Body      []byte
	Timestamp time.Time
	Ack       func() error
	Nack      func(requeue bool) error
}

type Publisher interface {
	Publish(ctx context.Context, body []byte) error
	Close() error
}

type Consumer interface {
	Consume(ctx context.Context) (<-chan Message, error)
	QueueLength(ctx context.Context) (int, error)
	Close() error
}
