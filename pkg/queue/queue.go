package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Job handles every message of one type.
type Job interface {
	Type() string
	Handle(ctx context.Context, payload json.RawMessage) error
}

// Enqueuer is the producing side of a queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, msgType string, payload interface{}) error
}

// Config controls workers and retries.
type Config struct {
	Workers      int           // number of workers
	RetryLimit   int           // retries before a message moves to the dead-letter list
	RetryDelay   time.Duration // delay before the first retry; doubles per attempt
	PollInterval time.Duration // how often due retries are moved back to the ready list
}

// Message is the stored envelope.
type Message struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempts  int             `json:"attempts"`
	Timestamp time.Time       `json:"timestamp"`
}

// Stats reports list sizes.
type Stats struct {
	Ready int64
	Retry int64
	Dead  int64
}

// ParsePayload decodes a message payload into T.
func ParsePayload[T any](payload json.RawMessage) (T, error) {
	var result T
	if len(payload) == 0 {
		return result, fmt.Errorf("empty payload")
	}
	if err := json.Unmarshal(payload, &result); err != nil {
		return result, fmt.Errorf("unmarshal payload: %w", err)
	}
	return result, nil
}

// retryDelay returns base doubled per completed attempt.
func retryDelay(base time.Duration, attempts int) time.Duration {
	d := base
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= time.Hour {
			return time.Hour
		}
	}
	return d
}
