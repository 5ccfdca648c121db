package kafka

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrNotConfigured is returned when no broker address is set.
var ErrNotConfigured = errors.New("kafka brokers not configured")

// EventBrokerError is any failure talking to the message bus.
type EventBrokerError struct {
	Op    string
	Topic string
	Cause error
}

func (e *EventBrokerError) Error() string {
	if e.Topic == "" {
		return fmt.Sprintf("event broker error: %s: %v", e.Op, e.Cause)
	}
	return fmt.Sprintf("event broker error: %s %s: %v", e.Op, e.Topic, e.Cause)
}

func (e *EventBrokerError) Unwrap() error { return e.Cause }

// Wrap returns err as an *EventBrokerError. Errors that already are one pass
// through unchanged. A nil err stays nil.
func Wrap(op, topic string, err error) error {
	if err == nil {
		return nil
	}
	var be *EventBrokerError
	if errors.As(err, &be) {
		return err
	}
	return &EventBrokerError{Op: op, Topic: topic, Cause: err}
}
