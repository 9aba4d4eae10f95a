package notifier

import (
	"context"
	"log"
)

// Notifier delivers best-effort, at-least-once messages. No ordering is
// guaranteed; failures never roll back the outcome that triggered them.
type Notifier interface {
	Notify(ctx context.Context, recipient, channel, kind, message string) error
}

// LogNotifier writes notifications to the process log. Used in development
// and as the fallback when neither AMQP nor SMS is configured.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, recipient, channel, kind, message string) error {
	log.Printf("[NOTIFY] %s via %s to %s: %s", kind, channel, recipient, message)
	return nil
}
