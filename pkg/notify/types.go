package notify

import (
	"context"
	"time"
)

// Notifier delivers a composed text message to an external endpoint.
type Notifier interface {
	// Name returns the notifier identifier.
	Name() string

	// Send delivers text to endpoint. It does not retry; the caller decides
	// what to do on failure. Implementations must be safe for concurrent use.
	Send(ctx context.Context, endpoint, text string) error
}

// DefaultTimeout bounds a single delivery when no timeout is configured.
const DefaultTimeout = 10 * time.Second

const userAgent = "Aeris/1.0"

// Message is the JSON body emitted by the webhook and Kafka notifiers.
type Message struct {
	Event     string `json:"event"`
	Timestamp string `json:"timestamp"`
	Endpoint  string `json:"endpoint"`
	Text      string `json:"text"`
}

func newMessage(endpoint, text string) Message {
	return Message{
		Event:     "weather_alert",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Endpoint:  endpoint,
		Text:      text,
	}
}
