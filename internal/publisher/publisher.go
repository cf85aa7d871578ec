// Package publisher defines the completion-event publishing contract.
package publisher

import "context"

// Publisher pushes run-completion payloads to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}
