// Package dispatch hands deferred distribution tasks to an external queue.
package dispatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
)

// JetStream publishes tasks to a JetStream subject. Each message carries a
// message id so the stream drops redeliveries of the same task.
type JetStream struct {
	publish func(ctx context.Context, subject string, data []byte, msgID string) error
	newID   func() string
}

// NewJetStream makes sure a stream captures subjects and returns a dispatcher.
func NewJetStream(ctx context.Context, js jetstream.JetStream, stream string, subjects []string) (*JetStream, error) {
	if _, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     stream,
		Subjects: subjects,
	}); err != nil {
		return nil, fmt.Errorf("ensure stream %s: %w", stream, err)
	}

	return &JetStream{
		publish: func(ctx context.Context, subject string, data []byte, msgID string) error {
			_, err := js.Publish(ctx, subject, data, jetstream.WithMsgID(msgID))
			return err
		},
		newID: uuid.NewString,
	}, nil
}

// Dispatch returns once the stream acknowledged the message.
func (d *JetStream) Dispatch(ctx context.Context, destination string, payload []byte) error {
	subject := strings.TrimSpace(destination)
	if subject == "" {
		return ErrNoDestination
	}
	msgID := taskID(payload)
	if msgID == "" {
		msgID = d.newID()
	}
	if err := d.publish(ctx, subject, payload, msgID); err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}
	return nil
}
