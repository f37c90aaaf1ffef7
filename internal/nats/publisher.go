package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nats-io/nats.go/jetstream"
)

// ErrPartialPublish indicates some events in a batch failed to publish.
var ErrPartialPublish = errors.New("partial publish")

// Publisher fans received event bodies out to JetStream. Events are raw
// JSON strings exactly as the connector sent them.
type Publisher struct {
	js     jetstream.JetStream
	logger *slog.Logger
}

// NewPublisher creates a new event publisher.
func NewPublisher(js jetstream.JetStream, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		js:     js,
		logger: logger.With("component", "publisher"),
	}
}

// PublishBatch publishes each event under the app's subject. It continues
// past individual failures and reports how many were published; a partial
// result carries ErrPartialPublish.
func (p *Publisher) PublishBatch(ctx context.Context, appID string, events []string) (int, error) {
	subject := subjectFor(appID)
	published := 0

	for _, body := range events {
		ack, err := p.js.Publish(ctx, subject, []byte(body))
		if err != nil {
			p.logger.Error("failed to publish event", "subject", subject, "error", err)
			continue
		}
		p.logger.Debug("event published",
			"subject", subject,
			"stream", ack.Stream,
			"sequence", ack.Sequence,
		)
		published++
	}

	if published < len(events) {
		return published, fmt.Errorf("%w: %d of %d failed", ErrPartialPublish, len(events)-published, len(events))
	}
	return published, nil
}

// subjectFor derives the NATS subject for an app. Dots in the app identity
// would create extra subject tokens, so they are replaced.
func subjectFor(appID string) string {
	return "events." + strings.ReplaceAll(appID, ".", "_")
}
