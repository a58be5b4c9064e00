// Package events publishes alert lifecycle transitions to a pub/sub topic
// so other systems can follow escalations and resolutions.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gocloud.dev/pubsub"
	_ "gocloud.dev/pubsub/kafkapubsub"
	_ "gocloud.dev/pubsub/mempubsub"
	_ "gocloud.dev/pubsub/natspubsub"
	_ "gocloud.dev/pubsub/rabbitpubsub"

	"github.com/hamed0406/hostwatch/internal/metrics"
)

type Kind string

const (
	KindEscalated Kind = "escalated"
	KindResolved  Kind = "resolved"
)

type Event struct {
	ID          string    `json:"id"`
	Kind        Kind      `json:"kind"`
	Target      string    `json:"target"`
	Description string    `json:"description"`
	Detail      string    `json:"detail,omitempty"`
	Recipients  int       `json:"recipients"`
	At          time.Time `json:"at"`
}

// Publisher sends events to a gocloud pubsub topic. A nil *Publisher drops
// everything, which is how a disabled topic is represented.
type Publisher struct {
	logger  *zap.Logger
	topic   *pubsub.Topic
	metrics *metrics.Registry
}

// Open returns nil, nil when url is empty.
func Open(ctx context.Context, url string, logger *zap.Logger, m *metrics.Registry) (*Publisher, error) {
	if url == "" {
		return nil, nil
	}
	topic, err := pubsub.OpenTopic(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("open event topic: %w", err)
	}
	return &Publisher{logger: logger, topic: topic, metrics: m}, nil
}

// Publish never fails the caller; errors are logged and counted.
func (p *Publisher) Publish(ctx context.Context, ev Event) {
	if p == nil {
		return
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	body, err := json.Marshal(ev)
	if err != nil {
		p.logger.Error("event_marshal_error", zap.String("target", ev.Target), zap.Error(err))
		return
	}
	err = p.topic.Send(ctx, &pubsub.Message{
		Body: body,
		Metadata: map[string]string{
			"id":     ev.ID,
			"kind":   string(ev.Kind),
			"target": ev.Target,
		},
	})
	if err != nil {
		p.metrics.Inc(metrics.EventPublishFailuresTotal)
		p.logger.Warn("event_publish_error",
			zap.String("kind", string(ev.Kind)),
			zap.String("target", ev.Target),
			zap.Error(err),
		)
		return
	}
	p.logger.Debug("event_published", zap.String("kind", string(ev.Kind)), zap.String("target", ev.Target))
}

func (p *Publisher) Close(ctx context.Context) error {
	if p == nil {
		return nil
	}
	return p.topic.Shutdown(ctx)
}
