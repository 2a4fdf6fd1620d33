package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/victornm/simlive/internal/domain"
	"github.com/victornm/simlive/internal/event"
)

var published = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "simlive_pushes_published_total",
	Help: "Push notifications published per event.",
}, []string{"event"})

// Channel is the pubsub channel every viewer of a session subscribes to.
func Channel(prefix, sessionID string) string {
	return fmt.Sprintf("%s:session:%s", prefix, sessionID)
}

type sessionEvent interface {
	Name() string
	Meta() domain.EventMeta
}

// PublishSessionEvent fans a session event out to the viewers of that session.
func (a *API) PublishSessionEvent(ctx context.Context, e event.Event) error {
	se, ok := e.(sessionEvent)
	if !ok {
		return fmt.Errorf("pubsub: %s carries no session", e.Name())
	}

	n, err := domain.NewNotification(se)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}

	return a.publishNotification(ctx, n)
}

func (a *API) publishNotification(ctx context.Context, n domain.Notification) error {
	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("pubsub: marshal %s: %v", n.Event, err)
	}

	if err := a.redis.Publish(ctx, Channel(a.prefix, n.SessionID), b).Err(); err != nil {
		return fmt.Errorf("pubsub: publish %s: %w", n.Event, err)
	}

	published.WithLabelValues(n.Event).Inc()
	return nil
}
