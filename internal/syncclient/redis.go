package syncclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/simlive/internal/api"
	"github.com/victornm/simlive/internal/domain"
)

// RedisSubscriber receives the notifications the server publishes on the session channel.
type RedisSubscriber struct {
	Redis  redis.UniversalClient
	Prefix string
}

func (r RedisSubscriber) Subscribe(ctx context.Context, sessionID string) (Subscription, error) {
	ps := r.Redis.Subscribe(ctx, api.Channel(r.Prefix, sessionID))

	// Wait for the confirmation so no message published after Subscribe returns is missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	s := &redisSubscription{
		ps: ps,
		c:  make(chan domain.Notification),
	}
	go s.run(ctx)

	return s, nil
}

type redisSubscription struct {
	ps *redis.PubSub
	c  chan domain.Notification
}

func (s *redisSubscription) run(ctx context.Context) {
	defer close(s.c)

	for msg := range s.ps.Channel() {
		var n domain.Notification
		if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
			slog.DebugContext(ctx, "syncclient: unmarshal notification failed", "error", err)
			continue
		}

		select {
		case s.c <- n:
		case <-ctx.Done():
			return
		}
	}
}

func (s *redisSubscription) Notifications() <-chan domain.Notification {
	return s.c
}

func (s *redisSubscription) Close() error {
	return s.ps.Close()
}
