package syncclient

import (
	"context"
	"sync"

	"github.com/victornm/simlive/internal/domain"
	"github.com/victornm/simlive/internal/event"
	"github.com/victornm/simlive/internal/fingerprint"
	"github.com/victornm/simlive/internal/session"
)

const localBuffer = 64

// LocalPuller reads straight from an in-process session service. The instructor console uses it.
type LocalPuller struct {
	Session *session.Service
	// Fingerprints is optional. Without it the fingerprint is computed from the store.
	Fingerprints *fingerprint.Service
}

func (p LocalPuller) JoinByCode(ctx context.Context, code string) (*domain.Snapshot, error) {
	return p.Session.JoinByCode(ctx, code)
}

func (p LocalPuller) Snapshot(ctx context.Context, sessionID string) (*domain.Snapshot, error) {
	return p.Session.Snapshot(ctx, sessionID)
}

func (p LocalPuller) Fingerprint(ctx context.Context, sessionID string) (string, error) {
	if p.Fingerprints != nil {
		return p.Fingerprints.Get(ctx, sessionID)
	}

	f, err := p.Session.Fingerprint(ctx, sessionID)
	if err != nil {
		return "", err
	}
	return f.Sum(), nil
}

// BusSubscriber turns in-process session events into notifications.
// A slow reader loses notifications instead of blocking the bus; the poll loop recovers them.
type BusSubscriber struct {
	EventBus *event.Bus
}

func (b BusSubscriber) Subscribe(_ context.Context, sessionID string) (Subscription, error) {
	s := &busSubscription{c: make(chan domain.Notification, localBuffer)}

	s.unsubscribe = b.EventBus.Subscribe(func(ctx context.Context, e event.Event) error {
		se, ok := e.(interface {
			Name() string
			Meta() domain.EventMeta
		})
		if !ok || se.Meta().SessionID != sessionID {
			return nil
		}

		n, err := domain.NewNotification(se)
		if err != nil {
			return err
		}

		s.send(n)
		return nil
	}, domain.SessionEventNames...)

	return s, nil
}

type busSubscription struct {
	unsubscribe func()

	mu     sync.Mutex
	closed bool
	c      chan domain.Notification
}

func (s *busSubscription) send(n domain.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	select {
	case s.c <- n:
	default:
		pushes.WithLabelValues("dropped").Inc()
	}
}

func (s *busSubscription) Notifications() <-chan domain.Notification {
	return s.c
}

func (s *busSubscription) Close() error {
	s.unsubscribe()

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.c)
	}
	return nil
}
