package event

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	defaultPoolSize = 10000
	defaultTimeout  = 30 * time.Second
)

var (
	dispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "simlive_events_dispatched_total",
		Help: "Events handed to a subscriber.",
	}, []string{"event"})

	failed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "simlive_events_failed_total",
		Help: "Subscriber invocations that returned an error or panicked.",
	}, []string{"event"})
)

type Event interface {
	Name() string
}

type Handler func(ctx context.Context, e Event) error

type subscription struct {
	id int
	h  Handler
}

// Bus is an in-memory event bus. Handlers run asynchronously on a bounded pool.
type Bus struct {
	pool     chan struct{}
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	nextID   int
	handlers map[string][]subscription
}

// NewBus create a new event bus. Caller should call Stop for graceful shutdown the bus.
func NewBus() *Bus {
	return &Bus{
		pool:     make(chan struct{}, defaultPoolSize),
		wg:       new(sync.WaitGroup),
		handlers: make(map[string][]subscription),
	}
}

// Subscribe registers h for every event in names. The returned func removes the registration.
func (b *Bus) Subscribe(h Handler, names ...string) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	for _, name := range names {
		b.handlers[name] = append(b.handlers[name], subscription{id: id, h: h})
	}

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		for _, name := range names {
			subs := b.handlers[name]
			for i, s := range subs {
				if s.id == id {
					b.handlers[name] = append(subs[:i:i], subs[i+1:]...)
					break
				}
			}
		}
	}
}

// Publish an event to every subscriber of its name.
func (b *Bus) Publish(ctx context.Context, e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, s := range b.handlers[e.Name()] {
		b.dispatch(ctx, s.h, e)
	}
}

func (b *Bus) dispatch(ctx context.Context, h Handler, e Event) {
	b.wg.Add(1)

	b.pool <- struct{}{}
	dispatched.WithLabelValues(e.Name()).Inc()

	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultTimeout)
		defer func() {
			if r := recover(); r != nil {
				failed.WithLabelValues(e.Name()).Inc()
				slog.ErrorContext(ctx, "event: handler panic",
					"event", e.Name(),
					"error", fmt.Errorf("%v, stack: %s", r, debug.Stack()),
				)
			}

			cancel()
			<-b.pool
			b.wg.Done()
		}()

		if err := h(ctx, e); err != nil {
			failed.WithLabelValues(e.Name()).Inc()
			slog.ErrorContext(ctx, "event: handle event failed",
				"event", e.Name(),
				"error", err,
			)
		}
	}()
}

// Stop waits for all handlers to finish
func (b *Bus) Stop() {
	b.wg.Wait()
}
