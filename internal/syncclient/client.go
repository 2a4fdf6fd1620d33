// Package syncclient keeps a local mirror of a live session on a viewer.
//
// Two independent sources feed the mirror. Push notifications apply targeted deltas as
// they arrive. A reconciliation loop polls the store fingerprint on every tick and, when it
// differs from the mirror's, replaces the mirror with a fresh snapshot. Every piece of state
// carries the store revision it was produced at, and the mirror never moves to an older one.
package syncclient

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"

	"github.com/victornm/simlive/internal/alert"
	"github.com/victornm/simlive/internal/domain"
	"github.com/victornm/simlive/internal/errors"
)

const (
	DefaultInterval     = 3 * time.Second
	defaultJoinAttempts = 5
)

var (
	reconciles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "simlive_sync_reconciles_total",
		Help: "Reconciliation ticks by outcome.",
	}, []string{"result"})

	pushes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "simlive_sync_pushes_total",
		Help: "Push notifications received by outcome.",
	}, []string{"result"})
)

type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateSynced
	StateResyncing
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateSynced:
		return "synced"
	case StateResyncing:
		return "resyncing"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Puller reads session state from the store side.
type Puller interface {
	JoinByCode(ctx context.Context, code string) (*domain.Snapshot, error)
	Snapshot(ctx context.Context, sessionID string) (*domain.Snapshot, error)
	Fingerprint(ctx context.Context, sessionID string) (string, error)
}

// Subscriber opens a push subscription scoped to one session.
type Subscriber interface {
	Subscribe(ctx context.Context, sessionID string) (Subscription, error)
}

type Subscription interface {
	Notifications() <-chan domain.Notification
	Close() error
}

type Config struct {
	Code       string
	Puller     Puller
	Subscriber Subscriber

	Interval      time.Duration
	NewTickerFunc func(d time.Duration) Ticker
	// BackOff paces join attempts. Defaults to an exponential backoff.
	BackOff      backoff.BackOff
	JoinAttempts uint

	Alerter *alert.Alerter
	Flags   Flags

	// OnChange receives a copy of the mirror after every change.
	OnChange func(domain.Snapshot)
	// OnEnded is called once when the terminal marker is first seen, if Flags.AutoReport is set.
	OnEnded func(sessionID string)
}

type Client struct {
	c Config

	state atomic.Int32

	mu     sync.Mutex
	mirror *domain.Snapshot
	ended  bool
}

func New(c Config) *Client {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.NewTickerFunc == nil {
		c.NewTickerFunc = newTicker
	}
	if c.JoinAttempts == 0 {
		c.JoinAttempts = defaultJoinAttempts
	}
	if c.Flags.Mute && c.Alerter != nil {
		c.Alerter.SetMuted(true)
	}

	return &Client{c: c}
}

func (c *Client) State() State {
	return State(c.state.Load())
}

// View returns a copy of the mirror. It reports false before the first snapshot.
func (c *Client) View() (domain.Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mirror == nil {
		return domain.Snapshot{}, false
	}
	return copySnapshot(c.mirror), true
}

// Run joins the session and keeps the mirror in sync until ctx is done. It returns an error
// only when the initial join fails; later failures are retried on the next tick.
func (c *Client) Run(ctx context.Context) error {
	defer c.setState(StateDisconnected)
	c.setState(StateConnecting)

	snap, err := c.join(ctx)
	if err != nil {
		return err
	}

	c.replace(ctx, snap)

	eg, ctx := errgroup.WithContext(ctx)

	// Without a subscription the poll loop alone keeps the mirror in sync.
	if c.c.Subscriber != nil {
		sub, err := c.c.Subscriber.Subscribe(ctx, snap.SessionID)
		if err != nil {
			c.transient(ctx, "subscribe", err)
		} else {
			defer func() {
				if err := sub.Close(); err != nil {
					slog.DebugContext(ctx, "syncclient: close subscription failed", "error", err)
				}
			}()
			eg.Go(func() error {
				c.pushLoop(ctx, sub)
				return nil
			})
		}
	}

	c.setState(StateSynced)
	slog.InfoContext(ctx, "syncclient: joined", "session", snap.SessionID, "revision", snap.Revision)

	eg.Go(func() error {
		c.pollLoop(ctx, snap.SessionID)
		return nil
	})

	return eg.Wait()
}

func (c *Client) join(ctx context.Context) (*domain.Snapshot, error) {
	bo := c.c.BackOff
	if bo == nil {
		eb := backoff.NewExponentialBackOff()
		eb.MaxInterval = 10 * time.Second
		bo = eb
	}

	operation := func() (*domain.Snapshot, error) {
		snap, err := c.c.Puller.JoinByCode(ctx, c.c.Code)
		if errors.Is(err, errors.CodeNotFound) || errors.Is(err, errors.CodeValidationFailed) {
			return nil, backoff.Permanent(err)
		}
		if err != nil {
			c.transient(ctx, "join", err)
			return nil, err
		}
		return snap, nil
	}

	snap, err := backoff.Retry(ctx, operation, backoff.WithBackOff(bo), backoff.WithMaxTries(c.c.JoinAttempts))
	if err != nil {
		return nil, fmt.Errorf("syncclient: join %s: %w", c.c.Code, err)
	}
	return snap, nil
}

func (c *Client) pushLoop(ctx context.Context, sub Subscription) {
	ch := sub.Notifications()
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-ch:
			if !ok {
				return
			}
			c.applyPush(ctx, n)
		}
	}
}

func (c *Client) pollLoop(ctx context.Context, sessionID string) {
	t := c.c.NewTickerFunc(c.c.Interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C():
			c.reconcile(ctx, sessionID)
		}
	}
}

// reconcile replaces the mirror when the store fingerprint moved away from it.
func (c *Client) reconcile(ctx context.Context, sessionID string) {
	fp, err := c.c.Puller.Fingerprint(ctx, sessionID)
	if err != nil {
		reconciles.WithLabelValues("failed").Inc()
		c.transient(ctx, "fingerprint", err)
		return
	}

	c.mu.Lock()
	same := c.mirror != nil && c.mirror.Fingerprint == fp
	c.mu.Unlock()

	if same {
		reconciles.WithLabelValues("unchanged").Inc()
		return
	}

	c.setState(StateResyncing)

	snap, err := c.c.Puller.Snapshot(ctx, sessionID)
	if err != nil {
		// The last good mirror stays on screen and the next tick retries.
		c.setState(StateSynced)
		reconciles.WithLabelValues("failed").Inc()
		c.transient(ctx, "snapshot", err)
		return
	}

	c.replace(ctx, snap)
	c.setState(StateSynced)
	reconciles.WithLabelValues("resynced").Inc()
}

// replace swaps in a full snapshot unless the mirror already reflects a newer revision.
func (c *Client) replace(ctx context.Context, snap *domain.Snapshot) {
	c.mu.Lock()
	if c.mirror != nil && snap.Revision < c.mirror.Revision {
		c.mu.Unlock()
		return
	}

	var ts []alert.Transition
	if c.mirror != nil {
		ts = diff(c.mirror, snap)
	}

	m := copySnapshot(snap)
	c.mirror = &m
	view, ended := c.observe()
	c.mu.Unlock()

	c.emit(ctx, ts, view, ended)
}

// applyPush applies a notification as a targeted delta. Notifications not newer than the
// mirror are dropped, so a hide or a snapshot is never undone by a late push.
func (c *Client) applyPush(ctx context.Context, n domain.Notification) {
	e, err := domain.DecodeEvent(n)
	if err != nil {
		pushes.WithLabelValues("invalid").Inc()
		slog.DebugContext(ctx, "syncclient: decode push failed", "event", n.Event, "error", err)
		return
	}

	c.mu.Lock()
	m := c.mirror
	if m == nil || n.SessionID != m.SessionID || n.Revision <= m.Revision {
		c.mu.Unlock()
		pushes.WithLabelValues("stale").Inc()
		return
	}

	contiguous := n.Revision == m.Revision+1
	ts := apply(m, e)
	m.Revision = n.Revision
	if contiguous {
		m.Fingerprint = m.Summary().Sum()
	}

	view, ended := c.observe()
	c.mu.Unlock()

	pushes.WithLabelValues("applied").Inc()
	c.emit(ctx, ts, view, ended)
}

// observe must be called with mu held.
func (c *Client) observe() (view domain.Snapshot, ended bool) {
	view = copySnapshot(c.mirror)
	if c.mirror.EndedAt != nil && !c.ended {
		c.ended = true
		ended = true
	}
	return view, ended
}

func (c *Client) emit(ctx context.Context, ts []alert.Transition, view domain.Snapshot, ended bool) {
	for _, t := range ts {
		c.c.Alerter.Notify(ctx, t)
	}

	if c.c.OnChange != nil {
		c.c.OnChange(view)
	}

	if ended && c.c.Flags.AutoReport && c.c.OnEnded != nil {
		c.c.OnEnded(view.SessionID)
	}
}

func (c *Client) transient(ctx context.Context, op string, err error) {
	err = errors.New(errors.CodeTransientSyncFailure,
		errors.WithMessagef("%s failed", op),
		errors.WithCause(err),
	)
	slog.WarnContext(ctx, "syncclient: keeping last known state", "error", err)
}

func (c *Client) setState(s State) {
	c.state.Store(int32(s))
}

func copySnapshot(s *domain.Snapshot) domain.Snapshot {
	cp := *s
	cp.Variables = append([]domain.VariableView{}, s.Variables...)
	cp.Participants = append([]domain.Participant{}, s.Participants...)
	return cp
}

type ticker struct {
	t *time.Ticker
}

func newTicker(d time.Duration) Ticker {
	return ticker{t: time.NewTicker(d)}
}

func (t ticker) C() <-chan time.Time { return t.t.C }

func (t ticker) Stop() { t.t.Stop() }
