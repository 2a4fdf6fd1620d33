package syncclient_test

import (
	"context"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cenkalti/backoff/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/simlive/internal/alert"
	"github.com/victornm/simlive/internal/api"
	"github.com/victornm/simlive/internal/domain"
	"github.com/victornm/simlive/internal/errors"
	"github.com/victornm/simlive/internal/event"
	"github.com/victornm/simlive/internal/session"
	"github.com/victornm/simlive/internal/store/memory"
	"github.com/victornm/simlive/internal/syncclient"
)

const waitFor = 2 * time.Second

func TestClient_JoinUnknownCode(t *testing.T) {
	f := newFixture(t)

	var calls int
	puller := countingPuller{Puller: syncclient.LocalPuller{Session: f.svc}, calls: &calls}

	c := syncclient.New(syncclient.Config{
		Code:    "NOPE42",
		Puller:  puller,
		BackOff: &backoff.ZeroBackOff{},
	})

	err := c.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.CodeNotFound))
	assert.Equal(t, 1, calls, "a missing session is not retried")
	assert.Equal(t, syncclient.StateDisconnected, c.State())
}

func TestClient_ConvergesWithoutPushes(t *testing.T) {
	f := newFixture(t)
	ss := f.create(t)
	ctx := context.Background()

	tick := newFakeTicker()
	c := f.run(t, ss.Code, syncclient.Config{
		Subscriber:    newManualSubscriber(),
		NewTickerFunc: tick.new,
	})

	hr := "160"
	_, err := f.svc.RevealVariable(ctx, session.RevealVariableRequest{SessionID: ss.SessionID, VariableID: "v-hr", Value: &hr})
	require.NoError(t, err)

	tick.fire()
	require.Eventually(t, func() bool {
		v, _ := c.View()
		return len(v.Variables) == 1 && *v.Variables[0].Value == "160" && v.Variables[0].Label == "HR"
	}, waitFor, 10*time.Millisecond)

	_, err = f.svc.HideVariable(ctx, session.HideVariableRequest{SessionID: ss.SessionID, VariableID: "v-hr"})
	require.NoError(t, err)

	tick.fire()
	require.Eventually(t, func() bool {
		v, _ := c.View()
		return len(v.Variables) == 0
	}, waitFor, 10*time.Millisecond)
	assert.Equal(t, syncclient.StateSynced, c.State())
}

func TestClient_FailedSnapshotKeepsMirror(t *testing.T) {
	f := newFixture(t)
	ss := f.create(t)
	ctx := context.Background()

	puller := &flakyPuller{Puller: syncclient.LocalPuller{Session: f.svc}}
	tick := newFakeTicker()
	c := f.run(t, ss.Code, syncclient.Config{
		Puller:        puller,
		NewTickerFunc: tick.new,
	})

	_, err := f.svc.SetBanner(ctx, session.SetBannerRequest{SessionID: ss.SessionID, Text: "Shock"})
	require.NoError(t, err)

	puller.setFailing(true)
	tick.fire()
	tick.fire()
	require.Eventually(t, func() bool {
		return c.State() == syncclient.StateSynced
	}, waitFor, 10*time.Millisecond)

	v, _ := c.View()
	assert.Empty(t, v.Banner, "the last good mirror should stay on screen")

	puller.setFailing(false)
	tick.fire()
	require.Eventually(t, func() bool {
		v, _ := c.View()
		return v.Banner == "Shock"
	}, waitFor, 10*time.Millisecond)
	assert.Equal(t, syncclient.StateSynced, c.State())
}

func TestClient_HideWinsOverLatePush(t *testing.T) {
	f := newFixture(t)
	ss := f.create(t)

	sub := newManualSubscriber()
	c := f.run(t, ss.Code, syncclient.Config{
		Subscriber:    sub,
		NewTickerFunc: newFakeTicker().new,
	})

	v, _ := c.View()
	rev := v.Revision

	hr := "160"
	shown := domain.VariableView{ID: "v-hr", Key: "hr", Label: "HR", Type: domain.VariableNumber, Value: &hr}
	hidden := domain.VariableView{ID: "v-hr", Key: "hr", Label: "HR", Type: domain.VariableNumber}

	sub.send(t, domain.EventVariableChanged{
		EventMeta: domain.EventMeta{SessionID: ss.SessionID, Revision: rev + 2},
		Revealed:  false,
		Variable:  hidden,
	})
	sub.send(t, domain.EventVariableChanged{
		EventMeta: domain.EventMeta{SessionID: ss.SessionID, Revision: rev + 1},
		Revealed:  true,
		Variable:  shown,
	})

	require.Eventually(t, func() bool {
		v, _ := c.View()
		return v.Revision == rev+2
	}, waitFor, 10*time.Millisecond)

	// The late reveal is dropped once it has been read.
	sub.send(t, domain.EventBannerChanged{EventMeta: domain.EventMeta{SessionID: ss.SessionID, Revision: rev + 3}, Banner: "x"})
	require.Eventually(t, func() bool {
		v, _ := c.View()
		return v.Revision == rev+3
	}, waitFor, 10*time.Millisecond)

	v, _ = c.View()
	assert.Empty(t, v.Variables)
}

func TestClient_CuesAndAutoReport(t *testing.T) {
	f := newFixture(t)
	ss := f.create(t)
	ctx := context.Background()

	var (
		mu     sync.Mutex
		played []alert.Cue
		ended  []string
	)
	alerter := alert.New(alert.Config{
		Unlocked: true,
		Player: alert.PlayerFunc(func(_ context.Context, c alert.Cue) error {
			mu.Lock()
			played = append(played, c)
			mu.Unlock()
			return nil
		}),
	})

	eb := f.eb
	c := f.run(t, ss.Code, syncclient.Config{
		Subscriber:    syncclient.BusSubscriber{EventBus: eb},
		NewTickerFunc: newFakeTicker().new,
		Alerter:       alerter,
		Flags:         syncclient.ParseFlags(url.Values{"autoreport": {"1"}}),
		OnEnded: func(id string) {
			mu.Lock()
			ended = append(ended, id)
			mu.Unlock()
		},
	})

	_, err := f.svc.SetBanner(ctx, session.SetBannerRequest{SessionID: ss.SessionID, Text: "Patient arrives"})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		v, _ := c.View()
		return v.Banner == "Patient arrives"
	}, waitFor, 10*time.Millisecond)

	_, err = f.svc.Finalize(ctx, session.FinalizeRequest{SessionID: ss.SessionID})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(ended) == 1
	}, waitFor, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []alert.Cue{alert.CueBanner}, played)
	assert.Equal(t, []string{ss.SessionID}, ended)
}

func TestClient_MuteFlag(t *testing.T) {
	alerter := alert.New(alert.Config{Unlocked: true, Player: alert.PlayerFunc(func(context.Context, alert.Cue) error { return nil })})

	syncclient.New(syncclient.Config{
		Alerter: alerter,
		Flags:   syncclient.ParseFlags(url.Values{"mute": {"true"}}),
	})

	assert.True(t, alerter.Muted())
}

func TestClient_TeardownDoesNotBlock(t *testing.T) {
	f := newFixture(t)
	ss := f.create(t)

	sub := newManualSubscriber()
	c := syncclient.New(syncclient.Config{
		Code:          ss.Code,
		Puller:        syncclient.LocalPuller{Session: f.svc},
		Subscriber:    sub,
		NewTickerFunc: newFakeTicker().new,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return c.State() == syncclient.StateSynced }, waitFor, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("run did not return after cancel")
	}

	assert.Equal(t, syncclient.StateDisconnected, c.State())
	assert.True(t, sub.isClosed())
}

func TestClient_RedisPush(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	f := newFixture(t)
	api.New(api.Config{EventBus: f.eb, Session: f.svc, Redis: rdb, PubsubPrefix: "simlive"})
	ss := f.create(t)

	c := f.run(t, ss.Code, syncclient.Config{
		Subscriber:    syncclient.RedisSubscriber{Redis: rdb, Prefix: "simlive"},
		NewTickerFunc: newFakeTicker().new,
	})

	hr := "160"
	_, err := f.svc.RevealVariable(context.Background(), session.RevealVariableRequest{SessionID: ss.SessionID, VariableID: "v-hr", Value: &hr})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		v, _ := c.View()
		return len(v.Variables) == 1 && *v.Variables[0].Value == "160"
	}, waitFor, 10*time.Millisecond)

	want, err := f.svc.Fingerprint(context.Background(), ss.SessionID)
	require.NoError(t, err)
	v, _ := c.View()
	assert.Equal(t, want.Sum(), v.Fingerprint, "a contiguous push keeps the fingerprint current")
}

func TestParseFlags(t *testing.T) {
	tests := map[string]struct {
		query string
		want  syncclient.Flags
	}{
		"should enable with 1 and true": {
			query: "clean=1&mute=true&autoreport=1",
			want:  syncclient.Flags{Clean: true, Mute: true, AutoReport: true},
		},
		"should ignore other values": {
			query: "clean=yes&mute=TRUE&autoreport=0",
			want:  syncclient.Flags{},
		},
		"should default to off": {
			query: "",
			want:  syncclient.Flags{},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			q, err := url.ParseQuery(tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, syncclient.ParseFlags(q))
		})
	}
}

type fixture struct {
	svc *session.Service
	eb  *event.Bus
}

func newFixture(t *testing.T) *fixture {
	st := memory.New()
	require.NoError(t, st.PutScenario(context.Background(), &domain.Scenario{
		ScenarioID: "sepsis",
		Variables: []domain.VariableDef{
			{VariableID: "v-hr", Key: "hr", Label: "HR", Unit: "bpm", Type: domain.VariableNumber},
		},
	}))

	eb := event.NewBus()
	t.Cleanup(eb.Stop)

	return &fixture{
		svc: session.NewService(session.Config{Store: st, EventBus: eb}),
		eb:  eb,
	}
}

func (f *fixture) create(t *testing.T) *domain.Session {
	ss, err := f.svc.CreateSession(context.Background(), session.CreateSessionRequest{
		ScenarioID:   "sepsis",
		Participants: []domain.Participant{{ID: "p1", Name: "Ana", Role: domain.RoleLeader}},
	})
	require.NoError(t, err)
	return ss
}

// run starts a client and waits until it holds its first snapshot.
func (f *fixture) run(t *testing.T, code string, c syncclient.Config) *syncclient.Client {
	c.Code = code
	if c.Puller == nil {
		c.Puller = syncclient.LocalPuller{Session: f.svc}
	}
	client := syncclient.New(c)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = client.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	require.Eventually(t, func() bool {
		_, ok := client.View()
		return ok && client.State() == syncclient.StateSynced
	}, waitFor, 10*time.Millisecond)

	return client
}

type countingPuller struct {
	syncclient.Puller
	calls *int
}

func (p countingPuller) JoinByCode(ctx context.Context, code string) (*domain.Snapshot, error) {
	*p.calls++
	return p.Puller.JoinByCode(ctx, code)
}

// flakyPuller fails snapshot pulls while failing is set.
type flakyPuller struct {
	syncclient.Puller

	mu      sync.Mutex
	failing bool
}

func (p *flakyPuller) setFailing(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failing = v
}

func (p *flakyPuller) Snapshot(ctx context.Context, sessionID string) (*domain.Snapshot, error) {
	p.mu.Lock()
	failing := p.failing
	p.mu.Unlock()

	if failing {
		return nil, errors.New(errors.CodeTransientSyncFailure, errors.WithMessagef("snapshot unavailable"))
	}
	return p.Puller.Snapshot(ctx, sessionID)
}

type fakeTicker struct {
	c chan time.Time
}

func newFakeTicker() *fakeTicker {
	return &fakeTicker{c: make(chan time.Time)}
}

func (f *fakeTicker) new(time.Duration) syncclient.Ticker { return f }

func (f *fakeTicker) C() <-chan time.Time { return f.c }

func (f *fakeTicker) Stop() {}

// fire blocks until the poll loop takes the tick.
func (f *fakeTicker) fire() {
	f.c <- time.Now()
}

type manualSubscriber struct {
	mu     sync.Mutex
	c      chan domain.Notification
	closed bool
}

func newManualSubscriber() *manualSubscriber {
	return &manualSubscriber{c: make(chan domain.Notification)}
}

func (m *manualSubscriber) Subscribe(context.Context, string) (syncclient.Subscription, error) {
	return m, nil
}

func (m *manualSubscriber) Notifications() <-chan domain.Notification {
	return m.c
}

func (m *manualSubscriber) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *manualSubscriber) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// send blocks until the push loop reads the notification.
func (m *manualSubscriber) send(t *testing.T, e interface {
	Name() string
	Meta() domain.EventMeta
}) {
	n, err := domain.NewNotification(e)
	require.NoError(t, err)

	select {
	case m.c <- n:
	case <-time.After(waitFor):
		t.Fatal("push loop is not reading")
	}
}
