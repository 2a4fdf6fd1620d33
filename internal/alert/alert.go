// Package alert turns session transitions into short audio/visual cues.
//
// Cues are advisory: nothing here feeds back into session state, and a failing player
// never surfaces an error to the caller.
package alert

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Cue string

const (
	CueReveal Cue = "reveal"
	CueHide   Cue = "hide"
	CueBanner Cue = "banner"
)

// Transition is a change detected by a viewer.
type Transition string

const (
	TransitionVariableRevealed Transition = "variable_revealed"
	TransitionVariableHidden   Transition = "variable_hidden"
	TransitionBannerChanged    Transition = "banner_changed"
	TransitionAlarm            Transition = "alarm"
)

var cues = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "simlive_alert_cues_total",
	Help: "Cues handed to the player, or dropped while muted or locked.",
}, []string{"cue", "result"})

// CueFor maps a transition to its cue category.
func CueFor(t Transition) (Cue, bool) {
	switch t {
	case TransitionVariableRevealed:
		return CueReveal, true
	case TransitionVariableHidden:
		return CueHide, true
	case TransitionBannerChanged, TransitionAlarm:
		return CueBanner, true
	}
	return "", false
}

// BannerChanged reports whether a banner transition should raise a cue: the new text is
// non-empty and differs from the previous one.
func BannerChanged(prev, next string) bool {
	return next != "" && next != prev
}

// Player renders a cue, for example by playing a sound.
type Player interface {
	Play(ctx context.Context, c Cue) error
}

type PlayerFunc func(ctx context.Context, c Cue) error

func (f PlayerFunc) Play(ctx context.Context, c Cue) error { return f(ctx, c) }

type Config struct {
	Player Player
	Muted  bool
	// Unlocked skips waiting for the first interaction, for terminals and tests.
	Unlocked bool
}

// Alerter plays cues once output has been unlocked by a user interaction.
type Alerter struct {
	player   Player
	muted    atomic.Bool
	unlocked atomic.Bool
}

func New(c Config) *Alerter {
	a := &Alerter{player: c.Player}
	a.muted.Store(c.Muted)
	a.unlocked.Store(c.Unlocked)
	return a
}

// Unlock enables output. Call it on the first user interaction.
func (a *Alerter) Unlock() {
	a.unlocked.Store(true)
}

func (a *Alerter) SetMuted(muted bool) {
	a.muted.Store(muted)
}

func (a *Alerter) Muted() bool {
	return a.muted.Load()
}

// Notify plays the cue for t. It returns whether a cue was handed to the player.
func (a *Alerter) Notify(ctx context.Context, t Transition) bool {
	c, ok := CueFor(t)
	if !ok {
		return false
	}

	switch {
	case a == nil || a.player == nil:
		return false
	case a.muted.Load():
		cues.WithLabelValues(string(c), "muted").Inc()
		return false
	case !a.unlocked.Load():
		cues.WithLabelValues(string(c), "locked").Inc()
		return false
	}

	if err := a.player.Play(ctx, c); err != nil {
		cues.WithLabelValues(string(c), "failed").Inc()
		slog.DebugContext(ctx, "alert: play failed", "cue", c, "error", err)
		return false
	}

	cues.WithLabelValues(string(c), "played").Inc()
	return true
}
