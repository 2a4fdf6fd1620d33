package alert_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/simlive/internal/alert"
)

func TestCueFor(t *testing.T) {
	tests := map[alert.Transition]struct {
		want alert.Cue
		ok   bool
	}{
		alert.TransitionVariableRevealed: {want: alert.CueReveal, ok: true},
		alert.TransitionVariableHidden:   {want: alert.CueHide, ok: true},
		alert.TransitionBannerChanged:    {want: alert.CueBanner, ok: true},
		alert.TransitionAlarm:            {want: alert.CueBanner, ok: true},
		"phase_changed":                  {},
	}

	for in, tt := range tests {
		t.Run(string(in), func(t *testing.T) {
			got, ok := alert.CueFor(in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBannerChanged(t *testing.T) {
	assert.True(t, alert.BannerChanged("", "Patient arrives"))
	assert.True(t, alert.BannerChanged("Patient arrives", "Patient crashes"))
	assert.False(t, alert.BannerChanged("Patient arrives", "Patient arrives"))
	assert.False(t, alert.BannerChanged("Patient arrives", ""))
}

func TestAlerter_Notify(t *testing.T) {
	type recorder struct {
		played []alert.Cue
	}

	tests := map[string]struct {
		arrange func(p alert.Player) *alert.Alerter
		assert  func(t *testing.T, r *recorder, played bool)
	}{
		"should drop cues until the first interaction": {
			arrange: func(p alert.Player) *alert.Alerter {
				return alert.New(alert.Config{Player: p})
			},
			assert: func(t *testing.T, r *recorder, played bool) {
				assert.False(t, played)
				assert.Empty(t, r.played)
			},
		},

		"should play once unlocked": {
			arrange: func(p alert.Player) *alert.Alerter {
				a := alert.New(alert.Config{Player: p})
				a.Unlock()
				return a
			},
			assert: func(t *testing.T, r *recorder, played bool) {
				assert.True(t, played)
				assert.Equal(t, []alert.Cue{alert.CueReveal}, r.played)
			},
		},

		"should stay silent while muted": {
			arrange: func(p alert.Player) *alert.Alerter {
				return alert.New(alert.Config{Player: p, Unlocked: true, Muted: true})
			},
			assert: func(t *testing.T, r *recorder, played bool) {
				assert.False(t, played)
				assert.Empty(t, r.played)
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			r := &recorder{}
			a := tt.arrange(alert.PlayerFunc(func(_ context.Context, c alert.Cue) error {
				r.played = append(r.played, c)
				return nil
			}))

			tt.assert(t, r, a.Notify(context.Background(), alert.TransitionVariableRevealed))
		})
	}
}

func TestAlerter_SwallowsPlayerErrors(t *testing.T) {
	a := alert.New(alert.Config{
		Unlocked: true,
		Player: alert.PlayerFunc(func(context.Context, alert.Cue) error {
			return errors.New("no audio device")
		}),
	})

	require.NotPanics(t, func() {
		assert.False(t, a.Notify(context.Background(), alert.TransitionAlarm))
	})

	a.SetMuted(true)
	assert.True(t, a.Muted())
}
