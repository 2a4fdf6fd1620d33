package syncclient

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/victornm/simlive/internal/alert"
	"github.com/victornm/simlive/internal/domain"
)

func TestApply(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	tests := map[string]struct {
		mirror func() *domain.Snapshot
		event  any
		assert func(t *testing.T, m *domain.Snapshot, ts []alert.Transition)
	}{
		"should reveal a new variable": {
			mirror: base,
			event:  &domain.EventVariableChanged{Revealed: true, Variable: view("v-hr", "160")},
			assert: func(t *testing.T, m *domain.Snapshot, ts []alert.Transition) {
				assert.Equal(t, []domain.VariableView{view("v-hr", "160")}, m.Variables)
				assert.Equal(t, []alert.Transition{alert.TransitionVariableRevealed}, ts)
			},
		},

		"should update a shown variable and cue only when the value moves": {
			mirror: func() *domain.Snapshot {
				m := base()
				m.Variables = []domain.VariableView{view("v-hr", "160")}
				return m
			},
			event: &domain.EventVariableChanged{Revealed: true, Variable: view("v-hr", "160")},
			assert: func(t *testing.T, m *domain.Snapshot, ts []alert.Transition) {
				assert.Len(t, m.Variables, 1)
				assert.Empty(t, ts)
			},
		},

		"should remove a hidden variable": {
			mirror: func() *domain.Snapshot {
				m := base()
				m.Variables = []domain.VariableView{view("v-hr", "160"), view("v-sat", "91")}
				return m
			},
			event: &domain.EventVariableChanged{Revealed: false, Variable: domain.VariableView{ID: "v-hr"}},
			assert: func(t *testing.T, m *domain.Snapshot, ts []alert.Transition) {
				assert.Equal(t, []domain.VariableView{view("v-sat", "91")}, m.Variables)
				assert.Equal(t, []alert.Transition{alert.TransitionVariableHidden}, ts)
			},
		},

		"should ignore hiding a variable that is not shown": {
			mirror: base,
			event:  &domain.EventVariableChanged{Revealed: false, Variable: domain.VariableView{ID: "v-hr"}},
			assert: func(t *testing.T, m *domain.Snapshot, ts []alert.Transition) {
				assert.Empty(t, m.Variables)
				assert.Empty(t, ts)
			},
		},

		"should clear every variable": {
			mirror: func() *domain.Snapshot {
				m := base()
				m.Variables = []domain.VariableView{view("v-hr", "160")}
				return m
			},
			event: &domain.EventVariablesCleared{},
			assert: func(t *testing.T, m *domain.Snapshot, ts []alert.Transition) {
				assert.Empty(t, m.Variables)
				assert.Equal(t, []alert.Transition{alert.TransitionVariableHidden}, ts)
			},
		},

		"should cue a banner change but not a repeat": {
			mirror: func() *domain.Snapshot {
				m := base()
				m.Banner = "Patient arrives"
				return m
			},
			event: &domain.EventBannerChanged{Banner: "Patient arrives"},
			assert: func(t *testing.T, m *domain.Snapshot, ts []alert.Transition) {
				assert.Equal(t, "Patient arrives", m.Banner)
				assert.Empty(t, ts)
			},
		},

		"should stamp the alarm": {
			mirror: base,
			event:  &domain.EventAlarmRaised{At: at},
			assert: func(t *testing.T, m *domain.Snapshot, ts []alert.Transition) {
				assert.Equal(t, at, *m.AlarmAt)
				assert.Equal(t, []alert.Transition{alert.TransitionAlarm}, ts)
			},
		},

		"should keep the newest action time": {
			mirror: func() *domain.Snapshot {
				m := base()
				later := at.Add(time.Minute)
				m.LatestActionAt = &later
				return m
			},
			event: &domain.EventActionRecorded{Action: domain.Action{CreateTime: at}},
			assert: func(t *testing.T, m *domain.Snapshot, _ []alert.Transition) {
				assert.Equal(t, at.Add(time.Minute), *m.LatestActionAt)
			},
		},

		"should set both anchors on end": {
			mirror: base,
			event:  &domain.EventSessionEnded{StartedAt: at, EndedAt: at.Add(time.Hour)},
			assert: func(t *testing.T, m *domain.Snapshot, _ []alert.Transition) {
				assert.Equal(t, at, *m.StartedAt)
				assert.Equal(t, at.Add(time.Hour), *m.EndedAt)
			},
		},

		"should ignore checklist events": {
			mirror: base,
			event:  &domain.EventChecklistMarked{Mark: domain.ChecklistMark{ItemID: "airway", Status: domain.StatusOK}},
			assert: func(t *testing.T, m *domain.Snapshot, ts []alert.Transition) {
				assert.Equal(t, base(), m)
				assert.Empty(t, ts)
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			m := tt.mirror()
			ts := apply(m, tt.event)
			tt.assert(t, m, ts)
		})
	}
}

func TestDiff(t *testing.T) {
	prev := base()
	prev.Variables = []domain.VariableView{view("v-hr", "160"), view("v-sat", "91")}

	next := base()
	next.Banner = "Deteriorating"
	next.Variables = []domain.VariableView{view("v-hr", "180")}

	assert.Equal(t, []alert.Transition{
		alert.TransitionBannerChanged,
		alert.TransitionVariableRevealed,
		alert.TransitionVariableHidden,
	}, diff(prev, next))

	assert.Empty(t, diff(next, next))
}

func base() *domain.Snapshot {
	return &domain.Snapshot{
		SessionID:    "s1",
		Variables:    []domain.VariableView{},
		Participants: []domain.Participant{},
		Revision:     3,
	}
}

func view(id, value string) domain.VariableView {
	return domain.VariableView{ID: id, Key: id, Label: id, Type: domain.VariableNumber, Value: &value}
}
