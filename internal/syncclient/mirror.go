package syncclient

import (
	"github.com/victornm/simlive/internal/alert"
	"github.com/victornm/simlive/internal/domain"
)

// apply mutates m with one decoded push and returns the transitions it caused.
func apply(m *domain.Snapshot, e any) []alert.Transition {
	var ts []alert.Transition

	switch e := e.(type) {
	case *domain.EventSessionStarted:
		at := e.StartedAt
		m.StartedAt = &at

	case *domain.EventSessionEnded:
		started, ended := e.StartedAt, e.EndedAt
		m.StartedAt = &started
		m.EndedAt = &ended

	case *domain.EventBannerChanged:
		if alert.BannerChanged(m.Banner, e.Banner) {
			ts = append(ts, alert.TransitionBannerChanged)
		}
		m.Banner = e.Banner

	case *domain.EventPhaseChanged:
		m.Phase = e.Phase

	case *domain.EventAlarmRaised:
		at := e.At
		m.AlarmAt = &at
		ts = append(ts, alert.TransitionAlarm)

	case *domain.EventVariableChanged:
		i := indexOf(m.Variables, e.Variable.ID)
		switch {
		case !e.Revealed && i >= 0:
			m.Variables = append(m.Variables[:i:i], m.Variables[i+1:]...)
			ts = append(ts, alert.TransitionVariableHidden)
		case e.Revealed && i < 0:
			m.Variables = append(m.Variables, e.Variable)
			ts = append(ts, alert.TransitionVariableRevealed)
		case e.Revealed:
			if !sameValue(m.Variables[i].Value, e.Variable.Value) {
				ts = append(ts, alert.TransitionVariableRevealed)
			}
			m.Variables[i] = e.Variable
		}

	case *domain.EventVariablesCleared:
		if len(m.Variables) > 0 {
			ts = append(ts, alert.TransitionVariableHidden)
		}
		m.Variables = []domain.VariableView{}

	case *domain.EventParticipantsChanged:
		m.Participants = append([]domain.Participant{}, e.Participants...)

	case *domain.EventActionRecorded:
		at := e.Action.CreateTime
		if m.LatestActionAt == nil || at.After(*m.LatestActionAt) {
			m.LatestActionAt = &at
		}
	}

	return ts
}

// diff lists the transitions between two states of the mirror.
func diff(prev, next *domain.Snapshot) []alert.Transition {
	var ts []alert.Transition

	if alert.BannerChanged(prev.Banner, next.Banner) {
		ts = append(ts, alert.TransitionBannerChanged)
	}

	if next.AlarmAt != nil && (prev.AlarmAt == nil || !next.AlarmAt.Equal(*prev.AlarmAt)) {
		ts = append(ts, alert.TransitionAlarm)
	}

	revealed := false
	for _, v := range next.Variables {
		i := indexOf(prev.Variables, v.ID)
		if i < 0 || !sameValue(prev.Variables[i].Value, v.Value) {
			revealed = true
			break
		}
	}
	if revealed {
		ts = append(ts, alert.TransitionVariableRevealed)
	}

	for _, v := range prev.Variables {
		if indexOf(next.Variables, v.ID) < 0 {
			ts = append(ts, alert.TransitionVariableHidden)
			break
		}
	}

	return ts
}

func indexOf(vs []domain.VariableView, id string) int {
	for i, v := range vs {
		if v.ID == id {
			return i
		}
	}
	return -1
}

func sameValue(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
