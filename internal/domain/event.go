package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	EventNameSessionCreated   = "session.created"
	EventNameSessionStarted   = "session.started"
	EventNameSessionEnded     = "session.ended"
	EventNameBannerChanged    = "banner.changed"
	EventNamePhaseChanged     = "phase.changed"
	EventNameAlarmRaised      = "alarm.raised"
	EventNameVariableChanged  = "variable.changed"
	EventNameVariablesCleared = "variables.cleared"
	EventNameChecklistMarked  = "checklist.marked"
	EventNameActionRecorded   = "action.recorded"

	EventNameParticipantsChanged = "participants.changed"
	EventNameItemResponded       = "checklist.responded"
)

// SessionEventNames lists every event that mutates a session after creation.
var SessionEventNames = []string{
	EventNameSessionStarted,
	EventNameSessionEnded,
	EventNameBannerChanged,
	EventNamePhaseChanged,
	EventNameAlarmRaised,
	EventNameVariableChanged,
	EventNameVariablesCleared,
	EventNameChecklistMarked,
	EventNameActionRecorded,
	EventNameParticipantsChanged,
	EventNameItemResponded,
}

// EventMeta identifies the session and the store revision an event was produced at.
type EventMeta struct {
	SessionID string `json:"sessionId"`
	Revision  int64  `json:"revision"`
}

func (m EventMeta) Meta() EventMeta { return m }

type EventSessionCreated struct {
	EventMeta
	Session Session `json:"session"`
}

func (EventSessionCreated) Name() string { return EventNameSessionCreated }

type EventSessionStarted struct {
	EventMeta
	StartedAt time.Time `json:"startedAt"`
}

func (EventSessionStarted) Name() string { return EventNameSessionStarted }

type EventSessionEnded struct {
	EventMeta
	StartedAt time.Time `json:"startedAt"`
	EndedAt   time.Time `json:"endedAt"`
	// Report is delivered in-process only; viewers fetch it on demand.
	Report *Report `json:"-"`
}

func (EventSessionEnded) Name() string { return EventNameSessionEnded }

type EventBannerChanged struct {
	EventMeta
	Banner string `json:"banner"`
}

func (EventBannerChanged) Name() string { return EventNameBannerChanged }

type EventPhaseChanged struct {
	EventMeta
	Phase *PhaseView `json:"phase,omitempty"`
}

func (EventPhaseChanged) Name() string { return EventNamePhaseChanged }

type EventAlarmRaised struct {
	EventMeta
	At time.Time `json:"at"`
}

func (EventAlarmRaised) Name() string { return EventNameAlarmRaised }

// EventVariableChanged carries the joined view so a viewer can render a reveal without
// another lookup. Variable.Value is nil whenever Revealed is false.
type EventVariableChanged struct {
	EventMeta
	Revealed bool         `json:"revealed"`
	Variable VariableView `json:"variable"`
}

func (EventVariableChanged) Name() string { return EventNameVariableChanged }

type EventVariablesCleared struct {
	EventMeta
}

func (EventVariablesCleared) Name() string { return EventNameVariablesCleared }

type EventChecklistMarked struct {
	EventMeta
	Mark ChecklistMark `json:"mark"`
}

func (EventChecklistMarked) Name() string { return EventNameChecklistMarked }

type EventActionRecorded struct {
	EventMeta
	Action Action `json:"action"`
}

func (EventActionRecorded) Name() string { return EventNameActionRecorded }

type EventParticipantsChanged struct {
	EventMeta
	Participants []Participant `json:"participants"`
}

func (EventParticipantsChanged) Name() string { return EventNameParticipantsChanged }

// EventItemResponded is not rendered by viewers; it only advances their revision.
type EventItemResponded struct {
	EventMeta
	Response ItemResponse `json:"response"`
}

func (EventItemResponded) Name() string { return EventNameItemResponded }

// Notification is the push message published for every session event.
type Notification struct {
	Event     string          `json:"event"`
	SessionID string          `json:"sessionId"`
	Revision  int64           `json:"revision"`
	Data      json.RawMessage `json:"data"`
}

// NewNotification wraps a session event for the wire.
func NewNotification(e interface {
	Name() string
	Meta() EventMeta
}) (Notification, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return Notification{}, fmt.Errorf("encode %s: %w", e.Name(), err)
	}

	m := e.Meta()
	return Notification{
		Event:     e.Name(),
		SessionID: m.SessionID,
		Revision:  m.Revision,
		Data:      b,
	}, nil
}

// DecodeEvent turns a notification back into its typed event.
func DecodeEvent(n Notification) (any, error) {
	var e any
	switch n.Event {
	case EventNameSessionStarted:
		e = &EventSessionStarted{}
	case EventNameSessionEnded:
		e = &EventSessionEnded{}
	case EventNameBannerChanged:
		e = &EventBannerChanged{}
	case EventNamePhaseChanged:
		e = &EventPhaseChanged{}
	case EventNameAlarmRaised:
		e = &EventAlarmRaised{}
	case EventNameVariableChanged:
		e = &EventVariableChanged{}
	case EventNameVariablesCleared:
		e = &EventVariablesCleared{}
	case EventNameChecklistMarked:
		e = &EventChecklistMarked{}
	case EventNameActionRecorded:
		e = &EventActionRecorded{}
	case EventNameParticipantsChanged:
		e = &EventParticipantsChanged{}
	case EventNameItemResponded:
		e = &EventItemResponded{}
	default:
		return nil, fmt.Errorf("unknown event %q", n.Event)
	}

	if err := json.Unmarshal(n.Data, e); err != nil {
		return nil, fmt.Errorf("decode %s: %w", n.Event, err)
	}

	return e, nil
}
