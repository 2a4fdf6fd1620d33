package domain

import (
	"time"
)

// Role is the part a participant plays during a run.
type Role string

const (
	RoleInstructor  Role = "instructor"
	RoleLeader      Role = "leader"
	RoleAirway      Role = "airway"
	RoleCirculation Role = "circulation"
	RoleMedication  Role = "medication"
	RoleObserver    Role = "observer"
)

type Participant struct {
	ID   string `json:"id" validate:"required"`
	Name string `json:"name"`
	Role Role   `json:"role" validate:"required"`
}

// Session is one live run of a scenario.
type Session struct {
	SessionID    string        `json:"sessionId"`
	Code         string        `json:"code"`
	ScenarioID   string        `json:"scenarioId"`
	StartedAt    *time.Time    `json:"startedAt,omitempty"`
	EndedAt      *time.Time    `json:"endedAt,omitempty"`
	PhaseID      string        `json:"phaseId,omitempty"`
	Banner       string        `json:"banner"`
	AlarmAt      *time.Time    `json:"alarmAt,omitempty"`
	Participants []Participant `json:"participants"`
	Revision     int64         `json:"revision"`
	Report       *Report       `json:"report,omitempty"`
	CreateTime   time.Time     `json:"createTime"`
}

// Closed reports whether the terminal marker is set.
func (s *Session) Closed() bool {
	return s.EndedAt != nil
}

// Scenario is the read-only template a session runs.
type Scenario struct {
	ScenarioID   string          `json:"scenarioId"`
	Title        string          `json:"title"`
	AutoEvaluate bool            `json:"autoEvaluate"`
	Phases       []Phase         `json:"phases"`
	Variables    []VariableDef   `json:"variables"`
	Checklist    []ChecklistItem `json:"checklist"`
	Rules        []Rule          `json:"rules"`
}

type Phase struct {
	PhaseID string `json:"phaseId"`
	Name    string `json:"name"`
	Order   int    `json:"order"`
}

type VariableType string

const (
	VariableNumber VariableType = "number"
	VariableText   VariableType = "text"
)

type VariableDef struct {
	VariableID   string       `json:"variableId"`
	Key          string       `json:"key"`
	Label        string       `json:"label"`
	Unit         string       `json:"unit,omitempty"`
	Type         VariableType `json:"type"`
	InitialValue *string      `json:"initialValue,omitempty"`
}

func (sc *Scenario) Phase(id string) (Phase, bool) {
	for _, p := range sc.Phases {
		if p.PhaseID == id {
			return p, true
		}
	}
	return Phase{}, false
}

func (sc *Scenario) Variable(id string) (VariableDef, bool) {
	for _, v := range sc.Variables {
		if v.VariableID == id {
			return v, true
		}
	}
	return VariableDef{}, false
}

func (sc *Scenario) VariableByKey(key string) (VariableDef, bool) {
	for _, v := range sc.Variables {
		if v.Key == key {
			return v, true
		}
	}
	return VariableDef{}, false
}

func (sc *Scenario) ChecklistItem(id string) (ChecklistItem, bool) {
	for _, it := range sc.Checklist {
		if it.ItemID == id {
			return it, true
		}
	}
	return ChecklistItem{}, false
}

// VariableState is the per-session reveal flag and value of one scenario variable.
type VariableState struct {
	SessionID  string    `json:"sessionId"`
	VariableID string    `json:"variableId"`
	Revealed   bool      `json:"revealed"`
	Value      *string   `json:"value,omitempty"`
	UpdateTime time.Time `json:"updateTime"`
}

// Action is an immutable entry of the clinical intervention log.
type Action struct {
	ActionID   string         `json:"actionId"`
	SessionID  string         `json:"sessionId"`
	Key        string         `json:"key"`
	Payload    map[string]any `json:"payload,omitempty"`
	PhaseID    string         `json:"phaseId,omitempty"`
	CreateTime time.Time      `json:"createTime"`
}

// ActionKeyRuleApplied marks log entries written by rule re-evaluation rather than by hand.
const ActionKeyRuleApplied = "rule.applied"

// Clinical reports whether the action was recorded by the instructor.
func (a Action) Clinical() bool {
	return a.Key != ActionKeyRuleApplied
}

// Elapsed is the timer display value derived from the session anchors.
func Elapsed(now time.Time, startedAt, endedAt *time.Time) time.Duration {
	if startedAt == nil {
		return 0
	}

	end := now
	if endedAt != nil {
		end = *endedAt
	}

	if d := end.Sub(*startedAt); d > 0 {
		return d
	}
	return 0
}
