package domain

import (
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Snapshot is what a viewer needs to render a session. Only revealed variables are listed.
type Snapshot struct {
	SessionID  string     `json:"sessionId"`
	Code       string     `json:"code"`
	ScenarioID string     `json:"scenarioId"`
	Phase      *PhaseView `json:"phase,omitempty"`
	Banner     string     `json:"banner"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	EndedAt    *time.Time `json:"endedAt,omitempty"`
	AlarmAt    *time.Time `json:"alarmAt,omitempty"`
	// LatestActionAt is the time of the newest action log entry.
	LatestActionAt *time.Time     `json:"latestActionAt,omitempty"`
	Variables      []VariableView `json:"variables"`
	Participants   []Participant  `json:"participants"`
	Revision       int64          `json:"revision"`
	Fingerprint    string         `json:"fingerprint"`
}

// Summary is the fingerprint of the state the snapshot shows.
func (s *Snapshot) Summary() Fingerprint {
	f := Fingerprint{
		Banner:         s.Banner,
		StartedAt:      s.StartedAt,
		EndedAt:        s.EndedAt,
		LatestActionAt: s.LatestActionAt,
		Revision:       s.Revision,
	}
	if s.Phase != nil {
		f.PhaseID = s.Phase.ID
	}
	return f
}

type PhaseView struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type VariableView struct {
	ID    string       `json:"id"`
	Key   string       `json:"key"`
	Label string       `json:"label"`
	Unit  string       `json:"unit,omitempty"`
	Type  VariableType `json:"type"`
	Value *string      `json:"value,omitempty"`
}

// NewVariableView joins a stored state with its scenario definition.
func NewVariableView(def VariableDef, st VariableState) VariableView {
	return VariableView{
		ID:    def.VariableID,
		Key:   def.Key,
		Label: def.Label,
		Unit:  def.Unit,
		Type:  def.Type,
		Value: st.Value,
	}
}

// Fingerprint is the compact summary of mutable session fields compared by pollers.
type Fingerprint struct {
	Banner         string
	PhaseID        string
	StartedAt      *time.Time
	EndedAt        *time.Time
	LatestActionAt *time.Time
	Revision       int64
}

func NewFingerprint(s *Session, latestActionAt *time.Time) Fingerprint {
	return Fingerprint{
		Banner:         s.Banner,
		PhaseID:        s.PhaseID,
		StartedAt:      s.StartedAt,
		EndedAt:        s.EndedAt,
		LatestActionAt: latestActionAt,
		Revision:       s.Revision,
	}
}

// Sum hashes the fingerprint into a short hex string.
func (f Fingerprint) Sum() string {
	d := xxhash.New()
	for _, part := range []string{
		f.Banner,
		f.PhaseID,
		formatTime(f.StartedAt),
		formatTime(f.EndedAt),
		formatTime(f.LatestActionAt),
		strconv.FormatInt(f.Revision, 10),
	} {
		_, _ = d.WriteString(part)
		_, _ = d.Write([]byte{0})
	}

	return strconv.FormatUint(d.Sum64(), 16)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
