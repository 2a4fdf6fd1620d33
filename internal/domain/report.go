package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Report is the immutable end-of-session snapshot used for debrief.
type Report struct {
	SessionID       string                 `json:"sessionId"`
	ScenarioID      string                 `json:"scenarioId"`
	StartedAt       time.Time              `json:"startedAt"`
	EndedAt         time.Time              `json:"endedAt"`
	DurationSeconds int64                  `json:"durationSeconds"`
	Participants    []Participant          `json:"participants"`
	Checklist       []ReportChecklistEntry `json:"checklist"`
	Variables       []ReportVariable       `json:"variables"`
	Actions         []Action               `json:"actions"`
	KPIs            KPIs                   `json:"kpis"`
}

// ReportChecklistEntry has an empty Status when the item was never marked.
type ReportChecklistEntry struct {
	ItemID   string          `json:"itemId"`
	Label    string          `json:"label"`
	Category string          `json:"category,omitempty"`
	Status   ChecklistStatus `json:"status,omitempty"`
	Note     string          `json:"note,omitempty"`
}

type ReportVariable struct {
	VariableID string  `json:"variableId"`
	Key        string  `json:"key"`
	Label      string  `json:"label"`
	Unit       string  `json:"unit,omitempty"`
	Value      *string `json:"value,omitempty"`
}

type KPIs struct {
	TotalFluidMLKG      decimal.Decimal  `json:"totalFluidMlkg"`
	BolusCount          int              `json:"bolusCount"`
	TimeToAntibioticMin *decimal.Decimal `json:"timeToAntibioticMin,omitempty"`
	// TimeToFirstSeconds maps an action key to the seconds between start and its first entry.
	TimeToFirstSeconds map[string]int64 `json:"timeToFirstSeconds"`
}
