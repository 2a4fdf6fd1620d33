// Package report assembles the end-of-session debrief.
package report

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/victornm/simlive/internal/domain"
	"github.com/victornm/simlive/internal/rules"
)

const (
	ActionFluidBolus = "bolo_cristaloide"
	ActionAntibiotic = "inicio_antibiotico"

	fieldMLKG    = "mlkg"
	fieldMinutes = "minutos"
)

// Input is everything the report is built from, read after the checklist mirror ran.
type Input struct {
	Session   *domain.Session
	Scenario  *domain.Scenario
	Variables []domain.VariableState
	Marks     []domain.ChecklistMark
	Actions   []domain.Action
	StartedAt time.Time
	EndedAt   time.Time
}

// Assemble builds the immutable report. Only revealed variables are embedded, and a
// checklist item with no mark keeps an empty status.
func Assemble(in Input) *domain.Report {
	r := &domain.Report{
		SessionID:       in.Session.SessionID,
		ScenarioID:      in.Session.ScenarioID,
		StartedAt:       in.StartedAt,
		EndedAt:         in.EndedAt,
		DurationSeconds: int64(domain.Elapsed(in.EndedAt, &in.StartedAt, &in.EndedAt) / time.Second),
		Participants:    append([]domain.Participant{}, in.Session.Participants...),
		Checklist:       checklist(in.Scenario, in.Marks),
		Variables:       variables(in.Scenario, in.Variables),
		Actions:         append([]domain.Action{}, in.Actions...),
		KPIs:            ComputeKPIs(in.Actions, &in.StartedAt),
	}

	return r
}

func checklist(sc *domain.Scenario, marks []domain.ChecklistMark) []domain.ReportChecklistEntry {
	byItem := make(map[string]domain.ChecklistMark, len(marks))
	for _, m := range marks {
		byItem[m.ItemID] = m
	}

	items := append([]domain.ChecklistItem(nil), sc.Checklist...)
	sort.SliceStable(items, func(i, j int) bool { return items[i].Order < items[j].Order })

	out := make([]domain.ReportChecklistEntry, 0, len(items))
	for _, it := range items {
		e := domain.ReportChecklistEntry{
			ItemID:   it.ItemID,
			Label:    it.Label,
			Category: it.Category,
		}
		if m, ok := byItem[it.ItemID]; ok {
			e.Status = m.Status
			e.Note = m.Note
		}
		out = append(out, e)
	}
	return out
}

func variables(sc *domain.Scenario, states []domain.VariableState) []domain.ReportVariable {
	byID := make(map[string]domain.VariableState, len(states))
	for _, st := range states {
		byID[st.VariableID] = st
	}

	out := make([]domain.ReportVariable, 0, len(states))
	for _, def := range sc.Variables {
		st, ok := byID[def.VariableID]
		if !ok || !st.Revealed {
			continue
		}
		out = append(out, domain.ReportVariable{
			VariableID: def.VariableID,
			Key:        def.Key,
			Label:      def.Label,
			Unit:       def.Unit,
			Value:      st.Value,
		})
	}
	return out
}

// ComputeKPIs derives the debrief metrics from the clinical entries of the log.
// Time-to-first values are omitted when the session has no start anchor.
func ComputeKPIs(actions []domain.Action, startedAt *time.Time) domain.KPIs {
	k := domain.KPIs{
		TotalFluidMLKG:     decimal.Zero,
		TimeToFirstSeconds: make(map[string]int64),
	}

	for _, a := range actions {
		if !a.Clinical() {
			continue
		}

		switch a.Key {
		case ActionFluidBolus:
			if n, ok := rules.Number(a.Payload[fieldMLKG]); ok && n.IsPositive() {
				k.TotalFluidMLKG = k.TotalFluidMLKG.Add(n)
				k.BolusCount++
			}
		case ActionAntibiotic:
			if n, ok := rules.Number(a.Payload[fieldMinutes]); ok && !n.IsNegative() {
				if k.TimeToAntibioticMin == nil || n.LessThan(*k.TimeToAntibioticMin) {
					k.TimeToAntibioticMin = &n
				}
			}
		}

		if startedAt == nil {
			continue
		}
		if _, seen := k.TimeToFirstSeconds[a.Key]; !seen {
			d := a.CreateTime.Sub(*startedAt)
			if d < 0 {
				d = 0
			}
			k.TimeToFirstSeconds[a.Key] = int64(d / time.Second)
		}
	}

	return k
}

// MirrorResponses turns the raw answers of binary-style items into canonical marks.
// Items without a response are left out so they stay unmarked. Existing notes are kept.
func MirrorResponses(sc *domain.Scenario, responses []domain.ItemResponse, marks []domain.ChecklistMark, at time.Time) []domain.ChecklistMark {
	notes := make(map[string]string, len(marks))
	for _, m := range marks {
		notes[m.ItemID] = m.Note
	}

	var out []domain.ChecklistMark
	for _, r := range responses {
		it, ok := sc.ChecklistItem(r.ItemID)
		if !ok || it.Kind != domain.ChecklistBinary {
			continue
		}
		out = append(out, domain.ChecklistMark{
			SessionID:  r.SessionID,
			ItemID:     r.ItemID,
			Status:     domain.CoerceStatus(r.Value),
			Note:       notes[r.ItemID],
			UpdateTime: at,
		})
	}
	return out
}
