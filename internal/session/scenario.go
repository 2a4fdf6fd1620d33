package session

import (
	"context"
	"log/slog"

	"github.com/victornm/simlive/internal/domain"
	"github.com/victornm/simlive/internal/errors"
)

// PutScenario stores a scenario template. Running sessions keep reading the latest version.
func (s *Service) PutScenario(ctx context.Context, sc *domain.Scenario) (err error) {
	defer observe("put_scenario", &err)

	if err := checkScenario(sc); err != nil {
		return err
	}

	if err := s.st.PutScenario(ctx, sc); err != nil {
		return err
	}

	slog.InfoContext(ctx, "session: scenario stored", "scenario", sc.ScenarioID, "rules", len(sc.Rules))

	return nil
}

func checkScenario(sc *domain.Scenario) error {
	if sc == nil || sc.ScenarioID == "" {
		return errors.ValidationFailed("scenario id is required")
	}

	seen := make(map[string]bool)
	unique := func(kind, id string) error {
		if id == "" {
			return errors.ValidationFailed("%s id is required: scenario=%s", kind, sc.ScenarioID)
		}
		if seen[kind+":"+id] {
			return errors.ValidationFailed("duplicate %s %q: scenario=%s", kind, id, sc.ScenarioID)
		}
		seen[kind+":"+id] = true
		return nil
	}

	for _, p := range sc.Phases {
		if err := unique("phase", p.PhaseID); err != nil {
			return err
		}
	}

	for _, v := range sc.Variables {
		if err := unique("variable", v.VariableID); err != nil {
			return err
		}
		if err := unique("variable key", v.Key); err != nil {
			return err
		}
		if v.Type != domain.VariableNumber && v.Type != domain.VariableText {
			return errors.ValidationFailed("variable %s has unknown type %q", v.VariableID, v.Type)
		}
	}

	for _, it := range sc.Checklist {
		if err := unique("checklist item", it.ItemID); err != nil {
			return err
		}
	}

	for _, r := range sc.Rules {
		if err := unique("rule", r.RuleID); err != nil {
			return err
		}
		for _, c := range r.When {
			switch c.Kind {
			case domain.ConditionAny, domain.ConditionNone, domain.ConditionSum:
			default:
				return errors.ValidationFailed("rule %s has unknown condition %q", r.RuleID, c.Kind)
			}
			if c.Kind == domain.ConditionSum && (c.Field == "" || c.Threshold == nil) {
				return errors.ValidationFailed("rule %s: sum condition needs a field and a threshold", r.RuleID)
			}
		}
	}

	return nil
}
