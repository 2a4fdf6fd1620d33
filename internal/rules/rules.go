// Package rules derives variable updates from the clinical action log.
//
// Evaluate has no side effects. Every firing it reports is expected to be appended to the
// action log as a rule.applied entry, which is how later runs recognize evidence they have
// already acted on.
package rules

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/shopspring/decimal"

	"github.com/victornm/simlive/internal/domain"
	"github.com/victornm/simlive/internal/errors"
)

// Variable is the current value of a scenario variable as seen by the engine.
type Variable struct {
	ID    string
	Key   string
	Value *string
}

// Firing records that a rule produced at least one winning effect from the given evidence.
type Firing struct {
	RuleID   string `json:"ruleId"`
	Evidence string `json:"evidence"`
}

// Skip is an effect that could not be applied.
type Skip struct {
	RuleID      string
	VariableKey string
	Reason      string
}

func (s Skip) Err() error {
	return errors.New(errors.CodeRuleEvaluationSkipped,
		errors.WithMessagef("rule %s skipped for %s: %s", s.RuleID, s.VariableKey, s.Reason))
}

type Result struct {
	Updates []domain.VariableUpdate
	Firings []Firing
	Skipped []Skip
}

type winner struct {
	rank   int
	rule   *domain.Rule
	effect domain.Effect
}

// Evaluate runs ruleSet against the log. Rules run in ascending priority, ties keep their
// declared order, and the last matching rule wins each variable.
func Evaluate(actions []domain.Action, vars []Variable, ruleSet []domain.Rule) Result {
	ordered := make([]domain.Rule, len(ruleSet))
	copy(ordered, ruleSet)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Priority < ordered[j].Priority })

	byKey := make(map[string]Variable, len(vars))
	for _, v := range vars {
		byKey[v.Key] = v
	}

	var (
		res      Result
		clinical = make([]domain.Action, 0, len(actions))
		applied  = make(map[string]string)
		winners  = make(map[string]winner)
	)

	for _, a := range actions {
		if a.Clinical() {
			clinical = append(clinical, a)
			continue
		}
		if f, ok := ledgerEntry(a); ok {
			applied[f.RuleID] = f.Evidence
		}
	}

	rank := 0
	for i := range ordered {
		r := &ordered[i]
		if !holds(r.When, clinical) {
			continue
		}

		for _, eff := range r.Effects {
			if _, ok := byKey[eff.VariableKey]; !ok {
				res.Skipped = append(res.Skipped, Skip{RuleID: r.RuleID, VariableKey: eff.VariableKey, Reason: "unknown variable"})
				continue
			}
			winners[eff.VariableKey] = winner{rank: rank, rule: r, effect: eff}
			rank++
		}
	}

	ws := make([]winner, 0, len(winners))
	for _, w := range winners {
		ws = append(ws, w)
	}
	sort.Slice(ws, func(i, j int) bool { return ws[i].rank < ws[j].rank })

	fired := make(map[string]bool)
	for _, w := range ws {
		evidence := Evidence(w.rule, clinical)
		if applied[w.rule.RuleID] == evidence {
			continue
		}

		if !fired[w.rule.RuleID] {
			fired[w.rule.RuleID] = true
			res.Firings = append(res.Firings, Firing{RuleID: w.rule.RuleID, Evidence: evidence})
		}

		v := byKey[w.effect.VariableKey]
		next, err := apply(v.Value, w.effect.Value)
		if err != nil {
			res.Skipped = append(res.Skipped, Skip{RuleID: w.rule.RuleID, VariableKey: v.Key, Reason: err.Error()})
			continue
		}
		if v.Value != nil && *v.Value == next {
			continue
		}

		res.Updates = append(res.Updates, domain.VariableUpdate{
			VariableID:  v.ID,
			VariableKey: v.Key,
			RuleID:      w.rule.RuleID,
			Previous:    v.Value,
			Value:       next,
		})
	}

	return res
}

// Payload is the rule.applied log entry for f.
func (f Firing) Payload() map[string]any {
	return map[string]any{
		"ruleId":   f.RuleID,
		"evidence": f.Evidence,
	}
}

func ledgerEntry(a domain.Action) (Firing, bool) {
	if a.Key != domain.ActionKeyRuleApplied {
		return Firing{}, false
	}

	b, err := json.Marshal(a.Payload)
	if err != nil {
		return Firing{}, false
	}

	var f Firing
	if err := json.Unmarshal(b, &f); err != nil || f.RuleID == "" {
		return Firing{}, false
	}
	return f, true
}

// Evidence hashes the ids of every logged action a rule's conditions look at.
func Evidence(r *domain.Rule, actions []domain.Action) string {
	keys := make(map[string]bool, len(r.When))
	for _, c := range r.When {
		keys[c.ActionKey] = true
	}

	d := xxhash.New()
	for _, a := range actions {
		if !keys[a.Key] {
			continue
		}
		_, _ = d.WriteString(a.ActionID)
		_, _ = d.Write([]byte{0})
	}
	return strconv.FormatUint(d.Sum64(), 16)
}

func holds(when []domain.Condition, actions []domain.Action) bool {
	for _, c := range when {
		if !holdsOne(c, actions) {
			return false
		}
	}
	return true
}

func holdsOne(c domain.Condition, actions []domain.Action) bool {
	switch c.Kind {
	case domain.ConditionAny:
		for _, a := range actions {
			if matches(c, a) {
				return true
			}
		}
		return false

	case domain.ConditionNone:
		for _, a := range actions {
			if matches(c, a) {
				return false
			}
		}
		return true

	case domain.ConditionSum:
		if c.Threshold == nil || c.Field == "" {
			return false
		}
		sum := decimal.Zero
		for _, a := range actions {
			if a.Key != c.ActionKey {
				continue
			}
			if n, ok := Number(a.Payload[c.Field]); ok {
				sum = sum.Add(n)
			}
		}
		return op(c).Compare(sum, *c.Threshold)
	}

	return false
}

// matches reports whether a satisfies the key and optional payload threshold of c.
// A missing or non-numeric field never satisfies a threshold.
func matches(c domain.Condition, a domain.Action) bool {
	if a.Key != c.ActionKey {
		return false
	}
	if c.Threshold == nil || c.Field == "" {
		return true
	}

	n, ok := Number(a.Payload[c.Field])
	if !ok {
		return false
	}
	return op(c).Compare(n, *c.Threshold)
}

func op(c domain.Condition) domain.CompareOp {
	if c.Op == "" {
		return domain.OpGTE
	}
	return c.Op
}

// Number reads a payload value as a decimal.
func Number(v any) (decimal.Decimal, bool) {
	switch t := v.(type) {
	case float64:
		return decimal.NewFromFloat(t), true
	case float32:
		return decimal.NewFromFloat32(t), true
	case int:
		return decimal.NewFromInt(int64(t)), true
	case int64:
		return decimal.NewFromInt(t), true
	case json.Number:
		d, err := decimal.NewFromString(t.String())
		return d, err == nil
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(t))
		return d, err == nil
	}
	return decimal.Decimal{}, false
}

// apply computes the value an effect leaves on a variable.
func apply(current *string, value string) (string, error) {
	if !isDelta(value) {
		return value, nil
	}

	delta, err := decimal.NewFromString(strings.TrimPrefix(value, "+"))
	if err != nil {
		return "", fmt.Errorf("invalid delta %q", value)
	}
	if current == nil {
		return "", fmt.Errorf("no current value")
	}

	cur, err := decimal.NewFromString(strings.TrimSpace(*current))
	if err != nil {
		return "", fmt.Errorf("current value %q is not numeric", *current)
	}

	return cur.Add(delta).String(), nil
}

func isDelta(v string) bool {
	return len(v) > 1 && (v[0] == '+' || v[0] == '-')
}
