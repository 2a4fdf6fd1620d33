package domain

import (
	"github.com/shopspring/decimal"
)

type ConditionKind string

const (
	// ConditionAny holds when at least one action matches the key and threshold.
	ConditionAny ConditionKind = "any"
	// ConditionNone holds when no action matches the key and threshold.
	ConditionNone ConditionKind = "none"
	// ConditionSum compares the sum of a payload field across actions with the key.
	ConditionSum ConditionKind = "sum"
)

type CompareOp string

const (
	OpGTE CompareOp = "gte"
	OpGT  CompareOp = "gt"
	OpLTE CompareOp = "lte"
	OpLT  CompareOp = "lt"
	OpEQ  CompareOp = "eq"
)

// Compare applies op to a and b. An unknown op never holds.
func (op CompareOp) Compare(a, b decimal.Decimal) bool {
	switch op {
	case OpGTE:
		return a.GreaterThanOrEqual(b)
	case OpGT:
		return a.GreaterThan(b)
	case OpLTE:
		return a.LessThanOrEqual(b)
	case OpLT:
		return a.LessThan(b)
	case OpEQ:
		return a.Equal(b)
	}
	return false
}

type Condition struct {
	Kind      ConditionKind    `json:"kind"`
	ActionKey string           `json:"actionKey"`
	Field     string           `json:"field,omitempty"`
	Op        CompareOp        `json:"op,omitempty"`
	Threshold *decimal.Decimal `json:"threshold,omitempty"`
}

// Effect sets a variable. A Value starting with '+' or '-' is a delta, anything else is absolute.
type Effect struct {
	VariableKey string `json:"variableKey"`
	Value       string `json:"value"`
}

type Rule struct {
	RuleID   string      `json:"ruleId"`
	Priority int         `json:"priority"`
	When     []Condition `json:"when"`
	Effects  []Effect    `json:"effects"`
}

// VariableUpdate is a value change computed by rule evaluation.
type VariableUpdate struct {
	VariableID  string  `json:"variableId"`
	VariableKey string  `json:"variableKey"`
	RuleID      string  `json:"ruleId"`
	Previous    *string `json:"previous,omitempty"`
	Value       string  `json:"value"`
}
