package domain

import (
	"strings"
	"time"
)

type ChecklistStatus string

const (
	StatusOK     ChecklistStatus = "ok"
	StatusWrong  ChecklistStatus = "wrong"
	StatusMissed ChecklistStatus = "missed"
	StatusNA     ChecklistStatus = "na"
)

func (s ChecklistStatus) Valid() bool {
	switch s {
	case StatusOK, StatusWrong, StatusMissed, StatusNA:
		return true
	}
	return false
}

// CoerceStatus normalizes the loosely typed values older payloads use for "done"/"not done"
// (booleans, 0/1, numeric strings, tri-state tags) into the canonical status.
// Anything unrecognized maps to StatusNA.
func CoerceStatus(v any) ChecklistStatus {
	switch t := v.(type) {
	case ChecklistStatus:
		if t.Valid() {
			return t
		}
		return CoerceStatus(string(t))
	case string:
		s := strings.ToLower(strings.TrimSpace(t))
		switch s {
		case "ok", "wrong", "missed", "na":
			return ChecklistStatus(s)
		case "n/a":
			return StatusNA
		case "1", "true":
			return StatusOK
		case "0", "false":
			return StatusMissed
		}
	case bool:
		if t {
			return StatusOK
		}
		return StatusMissed
	case int:
		return coerceNumber(float64(t))
	case int64:
		return coerceNumber(float64(t))
	case float64:
		return coerceNumber(t)
	}

	return StatusNA
}

func coerceNumber(f float64) ChecklistStatus {
	switch f {
	case 1:
		return StatusOK
	case 0:
		return StatusMissed
	}
	return StatusNA
}

type ChecklistKind string

const (
	// ChecklistBinary items are answered with a done/not-done response and mirrored into
	// the canonical status table at finalize.
	ChecklistBinary ChecklistKind = "binary"

	ChecklistTriState ChecklistKind = "tristate"
)

type ChecklistItem struct {
	ItemID   string        `json:"itemId"`
	Label    string        `json:"label"`
	Category string        `json:"category,omitempty"`
	Kind     ChecklistKind `json:"kind"`
	Order    int           `json:"order"`
}

// ChecklistMark is the single current status of an item within a session.
type ChecklistMark struct {
	SessionID  string          `json:"sessionId"`
	ItemID     string          `json:"itemId"`
	Status     ChecklistStatus `json:"status"`
	Note       string          `json:"note,omitempty"`
	UpdateTime time.Time       `json:"updateTime"`
}

// ItemResponse is a raw answer for a binary-style checklist item.
type ItemResponse struct {
	SessionID  string    `json:"sessionId"`
	ItemID     string    `json:"itemId"`
	Value      string    `json:"value"`
	UpdateTime time.Time `json:"updateTime"`
}
