// Package store defines the persistence contract of a live session.
//
// Every mutating call is atomic per (session, entity) and bumps the session revision.
// Calls against a session whose terminal marker is set fail with a SessionClosed error,
// except FinalizeSession which is the one write allowed to set it.
package store

import (
	"context"
	"time"

	"github.com/victornm/simlive/internal/domain"
)

// SessionPatch lists the session columns a mutation changes. Nil fields are left untouched.
type SessionPatch struct {
	StartedAt    *time.Time
	Banner       *string
	PhaseID      *string
	AlarmAt      *time.Time
	Participants []domain.Participant
}

type Store interface {
	PutScenario(ctx context.Context, sc *domain.Scenario) error
	GetScenario(ctx context.Context, scenarioID string) (*domain.Scenario, error)

	// CreateSession inserts s. A duplicate join code yields an AlreadyExists error.
	CreateSession(ctx context.Context, s *domain.Session) error
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)
	GetSessionByCode(ctx context.Context, code string) (*domain.Session, error)
	PatchSession(ctx context.Context, sessionID string, p SessionPatch) (*domain.Session, error)
	// FinalizeSession upserts the mirrored checklist marks, sets the terminal marker and stores
	// the report in one write.
	FinalizeSession(ctx context.Context, sessionID string, startedAt, endedAt time.Time, marks []domain.ChecklistMark, r *domain.Report) (*domain.Session, error)
	ArchiveReport(ctx context.Context, r *domain.Report) error

	UpsertVariable(ctx context.Context, v domain.VariableState) (int64, error)
	ClearVariables(ctx context.Context, sessionID string, at time.Time) (int64, error)
	ListVariables(ctx context.Context, sessionID string) ([]domain.VariableState, error)

	UpsertChecklistMarks(ctx context.Context, sessionID string, marks []domain.ChecklistMark) (int64, error)
	ListChecklistMarks(ctx context.Context, sessionID string) ([]domain.ChecklistMark, error)
	UpsertItemResponse(ctx context.Context, r domain.ItemResponse) (int64, error)
	ListItemResponses(ctx context.Context, sessionID string) ([]domain.ItemResponse, error)

	AppendActions(ctx context.Context, sessionID string, actions []domain.Action) (int64, error)
	// ApplyRules stores rule updates and their rule.applied entries in one write. The revision
	// advances once per variable and once per entry, in that order, and the last one is returned.
	ApplyRules(ctx context.Context, sessionID string, vars []domain.VariableState, ledger []domain.Action) (int64, error)
	// ListActions returns the log ordered by creation time, then insertion order.
	ListActions(ctx context.Context, sessionID string) ([]domain.Action, error)
	LatestActionAt(ctx context.Context, sessionID string) (*time.Time, error)
}
