package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/simlive/internal/domain"
	"github.com/victornm/simlive/internal/errors"
	"github.com/victornm/simlive/internal/store"
)

//go:embed schema.sql
var schema string

const codeUniqueViolation = "23505"

const sessionColumns = `session_id, public_code, scenario_id, started_at, ended_at, current_phase_id,
banner_text, alarm_at, participants, revision, report_json, create_time`

type Config struct {
	DB *pgxpool.Pool
}

type Store struct {
	db *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

func New(c Config) *Store {
	return &Store{db: c.DB}
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

func (s *Store) PutScenario(ctx context.Context, sc *domain.Scenario) error {
	const stmt = `
INSERT INTO scenarios (scenario_id, title, definition) VALUES ($1, $2, $3)
ON CONFLICT (scenario_id) DO UPDATE SET title = EXCLUDED.title, definition = EXCLUDED.definition;`

	def, err := json.Marshal(sc)
	if err != nil {
		return fmt.Errorf("marshal scenario: %w", err)
	}

	if _, err := s.db.Exec(ctx, stmt, sc.ScenarioID, sc.Title, def); err != nil {
		return fmt.Errorf("put scenario: %w", err)
	}
	return nil
}

func (s *Store) GetScenario(ctx context.Context, scenarioID string) (*domain.Scenario, error) {
	const stmt = `SELECT definition FROM scenarios WHERE scenario_id = $1;`

	var def []byte
	err := s.db.QueryRow(ctx, stmt, scenarioID).Scan(&def)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("scenario not found: scenario=%s", scenarioID)
	}
	if err != nil {
		return nil, fmt.Errorf("get scenario: %w", err)
	}

	var sc domain.Scenario
	if err := json.Unmarshal(def, &sc); err != nil {
		return nil, fmt.Errorf("unmarshal scenario: %w", err)
	}
	return &sc, nil
}

func (s *Store) CreateSession(ctx context.Context, ss *domain.Session) error {
	const stmt = `
INSERT INTO presencial_sessions (session_id, public_code, scenario_id, participants, create_time)
VALUES ($1, $2, $3, $4, $5);`

	participants, err := json.Marshal(nonNil(ss.Participants))
	if err != nil {
		return fmt.Errorf("marshal participants: %w", err)
	}

	_, err = s.db.Exec(ctx, stmt, ss.SessionID, ss.Code, ss.ScenarioID, participants, ss.CreateTime)

	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		return errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("session or code already exists: code=%s", ss.Code),
			errors.WithCause(err))
	}
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	stmt := `SELECT ` + sessionColumns + ` FROM presencial_sessions WHERE session_id = $1;`

	ss, err := scanSession(s.db.QueryRow(ctx, stmt, sessionID))
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("session not found: session=%s", sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return ss, nil
}

func (s *Store) GetSessionByCode(ctx context.Context, code string) (*domain.Session, error) {
	stmt := `SELECT ` + sessionColumns + ` FROM presencial_sessions WHERE public_code = $1;`

	ss, err := scanSession(s.db.QueryRow(ctx, stmt, code))
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("session not found: code=%s", code)
	}
	if err != nil {
		return nil, fmt.Errorf("get session by code: %w", err)
	}
	return ss, nil
}

func (s *Store) PatchSession(ctx context.Context, sessionID string, p store.SessionPatch) (*domain.Session, error) {
	stmt := `
UPDATE presencial_sessions SET
	started_at = COALESCE(started_at, $2),
	banner_text = COALESCE($3, banner_text),
	current_phase_id = COALESCE($4, current_phase_id),
	alarm_at = COALESCE($5, alarm_at),
	participants = COALESCE($6, participants),
	revision = revision + 1
WHERE session_id = $1 AND ended_at IS NULL
RETURNING ` + sessionColumns + `;`

	var participants []byte
	if p.Participants != nil {
		b, err := json.Marshal(p.Participants)
		if err != nil {
			return nil, fmt.Errorf("marshal participants: %w", err)
		}
		participants = b
	}

	ss, err := scanSession(s.db.QueryRow(ctx, stmt, sessionID, p.StartedAt, p.Banner, p.PhaseID, p.AlarmAt, participants))
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, s.closedOrMissing(ctx, s.db, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("patch session: %w", err)
	}
	return ss, nil
}

func (s *Store) FinalizeSession(ctx context.Context, sessionID string, startedAt, endedAt time.Time, marks []domain.ChecklistMark, r *domain.Report) (*domain.Session, error) {
	stmt := `
UPDATE presencial_sessions SET
	started_at = COALESCE(started_at, $2),
	ended_at = $3,
	report_json = $4
WHERE session_id = $1
RETURNING ` + sessionColumns + `;`

	report, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}

	var ss *domain.Session
	_, err = s.mutate(ctx, sessionID, func(tx pgx.Tx) error {
		if len(marks) > 0 {
			b := new(pgx.Batch)
			for _, m := range marks {
				b.Queue(checklistStmt, sessionID, m.ItemID, string(m.Status), m.Note, m.UpdateTime)
			}
			if err := tx.SendBatch(ctx, b).Close(); err != nil {
				return fmt.Errorf("mirror checklist: %w", err)
			}
		}

		var err error
		if ss, err = scanSession(tx.QueryRow(ctx, stmt, sessionID, startedAt, endedAt, report)); err != nil {
			return fmt.Errorf("finalize session: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ss, nil
}

func (s *Store) ArchiveReport(ctx context.Context, r *domain.Report) error {
	const stmt = `
INSERT INTO presencial_reports (session_id, scenario_id, duration_sec, payload, create_time)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (session_id) DO NOTHING;`

	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	if _, err := s.db.Exec(ctx, stmt, r.SessionID, r.ScenarioID, r.DurationSeconds, payload, r.EndedAt); err != nil {
		return fmt.Errorf("archive report: %w", err)
	}
	return nil
}

func (s *Store) UpsertVariable(ctx context.Context, v domain.VariableState) (int64, error) {
	const stmt = `
INSERT INTO session_variables (session_id, variable_id, is_revealed, value, update_time)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (session_id, variable_id) DO UPDATE SET
	is_revealed = EXCLUDED.is_revealed,
	value = EXCLUDED.value,
	update_time = EXCLUDED.update_time;`

	return s.mutate(ctx, v.SessionID, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, stmt, v.SessionID, v.VariableID, v.Revealed, v.Value, v.UpdateTime); err != nil {
			return fmt.Errorf("upsert variable: %w", err)
		}
		return nil
	})
}

func (s *Store) ClearVariables(ctx context.Context, sessionID string, at time.Time) (int64, error) {
	const stmt = `UPDATE session_variables SET is_revealed = FALSE, update_time = $2 WHERE session_id = $1;`

	return s.mutate(ctx, sessionID, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, stmt, sessionID, at); err != nil {
			return fmt.Errorf("clear variables: %w", err)
		}
		return nil
	})
}

func (s *Store) ListVariables(ctx context.Context, sessionID string) ([]domain.VariableState, error) {
	const stmt = `
SELECT variable_id, is_revealed, value, update_time
FROM session_variables
WHERE session_id = $1
ORDER BY variable_id;`

	rows, err := s.db.Query(ctx, stmt, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list variables: %w", err)
	}

	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.VariableState, error) {
		v := domain.VariableState{SessionID: sessionID}
		err := r.Scan(&v.VariableID, &v.Revealed, &v.Value, &v.UpdateTime)
		return v, err
	})
}

const checklistStmt = `
INSERT INTO session_checklist (session_id, item_id, status, note, update_time)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (session_id, item_id) DO UPDATE SET
	status = EXCLUDED.status,
	note = EXCLUDED.note,
	update_time = EXCLUDED.update_time;`

func (s *Store) UpsertChecklistMarks(ctx context.Context, sessionID string, marks []domain.ChecklistMark) (int64, error) {
	return s.mutate(ctx, sessionID, func(tx pgx.Tx) error {
		b := new(pgx.Batch)
		for _, m := range marks {
			b.Queue(checklistStmt, sessionID, m.ItemID, string(m.Status), m.Note, m.UpdateTime)
		}
		if err := tx.SendBatch(ctx, b).Close(); err != nil {
			return fmt.Errorf("upsert checklist: %w", err)
		}
		return nil
	})
}

func (s *Store) ListChecklistMarks(ctx context.Context, sessionID string) ([]domain.ChecklistMark, error) {
	const stmt = `
SELECT item_id, status, note, update_time
FROM session_checklist
WHERE session_id = $1
ORDER BY item_id;`

	rows, err := s.db.Query(ctx, stmt, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list checklist: %w", err)
	}

	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.ChecklistMark, error) {
		m := domain.ChecklistMark{SessionID: sessionID}
		var status string
		err := r.Scan(&m.ItemID, &status, &m.Note, &m.UpdateTime)
		m.Status = domain.ChecklistStatus(status)
		return m, err
	})
}

func (s *Store) UpsertItemResponse(ctx context.Context, r domain.ItemResponse) (int64, error) {
	const stmt = `
INSERT INTO session_item_responses (session_id, item_id, value, update_time)
VALUES ($1, $2, $3, $4)
ON CONFLICT (session_id, item_id) DO UPDATE SET value = EXCLUDED.value, update_time = EXCLUDED.update_time;`

	return s.mutate(ctx, r.SessionID, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, stmt, r.SessionID, r.ItemID, r.Value, r.UpdateTime); err != nil {
			return fmt.Errorf("upsert item response: %w", err)
		}
		return nil
	})
}

func (s *Store) ListItemResponses(ctx context.Context, sessionID string) ([]domain.ItemResponse, error) {
	const stmt = `
SELECT item_id, value, update_time
FROM session_item_responses
WHERE session_id = $1
ORDER BY item_id;`

	rows, err := s.db.Query(ctx, stmt, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list item responses: %w", err)
	}

	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.ItemResponse, error) {
		ir := domain.ItemResponse{SessionID: sessionID}
		err := r.Scan(&ir.ItemID, &ir.Value, &ir.UpdateTime)
		return ir, err
	})
}

func (s *Store) AppendActions(ctx context.Context, sessionID string, actions []domain.Action) (int64, error) {
	const stmt = `
INSERT INTO session_actions (action_id, session_id, action_key, payload, phase_id, create_time)
VALUES ($1, $2, $3, $4, $5, $6);`

	return s.mutate(ctx, sessionID, func(tx pgx.Tx) error {
		b := new(pgx.Batch)
		for _, a := range actions {
			b.Queue(stmt, a.ActionID, sessionID, a.Key, a.Payload, a.PhaseID, a.CreateTime)
		}
		if err := tx.SendBatch(ctx, b).Close(); err != nil {
			return fmt.Errorf("append actions: %w", err)
		}
		return nil
	})
}

func (s *Store) ApplyRules(ctx context.Context, sessionID string, vars []domain.VariableState, ledger []domain.Action) (int64, error) {
	const (
		varStmt = `
INSERT INTO session_variables (session_id, variable_id, is_revealed, value, update_time)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (session_id, variable_id) DO UPDATE SET
	value = EXCLUDED.value,
	update_time = EXCLUDED.update_time;`

		actionStmt = `
INSERT INTO session_actions (action_id, session_id, action_key, payload, phase_id, create_time)
VALUES ($1, $2, $3, $4, $5, $6);`
	)

	return s.mutateBy(ctx, sessionID, len(vars)+len(ledger), func(tx pgx.Tx) error {
		b := new(pgx.Batch)
		for _, v := range vars {
			b.Queue(varStmt, sessionID, v.VariableID, v.Revealed, v.Value, v.UpdateTime)
		}
		for _, a := range ledger {
			b.Queue(actionStmt, a.ActionID, sessionID, a.Key, a.Payload, a.PhaseID, a.CreateTime)
		}
		if err := tx.SendBatch(ctx, b).Close(); err != nil {
			return fmt.Errorf("apply rules: %w", err)
		}
		return nil
	})
}

func (s *Store) ListActions(ctx context.Context, sessionID string) ([]domain.Action, error) {
	const stmt = `
SELECT action_id, action_key, payload, phase_id, create_time
FROM session_actions
WHERE session_id = $1
ORDER BY create_time, seq;`

	rows, err := s.db.Query(ctx, stmt, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}

	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Action, error) {
		a := domain.Action{SessionID: sessionID}
		err := r.Scan(&a.ActionID, &a.Key, &a.Payload, &a.PhaseID, &a.CreateTime)
		return a, err
	})
}

func (s *Store) LatestActionAt(ctx context.Context, sessionID string) (*time.Time, error) {
	const stmt = `SELECT max(create_time) FROM session_actions WHERE session_id = $1;`

	var t *time.Time
	if err := s.db.QueryRow(ctx, stmt, sessionID).Scan(&t); err != nil {
		return nil, fmt.Errorf("latest action: %w", err)
	}
	return t, nil
}

// mutate runs fn in a transaction after bumping the revision of an open session.
func (s *Store) mutate(ctx context.Context, sessionID string, fn func(tx pgx.Tx) error) (int64, error) {
	return s.mutateBy(ctx, sessionID, 1, fn)
}

// mutateBy is mutate advancing the revision by n.
func (s *Store) mutateBy(ctx context.Context, sessionID string, n int, fn func(tx pgx.Tx) error) (rev int64, err error) {
	const bumpStmt = `
UPDATE presencial_sessions SET revision = revision + $2
WHERE session_id = $1 AND ended_at IS NULL
RETURNING revision;`

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = stderrors.Join(err, tx.Rollback(ctx))
		}
	}()

	err = tx.QueryRow(ctx, bumpStmt, sessionID, n).Scan(&rev)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return 0, s.closedOrMissing(ctx, tx, sessionID)
	}
	if err != nil {
		return 0, fmt.Errorf("bump revision: %w", err)
	}

	if err = fn(tx); err != nil {
		return 0, err
	}

	if err = tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return rev, nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *Store) closedOrMissing(ctx context.Context, q querier, sessionID string) error {
	const stmt = `SELECT ended_at IS NOT NULL FROM presencial_sessions WHERE session_id = $1;`

	var closed bool
	err := q.QueryRow(ctx, stmt, sessionID).Scan(&closed)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return errors.NotFound("session not found: session=%s", sessionID)
	}
	if err != nil {
		return fmt.Errorf("check session: %w", err)
	}
	if closed {
		return errors.SessionClosed(sessionID)
	}
	return fmt.Errorf("session %s was not updated", sessionID)
}

func scanSession(row pgx.Row) (*domain.Session, error) {
	var (
		ss           domain.Session
		participants []byte
		report       []byte
	)

	err := row.Scan(
		&ss.SessionID, &ss.Code, &ss.ScenarioID, &ss.StartedAt, &ss.EndedAt, &ss.PhaseID,
		&ss.Banner, &ss.AlarmAt, &participants, &ss.Revision, &report, &ss.CreateTime,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(participants, &ss.Participants); err != nil {
		return nil, fmt.Errorf("unmarshal participants: %w", err)
	}
	if report != nil {
		ss.Report = new(domain.Report)
		if err := json.Unmarshal(report, ss.Report); err != nil {
			return nil, fmt.Errorf("unmarshal report: %w", err)
		}
	}

	return &ss, nil
}

func nonNil(p []domain.Participant) []domain.Participant {
	if p == nil {
		return []domain.Participant{}
	}
	return p
}
