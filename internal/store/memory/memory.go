// Package memory is an in-process store.Store used by tests and the single-node dev mode.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/victornm/simlive/internal/domain"
	"github.com/victornm/simlive/internal/errors"
	"github.com/victornm/simlive/internal/store"
)

type sessionData struct {
	session   domain.Session
	variables map[string]domain.VariableState
	marks     map[string]domain.ChecklistMark
	responses map[string]domain.ItemResponse
	actions   []domain.Action
}

type Store struct {
	mu        sync.Mutex
	scenarios map[string]*domain.Scenario
	sessions  map[string]*sessionData
	codes     map[string]string
	reports   []domain.Report
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		scenarios: make(map[string]*domain.Scenario),
		sessions:  make(map[string]*sessionData),
		codes:     make(map[string]string),
	}
}

func (m *Store) PutScenario(_ context.Context, sc *domain.Scenario) error {
	cp, err := clone(sc)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.scenarios[sc.ScenarioID] = cp
	return nil
}

func (m *Store) GetScenario(_ context.Context, scenarioID string) (*domain.Scenario, error) {
	m.mu.Lock()
	sc, ok := m.scenarios[scenarioID]
	m.mu.Unlock()

	if !ok {
		return nil, errors.NotFound("scenario not found: scenario=%s", scenarioID)
	}
	return clone(sc)
}

func (m *Store) CreateSession(_ context.Context, s *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[s.SessionID]; ok {
		return errors.New(errors.CodeAlreadyExists, errors.WithMessagef("session exists: session=%s", s.SessionID))
	}
	if _, ok := m.codes[s.Code]; ok {
		return errors.New(errors.CodeAlreadyExists, errors.WithMessagef("code in use: code=%s", s.Code))
	}

	cp := *s
	cp.Participants = append([]domain.Participant(nil), s.Participants...)
	m.sessions[s.SessionID] = &sessionData{
		session:   cp,
		variables: make(map[string]domain.VariableState),
		marks:     make(map[string]domain.ChecklistMark),
		responses: make(map[string]domain.ItemResponse),
	}
	m.codes[s.Code] = s.SessionID
	return nil
}

func (m *Store) GetSession(_ context.Context, sessionID string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, err := m.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	return copySession(d.session), nil
}

func (m *Store) GetSessionByCode(ctx context.Context, code string) (*domain.Session, error) {
	m.mu.Lock()
	id, ok := m.codes[code]
	m.mu.Unlock()

	if !ok {
		return nil, errors.NotFound("session not found: code=%s", code)
	}
	return m.GetSession(ctx, id)
}

func (m *Store) PatchSession(_ context.Context, sessionID string, p store.SessionPatch) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, err := m.open(sessionID)
	if err != nil {
		return nil, err
	}

	s := &d.session
	if p.StartedAt != nil && s.StartedAt == nil {
		t := *p.StartedAt
		s.StartedAt = &t
	}
	if p.Banner != nil {
		s.Banner = *p.Banner
	}
	if p.PhaseID != nil {
		s.PhaseID = *p.PhaseID
	}
	if p.AlarmAt != nil {
		t := *p.AlarmAt
		s.AlarmAt = &t
	}
	if p.Participants != nil {
		s.Participants = append([]domain.Participant(nil), p.Participants...)
	}
	s.Revision++

	return copySession(*s), nil
}

func (m *Store) FinalizeSession(_ context.Context, sessionID string, startedAt, endedAt time.Time, marks []domain.ChecklistMark, r *domain.Report) (*domain.Session, error) {
	cp, err := clone(r)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	d, err := m.open(sessionID)
	if err != nil {
		return nil, err
	}

	for _, mk := range marks {
		d.marks[mk.ItemID] = mk
	}

	s := &d.session
	if s.StartedAt == nil {
		s.StartedAt = &startedAt
	}
	s.EndedAt = &endedAt
	s.Report = cp
	s.Revision++

	return copySession(*s), nil
}

func (m *Store) ArchiveReport(_ context.Context, r *domain.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.reports = append(m.reports, *r)
	return nil
}

// Reports returns the archived reports.
func (m *Store) Reports() []domain.Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]domain.Report(nil), m.reports...)
}

func (m *Store) UpsertVariable(_ context.Context, v domain.VariableState) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, err := m.open(v.SessionID)
	if err != nil {
		return 0, err
	}

	v.Value = copyString(v.Value)
	d.variables[v.VariableID] = v
	d.session.Revision++
	return d.session.Revision, nil
}

func (m *Store) ClearVariables(_ context.Context, sessionID string, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, err := m.open(sessionID)
	if err != nil {
		return 0, err
	}

	for id, v := range d.variables {
		v.Revealed = false
		v.UpdateTime = at
		d.variables[id] = v
	}
	d.session.Revision++
	return d.session.Revision, nil
}

func (m *Store) ListVariables(_ context.Context, sessionID string) ([]domain.VariableState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, err := m.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	out := make([]domain.VariableState, 0, len(d.variables))
	for _, v := range d.variables {
		v.Value = copyString(v.Value)
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VariableID < out[j].VariableID })
	return out, nil
}

func (m *Store) UpsertChecklistMarks(_ context.Context, sessionID string, marks []domain.ChecklistMark) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, err := m.open(sessionID)
	if err != nil {
		return 0, err
	}

	for _, mk := range marks {
		d.marks[mk.ItemID] = mk
	}
	d.session.Revision++
	return d.session.Revision, nil
}

func (m *Store) ListChecklistMarks(_ context.Context, sessionID string) ([]domain.ChecklistMark, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, err := m.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	out := make([]domain.ChecklistMark, 0, len(d.marks))
	for _, mk := range d.marks {
		out = append(out, mk)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out, nil
}

func (m *Store) UpsertItemResponse(_ context.Context, r domain.ItemResponse) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, err := m.open(r.SessionID)
	if err != nil {
		return 0, err
	}

	d.responses[r.ItemID] = r
	d.session.Revision++
	return d.session.Revision, nil
}

func (m *Store) ListItemResponses(_ context.Context, sessionID string) ([]domain.ItemResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, err := m.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	out := make([]domain.ItemResponse, 0, len(d.responses))
	for _, r := range d.responses {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out, nil
}

func (m *Store) AppendActions(_ context.Context, sessionID string, actions []domain.Action) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, err := m.open(sessionID)
	if err != nil {
		return 0, err
	}

	for _, a := range actions {
		a.Payload = copyPayload(a.Payload)
		d.actions = append(d.actions, a)
	}
	sort.SliceStable(d.actions, func(i, j int) bool {
		return d.actions[i].CreateTime.Before(d.actions[j].CreateTime)
	})
	d.session.Revision++
	return d.session.Revision, nil
}

func (m *Store) ApplyRules(_ context.Context, sessionID string, vars []domain.VariableState, ledger []domain.Action) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, err := m.open(sessionID)
	if err != nil {
		return 0, err
	}

	for _, v := range vars {
		v.Value = copyString(v.Value)
		d.variables[v.VariableID] = v
	}
	for _, a := range ledger {
		a.Payload = copyPayload(a.Payload)
		d.actions = append(d.actions, a)
	}
	sort.SliceStable(d.actions, func(i, j int) bool {
		return d.actions[i].CreateTime.Before(d.actions[j].CreateTime)
	})
	d.session.Revision += int64(len(vars) + len(ledger))
	return d.session.Revision, nil
}

func (m *Store) ListActions(_ context.Context, sessionID string) ([]domain.Action, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, err := m.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Action, 0, len(d.actions))
	for _, a := range d.actions {
		a.Payload = copyPayload(a.Payload)
		out = append(out, a)
	}
	return out, nil
}

func (m *Store) LatestActionAt(_ context.Context, sessionID string) (*time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, err := m.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	if len(d.actions) == 0 {
		return nil, nil
	}
	t := d.actions[len(d.actions)-1].CreateTime
	return &t, nil
}

func (m *Store) lookup(sessionID string) (*sessionData, error) {
	d, ok := m.sessions[sessionID]
	if !ok {
		return nil, errors.NotFound("session not found: session=%s", sessionID)
	}
	return d, nil
}

// open returns a session that still accepts writes.
func (m *Store) open(sessionID string) (*sessionData, error) {
	d, err := m.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	if d.session.Closed() {
		return nil, errors.SessionClosed(sessionID)
	}
	return d, nil
}

func copySession(s domain.Session) *domain.Session {
	s.Participants = append([]domain.Participant(nil), s.Participants...)
	return &s
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func copyPayload(p map[string]any) map[string]any {
	if p == nil {
		return nil
	}
	cp, err := clone(&p)
	if err != nil {
		return p
	}
	return *cp
}

// clone deep-copies through JSON, which is also the shape the relational store keeps.
func clone[T any](v *T) (*T, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("memory: clone: %w", err)
	}

	out := new(T)
	if err := json.Unmarshal(b, out); err != nil {
		return nil, fmt.Errorf("memory: clone: %w", err)
	}
	return out, nil
}
