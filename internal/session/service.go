package session

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/victornm/simlive/internal/domain"
	"github.com/victornm/simlive/internal/errors"
	"github.com/victornm/simlive/internal/event"
	"github.com/victornm/simlive/internal/report"
	"github.com/victornm/simlive/internal/store"
)

const (
	codeAlphabet   = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	defaultCodeLen = 6
	codeAttempts   = 5
)

var mutations = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "simlive_session_mutations_total",
	Help: "Publisher operations by result.",
}, []string{"op", "result"})

type Config struct {
	Store    store.Store
	EventBus *event.Bus
	// Now defaults to time.Now.
	Now     func() time.Time
	CodeLen int
}

// Service is the publisher controller: the single writer of every live session.
// Mutations on the same session are serialized in arrival order.
type Service struct {
	st       store.Store
	eb       *event.Bus
	now      func() time.Time
	codeLen  int
	validate *validator.Validate

	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func NewService(c Config) *Service {
	s := &Service{
		st:       c.Store,
		eb:       c.EventBus,
		now:      c.Now,
		codeLen:  c.CodeLen,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		locks:    make(map[string]*sessionLock),
	}

	if s.now == nil {
		s.now = time.Now
	}
	if s.codeLen <= 0 {
		s.codeLen = defaultCodeLen
	}

	return s
}

// CreateSessionRequest represents a request to open a new live session.
type CreateSessionRequest struct {
	ScenarioID   string               `validate:"required"`
	Participants []domain.Participant `validate:"dive"`
}

// CreateSession creates a session with a fresh id and join code.
func (s *Service) CreateSession(ctx context.Context, req CreateSessionRequest) (ss *domain.Session, err error) {
	defer observe("create_session", &err)

	if err := s.check(req); err != nil {
		return nil, err
	}

	if _, err := s.st.GetScenario(ctx, req.ScenarioID); err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate session ID: %w", err)
	}

	ss = &domain.Session{
		SessionID:    id.String(),
		ScenarioID:   req.ScenarioID,
		Participants: append([]domain.Participant{}, req.Participants...),
		CreateTime:   s.clock(),
	}

	for i := 0; i < codeAttempts; i++ {
		if ss.Code, err = s.newCode(); err != nil {
			return nil, err
		}

		err = s.st.CreateSession(ctx, ss)
		if !errors.Is(err, errors.CodeAlreadyExists) {
			break
		}
	}
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "session: created", "session", ss.SessionID, "code", ss.Code, "scenario", ss.ScenarioID)

	s.eb.Publish(ctx, domain.EventSessionCreated{
		EventMeta: domain.EventMeta{SessionID: ss.SessionID, Revision: ss.Revision},
		Session:   *ss,
	})

	return ss, nil
}

type SetParticipantsRequest struct {
	SessionID    string               `validate:"required"`
	Participants []domain.Participant `validate:"dive"`
}

// SetParticipants replaces the roster. It is refused once any action has been recorded.
func (s *Service) SetParticipants(ctx context.Context, req SetParticipantsRequest) (ss *domain.Session, err error) {
	defer observe("set_participants", &err)

	if err := s.check(req); err != nil {
		return nil, err
	}

	defer s.lock(req.SessionID)()

	latest, err := s.st.LatestActionAt(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if latest != nil {
		return nil, errors.ValidationFailed("participants are locked once actions are recorded: session=%s", req.SessionID)
	}

	ss, err = s.st.PatchSession(ctx, req.SessionID, store.SessionPatch{
		Participants: append([]domain.Participant{}, req.Participants...),
	})
	if err != nil {
		return nil, err
	}

	s.eb.Publish(ctx, domain.EventParticipantsChanged{
		EventMeta:    meta(ss),
		Participants: ss.Participants,
	})

	return ss, nil
}

type StartRequest struct {
	SessionID string `validate:"required"`
}

// Start sets the start anchor. Starting an already running session returns it unchanged.
func (s *Service) Start(ctx context.Context, req StartRequest) (ss *domain.Session, err error) {
	defer observe("start", &err)

	if err := s.check(req); err != nil {
		return nil, err
	}

	defer s.lock(req.SessionID)()

	ss, err = s.st.GetSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if ss.Closed() {
		return nil, errors.SessionClosed(ss.SessionID)
	}
	if ss.StartedAt != nil {
		return ss, nil
	}

	now := s.clock()
	ss, err = s.st.PatchSession(ctx, req.SessionID, store.SessionPatch{StartedAt: &now})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "session: started", "session", ss.SessionID)

	s.eb.Publish(ctx, domain.EventSessionStarted{
		EventMeta: meta(ss),
		StartedAt: *ss.StartedAt,
	})

	return ss, nil
}

type FinalizeRequest struct {
	SessionID string `validate:"required"`
}

// Finalize closes the session and stores its report. Finalizing a closed session returns the
// stored report unchanged. A session that never started gets its start anchor backfilled to
// the finalize time.
func (s *Service) Finalize(ctx context.Context, req FinalizeRequest) (r *domain.Report, err error) {
	defer observe("finalize", &err)

	if err := s.check(req); err != nil {
		return nil, err
	}

	defer s.lock(req.SessionID)()

	ss, err := s.st.GetSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if ss.Closed() {
		if ss.Report == nil {
			return nil, errors.Internal(fmt.Errorf("closed session %s has no report", ss.SessionID))
		}
		return ss.Report, nil
	}
	if len(ss.Participants) == 0 {
		return nil, errors.ValidationFailed("cannot finalize a session without participants: session=%s", ss.SessionID)
	}

	sc, err := s.st.GetScenario(ctx, ss.ScenarioID)
	if err != nil {
		return nil, err
	}

	endedAt := s.clock()
	startedAt := endedAt
	if ss.StartedAt != nil {
		startedAt = *ss.StartedAt
	}

	mirrored, err := s.mirrorResponses(ctx, sc, ss.SessionID, endedAt)
	if err != nil {
		return nil, err
	}

	in := report.Input{
		Session:   ss,
		Scenario:  sc,
		StartedAt: startedAt,
		EndedAt:   endedAt,
	}
	if in.Variables, err = s.st.ListVariables(ctx, ss.SessionID); err != nil {
		return nil, err
	}
	if in.Marks, err = s.st.ListChecklistMarks(ctx, ss.SessionID); err != nil {
		return nil, err
	}
	in.Marks = mergeMarks(in.Marks, mirrored)
	if in.Actions, err = s.st.ListActions(ctx, ss.SessionID); err != nil {
		return nil, err
	}

	r = report.Assemble(in)

	// The mirror lands with the terminal marker, so a failed finalize leaves the checklist as it was.
	ss, err = s.st.FinalizeSession(ctx, ss.SessionID, startedAt, endedAt, mirrored, r)
	if err != nil {
		return nil, err
	}
	// Return what was stored so every later call sees the same value.
	r = ss.Report

	if err := s.st.ArchiveReport(ctx, r); err != nil {
		slog.ErrorContext(ctx, "session: archive report failed", "session", ss.SessionID, "error", err)
	}

	slog.InfoContext(ctx, "session: finalized", "session", ss.SessionID, "duration_seconds", r.DurationSeconds)

	s.eb.Publish(ctx, domain.EventSessionEnded{
		EventMeta: meta(ss),
		StartedAt: *ss.StartedAt,
		EndedAt:   *ss.EndedAt,
		Report:    r,
	})

	return r, nil
}

// mirrorResponses returns the canonical marks for binary item answers.
func (s *Service) mirrorResponses(ctx context.Context, sc *domain.Scenario, sessionID string, at time.Time) ([]domain.ChecklistMark, error) {
	responses, err := s.st.ListItemResponses(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(responses) == 0 {
		return nil, nil
	}

	marks, err := s.st.ListChecklistMarks(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	return report.MirrorResponses(sc, responses, marks, at), nil
}

// mergeMarks overlays mirrored on marks by item.
func mergeMarks(marks, mirrored []domain.ChecklistMark) []domain.ChecklistMark {
	if len(mirrored) == 0 {
		return marks
	}

	idx := make(map[string]int, len(marks))
	out := append([]domain.ChecklistMark(nil), marks...)
	for i, m := range out {
		idx[m.ItemID] = i
	}
	for _, m := range mirrored {
		if i, ok := idx[m.ItemID]; ok {
			out[i] = m
			continue
		}
		idx[m.ItemID] = len(out)
		out = append(out, m)
	}
	return out
}

type SetBannerRequest struct {
	SessionID string `validate:"required"`
	Text      string
}

// SetBanner replaces the narrative banner. An empty text clears it.
func (s *Service) SetBanner(ctx context.Context, req SetBannerRequest) (ss *domain.Session, err error) {
	defer observe("set_banner", &err)

	if err := s.check(req); err != nil {
		return nil, err
	}

	defer s.lock(req.SessionID)()

	ss, err = s.st.PatchSession(ctx, req.SessionID, store.SessionPatch{Banner: &req.Text})
	if err != nil {
		return nil, err
	}

	s.eb.Publish(ctx, domain.EventBannerChanged{
		EventMeta: meta(ss),
		Banner:    ss.Banner,
	})

	return ss, nil
}

type SetPhaseRequest struct {
	SessionID string `validate:"required"`
	// PhaseID empty clears the current phase.
	PhaseID string
}

func (s *Service) SetPhase(ctx context.Context, req SetPhaseRequest) (ss *domain.Session, err error) {
	defer observe("set_phase", &err)

	if err := s.check(req); err != nil {
		return nil, err
	}

	defer s.lock(req.SessionID)()

	ss, sc, err := s.load(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	var view *domain.PhaseView
	if req.PhaseID != "" {
		p, ok := sc.Phase(req.PhaseID)
		if !ok {
			return nil, errors.ValidationFailed("unknown phase: phase=%s scenario=%s", req.PhaseID, sc.ScenarioID)
		}
		view = &domain.PhaseView{ID: p.PhaseID, Name: p.Name}
	}

	ss, err = s.st.PatchSession(ctx, ss.SessionID, store.SessionPatch{PhaseID: &req.PhaseID})
	if err != nil {
		return nil, err
	}

	s.eb.Publish(ctx, domain.EventPhaseChanged{
		EventMeta: meta(ss),
		Phase:     view,
	})

	return ss, nil
}

type RaiseAlarmRequest struct {
	SessionID string `validate:"required"`
}

// RaiseAlarm stamps the alarm time. Viewers turn it into a banner cue.
func (s *Service) RaiseAlarm(ctx context.Context, req RaiseAlarmRequest) (ss *domain.Session, err error) {
	defer observe("raise_alarm", &err)

	if err := s.check(req); err != nil {
		return nil, err
	}

	defer s.lock(req.SessionID)()

	now := s.clock()
	ss, err = s.st.PatchSession(ctx, req.SessionID, store.SessionPatch{AlarmAt: &now})
	if err != nil {
		return nil, err
	}

	s.eb.Publish(ctx, domain.EventAlarmRaised{
		EventMeta: meta(ss),
		At:        *ss.AlarmAt,
	})

	return ss, nil
}

func (s *Service) load(ctx context.Context, sessionID string) (*domain.Session, *domain.Scenario, error) {
	ss, err := s.st.GetSession(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if ss.Closed() {
		return nil, nil, errors.SessionClosed(sessionID)
	}

	sc, err := s.st.GetScenario(ctx, ss.ScenarioID)
	if err != nil {
		return nil, nil, err
	}

	return ss, sc, nil
}

func (s *Service) check(req any) error {
	if err := s.validate.Struct(req); err != nil {
		return errors.New(errors.CodeValidationFailed, errors.WithMessagef("%s", err), errors.WithCause(err))
	}
	return nil
}

// lock serializes the calls of one session. Call the returned func to release.
func (s *Service) lock(sessionID string) (unlock func()) {
	s.mu.Lock()
	l, ok := s.locks[sessionID]
	if !ok {
		l = new(sessionLock)
		s.locks[sessionID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, sessionID)
		}
		s.mu.Unlock()
	}
}

// clock returns the current time at the precision both stores keep.
func (s *Service) clock() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func (s *Service) newCode() (string, error) {
	b := make([]byte, s.codeLen)
	limit := big.NewInt(int64(len(codeAlphabet)))
	for i := range b {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("generate join code: %w", err)
		}
		b[i] = codeAlphabet[n.Int64()]
	}
	return string(b), nil
}

func meta(ss *domain.Session) domain.EventMeta {
	return domain.EventMeta{SessionID: ss.SessionID, Revision: ss.Revision}
}

func observe(op string, err *error) {
	result := "ok"
	if *err != nil {
		result = errors.Convert(*err).Code.String()
	}
	mutations.WithLabelValues(op, result).Inc()
}
