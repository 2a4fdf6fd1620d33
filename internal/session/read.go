package session

import (
	"context"

	"github.com/victornm/simlive/internal/domain"
	"github.com/victornm/simlive/internal/errors"
)

// JoinByCode resolves a public join code to the session snapshot.
func (s *Service) JoinByCode(ctx context.Context, code string) (*domain.Snapshot, error) {
	if code == "" {
		return nil, errors.ValidationFailed("join code is required")
	}

	ss, err := s.st.GetSessionByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	return s.Snapshot(ctx, ss.SessionID)
}

// Snapshot returns everything a viewer renders. Hidden variables are left out.
func (s *Service) Snapshot(ctx context.Context, sessionID string) (*domain.Snapshot, error) {
	defer s.lock(sessionID)()

	ss, err := s.st.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	sc, err := s.st.GetScenario(ctx, ss.ScenarioID)
	if err != nil {
		return nil, err
	}

	states, err := s.st.ListVariables(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	latest, err := s.st.LatestActionAt(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]domain.VariableState, len(states))
	for _, st := range states {
		byID[st.VariableID] = st
	}

	snap := &domain.Snapshot{
		SessionID:      ss.SessionID,
		Code:           ss.Code,
		ScenarioID:     ss.ScenarioID,
		Banner:         ss.Banner,
		StartedAt:      ss.StartedAt,
		EndedAt:        ss.EndedAt,
		AlarmAt:        ss.AlarmAt,
		LatestActionAt: latest,
		Variables:      []domain.VariableView{},
		Participants:   ss.Participants,
		Revision:       ss.Revision,
		Fingerprint:    domain.NewFingerprint(ss, latest).Sum(),
	}

	if p, ok := sc.Phase(ss.PhaseID); ok {
		snap.Phase = &domain.PhaseView{ID: p.PhaseID, Name: p.Name}
	}

	for _, def := range sc.Variables {
		if st, ok := byID[def.VariableID]; ok && st.Revealed {
			snap.Variables = append(snap.Variables, domain.NewVariableView(def, st))
		}
	}

	return snap, nil
}

// Fingerprint computes the poll fingerprint straight from the store.
func (s *Service) Fingerprint(ctx context.Context, sessionID string) (domain.Fingerprint, error) {
	ss, err := s.st.GetSession(ctx, sessionID)
	if err != nil {
		return domain.Fingerprint{}, err
	}

	latest, err := s.st.LatestActionAt(ctx, sessionID)
	if err != nil {
		return domain.Fingerprint{}, err
	}

	return domain.NewFingerprint(ss, latest), nil
}

// Report returns the report stored at finalize.
func (s *Service) Report(ctx context.Context, sessionID string) (*domain.Report, error) {
	ss, err := s.st.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if ss.Report == nil {
		return nil, errors.NotFound("report not available until the session is finalized: session=%s", sessionID)
	}

	return ss.Report, nil
}
