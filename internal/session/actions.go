package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/victornm/simlive/internal/domain"
	"github.com/victornm/simlive/internal/errors"
	"github.com/victornm/simlive/internal/rules"
)

type AppendActionRequest struct {
	SessionID string `validate:"required"`
	Key       string `validate:"required"`
	Payload   map[string]any
}

// AppendAction records a clinical intervention. Scenarios with automatic evaluation re-run
// their rules right after.
func (s *Service) AppendAction(ctx context.Context, req AppendActionRequest) (a *domain.Action, err error) {
	defer observe("append_action", &err)

	if err := s.check(req); err != nil {
		return nil, err
	}
	if req.Key == domain.ActionKeyRuleApplied {
		return nil, errors.ValidationFailed("action key %q is reserved", req.Key)
	}

	defer s.lock(req.SessionID)()

	ss, sc, err := s.load(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate action ID: %w", err)
	}

	act := domain.Action{
		ActionID:   id.String(),
		SessionID:  ss.SessionID,
		Key:        req.Key,
		Payload:    req.Payload,
		PhaseID:    ss.PhaseID,
		CreateTime: s.clock(),
	}

	if err := s.appendActions(ctx, ss.SessionID, act); err != nil {
		return nil, err
	}

	if sc.AutoEvaluate {
		if _, err := s.reevaluate(ctx, ss.SessionID, sc); err != nil {
			slog.ErrorContext(ctx, "session: automatic evaluation failed", "session", ss.SessionID, "error", err)
		}
	}

	return &act, nil
}

type ReevaluateRequest struct {
	SessionID string `validate:"required"`
}

type ReevaluateResponse struct {
	Updates []domain.VariableUpdate
	Skipped int
}

// Reevaluate runs the scenario rules against the action log and persists the updates.
// Running it again without new actions changes nothing.
func (s *Service) Reevaluate(ctx context.Context, req ReevaluateRequest) (resp *ReevaluateResponse, err error) {
	defer observe("reevaluate", &err)

	if err := s.check(req); err != nil {
		return nil, err
	}

	defer s.lock(req.SessionID)()

	_, sc, err := s.load(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	return s.reevaluate(ctx, req.SessionID, sc)
}

func (s *Service) reevaluate(ctx context.Context, sessionID string, sc *domain.Scenario) (*ReevaluateResponse, error) {
	actions, err := s.st.ListActions(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	states, err := s.st.ListVariables(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]domain.VariableState, len(states))
	for _, st := range states {
		byID[st.VariableID] = st
	}

	vars := make([]rules.Variable, 0, len(sc.Variables))
	for _, def := range sc.Variables {
		v := rules.Variable{ID: def.VariableID, Key: def.Key, Value: def.InitialValue}
		if st, ok := byID[def.VariableID]; ok && st.Value != nil {
			v.Value = st.Value
		}
		vars = append(vars, v)
	}

	res := rules.Evaluate(actions, vars, sc.Rules)

	for _, sk := range res.Skipped {
		slog.WarnContext(ctx, "session: rule effect skipped", "session", sessionID, "error", sk.Err())
	}

	now := s.clock()
	changed := make([]domain.VariableState, 0, len(res.Updates))
	for _, u := range res.Updates {
		st, ok := byID[u.VariableID]
		if !ok {
			st = domain.VariableState{SessionID: sessionID, VariableID: u.VariableID}
		}
		value := u.Value
		st.Value = &value
		st.UpdateTime = now
		changed = append(changed, st)
	}

	ledger := make([]domain.Action, 0, len(res.Firings))
	for _, f := range res.Firings {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("generate action ID: %w", err)
		}
		ledger = append(ledger, domain.Action{
			ActionID:   id.String(),
			SessionID:  sessionID,
			Key:        domain.ActionKeyRuleApplied,
			Payload:    f.Payload(),
			CreateTime: now,
		})
	}

	if len(changed)+len(ledger) > 0 {
		// Values and ledger land together, so a delta is applied once per evidence.
		last, err := s.st.ApplyRules(ctx, sessionID, changed, ledger)
		if err != nil {
			return nil, err
		}

		rev := last - int64(len(changed)+len(ledger))
		for _, st := range changed {
			rev++
			def, _ := sc.Variable(st.VariableID)
			s.publishVariable(ctx, def, st, rev)
		}
		for _, a := range ledger {
			rev++
			s.eb.Publish(ctx, domain.EventActionRecorded{
				EventMeta: domain.EventMeta{SessionID: sessionID, Revision: rev},
				Action:    a,
			})
		}
	}

	if len(res.Updates) > 0 {
		slog.InfoContext(ctx, "session: rules applied", "session", sessionID, "updates", len(res.Updates))
	}

	return &ReevaluateResponse{
		Updates: res.Updates,
		Skipped: len(res.Skipped),
	}, nil
}

func (s *Service) appendActions(ctx context.Context, sessionID string, actions ...domain.Action) error {
	rev, err := s.st.AppendActions(ctx, sessionID, actions)
	if err != nil {
		return err
	}

	for _, a := range actions {
		s.eb.Publish(ctx, domain.EventActionRecorded{
			EventMeta: domain.EventMeta{SessionID: sessionID, Revision: rev},
			Action:    a,
		})
	}

	return nil
}
