package session

import (
	"context"

	"github.com/victornm/simlive/internal/domain"
	"github.com/victornm/simlive/internal/errors"
	"github.com/victornm/simlive/internal/rules"
)

type RevealVariableRequest struct {
	SessionID  string `validate:"required"`
	VariableID string `validate:"required"`
	// Value nil keeps the stored value, falling back to the scenario's initial value.
	Value *string
}

// RevealVariable shows a variable to viewers, optionally setting its value.
func (s *Service) RevealVariable(ctx context.Context, req RevealVariableRequest) (v *domain.VariableView, err error) {
	defer observe("reveal_variable", &err)

	if err := s.check(req); err != nil {
		return nil, err
	}

	defer s.lock(req.SessionID)()

	def, st, err := s.variable(ctx, req.SessionID, req.VariableID)
	if err != nil {
		return nil, err
	}

	if req.Value != nil {
		if def.Type == domain.VariableNumber {
			if _, ok := rules.Number(*req.Value); !ok {
				return nil, errors.ValidationFailed("variable %s expects a number: value=%q", def.Key, *req.Value)
			}
		}
		st.Value = req.Value
	}
	if st.Value == nil {
		st.Value = def.InitialValue
	}
	st.Revealed = true
	st.UpdateTime = s.clock()

	return s.saveVariable(ctx, def, st)
}

type HideVariableRequest struct {
	SessionID  string `validate:"required"`
	VariableID string `validate:"required"`
}

// HideVariable removes a variable from every viewer. The value is kept for a later reveal.
func (s *Service) HideVariable(ctx context.Context, req HideVariableRequest) (v *domain.VariableView, err error) {
	defer observe("hide_variable", &err)

	if err := s.check(req); err != nil {
		return nil, err
	}

	defer s.lock(req.SessionID)()

	def, st, err := s.variable(ctx, req.SessionID, req.VariableID)
	if err != nil {
		return nil, err
	}

	st.Revealed = false
	st.UpdateTime = s.clock()

	return s.saveVariable(ctx, def, st)
}

type ClearVariablesRequest struct {
	SessionID string `validate:"required"`
}

// ClearVariables hides every variable of the session in one pass.
func (s *Service) ClearVariables(ctx context.Context, req ClearVariablesRequest) (err error) {
	defer observe("clear_variables", &err)

	if err := s.check(req); err != nil {
		return err
	}

	defer s.lock(req.SessionID)()

	rev, err := s.st.ClearVariables(ctx, req.SessionID, s.clock())
	if err != nil {
		return err
	}

	s.eb.Publish(ctx, domain.EventVariablesCleared{
		EventMeta: domain.EventMeta{SessionID: req.SessionID, Revision: rev},
	})

	return nil
}

func (s *Service) variable(ctx context.Context, sessionID, variableID string) (domain.VariableDef, domain.VariableState, error) {
	_, sc, err := s.load(ctx, sessionID)
	if err != nil {
		return domain.VariableDef{}, domain.VariableState{}, err
	}

	def, ok := sc.Variable(variableID)
	if !ok {
		return domain.VariableDef{}, domain.VariableState{}, errors.ValidationFailed("unknown variable: variable=%s scenario=%s", variableID, sc.ScenarioID)
	}

	states, err := s.st.ListVariables(ctx, sessionID)
	if err != nil {
		return domain.VariableDef{}, domain.VariableState{}, err
	}

	st := domain.VariableState{SessionID: sessionID, VariableID: variableID}
	for _, x := range states {
		if x.VariableID == variableID {
			st = x
			break
		}
	}

	return def, st, nil
}

func (s *Service) saveVariable(ctx context.Context, def domain.VariableDef, st domain.VariableState) (*domain.VariableView, error) {
	rev, err := s.st.UpsertVariable(ctx, st)
	if err != nil {
		return nil, err
	}

	return s.publishVariable(ctx, def, st, rev), nil
}

// publishVariable announces st. Hidden values never leave the publisher.
func (s *Service) publishVariable(ctx context.Context, def domain.VariableDef, st domain.VariableState, rev int64) *domain.VariableView {
	view := domain.NewVariableView(def, st)
	if !st.Revealed {
		view.Value = nil
	}

	s.eb.Publish(ctx, domain.EventVariableChanged{
		EventMeta: domain.EventMeta{SessionID: st.SessionID, Revision: rev},
		Revealed:  st.Revealed,
		Variable:  view,
	})

	return &view
}
