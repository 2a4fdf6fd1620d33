package session

import (
	"context"
	"fmt"

	"github.com/victornm/simlive/internal/domain"
	"github.com/victornm/simlive/internal/errors"
)

type MarkChecklistItemRequest struct {
	SessionID string `validate:"required"`
	ItemID    string `validate:"required"`
	// Status empty keeps the current status, or na when the item has none.
	Status domain.ChecklistStatus
	// Note nil keeps the current note.
	Note *string
}

// MarkChecklistItem upserts the single current status of an item.
func (s *Service) MarkChecklistItem(ctx context.Context, req MarkChecklistItemRequest) (m *domain.ChecklistMark, err error) {
	defer observe("mark_checklist_item", &err)

	if err := s.check(req); err != nil {
		return nil, err
	}
	if req.Status != "" && !req.Status.Valid() {
		return nil, errors.ValidationFailed("invalid checklist status: %q", req.Status)
	}

	defer s.lock(req.SessionID)()

	_, sc, err := s.load(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if _, ok := sc.ChecklistItem(req.ItemID); !ok {
		return nil, errors.ValidationFailed("unknown checklist item: item=%s scenario=%s", req.ItemID, sc.ScenarioID)
	}

	marks, err := s.st.ListChecklistMarks(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	mark := domain.ChecklistMark{SessionID: req.SessionID, ItemID: req.ItemID, Status: domain.StatusNA}
	for _, x := range marks {
		if x.ItemID == req.ItemID {
			mark = x
			break
		}
	}
	if req.Status != "" {
		mark.Status = req.Status
	}
	if req.Note != nil {
		mark.Note = *req.Note
	}
	mark.UpdateTime = s.clock()

	rev, err := s.st.UpsertChecklistMarks(ctx, req.SessionID, []domain.ChecklistMark{mark})
	if err != nil {
		return nil, err
	}

	s.eb.Publish(ctx, domain.EventChecklistMarked{
		EventMeta: domain.EventMeta{SessionID: req.SessionID, Revision: rev},
		Mark:      mark,
	})

	return &mark, nil
}

type RecordItemResponseRequest struct {
	SessionID string `validate:"required"`
	ItemID    string `validate:"required"`
	// Value is the loosely typed answer: a bool, 0/1, or a status tag.
	Value any
}

// RecordItemResponse stores a raw answer for a binary-style item. Finalize mirrors it into
// the canonical checklist.
func (s *Service) RecordItemResponse(ctx context.Context, req RecordItemResponseRequest) (r *domain.ItemResponse, err error) {
	defer observe("record_item_response", &err)

	if err := s.check(req); err != nil {
		return nil, err
	}
	if req.Value == nil {
		return nil, errors.ValidationFailed("item response requires a value: item=%s", req.ItemID)
	}

	defer s.lock(req.SessionID)()

	_, sc, err := s.load(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	it, ok := sc.ChecklistItem(req.ItemID)
	if !ok {
		return nil, errors.ValidationFailed("unknown checklist item: item=%s scenario=%s", req.ItemID, sc.ScenarioID)
	}
	if it.Kind != domain.ChecklistBinary {
		return nil, errors.ValidationFailed("item %s is not a binary item", req.ItemID)
	}

	resp := domain.ItemResponse{
		SessionID:  req.SessionID,
		ItemID:     req.ItemID,
		Value:      fmt.Sprint(req.Value),
		UpdateTime: s.clock(),
	}

	rev, err := s.st.UpsertItemResponse(ctx, resp)
	if err != nil {
		return nil, err
	}

	s.eb.Publish(ctx, domain.EventItemResponded{
		EventMeta: domain.EventMeta{SessionID: req.SessionID, Revision: rev},
		Response:  resp,
	})

	return &resp, nil
}
