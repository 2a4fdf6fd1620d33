package simlivev1

import (
	"github.com/victornm/simlive/internal/domain"
)

type (
	PutScenarioRequest struct {
		Scenario *domain.Scenario `json:"scenario"`
	}

	PutScenarioResponse struct{}

	CreateSessionRequest struct {
		ScenarioId   string               `json:"scenarioId"`
		Participants []domain.Participant `json:"participants,omitempty"`
	}

	CreateSessionResponse struct {
		Session *domain.Session `json:"session"`
	}

	SetParticipantsRequest struct {
		SessionId    string               `json:"sessionId"`
		Participants []domain.Participant `json:"participants"`
	}

	SetParticipantsResponse struct {
		Session *domain.Session `json:"session"`
	}

	StartSessionRequest struct {
		SessionId string `json:"sessionId"`
	}

	StartSessionResponse struct {
		Session *domain.Session `json:"session"`
	}

	FinalizeSessionRequest struct {
		SessionId string `json:"sessionId"`
	}

	FinalizeSessionResponse struct {
		Report *domain.Report `json:"report"`
	}

	SetBannerRequest struct {
		SessionId string `json:"sessionId"`
		Banner    string `json:"banner"`
	}

	SetBannerResponse struct {
		Session *domain.Session `json:"session"`
	}

	SetPhaseRequest struct {
		SessionId string `json:"sessionId"`
		PhaseId   string `json:"phaseId"`
	}

	SetPhaseResponse struct {
		Session *domain.Session `json:"session"`
	}

	RaiseAlarmRequest struct {
		SessionId string `json:"sessionId"`
	}

	RaiseAlarmResponse struct {
		Session *domain.Session `json:"session"`
	}

	RevealVariableRequest struct {
		SessionId  string  `json:"sessionId"`
		VariableId string  `json:"variableId"`
		Value      *string `json:"value,omitempty"`
	}

	RevealVariableResponse struct {
		Variable *domain.VariableView `json:"variable"`
	}

	HideVariableRequest struct {
		SessionId  string `json:"sessionId"`
		VariableId string `json:"variableId"`
	}

	HideVariableResponse struct {
		Variable *domain.VariableView `json:"variable"`
	}

	ClearVariablesRequest struct {
		SessionId string `json:"sessionId"`
	}

	ClearVariablesResponse struct{}

	MarkChecklistItemRequest struct {
		SessionId string                 `json:"sessionId"`
		ItemId    string                 `json:"itemId"`
		Status    domain.ChecklistStatus `json:"status,omitempty"`
		Note      *string                `json:"note,omitempty"`
	}

	MarkChecklistItemResponse struct {
		Mark *domain.ChecklistMark `json:"mark"`
	}

	RecordItemResponseRequest struct {
		SessionId string `json:"sessionId"`
		ItemId    string `json:"itemId"`
		Value     Value  `json:"value"`
	}

	RecordItemResponseResponse struct {
		Response *domain.ItemResponse `json:"response"`
	}

	AppendActionRequest struct {
		SessionId string `json:"sessionId"`
		Key       string `json:"key"`
		Payload   Struct `json:"payload"`
	}

	AppendActionResponse struct {
		Action *domain.Action `json:"action"`
	}

	ReevaluateRequest struct {
		SessionId string `json:"sessionId"`
	}

	ReevaluateResponse struct {
		Updates []domain.VariableUpdate `json:"updates"`
		Skipped int                     `json:"skipped"`
	}

	JoinByCodeRequest struct {
		Code string `json:"code"`
	}

	JoinByCodeResponse struct {
		Snapshot *domain.Snapshot `json:"snapshot"`
	}

	GetSnapshotRequest struct {
		SessionId string `json:"sessionId"`
	}

	GetSnapshotResponse struct {
		Snapshot *domain.Snapshot `json:"snapshot"`
	}

	GetFingerprintRequest struct {
		SessionId string `json:"sessionId"`
	}

	GetFingerprintResponse struct {
		Fingerprint string `json:"fingerprint"`
	}

	GetReportRequest struct {
		SessionId string `json:"sessionId"`
	}

	GetReportResponse struct {
		Report *domain.Report `json:"report"`
	}
)
