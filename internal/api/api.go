package api

import (
	"context"

	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"

	simlivev1 "github.com/victornm/simlive/internal/api/simlivev1"
	"github.com/victornm/simlive/internal/domain"
	"github.com/victornm/simlive/internal/event"
	"github.com/victornm/simlive/internal/fingerprint"
	"github.com/victornm/simlive/internal/session"
)

type Config struct {
	GRPC         *grpc.Server
	EventBus     *event.Bus
	Session      *session.Service
	Fingerprint  *fingerprint.Service
	Redis        Redis
	PubsubPrefix string
}

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type API struct {
	simlivev1.UnimplementedSessionServiceServer

	ss *session.Service
	fs *fingerprint.Service

	redis  Redis
	prefix string
}

func New(c Config) *API {
	a := &API{
		ss:     c.Session,
		fs:     c.Fingerprint,
		redis:  c.Redis,
		prefix: c.PubsubPrefix,
	}

	// gRPC APIs
	if c.GRPC != nil {
		simlivev1.RegisterSessionServiceServer(c.GRPC, a)
	}

	// Register event handlers
	if c.Redis != nil {
		c.EventBus.Subscribe(a.PublishSessionEvent, domain.SessionEventNames...)
	}

	return a
}

func (a *API) PutScenario(ctx context.Context, req *simlivev1.PutScenarioRequest) (*simlivev1.PutScenarioResponse, error) {
	if err := a.ss.PutScenario(ctx, req.Scenario); err != nil {
		return nil, err
	}
	return &simlivev1.PutScenarioResponse{}, nil
}

func (a *API) CreateSession(ctx context.Context, req *simlivev1.CreateSessionRequest) (*simlivev1.CreateSessionResponse, error) {
	ss, err := a.ss.CreateSession(ctx, session.CreateSessionRequest{
		ScenarioID:   req.ScenarioId,
		Participants: req.Participants,
	})
	if err != nil {
		return nil, err
	}

	return &simlivev1.CreateSessionResponse{Session: ss}, nil
}

func (a *API) SetParticipants(ctx context.Context, req *simlivev1.SetParticipantsRequest) (*simlivev1.SetParticipantsResponse, error) {
	ss, err := a.ss.SetParticipants(ctx, session.SetParticipantsRequest{
		SessionID:    req.SessionId,
		Participants: req.Participants,
	})
	if err != nil {
		return nil, err
	}

	return &simlivev1.SetParticipantsResponse{Session: ss}, nil
}

func (a *API) StartSession(ctx context.Context, req *simlivev1.StartSessionRequest) (*simlivev1.StartSessionResponse, error) {
	ss, err := a.ss.Start(ctx, session.StartRequest{SessionID: req.SessionId})
	if err != nil {
		return nil, err
	}

	return &simlivev1.StartSessionResponse{Session: ss}, nil
}

func (a *API) FinalizeSession(ctx context.Context, req *simlivev1.FinalizeSessionRequest) (*simlivev1.FinalizeSessionResponse, error) {
	r, err := a.ss.Finalize(ctx, session.FinalizeRequest{SessionID: req.SessionId})
	if err != nil {
		return nil, err
	}

	return &simlivev1.FinalizeSessionResponse{Report: r}, nil
}

func (a *API) SetBanner(ctx context.Context, req *simlivev1.SetBannerRequest) (*simlivev1.SetBannerResponse, error) {
	ss, err := a.ss.SetBanner(ctx, session.SetBannerRequest{
		SessionID: req.SessionId,
		Text:      req.Banner,
	})
	if err != nil {
		return nil, err
	}

	return &simlivev1.SetBannerResponse{Session: ss}, nil
}

func (a *API) SetPhase(ctx context.Context, req *simlivev1.SetPhaseRequest) (*simlivev1.SetPhaseResponse, error) {
	ss, err := a.ss.SetPhase(ctx, session.SetPhaseRequest{
		SessionID: req.SessionId,
		PhaseID:   req.PhaseId,
	})
	if err != nil {
		return nil, err
	}

	return &simlivev1.SetPhaseResponse{Session: ss}, nil
}

func (a *API) RaiseAlarm(ctx context.Context, req *simlivev1.RaiseAlarmRequest) (*simlivev1.RaiseAlarmResponse, error) {
	ss, err := a.ss.RaiseAlarm(ctx, session.RaiseAlarmRequest{SessionID: req.SessionId})
	if err != nil {
		return nil, err
	}

	return &simlivev1.RaiseAlarmResponse{Session: ss}, nil
}

func (a *API) RevealVariable(ctx context.Context, req *simlivev1.RevealVariableRequest) (*simlivev1.RevealVariableResponse, error) {
	v, err := a.ss.RevealVariable(ctx, session.RevealVariableRequest{
		SessionID:  req.SessionId,
		VariableID: req.VariableId,
		Value:      req.Value,
	})
	if err != nil {
		return nil, err
	}

	return &simlivev1.RevealVariableResponse{Variable: v}, nil
}

func (a *API) HideVariable(ctx context.Context, req *simlivev1.HideVariableRequest) (*simlivev1.HideVariableResponse, error) {
	v, err := a.ss.HideVariable(ctx, session.HideVariableRequest{
		SessionID:  req.SessionId,
		VariableID: req.VariableId,
	})
	if err != nil {
		return nil, err
	}

	return &simlivev1.HideVariableResponse{Variable: v}, nil
}

func (a *API) ClearVariables(ctx context.Context, req *simlivev1.ClearVariablesRequest) (*simlivev1.ClearVariablesResponse, error) {
	if err := a.ss.ClearVariables(ctx, session.ClearVariablesRequest{SessionID: req.SessionId}); err != nil {
		return nil, err
	}

	return &simlivev1.ClearVariablesResponse{}, nil
}

func (a *API) MarkChecklistItem(ctx context.Context, req *simlivev1.MarkChecklistItemRequest) (*simlivev1.MarkChecklistItemResponse, error) {
	m, err := a.ss.MarkChecklistItem(ctx, session.MarkChecklistItemRequest{
		SessionID: req.SessionId,
		ItemID:    req.ItemId,
		Status:    req.Status,
		Note:      req.Note,
	})
	if err != nil {
		return nil, err
	}

	return &simlivev1.MarkChecklistItemResponse{Mark: m}, nil
}

func (a *API) RecordItemResponse(ctx context.Context, req *simlivev1.RecordItemResponseRequest) (*simlivev1.RecordItemResponseResponse, error) {
	r, err := a.ss.RecordItemResponse(ctx, session.RecordItemResponseRequest{
		SessionID: req.SessionId,
		ItemID:    req.ItemId,
		Value:     req.Value.Interface(),
	})
	if err != nil {
		return nil, err
	}

	return &simlivev1.RecordItemResponseResponse{Response: r}, nil
}

func (a *API) AppendAction(ctx context.Context, req *simlivev1.AppendActionRequest) (*simlivev1.AppendActionResponse, error) {
	act, err := a.ss.AppendAction(ctx, session.AppendActionRequest{
		SessionID: req.SessionId,
		Key:       req.Key,
		Payload:   req.Payload.Map(),
	})
	if err != nil {
		return nil, err
	}

	return &simlivev1.AppendActionResponse{Action: act}, nil
}

func (a *API) Reevaluate(ctx context.Context, req *simlivev1.ReevaluateRequest) (*simlivev1.ReevaluateResponse, error) {
	r, err := a.ss.Reevaluate(ctx, session.ReevaluateRequest{SessionID: req.SessionId})
	if err != nil {
		return nil, err
	}

	return &simlivev1.ReevaluateResponse{Updates: r.Updates, Skipped: r.Skipped}, nil
}

func (a *API) JoinByCode(ctx context.Context, req *simlivev1.JoinByCodeRequest) (*simlivev1.JoinByCodeResponse, error) {
	snap, err := a.ss.JoinByCode(ctx, req.Code)
	if err != nil {
		return nil, err
	}

	return &simlivev1.JoinByCodeResponse{Snapshot: snap}, nil
}

func (a *API) GetSnapshot(ctx context.Context, req *simlivev1.GetSnapshotRequest) (*simlivev1.GetSnapshotResponse, error) {
	snap, err := a.ss.Snapshot(ctx, req.SessionId)
	if err != nil {
		return nil, err
	}

	return &simlivev1.GetSnapshotResponse{Snapshot: snap}, nil
}

func (a *API) GetFingerprint(ctx context.Context, req *simlivev1.GetFingerprintRequest) (*simlivev1.GetFingerprintResponse, error) {
	fp, err := a.fingerprint(ctx, req.SessionId)
	if err != nil {
		return nil, err
	}

	return &simlivev1.GetFingerprintResponse{Fingerprint: fp}, nil
}

func (a *API) GetReport(ctx context.Context, req *simlivev1.GetReportRequest) (*simlivev1.GetReportResponse, error) {
	r, err := a.ss.Report(ctx, req.SessionId)
	if err != nil {
		return nil, err
	}

	return &simlivev1.GetReportResponse{Report: r}, nil
}

// fingerprint prefers the Redis cache and falls back to the store when none is configured.
func (a *API) fingerprint(ctx context.Context, sessionID string) (string, error) {
	if a.fs != nil {
		return a.fs.Get(ctx, sessionID)
	}

	f, err := a.ss.Fingerprint(ctx, sessionID)
	if err != nil {
		return "", err
	}
	return f.Sum(), nil
}
