package simlivev1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const ServiceName = "simlive.v1.SessionService"

type SessionServiceServer interface {
	PutScenario(context.Context, *PutScenarioRequest) (*PutScenarioResponse, error)
	CreateSession(context.Context, *CreateSessionRequest) (*CreateSessionResponse, error)
	SetParticipants(context.Context, *SetParticipantsRequest) (*SetParticipantsResponse, error)
	StartSession(context.Context, *StartSessionRequest) (*StartSessionResponse, error)
	FinalizeSession(context.Context, *FinalizeSessionRequest) (*FinalizeSessionResponse, error)
	SetBanner(context.Context, *SetBannerRequest) (*SetBannerResponse, error)
	SetPhase(context.Context, *SetPhaseRequest) (*SetPhaseResponse, error)
	RaiseAlarm(context.Context, *RaiseAlarmRequest) (*RaiseAlarmResponse, error)
	RevealVariable(context.Context, *RevealVariableRequest) (*RevealVariableResponse, error)
	HideVariable(context.Context, *HideVariableRequest) (*HideVariableResponse, error)
	ClearVariables(context.Context, *ClearVariablesRequest) (*ClearVariablesResponse, error)
	MarkChecklistItem(context.Context, *MarkChecklistItemRequest) (*MarkChecklistItemResponse, error)
	RecordItemResponse(context.Context, *RecordItemResponseRequest) (*RecordItemResponseResponse, error)
	AppendAction(context.Context, *AppendActionRequest) (*AppendActionResponse, error)
	Reevaluate(context.Context, *ReevaluateRequest) (*ReevaluateResponse, error)
	JoinByCode(context.Context, *JoinByCodeRequest) (*JoinByCodeResponse, error)
	GetSnapshot(context.Context, *GetSnapshotRequest) (*GetSnapshotResponse, error)
	GetFingerprint(context.Context, *GetFingerprintRequest) (*GetFingerprintResponse, error)
	GetReport(context.Context, *GetReportRequest) (*GetReportResponse, error)
}

// UnimplementedSessionServiceServer answers every call with codes.Unimplemented.
type UnimplementedSessionServiceServer struct{}

func unimplemented(method string) error {
	return status.Errorf(codes.Unimplemented, "method %s not implemented", method)
}

func (UnimplementedSessionServiceServer) PutScenario(context.Context, *PutScenarioRequest) (*PutScenarioResponse, error) {
	return nil, unimplemented("PutScenario")
}
func (UnimplementedSessionServiceServer) CreateSession(context.Context, *CreateSessionRequest) (*CreateSessionResponse, error) {
	return nil, unimplemented("CreateSession")
}
func (UnimplementedSessionServiceServer) SetParticipants(context.Context, *SetParticipantsRequest) (*SetParticipantsResponse, error) {
	return nil, unimplemented("SetParticipants")
}
func (UnimplementedSessionServiceServer) StartSession(context.Context, *StartSessionRequest) (*StartSessionResponse, error) {
	return nil, unimplemented("StartSession")
}
func (UnimplementedSessionServiceServer) FinalizeSession(context.Context, *FinalizeSessionRequest) (*FinalizeSessionResponse, error) {
	return nil, unimplemented("FinalizeSession")
}
func (UnimplementedSessionServiceServer) SetBanner(context.Context, *SetBannerRequest) (*SetBannerResponse, error) {
	return nil, unimplemented("SetBanner")
}
func (UnimplementedSessionServiceServer) SetPhase(context.Context, *SetPhaseRequest) (*SetPhaseResponse, error) {
	return nil, unimplemented("SetPhase")
}
func (UnimplementedSessionServiceServer) RaiseAlarm(context.Context, *RaiseAlarmRequest) (*RaiseAlarmResponse, error) {
	return nil, unimplemented("RaiseAlarm")
}
func (UnimplementedSessionServiceServer) RevealVariable(context.Context, *RevealVariableRequest) (*RevealVariableResponse, error) {
	return nil, unimplemented("RevealVariable")
}
func (UnimplementedSessionServiceServer) HideVariable(context.Context, *HideVariableRequest) (*HideVariableResponse, error) {
	return nil, unimplemented("HideVariable")
}
func (UnimplementedSessionServiceServer) ClearVariables(context.Context, *ClearVariablesRequest) (*ClearVariablesResponse, error) {
	return nil, unimplemented("ClearVariables")
}
func (UnimplementedSessionServiceServer) MarkChecklistItem(context.Context, *MarkChecklistItemRequest) (*MarkChecklistItemResponse, error) {
	return nil, unimplemented("MarkChecklistItem")
}
func (UnimplementedSessionServiceServer) RecordItemResponse(context.Context, *RecordItemResponseRequest) (*RecordItemResponseResponse, error) {
	return nil, unimplemented("RecordItemResponse")
}
func (UnimplementedSessionServiceServer) AppendAction(context.Context, *AppendActionRequest) (*AppendActionResponse, error) {
	return nil, unimplemented("AppendAction")
}
func (UnimplementedSessionServiceServer) Reevaluate(context.Context, *ReevaluateRequest) (*ReevaluateResponse, error) {
	return nil, unimplemented("Reevaluate")
}
func (UnimplementedSessionServiceServer) JoinByCode(context.Context, *JoinByCodeRequest) (*JoinByCodeResponse, error) {
	return nil, unimplemented("JoinByCode")
}
func (UnimplementedSessionServiceServer) GetSnapshot(context.Context, *GetSnapshotRequest) (*GetSnapshotResponse, error) {
	return nil, unimplemented("GetSnapshot")
}
func (UnimplementedSessionServiceServer) GetFingerprint(context.Context, *GetFingerprintRequest) (*GetFingerprintResponse, error) {
	return nil, unimplemented("GetFingerprint")
}
func (UnimplementedSessionServiceServer) GetReport(context.Context, *GetReportRequest) (*GetReportResponse, error) {
	return nil, unimplemented("GetReport")
}

func RegisterSessionServiceServer(s grpc.ServiceRegistrar, srv SessionServiceServer) {
	s.RegisterService(&SessionService_ServiceDesc, srv)
}

// unary builds the method descriptor of one RPC, routing through the server interceptor
// the same way generated code does.
func unary[Req, Resp any](name string, call func(SessionServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + name

	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(SessionServiceServer), ctx, in)
			}

			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(SessionServiceServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var SessionService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SessionServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("PutScenario", SessionServiceServer.PutScenario),
		unary("CreateSession", SessionServiceServer.CreateSession),
		unary("SetParticipants", SessionServiceServer.SetParticipants),
		unary("StartSession", SessionServiceServer.StartSession),
		unary("FinalizeSession", SessionServiceServer.FinalizeSession),
		unary("SetBanner", SessionServiceServer.SetBanner),
		unary("SetPhase", SessionServiceServer.SetPhase),
		unary("RaiseAlarm", SessionServiceServer.RaiseAlarm),
		unary("RevealVariable", SessionServiceServer.RevealVariable),
		unary("HideVariable", SessionServiceServer.HideVariable),
		unary("ClearVariables", SessionServiceServer.ClearVariables),
		unary("MarkChecklistItem", SessionServiceServer.MarkChecklistItem),
		unary("RecordItemResponse", SessionServiceServer.RecordItemResponse),
		unary("AppendAction", SessionServiceServer.AppendAction),
		unary("Reevaluate", SessionServiceServer.Reevaluate),
		unary("JoinByCode", SessionServiceServer.JoinByCode),
		unary("GetSnapshot", SessionServiceServer.GetSnapshot),
		unary("GetFingerprint", SessionServiceServer.GetFingerprint),
		unary("GetReport", SessionServiceServer.GetReport),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "simlive/v1/session.json",
}

// SessionServiceClient calls the session service over a client connection.
type SessionServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewSessionServiceClient(cc grpc.ClientConnInterface) *SessionServiceClient {
	return &SessionServiceClient{cc: cc}
}

func invoke[Req, Resp any](ctx context.Context, cc grpc.ClientConnInterface, name string, in *Req, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, "/"+ServiceName+"/"+name, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *SessionServiceClient) PutScenario(ctx context.Context, in *PutScenarioRequest, opts ...grpc.CallOption) (*PutScenarioResponse, error) {
	return invoke[PutScenarioRequest, PutScenarioResponse](ctx, c.cc, "PutScenario", in, opts)
}

func (c *SessionServiceClient) CreateSession(ctx context.Context, in *CreateSessionRequest, opts ...grpc.CallOption) (*CreateSessionResponse, error) {
	return invoke[CreateSessionRequest, CreateSessionResponse](ctx, c.cc, "CreateSession", in, opts)
}

func (c *SessionServiceClient) SetParticipants(ctx context.Context, in *SetParticipantsRequest, opts ...grpc.CallOption) (*SetParticipantsResponse, error) {
	return invoke[SetParticipantsRequest, SetParticipantsResponse](ctx, c.cc, "SetParticipants", in, opts)
}

func (c *SessionServiceClient) StartSession(ctx context.Context, in *StartSessionRequest, opts ...grpc.CallOption) (*StartSessionResponse, error) {
	return invoke[StartSessionRequest, StartSessionResponse](ctx, c.cc, "StartSession", in, opts)
}

func (c *SessionServiceClient) FinalizeSession(ctx context.Context, in *FinalizeSessionRequest, opts ...grpc.CallOption) (*FinalizeSessionResponse, error) {
	return invoke[FinalizeSessionRequest, FinalizeSessionResponse](ctx, c.cc, "FinalizeSession", in, opts)
}

func (c *SessionServiceClient) SetBanner(ctx context.Context, in *SetBannerRequest, opts ...grpc.CallOption) (*SetBannerResponse, error) {
	return invoke[SetBannerRequest, SetBannerResponse](ctx, c.cc, "SetBanner", in, opts)
}

func (c *SessionServiceClient) SetPhase(ctx context.Context, in *SetPhaseRequest, opts ...grpc.CallOption) (*SetPhaseResponse, error) {
	return invoke[SetPhaseRequest, SetPhaseResponse](ctx, c.cc, "SetPhase", in, opts)
}

func (c *SessionServiceClient) RaiseAlarm(ctx context.Context, in *RaiseAlarmRequest, opts ...grpc.CallOption) (*RaiseAlarmResponse, error) {
	return invoke[RaiseAlarmRequest, RaiseAlarmResponse](ctx, c.cc, "RaiseAlarm", in, opts)
}

func (c *SessionServiceClient) RevealVariable(ctx context.Context, in *RevealVariableRequest, opts ...grpc.CallOption) (*RevealVariableResponse, error) {
	return invoke[RevealVariableRequest, RevealVariableResponse](ctx, c.cc, "RevealVariable", in, opts)
}

func (c *SessionServiceClient) HideVariable(ctx context.Context, in *HideVariableRequest, opts ...grpc.CallOption) (*HideVariableResponse, error) {
	return invoke[HideVariableRequest, HideVariableResponse](ctx, c.cc, "HideVariable", in, opts)
}

func (c *SessionServiceClient) ClearVariables(ctx context.Context, in *ClearVariablesRequest, opts ...grpc.CallOption) (*ClearVariablesResponse, error) {
	return invoke[ClearVariablesRequest, ClearVariablesResponse](ctx, c.cc, "ClearVariables", in, opts)
}

func (c *SessionServiceClient) MarkChecklistItem(ctx context.Context, in *MarkChecklistItemRequest, opts ...grpc.CallOption) (*MarkChecklistItemResponse, error) {
	return invoke[MarkChecklistItemRequest, MarkChecklistItemResponse](ctx, c.cc, "MarkChecklistItem", in, opts)
}

func (c *SessionServiceClient) RecordItemResponse(ctx context.Context, in *RecordItemResponseRequest, opts ...grpc.CallOption) (*RecordItemResponseResponse, error) {
	return invoke[RecordItemResponseRequest, RecordItemResponseResponse](ctx, c.cc, "RecordItemResponse", in, opts)
}

func (c *SessionServiceClient) AppendAction(ctx context.Context, in *AppendActionRequest, opts ...grpc.CallOption) (*AppendActionResponse, error) {
	return invoke[AppendActionRequest, AppendActionResponse](ctx, c.cc, "AppendAction", in, opts)
}

func (c *SessionServiceClient) Reevaluate(ctx context.Context, in *ReevaluateRequest, opts ...grpc.CallOption) (*ReevaluateResponse, error) {
	return invoke[ReevaluateRequest, ReevaluateResponse](ctx, c.cc, "Reevaluate", in, opts)
}

func (c *SessionServiceClient) JoinByCode(ctx context.Context, in *JoinByCodeRequest, opts ...grpc.CallOption) (*JoinByCodeResponse, error) {
	return invoke[JoinByCodeRequest, JoinByCodeResponse](ctx, c.cc, "JoinByCode", in, opts)
}

func (c *SessionServiceClient) GetSnapshot(ctx context.Context, in *GetSnapshotRequest, opts ...grpc.CallOption) (*GetSnapshotResponse, error) {
	return invoke[GetSnapshotRequest, GetSnapshotResponse](ctx, c.cc, "GetSnapshot", in, opts)
}

func (c *SessionServiceClient) GetFingerprint(ctx context.Context, in *GetFingerprintRequest, opts ...grpc.CallOption) (*GetFingerprintResponse, error) {
	return invoke[GetFingerprintRequest, GetFingerprintResponse](ctx, c.cc, "GetFingerprint", in, opts)
}

func (c *SessionServiceClient) GetReport(ctx context.Context, in *GetReportRequest, opts ...grpc.CallOption) (*GetReportResponse, error) {
	return invoke[GetReportRequest, GetReportResponse](ctx, c.cc, "GetReport", in, opts)
}
