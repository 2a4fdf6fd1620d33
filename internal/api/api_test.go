package api_test

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/victornm/simlive/internal/api"
	simlivev1 "github.com/victornm/simlive/internal/api/simlivev1"
	"github.com/victornm/simlive/internal/domain"
	"github.com/victornm/simlive/internal/errors"
	"github.com/victornm/simlive/internal/event"
	"github.com/victornm/simlive/internal/session"
	"github.com/victornm/simlive/internal/store/memory"
)

func TestAPI_SessionLifecycle(t *testing.T) {
	client := makeClient(t)
	ctx := context.Background()

	_, err := client.PutScenario(ctx, &simlivev1.PutScenarioRequest{Scenario: scenario()})
	require.NoError(t, err)

	created, err := client.CreateSession(ctx, &simlivev1.CreateSessionRequest{
		ScenarioId:   "sepsis",
		Participants: []domain.Participant{{ID: "p1", Name: "Ana", Role: domain.RoleLeader}},
	})
	require.NoError(t, err)
	id := created.Session.SessionID

	_, err = client.StartSession(ctx, &simlivev1.StartSessionRequest{SessionId: id})
	require.NoError(t, err)

	hr := "160"
	revealed, err := client.RevealVariable(ctx, &simlivev1.RevealVariableRequest{SessionId: id, VariableId: "v-hr", Value: &hr})
	require.NoError(t, err)
	assert.Equal(t, "160", *revealed.Variable.Value)

	for range 2 {
		payload, err := simlivev1.NewStruct(map[string]any{"mlkg": 20})
		require.NoError(t, err)
		_, err = client.AppendAction(ctx, &simlivev1.AppendActionRequest{SessionId: id, Key: "bolo_cristaloide", Payload: payload})
		require.NoError(t, err)
	}

	ev, err := client.Reevaluate(ctx, &simlivev1.ReevaluateRequest{SessionId: id})
	require.NoError(t, err)
	require.Len(t, ev.Updates, 1)
	assert.Equal(t, "improved", ev.Updates[0].Value)

	answer, err := simlivev1.NewValue(true)
	require.NoError(t, err)
	_, err = client.RecordItemResponse(ctx, &simlivev1.RecordItemResponseRequest{SessionId: id, ItemId: "call-help", Value: answer})
	require.NoError(t, err)

	snap, err := client.JoinByCode(ctx, &simlivev1.JoinByCodeRequest{Code: created.Session.Code})
	require.NoError(t, err)
	require.Len(t, snap.Snapshot.Variables, 1)
	assert.Equal(t, "HR", snap.Snapshot.Variables[0].Label)

	fp, err := client.GetFingerprint(ctx, &simlivev1.GetFingerprintRequest{SessionId: id})
	require.NoError(t, err)
	assert.Equal(t, snap.Snapshot.Fingerprint, fp.Fingerprint)

	_, err = client.GetReport(ctx, &simlivev1.GetReportRequest{SessionId: id})
	assert.True(t, errors.Is(errors.FromGRPC(err), errors.CodeNotFound))

	final, err := client.FinalizeSession(ctx, &simlivev1.FinalizeSessionRequest{SessionId: id})
	require.NoError(t, err)
	assert.True(t, final.Report.KPIs.TotalFluidMLKG.Equal(decimal.NewFromInt(40)))
	assert.Equal(t, 2, final.Report.KPIs.BolusCount)
	assert.Equal(t, domain.StatusOK, statusOf(final.Report, "call-help"))

	stored, err := client.GetReport(ctx, &simlivev1.GetReportRequest{SessionId: id})
	require.NoError(t, err)
	assert.Equal(t, final.Report.EndedAt.Unix(), stored.Report.EndedAt.Unix())

	_, err = client.SetBanner(ctx, &simlivev1.SetBannerRequest{SessionId: id, Banner: "too late"})
	assert.True(t, errors.Is(errors.FromGRPC(err), errors.CodeSessionClosed))
}

func TestAPI_HTTP(t *testing.T) {
	gin.SetMode(gin.TestMode)

	svc := makeSession(t)
	ss, err := svc.CreateSession(context.Background(), session.CreateSessionRequest{ScenarioID: "sepsis"})
	require.NoError(t, err)

	r := gin.New()
	api.New(api.Config{EventBus: event.NewBus(), Session: svc}).RegisterHTTP(r)

	tests := map[string]struct {
		path   string
		assert func(t *testing.T, rec *httptest.ResponseRecorder)
	}{
		"should join by code": {
			path: "/v1/join/" + ss.Code,
			assert: func(t *testing.T, rec *httptest.ResponseRecorder) {
				require.Equal(t, http.StatusOK, rec.Code)

				var snap domain.Snapshot
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
				assert.Equal(t, ss.SessionID, snap.SessionID)
				assert.Empty(t, snap.Variables)
			},
		},

		"should return 404 on an unknown code": {
			path: "/v1/join/NOPE42",
			assert: func(t *testing.T, rec *httptest.ResponseRecorder) {
				assert.Equal(t, http.StatusNotFound, rec.Code)
				assert.Contains(t, rec.Body.String(), "NotFound")
			},
		},

		"should return the fingerprint": {
			path: "/v1/sessions/" + ss.SessionID + "/fingerprint",
			assert: func(t *testing.T, rec *httptest.ResponseRecorder) {
				require.Equal(t, http.StatusOK, rec.Code)

				var body struct {
					Fingerprint string `json:"fingerprint"`
				}
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				assert.NotEmpty(t, body.Fingerprint)
			},
		},

		"should return 404 for a report before finalize": {
			path: "/v1/sessions/" + ss.SessionID + "/report",
			assert: func(t *testing.T, rec *httptest.ResponseRecorder) {
				assert.Equal(t, http.StatusNotFound, rec.Code)
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			tt.assert(t, rec)
		})
	}
}

func TestAPI_PublishSessionEvent(t *testing.T) {
	rdb := makeRedis(t)
	eb := event.NewBus()
	t.Cleanup(eb.Stop)

	svc := session.NewService(session.Config{Store: newStore(t), EventBus: eb})
	api.New(api.Config{EventBus: eb, Session: svc, Redis: rdb, PubsubPrefix: "simlive"})

	ctx := context.Background()
	ss, err := svc.CreateSession(ctx, session.CreateSessionRequest{ScenarioID: "sepsis"})
	require.NoError(t, err)

	ps := rdb.Subscribe(ctx, api.Channel("simlive", ss.SessionID))
	t.Cleanup(func() { _ = ps.Close() })
	_, err = ps.Receive(ctx)
	require.NoError(t, err)

	updated, err := svc.SetBanner(ctx, session.SetBannerRequest{SessionID: ss.SessionID, Text: "Patient arrives"})
	require.NoError(t, err)

	select {
	case msg := <-ps.Channel():
		var n domain.Notification
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &n))
		assert.Equal(t, domain.EventNameBannerChanged, n.Event)
		assert.Equal(t, updated.Revision, n.Revision)

		e, err := domain.DecodeEvent(n)
		require.NoError(t, err)
		assert.Equal(t, "Patient arrives", e.(*domain.EventBannerChanged).Banner)
	case <-time.After(2 * time.Second):
		t.Fatal("no notification published")
	}
}

func makeClient(t *testing.T) *simlivev1.SessionServiceClient {
	lis := bufconn.Listen(1 << 20)

	s := grpc.NewServer()
	api.New(api.Config{GRPC: s, EventBus: event.NewBus(), Session: makeSession(t)})
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return simlivev1.NewSessionServiceClient(conn)
}

func makeSession(t *testing.T) *session.Service {
	return session.NewService(session.Config{Store: newStore(t), EventBus: event.NewBus()})
}

func newStore(t *testing.T) *memory.Store {
	st := memory.New()
	require.NoError(t, st.PutScenario(context.Background(), scenario()))
	return st
}

func makeRedis(t *testing.T) redis.UniversalClient {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func statusOf(r *domain.Report, itemID string) domain.ChecklistStatus {
	for _, e := range r.Checklist {
		if e.ItemID == itemID {
			return e.Status
		}
	}
	return ""
}

func scenario() *domain.Scenario {
	forty := decimal.NewFromInt(40)
	return &domain.Scenario{
		ScenarioID: "sepsis",
		Title:      "Pediatric septic shock",
		Variables: []domain.VariableDef{
			{VariableID: "v-hr", Key: "hr", Label: "HR", Unit: "bpm", Type: domain.VariableNumber},
			{VariableID: "v-perf", Key: "perfusion_status", Label: "Perfusion", Type: domain.VariableText},
		},
		Checklist: []domain.ChecklistItem{
			{ItemID: "call-help", Label: "Called for help", Kind: domain.ChecklistBinary, Order: 1},
		},
		Rules: []domain.Rule{
			{
				RuleID: "fluids-40",
				When: []domain.Condition{
					{Kind: domain.ConditionSum, ActionKey: "bolo_cristaloide", Field: "mlkg", Op: domain.OpGTE, Threshold: &forty},
				},
				Effects: []domain.Effect{{VariableKey: "perfusion_status", Value: "improved"}},
			},
		},
	}
}
