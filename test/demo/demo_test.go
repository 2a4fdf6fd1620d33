//go:build integration_test

package demo

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	simlivev1 "github.com/victornm/simlive/internal/api/simlivev1"
	"github.com/victornm/simlive/internal/domain"
	"github.com/victornm/simlive/internal/syncclient"
)

const (
	addr   = "localhost:8081"
	prefix = "local:pubsub"
)

func TestLiveSession(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var (
		sc = makeSessionClient(t)
		rc = makeRedis(t)
		wg = new(sync.WaitGroup)
	)

	// Load the scenario and open a session
	_, err := sc.PutScenario(ctx, &simlivev1.PutScenarioRequest{Scenario: scenario()})
	require.NoError(t, err)

	created, err := sc.CreateSession(ctx, &simlivev1.CreateSessionRequest{
		ScenarioId: "demo-sepsis",
		Participants: []domain.Participant{
			{ID: "p1", Name: "Ana", Role: domain.RoleLeader},
			{ID: "p2", Name: "Luis", Role: domain.RoleAirway},
		},
	})
	require.NoError(t, err)
	id := created.Session.SessionID
	t.Logf("Session %s open with code %s", id, created.Session.Code)

	// Prepare Redis subscriber and a viewer
	logNotifications(t, rc, wg, id)

	views := make(chan domain.Snapshot, 100)
	viewer := syncclient.New(syncclient.Config{
		Code:       created.Session.Code,
		Puller:     syncclient.GRPCPuller{Client: sc},
		Subscriber: syncclient.RedisSubscriber{Redis: rc, Prefix: prefix},
		OnChange: func(s domain.Snapshot) {
			select {
			case views <- s:
			default:
			}
		},
	})
	go func() { _ = viewer.Run(ctx) }()

	// Drive the session as the instructor
	_, err = sc.StartSession(ctx, &simlivev1.StartSessionRequest{SessionId: id})
	require.NoError(t, err)

	hr := "160"
	_, err = sc.RevealVariable(ctx, &simlivev1.RevealVariableRequest{SessionId: id, VariableId: "v-hr", Value: &hr})
	require.NoError(t, err)
	waitFor(t, views, func(s domain.Snapshot) bool { return len(s.Variables) == 1 })

	for range 2 {
		payload, err := simlivev1.NewStruct(map[string]any{"mlkg": 20})
		require.NoError(t, err)
		_, err = sc.AppendAction(ctx, &simlivev1.AppendActionRequest{SessionId: id, Key: "bolo_cristaloide", Payload: payload})
		require.NoError(t, err)
	}

	ev, err := sc.Reevaluate(ctx, &simlivev1.ReevaluateRequest{SessionId: id})
	require.NoError(t, err)
	t.Logf("Rules applied %d updates, skipped %d", len(ev.Updates), ev.Skipped)

	_, err = sc.HideVariable(ctx, &simlivev1.HideVariableRequest{SessionId: id, VariableId: "v-hr"})
	require.NoError(t, err)
	waitFor(t, views, func(s domain.Snapshot) bool { return len(s.Variables) == 0 })

	final, err := sc.FinalizeSession(ctx, &simlivev1.FinalizeSessionRequest{SessionId: id})
	require.NoError(t, err)

	b, err := json.MarshalIndent(final.Report, "", "  ")
	require.NoError(t, err)
	t.Logf("Report:\n%s", b)

	cancel()
	wg.Wait()
}

func waitFor(t *testing.T, views <-chan domain.Snapshot, ok func(domain.Snapshot) bool) {
	t.Helper()

	timeout := time.After(10 * time.Second)
	for {
		select {
		case s := <-views:
			if ok(s) {
				return
			}
		case <-timeout:
			t.Fatal("viewer did not converge")
		}
	}
}

func makeSessionClient(t *testing.T) *simlivev1.SessionServiceClient {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return simlivev1.NewSessionServiceClient(conn)
}

func logNotifications(t *testing.T, rc redis.UniversalClient, wg *sync.WaitGroup, sessionID string) {
	wg.Add(1)
	sub := subscribeRedis(t, rc, fmt.Sprintf("%s:session:%s", prefix, sessionID))
	go func() {
		defer wg.Done()

		for msg := range sub {
			var n domain.Notification
			if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
				t.Logf("unmarshal notification: %v", err)
				continue
			}

			t.Logf("push %s rev=%d %s", n.Event, n.Revision, n.Data)
		}
	}()
}

func subscribeRedis(t *testing.T, rc redis.UniversalClient, pattern string) <-chan *redis.Message {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	t.Cleanup(cancel)

	sub := rc.PSubscribe(ctx, pattern)
	t.Cleanup(func() { sub.Close() })

	c := make(chan *redis.Message)
	go func() {
		defer close(c)

		for {
			msg, err := sub.ReceiveMessage(ctx)
			if err != nil {
				t.Log(err)
				return
			}

			c <- msg
		}
	}()

	return c
}

func makeRedis(t *testing.T) redis.UniversalClient {
	r := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{"localhost:6379"},
	})
	t.Cleanup(func() { r.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.Ping(ctx).Err(); err != nil {
		t.Fatal(err)
	}

	return r
}

func scenario() *domain.Scenario {
	forty := decimal.NewFromInt(40)
	return &domain.Scenario{
		ScenarioID: "demo-sepsis",
		Title:      "Pediatric septic shock",
		Phases: []domain.Phase{
			{PhaseID: "triage", Name: "Triage", Order: 1},
		},
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
