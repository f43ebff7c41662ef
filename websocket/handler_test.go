package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"debatesite/config"
	"debatesite/db"
	"debatesite/internal/debate"
	"debatesite/logger"
	"debatesite/services"
	"debatesite/utils"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type testServer struct {
	url      string
	registry *Registry
	queue    *services.MatchmakingService
	manager  *debate.Manager
}

func newTestServer(t *testing.T, wsCfg config.WebSocketConfig) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default()
	cfg.Debate.PrepDuration = 0
	cfg.Debate.TurnDuration = 5 * time.Second
	cfg.Debate.MaxTurns = 2
	cfg.Matchmaking.TickInterval = 10 * time.Millisecond

	log := logger.Nop()
	store := db.NewMemoryStore()
	registry := NewRegistry(nil, log)
	manager := debate.NewManager(cfg.Debate, store, registry, log)
	queue := services.NewMatchmakingService(cfg.Matchmaking, manager, store, registry, nil, log)
	ratings := services.NewRatingService(store, nil, log)
	handler := NewHandler(wsCfg, registry, queue, ratings, manager, nil, log)

	ctx, cancel := context.WithCancel(context.Background())
	go queue.Run(ctx)

	engine := gin.New()
	engine.GET("/ws", handler.ServeWS)
	srv := httptest.NewServer(engine)

	t.Cleanup(func() {
		cancel()
		sctx, scancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer scancel()
		manager.Shutdown(sctx)
		registry.Close()
		srv.Close()
	})
	return &testServer{
		url:      "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
		registry: registry,
		queue:    queue,
		manager:  manager,
	}
}

func testWSConfig() config.WebSocketConfig {
	return config.Default().WebSocket
}

func dial(t *testing.T, ts *testServer, userID string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(ts.url+"?user_id="+userID, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", userID, err)
	}
	t.Cleanup(func() { conn.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for !ts.registry.IsConnected(userID) && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg map[string]any) {
	t.Helper()
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// expect reads frames until one of the given type arrives.
func expect(t *testing.T, conn *websocket.Conn, msgType string) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var msg map[string]any
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("waiting for %s: %v", msgType, err)
		}
		if msg["type"] == msgType {
			return msg
		}
	}
}

func TestServeWSRequiresIdentity(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewHandler(testWSConfig(), NewRegistry(nil, logger.Nop()), nil, nil, nil, nil, logger.Nop())

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/ws", nil)
	h.ServeWS(c)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestIdentifyWithJWT(t *testing.T) {
	gin.SetMode(gin.TestMode)
	utils.SetJWTSecret("test-secret")
	t.Cleanup(func() { utils.SetJWTSecret("") })

	token, err := utils.GenerateJWTToken("alice")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		target  string
		header  string
		want    string
		wantErr bool
	}{
		{"query token", "/ws?token=" + token, "", "alice", false},
		{"bearer header", "/ws", "Bearer " + token, "alice", false},
		{"user_id ignored when jwt is on", "/ws?user_id=mallory", "", "", true},
		{"bad token", "/ws?token=garbage", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				c.Request.Header.Set("Authorization", tt.header)
			}
			got, err := identify(c)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v", err)
			}
			if got != tt.want {
				t.Errorf("user = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestQueueMessages(t *testing.T) {
	ts := newTestServer(t, testWSConfig())
	conn := dial(t, ts, "alice")

	send(t, conn, map[string]any{"type": TypeJoinQueue, "rating": 1200})
	if got := expect(t, conn, TypeQueueJoined); got["rating"] != float64(1200) {
		t.Errorf("queue_joined = %v", got)
	}

	send(t, conn, map[string]any{"type": TypeJoinQueue})
	if got := expect(t, conn, TypeError); got["code"] != CodeAlreadyQueued {
		t.Errorf("error = %v", got)
	}

	send(t, conn, map[string]any{"type": TypeQueueStatus})
	if got := expect(t, conn, TypeQueueStatus); got["waiting_count"] != float64(1) {
		t.Errorf("queue_status = %v", got)
	}

	send(t, conn, map[string]any{"type": TypeLeaveQueue})
	if got := expect(t, conn, TypeQueueLeft); got["was_queued"] != true {
		t.Errorf("queue_left = %v", got)
	}
}

func TestJoinQueueUsesStoredRating(t *testing.T) {
	ts := newTestServer(t, testWSConfig())
	conn := dial(t, ts, "alice")

	send(t, conn, map[string]any{"type": TypeJoinQueue})
	if got := expect(t, conn, TypeQueueJoined); got["rating"] != float64(1000) {
		t.Errorf("queue_joined = %v", got)
	}
}

func TestErrorCodes(t *testing.T) {
	ts := newTestServer(t, testWSConfig())
	conn := dial(t, ts, "alice")

	tests := []struct {
		msg  map[string]any
		code string
	}{
		{map[string]any{"type": TypeSubmitTurn, "session_id": "nope", "content": "hi"}, CodeUnknownSession},
		{map[string]any{"type": TypeStartDebate, "session_id": "nope"}, CodeUnknownSession},
		{map[string]any{"type": "dance"}, CodeBadRequest},
		{map[string]any{"type": TypeLeaveQueue, "user_id": "bob"}, CodeNotParticipant},
	}
	for _, tt := range tests {
		send(t, conn, tt.msg)
		if got := expect(t, conn, TypeError); got["code"] != tt.code {
			t.Errorf("%v: code = %v, want %s", tt.msg, got["code"], tt.code)
		}
	}
}

func TestRateLimit(t *testing.T) {
	cfg := testWSConfig()
	cfg.RatePerSecond = 0.001
	cfg.Burst = 1
	ts := newTestServer(t, cfg)
	conn := dial(t, ts, "alice")

	send(t, conn, map[string]any{"type": TypeQueueStatus})
	expect(t, conn, TypeQueueStatus)
	send(t, conn, map[string]any{"type": TypeQueueStatus})
	if got := expect(t, conn, TypeError); got["code"] != CodeRateLimited {
		t.Errorf("code = %v", got["code"])
	}
}

func TestDisconnectLeavesQueue(t *testing.T) {
	ts := newTestServer(t, testWSConfig())
	conn := dial(t, ts, "alice")

	send(t, conn, map[string]any{"type": TypeJoinQueue, "rating": 1000})
	expect(t, conn, TypeQueueJoined)
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for ts.queue.Status().WaitingCount != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if n := ts.queue.Status().WaitingCount; n != 0 {
		t.Errorf("waiting = %d after disconnect", n)
	}
	if ts.registry.IsConnected("alice") {
		t.Error("alice still registered")
	}
}

func TestFullDebateOverWebsocket(t *testing.T) {
	ts := newTestServer(t, testWSConfig())
	conns := map[string]*websocket.Conn{
		"alice": dial(t, ts, "alice"),
		"bob":   dial(t, ts, "bob"),
	}

	for _, u := range []string{"alice", "bob"} {
		send(t, conns[u], map[string]any{"type": TypeJoinQueue, "rating": 1000})
		expect(t, conns[u], TypeQueueJoined)
	}
	found := expect(t, conns["alice"], debate.TypeMatchFound)
	expect(t, conns["bob"], debate.TypeMatchFound)
	sessionID, _ := found["session_id"].(string)
	if sessionID == "" {
		t.Fatalf("match_found = %v", found)
	}

	send(t, conns["alice"], map[string]any{"type": TypeStartDebate, "session_id": sessionID})

	sides := map[string]string{}
	for u, conn := range conns {
		started := expect(t, conn, debate.TypeDebateStarted)
		sides[u], _ = started["your_side"].(string)
	}
	first, second := "alice", "bob"
	if sides["bob"] == "for" {
		first, second = "bob", "alice"
	}

	expect(t, conns[first], debate.TypeYourTurn)
	send(t, conns[first], map[string]any{"type": TypeSubmitTurn, "session_id": sessionID, "content": "opening"})
	relay := expect(t, conns[second], debate.TypeMessage)
	if relay["content"] != "opening" || relay["sender"] != first {
		t.Errorf("relay = %v", relay)
	}

	expect(t, conns[second], debate.TypeYourTurn)
	send(t, conns[second], map[string]any{"type": TypeSubmitTurn, "session_id": sessionID, "content": "rebuttal"})

	for _, conn := range conns {
		concluded := expect(t, conn, debate.TypeDebateConcluded)
		if concluded["reason"] != "completed" || concluded["winner"] != nil || concluded["log_ref"] != sessionID {
			t.Errorf("debate_concluded = %v", concluded)
		}
	}

	// a concluded debate no longer holds its participants
	for u, conn := range conns {
		send(t, conn, map[string]any{"type": TypeJoinQueue, "rating": 1000})
		if got := expect(t, conn, TypeQueueJoined); got["rating"] != float64(1000) {
			t.Errorf("%s rejoin = %v", u, got)
		}
	}
}
