package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"debatesite/config"
	"debatesite/logger"

	"github.com/gin-gonic/gin"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Server.StatusPort = 0
	cfg.Matchmaking.TickInterval = 10 * time.Millisecond
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config) *app {
	t.Helper()
	gin.SetMode(gin.TestMode)
	a, err := newApp(context.Background(), cfg, logger.Nop())
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestCombinedModeServesEverything(t *testing.T) {
	a := newTestApp(t, testConfig())
	ws, status := a.engines()
	if ws != status {
		t.Fatal("combined mode built two engines")
	}

	w := get(ws, "/status")
	if w.Code != http.StatusOK {
		t.Fatalf("/status = %d", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["connected_users"] != float64(0) || body["active_debates"] != float64(0) {
		t.Errorf("status = %v", body)
	}

	m := get(ws, "/metrics")
	if m.Code != http.StatusOK || !strings.Contains(m.Body.String(), "debate_queue_waiting") {
		t.Errorf("/metrics = %d", m.Code)
	}
}

func TestSeparateModeSplitsEngines(t *testing.T) {
	cfg := testConfig()
	cfg.Server.Mode = config.ModeSeparate
	a := newTestApp(t, cfg)
	ws, status := a.engines()

	if ws == status {
		t.Fatal("separate mode shares one engine")
	}
	if w := get(ws, "/status"); w.Code != http.StatusNotFound {
		t.Errorf("websocket engine serves /status: %d", w.Code)
	}
	if w := get(status, "/ws"); w.Code != http.StatusNotFound {
		t.Errorf("status engine serves /ws: %d", w.Code)
	}
	if w := get(status, "/health"); w.Code != http.StatusOK {
		t.Errorf("/health = %d", w.Code)
	}
}

func TestSeededTopics(t *testing.T) {
	a := newTestApp(t, testConfig())
	topic, err := a.store.RandomTopic(context.Background())
	if err != nil || topic == "" {
		t.Errorf("RandomTopic = %q, %v", topic, err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	a := newTestApp(t, testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}
	if err := a.matchmaker.Enqueue("late", 1000); err != nil {
		t.Errorf("queue not inspectable after shutdown: %v", err)
	}
}
