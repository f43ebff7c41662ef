package routes

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"debatesite/db"
	"debatesite/internal/debate"
	"debatesite/logger"
	"debatesite/models"
	"debatesite/services"

	"github.com/gin-gonic/gin"
)

type fakeQueue struct{ st services.QueueStatus }

func (q fakeQueue) Status() services.QueueStatus { return q.st }

type fakeConns int

func (n fakeConns) Count() int { return int(n) }

type fakeSessions struct {
	live        map[string]debate.Status
	adjudicated map[string]string
}

func (s *fakeSessions) Status(id string) (debate.Status, error) {
	st, ok := s.live[id]
	if !ok {
		return debate.Status{}, debate.ErrUnknownSession
	}
	return st, nil
}

func (s *fakeSessions) Statuses() []debate.Status {
	out := make([]debate.Status, 0, len(s.live))
	for _, st := range s.live {
		out = append(out, st)
	}
	return out
}

func (s *fakeSessions) ActiveCount() int { return len(s.live) }

func (s *fakeSessions) Adjudicate(id, winner string) error {
	st, ok := s.live[id]
	if !ok {
		return debate.ErrUnknownSession
	}
	if _, ok := st.Users[winner]; winner != "" && !ok {
		return debate.ErrInvalidWinner
	}
	s.adjudicated[id] = winner
	return nil
}

type fakeRecords struct {
	debates map[string]*models.DebateRecord
	pingErr error
}

func (r *fakeRecords) GetDebate(_ context.Context, id string) (*models.DebateRecord, error) {
	rec, ok := r.debates[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return rec, nil
}

func (r *fakeRecords) Ping(context.Context) error { return r.pingErr }

type fakeEvents struct{ got int64 }

func (e *fakeEvents) Events(_ context.Context, id string, count int64) ([]debate.Event, error) {
	e.got = count
	return []debate.Event{{Type: debate.TypeMatchFound, Timestamp: 1}}, nil
}

type apiFixture struct {
	router   *gin.Engine
	sessions *fakeSessions
	records  *fakeRecords
	events   *fakeEvents
}

func newAPIFixture(withEvents bool) *apiFixture {
	gin.SetMode(gin.TestMode)
	f := &apiFixture{
		sessions: &fakeSessions{
			live: map[string]debate.Status{
				"live-1": {
					SessionID: "live-1",
					Phase:     debate.PhaseTurns,
					TurnCount: 3,
					MaxTurns:  6,
					Users:     map[string]models.Side{"alice": models.SideFor, "bob": models.SideAgainst},
				},
			},
			adjudicated: make(map[string]string),
		},
		records: &fakeRecords{debates: map[string]*models.DebateRecord{
			"old-1": {ID: "old-1", Status: models.StatusConcluded, Outcome: &models.Outcome{Reason: models.ReasonCompleted}},
		}},
		events: &fakeEvents{},
	}
	var events EventReader
	if withEvents {
		events = f.events
	}
	api := NewAPI(fakeQueue{services.QueueStatus{WaitingCount: 4, OldestWaitSeconds: 17}}, fakeConns(9),
		f.sessions, f.records, events, logger.Nop())
	f.router = gin.New()
	api.Register(f.router, nil)
	return f
}

func (f *apiFixture) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

func TestGetStatus(t *testing.T) {
	f := newAPIFixture(false)
	w := f.do(http.MethodGet, "/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := decode(t, w)
	if body["connected_users"] != float64(9) || body["active_debates"] != float64(1) {
		t.Errorf("body = %v", body)
	}
	queue, _ := body["queue"].(map[string]any)
	if queue["waiting_count"] != float64(4) || queue["oldest_wait_seconds"] != float64(17) {
		t.Errorf("queue = %v", queue)
	}
}

func TestGetDebate(t *testing.T) {
	f := newAPIFixture(false)

	tests := []struct {
		id       string
		wantCode int
		wantLive any
	}{
		{"live-1", http.StatusOK, true},
		{"old-1", http.StatusOK, false},
		{"missing", http.StatusNotFound, nil},
	}
	for _, tt := range tests {
		w := f.do(http.MethodGet, "/debates/"+tt.id, "")
		if w.Code != tt.wantCode {
			t.Errorf("%s: status = %d, want %d", tt.id, w.Code, tt.wantCode)
			continue
		}
		if tt.wantLive != nil && decode(t, w)["live"] != tt.wantLive {
			t.Errorf("%s: live flag wrong: %s", tt.id, w.Body.String())
		}
	}
}

func TestAdjudicate(t *testing.T) {
	tests := []struct {
		name     string
		id       string
		body     string
		wantCode int
		want     string
	}{
		{"winner", "live-1", `{"winner": "bob"}`, http.StatusAccepted, "bob"},
		{"null is a draw", "live-1", `{"winner": null}`, http.StatusAccepted, ""},
		{"empty body is a draw", "live-1", "", http.StatusAccepted, ""},
		{"outsider", "live-1", `{"winner": "carol"}`, http.StatusBadRequest, ""},
		{"unknown session", "nope", `{"winner": "bob"}`, http.StatusNotFound, ""},
		{"malformed", "live-1", `{"winner": `, http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAPIFixture(false)
			w := f.do(http.MethodPost, "/debates/"+tt.id+"/adjudicate", tt.body)
			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.wantCode, w.Body.String())
			}
			if tt.wantCode == http.StatusAccepted {
				if got, ok := f.sessions.adjudicated[tt.id]; !ok || got != tt.want {
					t.Errorf("adjudicated = %q (%v), want %q", got, ok, tt.want)
				}
			}
		})
	}
}

func TestHealth(t *testing.T) {
	f := newAPIFixture(false)
	if w := f.do(http.MethodGet, "/health", ""); w.Code != http.StatusOK {
		t.Errorf("healthy store: status = %d", w.Code)
	}
	f.records.pingErr = errors.New("connection refused")
	if w := f.do(http.MethodGet, "/health", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("failing store: status = %d", w.Code)
	}
}

func TestGetEvents(t *testing.T) {
	if w := newAPIFixture(false).do(http.MethodGet, "/debates/live-1/events", ""); w.Code != http.StatusNotImplemented {
		t.Errorf("without stream: status = %d", w.Code)
	}

	f := newAPIFixture(true)
	w := f.do(http.MethodGet, "/debates/live-1/events?count=5000", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if f.events.got != maxEventCount {
		t.Errorf("count = %d, want capped at %d", f.events.got, maxEventCount)
	}
	if w := f.do(http.MethodGet, "/debates/live-1/events?count=-1", ""); w.Code != http.StatusBadRequest {
		t.Errorf("negative count: status = %d", w.Code)
	}
}
