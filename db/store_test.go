package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"debatesite/models"
)

// exerciseStore runs the same contract checks against every implementation.
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	topic, err := store.RandomTopic(ctx)
	if err != nil {
		t.Fatalf("RandomTopic on empty store: %v", err)
	}
	if topic != FallbackTopic {
		t.Errorf("empty store topic = %q, want fallback", topic)
	}

	n, err := store.SeedTopics(ctx, DefaultTopics)
	if err != nil || n != len(DefaultTopics) {
		t.Fatalf("SeedTopics = %d, %v", n, err)
	}
	if n, err := store.SeedTopics(ctx, DefaultTopics); err != nil || n != 0 {
		t.Errorf("second SeedTopics = %d, %v; want 0, nil", n, err)
	}
	topic, err = store.RandomTopic(ctx)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, d := range DefaultTopics {
		if d == topic {
			found = true
		}
	}
	if !found {
		t.Errorf("RandomTopic returned unseeded topic %q", topic)
	}

	id, err := store.CreateSession(ctx, &models.DebateRecord{
		UserA:     "alice",
		UserB:     "bob",
		SideA:     models.SideFor,
		SideB:     models.SideAgainst,
		Topic:     topic,
		MaxTurns:  2,
		CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if id == "" {
		t.Fatal("CreateSession returned empty id")
	}

	entries := []models.LogEntry{
		{Author: "alice", Side: models.SideFor, Content: "opening", TurnIndex: 0, At: time.Now()},
		{Author: "bob", Side: models.SideAgainst, TurnIndex: 1, Skipped: true, At: time.Now()},
	}
	for _, e := range entries {
		if err := store.AppendLog(ctx, id, e); err != nil {
			t.Fatalf("AppendLog: %v", err)
		}
	}
	if err := store.AppendLog(ctx, "missing", entries[0]); !errors.Is(err, ErrNotFound) {
		t.Errorf("AppendLog on unknown session = %v, want ErrNotFound", err)
	}

	if err := store.Finalize(ctx, id, models.Outcome{Winner: "alice", Reason: models.ReasonForfeit}); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	rec, err := store.GetDebate(ctx, id)
	if err != nil {
		t.Fatalf("GetDebate: %v", err)
	}
	if rec.Status != models.StatusConcluded {
		t.Errorf("status = %q", rec.Status)
	}
	if rec.Outcome == nil || rec.Outcome.Winner != "alice" || rec.Outcome.Reason != models.ReasonForfeit {
		t.Errorf("outcome = %+v", rec.Outcome)
	}
	if rec.ConcludedAt == nil {
		t.Error("concluded_at not set")
	}
	if len(rec.Log) != 2 || rec.Log[0].Content != "opening" || !rec.Log[1].Skipped {
		t.Errorf("log = %+v", rec.Log)
	}
	if rec.SideA != models.SideFor || rec.SideB != models.SideAgainst {
		t.Errorf("sides = %q/%q", rec.SideA, rec.SideB)
	}

	if _, err := store.GetDebate(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetDebate(missing) = %v", err)
	}

	if _, err := store.GetUser(ctx, "alice"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetUser before save = %v", err)
	}
	u := &models.User{ID: "alice", Username: "alice", Rating: models.DefaultRating}
	if err := store.SaveUser(ctx, u); err != nil {
		t.Fatalf("SaveUser: %v", err)
	}
	u.Rating = 1016
	u.Wins = 1
	if err := store.SaveUser(ctx, u); err != nil {
		t.Fatalf("SaveUser update: %v", err)
	}
	got, err := store.GetUser(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if got.Rating != 1016 || got.Wins != 1 {
		t.Errorf("user = %+v", got)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestSQLiteStore(t *testing.T) {
	store, err := OpenSQLStore(context.Background(), DialectSQLite, ":memory:")
	if err != nil {
		t.Fatalf("OpenSQLStore: %v", err)
	}
	defer store.Close(context.Background())

	exerciseStore(t, store)
}

func TestFinalizeAbortedSetsAbortedStatus(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	id, _ := store.CreateSession(ctx, &models.DebateRecord{UserA: "a", UserB: "b"})
	if err := store.Finalize(ctx, id, models.Outcome{Reason: models.ReasonAborted}); err != nil {
		t.Fatal(err)
	}
	rec, _ := store.GetDebate(ctx, id)
	if rec.Status != models.StatusAborted {
		t.Errorf("status = %q, want aborted", rec.Status)
	}
}

func TestRebind(t *testing.T) {
	pg := &SQLStore{dialect: DialectPostgres}
	if got := pg.rebind("SELECT a FROM t WHERE x = ? AND y = ?"); got != "SELECT a FROM t WHERE x = $1 AND y = $2" {
		t.Errorf("postgres rebind = %q", got)
	}
	lite := &SQLStore{dialect: DialectSQLite}
	if got := lite.rebind("x = ?"); got != "x = ?" {
		t.Errorf("sqlite rebind changed query: %q", got)
	}
}

func TestExtractDBName(t *testing.T) {
	tests := map[string]string{
		"mongodb://localhost:27017/debates":          "debates",
		"mongodb://localhost:27017/":                 "test",
		"mongodb://localhost:27017":                  "test",
		"mongodb+srv://u:p@cluster.example.net/prod": "prod",
	}
	for uri, want := range tests {
		if got := extractDBName(uri); got != want {
			t.Errorf("extractDBName(%q) = %q, want %q", uri, got, want)
		}
	}
}
