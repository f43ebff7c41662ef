package db

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"debatesite/models"

	"github.com/google/uuid"
)

// MemoryStore keeps records in process memory. It backs the "memory" driver
// and the tests of every package that needs a record store.
type MemoryStore struct {
	mu      sync.RWMutex
	debates map[string]*models.DebateRecord
	users   map[string]*models.User
	topics  []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		debates: make(map[string]*models.DebateRecord),
		users:   make(map[string]*models.User),
	}
}

func (m *MemoryStore) CreateSession(_ context.Context, rec *models.DebateRecord) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *rec
	if cp.ID == "" {
		cp.ID = uuid.New().String()
	}
	if cp.Status == "" {
		cp.Status = models.StatusActive
	}
	cp.Log = append([]models.LogEntry(nil), rec.Log...)
	m.debates[cp.ID] = &cp
	return cp.ID, nil
}

func (m *MemoryStore) AppendLog(_ context.Context, sessionID string, entry models.LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.debates[sessionID]
	if !ok {
		return ErrNotFound
	}
	rec.Log = append(rec.Log, entry)
	return nil
}

func (m *MemoryStore) Finalize(_ context.Context, sessionID string, outcome models.Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.debates[sessionID]
	if !ok {
		return ErrNotFound
	}
	now := time.Now()
	o := outcome
	rec.Outcome = &o
	rec.Status = statusFor(outcome)
	rec.ConcludedAt = &now
	return nil
}

func (m *MemoryStore) GetDebate(_ context.Context, sessionID string) (*models.DebateRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.debates[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	cp.Log = append([]models.LogEntry(nil), rec.Log...)
	return &cp, nil
}

func (m *MemoryStore) RandomTopic(_ context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.topics) == 0 {
		return FallbackTopic, nil
	}
	return m.topics[rand.IntN(len(m.topics))], nil
}

func (m *MemoryStore) SeedTopics(_ context.Context, topics []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.topics) > 0 {
		return 0, nil
	}
	m.topics = append(m.topics, topics...)
	return len(topics), nil
}

func (m *MemoryStore) GetUser(_ context.Context, userID string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MemoryStore) SaveUser(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *user
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	m.users[cp.ID] = &cp
	return nil
}

func (m *MemoryStore) Ping(context.Context) error  { return nil }
func (m *MemoryStore) Close(context.Context) error { return nil }
