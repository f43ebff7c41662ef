package debate

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"debatesite/config"
	"debatesite/metrics"
	"debatesite/models"
)

// Manager owns the live-session table.
type Manager struct {
	cfg     config.DebateConfig
	store   Recorder
	sender  Sender
	sink    EventSink
	judge   Adjudicator
	metrics *metrics.Collector
	hooks   []ResultHook
	logger  *slog.Logger
	wait    waitFunc

	mu       sync.RWMutex
	sessions map[string]*Session
	byUser   map[string]string
	closed   bool
}

type Option func(*Manager)

func WithEventSink(sink EventSink) Option {
	return func(m *Manager) { m.sink = sink }
}

func WithAdjudicator(a Adjudicator) Option {
	return func(m *Manager) { m.judge = a }
}

func WithMetrics(c *metrics.Collector) Option {
	return func(m *Manager) { m.metrics = c }
}

// WithResultHook registers a hook run for every concluded session.
func WithResultHook(h ResultHook) Option {
	return func(m *Manager) { m.hooks = append(m.hooks, h) }
}

func NewManager(cfg config.DebateConfig, store Recorder, sender Sender, logger *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		cfg:      cfg,
		store:    store,
		sender:   sender,
		logger:   logger.With("component", "sessions"),
		wait:     sleepCtx,
		sessions: make(map[string]*Session),
		byUser:   make(map[string]string),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create persists a new session for two users and registers it as live.
// Sides are drawn at random.
func (m *Manager) Create(ctx context.Context, userA, userB, topic string) (*Session, error) {
	if userA == userB {
		return nil, ErrSameUser
	}
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return nil, ErrShuttingDown
	}

	sideA := models.SideFor
	if rand.IntN(2) == 1 {
		sideA = models.SideAgainst
	}
	rec := &models.DebateRecord{
		UserA:     userA,
		UserB:     userB,
		SideA:     sideA,
		SideB:     sideA.Opposite(),
		Topic:     topic,
		MaxTurns:  m.cfg.MaxTurns,
		Status:    models.StatusActive,
		CreatedAt: time.Now(),
	}
	id, err := m.store.CreateSession(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("create session record: %w", err)
	}

	s := newSession(m, id, rec)

	m.mu.Lock()
	m.sessions[id] = s
	m.byUser[userA] = id
	m.byUser[userB] = id
	m.mu.Unlock()

	m.metrics.SessionStarted()
	m.logger.Info("session created", "session_id", id, "user_a", userA, "user_b", userB, "topic", topic)
	return s, nil
}

func (m *Manager) Get(sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrUnknownSession
	}
	return s, nil
}

// SessionFor returns the live session a user takes part in.
func (m *Manager) SessionFor(userID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byUser[userID]
	if !ok {
		return nil, false
	}
	s, ok := m.sessions[id]
	return s, ok
}

func (m *Manager) Start(sessionID, userID string) (bool, error) {
	s, err := m.Get(sessionID)
	if err != nil {
		return false, err
	}
	return s.Start(userID)
}

func (m *Manager) Submit(sessionID, userID, content string) error {
	s, err := m.Get(sessionID)
	if err != nil {
		return err
	}
	return s.Submit(userID, content)
}

func (m *Manager) Forfeit(sessionID, userID string) error {
	s, err := m.Get(sessionID)
	if err != nil {
		return err
	}
	return s.Forfeit(userID)
}

// Adjudicate applies an external verdict. An empty winner records a draw.
func (m *Manager) Adjudicate(sessionID, winner string) error {
	s, err := m.Get(sessionID)
	if err != nil {
		return err
	}
	return s.Adjudicate(winner)
}

// Discard aborts a session whose match could not be announced.
func (m *Manager) Discard(sessionID string) error {
	s, err := m.Get(sessionID)
	if err != nil {
		return err
	}
	s.abort()
	return nil
}

func (m *Manager) HandleDisconnect(userID string) {
	if s, ok := m.SessionFor(userID); ok {
		s.Disconnected(userID)
	}
}

func (m *Manager) HandleReconnect(userID string) {
	if s, ok := m.SessionFor(userID); ok {
		s.Reconnected(userID)
	}
}

func (m *Manager) Status(sessionID string) (Status, error) {
	s, err := m.Get(sessionID)
	if err != nil {
		return Status{}, err
	}
	return s.Status(), nil
}

// Statuses lists every live session ordered by id.
func (m *Manager) Statuses() []Status {
	m.mu.RLock()
	live := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		live = append(live, s)
	}
	m.mu.RUnlock()

	out := make([]Status, 0, len(live))
	for _, s := range live {
		out = append(out, s.Status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out
}

func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Shutdown concludes every live session and waits for them to be persisted.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	live := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		live = append(live, s)
	}
	m.mu.Unlock()

	for _, s := range live {
		s.shutdown()
	}
	for _, s := range live {
		select {
		case <-s.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.logger.Info("sessions shut down", "count", len(live))
	return nil
}

// release detaches the participants of a concluded session so they can queue
// again while it is still being finalized. Get keeps finding it until then.
func (m *Manager) release(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range []string{s.userA, s.userB} {
		if m.byUser[u] == s.id {
			delete(m.byUser, u)
		}
	}
}

// concluded evicts a finalized session and runs the result hooks.
func (m *Manager) concluded(ctx context.Context, s *Session, r Result) {
	m.mu.Lock()
	delete(m.sessions, s.id)
	m.mu.Unlock()

	m.metrics.SessionConcluded(r.Outcome.Reason)
	for _, h := range m.hooks {
		h(ctx, r)
	}
}
