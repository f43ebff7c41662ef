package services

import (
	"container/heap"
	"context"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"debatesite/config"
	"debatesite/db"
	"debatesite/internal/debate"
	"debatesite/metrics"
)

// PoolEntry represents a user in the matchmaking queue
type PoolEntry struct {
	UserID     string    `json:"user_id"`
	Rating     int       `json:"rating"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	failures   int
}

// QueueStatus is the read-only snapshot of the queue.
type QueueStatus struct {
	WaitingCount      int `json:"waiting_count"`
	OldestWaitSeconds int `json:"oldest_wait_seconds"`
}

// SessionCreator starts and discards debate sessions.
type SessionCreator interface {
	Create(ctx context.Context, userA, userB, topic string) (*debate.Session, error)
	Discard(sessionID string) error
}

// TopicSource draws a random debate topic.
type TopicSource interface {
	RandomTopic(ctx context.Context) (string, error)
}

// Notifier delivers a message to a user's connections.
type Notifier interface {
	Send(userID string, msg any) bool
}

// MatchmakingService pairs waiting users into debate sessions
type MatchmakingService struct {
	cfg      config.MatchmakingConfig
	sessions SessionCreator
	topics   TopicSource
	notifier Notifier
	metrics  *metrics.Collector
	logger   *slog.Logger
	now      func() time.Time

	mutex sync.Mutex
	pool  map[string]*PoolEntry
	// pairing holds entries taken from the pool whose match is not yet
	// announced; withdrawn marks those that left while in flight.
	pairing   map[string]*PoolEntry
	withdrawn map[string]bool
	running   bool
}

func NewMatchmakingService(cfg config.MatchmakingConfig, sessions SessionCreator, topics TopicSource,
	notifier Notifier, collector *metrics.Collector, logger *slog.Logger) *MatchmakingService {
	return &MatchmakingService{
		cfg:       cfg,
		sessions:  sessions,
		topics:    topics,
		notifier:  notifier,
		metrics:   collector,
		logger:    logger.With("component", "matchmaker"),
		now:       time.Now,
		pool:      make(map[string]*PoolEntry),
		pairing:   make(map[string]*PoolEntry),
		withdrawn: make(map[string]bool),
	}
}

// Enqueue adds a user to the queue. A user already waiting is rejected with
// ErrAlreadyQueued.
func (ms *MatchmakingService) Enqueue(userID string, rating int) error {
	if rating <= 0 {
		return ErrInvalidRating
	}

	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	if ms.queuedLocked(userID) {
		return ErrAlreadyQueued
	}
	ms.pool[userID] = &PoolEntry{UserID: userID, Rating: rating, EnqueuedAt: ms.now()}
	ms.metrics.SetQueueWaiting(len(ms.pool))
	ms.logger.Debug("user queued", "user_id", userID, "rating", rating)
	return nil
}

// Dequeue removes a user from the queue. It reports whether the user was waiting.
// A user whose match is still being set up is withdrawn from it.
func (ms *MatchmakingService) Dequeue(userID string) bool {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	if _, exists := ms.pool[userID]; exists {
		delete(ms.pool, userID)
		ms.metrics.SetQueueWaiting(len(ms.pool))
		return true
	}
	if _, inFlight := ms.pairing[userID]; inFlight && !ms.withdrawn[userID] {
		ms.withdrawn[userID] = true
		ms.logger.Debug("user withdrew during pairing", "user_id", userID)
		return true
	}
	return false
}

// IsQueued reports whether a user is waiting, including while a match for
// them is being set up.
func (ms *MatchmakingService) IsQueued(userID string) bool {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()
	return ms.queuedLocked(userID)
}

func (ms *MatchmakingService) queuedLocked(userID string) bool {
	if _, ok := ms.pool[userID]; ok {
		return true
	}
	_, inFlight := ms.pairing[userID]
	return inFlight && !ms.withdrawn[userID]
}

func (ms *MatchmakingService) Status() QueueStatus {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	st := QueueStatus{WaitingCount: len(ms.pool)}
	now := ms.now()
	for _, e := range ms.pool {
		if w := int(now.Sub(e.EnqueuedAt).Seconds()); w > st.OldestWaitSeconds {
			st.OldestWaitSeconds = w
		}
	}
	return st
}

// GetPool returns a copy of the queue ordered by enqueue time
func (ms *MatchmakingService) GetPool() []PoolEntry {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	pool := make([]PoolEntry, 0, len(ms.pool))
	for _, entry := range ms.pool {
		pool = append(pool, *entry)
	}
	sort.Slice(pool, func(i, j int) bool { return pool[i].EnqueuedAt.Before(pool[j].EnqueuedAt) })
	return pool
}

// Run pairs waiting users on every tick until ctx is cancelled. It may be
// started only once.
func (ms *MatchmakingService) Run(ctx context.Context) error {
	ms.mutex.Lock()
	if ms.running {
		ms.mutex.Unlock()
		return ErrMatchmakerRunning
	}
	ms.running = true
	ms.mutex.Unlock()

	ticker := time.NewTicker(ms.cfg.TickInterval)
	defer ticker.Stop()

	ms.logger.Info("matchmaker started", "tick", ms.cfg.TickInterval)
	for {
		select {
		case <-ctx.Done():
			ms.logger.Info("matchmaker stopped", "waiting", ms.Status().WaitingCount)
			return nil
		case <-ticker.C:
			ms.matchOnce(ctx)
		}
	}
}

// window is the rating difference a user accepts after waiting.
func (ms *MatchmakingService) window(e *PoolEntry, now time.Time) int {
	waited := now.Sub(e.EnqueuedAt)
	if ms.cfg.FairnessThreshold > 0 && waited >= ms.cfg.FairnessThreshold {
		return ms.cfg.MaxWindow
	}
	w := float64(ms.cfg.BaseWindow) + ms.cfg.WidenPerSecond*waited.Seconds()
	return int(math.Min(w, float64(ms.cfg.MaxWindow)))
}

type pair struct {
	a, b   *PoolEntry
	diff   int
	oldest time.Time
}

func (p pair) less(o pair) bool {
	if p.diff != o.diff {
		return p.diff < o.diff
	}
	if !p.oldest.Equal(o.oldest) {
		return p.oldest.Before(o.oldest)
	}
	if p.a.UserID != o.a.UserID {
		return p.a.UserID < o.a.UserID
	}
	return p.b.UserID < o.b.UserID
}

// takePairs plans pairs on a snapshot of the queue, then moves the planned
// entries still waiting into the pairing set.
func (ms *MatchmakingService) takePairs() []pair {
	ms.mutex.Lock()
	now := ms.now()
	entries := make([]*PoolEntry, 0, len(ms.pool))
	for _, e := range ms.pool {
		entries = append(entries, e)
	}
	ms.mutex.Unlock()

	planned := planPairs(entries, func(e *PoolEntry) int { return ms.window(e, now) })

	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	pairs := planned[:0]
	for _, p := range planned {
		if ms.pool[p.a.UserID] != p.a || ms.pool[p.b.UserID] != p.b {
			// left while planning; the partner waits for the next tick
			continue
		}
		delete(ms.pool, p.a.UserID)
		delete(ms.pool, p.b.UserID)
		ms.pairing[p.a.UserID] = p.a
		ms.pairing[p.b.UserID] = p.b
		pairs = append(pairs, p)
	}
	ms.metrics.SetQueueWaiting(len(ms.pool))
	return pairs
}

// planPairs selects disjoint pairs greedily. Closest ratings pair first;
// equal differences go to the pair that has waited longest. Once sorted by
// rating, the closest eligible pair is always adjacent among the entries
// still unpaired, so only neighbours become candidates. entries is reordered.
func planPairs(entries []*PoolEntry, window func(*PoolEntry) int) []pair {
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Rating != b.Rating {
			return a.Rating < b.Rating
		}
		if !a.EnqueuedAt.Equal(b.EnqueuedAt) {
			return a.EnqueuedAt.Before(b.EnqueuedAt)
		}
		return a.UserID < b.UserID
	})

	n := len(entries)
	windows := make([]int, n)
	prev := make([]int, n)
	next := make([]int, n)
	for i, e := range entries {
		windows[i] = window(e)
		prev[i] = i - 1
		next[i] = i + 1
	}

	h := &candidateHeap{}
	consider := func(i, j int) {
		if i < 0 || j >= n {
			return
		}
		a, b := entries[i], entries[j]
		diff := b.Rating - a.Rating
		if diff > max(windows[i], windows[j]) {
			return
		}
		if b.EnqueuedAt.Before(a.EnqueuedAt) {
			a, b = b, a
		}
		heap.Push(h, candidate{pair: pair{a: a, b: b, diff: diff, oldest: a.EnqueuedAt}, i: i, j: j})
	}
	for i := 0; i+1 < n; i++ {
		consider(i, i+1)
	}

	paired := make([]bool, n)
	var pairs []pair
	for h.Len() > 0 {
		c := heap.Pop(h).(candidate)
		if paired[c.i] || paired[c.j] || next[c.i] != c.j {
			continue
		}
		paired[c.i], paired[c.j] = true, true
		p, q := prev[c.i], next[c.j]
		if p >= 0 {
			next[p] = q
		}
		if q < n {
			prev[q] = p
		}
		consider(p, q)
		pairs = append(pairs, c.pair)
	}
	return pairs
}

// candidate is a pair of neighbours by their index in the sorted entries.
type candidate struct {
	pair
	i, j int
}

type candidateHeap []candidate

func (h candidateHeap) Len() int           { return len(h) }
func (h candidateHeap) Less(i, j int) bool { return h[i].pair.less(h[j].pair) }
func (h candidateHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *candidateHeap) Push(x any)        { *h = append(*h, x.(candidate)) }
func (h *candidateHeap) Pop() any {
	old := *h
	c := old[len(old)-1]
	*h = old[:len(old)-1]
	return c
}

// matchOnce runs one pairing pass and returns the number of sessions created.
func (ms *MatchmakingService) matchOnce(ctx context.Context) int {
	pairs := ms.takePairs()
	created := 0
	for i, p := range pairs {
		if ctx.Err() != nil {
			// stopping: nothing may stay half paired
			for _, rest := range pairs[i:] {
				ms.requeue(rest.a, rest.b)
			}
			return created
		}
		if ms.launch(ctx, p) {
			created++
		}
	}
	return created
}

// launch creates the session for a pair and announces it to both users.
func (ms *MatchmakingService) launch(ctx context.Context, p pair) bool {
	topic, err := ms.topics.RandomTopic(ctx)
	if err != nil {
		ms.logger.Warn("topic lookup failed, using fallback", "error", err)
		topic = db.FallbackTopic
	}

	sess, err := ms.sessions.Create(ctx, p.a.UserID, p.b.UserID, topic)
	if err != nil {
		ms.logger.Warn("pairing failed, retrying next tick",
			"user_a", p.a.UserID, "user_b", p.b.UserID, "error", err)
		ms.requeue(p.a, p.b)
		return false
	}

	if ms.isWithdrawn(p.a, p.b) {
		ms.logger.Info("user left during pairing, cancelling match",
			"session_id", sess.ID(), "user_a", p.a.UserID, "user_b", p.b.UserID)
		ms.abandon(sess, p, false, false)
		return false
	}

	found := debate.MatchFound{
		Envelope:  debate.Envelope{Type: debate.TypeMatchFound},
		SessionID: sess.ID(),
		Topic:     topic,
	}
	okA := ms.notifier.Send(p.a.UserID, found)
	okB := ms.notifier.Send(p.b.UserID, found)
	if !okA {
		p.a.failures++
	}
	if !okB {
		p.b.failures++
	}
	if okA && okB {
		if ms.settle(p.a, p.b) {
			now := ms.now()
			ms.metrics.RecordMatch(now.Sub(p.a.EnqueuedAt), now.Sub(p.b.EnqueuedAt))
			ms.logger.Info("match found", "session_id", sess.ID(),
				"user_a", p.a.UserID, "user_b", p.b.UserID, "rating_diff", p.diff)
			return true
		}
		ms.logger.Info("user left while match was announced, cancelling",
			"session_id", sess.ID(), "user_a", p.a.UserID, "user_b", p.b.UserID)
	} else {
		ms.logger.Warn("match notification failed, requeueing",
			"session_id", sess.ID(), "user_a", p.a.UserID, "delivered_a", okA,
			"user_b", p.b.UserID, "delivered_b", okB)
	}
	ms.abandon(sess, p, okA, okB)
	return false
}

// abandon discards a created session, tells the users that already heard
// about it, and returns the pair to the queue.
func (ms *MatchmakingService) abandon(sess *debate.Session, p pair, toldA, toldB bool) {
	if err := ms.sessions.Discard(sess.ID()); err != nil {
		ms.logger.Warn("failed to discard session", "session_id", sess.ID(), "error", err)
	}
	ms.metrics.RecordMatchCancelled()

	cancelled := debate.MatchCancelled{
		Envelope:  debate.Envelope{Type: debate.TypeMatchCancelled},
		SessionID: sess.ID(),
	}
	if toldA {
		ms.notifier.Send(p.a.UserID, cancelled)
	}
	if toldB {
		ms.notifier.Send(p.b.UserID, cancelled)
	}
	ms.requeue(p.a, p.b)
}

func (ms *MatchmakingService) isWithdrawn(a, b *PoolEntry) bool {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()
	return ms.withdrawn[a.UserID] || ms.withdrawn[b.UserID]
}

// settle ends the pairing of a matched pair. It fails, leaving the pair in
// flight, when either user has withdrawn.
func (ms *MatchmakingService) settle(a, b *PoolEntry) bool {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()
	if ms.withdrawn[a.UserID] || ms.withdrawn[b.UserID] {
		return false
	}
	ms.releaseLocked(a)
	ms.releaseLocked(b)
	return true
}

func (ms *MatchmakingService) releaseLocked(e *PoolEntry) {
	if ms.pairing[e.UserID] == e {
		delete(ms.pairing, e.UserID)
	}
}

// requeue returns entries with their original enqueue time. Users that left
// during pairing stay out, users that joined again meanwhile keep the newer
// entry, and users that failed delivery too often are dropped.
func (ms *MatchmakingService) requeue(entries ...*PoolEntry) {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	for _, e := range entries {
		ms.releaseLocked(e)
		if ms.withdrawn[e.UserID] {
			delete(ms.withdrawn, e.UserID)
			continue
		}
		if ms.cfg.MaxNotifyFailures > 0 && e.failures >= ms.cfg.MaxNotifyFailures {
			ms.logger.Warn("dropping unreachable user from queue", "user_id", e.UserID, "failures", e.failures)
			continue
		}
		if _, exists := ms.pool[e.UserID]; exists {
			continue
		}
		ms.pool[e.UserID] = e
	}
	ms.metrics.SetQueueWaiting(len(ms.pool))
}
