package debate

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"debatesite/config"
	"debatesite/models"
	"debatesite/utils"
)

const (
	persistTimeout = 5 * time.Second
	finishTimeout  = 30 * time.Second
)

type conclusion struct {
	reason     string
	winner     string
	adjudicate bool
	notify     bool
}

type graceTimer struct {
	timer *time.Timer
	gen   uint64
}

// Session is one live debate. All phase, turn and timer state is mutated
// only while holding mu, either by a participant request or by one of the
// session's own timers.
type Session struct {
	id        string
	topic     string
	userA     string
	userB     string
	sides     map[string]models.Side
	createdAt time.Time
	cfg       config.DebateConfig
	mgr       *Manager
	logger    *slog.Logger

	mu           sync.Mutex
	phase        Phase
	holder       string
	turnCount    int
	turnDeadline time.Time
	log          []models.LogEntry
	timerEpoch   uint64
	stopTimer    context.CancelFunc
	grace        map[string]graceTimer
	graceGen     uint64
	outcome      *models.Outcome

	persist     chan models.LogEntry
	persistDone chan struct{}
	done        chan struct{}
}

func newSession(m *Manager, id string, rec *models.DebateRecord) *Session {
	s := &Session{
		id:        id,
		topic:     rec.Topic,
		userA:     rec.UserA,
		userB:     rec.UserB,
		sides:     map[string]models.Side{rec.UserA: rec.SideA, rec.UserB: rec.SideB},
		createdAt: rec.CreatedAt,
		cfg:       m.cfg,
		mgr:       m,
		logger:    m.logger.With("session_id", id),
		phase:     PhaseCreated,
		grace:     make(map[string]graceTimer),
		// one entry per turn at most
		persist:     make(chan models.LogEntry, m.cfg.MaxTurns),
		persistDone: make(chan struct{}),
		done:        make(chan struct{}),
	}
	go s.persistLoop()
	return s
}

func (s *Session) ID() string    { return s.id }
func (s *Session) Topic() string { return s.topic }

// Users returns both participants in creation order.
func (s *Session) Users() (string, string) { return s.userA, s.userB }

// SideOf returns the side assigned to a participant.
func (s *Session) SideOf(userID string) models.Side { return s.sides[userID] }

// Done is closed once the session has been concluded, persisted and evicted.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Outcome returns the final outcome once it has been persisted.
func (s *Session) Outcome() (models.Outcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outcome == nil {
		return models.Outcome{}, false
	}
	return *s.outcome, true
}

// Log returns a copy of the turns recorded so far.
func (s *Session) Log() []models.LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.LogEntry(nil), s.log...)
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		SessionID: s.id,
		Phase:     s.phase,
		TurnCount: s.turnCount,
		MaxTurns:  s.cfg.MaxTurns,
		Topic:     s.topic,
		Users:     map[string]models.Side{s.userA: s.sides[s.userA], s.userB: s.sides[s.userB]},
	}
	if s.phase == PhaseTurns {
		st.CurrentTurnHolder = s.holder
	}
	return st
}

// Start moves the session into preparation. Only the first call from either
// participant has an effect; later calls report false.
func (s *Session) Start(userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isParticipant(userID) {
		return false, ErrNotParticipant
	}
	if s.phase == PhaseConcluded {
		return false, ErrSessionConcluded
	}
	if s.phase != PhaseCreated {
		return false, nil
	}

	s.phase = PhasePreparation
	s.logger.Info("preparation started", "started_by", userID, "duration", s.cfg.PrepDuration)

	prep := steps(s.cfg.PrepDuration, s.cfg.Tick)
	for _, u := range []string{s.userA, s.userB} {
		s.send(u, DebateStarted{
			Envelope:        envelope(TypeDebateStarted),
			SessionID:       s.id,
			YourSide:        s.sides[u],
			Topic:           s.topic,
			DurationSeconds: prep,
		})
	}
	s.broadcast(TimerStart{Envelope: envelope(TypePrepTimerStart), DurationSeconds: prep})
	s.startTimerLocked(PhasePreparation, s.cfg.PrepDuration)
	return true, nil
}

// Submit records content from the current turn holder and advances the turn.
func (s *Session) Submit(userID, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isParticipant(userID) {
		return ErrNotParticipant
	}
	if s.phase == PhaseConcluded {
		return ErrSessionConcluded
	}
	if s.phase != PhaseTurns || s.holder != userID || !time.Now().Before(s.turnDeadline) {
		s.logger.Warn("out-of-turn message dropped",
			"user_id", userID, "phase", s.phase, "turn_count", s.turnCount)
		return ErrOutOfTurn
	}

	content = strings.TrimSpace(content)
	if content == "" || utf8.RuneCountInString(content) > s.cfg.MaxContentLength {
		return ErrInvalidContent
	}

	s.cancelTimerLocked()
	s.recordLocked(models.LogEntry{
		Author:    userID,
		Side:      s.sides[userID],
		Content:   content,
		TurnIndex: s.turnCount,
		At:        time.Now(),
	})
	s.send(s.opponent(userID), Relay{
		Envelope:  envelope(TypeMessage),
		Sender:    userID,
		Content:   content,
		TurnIndex: s.turnCount,
	})
	s.advanceLocked()
	return nil
}

// Forfeit concedes the debate; the opponent wins.
func (s *Session) Forfeit(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isParticipant(userID) {
		return ErrNotParticipant
	}
	if s.phase == PhaseConcluded {
		return ErrSessionConcluded
	}
	s.logger.Info("debate forfeited", "user_id", userID)
	s.concludeLocked(conclusion{reason: models.ReasonForfeit, winner: s.opponent(userID), notify: true})
	return nil
}

// Adjudicate concludes the session with an external verdict.
// An empty winner is a draw.
func (s *Session) Adjudicate(winner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if winner != "" && !s.isParticipant(winner) {
		return ErrInvalidWinner
	}
	if s.phase == PhaseConcluded {
		return ErrSessionConcluded
	}
	s.concludeLocked(conclusion{reason: models.ReasonAdjudicated, winner: winner, notify: true})
	return nil
}

// abort ends a session whose participants were never told about it.
func (s *Session) abort() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.concludeLocked(conclusion{reason: models.ReasonAborted})
}

func (s *Session) shutdown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.concludeLocked(conclusion{reason: models.ReasonShutdown, notify: true})
}

// Disconnected starts the grace period for a participant whose last
// connection dropped.
func (s *Session) Disconnected(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == PhaseConcluded || !s.isParticipant(userID) {
		return
	}
	if _, pending := s.grace[userID]; pending {
		return
	}

	s.graceGen++
	gen := s.graceGen
	s.logger.Info("participant disconnected", "user_id", userID, "grace", s.cfg.DisconnectGrace)
	if s.cfg.DisconnectGrace <= 0 {
		s.disconnectConcludeLocked(userID)
		return
	}
	t := time.AfterFunc(s.cfg.DisconnectGrace, func() { s.graceExpired(userID, gen) })
	s.grace[userID] = graceTimer{timer: t, gen: gen}
}

// Reconnected cancels a pending grace period and resends the session state.
func (s *Session) Reconnected(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == PhaseConcluded || !s.isParticipant(userID) {
		return
	}
	if g, ok := s.grace[userID]; ok {
		g.timer.Stop()
		delete(s.grace, userID)
		s.logger.Info("participant reconnected", "user_id", userID)
	}
	s.send(userID, DebateResumed{
		Envelope:  envelope(TypeDebateResumed),
		SessionID: s.id,
		Phase:     s.phase,
		TurnCount: s.turnCount,
		YourSide:  s.sides[userID],
		Topic:     s.topic,
	})
}

func (s *Session) graceExpired(userID string, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.grace[userID]
	if !ok || g.gen != gen {
		return
	}
	delete(s.grace, userID)
	s.disconnectConcludeLocked(userID)
}

func (s *Session) disconnectConcludeLocked(userID string) {
	if s.phase == PhaseConcluded {
		return
	}
	winner := s.opponent(userID)
	if _, gone := s.grace[winner]; gone {
		winner = ""
	}
	s.concludeLocked(conclusion{reason: models.ReasonDisconnect, winner: winner, notify: true})
}

func (s *Session) startTimerLocked(phase Phase, d time.Duration) {
	s.cancelTimerLocked()
	epoch := s.timerEpoch

	ctx, cancel := context.WithCancel(context.Background())
	s.stopTimer = cancel
	deadline := time.Now().Add(d)
	if phase == PhaseTurns {
		s.turnDeadline = deadline
	}

	go runCountdown(ctx, deadline, s.cfg.Tick, s.mgr.wait, func(remaining int) bool {
		return s.onTick(epoch, phase, remaining)
	})
}

// cancelTimerLocked stops the running countdown. Bumping the epoch makes any
// emission already waiting on mu a no-op.
func (s *Session) cancelTimerLocked() {
	if s.stopTimer != nil {
		s.stopTimer()
		s.stopTimer = nil
	}
	s.timerEpoch++
}

func (s *Session) onTick(epoch uint64, phase Phase, remaining int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if epoch != s.timerEpoch || s.phase != phase {
		return false
	}

	tickType := TypeTurnTimer
	if phase == PhasePreparation {
		tickType = TypePrepTimer
	}
	s.logger.Debug("countdown", "phase", phase, "remaining", remaining)
	s.broadcast(TimerTick{
		Envelope:         envelope(tickType),
		RemainingSeconds: remaining,
		Display:          utils.FormatClock(remaining),
	})
	if remaining > 0 {
		return true
	}

	switch phase {
	case PhasePreparation:
		s.enterTurnsLocked()
	case PhaseTurns:
		s.forfeitTurnLocked()
	}
	return false
}

func (s *Session) enterTurnsLocked() {
	s.phase = PhaseTurns
	s.holder = s.userA
	if s.sides[s.userB] == models.SideFor {
		s.holder = s.userB
	}
	s.logger.Info("turns started", "first_speaker", s.holder)
	s.broadcast(PhaseStart{Envelope: envelope(TypeDebatePhaseStart), Phase: PhaseTurns})
	s.beginTurnLocked()
}

func (s *Session) beginTurnLocked() {
	holderSide := s.sides[s.holder]
	s.send(s.holder, YourTurn{
		Envelope:   envelope(TypeYourTurn),
		TurnIndex:  s.turnCount,
		TurnNumber: s.turnCount + 1,
		YourSide:   holderSide,
	})
	s.send(s.opponent(s.holder), OpponentTurn{
		Envelope:     envelope(TypeOpponentTurn),
		TurnIndex:    s.turnCount,
		TurnNumber:   s.turnCount + 1,
		OpponentSide: holderSide,
	})
	s.broadcast(TimerStart{
		Envelope:        envelope(TypeTurnTimerStart),
		DurationSeconds: steps(s.cfg.TurnDuration, s.cfg.Tick),
	})
	s.startTimerLocked(PhaseTurns, s.cfg.TurnDuration)
}

// forfeitTurnLocked records an empty turn for a holder whose timer ran out.
func (s *Session) forfeitTurnLocked() {
	skipped := s.holder
	s.logger.Info("turn forfeited", "user_id", skipped, "turn_index", s.turnCount)
	s.recordLocked(models.LogEntry{
		Author:    skipped,
		Side:      s.sides[skipped],
		TurnIndex: s.turnCount,
		Skipped:   true,
		At:        time.Now(),
	})
	s.broadcast(TurnSkipped{Envelope: envelope(TypeTurnSkipped), User: skipped, TurnIndex: s.turnCount})
	s.advanceLocked()
}

func (s *Session) advanceLocked() {
	s.turnCount++
	s.holder = s.opponent(s.holder)
	if s.turnCount >= s.cfg.MaxTurns {
		s.concludeLocked(conclusion{reason: models.ReasonCompleted, adjudicate: true, notify: true})
		return
	}
	s.beginTurnLocked()
}

func (s *Session) recordLocked(e models.LogEntry) {
	s.log = append(s.log, e)
	s.persist <- e
	s.mgr.metrics.RecordTurn(e.Skipped)
}

// concludeLocked enters the terminal phase. Persisting the outcome and
// notifying participants happen off the lock in finish.
func (s *Session) concludeLocked(c conclusion) bool {
	if s.phase == PhaseConcluded {
		return false
	}
	s.cancelTimerLocked()
	for u, g := range s.grace {
		g.timer.Stop()
		delete(s.grace, u)
	}

	s.logger.Info("session concluded",
		"reason", c.reason, "from_phase", s.phase, "turn_count", s.turnCount)
	s.phase = PhaseConcluded
	close(s.persist)
	s.mgr.release(s)

	go s.finish(c)
	return true
}

func (s *Session) finish(c conclusion) {
	<-s.persistDone

	ctx, cancel := context.WithTimeout(context.Background(), finishTimeout)
	defer cancel()

	outcome := models.Outcome{Winner: c.winner, Reason: c.reason}
	if c.adjudicate {
		outcome.Winner = s.judge(ctx)
	}
	if err := s.mgr.store.Finalize(ctx, s.id, outcome); err != nil {
		s.logger.Warn("failed to finalize session", "error", err)
	}

	s.mu.Lock()
	s.outcome = &outcome
	turns := s.turnCount
	s.mu.Unlock()

	if c.notify {
		var winner *string
		if outcome.Winner != "" {
			w := outcome.Winner
			winner = &w
		}
		s.broadcast(DebateConcluded{
			Envelope: envelope(TypeDebateConcluded),
			Winner:   winner,
			Reason:   outcome.Reason,
			LogRef:   s.id,
		})
	}

	s.mgr.concluded(ctx, s, Result{
		SessionID: s.id,
		UserA:     s.userA,
		UserB:     s.userB,
		Topic:     s.topic,
		TurnCount: turns,
		Outcome:   outcome,
	})
	close(s.done)
}

// judge asks the adjudicator for a winner. Without one, or on failure, the
// debate is a draw.
func (s *Session) judge(ctx context.Context) string {
	if s.mgr.judge == nil {
		return ""
	}
	side, err := s.mgr.judge.Judge(ctx, Transcript{SessionID: s.id, Topic: s.topic, Log: s.Log()})
	if err != nil {
		s.logger.Warn("adjudication failed, recording a draw", "error", err)
		return ""
	}
	for u, sd := range s.sides {
		if side != "" && sd == side {
			return u
		}
	}
	return ""
}

func (s *Session) persistLoop() {
	defer close(s.persistDone)
	for e := range s.persist {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		if err := s.mgr.store.AppendLog(ctx, s.id, e); err != nil {
			s.logger.Warn("failed to append log entry", "turn_index", e.TurnIndex, "error", err)
		}
		cancel()
	}
}

func (s *Session) send(userID string, msg Message) {
	if s.mgr.sink != nil {
		s.mgr.sink.Publish(s.id, userID, msg)
	}
	s.deliver(userID, msg)
}

func (s *Session) broadcast(msg Message) {
	if s.mgr.sink != nil {
		s.mgr.sink.Publish(s.id, "", msg)
	}
	s.deliver(s.userA, msg)
	s.deliver(s.userB, msg)
}

// deliver is best effort; a failure never blocks phase progression.
func (s *Session) deliver(userID string, msg Message) {
	if s.mgr.sender.Send(userID, msg) {
		return
	}
	s.mgr.metrics.RecordDeliveryFailure()
	s.logger.Warn("delivery failed", "user_id", userID, "type", msg.MessageType())
}

func (s *Session) isParticipant(userID string) bool {
	return userID == s.userA || userID == s.userB
}

func (s *Session) opponent(userID string) string {
	if userID == s.userA {
		return s.userB
	}
	return s.userA
}
