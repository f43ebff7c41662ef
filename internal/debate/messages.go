package debate

import "debatesite/models"

// Outbound message types.
const (
	TypeMatchFound       = "match_found"
	TypeMatchCancelled   = "match_cancelled"
	TypeDebateStarted    = "debate_started"
	TypePrepTimerStart   = "prep_timer_start"
	TypePrepTimer        = "prep_timer"
	TypeDebatePhaseStart = "debate_phase_start"
	TypeYourTurn         = "your_turn"
	TypeOpponentTurn     = "opponent_turn"
	TypeTurnTimerStart   = "turn_timer_start"
	TypeTurnTimer        = "turn_timer"
	TypeMessage          = "message"
	TypeTurnSkipped      = "turn_skipped"
	TypeDebateConcluded  = "debate_concluded"
	TypeDebateResumed    = "debate_resumed"
)

// Envelope carries the message type. Every outbound message embeds it so the
// JSON form is flat: {"type": "...", ...fields}.
type Envelope struct {
	Type string `json:"type"`
}

func (e Envelope) MessageType() string { return e.Type }

// Message is anything that can be delivered to a participant.
type Message interface {
	MessageType() string
}

type MatchFound struct {
	Envelope
	SessionID string `json:"session_id"`
	Topic     string `json:"topic"`
}

type MatchCancelled struct {
	Envelope
	SessionID string `json:"session_id"`
}

type DebateStarted struct {
	Envelope
	SessionID       string      `json:"session_id"`
	YourSide        models.Side `json:"your_side"`
	Topic           string      `json:"topic"`
	DurationSeconds int         `json:"duration_seconds"`
}

// TimerStart announces a countdown. Type is prep_timer_start or turn_timer_start.
type TimerStart struct {
	Envelope
	DurationSeconds int `json:"duration_seconds"`
}

// TimerTick is one countdown emission. Type is prep_timer or turn_timer.
type TimerTick struct {
	Envelope
	RemainingSeconds int    `json:"remaining_seconds"`
	Display          string `json:"display"`
}

type PhaseStart struct {
	Envelope
	Phase Phase `json:"phase"`
}

type YourTurn struct {
	Envelope
	TurnIndex  int         `json:"turn_index"`
	TurnNumber int         `json:"turn_number"`
	YourSide   models.Side `json:"your_side"`
}

type OpponentTurn struct {
	Envelope
	TurnIndex    int         `json:"turn_index"`
	TurnNumber   int         `json:"turn_number"`
	OpponentSide models.Side `json:"opponent_side"`
}

// Relay forwards a submitted turn to the opponent.
type Relay struct {
	Envelope
	Sender    string `json:"sender"`
	Content   string `json:"content"`
	TurnIndex int    `json:"turn_index"`
}

type TurnSkipped struct {
	Envelope
	User      string `json:"user"`
	TurnIndex int    `json:"turn_index"`
}

type DebateConcluded struct {
	Envelope
	Winner *string `json:"winner"`
	Reason string  `json:"reason"`
	LogRef string  `json:"log_ref"`
}

type DebateResumed struct {
	Envelope
	SessionID string      `json:"session_id"`
	Phase     Phase       `json:"phase"`
	TurnCount int         `json:"turn_count"`
	YourSide  models.Side `json:"your_side"`
	Topic     string      `json:"topic"`
}

func envelope(t string) Envelope { return Envelope{Type: t} }
