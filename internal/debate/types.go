package debate

import (
	"context"

	"debatesite/models"
)

// Phase is one state of the session state machine.
type Phase string

const (
	PhaseCreated     Phase = "created"
	PhasePreparation Phase = "preparation"
	PhaseTurns       Phase = "turns"
	PhaseConcluded   Phase = "concluded"
)

// Sender delivers a message to every live connection of a user.
// Implementations must not block; a false return means nothing was delivered.
type Sender interface {
	Send(userID string, msg any) bool
}

// Recorder is the part of the record store a session writes to.
type Recorder interface {
	CreateSession(ctx context.Context, rec *models.DebateRecord) (string, error)
	AppendLog(ctx context.Context, sessionID string, entry models.LogEntry) error
	Finalize(ctx context.Context, sessionID string, outcome models.Outcome) error
}

// EventSink receives a copy of every outbound session message.
// Publish must not block.
type EventSink interface {
	Publish(sessionID, recipient string, msg Message)
}

// Transcript is what an adjudicator sees of a finished debate.
type Transcript struct {
	SessionID string
	Topic     string
	Log       []models.LogEntry
}

// Adjudicator decides the winning side of a completed debate.
// An empty side is a draw.
type Adjudicator interface {
	Judge(ctx context.Context, t Transcript) (models.Side, error)
}

// Result describes a concluded and persisted session.
type Result struct {
	SessionID string
	UserA     string
	UserB     string
	Topic     string
	TurnCount int
	Outcome   models.Outcome
}

// ResultHook runs after a session has been finalized in the record store.
type ResultHook func(ctx context.Context, r Result)

// Status is the read-only view of a live session.
type Status struct {
	SessionID         string                 `json:"session_id"`
	Phase             Phase                  `json:"phase"`
	TurnCount         int                    `json:"turn_count"`
	MaxTurns          int                    `json:"max_turns"`
	CurrentTurnHolder string                 `json:"current_turn_holder,omitempty"`
	Topic             string                 `json:"topic"`
	Users             map[string]models.Side `json:"users"`
}
