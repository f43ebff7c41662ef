package models

import (
	"time"
)

// Side is the position a participant argues.
type Side string

const (
	SideFor     Side = "for"
	SideAgainst Side = "against"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideFor {
		return SideAgainst
	}
	return SideFor
}

// Debate record status values
const (
	StatusActive    = "active"
	StatusConcluded = "concluded"
	StatusAborted   = "aborted"
)

// Conclusion reasons
const (
	ReasonCompleted   = "completed"
	ReasonForfeit     = "forfeit"
	ReasonDisconnect  = "disconnect"
	ReasonAdjudicated = "adjudicated"
	ReasonShutdown    = "shutdown"
	ReasonAborted     = "aborted"
)

// LogEntry is one turn of a debate. Forfeited turns are kept with Skipped set.
type LogEntry struct {
	Author    string    `bson:"author" json:"author"`
	Side      Side      `bson:"side" json:"side"`
	Content   string    `bson:"content" json:"content"`
	TurnIndex int       `bson:"turnIndex" json:"turn_index"`
	Skipped   bool      `bson:"skipped" json:"skipped"`
	At        time.Time `bson:"at" json:"at"`
}

// Outcome is the result of a concluded debate. An empty Winner is a draw or no result.
type Outcome struct {
	Winner string `bson:"winner,omitempty" json:"winner,omitempty"`
	Reason string `bson:"reason" json:"reason"`
}

// IsDraw reports whether the debate ended without a winner.
func (o Outcome) IsDraw() bool {
	return o.Winner == ""
}

// DebateRecord defines a persisted debate session
type DebateRecord struct {
	ID          string     `bson:"_id" json:"id"`
	UserA       string     `bson:"userA" json:"user_a"`
	UserB       string     `bson:"userB" json:"user_b"`
	SideA       Side       `bson:"sideA" json:"side_a"`
	SideB       Side       `bson:"sideB" json:"side_b"`
	Topic       string     `bson:"topic" json:"topic"`
	MaxTurns    int        `bson:"maxTurns" json:"max_turns"`
	Status      string     `bson:"status" json:"status"`
	Log         []LogEntry `bson:"log" json:"log"`
	Outcome     *Outcome   `bson:"outcome,omitempty" json:"outcome,omitempty"`
	CreatedAt   time.Time  `bson:"createdAt" json:"created_at"`
	ConcludedAt *time.Time `bson:"concludedAt,omitempty" json:"concluded_at,omitempty"`
}

// Topic is a debate motion.
type Topic struct {
	ID   int    `bson:"_id" json:"id"`
	Text string `bson:"topic" json:"topic"`
}
