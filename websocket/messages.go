package websocket

import (
	"debatesite/internal/debate"
)

// Inbound message types
const (
	TypeJoinQueue     = "join_queue"
	TypeLeaveQueue    = "leave_queue"
	TypeStartDebate   = "start_debate"
	TypeSubmitTurn    = "submit_turn"
	TypeForfeitDebate = "forfeit_debate"
	TypeQueueStatus   = "queue_status"
)

// Outbound message types owned by the connection layer
const (
	TypeQueueJoined = "queue_joined"
	TypeQueueLeft   = "queue_left"
	TypeError       = "error"
)

// Error codes sent to clients
const (
	CodeAlreadyQueued  = "already_queued"
	CodeUnknownSession = "unknown_session"
	CodeOutOfTurn      = "out_of_turn"
	CodeNotParticipant = "not_participant"
	CodeInvalidContent = "invalid_content"
	CodeRateLimited    = "rate_limited"
	CodeBadRequest     = "bad_request"
)

// Inbound is any message a client sends. Unused fields stay empty.
type Inbound struct {
	Type      string `json:"type"`
	UserID    string `json:"user_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Rating    int    `json:"rating,omitempty"`
	Content   string `json:"content,omitempty"`
}

type QueueJoined struct {
	debate.Envelope
	Rating int `json:"rating"`
}

type QueueLeft struct {
	debate.Envelope
	WasQueued bool `json:"was_queued"`
}

type QueueStatusReply struct {
	debate.Envelope
	WaitingCount      int `json:"waiting_count"`
	OldestWaitSeconds int `json:"oldest_wait_seconds"`
}

type ErrorReply struct {
	debate.Envelope
	Code    string `json:"code"`
	Message string `json:"message"`
}

func errorReply(code, message string) ErrorReply {
	return ErrorReply{Envelope: debate.Envelope{Type: TypeError}, Code: code, Message: message}
}
