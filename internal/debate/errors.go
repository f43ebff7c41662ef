package debate

import "errors"

var (
	ErrUnknownSession   = errors.New("unknown session")
	ErrOutOfTurn        = errors.New("message submitted out of turn")
	ErrNotParticipant   = errors.New("user is not a participant of this session")
	ErrInvalidContent   = errors.New("invalid turn content")
	ErrSessionConcluded = errors.New("session already concluded")
	ErrSameUser         = errors.New("a user cannot debate themselves")
	ErrInvalidWinner    = errors.New("winner is not a participant of this session")
	ErrShuttingDown     = errors.New("session manager is shutting down")
)
