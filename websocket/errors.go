package websocket

import "errors"

var (
	// ErrDeliveryFailure is logged when a message could not be queued for a user.
	ErrDeliveryFailure = errors.New("message delivery failed")
	ErrNotConnected    = errors.New("user is not connected")
	ErrRegistryClosed  = errors.New("connection registry is closed")
	ErrMissingIdentity = errors.New("missing user identity")
)
