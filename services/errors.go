package services

import "errors"

var (
	ErrAlreadyQueued     = errors.New("user is already queued")
	ErrMatchmakerRunning = errors.New("matchmaker is already running")
	ErrInvalidRating     = errors.New("rating must be positive")
	ErrJudgeUnavailable  = errors.New("gemini client not initialized")
	ErrUnparsableVerdict = errors.New("could not parse verdict")
)
