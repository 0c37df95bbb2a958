package models

import "errors"

// Client-actionable failures. These are reported to the originating
// connection only, never broadcast to the session group.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrPollNotFound    = errors.New("poll not found")
	ErrInvalidPoll     = errors.New("invalid poll")
	ErrNameTaken       = errors.New("name already taken in this session")
	ErrKicked          = errors.New("kicked from this session")
)
