package sessions

import (
	"crypto/rand"
	"fmt"

	"github.com/google/uuid"
)

const (
	joinCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	joinCodeLength   = 6
)

// NewSessionID returns a globally unique session identifier.
func NewSessionID() string {
	return uuid.New().String()
}

// newJoinCode returns a random 6-character alphanumeric code. Uniqueness
// among live sessions is the caller's responsibility.
func newJoinCode() (string, error) {
	buf := make([]byte, joinCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	for i, b := range buf {
		buf[i] = joinCodeAlphabet[int(b)%len(joinCodeAlphabet)]
	}
	return string(buf), nil
}
