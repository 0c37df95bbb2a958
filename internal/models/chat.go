package models

import "time"

// ChatMessage is one entry in a session's chat log. Immutable once appended.
type ChatMessage struct {
	SenderType string    `json:"senderType"` // "teacher" or "student"
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName,omitempty"`
	Message    string    `json:"message"`
	SentAt     time.Time `json:"sentAt"`
}
