package chat

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/classpulse/backend/internal/models"
	"github.com/classpulse/backend/internal/sessions"
)

// maxHistory bounds the per-session log; older messages are dropped.
const maxHistory = 500

// Service keeps a per-session ordered chat log, independent of poll state.
// Logs are lazily initialized and live only for the process lifetime.
type Service struct {
	mu     sync.RWMutex
	logs   map[string][]models.ChatMessage
	hub    sessions.Broadcaster
	logger *zap.Logger
}

// NewService creates a chat service.
func NewService(hub sessions.Broadcaster, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		logs:   make(map[string][]models.ChatMessage),
		hub:    hub,
		logger: logger,
	}
}

// History returns a copy of the session's chat log in send order. It is a
// query, not a consuming read.
func (s *Service) History(sessionID string) []models.ChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	log := s.logs[sessionID]
	out := make([]models.ChatMessage, len(log))
	copy(out, log)
	return out
}

// Append records a message with a server-assigned timestamp and broadcasts it
// to the session group. Messages with a missing session id, sender type,
// sender id or text are dropped silently.
func (s *Service) Append(sessionID, senderType, senderID, senderName, message string) {
	if sessionID == "" || senderType == "" || senderID == "" || message == "" {
		return
	}
	msg := models.ChatMessage{
		SenderType: senderType,
		SenderID:   senderID,
		SenderName: senderName,
		Message:    message,
		SentAt:     time.Now(),
	}
	s.mu.Lock()
	log := append(s.logs[sessionID], msg)
	if len(log) > maxHistory {
		log = log[len(log)-maxHistory:]
	}
	s.logs[sessionID] = log
	s.mu.Unlock()

	s.hub.BroadcastToSession(sessionID, "chat:new_message", msg)
}
