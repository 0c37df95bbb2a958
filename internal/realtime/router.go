package realtime

import (
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/classpulse/backend/internal/chat"
	"github.com/classpulse/backend/internal/models"
	"github.com/classpulse/backend/internal/polls"
	"github.com/classpulse/backend/internal/sessions"
)

// Router dispatches inbound WebSocket events to the session, poll and chat
// services. Each event is handled to completion before the next one is read
// from the same connection.
type Router struct {
	hub    *Hub
	roster *sessions.Service
	polls  *polls.Service
	chat   *chat.Service
	logger *zap.Logger
}

// NewRouter wires the event dispatcher.
func NewRouter(hub *Hub, roster *sessions.Service, pollSvc *polls.Service, chatSvc *chat.Service, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{hub: hub, roster: roster, polls: pollSvc, chat: chatSvc, logger: logger}
}

// HandleDisconnect removes the connection from its group and, if it was bound
// to a participant, removes that participant from the roster. Safe to call
// for connections that never joined.
func (r *Router) HandleDisconnect(c *Client) {
	sessionID, participantID := r.hub.Unsubscribe(c)
	if sessionID != "" && participantID != "" {
		r.roster.Leave(sessionID, participantID)
	}
}

// HandleEvent routes one inbound message. Unknown events are ignored.
func (r *Router) HandleEvent(c *Client, msg WSMessage) {
	switch msg.Event {
	case "teacher:join":
		r.teacherJoin(c, msg.Data)
	case "student:join":
		r.studentJoin(c, msg.Data)
	case "teacher:create_poll":
		r.createPoll(c, msg.Data)
	case "teacher:start_poll":
		r.startPoll(msg.Data)
	case "student:submit_answer":
		r.submitAnswer(msg.Data)
	case "teacher:kick_student":
		r.kickStudent(msg.Data)
	case "chat:get_history":
		r.chatHistory(c, msg.Data)
	case "chat:send_message":
		r.chatSend(msg.Data)
	default:
		// ignore
	}
}

func (r *Router) teacherJoin(c *Client, data json.RawMessage) {
	var req struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(data, &req); err != nil || req.SessionID == "" {
		return
	}
	r.hub.Subscribe(c, req.SessionID)
	if snap, err := r.roster.Snapshot(req.SessionID); err == nil {
		r.hub.SendToClient(c, "server:session_update", snap)
	}
}

func (r *Router) studentJoin(c *Client, data json.RawMessage) {
	var req struct {
		Name      string `json:"name"`
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(data, &req); err != nil || req.Name == "" || req.SessionID == "" {
		r.sendError(c, "Missing name or session ID")
		return
	}
	// Subscribe before joining so the joiner receives its own session update.
	r.hub.Subscribe(c, req.SessionID)
	p, err := r.roster.Join(req.SessionID, req.Name)
	if err != nil {
		r.hub.Unsubscribe(c)
		r.sendError(c, errMessage(err))
		return
	}
	r.hub.BindParticipant(c, p.ID)
	r.hub.SendToClient(c, "student:joined", p)
}

func (r *Router) createPoll(c *Client, data json.RawMessage) {
	var req struct {
		Question           string   `json:"question"`
		Options            []string `json:"options"`
		Duration           int      `json:"duration"`
		SessionID          string   `json:"sessionId"`
		CorrectOptionIndex *int     `json:"correctOptionIndex"`
	}
	if err := json.Unmarshal(data, &req); err != nil || req.Question == "" || req.Options == nil || req.SessionID == "" {
		r.sendError(c, "Missing poll data or session ID")
		return
	}
	correctIdx := -1
	if req.CorrectOptionIndex != nil {
		correctIdx = *req.CorrectOptionIndex
	}
	if err := r.polls.Create(req.SessionID, req.Question, req.Options, req.Duration, correctIdx); err != nil {
		r.sendError(c, errMessage(err))
	}
}

func (r *Router) startPoll(data json.RawMessage) {
	var req struct {
		PollID    string `json:"pollId"`
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return
	}
	r.polls.Restart(req.SessionID, req.PollID)
}

func (r *Router) submitAnswer(data json.RawMessage) {
	var req struct {
		SessionID string `json:"sessionId"`
		PollID    string `json:"pollId"`
		StudentID string `json:"studentId"`
		OptionID  string `json:"optionId"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return
	}
	r.polls.Submit(req.SessionID, req.PollID, req.StudentID, req.OptionID)
}

func (r *Router) kickStudent(data json.RawMessage) {
	var req struct {
		SessionID string `json:"sessionId"`
		StudentID string `json:"studentId"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return
	}
	r.roster.Kick(req.SessionID, req.StudentID)
}

func (r *Router) chatHistory(c *Client, data json.RawMessage) {
	var req struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(data, &req); err != nil || req.SessionID == "" {
		return
	}
	r.hub.SendToClient(c, "chat:history", r.chat.History(req.SessionID))
}

func (r *Router) chatSend(data json.RawMessage) {
	var req struct {
		SessionID  string `json:"sessionId"`
		SenderType string `json:"senderType"`
		SenderID   string `json:"senderId"`
		SenderName string `json:"senderName"`
		Message    string `json:"message"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return
	}
	r.chat.Append(req.SessionID, req.SenderType, req.SenderID, req.SenderName, req.Message)
}

func (r *Router) sendError(c *Client, message string) {
	r.hub.SendToClient(c, "server:error", message)
}

// errMessage maps service errors to the human-readable strings the existing
// clients display.
func errMessage(err error) string {
	switch {
	case errors.Is(err, models.ErrSessionNotFound):
		return "Session not found"
	case errors.Is(err, models.ErrNameTaken):
		return "Name already taken in this session"
	case errors.Is(err, models.ErrKicked):
		return "You have been kicked from this session and cannot rejoin."
	default:
		return err.Error()
	}
}
