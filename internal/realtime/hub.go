package realtime

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// Hub maintains session_id -> set of connections and broadcasts state-change
// events. Each live session corresponds to one multicast group; within one
// mutation the caller's events are emitted back-to-back, and per-connection
// order is preserved by the transport. The hub is process-local, matching the
// in-process session store.
type Hub struct {
	// sessionID -> clientID -> client
	rooms map[string]map[string]*Client
	// sessionID -> participantID -> client, for kick delivery
	participants map[string]map[string]*Client
	mu           sync.RWMutex
	logger       *zap.Logger
}

// NewHub creates a new WebSocket hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		rooms:        make(map[string]map[string]*Client),
		participants: make(map[string]map[string]*Client),
		logger:       logger,
	}
}

// Subscribe adds a client to a session's group, leaving any previous group.
func (h *Hub) Subscribe(c *Client, sessionID string) {
	h.mu.Lock()
	h.removeLocked(c)
	if h.rooms[sessionID] == nil {
		h.rooms[sessionID] = make(map[string]*Client)
	}
	h.rooms[sessionID][c.ID] = c
	c.sessionID = sessionID
	h.mu.Unlock()
	h.logger.Debug("client subscribed", zap.String("client_id", c.ID), zap.String("session_id", sessionID))
}

// BindParticipant associates the client's connection with a participant id so
// later kick notifications can reach it. The client must be subscribed.
func (h *Hub) BindParticipant(c *Client, participantID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.sessionID == "" {
		return
	}
	if h.participants[c.sessionID] == nil {
		h.participants[c.sessionID] = make(map[string]*Client)
	}
	h.participants[c.sessionID][participantID] = c
	c.participantID = participantID
}

// Unsubscribe removes a client from its group and returns the binding it
// held, if any. Idempotent.
func (h *Hub) Unsubscribe(c *Client) (sessionID, participantID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sessionID, participantID = c.sessionID, c.participantID
	h.removeLocked(c)
	return sessionID, participantID
}

func (h *Hub) removeLocked(c *Client) {
	if c.sessionID == "" {
		return
	}
	if room := h.rooms[c.sessionID]; room != nil {
		delete(room, c.ID)
		if len(room) == 0 {
			delete(h.rooms, c.sessionID)
		}
	}
	if c.participantID != "" {
		if m := h.participants[c.sessionID]; m != nil {
			delete(m, c.participantID)
			if len(m) == 0 {
				delete(h.participants, c.sessionID)
			}
		}
	}
	c.sessionID = ""
	c.participantID = ""
}

// BroadcastToSession sends an event to every client in a session's group.
func (h *Hub) BroadcastToSession(sessionID, event string, payload interface{}) {
	msg := WSMessage{Event: event, Data: toRaw(payload)}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.rooms[sessionID] {
		c.enqueueLocked(msg)
	}
}

// SendToClient sends an event to a single connection (replies and errors go
// to the originating connection only).
func (h *Hub) SendToClient(c *Client, event string, payload interface{}) {
	msg := WSMessage{Event: event, Data: toRaw(payload)}
	h.mu.RLock()
	defer h.mu.RUnlock()
	c.enqueueLocked(msg)
}

// NotifyParticipant sends an event to the connection currently bound to a
// participant, if any is still live.
func (h *Hub) NotifyParticipant(sessionID, participantID, event string, payload interface{}) {
	msg := WSMessage{Event: event, Data: toRaw(payload)}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if c, ok := h.participants[sessionID][participantID]; ok {
		c.enqueueLocked(msg)
	}
}

// DisconnectParticipant forcibly terminates the connection bound to a
// participant. Queued messages, the kick notification included, are flushed
// before the socket closes.
func (h *Hub) DisconnectParticipant(sessionID, participantID string) {
	h.mu.Lock()
	c, ok := h.participants[sessionID][participantID]
	if ok {
		c.closeLocked()
	}
	h.mu.Unlock()
	if ok {
		h.logger.Debug("participant disconnected",
			zap.String("session_id", sessionID),
			zap.String("participant_id", participantID),
		)
	}
}

// SessionClientCount returns the number of connections in a session's group.
func (h *Hub) SessionClientCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[sessionID])
}

func toRaw(payload interface{}) json.RawMessage {
	switch v := payload.(type) {
	case nil:
		return nil
	case []byte:
		return v
	case json.RawMessage:
		return v
	default:
		data, _ := json.Marshal(payload)
		return data
	}
}
