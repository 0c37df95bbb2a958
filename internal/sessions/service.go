package sessions

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/classpulse/backend/internal/models"
)

// Broadcaster delivers events to the members of one session's group.
// Implemented by the realtime hub.
type Broadcaster interface {
	BroadcastToSession(sessionID, event string, payload interface{})
	NotifyParticipant(sessionID, participantID, event string, payload interface{})
	DisconnectParticipant(sessionID, participantID string)
}

// Archiver receives fire-and-forget session records for the durable store.
type Archiver interface {
	EnqueueSessionArchive(ctx context.Context, sessionID, joinCode, teacherID string) error
}

// Service is the roster manager: it owns session creation and participant
// join/leave/kick, and broadcasts a session snapshot after every mutation.
type Service struct {
	store   *Store
	hub     Broadcaster
	archive Archiver // optional
	logger  *zap.Logger
}

// NewService creates a roster service. archive may be nil (persistence disabled).
func NewService(store *Store, hub Broadcaster, archive Archiver, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, hub: hub, archive: archive, logger: logger}
}

// Store exposes the underlying session store for read-side collaborators.
func (s *Service) Store() *Store {
	return s.store
}

// Create allocates a new live session and hands its record to the durable
// store in the background. Persistence failures are logged, never surfaced.
func (s *Service) Create(teacherID string) (*models.Session, error) {
	sess, err := s.store.Create(teacherID)
	if err != nil {
		return nil, err
	}
	if s.archive != nil {
		go func(id, code, teacher string) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.archive.EnqueueSessionArchive(ctx, id, code, teacher); err != nil {
				s.logger.Warn("session archive enqueue failed", zap.String("session_id", id), zap.Error(err))
			}
		}(sess.ID, sess.JoinCode, sess.TeacherID)
	}
	return sess, nil
}

// Snapshot returns the session state marshaled under the session lock.
func (s *Service) Snapshot(sessionID string) (json.RawMessage, error) {
	var raw json.RawMessage
	err := s.store.WithSession(sessionID, func(sess *models.Session) error {
		var mErr error
		raw, mErr = json.Marshal(sess)
		return mErr
	})
	return raw, err
}

// Join adds a participant with a fresh id to the session roster and
// broadcasts the updated session to all members, the joiner included.
func (s *Service) Join(sessionID, name string) (*models.Participant, error) {
	var (
		p    *models.Participant
		snap json.RawMessage
	)
	err := s.store.WithSession(sessionID, func(sess *models.Session) error {
		if sess.IsKicked(name) {
			return models.ErrKicked
		}
		if sess.NameTaken(name) {
			return models.ErrNameTaken
		}
		p = &models.Participant{
			ID:       uuid.New().String(),
			Name:     name,
			JoinedAt: time.Now().UnixMilli(),
		}
		sess.Students[p.ID] = p
		snap, _ = json.Marshal(sess)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.hub.BroadcastToSession(sessionID, "server:session_update", snap)
	s.logger.Debug("student joined",
		zap.String("session_id", sessionID),
		zap.String("participant_id", p.ID),
		zap.String("name", name),
	)
	return p, nil
}

// Leave removes a participant from the roster and broadcasts the updated
// session. Idempotent: unknown sessions or participants are a no-op.
func (s *Service) Leave(sessionID, participantID string) {
	var (
		snap    json.RawMessage
		removed bool
	)
	_ = s.store.WithSession(sessionID, func(sess *models.Session) error {
		if _, ok := sess.Students[participantID]; !ok {
			return nil
		}
		delete(sess.Students, participantID)
		removed = true
		snap, _ = json.Marshal(sess)
		return nil
	})
	if !removed {
		return
	}
	s.hub.BroadcastToSession(sessionID, "server:session_update", snap)
	s.logger.Debug("student left",
		zap.String("session_id", sessionID),
		zap.String("participant_id", participantID),
	)
}

// Kick blacklists the participant's display name, notifies and disconnects
// their live connection if any, removes them from the roster, and broadcasts
// the smaller roster to the remaining members. Unknown targets are a no-op.
// The blacklist keys by name because participant ids are regenerated every
// join, so id-based exclusion would not survive a rejoin.
func (s *Service) Kick(sessionID, participantID string) {
	var (
		snap   json.RawMessage
		kicked bool
	)
	_ = s.store.WithSession(sessionID, func(sess *models.Session) error {
		st, ok := sess.Students[participantID]
		if !ok {
			return nil
		}
		if !sess.IsKicked(st.Name) {
			sess.KickedStudents = append(sess.KickedStudents, st.Name)
		}
		delete(sess.Students, participantID)
		kicked = true
		snap, _ = json.Marshal(sess)
		return nil
	})
	if !kicked {
		return
	}
	s.hub.NotifyParticipant(sessionID, participantID, "student:kicked",
		"You have been kicked from the session by the teacher.")
	s.hub.DisconnectParticipant(sessionID, participantID)
	s.hub.BroadcastToSession(sessionID, "server:session_update", snap)
	s.logger.Info("student kicked",
		zap.String("session_id", sessionID),
		zap.String("participant_id", participantID),
	)
}
