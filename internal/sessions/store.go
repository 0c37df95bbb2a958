package sessions

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/classpulse/backend/internal/models"
)

// Store is the process-wide table of live sessions. It is the single source
// of truth; all reads and mutations of a session record go through
// WithSession, which serializes access per session with that session's own
// lock. Sessions live for the process lifetime; there is no explicit destroy.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
	codes   map[string]string // join code -> session id, unique among live sessions
	logger  *zap.Logger
}

type entry struct {
	mu   sync.Mutex
	sess *models.Session
}

// NewStore creates an empty session store.
func NewStore(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		entries: make(map[string]*entry),
		codes:   make(map[string]string),
		logger:  logger,
	}
}

// Create allocates a new session with a fresh id and a join code unique among
// currently-live sessions. Code generation retries on collision.
func (s *Store) Create(teacherID string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var code string
	for {
		c, err := newJoinCode()
		if err != nil {
			return nil, fmt.Errorf("generate join code: %w", err)
		}
		if _, taken := s.codes[c]; !taken {
			code = c
			break
		}
	}

	sess := &models.Session{
		ID:               NewSessionID(),
		TeacherID:        teacherID,
		Students:         make(map[string]*models.Participant),
		Polls:            []*models.Poll{},
		CurrentPollIndex: -1,
		JoinCode:         code,
		KickedStudents:   []string{},
	}
	s.entries[sess.ID] = &entry{sess: sess}
	s.codes[code] = sess.ID

	s.logger.Info("session created",
		zap.String("session_id", sess.ID),
		zap.String("join_code", code),
	)
	return sess, nil
}

// IDByCode resolves a join code to a live session id.
func (s *Store) IDByCode(code string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.codes[code]
	return id, ok
}

// Exists reports whether a live session with the given id exists.
func (s *Store) Exists(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[id]
	return ok
}

// WithSession runs fn with exclusive access to the session record. Returns
// models.ErrSessionNotFound if no live session matches. Any snapshot intended
// for broadcast must be built inside fn so stored state and wire state cannot
// diverge.
func (s *Store) WithSession(id string, fn func(*models.Session) error) error {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return models.ErrSessionNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.sess)
}
