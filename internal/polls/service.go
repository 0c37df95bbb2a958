package polls

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/classpulse/backend/internal/models"
	"github.com/classpulse/backend/internal/sessions"
)

// Archiver receives closed polls for the durable history store.
type Archiver interface {
	EnqueuePollArchive(ctx context.Context, sessionID string, poll *models.Poll) error
}

// Service is the poll lifecycle manager and answer ledger. Poll creation and
// start are fused: a newly created poll is active immediately. The only
// server-authoritative closure path is full-roster completion; duration
// expiry is computed client-side from the broadcast start time.
type Service struct {
	store   *sessions.Store
	hub     sessions.Broadcaster
	archive Archiver // optional
	logger  *zap.Logger

	histMu  sync.RWMutex
	history map[string][]*models.Poll // closed polls per session, live mirror
}

// NewService creates a poll service. archive may be nil (persistence disabled).
func NewService(store *sessions.Store, hub sessions.Broadcaster, archive Archiver, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:   store,
		hub:     hub,
		archive: archive,
		logger:  logger,
		history: make(map[string][]*models.Poll),
	}
}

const defaultDuration = 60 // seconds

// Create validates, activates and appends a new poll, then broadcasts the
// poll followed by the updated session. correctIdx marks the correct option,
// -1 for none.
func (s *Service) Create(sessionID, question string, optionTexts []string, duration, correctIdx int) error {
	if strings.TrimSpace(question) == "" || len(optionTexts) < 2 {
		return fmt.Errorf("%w: question and at least two options are required", models.ErrInvalidPoll)
	}
	for _, text := range optionTexts {
		if strings.TrimSpace(text) == "" {
			return fmt.Errorf("%w: option text must not be empty", models.ErrInvalidPoll)
		}
	}
	if duration <= 0 {
		duration = defaultDuration
	}

	var pollRaw, sessRaw json.RawMessage
	err := s.store.WithSession(sessionID, func(sess *models.Session) error {
		pollID := uuid.New().String()
		poll := &models.Poll{
			ID:        pollID,
			Question:  question,
			Options:   make([]*models.PollOption, len(optionTexts)),
			IsActive:  true,
			StartTime: time.Now().UnixMilli(),
			Duration:  duration,
			Responses: make(map[string]string),
		}
		for i, text := range optionTexts {
			poll.Options[i] = &models.PollOption{
				ID:   fmt.Sprintf("%s_opt%d", pollID, i),
				Text: text,
			}
		}
		if correctIdx >= 0 && correctIdx < len(poll.Options) {
			poll.CorrectOptionID = poll.Options[correctIdx].ID
		}
		sess.Polls = append(sess.Polls, poll)
		sess.CurrentPollIndex = len(sess.Polls) - 1
		pollRaw, _ = json.Marshal(poll)
		sessRaw, _ = json.Marshal(sess)
		return nil
	})
	if err != nil {
		return err
	}
	s.hub.BroadcastToSession(sessionID, "server:poll_update", pollRaw)
	s.hub.BroadcastToSession(sessionID, "server:session_update", sessRaw)
	s.logger.Info("poll created", zap.String("session_id", sessionID))
	return nil
}

// Restart re-arms an existing poll: empties the response ledger, zeroes every
// vote counter, clears every participant's answered flag and sets a fresh
// start time. No-op if the session or poll does not exist.
func (s *Service) Restart(sessionID, pollID string) {
	var pollRaw, sessRaw json.RawMessage
	_ = s.store.WithSession(sessionID, func(sess *models.Session) error {
		poll := sess.FindPoll(pollID)
		if poll == nil {
			return nil
		}
		poll.IsActive = true
		poll.StartTime = time.Now().UnixMilli()
		poll.Responses = make(map[string]string)
		for _, opt := range poll.Options {
			opt.Votes = 0
		}
		for _, st := range sess.Students {
			st.HasAnswered = false
		}
		pollRaw, _ = json.Marshal(poll)
		sessRaw, _ = json.Marshal(sess)
		return nil
	})
	if pollRaw == nil {
		return
	}
	s.hub.BroadcastToSession(sessionID, "server:poll_update", pollRaw)
	s.hub.BroadcastToSession(sessionID, "server:session_update", sessRaw)
	s.logger.Info("poll restarted",
		zap.String("session_id", sessionID),
		zap.String("poll_id", pollID),
	)
}

// Submit records one answer per participant per poll. Invalid submissions
// (unknown session/poll/option, inactive poll, duplicate participant entry)
// are ignored without error so a late network retry never disturbs recorded
// state. After an accepted answer the tallies are broadcast live, and if
// every currently-rostered participant has answered, the poll closes.
func (s *Service) Submit(sessionID, pollID, participantID, optionID string) {
	var (
		pollRaw, sessRaw, resultsRaw json.RawMessage
		closed                       *models.Poll
	)
	_ = s.store.WithSession(sessionID, func(sess *models.Session) error {
		poll := sess.FindPoll(pollID)
		if poll == nil || !poll.IsActive {
			return nil
		}
		if _, answered := poll.Responses[participantID]; answered {
			return nil
		}
		opt := poll.FindOption(optionID)
		if opt == nil {
			return nil
		}

		poll.Responses[participantID] = optionID
		opt.Votes++
		if st, ok := sess.Students[participantID]; ok {
			st.HasAnswered = true
		}
		pollRaw, _ = json.Marshal(poll)
		sessRaw, _ = json.Marshal(sess)

		// Completion is evaluated against the roster at this moment, not a
		// snapshot taken at activation. A participant who left mid-poll no
		// longer counts; one who joined mid-poll must answer first.
		if len(sess.Students) > 0 && allAnswered(sess, poll) {
			poll.IsActive = false
			resultsRaw, _ = json.Marshal(poll)
			closed = poll.Clone()
		}
		return nil
	})
	if pollRaw == nil {
		return
	}
	s.hub.BroadcastToSession(sessionID, "server:poll_update", pollRaw)
	s.hub.BroadcastToSession(sessionID, "server:session_update", sessRaw)
	if resultsRaw == nil {
		return
	}
	s.hub.BroadcastToSession(sessionID, "server:results_update", resultsRaw)
	s.appendHistory(sessionID, closed)
	s.archiveAsync(sessionID, closed)
	s.logger.Info("poll closed",
		zap.String("session_id", sessionID),
		zap.String("poll_id", pollID),
		zap.Int("responses", len(closed.Responses)),
	)
}

func allAnswered(sess *models.Session, poll *models.Poll) bool {
	for id := range sess.Students {
		if _, ok := poll.Responses[id]; !ok {
			return false
		}
	}
	return true
}

// History returns copies of the closed polls for a session, oldest first.
func (s *Service) History(sessionID string) []*models.Poll {
	s.histMu.RLock()
	defer s.histMu.RUnlock()
	list := s.history[sessionID]
	out := make([]*models.Poll, len(list))
	for i, p := range list {
		out[i] = p.Clone()
	}
	return out
}

func (s *Service) appendHistory(sessionID string, poll *models.Poll) {
	s.histMu.Lock()
	defer s.histMu.Unlock()
	s.history[sessionID] = append(s.history[sessionID], poll)
}

// archiveAsync hands the closed poll to the durable store without blocking
// the submit path. Failures are logged and otherwise ignored.
func (s *Service) archiveAsync(sessionID string, poll *models.Poll) {
	if s.archive == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.archive.EnqueuePollArchive(ctx, sessionID, poll); err != nil {
			s.logger.Warn("poll archive enqueue failed",
				zap.String("session_id", sessionID),
				zap.String("poll_id", poll.ID),
				zap.Error(err),
			)
		}
	}()
}
