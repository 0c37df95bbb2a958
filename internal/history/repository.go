package history

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/classpulse/backend/internal/models"
)

// Repository handles the durable poll-history store. It is write-only from
// the core's perspective; live session state is never read back from it.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a history repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// UpsertSession records a session with its join code.
func (r *Repository) UpsertSession(ctx context.Context, id, joinCode, teacherID string, createdAt time.Time) error {
	const query = `INSERT INTO sessions (id, join_code, teacher_id, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET join_code = EXCLUDED.join_code`
	_, err := r.pool.Exec(ctx, query, id, joinCode, teacherID, createdAt)
	return err
}

// UpsertPoll records a closed poll with its final option tallies.
func (r *Repository) UpsertPoll(ctx context.Context, sessionID string, poll *models.Poll, closedAt time.Time) error {
	options, err := json.Marshal(poll.Options)
	if err != nil {
		return err
	}
	const query = `INSERT INTO polls (id, session_id, question, options, duration, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET options = EXCLUDED.options`
	_, err = r.pool.Exec(ctx, query, poll.ID, sessionID, poll.Question, options, poll.Duration, closedAt)
	return err
}

// InsertAnswers records the response ledger rows for a closed poll.
func (r *Repository) InsertAnswers(ctx context.Context, pollID string, responses map[string]string, answeredAt time.Time) error {
	const query = `INSERT INTO poll_answers (poll_id, student_id, option_id, answered_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (poll_id, student_id) DO NOTHING`
	for studentID, optionID := range responses {
		if _, err := r.pool.Exec(ctx, query, pollID, studentID, optionID, answeredAt); err != nil {
			return err
		}
	}
	return nil
}

// SessionIDByCode resolves a join code from the durable store. Returns
// models.ErrSessionNotFound when no session matches.
func (r *Repository) SessionIDByCode(ctx context.Context, joinCode string) (string, error) {
	const query = `SELECT id FROM sessions WHERE join_code = $1 ORDER BY created_at DESC LIMIT 1`
	var id string
	err := r.pool.QueryRow(ctx, query, joinCode).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", models.ErrSessionNotFound
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

// ListBySession returns the archived polls for a session, oldest first.
func (r *Repository) ListBySession(ctx context.Context, sessionID string) ([]*models.Poll, error) {
	const query = `SELECT id, question, options, duration FROM polls
		WHERE session_id = $1 ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*models.Poll
	for rows.Next() {
		var (
			p       models.Poll
			options []byte
		)
		if err := rows.Scan(&p.ID, &p.Question, &options, &p.Duration); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(options, &p.Options); err != nil {
			return nil, err
		}
		p.Responses = make(map[string]string)
		list = append(list, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, p := range list {
		if err := r.loadAnswers(ctx, p); err != nil {
			return nil, err
		}
	}
	return list, nil
}

func (r *Repository) loadAnswers(ctx context.Context, poll *models.Poll) error {
	const query = `SELECT student_id, option_id FROM poll_answers WHERE poll_id = $1`
	rows, err := r.pool.Query(ctx, query, poll.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var studentID, optionID string
		if err := rows.Scan(&studentID, &optionID); err != nil {
			return err
		}
		poll.Responses[studentID] = optionID
	}
	return rows.Err()
}
