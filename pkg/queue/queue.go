package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/classpulse/backend/internal/models"
)

const (
	// QueueArchive is the Redis list key for session/poll archive jobs.
	QueueArchive = "worker:archive"
	// QueueDLQ is the dead-letter queue for failed jobs after retries.
	QueueDLQ = "worker:dlq"
	// MaxRetries is the number of times to retry a job before moving to DLQ.
	MaxRetries = 3
)

// JobType identifies the job kind.
type JobType string

const (
	JobTypeSessionArchive JobType = "session_archive"
	JobTypePollArchive    JobType = "poll_archive"
)

// SessionArchivePayload records a newly created session for the durable store.
type SessionArchivePayload struct {
	SessionID string    `json:"session_id"`
	JoinCode  string    `json:"join_code"`
	TeacherID string    `json:"teacher_id"`
	CreatedAt time.Time `json:"created_at"`
}

// PollArchivePayload records a closed poll with its final tallies.
type PollArchivePayload struct {
	SessionID string       `json:"session_id"`
	Poll      *models.Poll `json:"poll"`
	ClosedAt  time.Time    `json:"closed_at"`
}

// Job is a generic job envelope.
type Job struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempt   int             `json:"attempt"`
	CreatedAt time.Time       `json:"created_at"`
}

// Queue enqueues and dequeues jobs via Redis.
type Queue struct {
	client *redis.Client
	logger *zap.Logger
}

// NewQueue creates a new Redis-backed job queue.
func NewQueue(client *redis.Client, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{client: client, logger: logger}
}

// EnqueueSessionArchive enqueues a session record job.
func (q *Queue) EnqueueSessionArchive(ctx context.Context, sessionID, joinCode, teacherID string) error {
	payload := SessionArchivePayload{
		SessionID: sessionID,
		JoinCode:  joinCode,
		TeacherID: teacherID,
		CreatedAt: time.Now(),
	}
	return q.enqueue(ctx, JobTypeSessionArchive, payload)
}

// EnqueuePollArchive enqueues a closed-poll archive job.
func (q *Queue) EnqueuePollArchive(ctx context.Context, sessionID string, poll *models.Poll) error {
	payload := PollArchivePayload{
		SessionID: sessionID,
		Poll:      poll,
		ClosedAt:  time.Now(),
	}
	return q.enqueue(ctx, JobTypePollArchive, payload)
}

func (q *Queue) enqueue(ctx context.Context, typ JobType, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	job := Job{
		ID:        uuid.New().String(),
		Type:      typ,
		Payload:   body,
		Attempt:   0,
		CreatedAt: time.Now(),
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.RPush(ctx, QueueArchive, raw).Err(); err != nil {
		return fmt.Errorf("rpush: %w", err)
	}
	q.logger.Debug("enqueued archive job", zap.String("job_id", job.ID), zap.String("type", string(typ)))
	return nil
}

// Dequeue blocks until a job is available or ctx is done.
func (q *Queue) Dequeue(ctx context.Context) (*Job, error) {
	result, err := q.client.BLPop(ctx, 0, QueueArchive).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	if len(result) < 2 {
		return nil, nil
	}
	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		q.logger.Warn("invalid job payload", zap.String("raw", result[1]), zap.Error(err))
		return nil, nil
	}
	return &job, nil
}

// Retry re-enqueues a job with incremented attempt. If attempt >= MaxRetries,
// pushes to DLQ instead.
func (q *Queue) Retry(ctx context.Context, job *Job) error {
	job.Attempt++
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if job.Attempt >= MaxRetries {
		if err := q.client.RPush(ctx, QueueDLQ, raw).Err(); err != nil {
			q.logger.Error("dlq push failed", zap.Error(err), zap.String("job_id", job.ID))
			return err
		}
		q.logger.Warn("job moved to DLQ", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
		return nil
	}
	if err := q.client.RPush(ctx, QueueArchive, raw).Err(); err != nil {
		return err
	}
	q.logger.Info("job retried", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
	return nil
}
