package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/classpulse/backend/internal/history"
	"github.com/classpulse/backend/pkg/queue"
)

// Archiver drains the archive queue and writes session and closed-poll
// records to the durable store. Failures never reach the request path; jobs
// are retried and eventually dead-lettered.
type Archiver struct {
	repo   *history.Repository
	queue  *queue.Queue
	logger *zap.Logger
}

// NewArchiver creates an archive processor.
func NewArchiver(repo *history.Repository, q *queue.Queue, logger *zap.Logger) *Archiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archiver{repo: repo, queue: q, logger: logger}
}

// Run processes jobs until ctx is canceled.
func (a *Archiver) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := a.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			a.logger.Error("dequeue failed", zap.Error(err))
			continue
		}
		if job == nil {
			continue
		}

		if err := a.Process(ctx, job); err != nil {
			a.logger.Warn("archive job failed",
				zap.String("job_id", job.ID),
				zap.String("type", string(job.Type)),
				zap.Error(err),
			)
			_ = a.queue.Retry(ctx, job)
			continue
		}
		a.logger.Debug("archive job done", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
	}
}

// Process executes one archive job.
func (a *Archiver) Process(ctx context.Context, job *queue.Job) error {
	switch job.Type {
	case queue.JobTypeSessionArchive:
		var payload queue.SessionArchivePayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("unmarshal payload: %w", err)
		}
		return a.repo.UpsertSession(ctx, payload.SessionID, payload.JoinCode, payload.TeacherID, payload.CreatedAt)
	case queue.JobTypePollArchive:
		var payload queue.PollArchivePayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("unmarshal payload: %w", err)
		}
		if payload.Poll == nil {
			return fmt.Errorf("poll archive without poll")
		}
		if err := a.repo.UpsertPoll(ctx, payload.SessionID, payload.Poll, payload.ClosedAt); err != nil {
			return err
		}
		return a.repo.InsertAnswers(ctx, payload.Poll.ID, payload.Poll.Responses, payload.ClosedAt)
	default:
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
}
