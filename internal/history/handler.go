package history

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/classpulse/backend/internal/models"
)

// LiveHistory is the in-memory mirror of closed polls kept by the poll service.
type LiveHistory interface {
	History(sessionID string) []*models.Poll
}

// Handler serves the poll-history query endpoint. It reads the live mirror
// first and falls back to the durable store, never the live session state.
type Handler struct {
	live   LiveHistory
	repo   *Repository // optional
	logger *zap.Logger
}

// NewHandler creates a history handler. repo may be nil (persistence disabled).
func NewHandler(live LiveHistory, repo *Repository, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{live: live, repo: repo, logger: logger}
}

// GetBySession handles GET /session/:sessionId/poll-history.
func (h *Handler) GetBySession(c *gin.Context) {
	sessionID := c.Param("sessionId")

	polls := h.live.History(sessionID)
	if len(polls) == 0 && h.repo != nil {
		stored, err := h.repo.ListBySession(c.Request.Context(), sessionID)
		if err != nil {
			h.logger.Warn("history query failed", zap.String("session_id", sessionID), zap.Error(err))
		} else {
			polls = stored
		}
	}
	if polls == nil {
		polls = []*models.Poll{}
	}
	c.JSON(http.StatusOK, gin.H{"polls": polls})
}
