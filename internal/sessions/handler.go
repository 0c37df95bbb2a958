package sessions

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CodeLookup resolves join codes from the durable store when no live session
// matches (for example after a restart, for history viewing).
type CodeLookup interface {
	SessionIDByCode(ctx context.Context, joinCode string) (string, error)
}

// Handler serves the session HTTP endpoints. Response shapes match the
// existing clients.
type Handler struct {
	svc    *Service
	lookup CodeLookup // optional
	logger *zap.Logger
}

// NewHandler creates a sessions handler. lookup may be nil.
func NewHandler(svc *Service, lookup CodeLookup, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, lookup: lookup, logger: logger}
}

// CreateRequest is the body for POST /session.
type CreateRequest struct {
	TeacherName string `json:"teacher_name"`
}

// Create handles POST /session: allocates a session and returns its id and
// join code.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	_ = c.ShouldBindJSON(&req) // body is optional

	sess, err := h.svc.Create(uuid.New().String())
	if err != nil {
		h.logger.Error("create session", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessionId": sess.ID, "joinCode": sess.JoinCode})
}

// GetByCode handles GET /session/by-code/:joinCode: resolves a join code to a
// session id, checking live sessions first and the durable store second.
func (h *Handler) GetByCode(c *gin.Context) {
	code := c.Param("joinCode")

	if id, ok := h.svc.Store().IDByCode(code); ok {
		c.JSON(http.StatusOK, gin.H{"sessionId": id})
		return
	}
	if h.lookup != nil {
		if id, err := h.lookup.SessionIDByCode(c.Request.Context(), code); err == nil {
			c.JSON(http.StatusOK, gin.H{"sessionId": id})
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "Session not found. Please check the code."})
}
