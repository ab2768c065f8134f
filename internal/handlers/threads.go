package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"staffchat/internal/messaging"
	"staffchat/internal/middleware"
	"staffchat/internal/models"
	"staffchat/internal/repositories"
)

// ThreadHandler serves the thread and message endpoints.
type ThreadHandler struct {
	threads  repositories.ThreadRepository
	messages repositories.MessageRepository
	svc      *messaging.Service
}

// NewThreadHandler builds a ThreadHandler.
func NewThreadHandler(threads repositories.ThreadRepository, messages repositories.MessageRepository, svc *messaging.Service) *ThreadHandler {
	return &ThreadHandler{threads: threads, messages: messages, svc: svc}
}

// Register mounts the handler's routes behind auth.
func (h *ThreadHandler) Register(r gin.IRoutes, auth gin.HandlerFunc) {
	r.GET("/me", auth, h.Me)
	r.GET("/threads", auth, h.ListThreads)
	r.GET("/threads/:peer_id/messages", auth, h.GetMessages)
	r.POST("/threads/:peer_id/messages", auth, h.PostMessage)
	r.POST("/threads/:peer_id/read", auth, h.MarkRead)
}

// Me returns the caller's identity.
func (h *ThreadHandler) Me(c *gin.Context) {
	who, ok := middleware.IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	c.JSON(http.StatusOK, who)
}

// ListThreads returns the threads visible to the caller.
func (h *ThreadHandler) ListThreads(c *gin.Context) {
	who, ok := middleware.IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	threads, err := h.threads.ListForViewer(c.Request.Context(), who)
	if err != nil {
		slog.ErrorContext(c.Request.Context(), "list threads failed", "staff_id", who.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load threads"})
		return
	}
	if threads == nil {
		threads = []models.Thread{}
	}
	c.JSON(http.StatusOK, gin.H{"threads": threads})
}

// GetMessages returns the messages of the thread with peer_id.
func (h *ThreadHandler) GetMessages(c *gin.Context) {
	who, peerID, ok := h.resolve(c)
	if !ok {
		return
	}

	coordinatorID, counterpartID := repositories.Pair(who, peerID)
	msgs, err := h.messages.ListByPair(c.Request.Context(), coordinatorID, counterpartID)
	if err != nil {
		slog.ErrorContext(c.Request.Context(), "list messages failed", "pair_key", models.PairKey(coordinatorID, counterpartID), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// PostMessage stores a message for the thread with peer_id and broadcasts it.
func (h *ThreadHandler) PostMessage(c *gin.Context) {
	who, ok := middleware.IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	peerID, ok := parsePeerID(c)
	if !ok {
		return
	}

	var req struct {
		Text string `json:"text" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.svc.Post(c.Request.Context(), messaging.PostRequest{
		Sender:    who,
		PeerID:    peerID,
		Text:      req.Text,
		RequestID: requestIDFromContext(c),
		Via:       "rest",
	})
	if err != nil {
		writeServiceError(c, err, "failed to store message")
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// MarkRead acknowledges every message the peer sent to the caller.
func (h *ThreadHandler) MarkRead(c *gin.Context) {
	who, ok := middleware.IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	peerID, ok := parsePeerID(c)
	if !ok {
		return
	}

	if err := h.svc.MarkRead(c.Request.Context(), who, peerID, requestIDFromContext(c)); err != nil {
		writeServiceError(c, err, "could not mark thread read")
		return
	}
	c.Status(http.StatusNoContent)
}

// resolve authenticates the caller and validates peer_id as a conversation
// partner. It writes the error response itself.
func (h *ThreadHandler) resolve(c *gin.Context) (models.Identity, int64, bool) {
	who, ok := middleware.IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return models.Identity{}, 0, false
	}
	peerID, ok := parsePeerID(c)
	if !ok {
		return models.Identity{}, 0, false
	}
	if _, err := h.svc.CheckPeer(c.Request.Context(), who, peerID); err != nil {
		writeServiceError(c, err, "failed to resolve peer")
		return models.Identity{}, 0, false
	}
	return who, peerID, true
}

func parsePeerID(c *gin.Context) (int64, bool) {
	peerID, err := strconv.ParseInt(c.Param("peer_id"), 10, 64)
	if err != nil || peerID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid peer id"})
		return 0, false
	}
	return peerID, true
}

func writeServiceError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, models.ErrEmptyText):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, messaging.ErrPeerNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "peer not found"})
	case errors.Is(err, messaging.ErrPeerRole):
		c.JSON(http.StatusForbidden, gin.H{"error": "not a conversation partner"})
	default:
		slog.ErrorContext(c.Request.Context(), fallback, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}
