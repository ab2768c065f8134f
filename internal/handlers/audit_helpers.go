package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"staffchat/internal/middleware"
	"staffchat/internal/models"
	"staffchat/internal/observability"
)

func requestIDFromContext(c *gin.Context) string {
	if val, ok := c.Get(observability.RequestIDKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id
		}
	}

	requestID := observability.RequestIDFromRequest(c.Request)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(observability.RequestIDKey, requestID)
	return requestID
}

func actorFromContext(c *gin.Context) *models.Identity {
	who, ok := middleware.IdentityFrom(c)
	if !ok {
		return nil
	}
	return &who
}
