package ws

import (
	"time"

	"staffchat/internal/models"
)

type ConnInfo struct {
	ConnID      string
	Identity    models.Identity
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}
