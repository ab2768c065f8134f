package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"staffchat/internal/messaging"
	"staffchat/internal/middleware"
	"staffchat/internal/models"
	"staffchat/internal/observability"
	"staffchat/internal/repositories"
)

const maxFrameBytes = 64 << 10

// ChannelHandler serves the push channel: one socket per session, joined to
// any number of thread rooms.
type ChannelHandler struct {
	hub   *Hub
	staff repositories.StaffRepository
	svc   *messaging.Service
}

// NewChannelHandler constructs a ChannelHandler.
func NewChannelHandler(hub *Hub, staff repositories.StaffRepository, svc *messaging.Service) *ChannelHandler {
	return &ChannelHandler{hub: hub, staff: staff, svc: svc}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle authenticates the bearer token, upgrades the connection and serves
// frames until the socket closes.
func (h *ChannelHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("staffchat/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	header := c.GetHeader("Authorization")
	if header == "" {
		if token := c.Query("token"); token != "" {
			header = "Bearer " + token
		}
	}
	token, ok := middleware.BearerToken(header)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
		return
	}
	who, err := h.staff.GetByToken(ctx, token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	if !who.CanChat() {
		c.JSON(http.StatusForbidden, gin.H{"error": "chat not permitted"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	info := ConnInfo{
		ConnID:      uuid.NewString(),
		Identity:    who,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	client := newClient(conn, info)
	go client.writeLoop()

	observability.IncWSActive()
	publishWSEvent(ctx, "ws_connect", info, "", "")

	go h.serve(context.WithoutCancel(ctx), client)
}

func (h *ChannelHandler) serve(ctx context.Context, client *Client) {
	conn := client.conn
	var closeReason string
	defer func() {
		h.hub.Remove(client)
		client.Close()
		observability.DecWSActive()
		publishWSEvent(ctx, "ws_disconnect", client.info, "", closeReason)
	}()

	conn.SetReadLimit(maxFrameBytes)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !errors.Is(err, websocket.ErrCloseSent) {
				publishWSEvent(ctx, "ws_error", client.info, "", closeReason)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		var frame models.ClientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			_ = client.Send(encodeFrame(models.ServerFrame{Type: models.FrameError, Error: "malformed frame"}))
			continue
		}
		switch frame.Type {
		case models.FrameJoin:
			h.join(ctx, client, frame)
		case models.FrameSend:
			h.send(ctx, client, frame)
		default:
			_ = client.Send(encodeFrame(models.ServerFrame{Type: models.FrameError, Ref: frame.Ref, Error: "unknown frame type"}))
		}
	}
}

// join subscribes the client to a room it participates in.
func (h *ChannelHandler) join(ctx context.Context, client *Client, frame models.ClientFrame) {
	coordinatorID, counterpartID, err := models.ParsePairKey(frame.PairKey)
	if err != nil {
		_ = client.Send(encodeFrame(models.ServerFrame{Type: models.FrameError, PairKey: frame.PairKey, Error: err.Error()}))
		return
	}
	if !client.info.Identity.Participates(coordinatorID, counterpartID) {
		_ = client.Send(encodeFrame(models.ServerFrame{Type: models.FrameError, PairKey: frame.PairKey, Error: "not a participant"}))
		return
	}
	if h.hub.Join(frame.PairKey, client) {
		publishWSEvent(ctx, "ws_join", client.info, frame.PairKey, "")
	}
	_ = client.Send(encodeFrame(models.ServerFrame{Type: models.FrameJoined, PairKey: frame.PairKey}))
}

// send stores the message and acks it to the sender. The broadcast to the
// room goes through the fanout broker like any REST post.
func (h *ChannelHandler) send(ctx context.Context, client *Client, frame models.ClientFrame) {
	if frame.Payload == nil {
		_ = client.Send(encodeFrame(models.ServerFrame{Type: models.FrameError, Ref: frame.Ref, Error: "missing payload"}))
		return
	}
	msg, err := h.svc.Post(ctx, messaging.PostRequest{
		Sender:    client.info.Identity,
		PeerID:    int64(frame.Payload.PeerID),
		Text:      frame.Payload.Text,
		RequestID: frame.Ref,
		Via:       "ws",
	})
	if err != nil {
		if !errors.Is(err, models.ErrEmptyText) && !errors.Is(err, messaging.ErrPeerNotFound) && !errors.Is(err, messaging.ErrPeerRole) {
			slog.ErrorContext(ctx, "channel send failed", "conn_id", client.info.ConnID, "error", err)
			err = errors.New("failed to store message")
		}
		_ = client.Send(encodeFrame(models.ServerFrame{Type: models.FrameError, Ref: frame.Ref, Error: err.Error()}))
		return
	}
	_ = client.Send(encodeFrame(models.ServerFrame{Type: models.FrameAck, Ref: frame.Ref, PairKey: msg.PairKey(), Message: &msg}))
}
