package ws

import (
	"context"
	"log/slog"
	"sync"

	"staffchat/internal/models"
	"staffchat/internal/observability"
)

// Hub maintains rooms keyed by thread pair key.
type Hub struct {
	rooms map[string]map[*Client]bool
	mu    sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[*Client]bool)}
}

// Join adds the client to a room. It reports false when the client was
// already a member.
func (h *Hub) Join(pairKey string, c *Client) bool {
	if !c.joined(pairKey) {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[pairKey]; !ok {
		h.rooms[pairKey] = make(map[*Client]bool)
	}
	h.rooms[pairKey][c] = true
	return true
}

// Remove drops the client from every room it joined.
func (h *Hub) Remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, key := range c.roomKeys() {
		if conns, ok := h.rooms[key]; ok {
			delete(conns, c)
			if len(conns) == 0 {
				delete(h.rooms, key)
			}
		}
	}
}

// RoomSize returns the number of clients in a room.
func (h *Hub) RoomSize(pairKey string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[pairKey])
}

// BroadcastMessage pushes msg to every client in its thread's room. Its
// signature matches fanout.DeliverFunc.
func (h *Hub) BroadcastMessage(msg models.Message) {
	key := msg.PairKey()
	h.mu.RLock()
	conns := make([]*Client, 0, len(h.rooms[key]))
	for c := range h.rooms[key] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	if len(conns) == 0 {
		return
	}
	payload := encodeFrame(models.ServerFrame{Type: models.FrameMessage, PairKey: key, Message: &msg})
	dropped := 0
	for _, c := range conns {
		if err := c.Send(payload); err != nil {
			dropped++
			slog.Warn("websocket send failed", "conn_id", c.info.ConnID, "pair_key", key, "error", err)
			h.Remove(c)
			publishWSEvent(context.Background(), "ws_error", c.info, key, err.Error())
		}
	}
	observability.AddRoomDeliveries(len(conns)-dropped, dropped)
}
