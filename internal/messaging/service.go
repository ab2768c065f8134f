// Package messaging stores staff messages and hands them to the fanout
// broker. REST handlers and the websocket channel both post through it.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"staffchat/internal/fanout"
	"staffchat/internal/models"
	"staffchat/internal/observability"
	"staffchat/internal/repositories"
	"staffchat/internal/telemetry"
)

var (
	ErrPeerNotFound = errors.New("peer not found")
	ErrPeerRole     = errors.New("peer must hold the opposite role")
)

// PostRequest is one message submission.
type PostRequest struct {
	Sender    models.Identity
	PeerID    int64
	Text      string
	RequestID string
	// Via names the surface the message came in on, "rest" or "ws".
	Via string
}

// Service validates, stores and publishes messages.
type Service struct {
	staff    repositories.StaffRepository
	messages repositories.MessageRepository
	broker   fanout.Broker
	audit    *telemetry.AuditEmitter
}

func NewService(staff repositories.StaffRepository, messages repositories.MessageRepository, broker fanout.Broker, audit *telemetry.AuditEmitter) *Service {
	return &Service{staff: staff, messages: messages, broker: broker, audit: audit}
}

// CheckPeer verifies that peerID exists and can converse with viewer.
func (s *Service) CheckPeer(ctx context.Context, viewer models.Identity, peerID int64) (models.Identity, error) {
	peer, err := s.staff.Get(ctx, peerID)
	if errors.Is(err, repositories.ErrStaffNotFound) {
		return models.Identity{}, ErrPeerNotFound
	}
	if err != nil {
		return models.Identity{}, err
	}
	if peer.Role != viewer.Role.Other() {
		return models.Identity{}, ErrPeerRole
	}
	return peer, nil
}

// Post stores the message and publishes it to every connected participant.
// A publish failure does not fail the post; the message is already stored
// and clients recover it on their next fetch.
func (s *Service) Post(ctx context.Context, req PostRequest) (models.Message, error) {
	ctx, span := otel.Tracer("staffchat/messaging").Start(ctx, "messaging.post")
	defer span.End()
	span.SetAttributes(attribute.String("via", req.Via), attribute.Int64("peer_id", req.PeerID))

	text, err := models.ValidateText(req.Text)
	if err != nil {
		return models.Message{}, err
	}
	if _, err := s.CheckPeer(ctx, req.Sender, req.PeerID); err != nil {
		return models.Message{}, err
	}

	msg, err := s.messages.Create(ctx, req.Sender, req.PeerID, text)
	if err != nil {
		span.RecordError(err)
		return models.Message{}, fmt.Errorf("store message: %w", err)
	}
	observability.IncMessagePosted(req.Via)

	if err := s.broker.Publish(ctx, msg); err != nil {
		slog.WarnContext(ctx, "fanout publish failed", "message_id", msg.ID, "pair_key", msg.PairKey(), "error", err)
	}

	sender := req.Sender
	s.audit.Emit(ctx, telemetry.AuditRecord{
		Action:    telemetry.ActionMessagePosted,
		RequestID: req.RequestID,
		Actor:     &sender,
		PairKey:   msg.PairKey(),
		MessageID: msg.ID,
		Via:       req.Via,
	})
	return msg, nil
}

// MarkRead acknowledges every message peerID sent to reader.
func (s *Service) MarkRead(ctx context.Context, reader models.Identity, peerID int64, requestID string) error {
	if _, err := s.CheckPeer(ctx, reader, peerID); err != nil {
		return err
	}
	n, err := s.messages.MarkRead(ctx, reader, peerID)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	if n > 0 {
		s.audit.Emit(ctx, telemetry.AuditRecord{
			Action:    telemetry.ActionThreadRead,
			RequestID: requestID,
			Actor:     &reader,
			PairKey:   models.PairKeyFor(reader, models.ThreadID(peerID)),
			Count:     n,
		})
	}
	return nil
}
