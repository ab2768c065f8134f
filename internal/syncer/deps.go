package syncer

import (
	"context"
	"log/slog"

	"staffchat/internal/models"
	"staffchat/internal/transport"
)

// Transport is the session's connection to the backend: the push channel
// plus the REST fallback. *transport.Client satisfies it.
type Transport interface {
	Connect(ctx context.Context, token string)
	JoinRoom(pairKey string) error
	Send(payload models.SendPayload, onAck func(models.Message, error)) error
	Events() <-chan transport.Event
	State() transport.ConnState
	Close() error

	FetchThreads(ctx context.Context) ([]models.Thread, error)
	FetchMessages(ctx context.Context, threadID models.ThreadID) ([]models.Message, error)
	PostMessage(ctx context.Context, payload models.SendPayload) (models.Message, error)
	MarkRead(ctx context.Context, threadID models.ThreadID) error
}

// IdentityProvider supplies the signed-in staff member and the bearer
// credential used for both REST and the channel.
type IdentityProvider interface {
	Identity() models.Identity
	Token() string
}

// StaticIdentity is an IdentityProvider for an identity resolved up front.
type StaticIdentity struct {
	Who    models.Identity
	Bearer string
}

func (s StaticIdentity) Identity() models.Identity { return s.Who }
func (s StaticIdentity) Token() string             { return s.Bearer }

// NoticeKind classifies a reportable error.
type NoticeKind string

const (
	NoticeLoadFailed    NoticeKind = "load_failed"
	NoticeRefreshFailed NoticeKind = "refresh_failed"
	NoticeSendFailed    NoticeKind = "send_failed"
)

// Notice is a transient, user-facing error report.
type Notice struct {
	Kind NoticeKind
	Text string
	Err  error
}

// Notifier is the notification surface. Notify is called from the
// controller loop and must not block.
type Notifier interface {
	Notify(ctx context.Context, n Notice)
}

// LogNotifier reports notices through slog.
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, n Notice) {
	slog.WarnContext(ctx, n.Text, "kind", string(n.Kind), "error", n.Err)
}
