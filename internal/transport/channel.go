package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"staffchat/internal/models"
	"staffchat/internal/observability"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second

	defaultAckTimeout = 10 * time.Second
	eventBuffer       = 256
)

// ConnState is the lifecycle state of the push channel.
type ConnState int32

const (
	Disconnected ConnState = iota
	Connecting
	Connected
)

func (s ConnState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// EventKind discriminates channel events.
type EventKind int

const (
	EventMessage EventKind = iota + 1
	EventConnected
	EventReconnected
	EventDisconnected
)

// Event is delivered on Channel.Events. Message is set for EventMessage only.
type Event struct {
	Kind    EventKind
	Message models.Message
}

type pendingAck struct {
	fn    func(models.Message, error)
	timer *time.Timer
}

// Channel is the bidirectional push connection. After Connect it keeps
// redialing with exponential backoff until Close; failures never surface to
// the caller beyond the state and the events stream.
type Channel struct {
	url        string
	dialer     *websocket.Dialer
	ackTimeout time.Duration
	newBackOff func() backoff.BackOff

	state  atomic.Int32
	events chan Event
	done   chan struct{}

	mu       sync.Mutex
	conn     *websocket.Conn
	pingStop chan struct{}
	joined   map[string]struct{}
	pending  map[string]*pendingAck
	started  bool
	closed   bool
	cancel   context.CancelFunc

	writeMu sync.Mutex
}

// ChannelOption customises a Channel.
type ChannelOption func(*Channel)

// WithAckTimeout bounds how long Send waits for the server ack.
func WithAckTimeout(d time.Duration) ChannelOption {
	return func(c *Channel) { c.ackTimeout = d }
}

// WithBackOff replaces the reconnect policy.
func WithBackOff(fn func() backoff.BackOff) ChannelOption {
	return func(c *Channel) { c.newBackOff = fn }
}

// WithDialer replaces the websocket dialer.
func WithDialer(d *websocket.Dialer) ChannelOption {
	return func(c *Channel) { c.dialer = d }
}

// NewChannel builds a channel for the websocket endpoint at url.
func NewChannel(url string, opts ...ChannelOption) *Channel {
	c := &Channel{
		url:        url,
		dialer:     websocket.DefaultDialer,
		ackTimeout: defaultAckTimeout,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 30 * time.Second
			b.MaxElapsedTime = 0
			return b
		},
		events:  make(chan Event, eventBuffer),
		done:    make(chan struct{}),
		joined:  map[string]struct{}{},
		pending: map[string]*pendingAck{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect starts the dial/reconnect loop authenticated with token. It returns
// immediately; EventConnected is delivered once the channel is up. Only the
// first call has an effect.
func (c *Channel) Connect(ctx context.Context, token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started || c.closed {
		return
	}
	c.started = true

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	go c.run(ctx, header)
}

// State reports the current connection state.
func (c *Channel) State() ConnState {
	return ConnState(c.state.Load())
}

// Events returns the inbound event stream. It is closed after Close.
func (c *Channel) Events() <-chan Event {
	return c.events
}

// JoinRoom subscribes the live connection to a thread's room. Joining the same
// room twice on one connection is a no-op. Rooms are not remembered across
// reconnects; the caller rejoins.
func (c *Channel) JoinRoom(pairKey string) error {
	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	if _, ok := c.joined[pairKey]; ok {
		c.mu.Unlock()
		return nil
	}
	joined := c.joined
	joined[pairKey] = struct{}{}
	c.mu.Unlock()

	if err := c.write(conn, models.ClientFrame{Type: models.FrameJoin, PairKey: pairKey}); err != nil {
		c.mu.Lock()
		delete(joined, pairKey)
		c.mu.Unlock()
		return err
	}
	return nil
}

// Send emits payload over the channel. When it returns nil, onAck is called
// exactly once with the stored message or an error. When it returns an
// error, onAck is never called and the caller should use the REST fallback.
func (c *Channel) Send(payload models.SendPayload, onAck func(models.Message, error)) error {
	c.mu.Lock()
	conn := c.conn
	if conn == nil || c.State() != Connected {
		c.mu.Unlock()
		return ErrNotConnected
	}
	ref := uuid.NewString()
	p := &pendingAck{fn: onAck}
	p.timer = time.AfterFunc(c.ackTimeout, func() { c.resolve(ref, nil, ErrAckTimeout) })
	c.pending[ref] = p
	c.mu.Unlock()

	err := c.write(conn, models.ClientFrame{Type: models.FrameSend, Ref: ref, Payload: &payload})
	if err == nil {
		return nil
	}
	c.mu.Lock()
	_, still := c.pending[ref]
	delete(c.pending, ref)
	c.mu.Unlock()
	if !still {
		// already resolved by a disconnect or timeout
		return nil
	}
	p.timer.Stop()
	return err
}

// Close stops the reconnect loop and closes the live connection.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	started := c.started
	conn := c.conn
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	if started {
		<-c.done
	} else {
		close(c.events)
	}
	return nil
}

func (c *Channel) run(ctx context.Context, header http.Header) {
	defer close(c.done)
	defer close(c.events)

	bo := c.newBackOff()
	connectedBefore := false
	for {
		c.state.Store(int32(Connecting))
		conn, _, err := c.dialer.DialContext(ctx, c.url, header)
		if err != nil {
			c.state.Store(int32(Disconnected))
			if ctx.Err() != nil {
				return
			}
			slog.WarnContext(ctx, "chat channel unavailable, continuing over REST", "url", c.url, "error", err)
			observability.IncClientReconnect("failed")
			if !sleep(ctx, bo.NextBackOff()) {
				return
			}
			continue
		}

		if !c.attach(conn) {
			return
		}
		bo.Reset()
		kind := EventConnected
		if connectedBefore {
			kind = EventReconnected
			observability.IncClientReconnect("ok")
		}
		connectedBefore = true
		if !c.emit(ctx, Event{Kind: kind}) {
			c.detach(conn, ErrClosed)
			return
		}

		err = c.readLoop(ctx, conn)
		c.detach(conn, ErrNotConnected)
		if ctx.Err() != nil {
			return
		}
		slog.WarnContext(ctx, "chat channel dropped", "error", err)
		if !c.emit(ctx, Event{Kind: EventDisconnected}) {
			return
		}
		if !sleep(ctx, bo.NextBackOff()) {
			return
		}
	}
}

func (c *Channel) attach(conn *websocket.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		_ = conn.Close()
		return false
	}
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	c.conn = conn
	c.joined = map[string]struct{}{}
	c.pingStop = make(chan struct{})
	c.state.Store(int32(Connected))
	go pingLoop(conn, c.pingStop)
	return true
}

func (c *Channel) detach(conn *websocket.Conn, reason error) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
		close(c.pingStop)
		c.pingStop = nil
	}
	pending := c.pending
	c.pending = map[string]*pendingAck{}
	c.state.Store(int32(Disconnected))
	c.mu.Unlock()

	_ = conn.Close()
	for _, p := range pending {
		p.timer.Stop()
		p.fn(models.Message{}, reason)
	}
}

func (c *Channel) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var frame models.ServerFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			slog.DebugContext(ctx, "dropping malformed frame", "error", err)
			continue
		}
		switch frame.Type {
		case models.FrameMessage:
			if frame.Message == nil {
				continue
			}
			if !c.emit(ctx, Event{Kind: EventMessage, Message: *frame.Message}) {
				return ErrClosed
			}
		case models.FrameAck, models.FrameError:
			if frame.Ref == "" {
				slog.WarnContext(ctx, "chat channel error", "error", frame.Error)
				continue
			}
			var ackErr error
			if frame.Error != "" || frame.Message == nil {
				reason := frame.Error
				if reason == "" {
					reason = "ack without message"
				}
				ackErr = &AckError{Reason: reason}
			}
			c.resolve(frame.Ref, frame.Message, ackErr)
		case models.FrameJoined:
			slog.DebugContext(ctx, "joined room", "pair_key", frame.PairKey)
		}
	}
}

func (c *Channel) resolve(ref string, msg *models.Message, err error) {
	c.mu.Lock()
	p, ok := c.pending[ref]
	if ok {
		delete(c.pending, ref)
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	p.timer.Stop()
	if err != nil {
		observability.IncClientAckFailure()
		p.fn(models.Message{}, err)
		return
	}
	p.fn(*msg, nil)
}

func (c *Channel) write(conn *websocket.Conn, frame models.ClientFrame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(frame)
}

func (c *Channel) emit(ctx context.Context, ev Event) bool {
	select {
	case c.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d == backoff.Stop {
		return false
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
