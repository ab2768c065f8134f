// Package syncer reconciles REST history with the live push channel for one
// signed-in staff member.
package syncer

import (
	"context"
	"errors"
	"log/slog"

	"staffchat/internal/directory"
	"staffchat/internal/messagelog"
	"staffchat/internal/models"
	"staffchat/internal/observability"
	"staffchat/internal/presenter"
	"staffchat/internal/transport"
)

const msgLoadFailed = "could not load messages"

var (
	ErrNoChatPrivilege = errors.New("identity has no chat privilege")
	ErrNoActiveThread  = errors.New("no active thread")
	ErrSendInProgress  = errors.New("a message is already being sent")
	ErrStopped         = errors.New("controller stopped")
)

const recentWindow = 512

// Controller owns the thread directory and the message log. All state is
// mutated on the goroutine running Run; network calls run on their own
// goroutines and post their results back, where they are checked against
// the state current at completion time.
type Controller struct {
	viewer      models.Identity
	token       string
	transport   Transport
	notifier    Notifier
	view        *presenter.Adapter
	defaultPeer models.ThreadID

	dir    *directory.Directory
	log    *messagelog.Log
	recent *recentIDs

	phase         presenter.Phase
	draft         string
	sending       bool
	lastErr       string
	connecting    bool
	refreshing    bool
	refreshQueued bool

	inbox  chan func()
	done   chan struct{}
	runCtx context.Context
}

// Option customises a Controller.
type Option func(*Controller)

// WithNotifier sets the notification surface. The default logs notices.
func WithNotifier(n Notifier) Option {
	return func(c *Controller) { c.notifier = n }
}

// WithView sets the adapter the controller publishes to.
func WithView(a *presenter.Adapter) Option {
	return func(c *Controller) { c.view = a }
}

// WithDefaultCoordinator lets a counterpart with no thread yet address its
// first message. The thread appears once the backend has stored it.
func WithDefaultCoordinator(id models.ThreadID) Option {
	return func(c *Controller) { c.defaultPeer = id }
}

// New builds a controller for the provider's identity. It fails with
// ErrNoChatPrivilege when the identity cannot chat.
func New(provider IdentityProvider, t Transport, opts ...Option) (*Controller, error) {
	viewer := provider.Identity()
	if !viewer.CanChat() {
		return nil, ErrNoChatPrivilege
	}
	c := &Controller{
		viewer:    viewer,
		token:     provider.Token(),
		transport: t,
		notifier:  LogNotifier{},
		view:      presenter.NewAdapter(),
		dir:       directory.New(viewer.Role),
		log:       messagelog.New(),
		recent:    newRecentIDs(recentWindow),
		phase:     presenter.PhaseIdle,
		inbox:     make(chan func()),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if viewer.Role == models.RoleCoordinator {
		c.defaultPeer = 0
	}
	return c, nil
}

// View returns the adapter the controller publishes to.
func (c *Controller) View() *presenter.Adapter {
	return c.view
}

// Run hydrates the directory and processes commands, results and channel
// events until ctx is cancelled, then closes the transport. It must be
// called once.
func (c *Controller) Run(ctx context.Context) error {
	defer c.transport.Close()
	defer close(c.done)

	c.runCtx = ctx
	c.startHydration()
	c.publish()

	events := c.transport.Events()
	for {
		select {
		case <-ctx.Done():
			return nil
		case fn := <-c.inbox:
			fn()
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			c.handleEvent(ev)
		}
		c.publish()
	}
}

// SelectThread switches the active thread.
func (c *Controller) SelectThread(ctx context.Context, id models.ThreadID) error {
	return c.call(ctx, func() error { return c.selectThread(id) })
}

// Send submits text to the active thread. Validation errors are returned
// directly; delivery failures are reported through the notifier and keep
// the draft.
func (c *Controller) Send(ctx context.Context, text string) error {
	return c.call(ctx, func() error { return c.send(text) })
}

// SetDraft records the compose box contents.
func (c *Controller) SetDraft(ctx context.Context, text string) error {
	return c.call(ctx, func() error {
		c.draft = text
		return nil
	})
}

// Refresh reloads the directory. From the idle phase it retries hydration.
// It also reloads the active thread's history when that never loaded.
func (c *Controller) Refresh(ctx context.Context) error {
	return c.call(ctx, func() error {
		if c.phase == presenter.PhaseIdle {
			c.startHydration()
			return nil
		}
		c.refreshDirectory()
		c.reloadUnhydrated()
		return nil
	})
}

func (c *Controller) call(ctx context.Context, fn func() error) error {
	res := make(chan error, 1)
	select {
	case c.inbox <- func() { res <- fn() }:
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-res:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post hands a result back to the loop. It gives up once Run has returned.
func (c *Controller) post(fn func()) {
	select {
	case c.inbox <- fn:
	case <-c.done:
	}
}

// spawn runs work off the loop and applies the closure it returns on the loop.
func (c *Controller) spawn(work func(ctx context.Context) func()) {
	ctx := c.runCtx
	go func() {
		c.post(work(ctx))
	}()
}

func (c *Controller) startHydration() {
	if c.phase == presenter.PhaseHydrating {
		return
	}
	c.phase = presenter.PhaseHydrating
	c.spawn(func(ctx context.Context) func() {
		threads, err := c.transport.FetchThreads(ctx)
		return func() { c.onHydrated(threads, err) }
	})
}

func (c *Controller) onHydrated(threads []models.Thread, err error) {
	if err != nil {
		c.phase = presenter.PhaseIdle
		c.report(NoticeLoadFailed, "could not load conversations", err)
		return
	}
	c.phase = presenter.PhaseReady
	c.lastErr = ""
	c.applyDirectory(threads)
}

func (c *Controller) refreshDirectory() {
	if c.phase != presenter.PhaseReady {
		return
	}
	if c.refreshing {
		c.refreshQueued = true
		return
	}
	c.refreshing = true
	c.spawn(func(ctx context.Context) func() {
		threads, err := c.transport.FetchThreads(ctx)
		return func() { c.onRefreshed(threads, err) }
	})
}

func (c *Controller) onRefreshed(threads []models.Thread, err error) {
	c.refreshing = false
	if err != nil {
		c.report(NoticeRefreshFailed, "could not refresh conversations", err)
	} else {
		c.applyDirectory(threads)
	}
	if c.refreshQueued {
		c.refreshQueued = false
		c.refreshDirectory()
	}
}

func (c *Controller) applyDirectory(threads []models.Thread) {
	active, changed := c.dir.Hydrate(threads)
	if changed {
		c.activate(active)
	} else if active != 0 && serverUnread(threads, active) > 0 {
		c.markRead(active)
	}
	if c.dir.Len() > 0 {
		c.ensureConnected()
	}
}

func (c *Controller) ensureConnected() {
	if c.connecting {
		return
	}
	c.connecting = true
	c.transport.Connect(c.runCtx, c.token)
}

// activate points the log at id, joins its room and loads its history.
func (c *Controller) activate(id models.ThreadID) {
	c.log.Reset(id)
	if id == 0 {
		return
	}
	c.joinActive()
	c.loadMessages(id)
	c.markRead(id)
}

func (c *Controller) selectThread(id models.ThreadID) error {
	if id == c.dir.Active() {
		c.reloadUnhydrated()
		return nil
	}
	if err := c.dir.Select(id); err != nil {
		return err
	}
	c.activate(id)
	return nil
}

// joinActive subscribes to the room of whatever thread is active now.
func (c *Controller) joinActive() {
	active := c.dir.Active()
	if active == 0 || c.transport.State() != transport.Connected {
		return
	}
	if err := c.transport.JoinRoom(models.PairKeyFor(c.viewer, active)); err != nil {
		slog.DebugContext(c.runCtx, "join room failed", "thread_id", int64(active), "error", err)
	}
}

// reloadUnhydrated fetches the active thread's history again after a failed
// load.
func (c *Controller) reloadUnhydrated() {
	if active := c.dir.Active(); active != 0 && !c.log.Hydrated() {
		c.loadMessages(active)
	}
}

func (c *Controller) loadMessages(id models.ThreadID) {
	c.spawn(func(ctx context.Context) func() {
		msgs, err := c.transport.FetchMessages(ctx, id)
		return func() { c.onMessagesLoaded(id, msgs, err) }
	})
}

func (c *Controller) onMessagesLoaded(id models.ThreadID, msgs []models.Message, err error) {
	if err != nil {
		if id == c.dir.Active() {
			c.report(NoticeLoadFailed, msgLoadFailed, err)
		}
		return
	}
	if !c.log.Hydrate(id, c.dir.Active(), msgs) {
		slog.DebugContext(c.runCtx, "discarding stale message history", "thread_id", int64(id), "active", int64(c.dir.Active()))
		return
	}
	for _, m := range msgs {
		c.recent.add(m.ID)
	}
	if c.lastErr == msgLoadFailed {
		c.lastErr = ""
	}
}

func (c *Controller) markRead(id models.ThreadID) {
	c.spawn(func(ctx context.Context) func() {
		err := c.transport.MarkRead(ctx, id)
		return func() {
			if err != nil {
				slog.WarnContext(c.runCtx, "mark read failed", "thread_id", int64(id), "error", err)
			}
		}
	})
}

func (c *Controller) handleEvent(ev transport.Event) {
	switch ev.Kind {
	case transport.EventConnected, transport.EventReconnected:
		c.joinActive()
	case transport.EventMessage:
		c.applyIncoming(ev.Message)
	}
}

// applyIncoming merges a pushed message into the directory and, for the
// active thread, into the log.
func (c *Controller) applyIncoming(msg models.Message) {
	if !c.involvesViewer(msg) || c.recent.has(msg.ID) {
		return
	}
	c.recent.add(msg.ID)
	threadID := msg.ThreadIDFor(c.viewer)
	isActive := threadID == c.dir.Active()
	if !c.dir.ApplyIncoming(threadID, msg, isActive) {
		c.refreshDirectory()
		return
	}
	if !isActive {
		return
	}
	c.log.Append(threadID, msg)
	if msg.SenderRole != c.viewer.Role {
		c.markRead(threadID)
	}
}

func (c *Controller) send(text string) error {
	trimmed, err := models.ValidateText(text)
	if err != nil {
		return err
	}
	if c.sending {
		return ErrSendInProgress
	}
	peer := c.dir.Active()
	if peer == 0 {
		peer = c.defaultPeer
	}
	if peer == 0 {
		return ErrNoActiveThread
	}

	c.sending = true
	c.draft = text
	payload := models.SendPayload{PeerID: peer, Text: trimmed}
	err = c.transport.Send(payload, func(msg models.Message, ackErr error) {
		c.post(func() { c.onAck(payload, text, msg, ackErr) })
	})
	if err != nil {
		observability.IncClientSendFallback()
		c.postFallback(payload, text)
	}
	return nil
}

func (c *Controller) onAck(payload models.SendPayload, draft string, msg models.Message, err error) {
	if err != nil {
		slog.DebugContext(c.runCtx, "channel send failed, using REST", "error", err)
		observability.IncClientSendFallback()
		c.postFallback(payload, draft)
		return
	}
	c.onSent(draft, msg)
}

// postFallback submits payload over REST. It is the single retry a send gets.
func (c *Controller) postFallback(payload models.SendPayload, draft string) {
	c.spawn(func(ctx context.Context) func() {
		msg, err := c.transport.PostMessage(ctx, payload)
		return func() {
			if err != nil {
				c.sending = false
				c.report(NoticeSendFailed, "message not sent", err)
				return
			}
			c.onSent(draft, msg)
		}
	})
}

// onSent applies a stored message without waiting for its push echo.
func (c *Controller) onSent(draft string, msg models.Message) {
	c.sending = false
	c.lastErr = ""
	if c.draft == draft {
		c.draft = ""
	}
	c.recent.add(msg.ID)

	threadID := msg.ThreadIDFor(c.viewer)
	isActive := threadID == c.dir.Active()
	if !c.dir.ApplyIncoming(threadID, msg, isActive) {
		c.refreshDirectory()
		return
	}
	if isActive {
		c.log.Append(threadID, msg)
	}
}

func (c *Controller) involvesViewer(msg models.Message) bool {
	if c.viewer.Role == models.RoleCoordinator {
		return msg.CoordinatorID == c.viewer.ID
	}
	return msg.CounterpartID == c.viewer.ID
}

func (c *Controller) report(kind NoticeKind, text string, err error) {
	c.lastErr = text
	c.notifier.Notify(c.runCtx, Notice{Kind: kind, Text: text, Err: err})
}

func (c *Controller) publish() {
	c.view.Publish(presenter.Map(presenter.Input{
		Viewer:     c.viewer,
		Phase:      c.phase,
		Connection: c.transport.State().String(),
		Threads:    c.dir.Threads(),
		Active:     c.dir.Active(),
		Messages:   c.log.Messages(),
		Draft:      c.draft,
		Sending:    c.sending,
		LastError:  c.lastErr,
	}))
}

func serverUnread(threads []models.Thread, id models.ThreadID) int {
	for _, t := range threads {
		if t.ID == id {
			return t.UnreadCount
		}
	}
	return 0
}
