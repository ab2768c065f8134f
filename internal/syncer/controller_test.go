package syncer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"staffchat/internal/directory"
	"staffchat/internal/models"
	"staffchat/internal/presenter"
	"staffchat/internal/transport"
)

var (
	coordinator = models.Identity{ID: 1, Role: models.RoleCoordinator, DisplayName: "Cora", Authenticated: true}
	counterpart = models.Identity{ID: 10, Role: models.RoleCounterpart, DisplayName: "Pat", Authenticated: true}
	t0          = time.Date(2024, 6, 3, 8, 0, 0, 0, time.UTC)
)

// fakeTransport serves canned REST data, records every call and lets tests
// push channel events. FetchMessages can be held back per thread with gate.
type fakeTransport struct {
	viewer models.Identity

	mu          sync.Mutex
	state       transport.ConnState
	autoConnect bool
	threads     []models.Thread
	threadsErr  error
	messages    map[models.ThreadID][]models.Message
	gates       map[models.ThreadID]chan struct{}
	failNext    map[models.ThreadID]error
	msgFetches  int
	ackErr      error
	postErr     error
	nextID      int64
	connects    int
	fetches     int
	joins       []string
	marks       []models.ThreadID
	sends       []models.SendPayload
	posts       []models.SendPayload

	events    chan transport.Event
	closeOnce sync.Once
}

func newFakeTransport(viewer models.Identity) *fakeTransport {
	return &fakeTransport{
		viewer:      viewer,
		autoConnect: true,
		messages:    map[models.ThreadID][]models.Message{},
		gates:       map[models.ThreadID]chan struct{}{},
		failNext:    map[models.ThreadID]error{},
		nextID:      1000,
		events:      make(chan transport.Event, 32),
	}
}

func (f *fakeTransport) Connect(ctx context.Context, token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	if f.autoConnect {
		f.state = transport.Connected
		f.events <- transport.Event{Kind: transport.EventConnected}
	}
}

func (f *fakeTransport) JoinRoom(pairKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != transport.Connected {
		return transport.ErrNotConnected
	}
	f.joins = append(f.joins, pairKey)
	return nil
}

func (f *fakeTransport) Send(payload models.SendPayload, onAck func(models.Message, error)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != transport.Connected {
		return transport.ErrNotConnected
	}
	f.sends = append(f.sends, payload)
	if f.ackErr != nil {
		err := f.ackErr
		go onAck(models.Message{}, err)
		return nil
	}
	msg := f.storeLocked(payload)
	go onAck(msg, nil)
	return nil
}

func (f *fakeTransport) Events() <-chan transport.Event { return f.events }

func (f *fakeTransport) State() transport.ConnState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeTransport) Close() error {
	f.closeOnce.Do(func() { close(f.events) })
	return nil
}

func (f *fakeTransport) FetchThreads(ctx context.Context) ([]models.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.threadsErr != nil {
		return nil, f.threadsErr
	}
	return append([]models.Thread(nil), f.threads...), nil
}

func (f *fakeTransport) FetchMessages(ctx context.Context, threadID models.ThreadID) ([]models.Message, error) {
	f.mu.Lock()
	gate := f.gates[threadID]
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgFetches++
	if err, ok := f.failNext[threadID]; ok {
		delete(f.failNext, threadID)
		return nil, err
	}
	return append([]models.Message(nil), f.messages[threadID]...), nil
}

func (f *fakeTransport) PostMessage(ctx context.Context, payload models.SendPayload) (models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts = append(f.posts, payload)
	if f.postErr != nil {
		return models.Message{}, f.postErr
	}
	return f.storeLocked(payload), nil
}

func (f *fakeTransport) MarkRead(ctx context.Context, threadID models.ThreadID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marks = append(f.marks, threadID)
	return nil
}

func (f *fakeTransport) storeLocked(payload models.SendPayload) models.Message {
	f.nextID++
	msg := models.Message{
		ID:         f.nextID,
		SenderRole: f.viewer.Role,
		SenderID:   f.viewer.ID,
		Text:       payload.Text,
		CreatedAt:  time.Now(),
	}
	if f.viewer.Role == models.RoleCoordinator {
		msg.CoordinatorID, msg.CounterpartID = f.viewer.ID, int64(payload.PeerID)
	} else {
		msg.CoordinatorID, msg.CounterpartID = int64(payload.PeerID), f.viewer.ID
	}
	f.messages[payload.PeerID] = append(f.messages[payload.PeerID], msg)
	return msg
}

func (f *fakeTransport) push(msg models.Message) {
	f.events <- transport.Event{Kind: transport.EventMessage, Message: msg}
}

func (f *fakeTransport) gate(id models.ThreadID) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.gates[id] = ch
	return ch
}

func (f *fakeTransport) snapshot() (joins []string, marks []models.ThreadID, sends, posts int, fetches int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.joins...), append([]models.ThreadID(nil), f.marks...), len(f.sends), len(f.posts), f.fetches
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *recordingNotifier) Notify(ctx context.Context, n Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *recordingNotifier) kinds() []NoticeKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []NoticeKind
	for _, n := range r.notices {
		out = append(out, n.Kind)
	}
	return out
}

func fromCounterpart(id, counterpartID int64, text string, at time.Time) models.Message {
	return models.Message{
		ID:            id,
		CoordinatorID: coordinator.ID,
		CounterpartID: counterpartID,
		SenderRole:    models.RoleCounterpart,
		SenderID:      counterpartID,
		Text:          text,
		CreatedAt:     at,
	}
}

// seedCoordinator gives the coordinator two threads: Pat (10) with history
// and two unread, Sam (11) quiet.
func seedCoordinator(f *fakeTransport) {
	f.threads = []models.Thread{
		{
			ID:          10,
			Peer:        models.Identity{ID: 10, Role: models.RoleCounterpart, DisplayName: "Pat"},
			LastMessage: &models.Snapshot{Text: "anyone there?", CreatedAt: t0.Add(time.Minute), SenderRole: models.RoleCounterpart},
			UnreadCount: 2,
		},
		{
			ID:          11,
			Peer:        models.Identity{ID: 11, Role: models.RoleCounterpart, DisplayName: "Sam"},
			LastMessage: &models.Snapshot{Text: "thanks", CreatedAt: t0, SenderRole: models.RoleCounterpart},
		},
	}
	f.messages[10] = []models.Message{
		fromCounterpart(100, 10, "hello", t0),
		fromCounterpart(101, 10, "anyone there?", t0.Add(time.Minute)),
	}
	f.messages[11] = []models.Message{
		fromCounterpart(200, 11, "thanks", t0),
	}
}

func startController(t *testing.T, f *fakeTransport, opts ...Option) *Controller {
	t.Helper()
	c, err := New(StaticIdentity{Who: f.viewer, Bearer: "tok"}, f, opts...)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = c.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return c
}

func waitView(t *testing.T, c *Controller, cond func(vs presenter.ViewState) bool) presenter.ViewState {
	t.Helper()
	require.Eventually(t, func() bool { return cond(c.View().Current()) }, 2*time.Second, 5*time.Millisecond)
	return c.View().Current()
}

func texts(vs presenter.ViewState) []string {
	out := make([]string, 0, len(vs.Messages))
	for _, m := range vs.Messages {
		out = append(out, m.Text)
	}
	return out
}

func threadView(vs presenter.ViewState, id models.ThreadID) presenter.ThreadView {
	for _, tv := range vs.Threads {
		if tv.ID == id {
			return tv
		}
	}
	return presenter.ThreadView{}
}

func TestNewRefusesIdentityWithoutChatPrivilege(t *testing.T) {
	anon := models.Identity{ID: 3, Role: models.RoleCoordinator}
	_, err := New(StaticIdentity{Who: anon}, newFakeTransport(anon))
	assert.ErrorIs(t, err, ErrNoChatPrivilege)
}

func TestHydrationSelectsFirstThreadLoadsHistoryAndJoinsRoom(t *testing.T) {
	f := newFakeTransport(coordinator)
	seedCoordinator(f)
	c := startController(t, f)

	vs := waitView(t, c, func(vs presenter.ViewState) bool {
		return vs.Phase == presenter.PhaseReady && len(vs.Messages) == 2
	})
	assert.Equal(t, models.ThreadID(10), vs.ActiveThreadID)
	assert.Equal(t, []string{"hello", "anyone there?"}, texts(vs))
	assert.Equal(t, 0, threadView(vs, 10).Unread)
	assert.Equal(t, 0, vs.TotalUnread)

	require.Eventually(t, func() bool {
		joins, marks, _, _, _ := f.snapshot()
		return len(joins) == 1 && len(marks) == 1
	}, time.Second, 5*time.Millisecond)
	joins, marks, _, _, _ := f.snapshot()
	assert.Equal(t, []string{"1:10"}, joins)
	assert.Equal(t, []models.ThreadID{10}, marks)
}

func TestIncomingMessageOnActiveThreadAppendsAndMarksRead(t *testing.T) {
	f := newFakeTransport(coordinator)
	seedCoordinator(f)
	c := startController(t, f)
	waitView(t, c, func(vs presenter.ViewState) bool { return len(vs.Messages) == 2 })

	f.push(fromCounterpart(102, 10, "are you around?", t0.Add(2*time.Minute)))

	vs := waitView(t, c, func(vs presenter.ViewState) bool { return len(vs.Messages) == 3 })
	assert.Equal(t, "are you around?", vs.Messages[2].Text)
	assert.False(t, vs.Messages[2].Own)
	assert.Equal(t, 0, threadView(vs, 10).Unread)
	assert.Equal(t, "are you around?", threadView(vs, 10).Preview)

	require.Eventually(t, func() bool {
		_, marks, _, _, _ := f.snapshot()
		return len(marks) == 2
	}, time.Second, 5*time.Millisecond)
}

func TestIncomingMessageOnBackgroundThreadBumpsUnreadOnce(t *testing.T) {
	f := newFakeTransport(coordinator)
	seedCoordinator(f)
	c := startController(t, f)
	waitView(t, c, func(vs presenter.ViewState) bool { return len(vs.Messages) == 2 })

	msg := fromCounterpart(201, 11, "quick question", t0.Add(3*time.Minute))
	f.push(msg)
	f.push(msg)

	vs := waitView(t, c, func(vs presenter.ViewState) bool { return threadView(vs, 11).Unread == 1 })
	assert.Equal(t, "quick question", threadView(vs, 11).Preview)
	assert.Equal(t, models.ThreadID(10), vs.ActiveThreadID)
	assert.Equal(t, []string{"hello", "anyone there?"}, texts(vs))

	// A later push proves both copies of msg were processed.
	f.push(fromCounterpart(202, 11, "ping", t0.Add(4*time.Minute)))
	vs = waitView(t, c, func(vs presenter.ViewState) bool { return threadView(vs, 11).Preview == "ping" })
	assert.Equal(t, 2, threadView(vs, 11).Unread)
	assert.Equal(t, 2, vs.TotalUnread)
}

func TestLateHistoryForPreviousThreadIsDiscarded(t *testing.T) {
	f := newFakeTransport(coordinator)
	seedCoordinator(f)
	gate10 := f.gate(10)
	gate11 := f.gate(11)
	c := startController(t, f)
	waitView(t, c, func(vs presenter.ViewState) bool { return vs.ActiveThreadID == 10 })

	require.NoError(t, c.SelectThread(context.Background(), 11))
	close(gate11)
	vs := waitView(t, c, func(vs presenter.ViewState) bool { return len(vs.Messages) == 1 })
	assert.Equal(t, []string{"thanks"}, texts(vs))

	close(gate10)
	assert.Never(t, func() bool {
		vs := c.View().Current()
		return vs.ActiveThreadID != 11 || len(vs.Messages) != 1
	}, 150*time.Millisecond, 10*time.Millisecond)
}

func TestSelectUnknownThread(t *testing.T) {
	f := newFakeTransport(coordinator)
	seedCoordinator(f)
	c := startController(t, f)
	waitView(t, c, func(vs presenter.ViewState) bool { return vs.Phase == presenter.PhaseReady })

	err := c.SelectThread(context.Background(), 99)
	assert.ErrorIs(t, err, directory.ErrThreadNotFound)
}

func TestSendWithChannelDownUsesRESTAndIgnoresEcho(t *testing.T) {
	f := newFakeTransport(coordinator)
	f.autoConnect = false
	seedCoordinator(f)
	c := startController(t, f)
	waitView(t, c, func(vs presenter.ViewState) bool { return len(vs.Messages) == 2 })

	require.NoError(t, c.SetDraft(context.Background(), "on my way"))
	require.NoError(t, c.Send(context.Background(), "on my way"))

	vs := waitView(t, c, func(vs presenter.ViewState) bool { return len(vs.Messages) == 3 })
	assert.Equal(t, "on my way", vs.Messages[2].Text)
	assert.True(t, vs.Messages[2].Own)
	assert.Empty(t, vs.Draft)
	assert.False(t, vs.Sending)

	_, _, sends, posts, _ := f.snapshot()
	assert.Equal(t, 0, sends)
	assert.Equal(t, 1, posts)

	echo := vs.Messages[2]
	f.push(models.Message{
		ID: echo.ID, CoordinatorID: 1, CounterpartID: 10,
		SenderRole: models.RoleCoordinator, SenderID: 1, Text: echo.Text, CreatedAt: echo.CreatedAt,
	})
	f.push(fromCounterpart(103, 10, "great", time.Now().Add(time.Second)))

	vs = waitView(t, c, func(vs presenter.ViewState) bool { return len(vs.Messages) >= 4 })
	assert.Equal(t, []string{"hello", "anyone there?", "on my way", "great"}, texts(vs))
}

func TestSendOverChannelAppliesAck(t *testing.T) {
	f := newFakeTransport(coordinator)
	seedCoordinator(f)
	c := startController(t, f)
	waitView(t, c, func(vs presenter.ViewState) bool {
		return len(vs.Messages) == 2 && vs.Connection == transport.Connected.String()
	})

	require.NoError(t, c.Send(context.Background(), "  noted  "))

	vs := waitView(t, c, func(vs presenter.ViewState) bool { return len(vs.Messages) == 3 })
	assert.Equal(t, "noted", vs.Messages[2].Text)
	assert.Equal(t, "noted", threadView(vs, 10).Preview)

	_, _, sends, posts, _ := f.snapshot()
	assert.Equal(t, 1, sends)
	assert.Equal(t, 0, posts)
}

func TestSendAckFailureFallsBackToREST(t *testing.T) {
	f := newFakeTransport(coordinator)
	f.ackErr = transport.ErrAckTimeout
	seedCoordinator(f)
	c := startController(t, f)
	waitView(t, c, func(vs presenter.ViewState) bool {
		return len(vs.Messages) == 2 && vs.Connection == transport.Connected.String()
	})

	require.NoError(t, c.Send(context.Background(), "retry me"))

	vs := waitView(t, c, func(vs presenter.ViewState) bool { return len(vs.Messages) == 3 })
	assert.Equal(t, "retry me", vs.Messages[2].Text)
	_, _, sends, posts, _ := f.snapshot()
	assert.Equal(t, 1, sends)
	assert.Equal(t, 1, posts)
}

func TestSendFailureKeepsDraftAndNotifies(t *testing.T) {
	f := newFakeTransport(coordinator)
	f.autoConnect = false
	f.postErr = errors.New("boom")
	seedCoordinator(f)
	notes := &recordingNotifier{}
	c := startController(t, f, WithNotifier(notes))
	waitView(t, c, func(vs presenter.ViewState) bool { return len(vs.Messages) == 2 })

	require.NoError(t, c.Send(context.Background(), "draft text"))

	vs := waitView(t, c, func(vs presenter.ViewState) bool { return !vs.Sending && vs.LastError != "" })
	assert.Equal(t, "draft text", vs.Draft)
	assert.Len(t, vs.Messages, 2)
	assert.Equal(t, []NoticeKind{NoticeSendFailed}, notes.kinds())
}

func TestSendRejectsEmptyText(t *testing.T) {
	f := newFakeTransport(coordinator)
	seedCoordinator(f)
	c := startController(t, f)
	waitView(t, c, func(vs presenter.ViewState) bool { return vs.Phase == presenter.PhaseReady })

	err := c.Send(context.Background(), "   \n\t")
	assert.ErrorIs(t, err, models.ErrEmptyText)

	_, _, sends, posts, _ := f.snapshot()
	assert.Zero(t, sends)
	assert.Zero(t, posts)
}

func TestSendWithoutThreadFailsForCoordinator(t *testing.T) {
	f := newFakeTransport(coordinator)
	c := startController(t, f, WithDefaultCoordinator(5))
	waitView(t, c, func(vs presenter.ViewState) bool { return vs.Phase == presenter.PhaseReady })

	err := c.Send(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrNoActiveThread)
}

func TestReconnectRejoinsCurrentActiveThread(t *testing.T) {
	f := newFakeTransport(coordinator)
	seedCoordinator(f)
	c := startController(t, f)

	require.Eventually(t, func() bool {
		joins, _, _, _, _ := f.snapshot()
		return len(joins) == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, c.SelectThread(context.Background(), 11))
	f.events <- transport.Event{Kind: transport.EventReconnected}

	require.Eventually(t, func() bool {
		joins, _, _, _, _ := f.snapshot()
		return len(joins) == 3
	}, time.Second, 5*time.Millisecond)
	joins, _, _, _, _ := f.snapshot()
	assert.Equal(t, []string{"1:10", "1:11", "1:11"}, joins)
}

func TestMessageForUnknownThreadRefreshesDirectory(t *testing.T) {
	f := newFakeTransport(coordinator)
	seedCoordinator(f)
	c := startController(t, f)
	waitView(t, c, func(vs presenter.ViewState) bool { return len(vs.Messages) == 2 })

	msg := fromCounterpart(300, 12, "new here", t0.Add(5*time.Minute))
	f.mu.Lock()
	f.threads = append(f.threads, models.Thread{
		ID:          12,
		Peer:        models.Identity{ID: 12, Role: models.RoleCounterpart, DisplayName: "Lee"},
		LastMessage: msg.Snapshot(),
		UnreadCount: 1,
	})
	f.mu.Unlock()
	f.push(msg)

	vs := waitView(t, c, func(vs presenter.ViewState) bool { return len(vs.Threads) == 3 })
	assert.Equal(t, 1, threadView(vs, 12).Unread)
	assert.Equal(t, "Lee", threadView(vs, 12).PeerName)
	assert.Equal(t, models.ThreadID(10), vs.ActiveThreadID)

	_, _, _, _, fetches := f.snapshot()
	assert.Equal(t, 2, fetches)
}

func TestMessagesForOtherStaffAreIgnored(t *testing.T) {
	f := newFakeTransport(coordinator)
	seedCoordinator(f)
	c := startController(t, f)
	waitView(t, c, func(vs presenter.ViewState) bool { return len(vs.Messages) == 2 })

	stray := fromCounterpart(400, 10, "not for you", t0.Add(time.Hour))
	stray.CoordinatorID = 2
	f.push(stray)
	f.push(fromCounterpart(401, 10, "for you", t0.Add(2*time.Hour)))

	vs := waitView(t, c, func(vs presenter.ViewState) bool { return len(vs.Messages) == 3 })
	assert.Equal(t, "for you", vs.Messages[2].Text)
}

func TestHydrationFailureGoesIdleUntilRefresh(t *testing.T) {
	f := newFakeTransport(coordinator)
	seedCoordinator(f)
	f.threadsErr = errors.New("backend down")
	notes := &recordingNotifier{}
	c := startController(t, f, WithNotifier(notes))

	vs := waitView(t, c, func(vs presenter.ViewState) bool { return vs.LastError != "" })
	assert.Equal(t, presenter.PhaseIdle, vs.Phase)
	assert.Equal(t, []NoticeKind{NoticeLoadFailed}, notes.kinds())

	f.mu.Lock()
	f.threadsErr = nil
	f.mu.Unlock()
	require.NoError(t, c.Refresh(context.Background()))

	vs = waitView(t, c, func(vs presenter.ViewState) bool { return len(vs.Messages) == 2 })
	assert.Equal(t, presenter.PhaseReady, vs.Phase)
	assert.Empty(t, vs.LastError)
}

func TestCounterpartFirstMessageMaterializesThread(t *testing.T) {
	f := newFakeTransport(counterpart)
	c := startController(t, f, WithDefaultCoordinator(1))
	waitView(t, c, func(vs presenter.ViewState) bool { return vs.Phase == presenter.PhaseReady })

	f.mu.Lock()
	f.threads = []models.Thread{{ID: 1, Peer: models.Identity{ID: 1, Role: models.RoleCoordinator, DisplayName: "Cora"}}}
	f.mu.Unlock()

	require.NoError(t, c.Send(context.Background(), "hi, first time"))

	vs := waitView(t, c, func(vs presenter.ViewState) bool { return len(vs.Messages) == 1 })
	assert.Equal(t, models.ThreadID(1), vs.ActiveThreadID)
	assert.Equal(t, "hi, first time", vs.Messages[0].Text)
	assert.True(t, vs.Messages[0].Own)

	f.mu.Lock()
	assert.Equal(t, []models.SendPayload{{PeerID: 1, Text: "hi, first time"}}, f.posts)
	f.mu.Unlock()
}

func TestRunClosesTransportOnCancel(t *testing.T) {
	f := newFakeTransport(coordinator)
	c, err := New(StaticIdentity{Who: coordinator, Bearer: "tok"}, f)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
	_, open := <-f.events
	assert.False(t, open)
	assert.ErrorIs(t, c.Send(context.Background(), "late"), ErrStopped)
}

func TestFailedHistoryLoadIsRetriedOnRefresh(t *testing.T) {
	f := newFakeTransport(coordinator)
	seedCoordinator(f)
	f.failNext[10] = errors.New("gateway timeout")
	n := &recordingNotifier{}
	c := startController(t, f, WithNotifier(n))

	vs := waitView(t, c, func(vs presenter.ViewState) bool { return vs.LastError != "" })
	assert.Equal(t, models.ThreadID(10), vs.ActiveThreadID)
	assert.Empty(t, vs.Messages)
	assert.Equal(t, []NoticeKind{NoticeLoadFailed}, n.kinds())

	require.NoError(t, c.Refresh(context.Background()))

	vs = waitView(t, c, func(vs presenter.ViewState) bool { return len(vs.Messages) == 2 })
	assert.Equal(t, []string{"hello", "anyone there?"}, texts(vs))
	assert.Empty(t, vs.LastError)
}

func TestReselectingUnloadedThreadRetriesHistory(t *testing.T) {
	f := newFakeTransport(coordinator)
	seedCoordinator(f)
	f.failNext[10] = errors.New("gateway timeout")
	c := startController(t, f)
	waitView(t, c, func(vs presenter.ViewState) bool { return vs.LastError != "" })

	require.NoError(t, c.SelectThread(context.Background(), 10))

	vs := waitView(t, c, func(vs presenter.ViewState) bool { return len(vs.Messages) == 2 })
	assert.Equal(t, models.ThreadID(10), vs.ActiveThreadID)

	// a loaded thread is not fetched again
	require.NoError(t, c.SelectThread(context.Background(), 10))
	require.NoError(t, c.Refresh(context.Background()))
	assert.Never(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.msgFetches > 2
	}, 100*time.Millisecond, 10*time.Millisecond)
}
