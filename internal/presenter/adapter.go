// Package presenter maps sync controller state to renderable view state.
package presenter

import (
	"sync"
	"time"

	"staffchat/internal/models"
)

// Phase is the controller's hydration phase.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseHydrating Phase = "hydrating"
	PhaseReady     Phase = "ready"
)

// ThreadView is one row of the thread list.
type ThreadView struct {
	ID        models.ThreadID
	PeerName  string
	Preview   string
	PreviewAt time.Time
	FromPeer  bool
	Unread    int
	Active    bool
}

// MessageView is one rendered message of the active conversation.
type MessageView struct {
	ID         int64
	SenderName string
	Text       string
	Own        bool
	CreatedAt  time.Time
}

// ViewState is everything the thread list, conversation view and unread badge
// need to render.
type ViewState struct {
	Phase          Phase
	Connection     string
	Threads        []ThreadView
	ActiveThreadID models.ThreadID
	Messages       []MessageView
	Draft          string
	Sending        bool
	LastError      string
	TotalUnread    int
}

// Input is the controller state handed to Map.
type Input struct {
	Viewer     models.Identity
	Phase      Phase
	Connection string
	Threads    []models.Thread
	Active     models.ThreadID
	Messages   []models.Message
	Draft      string
	Sending    bool
	LastError  string
}

// Map builds a ViewState. Messages are shown only when they belong to the
// active thread.
func Map(in Input) ViewState {
	vs := ViewState{
		Phase:          in.Phase,
		Connection:     in.Connection,
		ActiveThreadID: in.Active,
		Draft:          in.Draft,
		Sending:        in.Sending,
		LastError:      in.LastError,
		Threads:        make([]ThreadView, 0, len(in.Threads)),
	}

	names := map[models.ThreadID]string{}
	for _, t := range in.Threads {
		row := ThreadView{
			ID:       t.ID,
			PeerName: t.Peer.DisplayName,
			Unread:   t.UnreadCount,
			Active:   t.ID == in.Active,
		}
		if t.LastMessage != nil {
			row.Preview = t.LastMessage.Text
			row.PreviewAt = t.LastMessage.CreatedAt
			row.FromPeer = t.LastMessage.SenderRole != in.Viewer.Role
		}
		names[t.ID] = t.Peer.DisplayName
		vs.TotalUnread += t.UnreadCount
		vs.Threads = append(vs.Threads, row)
	}

	vs.Messages = make([]MessageView, 0, len(in.Messages))
	for _, m := range in.Messages {
		if m.ThreadIDFor(in.Viewer) != in.Active {
			continue
		}
		own := m.SenderRole == in.Viewer.Role
		name := m.SenderName
		if name == "" {
			if own {
				name = in.Viewer.DisplayName
			} else {
				name = names[in.Active]
			}
		}
		vs.Messages = append(vs.Messages, MessageView{
			ID:         m.ID,
			SenderName: name,
			Text:       m.Text,
			Own:        own,
			CreatedAt:  m.CreatedAt,
		})
	}
	return vs
}

// Adapter holds the latest ViewState. Only the controller publishes; views
// read Current or wait on Updates.
type Adapter struct {
	mu      sync.RWMutex
	state   ViewState
	updates chan struct{}
}

// NewAdapter returns an adapter in the idle phase.
func NewAdapter() *Adapter {
	return &Adapter{
		state:   ViewState{Phase: PhaseIdle},
		updates: make(chan struct{}, 1),
	}
}

// Publish replaces the current state and signals Updates. Signals coalesce.
func (a *Adapter) Publish(state ViewState) {
	a.mu.Lock()
	a.state = state
	a.mu.Unlock()

	select {
	case a.updates <- struct{}{}:
	default:
	}
}

// Current returns the latest state.
func (a *Adapter) Current() ViewState {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// TotalUnread is the aggregate unread count for navigation badges.
func (a *Adapter) TotalUnread() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state.TotalUnread
}

// Updates signals after every Publish. Readers should call Current.
func (a *Adapter) Updates() <-chan struct{} {
	return a.updates
}
