package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"staffchat/internal/models"
	"staffchat/internal/presenter"
	"staffchat/internal/syncer"
)

const helpText = `commands:
  /threads          list threads
  /open <peer id>   switch to a thread
  /refresh          reload the thread list
  /quit             exit
anything else is sent to the active thread`

// console renders view state as lines of text and turns stdin lines into
// controller commands.
type console struct {
	mu  sync.Mutex
	out io.Writer

	lastThreads string
	lastMsgID   int64
	lastActive  models.ThreadID
}

func newConsole(out io.Writer) *console {
	return &console{out: out}
}

// Notify implements syncer.Notifier.
func (c *console) Notify(_ context.Context, n syncer.Notice) {
	c.printf("! %s\n", n.Text)
}

func (c *console) render(ctx context.Context, view *presenter.Adapter) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-view.Updates():
			c.draw(view.Current())
		}
	}
}

func (c *console) draw(vs presenter.ViewState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if threads := threadSummary(vs); threads != c.lastThreads {
		c.lastThreads = threads
		fmt.Fprint(c.out, threads)
	}

	if vs.ActiveThreadID != c.lastActive {
		c.lastActive = vs.ActiveThreadID
		c.lastMsgID = 0
		fmt.Fprintf(c.out, "-- conversation with %d --\n", vs.ActiveThreadID)
	}
	for _, m := range vs.Messages {
		if m.ID <= c.lastMsgID {
			continue
		}
		c.lastMsgID = m.ID
		who := m.SenderName
		if m.Own {
			who = "you"
		}
		fmt.Fprintf(c.out, "[%s] %s: %s\n", m.CreatedAt.Local().Format("15:04"), who, m.Text)
	}
}

func threadSummary(vs presenter.ViewState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "== %s, %s, %d unread ==\n", vs.Phase, vs.Connection, vs.TotalUnread)
	for _, t := range vs.Threads {
		marker := " "
		if t.Active {
			marker = ">"
		}
		fmt.Fprintf(&b, "%s %d %s", marker, t.ID, t.PeerName)
		if t.Unread > 0 {
			fmt.Fprintf(&b, " (%d)", t.Unread)
		}
		if t.Preview != "" {
			fmt.Fprintf(&b, ": %s", t.Preview)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func (c *console) readCommands(ctx context.Context, in io.Reader, ctrl *syncer.Controller) {
	c.printf("%s\n", helpText)
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		quit, err := c.exec(ctx, ctrl, line)
		if err != nil {
			c.printf("! %v\n", err)
		}
		if quit || ctx.Err() != nil {
			return
		}
	}
}

func (c *console) exec(ctx context.Context, ctrl *syncer.Controller, line string) (bool, error) {
	if !strings.HasPrefix(line, "/") {
		return false, ctrl.Send(ctx, line)
	}
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/q":
		return true, nil
	case "/threads":
		c.mu.Lock()
		c.lastThreads = ""
		c.mu.Unlock()
		c.draw(ctrl.View().Current())
		return false, nil
	case "/refresh":
		return false, ctrl.Refresh(ctx)
	case "/open":
		if len(fields) != 2 {
			return false, errors.New("usage: /open <peer id>")
		}
		id, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return false, fmt.Errorf("bad peer id %q", fields[1])
		}
		return false, ctrl.SelectThread(ctx, models.ThreadID(id))
	default:
		return false, fmt.Errorf("unknown command %s", fields[0])
	}
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}
