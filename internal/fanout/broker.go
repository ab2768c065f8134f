// Package fanout delivers stored messages to every websocket hub that may
// have a participant of the message's thread connected.
package fanout

import (
	"context"
	"sync"

	"staffchat/internal/models"
)

// DeliverFunc receives every message published through a Broker.
type DeliverFunc func(msg models.Message)

// Broker distributes stored messages to subscribers.
type Broker interface {
	Publish(ctx context.Context, msg models.Message) error
	// Subscribe registers deliver and blocks until ctx is done.
	Subscribe(ctx context.Context, deliver DeliverFunc) error
	Close() error
}

// Local is an in-process Broker for single-replica deployments.
type Local struct {
	mu   sync.RWMutex
	subs map[int]DeliverFunc
	next int
}

// NewLocal returns an empty in-process broker.
func NewLocal() *Local {
	return &Local{subs: map[int]DeliverFunc{}}
}

func (l *Local) Publish(ctx context.Context, msg models.Message) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, deliver := range l.subs {
		deliver(msg)
	}
	return nil
}

func (l *Local) Subscribe(ctx context.Context, deliver DeliverFunc) error {
	l.mu.Lock()
	id := l.next
	l.next++
	l.subs[id] = deliver
	l.mu.Unlock()

	<-ctx.Done()

	l.mu.Lock()
	delete(l.subs, id)
	l.mu.Unlock()
	return nil
}

func (l *Local) Close() error {
	return nil
}
