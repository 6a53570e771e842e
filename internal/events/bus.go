// Package events is the in-process publish/subscribe channel through which
// front-ends and bridges observe engine state changes.
package events

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/KotFed0t/stock_market_sim/utils"
)

type Handler func(ctx context.Context, e Event)

type Subscription struct {
	id   uint64
	kind Kind // empty for catch-all subscriptions
	bus  *Bus
}

// Unsubscribe is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.bus.remove(s)
}

type subscriber struct {
	id      uint64
	handler Handler
}

// Bus delivers every published event synchronously to its subscribers in
// subscription order. Catch-all subscribers are called after kind subscribers.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	byKind map[Kind][]subscriber
	all    []subscriber
	now    func() time.Time
}

func NewBus() *Bus {
	return &Bus{
		byKind: make(map[Kind][]subscriber),
		now:    time.Now,
	}
}

func (b *Bus) Subscribe(kind Kind, h Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.byKind[kind] = append(b.byKind[kind], subscriber{id: b.nextID, handler: h})
	return &Subscription{id: b.nextID, kind: kind, bus: b}
}

func (b *Bus) SubscribeAll(h Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.all = append(b.all, subscriber{id: b.nextID, handler: h})
	return &Subscription{id: b.nextID, bus: b}
}

func (b *Bus) remove(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if s.kind == "" {
		b.all = without(b.all, s.id)
		return
	}
	b.byKind[s.kind] = without(b.byKind[s.kind], s.id)
}

func without(list []subscriber, id uint64) []subscriber {
	out := make([]subscriber, 0, len(list))
	for _, sub := range list {
		if sub.id != id {
			out = append(out, sub)
		}
	}
	return out
}

func (b *Bus) Publish(ctx context.Context, kind Kind, payload any) {
	e := Event{Kind: kind, Timestamp: b.now(), Payload: payload}

	b.mu.RLock()
	targets := make([]subscriber, 0, len(b.byKind[kind])+len(b.all))
	targets = append(targets, b.byKind[kind]...)
	targets = append(targets, b.all...)
	b.mu.RUnlock()

	for _, sub := range targets {
		b.deliver(ctx, sub, e)
	}
}

func (b *Bus) deliver(ctx context.Context, sub subscriber, e Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error(
				"Panic recovered in event handler",
				slog.String("rqID", utils.GetRequestIDFromCtx(ctx)),
				slog.String("kind", string(e.Kind)),
				slog.Any("panic", r),
				slog.String("stacktrace", string(debug.Stack())),
			)
		}
	}()

	sub.handler(ctx, e)
}
