// Package eventbus is the in-process publisher of assistant and CRM events.
package eventbus

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Majhi12/atomic-crm/internal/domain"
)

type subscription struct {
	id      uint64
	handler domain.EventHandler
}

// Bus is an in-process, goroutine-safe event bus.
type Bus struct {
	mu      sync.RWMutex
	typed   map[domain.EventType][]subscription
	allSubs []subscription
	nextID  atomic.Uint64
	logger  *slog.Logger
	wg      sync.WaitGroup
	closed  atomic.Bool
	now     func() time.Time
}

var _ domain.EventBus = (*Bus)(nil)

// New creates an event bus.
func New(logger *slog.Logger) *Bus {
	return &Bus{
		typed:  make(map[domain.EventType][]subscription),
		logger: logger,
		now:    time.Now,
	}
}

// Publish fans event out to its typed subscribers and to every
// all-event subscriber, each on its own goroutine. Handlers outlive the
// publishing request: they receive ctx's values but not its cancellation.
// A zero Timestamp or empty RequestID is filled from the clock and ctx.
func (b *Bus) Publish(ctx context.Context, event domain.Event) {
	if b.closed.Load() {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = b.now()
	}
	if event.RequestID == "" {
		event.RequestID = domain.RequestIDFromContext(ctx)
	}

	b.mu.RLock()
	subs := make([]subscription, 0, len(b.typed[event.Type])+len(b.allSubs))
	subs = append(subs, b.typed[event.Type]...)
	subs = append(subs, b.allSubs...)
	b.mu.RUnlock()

	detached := context.WithoutCancel(ctx)
	for _, sub := range subs {
		b.dispatch(detached, event, sub)
	}
}

func (b *Bus) dispatch(ctx context.Context, event domain.Event, sub subscription) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				b.logger.Error("event handler panicked", "event", string(event.Type), "panic", r)
			}
		}()
		sub.handler(ctx, event)
	}()
}

// Subscribe registers a handler for one event type and returns its
// unsubscribe function.
func (b *Bus) Subscribe(eventType domain.EventType, handler domain.EventHandler) func() {
	id := b.nextID.Add(1)

	b.mu.Lock()
	b.typed[eventType] = append(b.typed[eventType], subscription{id: id, handler: handler})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.typed[eventType] = without(b.typed[eventType], id)
	}
}

// SubscribeAll registers a handler for every event and returns its
// unsubscribe function.
func (b *Bus) SubscribeAll(handler domain.EventHandler) func() {
	id := b.nextID.Add(1)

	b.mu.Lock()
	b.allSubs = append(b.allSubs, subscription{id: id, handler: handler})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.allSubs = without(b.allSubs, id)
	}
}

func without(subs []subscription, id uint64) []subscription {
	out := subs[:0:0]
	for _, s := range subs {
		if s.id != id {
			out = append(out, s)
		}
	}
	return out
}

// Close stops new publishes and waits for in-flight handlers. It is
// idempotent.
func (b *Bus) Close() {
	if b.closed.Swap(true) {
		return
	}
	b.wg.Wait()
}

// crmEvents are the record-changing events LogCRMEvents reports.
var crmEvents = []domain.EventType{
	domain.EventContactCreated,
	domain.EventNoteAdded,
	domain.EventDealCreated,
	domain.EventDealStaged,
}

// LogCRMEvents subscribes a handler that logs every CRM write at info
// level. It returns a function removing all of its subscriptions.
func LogCRMEvents(b *Bus, logger *slog.Logger) func() {
	unsubs := make([]func(), 0, len(crmEvents))
	for _, t := range crmEvents {
		unsubs = append(unsubs, b.Subscribe(t, func(_ context.Context, e domain.Event) {
			logger.Info("crm record changed",
				"event", string(e.Type),
				"request_id", e.RequestID,
				"payload", string(e.Payload),
			)
		}))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}
