package eventbus

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Majhi12/atomic-crm/internal/domain"
)

func newTestBus() *Bus {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestPublishSubscribe(t *testing.T) {
	bus := newTestBus()

	var got atomic.Int32
	bus.Subscribe(domain.EventDealCreated, func(_ context.Context, e domain.Event) {
		if e.Type == domain.EventDealCreated {
			got.Add(1)
		}
	})
	bus.Subscribe(domain.EventNoteAdded, func(context.Context, domain.Event) {
		t.Error("handler for another type must not run")
	})

	bus.Publish(context.Background(), domain.Event{Type: domain.EventDealCreated})
	bus.Close()
	if got.Load() != 1 {
		t.Fatalf("expected 1, got %d", got.Load())
	}
}

func TestSubscribeAllAndUnsubscribe(t *testing.T) {
	bus := newTestBus()

	var all, typed atomic.Int32
	unsubAll := bus.SubscribeAll(func(context.Context, domain.Event) { all.Add(1) })
	unsubTyped := bus.Subscribe(domain.EventToolCallStarted, func(context.Context, domain.Event) { typed.Add(1) })

	bus.Publish(context.Background(), domain.Event{Type: domain.EventToolCallStarted})
	bus.Publish(context.Background(), domain.Event{Type: domain.EventLLMCallStarted})
	bus.wg.Wait()

	unsubAll()
	unsubTyped()
	bus.Publish(context.Background(), domain.Event{Type: domain.EventToolCallStarted})
	bus.Close()

	if all.Load() != 2 || typed.Load() != 1 {
		t.Fatalf("all=%d typed=%d, want 2 and 1", all.Load(), typed.Load())
	}
}

func TestPublishFillsEnvelope(t *testing.T) {
	bus := newTestBus()
	fixed := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	bus.now = func() time.Time { return fixed }

	var mu sync.Mutex
	var got domain.Event
	bus.SubscribeAll(func(_ context.Context, e domain.Event) {
		mu.Lock()
		got = e
		mu.Unlock()
	})

	ctx := domain.ContextWithRequestID(context.Background(), "01JREQ")
	bus.Publish(ctx, domain.Event{Type: domain.EventMessageReceived})
	bus.Close()

	if !got.Timestamp.Equal(fixed) || got.RequestID != "01JREQ" {
		t.Errorf("event = %+v", got)
	}
}

func TestHandlersOutliveRequestContext(t *testing.T) {
	bus := newTestBus()

	release := make(chan struct{})
	var ctxErr atomic.Value
	bus.SubscribeAll(func(ctx context.Context, _ domain.Event) {
		<-release
		ctxErr.Store(ctx.Err() == nil)
	})

	ctx, cancel := context.WithCancel(context.Background())
	bus.Publish(ctx, domain.Event{Type: domain.EventDealStaged})
	cancel()
	close(release)
	bus.Close()

	if ok, _ := ctxErr.Load().(bool); !ok {
		t.Error("handler context should not be cancelled with the request")
	}
}

func TestPanickingHandlerRecovered(t *testing.T) {
	bus := newTestBus()
	var ran atomic.Bool
	bus.SubscribeAll(func(context.Context, domain.Event) { panic("boom") })
	bus.SubscribeAll(func(context.Context, domain.Event) { ran.Store(true) })

	bus.Publish(context.Background(), domain.Event{Type: domain.EventAssistantError})
	bus.Close()
	if !ran.Load() {
		t.Error("second handler should still run")
	}
}

func TestPublishAfterCloseIsDropped(t *testing.T) {
	bus := newTestBus()
	var got atomic.Int32
	bus.SubscribeAll(func(context.Context, domain.Event) { got.Add(1) })
	bus.Close()
	bus.Close()

	bus.Publish(context.Background(), domain.Event{Type: domain.EventMessageSent})
	if got.Load() != 0 {
		t.Errorf("got %d events after close", got.Load())
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func TestLogCRMEvents(t *testing.T) {
	bus := newTestBus()
	var out syncBuffer
	stop := LogCRMEvents(bus, slog.New(slog.NewTextHandler(&out, nil)))

	payload, _ := json.Marshal(map[string]int64{"deal_id": 9})
	bus.Publish(context.Background(), domain.Event{Type: domain.EventDealCreated, Payload: payload})
	bus.Publish(context.Background(), domain.Event{Type: domain.EventLLMCallStarted})
	bus.wg.Wait()

	stop()
	bus.Publish(context.Background(), domain.Event{Type: domain.EventNoteAdded})
	bus.Close()

	logs := out.String()
	if strings.Count(logs, "crm record changed") != 1 {
		t.Errorf("logs = %s", logs)
	}
	if !strings.Contains(logs, "crm.deal.created") {
		t.Errorf("missing event type: %s", logs)
	}
}
