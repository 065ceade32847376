package bus

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/appforge/appforge/internal/common/logger"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      "error",
		Format:     "json",
		OutputPath: "stdout",
	})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	return log
}

func TestNewMemoryEventBus(t *testing.T) {
	bus := NewMemoryEventBus(newTestLogger(t))

	if bus == nil {
		t.Fatal("Expected non-nil bus")
	}
	if !bus.IsConnected() {
		t.Error("Expected bus to be connected")
	}
}

func TestMemoryEventBus_PublishSubscribe(t *testing.T) {
	bus := NewMemoryEventBus(newTestLogger(t))
	defer bus.Close()

	ctx := context.Background()
	received := make(chan *Event, 1)

	sub, err := bus.Subscribe("project.status_changed", func(ctx context.Context, event *Event) error {
		received <- event
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer func() {
		_ = sub.Unsubscribe()
	}()

	event := NewEvent("project.status_changed", "test", map[string]interface{}{"project_id": "p1"})
	if err := bus.Publish(ctx, "project.status_changed", event); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case got := <-received:
		if got.ID != event.ID {
			t.Errorf("expected event %s, got %s", event.ID, got.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestMemoryEventBus_WildcardSubjects(t *testing.T) {
	bus := NewMemoryEventBus(newTestLogger(t))
	defer bus.Close()

	ctx := context.Background()
	var count atomic.Int32

	if _, err := bus.Subscribe("project.>", func(ctx context.Context, event *Event) error {
		count.Add(1)
		return nil
	}); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	subjects := []string{"project.created", "project.output", "conversation.created"}
	for _, s := range subjects {
		if err := bus.Publish(ctx, s, NewEvent(s, "test", nil)); err != nil {
			t.Fatalf("Publish %s failed: %v", s, err)
		}
	}

	deadline := time.After(time.Second)
	for count.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("expected 2 deliveries, got %d", count.Load())
		case <-time.After(10 * time.Millisecond):
		}
	}

	// Give a stray conversation.* delivery a chance to land, then re-check.
	time.Sleep(50 * time.Millisecond)
	if got := count.Load(); got != 2 {
		t.Errorf("expected exactly 2 deliveries, got %d", got)
	}
}

func TestMemoryEventBus_Unsubscribe(t *testing.T) {
	bus := NewMemoryEventBus(newTestLogger(t))
	defer bus.Close()

	ctx := context.Background()
	var count atomic.Int32

	sub, err := bus.Subscribe("project.created", func(ctx context.Context, event *Event) error {
		count.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if err := sub.Unsubscribe(); err != nil {
		t.Fatalf("Unsubscribe failed: %v", err)
	}
	if sub.IsValid() {
		t.Error("expected subscription to be invalid after unsubscribe")
	}

	if err := bus.Publish(ctx, "project.created", NewEvent("project.created", "test", nil)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	if got := count.Load(); got != 0 {
		t.Errorf("expected 0 deliveries after unsubscribe, got %d", got)
	}
}

func TestMemoryEventBus_Close(t *testing.T) {
	bus := NewMemoryEventBus(newTestLogger(t))
	bus.Close()

	if bus.IsConnected() {
		t.Error("expected bus to be disconnected after close")
	}
	if err := bus.Publish(context.Background(), "project.created", NewEvent("project.created", "test", nil)); err == nil {
		t.Error("expected publish on closed bus to fail")
	}
}
