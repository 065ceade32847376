package websocket

import (
	"testing"
	"time"

	"github.com/appforge/appforge/internal/common/logger"
	"github.com/appforge/appforge/internal/events"
	"github.com/appforge/appforge/internal/events/bus"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "json", OutputPath: "stdout"})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	return log
}

func TestNotificationFromEvent(t *testing.T) {
	event := bus.NewEvent(events.ProjectOutput, "project-store", map[string]interface{}{
		"project_id": "p-1",
		"data":       "hello\n",
	})

	n := notificationFromEvent(event)
	if n.Type != events.ProjectOutput {
		t.Errorf("expected type %q, got %q", events.ProjectOutput, n.Type)
	}
	if n.ProjectID != "p-1" {
		t.Errorf("expected project id p-1, got %q", n.ProjectID)
	}
	if n.Data["data"] != "hello\n" {
		t.Errorf("unexpected data payload: %v", n.Data)
	}
	if n.Timestamp.IsZero() {
		t.Error("expected a timestamp")
	}
}

func TestClientWants(t *testing.T) {
	hub := NewHub(nil, testLogger(t))
	client := NewClient("c-1", nil, hub, testLogger(t))

	// No subscriptions: receive everything.
	if !client.wants("p-1") {
		t.Error("unsubscribed client should receive all projects")
	}
	if !client.wants("") {
		t.Error("unsubscribed client should receive unscoped notifications")
	}

	hub.SubscribeToProject(client, "p-1")

	if !client.wants("p-1") {
		t.Error("subscribed client should receive its project")
	}
	if client.wants("p-2") {
		t.Error("subscribed client should not receive other projects")
	}
	if client.wants("") {
		t.Error("subscribed client should not receive unscoped notifications")
	}

	hub.UnsubscribeFromProject(client, "p-1")
	if !client.wants("p-2") {
		t.Error("after unsubscribing the client is back on the firehose")
	}
}

func TestHubDropsWhenQueueFull(t *testing.T) {
	hub := NewHub(nil, testLogger(t))

	// The hub is not running, so the queue fills and Notify must not block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			hub.Notify(&Notification{Type: events.ProjectOutput, Timestamp: time.Now()})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Notify blocked on a full queue")
	}
}
