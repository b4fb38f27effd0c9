package logging_test

import (
	"context"
	"testing"
	"time"

	"armada/server/logging"
	"armada/server/logging/sinks"
)

func newTestRouter(t *testing.T, cfg logging.Config) (*logging.Router, *sinks.MemorySink) {
	t.Helper()
	fixed := time.UnixMilli(1700000000000)
	memory := sinks.NewMemorySink()
	router, err := logging.NewRouter(
		logging.ClockFunc(func() time.Time { return fixed }),
		cfg,
		[]logging.NamedSink{{Name: "memory", Sink: memory}},
	)
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	return router, memory
}

func TestRouterDeliversToSink(t *testing.T) {
	cfg := logging.DefaultConfig()
	cfg.MinimumSeverity = logging.SeverityDebug
	cfg.Fields = map[string]any{"service": "navigation"}
	router, memory := newTestRouter(t, cfg)

	router.Publish(context.Background(), logging.Event{
		Type:     "navigation.replan",
		Tick:     12,
		Actor:    logging.EntityRef{ID: "ship-1", Kind: logging.EntityKindShip},
		Severity: logging.SeverityInfo,
		Category: logging.CategoryNavigation,
	})

	if err := router.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}

	events := memory.Events()
	if len(events) != 1 {
		t.Fatalf("delivered events = %d, want 1", len(events))
	}
	event := events[0]
	if event.Type != "navigation.replan" || event.Tick != 12 {
		t.Fatalf("unexpected event: %+v", event)
	}
	if event.Time.IsZero() {
		t.Fatalf("router did not stamp event time")
	}
	if event.Extra["service"] != "navigation" {
		t.Fatalf("static fields not applied: %+v", event.Extra)
	}

	stats := router.Stats()
	if stats.EventsTotal != 1 || stats.DroppedTotal != 0 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestRouterFiltersBelowMinimumSeverity(t *testing.T) {
	cfg := logging.DefaultConfig()
	cfg.MinimumSeverity = logging.SeverityInfo
	router, memory := newTestRouter(t, cfg)

	router.Publish(context.Background(), logging.Event{
		Type:     "navigation.goal_accepted",
		Severity: logging.SeverityDebug,
	})

	if err := router.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if events := memory.Events(); len(events) != 0 {
		t.Fatalf("filtered event was delivered: %+v", events)
	}
	if stats := router.Stats(); stats.EventsTotal != 0 {
		t.Fatalf("filtered event was counted: %+v", stats)
	}
}

func TestRouterIgnoresPublishAfterClose(t *testing.T) {
	router, memory := newTestRouter(t, logging.DefaultConfig())
	if err := router.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}

	router.Publish(context.Background(), logging.Event{
		Type:     "navigation.escape",
		Severity: logging.SeverityInfo,
	})
	if events := memory.Events(); len(events) != 0 {
		t.Fatalf("event accepted after close: %+v", events)
	}
}

func TestRouterDropsEventsWithoutType(t *testing.T) {
	router, memory := newTestRouter(t, logging.DefaultConfig())

	router.Publish(context.Background(), logging.Event{Severity: logging.SeverityWarn})

	if err := router.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if events := memory.Events(); len(events) != 0 {
		t.Fatalf("untyped event was delivered: %+v", events)
	}
}
