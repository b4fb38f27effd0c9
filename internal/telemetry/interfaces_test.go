package telemetry

import (
	"bytes"
	"log"
	"testing"

	"armada/server/logging"
)

func TestWrapLogger(t *testing.T) {
	t.Run("nil logger", func(t *testing.T) {
		logger := WrapLogger(nil)
		logger.Printf("ignored %d", 42)
	})

	t.Run("forwards to logger", func(t *testing.T) {
		var buf bytes.Buffer
		base := log.New(&buf, "", 0)
		logger := WrapLogger(base)
		logger.Printf("hello %s", "world")
		if got := buf.String(); got != "hello world\n" {
			t.Fatalf("unexpected log output: %q", got)
		}
	})
}

func TestWrapMetrics(t *testing.T) {
	metrics := logging.Metrics{}
	adapter := WrapMetrics(&metrics)

	adapter.Add("ticks_total", 2)
	adapter.Add("ticks_total", 3)
	adapter.Store("ships_active", 5)

	snapshot := metrics.TelemetrySnapshot()
	if got := snapshot["ticks_total"]; got != 5 {
		t.Fatalf("unexpected counter value: %d", got)
	}
	if got := snapshot["ships_active"]; got != 5 {
		t.Fatalf("unexpected gauge value: %d", got)
	}

	// Ensure nil metrics do not panic.
	var nilAdapter Metrics = WrapMetrics(nil)
	nilAdapter.Add("ignored", 1)
	nilAdapter.Store("ignored", 1)
}
