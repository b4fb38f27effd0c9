package net

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"armada/server"
	"armada/server/internal/sim"
	"armada/server/internal/telemetry"
	"armada/server/logging"
)

func testServer(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := server.DefaultConfig()
	cfg.World.Seed = "http-test"
	cfg.World.ShipCount = 0
	hub := server.NewHub(cfg, sim.Deps{
		Logger:    telemetry.WrapLogger(log.New(io.Discard, "", 0)),
		Metrics:   telemetry.WrapMetrics(logging.NewMetrics()),
		Clock:     logging.SystemClock{},
		Publisher: logging.NopPublisher(),
	})
	handler := NewHTTPHandler(hub, HTTPHandlerConfig{Logger: log.New(io.Discard, "", 0)})
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestHealthEndpoint(t *testing.T) {
	srv := testServer(t)
	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("health request: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "ok" {
		t.Fatalf("health = %d %q", resp.StatusCode, body)
	}
}

func TestJoinEndpoint(t *testing.T) {
	srv := testServer(t)

	resp, err := http.Get(srv.URL + "/join")
	if err != nil {
		t.Fatalf("join GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("join GET status = %d, want 405", resp.StatusCode)
	}

	resp, err = http.Post(srv.URL+"/join", "application/json", nil)
	if err != nil {
		t.Fatalf("join POST: %v", err)
	}
	defer resp.Body.Close()
	var frame map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&frame); err != nil {
		t.Fatalf("decode join: %v", err)
	}
	if frame["type"] != "join" || frame["id"] != "ship-1" {
		t.Fatalf("join payload = %v", frame)
	}
	if frame["tickRate"].(float64) != float64(server.DefaultTickRate) {
		t.Fatalf("join tick rate = %v", frame["tickRate"])
	}
}

func TestDiagnosticsEndpoint(t *testing.T) {
	srv := testServer(t)
	resp, err := http.Get(srv.URL + "/diagnostics")
	if err != nil {
		t.Fatalf("diagnostics request: %v", err)
	}
	defer resp.Body.Close()
	var frame map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&frame); err != nil {
		t.Fatalf("decode diagnostics: %v", err)
	}
	if frame["status"] != "ok" {
		t.Fatalf("diagnostics status = %v", frame["status"])
	}
	if frame["tickRate"].(float64) != float64(server.DefaultTickRate) {
		t.Fatalf("diagnostics tick rate = %v", frame["tickRate"])
	}
}

func TestTuningEndpointNormalizesPayload(t *testing.T) {
	srv := testServer(t)

	resp, err := http.Post(srv.URL+"/nav/tuning", "application/json", strings.NewReader(`{"baseForce":450}`))
	if err != nil {
		t.Fatalf("tuning POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("tuning status = %d", resp.StatusCode)
	}
	var frame struct {
		Status   string         `json:"status"`
		Tunables map[string]any `json:"tunables"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&frame); err != nil {
		t.Fatalf("decode tuning: %v", err)
	}
	if frame.Status != "ok" {
		t.Fatalf("tuning response = %+v", frame)
	}
	if frame.Tunables["baseForce"].(float64) != 450 {
		t.Fatalf("base force = %v", frame.Tunables["baseForce"])
	}
	// Omitted fields come back filled with defaults.
	if frame.Tunables["cellSize"].(float64) != 128 {
		t.Fatalf("cell size = %v", frame.Tunables["cellSize"])
	}
}
