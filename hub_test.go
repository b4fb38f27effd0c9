package server

import (
	"encoding/json"
	"io"
	"log"
	"testing"
	"time"

	"armada/server/internal/sim"
	"armada/server/internal/telemetry"
	"armada/server/logging"
)

func testHubConfig() ServerConfig {
	cfg := DefaultConfig()
	cfg.World.Width = 4096
	cfg.World.Height = 4096
	cfg.World.Seed = "hub-test"
	cfg.World.ShipCount = 0
	return cfg.Normalized()
}

func testHubDeps(now time.Time) sim.Deps {
	return sim.Deps{
		Logger:    telemetry.WrapLogger(log.New(io.Discard, "", 0)),
		Metrics:   telemetry.WrapMetrics(logging.NewMetrics()),
		Clock:     logging.ClockFunc(func() time.Time { return now }),
		Publisher: logging.NopPublisher(),
	}
}

func advanceHub(h *Hub, tick uint64, now time.Time) sim.LoopStepResult {
	return h.Loop().Advance(sim.LoopTickContext{Tick: tick, Now: now, Delta: 1.0 / 15.0})
}

func TestHubJoinSpawnsShipAndAcceptsGoals(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	hub := NewHub(testHubConfig(), testHubDeps(now))

	resp := hub.Join()
	if resp.ID != "ship-1" {
		t.Fatalf("join id = %q, want ship-1", resp.ID)
	}
	if resp.TickRate != DefaultTickRate {
		t.Fatalf("join tick rate = %d, want %d", resp.TickRate, DefaultTickRate)
	}
	if resp.WorldWidth != 4096 || resp.WorldHeight != 4096 {
		t.Fatalf("join world bounds = %v x %v", resp.WorldWidth, resp.WorldHeight)
	}

	result := advanceHub(hub, 1, now)
	if len(result.Snapshot.Ships) != 1 || result.Snapshot.Ships[0].ID != "ship-1" {
		t.Fatalf("snapshot after join = %+v", result.Snapshot.Ships)
	}

	cmd, ok, reason := hub.SetGoal("ship-1", 3000, 3000)
	if !ok {
		t.Fatalf("set goal rejected: %s", reason)
	}
	if cmd.Type != sim.CommandSetGoal || cmd.ActorID != "ship-1" {
		t.Fatalf("unexpected staged command: %+v", cmd)
	}
	if cmd.OriginTick != hub.CurrentTick()+1 {
		t.Fatalf("origin tick = %d, current = %d", cmd.OriginTick, hub.CurrentTick())
	}

	result = advanceHub(hub, 2, now)
	ship := result.Snapshot.Ships[0]
	if !ship.HasGoal || ship.GoalX != 3000 || ship.GoalY != 3000 {
		t.Fatalf("goal not applied: %+v", ship)
	}

	if _, ok, _ := hub.ClearGoal("ship-1"); !ok {
		t.Fatalf("clear goal rejected")
	}
	result = advanceHub(hub, 3, now)
	if result.Snapshot.Ships[0].HasGoal {
		t.Fatalf("goal not cleared: %+v", result.Snapshot.Ships[0])
	}
}

func TestHubRejectsUnknownActor(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	hub := NewHub(testHubConfig(), testHubDeps(now))

	if _, ok, reason := hub.SetGoal("ghost", 1, 1); ok || reason != CommandRejectUnknownActor {
		t.Fatalf("set goal for unknown actor: ok=%v reason=%q", ok, reason)
	}
	if _, ok, reason := hub.ClearGoal("ghost"); ok || reason != CommandRejectUnknownActor {
		t.Fatalf("clear goal for unknown actor: ok=%v reason=%q", ok, reason)
	}
	if _, ok := hub.UpdateHeartbeat("ghost", now, now.UnixMilli()); ok {
		t.Fatalf("heartbeat for unknown actor accepted")
	}
	if _, ok := hub.Subscribe("ghost", nil); ok {
		t.Fatalf("subscribe for unknown actor accepted")
	}
}

func TestHubHeartbeatTracksRTT(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	hub := NewHub(testHubConfig(), testHubDeps(now))
	resp := hub.Join()

	clientSent := now.Add(-40 * time.Millisecond).UnixMilli()
	rtt, ok := hub.UpdateHeartbeat(resp.ID, now, clientSent)
	if !ok {
		t.Fatalf("heartbeat rejected for joined client")
	}
	if rtt != 40*time.Millisecond {
		t.Fatalf("rtt = %v, want 40ms", rtt)
	}

	clients := hub.DiagnosticsSnapshot()
	if len(clients) != 1 {
		t.Fatalf("diagnostics clients = %+v", clients)
	}
	if clients[0].ID != resp.ID || clients[0].RTTMillis != 40 {
		t.Fatalf("diagnostics row = %+v", clients[0])
	}
	if clients[0].LastHeartbeat != now.UnixMilli() {
		t.Fatalf("last heartbeat = %d, want %d", clients[0].LastHeartbeat, now.UnixMilli())
	}
}

func TestHubDisconnectSchedulesDespawn(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	hub := NewHub(testHubConfig(), testHubDeps(now))
	resp := hub.Join()
	advanceHub(hub, 1, now)

	if !hub.Disconnect(resp.ID) {
		t.Fatalf("disconnect of joined client failed")
	}
	if hub.Disconnect(resp.ID) {
		t.Fatalf("second disconnect reported success")
	}

	result := advanceHub(hub, 2, now)
	if len(result.RemovedShips) != 1 || result.RemovedShips[0] != resp.ID {
		t.Fatalf("removed ships = %v", result.RemovedShips)
	}
	if len(result.Snapshot.Ships) != 0 {
		t.Fatalf("roster after despawn = %+v", result.Snapshot.Ships)
	}
}

func TestHubAfterStepPublishesState(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	hub := NewHub(testHubConfig(), testHubDeps(now))
	hub.Join()

	result := advanceHub(hub, 7, now)
	result.Budget = time.Second / DefaultTickRate
	hub.afterStep(result)

	state := hub.LatestState()
	if state.Tick != 7 {
		t.Fatalf("latest state tick = %d, want 7", state.Tick)
	}
	if len(state.Ships) != 1 {
		t.Fatalf("latest state ships = %+v", state.Ships)
	}

	data, err := hub.MarshalState()
	if err != nil {
		t.Fatalf("marshal state: %v", err)
	}
	var frame map[string]any
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if frame["type"] != "state" || frame["tick"].(float64) != 7 {
		t.Fatalf("state frame = %v", frame)
	}
}
