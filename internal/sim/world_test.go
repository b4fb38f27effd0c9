package sim

import (
	"io"
	"log"
	"testing"

	"github.com/jakecoffman/cp"

	"armada/server/internal/nav"
	"armada/server/internal/telemetry"
	"armada/server/logging"
)

const testDelta = 1.0 / 15.0

func testDeps() Deps {
	return Deps{
		Logger:    telemetry.WrapLogger(log.New(io.Discard, "", 0)),
		Metrics:   telemetry.WrapMetrics(logging.NewMetrics()),
		Publisher: logging.NopPublisher(),
	}
}

func testWorldConfig() WorldConfig {
	return WorldConfig{
		Width:               8192,
		Height:              8192,
		Seed:                "world-test",
		MoveSpeed:           100,
		AvoidanceRadius:     300,
		LookAheadMultiplier: 3,
		Nav:                 nav.DefaultConfig(),
	}
}

func TestWorldSpawnAndRemove(t *testing.T) {
	world := NewWorld(testWorldConfig(), testDeps())

	ship := world.SpawnShip("alpha", cp.Vector{X: 1000, Y: 1000}, true)
	if ship == nil {
		t.Fatalf("spawn failed")
	}
	if ship.Position() != (cp.Vector{X: 1000, Y: 1000}) {
		t.Fatalf("spawn position = %+v", ship.Position())
	}
	// Same id again returns the existing ship.
	if again := world.SpawnShip("alpha", cp.Vector{X: 9, Y: 9}, true); again != ship {
		t.Fatalf("duplicate spawn created a second ship")
	}

	snapshot := world.Snapshot()
	if len(snapshot.Ships) != 1 || snapshot.Ships[0].ID != "alpha" {
		t.Fatalf("unexpected snapshot roster: %+v", snapshot.Ships)
	}

	if !world.RemoveShip("alpha") {
		t.Fatalf("remove failed")
	}
	if world.RemoveShip("alpha") {
		t.Fatalf("second remove should report false")
	}
	removed := world.RemovedShips()
	if len(removed) != 1 || removed[0] != "alpha" {
		t.Fatalf("removed = %v, want [alpha]", removed)
	}
	if world.RemovedShips() != nil {
		t.Fatalf("removed ids reported twice")
	}
}

func TestWorldPreSpawnsRoster(t *testing.T) {
	cfg := testWorldConfig()
	cfg.ShipCount = 4
	world := NewWorld(cfg, testDeps())

	snapshot := world.Snapshot()
	if len(snapshot.Ships) != 4 {
		t.Fatalf("roster size = %d, want 4", len(snapshot.Ships))
	}
	margin := cfg.Nav.EdgeMargin
	for _, ship := range snapshot.Ships {
		if ship.X < margin || ship.X > cfg.Width-margin || ship.Y < margin || ship.Y > cfg.Height-margin {
			t.Fatalf("ship %s spawned outside the interior: (%.0f, %.0f)", ship.ID, ship.X, ship.Y)
		}
	}

	// Same seed, same spawn points.
	other := NewWorld(cfg, testDeps()).Snapshot()
	for i := range snapshot.Ships {
		if snapshot.Ships[i].X != other.Ships[i].X || snapshot.Ships[i].Y != other.Ships[i].Y {
			t.Fatalf("seeded spawn diverged for %s", snapshot.Ships[i].ID)
		}
	}
}

func TestWorldShipReachesGoal(t *testing.T) {
	world := NewWorld(testWorldConfig(), testDeps())
	world.SpawnShip("alpha", cp.Vector{X: 1000, Y: 1000}, true)

	goal := cp.Vector{X: 2500, Y: 1400}
	if err := world.Apply([]Command{{
		ActorID: "alpha",
		Type:    CommandSetGoal,
		SetGoal: &SetGoalCommand{TargetX: goal.X, TargetY: goal.Y},
	}}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	ship, _ := world.Ship("alpha")
	arrived := false
	for i := 0; i < 600; i++ {
		world.Step(testDelta)
		if ship.atGoal {
			arrived = true
			break
		}
	}
	if !arrived {
		t.Fatalf("ship never settled at the goal, final position %+v", ship.Position())
	}
	if d := ship.Position().Distance(goal); d > world.cfg.Nav.WaypointReach {
		t.Fatalf("settled %.1f units from the goal, reach is %.1f", d, world.cfg.Nav.WaypointReach)
	}

	snapshot := world.Snapshot()
	entry := snapshot.Ships[0]
	if !entry.AtGoal || entry.HasGoal || entry.Moving {
		t.Fatalf("parked ship snapshot wrong: %+v", entry)
	}
}

func TestWorldShipsCrossWithoutColliding(t *testing.T) {
	world := NewWorld(testWorldConfig(), testDeps())
	world.SpawnShip("east", cp.Vector{X: 2000, Y: 4000}, true)
	world.SpawnShip("west", cp.Vector{X: 6000, Y: 4000}, true)

	commands := []Command{
		{ActorID: "east", Type: CommandSetGoal, SetGoal: &SetGoalCommand{TargetX: 6000, TargetY: 4000}},
		{ActorID: "west", Type: CommandSetGoal, SetGoal: &SetGoalCommand{TargetX: 2000, TargetY: 4000}},
	}
	if err := world.Apply(commands); err != nil {
		t.Fatalf("apply: %v", err)
	}

	east, _ := world.Ship("east")
	west, _ := world.Ship("west")
	minSeparation := east.Position().Distance(west.Position())
	for i := 0; i < 2000; i++ {
		world.Step(testDelta)
		if d := east.Position().Distance(west.Position()); d < minSeparation {
			minSeparation = d
		}
		if east.atGoal && west.atGoal {
			break
		}
	}

	if !east.atGoal || !west.atGoal {
		t.Fatalf("ships never settled: east=%+v west=%+v", east.Position(), west.Position())
	}
	if minSeparation < 50 {
		t.Fatalf("ships passed %.1f units apart", minSeparation)
	}
}

func TestWorldReportsStuckShipInSnapshot(t *testing.T) {
	cfg := testWorldConfig()
	cfg.MoveSpeed = 1
	world := NewWorld(cfg, testDeps())
	world.SpawnShip("alpha", cp.Vector{X: 1000, Y: 1000}, true)

	if err := world.Apply([]Command{{
		ActorID: "alpha",
		Type:    CommandSetGoal,
		SetGoal: &SetGoalCommand{TargetX: 7000, TargetY: 7000},
	}}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	// At one unit per second the ship cannot beat the progress epsilon, so
	// the no-progress watchdog trips after three seconds of simulated time
	// and the broadcast payload has to say so.
	sawStuck := false
	for i := 0; i < 10; i++ {
		world.Step(0.5)
		if world.Snapshot().Ships[0].Stuck {
			sawStuck = true
			break
		}
	}
	if !sawStuck {
		t.Fatalf("snapshot never reported the ship stuck")
	}
}

func TestWorldSetGoalClampsToInterior(t *testing.T) {
	world := NewWorld(testWorldConfig(), testDeps())
	world.SpawnShip("alpha", cp.Vector{X: 4000, Y: 4000}, true)

	if err := world.Apply([]Command{{
		ActorID: "alpha",
		Type:    CommandSetGoal,
		SetGoal: &SetGoalCommand{TargetX: -500, TargetY: 9000},
	}}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	entry := world.Snapshot().Ships[0]
	if entry.GoalX != 128 || entry.GoalY != 8064 {
		t.Fatalf("goal not clamped: (%.0f, %.0f)", entry.GoalX, entry.GoalY)
	}
}

func TestWorldTuneSwapsNavigationTunables(t *testing.T) {
	world := NewWorld(testWorldConfig(), testDeps())

	tuned := nav.DefaultConfig()
	tuned.WaypointReach = 150
	tuned.BaseForce = 450
	if err := world.Apply([]Command{{Type: CommandTune, Tune: &TuneCommand{Nav: tuned}}}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	got := world.Navigator().Config()
	if got.WaypointReach != 150 || got.BaseForce != 450 {
		t.Fatalf("tunables not applied: reach=%.0f force=%.0f", got.WaypointReach, got.BaseForce)
	}
}

func TestWorldHeartbeatUpdatesConnectivity(t *testing.T) {
	world := NewWorld(testWorldConfig(), testDeps())
	world.SpawnShip("alpha", cp.Vector{X: 4000, Y: 4000}, true)

	if err := world.Apply([]Command{{
		ActorID:   "alpha",
		Type:      CommandHeartbeat,
		Heartbeat: &HeartbeatCommand{ClientSent: 12345, RTT: 42},
	}}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	ship, _ := world.Ship("alpha")
	if ship.lastHeartbeat != 12345 || ship.rtt != 42 {
		t.Fatalf("heartbeat not recorded: sent=%d rtt=%d", ship.lastHeartbeat, ship.rtt)
	}
}

func TestWorldSnapshotOrderIsStable(t *testing.T) {
	world := NewWorld(testWorldConfig(), testDeps())
	world.SpawnShip("a", cp.Vector{X: 1000, Y: 1000}, true)
	world.SpawnShip("b", cp.Vector{X: 2000, Y: 2000}, true)
	world.SpawnShip("c", cp.Vector{X: 3000, Y: 3000}, true)

	for i := 0; i < 5; i++ {
		world.Step(testDelta)
		snapshot := world.Snapshot()
		for j, id := range []string{"a", "b", "c"} {
			if snapshot.Ships[j].ID != id {
				t.Fatalf("tick %d: roster order %v", i, snapshot.Ships)
			}
		}
	}
}
