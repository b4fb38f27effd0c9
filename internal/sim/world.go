package sim

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/jakecoffman/cp"

	"armada/server/internal/nav"
	lognav "armada/server/logging/navigation"
)

const (
	shipsActiveMetricKey    = "sim_ships_active"
	goalsAcceptedMetricKey  = "sim_goals_accepted_total"
	commandsAppliedMetric   = "sim_commands_applied_total"
	commandsUnknownMetric   = "sim_commands_unknown_total"
	heartbeatsSeenMetricKey = "sim_heartbeats_total"
)

// WorldConfig sizes the map and sets the shared ship parameters.
type WorldConfig struct {
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`
	Seed   string  `yaml:"seed"`

	// Ships pre-spawned at construction, before any client joins.
	ShipCount int `yaml:"shipCount"`

	MoveSpeed           float64 `yaml:"moveSpeed"`
	AvoidanceRadius     float64 `yaml:"avoidanceRadius"`
	LookAheadMultiplier float64 `yaml:"lookAheadMultiplier"`

	Nav nav.Config `yaml:"nav"`
}

// Normalized fills unset fields with defaults.
func (c WorldConfig) Normalized() WorldConfig {
	if c.Width <= 0 {
		c.Width = 8192
	}
	if c.Height <= 0 {
		c.Height = 8192
	}
	if c.Seed == "" {
		c.Seed = "prototype"
	}
	if c.MoveSpeed <= 0 {
		c.MoveSpeed = 100
	}
	if c.AvoidanceRadius <= 0 {
		c.AvoidanceRadius = 300
	}
	if c.LookAheadMultiplier <= 0 {
		c.LookAheadMultiplier = 3
	}
	c.Nav = c.Nav.Normalized()
	return c
}

// Ship is one simulated vessel. All mutation happens on the loop goroutine.
type Ship struct {
	id     string
	handle nav.Handle

	pos     cp.Vector
	vel     cp.Vector
	heading float64
	moving  bool

	moveSpeed   float64
	avoidRadius float64
	lookAhead   float64

	goal     cp.Vector
	hasGoal  bool
	atGoal   bool
	target   cp.Vector
	escaping bool
	stuck    bool

	lastHeartbeat int64
	rtt           int64
}

// Position implements nav.Steerable.
func (s *Ship) Position() cp.Vector { return s.pos }

// Velocity implements nav.Steerable.
func (s *Ship) Velocity() cp.Vector { return s.vel }

// Heading implements nav.Steerable.
func (s *Ship) Heading() float64 { return s.heading }

// MoveSpeed implements nav.Steerable.
func (s *Ship) MoveSpeed() float64 { return s.moveSpeed }

// AvoidanceRadius implements nav.Steerable.
func (s *Ship) AvoidanceRadius() float64 { return s.avoidRadius }

// LookAheadMultiplier implements nav.Steerable.
func (s *Ship) LookAheadMultiplier() float64 { return s.lookAhead }

// Moving implements nav.Steerable. It reports actual displacement from the
// previous tick, not intent.
func (s *Ship) Moving() bool { return s.moving }

// ID returns the ship identifier.
func (s *Ship) ID() string { return s.id }

// World owns every ship and the navigation core. It is not safe for
// concurrent use; the loop is its only driver.
type World struct {
	cfg  WorldConfig
	deps Deps

	navigator *nav.Navigator
	spawnRNG  *rand.Rand

	ships []*Ship
	byID  map[string]*Ship

	tick    uint64
	removed []string

	ctx context.Context
}

// NewWorld builds the world and pre-spawns the configured ship roster.
func NewWorld(cfg WorldConfig, deps Deps) *World {
	cfg = cfg.Normalized()
	w := &World{
		cfg:       cfg,
		deps:      deps,
		navigator: nav.NewNavigator(cfg.Nav, cfg.Width, cfg.Height, cfg.Seed, deps.Publisher),
		spawnRNG:  nav.NewDeterministicRNG(cfg.Seed, "spawn"),
		byID:      make(map[string]*Ship),
		ctx:       context.Background(),
	}
	for i := 0; i < cfg.ShipCount; i++ {
		w.SpawnShip(fmt.Sprintf("ship-%d", i+1), cp.Vector{}, false)
	}
	return w
}

// Deps implements EngineCore.
func (w *World) Deps() Deps {
	if w == nil {
		return Deps{}
	}
	return w.deps
}

// Navigator exposes the navigation core for diagnostics.
func (w *World) Navigator() *nav.Navigator {
	if w == nil {
		return nil
	}
	return w.navigator
}

// Tick returns the last completed tick number.
func (w *World) Tick() uint64 {
	if w == nil {
		return 0
	}
	return w.tick
}

// SpawnShip adds a ship at the given point, or at a seeded random interior
// point when atPoint is false. Spawning an existing id returns the existing
// ship untouched.
func (w *World) SpawnShip(id string, at cp.Vector, atPoint bool) *Ship {
	if w == nil || id == "" {
		return nil
	}
	if existing, ok := w.byID[id]; ok {
		return existing
	}
	if !atPoint {
		at = w.randomSpawnPoint()
	}
	at = w.clampToInterior(at)
	ship := &Ship{
		id:          id,
		handle:      w.navigator.Acquire(id),
		pos:         at,
		target:      at,
		moveSpeed:   w.cfg.MoveSpeed,
		avoidRadius: w.cfg.AvoidanceRadius,
		lookAhead:   w.cfg.LookAheadMultiplier,
	}
	w.ships = append(w.ships, ship)
	w.byID[id] = ship
	w.storeShipCount()
	return ship
}

// RemoveShip releases the ship's navigation record and drops it from the
// roster. The removal is reported once through RemovedShips.
func (w *World) RemoveShip(id string) bool {
	if w == nil {
		return false
	}
	ship, ok := w.byID[id]
	if !ok {
		return false
	}
	w.navigator.Release(ship.handle)
	delete(w.byID, id)
	for i, s := range w.ships {
		if s == ship {
			w.ships = append(w.ships[:i], w.ships[i+1:]...)
			break
		}
	}
	w.removed = append(w.removed, id)
	w.storeShipCount()
	return true
}

// Ship looks up a ship by id.
func (w *World) Ship(id string) (*Ship, bool) {
	if w == nil {
		return nil, false
	}
	ship, ok := w.byID[id]
	return ship, ok
}

// RemovedShips drains the ids removed since the previous call.
func (w *World) RemovedShips() []string {
	if w == nil || len(w.removed) == 0 {
		return nil
	}
	removed := w.removed
	w.removed = nil
	return removed
}

// Apply executes staged commands against the roster. Commands for unknown
// ships are dropped silently; the actor may have despawned in the meantime.
func (w *World) Apply(commands []Command) error {
	if w == nil {
		return nil
	}
	for _, cmd := range commands {
		switch cmd.Type {
		case CommandSpawn:
			at := cp.Vector{}
			atPoint := false
			if cmd.Spawn != nil {
				at = cp.Vector{X: cmd.Spawn.X, Y: cmd.Spawn.Y}
				atPoint = cmd.Spawn.AtPoint
			}
			w.SpawnShip(cmd.ActorID, at, atPoint)
		case CommandDespawn:
			w.RemoveShip(cmd.ActorID)
		case CommandSetGoal:
			w.applySetGoal(cmd)
		case CommandClearGoal:
			if ship, ok := w.byID[cmd.ActorID]; ok {
				w.navigator.ClearGoal(ship.handle)
				ship.hasGoal = false
				ship.atGoal = false
			}
		case CommandHeartbeat:
			if ship, ok := w.byID[cmd.ActorID]; ok && cmd.Heartbeat != nil {
				ship.lastHeartbeat = cmd.Heartbeat.ClientSent
				ship.rtt = int64(cmd.Heartbeat.RTT)
				w.addMetric(heartbeatsSeenMetricKey, 1)
			}
		case CommandTune:
			if cmd.Tune != nil {
				w.cfg.Nav = cmd.Tune.Nav.Normalized()
				w.navigator.Retune(w.cfg.Nav)
			}
		default:
			w.addMetric(commandsUnknownMetric, 1)
			if w.deps.Logger != nil {
				w.deps.Logger.Printf("[sim] unknown command type=%q actor=%s", cmd.Type, cmd.ActorID)
			}
			continue
		}
		w.addMetric(commandsAppliedMetric, 1)
	}
	return nil
}

func (w *World) applySetGoal(cmd Command) {
	ship, ok := w.byID[cmd.ActorID]
	if !ok || cmd.SetGoal == nil {
		return
	}
	goal := w.clampToInterior(cp.Vector{X: cmd.SetGoal.TargetX, Y: cmd.SetGoal.TargetY})
	w.navigator.SetGoal(ship.handle, goal)
	ship.goal = goal
	ship.hasGoal = true
	ship.atGoal = false
	w.addMetric(goalsAcceptedMetricKey, 1)
	lognav.GoalAccepted(w.ctx, w.deps.Publisher, w.tick, ship.id, goal.X, goal.Y)
}

// Step advances the world one tick. Every ship's navigation decision reads
// the same start-of-tick snapshot; positions integrate only afterwards, so
// ordering inside the roster never leaks into steering.
func (w *World) Step(dt float64) {
	if w == nil || dt <= 0 {
		return
	}
	w.tick++

	obstacles := make([]nav.Obstacle, len(w.ships))
	for i, ship := range w.ships {
		obstacles[i] = nav.Obstacle{ID: ship.id, Position: ship.pos, Radius: ship.avoidRadius}
	}
	w.navigator.BeginTick(w.tick, obstacles)

	neighbors := make([]nav.Obstacle, 0, len(obstacles))
	for i, ship := range w.ships {
		if !w.shipActive(ship) {
			ship.moving = false
			ship.vel = cp.Vector{}
			ship.stuck = false
			continue
		}
		neighbors = neighbors[:0]
		for j, obs := range obstacles {
			if j == i {
				continue
			}
			neighbors = append(neighbors, obs)
		}
		out := w.navigator.Update(ship.handle, ship, neighbors, dt)
		ship.pos = out.Position
		ship.target = out.Target
		ship.stuck = w.navigator.Stuck(ship.handle)
		if out.Escaped {
			ship.escaping = true
		}
	}

	for _, ship := range w.ships {
		w.integrate(ship, dt)
	}
}

// shipActive reports whether the ship needs a navigation pass this tick.
// Parked ships stay in the obstacle layer but skip steering entirely.
func (w *World) shipActive(ship *Ship) bool {
	if ship.hasGoal || ship.escaping {
		return true
	}
	margin := w.cfg.Nav.EdgeMargin
	return ship.pos.X < margin || ship.pos.X > w.cfg.Width-margin ||
		ship.pos.Y < margin || ship.pos.Y > w.cfg.Height-margin
}

func (w *World) integrate(ship *Ship, dt float64) {
	offset := ship.target.Sub(ship.pos)
	dist := offset.Length()
	if dist < w.cfg.Nav.VectorEpsilon {
		ship.moving = false
		ship.vel = cp.Vector{}
		ship.escaping = false
		w.settleAtGoal(ship)
		return
	}

	dir := offset.Mult(1 / dist)
	step := ship.moveSpeed * dt
	if step >= dist {
		ship.pos = ship.target
	} else {
		ship.pos = ship.pos.Add(dir.Mult(step))
	}
	ship.vel = dir.Mult(ship.moveSpeed)
	ship.heading = dir.ToAngle()
	ship.moving = true
	w.settleAtGoal(ship)
}

// settleAtGoal parks the ship once the route is spent and the goal is inside
// the reach distance. Parked ships stop consuming navigation work until the
// next SetGoal.
func (w *World) settleAtGoal(ship *Ship) {
	if !ship.hasGoal {
		return
	}
	if !w.navigator.AtGoal(ship.handle, ship.pos) {
		return
	}
	w.navigator.ClearGoal(ship.handle)
	ship.hasGoal = false
	ship.atGoal = true
	ship.escaping = false
	ship.moving = false
	ship.vel = cp.Vector{}
	ship.target = ship.pos
}

// Snapshot freezes the roster in spawn order.
func (w *World) Snapshot() Snapshot {
	if w == nil {
		return Snapshot{}
	}
	snapshot := Snapshot{Tick: w.tick, Ships: make([]ShipSnapshot, len(w.ships))}
	for i, ship := range w.ships {
		entry := ShipSnapshot{
			ID:       ship.id,
			X:        ship.pos.X,
			Y:        ship.pos.Y,
			Heading:  ship.heading,
			VelX:     ship.vel.X,
			VelY:     ship.vel.Y,
			Moving:   ship.moving,
			HasGoal:  ship.hasGoal,
			AtGoal:   ship.atGoal,
			GoalX:    ship.goal.X,
			GoalY:    ship.goal.Y,
			TargetX:  ship.target.X,
			TargetY:  ship.target.Y,
			Stuck:    ship.stuck,
			Escaping: ship.escaping,
		}
		if st := w.navigator.State(ship.handle); st != nil {
			entry.LookAheadX = st.LookAheadPoint.X
			entry.LookAheadY = st.LookAheadPoint.Y
		}
		snapshot.Ships[i] = entry
	}
	return snapshot
}

func (w *World) randomSpawnPoint() cp.Vector {
	margin := w.cfg.Nav.EdgeMargin + w.cfg.AvoidanceRadius
	return cp.Vector{
		X: margin + w.spawnRNG.Float64()*(w.cfg.Width-2*margin),
		Y: margin + w.spawnRNG.Float64()*(w.cfg.Height-2*margin),
	}
}

func (w *World) clampToInterior(p cp.Vector) cp.Vector {
	margin := w.cfg.Nav.EdgeMargin
	if p.X < margin {
		p.X = margin
	}
	if p.X > w.cfg.Width-margin {
		p.X = w.cfg.Width - margin
	}
	if p.Y < margin {
		p.Y = margin
	}
	if p.Y > w.cfg.Height-margin {
		p.Y = w.cfg.Height - margin
	}
	return p
}

func (w *World) addMetric(key string, delta uint64) {
	if w.deps.Metrics == nil {
		return
	}
	w.deps.Metrics.Add(key, delta)
}

func (w *World) storeShipCount() {
	if w.deps.Metrics == nil {
		return
	}
	w.deps.Metrics.Store(shipsActiveMetricKey, uint64(len(w.ships)))
}

var _ EngineCore = (*World)(nil)
