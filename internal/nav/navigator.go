package nav

import (
	"context"
	"math/rand"

	"github.com/jakecoffman/cp"

	"armada/server/logging"
	lognav "armada/server/logging/navigation"
)

// Handle addresses one agent's navigation record inside the navigator's
// arena. Handles are stable for the agent's lifetime and recycled after
// Release.
type Handle int

// NoHandle is returned when acquisition is impossible.
const NoHandle Handle = -1

// Output is the result of one agent's navigation step.
type Output struct {
	// Target is the steering target the motion integrator should chase.
	Target cp.Vector
	// Position is the agent position after the boundary clamp. Callers
	// apply it before integrating.
	Position cp.Vector
	// Clamped reports that the position needed pulling back into bounds.
	Clamped bool
	// Escaped reports that an escape target was issued this tick.
	Escaped bool
}

// Navigator orchestrates grid replanning, waypoint following, look-ahead
// smoothing and steering-force blending for every agent, one pass per tick.
// Single-threaded by contract: BeginTick and the Update calls for a tick
// must come from the same goroutine.
type Navigator struct {
	cfg    Config
	width  float64
	height float64

	grid  *Grid
	field *Field
	rng   *rand.Rand

	states []*State
	free   []Handle

	tick      uint64
	publisher logging.Publisher
	ctx       context.Context
}

// NewNavigator builds the navigation core for a map of the given extent.
// All tunables arrive through cfg; nothing is read from disk here.
func NewNavigator(cfg Config, width, height float64, rootSeed string, publisher logging.Publisher) *Navigator {
	cfg = cfg.Normalized()
	if publisher == nil {
		publisher = logging.NopPublisher()
	}
	n := &Navigator{
		cfg:       cfg,
		width:     width,
		height:    height,
		field:     NewField(cfg),
		rng:       NewDeterministicRNG(rootSeed, "navigator"),
		publisher: publisher,
		ctx:       context.Background(),
	}
	if !cfg.GridDisabled {
		n.grid = NewGrid(cfg, width, height)
	}
	return n
}

// Retune swaps the tunables between ticks. The grid is rebuilt only when its
// immutable parameters changed.
func (n *Navigator) Retune(cfg Config) {
	if n == nil {
		return
	}
	cfg = cfg.Normalized()
	rebuild := cfg.CellSize != n.cfg.CellSize ||
		cfg.EdgeMargin != n.cfg.EdgeMargin ||
		cfg.GridDisabled != n.cfg.GridDisabled
	n.cfg = cfg
	n.field.Retune(cfg)
	if rebuild {
		n.grid = nil
		if !cfg.GridDisabled {
			n.grid = NewGrid(cfg, n.width, n.height)
		}
	}
}

// Config returns the active tunables.
func (n *Navigator) Config() Config {
	if n == nil {
		return Config{}
	}
	return n.cfg
}

// Grid exposes the grid for tests and diagnostics. Nil in fallback mode.
func (n *Navigator) Grid() *Grid {
	if n == nil {
		return nil
	}
	return n.grid
}

// Acquire allocates a navigation record for the named agent and returns its
// handle.
func (n *Navigator) Acquire(id string) Handle {
	if n == nil {
		return NoHandle
	}
	if len(n.free) > 0 {
		h := n.free[len(n.free)-1]
		n.free = n.free[:len(n.free)-1]
		n.states[h].reset()
		n.states[h].ID = id
		return h
	}
	st := &State{}
	st.reset()
	st.ID = id
	n.states = append(n.states, st)
	return Handle(len(n.states) - 1)
}

// Release returns the record to the arena. The handle must not be used
// afterwards.
func (n *Navigator) Release(h Handle) {
	st := n.state(h)
	if st == nil {
		return
	}
	*st = State{}
	n.free = append(n.free, h)
}

func (n *Navigator) state(h Handle) *State {
	if n == nil || h < 0 || int(h) >= len(n.states) {
		return nil
	}
	st := n.states[h]
	if st == nil || !st.inUse {
		return nil
	}
	return st
}

// State exposes the raw record for diagnostics and tests.
func (n *Navigator) State(h Handle) *State {
	return n.state(h)
}

// SetGoal overwrites the desired destination. Idempotent when unchanged; a
// goal that moved beyond the change epsilon drops the stale route so the
// next tick replans.
func (n *Navigator) SetGoal(h Handle, goal cp.Vector) {
	st := n.state(h)
	if st == nil {
		return
	}
	if st.HasGoal && goal.Distance(st.Goal) == 0 {
		return
	}
	moved := !st.HasGoal || goal.Distance(st.Goal) > n.cfg.GoalChangeEpsilon
	st.Goal = goal
	st.HasGoal = true
	st.Escaping = false
	if moved {
		st.ClearPath()
	}
}

// ClearGoal removes the destination; the agent idles until the next SetGoal.
func (n *Navigator) ClearGoal(h Handle) {
	st := n.state(h)
	if st == nil {
		return
	}
	st.HasGoal = false
	st.Escaping = false
	st.Trapped = false
	st.ClearPath()
	st.ResetProgress()
}

// AtGoal reports whether the remaining path is empty and the agent sits
// within the waypoint-reached distance of the true goal.
func (n *Navigator) AtGoal(h Handle, pos cp.Vector) bool {
	st := n.state(h)
	if st == nil || !st.HasGoal {
		return false
	}
	if st.RemainingWaypoints() > 0 {
		return false
	}
	return pos.Distance(st.Goal) <= n.cfg.WaypointReach
}

// Stuck reports whether the agent tripped the trapped threshold on its most
// recent update. The flag holds until the next update reassesses progress,
// so it survives the timer reset the forced replan performs.
func (n *Navigator) Stuck(h Handle) bool {
	st := n.state(h)
	if st == nil {
		return false
	}
	return st.Trapped
}

// BeginTick rebuilds the transient obstacle layer from the previous tick's
// agent positions. Strict ordering: clear, mark all, then any number of
// Update calls may query the grid.
func (n *Navigator) BeginTick(tick uint64, agents []Obstacle) {
	if n == nil {
		return
	}
	n.tick = tick
	if n.grid == nil {
		return
	}
	n.grid.ClearObstacles()
	for _, a := range agents {
		n.grid.SetObstacle(a.Position, a.Radius, true)
	}
}

// Update advances one agent's navigation for this tick and emits its
// steering target. neighbors is the previous-tick snapshot of every other
// agent.
func (n *Navigator) Update(h Handle, agent Steerable, neighbors []Obstacle, dt float64) Output {
	st := n.state(h)
	if st == nil || agent == nil {
		return Output{}
	}

	pos, clamped := n.clampToBounds(agent.Position())
	out := Output{Position: pos, Clamped: clamped, Target: pos}

	if st.HasGoal {
		n.trackProgress(st, pos, dt)
		trapped := st.NoProgressTimer > n.cfg.TrappedAfter
		st.Trapped = trapped
		if trapped {
			lognav.Trapped(n.ctx, n.publisher, n.tick, st.ID, lognav.TrappedPayload{
				NoProgressSeconds: st.NoProgressTimer,
				DistanceToGoal:    pos.Distance(st.Goal),
			})
		}

		n.advanceWaypoints(st, pos)

		if n.needsReplan(st, pos, trapped) {
			n.replan(st, agent, pos, trapped)
			if trapped {
				st.ResetProgress()
			}
			n.advanceWaypoints(st, pos)
		}

		force := n.field.Avoidance(agent, neighbors)
		if n.grid == nil {
			out.Target = n.fallbackTarget(st, agent, pos, force)
		} else {
			look := n.lookAhead(st, agent, pos)
			st.LookAheadPoint = look
			target := look.Add(force)
			target, _ = n.clampToBounds(target)
			out.Target = target
		}
	}

	// Boundary clamp and stuck recovery run with or without a goal.
	moved := pos.Distance(st.LastPosition)
	if moved < n.cfg.StuckMoveEpsilon && !agent.Moving() {
		st.StuckTimer += dt
	} else {
		st.StuckTimer = 0
	}
	if clamped || st.StuckTimer > n.cfg.StuckAfter {
		out.Target = n.escapeTarget(pos, neighbors)
		out.Escaped = true
		st.StuckTimer = 0
		if !st.HasGoal {
			// With no goal to resume, the maneuver persists until the agent
			// reaches the issued target.
			st.Escaping = true
			st.EscapeTarget = out.Target
		}
		lognav.Escape(n.ctx, n.publisher, n.tick, st.ID, lognav.EscapePayload{
			TargetX: out.Target.X,
			TargetY: out.Target.Y,
			Clamped: clamped,
		})
	} else if !st.HasGoal && st.Escaping {
		if pos.Distance(st.EscapeTarget) <= n.cfg.WaypointReach {
			st.Escaping = false
		} else {
			out.Target = st.EscapeTarget
		}
	}

	st.LastPosition = pos
	return out
}

func (n *Navigator) clampToBounds(p cp.Vector) (cp.Vector, bool) {
	clamped := cp.Vector{
		X: clamp(p.X, n.cfg.EdgeMargin, n.width-n.cfg.EdgeMargin),
		Y: clamp(p.Y, n.cfg.EdgeMargin, n.height-n.cfg.EdgeMargin),
	}
	return clamped, clamped != p
}

// trackProgress ratchets the closest-distance metric and accumulates the
// no-progress timer. An improvement above the progress epsilon resets the
// timer; anything less counts as standing still.
func (n *Navigator) trackProgress(st *State, pos cp.Vector, dt float64) {
	if st.Goal.Distance(st.LastGoal) > n.cfg.GoalChangeEpsilon {
		st.ResetProgress()
		st.LastGoal = st.Goal
	}
	d := pos.Distance(st.Goal)
	if st.ClosestDistanceToGoal-d > n.cfg.ProgressEpsilon {
		st.ClosestDistanceToGoal = d
		st.NoProgressTimer = 0
		return
	}
	st.NoProgressTimer += dt
}

func (n *Navigator) advanceWaypoints(st *State, pos cp.Vector) {
	for st.WaypointIndex < len(st.Path) {
		if pos.Distance(st.Path[st.WaypointIndex]) >= n.cfg.WaypointReach {
			return
		}
		st.WaypointIndex++
	}
}

func (n *Navigator) needsReplan(st *State, pos cp.Vector, trapped bool) bool {
	if trapped || len(st.Path) == 0 {
		return true
	}
	// Ran off the end of the route but the true goal is still far away.
	return st.WaypointIndex >= len(st.Path) && pos.Distance(st.Goal) > n.cfg.WaypointReach
}

// replan recomputes the route. The querying agent's own obstacle marks are
// lifted for the search and restored afterwards, preserving the
// clear/mark-all/query ordering for everyone else.
func (n *Navigator) replan(st *State, agent Steerable, pos cp.Vector, trapped bool) {
	reason := "path_empty"
	if trapped {
		reason = "trapped"
	} else if len(st.Path) > 0 {
		reason = "route_exhausted"
	}

	if n.grid == nil {
		st.Path = []cp.Vector{st.Goal}
		st.WaypointIndex = 0
		st.LastGoal = st.Goal
		return
	}

	radius := agent.AvoidanceRadius()
	n.grid.SetObstacle(pos, radius, false)
	path := n.grid.FindPath(pos, st.Goal)
	n.grid.SetObstacle(pos, radius, true)

	st.Path = path
	st.WaypointIndex = 0
	st.LastGoal = st.Goal

	direct := len(path) == 1
	lognav.Replan(n.ctx, n.publisher, n.tick, st.ID, lognav.ReplanPayload{
		Reason:    reason,
		GoalX:     st.Goal.X,
		GoalY:     st.Goal.Y,
		Waypoints: len(path),
		Direct:    direct,
	})
	if direct {
		lognav.UnreachableGoal(n.ctx, n.publisher, n.tick, st.ID, st.Goal.X, st.Goal.Y)
	}
}

// lookAhead walks the remaining route, consuming the agent's look-ahead
// budget, and interpolates inside the final partial segment. The result,
// not the raw next waypoint, is the steering target; corners melt into
// continuous turns.
func (n *Navigator) lookAhead(st *State, agent Steerable, pos cp.Vector) cp.Vector {
	if st.RemainingWaypoints() == 0 {
		return st.Goal
	}
	budget := agent.MoveSpeed() * agent.LookAheadMultiplier()
	cursor := pos
	for i := st.WaypointIndex; i < len(st.Path); i++ {
		next := st.Path[i]
		segment := next.Sub(cursor)
		length := segment.Length()
		if length >= budget {
			if length < n.cfg.VectorEpsilon {
				return next
			}
			return cursor.Add(segment.Mult(budget / length))
		}
		budget -= length
		cursor = next
	}
	return st.Path[len(st.Path)-1]
}

// fallbackTarget steers by force alone when no grid is available.
func (n *Navigator) fallbackTarget(st *State, agent Steerable, pos cp.Vector, force cp.Vector) cp.Vector {
	reach := agent.MoveSpeed() * agent.LookAheadMultiplier() * n.cfg.FallbackScale
	dir := force
	if dir.Length() < n.cfg.VectorEpsilon {
		// No pressure from neighbors; head straight for the goal.
		dir = st.Goal.Sub(pos)
		if dir.Length() < n.cfg.VectorEpsilon {
			return pos
		}
	}
	target := pos.Add(dir.Normalize().Mult(reach))
	target, _ = n.clampToBounds(target)
	return target
}

// escapeTarget picks a point far from the nearest edge, perturbed by a
// bounded random angle, clamped into bounds, and pushed out of any
// neighbor's avoidance radius. Deterministic under a fixed root seed.
func (n *Navigator) escapeTarget(pos cp.Vector, neighbors []Obstacle) cp.Vector {
	away := n.awayFromNearestEdge(pos)
	angle := away.ToAngle() + randomJitter(n.rng, n.cfg.EscapeJitter)
	distance := randomRange(n.rng, n.cfg.EscapeMinDistance, n.cfg.EscapeMaxDistance)
	target := pos.Add(cp.ForAngle(angle).Mult(distance))
	target, _ = n.clampToBounds(target)

	for _, other := range neighbors {
		gap := target.Sub(other.Position)
		dist := gap.Length()
		if dist >= other.Radius {
			continue
		}
		if dist < n.cfg.VectorEpsilon {
			gap = target.Sub(pos)
			if gap.Length() < n.cfg.VectorEpsilon {
				gap = cp.Vector{X: 1}
			}
		}
		target = other.Position.Add(gap.Normalize().Mult(other.Radius))
		target, _ = n.clampToBounds(target)
	}
	return target
}

func (n *Navigator) awayFromNearestEdge(pos cp.Vector) cp.Vector {
	type edge struct {
		dist float64
		dir  cp.Vector
	}
	edges := [4]edge{
		{dist: pos.X, dir: cp.Vector{X: 1}},
		{dist: n.width - pos.X, dir: cp.Vector{X: -1}},
		{dist: pos.Y, dir: cp.Vector{Y: 1}},
		{dist: n.height - pos.Y, dir: cp.Vector{Y: -1}},
	}
	nearest := edges[0]
	for _, e := range edges[1:] {
		if e.dist < nearest.dist {
			nearest = e
		}
	}
	return nearest.dir
}
