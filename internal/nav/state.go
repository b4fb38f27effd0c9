package nav

import (
	"math"

	"github.com/jakecoffman/cp"
)

// State is the per-agent navigation record. One exists per acquired handle;
// clearing a path clears contents, never the record itself.
type State struct {
	// ID names the owning agent in emitted events.
	ID string

	// Active route, world coordinates in traversal order, and the cursor
	// into it.
	Path          []cp.Vector
	WaypointIndex int

	// Desired destination and the goal the current path was computed for.
	Goal     cp.Vector
	HasGoal  bool
	LastGoal cp.Vector

	// Progress tracking pair. ClosestDistanceToGoal only ratchets down;
	// NoProgressTimer accumulates wall time without a meaningful
	// improvement.
	ClosestDistanceToGoal float64
	NoProgressTimer       float64

	// Trapped latches the watchdog verdict from the most recent update. The
	// forced replan resets the timer underneath it, so this flag is what
	// callers polling between ticks actually see.
	Trapped bool

	// Last computed smoothing target. Diagnostics only.
	LookAheadPoint cp.Vector

	// Boundary/stuck detection pair.
	StuckTimer   float64
	LastPosition cp.Vector

	// Active escape maneuver. Holds the issued target until the agent gets
	// within reach of it or a new goal preempts it.
	Escaping     bool
	EscapeTarget cp.Vector

	inUse bool
}

// ClearPath drops the active route without touching progress tracking.
func (s *State) ClearPath() {
	if s == nil {
		return
	}
	s.Path = nil
	s.WaypointIndex = 0
}

// ResetProgress restarts the no-progress watchdog, e.g. after a goal change
// or a forced replan.
func (s *State) ResetProgress() {
	if s == nil {
		return
	}
	s.ClosestDistanceToGoal = math.Inf(1)
	s.NoProgressTimer = 0
}

// RemainingWaypoints reports how many route nodes are still ahead of the
// cursor.
func (s *State) RemainingWaypoints() int {
	if s == nil || s.WaypointIndex >= len(s.Path) {
		return 0
	}
	return len(s.Path) - s.WaypointIndex
}

func (s *State) reset() {
	*s = State{inUse: true}
	s.ResetProgress()
}
