package nav

import "github.com/jakecoffman/cp"

// Steerable is the capability surface the navigation core needs from an
// agent. Behavior differences between agent kinds (detection range, look
// ahead, speed) are data behind this interface, not subtypes.
type Steerable interface {
	Position() cp.Vector
	Velocity() cp.Vector
	Heading() float64
	MoveSpeed() float64
	AvoidanceRadius() float64
	LookAheadMultiplier() float64
	// Moving reports whether the agent is actively underway this tick.
	Moving() bool
}

// Obstacle is a movable circular blocker snapshot, taken from the previous
// tick's positions. Primary marks the designated focus agent (the player
// ship from an NPC's perspective), which gets the enlarged radius and the
// orbital treatment.
type Obstacle struct {
	ID       string
	Position cp.Vector
	Radius   float64
	Primary  bool
}
