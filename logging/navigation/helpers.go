package navigation

import (
	"context"

	"armada/server/logging"
)

const (
	// EventGoalAccepted is emitted when a behavior source installs a new goal.
	EventGoalAccepted logging.EventType = "navigation.goal_accepted"
	// EventReplan is emitted when a ship recomputes its route.
	EventReplan logging.EventType = "navigation.replan"
	// EventTrapped is emitted when the no-progress timer forces a replan.
	EventTrapped logging.EventType = "navigation.trapped"
	// EventEscape is emitted when a boundary-stuck ship receives an escape target.
	EventEscape logging.EventType = "navigation.escape"
	// EventUnreachableGoal is emitted when the search degrades to the direct fallback.
	// Informational only; the ship keeps steering at the goal.
	EventUnreachableGoal logging.EventType = "navigation.unreachable_goal"
)

// ReplanPayload captures why and how a route was recomputed.
type ReplanPayload struct {
	Reason    string  `json:"reason"`
	GoalX     float64 `json:"goalX"`
	GoalY     float64 `json:"goalY"`
	Waypoints int     `json:"waypoints"`
	Direct    bool    `json:"direct"`
}

// Replan publishes a route recomputation for the given ship.
func Replan(ctx context.Context, pub logging.Publisher, tick uint64, shipID string, payload ReplanPayload) {
	if pub == nil {
		return
	}
	severity := logging.SeverityDebug
	if payload.Direct {
		severity = logging.SeverityInfo
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventReplan,
		Tick:     tick,
		Actor:    logging.EntityRef{ID: shipID, Kind: logging.EntityKindShip},
		Severity: severity,
		Category: logging.CategoryNavigation,
		Payload:  payload,
	})
}

// TrappedPayload captures the progress state when the trap threshold fired.
type TrappedPayload struct {
	NoProgressSeconds float64 `json:"noProgressSeconds"`
	DistanceToGoal    float64 `json:"distanceToGoal"`
}

// Trapped publishes the forced-replan trigger for a ship making no progress.
func Trapped(ctx context.Context, pub logging.Publisher, tick uint64, shipID string, payload TrappedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventTrapped,
		Tick:     tick,
		Actor:    logging.EntityRef{ID: shipID, Kind: logging.EntityKindShip},
		Severity: logging.SeverityInfo,
		Category: logging.CategoryNavigation,
		Payload:  payload,
	})
}

// EscapePayload records the escape target issued to a boundary-stuck ship.
type EscapePayload struct {
	TargetX float64 `json:"targetX"`
	TargetY float64 `json:"targetY"`
	Clamped bool    `json:"clamped"`
}

// Escape publishes the escape-target recovery for a ship.
func Escape(ctx context.Context, pub logging.Publisher, tick uint64, shipID string, payload EscapePayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventEscape,
		Tick:     tick,
		Actor:    logging.EntityRef{ID: shipID, Kind: logging.EntityKindShip},
		Severity: logging.SeverityInfo,
		Category: logging.CategoryNavigation,
		Payload:  payload,
	})
}

// UnreachableGoal publishes the degradation of a search to the direct
// fallback. The ship keeps steering at the goal; nothing fails.
func UnreachableGoal(ctx context.Context, pub logging.Publisher, tick uint64, shipID string, goalX, goalY float64) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventUnreachableGoal,
		Tick:     tick,
		Actor:    logging.EntityRef{ID: shipID, Kind: logging.EntityKindShip},
		Severity: logging.SeverityInfo,
		Category: logging.CategoryNavigation,
		Payload:  map[string]float64{"goalX": goalX, "goalY": goalY},
	})
}

// GoalAccepted publishes the installation of a new goal for a ship.
func GoalAccepted(ctx context.Context, pub logging.Publisher, tick uint64, shipID string, x, y float64) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventGoalAccepted,
		Tick:     tick,
		Actor:    logging.EntityRef{ID: shipID, Kind: logging.EntityKindShip},
		Severity: logging.SeverityDebug,
		Category: logging.CategoryNavigation,
		Payload:  map[string]float64{"x": x, "y": y},
	})
}
