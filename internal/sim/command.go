package sim

import (
	"time"

	"armada/server/internal/nav"
)

// CommandType enumerates the supported simulation commands.
type CommandType string

const (
	CommandSetGoal   CommandType = "SetGoal"
	CommandClearGoal CommandType = "ClearGoal"
	CommandSpawn     CommandType = "Spawn"
	CommandDespawn   CommandType = "Despawn"
	CommandHeartbeat CommandType = "Heartbeat"
	CommandTune      CommandType = "Tune"
)

// SetGoalCommand carries the desired destination in world coordinates.
type SetGoalCommand struct {
	TargetX float64 `json:"targetX"`
	TargetY float64 `json:"targetY"`
}

// SpawnCommand places a new ship. A zero position requests a seeded spawn
// point chosen by the world.
type SpawnCommand struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	AtPoint bool    `json:"atPoint"`
}

// HeartbeatCommand updates connectivity metadata for an actor.
type HeartbeatCommand struct {
	ReceivedAt time.Time     `json:"receivedAt"`
	ClientSent int64         `json:"clientSent"`
	RTT        time.Duration `json:"rtt"`
}

// TuneCommand swaps the navigation tunables at the next tick boundary.
type TuneCommand struct {
	Nav nav.Config `json:"nav"`
}

// Command represents an intent captured for processing on the next tick.
type Command struct {
	OriginTick uint64            `json:"originTick"`
	ActorID    string            `json:"actorId"`
	Type       CommandType       `json:"type"`
	IssuedAt   time.Time         `json:"issuedAt"`
	SetGoal    *SetGoalCommand   `json:"setGoal,omitempty"`
	Spawn      *SpawnCommand     `json:"spawn,omitempty"`
	Heartbeat  *HeartbeatCommand `json:"heartbeat,omitempty"`
	Tune       *TuneCommand      `json:"tune,omitempty"`
}
