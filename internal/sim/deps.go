package sim

import (
	"armada/server/internal/telemetry"
	"armada/server/logging"
)

// Deps carries shared infrastructure dependencies required by the world.
type Deps struct {
	Logger    telemetry.Logger
	Metrics   telemetry.Metrics
	Clock     logging.Clock
	Publisher logging.Publisher
}

// EngineCore is the surface the loop drives every tick.
type EngineCore interface {
	Deps() Deps
	Apply([]Command) error
	Step(dt float64)
	Snapshot() Snapshot
}
