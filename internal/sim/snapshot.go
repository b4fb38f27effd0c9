package sim

// ShipSnapshot is one ship's state frozen at the end of a tick.
type ShipSnapshot struct {
	ID      string  `json:"id"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Heading float64 `json:"heading"`
	VelX    float64 `json:"velX"`
	VelY    float64 `json:"velY"`
	Moving  bool    `json:"moving"`

	HasGoal bool    `json:"hasGoal"`
	AtGoal  bool    `json:"atGoal"`
	GoalX   float64 `json:"goalX"`
	GoalY   float64 `json:"goalY"`

	// Steering diagnostics for observers and tooling.
	TargetX    float64 `json:"targetX"`
	TargetY    float64 `json:"targetY"`
	LookAheadX float64 `json:"lookAheadX"`
	LookAheadY float64 `json:"lookAheadY"`
	Stuck      bool    `json:"stuck"`
	Escaping   bool    `json:"escaping"`
}

// Snapshot is the full world state frozen at the end of a tick. Ship order is
// stable across ticks.
type Snapshot struct {
	Tick  uint64         `json:"tick"`
	Ships []ShipSnapshot `json:"ships"`
}
