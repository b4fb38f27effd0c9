package nav

import "math"

// Defaults mirror the tuning the server ships with. Every value can be
// overridden from the config file; the navigator never reads them from disk
// itself.
const (
	DefaultCellSize      = 128.0
	DefaultEdgeMargin    = 128.0
	DefaultWaypointReach = 100.0
	DefaultBaseForce     = 300.0
)

// Config carries the navigation tunables injected at construction.
type Config struct {
	// Grid layout.
	CellSize   float64 `yaml:"cellSize" json:"cellSize"`
	EdgeMargin float64 `yaml:"edgeMargin" json:"edgeMargin"`

	// Path simplification.
	SimplifyTurnAngle  float64 `yaml:"simplifyTurnAngle" json:"simplifyTurnAngle"` // radians
	SimplifyMinSpacing float64 `yaml:"simplifyMinSpacing" json:"simplifyMinSpacing"`

	// Waypoint following and progress tracking.
	WaypointReach     float64 `yaml:"waypointReach" json:"waypointReach"`
	GoalChangeEpsilon float64 `yaml:"goalChangeEpsilon" json:"goalChangeEpsilon"`
	ProgressEpsilon   float64 `yaml:"progressEpsilon" json:"progressEpsilon"`
	TrappedAfter      float64 `yaml:"trappedAfter" json:"trappedAfter"` // seconds

	// Steering field.
	DetectionFactor     float64 `yaml:"detectionFactor" json:"detectionFactor"`
	BaseForce           float64 `yaml:"baseForce" json:"baseForce"`
	PrimaryRadiusFactor float64 `yaml:"primaryRadiusFactor" json:"primaryRadiusFactor"`
	OrbitDistanceFactor float64 `yaml:"orbitDistanceFactor" json:"orbitDistanceFactor"`
	// Tangential orbit direction when velocity is near zero. The dot-product
	// tie-break can flip when velocity crosses zero; the default keeps the
	// historical clockwise choice. Tunable, not asserted optimal.
	DefaultClockwise bool `yaml:"defaultClockwise" json:"defaultClockwise"`

	// Boundary clamp and stuck recovery.
	StuckMoveEpsilon  float64 `yaml:"stuckMoveEpsilon" json:"stuckMoveEpsilon"`
	StuckAfter        float64 `yaml:"stuckAfter" json:"stuckAfter"` // seconds
	EscapeMinDistance float64 `yaml:"escapeMinDistance" json:"escapeMinDistance"`
	EscapeMaxDistance float64 `yaml:"escapeMaxDistance" json:"escapeMaxDistance"`
	EscapeJitter      float64 `yaml:"escapeJitter" json:"escapeJitter"` // radians

	// Fallback steering when no grid is available.
	FallbackScale float64 `yaml:"fallbackScale" json:"fallbackScale"`
	GridDisabled  bool    `yaml:"gridDisabled" json:"gridDisabled"`

	// Near-zero vector guard.
	VectorEpsilon float64 `yaml:"vectorEpsilon" json:"vectorEpsilon"`
}

// DefaultConfig returns the tuning used when the config file omits the nav
// section.
func DefaultConfig() Config {
	return Config{
		CellSize:            DefaultCellSize,
		EdgeMargin:          DefaultEdgeMargin,
		SimplifyTurnAngle:   0.3, // ~17 degrees
		SimplifyMinSpacing:  2 * DefaultCellSize,
		WaypointReach:       DefaultWaypointReach,
		GoalChangeEpsilon:   50.0,
		ProgressEpsilon:     10.0,
		TrappedAfter:        3.0,
		DetectionFactor:     1.5,
		BaseForce:           DefaultBaseForce,
		PrimaryRadiusFactor: 1.33,
		OrbitDistanceFactor: 1.2,
		DefaultClockwise:    true,
		StuckMoveEpsilon:    5.0,
		StuckAfter:          0.5,
		EscapeMinDistance:   1000.0,
		EscapeMaxDistance:   1500.0,
		EscapeJitter:        math.Pi / 4,
		FallbackScale:       0.8,
		VectorEpsilon:       0.1,
	}
}

// Normalized fills zero values with defaults so partially specified config
// files behave.
func (cfg Config) Normalized() Config {
	def := DefaultConfig()
	normalized := cfg
	if normalized.CellSize <= 0 {
		normalized.CellSize = def.CellSize
	}
	if normalized.EdgeMargin <= 0 {
		normalized.EdgeMargin = def.EdgeMargin
	}
	if normalized.SimplifyTurnAngle <= 0 {
		normalized.SimplifyTurnAngle = def.SimplifyTurnAngle
	}
	if normalized.SimplifyMinSpacing <= 0 {
		normalized.SimplifyMinSpacing = 2 * normalized.CellSize
	}
	if normalized.WaypointReach <= 0 {
		normalized.WaypointReach = def.WaypointReach
	}
	if normalized.GoalChangeEpsilon <= 0 {
		normalized.GoalChangeEpsilon = def.GoalChangeEpsilon
	}
	if normalized.ProgressEpsilon <= 0 {
		normalized.ProgressEpsilon = def.ProgressEpsilon
	}
	if normalized.TrappedAfter <= 0 {
		normalized.TrappedAfter = def.TrappedAfter
	}
	if normalized.DetectionFactor <= 0 {
		normalized.DetectionFactor = def.DetectionFactor
	}
	if normalized.BaseForce <= 0 {
		normalized.BaseForce = def.BaseForce
	}
	if normalized.PrimaryRadiusFactor <= 0 {
		normalized.PrimaryRadiusFactor = def.PrimaryRadiusFactor
	}
	if normalized.OrbitDistanceFactor <= 0 {
		normalized.OrbitDistanceFactor = def.OrbitDistanceFactor
	}
	if normalized.StuckMoveEpsilon <= 0 {
		normalized.StuckMoveEpsilon = def.StuckMoveEpsilon
	}
	if normalized.StuckAfter <= 0 {
		normalized.StuckAfter = def.StuckAfter
	}
	if normalized.EscapeMinDistance <= 0 {
		normalized.EscapeMinDistance = def.EscapeMinDistance
	}
	if normalized.EscapeMaxDistance <= normalized.EscapeMinDistance {
		normalized.EscapeMaxDistance = normalized.EscapeMinDistance + 500
	}
	if normalized.EscapeJitter <= 0 {
		normalized.EscapeJitter = def.EscapeJitter
	}
	if normalized.FallbackScale <= 0 {
		normalized.FallbackScale = def.FallbackScale
	}
	if normalized.VectorEpsilon <= 0 {
		normalized.VectorEpsilon = def.VectorEpsilon
	}
	return normalized
}
