package nav

import "github.com/jakecoffman/cp"

// Field computes the continuous local-avoidance force for one agent against
// a set of nearby obstacle agents. The result is a raw force vector; the
// navigator turns it into a steering target.
type Field struct {
	cfg Config
}

// NewField constructs a steering field with the injected tunables.
func NewField(cfg Config) *Field {
	return &Field{cfg: cfg.Normalized()}
}

// Retune swaps the tunables. Applied between ticks only.
func (f *Field) Retune(cfg Config) {
	if f == nil {
		return
	}
	f.cfg = cfg.Normalized()
}

// Avoidance accumulates the pairwise avoidance forces for the agent. Pairs
// closer than the vector epsilon are skipped rather than normalized, so no
// NaN ever leaves this function.
func (f *Field) Avoidance(agent Steerable, obstacles []Obstacle) cp.Vector {
	if f == nil || agent == nil {
		return cp.Vector{}
	}
	var total cp.Vector
	for _, obs := range obstacles {
		total = total.Add(f.pairwise(agent, obs))
	}
	return total
}

func (f *Field) pairwise(agent Steerable, obs Obstacle) cp.Vector {
	cfg := f.cfg
	pos := agent.Position()
	offset := pos.Sub(obs.Position)
	dist := offset.Length()
	if dist < cfg.VectorEpsilon {
		return cp.Vector{}
	}

	eff := agent.AvoidanceRadius()
	if obs.Radius > eff {
		eff = obs.Radius
	}
	if obs.Primary {
		eff *= cfg.PrimaryRadiusFactor
	}
	detection := cfg.DetectionFactor * eff

	// Proactive trigger: the projected look-ahead point counts as well as
	// raw proximity.
	look := pos
	if agent.Moving() {
		forward := cp.ForAngle(agent.Heading())
		look = pos.Add(forward.Mult(agent.MoveSpeed() * agent.LookAheadMultiplier()))
	}
	lookDist := look.Distance(obs.Position)

	proximity := dist < detection
	projected := lookDist < eff
	if !proximity && !projected {
		return cp.Vector{}
	}

	radial := offset.Mult(1 / dist)
	tangent := f.tangential(radial, agent.Velocity())

	if obs.Primary && proximity {
		return f.orbital(radial, tangent, dist, eff)
	}

	var radialWeight, tangentWeight, strength float64
	switch {
	case dist < eff:
		radialWeight, tangentWeight = 0.9, 0.1
		strength = 1.5 + 2.0*(1-dist/eff)
	case dist < 1.1*eff:
		radialWeight, tangentWeight = 0.7, 0.3
		strength = 1.0
	case dist < 1.3*eff:
		radialWeight, tangentWeight = 0.5, 0.5
		strength = 0.6
	default:
		// Safe distance: favor smooth orbiting over hard pushback.
		radialWeight, tangentWeight = 0.2, 0.8
		strength = 0.2
	}
	if projected && dist >= eff {
		// Look-ahead penetration drives the magnitude when proximity alone
		// would not.
		if s := 0.2 + 3.3*(1-lookDist/eff); s > strength {
			strength = s
		}
	}
	strength = clamp(strength, 0.2, 3.5)

	dir := radial.Mult(radialWeight).Add(tangent.Mult(tangentWeight))
	return dir.Mult(cfg.BaseForce * strength)
}

// tangential picks the perpendicular that agrees with the current velocity
// so the orbit direction does not oscillate between ticks. Near-zero
// velocity falls back to the configured default (clockwise historically).
func (f *Field) tangential(radial, velocity cp.Vector) cp.Vector {
	ccw := radial.Perp()
	if velocity.Length() < f.cfg.VectorEpsilon {
		if f.cfg.DefaultClockwise {
			return ccw.Neg()
		}
		return ccw
	}
	if velocity.Dot(ccw) < 0 {
		return ccw.Neg()
	}
	return ccw
}

// orbital produces sustained circling around the primary obstacle: a
// dominant tangential circle component with a small radial correction that
// holds the agent near the desired orbit distance.
func (f *Field) orbital(radial, tangent cp.Vector, dist, eff float64) cp.Vector {
	cfg := f.cfg
	desired := cfg.OrbitDistanceFactor * eff
	correction := radial
	if dist > desired {
		correction = radial.Neg()
	}
	strength := 1.0
	if dist < eff {
		strength = clamp(1.5+2.0*(1-dist/eff), 0.2, 3.5)
	}
	dir := tangent.Mult(0.85).Add(correction.Mult(0.15))
	return dir.Mult(cfg.BaseForce * strength)
}
