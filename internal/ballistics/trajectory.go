// Package ballistics computes projectile flight paths and their first
// intersection with the hex terrain.
package ballistics

import (
	"math"

	"github.com/talgya/hexfire/internal/world"
)

// Flight constants in world units.
const (
	InitialSpeed = 4.0
	Gravity      = 1.0
	TimeStep     = 0.05

	// MaxSamples bounds a single path; a shot fired from any sane height
	// lands well inside this.
	MaxSamples = 100_000
)

// Path is a finite, pull-based sequence of flight samples. It cannot be
// rewound; call ComputePath again for a fresh pass.
type Path struct {
	origin world.Vec3
	vel    world.Vec3
	step   int
	done   bool
}

// ComputePath starts a trajectory from origin. Angles are in degrees:
// hAngle is the heading in the horizontal plane, vAngle the elevation.
func ComputePath(origin world.Vec3, hAngle, vAngle float64) *Path {
	h := hAngle * math.Pi / 180
	v := vAngle * math.Pi / 180
	return &Path{
		origin: origin,
		vel: world.Vec3{
			X: InitialSpeed * math.Cos(v) * math.Cos(h),
			Y: InitialSpeed * math.Sin(v),
			Z: InitialSpeed * math.Cos(v) * math.Sin(h),
		},
	}
}

// At returns the position at parametric time t.
func (p *Path) At(t float64) world.Vec3 {
	return world.Vec3{
		X: p.origin.X + p.vel.X*t,
		Y: p.origin.Y + p.vel.Y*t - 0.5*Gravity*t*t,
		Z: p.origin.Z + p.vel.Z*t,
	}
}

// Next yields the next sample. The first sample is the origin and the last
// is the first one at or below the ground plane.
func (p *Path) Next() (world.Vec3, bool) {
	if p.done {
		return world.Vec3{}, false
	}
	pt := p.At(float64(p.step) * TimeStep)
	p.step++
	if pt.Y <= 0 || p.step >= MaxSamples {
		p.done = true
	}
	return pt, true
}

// Points drains the remaining samples.
func (p *Path) Points() []world.Vec3 {
	var out []world.Vec3
	for {
		pt, ok := p.Next()
		if !ok {
			return out
		}
		out = append(out, pt)
	}
}
