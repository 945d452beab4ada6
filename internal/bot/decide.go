package bot

import (
	"math"

	"github.com/talgya/hexfire/internal/ballistics"
	"github.com/talgya/hexfire/internal/engine"
	"github.com/talgya/hexfire/internal/world"
)

// aimSpread is how far either side of the bearing the aim search looks.
const aimSpread = 4

// Decision is the order chosen for a round and why.
type Decision struct {
	Action    engine.Action
	Rationale string
}

// Decide picks an order from the situation. The rules, in priority order:
// get out of the storm, shoot a target that can be hit, close in while
// mines are unarmed, otherwise take the best shot available.
func Decide(f *world.Field, s Situation) Decision {
	if s.Exposed {
		if next, ok := stepToward(f, s, func(c world.HexCoord) int { return c.DistOrigin() }); ok {
			return Decision{engine.MoveTo(next), "retreat from storm"}
		}
	}
	if s.Target == nil {
		return Decision{engine.FireAt(0, 89), "no opponents"}
	}

	shot, exact := Aim(f, s.Self.Pos, s.Target.Pos)
	if exact {
		return Decision{engine.FireAt(shot.HAngle, shot.VAngle), "target in range"}
	}

	if !s.Armed {
		goal := s.Target.Pos
		if next, ok := stepToward(f, s, func(c world.HexCoord) int { return world.Distance(c, goal) }); ok {
			return Decision{engine.MoveTo(next), "closing distance"}
		}
	}
	return Decision{engine.FireAt(shot.HAngle, shot.VAngle), "best available shot"}
}

// Shot is a firing solution.
type Shot struct {
	HAngle, VAngle float64
	Landing        world.HexCoord
	Miss           int // hex distance from the landing cell to the target
}

// Aim searches whole-degree angles around the bearing from one cell's muzzle
// to another's centre. exact reports that the shot lands on the target cell.
// A shot that would land on the shooter's own cell is never chosen.
func Aim(f *world.Field, from, to world.HexCoord) (Shot, bool) {
	src, ok := f.Get(from)
	if !ok {
		return Shot{}, false
	}
	muzzle := src.MuzzlePoint()
	tx, tz := world.Center(to)
	bearing := math.Round(math.Atan2(tz-muzzle.Z, tx-muzzle.X) * 180 / math.Pi)

	best := Shot{Miss: math.MaxInt}
	for dh := -aimSpread; dh <= aimSpread; dh++ {
		h := math.Mod(bearing+float64(dh)+360, 360)
		for v := 1.0; v <= 89; v++ {
			imp, hit := ballistics.FindImpact(ballistics.ComputePath(muzzle, h, v), f)
			if !hit || imp.Cell == from {
				continue
			}
			miss := world.Distance(imp.Cell, to)
			if miss < best.Miss {
				best = Shot{HAngle: h, VAngle: v, Landing: imp.Cell, Miss: miss}
				if miss == 0 {
					return best, true
				}
			}
		}
	}
	if best.Miss == math.MaxInt {
		return Shot{HAngle: math.Mod(bearing+360, 360), VAngle: 45, Miss: -1}, false
	}
	return best, false
}

// stepToward picks the free neighbouring cell with the lowest score, if it
// improves on staying put.
func stepToward(f *world.Field, s Situation, score func(world.HexCoord) int) (world.HexCoord, bool) {
	best, bestScore := s.Self.Pos, score(s.Self.Pos)
	for _, n := range f.Neighbors(s.Self.Pos) {
		if s.Occupied[n] {
			continue
		}
		if sc := score(n); sc < bestScore {
			best, bestScore = n, sc
		}
	}
	return best, best != s.Self.Pos
}
