package bot

import (
	"github.com/talgya/hexfire/internal/engine"
	"github.com/talgya/hexfire/internal/world"
)

// Threat levels, most urgent first.
const (
	ThreatCritical = "CRITICAL" // exposed to the storm on the last hit point
	ThreatWarning  = "WARNING"  // exposed to the storm
	ThreatWatch    = "WATCH"    // mines armed, moving is a gamble
	ThreatClear    = "CLEAR"
)

// Situation holds signals derived from the replica before deciding.
// Runs every round; deterministic and cheap.
type Situation struct {
	Self       engine.Player
	Ring       int // our distance from the field centre
	StormDist  int // storm radius this round will be judged against
	Exposed    bool
	Armed      bool // landmine risk past the arming threshold
	Target     *engine.Player
	TargetDist int
	Occupied   map[world.HexCoord]bool
	Threat     string
}

// Assess computes the situation for player id. ok is false when the player
// is missing or dead.
func Assess(state engine.GameState, id engine.PlayerID) (Situation, bool) {
	self, ok := state.Player(id)
	if !ok || !self.Alive {
		return Situation{}, false
	}

	s := Situation{
		Self:      self,
		Ring:      self.Pos.DistOrigin(),
		StormDist: state.CurrentDist,
		Armed:     self.LandmineRisk > engine.LandmineArmed,
		Occupied:  make(map[world.HexCoord]bool, len(state.Players)),
	}
	// The shrink lands before storm damage in the same round.
	if state.Round > 0 && state.Round%engine.StormInterval == 0 {
		s.StormDist = max(s.StormDist-1, engine.MinStormDist)
	}
	s.Exposed = s.Ring > s.StormDist

	for i := range state.Players {
		p := state.Players[i]
		if !p.Alive {
			continue
		}
		s.Occupied[p.Pos] = true
		if p.ID == id {
			continue
		}
		d := world.Distance(self.Pos, p.Pos)
		if s.Target == nil || d < s.TargetDist || (d == s.TargetDist && p.Health < s.Target.Health) {
			s.Target = &state.Players[i]
			s.TargetDist = d
		}
	}

	switch {
	case s.Exposed && self.Health <= 1:
		s.Threat = ThreatCritical
	case s.Exposed:
		s.Threat = ThreatWarning
	case s.Armed:
		s.Threat = ThreatWatch
	default:
		s.Threat = ThreatClear
	}
	return s, true
}
