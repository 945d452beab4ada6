package engine

import "math"

// Landmine tuning. A mine can only go off once risk has escalated past
// LandmineArmed, i.e. after several consecutive moves.
const (
	LandmineArmed    = 8
	LandmineRollMax  = 100
	landmineBaseRisk = 2
)

// Roller draws uniform integers in [lo, hi].
type Roller interface {
	IntRange(lo, hi int) int
}

// decayRisk applies the hold-still decay.
func decayRisk(risk int) int {
	return clampRisk(int(math.Round(float64(risk) / 3)))
}

// escalateRisk applies the moved-without-incident growth.
func escalateRisk(risk int) int {
	if risk == 0 {
		return landmineBaseRisk
	}
	return clampRisk(int(math.Round(float64(risk) * 2)))
}

// mineTriggered reports whether a roll sets off a mine at the given risk.
func mineTriggered(roll, risk int) bool {
	return roll < risk && risk > LandmineArmed
}

func clampRisk(risk int) int {
	return min(max(risk, 0), MaxLandmineRisk)
}
