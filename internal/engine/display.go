package engine

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// Describe renders an event as a line for the round results panel. names
// maps ids to display names; unknown ids are printed as is.
func Describe(e Event, names map[PlayerID]string) string {
	name := func(id PlayerID) string {
		if n, ok := names[id]; ok && n != "" {
			return n
		}
		return string(id)
	}

	switch e.Type {
	case EventFire:
		f := e.Fire
		switch {
		case f.Hit == nil:
			return fmt.Sprintf("%s fired and missed the field entirely", name(f.ShooterID))
		case f.Hit.TargetID != "":
			return fmt.Sprintf("%s hit %s", name(f.ShooterID), name(f.Hit.TargetID))
		default:
			return fmt.Sprintf("%s's shot landed at %s", name(f.ShooterID), f.Hit.Cell)
		}
	case EventLandMine:
		return fmt.Sprintf("%s stepped on a landmine", name(e.PlayerID))
	case EventStorm:
		return fmt.Sprintf("%s was caught in the storm", name(e.PlayerID))
	case EventDeath:
		return fmt.Sprintf("%s was defeated", name(e.PlayerID))
	default:
		return string(e.Type)
	}
}

// describeShrink announces a storm step.
func describeShrink(round, dist int) string {
	return fmt.Sprintf("The storm closes in for the %s time (radius %d)",
		humanize.Ordinal(round/StormInterval), dist)
}

// describeQuiet is shown for a round in which nothing happened.
func describeQuiet(round int) string {
	return fmt.Sprintf("The %s round passed quietly", humanize.Ordinal(round))
}
