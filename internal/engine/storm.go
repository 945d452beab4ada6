package engine

// stormShrinks reports whether the storm closes in at the end of round.
func stormShrinks(round int) bool {
	return round > 0 && round%StormInterval == 0
}

// shrink returns the next storm radius, never below MinStormDist.
func shrink(dist int) int {
	return max(dist-1, MinStormDist)
}

// InitialStormDist is the storm radius for a field of the given radius.
func InitialStormDist(fieldRadius int) int {
	return max(fieldRadius, MinStormDist)
}
