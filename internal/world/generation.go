// Terrain generation using seeded simplex noise.
// Samples one noise layer per hex, remaps it to a height and classifies
// the height into a terrain band.
package world

import (
	"math"
	"math/rand"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// Terrain band thresholds on the remapped height.
const (
	DeepWaterHeight = 3.0
	WaterHeight     = 3.6
	SandHeight      = 4.0
	GrassHeight     = 5.0
	ForestHeight    = 6.8

	// NoiseScale is the step between neighboring noise samples.
	NoiseScale = 0.1
)

// GenConfig holds field generation parameters.
type GenConfig struct {
	Radius int   // Hex grid radius (20 = 1261 hexes)
	Seed   int64 // Noise seed (0 = random)
}

// DefaultGenConfig returns the standard match configuration.
func DefaultGenConfig() GenConfig {
	return GenConfig{
		Radius: 20,
		Seed:   0,
	}
}

// SmallTestConfig returns a tiny field for rapid iteration.
func SmallTestConfig() GenConfig {
	return GenConfig{
		Radius: 5,
		Seed:   42,
	}
}

// Generate creates a complete field. Identical seed and radius always
// produce an identical field.
func Generate(cfg GenConfig) *Field {
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Int63()
	}
	radius := cfg.Radius
	if radius < 0 {
		radius = 0
	}

	noise := opensimplex.New(seed)

	var cells []Cell
	for i := -radius; i <= radius; i++ {
		for j := -radius; j <= radius; j++ {
			k := -i - j
			if abs(k) > radius {
				continue
			}

			n := noise.Eval2(float64(i)*NoiseScale, float64(j)*NoiseScale)
			terrain, height := Classify(RemapHeight(n))
			cells = append(cells, NewCell(HexCoord{Q: i, R: j}, terrain, height))
		}
	}

	f, err := NewField(radius, seed, cells)
	if err != nil {
		// Generated coordinates are unique and cube-valid by construction.
		panic(err)
	}
	return f
}

// RemapHeight maps raw noise in [-1, 1] onto the terrain height scale.
func RemapHeight(noise float64) float64 {
	return math.Pow((noise+1.75)*1.85, 1.25)
}

// Classify derives the terrain band for a height. Water of either depth is
// flattened to WaterHeight.
func Classify(height float64) (Terrain, float64) {
	switch {
	case height < WaterHeight:
		if height < DeepWaterHeight {
			return TerrainDeepWater, WaterHeight
		}
		return TerrainWater, WaterHeight
	case height < SandHeight:
		return TerrainSand, height
	case height < GrassHeight:
		return TerrainGrass, height
	case height < ForestHeight:
		return TerrainForest, height
	default:
		return TerrainSnow, height
	}
}

// TerrainCounts returns a summary of terrain type distribution.
func TerrainCounts(f *Field) map[Terrain]int {
	counts := make(map[Terrain]int)
	for _, c := range f.cells {
		counts[c.Terrain]++
	}
	return counts
}
