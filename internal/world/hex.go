// Package world provides the hex grid, terrain, and field geometry.
// Uses axial coordinates (q, r) for the hex grid; s is derived.
package world

import (
	"encoding/json"
	"fmt"
)

// HexCoord represents a position on the hex grid using axial coordinates.
// The third cube coordinate s is derived: s = -q - r.
type HexCoord struct {
	Q int `json:"q" msgpack:"q"`
	R int `json:"r" msgpack:"r"`
}

// Cube builds a coordinate from all three cube components.
// ok is false when q + r + s != 0.
func Cube(q, r, s int) (HexCoord, bool) {
	return HexCoord{Q: q, R: r}, q+r+s == 0
}

// S returns the implicit third cube coordinate.
func (h HexCoord) S() int {
	return -h.Q - h.R
}

// DistOrigin returns max(|q|, |r|, |s|), the ring this coordinate sits on.
func (h HexCoord) DistOrigin() int {
	return Distance(h, HexCoord{})
}

// MarshalJSON writes all three cube components.
func (h HexCoord) MarshalJSON() ([]byte, error) {
	return json.Marshal(cubeJSON{Q: h.Q, R: h.R, S: h.S()})
}

// UnmarshalJSON accepts {q, r} or {q, r, s}; a supplied s must satisfy
// q + r + s = 0.
func (h *HexCoord) UnmarshalJSON(b []byte) error {
	var c struct {
		Q int  `json:"q"`
		R int  `json:"r"`
		S *int `json:"s"`
	}
	if err := json.Unmarshal(b, &c); err != nil {
		return err
	}
	if c.S != nil && c.Q+c.R+*c.S != 0 {
		return fmt.Errorf("coordinate (%d,%d,%d): cube components do not sum to zero", c.Q, c.R, *c.S)
	}
	h.Q, h.R = c.Q, c.R
	return nil
}

type cubeJSON struct {
	Q int `json:"q"`
	R int `json:"r"`
	S int `json:"s"`
}

func (h HexCoord) String() string {
	return fmt.Sprintf("(%d,%d,%d)", h.Q, h.R, h.S())
}

// Terrain types for hex tiles.
type Terrain uint8

const (
	TerrainDeepWater Terrain = iota
	TerrainWater
	TerrainSand
	TerrainGrass
	TerrainForest
	TerrainSnow
)

var terrainNames = [...]string{
	TerrainDeepWater: "DEEPWATER",
	TerrainWater:     "WATER",
	TerrainSand:      "SAND",
	TerrainGrass:     "GRASS",
	TerrainForest:    "FOREST",
	TerrainSnow:      "SNOW",
}

// String returns the wire name of the terrain.
func (t Terrain) String() string {
	if int(t) < len(terrainNames) {
		return terrainNames[t]
	}
	return "UNKNOWN"
}

// MarshalText encodes the terrain by name so snapshots stay readable.
func (t Terrain) MarshalText() ([]byte, error) {
	if int(t) >= len(terrainNames) {
		return nil, fmt.Errorf("unknown terrain %d", t)
	}
	return []byte(terrainNames[t]), nil
}

// UnmarshalText parses a terrain name.
func (t *Terrain) UnmarshalText(b []byte) error {
	for i, name := range terrainNames {
		if name == string(b) {
			*t = Terrain(i)
			return nil
		}
	}
	return fmt.Errorf("unknown terrain %q", b)
}

// Cell is a single generated tile. Immutable once generated.
// All three cube components are carried so the wire form is self-describing.
type Cell struct {
	Q          int     `json:"q" msgpack:"q"`
	R          int     `json:"r" msgpack:"r"`
	S          int     `json:"s" msgpack:"s"`
	Terrain    Terrain `json:"terrain" msgpack:"terrain"`
	Elevation  float64 `json:"elevation" msgpack:"elevation"`
	DistOrigin int     `json:"distOrigin" msgpack:"distOrigin"`
}

// NewCell fills the derived fields for a coordinate.
func NewCell(coord HexCoord, terrain Terrain, elevation float64) Cell {
	return Cell{
		Q:          coord.Q,
		R:          coord.R,
		S:          coord.S(),
		Terrain:    terrain,
		Elevation:  elevation,
		DistOrigin: coord.DistOrigin(),
	}
}

// Coord returns the cell's map key.
func (c Cell) Coord() HexCoord {
	return HexCoord{Q: c.Q, R: c.R}
}

// HexNeighborDirections defines the six neighbor offsets in axial coordinates.
var HexNeighborDirections = [6]HexCoord{
	{Q: 1, R: 0},
	{Q: 1, R: -1},
	{Q: 0, R: -1},
	{Q: -1, R: 0},
	{Q: -1, R: 1},
	{Q: 0, R: 1},
}

// Neighbors returns the six adjacent hex coordinates.
func (h HexCoord) Neighbors() [6]HexCoord {
	var result [6]HexCoord
	for i, dir := range HexNeighborDirections {
		result[i] = HexCoord{Q: h.Q + dir.Q, R: h.R + dir.R}
	}
	return result
}

// Adjacent reports whether b is one of a's six neighbors.
func Adjacent(a, b HexCoord) bool {
	return Distance(a, b) == 1
}

// Distance returns the hex distance between two coordinates.
func Distance(a, b HexCoord) int {
	dq := abs(a.Q - b.Q)
	dr := abs(a.R - b.R)
	ds := abs(a.S() - b.S())
	return max(dq, dr, ds)
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
