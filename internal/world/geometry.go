package world

import "math"

// Layout constants for the pointy-top world projection. The horizontal
// plane is x–z; y is up.
const (
	CellSize = 1.2
	// TopRadius is the circumradius of a cell's top face. The small gap to
	// CellSize leaves visible seams between columns.
	TopRadius = CellSize - 0.005
	// MuzzleOffset is the height of a player's firing point above the top
	// face of the cell they stand on.
	MuzzleOffset = 0.26
)

var sqrt3 = math.Sqrt(3)

// Vec3 is a point in world space.
type Vec3 struct {
	X float64 `json:"x" msgpack:"x"`
	Y float64 `json:"y" msgpack:"y"`
	Z float64 `json:"z" msgpack:"z"`
}

// Center returns the horizontal centre of a coordinate's column. Rows
// advance along r: +q is +x and +r is +z.
func Center(coord HexCoord) (x, z float64) {
	x = CellSize * sqrt3 * (float64(coord.Q) + float64(coord.R)/2)
	z = CellSize * 1.5 * float64(coord.R)
	return x, z
}

// TopVertices returns the six corners of the cell's top face, in order
// around the perimeter.
func (c Cell) TopVertices() [6]Vec3 {
	cx, cz := Center(c.Coord())
	var out [6]Vec3
	for i := range out {
		theta := math.Pi/6 + float64(i)*math.Pi/3
		out[i] = Vec3{
			X: cx + TopRadius*math.Cos(theta),
			Y: c.Elevation,
			Z: cz + TopRadius*math.Sin(theta),
		}
	}
	return out
}

// ContainsXZ reports whether the horizontal projection of (x, z) falls
// inside the cell's top face, using an even-odd ray cast.
func (c Cell) ContainsXZ(x, z float64) bool {
	v := c.TopVertices()
	inside := false
	for i := range v {
		a, b := v[i], v[(i+1)%len(v)]
		if (a.Z > z) != (b.Z > z) &&
			x < (b.X-a.X)*(z-a.Z)/(b.Z-a.Z)+a.X {
			inside = !inside
		}
	}
	return inside
}

// MuzzlePoint is where a player standing on the cell fires from.
func (c Cell) MuzzlePoint() Vec3 {
	x, z := Center(c.Coord())
	return Vec3{X: x, Y: c.Elevation + MuzzleOffset, Z: z}
}

// Nearest returns the coordinate whose centre is closest to (x, z). The
// result may lie outside the field.
func Nearest(x, z float64) HexCoord {
	fq := (sqrt3/3*x - z/3) / CellSize
	fr := (2.0 / 3.0 * z) / CellSize
	fs := -fq - fr

	q := math.Round(fq)
	r := math.Round(fr)
	s := math.Round(fs)

	dq := math.Abs(q - fq)
	dr := math.Abs(r - fr)
	ds := math.Abs(s - fs)

	switch {
	case dq > dr && dq > ds:
		q = -r - s
	case dr > ds:
		r = -q - s
	}
	return HexCoord{Q: int(q), R: int(r)}
}

// Locate returns the field cell whose top face contains (x, z). The nearest
// centre and its ring are tested so seams resolve to the true owner.
func (f *Field) Locate(x, z float64) (Cell, bool) {
	near := Nearest(x, z)
	if c, ok := f.cells[near]; ok && c.ContainsXZ(x, z) {
		return c, true
	}
	for _, n := range near.Neighbors() {
		if c, ok := f.cells[n]; ok && c.ContainsXZ(x, z) {
			return c, true
		}
	}
	return Cell{}, false
}
