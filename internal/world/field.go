package world

import (
	"fmt"
	"math/rand"
	"sort"
)

// Field holds the complete hex grid for one match. It is built once by
// Generate (or rebuilt verbatim from a snapshot) and never mutated after.
type Field struct {
	cells  map[HexCoord]Cell
	order  []HexCoord
	Radius int
	Seed   int64
}

// NewField builds a field from a list of cells, typically a terrain
// snapshot received from the host. Cells must satisfy q + r + s = 0 and be
// unique.
func NewField(radius int, seed int64, cells []Cell) (*Field, error) {
	f := &Field{
		cells:  make(map[HexCoord]Cell, len(cells)),
		Radius: radius,
		Seed:   seed,
	}
	for _, c := range cells {
		if c.Q+c.R+c.S != 0 {
			return nil, fmt.Errorf("cell (%d,%d,%d): cube components do not sum to zero", c.Q, c.R, c.S)
		}
		coord := c.Coord()
		if _, dup := f.cells[coord]; dup {
			return nil, fmt.Errorf("cell %s: duplicate", coord)
		}
		c.DistOrigin = coord.DistOrigin()
		f.cells[coord] = c
		f.order = append(f.order, coord)
	}
	sort.Slice(f.order, func(i, j int) bool {
		a, b := f.order[i], f.order[j]
		if a.Q != b.Q {
			return a.Q < b.Q
		}
		return a.R < b.R
	})
	return f, nil
}

// Get returns the cell at the given coordinate.
func (f *Field) Get(coord HexCoord) (Cell, bool) {
	c, ok := f.cells[coord]
	return c, ok
}

// Has reports whether the coordinate is part of the field.
func (f *Field) Has(coord HexCoord) bool {
	_, ok := f.cells[coord]
	return ok
}

// Cells returns every cell in ascending (q, r) order.
func (f *Field) Cells() []Cell {
	out := make([]Cell, len(f.order))
	for i, coord := range f.order {
		out[i] = f.cells[coord]
	}
	return out
}

// Neighbors returns the existing cells adjacent to coord.
func (f *Field) Neighbors(coord HexCoord) []HexCoord {
	var out []HexCoord
	for _, n := range coord.Neighbors() {
		if f.Has(n) {
			out = append(out, n)
		}
	}
	return out
}

// RandomCell picks uniformly among all generated cells. Callers that need
// an unoccupied cell retry until they get one.
func (f *Field) RandomCell(rng *rand.Rand) HexCoord {
	return f.order[rng.Intn(len(f.order))]
}

// HexCount returns the total number of hexes in the field.
func (f *Field) HexCount() int {
	return len(f.cells)
}

// String returns a summary of the field.
func (f *Field) String() string {
	return fmt.Sprintf("Field(radius=%d, hexes=%d, seed=%d)", f.Radius, f.HexCount(), f.Seed)
}
