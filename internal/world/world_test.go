package world

import (
	"bytes"
	"encoding/json"
	"math"
	"math/rand"
	"testing"
)

func TestGenerateCubeInvariant(t *testing.T) {
	f := Generate(SmallTestConfig())
	for _, c := range f.Cells() {
		if c.Q+c.R+c.S != 0 {
			t.Fatalf("cell (%d,%d,%d) violates q+r+s=0", c.Q, c.R, c.S)
		}
		if c.DistOrigin > f.Radius {
			t.Fatalf("cell %s outside radius %d", c.Coord(), f.Radius)
		}
		if want := max(abs(c.Q), abs(c.R), abs(c.S)); c.DistOrigin != want {
			t.Errorf("cell %s distOrigin = %d, want %d", c.Coord(), c.DistOrigin, want)
		}
	}
}

func TestGenerateHexCount(t *testing.T) {
	tests := []struct {
		radius int
		want   int
	}{
		{0, 1}, {1, 7}, {2, 19}, {5, 91}, {20, 1261},
	}
	for _, tt := range tests {
		f := Generate(GenConfig{Radius: tt.radius, Seed: 7})
		if got := f.HexCount(); got != tt.want {
			t.Errorf("Generate(radius=%d) has %d hexes, want %d", tt.radius, got, tt.want)
		}
	}
}

func TestGenerateDeterministic(t *testing.T) {
	cfg := GenConfig{Radius: 12, Seed: 1234}
	a, err := json.Marshal(Generate(cfg).Cells())
	if err != nil {
		t.Fatal(err)
	}
	b, err := json.Marshal(Generate(cfg).Cells())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Fatalf("same seed and radius produced different fields")
	}

	c, _ := json.Marshal(Generate(GenConfig{Radius: 12, Seed: 4321}).Cells())
	if bytes.Equal(a, c) {
		t.Errorf("different seeds produced identical fields")
	}
}

func TestGenerateRecordsRandomSeed(t *testing.T) {
	f := Generate(GenConfig{Radius: 3})
	if f.Seed == 0 {
		t.Fatalf("expected a drawn seed to be recorded on the field")
	}
	a, _ := json.Marshal(f.Cells())
	b, _ := json.Marshal(Generate(GenConfig{Radius: 3, Seed: f.Seed}).Cells())
	if !bytes.Equal(a, b) {
		t.Errorf("regenerating from the recorded seed differs")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		height     float64
		want       Terrain
		wantHeight float64
	}{
		{1.5, TerrainDeepWater, WaterHeight},
		{2.99, TerrainDeepWater, WaterHeight},
		{3.0, TerrainWater, WaterHeight},
		{3.59, TerrainWater, WaterHeight},
		{3.6, TerrainSand, 3.6},
		{4.0, TerrainGrass, 4.0},
		{4.99, TerrainGrass, 4.99},
		{5.0, TerrainForest, 5.0},
		{6.8, TerrainSnow, 6.8},
		{7.5, TerrainSnow, 7.5},
	}
	for _, tt := range tests {
		got, h := Classify(tt.height)
		if got != tt.want || h != tt.wantHeight {
			t.Errorf("Classify(%.2f) = %s/%.2f, want %s/%.2f", tt.height, got, h, tt.want, tt.wantHeight)
		}
	}
}

func TestRemapHeight(t *testing.T) {
	if got, want := RemapHeight(0), math.Pow(1.75*1.85, 1.25); math.Abs(got-want) > 1e-12 {
		t.Errorf("RemapHeight(0) = %f, want %f", got, want)
	}
	if RemapHeight(-1) >= RemapHeight(1) {
		t.Errorf("RemapHeight should be increasing")
	}
}

func TestNeighbors(t *testing.T) {
	origin := HexCoord{}
	for _, n := range origin.Neighbors() {
		if Distance(origin, n) != 1 {
			t.Errorf("neighbor %s is not adjacent to origin", n)
		}
	}

	f := Generate(GenConfig{Radius: 1, Seed: 3})
	if got := len(f.Neighbors(HexCoord{Q: 1, R: 0})); got != 3 {
		t.Errorf("edge cell has %d in-field neighbors, want 3", got)
	}
	if got := len(f.Neighbors(origin)); got != 6 {
		t.Errorf("centre cell has %d in-field neighbors, want 6", got)
	}
}

func TestCube(t *testing.T) {
	if _, ok := Cube(1, -1, 0); !ok {
		t.Errorf("Cube(1,-1,0) rejected")
	}
	if _, ok := Cube(1, 1, 0); ok {
		t.Errorf("Cube(1,1,0) accepted")
	}
}

func TestCenterLayout(t *testing.T) {
	tests := []struct {
		coord HexCoord
		x, z  float64
	}{
		{HexCoord{}, 0, 0},
		{HexCoord{Q: 1}, CellSize * sqrt3, 0},
		{HexCoord{R: 1}, CellSize * sqrt3 / 2, CellSize * 1.5},
		{HexCoord{Q: 1, R: -1}, CellSize * sqrt3 / 2, -CellSize * 1.5},
	}
	for _, tt := range tests {
		x, z := Center(tt.coord)
		if math.Abs(x-tt.x) > 1e-9 || math.Abs(z-tt.z) > 1e-9 {
			t.Errorf("Center(%s) = (%.3f, %.3f), want (%.3f, %.3f)", tt.coord, x, z, tt.x, tt.z)
		}
	}
	// Neighbours sit one cell width apart.
	for _, n := range (HexCoord{}).Neighbors() {
		x, z := Center(n)
		if d := math.Hypot(x, z); math.Abs(d-CellSize*sqrt3) > 1e-9 {
			t.Errorf("neighbour %s at distance %.3f", n, d)
		}
	}
}

func TestLocateCentres(t *testing.T) {
	f := Generate(GenConfig{Radius: 6, Seed: 99})
	for _, c := range f.Cells() {
		x, z := Center(c.Coord())
		got, ok := f.Locate(x, z)
		if !ok || got.Coord() != c.Coord() {
			t.Fatalf("Locate(centre of %s) = %s, %v", c.Coord(), got.Coord(), ok)
		}
		if Nearest(x+0.3, z-0.2) != c.Coord() {
			t.Errorf("Nearest near %s resolved elsewhere", c.Coord())
		}
	}
	if _, ok := f.Locate(1000, 1000); ok {
		t.Errorf("Locate far outside field should miss")
	}
}

func TestContainsXZEdges(t *testing.T) {
	c := NewCell(HexCoord{Q: 2, R: -1}, TerrainGrass, 4.2)
	x, z := Center(c.Coord())
	if !c.ContainsXZ(x+TopRadius*0.8, z) {
		t.Errorf("point inside apothem not contained")
	}
	if c.ContainsXZ(x+CellSize, z) {
		t.Errorf("point past apothem should not be contained")
	}
	if !c.ContainsXZ(x, z+TopRadius*0.95) {
		t.Errorf("point near top vertex not contained")
	}
}

func TestNewFieldRejectsBadCells(t *testing.T) {
	if _, err := NewField(1, 1, []Cell{{Q: 1, R: 1, S: 1}}); err == nil {
		t.Errorf("expected cube invariant error")
	}
	c := NewCell(HexCoord{}, TerrainSand, 3.8)
	if _, err := NewField(1, 1, []Cell{c, c}); err == nil {
		t.Errorf("expected duplicate error")
	}
}

func TestRandomCellInField(t *testing.T) {
	f := Generate(SmallTestConfig())
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		if coord := f.RandomCell(rng); !f.Has(coord) {
			t.Fatalf("RandomCell returned %s outside field", coord)
		}
	}
}

func TestHexCoordJSON(t *testing.T) {
	b, err := json.Marshal(HexCoord{Q: 1, R: -1})
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"q":1,"r":-1,"s":0}` {
		t.Errorf("marshal = %s", b)
	}

	var h HexCoord
	if err := json.Unmarshal([]byte(`{"q":2,"r":-3}`), &h); err != nil || h != (HexCoord{Q: 2, R: -3}) {
		t.Errorf("unmarshal without s = %v, %v", h, err)
	}
	if err := json.Unmarshal([]byte(`{"q":2,"r":-3,"s":0}`), &h); err == nil {
		t.Errorf("expected error for q+r+s != 0")
	}
}
