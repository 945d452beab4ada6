package ballistics

import (
	"github.com/talgya/hexfire/internal/world"
)

// Impact is the first terrain column a path enters from above.
type Impact struct {
	Cell  world.HexCoord `json:"cell"`
	Point world.Vec3     `json:"point"`
	// Sample is the index of the accepted sample in flight order.
	Sample int `json:"-"`
}

// FindImpact scans every sample of path in flight order and returns the
// first one that lies inside a cell's top-face outline at or below that
// cell's top. The impact point keeps the sample's x/z and takes the cell's
// top height. A path that never satisfies both conditions is a miss.
func FindImpact(path *Path, f *world.Field) (Impact, bool) {
	return FindImpactStride(path, f, 1)
}

// FindImpactStride is FindImpact testing only every stride-th sample, plus
// the final one. Coarser strides are cheaper but can pass over thin
// columns; the first accepted sample is still the earliest tested.
func FindImpactStride(path *Path, f *world.Field, stride int) (Impact, bool) {
	if stride < 1 {
		stride = 1
	}
	for i := 0; ; i++ {
		pt, ok := path.Next()
		if !ok {
			return Impact{}, false
		}
		if i%stride != 0 && !path.done {
			continue
		}
		if imp, hit := test(pt, f); hit {
			imp.Sample = i
			return imp, true
		}
	}
}

func test(pt world.Vec3, f *world.Field) (Impact, bool) {
	c, ok := f.Locate(pt.X, pt.Z)
	if !ok || pt.Y > c.Elevation {
		return Impact{}, false
	}
	return Impact{
		Cell:  c.Coord(),
		Point: world.Vec3{X: pt.X, Y: c.Elevation, Z: pt.Z},
	}, true
}

// ShapeToImpact trims a freshly computed path for display so it ends at a
// known impact point: after the apex, the first sample below the impact
// height is replaced by the impact point itself. It only shapes the curve;
// who was hit is never derived from it.
func ShapeToImpact(points []world.Vec3, hit world.Vec3) []world.Vec3 {
	out := make([]world.Vec3, 0, len(points)+1)
	descending := false
	for i, pt := range points {
		if i > 0 && pt.Y < points[i-1].Y {
			descending = true
		}
		if descending && pt.Y < hit.Y {
			return append(out, hit)
		}
		out = append(out, pt)
	}
	return append(out, hit)
}
