package area

import (
	"slices"

	"github.com/tphakala/odeflow/internal/detection"
)

// Polygon is a closed area. The last coordinate connects back to the first.
type Polygon struct {
	base
	coords []detection.Point
}

// NewPolygon creates a polygon area from at least three coordinates.
func NewPolygon(name string, polarity Polarity, coords []detection.Point, opts ...Option) (*Polygon, error) {
	b, err := newBase(name, polarity, opts)
	if err != nil {
		return nil, err
	}
	if len(coords) < 3 {
		return nil, invalid(ErrInvalidGeometry, name, "polygon needs at least 3 coordinates, got %d", len(coords))
	}
	return &Polygon{base: b, coords: slices.Clone(coords)}, nil
}

// Coordinates returns a copy of the vertices.
func (p *Polygon) Coordinates() []detection.Point {
	return slices.Clone(p.coords)
}

// Test reports membership of the box's test point.
func (p *Polygon) Test(bbox detection.BBox) bool {
	return p.apply(p.Contains(bbox.Point(p.testPoint)))
}

// Contains reports whether pt lies inside the polygon using the even-odd
// ray casting rule. Polarity is not applied.
func (p *Polygon) Contains(pt detection.Point) bool {
	inside := false
	n := len(p.coords)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a, b := p.coords[i], p.coords[j]
		if (a.Y > pt.Y) != (b.Y > pt.Y) &&
			pt.X < (b.X-a.X)*(pt.Y-a.Y)/(b.Y-a.Y)+a.X {
			inside = !inside
		}
	}
	return inside
}
