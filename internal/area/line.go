package area

import (
	"fmt"
	"strings"

	"github.com/tphakala/odeflow/internal/detection"
)

// Direction is the side of a directed line a test point must be on.
// Left and right are seen when walking from the start to the end point.
type Direction int

const (
	CrossLeft Direction = iota + 1
	CrossRight
)

func (d Direction) String() string {
	switch d {
	case CrossLeft:
		return "left"
	case CrossRight:
		return "right"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// ParseDirection converts a config value. Empty means left.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "left":
		return CrossLeft, nil
	case "right":
		return CrossRight, nil
	default:
		return CrossLeft, fmt.Errorf("unknown line direction %q", s)
	}
}

// Side is the result of classifying a point against a line.
type Side int

const (
	SideOn Side = iota
	SideLeft
	SideRight
)

func (s Side) String() string {
	switch s {
	case SideLeft:
		return "left"
	case SideRight:
		return "right"
	default:
		return "on"
	}
}

// Line is a two-point area. In side mode a box is a member when its test
// point is on the configured side; in edge mode when the configured edge
// intersects the segment.
type Line struct {
	base
	start, end detection.Point
}

// NewLine creates a line area from two distinct coordinates.
func NewLine(name string, polarity Polarity, start, end detection.Point, opts ...Option) (*Line, error) {
	b, err := newBase(name, polarity, opts)
	if err != nil {
		return nil, err
	}
	if start == end {
		return nil, invalid(ErrInvalidGeometry, name, "line end points must differ")
	}
	return &Line{base: b, start: start, end: end}, nil
}

// NewLineFromCoords is NewLine for config-sourced coordinate lists, which
// must hold exactly two points.
func NewLineFromCoords(name string, polarity Polarity, coords []detection.Point, opts ...Option) (*Line, error) {
	if len(coords) != 2 {
		return nil, invalid(ErrInvalidGeometry, name, "line needs exactly 2 coordinates, got %d", len(coords))
	}
	return NewLine(name, polarity, coords[0], coords[1], opts...)
}

// Endpoints returns the directed segment.
func (l *Line) Endpoints() (detection.Point, detection.Point) { return l.start, l.end }

// Direction returns the side the area matches in side mode.
func (l *Line) Direction() Direction { return l.direction }

// Edge returns the bbox edge in edge mode, or EdgeNone.
func (l *Line) Edge() detection.Edge { return l.edge }

// Test reports membership, polarity applied.
func (l *Line) Test(bbox detection.BBox) bool {
	if l.edge != detection.EdgeNone {
		p1, p2 := bbox.Edge(l.edge)
		return l.apply(segmentsIntersect(p1, p2, l.start, l.end))
	}
	want := SideLeft
	if l.direction == CrossRight {
		want = SideRight
	}
	return l.apply(l.Side(bbox.Point(l.testPoint)) == want)
}

// Side classifies pt against the directed line with the sign of the cross
// product. Image coordinates grow downward, so positive is taken as left.
func (l *Line) Side(pt detection.Point) Side {
	switch c := cross(l.start, l.end, pt); {
	case c > 0:
		return SideLeft
	case c < 0:
		return SideRight
	default:
		return SideOn
	}
}

// cross is the z component of (b-a) x (p-a).
func cross(a, b, p detection.Point) float64 {
	return (b.X-a.X)*(p.Y-a.Y) - (b.Y-a.Y)*(p.X-a.X)
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

// onSegment reports whether collinear point p lies within the box of a-b.
func onSegment(a, b, p detection.Point) bool {
	return min(a.X, b.X) <= p.X && p.X <= max(a.X, b.X) &&
		min(a.Y, b.Y) <= p.Y && p.Y <= max(a.Y, b.Y)
}

// segmentsIntersect reports whether p1-p2 and q1-q2 share at least one point.
func segmentsIntersect(p1, p2, q1, q2 detection.Point) bool {
	d1 := sign(cross(q1, q2, p1))
	d2 := sign(cross(q1, q2, p2))
	d3 := sign(cross(p1, p2, q1))
	d4 := sign(cross(p1, p2, q2))

	if d1*d2 < 0 && d3*d4 < 0 {
		return true
	}
	return (d1 == 0 && onSegment(q1, q2, p1)) ||
		(d2 == 0 && onSegment(q1, q2, p2)) ||
		(d3 == 0 && onSegment(p1, p2, q1)) ||
		(d4 == 0 && onSegment(p1, p2, q2))
}
