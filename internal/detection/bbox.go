package detection

import (
	"fmt"
	"strings"
)

// BBox is an axis-aligned bounding box in frame pixels.
type BBox struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (b BBox) Right() float64  { return b.Left + b.Width }
func (b BBox) Bottom() float64 { return b.Top + b.Height }

// Intersects reports whether two boxes overlap with a non-zero area.
func (b BBox) Intersects(o BBox) bool {
	return b.Left < o.Right() && o.Left < b.Right() &&
		b.Top < o.Bottom() && o.Top < b.Bottom()
}

// Point returns the canonical test point of the box.
func (b BBox) Point(tp TestPoint) Point {
	cx := b.Left + b.Width/2
	cy := b.Top + b.Height/2
	switch tp {
	case PointTopLeft:
		return Point{b.Left, b.Top}
	case PointTop:
		return Point{cx, b.Top}
	case PointTopRight:
		return Point{b.Right(), b.Top}
	case PointRight:
		return Point{b.Right(), cy}
	case PointBottomRight:
		return Point{b.Right(), b.Bottom()}
	case PointBottom:
		return Point{cx, b.Bottom()}
	case PointBottomLeft:
		return Point{b.Left, b.Bottom()}
	case PointLeft:
		return Point{b.Left, cy}
	default:
		return Point{cx, cy}
	}
}

// Edge returns the two end points of one side of the box.
func (b BBox) Edge(e Edge) (Point, Point) {
	switch e {
	case EdgeTop:
		return Point{b.Left, b.Top}, Point{b.Right(), b.Top}
	case EdgeBottom:
		return Point{b.Left, b.Bottom()}, Point{b.Right(), b.Bottom()}
	case EdgeLeft:
		return Point{b.Left, b.Top}, Point{b.Left, b.Bottom()}
	case EdgeRight:
		return Point{b.Right(), b.Top}, Point{b.Right(), b.Bottom()}
	default:
		c := b.Point(PointCenter)
		return c, c
	}
}

// TestPoint selects one of the nine canonical points of a bounding box.
type TestPoint int

const (
	PointCenter TestPoint = iota
	PointTopLeft
	PointTop
	PointTopRight
	PointRight
	PointBottomRight
	PointBottom
	PointBottomLeft
	PointLeft
)

var testPointNames = [...]string{
	PointCenter:      "center",
	PointTopLeft:     "top-left",
	PointTop:         "top",
	PointTopRight:    "top-right",
	PointRight:       "right",
	PointBottomRight: "bottom-right",
	PointBottom:      "bottom",
	PointBottomLeft:  "bottom-left",
	PointLeft:        "left",
}

func (tp TestPoint) String() string {
	if tp.Valid() {
		return testPointNames[tp]
	}
	return fmt.Sprintf("TestPoint(%d)", int(tp))
}

// Valid reports whether tp is one of the nine defined points.
func (tp TestPoint) Valid() bool {
	return tp >= PointCenter && tp <= PointLeft
}

// ParseTestPoint converts a config name to a TestPoint. Empty means center.
func ParseTestPoint(s string) (TestPoint, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return PointCenter, nil
	}
	for i, name := range testPointNames {
		if name == s {
			return TestPoint(i), nil
		}
	}
	return PointCenter, fmt.Errorf("unknown bbox test point %q", s)
}

// Edge selects one side of a bounding box.
type Edge int

const (
	EdgeNone Edge = iota
	EdgeTop
	EdgeBottom
	EdgeLeft
	EdgeRight
)

var edgeNames = [...]string{
	EdgeNone:   "",
	EdgeTop:    "top",
	EdgeBottom: "bottom",
	EdgeLeft:   "left",
	EdgeRight:  "right",
}

func (e Edge) String() string {
	if e >= EdgeNone && e <= EdgeRight {
		if e == EdgeNone {
			return "none"
		}
		return edgeNames[e]
	}
	return fmt.Sprintf("Edge(%d)", int(e))
}

// ParseEdge converts a config name to an Edge. Empty or "none" is EdgeNone.
func ParseEdge(s string) (Edge, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || s == "none" {
		return EdgeNone, nil
	}
	for i, name := range edgeNames {
		if i > 0 && name == s {
			return Edge(i), nil
		}
	}
	return EdgeNone, fmt.Errorf("unknown bbox edge %q", s)
}
