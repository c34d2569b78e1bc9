// Package area implements the geometric filters that scope ODE triggers to
// regions of a frame. An area answers one question for a bounding box:
// does the object belong to it.
package area

import (
	"fmt"
	"strings"

	"github.com/tphakala/odeflow/internal/detection"
	"github.com/tphakala/odeflow/internal/errors"
)

const componentName = "area"

var (
	// ErrInvalidGeometry is returned when an area's coordinates cannot form
	// the requested shape.
	ErrInvalidGeometry = errors.NewStd("invalid area geometry")
	// ErrInvalidParameter is returned for out-of-range enum values.
	ErrInvalidParameter = errors.NewStd("invalid area parameter")
)

// Polarity decides whether membership means inside or outside the geometry.
type Polarity int

const (
	Inclusion Polarity = iota
	Exclusion
)

func (p Polarity) String() string {
	switch p {
	case Inclusion:
		return "inclusion"
	case Exclusion:
		return "exclusion"
	default:
		return fmt.Sprintf("Polarity(%d)", int(p))
	}
}

// ParsePolarity converts a config value. Empty means inclusion.
func ParsePolarity(s string) (Polarity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "inclusion", "include":
		return Inclusion, nil
	case "exclusion", "exclude":
		return Exclusion, nil
	default:
		return Inclusion, fmt.Errorf("unknown area polarity %q", s)
	}
}

// Style is display metadata for collaborators that draw areas. It plays no
// part in membership decisions.
type Style struct {
	Color     string `json:"color,omitempty"`
	LineWidth int    `json:"line_width,omitempty"`
}

// Area is a named spatial filter.
type Area interface {
	Name() string
	Polarity() Polarity
	Style() Style
	// Test reports whether the bounding box is a member of the area,
	// polarity applied.
	Test(bbox detection.BBox) bool
}

// Option customizes an area at construction.
type Option func(*base)

// WithTestPoint selects which point of the bounding box is tested.
func WithTestPoint(tp detection.TestPoint) Option {
	return func(b *base) { b.testPoint = tp }
}

// WithStyle sets the display style.
func WithStyle(s Style) Option {
	return func(b *base) { b.style = s }
}

// WithDirection sets the side a line area matches. Ignored by polygons.
func WithDirection(d Direction) Option {
	return func(b *base) { b.direction = d }
}

// WithEdge switches a line area to edge mode: a box is a member when the
// given edge intersects the line. Ignored by polygons.
func WithEdge(e detection.Edge) Option {
	return func(b *base) { b.edge = e }
}

type base struct {
	name      string
	polarity  Polarity
	style     Style
	testPoint detection.TestPoint
	direction Direction
	edge      detection.Edge
}

func newBase(name string, polarity Polarity, opts []Option) (base, error) {
	b := base{name: name, polarity: polarity, direction: CrossLeft}
	for _, opt := range opts {
		opt(&b)
	}
	switch {
	case name == "":
		return b, invalid(ErrInvalidParameter, name, "area name must not be empty")
	case polarity != Inclusion && polarity != Exclusion:
		return b, invalid(ErrInvalidParameter, name, "unknown polarity %d", int(polarity))
	case !b.testPoint.Valid():
		return b, invalid(ErrInvalidParameter, name, "unknown test point %d", int(b.testPoint))
	case b.direction != CrossLeft && b.direction != CrossRight:
		return b, invalid(ErrInvalidParameter, name, "unknown direction %d", int(b.direction))
	case b.edge < detection.EdgeNone || b.edge > detection.EdgeRight:
		return b, invalid(ErrInvalidParameter, name, "unknown edge %d", int(b.edge))
	}
	return b, nil
}

func (b *base) Name() string       { return b.name }
func (b *base) Polarity() Polarity { return b.polarity }
func (b *base) Style() Style       { return b.style }

// TestPoint returns the bounding box point the area evaluates.
func (b *base) TestPoint() detection.TestPoint { return b.testPoint }

func (b *base) apply(member bool) bool {
	return member == (b.polarity == Inclusion)
}

func invalid(sentinel error, name, format string, args ...any) error {
	return errors.Newf("%s: %w", fmt.Sprintf(format, args...), sentinel).
		Component(componentName).
		Category(errors.CategoryValidation).
		Context("area", name).
		Build()
}
