// Package tectonics models plates, their motion over the toroidal grid, boundary
// classification, stress accumulation and the geological events stress releases.
package tectonics

import (
	"fmt"

	"github.com/talgya/overworld/internal/world"
)

// Class is the crust type of a plate.
type Class uint8

const (
	Continental Class = iota
	Oceanic
)

func (c Class) String() string {
	if c == Continental {
		return "continental"
	}
	return "oceanic"
}

// MarshalText implements encoding.TextMarshaler.
func (c Class) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Class) UnmarshalText(b []byte) error {
	return parseEnum(b, "plate class", c, []Class{Continental, Oceanic})
}

// State is the dominant interaction of a plate with its neighbours.
type State uint8

const (
	Stable State = iota
	Colliding
	Separating
	Shearing
)

func (s State) String() string {
	switch s {
	case Colliding:
		return "colliding"
	case Separating:
		return "separating"
	case Shearing:
		return "shearing"
	default:
		return "stable"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(b []byte) error {
	return parseEnum(b, "plate state", s, []State{Stable, Colliding, Separating, Shearing})
}

// BoundaryKind classifies relative motion across a plate boundary.
type BoundaryKind uint8

const (
	Inactive BoundaryKind = iota
	Convergent
	Divergent
	Transform
)

func (k BoundaryKind) String() string {
	switch k {
	case Convergent:
		return "convergent"
	case Divergent:
		return "divergent"
	case Transform:
		return "transform"
	default:
		return "inactive"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k BoundaryKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *BoundaryKind) UnmarshalText(b []byte) error {
	return parseEnum(b, "boundary kind", k, []BoundaryKind{Inactive, Convergent, Divergent, Transform})
}

// EventKind is the closed set of geological events.
type EventKind uint8

const (
	Earthquake EventKind = iota
	Volcano
	Uplift
	Rift
)

// EventKinds lists every event kind in declaration order.
var EventKinds = []EventKind{Earthquake, Volcano, Uplift, Rift}

func (k EventKind) String() string {
	switch k {
	case Earthquake:
		return "earthquake"
	case Volcano:
		return "volcano"
	case Uplift:
		return "uplift"
	case Rift:
		return "rift"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k EventKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *EventKind) UnmarshalText(b []byte) error {
	return parseEnum(b, "event kind", k, EventKinds)
}

// parseEnum sets *dst to the member of values whose name is b.
func parseEnum[T fmt.Stringer](b []byte, what string, dst *T, values []T) error {
	for _, v := range values {
		if v.String() == string(b) {
			*dst = v
			return nil
		}
	}
	return fmt.Errorf("unknown %s %q", what, b)
}

// ParseEventKind converts a name back to an EventKind.
func ParseEventKind(s string) (EventKind, bool) {
	for _, k := range EventKinds {
		if k.String() == s {
			return k, true
		}
	}
	return 0, false
}

// Plate is one rigid lithospheric plate.
type Plate struct {
	ID    int         `json:"id"`
	Class Class       `json:"class"`
	VX    float64     `json:"vx"` // Distance units per year
	VY    float64     `json:"vy"`
	State State       `json:"state"`
	Cells int         `json:"cells"`
	Seed  world.Coord `json:"seed"`

	accX, accY float64 // Sub-cell displacement not yet stepped
}

// Speed returns the magnitude of the plate velocity.
func (p *Plate) Speed() float64 {
	return hypot(p.VX, p.VY)
}

// Boundary is the interface between an ordered plate pair (A < B).
type Boundary struct {
	A           int          `json:"a"`
	B           int          `json:"b"`
	Cells       []int        `json:"-"`
	CellCount   int          `json:"cells"`
	NX          float64      `json:"nx"` // Mean normal pointing from A toward B
	NY          float64      `json:"ny"`
	RelSpeed    float64      `json:"relative_speed"`
	Normal      float64      `json:"normal_speed"` // Positive when closing
	Tangential  float64      `json:"tangential_speed"`
	Kind        BoundaryKind `json:"kind"`
	Stress      float64      `json:"stress"`
	LastRelease uint64       `json:"last_release_tick"`
}

// GeologicalEvent is a stress release applied once to the terrain.
type GeologicalEvent struct {
	Seq       uint64      `json:"seq"` // Emission order, assigned by the simulation
	Kind      EventKind   `json:"kind"`
	Cell      world.Coord `json:"cell"`
	Index     int         `json:"-"`
	Magnitude float64     `json:"magnitude"`
	Tick      uint64      `json:"tick"`
	PlateA    int         `json:"plate_a"`
	PlateB    int         `json:"plate_b"` // -1 for forced events inside one plate
	Strike    float64     `json:"strike"`  // Fault orientation in radians
	Forced    bool        `json:"forced"`
}

type pairKey struct{ a, b int }

func orderedPair(p, q int) pairKey {
	if p < q {
		return pairKey{p, q}
	}
	return pairKey{q, p}
}
