package tectonics

import (
	"cmp"
	"log/slog"
	"math"
	"slices"
)

// recomputeBoundaries rebuilds boundary segments from the current ownership.
// Stress and release ticks carry over for pairs that stay adjacent.
func (s *System) recomputeBoundaries() {
	g := s.grid
	next := make(map[pairKey]*Boundary)

	for i, id := range s.owner {
		for k, nb := range g.Neighbors4(i) {
			other := s.owner[nb]
			if other == id {
				continue
			}
			key := orderedPair(id, other)
			b := next[key]
			if b == nil {
				b = &Boundary{A: key.a, B: key.b}
				if prev := s.boundaries[key]; prev != nil {
					b.Stress = prev.Stress
					b.LastRelease = prev.LastRelease
				}
				next[key] = b
			}
			if n := len(b.Cells); n == 0 || b.Cells[n-1] != i {
				b.Cells = append(b.Cells, i)
			}

			// Offset toward the neighbour, oriented from A to B.
			o := offset4(k)
			if id == key.a {
				b.NX += float64(o[0])
				b.NY += float64(o[1])
			} else {
				b.NX -= float64(o[0])
				b.NY -= float64(o[1])
			}
		}
	}

	s.boundaries = next
	s.order = s.order[:0]
	for key := range next {
		s.order = append(s.order, key)
	}
	slices.SortFunc(s.order, func(x, y pairKey) int {
		if c := cmp.Compare(x.a, y.a); c != 0 {
			return c
		}
		return cmp.Compare(x.b, y.b)
	})

	for _, key := range s.order {
		s.classify(next[key])
	}
}

// offset4 returns the direction of the k-th orthogonal neighbour.
func offset4(k int) [2]int {
	switch k {
	case 0:
		return [2]int{1, 0}
	case 1:
		return [2]int{-1, 0}
	case 2:
		return [2]int{0, 1}
	default:
		return [2]int{0, -1}
	}
}

// classify derives relative motion and the boundary kind.
func (s *System) classify(b *Boundary) {
	b.CellCount = len(b.Cells)
	if l := hypot(b.NX, b.NY); l > 0 {
		b.NX /= l
		b.NY /= l
	}
	pa, pb := s.plates[b.A], s.plates[b.B]
	rx, ry := pa.VX-pb.VX, pa.VY-pb.VY
	b.RelSpeed = hypot(rx, ry)
	b.Normal = rx*b.NX + ry*b.NY
	b.Tangential = hypot(rx-b.Normal*b.NX, ry-b.Normal*b.NY)

	switch {
	case b.RelSpeed < s.cfg.InactiveSpeed:
		b.Kind = Inactive
	case math.Abs(b.Normal) < s.cfg.TransformRatio*b.RelSpeed:
		b.Kind = Transform
	case b.Normal > 0:
		b.Kind = Convergent
	default:
		b.Kind = Divergent
	}
}

// accumulate adds stress on every boundary and releases events by chance.
func (s *System) accumulate(tick uint64, dt float64) []GeologicalEvent {
	var events []GeologicalEvent
	for _, key := range s.order {
		b := s.boundaries[key]
		b.Stress += b.RelSpeed * dt
		if b.Kind == Inactive || len(b.Cells) == 0 {
			continue
		}
		p := math.Min(1, b.Stress*s.cfg.EventRate)
		if s.rng.Float64() >= p {
			continue
		}

		ev := GeologicalEvent{
			Kind:      s.sampleKind(b),
			Index:     b.Cells[s.rng.Intn(len(b.Cells))],
			Magnitude: s.sampleMagnitude(),
			Tick:      tick,
			PlateA:    b.A,
			PlateB:    b.B,
			Strike:    math.Atan2(b.NY, b.NX) + math.Pi/2,
		}
		ev.Cell = s.grid.Coord(ev.Index)
		b.Stress = 0
		b.LastRelease = tick

		slog.Info("geological event", "kind", ev.Kind, "x", ev.Cell.X, "y", ev.Cell.Y,
			"magnitude", math.Round(ev.Magnitude*100)/100, "plates", [2]int{b.A, b.B}, "boundary", b.Kind)
		events = append(events, ev)
	}
	return events
}

type kindWeight struct {
	kind   EventKind
	weight float64
}

// eventWeights returns the kind distribution for a boundary and its class pair.
func (s *System) eventWeights(b *Boundary) []kindWeight {
	ca, cb := s.plates[b.A].Class, s.plates[b.B].Class
	switch b.Kind {
	case Convergent:
		switch {
		case ca == Oceanic && cb == Oceanic:
			return []kindWeight{{Volcano, 0.6}, {Uplift, 0.15}, {Earthquake, 0.25}}
		case ca == Continental && cb == Continental:
			return []kindWeight{{Uplift, 0.7}, {Volcano, 0.05}, {Earthquake, 0.25}}
		default:
			return []kindWeight{{Uplift, 0.45}, {Volcano, 0.35}, {Earthquake, 0.2}}
		}
	case Divergent:
		return []kindWeight{{Rift, 0.6}, {Volcano, 0.2}, {Earthquake, 0.2}}
	default:
		return []kindWeight{{Earthquake, 0.85}, {Uplift, 0.1}, {Rift, 0.05}}
	}
}

func (s *System) sampleKind(b *Boundary) EventKind {
	weights := s.eventWeights(b)
	total := 0.0
	for _, w := range weights {
		total += w.weight
	}
	r := s.rng.Float64() * total
	for _, w := range weights {
		if r < w.weight {
			return w.kind
		}
		r -= w.weight
	}
	return weights[len(weights)-1].kind
}

// sampleMagnitude draws from a bounded Pareto distribution on [min, max].
func (s *System) sampleMagnitude() float64 {
	return boundedPareto(s.rng.Float64(), s.cfg.MagnitudeMin, s.cfg.MagnitudeMax, s.cfg.MagnitudeAlpha)
}

func boundedPareto(u, lo, hi, alpha float64) float64 {
	if hi <= lo {
		return lo
	}
	if alpha <= 0 {
		alpha = 1
	}
	la := math.Pow(lo, alpha)
	ha := math.Pow(hi, alpha)
	x := math.Pow(-(u*ha-u*la-ha)/(ha*la), -1/alpha)
	return math.Min(hi, math.Max(lo, x))
}

// BoundaryStats counts boundaries per kind.
func (s *System) BoundaryStats() map[string]int {
	out := map[string]int{}
	for _, key := range s.order {
		out[s.boundaries[key].Kind.String()]++
	}
	return out
}
