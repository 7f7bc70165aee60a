package tectonics

import (
	"fmt"
	"math"

	"github.com/talgya/overworld/internal/world"
)

// ApplyEvent integrates an event into the terrain as a radial falloff of deltas.
// Radius and amplitude scale with magnitude.
func ApplyEvent(t *world.Terrain, ev GeologicalEvent, cfg Config) error {
	g := t.Grid()
	frac := 1.0
	if cfg.MagnitudeMax > 0 {
		frac = ev.Magnitude / cfg.MagnitudeMax
	}
	radius := math.Max(1, cfg.EventRadius*(0.5+0.5*frac))
	amp := cfg.MetresPerMag * ev.Magnitude * ev.Magnitude

	sx, sy := math.Cos(ev.Strike), math.Sin(ev.Strike)
	r := int(math.Ceil(radius))

	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			dist := math.Hypot(float64(dx), float64(dy))
			if dist > radius {
				continue
			}
			fall := 1 - dist/(radius+1)
			idx := g.Index(ev.Cell.X+dx, ev.Cell.Y+dy)

			var delta float64
			change := world.ChangeNone
			switch ev.Kind {
			case Uplift:
				delta = amp * fall
				change = world.ChangeUplift
			case Volcano:
				delta = 1.5 * amp * fall * fall
				change = world.ChangeUplift
			case Rift:
				delta = -amp * fall
			case Earthquake:
				// Fault offset: one side of the strike line rises, the other drops.
				side := float64(dx)*sy - float64(dy)*sx
				switch {
				case side > 0:
					delta = 0.3 * amp * fall
				case side < 0:
					delta = -0.3 * amp * fall
				}
			}
			if delta == 0 && change == world.ChangeNone {
				continue
			}
			if err := t.ApplyDelta([]int{idx}, delta, change); err != nil {
				return fmt.Errorf("apply %s at %d,%d: %w", ev.Kind, ev.Cell.X, ev.Cell.Y, err)
			}
		}
	}
	return nil
}

// Forced builds an event at cell i outside the stress model.
// PlateB is the owner of the nearest foreign cell, or -1 inside a single plate.
func (s *System) Forced(kind EventKind, i int, magnitude float64, tick uint64) (GeologicalEvent, error) {
	if i < 0 || i >= len(s.owner) {
		return GeologicalEvent{}, fmt.Errorf("forced event: cell %d out of range", i)
	}
	if magnitude < s.cfg.MagnitudeMin || magnitude > s.cfg.MagnitudeMax || math.IsNaN(magnitude) {
		return GeologicalEvent{}, fmt.Errorf("forced event: magnitude %v outside [%v, %v]",
			magnitude, s.cfg.MagnitudeMin, s.cfg.MagnitudeMax)
	}
	a := s.owner[i]
	ev := GeologicalEvent{
		Kind:      kind,
		Index:     i,
		Cell:      s.grid.Coord(i),
		Magnitude: magnitude,
		Tick:      tick,
		PlateA:    a,
		PlateB:    -1,
		Forced:    true,
	}
	for _, nb := range s.grid.Neighbors8(i) {
		if b := s.owner[nb]; b != a {
			ev.PlateB = b
			break
		}
	}
	return ev, nil
}
