package engine

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/talgya/overworld/internal/tectonics"
	"github.com/talgya/overworld/internal/world"
)

// SetAltitude moves every listed cell toward value through the normal terrain mutation
// path. God edits share the per-tick change budget with the tick that just committed, so
// a large edit may land partially; read the cells back for the achieved altitudes.
func (s *Simulation) SetAltitude(cells []world.Coord, value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Errorf("set altitude: value %v is not finite", value)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.halted != nil {
		return fmt.Errorf("%w: %v", ErrHalted, s.halted)
	}
	idx := make([]int, len(cells))
	for k, c := range cells {
		i, err := s.index(c.X, c.Y)
		if err != nil {
			return err
		}
		idx[k] = i
	}

	for _, i := range idx {
		delta := value - s.terrain.Altitude(i)
		if delta == 0 {
			continue
		}
		if err := s.terrain.ApplyDelta([]int{i}, delta, world.ChangeNone); err != nil {
			return fmt.Errorf("set altitude at %v: %w", s.grid.Coord(i), err)
		}
	}
	if err := s.checkInvariants(); err != nil {
		s.halt(err)
		return err
	}

	slog.Info("altitude intervention", "cells", len(idx), "value", value, "tick", s.tick)
	return nil
}

// ForceEvent applies a geological event of the given kind at location, outside the
// stress model, and records it in the event log.
func (s *Simulation) ForceEvent(kind tectonics.EventKind, location world.Coord, magnitude float64) (tectonics.GeologicalEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.halted != nil {
		return tectonics.GeologicalEvent{}, fmt.Errorf("%w: %v", ErrHalted, s.halted)
	}
	i, err := s.index(location.X, location.Y)
	if err != nil {
		return tectonics.GeologicalEvent{}, err
	}
	ev, err := s.plates.Forced(kind, i, magnitude, s.tick)
	if err != nil {
		return tectonics.GeologicalEvent{}, err
	}
	if err := tectonics.ApplyEvent(s.terrain, ev, s.cfg.Plates); err != nil {
		return tectonics.GeologicalEvent{}, fmt.Errorf("apply forced %s: %w", kind, err)
	}
	if err := s.checkInvariants(); err != nil {
		s.halt(err)
		return tectonics.GeologicalEvent{}, err
	}
	ev = s.log.append(ev)

	if s.sink != nil {
		if err := s.sink.RecordEvents([]tectonics.GeologicalEvent{ev}); err != nil {
			slog.Warn("history sink failed", "seq", ev.Seq, "error", err)
		}
	}
	slog.Info("event intervention", "kind", kind, "cell", location, "magnitude", magnitude, "seq", ev.Seq)
	return ev, nil
}
