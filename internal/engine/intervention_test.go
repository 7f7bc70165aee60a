package engine

import (
	"errors"
	"math"
	"testing"

	"github.com/talgya/overworld/internal/tectonics"
	"github.com/talgya/overworld/internal/world"
)

type recordingSink struct {
	events []tectonics.GeologicalEvent
}

func (r *recordingSink) RecordEvents(evs []tectonics.GeologicalEvent) error {
	r.events = append(r.events, evs...)
	return nil
}

func TestSetAltitudeRespectsBudget(t *testing.T) {
	cfg := testConfig(24, 24, 13)
	s := newSim(t, cfg)

	// Lowest land cell: a coastal cell likely to be submerged by the edit.
	best, bestAlt := -1, math.Inf(1)
	for i := 0; i < s.grid.Len(); i++ {
		if a := s.terrain.Altitude(i); !s.terrain.IsWater(i) && !s.terrain.IsAquiferCell(i) && a < bestAlt {
			best, bestAlt = i, a
		}
	}
	if best < 0 {
		t.Skip("generated world has no land")
	}
	c := s.grid.Coord(best)
	target := cfg.Terrain.SeaLevel - 50
	want := bestAlt + math.Max(-cfg.Terrain.MaxTickDelta, target-bestAlt)

	if err := s.SetAltitude([]world.Coord{c}, target); err != nil {
		t.Fatalf("set altitude: %v", err)
	}
	got, err := s.GetCell(c.X, c.Y)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(got.Altitude-want) > 1e-9 {
		t.Fatalf("altitude = %v want %v", got.Altitude, want)
	}
	if want < cfg.Terrain.SeaLevel && got.Substrate != world.SubstrateWater {
		t.Fatalf("submerged cell has substrate %s", world.SubstrateName(got.Substrate))
	}
}

func TestSetAltitudeRejectsBadInput(t *testing.T) {
	s := newSim(t, testConfig(16, 16, 1))
	if err := s.SetAltitude([]world.Coord{{X: 16, Y: 2}}, 10); !errors.Is(err, ErrOutOfBounds) {
		t.Fatalf("got %v, want ErrOutOfBounds", err)
	}
	if err := s.SetAltitude([]world.Coord{{X: 1, Y: 2}}, math.NaN()); err == nil {
		t.Fatalf("NaN altitude accepted")
	}
	if s.Halted() != nil {
		t.Fatalf("bad input halted the simulation")
	}
}

func TestForceEventRecordsAndNotifies(t *testing.T) {
	s := newSim(t, testConfig(16, 16, 21))
	sink := &recordingSink{}
	s.SetHistorySink(sink)

	ev, err := s.ForceEvent(tectonics.Volcano, world.Coord{X: 5, Y: 6}, 4)
	if err != nil {
		t.Fatalf("force: %v", err)
	}
	if !ev.Forced || ev.Seq == 0 || ev.Cell != (world.Coord{X: 5, Y: 6}) {
		t.Fatalf("unexpected event %+v", ev)
	}
	if len(sink.events) != 1 || sink.events[0].Seq != ev.Seq {
		t.Fatalf("sink got %+v", sink.events)
	}
	recent := s.GetRecentEvents(0)
	if len(recent) == 0 || recent[len(recent)-1].Seq != ev.Seq {
		t.Fatalf("forced event missing from log")
	}

	if _, err := s.ForceEvent(tectonics.Rift, world.Coord{X: 1, Y: 1}, 1000); err == nil {
		t.Fatalf("magnitude above range accepted")
	}
	if _, err := s.ForceEvent(tectonics.Rift, world.Coord{X: -1, Y: 1}, 2); !errors.Is(err, ErrOutOfBounds) {
		t.Fatalf("got %v, want ErrOutOfBounds", err)
	}
}
