package engine

import (
	"testing"

	"github.com/talgya/overworld/internal/tectonics"
)

func TestEventLogRetainsNewest(t *testing.T) {
	l := newEventLog(3)
	for tick := uint64(1); tick <= 5; tick++ {
		l.append(tectonics.GeologicalEvent{Tick: tick, Kind: tectonics.Rift})
	}
	if len(l.events) != 3 || l.events[0].Seq != 3 || l.events[2].Seq != 5 {
		t.Fatalf("retained %+v", l.events)
	}
	if l.byKind[tectonics.Rift] != 5 {
		t.Fatalf("lifetime count = %d want 5", l.byKind[tectonics.Rift])
	}
}

func TestEventLogQueries(t *testing.T) {
	l := newEventLog(10)
	for _, tick := range []uint64{2, 2, 4, 7} {
		l.append(tectonics.GeologicalEvent{Tick: tick})
	}
	tests := []struct {
		name string
		got  []tectonics.GeologicalEvent
		want []uint64 // Seq
	}{
		{"since 0", l.since(0), []uint64{1, 2, 3, 4}},
		{"since 3", l.since(3), []uint64{3, 4}},
		{"since 8", l.since(8), nil},
		{"after 2", l.after(2), []uint64{3, 4}},
		{"after 4", l.after(4), nil},
	}
	for _, tt := range tests {
		if len(tt.got) != len(tt.want) {
			t.Errorf("%s: got %d events want %d", tt.name, len(tt.got), len(tt.want))
			continue
		}
		for k := range tt.got {
			if tt.got[k].Seq != tt.want[k] {
				t.Errorf("%s: event %d seq %d want %d", tt.name, k, tt.got[k].Seq, tt.want[k])
			}
		}
	}
}

func TestRecentEventsOrdered(t *testing.T) {
	s := newSim(t, testConfig(32, 32, 42))
	advance(t, s, 60)
	evs := s.GetRecentEvents(0)
	for k := 1; k < len(evs); k++ {
		if evs[k].Tick < evs[k-1].Tick || evs[k].Seq != evs[k-1].Seq+1 {
			t.Fatalf("events out of order at %d: %+v then %+v", k, evs[k-1], evs[k])
		}
	}
}
