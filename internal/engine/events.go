package engine

import (
	"github.com/talgya/overworld/internal/tectonics"
)

// HistorySink receives every geological event once its tick has committed.
type HistorySink interface {
	RecordEvents(events []tectonics.GeologicalEvent) error
}

// eventLog keeps the most recent events in emission order and numbers them.
type eventLog struct {
	limit  int
	events []tectonics.GeologicalEvent
	seq    uint64
	byKind map[tectonics.EventKind]int // Lifetime totals
}

func newEventLog(limit int) eventLog {
	return eventLog{limit: max(limit, 1), byKind: make(map[tectonics.EventKind]int)}
}

// append assigns the next sequence number and stores ev, dropping the oldest entry
// when the log is full.
func (l *eventLog) append(ev tectonics.GeologicalEvent) tectonics.GeologicalEvent {
	l.seq++
	ev.Seq = l.seq
	l.events = append(l.events, ev)
	if len(l.events) > l.limit {
		l.events = l.events[len(l.events)-l.limit:]
	}
	l.byKind[ev.Kind]++
	return ev
}

// since returns retained events with Tick >= tick, oldest first.
func (l *eventLog) since(tick uint64) []tectonics.GeologicalEvent {
	for k, ev := range l.events {
		if ev.Tick >= tick {
			return append([]tectonics.GeologicalEvent(nil), l.events[k:]...)
		}
	}
	return nil
}

// after returns retained events with Seq > seq, oldest first.
func (l *eventLog) after(seq uint64) []tectonics.GeologicalEvent {
	for k, ev := range l.events {
		if ev.Seq > seq {
			return append([]tectonics.GeologicalEvent(nil), l.events[k:]...)
		}
	}
	return nil
}

// GetRecentEvents returns the retained events of tick sinceTick and later, ordered by
// tick and then emission order.
func (s *Simulation) GetRecentEvents(sinceTick uint64) []tectonics.GeologicalEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.log.since(sinceTick)
}

// EventsAfter returns the retained events numbered after seq. Streaming consumers poll
// it with the last sequence number they delivered.
func (s *Simulation) EventsAfter(seq uint64) []tectonics.GeologicalEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.log.after(seq)
}
