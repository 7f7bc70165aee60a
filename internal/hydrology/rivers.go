package hydrology

import (
	"math"
	"slices"

	"github.com/talgya/overworld/internal/world"
)

// SinkKind is where a river ends.
type SinkKind uint8

const (
	SinkOcean SinkKind = iota
	SinkLake
	SinkAquifer
	SinkConfluence
)

func (k SinkKind) String() string {
	switch k {
	case SinkOcean:
		return "ocean"
	case SinkLake:
		return "lake"
	case SinkAquifer:
		return "aquifer"
	case SinkConfluence:
		return "confluence"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k SinkKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// River is a traced path from a source to its sink.
type River struct {
	ID         int
	Source     int
	Path       []int     // Source first; every cell strictly lower than the previous
	TracedAlt  []float64 // Altitude of each path cell when it was traced
	Flow       []float64 // Accumulated flow at each path cell from the last pass
	Sink       SinkKind
	SinkCell   int // Ocean cell, confluence cell, or the basin cell itself
	Downstream int // River joined at a confluence, -1 otherwise
}

// RiverView is the read-only summary of a river.
type RiverView struct {
	ID         int           `json:"id"`
	Source     world.Coord   `json:"source"`
	Mouth      world.Coord   `json:"mouth"`
	Length     int           `json:"length"`
	Flow       float64       `json:"flow"`
	Sink       SinkKind      `json:"sink"`
	SinkCell   world.Coord   `json:"sink_cell"`
	Downstream int           `json:"downstream"`
	Path       []world.Coord `json:"path"`
}

func (e *Engine) riverIDs() []int {
	ids := make([]int, 0, len(e.rivers))
	for id := range e.rivers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// isSource reports whether cell i can feed a river: a land local maximum with enough rain.
func (e *Engine) isSource(in Input, i int) bool {
	t := in.Terrain
	if t.IsWater(i) || in.Precipitation[i] < e.cfg.SourcePrecipitation {
		return false
	}
	alt := t.Altitude(i)
	higher := false
	for _, nb := range e.grid.Neighbors8(i) {
		a := t.Altitude(nb)
		if a > alt {
			return false
		}
		if a < alt {
			higher = true
		}
	}
	return higher
}

// updateRivers dries up dead rivers, retraces stale ones and traces new sources.
func (e *Engine) updateRivers(in Input) {
	for _, id := range e.riverIDs() {
		if !e.isSource(in, e.rivers[id].Source) {
			e.removeRiver(id)
		}
	}
	// A retrace can invalidate a confluence checked earlier in the same pass.
	for pass := 0; pass < 4; pass++ {
		if e.retraceStale(in.Terrain) == 0 {
			break
		}
	}

	for i := 0; i < e.grid.Len(); i++ {
		if e.riverAt[i] >= 0 || !e.isSource(in, i) {
			continue
		}
		r := &River{ID: e.nextID, Source: i, Downstream: -1}
		e.nextID++
		e.rivers[r.ID] = r
		r.Path = []int{i}
		r.TracedAlt = []float64{in.Terrain.Altitude(i)}
		e.riverAt[i] = r.ID
		e.extend(in.Terrain, r)
	}
}

// retraceStale retraces every river whose path no longer matches the terrain and
// returns how many were retraced.
func (e *Engine) retraceStale(t *world.Terrain) int {
	n := 0
	for _, id := range e.riverIDs() {
		r, ok := e.rivers[id]
		if !ok {
			continue
		}
		keep := e.staleFrom(t, r)
		if keep < 0 {
			continue
		}
		logRetrace(id, r.Path[keep-1], e.grid)
		n++
		for _, c := range r.Path[keep:] {
			if e.riverAt[c] == r.ID {
				e.riverAt[c] = -1
			}
		}
		r.Path = r.Path[:keep]
		r.TracedAlt = r.TracedAlt[:keep]
		// Kept cells follow current receivers, so their current altitudes descend.
		for k, c := range r.Path {
			r.TracedAlt[k] = t.Altitude(c)
		}
		e.extend(t, r)
	}
	return n
}

// staleFrom returns how many leading path cells are still valid, or -1 when the whole
// river is current.
func (e *Engine) staleFrom(t *world.Terrain, r *River) int {
	last := len(r.Path) - 1
	for k, c := range r.Path {
		if k > 0 && t.IsWater(c) {
			return k
		}
		if math.Abs(t.Altitude(c)-r.TracedAlt[k]) > e.cfg.RetraceThreshold {
			return max(k, 1)
		}
		if k < last && e.receiver[c] != r.Path[k+1] {
			return k + 1
		}
	}

	end := r.Path[last]
	next := e.receiver[end]
	switch r.Sink {
	case SinkOcean:
		if next != r.SinkCell || !t.IsWater(next) {
			return last + 1
		}
	case SinkConfluence:
		if next != r.SinkCell || e.riverAt[next] != r.Downstream {
			return last + 1
		}
	default:
		if next >= 0 {
			return last + 1
		}
	}
	return -1
}

// extend follows receivers from the last path cell until the river reaches a sink.
func (e *Engine) extend(t *world.Terrain, r *River) {
	r.Downstream = -1
	cur := r.Path[len(r.Path)-1]
	for {
		next := e.receiver[cur]
		switch {
		case next < 0:
			r.Sink, r.SinkCell = SinkLake, cur
			if t.IsAquiferCell(cur) {
				r.Sink = SinkAquifer
			}
			return
		case t.IsWater(next):
			r.Sink, r.SinkCell = SinkOcean, next
			return
		}

		if other := e.riverAt[next]; other >= 0 {
			if other == r.ID || e.flowsInto(other, r.ID) {
				r.Sink, r.SinkCell = SinkLake, cur
				return
			}
			r.Sink, r.SinkCell, r.Downstream = SinkConfluence, next, other
			return
		}

		r.Path = append(r.Path, next)
		r.TracedAlt = append(r.TracedAlt, t.Altitude(next))
		e.riverAt[next] = r.ID
		cur = next
	}
}

// flowsInto reports whether river from reaches river to through confluences.
func (e *Engine) flowsInto(from, to int) bool {
	for hops := 0; hops <= len(e.rivers); hops++ {
		if from == to {
			return true
		}
		r, ok := e.rivers[from]
		if !ok || r.Sink != SinkConfluence {
			return false
		}
		from = r.Downstream
	}
	return true
}

// removeRiver dries up a river and frees its cells. Tributaries are extended on the
// next retrace because their confluence no longer matches.
func (e *Engine) removeRiver(id int) {
	r := e.rivers[id]
	for _, c := range r.Path {
		if e.riverAt[c] == id {
			e.riverAt[c] = -1
		}
	}
	delete(e.rivers, id)
}

// computeFlows accumulates runoff along every river, adding tributary flow at each
// confluence, and dries up rivers below the minimum flow.
func (e *Engine) computeFlows(in Input) map[int][]float64 {
	for pass := 0; ; pass++ {
		flows := e.accumulateFlows(in)
		var dry []int
		for _, id := range e.riverIDs() {
			f := flows[id]
			if f[len(f)-1] < e.cfg.MinFlow {
				dry = append(dry, id)
			}
		}
		if len(dry) == 0 || pass >= 8 {
			for id, f := range flows {
				e.rivers[id].Flow = f
			}
			return flows
		}
		for _, id := range dry {
			e.removeRiver(id)
		}
		e.retraceStale(in.Terrain)
	}
}

func (e *Engine) accumulateFlows(in Input) map[int][]float64 {
	tribs := make(map[int][]int)
	for _, id := range e.riverIDs() {
		if r := e.rivers[id]; r.Sink == SinkConfluence {
			tribs[r.Downstream] = append(tribs[r.Downstream], id)
		}
	}

	flows := make(map[int][]float64, len(e.rivers))
	visiting := make(map[int]bool)
	var solve func(id int) []float64
	solve = func(id int) []float64 {
		if f, ok := flows[id]; ok {
			return f
		}
		r := e.rivers[id]
		f := make([]float64, len(r.Path))
		if visiting[id] {
			return f
		}
		visiting[id] = true

		index := make(map[int]int, len(r.Path))
		for k, c := range r.Path {
			index[c] = k
		}
		for _, tid := range tribs[id] {
			tf := solve(tid)
			if k, ok := index[e.rivers[tid].SinkCell]; ok && len(tf) > 0 {
				f[k] += tf[len(tf)-1]
			}
		}
		// f holds tributary inflow per cell; fold in runoff and accumulate downstream.
		acc := 0.0
		for k, c := range r.Path {
			acc += in.Precipitation[c]*(1-e.infiltrationFraction(in.Terrain, c)) + f[k]
			f[k] = acc
		}
		flows[id] = f
		return f
	}
	for _, id := range e.riverIDs() {
		solve(id)
	}
	return flows
}

// Rivers returns a summary of every river in id order.
func (e *Engine) Rivers() []RiverView {
	g := e.grid
	out := make([]RiverView, 0, len(e.rivers))
	for _, id := range e.riverIDs() {
		r := e.rivers[id]
		v := RiverView{
			ID:         r.ID,
			Source:     g.Coord(r.Source),
			Mouth:      g.Coord(r.Path[len(r.Path)-1]),
			Length:     len(r.Path),
			Sink:       r.Sink,
			SinkCell:   g.Coord(r.SinkCell),
			Downstream: r.Downstream,
			Path:       make([]world.Coord, len(r.Path)),
		}
		if len(r.Flow) > 0 {
			v.Flow = r.Flow[len(r.Flow)-1]
		}
		for k, c := range r.Path {
			v.Path[k] = g.Coord(c)
		}
		out = append(out, v)
	}
	return out
}

// River returns a copy of river id.
func (e *Engine) River(id int) (River, bool) {
	r, ok := e.rivers[id]
	if !ok {
		return River{}, false
	}
	c := *r
	c.Path = slices.Clone(r.Path)
	c.TracedAlt = slices.Clone(r.TracedAlt)
	c.Flow = slices.Clone(r.Flow)
	return c, true
}
