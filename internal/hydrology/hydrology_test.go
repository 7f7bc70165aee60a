package hydrology

import (
	"math"
	"testing"

	"github.com/talgya/overworld/internal/world"
)

func buildTerrain(t *testing.T, g world.Grid, alt func(x, y int) float64) *world.Terrain {
	t.Helper()
	alts := make([]float64, g.Len())
	for i := range alts {
		c := g.Coord(i)
		alts[i] = alt(c.X, c.Y)
	}
	tr, err := world.NewTerrainFromAltitudes(g, world.DefaultTerrainConfig(), alts)
	if err != nil {
		t.Fatalf("terrain: %v", err)
	}
	return tr
}

func uniform(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// pyramid is a single peak at (8,8) falling 150 m per Manhattan step into the ocean.
func pyramid(x, y int) float64 {
	d := math.Abs(float64(x-8)) + math.Abs(float64(y-8))
	return 2000 - 150*d
}

func TestReceiverTieBreak(t *testing.T) {
	g := world.NewGrid(8, 8, 1000)
	tr := buildTerrain(t, g, func(x, y int) float64 {
		if x == 4 && y == 4 {
			return 100
		}
		return 0
	})
	e := New(tr, DefaultConfig(), 1, 2)
	if err := e.computeReceivers(tr); err != nil {
		t.Fatalf("receivers: %v", err)
	}
	if got, want := e.Receiver(g.Index(4, 4)), g.Index(3, 4); got != want {
		t.Fatalf("receiver = %v want %v", g.Coord(got), g.Coord(want))
	}
	if got := e.Receiver(g.Index(0, 0)); got != -1 {
		t.Fatalf("flat cell receiver = %d want -1", got)
	}
}

func TestRiverReachesOceanDescending(t *testing.T) {
	g := world.NewGrid(16, 16, 1000)
	tr := buildTerrain(t, g, pyramid)
	e := New(tr, DefaultConfig(), 1, 4)
	in := Input{Terrain: tr, Precipitation: uniform(g.Len(), 100), Temperature: uniform(g.Len(), 15)}
	if _, err := e.Update(in); err != nil {
		t.Fatalf("update: %v", err)
	}

	rivers := e.Rivers()
	if len(rivers) != 1 {
		t.Fatalf("rivers = %d want 1", len(rivers))
	}
	r := rivers[0]
	if r.Source != (world.Coord{X: 8, Y: 8}) {
		t.Fatalf("source = %v", r.Source)
	}
	if r.Sink != SinkOcean {
		t.Fatalf("sink = %s want ocean", r.Sink)
	}
	prev := math.Inf(1)
	for _, c := range r.Path {
		a := tr.Altitude(g.Index(c.X, c.Y))
		if a >= prev {
			t.Fatalf("path ascends at %v", c)
		}
		prev = a
	}
	if !e.IsRiver(g.Index(8, 8)) {
		t.Fatalf("source cell not marked as river")
	}
	if err := e.CheckInvariants(); err != nil {
		t.Fatalf("invariants: %v", err)
	}

	// A second pass on unchanged terrain keeps the same river.
	if _, err := e.Update(in); err != nil {
		t.Fatalf("update: %v", err)
	}
	again := e.Rivers()
	if len(again) != 1 || again[0].ID != r.ID || again[0].Length != r.Length {
		t.Fatalf("river changed without terrain change: %+v", again)
	}
}

func TestRetraceAfterTerrainChange(t *testing.T) {
	g := world.NewGrid(16, 16, 1000)
	tr := buildTerrain(t, g, pyramid)
	e := New(tr, DefaultConfig(), 1, 1)
	in := Input{Terrain: tr, Precipitation: uniform(g.Len(), 100), Temperature: uniform(g.Len(), 15)}
	if _, err := e.Update(in); err != nil {
		t.Fatalf("update: %v", err)
	}
	r := e.Rivers()[0]
	mid := r.Path[2]

	tr.BeginTick()
	if err := tr.ApplyDelta([]int{g.Index(mid.X, mid.Y)}, 300, world.ChangeUplift); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if _, err := e.Update(in); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := e.CheckInvariants(); err != nil {
		t.Fatalf("invariants after retrace: %v", err)
	}
	for _, rv := range e.Rivers() {
		if rv.ID != r.ID {
			continue
		}
		for _, c := range rv.Path {
			if c == mid {
				t.Fatalf("retraced river still crosses the raised cell")
			}
		}
		if rv.Path[0] != r.Path[0] || rv.Path[1] != r.Path[1] {
			t.Fatalf("upstream part was not kept")
		}
	}
}

func TestClosedBasinFormsLake(t *testing.T) {
	g := world.NewGrid(8, 8, 1000)
	tr := buildTerrain(t, g, func(x, y int) float64 {
		dx, dy := g.TorusDelta(world.Coord{X: 4, Y: 4}, world.Coord{X: x, Y: y})
		return 100 * (math.Abs(dx) + math.Abs(dy))
	})
	e := New(tr, DefaultConfig(), 1, 2)
	in := Input{Terrain: tr, Precipitation: uniform(g.Len(), 100), Temperature: uniform(g.Len(), 15)}
	if _, err := e.Update(in); err != nil {
		t.Fatalf("update: %v", err)
	}
	rivers := e.Rivers()
	if len(rivers) != 1 || rivers[0].Sink != SinkLake {
		t.Fatalf("expected one lake-sink river, got %+v", rivers)
	}
	lakes := e.Lakes()
	if len(lakes) != 1 || lakes[0].Cell != (world.Coord{X: 4, Y: 4}) || lakes[0].Volume <= 0 {
		t.Fatalf("unexpected lakes %+v", lakes)
	}
}

func TestZeroPrecipitation(t *testing.T) {
	g := world.NewGrid(16, 16, 1000)
	tr := buildTerrain(t, g, pyramid)
	cfg := DefaultConfig()
	e := New(tr, cfg, 5, 2)
	before := e.Aquifers()
	temp := uniform(g.Len(), 20)
	in := Input{Terrain: tr, Precipitation: uniform(g.Len(), 0), Temperature: temp}
	if _, err := e.Update(in); err != nil {
		t.Fatalf("update: %v", err)
	}
	if n := len(e.Rivers()); n != 0 {
		t.Fatalf("rivers = %d want 0", n)
	}
	for i, a := range e.Aquifers() {
		evap := cfg.EvaporationRate * before[i].Volume * tempFactor(20)
		if got := before[i].Volume - a.Volume; math.Abs(got-evap) > 1e-9 {
			t.Fatalf("aquifer %d lost %v want evaporation %v", a.ID, got, evap)
		}
		if a.Recharge != 0 {
			t.Fatalf("aquifer %d recharged %v without rain", a.ID, a.Recharge)
		}
	}
}

func TestOverflowFloodsAndDeposits(t *testing.T) {
	g := world.NewGrid(16, 16, 1000)
	tr := buildTerrain(t, g, pyramid)
	cfg := DefaultConfig()
	cfg.CapacityBase, cfg.CapacitySlope = 0, 0
	e := New(tr, cfg, 1, 2)
	in := Input{Terrain: tr, Precipitation: uniform(g.Len(), 200), Temperature: uniform(g.Len(), 15)}
	reqs, err := e.Update(in)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(reqs) == 0 {
		t.Fatalf("expected delta deposition requests")
	}
	for k, r := range reqs {
		if r.Amount <= 0 || r.Amount > cfg.MaxDelta {
			t.Fatalf("request %+v outside (0, %v]", r, cfg.MaxDelta)
		}
		if k > 0 && reqs[k-1].Cell >= r.Cell {
			t.Fatalf("requests not ordered by cell")
		}
	}
	flooded := 0
	for i := 0; i < g.Len(); i++ {
		if e.Flooded(i) {
			flooded++
		}
	}
	if flooded == 0 {
		t.Fatalf("no cells flood-saturated")
	}
}

func TestAquiferExhaustionAndReplenish(t *testing.T) {
	g := world.NewGrid(8, 8, 1000)
	tr := buildTerrain(t, g, func(x, y int) float64 { return 200 })
	cfg := DefaultConfig()
	cfg.RegionSize = 8
	cfg.ExtractionRate = 1e6
	e := New(tr, cfg, 2, 1)
	if len(e.Aquifers()) != 1 {
		t.Fatalf("aquifers = %d want 1", len(e.Aquifers()))
	}

	dry := Input{Terrain: tr, Precipitation: uniform(g.Len(), 0), Temperature: uniform(g.Len(), 10)}
	if _, err := e.Update(dry); err != nil {
		t.Fatalf("update: %v", err)
	}
	a := e.Aquifers()[0]
	if !a.Exhausted || a.Volume != 0 {
		t.Fatalf("aquifer not exhausted: %+v", a)
	}

	// Exhaustion is terminal within the year even under heavy rain.
	e.cfg.ExtractionRate = 0
	wet := Input{Terrain: tr, Precipitation: uniform(g.Len(), 3000), Temperature: uniform(g.Len(), 10)}
	for i := 0; i < 30; i++ {
		if _, err := e.Update(wet); err != nil {
			t.Fatalf("update: %v", err)
		}
	}
	if a := e.Aquifers()[0]; !a.Exhausted || a.Volume != 0 {
		t.Fatalf("exhausted aquifer changed mid-year: %+v", a)
	}
	e.EndYear()
	if a := e.Aquifers()[0]; a.Exhausted || a.Volume <= 0 {
		t.Fatalf("aquifer not replenished: %+v", a)
	}
	if err := e.CheckInvariants(); err != nil {
		t.Fatalf("invariants: %v", err)
	}
}
