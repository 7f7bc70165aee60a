package erosion

import (
	"math"
	"testing"

	"github.com/talgya/overworld/internal/hydrology"
	"github.com/talgya/overworld/internal/world"
)

func newTerrain(t *testing.T, g world.Grid, alt func(i int) float64) *world.Terrain {
	t.Helper()
	alts := make([]float64, g.Len())
	for i := range alts {
		alts[i] = alt(i)
	}
	tr, err := world.NewTerrainFromAltitudes(g, world.DefaultTerrainConfig(), alts)
	if err != nil {
		t.Fatalf("terrain: %v", err)
	}
	return tr
}

func constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestIsolatedMountainErodesMonotonically(t *testing.T) {
	g := world.NewGrid(16, 16, 1000)
	peak := g.Index(8, 8)
	tr := newTerrain(t, g, func(i int) float64 {
		if i == peak {
			return 1000
		}
		return 0
	})
	cfg := DefaultConfig()
	e := New(cfg, 4)
	precip := constant(g.Len(), 50)

	prev := tr.Altitude(peak)
	for tick := 0; tick < 1000; tick++ {
		tr.BeginTick()
		if _, err := e.Apply(Input{Terrain: tr, Precipitation: precip}); err != nil {
			t.Fatalf("tick %d: %v", tick, err)
		}
		cur := tr.Altitude(peak)
		if cur >= prev {
			t.Fatalf("tick %d: altitude %v did not decrease from %v", tick, cur, prev)
		}
		if cur <= tr.SeaLevel()+cfg.Floor {
			t.Fatalf("tick %d: altitude %v at or below sea level + floor", tick, cur)
		}
		prev = cur
	}
	if err := tr.CheckInvariants(); err != nil {
		t.Fatalf("invariants: %v", err)
	}
}

func TestDepositionBoundedByRemoval(t *testing.T) {
	g := world.NewGrid(12, 12, 1000)
	tr := newTerrain(t, g, func(i int) float64 {
		c := g.Coord(i)
		return float64(c.X*37%11) * 90
	})
	cfg := DefaultConfig()
	st, err := New(cfg, 3).Apply(Input{Terrain: tr, Precipitation: constant(g.Len(), 120)})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if st.Eroded <= 0 {
		t.Fatalf("nothing eroded on rough terrain")
	}
	if st.Deposited > st.Eroded*cfg.DepositFraction+1e-9 {
		t.Fatalf("deposited %v exceeds %v of eroded %v", st.Deposited, cfg.DepositFraction, st.Eroded)
	}
}

func TestFlatTerrainIsStable(t *testing.T) {
	g := world.NewGrid(8, 8, 1000)
	tr := newTerrain(t, g, func(int) float64 { return 300 })
	st, err := New(DefaultConfig(), 2).Apply(Input{Terrain: tr, Precipitation: constant(g.Len(), 400)})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if st.Eroded != 0 || st.Deposited != 0 {
		t.Fatalf("flat terrain changed: %+v", st)
	}
}

func TestDeltaDepositsAndGlaciation(t *testing.T) {
	g := world.NewGrid(8, 8, 1000)
	tr := newTerrain(t, g, func(i int) float64 {
		if i == 0 {
			return -3
		}
		return 100
	})
	frozen := make([]bool, g.Len())
	frozen[5] = true
	e := New(DefaultConfig(), 1)
	st, err := e.Apply(Input{
		Terrain:       tr,
		Precipitation: constant(g.Len(), 0),
		Frozen:        frozen,
		Deposits:      []hydrology.DepositRequest{{Cell: 0, Amount: 2}},
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if math.Abs(tr.Altitude(0)-(-1)) > 1e-12 {
		t.Fatalf("delta cell altitude = %v want -1", tr.Altitude(0))
	}
	if tr.Substrate(5) != world.SubstrateIce || st.Frozen != 1 {
		t.Fatalf("cell 5 not frozen: %s", world.SubstrateName(tr.Substrate(5)))
	}

	frozen[5] = false
	st, err = e.Apply(Input{Terrain: tr, Precipitation: constant(g.Len(), 0), Frozen: frozen})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if tr.Substrate(5) != world.SubstrateSediment || st.Thawed != 1 {
		t.Fatalf("cell 5 not thawed: %s", world.SubstrateName(tr.Substrate(5)))
	}
}
