package hydrology

import (
	"log/slog"
	"math"
	"slices"

	"github.com/talgya/overworld/internal/noise"
	"github.com/talgya/overworld/internal/world"
)

// Aquifer is a block region of land cells sharing one groundwater store.
type Aquifer struct {
	ID        int
	Cells     []int
	Capacity  float64 // mm over the region
	Volume    float64
	Recharge  float64 // Last tick
	Depletion float64 // Last tick
	Exhausted bool

	annualInfiltration float64
}

// AquiferView is the read-only summary of an aquifer.
type AquiferView struct {
	ID                 int         `json:"id"`
	Origin             world.Coord `json:"origin"`
	Cells              int         `json:"cells"`
	Capacity           float64     `json:"capacity"`
	Volume             float64     `json:"volume"`
	Recharge           float64     `json:"recharge"`
	Depletion          float64     `json:"depletion"`
	Exhausted          bool        `json:"exhausted"`
	AnnualInfiltration float64     `json:"annual_infiltration"`
}

// Lake is a closed basin collecting river water.
type Lake struct {
	Cell   int
	Volume float64
	Inflow float64 // Last tick
}

// LakeView is the read-only summary of a lake.
type LakeView struct {
	Cell   world.Coord `json:"cell"`
	Volume float64     `json:"volume"`
	Inflow float64     `json:"inflow"`
}

// layoutAquifers splits the grid into region blocks and creates one aquifer per block
// that contains land. Capacity comes from a dedicated noise layer.
func (e *Engine) layoutAquifers(t *world.Terrain, capNoise *noise.Field) {
	g := e.grid
	size := max(e.cfg.RegionSize, 1)
	for i := range e.regionOf {
		e.regionOf[i] = -1
	}
	oct := noise.Octaves{Count: 2, Frequency: 3, Persistence: 0.5, Lacunarity: 2}

	for by := 0; by < g.H; by += size {
		for bx := 0; bx < g.W; bx += size {
			var cells []int
			for y := by; y < min(by+size, g.H); y++ {
				for x := bx; x < min(bx+size, g.W); x++ {
					if i := g.Index(x, y); !t.IsWater(i) {
						cells = append(cells, i)
					}
				}
			}
			if len(cells) == 0 {
				continue
			}
			cx := float64(bx) + float64(size)/2
			cy := float64(by) + float64(size)/2
			n := capNoise.Sample(cx, cy, oct)*0.5 + 0.5
			capacity := e.cfg.CapacityMin + n*(e.cfg.CapacityMax-e.cfg.CapacityMin)

			a := &Aquifer{
				ID:       len(e.aquifers),
				Cells:    cells,
				Capacity: capacity,
				Volume:   capacity / 2,
			}
			for _, c := range cells {
				e.regionOf[c] = a.ID
			}
			e.aquifers = append(e.aquifers, a)
		}
	}
}

// updateAquifers applies recharge from infiltration and aquifer-sink rivers, then
// depletion from extraction and evaporation.
func (e *Engine) updateAquifers(in Input, flows map[int][]float64) {
	inflow := make([]float64, len(e.aquifers))
	for _, id := range e.riverIDs() {
		r := e.rivers[id]
		if r.Sink != SinkAquifer {
			continue
		}
		if a := e.regionOf[r.SinkCell]; a >= 0 {
			f := flows[id]
			inflow[a] += f[len(f)-1] / 30
		}
	}

	for _, a := range e.aquifers {
		infil, temp := 0.0, 0.0
		for _, c := range a.Cells {
			if !in.Terrain.IsWater(c) {
				infil += in.Precipitation[c] / 30 * e.infiltrationFraction(in.Terrain, c)
			}
			temp += in.Temperature[c]
		}
		n := float64(len(a.Cells))
		recharge := infil/n + inflow[a.ID]/n
		a.annualInfiltration += recharge

		if a.Exhausted {
			a.Recharge, a.Depletion = 0, 0
			continue
		}
		depletion := e.cfg.ExtractionRate + e.cfg.EvaporationRate*a.Volume*tempFactor(temp/n)
		a.Recharge, a.Depletion = recharge, depletion
		a.Volume = math.Min(a.Capacity, a.Volume+recharge-depletion)
		if a.Volume <= 0 {
			a.Volume = 0
			a.Exhausted = true
			slog.Info("aquifer exhausted", "aquifer", a.ID, "capacity", math.Round(a.Capacity))
		}
	}
}

// EndYear revives exhausted aquifers whose yearly infiltration reached the replenish
// threshold and resets the annual accumulators.
func (e *Engine) EndYear() {
	for _, a := range e.aquifers {
		if a.Exhausted && a.annualInfiltration >= e.cfg.ReplenishFraction*a.Capacity {
			a.Exhausted = false
			a.Volume = math.Min(a.Capacity, a.annualInfiltration)
			slog.Info("aquifer replenished", "aquifer", a.ID, "volume", math.Round(a.Volume))
		}
		a.annualInfiltration = 0
	}
}

// updateLakes fills lakes from lake-sink rivers and evaporates them.
func (e *Engine) updateLakes(flows map[int][]float64) {
	fed := make(map[int]float64)
	for _, id := range e.riverIDs() {
		r := e.rivers[id]
		if r.Sink == SinkLake {
			f := flows[id]
			fed[r.SinkCell] += f[len(f)-1] / 30
		}
	}
	for cell, in := range fed {
		if _, ok := e.lakes[cell]; !ok {
			e.lakes[cell] = &Lake{Cell: cell}
		}
		e.lakes[cell].Inflow = in
	}
	for cell, l := range e.lakes {
		in, ok := fed[cell]
		if !ok {
			l.Inflow = 0
		}
		l.Volume += in
		l.Volume -= l.Volume * e.cfg.LakeEvaporation
		if !ok && l.Volume < 1 {
			delete(e.lakes, cell)
		}
	}
}

// Aquifers returns a summary of every aquifer in id order.
func (e *Engine) Aquifers() []AquiferView {
	out := make([]AquiferView, len(e.aquifers))
	for i, a := range e.aquifers {
		out[i] = AquiferView{
			ID:                 a.ID,
			Origin:             e.grid.Coord(a.Cells[0]),
			Cells:              len(a.Cells),
			Capacity:           a.Capacity,
			Volume:             a.Volume,
			Recharge:           a.Recharge,
			Depletion:          a.Depletion,
			Exhausted:          a.Exhausted,
			AnnualInfiltration: a.annualInfiltration,
		}
	}
	return out
}

// AquiferAt returns the aquifer id covering cell i, or -1.
func (e *Engine) AquiferAt(i int) int { return e.regionOf[i] }

// Lakes returns every lake ordered by cell index.
func (e *Engine) Lakes() []LakeView {
	cells := make([]int, 0, len(e.lakes))
	for c := range e.lakes {
		cells = append(cells, c)
	}
	slices.Sort(cells)
	out := make([]LakeView, len(cells))
	for i, c := range cells {
		l := e.lakes[c]
		out[i] = LakeView{Cell: e.grid.Coord(c), Volume: l.Volume, Inflow: l.Inflow}
	}
	return out
}
