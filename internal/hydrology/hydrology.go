// Package hydrology traces rivers over committed terrain, tracks lakes and aquifers,
// and turns river overflow into flood saturation and delta deposition requests.
package hydrology

import (
	"fmt"
	"log/slog"
	"math"
	"slices"

	"github.com/talgya/overworld/internal/noise"
	"github.com/talgya/overworld/internal/world"
)

// Config holds hydrology parameters. Precipitation is in mm/month; one tick is one day.
type Config struct {
	HighlandAltitude    float64 `yaml:"highland_altitude" json:"highland_altitude"`
	LowInfiltration     float64 `yaml:"low_infiltration" json:"low_infiltration"`         // Fraction below highland altitude
	HighInfiltration    float64 `yaml:"high_infiltration" json:"high_infiltration"`       // Fraction above it
	SourcePrecipitation float64 `yaml:"source_precipitation" json:"source_precipitation"` // Minimum for a river source
	RetraceThreshold    float64 `yaml:"retrace_threshold" json:"retrace_threshold"`       // Metres
	MinFlow             float64 `yaml:"min_flow" json:"min_flow"`
	CapacityBase        float64 `yaml:"capacity_base" json:"capacity_base"`
	CapacitySlope       float64 `yaml:"capacity_slope" json:"capacity_slope"`
	DeltaFraction       float64 `yaml:"delta_fraction" json:"delta_fraction"` // Metres deposited per unit of excess flow
	MaxDelta            float64 `yaml:"max_delta" json:"max_delta"`           // Metres per cell per tick
	FloodTicks          int     `yaml:"flood_ticks" json:"flood_ticks"`
	RegionSize          int     `yaml:"region_size" json:"region_size"`                   // Aquifer block edge in cells
	CapacityMin         float64 `yaml:"aquifer_capacity_min" json:"aquifer_capacity_min"` // mm over the region
	CapacityMax         float64 `yaml:"aquifer_capacity_max" json:"aquifer_capacity_max"`
	ExtractionRate      float64 `yaml:"extraction_rate" json:"extraction_rate"`       // mm per tick
	EvaporationRate     float64 `yaml:"evaporation_rate" json:"evaporation_rate"`     // Fraction of volume per tick at full heat
	ReplenishFraction   float64 `yaml:"replenish_fraction" json:"replenish_fraction"` // Of capacity, yearly, to revive an exhausted aquifer
	LakeEvaporation     float64 `yaml:"lake_evaporation" json:"lake_evaporation"`
}

// DefaultConfig returns the standard hydrology settings. Extraction is zero because
// nothing in the physical world draws groundwater on its own.
func DefaultConfig() Config {
	return Config{
		HighlandAltitude:    1000,
		LowInfiltration:     0.6,
		HighInfiltration:    0.3,
		SourcePrecipitation: 60,
		RetraceThreshold:    5,
		MinFlow:             20,
		CapacityBase:        400,
		CapacitySlope:       20000,
		DeltaFraction:       0.001,
		MaxDelta:            2,
		FloodTicks:          10,
		RegionSize:          8,
		CapacityMin:         500,
		CapacityMax:         5000,
		ExtractionRate:      0,
		EvaporationRate:     0.0005,
		ReplenishFraction:   0.25,
		LakeEvaporation:     0.01,
	}
}

// Input is the committed state a hydrology pass reads.
type Input struct {
	Terrain       *world.Terrain
	Precipitation []float64
	Temperature   []float64
}

// DepositRequest asks the erosion stage to raise a cell by Amount metres.
type DepositRequest struct {
	Cell   int
	Amount float64
}

// WaterCycle is the per-cell split of daily precipitation.
type WaterCycle struct {
	Infiltration float64 `json:"infiltration"`
	Runoff       float64 `json:"runoff"`
	Evaporation  float64 `json:"evaporation"`
}

// Engine owns rivers, lakes, aquifers and flood saturation.
type Engine struct {
	grid    world.Grid
	cfg     Config
	workers int

	receiver []int // Steepest strictly-lower neighbour, -1 for water or closed basins
	riverAt  []int // River id occupying each cell, -1 when none
	flood    []int // Remaining flood-saturated ticks

	rivers map[int]*River
	nextID int
	lakes  map[int]*Lake

	aquifers []*Aquifer
	regionOf []int // Aquifer index per cell, -1 outside any aquifer
}

// New builds the hydrology state, laying out aquifer regions over the initial land.
func New(t *world.Terrain, cfg Config, seed int64, workers int) *Engine {
	g := t.Grid()
	n := g.Len()
	e := &Engine{
		grid:     g,
		cfg:      cfg,
		workers:  workers,
		receiver: make([]int, n),
		riverAt:  make([]int, n),
		flood:    make([]int, n),
		rivers:   make(map[int]*River),
		lakes:    make(map[int]*Lake),
		regionOf: make([]int, n),
	}
	for i := range e.riverAt {
		e.riverAt[i] = -1
	}
	e.layoutAquifers(t, noise.New(seed+4, g.W, g.H))
	return e
}

// Config returns the hydrology configuration.
func (e *Engine) Config() Config { return e.cfg }

// Update runs one hydrology pass and returns delta deposition requests for erosion.
func (e *Engine) Update(in Input) ([]DepositRequest, error) {
	if len(in.Precipitation) != e.grid.Len() || len(in.Temperature) != e.grid.Len() {
		return nil, fmt.Errorf("hydrology: climate fields do not match grid")
	}
	if err := e.computeReceivers(in.Terrain); err != nil {
		return nil, fmt.Errorf("hydrology receivers: %w", err)
	}

	for i, f := range e.flood {
		if f > 0 {
			e.flood[i] = f - 1
		}
	}

	e.updateRivers(in)
	flows := e.computeFlows(in)
	requests := e.overflow(in.Terrain, flows)
	e.updateLakes(flows)
	e.updateAquifers(in, flows)
	return requests, nil
}

// computeReceivers finds each land cell's steepest strictly-lower neighbour.
// Ties go to the neighbour with the lowest x, then the lowest y.
func (e *Engine) computeReceivers(t *world.Terrain) error {
	g := e.grid
	return world.ForRows(g, e.workers, func(y0, y1 int) error {
		for i := y0 * g.W; i < y1*g.W; i++ {
			e.receiver[i] = -1
			if t.IsWater(i) {
				continue
			}
			alt := t.Altitude(i)
			best, bestDrop := -1, 0.0
			for k, nb := range g.Neighbors8(i) {
				drop := (alt - t.Altitude(nb)) / world.NeighborDistance(k)
				if drop <= 0 {
					continue
				}
				if drop > bestDrop || (drop == bestDrop && lessXY(g, nb, best)) {
					best, bestDrop = nb, drop
				}
			}
			e.receiver[i] = best
		}
		return nil
	})
}

func lessXY(g world.Grid, a, b int) bool {
	ca, cb := g.Coord(a), g.Coord(b)
	if ca.X != cb.X {
		return ca.X < cb.X
	}
	return ca.Y < cb.Y
}

// infiltrationFraction returns the share of precipitation soaking into the ground.
func (e *Engine) infiltrationFraction(t *world.Terrain, i int) float64 {
	if t.Altitude(i)-t.SeaLevel() > e.cfg.HighlandAltitude {
		return e.cfg.HighInfiltration
	}
	return e.cfg.LowInfiltration
}

// Cycle returns the daily water balance of cell i.
func (e *Engine) Cycle(in Input, i int) WaterCycle {
	daily := in.Precipitation[i] / 30
	if in.Terrain.IsWater(i) {
		return WaterCycle{Evaporation: daily * tempFactor(in.Temperature[i])}
	}
	f := e.infiltrationFraction(in.Terrain, i)
	return WaterCycle{
		Infiltration: daily * f,
		Runoff:       daily * (1 - f),
		Evaporation:  daily * 0.1 * tempFactor(in.Temperature[i]),
	}
}

// overflow compares river flow to channel capacity, floods lower banks and emits
// delta deposits downstream of overloaded cells.
func (e *Engine) overflow(t *world.Terrain, flows map[int][]float64) []DepositRequest {
	g := e.grid
	amounts := make(map[int]float64)

	for _, id := range e.riverIDs() {
		r := e.rivers[id]
		flow := flows[id]
		for k, cell := range r.Path {
			capacity := e.cfg.CapacityBase + e.cfg.CapacitySlope*t.Slope(cell)
			excess := flow[k] - capacity
			if excess <= 0 {
				continue
			}
			next := r.SinkCell
			if k+1 < len(r.Path) {
				next = r.Path[k+1]
			}
			if next >= 0 {
				amounts[next] += excess * e.cfg.DeltaFraction
			}
			alt := t.Altitude(cell)
			for _, nb := range g.Neighbors8(cell) {
				if !t.IsWater(nb) && t.Altitude(nb) < alt && e.riverAt[nb] < 0 {
					e.flood[nb] = e.cfg.FloodTicks
				}
			}
		}
	}

	cells := make([]int, 0, len(amounts))
	for c := range amounts {
		cells = append(cells, c)
	}
	slices.Sort(cells)
	out := make([]DepositRequest, 0, len(cells))
	for _, c := range cells {
		out = append(out, DepositRequest{Cell: c, Amount: math.Min(amounts[c], e.cfg.MaxDelta)})
	}
	return out
}

// IsRiver reports whether a river runs through cell i.
func (e *Engine) IsRiver(i int) bool { return e.riverAt[i] >= 0 }

// Flooded reports whether cell i is flood-saturated.
func (e *Engine) Flooded(i int) bool { return e.flood[i] > 0 }

// Receiver returns the flow receiver of cell i, or -1.
func (e *Engine) Receiver(i int) int { return e.receiver[i] }

// CheckInvariants verifies river paths are acyclic and descending, confluence chains
// terminate, and aquifer volumes are finite and non-negative.
func (e *Engine) CheckInvariants() error {
	for _, id := range e.riverIDs() {
		r := e.rivers[id]
		seen := make(map[int]bool, len(r.Path))
		for k, c := range r.Path {
			if seen[c] {
				return world.Invariant("hydrology", c, "river %d revisits cell", id)
			}
			seen[c] = true
			if k > 0 && r.TracedAlt[k] >= r.TracedAlt[k-1] {
				return world.Invariant("hydrology", c, "river %d ascends (%.2f -> %.2f)", id, r.TracedAlt[k-1], r.TracedAlt[k])
			}
		}
		hops := 0
		for d := r; d.Sink == SinkConfluence; hops++ {
			if hops > len(e.rivers) {
				return world.Invariant("hydrology", r.Source, "river %d confluence chain cycles", id)
			}
			next, ok := e.rivers[d.Downstream]
			if !ok {
				break
			}
			d = next
		}
	}
	for _, a := range e.aquifers {
		if math.IsNaN(a.Volume) || a.Volume < 0 {
			return world.Invariant("hydrology", a.Cells[0], "aquifer %d volume %v", a.ID, a.Volume)
		}
	}
	return nil
}

func tempFactor(t float64) float64 {
	return math.Min(1, math.Max(0, (t+10)/40))
}

func logRetrace(id, from int, g world.Grid) {
	c := g.Coord(from)
	slog.Debug("river retraced", "river", id, "from_x", c.X, "from_y", c.Y)
}
