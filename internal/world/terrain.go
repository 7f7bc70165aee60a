package world

import (
	"fmt"
	"math"

	"github.com/talgya/overworld/internal/noise"
)

// TerrainConfig holds altitude limits and generation shaping for the terrain grid.
type TerrainConfig struct {
	SeaLevel     float64 `yaml:"sea_level" json:"sea_level"`           // Metres
	MinAltitude  float64 `yaml:"min_altitude" json:"min_altitude"`     // Absolute clamp floor
	MaxAltitude  float64 `yaml:"max_altitude" json:"max_altitude"`     // Absolute clamp ceiling
	MaxTickDelta float64 `yaml:"max_tick_delta" json:"max_tick_delta"` // Per-cell |change| budget per tick

	ContinentalBase float64 `yaml:"continental_base" json:"continental_base"`     // Mean altitude of continental crust
	OceanicBase     float64 `yaml:"oceanic_base" json:"oceanic_base"`             // Mean altitude of oceanic crust
	Relief          float64 `yaml:"relief" json:"relief"`                         // Noise amplitude in metres
	SmoothPasses    int     `yaml:"smooth_passes" json:"smooth_passes"`           // Box blur passes over the crust bias
	InlandBasin     int     `yaml:"inland_basin_cells" json:"inland_basin_cells"` // Below-sea basins up to this size become dry aquifer depressions
	Redistribution  float64 `yaml:"redistribution" json:"redistribution"`         // Exponent on land height; 1 leaves relief unchanged
	Island          bool    `yaml:"island" json:"island"`                         // Radial falloff drowns the map edges
	IslandFalloff   float64 `yaml:"island_falloff" json:"island_falloff"`

	Noise noise.Octaves `yaml:"noise" json:"noise"`
}

// DefaultTerrainConfig returns a reasonable starting configuration.
func DefaultTerrainConfig() TerrainConfig {
	return TerrainConfig{
		SeaLevel:        0,
		MinAltitude:     -11000,
		MaxAltitude:     9000,
		MaxTickDelta:    400,
		ContinentalBase: 450,
		OceanicBase:     -3200,
		Relief:          1400,
		SmoothPasses:    3,
		InlandBasin:     4,
		Redistribution:  1.8,
		IslandFalloff:   1.5,
		Noise:           noise.DefaultOctaves(),
	}
}

// Terrain is the authoritative altitude and substrate grid.
// ApplyDelta is the only mutation entry point.
type Terrain struct {
	grid    Grid
	cfg     TerrainConfig
	alt     []float64
	sub     []Substrate
	aquifer []bool
	budget  []float64 // |altitude change| spent per cell in the current tick
}

// NewTerrain allocates a terrain grid at sea level with rock substrate.
func NewTerrain(g Grid, cfg TerrainConfig) *Terrain {
	n := g.Len()
	t := &Terrain{
		grid:    g,
		cfg:     cfg,
		alt:     make([]float64, n),
		sub:     make([]Substrate, n),
		aquifer: make([]bool, n),
		budget:  make([]float64, n),
	}
	for i := range t.alt {
		t.alt[i] = cfg.SeaLevel
	}
	return t
}

// NewTerrainFromAltitudes builds a terrain with the given altitudes, deriving substrate
// from sea level. Altitudes are clamped to the configured range.
func NewTerrainFromAltitudes(g Grid, cfg TerrainConfig, alts []float64) (*Terrain, error) {
	if len(alts) != g.Len() {
		return nil, fmt.Errorf("altitude layer has %d cells, grid has %d", len(alts), g.Len())
	}
	t := NewTerrain(g, cfg)
	for i, a := range alts {
		if math.IsNaN(a) || math.IsInf(a, 0) {
			return nil, fmt.Errorf("altitude at cell %d is not finite", i)
		}
		t.alt[i] = clamp(a, cfg.MinAltitude, cfg.MaxAltitude)
		if t.alt[i] < cfg.SeaLevel {
			t.sub[i] = SubstrateWater
		} else {
			t.sub[i] = SubstrateRock
		}
	}
	return t, nil
}

// Grid returns the grid geometry.
func (t *Terrain) Grid() Grid { return t.grid }

// Config returns the terrain configuration.
func (t *Terrain) Config() TerrainConfig { return t.cfg }

// SeaLevel returns the global sea-level constant.
func (t *Terrain) SeaLevel() float64 { return t.cfg.SeaLevel }

// Altitude returns the altitude of cell i.
func (t *Terrain) Altitude(i int) float64 { return t.alt[i] }

// Substrate returns the substrate of cell i.
func (t *Terrain) Substrate(i int) Substrate { return t.sub[i] }

// IsAquiferCell reports whether cell i is marked as a subterranean aquifer cell.
func (t *Terrain) IsAquiferCell(i int) bool { return t.aquifer[i] }

// IsWater reports whether cell i is open water.
func (t *Terrain) IsWater(i int) bool { return t.sub[i] == SubstrateWater }

// Slope returns the D8 slope of cell i (steepest drop per metre, never negative).
func (t *Terrain) Slope(i int) float64 { return SlopeAt(t.grid, t.alt, i) }

// Gradient returns the central-difference altitude gradient (metres per metre) at cell i.
func (t *Terrain) Gradient(i int) (gx, gy float64) {
	c := t.grid.Coord(i)
	span := 2 * t.grid.CellSize
	gx = (t.alt[t.grid.Index(c.X+1, c.Y)] - t.alt[t.grid.Index(c.X-1, c.Y)]) / span
	gy = (t.alt[t.grid.Index(c.X, c.Y+1)] - t.alt[t.grid.Index(c.X, c.Y-1)]) / span
	return gx, gy
}

// AltitudeSnapshot returns a copy of the altitude layer.
func (t *Terrain) AltitudeSnapshot() []float64 {
	out := make([]float64, len(t.alt))
	copy(out, t.alt)
	return out
}

// SubstrateSnapshot returns a copy of the substrate layer.
func (t *Terrain) SubstrateSnapshot() []Substrate {
	out := make([]Substrate, len(t.sub))
	copy(out, t.sub)
	return out
}

// WaterCells counts cells whose substrate is water.
func (t *Terrain) WaterCells() int {
	n := 0
	for _, s := range t.sub {
		if s == SubstrateWater {
			n++
		}
	}
	return n
}

// BeginTick resets the per-tick altitude change budget.
func (t *Terrain) BeginTick() {
	clear(t.budget)
}

// ApplyDelta changes the altitude of every cell in cells by delta and applies the
// substrate transition for change. The change is clamped to the per-tick budget and to
// the absolute altitude range. It returns an error for non-finite deltas or bad indices.
func (t *Terrain) ApplyDelta(cells []int, delta float64, change SubstrateChange) error {
	if math.IsNaN(delta) || math.IsInf(delta, 0) {
		return fmt.Errorf("apply delta: non-finite delta %v", delta)
	}
	for _, i := range cells {
		if i < 0 || i >= len(t.alt) {
			return fmt.Errorf("apply delta: cell %d out of range", i)
		}

		remaining := t.cfg.MaxTickDelta - t.budget[i]
		if remaining < 0 {
			remaining = 0
		}
		d := clamp(delta, -remaining, remaining)

		next := clamp(t.alt[i]+d, t.cfg.MinAltitude, t.cfg.MaxAltitude)
		t.budget[i] += math.Abs(next - t.alt[i])
		t.alt[i] = next
		t.sub[i] = NextSubstrate(t.sub[i], change, next, t.cfg.SeaLevel, t.aquifer[i])
	}
	return nil
}

// MarkAquiferCells flags cells as subterranean aquifer cells. Marked cells are exempt
// from submergence; water substrate on them is drained to sediment.
func (t *Terrain) MarkAquiferCells(cells []int) {
	for _, i := range cells {
		t.aquifer[i] = true
		if t.sub[i] == SubstrateWater {
			t.sub[i] = SubstrateSediment
		}
	}
}

// CheckInvariants verifies altitude range and the sea-level substrate rule.
func (t *Terrain) CheckInvariants() error {
	for i, a := range t.alt {
		if math.IsNaN(a) || math.IsInf(a, 0) {
			return Invariant("terrain", i, "altitude is not finite")
		}
		if a < t.cfg.MinAltitude || a > t.cfg.MaxAltitude {
			return Invariant("terrain", i, "altitude %.2f outside [%.0f, %.0f]", a, t.cfg.MinAltitude, t.cfg.MaxAltitude)
		}
		if a < t.cfg.SeaLevel && t.sub[i] != SubstrateWater && !t.aquifer[i] {
			return Invariant("terrain", i, "%s below sea level (%.2f)", SubstrateName(t.sub[i]), a)
		}
	}
	return nil
}

// SlopeAt computes the D8 slope of cell i over an altitude layer.
func SlopeAt(g Grid, alt []float64, i int) float64 {
	best := 0.0
	for k, n := range g.Neighbors8(i) {
		drop := (alt[i] - alt[n]) / (NeighborDistance(k) * g.CellSize)
		if drop > best {
			best = drop
		}
	}
	return best
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
