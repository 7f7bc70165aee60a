// World generation from layered simplex noise and a plate crust bias.
package world

import (
	"fmt"
	"math"

	"github.com/talgya/overworld/internal/noise"
)

// lowlandBand is the altitude above sea level within which fresh land starts as sediment.
const lowlandBand = 150.0

// GenInput collects everything the initial terrain depends on.
type GenInput struct {
	Grid        Grid
	Config      TerrainConfig
	Layers      noise.Layers
	Continental []bool // Per-cell crust class from plate ownership
	Resources   []ResourceRule
	Seed        int64
	Workers     int
}

// Generate synthesises the initial terrain: a box-blurred crust bias plus altitude
// noise, reshaped land relief, lowland sediment, dry inland basins and the resource table.
func Generate(in GenInput) (*Terrain, *Resources, error) {
	g := in.Grid
	n := g.Len()
	if len(in.Continental) != n {
		return nil, nil, fmt.Errorf("generate: crust mask has %d cells, grid has %d", len(in.Continental), n)
	}

	relief := make([]float64, n)
	if err := in.Layers.Altitude.FillParallel(relief, in.Config.Noise, in.Workers); err != nil {
		return nil, nil, fmt.Errorf("generate altitude noise: %w", err)
	}

	bias := make([]float64, n)
	for i, cont := range in.Continental {
		if cont {
			bias[i] = in.Config.ContinentalBase
		} else {
			bias[i] = in.Config.OceanicBase
		}
	}
	if in.Config.Island {
		islandFalloff(g, bias, in.Config)
	}
	for pass := 0; pass < in.Config.SmoothPasses; pass++ {
		bias = boxBlur(g, bias)
	}

	alts := make([]float64, n)
	for i := range alts {
		alts[i] = bias[i] + relief[i]*in.Config.Relief
	}
	redistribute(alts, in.Config.SeaLevel, in.Config.Redistribution)

	t, err := NewTerrainFromAltitudes(g, in.Config, alts)
	if err != nil {
		return nil, nil, fmt.Errorf("generate terrain: %w", err)
	}

	for i := range t.alt {
		if t.sub[i] == SubstrateRock && t.alt[i] < in.Config.SeaLevel+lowlandBand {
			t.sub[i] = SubstrateSediment
		}
	}

	t.MarkAquiferCells(inlandBasins(t, in.Config.InlandBasin))

	return t, AssignResources(t, in.Resources, in.Seed), nil
}

// islandFalloff pulls crust toward oceanic with distance from the map centre.
// The weight is 1 - d^falloff, where d is 1 at the middle of each edge.
func islandFalloff(g Grid, bias []float64, cfg TerrainConfig) {
	cx, cy := float64(g.W)/2, float64(g.H)/2
	for i := range bias {
		c := g.Coord(i)
		dx := (float64(c.X) + 0.5 - cx) / cx
		dy := (float64(c.Y) + 0.5 - cy) / cy
		w := math.Max(0, 1-math.Pow(math.Hypot(dx, dy), cfg.IslandFalloff))
		bias[i] = cfg.OceanicBase + (bias[i]-cfg.OceanicBase)*w
	}
}

// redistribute maps land height h above sea to peak*(h/peak)^exp. Lowlands
// flatten while the highest peak and the coastline stay where they are.
func redistribute(alts []float64, sea, exp float64) {
	if exp <= 0 || exp == 1 {
		return
	}
	peak := 0.0
	for _, a := range alts {
		peak = math.Max(peak, a-sea)
	}
	if peak <= 0 {
		return
	}
	for i, a := range alts {
		if h := a - sea; h > 0 {
			alts[i] = sea + peak*math.Pow(h/peak, exp)
		}
	}
}

// boxBlur averages each cell with its 8 neighbours.
func boxBlur(g Grid, src []float64) []float64 {
	dst := make([]float64, len(src))
	for i := range src {
		sum := src[i]
		for _, nb := range g.Neighbors8(i) {
			sum += src[nb]
		}
		dst[i] = sum / 9
	}
	return dst
}

// inlandBasins returns the cells of below-sea-level components no larger than limit.
func inlandBasins(t *Terrain, limit int) []int {
	if limit <= 0 {
		return nil
	}
	g := t.grid
	seen := make([]bool, g.Len())
	var out []int

	for start := range t.alt {
		if seen[start] || t.alt[start] >= t.cfg.SeaLevel {
			continue
		}
		comp := []int{start}
		seen[start] = true
		for q := 0; q < len(comp); q++ {
			for _, nb := range g.Neighbors4(comp[q]) {
				if !seen[nb] && t.alt[nb] < t.cfg.SeaLevel {
					seen[nb] = true
					comp = append(comp, nb)
				}
			}
		}
		if len(comp) <= limit {
			out = append(out, comp...)
		}
	}
	return out
}
