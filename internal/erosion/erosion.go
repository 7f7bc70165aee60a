// Package erosion applies slow slope-driven height change, river delta deposits and
// glacial substrate transitions to the terrain.
package erosion

import (
	"fmt"
	"math"

	"github.com/talgya/overworld/internal/hydrology"
	"github.com/talgya/overworld/internal/world"
)

// Config holds erosion parameters.
type Config struct {
	Rate            float64 `yaml:"rate" json:"rate"`                         // Metres per (slope × mm/month) per tick
	MaxErosion      float64 `yaml:"max_erosion" json:"max_erosion"`           // Metres per cell per tick
	DepositFraction float64 `yaml:"deposit_fraction" json:"deposit_fraction"` // Share of removal laid on lower neighbours
	Floor           float64 `yaml:"floor" json:"floor"`                       // Metres above sea level erosion cannot cut below
}

// DefaultConfig returns the standard erosion settings.
func DefaultConfig() Config {
	return Config{
		Rate:            0.002,
		MaxErosion:      0.5,
		DepositFraction: 0.6,
		Floor:           1,
	}
}

// Input is the committed state an erosion pass reads.
type Input struct {
	Terrain       *world.Terrain
	Precipitation []float64
	Frozen        []bool
	Deposits      []hydrology.DepositRequest
}

// Stats summarises one erosion pass.
type Stats struct {
	Eroded    float64 `json:"eroded_m"`
	Deposited float64 `json:"deposited_m"`
	Frozen    int     `json:"frozen"`
	Thawed    int     `json:"thawed"`
}

// Engine computes and applies erosion.
type Engine struct {
	cfg     Config
	workers int
}

// New creates an erosion engine.
func New(cfg Config, workers int) *Engine {
	return &Engine{cfg: cfg, workers: workers}
}

// Config returns the erosion configuration.
func (e *Engine) Config() Config { return e.cfg }

// Apply erodes every sloped land cell, deposits part of the removal downslope, lays
// river delta deposits and applies freeze and thaw transitions.
func (e *Engine) Apply(in Input) (Stats, error) {
	t := in.Terrain
	g := t.Grid()
	if len(in.Precipitation) != g.Len() {
		return Stats{}, fmt.Errorf("erosion: precipitation field does not match grid")
	}

	alt := t.AltitudeSnapshot()
	removal, err := e.removal(t, alt, in.Precipitation)
	if err != nil {
		return Stats{}, err
	}

	var st Stats
	for i, r := range removal {
		if r <= 0 {
			continue
		}
		before := t.Altitude(i)
		if err := t.ApplyDelta([]int{i}, -r, world.ChangeErode); err != nil {
			return st, fmt.Errorf("erode cell %d: %w", i, err)
		}
		removed := before - t.Altitude(i)
		st.Eroded += removed

		dep, err := e.depositDownslope(t, alt, i, removed*e.cfg.DepositFraction)
		if err != nil {
			return st, err
		}
		st.Deposited += dep
	}

	for _, d := range in.Deposits {
		before := t.Altitude(d.Cell)
		if err := t.ApplyDelta([]int{d.Cell}, d.Amount, world.ChangeDeposit); err != nil {
			return st, fmt.Errorf("delta deposit at %d: %w", d.Cell, err)
		}
		st.Deposited += t.Altitude(d.Cell) - before
	}

	if in.Frozen != nil {
		for i, frozen := range in.Frozen {
			switch sub := t.Substrate(i); {
			case frozen && sub != world.SubstrateIce && sub != world.SubstrateWater:
				st.Frozen++
				if err := t.ApplyDelta([]int{i}, 0, world.ChangeFreeze); err != nil {
					return st, err
				}
			case !frozen && sub == world.SubstrateIce:
				st.Thawed++
				if err := t.ApplyDelta([]int{i}, 0, world.ChangeThaw); err != nil {
					return st, err
				}
			}
		}
	}
	return st, nil
}

// removal computes the material each cell loses, in parallel over the snapshot.
func (e *Engine) removal(t *world.Terrain, alt, precip []float64) ([]float64, error) {
	g := t.Grid()
	floor := t.SeaLevel() + e.cfg.Floor
	out := make([]float64, len(alt))

	err := world.ForRows(g, e.workers, func(y0, y1 int) error {
		for i := y0 * g.W; i < y1*g.W; i++ {
			if t.IsWater(i) {
				continue
			}
			slope := world.SlopeAt(g, alt, i)
			if slope <= 0 {
				continue
			}
			maxDrop := 0.0
			for _, nb := range g.Neighbors8(i) {
				maxDrop = math.Max(maxDrop, alt[i]-alt[nb])
			}
			r := math.Min(e.cfg.MaxErosion, slope*precip[i]*e.cfg.Rate)
			r = math.Min(r, maxDrop/4)
			r = math.Min(r, alt[i]-floor)
			if r > 0 {
				out[i] = r
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("erosion removal: %w", err)
	}
	return out, nil
}

// depositDownslope spreads amount over the lower neighbours of i in proportion to their
// drop in the snapshot and returns what was actually laid down.
func (e *Engine) depositDownslope(t *world.Terrain, alt []float64, i int, amount float64) (float64, error) {
	if amount <= 0 {
		return 0, nil
	}
	g := t.Grid()
	nbs := g.Neighbors8(i)
	total := 0.0
	for _, nb := range nbs {
		if d := alt[i] - alt[nb]; d > 0 {
			total += d
		}
	}
	if total == 0 {
		return 0, nil
	}

	laid := 0.0
	for _, nb := range nbs {
		d := alt[i] - alt[nb]
		if d <= 0 {
			continue
		}
		before := t.Altitude(nb)
		if err := t.ApplyDelta([]int{nb}, amount*d/total, world.ChangeDeposit); err != nil {
			return laid, fmt.Errorf("deposit at %d: %w", nb, err)
		}
		laid += t.Altitude(nb) - before
	}
	return laid, nil
}
