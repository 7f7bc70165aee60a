// Fertility and hostility scoring for cells.
package engine

import (
	"math"

	"github.com/talgya/overworld/internal/climate"
	"github.com/talgya/overworld/internal/world"
)

// classFertility is the base fertility of each climate class.
var classFertility = map[climate.Class]float64{
	climate.TropicalRainforest: 0.85,
	climate.TropicalMonsoon:    0.80,
	climate.TropicalSavanna:    0.60,
	climate.Oceanic:            0.80,
	climate.HumidContinental:   0.70,
	climate.Mediterranean:      0.65,
	climate.Steppe:             0.40,
	climate.Subarctic:          0.30,
	climate.Arid:               0.15,
	climate.Desert:             0.05,
	climate.Tundra:             0.10,
	climate.IceCap:             0,
}

// habitat is everything the scores read for one cell.
type habitat struct {
	class     climate.Class
	temp      float64
	precip    float64
	altitude  float64 // Above sea level
	substrate world.Substrate
	river     bool
	flooded   bool
	waterNear bool // River or open water among the 8 neighbours
	diversity int  // Distinct land climate classes among the 8 neighbours
	resources int  // Summed abundance
}

// fertility scores how well a cell supports growth, in [0, 1].
// Prefers temperate and tropical classes, fresh water and flood silt.
func fertility(h habitat) float64 {
	if h.substrate == world.SubstrateWater || h.substrate == world.SubstrateIce {
		return 0
	}
	score := classFertility[h.class]

	if h.river {
		score += 0.15
	} else if h.waterNear {
		score += 0.05
	}
	if h.flooded {
		score += 0.2 // Fresh silt
	}
	if h.substrate == world.SubstrateSediment {
		score += 0.05
	}
	score += float64(h.diversity) * 0.02

	if h.altitude > 2500 {
		score -= (h.altitude - 2500) / 4000
	}
	return clamp01(score)
}

// hostility scores how hard a cell is to live on, in [0, 1]. Open water is fully hostile.
func hostility(h habitat) float64 {
	if h.substrate == world.SubstrateWater {
		return 1
	}
	score := math.Abs(h.temp-15) / 40 // Temperature extremes
	if h.altitude > 2000 {
		score += (h.altitude - 2000) / 3000
	}
	if h.precip < 100 {
		score += (1 - h.precip/100) * 0.4 // Aridity
	}
	if h.substrate == world.SubstrateIce {
		score += 0.5
	}
	if h.river || h.waterNear {
		score -= 0.1
	}
	score -= math.Log1p(float64(h.resources)) * 0.02
	return clamp01(score)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// habitatAt gathers the scoring inputs for cell i. Callers hold the read lock.
func (s *Simulation) habitatAt(i int, res map[string]int) habitat {
	c := s.climate.Cell(i)
	h := habitat{
		class:     c.Class,
		temp:      c.Temperature,
		precip:    c.Precipitation,
		altitude:  s.terrain.Altitude(i) - s.terrain.SeaLevel(),
		substrate: s.terrain.Substrate(i),
		river:     s.hydro.IsRiver(i),
		flooded:   s.hydro.Flooded(i),
	}
	classes := make(map[climate.Class]bool)
	for _, nb := range s.grid.Neighbors8(i) {
		if s.terrain.IsWater(nb) || s.hydro.IsRiver(nb) {
			h.waterNear = true
		}
		if !s.terrain.IsWater(nb) {
			classes[s.climate.Class(nb)] = true
		}
	}
	h.diversity = len(classes)
	for _, v := range res {
		h.resources += v
	}
	return h
}
