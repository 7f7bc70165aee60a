package world

import (
	"math/rand"
	"slices"
)

// ResourceRule is one row of the resource rarity table.
type ResourceRule struct {
	Name        string   `yaml:"name" json:"name"`
	Rarity      float64  `yaml:"rarity" json:"rarity"` // Probability a qualifying cell holds the resource
	MinAltitude float64  `yaml:"min_altitude" json:"min_altitude"`
	MaxAltitude float64  `yaml:"max_altitude" json:"max_altitude"`
	Substrates  []string `yaml:"substrates" json:"substrates"` // Empty means any land substrate
}

// DefaultResourceTable returns the standard rarity table.
func DefaultResourceTable() []ResourceRule {
	return []ResourceRule{
		{Name: "iron", Rarity: 0.08, MinAltitude: 200, MaxAltitude: 9000, Substrates: []string{"rock"}},
		{Name: "copper", Rarity: 0.05, MinAltitude: 300, MaxAltitude: 9000, Substrates: []string{"rock"}},
		{Name: "gold", Rarity: 0.01, MinAltitude: 800, MaxAltitude: 9000, Substrates: []string{"rock", "sediment"}},
		{Name: "coal", Rarity: 0.06, MinAltitude: 0, MaxAltitude: 1500},
		{Name: "gems", Rarity: 0.005, MinAltitude: 1500, MaxAltitude: 9000, Substrates: []string{"rock"}},
		{Name: "salt", Rarity: 0.04, MinAltitude: 0, MaxAltitude: 200, Substrates: []string{"sediment"}},
		{Name: "clay", Rarity: 0.10, MinAltitude: 0, MaxAltitude: 500, Substrates: []string{"sediment"}},
		{Name: "timber", Rarity: 0.30, MinAltitude: 0, MaxAltitude: 2500},
	}
}

// Resources stores per-cell abundance (0..100) for each resource in the table.
type Resources struct {
	names     []string
	abundance [][]uint8 // [resource][cell]
}

// AssignResources rolls the rarity table over every land cell in index order.
func AssignResources(t *Terrain, table []ResourceRule, seed int64) *Resources {
	rng := rand.New(rand.NewSource(seed + 300))
	n := t.grid.Len()

	r := &Resources{
		names:     make([]string, len(table)),
		abundance: make([][]uint8, len(table)),
	}
	for k, rule := range table {
		r.names[k] = rule.Name
		r.abundance[k] = make([]uint8, n)
	}

	for i := 0; i < n; i++ {
		if t.IsWater(i) {
			continue
		}
		alt := t.Altitude(i)
		sub := SubstrateName(t.Substrate(i))
		for k, rule := range table {
			// Roll every rule so the sequence does not depend on which rules qualify.
			roll := rng.Float64()
			amount := rng.Intn(100) + 1
			if alt < rule.MinAltitude || alt > rule.MaxAltitude {
				continue
			}
			if len(rule.Substrates) > 0 && !slices.Contains(rule.Substrates, sub) {
				continue
			}
			if roll < rule.Rarity {
				r.abundance[k][i] = uint8(amount)
			}
		}
	}
	return r
}

// At returns the non-zero resources of cell i.
func (r *Resources) At(i int) map[string]int {
	out := make(map[string]int)
	if r == nil {
		return out
	}
	for k, name := range r.names {
		if v := r.abundance[k][i]; v > 0 {
			out[name] = int(v)
		}
	}
	return out
}

// Totals returns the number of cells holding each resource.
func (r *Resources) Totals() map[string]int {
	out := make(map[string]int, len(r.names))
	for k, name := range r.names {
		for _, v := range r.abundance[k] {
			if v > 0 {
				out[name]++
			}
		}
	}
	return out
}
