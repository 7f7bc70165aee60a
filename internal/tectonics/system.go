package tectonics

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"slices"

	"github.com/talgya/overworld/internal/noise"
	"github.com/talgya/overworld/internal/world"
)

// Config holds plate generation and dynamics parameters.
type Config struct {
	Min             int     `yaml:"min" json:"min"`
	Max             int     `yaml:"max" json:"max"`
	SpeedMin        float64 `yaml:"speed_min" json:"speed_min"` // Distance units per year
	SpeedMax        float64 `yaml:"speed_max" json:"speed_max"`
	UnitsPerCell    float64 `yaml:"units_per_cell" json:"units_per_cell"`
	OceanicFraction float64 `yaml:"oceanic_fraction" json:"oceanic_fraction"`
	BoundaryMargin  int     `yaml:"boundary_margin" json:"boundary_margin"`
	MinPlateCells   int     `yaml:"min_plate_cells" json:"min_plate_cells"`
	TransformRatio  float64 `yaml:"transform_ratio" json:"transform_ratio"`
	InactiveSpeed   float64 `yaml:"inactive_speed" json:"inactive_speed"`
	EventRate       float64 `yaml:"event_rate" json:"event_rate"` // Event probability per unit of stress per tick
	MagnitudeMin    float64 `yaml:"magnitude_min" json:"magnitude_min"`
	MagnitudeMax    float64 `yaml:"magnitude_max" json:"magnitude_max"`
	MagnitudeAlpha  float64 `yaml:"magnitude_alpha" json:"magnitude_alpha"` // Pareto tail index
	EventRadius     float64 `yaml:"event_radius" json:"event_radius"`       // Cells affected at magnitude max
	MetresPerMag    float64 `yaml:"metres_per_magnitude" json:"metres_per_magnitude"`
	WarpFeatures    float64 `yaml:"warp_features" json:"warp_features"`
	WarpAmplitude   float64 `yaml:"warp_amplitude" json:"warp_amplitude"` // Cells
}

// DefaultConfig returns the canonical plate settings (speeds 1–10 units/year).
func DefaultConfig() Config {
	return Config{
		Min:             5,
		Max:             12,
		SpeedMin:        1,
		SpeedMax:        10,
		UnitsPerCell:    50,
		OceanicFraction: 0.7,
		BoundaryMargin:  1,
		MinPlateCells:   8,
		TransformRatio:  0.35,
		InactiveSpeed:   0.5,
		EventRate:       0.05,
		MagnitudeMin:    1,
		MagnitudeMax:    9,
		MagnitudeAlpha:  1.5,
		EventRadius:     6,
		MetresPerMag:    12,
		WarpFeatures:    4,
		WarpAmplitude:   5,
	}
}

// System owns plate ownership and motion.
type System struct {
	grid   world.Grid
	cfg    Config
	rng    *rand.Rand
	plates []*Plate
	owner  []int

	boundaries map[pairKey]*Boundary
	order      []pairKey // Sorted boundary keys
}

// New partitions the grid into a seeded number of warped Voronoi plates.
func New(g world.Grid, cfg Config, seed int64) (*System, error) {
	n := g.Len()
	rng := rand.New(rand.NewSource(seed + 10))

	count := cfg.Min
	if cfg.Max > cfg.Min {
		count += rng.Intn(cfg.Max - cfg.Min + 1)
	}
	if count > n {
		return nil, fmt.Errorf("tectonics: %d plates do not fit %d cells", count, n)
	}

	s := &System{
		grid:       g,
		cfg:        cfg,
		rng:        rng,
		owner:      make([]int, n),
		boundaries: make(map[pairKey]*Boundary),
	}

	// Distinct seed cells.
	used := make(map[int]bool, count)
	for id := 0; id < count; id++ {
		idx := rng.Intn(n)
		for used[idx] {
			idx = (idx + 1) % n
		}
		used[idx] = true

		p := &Plate{ID: id, Seed: g.Coord(idx)}
		if rng.Float64() < cfg.OceanicFraction {
			p.Class = Oceanic
		}
		angle := rng.Float64() * 2 * math.Pi
		speed := cfg.SpeedMin + rng.Float64()*(cfg.SpeedMax-cfg.SpeedMin)
		p.VX = math.Cos(angle) * speed
		p.VY = math.Sin(angle) * speed
		s.plates = append(s.plates, p)
	}

	warp := noise.NewWarp(seed+3, g.W, g.H, cfg.WarpFeatures, cfg.WarpAmplitude)
	for i := 0; i < n; i++ {
		c := g.Coord(i)
		ox, oy := warp.Offset(float64(c.X), float64(c.Y))
		s.owner[i] = s.nearestSeed(float64(c.X)+ox, float64(c.Y)+oy)
	}
	// Every plate keeps at least its seed cell.
	for _, p := range s.plates {
		s.owner[g.Index(p.Seed.X, p.Seed.Y)] = p.ID
	}

	s.recount()
	s.recomputeBoundaries()
	s.updateStates()

	slog.Info("plates initialized", "plates", count, "boundaries", len(s.order))
	return s, nil
}

// nearestSeed returns the plate whose seed is closest on the torus; ties go to the lower id.
func (s *System) nearestSeed(x, y float64) int {
	w, h := float64(s.grid.W), float64(s.grid.H)
	best, bestD := 0, math.MaxFloat64
	for _, p := range s.plates {
		dx := math.Abs(x - float64(p.Seed.X))
		dx = math.Mod(dx, w)
		dx = math.Min(dx, w-dx)
		dy := math.Abs(y - float64(p.Seed.Y))
		dy = math.Mod(dy, h)
		dy = math.Min(dy, h-dy)
		if d := dx*dx + dy*dy; d < bestD {
			best, bestD = p.ID, d
		}
	}
	return best
}

func (s *System) recount() {
	for _, p := range s.plates {
		p.Cells = 0
	}
	for _, id := range s.owner {
		s.plates[id].Cells++
	}
}

// Step advances plates by dt years and returns the events released this tick.
func (s *System) Step(tick uint64, dt float64) []GeologicalEvent {
	s.advect(dt)
	s.recomputeBoundaries()
	s.updateStates()
	return s.accumulate(tick, dt)
}

// advect moves displacement accumulators and steps plates that crossed a whole cell.
func (s *System) advect(dt float64) {
	upc := s.cfg.UnitsPerCell
	if upc <= 0 {
		upc = 1
	}
	for _, p := range s.plates {
		p.accX += p.VX * dt / upc
		p.accY += p.VY * dt / upc
		for math.Abs(p.accX) >= 1 {
			sx := int(math.Copysign(1, p.accX))
			p.accX -= float64(sx)
			s.stepPlate(p, sx, 0)
		}
		for math.Abs(p.accY) >= 1 {
			sy := int(math.Copysign(1, p.accY))
			p.accY -= float64(sy)
			s.stepPlate(p, 0, sy)
		}
	}
}

// stepPlate lets p take over cells in front of it that it overrides, then
// fills the gap it opens behind itself with new crust.
// Ownership is rebuilt into a fresh slice so it stays a partition.
func (s *System) stepPlate(p *Plate, sx, sy int) {
	g := s.grid
	next := slices.Clone(s.owner)
	margin := max(s.cfg.BoundaryMargin, 1)

	for i, id := range s.owner {
		if id != p.ID {
			continue
		}
		c := g.Coord(i)
		for k := 1; k <= margin; k++ {
			j := g.Index(c.X+sx*k, c.Y+sy*k)
			loser := s.owner[j]
			if loser == p.ID || next[j] != loser {
				continue
			}
			q := s.plates[loser]
			if q.Cells <= s.cfg.MinPlateCells || !overrides(p, q, sx, sy) {
				continue
			}
			next[j] = p.ID
			q.Cells--
			p.Cells++
		}
	}
	s.accrete(p, sx, sy, next)
	s.owner = next
}

// accrete handles the trailing edge of p after a step along (sx, sy). Where
// the plate behind is pulling apart from p, the boundary pair is a spreading
// ridge: one of the two cells becomes new crust of the smaller plate. Neither
// plate is taken below MinPlateCells.
func (s *System) accrete(p *Plate, sx, sy int, next []int) {
	g := s.grid
	along := p.VX*float64(sx) + p.VY*float64(sy)
	for i, id := range s.owner {
		if id != p.ID || next[i] != p.ID {
			continue
		}
		c := g.Coord(i)
		j := g.Index(c.X-sx, c.Y-sy)
		rid := s.owner[j]
		if rid == p.ID || next[j] != rid {
			continue
		}
		r := s.plates[rid]
		if r.VX*float64(sx)+r.VY*float64(sy) >= along {
			continue // closing or keeping pace
		}
		if r.Cells < p.Cells || (r.Cells == p.Cells && r.ID < p.ID) {
			if p.Cells <= s.cfg.MinPlateCells {
				continue
			}
			next[i] = r.ID
			p.Cells--
			r.Cells++
		} else {
			if r.Cells <= s.cfg.MinPlateCells {
				continue
			}
			next[j] = p.ID
			r.Cells--
			p.Cells++
		}
	}
}

// overrides reports whether p wins cells from q when stepping along (sx, sy).
func overrides(p, q *Plate, sx, sy int) bool {
	if p.Class != q.Class {
		return p.Class == Continental
	}
	ps := p.VX*float64(sx) + p.VY*float64(sy)
	qs := q.VX*float64(sx) + q.VY*float64(sy)
	if ps != qs {
		return ps > qs
	}
	return p.ID < q.ID
}

// updateStates sets each plate's state from its fastest boundary.
func (s *System) updateStates() {
	fastest := make([]float64, len(s.plates))
	states := make([]State, len(s.plates))
	for _, key := range s.order {
		b := s.boundaries[key]
		st := stateFor(b.Kind)
		for _, id := range [2]int{b.A, b.B} {
			if b.RelSpeed > fastest[id] {
				fastest[id] = b.RelSpeed
				states[id] = st
			}
		}
	}
	for _, p := range s.plates {
		if p.State != states[p.ID] {
			slog.Debug("plate state changed", "plate", p.ID, "from", p.State, "to", states[p.ID])
			p.State = states[p.ID]
		}
	}
}

func stateFor(k BoundaryKind) State {
	switch k {
	case Convergent:
		return Colliding
	case Divergent:
		return Separating
	case Transform:
		return Shearing
	default:
		return Stable
	}
}

// Owner returns the plate id of cell i.
func (s *System) Owner(i int) int { return s.owner[i] }

// OwnerSnapshot returns a copy of the ownership slice.
func (s *System) OwnerSnapshot() []int { return slices.Clone(s.owner) }

// Plates returns copies of all plates in id order.
func (s *System) Plates() []Plate {
	out := make([]Plate, len(s.plates))
	for i, p := range s.plates {
		out[i] = *p
	}
	return out
}

// Plate returns a copy of plate id.
func (s *System) Plate(id int) (Plate, bool) {
	if id < 0 || id >= len(s.plates) {
		return Plate{}, false
	}
	return *s.plates[id], true
}

// Boundaries returns copies of all boundaries ordered by plate pair.
func (s *System) Boundaries() []Boundary {
	out := make([]Boundary, 0, len(s.order))
	for _, key := range s.order {
		b := *s.boundaries[key]
		b.Cells = slices.Clone(b.Cells)
		out = append(out, b)
	}
	return out
}

// ContinentalMask reports per cell whether its owner is continental.
func (s *System) ContinentalMask() []bool {
	out := make([]bool, len(s.owner))
	for i, id := range s.owner {
		out[i] = s.plates[id].Class == Continental
	}
	return out
}

// Config returns the plate configuration.
func (s *System) Config() Config { return s.cfg }

// CheckPartition verifies every cell has exactly one valid owner and counts agree.
func (s *System) CheckPartition() error {
	counts := make([]int, len(s.plates))
	for i, id := range s.owner {
		if id < 0 || id >= len(s.plates) {
			return world.Invariant("tectonics", i, "owner %d outside plate table of %d", id, len(s.plates))
		}
		counts[id]++
	}
	for id, c := range counts {
		if c == 0 || c != s.plates[id].Cells {
			return &world.InvariantError{
				Component: "tectonics",
				Cell:      -1,
				Plate:     id,
				Detail:    fmt.Sprintf("plate owns %d cells, recorded %d", c, s.plates[id].Cells),
			}
		}
	}
	return nil
}

func hypot(x, y float64) float64 { return math.Sqrt(x*x + y*y) }
