package engine

import (
	"fmt"

	"github.com/talgya/overworld/internal/climate"
	"github.com/talgya/overworld/internal/erosion"
	"github.com/talgya/overworld/internal/hydrology"
	"github.com/talgya/overworld/internal/tectonics"
	"github.com/talgya/overworld/internal/world"
)

// CellView is the read-only state of one cell.
type CellView struct {
	X             int                  `json:"x"`
	Y             int                  `json:"y"`
	Altitude      float64              `json:"altitude"`
	Substrate     world.Substrate      `json:"substrate"`
	Slope         float64              `json:"slope"`
	Temperature   float64              `json:"temperature"`
	Humidity      float64              `json:"humidity"`
	Precipitation float64              `json:"precipitation"`
	CloudCover    float64              `json:"cloud_cover"`
	WindX         float64              `json:"wind_x"`
	WindY         float64              `json:"wind_y"`
	Climate       climate.Class        `json:"climate"`
	ClimateCode   string               `json:"climate_code"`
	Biome         climate.Biome        `json:"biome"`
	Fertility     float64              `json:"fertility"`
	Hostility     float64              `json:"hostility"`
	Resources     map[string]int       `json:"resources"`
	Plate         int                  `json:"plate"`
	River         bool                 `json:"river"`
	Flooded       bool                 `json:"flooded"`
	AquiferCell   bool                 `json:"aquifer_cell"`
	Aquifer       int                  `json:"aquifer"` // Region id, -1 when none
	WaterCycle    hydrology.WaterCycle `json:"water_cycle"`
}

// BoundarySummary describes one boundary from the point of view of a plate.
type BoundarySummary struct {
	Neighbor int                    `json:"neighbor"`
	Kind     tectonics.BoundaryKind `json:"kind"`
	Cells    int                    `json:"cells"`
	Stress   float64                `json:"stress"`
	RelSpeed float64                `json:"relative_speed"`
}

// PlateView is the read-only state of one plate.
type PlateView struct {
	ID         int               `json:"id"`
	Class      tectonics.Class   `json:"class"`
	State      tectonics.State   `json:"state"`
	VX         float64           `json:"vx"`
	VY         float64           `json:"vy"`
	Speed      float64           `json:"speed"`
	Cells      int               `json:"cells"`
	Boundaries []BoundarySummary `json:"boundaries"`
}

// Status summarises the whole world.
type Status struct {
	World             string         `json:"world"`
	Tick              uint64         `json:"tick"`
	Date              climate.Date   `json:"date"`
	Season            string         `json:"season"`
	Glaciation        float64        `json:"glaciation"`
	Plates            int            `json:"plates"`
	AvgPlateSpeed     float64        `json:"avg_plate_speed"`
	Boundaries        map[string]int `json:"boundaries"`
	EventsByKind      map[string]int `json:"events_by_kind"`
	LastEventSeq      uint64         `json:"last_event_seq"`
	Rivers            int            `json:"rivers"`
	Lakes             int            `json:"lakes"`
	Aquifers          int            `json:"aquifers"`
	ExhaustedAquifers int            `json:"exhausted_aquifers"`
	WaterCells        int            `json:"water_cells"`
	LandCells         int            `json:"land_cells"`
	InitialWaterCells int            `json:"initial_water_cells"`
	ClimateClasses    map[string]int `json:"climate_classes"`
	Biomes            map[string]int `json:"biomes"`
	Resources         map[string]int `json:"resources"`
	LastErosion       erosion.Stats  `json:"last_erosion"`
	Halted            bool           `json:"halted"`
	HaltReason        string         `json:"halt_reason,omitempty"`
}

func (s *Simulation) index(x, y int) (int, error) {
	if !s.grid.InBounds(x, y) {
		return 0, fmt.Errorf("%w: (%d,%d) outside %s", ErrOutOfBounds, x, y, s.grid)
	}
	return s.grid.Index(x, y), nil
}

// GetCell returns the committed state of cell (x, y).
func (s *Simulation) GetCell(x, y int) (CellView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, err := s.index(x, y)
	if err != nil {
		return CellView{}, err
	}
	c := s.climate.Cell(i)
	res := s.resources.At(i)
	h := s.habitatAt(i, res)

	return CellView{
		X:             x,
		Y:             y,
		Altitude:      s.terrain.Altitude(i),
		Substrate:     s.terrain.Substrate(i),
		Slope:         s.terrain.Slope(i),
		Temperature:   c.Temperature,
		Humidity:      c.Humidity,
		Precipitation: c.Precipitation,
		CloudCover:    c.CloudCover,
		WindX:         c.WindX,
		WindY:         c.WindY,
		Climate:       c.Class,
		ClimateCode:   c.Class.Code(),
		Biome:         c.Biome,
		Fertility:     fertility(h),
		Hostility:     hostility(h),
		Resources:     res,
		Plate:         s.plates.Owner(i),
		River:         s.hydro.IsRiver(i),
		Flooded:       s.hydro.Flooded(i),
		AquiferCell:   s.terrain.IsAquiferCell(i),
		Aquifer:       s.hydro.AquiferAt(i),
		WaterCycle: s.hydro.Cycle(hydrology.Input{
			Terrain:       s.terrain,
			Precipitation: s.climate.Precipitation(),
			Temperature:   s.climate.Temperatures(),
		}, i),
	}, nil
}

// GetClimateClass returns the climate class of cell (x, y).
func (s *Simulation) GetClimateClass(x, y int) (climate.Class, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, err := s.index(x, y)
	if err != nil {
		return climate.Ocean, err
	}
	return s.climate.Class(i), nil
}

// GetPlates returns every plate in id order with its boundaries.
func (s *Simulation) GetPlates() []PlateView {
	s.mu.RLock()
	defer s.mu.RUnlock()

	plates := s.plates.Plates()
	out := make([]PlateView, len(plates))
	for k, p := range plates {
		out[k] = PlateView{
			ID:    p.ID,
			Class: p.Class,
			State: p.State,
			VX:    p.VX,
			VY:    p.VY,
			Speed: p.Speed(),
			Cells: p.Cells,
		}
	}
	for _, b := range s.plates.Boundaries() {
		sum := BoundarySummary{Kind: b.Kind, Cells: b.CellCount, Stress: b.Stress, RelSpeed: b.RelSpeed}
		sum.Neighbor = b.B
		out[b.A].Boundaries = append(out[b.A].Boundaries, sum)
		sum.Neighbor = b.A
		out[b.B].Boundaries = append(out[b.B].Boundaries, sum)
	}
	return out
}

// GetRivers returns every river in id order.
func (s *Simulation) GetRivers() []hydrology.RiverView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hydro.Rivers()
}

// GetAquifers returns every aquifer in id order.
func (s *Simulation) GetAquifers() []hydrology.AquiferView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hydro.Aquifers()
}

// GetLakes returns every lake ordered by cell.
func (s *Simulation) GetLakes() []hydrology.LakeView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hydro.Lakes()
}

// Status returns world-level counts and the current date.
func (s *Simulation) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	plates := s.plates.Plates()
	speed := 0.0
	for _, p := range plates {
		speed += p.Speed()
	}
	if len(plates) > 0 {
		speed /= float64(len(plates))
	}

	exhausted := 0
	aquifers := s.hydro.Aquifers()
	for _, a := range aquifers {
		if a.Exhausted {
			exhausted++
		}
	}

	byKind := make(map[string]int, len(tectonics.EventKinds))
	for _, k := range tectonics.EventKinds {
		byKind[k.String()] = s.log.byKind[k]
	}

	water := s.terrain.WaterCells()
	st := Status{
		World:             s.id.String(),
		Tick:              s.tick,
		Date:              s.date,
		Season:            s.date.SeasonName,
		Glaciation:        s.climate.Glaciation(),
		Plates:            len(plates),
		AvgPlateSpeed:     speed,
		Boundaries:        s.plates.BoundaryStats(),
		EventsByKind:      byKind,
		LastEventSeq:      s.log.seq,
		Rivers:            len(s.hydro.Rivers()),
		Lakes:             len(s.hydro.Lakes()),
		Aquifers:          len(aquifers),
		ExhaustedAquifers: exhausted,
		WaterCells:        water,
		LandCells:         s.grid.Len() - water,
		InitialWaterCells: s.initialWet,
		ClimateClasses:    s.climate.ClassCounts(),
		Biomes:            s.climate.BiomeCounts(),
		Resources:         s.resources.Totals(),
		LastErosion:       s.lastErosion,
		Halted:            s.halted != nil,
	}
	if s.halted != nil {
		st.HaltReason = s.halted.Error()
	}
	return st
}
