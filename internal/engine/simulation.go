// Package engine ties the world components together and advances them one simulated
// day per tick.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/talgya/overworld/internal/climate"
	"github.com/talgya/overworld/internal/config"
	"github.com/talgya/overworld/internal/erosion"
	"github.com/talgya/overworld/internal/hydrology"
	"github.com/talgya/overworld/internal/noise"
	"github.com/talgya/overworld/internal/tectonics"
	"github.com/talgya/overworld/internal/world"
)

var (
	// ErrHalted is returned once an invariant violation has stopped the simulation.
	ErrHalted = errors.New("engine: simulation halted")
	// ErrOutOfBounds is returned for coordinates outside the grid.
	ErrOutOfBounds = errors.New("engine: coordinates out of bounds")
)

// Simulation holds the complete world state and runs the stages of each tick in order:
// plates, climate, hydrology, erosion, invariant checks.
type Simulation struct {
	mu sync.RWMutex

	id       uuid.UUID
	cfg      config.Config
	grid     world.Grid
	calendar climate.Calendar

	terrain   *world.Terrain
	resources *world.Resources
	plates    *tectonics.System
	climate   *climate.Engine
	hydro     *hydrology.Engine
	erosion   *erosion.Engine

	tick        uint64
	date        climate.Date
	initialWet  int
	lastErosion erosion.Stats

	log  eventLog
	sink HistorySink

	halted error // First stage failure; non-nil stops Advance
}

// Report summarises one Advance call.
type Report struct {
	Tick          uint64                      `json:"tick"`
	Date          climate.Date                `json:"date"`
	SeasonChanged bool                        `json:"season_changed"`
	YearEnded     bool                        `json:"year_ended"`
	Events        []tectonics.GeologicalEvent `json:"events"`
	Deposits      int                         `json:"deposits"`
	Erosion       erosion.Stats               `json:"erosion"`
	WaterCells    int                         `json:"water_cells"`
}

// New validates cfg, generates the initial world and runs the first climate pass.
// Configuration problems are returned as *config.Error.
func New(cfg config.Config) (*Simulation, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	g := world.NewGrid(cfg.Grid.Width, cfg.Grid.Height, cfg.Grid.CellSize)
	layers := noise.NewLayers(cfg.Seed, g.W, g.H)

	plates, err := tectonics.New(g, cfg.Plates, cfg.Seed)
	if err != nil {
		return nil, fmt.Errorf("init plates: %w", err)
	}

	terrain, resources, err := world.Generate(world.GenInput{
		Grid:        g,
		Config:      cfg.Terrain,
		Layers:      layers,
		Continental: plates.ContinentalMask(),
		Resources:   cfg.Resources,
		Seed:        cfg.Seed,
		Workers:     cfg.Workers,
	})
	if err != nil {
		return nil, fmt.Errorf("generate world: %w", err)
	}

	cl, err := climate.New(g, cfg.Climate, layers, cfg.Workers)
	if err != nil {
		return nil, fmt.Errorf("init climate: %w", err)
	}

	s := &Simulation{
		id:        uuid.New(),
		cfg:       cfg,
		grid:      g,
		calendar:  cfg.Calendar,
		terrain:   terrain,
		resources: resources,
		plates:    plates,
		climate:   cl,
		hydro:     hydrology.New(terrain, cfg.Hydrology, cfg.Seed, cfg.Workers),
		erosion:   erosion.New(cfg.Erosion, cfg.Workers),
		date:      cfg.Calendar.DateOf(0),
		log:       newEventLog(cfg.Events.RecentLimit),
	}

	if err := s.climate.Update(s.climateInput()); err != nil {
		return nil, fmt.Errorf("initial climate: %w", err)
	}
	if err := s.checkInvariants(); err != nil {
		return nil, fmt.Errorf("generated world: %w", err)
	}
	s.initialWet = terrain.WaterCells()

	slog.Info("world generated",
		"world", s.id,
		"grid", g,
		"seed", cfg.Seed,
		"plates", len(plates.Plates()),
		"water_cells", s.initialWet,
		"aquifers", len(s.hydro.Aquifers()),
	)
	return s, nil
}

// SetHistorySink installs a consumer that receives every committed event.
func (s *Simulation) SetHistorySink(h HistorySink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink = h
}

// ID returns the world instance id.
func (s *Simulation) ID() uuid.UUID { return s.id }

// Grid returns the world grid.
func (s *Simulation) Grid() world.Grid { return s.grid }

// Config returns the configuration the world was built from.
func (s *Simulation) Config() config.Config { return s.cfg }

// Tick returns the number of completed ticks.
func (s *Simulation) Tick() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tick
}

// Advance runs one tick. A failing stage aborts the tick, skips the later stages and
// halts the simulation; every later call returns ErrHalted.
func (s *Simulation) Advance() (Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.halted != nil {
		return Report{}, fmt.Errorf("%w: %v", ErrHalted, s.halted)
	}

	return s.advanceLocked()
}

// AdvanceN runs ticks ticks and returns one report per committed tick. It stops at the
// first failing tick, returning the reports of the ticks before it together with the error.
func (s *Simulation) AdvanceN(ticks int) ([]Report, error) {
	if ticks < 1 {
		return nil, fmt.Errorf("advance: ticks must be at least 1, got %d", ticks)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	reps := make([]Report, 0, ticks)
	for k := 0; k < ticks; k++ {
		if s.halted != nil {
			return reps, fmt.Errorf("%w: %v", ErrHalted, s.halted)
		}
		rep, err := s.advanceLocked()
		if err != nil {
			return reps, err
		}
		reps = append(reps, rep)
	}
	return reps, nil
}

// advanceLocked runs one tick and notifies the sink. Caller holds the write lock.
func (s *Simulation) advanceLocked() (Report, error) {
	prevTick, prevDate := s.tick, s.date
	rep, err := s.step()
	if err != nil {
		// The failed tick is not committed: the clock and the event log stay at the last
		// good tick.
		s.tick, s.date = prevTick, prevDate
		s.halt(err)
		return rep, err
	}

	if s.sink != nil && len(rep.Events) > 0 {
		if err := s.sink.RecordEvents(rep.Events); err != nil {
			slog.Warn("history sink failed", "tick", rep.Tick, "events", len(rep.Events), "error", err)
		}
	}
	return rep, nil
}

// step runs the stages of one tick under the write lock.
func (s *Simulation) step() (Report, error) {
	prev := s.date
	s.tick++
	s.date = s.calendar.DateOf(s.tick)
	rep := Report{
		Tick:          s.tick,
		Date:          s.date,
		SeasonChanged: s.date.Season != prev.Season || s.date.Year != prev.Year,
		YearEnded:     s.date.Year != prev.Year,
	}

	s.terrain.BeginTick()

	// ── Plates ──
	dt := 1 / float64(s.calendar.DaysPerYear)
	events := s.plates.Step(s.tick, dt)
	for k := range events {
		if err := tectonics.ApplyEvent(s.terrain, events[k], s.cfg.Plates); err != nil {
			return rep, fmt.Errorf("apply %s at %v: %w", events[k].Kind, events[k].Cell, err)
		}
	}
	if err := s.plates.CheckPartition(); err != nil {
		return rep, err
	}

	// ── Climate ──
	if rep.SeasonChanged {
		s.processSeason(prev, s.date)
	}
	if s.climate.NeedsUpdate(rep.SeasonChanged) {
		if err := s.climate.Update(s.climateInput()); err != nil {
			return rep, err
		}
	}
	s.climate.Accumulate()
	if rep.YearEnded {
		s.processYearEnd(prev.Year)
	}

	// ── Hydrology ──
	deposits, err := s.hydro.Update(hydrology.Input{
		Terrain:       s.terrain,
		Precipitation: s.climate.Precipitation(),
		Temperature:   s.climate.Temperatures(),
	})
	if err != nil {
		return rep, err
	}
	rep.Deposits = len(deposits)

	// ── Erosion ──
	st, err := s.erosion.Apply(erosion.Input{
		Terrain:       s.terrain,
		Precipitation: s.climate.Precipitation(),
		Frozen:        s.climate.Frozen(),
		Deposits:      deposits,
	})
	if err != nil {
		return rep, err
	}
	s.lastErosion = st
	rep.Erosion = st

	// ── Invariants ──
	if err := s.checkInvariants(); err != nil {
		return rep, err
	}

	// Events enter the log only once the whole tick has committed.
	for k := range events {
		events[k] = s.log.append(events[k])
	}
	rep.Events = events
	rep.WaterCells = s.terrain.WaterCells()
	return rep, nil
}

func (s *Simulation) climateInput() climate.Input {
	return climate.Input{Terrain: s.terrain, Calendar: s.calendar, Season: s.date.Season}
}

func (s *Simulation) checkInvariants() error {
	if err := s.plates.CheckPartition(); err != nil {
		return err
	}
	if err := s.terrain.CheckInvariants(); err != nil {
		return err
	}
	return s.hydro.CheckInvariants()
}

func (s *Simulation) halt(err error) {
	s.halted = err
	attrs := []any{"tick", s.tick, "error", err}
	var inv *world.InvariantError
	if errors.As(err, &inv) {
		attrs = append(attrs, "component", inv.Component, "cell", inv.Cell)
	}
	slog.Error("simulation halted", attrs...)
}

// Halted returns the failure that stopped the simulation, or nil.
func (s *Simulation) Halted() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.halted
}
