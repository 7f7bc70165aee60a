// Package climate derives temperature, wind, humidity, precipitation and climate
// classification from committed terrain and the season, and tracks slow glaciation.
package climate

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/talgya/overworld/internal/noise"
	"github.com/talgya/overworld/internal/world"
)

// Cadence values for Config.Cadence.
const (
	CadenceTick   = "tick"
	CadenceSeason = "season"
)

// Config holds atmospheric model parameters.
type Config struct {
	Cadence            string  `yaml:"cadence" json:"cadence"`
	EquatorTemp        float64 `yaml:"equator_temp" json:"equator_temp"` // °C at sea level
	PoleTemp           float64 `yaml:"pole_temp" json:"pole_temp"`
	LapseRate          float64 `yaml:"lapse_rate" json:"lapse_rate"` // °C lost per km above sea level
	SeasonalAmplitude  float64 `yaml:"seasonal_amplitude" json:"seasonal_amplitude"`
	NoiseTempRange     float64 `yaml:"noise_temp_range" json:"noise_temp_range"`
	BandShift          float64 `yaml:"band_shift" json:"band_shift"` // Latitude shift of wind bands at solstice
	LandAttenuation    float64 `yaml:"land_attenuation" json:"land_attenuation"`
	OrographicScale    float64 `yaml:"orographic_scale" json:"orographic_scale"` // Rise in metres that rains out all moisture
	BarrierHeight      float64 `yaml:"barrier_height" json:"barrier_height"`
	BarrierPass        float64 `yaml:"barrier_pass" json:"barrier_pass"`
	MeridionalMix      float64 `yaml:"meridional_mix" json:"meridional_mix"`
	HumidityNoise      float64 `yaml:"humidity_noise_weight" json:"humidity_noise_weight"`
	OrographicGain     float64 `yaml:"orographic_gain" json:"orographic_gain"`
	PrecipitationScale float64 `yaml:"precipitation_scale" json:"precipitation_scale"`
	FreezeThreshold    float64 `yaml:"freeze_threshold" json:"freeze_threshold"` // Annual mean °C below which land ices over
	GlacialPeriodYears float64 `yaml:"glacial_period_years" json:"glacial_period_years"` // Orbital forcing period
	GlaciationRate     float64 `yaml:"glaciation_rate" json:"glaciation_rate"`           // Per-year relaxation toward the forced index
	AlbedoFeedback     float64 `yaml:"albedo_feedback" json:"albedo_feedback"`
	IceAgeCooling      float64 `yaml:"ice_age_cooling" json:"ice_age_cooling"` // °C at glaciation index 1

	Noise noise.Octaves `yaml:"noise" json:"noise"`
}

// Ice ages cycle on orbital timescales. A period below MinGlacialPeriodYears or a
// relaxation faster than MaxGlaciationRate per year turns glaciation into weather.
const (
	MinGlacialPeriodYears = 1000
	MaxGlaciationRate     = 0.01
)

// DefaultConfig returns a temperate Earth-like setting.
func DefaultConfig() Config {
	return Config{
		Cadence:            CadenceTick,
		EquatorTemp:        30,
		PoleTemp:           -40,
		LapseRate:          6.5,
		SeasonalAmplitude:  15,
		NoiseTempRange:     3,
		BandShift:          0.05,
		LandAttenuation:    0.03,
		OrographicScale:    1500,
		BarrierHeight:      2500,
		BarrierPass:        0.3,
		MeridionalMix:      0.25,
		HumidityNoise:      0.15,
		OrographicGain:     0.8,
		PrecipitationScale: 1,
		FreezeThreshold:    -6,
		GlacialPeriodYears: 41000,
		GlaciationRate:     0.0005,
		AlbedoFeedback:     0.5,
		IceAgeCooling:      8,
		Noise:              noise.Octaves{Count: 3, Frequency: 2, Persistence: 0.5, Lacunarity: 2},
	}
}

// Cell is the climate state of one cell.
type Cell struct {
	Temperature   float64 `json:"temperature"`
	Humidity      float64 `json:"humidity"`
	WindX         float64 `json:"wind_x"`
	WindY         float64 `json:"wind_y"`
	WindSpeed     float64 `json:"wind_speed"`
	Precipitation float64 `json:"precipitation"`
	Orographic    float64 `json:"orographic_precipitation"`
	CloudCover    float64 `json:"cloud_cover"`
	Class         Class   `json:"class"`
	Biome         Biome   `json:"biome"`
}

// Input is the committed state a climate pass reads.
type Input struct {
	Terrain  *world.Terrain
	Calendar Calendar
	Season   int
}

// Engine owns every climate field. Fields are fully recomputed on each Update.
type Engine struct {
	grid    world.Grid
	cfg     Config
	workers int

	baseTemp  []float64 // Noise layers in [-1, 1]
	baseHumid []float64

	temp   []float64
	humid  []float64
	windX  []float64 // Per row
	windY  []float64
	precip []float64
	oro    []float64
	class  []Class
	biome  []Biome

	glaciation float64
	annualSum  []float64
	annualDays int
	frozen     []bool
	updated    bool
}

// New allocates the climate fields and samples the base noise layers.
func New(g world.Grid, cfg Config, layers noise.Layers, workers int) (*Engine, error) {
	n := g.Len()
	e := &Engine{
		grid:      g,
		cfg:       cfg,
		workers:   workers,
		baseTemp:  make([]float64, n),
		baseHumid: make([]float64, n),
		temp:      make([]float64, n),
		humid:     make([]float64, n),
		windX:     make([]float64, g.H),
		windY:     make([]float64, g.H),
		precip:    make([]float64, n),
		oro:       make([]float64, n),
		class:     make([]Class, n),
		biome:     make([]Biome, n),
		annualSum: make([]float64, n),
		frozen:    make([]bool, n),
	}
	if err := layers.Temperature.FillParallel(e.baseTemp, cfg.Noise, workers); err != nil {
		return nil, fmt.Errorf("climate temperature layer: %w", err)
	}
	if err := layers.Humidity.FillParallel(e.baseHumid, cfg.Noise, workers); err != nil {
		return nil, fmt.Errorf("climate humidity layer: %w", err)
	}
	return e, nil
}

// Config returns the climate configuration.
func (e *Engine) Config() Config { return e.cfg }

// NeedsUpdate reports whether a pass should run for this tick under the configured cadence.
func (e *Engine) NeedsUpdate(seasonChanged bool) bool {
	return !e.updated || e.cfg.Cadence != CadenceSeason || seasonChanged
}

// Update recomputes temperature, wind, humidity, precipitation, classes and biomes.
func (e *Engine) Update(in Input) error {
	sf := in.Calendar.TemperatureFactor(in.Season)
	pf := in.Calendar.PrecipitationFactor(in.Season)
	t := in.Terrain

	if err := world.ForRows(e.grid, e.workers, func(y0, y1 int) error {
		for y := y0; y < y1; y++ {
			e.rowTemperature(t, y, sf)
			e.rowWind(y, sf)
		}
		return nil
	}); err != nil {
		return fmt.Errorf("climate temperature: %w", err)
	}

	raw := make([]float64, len(e.humid))
	if err := world.ForRows(e.grid, e.workers, func(y0, y1 int) error {
		for y := y0; y < y1; y++ {
			e.marchRow(t, y, raw)
		}
		return nil
	}); err != nil {
		return fmt.Errorf("climate humidity: %w", err)
	}

	if err := world.ForRows(e.grid, e.workers, func(y0, y1 int) error {
		for y := y0; y < y1; y++ {
			e.mixRow(t, y, raw)
			e.rowPrecipitation(t, y, pf)
		}
		return nil
	}); err != nil {
		return fmt.Errorf("climate precipitation: %w", err)
	}

	e.updated = true
	return nil
}

func (e *Engine) rowTemperature(t *world.Terrain, y int, sf float64) {
	g := e.grid
	lat := g.Latitude(y)
	hemi := g.Hemisphere(y)
	sea := t.SeaLevel()

	base := e.cfg.EquatorTemp - (e.cfg.EquatorTemp-e.cfg.PoleTemp)*lat
	seasonal := lat * e.cfg.SeasonalAmplitude * sf * hemi
	cooling := e.glaciation * e.cfg.IceAgeCooling

	for x := 0; x < g.W; x++ {
		i := y*g.W + x
		lapse := e.cfg.LapseRate * math.Max(0, t.Altitude(i)-sea) / 1000
		e.temp[i] = base + seasonal - lapse + e.baseTemp[i]*e.cfg.NoiseTempRange - cooling
	}
}

// rowWind sets the prevailing wind for row y from its circulation band.
func (e *Engine) rowWind(y int, sf float64) {
	g := e.grid
	lat := g.Latitude(y)
	hemi := g.Hemisphere(y)
	shift := e.cfg.BandShift * sf * hemi // Poleward in local summer

	var wx, wy float64
	switch {
	case lat < 1.0/3+shift: // Hadley: easterly trades toward the equator
		wx, wy = -5, 1.5*hemi
	case lat < 2.0/3+shift: // Ferrel: westerlies toward the pole
		wx, wy = 8, -2*hemi
	default: // Polar easterlies
		wx, wy = -4, 1*hemi
	}
	e.windX[y] = wx
	e.windY[y] = wy
}

func (e *Engine) rowPrecipitation(t *world.Terrain, y int, pf float64) {
	g := e.grid
	sea := t.SeaLevel()
	for x := 0; x < g.W; x++ {
		i := y*g.W + x
		tf := clamp((e.temp[i]+10)/35, 0.1, 1)
		p := e.humid[i]*200*tf*pf + e.oro[i]*200*e.cfg.OrographicGain
		e.precip[i] = clamp(p*e.cfg.PrecipitationScale, 0, 500)
		e.class[i] = Classify(t.IsWater(i), e.temp[i], e.precip[i])
		e.biome[i] = ClassifyBiome(BiomeInput{
			Water:       t.IsWater(i),
			Coastal:     coastal(t, g, i),
			Height:      t.Altitude(i) - sea,
			Temperature: e.temp[i],
			Humidity:    e.humid[i],
		})
	}
}

func coastal(t *world.Terrain, g world.Grid, i int) bool {
	for _, j := range g.Neighbors4(i) {
		if t.IsWater(j) {
			return true
		}
	}
	return false
}

// Accumulate adds the current temperature to the annual mean accumulator.
func (e *Engine) Accumulate() {
	for i, v := range e.temp {
		e.annualSum[i] += v
	}
	e.annualDays++
}

// EndYear turns the annual mean into the frozen mask and updates the glaciation index
// from orbital forcing and ice-albedo feedback.
func (e *Engine) EndYear(year uint64, t *world.Terrain) {
	land, frozen := 0, 0
	for i := range e.frozen {
		e.frozen[i] = false
		if t.IsWater(i) {
			continue
		}
		land++
		if e.annualDays > 0 && e.annualSum[i]/float64(e.annualDays) < e.cfg.FreezeThreshold {
			e.frozen[i] = true
			frozen++
		}
	}
	clear(e.annualSum)
	e.annualDays = 0

	frac := 0.0
	if land > 0 {
		frac = float64(frozen) / float64(land)
	}
	forcing := 0.0
	if e.cfg.GlacialPeriodYears > 0 {
		forcing = 0.5 + 0.5*math.Sin(2*math.Pi*float64(year)/e.cfg.GlacialPeriodYears)
	}
	target := clamp(0.6*forcing+e.cfg.AlbedoFeedback*frac, 0, 1)
	// |target - index| <= 1, so the index moves at most GlaciationRate per year.
	e.glaciation = clamp(e.glaciation+(target-e.glaciation)*e.cfg.GlaciationRate, 0, 1)

	slog.Info("glaciation updated", "year", year, "index", math.Round(e.glaciation*1000)/1000,
		"frozen_land", frozen, "land", land)
}

// Cell returns the climate state of cell i.
func (e *Engine) Cell(i int) Cell {
	y := i / e.grid.W
	wx, wy := e.windX[y], e.windY[y]
	return Cell{
		Temperature:   e.temp[i],
		Humidity:      e.humid[i],
		WindX:         wx,
		WindY:         wy,
		WindSpeed:     math.Hypot(wx, wy),
		Precipitation: e.precip[i],
		Orographic:    e.oro[i],
		CloudCover:    clamp(e.humid[i]*0.7+e.precip[i]/200, 0, 1),
		Class:         e.class[i],
		Biome:         e.biome[i],
	}
}

// Class returns the climate class of cell i.
func (e *Engine) Class(i int) Class { return e.class[i] }

// Temperatures exposes the temperature field. Callers must not modify it.
func (e *Engine) Temperatures() []float64 { return e.temp }

// Precipitation exposes the precipitation field. Callers must not modify it.
func (e *Engine) Precipitation() []float64 { return e.precip }

// Frozen exposes last year's frozen mask. Callers must not modify it.
func (e *Engine) Frozen() []bool { return e.frozen }

// Glaciation returns the glaciation index in [0, 1].
func (e *Engine) Glaciation() float64 { return e.glaciation }

// Biome returns the biome of cell i.
func (e *Engine) Biome(i int) Biome { return e.biome[i] }

// BiomeCounts tallies cells per biome.
func (e *Engine) BiomeCounts() map[string]int {
	out := map[string]int{}
	for _, b := range e.biome {
		out[b.String()]++
	}
	return out
}

// ClassCounts tallies cells per class.
func (e *Engine) ClassCounts() map[string]int {
	out := map[string]int{}
	for _, c := range e.class {
		out[c.String()]++
	}
	return out
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
