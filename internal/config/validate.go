package config

import (
	"fmt"
	"math"
	"slices"

	"github.com/talgya/overworld/internal/climate"
)

// Validate checks a configuration and returns a *Error listing every problem, or nil.
func Validate(c Config) error {
	var p []string
	add := func(format string, args ...any) { p = append(p, fmt.Sprintf(format, args...)) }

	if c.Workers < 1 {
		add("workers must be at least 1, got %d", c.Workers)
	}
	if c.Grid.Width < 8 || c.Grid.Height < 8 {
		add("grid must be at least 8x8, got %dx%d", c.Grid.Width, c.Grid.Height)
	}
	if c.Grid.CellSize <= 0 {
		add("grid.cell_size_m must be positive")
	}

	t := c.Terrain
	if t.MinAltitude >= t.MaxAltitude {
		add("terrain.min_altitude %.0f must be below max_altitude %.0f", t.MinAltitude, t.MaxAltitude)
	}
	if t.SeaLevel < t.MinAltitude || t.SeaLevel > t.MaxAltitude {
		add("terrain.sea_level %.0f outside [%.0f, %.0f]", t.SeaLevel, t.MinAltitude, t.MaxAltitude)
	}
	if t.MaxTickDelta <= 0 {
		add("terrain.max_tick_delta must be positive")
	}
	if t.SmoothPasses < 0 || t.InlandBasin < 0 {
		add("terrain.smooth_passes and inland_basin_cells must not be negative")
	}
	if t.Redistribution <= 0 {
		add("terrain.redistribution must be positive")
	}
	if t.Island && t.IslandFalloff <= 0 {
		add("terrain.island_falloff must be positive in island mode")
	}

	pl := c.Plates
	if pl.Min < 2 || pl.Max > 64 || pl.Min > pl.Max {
		add("plates range [%d, %d] must lie within [2, 64] with min <= max", pl.Min, pl.Max)
	}
	if pl.SpeedMin < 0 || pl.SpeedMin > pl.SpeedMax {
		add("plates speed range [%v, %v] is inverted or negative", pl.SpeedMin, pl.SpeedMax)
	}
	if pl.UnitsPerCell <= 0 {
		add("plates.units_per_cell must be positive")
	}
	if pl.OceanicFraction < 0 || pl.OceanicFraction > 1 {
		add("plates.oceanic_fraction must be within [0, 1]")
	}
	if pl.MagnitudeMin <= 0 || pl.MagnitudeMin >= pl.MagnitudeMax {
		add("plates magnitude range [%v, %v] is invalid", pl.MagnitudeMin, pl.MagnitudeMax)
	}
	if pl.MagnitudeAlpha <= 0 {
		add("plates.magnitude_alpha must be positive")
	}
	if pl.Min > 0 && c.Grid.Width > 0 && c.Grid.Height > 0 && pl.Max*max(pl.MinPlateCells, 1) > c.Grid.Width*c.Grid.Height {
		add("grid %dx%d too small for %d plates of %d cells", c.Grid.Width, c.Grid.Height, pl.Max, pl.MinPlateCells)
	}
	nonNegative(add, "plates", map[string]float64{
		"event_rate":           pl.EventRate,
		"transform_ratio":      pl.TransformRatio,
		"inactive_speed":       pl.InactiveSpeed,
		"event_radius":         pl.EventRadius,
		"metres_per_magnitude": pl.MetresPerMag,
		"warp_amplitude":       pl.WarpAmplitude,
	})

	validateCalendar(add, c.Calendar)

	cl := c.Climate
	if cl.Cadence != climate.CadenceTick && cl.Cadence != climate.CadenceSeason {
		add("climate.cadence must be %q or %q, got %q", climate.CadenceTick, climate.CadenceSeason, cl.Cadence)
	}
	if cl.GlacialPeriodYears < climate.MinGlacialPeriodYears {
		add("climate.glacial_period_years must be at least %d, got %v", climate.MinGlacialPeriodYears, cl.GlacialPeriodYears)
	}
	if cl.GlaciationRate > climate.MaxGlaciationRate {
		add("climate.glaciation_rate must be at most %v per year, got %v", climate.MaxGlaciationRate, cl.GlaciationRate)
	}
	if cl.OrographicScale <= 0 {
		add("climate.orographic_scale must be positive")
	}
	nonNegative(add, "climate", map[string]float64{
		"lapse_rate":            cl.LapseRate,
		"seasonal_amplitude":    cl.SeasonalAmplitude,
		"land_attenuation":      cl.LandAttenuation,
		"precipitation_scale":   cl.PrecipitationScale,
		"glaciation_rate":       cl.GlaciationRate,
		"meridional_mix":        cl.MeridionalMix,
		"humidity_noise_weight": cl.HumidityNoise,
	})

	h := c.Hydrology
	if h.RegionSize < 1 {
		add("hydrology.region_size must be at least 1")
	}
	if h.CapacityMin < 0 || h.CapacityMin > h.CapacityMax {
		add("hydrology aquifer capacity range [%v, %v] is invalid", h.CapacityMin, h.CapacityMax)
	}
	nonNegative(add, "hydrology", map[string]float64{
		"min_flow":           h.MinFlow,
		"delta_fraction":     h.DeltaFraction,
		"max_delta":          h.MaxDelta,
		"extraction_rate":    h.ExtractionRate,
		"evaporation_rate":   h.EvaporationRate,
		"replenish_fraction": h.ReplenishFraction,
		"lake_evaporation":   h.LakeEvaporation,
		"retrace_threshold":  h.RetraceThreshold,
	})

	e := c.Erosion
	nonNegative(add, "erosion", map[string]float64{
		"rate":        e.Rate,
		"max_erosion": e.MaxErosion,
		"floor":       e.Floor,
	})
	if e.DepositFraction < 0 || e.DepositFraction > 1 {
		add("erosion.deposit_fraction must be within [0, 1]")
	}

	for k, r := range c.Resources {
		if r.Name == "" {
			add("resources[%d] has no name", k)
		}
		if r.Rarity < 0 || r.Rarity > 1 {
			add("resources[%d] %s rarity %v outside [0, 1]", k, r.Name, r.Rarity)
		}
		if r.MinAltitude > r.MaxAltitude {
			add("resources[%d] %s altitude range inverted", k, r.Name)
		}
	}

	if c.Events.RecentLimit < 1 {
		add("events.recent_limit must be at least 1")
	}
	if c.Checks.MaxWaterChangePercent < 0 {
		add("checks.max_water_change_percent must not be negative")
	}

	if len(p) > 0 {
		return &Error{Problems: p}
	}
	return nil
}

func validateCalendar(add func(string, ...any), cal climate.Calendar) {
	if n := len(cal.Seasons); n < 4 || n > 6 {
		add("calendar must have 4 to 6 seasons, got %d", n)
	}
	sum := 0
	for k, s := range cal.Seasons {
		if s.Days <= 0 {
			add("calendar season %d (%s) has non-positive duration %d", k, s.Name, s.Days)
		}
		sum += s.Days
	}
	if cal.DaysPerYear <= 0 {
		add("calendar.days_per_year must be positive")
	} else if sum != cal.DaysPerYear {
		add("calendar season durations sum to %d, want %d", sum, cal.DaysPerYear)
	}
}

// nonNegative reports every negative or non-finite value in fields, in name order.
func nonNegative(add func(string, ...any), section string, fields map[string]float64) {
	names := make([]string, 0, len(fields))
	for n := range fields {
		names = append(names, n)
	}
	slices.Sort(names)
	for _, n := range names {
		v := fields[n]
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			add("%s.%s must be a non-negative number, got %v", section, n, v)
		}
	}
}
