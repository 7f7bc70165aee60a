// Season transitions and year-end processing.
package engine

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/talgya/overworld/internal/climate"
)

// processSeason logs a season change. The climate stage recomputes the seasonal
// baseline offsets after this runs.
func (s *Simulation) processSeason(prev, cur climate.Date) {
	slog.Info("season changed",
		"tick", s.tick,
		"from", prev.SeasonName,
		"to", cur.SeasonName,
		"year", cur.Year,
		"temperature_factor", math.Round(s.calendar.TemperatureFactor(cur.Season)*100)/100,
		"glaciation", math.Round(s.climate.Glaciation()*1000)/1000,
	)
}

// processYearEnd closes the finished year: the frozen mask and glaciation index are
// rebuilt from the annual mean temperature and exhausted aquifers may be replenished.
func (s *Simulation) processYearEnd(year uint64) {
	s.climate.EndYear(year, s.terrain)
	s.hydro.EndYear()

	frozen := 0
	for _, f := range s.climate.Frozen() {
		if f {
			frozen++
		}
	}
	slog.Info("year ended",
		"year", year,
		"rivers", len(s.hydro.Rivers()),
		"lakes", len(s.hydro.Lakes()),
		"frozen_cells", frozen,
		"water_cells", s.terrain.WaterCells(),
		"events", s.log.seq,
	)
}

// SimTime formats a tick as a calendar date.
func SimTime(cal climate.Calendar, tick uint64) string {
	d := cal.DateOf(tick)
	return fmt.Sprintf("%s Day %d, Year %d", d.SeasonName, d.DayOfSeason+1, d.Year+1)
}
