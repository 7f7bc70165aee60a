package climate

import "math"

// Season is one named span of the year.
type Season struct {
	Name string `yaml:"name" json:"name"`
	Days int    `yaml:"days" json:"days"`
}

// Calendar divides the year into 4–6 seasons. One tick is one day.
type Calendar struct {
	DaysPerYear int      `yaml:"days_per_year" json:"days_per_year"`
	Seasons     []Season `yaml:"seasons" json:"seasons"`
}

// DefaultCalendar returns the canonical four-season year.
func DefaultCalendar() Calendar {
	return Calendar{
		DaysPerYear: 365,
		Seasons: []Season{
			{Name: "Spring", Days: 91},
			{Name: "Summer", Days: 92},
			{Name: "Autumn", Days: 91},
			{Name: "Winter", Days: 91},
		},
	}
}

// Date is a position in the calendar.
type Date struct {
	Year        uint64 `json:"year"`
	DayOfYear   int    `json:"day_of_year"`
	Season      int    `json:"season"`
	SeasonName  string `json:"season_name"`
	DayOfSeason int    `json:"day_of_season"`
}

// DateOf returns the calendar date of a tick. Tick 0 is the first day of year 0.
func (c Calendar) DateOf(tick uint64) Date {
	dpy := uint64(c.DaysPerYear)
	d := Date{Year: tick / dpy, DayOfYear: int(tick % dpy)}
	d.Season, d.DayOfSeason = c.Locate(d.DayOfYear)
	d.SeasonName = c.Seasons[d.Season].Name
	return d
}

// Locate returns the season index and day within it for a 0-based day of year.
func (c Calendar) Locate(day int) (season, dayOfSeason int) {
	for i, s := range c.Seasons {
		if day < s.Days {
			return i, day
		}
		day -= s.Days
	}
	last := len(c.Seasons) - 1
	return last, c.Seasons[last].Days - 1
}

// midYear returns the fraction of the year at the middle of season i.
func (c Calendar) midYear(i int) float64 {
	start := 0
	for k := 0; k < i; k++ {
		start += c.Seasons[k].Days
	}
	return (float64(start) + float64(c.Seasons[i].Days)/2) / float64(c.DaysPerYear)
}

// TemperatureFactor is +1 at northern midsummer and -1 at northern midwinter.
// The first season is centred on the spring equinox.
func (c Calendar) TemperatureFactor(season int) float64 {
	f := -math.Cos(2 * math.Pi * (c.midYear(season) + 0.125))
	if math.Abs(f) < 1e-9 {
		return 0
	}
	return f
}

// PrecipitationFactor is 1.2 in transitional seasons, 1.0 in summer and 0.8 in winter.
func (c Calendar) PrecipitationFactor(season int) float64 {
	f := c.TemperatureFactor(season)
	return 1 + 0.2*(1-math.Abs(f)) - 0.2*math.Max(0, -f)
}
