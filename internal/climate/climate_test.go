package climate

import (
	"math"
	"slices"
	"testing"

	"github.com/talgya/overworld/internal/noise"
	"github.com/talgya/overworld/internal/world"
)

func terrainFrom(t *testing.T, g world.Grid, alt func(x, y int) float64) *world.Terrain {
	t.Helper()
	alts := make([]float64, g.Len())
	for i := range alts {
		c := g.Coord(i)
		alts[i] = alt(c.X, c.Y)
	}
	tr, err := world.NewTerrainFromAltitudes(g, world.DefaultTerrainConfig(), alts)
	if err != nil {
		t.Fatalf("terrain: %v", err)
	}
	return tr
}

func quietConfig() Config {
	cfg := DefaultConfig()
	cfg.NoiseTempRange = 0
	cfg.HumidityNoise = 0
	cfg.MeridionalMix = 0
	return cfg
}

func newEngine(t *testing.T, g world.Grid, cfg Config, workers int) *Engine {
	t.Helper()
	e, err := New(g, cfg, noise.NewLayers(3, g.W, g.H), workers)
	if err != nil {
		t.Fatalf("climate: %v", err)
	}
	return e
}

func TestCalendar(t *testing.T) {
	c := DefaultCalendar()
	cases := []struct {
		tick   uint64
		year   uint64
		season int
		day    int
	}{
		{0, 0, 0, 0},
		{90, 0, 0, 90},
		{91, 0, 1, 0},
		{364, 0, 3, 90},
		{365, 1, 0, 0},
	}
	for _, tc := range cases {
		d := c.DateOf(tc.tick)
		if d.Year != tc.year || d.Season != tc.season || d.DayOfSeason != tc.day {
			t.Errorf("DateOf(%d) = %+v", tc.tick, d)
		}
	}
	if f := c.TemperatureFactor(1); f < 0.99 {
		t.Errorf("summer factor = %v", f)
	}
	if f := c.TemperatureFactor(3); f > -0.99 {
		t.Errorf("winter factor = %v", f)
	}
	if p := c.PrecipitationFactor(0); math.Abs(p-1.2) > 0.01 {
		t.Errorf("spring precipitation factor = %v want 1.2", p)
	}
	if p := c.PrecipitationFactor(3); math.Abs(p-0.8) > 0.01 {
		t.Errorf("winter precipitation factor = %v want 0.8", p)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		water  bool
		temp   float64
		precip float64
		want   Class
	}{
		{true, 25, 100, Ocean},
		{false, -20, 50, IceCap},
		{false, -5, 50, Tundra},
		{false, 2, 50, Subarctic},
		{false, 8, 80, HumidContinental},
		{false, 14, 90, Oceanic},
		{false, 14, 58, Mediterranean},
		{false, 25, 200, TropicalRainforest},
		{false, 25, 100, TropicalMonsoon},
		{false, 25, 80, TropicalSavanna},
		{false, 25, 10, Desert},
		{false, 10, 10, Arid},
		{false, 10, 40, Steppe},
	}
	for _, c := range cases {
		if got := Classify(c.water, c.temp, c.precip); got != c.want {
			t.Errorf("Classify(%v, %v, %v) = %s want %s", c.water, c.temp, c.precip, got, c.want)
		}
	}
	if TropicalRainforest.Code() != "Af" {
		t.Errorf("code = %s", TropicalRainforest.Code())
	}
}

func TestTemperatureLatitudeAndLapse(t *testing.T) {
	g := world.NewGrid(16, 16, 1000)
	peak := g.Index(5, 8)
	tr := terrainFrom(t, g, func(x, y int) float64 {
		if x == 5 && y == 8 {
			return 2000
		}
		return 100
	})
	e := newEngine(t, g, quietConfig(), 2)
	if err := e.Update(Input{Terrain: tr, Calendar: DefaultCalendar(), Season: 0}); err != nil {
		t.Fatalf("update: %v", err)
	}
	equator := e.Cell(g.Index(0, 8)).Temperature
	pole := e.Cell(g.Index(0, 0)).Temperature
	if equator <= pole {
		t.Fatalf("equator %v not warmer than pole %v", equator, pole)
	}
	want := equator - 6.5*1.9
	if got := e.Cell(peak).Temperature; math.Abs(got-want) > 0.05 {
		t.Fatalf("peak temperature = %v want %v", got, want)
	}
}

func TestRainShadow(t *testing.T) {
	g := world.NewGrid(32, 8, 1000)
	const ridge = 16
	tr := terrainFrom(t, g, func(x, y int) float64 {
		switch {
		case x < 4:
			return -500
		case x == ridge:
			return 3500
		default:
			return 50
		}
	})
	e := newEngine(t, g, quietConfig(), 3)
	if err := e.Update(Input{Terrain: tr, Calendar: DefaultCalendar(), Season: 0}); err != nil {
		t.Fatalf("update: %v", err)
	}

	for y := 0; y < g.H; y++ {
		dir := 1
		if e.Cell(g.Index(0, y)).WindX < 0 {
			dir = -1
		}
		upwind := e.Cell(g.Index(ridge-2*dir, y)).Humidity
		downwind := e.Cell(g.Index(ridge+2*dir, y)).Humidity
		if downwind >= upwind {
			t.Errorf("row %d: downwind humidity %v not below upwind %v", y, downwind, upwind)
		}
		if e.Cell(g.Index(ridge, y)).Orographic <= 0 {
			t.Errorf("row %d: no orographic rain on ridge", y)
		}
	}
}

func TestPrecipitationBounds(t *testing.T) {
	g := world.NewGrid(24, 24, 1000)
	tr := terrainFrom(t, g, func(x, y int) float64 { return float64((x*37+y*11)%9)*400 - 1200 })
	e := newEngine(t, g, DefaultConfig(), 4)
	if err := e.Update(Input{Terrain: tr, Calendar: DefaultCalendar(), Season: 1}); err != nil {
		t.Fatalf("update: %v", err)
	}
	for i, p := range e.Precipitation() {
		if p < 0 || p > 500 {
			t.Fatalf("cell %d precipitation %v outside [0,500]", i, p)
		}
		if h := e.Cell(i).Humidity; h < 0 || h > 1 {
			t.Fatalf("cell %d humidity %v outside [0,1]", i, h)
		}
	}

	cfg := DefaultConfig()
	cfg.PrecipitationScale = 0
	dry := newEngine(t, g, cfg, 4)
	if err := dry.Update(Input{Terrain: tr, Calendar: DefaultCalendar(), Season: 1}); err != nil {
		t.Fatalf("update: %v", err)
	}
	for i, p := range dry.Precipitation() {
		if p != 0 {
			t.Fatalf("cell %d precipitation %v with zero scale", i, p)
		}
	}
}

func TestParallelMatchesSerial(t *testing.T) {
	g := world.NewGrid(20, 18, 1000)
	tr := terrainFrom(t, g, func(x, y int) float64 { return float64((x*x+3*y)%17)*150 - 600 })
	a := newEngine(t, g, DefaultConfig(), 1)
	b := newEngine(t, g, DefaultConfig(), 6)
	for _, e := range []*Engine{a, b} {
		if err := e.Update(Input{Terrain: tr, Calendar: DefaultCalendar(), Season: 2}); err != nil {
			t.Fatalf("update: %v", err)
		}
	}
	if !slices.Equal(a.Precipitation(), b.Precipitation()) || !slices.Equal(a.Temperatures(), b.Temperatures()) {
		t.Fatalf("parallel fields differ from serial")
	}
}

func TestGlaciationFromFrozenLand(t *testing.T) {
	g := world.NewGrid(16, 16, 1000)
	tr := terrainFrom(t, g, func(x, y int) float64 { return 4000 })
	cfg := quietConfig()
	cfg.EquatorTemp, cfg.PoleTemp = -20, -40
	e := newEngine(t, g, cfg, 2)
	if err := e.Update(Input{Terrain: tr, Calendar: DefaultCalendar(), Season: 0}); err != nil {
		t.Fatalf("update: %v", err)
	}
	e.Accumulate()
	quarter := uint64(cfg.GlacialPeriodYears / 4)
	e.EndYear(quarter, tr) // orbital forcing peaks a quarter period in

	for i, f := range e.Frozen() {
		if !f {
			t.Fatalf("cell %d not frozen at %v °C", i, e.Cell(i).Temperature)
		}
	}
	if e.Glaciation() <= 0 {
		t.Fatalf("glaciation index did not rise")
	}
	before := e.Glaciation()
	e.Accumulate()
	e.EndYear(quarter+1, tr)
	if e.Glaciation() <= before {
		t.Fatalf("glaciation index did not keep rising: %v -> %v", before, e.Glaciation())
	}
}

func TestGlaciationMovesSlowly(t *testing.T) {
	g := world.NewGrid(12, 12, 1000)
	tr := terrainFrom(t, g, func(x, y int) float64 { return 4000 })
	cfg := quietConfig()
	cfg.EquatorTemp, cfg.PoleTemp = -20, -40
	e := newEngine(t, g, cfg, 2)
	if err := e.Update(Input{Terrain: tr, Calendar: DefaultCalendar(), Season: 0}); err != nil {
		t.Fatalf("update: %v", err)
	}

	// Fully frozen land at peak forcing pushes the index as hard as it can go.
	start := uint64(cfg.GlacialPeriodYears / 4)
	prev := e.Glaciation()
	for y := uint64(0); y < 200; y++ {
		e.Accumulate()
		e.EndYear(start+y, tr)
		if d := math.Abs(e.Glaciation() - prev); d > cfg.GlaciationRate+1e-12 {
			t.Fatalf("year %d: index moved %v, more than %v", y, d, cfg.GlaciationRate)
		}
		prev = e.Glaciation()
	}
	if prev > 0.2 {
		t.Fatalf("index reached %v within two centuries", prev)
	}
}

func TestCadence(t *testing.T) {
	g := world.NewGrid(8, 8, 1000)
	cfg := DefaultConfig()
	cfg.Cadence = CadenceSeason
	e := newEngine(t, g, cfg, 1)
	if !e.NeedsUpdate(false) {
		t.Fatalf("first pass must always run")
	}
	tr := terrainFrom(t, g, func(x, y int) float64 { return 10 })
	if err := e.Update(Input{Terrain: tr, Calendar: DefaultCalendar()}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if e.NeedsUpdate(false) {
		t.Fatalf("season cadence updated without a season change")
	}
	if !e.NeedsUpdate(true) {
		t.Fatalf("season cadence skipped a season change")
	}
}
