package climate

import (
	"testing"

	"github.com/talgya/overworld/internal/world"
)

func TestClassifyBiome(t *testing.T) {
	tests := []struct {
		name string
		in   BiomeInput
		want Biome
	}{
		{"abyss", BiomeInput{Water: true, Height: -4000, Temperature: 20, Humidity: 1}, BiomeDeepOcean},
		{"shelf", BiomeInput{Water: true, Height: -50, Temperature: 20, Humidity: 1}, BiomeShallowOcean},
		{"shelf edge", BiomeInput{Water: true, Height: -ShelfDepth, Humidity: 1}, BiomeDeepOcean},
		{"cool shore", BiomeInput{Coastal: true, Height: 20, Temperature: 12, Humidity: 0.9}, BiomeCoast},
		{"warm shore", BiomeInput{Coastal: true, Height: 20, Temperature: 26, Humidity: 0.9}, BiomeMangrove},
		{"dry shore", BiomeInput{Coastal: true, Height: 20, Temperature: 26, Humidity: 0.1}, BiomeHotDesert},
		{"humid lowland inland", BiomeInput{Height: 20, Temperature: 12, Humidity: 0.75}, BiomeTemperateForest},
		{"peak", BiomeInput{Height: 6000, Temperature: -30, Humidity: 0.3}, BiomeMountainPeak},
		{"alpine", BiomeInput{Height: 4000, Temperature: -10, Humidity: 0.3}, BiomeHighMountain},
		{"foothills", BiomeInput{Height: 2500, Temperature: 25, Humidity: 0.3}, BiomeLowMountain},
		{"ice sheet", BiomeInput{Height: 500, Temperature: -25, Humidity: 0.5}, BiomeGlacier},
		{"tundra", BiomeInput{Height: 500, Temperature: -10, Humidity: 0.5}, BiomeTundra},
		{"taiga", BiomeInput{Height: 500, Temperature: 0, Humidity: 0.5}, BiomeTaiga},
		{"sahara", BiomeInput{Height: 300, Temperature: 30, Humidity: 0.05}, BiomeHotDesert},
		{"gobi", BiomeInput{Height: 1200, Temperature: 6, Humidity: 0.1}, BiomeColdDesert},
		{"dry plateau", BiomeInput{Height: 800, Temperature: 15, Humidity: 0.1}, BiomeSteppe},
		{"amazon", BiomeInput{Height: 100, Temperature: 27, Humidity: 0.95}, BiomeTropicalRainforest},
		{"highland jungle", BiomeInput{Height: 900, Temperature: 24, Humidity: 0.95}, BiomeJungle},
		{"monsoon forest", BiomeInput{Height: 300, Temperature: 26, Humidity: 0.6}, BiomeTropicalSeasonalForest},
		{"serengeti", BiomeInput{Height: 1000, Temperature: 25, Humidity: 0.35}, BiomeSavanna},
		{"marsh", BiomeInput{Height: 50, Temperature: 15, Humidity: 0.9}, BiomeSwamp},
		{"olympic", BiomeInput{Height: 300, Temperature: 10, Humidity: 0.82}, BiomeTemperateRainforest},
		{"prairie", BiomeInput{Height: 400, Temperature: 14, Humidity: 0.4}, BiomeGrassland},
		{"scrub", BiomeInput{Height: 400, Temperature: 16, Humidity: 0.25}, BiomeShrubland},
	}
	for _, tt := range tests {
		if got := ClassifyBiome(tt.in); got != tt.want {
			t.Errorf("%s: %s want %s", tt.name, got, tt.want)
		}
	}
}

func TestBiomeText(t *testing.T) {
	if len(Biomes()) != 22 {
		t.Fatalf("biome table has %d entries", len(Biomes()))
	}
	for _, b := range Biomes() {
		text, _ := b.MarshalText()
		var back Biome
		if err := back.UnmarshalText(text); err != nil || back != b {
			t.Fatalf("%s did not survive text round trip: %v", b, err)
		}
	}
	var b Biome
	if err := b.UnmarshalText([]byte("lava_lake")); err == nil {
		t.Fatalf("unknown biome accepted")
	}
}

func TestUpdateAssignsBiomes(t *testing.T) {
	g := world.NewGrid(16, 16, 1000)
	tr := terrainFrom(t, g, func(x, y int) float64 {
		if x < 8 {
			return -1000
		}
		return 300
	})
	e := newEngine(t, g, quietConfig(), 2)
	if err := e.Update(Input{Terrain: tr, Calendar: DefaultCalendar(), Season: 0}); err != nil {
		t.Fatalf("update: %v", err)
	}

	total := 0
	for _, n := range e.BiomeCounts() {
		total += n
	}
	if total != g.Len() {
		t.Fatalf("biome counts sum to %d want %d", total, g.Len())
	}
	for i := 0; i < g.Len(); i++ {
		b := e.Biome(i)
		if e.Cell(i).Biome != b {
			t.Fatalf("cell %d reports %s, field holds %s", i, e.Cell(i).Biome, b)
		}
		water := tr.IsWater(i)
		if ocean := b == BiomeDeepOcean || b == BiomeShallowOcean; ocean != water {
			t.Fatalf("cell %v water=%v has biome %s", g.Coord(i), water, b)
		}
		if water && b != BiomeDeepOcean {
			t.Fatalf("1000 m deep cell %v classed %s", g.Coord(i), b)
		}
	}
}
