package climate

import "fmt"

// Biome is the ecological zone of a cell, derived from relief, temperature and humidity.
type Biome uint8

const (
	BiomeDeepOcean Biome = iota
	BiomeShallowOcean
	BiomeCoast
	BiomeMangrove
	BiomeGlacier
	BiomeTundra
	BiomeTaiga
	BiomeGrassland
	BiomeTemperateForest
	BiomeTemperateRainforest
	BiomeHotDesert
	BiomeColdDesert
	BiomeSavanna
	BiomeTropicalRainforest
	BiomeTropicalSeasonalForest
	BiomeJungle
	BiomeLowMountain
	BiomeHighMountain
	BiomeMountainPeak
	BiomeSwamp
	BiomeShrubland
	BiomeSteppe
)

var biomeNames = [...]string{
	BiomeDeepOcean:              "deep_ocean",
	BiomeShallowOcean:           "shallow_ocean",
	BiomeCoast:                  "coast",
	BiomeMangrove:               "mangrove",
	BiomeGlacier:                "glacier",
	BiomeTundra:                 "tundra",
	BiomeTaiga:                  "taiga",
	BiomeGrassland:              "grassland",
	BiomeTemperateForest:        "temperate_forest",
	BiomeTemperateRainforest:    "temperate_rainforest",
	BiomeHotDesert:              "hot_desert",
	BiomeColdDesert:             "cold_desert",
	BiomeSavanna:                "savanna",
	BiomeTropicalRainforest:     "tropical_rainforest",
	BiomeTropicalSeasonalForest: "tropical_seasonal_forest",
	BiomeJungle:                 "jungle",
	BiomeLowMountain:            "low_mountain",
	BiomeHighMountain:           "high_mountain",
	BiomeMountainPeak:           "mountain_peak",
	BiomeSwamp:                  "swamp",
	BiomeShrubland:              "shrubland",
	BiomeSteppe:                 "steppe",
}

// Biomes lists every biome in declaration order.
func Biomes() []Biome {
	out := make([]Biome, len(biomeNames))
	for k := range out {
		out[k] = Biome(k)
	}
	return out
}

func (b Biome) String() string {
	if int(b) < len(biomeNames) {
		return biomeNames[b]
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (b Biome) MarshalText() ([]byte, error) { return []byte(b.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *Biome) UnmarshalText(text []byte) error {
	for k, name := range biomeNames {
		if name == string(text) {
			*b = Biome(k)
			return nil
		}
	}
	return fmt.Errorf("unknown biome %q", text)
}

// BiomeInput is what the biome table reads for one cell.
type BiomeInput struct {
	Water       bool
	Coastal     bool    // A 4-neighbour is water
	Height      float64 // Metres above sea level, negative below it
	Temperature float64 // °C
	Humidity    float64 // [0, 1]
}

// Relief and climate thresholds of the biome table.
const (
	ShelfDepth       = 200  // Metres; deeper water is deep ocean
	CoastHeight      = 100  // Metres; humid coastal land below this is coast or mangrove
	LowMountain      = 2000 // Metres
	HighMountain     = 3500
	MountainPeak     = 5000
	GlacierTemp      = -15 // °C
	TundraTemp       = -5
	TaigaTemp        = 3
	TropicalTemp     = 20
	MangroveTemp     = 18
	ColdDesertTemp   = 10
	JungleHeight     = 600 // Metres; tropical rainforest above this is jungle
	DryHumidity      = 0.2
	CoastHumidity    = 0.7
	SwampHumidity    = 0.85
	RainHumidity     = 0.8
	ForestHumidity   = 0.5
	GrassHumidity    = 0.3
	TropicalHumidity = 0.85
)

// ClassifyBiome maps one cell to its biome.
// The table is evaluated top to bottom; the first match wins.
func ClassifyBiome(in BiomeInput) Biome {
	if in.Water {
		if in.Height > -ShelfDepth {
			return BiomeShallowOcean
		}
		return BiomeDeepOcean
	}

	if in.Coastal && in.Height < CoastHeight && in.Humidity > CoastHumidity {
		if in.Temperature > MangroveTemp {
			return BiomeMangrove
		}
		return BiomeCoast
	}

	switch {
	case in.Height >= MountainPeak:
		return BiomeMountainPeak
	case in.Height >= HighMountain:
		return BiomeHighMountain
	case in.Height >= LowMountain:
		return BiomeLowMountain
	}

	switch {
	case in.Temperature < GlacierTemp:
		return BiomeGlacier
	case in.Temperature < TundraTemp:
		return BiomeTundra
	case in.Temperature < TaigaTemp:
		return BiomeTaiga
	}

	if in.Humidity < DryHumidity {
		switch {
		case in.Temperature > TropicalTemp:
			return BiomeHotDesert
		case in.Temperature < ColdDesertTemp:
			return BiomeColdDesert
		default:
			return BiomeSteppe
		}
	}

	if in.Temperature > TropicalTemp {
		switch {
		case in.Humidity > TropicalHumidity:
			if in.Height > JungleHeight {
				return BiomeJungle
			}
			return BiomeTropicalRainforest
		case in.Humidity > ForestHumidity:
			return BiomeTropicalSeasonalForest
		default:
			return BiomeSavanna
		}
	}

	switch {
	case in.Humidity > SwampHumidity:
		return BiomeSwamp
	case in.Humidity > RainHumidity:
		return BiomeTemperateRainforest
	case in.Humidity > ForestHumidity:
		return BiomeTemperateForest
	case in.Humidity > GrassHumidity:
		return BiomeGrassland
	default:
		return BiomeShrubland
	}
}
