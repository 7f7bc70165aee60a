package climate

import "fmt"

// Class is a Köppen-style climate classification.
type Class uint8

const (
	Ocean Class = iota
	IceCap
	Tundra
	Subarctic
	HumidContinental
	Oceanic
	Mediterranean
	Steppe
	TropicalRainforest
	TropicalMonsoon
	TropicalSavanna
	Arid
	Desert
)

var classInfo = [...]struct {
	name string
	code string
}{
	Ocean:              {"ocean", "-"},
	IceCap:             {"ice_cap", "EF"},
	Tundra:             {"tundra", "ET"},
	Subarctic:          {"subarctic", "Dfc"},
	HumidContinental:   {"humid_continental", "Dfa"},
	Oceanic:            {"oceanic", "Cfb"},
	Mediterranean:      {"mediterranean", "Csa"},
	Steppe:             {"steppe", "BSk"},
	TropicalRainforest: {"tropical_rainforest", "Af"},
	TropicalMonsoon:    {"tropical_monsoon", "Am"},
	TropicalSavanna:    {"tropical_savanna", "Aw"},
	Arid:               {"arid", "BWk"},
	Desert:             {"desert", "BWh"},
}

func (c Class) String() string {
	if int(c) < len(classInfo) {
		return classInfo[c].name
	}
	return "unknown"
}

// Code returns the Köppen code.
func (c Class) Code() string {
	if int(c) < len(classInfo) {
		return classInfo[c].code
	}
	return "?"
}

// MarshalText implements encoding.TextMarshaler.
func (c Class) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Class) UnmarshalText(b []byte) error {
	for k, info := range classInfo {
		if info.name == string(b) {
			*c = Class(k)
			return nil
		}
	}
	return fmt.Errorf("unknown climate class %q", b)
}

// Classify maps temperature (°C) and precipitation (mm/month) to a class.
// The table is evaluated top to bottom; the first match wins.
func Classify(water bool, temp, precip float64) Class {
	if water {
		return Ocean
	}
	switch {
	case temp < -10:
		return IceCap
	case temp < 0:
		return Tundra
	case temp < 5:
		return Subarctic
	}

	// Aridity threshold rises with temperature.
	dry := 2*temp + 28
	switch {
	case precip < dry*0.5:
		if temp >= 18 {
			return Desert
		}
		return Arid
	case precip < dry:
		return Steppe
	}

	switch {
	case temp >= 18:
		if precip >= 150 {
			return TropicalRainforest
		}
		if precip >= 90 {
			return TropicalMonsoon
		}
		return TropicalSavanna
	case temp >= 12:
		if precip < 60 {
			return Mediterranean
		}
		return Oceanic
	default:
		return HumidContinental
	}
}
