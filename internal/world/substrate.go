package world

import "fmt"

// Substrate is the surface material of a cell.
type Substrate uint8

const (
	SubstrateRock     Substrate = iota // Exposed bedrock
	SubstrateSediment                  // Loose material from erosion or deposition
	SubstrateWater                     // Open water (ocean, submerged cells)
	SubstrateIce                       // Glacial cover
)

// SubstrateName returns a human-readable name for a substrate.
func SubstrateName(s Substrate) string {
	switch s {
	case SubstrateRock:
		return "rock"
	case SubstrateSediment:
		return "sediment"
	case SubstrateWater:
		return "water"
	case SubstrateIce:
		return "ice"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Substrate) MarshalText() ([]byte, error) {
	return []byte(SubstrateName(s)), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Substrate) UnmarshalText(b []byte) error {
	for _, c := range []Substrate{SubstrateRock, SubstrateSediment, SubstrateWater, SubstrateIce} {
		if SubstrateName(c) == string(b) {
			*s = c
			return nil
		}
	}
	return fmt.Errorf("unknown substrate %q", b)
}

// SubstrateChange names the process behind an ApplyDelta call.
type SubstrateChange uint8

const (
	ChangeNone    SubstrateChange = iota
	ChangeErode                   // Material removed by water or ice
	ChangeDeposit                 // Material laid down downslope or at a river mouth
	ChangeUplift                  // Tectonic or volcanic uplift
	ChangeFreeze                  // Land covered by ice
	ChangeThaw                    // Ice cover melts away
)

// processTable is the fixed substrate transition table for each process.
// Missing entries leave the substrate unchanged.
var processTable = map[SubstrateChange]map[Substrate]Substrate{
	ChangeErode: {
		SubstrateRock: SubstrateSediment,
	},
	ChangeDeposit: {
		SubstrateRock: SubstrateSediment,
	},
	ChangeUplift: {
		SubstrateSediment: SubstrateRock,
	},
	ChangeFreeze: {
		SubstrateRock:     SubstrateIce,
		SubstrateSediment: SubstrateIce,
	},
	ChangeThaw: {
		SubstrateIce: SubstrateSediment,
	},
}

// submergeTable walks a substrate toward water one step at a time.
// Rock must pass through sediment first.
var submergeTable = map[Substrate]Substrate{
	SubstrateRock:     SubstrateSediment,
	SubstrateSediment: SubstrateWater,
	SubstrateIce:      SubstrateWater,
}

// NextSubstrate applies the process table and then the sea-level rules.
// aquifer cells are exempt from submergence.
func NextSubstrate(cur Substrate, change SubstrateChange, altitude, seaLevel float64, aquifer bool) Substrate {
	if next, ok := processTable[change][cur]; ok {
		cur = next
	}

	if altitude < seaLevel && !aquifer {
		for cur != SubstrateWater {
			cur = submergeTable[cur]
		}
		return cur
	}

	// Emergence: water left above sea level becomes fresh sediment.
	if cur == SubstrateWater && altitude >= seaLevel {
		return SubstrateSediment
	}
	return cur
}

// SubmergencePath returns the sequence of substrates a cell passes through when it
// drops below sea level, excluding the starting substrate.
func SubmergencePath(cur Substrate) []Substrate {
	var path []Substrate
	for cur != SubstrateWater {
		cur = submergeTable[cur]
		path = append(path, cur)
	}
	return path
}
