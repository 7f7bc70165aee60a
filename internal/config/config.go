// Package config loads and validates the world configuration document.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"

	_ "embed"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/talgya/overworld/internal/climate"
	"github.com/talgya/overworld/internal/erosion"
	"github.com/talgya/overworld/internal/hydrology"
	"github.com/talgya/overworld/internal/tectonics"
	"github.com/talgya/overworld/internal/world"
)

//go:embed schema.json
var schemaJSON string

// Config is the complete world configuration.
type Config struct {
	Seed    int64 `yaml:"seed"`
	Workers int   `yaml:"workers"` // Goroutines for row-band parallelism

	Grid      GridConfig           `yaml:"grid"`
	Terrain   world.TerrainConfig  `yaml:"terrain"`
	Plates    tectonics.Config     `yaml:"plates"`
	Calendar  climate.Calendar     `yaml:"calendar"`
	Climate   climate.Config       `yaml:"climate"`
	Hydrology hydrology.Config     `yaml:"hydrology"`
	Erosion   erosion.Config       `yaml:"erosion"`
	Resources []world.ResourceRule `yaml:"resources"`
	Events    EventsConfig         `yaml:"events"`
	Log       LogConfig            `yaml:"log"`
	Checks    ChecksConfig         `yaml:"checks"`
}

// GridConfig sets the world dimensions.
type GridConfig struct {
	Width    int     `yaml:"width"`
	Height   int     `yaml:"height"`
	CellSize float64 `yaml:"cell_size_m"`
}

// EventsConfig bounds the in-memory geological event log.
type EventsConfig struct {
	RecentLimit int `yaml:"recent_limit"`
}

// LogConfig selects the log level.
type LogConfig struct {
	Level string `yaml:"level"`
}

// ChecksConfig holds thresholds used by the scenario checks.
type ChecksConfig struct {
	MaxWaterChangePercent float64 `yaml:"max_water_change_percent"`
}

// Default returns the canonical configuration.
func Default() Config {
	return Config{
		Seed:      42,
		Workers:   runtime.NumCPU(),
		Grid:      GridConfig{Width: 256, Height: 128, CellSize: 1000},
		Terrain:   world.DefaultTerrainConfig(),
		Plates:    tectonics.DefaultConfig(),
		Calendar:  climate.DefaultCalendar(),
		Climate:   climate.DefaultConfig(),
		Hydrology: hydrology.DefaultConfig(),
		Erosion:   erosion.DefaultConfig(),
		Resources: world.DefaultResourceTable(),
		Events:    EventsConfig{RecentLimit: 1000},
		Log:       LogConfig{Level: "info"},
		Checks:    ChecksConfig{MaxWaterChangePercent: 5},
	}
}

// Load reads a YAML document, checks it against the embedded schema, decodes it over
// the defaults and validates the result.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(raw)
}

// Parse is Load for an in-memory document.
func Parse(raw []byte) (Config, error) {
	cfg := Default()

	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if doc != nil {
		if err := validateSchema(doc); err != nil {
			return cfg, err
		}
	}

	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// validateSchema checks the raw document shape. YAML values are round-tripped through
// JSON so the validator sees JSON types.
func validateSchema(doc any) error {
	schema, err := jsonschema.CompileString("config.schema.json", schemaJSON)
	if err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("config document: %w", err)
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("config document: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return &Error{Problems: []string{err.Error()}}
	}
	return nil
}

// Error lists every problem found in a configuration.
type Error struct {
	Problems []string
}

func (e *Error) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

// SlogLevel converts the configured level name.
func (l LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
