// Package noise provides seeded, seamless coherent noise over a toroidal plane.
// The plane is mapped onto a 4D torus so that samples wrap exactly at the world edges.
package noise

import (
	"fmt"
	"math"

	opensimplex "github.com/ojrac/opensimplex-go"
	"golang.org/x/sync/errgroup"
)

// Octaves controls fractal layering. Frequency is measured in features across the
// world width.
type Octaves struct {
	Count       int     `yaml:"count" json:"count"`
	Frequency   float64 `yaml:"frequency" json:"frequency"`
	Persistence float64 `yaml:"persistence" json:"persistence"`
	Lacunarity  float64 `yaml:"lacunarity" json:"lacunarity"`
}

// DefaultOctaves returns a four-octave continental-scale setting.
func DefaultOctaves() Octaves {
	return Octaves{Count: 4, Frequency: 3, Persistence: 0.5, Lacunarity: 2}
}

// Field samples one seeded noise layer.
type Field struct {
	n    opensimplex.Noise
	w, h float64
}

// New creates a field for a width×height plane.
func New(seed int64, width, height int) *Field {
	return &Field{
		n: opensimplex.New(seed),
		w: float64(width),
		h: float64(height),
	}
}

// Sample returns fractal noise in [-1, 1] at plane position (x, y).
// The result depends only on seed, position and octaves.
func (f *Field) Sample(x, y float64, oct Octaves) float64 {
	count := oct.Count
	if count < 1 {
		count = 1
	}
	lac := oct.Lacunarity
	if lac <= 0 {
		lac = 2
	}

	total := 0.0
	amplitude := 1.0
	maxVal := 0.0
	freq := oct.Frequency

	for i := 0; i < count; i++ {
		total += f.torus(x, y, freq, float64(i)*31.7) * amplitude
		maxVal += amplitude
		amplitude *= oct.Persistence
		freq *= lac
	}
	if maxVal == 0 {
		return 0
	}
	return clamp(total/maxVal, -1, 1)
}

// torus maps (x, y) onto two circles whose circumferences are freq and freq·h/w
// noise units, so one feature spans roughly w/freq cells on both axes.
func (f *Field) torus(x, y, freq, offset float64) float64 {
	a := 2 * math.Pi * x / f.w
	b := 2 * math.Pi * y / f.h
	rx := freq / (2 * math.Pi)
	ry := freq * (f.h / f.w) / (2 * math.Pi)
	return f.n.Eval4(
		rx*math.Cos(a)+offset,
		rx*math.Sin(a)+offset,
		ry*math.Cos(b)+offset,
		ry*math.Sin(b)+offset,
	)
}

// FillParallel samples the field at every cell centre into dst (row-major, width =
// plane width) using row bands across workers goroutines.
func (f *Field) FillParallel(dst []float64, oct Octaves, workers int) error {
	width := int(f.w)
	height := int(f.h)
	if len(dst) != width*height {
		return fmt.Errorf("fill noise: buffer has %d cells, want %d", len(dst), width*height)
	}
	if workers < 1 {
		workers = 1
	}
	band := (height + workers - 1) / workers

	var g errgroup.Group
	for start := 0; start < height; start += band {
		y0, y1 := start, min(start+band, height)
		g.Go(func() error {
			for y := y0; y < y1; y++ {
				for x := 0; x < width; x++ {
					dst[y*width+x] = f.Sample(float64(x)+0.5, float64(y)+0.5, oct)
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// Layers holds the three independently seeded base layers used at generation.
type Layers struct {
	Altitude    *Field
	Humidity    *Field
	Temperature *Field
}

// NewLayers creates altitude, humidity and temperature fields from seed, seed+1, seed+2.
func NewLayers(seed int64, width, height int) Layers {
	return Layers{
		Altitude:    New(seed, width, height),
		Humidity:    New(seed+1, width, height),
		Temperature: New(seed+2, width, height),
	}
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
