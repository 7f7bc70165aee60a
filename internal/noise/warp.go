package noise

import (
	"github.com/aquilax/go-perlin"
)

const (
	warpAlpha  = 2.0
	warpBeta   = 2.0
	warpOctave = 3
)

// Warp is a seamless 2D displacement field used to roughen region boundaries.
type Warp struct {
	px, py    *perlin.Perlin
	w, h      float64
	scale     float64 // Noise units per cell
	Amplitude float64 // Maximum displacement in cells
}

// NewWarp builds a warp whose features are about w/features cells wide.
func NewWarp(seed int64, width, height int, features, amplitude float64) *Warp {
	if features <= 0 {
		features = 4
	}
	return &Warp{
		px:        perlin.NewPerlin(warpAlpha, warpBeta, warpOctave, seed),
		py:        perlin.NewPerlin(warpAlpha, warpBeta, warpOctave, seed+1),
		w:         float64(width),
		h:         float64(height),
		scale:     features / float64(width),
		Amplitude: amplitude,
	}
}

// Offset returns the displacement (dx, dy) in cells at (x, y).
func (wp *Warp) Offset(x, y float64) (float64, float64) {
	return wp.seamless(wp.px, x, y) * wp.Amplitude, wp.seamless(wp.py, x, y) * wp.Amplitude
}

// seamless blends four shifted samples so the result repeats with period (w, h).
func (wp *Warp) seamless(p *perlin.Perlin, x, y float64) float64 {
	x = mod(x, wp.w)
	y = mod(y, wp.h)
	s := func(sx, sy float64) float64 {
		return p.Noise2D(sx*wp.scale, sy*wp.scale)
	}
	fx := x / wp.w
	fy := y / wp.h
	v := s(x, y)*(1-fx)*(1-fy) +
		s(x-wp.w, y)*fx*(1-fy) +
		s(x, y-wp.h)*(1-fx)*fy +
		s(x-wp.w, y-wp.h)*fx*fy
	return clamp(v*2, -1, 1)
}

func mod(v, m float64) float64 {
	r := v - m*float64(int(v/m))
	if r < 0 {
		r += m
	}
	return r
}
