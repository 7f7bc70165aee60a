package climate

import (
	"math"

	"github.com/talgya/overworld/internal/world"
)

// marchRow carries moisture downwind along row y, twice around the torus, recording
// the second lap into raw and the orographic rainout into e.oro.
func (e *Engine) marchRow(t *world.Terrain, y int, raw []float64) {
	w := e.grid.W
	sea := t.SeaLevel()
	dir := 1
	if e.windX[y] < 0 {
		dir = -1
	}

	// Start on open water when the row has any so the first lap begins saturated.
	start := 0
	for x := 0; x < w; x++ {
		if t.IsWater(y*w + x) {
			start = x
			break
		}
	}

	m := 0.5
	prevH := math.Max(0, t.Altitude(y*w+start)-sea)
	for step := 0; step < 2*w; step++ {
		x := ((start+dir*step)%w + w) % w
		i := y*w + x
		h := math.Max(0, t.Altitude(i)-sea)

		rain := 0.0
		if t.IsWater(i) {
			m = 1
		} else {
			m *= 1 - e.cfg.LandAttenuation
			if rise := h - prevH; rise > 0 && e.cfg.OrographicScale > 0 {
				rain = m * math.Min(1, rise/e.cfg.OrographicScale)
				m -= rain
			}
			// Rain shadow: only a fraction crosses a high barrier.
			if h > e.cfg.BarrierHeight {
				passed := m * e.cfg.BarrierPass
				rain += m - passed
				m = passed
			}
		}
		prevH = h

		if step >= w {
			raw[i] = m
			e.oro[i] = rain
		}
	}
}

// mixRow blends row y with its upwind row in proportion to the meridional wind and
// with the humidity noise layer.
func (e *Engine) mixRow(t *world.Terrain, y int, raw []float64) {
	g := e.grid
	wx, wy := e.windX[y], e.windY[y]
	k := 0.0
	if s := math.Hypot(wx, wy); s > 0 {
		k = e.cfg.MeridionalMix * math.Abs(wy) / s
	}
	up := y
	if wy > 0 {
		up = y - 1
	} else if wy < 0 {
		up = y + 1
	}
	up = (up%g.H + g.H) % g.H

	for x := 0; x < g.W; x++ {
		i := y*g.W + x
		h := (1-k)*raw[i] + k*raw[up*g.W+x]
		h = (1-e.cfg.HumidityNoise)*h + e.cfg.HumidityNoise*(e.baseHumid[i]*0.5+0.5)
		if t.IsWater(i) {
			h = math.Max(h, 0.8)
		}
		e.humid[i] = clamp(h, 0, 1)
	}
}
