// Package world provides the square toroidal grid and the authoritative terrain state.
// Cells are stored in row-major slices indexed by y*W+x.
package world

import (
	"fmt"
	"math"
)

// Coord is an integer grid position.
type Coord struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Grid describes the world dimensions. Both axes wrap.
type Grid struct {
	W        int     `json:"width"`
	H        int     `json:"height"`
	CellSize float64 `json:"cell_size_m"` // Horizontal size of one cell in metres
}

// NewGrid returns a grid with the given dimensions.
func NewGrid(w, h int, cellSize float64) Grid {
	if cellSize <= 0 {
		cellSize = 1000
	}
	return Grid{W: w, H: h, CellSize: cellSize}
}

// Len returns the number of cells.
func (g Grid) Len() int { return g.W * g.H }

// Index returns the linear index of (x, y) after wrapping.
func (g Grid) Index(x, y int) int {
	x, y = g.Wrap(x, y)
	return y*g.W + x
}

// Coord returns the coordinate of linear index i.
func (g Grid) Coord(i int) Coord {
	return Coord{X: i % g.W, Y: i / g.W}
}

// Wrap applies toroidal wrapping to the provided coordinates.
func (g Grid) Wrap(x, y int) (int, int) {
	x = (x%g.W + g.W) % g.W
	y = (y%g.H + g.H) % g.H
	return x, y
}

// InBounds reports whether (x, y) addresses a cell without wrapping.
func (g Grid) InBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < g.W && y < g.H
}

// Offset8 lists the eight neighbour offsets, orthogonal first.
var Offset8 = [8]Coord{
	{X: 1, Y: 0}, {X: -1, Y: 0}, {X: 0, Y: 1}, {X: 0, Y: -1},
	{X: 1, Y: 1}, {X: -1, Y: -1}, {X: 1, Y: -1}, {X: -1, Y: 1},
}

// Neighbors8 returns the linear indices of the eight neighbours of i in Offset8 order.
func (g Grid) Neighbors8(i int) [8]int {
	c := g.Coord(i)
	var out [8]int
	for k, o := range Offset8 {
		out[k] = g.Index(c.X+o.X, c.Y+o.Y)
	}
	return out
}

// Neighbors4 returns the linear indices of the four orthogonal neighbours of i.
func (g Grid) Neighbors4(i int) [4]int {
	c := g.Coord(i)
	return [4]int{
		g.Index(c.X+1, c.Y),
		g.Index(c.X-1, c.Y),
		g.Index(c.X, c.Y+1),
		g.Index(c.X, c.Y-1),
	}
}

// NeighborDistance returns the centre distance in cells for Offset8[k].
func NeighborDistance(k int) float64 {
	if k < 4 {
		return 1
	}
	return math.Sqrt2
}

// Latitude returns 0 at the equator row (H/2) and 1 at the polar rows.
func (g Grid) Latitude(y int) float64 {
	half := float64(g.H) / 2
	lat := math.Abs(float64(y)+0.5-half) / half
	if lat > 1 {
		lat = 1
	}
	return lat
}

// Hemisphere returns +1 for rows north of the equator and -1 for the south.
func (g Grid) Hemisphere(y int) float64 {
	if float64(y)+0.5 < float64(g.H)/2 {
		return 1
	}
	return -1
}

// TorusDelta returns the shortest signed displacement from a to b on the torus.
func (g Grid) TorusDelta(a, b Coord) (float64, float64) {
	dx := float64(b.X - a.X)
	dy := float64(b.Y - a.Y)
	w, h := float64(g.W), float64(g.H)
	if dx > w/2 {
		dx -= w
	} else if dx < -w/2 {
		dx += w
	}
	if dy > h/2 {
		dy -= h
	} else if dy < -h/2 {
		dy += h
	}
	return dx, dy
}

// String returns a summary of the grid.
func (g Grid) String() string {
	return fmt.Sprintf("Grid(%dx%d, cell=%.0fm)", g.W, g.H, g.CellSize)
}
