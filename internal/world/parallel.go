package world

import "golang.org/x/sync/errgroup"

// ForRows runs fn over contiguous row bands of the grid on up to workers goroutines.
// fn must only write state belonging to rows in [y0, y1).
func ForRows(g Grid, workers int, fn func(y0, y1 int) error) error {
	if workers < 1 {
		workers = 1
	}
	band := (g.H + workers - 1) / workers
	if band < 1 {
		band = 1
	}

	var eg errgroup.Group
	for start := 0; start < g.H; start += band {
		y0, y1 := start, min(start+band, g.H)
		eg.Go(func() error { return fn(y0, y1) })
	}
	return eg.Wait()
}
