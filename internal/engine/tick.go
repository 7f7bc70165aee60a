package engine

import (
	"context"
	"log/slog"
	"time"
)

// Runner drives a Simulation in real time. One tick is one simulated day.
type Runner struct {
	Sim      *Simulation
	Interval time.Duration // Wall time per tick at speed 1
	Speed    float64       // Multiplier: 1.0 = one tick per Interval, 0 = paused
	MaxTicks uint64        // Stop after this many ticks; 0 runs until cancelled

	// Callbacks for each tick layer, populated during setup.
	OnTick   func(Report) // Every tick
	OnSeason func(Report) // First tick of a new season
	OnYear   func(Report) // First tick of a new year
}

// NewRunner creates a runner with default settings.
func NewRunner(sim *Simulation) *Runner {
	return &Runner{
		Sim:      sim,
		Interval: time.Second,
		Speed:    1.0,
	}
}

// Run advances the simulation until ctx is cancelled, MaxTicks is reached or a tick
// fails. Cancellation is not an error.
func (r *Runner) Run(ctx context.Context) error {
	slog.Info("simulation runner started", "tick", r.Sim.Tick(), "speed", r.Speed, "interval", r.Interval)
	defer func() { slog.Info("simulation runner stopped", "tick", r.Sim.Tick()) }()

	var done uint64
	for r.MaxTicks == 0 || done < r.MaxTicks {
		if r.Speed <= 0 {
			// Paused: check again shortly.
			if !sleep(ctx, 100*time.Millisecond) {
				return nil
			}
			continue
		}

		start := time.Now()
		reps, err := r.Sim.AdvanceN(1)
		if err != nil {
			return err
		}
		done++
		r.dispatch(reps[0])

		// Sleep for the remainder of the tick interval, adjusted for speed.
		target := time.Duration(float64(r.Interval) / r.Speed)
		if !sleep(ctx, target-time.Since(start)) {
			return nil
		}
	}
	return nil
}

func (r *Runner) dispatch(rep Report) {
	if r.OnTick != nil {
		r.OnTick(rep)
	}
	if rep.SeasonChanged && r.OnSeason != nil {
		r.OnSeason(rep)
	}
	if rep.YearEnded && r.OnYear != nil {
		r.OnYear(rep)
	}
}

// sleep waits for d or until ctx is done, reporting false on cancellation.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
