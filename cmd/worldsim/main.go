// Command worldsim runs a real-time planetary simulation and serves it over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/talgya/overworld/internal/api"
	"github.com/talgya/overworld/internal/config"
	"github.com/talgya/overworld/internal/engine"
	"github.com/talgya/overworld/internal/persistence"
)

func main() {
	var (
		cfgPath  = flag.String("config", "", "path to a YAML world config (defaults are used when empty)")
		ticks    = flag.Uint64("ticks", 0, "stop after this many ticks (0 = run until interrupted)")
		port     = flag.Int("port", 8080, "HTTP API port (0 disables the API)")
		dbPath   = flag.String("db", "data/overworld.db", "SQLite event history path (empty disables)")
		snapDir  = flag.String("snapshots", "data/snapshots", "directory for seasonal snapshots (empty disables)")
		interval = flag.Duration("interval", time.Second, "wall-clock time per tick at speed 1")
		speed    = flag.Float64("speed", 1, "tick rate multiplier")
	)
	flag.Parse()

	if err := run(*cfgPath, *ticks, *port, *dbPath, *snapDir, *interval, *speed); err != nil {
		slog.Error("worldsim failed", "error", err)
		os.Exit(1)
	}
}

func run(cfgPath string, ticks uint64, port int, dbPath, snapDir string, interval time.Duration, speed float64) error {
	// ── Configuration ──────────────────────────────────────────────────
	cfg := config.Default()
	if cfgPath != "" {
		var err error
		if cfg, err = config.Load(cfgPath); err != nil {
			return err
		}
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Log.SlogLevel(),
	})))
	slog.Info("configuration loaded", "path", cfgPath, "seed", cfg.Seed,
		"grid", fmt.Sprintf("%dx%d", cfg.Grid.Width, cfg.Grid.Height), "workers", cfg.Workers)

	// ── World ──────────────────────────────────────────────────────────
	start := time.Now()
	sim, err := engine.New(cfg)
	if err != nil {
		return err
	}
	st := sim.Status()
	slog.Info("world ready", "id", sim.ID(), "elapsed", time.Since(start).Round(time.Millisecond),
		"land_cells", humanize.Comma(int64(st.LandCells)), "rivers", st.Rivers, "aquifers", st.Aquifers)

	// ── History ────────────────────────────────────────────────────────
	var db *persistence.DB
	if dbPath != "" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return err
		}
		if db, err = persistence.Open(dbPath, sim.ID().String()); err != nil {
			return err
		}
		defer db.Close()
		sim.SetHistorySink(db)
		slog.Info("database opened", "path", dbPath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── HTTP API ───────────────────────────────────────────────────────
	if port > 0 {
		srv := &api.Server{
			Sim:         sim,
			DB:          db,
			SnapshotDir: snapDir,
			Port:        port,
			AdminKey:    os.Getenv("WORLDSIM_ADMIN_KEY"),
		}
		go func() {
			if err := srv.ListenAndServe(ctx); err != nil {
				slog.Error("HTTP server error", "error", err)
			}
		}()
	}

	// ── Clock ──────────────────────────────────────────────────────────
	runner := engine.NewRunner(sim)
	runner.Interval = interval
	runner.Speed = speed
	runner.MaxTicks = ticks
	runner.OnSeason = func(rep engine.Report) {
		slog.Info("season", "tick", rep.Tick, "time", engine.SimTime(cfg.Calendar, rep.Tick))
		save(sim, db, snapDir)
	}
	runner.OnYear = func(rep engine.Report) {
		st := sim.Status()
		slog.Info("year summary",
			"year", rep.Date.Year-1,
			"events", humanize.Comma(int64(st.LastEventSeq)),
			"water_cells", humanize.Comma(int64(st.WaterCells)),
			"eroded_m", humanize.FormatFloat("#,###.##", st.LastErosion.Eroded),
			"glaciation", fmt.Sprintf("%.1f%%", st.Glaciation*100),
		)
	}

	fmt.Printf("\nWorld %s is alive: %s cells, %d plates.\n", sim.ID(), humanize.Comma(int64(sim.Grid().Len())), st.Plates)
	if port > 0 {
		fmt.Printf("API: http://localhost:%d/api/v1/status\n", port)
	}
	fmt.Println("Starting simulation... (Ctrl+C to stop)")

	runErr := runner.Run(ctx)

	slog.Info("final save...")
	save(sim, db, snapDir)
	if runErr != nil && !errors.Is(runErr, engine.ErrHalted) {
		return runErr
	}
	if h := sim.Halted(); h != nil {
		return fmt.Errorf("simulation halted at tick %d: %w", sim.Tick(), h)
	}
	fmt.Println("Simulation stopped.")
	return nil
}

// save writes the world state to db and a cell snapshot to dir, whichever are enabled.
func save(sim *engine.Simulation, db *persistence.DB, dir string) {
	if db != nil {
		if err := db.SaveWorldState(sim); err != nil {
			slog.Error("world state save failed", "error", err)
		}
	}
	if dir != "" {
		if _, err := api.WriteSnapshotFile(sim, dir); err != nil {
			slog.Error("snapshot failed", "error", err)
		}
	}
}
