// Package persistence provides SQLite-based event history and world metadata storage,
// plus compressed cell snapshots.
package persistence

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/overworld/internal/engine"
	"github.com/talgya/overworld/internal/tectonics"
	"github.com/talgya/overworld/internal/world"
)

// DB wraps a SQLite connection for world history persistence.
type DB struct {
	conn  *sqlx.DB
	world string // World instance id stamped on every row
}

// Open opens or creates a SQLite database at the given path. Rows written through the
// returned DB belong to worldID.
func Open(path, worldID string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn, world: worldID}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	// world_meta was once keyed by key alone. Its rows are rewritten on every save.
	var legacy int
	if err := db.conn.Get(&legacy, `SELECT COUNT(*) FROM sqlite_master
		WHERE type = 'table' AND name = 'world_meta'
		AND NOT EXISTS (SELECT 1 FROM pragma_table_info('world_meta') WHERE name = 'world')`); err != nil {
		return fmt.Errorf("inspect world_meta: %w", err)
	}
	if legacy > 0 {
		if _, err := db.conn.Exec("DROP TABLE world_meta"); err != nil {
			return fmt.Errorf("drop legacy world_meta: %w", err)
		}
	}

	schema := `
	CREATE TABLE IF NOT EXISTS events (
		world TEXT NOT NULL,
		seq INTEGER NOT NULL,
		tick INTEGER NOT NULL,
		kind TEXT NOT NULL,
		x INTEGER NOT NULL,
		y INTEGER NOT NULL,
		magnitude REAL NOT NULL,
		plate_a INTEGER NOT NULL,
		plate_b INTEGER NOT NULL,
		strike REAL NOT NULL,
		forced INTEGER NOT NULL,
		PRIMARY KEY (world, seq)
	);

	CREATE TABLE IF NOT EXISTS plates (
		world TEXT NOT NULL,
		id INTEGER NOT NULL,
		class TEXT NOT NULL,
		state TEXT NOT NULL,
		vx REAL NOT NULL,
		vy REAL NOT NULL,
		cells INTEGER NOT NULL,
		boundaries_json TEXT NOT NULL,
		PRIMARY KEY (world, id)
	);

	CREATE TABLE IF NOT EXISTS world_meta (
		world TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		PRIMARY KEY (world, key)
	);

	CREATE INDEX IF NOT EXISTS idx_events_tick ON events(world, tick);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// eventRow is the stored form of a geological event.
type eventRow struct {
	Seq       uint64  `db:"seq"`
	Tick      uint64  `db:"tick"`
	Kind      string  `db:"kind"`
	X         int     `db:"x"`
	Y         int     `db:"y"`
	Magnitude float64 `db:"magnitude"`
	PlateA    int     `db:"plate_a"`
	PlateB    int     `db:"plate_b"`
	Strike    float64 `db:"strike"`
	Forced    bool    `db:"forced"`
}

// RecordEvents appends events to the history. It implements engine.HistorySink.
func (db *DB) RecordEvents(events []tectonics.GeologicalEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, e := range events {
		_, err := tx.Exec(`INSERT OR REPLACE INTO events
			(world, seq, tick, kind, x, y, magnitude, plate_a, plate_b, strike, forced)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			db.world, e.Seq, e.Tick, e.Kind.String(), e.Cell.X, e.Cell.Y,
			e.Magnitude, e.PlateA, e.PlateB, e.Strike, e.Forced,
		)
		if err != nil {
			return fmt.Errorf("insert event %d: %w", e.Seq, err)
		}
	}

	return tx.Commit()
}

// RecentEvents returns the most recent N events of this world, newest first.
func (db *DB) RecentEvents(limit int) ([]tectonics.GeologicalEvent, error) {
	var rows []eventRow
	err := db.conn.Select(&rows,
		`SELECT seq, tick, kind, x, y, magnitude, plate_a, plate_b, strike, forced
		 FROM events WHERE world = ? ORDER BY seq DESC LIMIT ?`,
		db.world, limit,
	)
	if err != nil {
		return nil, err
	}

	out := make([]tectonics.GeologicalEvent, 0, len(rows))
	for _, r := range rows {
		kind, ok := tectonics.ParseEventKind(r.Kind)
		if !ok {
			return nil, fmt.Errorf("event %d: unknown kind %q", r.Seq, r.Kind)
		}
		out = append(out, tectonics.GeologicalEvent{
			Seq:       r.Seq,
			Kind:      kind,
			Cell:      world.Coord{X: r.X, Y: r.Y},
			Magnitude: r.Magnitude,
			Tick:      r.Tick,
			PlateA:    r.PlateA,
			PlateB:    r.PlateB,
			Strike:    r.Strike,
			Forced:    r.Forced,
			Index:     -1,
		})
	}
	return out, nil
}

// CountEvents returns the number of stored events per kind for this world.
func (db *DB) CountEvents() (map[string]int, error) {
	var rows []struct {
		Kind  string `db:"kind"`
		Count int    `db:"n"`
	}
	if err := db.conn.Select(&rows,
		"SELECT kind, COUNT(*) AS n FROM events WHERE world = ? GROUP BY kind", db.world); err != nil {
		return nil, err
	}
	out := make(map[string]int, len(rows))
	for _, r := range rows {
		out[r.Kind] = r.Count
	}
	return out, nil
}

// SavePlates replaces this world's plate summaries.
func (db *DB) SavePlates(plates []engine.PlateView) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM plates WHERE world = ?", db.world); err != nil {
		return err
	}

	for _, p := range plates {
		bj, err := json.Marshal(p.Boundaries)
		if err != nil {
			return fmt.Errorf("encode plate %d boundaries: %w", p.ID, err)
		}
		_, err = tx.Exec(`INSERT INTO plates
			(world, id, class, state, vx, vy, cells, boundaries_json)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			db.world, p.ID, p.Class.String(), p.State.String(), p.VX, p.VY, p.Cells, string(bj),
		)
		if err != nil {
			return fmt.Errorf("insert plate %d: %w", p.ID, err)
		}
	}

	return tx.Commit()
}

// PlateRow is a stored plate summary.
type PlateRow struct {
	ID             int     `db:"id"`
	Class          string  `db:"class"`
	State          string  `db:"state"`
	VX             float64 `db:"vx"`
	VY             float64 `db:"vy"`
	Cells          int     `db:"cells"`
	BoundariesJSON string  `db:"boundaries_json"`
}

// LoadPlates returns this world's stored plate summaries in id order.
func (db *DB) LoadPlates() ([]PlateRow, error) {
	var rows []PlateRow
	err := db.conn.Select(&rows,
		`SELECT id, class, state, vx, vy, cells, boundaries_json
		 FROM plates WHERE world = ? ORDER BY id`, db.world)
	return rows, err
}

// SaveMeta stores a key-value pair in this world's metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO world_meta (world, key, value) VALUES (?, ?, ?)",
		db.world, key, value,
	)
	return err
}

// GetMeta retrieves a metadata value of this world.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM world_meta WHERE world = ? AND key = ?", db.world, key)
	return value, err
}

// SaveWorldState stores the plate summaries and the status metadata of sim.
func (db *DB) SaveWorldState(sim *engine.Simulation) error {
	st := sim.Status()
	slog.Info("saving world state", "tick", st.Tick, "plates", st.Plates)

	if err := db.SavePlates(sim.GetPlates()); err != nil {
		return fmt.Errorf("save plates: %w", err)
	}
	sj, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode status: %w", err)
	}
	for k, v := range map[string]string{
		"world_id":  st.World,
		"last_tick": strconv.FormatUint(st.Tick, 10),
		"status":    string(sj),
	} {
		if err := db.SaveMeta(k, v); err != nil {
			return fmt.Errorf("save meta %s: %w", k, err)
		}
	}

	slog.Info("world state saved")
	return nil
}
