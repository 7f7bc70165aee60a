package persistence

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/talgya/overworld/internal/climate"
	"github.com/talgya/overworld/internal/engine"
	"github.com/talgya/overworld/internal/world"
)

// SnapshotVersion is the current snapshot format.
const SnapshotVersion = 1

// SnapshotHeader is the first line of a snapshot stream.
type SnapshotHeader struct {
	Version int          `json:"version"`
	World   string       `json:"world"`
	Tick    uint64       `json:"tick"`
	Date    climate.Date `json:"date"`
	Width   int          `json:"width"`
	Height  int          `json:"height"`
}

// SnapshotCell is the stored state of one cell.
type SnapshotCell struct {
	Altitude      float64         `json:"a"`
	Substrate     world.Substrate `json:"s"`
	Plate         int             `json:"p"`
	Climate       climate.Class   `json:"c"`
	Temperature   float64         `json:"t"`
	Precipitation float64         `json:"r"`
	Fertility     float64         `json:"f"`
	River         bool            `json:"rv,omitempty"`
}

// Snapshot is a full cell dump of a world at one tick.
type Snapshot struct {
	Header SnapshotHeader     `json:"header"`
	Cells  []SnapshotCell     `json:"cells"` // Row-major
	Plates []engine.PlateView `json:"plates"`
}

// SnapshotFromSimulation reads every cell through the query surface. Call it from the
// goroutine that advances sim so the dump is not split across ticks.
func SnapshotFromSimulation(sim *engine.Simulation) (Snapshot, error) {
	st := sim.Status()
	g := sim.Grid()
	snap := Snapshot{
		Header: SnapshotHeader{
			Version: SnapshotVersion,
			World:   st.World,
			Tick:    st.Tick,
			Date:    st.Date,
			Width:   g.W,
			Height:  g.H,
		},
		Cells:  make([]SnapshotCell, 0, g.Len()),
		Plates: sim.GetPlates(),
	}
	for y := 0; y < g.H; y++ {
		for x := 0; x < g.W; x++ {
			c, err := sim.GetCell(x, y)
			if err != nil {
				return snap, fmt.Errorf("snapshot cell (%d,%d): %w", x, y, err)
			}
			snap.Cells = append(snap.Cells, SnapshotCell{
				Altitude:      c.Altitude,
				Substrate:     c.Substrate,
				Plate:         c.Plate,
				Climate:       c.Climate,
				Temperature:   c.Temperature,
				Precipitation: c.Precipitation,
				Fertility:     c.Fertility,
				River:         c.River,
			})
		}
	}
	return snap, nil
}

// WriteSnapshot encodes snap as a JSON header line followed by the JSON body, zstd
// compressed.
func WriteSnapshot(w io.Writer, snap Snapshot) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}

	bw := bufio.NewWriterSize(enc, 256*1024)
	hb, err := json.Marshal(snap.Header)
	if err != nil {
		enc.Close()
		return fmt.Errorf("encode header: %w", err)
	}
	if _, err := bw.Write(append(hb, '\n')); err != nil {
		enc.Close()
		return err
	}
	if err := json.NewEncoder(bw).Encode(snap); err != nil {
		enc.Close()
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

// ReadSnapshot decodes a stream written by WriteSnapshot.
func ReadSnapshot(r io.Reader) (Snapshot, error) {
	var snap Snapshot
	dec, err := zstd.NewReader(r)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)
	line, err := br.ReadBytes('\n')
	if err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	var hdr SnapshotHeader
	if err := json.Unmarshal(line, &hdr); err != nil {
		return snap, fmt.Errorf("decode header: %w", err)
	}
	if hdr.Version != SnapshotVersion {
		return snap, fmt.Errorf("snapshot version %d not supported", hdr.Version)
	}

	if err := json.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("decode snapshot: %w", err)
	}
	if len(snap.Cells) != snap.Header.Width*snap.Header.Height {
		return snap, fmt.Errorf("snapshot has %d cells, header says %dx%d",
			len(snap.Cells), snap.Header.Width, snap.Header.Height)
	}
	return snap, nil
}

// SaveSnapshotFile writes snap to path, replacing any previous file only once the new
// one is complete.
func SaveSnapshotFile(path string, snap Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if err := WriteSnapshot(f, snap); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// LoadSnapshotFile reads a snapshot written by SaveSnapshotFile.
func LoadSnapshotFile(path string) (Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return Snapshot{}, err
	}
	defer f.Close()
	return ReadSnapshot(f)
}
