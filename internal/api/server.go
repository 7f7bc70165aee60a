// Package api provides the HTTP API for observing and steering a world.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (admin control plane).
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talgya/overworld/internal/engine"
	"github.com/talgya/overworld/internal/persistence"
	"github.com/talgya/overworld/internal/tectonics"
	"github.com/talgya/overworld/internal/world"
)

const (
	maxStreamConns = 8
	maxAdvance     = 1000
	maxEditCells   = 4096
)

// Server serves one simulation over HTTP.
type Server struct {
	Sim         *engine.Simulation
	DB          *persistence.DB // Optional; enables the history half of /snapshot
	SnapshotDir string          // Optional; enables the cell-dump half of /snapshot
	Port        int
	AdminKey    string        // Bearer token for POST endpoints. Empty = POST disabled.
	PollEvery   time.Duration // Stream poll interval; zero means one second

	streamConns atomic.Int32
	upgrader    websocket.Upgrader
	limiter     *RateLimiter
}

// Handler builds the routing table.
func (s *Server) Handler() http.Handler {
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4 * 1024,
		WriteBufferSize: 64 * 1024,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}
	if s.limiter == nil {
		s.limiter = NewRateLimiter(60, time.Minute)
	}

	mux := http.NewServeMux()

	// Public endpoints.
	mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	mux.HandleFunc("GET /api/v1/cell/{x}/{y}", s.handleCell)
	mux.HandleFunc("GET /api/v1/climate/{x}/{y}", s.handleClimate)
	mux.HandleFunc("GET /api/v1/plates", s.handlePlates)
	mux.HandleFunc("GET /api/v1/rivers", s.handleRivers)
	mux.HandleFunc("GET /api/v1/aquifers", s.handleAquifers)
	mux.HandleFunc("GET /api/v1/lakes", s.handleLakes)
	mux.HandleFunc("GET /api/v1/events", s.handleEvents)
	mux.HandleFunc("GET /api/v1/stream", s.handleStream)

	// Admin endpoints.
	mux.HandleFunc("POST /api/v1/godedit/altitude", s.adminOnly(s.handleSetAltitude))
	mux.HandleFunc("POST /api/v1/godedit/event", s.adminOnly(s.handleForceEvent))
	mux.HandleFunc("POST /api/v1/advance", s.adminOnly(s.handleAdvance))
	mux.HandleFunc("POST /api/v1/snapshot", s.adminOnly(s.handleSnapshot))

	return corsMiddleware(mux)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", srv.Addr, "admin_auth", s.AdminKey != "")

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}

// corsMiddleware adds CORS headers for allowed frontend origins. CORS_ORIGINS adds a
// comma-separated list to the localhost dev servers.
func corsMiddleware(next http.Handler) http.Handler {
	allowed := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	for _, origin := range strings.Split(os.Getenv("CORS_ORIGINS"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			allowed[origin] = true
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); allowed[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) checkBearerToken(r *http.Request) bool {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return ok && token == s.AdminKey
}

func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	limited := s.limiter.Limit(next)
	return func(w http.ResponseWriter, r *http.Request) {
		if s.AdminKey == "" {
			http.Error(w, "admin endpoints disabled (no admin key set)", http.StatusForbidden)
			return
		}
		if !s.checkBearerToken(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		limited(w, r)
	}
}

// ── Observation ──

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.Sim.Status()
	writeJSON(w, struct {
		engine.Status
		SimTime string `json:"sim_time"`
	}{st, engine.SimTime(s.Sim.Config().Calendar, st.Tick)})
}

func (s *Server) handleCell(w http.ResponseWriter, r *http.Request) {
	x, y, ok := pathCoord(w, r)
	if !ok {
		return
	}
	c, err := s.Sim.GetCell(x, y)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, c)
}

func (s *Server) handleClimate(w http.ResponseWriter, r *http.Request) {
	x, y, ok := pathCoord(w, r)
	if !ok {
		return
	}
	class, err := s.Sim.GetClimateClass(x, y)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"x": x, "y": y, "class": class, "code": class.Code()})
}

func (s *Server) handlePlates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.GetPlates())
}

func (s *Server) handleRivers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.GetRivers())
}

func (s *Server) handleAquifers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.GetAquifers())
}

func (s *Server) handleLakes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.GetLakes())
}

// handleEvents serves ?since=<tick> from the in-memory log, or ?limit=<n> from the
// history database when one is attached and since is absent.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if v := q.Get("since"); v != "" || s.DB == nil {
		var since uint64
		if v != "" {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				http.Error(w, "since must be a tick number", http.StatusBadRequest)
				return
			}
			since = n
		}
		writeJSON(w, s.Sim.GetRecentEvents(since))
		return
	}

	limit := 50
	if l := q.Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	events, err := s.DB.RecentEvents(limit)
	if err != nil {
		slog.Error("event history query failed", "error", err)
		http.Error(w, "history unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, events)
}

// ── Control plane ──

type coordBody struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (s *Server) handleSetAltitude(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Cells []coordBody `json:"cells"`
		Value *float64    `json:"value"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Cells) == 0 || req.Value == nil {
		http.Error(w, "cells and value are required", http.StatusBadRequest)
		return
	}
	if len(req.Cells) > maxEditCells {
		http.Error(w, fmt.Sprintf("at most %d cells per edit", maxEditCells), http.StatusBadRequest)
		return
	}

	cells := make([]world.Coord, len(req.Cells))
	for k, c := range req.Cells {
		cells[k] = world.Coord{X: c.X, Y: c.Y}
	}
	if err := s.Sim.SetAltitude(cells, *req.Value); err != nil {
		writeError(w, err)
		return
	}

	// Edits share the tick budget, so report what was achieved.
	achieved := make([]float64, len(cells))
	for k, c := range cells {
		v, err := s.Sim.GetCell(c.X, c.Y)
		if err != nil {
			writeError(w, err)
			return
		}
		achieved[k] = v.Altitude
	}
	writeJSON(w, map[string]any{"tick": s.Sim.Tick(), "altitudes": achieved})
}

func (s *Server) handleForceEvent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Kind      string  `json:"kind"`
		X         int     `json:"x"`
		Y         int     `json:"y"`
		Magnitude float64 `json:"magnitude"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	kind, ok := tectonics.ParseEventKind(req.Kind)
	if !ok {
		http.Error(w, fmt.Sprintf("unknown event kind %q", req.Kind), http.StatusBadRequest)
		return
	}
	ev, err := s.Sim.ForceEvent(kind, world.Coord{X: req.X, Y: req.Y}, req.Magnitude)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, ev)
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Ticks int `json:"ticks"`
	}
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}
	if req.Ticks == 0 {
		req.Ticks = 1
	}
	if req.Ticks < 0 || req.Ticks > maxAdvance {
		http.Error(w, fmt.Sprintf("ticks must be 1-%d", maxAdvance), http.StatusBadRequest)
		return
	}

	reps, err := s.Sim.AdvanceN(req.Ticks)
	if err != nil {
		writeError(w, err)
		return
	}
	events := []tectonics.GeologicalEvent{}
	for _, rep := range reps {
		events = append(events, rep.Events...)
	}
	last := reps[len(reps)-1]
	writeJSON(w, map[string]any{
		"tick":        last.Tick,
		"date":        last.Date,
		"events":      events,
		"water_cells": last.WaterCells,
	})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil && s.SnapshotDir == "" {
		http.Error(w, "no database or snapshot directory configured", http.StatusServiceUnavailable)
		return
	}

	resp := map[string]any{"tick": s.Sim.Tick()}
	if s.DB != nil {
		if err := s.DB.SaveWorldState(s.Sim); err != nil {
			slog.Error("world state save failed", "error", err)
			http.Error(w, "snapshot failed", http.StatusInternalServerError)
			return
		}
		resp["history"] = true
	}
	if s.SnapshotDir != "" {
		path, err := WriteSnapshotFile(s.Sim, s.SnapshotDir)
		if err != nil {
			slog.Error("snapshot write failed", "error", err)
			http.Error(w, "snapshot failed", http.StatusInternalServerError)
			return
		}
		resp["file"] = path
	}
	writeJSON(w, resp)
}

// WriteSnapshotFile dumps sim into dir, named by world and tick, and returns the path.
func WriteSnapshotFile(sim *engine.Simulation, dir string) (string, error) {
	snap, err := persistence.SnapshotFromSimulation(sim)
	if err != nil {
		return "", err
	}
	name := fmt.Sprintf("%s-%08d.json.zst", snap.Header.World, snap.Header.Tick)
	path := filepath.Join(dir, name)
	if err := persistence.SaveSnapshotFile(path, snap); err != nil {
		return "", err
	}
	slog.Info("snapshot written", "path", path, "tick", snap.Header.Tick)
	return path, nil
}

// ── Helpers ──

func pathCoord(w http.ResponseWriter, r *http.Request) (int, int, bool) {
	x, errX := strconv.Atoi(r.PathValue("x"))
	y, errY := strconv.Atoi(r.PathValue("y"))
	if errX != nil || errY != nil {
		http.Error(w, "x and y must be integers", http.StatusBadRequest)
		return 0, 0, false
	}
	return x, y, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return false
	}
	return true
}

// writeError maps engine errors onto status codes.
func writeError(w http.ResponseWriter, err error) {
	var inv *world.InvariantError
	switch {
	case errors.Is(err, engine.ErrOutOfBounds):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, engine.ErrHalted):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.As(err, &inv):
		slog.Error("request broke a world invariant", "component", inv.Component, "error", err)
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusBadRequest)
	}
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
