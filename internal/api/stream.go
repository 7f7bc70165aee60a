package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talgya/overworld/internal/climate"
	"github.com/talgya/overworld/internal/tectonics"
)

// StreamMessage is one frame on /api/v1/stream.
type StreamMessage struct {
	Type  string                     `json:"type"` // "event" or "tick"
	Tick  uint64                     `json:"tick"`
	Date  *climate.Date              `json:"date,omitempty"`
	Event *tectonics.GeologicalEvent `json:"event,omitempty"`
}

// handleStream upgrades to a websocket and pushes every event logged after ?after=<seq>
// (default: the last 50), then a tick frame whenever the clock moves.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if n := s.streamConns.Add(1); n > maxStreamConns {
		s.streamConns.Add(-1)
		http.Error(w, "too many stream connections", http.StatusServiceUnavailable)
		return
	}
	defer s.streamConns.Add(-1)

	st := s.Sim.Status()
	after := uint64(0)
	if st.LastEventSeq > 50 {
		after = st.LastEventSeq - 50
	}
	if v := r.URL.Query().Get("after"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			http.Error(w, "after must be an event sequence number", http.StatusBadRequest)
			return
		}
		after = n
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	slog.Info("stream client connected", "remote", r.RemoteAddr, "after", after)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Reader: clients send nothing, but reading notices the close handshake.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	every := s.PollEvery
	if every <= 0 {
		every = time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	lastTick := st.Tick
	for {
		for _, ev := range s.Sim.EventsAfter(after) {
			if err := writeFrame(conn, StreamMessage{Type: "event", Tick: ev.Tick, Event: &ev}); err != nil {
				return
			}
			after = ev.Seq
		}
		if t := s.Sim.Tick(); t != lastTick {
			lastTick = t
			date := s.Sim.Config().Calendar.DateOf(t)
			if err := writeFrame(conn, StreamMessage{Type: "tick", Tick: t, Date: &date}); err != nil {
				return
			}
		}

		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
			slog.Info("stream client disconnected", "remote", r.RemoteAddr)
			return
		case <-ticker.C:
		}
	}
}

func writeFrame(conn *websocket.Conn, m StreamMessage) error {
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteJSON(m)
}
