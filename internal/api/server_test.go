package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talgya/overworld/internal/config"
	"github.com/talgya/overworld/internal/engine"
	"github.com/talgya/overworld/internal/persistence"
	"github.com/talgya/overworld/internal/tectonics"
	"github.com/talgya/overworld/internal/world"
)

const testKey = "secret"

func newTestServer(t *testing.T) (*Server, http.Handler) {
	t.Helper()
	cfg := config.Default()
	cfg.Grid.Width, cfg.Grid.Height = 20, 14
	cfg.Plates.Min, cfg.Plates.Max = 3, 3
	cfg.Workers = 2
	sim, err := engine.New(cfg)
	if err != nil {
		t.Fatalf("new simulation: %v", err)
	}
	s := &Server{Sim: sim, AdminKey: testKey, PollEvery: 10 * time.Millisecond}
	return s, s.Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string, auth bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if auth {
		req.Header.Set("Authorization", "Bearer "+testKey)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestObservationEndpoints(t *testing.T) {
	_, h := newTestServer(t)

	tests := []struct {
		path string
		want int
	}{
		{"/api/v1/status", http.StatusOK},
		{"/api/v1/cell/3/4", http.StatusOK},
		{"/api/v1/cell/20/0", http.StatusNotFound},
		{"/api/v1/cell/-1/0", http.StatusNotFound},
		{"/api/v1/cell/a/0", http.StatusBadRequest},
		{"/api/v1/climate/0/0", http.StatusOK},
		{"/api/v1/plates", http.StatusOK},
		{"/api/v1/rivers", http.StatusOK},
		{"/api/v1/aquifers", http.StatusOK},
		{"/api/v1/lakes", http.StatusOK},
		{"/api/v1/events?since=0", http.StatusOK},
		{"/api/v1/events?since=x", http.StatusBadRequest},
	}
	for _, tt := range tests {
		if rec := do(t, h, http.MethodGet, tt.path, "", false); rec.Code != tt.want {
			t.Errorf("GET %s = %d want %d (%s)", tt.path, rec.Code, tt.want, rec.Body.String())
		}
	}

	st := decode[map[string]any](t, do(t, h, http.MethodGet, "/api/v1/status", "", false))
	if st["tick"].(float64) != 0 || st["plates"].(float64) != 3 || st["sim_time"] == "" {
		t.Fatalf("status = %v", st)
	}
	if biomes, ok := st["biomes"].(map[string]any); !ok || len(biomes) == 0 {
		t.Fatalf("status biomes = %v", st["biomes"])
	}
	cell := decode[map[string]any](t, do(t, h, http.MethodGet, "/api/v1/cell/3/4", "", false))
	if b, _ := cell["biome"].(string); b == "" || b == "unknown" {
		t.Fatalf("cell biome = %v", cell["biome"])
	}
	plates := decode[[]engine.PlateView](t, do(t, h, http.MethodGet, "/api/v1/plates", "", false))
	if len(plates) != 3 {
		t.Fatalf("got %d plates", len(plates))
	}
}

func TestAdminAuth(t *testing.T) {
	s, h := newTestServer(t)

	if rec := do(t, h, http.MethodPost, "/api/v1/advance", "", false); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/v1/advance", "", true); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET on admin route: %d", rec.Code)
	}

	s.AdminKey = ""
	if rec := do(t, h, http.MethodPost, "/api/v1/advance", "", true); rec.Code != http.StatusForbidden {
		t.Fatalf("disabled admin: %d", rec.Code)
	}
	if s.Sim.Tick() != 0 {
		t.Fatalf("rejected requests advanced the world")
	}
}

func TestAdvance(t *testing.T) {
	s, h := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/api/v1/advance", `{"ticks": 5}`, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("advance: %d %s", rec.Code, rec.Body.String())
	}
	if got := decode[map[string]any](t, rec)["tick"].(float64); got != 5 || s.Sim.Tick() != 5 {
		t.Fatalf("tick = %v, sim at %d", got, s.Sim.Tick())
	}

	if rec := do(t, h, http.MethodPost, "/api/v1/advance", "", true); rec.Code != http.StatusOK || s.Sim.Tick() != 6 {
		t.Fatalf("empty body should advance one tick: %d at %d", rec.Code, s.Sim.Tick())
	}
	for _, body := range []string{`{"ticks": -1}`, `{"ticks": 100000}`, `{"tick": 1}`, `nope`} {
		if rec := do(t, h, http.MethodPost, "/api/v1/advance", body, true); rec.Code != http.StatusBadRequest {
			t.Errorf("body %s: %d", body, rec.Code)
		}
	}
}

func TestGodEdits(t *testing.T) {
	s, h := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/api/v1/godedit/event", `{"kind":"uplift","x":5,"y":5,"magnitude":4}`, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("force event: %d %s", rec.Code, rec.Body.String())
	}
	ev := decode[tectonics.GeologicalEvent](t, rec)
	if ev.Kind != tectonics.Uplift || !ev.Forced || ev.Seq == 0 {
		t.Fatalf("event = %+v", ev)
	}
	if evs := s.Sim.GetRecentEvents(0); len(evs) != 1 {
		t.Fatalf("event log has %d events", len(evs))
	}

	bad := []struct {
		path, body string
		want       int
	}{
		{"/api/v1/godedit/event", `{"kind":"meteor","x":5,"y":5,"magnitude":4}`, http.StatusBadRequest},
		{"/api/v1/godedit/event", `{"kind":"rift","x":50,"y":5,"magnitude":4}`, http.StatusNotFound},
		{"/api/v1/godedit/event", `{"kind":"rift","x":5,"y":5,"magnitude":40}`, http.StatusBadRequest},
		{"/api/v1/godedit/altitude", `{"cells":[]}`, http.StatusBadRequest},
		{"/api/v1/godedit/altitude", `{"cells":[{"x":1,"y":1}]}`, http.StatusBadRequest},
		{"/api/v1/godedit/altitude", `{"cells":[{"x":99,"y":1}],"value":10}`, http.StatusNotFound},
	}
	for _, tt := range bad {
		if rec := do(t, h, http.MethodPost, tt.path, tt.body, true); rec.Code != tt.want {
			t.Errorf("%s %s = %d want %d", tt.path, tt.body, rec.Code, tt.want)
		}
	}

	before, _ := s.Sim.GetCell(2, 2)
	rec = do(t, h, http.MethodPost, "/api/v1/godedit/altitude", `{"cells":[{"x":2,"y":2}],"value":`+
		jsonFloat(before.Altitude+1)+`}`, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("set altitude: %d %s", rec.Code, rec.Body.String())
	}
	out := decode[struct {
		Altitudes []float64 `json:"altitudes"`
	}](t, rec)
	after, _ := s.Sim.GetCell(2, 2)
	if len(out.Altitudes) != 1 || out.Altitudes[0] != after.Altitude {
		t.Fatalf("reported %v, cell at %v", out.Altitudes, after.Altitude)
	}
}

func jsonFloat(v float64) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func TestSnapshotEndpoint(t *testing.T) {
	s, h := newTestServer(t)
	if rec := do(t, h, http.MethodPost, "/api/v1/snapshot", "", true); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("snapshot without targets: %d", rec.Code)
	}

	s.SnapshotDir = t.TempDir()
	rec := do(t, h, http.MethodPost, "/api/v1/snapshot", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("snapshot: %d %s", rec.Code, rec.Body.String())
	}
	path := decode[map[string]any](t, rec)["file"].(string)
	snap, err := persistence.LoadSnapshotFile(path)
	if err != nil {
		t.Fatalf("load written snapshot: %v", err)
	}
	if snap.Header.Width != 20 || snap.Header.Height != 14 {
		t.Fatalf("snapshot header %+v", snap.Header)
	}
}

func TestRateLimiter(t *testing.T) {
	now := time.Unix(1000, 0)
	rl := NewRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return now }

	for k := 0; k < 2; k++ {
		if ok, _ := rl.Allow("a"); !ok {
			t.Fatalf("request %d refused", k)
		}
	}
	ok, wait := rl.Allow("a")
	if ok || wait != time.Minute {
		t.Fatalf("third request: ok=%v wait=%v", ok, wait)
	}
	if ok, _ := rl.Allow("b"); !ok {
		t.Fatalf("clients share a window")
	}
	now = now.Add(time.Minute)
	if ok, _ := rl.Allow("a"); !ok {
		t.Fatalf("window did not reset")
	}
}

func TestAdminRateLimited(t *testing.T) {
	s, _ := newTestServer(t)
	s.limiter = NewRateLimiter(1, time.Hour)
	h := s.Handler()

	if rec := do(t, h, http.MethodPost, "/api/v1/advance", "", true); rec.Code != http.StatusOK {
		t.Fatalf("first: %d", rec.Code)
	}
	rec := do(t, h, http.MethodPost, "/api/v1/advance", "", true)
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") == "" {
		t.Fatalf("second: %d retry-after %q", rec.Code, rec.Header().Get("Retry-After"))
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.7:5555"
	if got := clientIP(req); got != "10.0.0.7" {
		t.Fatalf("clientIP = %q", got)
	}
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if got := clientIP(req); got != "203.0.113.9" {
		t.Fatalf("clientIP behind proxy = %q", got)
	}
}

func TestStreamPushesEvents(t *testing.T) {
	s, h := newTestServer(t)
	ts := httptest.NewServer(h)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/stream?after=0"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, err := s.Sim.ForceEvent(tectonics.Volcano, world.Coord{X: 4, Y: 4}, 3); err != nil {
		t.Fatalf("force: %v", err)
	}
	if _, err := s.Sim.Advance(); err != nil {
		t.Fatalf("advance: %v", err)
	}

	var sawEvent, sawTick bool
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for !sawEvent || !sawTick {
		var m StreamMessage
		if err := conn.ReadJSON(&m); err != nil {
			t.Fatalf("read: %v (event=%v tick=%v)", err, sawEvent, sawTick)
		}
		switch m.Type {
		case "event":
			if m.Event.Seq == 1 && m.Event.Kind == tectonics.Volcano {
				sawEvent = true
			}
		case "tick":
			if m.Tick >= 1 && m.Date != nil {
				sawTick = true
			}
		}
	}
}
