package broadcast

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jpalmerr/harcast/internal/ingest"
	"github.com/jpalmerr/harcast/internal/store"
	"github.com/jpalmerr/harcast/internal/telemetry"
)

// testLogger returns a logger that discards all output for clean test output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleRecord(t *testing.T) telemetry.Record {
	t.Helper()
	rec, err := telemetry.Parse("$$HAR,1000,12.3456,78.9012,100.5,0.1,0.2,0.3,25.3,1013.25,45.2")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return rec
}

func newTestServer(t *testing.T, st store.Store, interval time.Duration) (*Server, *httptest.Server) {
	t.Helper()
	srv := NewServer(st, Config{Interval: interval}, testLogger())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func dialWS(t *testing.T, ts *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial(%s) error = %v", url, err)
	}
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn, timeout time.Duration) (telemetry.Record, bool) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	rec, ok, err := telemetry.Decode(data)
	if err != nil {
		t.Fatalf("Decode(%s) error = %v", data, err)
	}
	return rec, ok
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

// --- Registry ---

func TestRegistry_AddRemove(t *testing.T) {
	r := NewRegistry()

	a := r.Add(KindWebSocket, "10.0.0.1:1000")
	b := r.Add(KindSSE, "10.0.0.2:2000")

	if a.ID == "" || a.ID == b.ID {
		t.Fatalf("client IDs not unique: %q, %q", a.ID, b.ID)
	}
	if r.Count() != 2 {
		t.Errorf("Count() = %d, want 2", r.Count())
	}

	r.Remove(a.ID)
	r.Remove("unknown")

	clients := r.Clients()
	if len(clients) != 1 || clients[0].ID != b.ID {
		t.Errorf("Clients() = %+v, want only %s", clients, b.ID)
	}
}

func TestRegistry_ConcurrentChurn(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				c := r.Add(KindWebSocket, "peer")
				_ = r.Clients()
				r.Remove(c.ID)
			}
		}()
	}
	wg.Wait()

	if r.Count() != 0 {
		t.Errorf("Count() = %d after churn, want 0", r.Count())
	}
}

// --- WebSocket push ---

func TestWebSocket_UnknownThenPopulated(t *testing.T) {
	st := store.NewLatest()
	_, ts := newTestServer(t, st, 50*time.Millisecond)

	conn := dialWS(t, ts, "/ws")
	defer conn.Close()

	// connected before any frame: every field is null
	if _, ok := readMessage(t, conn, time.Second); ok {
		t.Fatal("first message should be the unknown snapshot")
	}

	rec := sampleRecord(t)
	st.Set(rec)

	// the change must show up within one interval (plus slack)
	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		got, ok := readMessage(t, conn, time.Second)
		if ok {
			if !got.Equal(rec) {
				t.Errorf("pushed %+v, want %+v", got, rec)
			}
			return
		}
	}
	t.Fatal("populated snapshot never pushed")
}

func TestWebSocket_RootPathUpgrades(t *testing.T) {
	st := store.NewLatest()
	st.Set(sampleRecord(t))
	_, ts := newTestServer(t, st, 50*time.Millisecond)

	conn := dialWS(t, ts, "/")
	defer conn.Close()

	got, ok := readMessage(t, conn, time.Second)
	if !ok || got.Time != "1000" {
		t.Errorf("root upgrade pushed %+v (ok=%v)", got, ok)
	}
}

func TestWebSocket_Cadence(t *testing.T) {
	st := store.NewLatest()
	_, ts := newTestServer(t, st, 40*time.Millisecond)

	conn := dialWS(t, ts, "/ws")
	defer conn.Close()

	start := time.Now()
	for i := 0; i < 4; i++ {
		readMessage(t, conn, time.Second)
	}
	// first send is immediate, then three intervals
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Errorf("4 messages in %v, pushes are not paced", elapsed)
	}
}

func TestWebSocket_ClosedClientDoesNotAffectOthers(t *testing.T) {
	st := store.NewLatest()
	st.Set(sampleRecord(t))
	srv, ts := newTestServer(t, st, 30*time.Millisecond)

	quitter := dialWS(t, ts, "/ws")
	stayer := dialWS(t, ts, "/ws")
	defer stayer.Close()

	waitFor(t, func() bool { return srv.Clients().Count() == 2 }, "both clients should register")

	readMessage(t, quitter, time.Second)
	readMessage(t, stayer, time.Second)
	_ = quitter.Close()

	// the remaining client keeps its cadence: each message within ~one interval
	for i := 0; i < 5; i++ {
		start := time.Now()
		readMessage(t, stayer, time.Second)
		if gap := time.Since(start); gap > 250*time.Millisecond {
			t.Fatalf("message %d delayed by %v after another client left", i, gap)
		}
	}

	waitFor(t, func() bool { return srv.Clients().Count() == 1 }, "closed client should be removed")
}

func TestWebSocket_StopsOnServerContext(t *testing.T) {
	st := store.NewLatest()
	srv := NewServer(st, Config{Port: 0, Interval: 20 * time.Millisecond}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	_, port, _ := net.SplitHostPort(srv.Addr().String())
	conn, _, err := websocket.DefaultDialer.Dial("ws://127.0.0.1:"+port+"/ws", nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	readMessage(t, conn, time.Second)

	cancel()

	// the server side ends the delivery loop and closes the connection
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	waitFor(t, func() bool { return srv.Clients().Count() == 0 }, "client should be removed on shutdown")
}

// --- SSE push ---

func TestHandleSSE_StreamsSnapshots(t *testing.T) {
	st := store.NewLatest()
	st.Set(sampleRecord(t))
	srv := NewServer(st, Config{Interval: 20 * time.Millisecond}, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 110*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/sse", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	srv.handleSSE(rec, req)

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	var events int
	scanner := bufio.NewScanner(strings.NewReader(rec.Body.String()))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		got, ok, err := telemetry.Decode([]byte(strings.TrimPrefix(line, "data: ")))
		if err != nil || !ok || got.Time != "1000" {
			t.Errorf("bad event %q: ok=%v err=%v", line, ok, err)
		}
		events++
	}
	if events < 2 {
		t.Errorf("received %d events, want at least 2", events)
	}
	if srv.Clients().Count() != 0 {
		t.Errorf("Clients().Count() = %d after handler exit, want 0", srv.Clients().Count())
	}
}

// nonFlusher is a ResponseWriter without http.Flusher.
type nonFlusher struct {
	header http.Header
	code   int
}

func (n *nonFlusher) Header() http.Header         { return n.header }
func (n *nonFlusher) Write(b []byte) (int, error) { return len(b), nil }
func (n *nonFlusher) WriteHeader(code int)        { n.code = code }

func TestHandleSSE_NotSupported(t *testing.T) {
	srv := NewServer(store.NewLatest(), Config{}, testLogger())
	w := &nonFlusher{header: http.Header{}}

	srv.handleSSE(w, httptest.NewRequest(http.MethodGet, "/api/sse", nil))

	if w.code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.code)
	}
}

// --- HTTP pull and health ---

func TestHandleTelemetry(t *testing.T) {
	st := store.NewLatest()
	srv := NewServer(st, Config{}, testLogger())

	rec := httptest.NewRecorder()
	srv.handleTelemetry(rec, httptest.NewRequest(http.MethodGet, "/api/telemetry", nil))
	if _, ok, err := telemetry.Decode(rec.Body.Bytes()); err != nil || ok {
		t.Errorf("empty store response = %s (ok=%v, err=%v), want all null", rec.Body.String(), ok, err)
	}

	want := sampleRecord(t)
	st.Set(want)

	rec = httptest.NewRecorder()
	srv.handleTelemetry(rec, httptest.NewRequest(http.MethodGet, "/api/telemetry", nil))
	got, ok, err := telemetry.Decode(rec.Body.Bytes())
	if err != nil || !ok || !got.Equal(want) {
		t.Errorf("response = %s, want %+v", rec.Body.String(), want)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
}

func TestHandleTelemetry_MethodNotAllowed(t *testing.T) {
	srv := NewServer(store.NewLatest(), Config{}, testLogger())
	rec := httptest.NewRecorder()
	srv.handleTelemetry(rec, httptest.NewRequest(http.MethodPost, "/api/telemetry", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestHandleHealth_States(t *testing.T) {
	st := store.NewLatest()
	srv := NewServer(st, Config{Interval: time.Second, StaleAfter: 10 * time.Second}, testLogger())
	srv.cfg.IngestStats = func() ingest.Stats { return ingest.Stats{Lines: 3, Accepted: 1} }

	getHealth := func() healthResponse {
		t.Helper()
		rec := httptest.NewRecorder()
		srv.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
		var h healthResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &h); err != nil {
			t.Fatalf("json.Unmarshal() error = %v; body %s", err, rec.Body.String())
		}
		return h
	}

	h := getHealth()
	if h.Status != HealthUnknown || h.UpdatedAt != nil || h.StalenessMs != nil {
		t.Errorf("empty store health = %+v, want unknown", h)
	}
	if h.Ingest == nil || h.Ingest.Lines != 3 {
		t.Errorf("Ingest = %+v, want lines=3", h.Ingest)
	}

	st.Set(sampleRecord(t))
	h = getHealth()
	if h.Status != HealthFresh || h.Seq != 1 {
		t.Errorf("fresh health = %+v", h)
	}

	srv.now = func() time.Time { return time.Now().Add(time.Minute) }
	h = getHealth()
	if h.Status != HealthStale {
		t.Errorf("Status = %q, want stale", h.Status)
	}
	if h.StalenessMs == nil || *h.StalenessMs < 59000 {
		t.Errorf("StalenessMs = %v, want about 60000", h.StalenessMs)
	}
}

// --- Dashboard ---

func dashboardFS() fstest.MapFS {
	return fstest.MapFS{
		"assets/index.html": &fstest.MapFile{Data: []byte("<title>{{.Title}}</title>")},
	}
}

func TestHandleDashboard_CustomTitle(t *testing.T) {
	srv := NewServer(store.NewLatest(), Config{Title: "Rocket <One>", Assets: dashboardFS()}, testLogger())

	rec := httptest.NewRecorder()
	srv.handleRoot(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if body := rec.Body.String(); body != "<title>Rocket &lt;One&gt;</title>" {
		t.Errorf("body = %q", body)
	}
}

func TestHandleDashboard_DefaultTitle(t *testing.T) {
	srv := NewServer(store.NewLatest(), Config{Assets: dashboardFS()}, testLogger())

	rec := httptest.NewRecorder()
	srv.handleRoot(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if !strings.Contains(rec.Body.String(), defaultTitle) {
		t.Errorf("body = %q, want default title", rec.Body.String())
	}
}

func TestHandleDashboard_NonRootPath(t *testing.T) {
	srv := NewServer(store.NewLatest(), Config{Assets: dashboardFS()}, testLogger())

	rec := httptest.NewRecorder()
	srv.handleRoot(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

// --- Start ---

func TestStart_PortInUse_ReturnsError(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("net.Listen() error = %v", err)
	}
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	srv := NewServer(store.NewLatest(), Config{Port: port}, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := srv.Start(ctx); err == nil {
		t.Fatal("Start() on occupied port should return error")
	}
}

func TestStart_ServesHealth(t *testing.T) {
	srv := NewServer(store.NewLatest(), Config{}, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	_, port, _ := net.SplitHostPort(srv.Addr().String())
	resp, err := http.Get("http://127.0.0.1:" + port + "/api/health")
	if err != nil {
		t.Fatalf("GET /api/health error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}
