package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jpalmerr/harcast/internal/ingest"
	"github.com/jpalmerr/harcast/internal/store"
	"github.com/jpalmerr/harcast/internal/telemetry"
)

const (
	// DefaultInterval is the per-client push cadence.
	DefaultInterval = time.Second

	// DefaultWriteTimeout is the maximum time allowed for a single push write.
	// This prevents goroutine leaks when clients are slow or disconnected.
	DefaultWriteTimeout = 5 * time.Second

	// shutdownTimeout bounds graceful HTTP shutdown.
	shutdownTimeout = 5 * time.Second

	// defaultTitle is used when no custom title is configured.
	defaultTitle = "harcast"

	// titlePlaceholder is the marker in HTML that gets replaced with the actual title.
	titlePlaceholder = "{{.Title}}"
)

// Health states reported by /api/health.
const (
	HealthUnknown = "unknown"
	HealthFresh   = "fresh"
	HealthStale   = "stale"
)

// Config configures a [Server].
type Config struct {
	// Port is the TCP port to listen on. Zero picks a free port.
	Port int

	// Interval is the push cadence per client. Defaults to [DefaultInterval].
	Interval time.Duration

	// WriteTimeout bounds each push write. Defaults to [DefaultWriteTimeout].
	WriteTimeout time.Duration

	// StaleAfter is the snapshot age at which /api/health reports "stale".
	// Defaults to five push intervals.
	StaleAfter time.Duration

	// Title is the dashboard title.
	Title string

	// Assets holds assets/index.html for the dashboard. May be nil.
	Assets fs.FS

	// IngestStats, if set, is included in /api/health.
	IngestStats func() ingest.Stats
}

// Server is the push server.
//
// The server is designed for graceful shutdown via context cancellation:
// every delivery goroutine watches the request context, which is derived
// from the context passed to [Server.Start].
type Server struct {
	store    store.Store
	cfg      Config
	clients  *Registry
	upgrader websocket.Upgrader
	logger   *slog.Logger
	now      func() time.Time

	mu         sync.Mutex
	httpServer *http.Server
	addr       net.Addr
}

// NewServer creates a push [Server] reading from st.
//
// The server is not started until [Server.Start] is called.
func NewServer(st store.Store, cfg Config, logger *slog.Logger) *Server {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 5 * cfg.Interval
	}

	return &Server{
		store:   st,
		cfg:     cfg,
		clients: NewRegistry(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// any origin may subscribe; there is no authentication
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger,
		now:    time.Now,
	}
}

// Clients returns the client registry.
func (s *Server) Clients() *Registry {
	return s.clients
}

// Handler returns the HTTP routes served by the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/api/sse", s.handleSSE)
	mux.HandleFunc("/api/telemetry", s.handleTelemetry)
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/", s.handleRoot)
	return mux
}

// Start begins serving in a background goroutine.
//
// Start is non-blocking and returns immediately after confirming the server
// is listening. The server runs until ctx is cancelled, at which point it
// shuts down gracefully with a 5-second timeout.
//
// Returns an error if the server fails to bind to the configured port.
func (s *Server) Start(ctx context.Context) error {
	// create listener first to verify port availability synchronously
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.cfg.Port, err)
	}

	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// BaseContext derives all request contexts from the server context.
		// When ctx is cancelled, long-running push handlers observe it and
		// return, including hijacked WebSocket connections that Shutdown
		// does not track.
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	s.mu.Lock()
	s.httpServer = httpServer
	s.addr = ln.Addr()
	s.mu.Unlock()

	go func() {
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("broadcast server error", "error", err)
		}
	}()

	// shutdown on context cancellation
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("broadcast server shutdown error", "error", err)
		}
	}()

	s.logger.Info("broadcast server listening", "addr", ln.Addr().String(), "interval", s.cfg.Interval.String())
	return nil
}

// Addr returns the bound address, or nil before [Server.Start].
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// encodeSnapshot reads the store once and serializes the copy. The store
// lock is released before encoding starts.
func (s *Server) encodeSnapshot() ([]byte, error) {
	snap, ok := s.store.Get()
	return telemetry.Encode(snap.Record, ok)
}

// deliver is the per-client delivery loop: send now, then once per
// interval, until send fails or ctx is done.
func (s *Server) deliver(ctx context.Context, c Client, send func([]byte) error) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		data, err := s.encodeSnapshot()
		if err != nil {
			// skip this tick; the next snapshot may encode fine
			s.logger.Error("failed to encode snapshot", "client_id", c.ID, "error", err)
		} else if err := send(data); err != nil {
			s.logger.Info("push client dropped",
				"client_id", c.ID,
				"kind", c.Kind,
				"remote_addr", c.RemoteAddr,
				"error", err,
			)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// handleRoot serves the dashboard, or upgrades to WebSocket when asked.
// Accepting upgrades at "/" keeps clients that connect to the bare
// host:port working.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		s.handleWebSocket(w, r)
		return
	}
	s.handleDashboard(w, r)
}

// handleWebSocket upgrades the connection and runs a delivery loop on it.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error response
		s.logger.Warn("websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	client := s.clients.Add(KindWebSocket, r.RemoteAddr)
	defer s.clients.Remove(client.ID)
	s.logger.Info("push client connected",
		"client_id", client.ID,
		"kind", client.Kind,
		"remote_addr", client.RemoteAddr,
		"clients", s.clients.Count(),
	)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// No inbound messages are expected, but reading is how close frames
	// and dropped connections are noticed.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	s.deliver(ctx, client, func(data []byte) error {
		if err := conn.SetWriteDeadline(s.now().Add(s.cfg.WriteTimeout)); err != nil {
			return err
		}
		return conn.WriteMessage(websocket.TextMessage, data)
	})

	// best effort close handshake; the peer may already be gone
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		s.now().Add(time.Second))
}

// handleSSE streams snapshots via Server-Sent Events.
//
// The handler uses write deadlines to prevent goroutine leaks when clients are
// slow or disconnected. Without deadlines, a blocked write would prevent
// the handler from detecting context cancellation.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	// check if flushing is supported
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	rc := http.NewResponseController(w)

	// track if write deadlines are supported (may not be for some ResponseWriter impls)
	deadlinesSupported := true

	writeAndFlush := func(data []byte) error {
		if deadlinesSupported {
			if err := rc.SetWriteDeadline(s.now().Add(s.cfg.WriteTimeout)); err != nil {
				// deadline not supported by underlying connection, continue without
				s.logger.Debug("sse write deadlines not supported", "error", err)
				deadlinesSupported = false
			}
		}

		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}

		// ResponseController.Flush respects the write deadline
		return rc.Flush()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	client := s.clients.Add(KindSSE, r.RemoteAddr)
	defer s.clients.Remove(client.ID)
	s.logger.Info("push client connected",
		"client_id", client.ID,
		"kind", client.Kind,
		"remote_addr", client.RemoteAddr,
		"clients", s.clients.Count(),
	)

	// request context is derived from server context via BaseContext,
	// so this ends on both client disconnect and server shutdown
	s.deliver(r.Context(), client, writeAndFlush)
}

// handleTelemetry returns the current snapshot as one JSON message.
func (s *Server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	data, err := s.encodeSnapshot()
	if err != nil {
		s.logger.Error("failed to encode snapshot", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if _, err := w.Write(data); err != nil {
		s.logger.Debug("failed to write telemetry response", "error", err)
	}
}

// healthResponse is the body of /api/health.
type healthResponse struct {
	Status      string        `json:"status"`
	Seq         uint64        `json:"seq"`
	UpdatedAt   *time.Time    `json:"updated_at"`
	StalenessMs *int64        `json:"staleness_ms"`
	Clients     int           `json:"clients"`
	Ingest      *ingest.Stats `json:"ingest,omitempty"`
}

// handleHealth reports how fresh the held snapshot is.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := healthResponse{
		Status:  HealthUnknown,
		Clients: s.clients.Count(),
	}

	if snap, ok := s.store.Get(); ok {
		age := snap.Age(s.now())
		ms := age.Milliseconds()
		updated := snap.UpdatedAt

		resp.Seq = snap.Seq
		resp.UpdatedAt = &updated
		resp.StalenessMs = &ms
		resp.Status = HealthFresh
		if age > s.cfg.StaleAfter {
			resp.Status = HealthStale
		}
	}

	if s.cfg.IngestStats != nil {
		stats := s.cfg.IngestStats()
		resp.Ingest = &stats
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("failed to encode health response", "error", err)
	}
}

// handleDashboard serves the main dashboard page.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	if s.cfg.Assets == nil {
		http.Error(w, "Dashboard not found", http.StatusNotFound)
		return
	}

	content, err := fs.ReadFile(s.cfg.Assets, "assets/index.html")
	if err != nil {
		http.Error(w, "Dashboard not found", http.StatusInternalServerError)
		return
	}

	// apply title substitution with HTML escaping to prevent XSS
	title := s.cfg.Title
	if title == "" {
		title = defaultTitle
	}
	rendered := strings.ReplaceAll(string(content), titlePlaceholder, html.EscapeString(title))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write([]byte(rendered)); err != nil {
		s.logger.Error("failed to write dashboard response", "error", err)
	}
}
