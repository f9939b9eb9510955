package query

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/jpalmerr/harcast/internal/store"
	"github.com/jpalmerr/harcast/internal/telemetry"
)

const (
	// readBufferSize bounds a single request read.
	readBufferSize = 4096

	// DefaultWriteTimeout bounds a single response write.
	DefaultWriteTimeout = 5 * time.Second
)

// Config configures a [Server].
type Config struct {
	// Port is the TCP port to listen on. Zero picks a free port.
	Port int

	// IdleTimeout closes a connection that sends nothing for this long.
	// Zero disables the idle timeout.
	IdleTimeout time.Duration

	// WriteTimeout bounds each response write. Defaults to [DefaultWriteTimeout].
	WriteTimeout time.Duration
}

// Server is the pull server.
type Server struct {
	store  store.Store
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup
}

// NewServer creates a pull [Server] reading from st.
//
// The server is not started until [Server.Start] is called.
func NewServer(st store.Store, cfg Config, logger *slog.Logger) *Server {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	return &Server{
		store:  st,
		cfg:    cfg,
		logger: logger,
		conns:  make(map[net.Conn]struct{}),
	}
}

// Start binds the listener and serves connections in the background.
//
// Start returns an error if the port cannot be bound. When ctx is
// cancelled the listener and every open connection are closed.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.cfg.Port, err)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptLoop(ln)
	}()

	go func() {
		<-ctx.Done()
		s.close()
	}()

	s.logger.Info("query server listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or nil before [Server.Start].
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Wait blocks until the accept loop and all connection handlers have
// returned. It is only meaningful after the start context is cancelled.
func (s *Server) Wait() {
	s.wg.Wait()
}

func (s *Server) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("query accept failed", "error", err)
			// avoid spinning on persistent accept errors such as EMFILE
			time.Sleep(50 * time.Millisecond)
			continue
		}

		if !s.track(conn) {
			_ = conn.Close()
			return
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			s.serveConn(conn)
		}()
	}
}

// serveConn runs the request/response loop for one connection.
func (s *Server) serveConn(conn net.Conn) {
	remote := conn.RemoteAddr().String()
	s.logger.Debug("pull client connected", "remote_addr", remote)

	buf := make([]byte, readBufferSize)
	for {
		if s.cfg.IdleTimeout > 0 {
			if err := conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout)); err != nil {
				s.logger.Warn("pull client read deadline failed", "remote_addr", remote, "error", err)
				return
			}
		}

		n, err := conn.Read(buf)
		if n > 0 {
			if werr := s.respond(conn); werr != nil {
				s.logger.Info("pull client dropped", "remote_addr", remote, "error", werr)
				return
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				s.logger.Debug("pull client disconnected", "remote_addr", remote)
			} else {
				s.logger.Info("pull client dropped", "remote_addr", remote, "error", err)
			}
			return
		}
	}
}

// respond snapshots the store once and writes the encoded message.
func (s *Server) respond(conn net.Conn) error {
	snap, ok := s.store.Get()
	data, err := telemetry.Encode(snap.Record, ok)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	if err := conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
		return err
	}
	_, err = conn.Write(data)
	return err
}

// track registers conn; it reports false once the server is closing.
func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conns == nil {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	_ = conn.Close()
	s.mu.Lock()
	if s.conns != nil {
		delete(s.conns, conn)
	}
	s.mu.Unlock()
}

// close stops accepting and closes every open connection.
func (s *Server) close() {
	s.mu.Lock()
	ln := s.listener
	conns := s.conns
	s.conns = nil
	s.mu.Unlock()

	if ln != nil {
		_ = ln.Close()
	}
	for conn := range conns {
		_ = conn.Close()
	}
	s.logger.Info("query server stopped")
}
