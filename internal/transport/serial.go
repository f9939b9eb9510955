package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"
)

// DefaultBaudRate matches the device firmware.
const DefaultBaudRate = 115200

// SerialConfig describes how to open a serial device.
type SerialConfig struct {
	// Device is the port name, e.g. "/dev/ttyUSB0" or "COM9".
	Device string

	// BaudRate defaults to [DefaultBaudRate].
	BaudRate int

	// ReadTimeout bounds each read. Defaults to 1s.
	ReadTimeout time.Duration
}

// portOpener opens the underlying byte stream. Swapped out in tests.
type portOpener func(cfg SerialConfig) (io.ReadCloser, error)

// Serial reads lines from a serial device.
//
// Serial is used by a single reader goroutine; Close may be called
// concurrently to unblock shutdown.
type Serial struct {
	cfg  SerialConfig
	open portOpener

	mu     sync.Mutex
	port   io.ReadCloser
	closed bool

	pending []byte
	chunk   []byte
}

// OpenSerial opens the device described by cfg.
//
// An error here is a startup failure: without a device there is nothing
// to distribute.
func OpenSerial(cfg SerialConfig) (*Serial, error) {
	return openSerial(cfg, openDevice)
}

func openSerial(cfg SerialConfig, open portOpener) (*Serial, error) {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = DefaultBaudRate
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = time.Second
	}

	port, err := open(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Device, err)
	}

	return &Serial{
		cfg:   cfg,
		open:  open,
		port:  port,
		chunk: make([]byte, 256),
	}, nil
}

// openDevice opens a real port with go.bug.st/serial.
func openDevice(cfg SerialConfig) (io.ReadCloser, error) {
	port, err := serial.Open(cfg.Device, &serial.Mode{BaudRate: cfg.BaudRate})
	if err != nil {
		return nil, err
	}
	if err := port.SetReadTimeout(cfg.ReadTimeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("set read timeout: %w", err)
	}
	return port, nil
}

// Device returns the configured port name.
func (s *Serial) Device() string {
	return s.cfg.Device
}

// ReadLine returns the next line from the device.
//
// A read that returns no bytes means the port's read timeout expired and
// yields [ErrTimeout]; bytes of an incomplete line are kept for the next
// call.
func (s *Serial) ReadLine(ctx context.Context) (string, error) {
	for {
		if line, ok := s.takeLine(); ok {
			return line, nil
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}

		port, err := s.current()
		if err != nil {
			return "", err
		}

		n, err := port.Read(s.chunk)
		if n > 0 {
			s.pending = append(s.pending, s.chunk[:n]...)
			if len(s.pending) > maxLineLength && bytes.IndexByte(s.pending, '\n') < 0 {
				s.pending = s.pending[:0]
				return "", ErrLineTooLong
			}
		}
		if err != nil {
			return "", fmt.Errorf("serial read %s: %w", s.cfg.Device, err)
		}
		if n == 0 {
			return "", ErrTimeout
		}
	}
}

// takeLine pops one complete line off the pending buffer.
func (s *Serial) takeLine() (string, bool) {
	idx := bytes.IndexByte(s.pending, '\n')
	if idx < 0 {
		return "", false
	}
	line := string(bytes.TrimRight(s.pending[:idx], "\r"))
	s.pending = append(s.pending[:0], s.pending[idx+1:]...)
	return line, true
}

func (s *Serial) current() (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if s.port == nil {
		return nil, fmt.Errorf("serial port %s not open", s.cfg.Device)
	}
	return s.port, nil
}

// Reopen closes the current port and opens the device again. Any partial
// line is discarded.
func (s *Serial) Reopen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.port != nil {
		_ = s.port.Close()
		s.port = nil
	}
	s.pending = s.pending[:0]

	port, err := s.open(s.cfg)
	if err != nil {
		return fmt.Errorf("failed to reopen serial port %s: %w", s.cfg.Device, err)
	}
	s.port = port
	return nil
}

// Close closes the port. Safe to call multiple times.
func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.port == nil {
		return nil
	}
	return s.port.Close()
}
