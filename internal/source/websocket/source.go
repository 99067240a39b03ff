// Package websocket receives skeleton frames from a sensor bridge over a
// WebSocket connection.
package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/OCAP2/rigsync/internal/dispatcher"
	"github.com/OCAP2/rigsync/internal/source"
	"github.com/OCAP2/rigsync/pkg/core"
	"github.com/OCAP2/rigsync/pkg/streaming"
)

const (
	maxReconnect   = 10
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
	writeWait      = 10 * time.Second
)

// Config configures a Source.
type Config struct {
	URL string

	// Optional
	Logger         *slog.Logger
	DispatchLogger dispatcher.Logger // defaults to Logger
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxReconnect   int
}

// Source keeps the latest frame received from the bridge. While the
// connection is down or the bridge reports the sensor lost, Bodies reports
// the source unavailable.
type Source struct {
	latest     source.Latest
	dispatcher *dispatcher.Dispatcher
	logger     *slog.Logger
	cfg        Config

	mu     sync.Mutex
	conn   *ws.Conn
	done   chan struct{} // closed on shutdown
	closed bool
	sensor streaming.HelloPayload

	connected atomic.Bool
	frames    atomic.Uint64
	dials     atomic.Int64
}

// New creates a Source. Call Connect to start receiving.
func New(cfg Config) (*Source, error) {
	if cfg.URL == "" {
		return nil, errors.New("websocket source: url is required")
	}
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, fmt.Errorf("invalid websocket URL: %w", err)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.DispatchLogger == nil {
		cfg.DispatchLogger = cfg.Logger
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = initialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = maxBackoff
	}
	if cfg.MaxReconnect <= 0 {
		cfg.MaxReconnect = maxReconnect
	}

	d, err := dispatcher.New(cfg.DispatchLogger)
	if err != nil {
		return nil, fmt.Errorf("creating dispatcher: %w", err)
	}

	s := &Source{
		dispatcher: d,
		logger:     cfg.Logger.With("component", "source", "url", cfg.URL),
		cfg:        cfg,
		done:       make(chan struct{}),
	}
	s.registerHandlers()
	return s, nil
}

func (s *Source) registerHandlers() {
	s.dispatcher.Register(streaming.TypeHello, s.handleHello, dispatcher.Logged())
	s.dispatcher.Register(streaming.TypeFrame, s.handleFrame)
	s.dispatcher.Register(streaming.TypeSensorLost, s.handleSensorLost, dispatcher.Logged())
}

func (s *Source) handleHello(e dispatcher.Event) (any, error) {
	var p streaming.HelloPayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return nil, fmt.Errorf("decode hello: %w", err)
	}
	s.mu.Lock()
	s.sensor = p
	s.mu.Unlock()
	s.logger.Info("Sensor bridge connected", "sensor", p.Sensor, "version", p.Version)
	return nil, nil
}

func (s *Source) handleFrame(e dispatcher.Event) (any, error) {
	var p streaming.FramePayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	if p.Frame.Time.IsZero() {
		p.Frame.Time = e.Timestamp
	}
	s.latest.Set(p.Frame)
	s.frames.Add(1)
	return nil, nil
}

func (s *Source) handleSensorLost(e dispatcher.Event) (any, error) {
	var p streaming.SensorLostPayload
	if len(e.Payload) > 0 {
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode sensor_lost: %w", err)
		}
	}
	s.latest.Clear()
	s.logger.Warn("Sensor lost", "reason", p.Reason)
	return nil, nil
}

// Connect dials the bridge and starts the read loop.
func (s *Source) Connect() error {
	conn, err := s.dialOnce()
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.Close()
		return errors.New("websocket source: closed")
	}
	s.conn = conn
	s.mu.Unlock()
	s.connected.Store(true)

	go s.readLoop(conn)
	return nil
}

func (s *Source) dialOnce() (*ws.Conn, error) {
	s.dials.Add(1)
	conn, _, err := ws.DefaultDialer.Dial(s.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

// readLoop decodes envelopes and routes them through the dispatcher.
// It returns on read error or shutdown.
func (s *Source) readLoop(conn *ws.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			s.logger.Warn("WebSocket read error", "error", err)
			s.connected.Store(false)
			s.latest.Clear()
			go s.reconnect()
			return
		}

		env, err := streaming.Decode(message)
		if err != nil {
			s.logger.Debug("Undecodable message received", "error", err)
			continue
		}

		if !s.dispatcher.HasHandler(env.Type) {
			s.logger.Debug("Unhandled message type", "type", env.Type)
			continue
		}
		if _, err := s.dispatcher.Dispatch(dispatcher.Event{
			Type:      env.Type,
			Payload:   env.Payload,
			Timestamp: time.Now(),
		}); err != nil {
			s.logger.Warn("Failed to handle message", "type", env.Type, "error", err)
		}
	}
}

// reconnect re-establishes the connection with exponential backoff.
func (s *Source) reconnect() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	s.mu.Unlock()

	backoff := s.cfg.InitialBackoff
	for attempt := 1; attempt <= s.cfg.MaxReconnect; attempt++ {
		s.logger.Info("Reconnecting to sensor bridge", "attempt", attempt, "backoff", backoff)
		select {
		case <-s.done:
			return
		case <-time.After(backoff):
		}

		conn, err := s.dialOnce()
		if err != nil {
			s.logger.Warn("Reconnect dial failed", "attempt", attempt, "error", err)
			backoff *= 2
			if backoff > s.cfg.MaxBackoff {
				backoff = s.cfg.MaxBackoff
			}
			continue
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = conn.Close()
			return
		}
		s.conn = conn
		s.mu.Unlock()
		s.connected.Store(true)

		s.logger.Info("Sensor bridge reconnected", "attempt", attempt)
		go s.readLoop(conn)
		return
	}

	s.logger.Error("Sensor bridge reconnect failed after max attempts", "maxAttempts", s.cfg.MaxReconnect)
}

// Bodies implements source.Source.
func (s *Source) Bodies() ([]core.Body, bool) {
	return s.latest.Bodies()
}

// Connected reports whether a connection to the bridge is currently open.
func (s *Source) Connected() bool {
	return s.connected.Load()
}

// FramesReceived returns the number of frame messages applied so far.
func (s *Source) FramesReceived() uint64 {
	return s.frames.Load()
}

// Sensor returns what the bridge announced in its hello message.
func (s *Source) Sensor() streaming.HelloPayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sensor
}

// Close sends a close frame and stops reading.
func (s *Source) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	s.connected.Store(false)
	s.latest.Clear()

	if conn != nil {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = conn.WriteMessage(
			ws.CloseMessage,
			ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
		)
		return conn.Close()
	}
	return nil
}
