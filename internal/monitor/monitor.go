// Package monitor periodically writes the running session's status to a
// JSON file so operators can watch a headless run.
package monitor

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

const defaultInterval = time.Second

// Status is one snapshot of the running session.
type Status struct {
	Time         time.Time `json:"time"`
	Session      string    `json:"session"`
	Frames       uint64    `json:"frames"`
	FailedFrames uint64    `json:"failedFrames"`
	Live         int64     `json:"live"`
	Pending      int       `json:"pendingWrites"`
	LastWriteMs  float32   `json:"lastWriteMs"`
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Path     string        // status file, rewritten every Interval
	Interval time.Duration // defaults to one second
	Status   func() Status
	Logger   *slog.Logger
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Interval <= 0 {
		deps.Interval = defaultInterval
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{
		deps:     deps,
		stopChan: make(chan struct{}),
	}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// WriteStatus takes a snapshot and replaces the status file with it.
func (s *Service) WriteStatus() error {
	st := s.deps.Status()
	if st.Time.IsZero() {
		st.Time = time.Now()
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("error encoding status: %w", err)
	}

	tmp := s.deps.Path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("error writing status file: %w", err)
	}
	return os.Rename(tmp, s.deps.Path)
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	if s.deps.Status == nil {
		return fmt.Errorf("monitor: no status func")
	}

	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
			close(s.done)
		}()

		logger := s.deps.Logger
		logger.Debug("Starting status monitor goroutine", "path", s.deps.Path)

		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stopChan:
				return
			case <-ticker.C:
				if err := s.WriteStatus(); err != nil {
					logger.Error("Error writing status file", "error", err)
				}
			}
		}
	}()

	return nil
}

// Stop stops the status monitor and writes a final status.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	close(s.stopChan)
	done := s.done
	s.mu.Unlock()

	<-done
	if err := s.WriteStatus(); err != nil {
		s.deps.Logger.Error("Error writing final status", "error", err)
	}
}
