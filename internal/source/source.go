// Package source provides skeleton snapshots to the rig synchronizer.
package source

import (
	"sync"

	"github.com/OCAP2/rigsync/pkg/core"
)

// Source returns the bodies of the most recent sensor frame.
// ok is false when the sensor is unavailable; callers skip the frame.
type Source interface {
	Bodies() (bodies []core.Body, ok bool)
}

// Func adapts a function to the Source interface.
type Func func() ([]core.Body, bool)

// Bodies calls f.
func (f Func) Bodies() ([]core.Body, bool) {
	return f()
}

// Latest holds the newest frame pushed by a background reader.
// It is safe for concurrent use.
type Latest struct {
	mu    sync.RWMutex
	frame *core.Frame
}

// Set replaces the held frame.
func (l *Latest) Set(f core.Frame) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.frame = &f
}

// Clear marks the sensor unavailable until the next Set.
func (l *Latest) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.frame = nil
}

// Frame returns the held frame, if any.
func (l *Latest) Frame() (core.Frame, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.frame == nil {
		return core.Frame{}, false
	}
	return *l.frame, true
}

// Bodies implements Source.
func (l *Latest) Bodies() ([]core.Body, bool) {
	f, ok := l.Frame()
	if !ok {
		return nil, false
	}
	if f.Bodies == nil {
		return []core.Body{}, true
	}
	return f.Bodies, true
}
