// pkg/core/recording.go
package core

import (
	"time"

	"github.com/google/uuid"
)

// Session describes one recording run.
type Session struct {
	ID        uint
	Name      string
	Asset     string
	Source    string
	StartTime time.Time
}

// LifecycleKind is the kind of representation lifecycle change.
type LifecycleKind string

const (
	LifecycleCreated   LifecycleKind = "created"
	LifecycleDestroyed LifecycleKind = "destroyed"
)

// LifecycleEvent records a representation being created for a newly tracked
// body or destroyed when the body stops being tracked.
type LifecycleEvent struct {
	Frame            uint64
	Time             time.Time
	TrackingID       uint64
	RepresentationID uuid.UUID
	Kind             LifecycleKind
}

// PoseSample is the set of node positions written for one body in one frame.
// Nodes maps scene node name to the world position it was given.
type PoseSample struct {
	Frame            uint64
	Time             time.Time
	TrackingID       uint64
	RepresentationID uuid.UUID
	Nodes            map[string]Position3D
}

// FramePerformance summarizes the work done in one frame tick.
type FramePerformance struct {
	Frame     uint64
	Time      time.Time
	Bodies    int
	Tracked   int
	Created   int
	Destroyed int
	Errors    int
	Duration  time.Duration
}
