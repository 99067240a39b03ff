// Package storage defines the recording backend the rig synchronizer
// writes lifecycle changes, poses and frame metrics to.
package storage

import (
	"time"

	"github.com/OCAP2/rigsync/pkg/core"
)

// Backend is the interface all storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Session management (assigns ID to the passed pointer)
	StartSession(s *core.Session) error
	EndSession() error

	// Recording
	RecordLifecycle(e *core.LifecycleEvent) error
	RecordPose(s *core.PoseSample) error
	RecordPerformance(p *core.FramePerformance) error
}

// Uploadable is an optional interface for storage backends that produce
// files suitable for upload to a recordings server.
type Uploadable interface {
	GetExportedFilePath() string
	GetExportMetadata() UploadMetadata
}

// UploadMetadata describes an exported session file.
type UploadMetadata struct {
	SessionName string
	Asset       string
	Duration    time.Duration
	Frames      uint64
	Bodies      int // distinct tracking ids seen
}
