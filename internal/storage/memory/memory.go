// internal/storage/memory/memory.go
package memory

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/OCAP2/rigsync/internal/config"
	"github.com/OCAP2/rigsync/internal/storage"
	"github.com/OCAP2/rigsync/pkg/core"
)

// RepresentationRecord groups one representation with the poses written to it.
type RepresentationRecord struct {
	ID             uuid.UUID
	CreatedFrame   uint64
	DestroyedFrame uint64 // zero while live
	Poses          []core.PoseSample
}

// BodyRecord groups every representation a tracking id owned during the
// session. A body that flickers out and back gets a new representation.
type BodyRecord struct {
	TrackingID      uint64
	Representations []*RepresentationRecord
}

// Backend stores session data in memory and exports to JSON
type Backend struct {
	cfg     config.MemoryConfig
	session *core.Session

	bodies          map[uint64]*BodyRecord              // keyed by tracking id
	representations map[uuid.UUID]*RepresentationRecord // keyed by representation id
	bodyOrder       []uint64                            // first-seen order
	performance     []core.FramePerformance

	lastFrame      uint64
	idCounter      uint
	lastExportPath string
	mu             sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{
		cfg:             cfg,
		bodies:          make(map[uint64]*BodyRecord),
		representations: make(map[uuid.UUID]*RepresentationRecord),
	}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// StartSession begins recording a new session
func (b *Backend) StartSession(s *core.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.idCounter++
	s.ID = b.idCounter
	cp := *s
	b.session = &cp

	// Reset all collections
	b.bodies = make(map[uint64]*BodyRecord)
	b.representations = make(map[uuid.UUID]*RepresentationRecord)
	b.bodyOrder = nil
	b.performance = nil
	b.lastFrame = 0
	b.lastExportPath = ""

	return nil
}

// EndSession finalizes and exports the session data
func (b *Backend) EndSession() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return errors.New("no session started")
	}
	return b.exportJSON()
}

func (b *Backend) body(trackingID uint64) *BodyRecord {
	rec, ok := b.bodies[trackingID]
	if !ok {
		rec = &BodyRecord{TrackingID: trackingID}
		b.bodies[trackingID] = rec
		b.bodyOrder = append(b.bodyOrder, trackingID)
	}
	return rec
}

func (b *Backend) representation(trackingID uint64, id uuid.UUID, frame uint64) *RepresentationRecord {
	rep, ok := b.representations[id]
	if !ok {
		rep = &RepresentationRecord{ID: id, CreatedFrame: frame}
		b.representations[id] = rep
		body := b.body(trackingID)
		body.Representations = append(body.Representations, rep)
	}
	return rep
}

func (b *Backend) seeFrame(frame uint64) {
	if frame > b.lastFrame {
		b.lastFrame = frame
	}
}

// RecordLifecycle records a representation being created or destroyed
func (b *Backend) RecordLifecycle(e *core.LifecycleEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seeFrame(e.Frame)
	rep := b.representation(e.TrackingID, e.RepresentationID, e.Frame)
	if e.Kind == core.LifecycleDestroyed {
		rep.DestroyedFrame = e.Frame
	}
	return nil
}

// RecordPose records the node positions written for one body in one frame
func (b *Backend) RecordPose(s *core.PoseSample) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seeFrame(s.Frame)
	rep := b.representation(s.TrackingID, s.RepresentationID, s.Frame)

	sample := *s
	sample.Nodes = make(map[string]core.Position3D, len(s.Nodes))
	for name, p := range s.Nodes {
		sample.Nodes[name] = p
	}
	rep.Poses = append(rep.Poses, sample)
	return nil
}

// RecordPerformance records the metrics of one frame
func (b *Backend) RecordPerformance(p *core.FramePerformance) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seeFrame(p.Frame)
	b.performance = append(b.performance, *p)
	return nil
}

// GetBody looks up the record of a tracking id
func (b *Backend) GetBody(trackingID uint64) (*BodyRecord, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	rec, ok := b.bodies[trackingID]
	return rec, ok
}

// GetExportedFilePath returns the path of the last export
func (b *Backend) GetExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}

// GetExportMetadata describes the current session for upload
func (b *Backend) GetExportMetadata() storage.UploadMetadata {
	b.mu.RLock()
	defer b.mu.RUnlock()

	meta := storage.UploadMetadata{
		Frames: b.lastFrame,
		Bodies: len(b.bodies),
	}
	if b.session != nil {
		meta.SessionName = b.session.Name
		meta.Asset = b.session.Asset
	}
	if n := len(b.performance); n > 0 {
		meta.Duration = b.performance[n-1].Time.Sub(b.performance[0].Time)
	}
	return meta
}
