// Package rig keeps one character representation per tracked body and copies
// joint positions onto the representation's named nodes every frame.
package rig

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/OCAP2/rigsync/internal/scene"
	"github.com/OCAP2/rigsync/internal/source"
	"github.com/OCAP2/rigsync/pkg/core"
)

// Recorder receives lifecycle changes and written poses. Implementations
// must not retain the passed pointers.
type Recorder interface {
	RecordLifecycle(e *core.LifecycleEvent) error
	RecordPose(s *core.PoseSample) error
}

// Dependencies holds everything the synchronizer needs.
type Dependencies struct {
	Source  source.Source
	Runtime scene.Runtime
	Asset   string

	// Optional
	Recorder      Recorder
	Logger        *slog.Logger
	MeterProvider metric.MeterProvider
	Now           func() time.Time
}

// FrameResult summarizes one Update call.
type FrameResult struct {
	Frame     uint64
	Time      time.Time
	Skipped   bool // source unavailable, nothing was done
	Bodies    int
	Tracked   int
	Created   int
	Destroyed int
	Synced    int
	Errors    int
	Duration  time.Duration
}

// Performance converts the result to a storable record.
func (r FrameResult) Performance() core.FramePerformance {
	return core.FramePerformance{
		Frame:     r.Frame,
		Time:      r.Time,
		Bodies:    r.Bodies,
		Tracked:   r.Tracked,
		Created:   r.Created,
		Destroyed: r.Destroyed,
		Errors:    r.Errors,
		Duration:  r.Duration,
	}
}

// Synchronizer owns the representations of tracked bodies.
// It is not safe for concurrent use; call Update from a single goroutine.
type Synchronizer struct {
	deps    Dependencies
	logger  *slog.Logger
	arena   *arena
	metrics *metrics
	frame   uint64
}

// New creates a synchronizer.
func New(deps Dependencies) (*Synchronizer, error) {
	if deps.Source == nil {
		return nil, errors.New("rig: source is required")
	}
	if deps.Runtime == nil {
		return nil, errors.New("rig: scene runtime is required")
	}
	if deps.Asset == "" {
		return nil, errors.New("rig: asset name is required")
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	m, err := newMetrics(deps.MeterProvider)
	if err != nil {
		return nil, err
	}

	return &Synchronizer{
		deps:    deps,
		logger:  logger.With("component", "rig", "asset", deps.Asset),
		arena:   newArena(),
		metrics: m,
	}, nil
}

// Update runs one frame: read the snapshot, destroy representations of bodies
// no longer tracked, create representations for new bodies and sync the nodes
// of every tracked body.
//
// A nil snapshot or unavailable source is a no-op. Per-body failures do not
// stop the frame; they are returned joined.
func (s *Synchronizer) Update(ctx context.Context) (FrameResult, error) {
	start := time.Now()
	s.frame++
	res := FrameResult{Frame: s.frame, Time: s.deps.Now()}

	bodies, ok := s.deps.Source.Bodies()
	if !ok || bodies == nil {
		res.Skipped = true
		res.Duration = time.Since(start)
		return res, nil
	}
	res.Bodies = len(bodies)

	tracked := make(map[uint64]struct{}, len(bodies))
	for _, b := range bodies {
		if b.IsTracked {
			tracked[b.TrackingID] = struct{}{}
		}
	}
	res.Tracked = len(tracked)

	// Prune first so an id that flickered off and on gets a fresh object.
	for _, id := range s.arena.ids() {
		if _, ok := tracked[id]; ok {
			continue
		}
		s.destroy(ctx, id)
		res.Destroyed++
	}

	var errs []error
	for _, b := range bodies {
		if !b.IsTracked {
			continue
		}

		rep, ok := s.arena.get(b.TrackingID)
		if !ok {
			var err error
			rep, err = s.create(ctx, b.TrackingID)
			if err != nil {
				s.metrics.errors.Add(ctx, 1)
				errs = append(errs, err)
				res.Errors++
				continue
			}
			res.Created++
		}

		written, err := s.syncNodes(b, rep)
		if err != nil {
			s.metrics.errors.Add(ctx, 1)
			errs = append(errs, err)
			res.Errors++
			continue
		}
		s.metrics.synced.Add(ctx, 1)
		res.Synced++

		if s.deps.Recorder != nil {
			sample := &core.PoseSample{
				Frame:            s.frame,
				Time:             res.Time,
				TrackingID:       b.TrackingID,
				RepresentationID: rep.obj.ID(),
				Nodes:            written,
			}
			if err := s.deps.Recorder.RecordPose(sample); err != nil {
				s.logger.Warn("Failed to record pose", "trackingId", b.TrackingID, "error", err)
			}
		}
	}

	res.Duration = time.Since(start)
	return res, errors.Join(errs...)
}

// Tracked returns the tracking ids that currently own a representation.
func (s *Synchronizer) Tracked() []uint64 {
	return s.arena.ids()
}

// Representation returns the object owned for a tracking id.
func (s *Synchronizer) Representation(trackingID uint64) (scene.Object, bool) {
	rep, ok := s.arena.get(trackingID)
	if !ok {
		return nil, false
	}
	return rep.obj, true
}

// Frame returns the number of Update calls made so far.
func (s *Synchronizer) Frame() uint64 {
	return s.frame
}

// Close destroys every owned representation.
func (s *Synchronizer) Close(ctx context.Context) {
	for _, id := range s.arena.ids() {
		s.destroy(ctx, id)
	}
}

func (s *Synchronizer) create(ctx context.Context, trackingID uint64) (*representation, error) {
	obj, err := s.deps.Runtime.Instantiate(s.deps.Asset, scene.Origin, scene.Identity)
	if err != nil {
		return nil, fmt.Errorf("instantiating %q for tracking id %d: %w", s.deps.Asset, trackingID, err)
	}

	rep := &representation{
		trackingID:   trackingID,
		obj:          obj,
		createdFrame: s.frame,
	}
	s.arena.put(rep)
	s.metrics.liveCount.Store(int64(s.arena.len()))
	s.metrics.created.Add(ctx, 1, metric.WithAttributes(attribute.String("asset", s.deps.Asset)))

	s.logger.Debug("Created representation", "trackingId", trackingID, "object", obj.ID(), "frame", s.frame)
	s.recordLifecycle(trackingID, obj.ID(), core.LifecycleCreated)
	return rep, nil
}

// destroy forgets the representation and asks the runtime to tear it down.
// Ownership is released even if the runtime reports an error.
func (s *Synchronizer) destroy(ctx context.Context, trackingID uint64) {
	rep, ok := s.arena.remove(trackingID)
	if !ok {
		return
	}
	s.metrics.liveCount.Store(int64(s.arena.len()))
	s.metrics.destroyed.Add(ctx, 1, metric.WithAttributes(attribute.String("asset", s.deps.Asset)))

	if err := s.deps.Runtime.Destroy(rep.obj); err != nil {
		s.logger.Warn("Scene runtime failed to destroy representation", "trackingId", trackingID, "object", rep.obj.ID(), "error", err)
	}

	s.logger.Debug("Destroyed representation", "trackingId", trackingID, "object", rep.obj.ID(),
		"frame", s.frame, "lifetimeFrames", s.frame-rep.createdFrame)
	s.recordLifecycle(trackingID, rep.obj.ID(), core.LifecycleDestroyed)
}

func (s *Synchronizer) recordLifecycle(trackingID uint64, objID uuid.UUID, kind core.LifecycleKind) {
	if s.deps.Recorder == nil {
		return
	}
	e := &core.LifecycleEvent{
		Frame:            s.frame,
		Time:             s.deps.Now(),
		TrackingID:       trackingID,
		RepresentationID: objID,
		Kind:             kind,
	}
	if err := s.deps.Recorder.RecordLifecycle(e); err != nil {
		s.logger.Warn("Failed to record lifecycle event", "trackingId", trackingID, "kind", kind, "error", err)
	}
}

// syncNodes writes the scaled joint positions of b onto the nodes of rep and
// returns the positions written, keyed by node name.
func (s *Synchronizer) syncNodes(b core.Body, rep *representation) (map[string]core.Position3D, error) {
	index := make(map[string]scene.Node, len(nodeNames))
	for _, n := range s.deps.Runtime.Descendants(rep.obj) {
		name := n.Name()
		if !IsNodeName(name) {
			continue
		}
		if _, dup := index[name]; !dup {
			index[name] = n
		}
	}

	// Resolve every required node before writing so a mismatched asset is
	// never left half-posed.
	for j := FirstJoint; j <= LastJoint; j++ {
		for _, child := range topology[j] {
			for _, jt := range [2]core.JointType{j, child} {
				name := nodeNames[jt]
				if _, ok := index[name]; ok {
					continue
				}
				return nil, &NodeMissingError{
					TrackingID: b.TrackingID,
					Asset:      s.deps.Asset,
					Node:       name,
					Joint:      jt,
				}
			}
		}
	}

	written := make(map[string]core.Position3D, len(index))
	for j := FirstJoint; j <= LastJoint; j++ {
		for _, child := range topology[j] {
			for _, jt := range [2]core.JointType{j, child} {
				joint, ok := b.Joint(jt)
				if !ok {
					continue
				}
				name := nodeNames[jt]
				p := r3.Scale(PositionScale, joint.Position.Vec())
				index[name].SetWorldPosition(p)
				written[name] = core.PositionFromVec(p)
			}
		}
	}

	return written, nil
}
