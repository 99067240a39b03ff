// Package frameloop drives the rig synchronizer once per frame.
package frameloop

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/OCAP2/rigsync/internal/rig"
)

// DefaultRate is the sensor frame rate in Hz.
const DefaultRate = 30

// maxReported bounds the remembered (tracking id, node) pairs when the
// synchronizer cannot tell which ids are still tracked.
const maxReported = 4096

// Updater runs one synchronization frame.
type Updater interface {
	Update(ctx context.Context) (rig.FrameResult, error)
}

// trackedLister is implemented by synchronizers that expose the tracking ids
// currently owning a representation.
type trackedLister interface {
	Tracked() []uint64
}

// Observer receives the result of every frame.
type Observer interface {
	ObserveFrame(ctx context.Context, res rig.FrameResult)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, res rig.FrameResult)

// ObserveFrame calls f.
func (f ObserverFunc) ObserveFrame(ctx context.Context, res rig.FrameResult) {
	f(ctx, res)
}

// Loop calls Sync.Update at Rate frames per second.
type Loop struct {
	Sync      Updater
	Rate      float64    // frames per second, DefaultRate when zero
	Observers []Observer // called in order after each frame
	Logger    *slog.Logger

	// Stop ends Run when closed, e.g. at the end of a replay.
	Stop <-chan struct{}

	mu       sync.Mutex
	reported map[nodeKey]struct{}
	frames   uint64
	failed   uint64
}

type nodeKey struct {
	trackingID uint64
	node       string
}

// Interval returns the tick period derived from Rate.
func (l *Loop) Interval() time.Duration {
	rate := l.Rate
	if rate <= 0 {
		rate = DefaultRate
	}
	return time.Duration(float64(time.Second) / rate)
}

// Run ticks until ctx is cancelled or Stop is closed. Frame errors are
// logged and never end the loop.
func (l *Loop) Run(ctx context.Context) error {
	if l.Sync == nil {
		return errors.New("frameloop: no synchronizer")
	}

	interval := l.Interval()
	l.logger().Info("Frame loop started", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logStopped("context done")
			return nil
		case <-l.Stop:
			l.logStopped("stop requested")
			return nil
		case <-ticker.C:
			l.Step(ctx)
		}
	}
}

// RunFrames runs n frames back to back without waiting between them.
func (l *Loop) RunFrames(ctx context.Context, n int) error {
	if l.Sync == nil {
		return errors.New("frameloop: no synchronizer")
	}
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		select {
		case <-l.Stop:
			return nil
		default:
		}
		l.Step(ctx)
	}
	return nil
}

// Step runs a single frame and notifies the observers.
func (l *Loop) Step(ctx context.Context) rig.FrameResult {
	res, err := l.Sync.Update(ctx)

	l.mu.Lock()
	l.frames++
	if err != nil {
		l.failed++
	}
	l.mu.Unlock()

	l.forgetUntracked()

	if err != nil {
		l.report(res, err)
	}
	for _, o := range l.Observers {
		o.ObserveFrame(ctx, res)
	}
	return res
}

// report logs frame errors. A missing node is logged once per tracking id
// and node since it repeats every frame until the asset changes.
func (l *Loop) report(res rig.FrameResult, err error) {
	for _, e := range flatten(err) {
		var missing *rig.NodeMissingError
		if errors.As(e, &missing) {
			key := nodeKey{trackingID: missing.TrackingID, node: missing.Node}
			l.mu.Lock()
			if l.reported == nil || len(l.reported) >= maxReported {
				l.reported = make(map[nodeKey]struct{})
			}
			_, seen := l.reported[key]
			l.reported[key] = struct{}{}
			l.mu.Unlock()
			if seen {
				continue
			}
		}
		l.logger().Error("Frame sync failed", "frame", res.Frame, "error", e)
	}
}

// forgetUntracked drops the reported pairs of ids that left the tracked set,
// so a body that returns later is reported again.
func (l *Loop) forgetUntracked() {
	lister, ok := l.Sync.(trackedLister)
	if !ok {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.reported) == 0 {
		return
	}

	live := make(map[uint64]struct{})
	for _, id := range lister.Tracked() {
		live[id] = struct{}{}
	}
	for key := range l.reported {
		if _, ok := live[key.trackingID]; !ok {
			delete(l.reported, key)
		}
	}
}

// Stats returns the number of frames run and how many of them reported errors.
func (l *Loop) Stats() (frames, failed uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.frames, l.failed
}

func (l *Loop) logStopped(reason string) {
	frames, failed := l.Stats()
	l.logger().Info("Frame loop stopped", "reason", reason, "frames", frames, "failedFrames", failed)
}

func (l *Loop) logger() *slog.Logger {
	if l.Logger == nil {
		return slog.Default()
	}
	return l.Logger
}

// flatten unpacks errors joined with errors.Join.
func flatten(err error) []error {
	if err == nil {
		return nil
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []error
		for _, e := range joined.Unwrap() {
			out = append(out, flatten(e)...)
		}
		return out
	}
	return []error{err}
}

