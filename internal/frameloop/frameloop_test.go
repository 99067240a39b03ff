package frameloop

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/rigsync/internal/rig"
	"github.com/OCAP2/rigsync/pkg/core"
)

type fakeSync struct {
	mu    sync.Mutex
	calls int
	err   func(frame int) error
}

func (f *fakeSync) Update(context.Context) (rig.FrameResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	res := rig.FrameResult{Frame: uint64(f.calls), Tracked: 1}
	if f.err != nil {
		return res, f.err(f.calls)
	}
	return res, nil
}

func (f *fakeSync) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testLogger() (*slog.Logger, *syncBuffer) {
	buf := &syncBuffer{}
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})), buf
}

func TestInterval(t *testing.T) {
	assert.Equal(t, time.Second/30, (&Loop{}).Interval())
	assert.Equal(t, 100*time.Millisecond, (&Loop{Rate: 10}).Interval())
}

func TestRunFrames_CallsObserversInOrder(t *testing.T) {
	fs := &fakeSync{}
	var got []string
	l := &Loop{
		Sync: fs,
		Observers: []Observer{
			ObserverFunc(func(_ context.Context, res rig.FrameResult) { got = append(got, "a") }),
			ObserverFunc(func(_ context.Context, res rig.FrameResult) { got = append(got, "b") }),
		},
	}

	require.NoError(t, l.RunFrames(context.Background(), 3))
	assert.Equal(t, 3, fs.count())
	assert.Equal(t, []string{"a", "b", "a", "b", "a", "b"}, got)

	frames, failed := l.Stats()
	assert.Equal(t, uint64(3), frames)
	assert.Zero(t, failed)
}

func TestRunFrames_RequiresSync(t *testing.T) {
	assert.Error(t, (&Loop{}).RunFrames(context.Background(), 1))
	assert.Error(t, (&Loop{}).Run(context.Background()))
}

func TestRunFrames_StopsEarly(t *testing.T) {
	fs := &fakeSync{}
	stop := make(chan struct{})
	l := &Loop{Sync: fs, Stop: stop}
	l.Observers = []Observer{ObserverFunc(func(_ context.Context, res rig.FrameResult) {
		if res.Frame == 2 {
			close(stop)
		}
	})}

	require.NoError(t, l.RunFrames(context.Background(), 10))
	assert.Equal(t, 2, fs.count())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, (&Loop{Sync: fs}).RunFrames(ctx, 1), context.Canceled)
}

func TestRun_TicksUntilCancelled(t *testing.T) {
	fs := &fakeSync{}
	l := &Loop{Sync: fs, Rate: 500}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	require.Eventually(t, func() bool { return fs.count() >= 3 }, 2*time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_StopChannel(t *testing.T) {
	stop := make(chan struct{})
	close(stop)
	l := &Loop{Sync: &fakeSync{}, Rate: 1, Stop: stop}
	assert.NoError(t, l.Run(context.Background()))
}

func TestStep_MissingNodeLoggedOncePerBodyAndNode(t *testing.T) {
	missing := func(id uint64, node string) error {
		return &rig.NodeMissingError{TrackingID: id, Asset: "humanoid", Node: node, Joint: core.JointSpineShoulder}
	}
	fs := &fakeSync{err: func(frame int) error {
		errs := []error{missing(1, "B-upperChest"), missing(2, "B-upperChest")}
		if frame == 3 {
			errs = append(errs, errors.New("instantiate exploded"))
		}
		return errors.Join(errs...)
	}}
	logger, buf := testLogger()
	l := &Loop{Sync: fs, Logger: logger}

	require.NoError(t, l.RunFrames(context.Background(), 4))

	out := buf.String()
	assert.Equal(t, 2, strings.Count(out, `no node \"B-upperChest\"`))
	assert.Equal(t, 1, strings.Count(out, "instantiate exploded"))

	frames, failed := l.Stats()
	assert.Equal(t, uint64(4), frames)
	assert.Equal(t, uint64(4), failed)
}

// trackingSync reports a missing node for every tracked id.
type trackingSync struct {
	tracked []uint64
}

func (s *trackingSync) Update(context.Context) (rig.FrameResult, error) {
	var errs []error
	for _, id := range s.tracked {
		errs = append(errs, &rig.NodeMissingError{TrackingID: id, Asset: "humanoid", Node: "B-hand_L", Joint: core.JointHandLeft})
	}
	return rig.FrameResult{Tracked: len(s.tracked)}, errors.Join(errs...)
}

func (s *trackingSync) Tracked() []uint64 {
	return s.tracked
}

func TestStep_ForgetsReportedNodesOfUntrackedBodies(t *testing.T) {
	ts := &trackingSync{}
	logger, buf := testLogger()
	l := &Loop{Sync: ts, Logger: logger}
	ctx := context.Background()

	for id := uint64(1); id <= 100; id++ {
		ts.tracked = []uint64{id}
		l.Step(ctx)
		l.Step(ctx)
	}
	assert.Equal(t, 100, strings.Count(buf.String(), "Frame sync failed"))

	l.mu.Lock()
	assert.Len(t, l.reported, 1)
	l.mu.Unlock()

	ts.tracked = nil
	l.Step(ctx)
	l.mu.Lock()
	assert.Empty(t, l.reported)
	l.mu.Unlock()

	// a body that comes back is reported again
	ts.tracked = []uint64{1}
	l.Step(ctx)
	assert.Equal(t, 101, strings.Count(buf.String(), "Frame sync failed"))
}

func TestStep_ReportedNodesAreBounded(t *testing.T) {
	fs := &fakeSync{err: func(frame int) error {
		return &rig.NodeMissingError{TrackingID: uint64(frame), Asset: "humanoid", Node: "B-hips", Joint: core.JointSpineBase}
	}}
	l := &Loop{Sync: fs, Logger: slog.New(slog.NewTextHandler(&syncBuffer{}, nil))}

	require.NoError(t, l.RunFrames(context.Background(), maxReported+10))

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.LessOrEqual(t, len(l.reported), maxReported)
}

func TestFlatten(t *testing.T) {
	a, b, c := errors.New("a"), errors.New("b"), errors.New("c")
	assert.Nil(t, flatten(nil))
	assert.Equal(t, []error{a}, flatten(a))
	assert.Equal(t, []error{a, b, c}, flatten(errors.Join(a, errors.Join(b, c))))
}
