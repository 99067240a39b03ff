package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/rigsync/internal/source"
	"github.com/OCAP2/rigsync/pkg/core"
	"github.com/OCAP2/rigsync/pkg/streaming"
)

// Compile-time interface check.
var _ source.Source = (*Source)(nil)

// bridge is a fake sensor bridge. Every accepted connection is handed to the
// test through conns.
type bridge struct {
	srv   *httptest.Server
	conns chan *ws.Conn
}

func newBridge(t *testing.T) *bridge {
	t.Helper()
	b := &bridge{conns: make(chan *ws.Conn, 4)}

	upgrader := ws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		b.conns <- c
	}))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *bridge) url() string {
	return "ws" + strings.TrimPrefix(b.srv.URL, "http")
}

func (b *bridge) accept(t *testing.T) *ws.Conn {
	t.Helper()
	select {
	case c := <-b.conns:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no connection from source")
		return nil
	}
}

func send(t *testing.T, c *ws.Conn, msgType string, payload any) {
	t.Helper()
	data, err := streaming.Encode(msgType, payload)
	require.NoError(t, err)
	require.NoError(t, c.WriteMessage(ws.TextMessage, data))
}

func testFrame(n uint64, ids ...uint64) core.Frame {
	f := core.Frame{Number: n, Bodies: []core.Body{}}
	for _, id := range ids {
		f.Bodies = append(f.Bodies, core.Body{
			TrackingID: id,
			IsTracked:  true,
			Joints: map[core.JointType]core.Joint{
				core.JointSpineBase: {Type: core.JointSpineBase, Position: core.Position3D{Y: 0.9}},
			},
		})
	}
	return f
}

func newTestSource(t *testing.T, url string) *Source {
	t.Helper()
	s, err := New(Config{
		URL:            url,
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     20 * time.Millisecond,
		MaxReconnect:   5,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNew_RequiresURL(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestSource_UnavailableBeforeFirstFrame(t *testing.T) {
	b := newBridge(t)
	s := newTestSource(t, b.url())
	require.NoError(t, s.Connect())
	b.accept(t)

	bodies, ok := s.Bodies()
	assert.False(t, ok)
	assert.Nil(t, bodies)
	assert.True(t, s.Connected())
}

func TestSource_FrameAndSensorLost(t *testing.T) {
	b := newBridge(t)
	s := newTestSource(t, b.url())
	require.NoError(t, s.Connect())
	c := b.accept(t)

	send(t, c, streaming.TypeHello, streaming.HelloPayload{Sensor: "kinect-v2", Version: "1.2"})
	send(t, c, streaming.TypeFrame, streaming.FramePayload{Frame: testFrame(1, 42, 7)})

	require.Eventually(t, func() bool { return s.FramesReceived() == 1 }, 2*time.Second, 5*time.Millisecond)
	bodies, ok := s.Bodies()
	require.True(t, ok)
	require.Len(t, bodies, 2)
	assert.Equal(t, uint64(42), bodies[0].TrackingID)
	assert.Equal(t, "kinect-v2", s.Sensor().Sensor)

	send(t, c, streaming.TypeSensorLost, streaming.SensorLostPayload{Reason: "unplugged"})
	require.Eventually(t, func() bool {
		_, ok := s.Bodies()
		return !ok
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSource_EmptyFrameIsAvailable(t *testing.T) {
	b := newBridge(t)
	s := newTestSource(t, b.url())
	require.NoError(t, s.Connect())
	c := b.accept(t)

	send(t, c, streaming.TypeFrame, streaming.FramePayload{Frame: core.Frame{Number: 3}})
	require.Eventually(t, func() bool { return s.FramesReceived() == 1 }, 2*time.Second, 5*time.Millisecond)

	bodies, ok := s.Bodies()
	assert.True(t, ok)
	assert.NotNil(t, bodies)
	assert.Empty(t, bodies)
}

func TestSource_IgnoresGarbageAndUnknownTypes(t *testing.T) {
	b := newBridge(t)
	s := newTestSource(t, b.url())
	require.NoError(t, s.Connect())
	c := b.accept(t)

	require.NoError(t, c.WriteMessage(ws.TextMessage, []byte("not json")))
	send(t, c, "calibration", map[string]int{"step": 1})
	send(t, c, streaming.TypeFrame, streaming.FramePayload{Frame: testFrame(2, 5)})

	require.Eventually(t, func() bool { return s.FramesReceived() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, s.Connected())
}

func TestSource_ReconnectClearsSnapshot(t *testing.T) {
	b := newBridge(t)
	s := newTestSource(t, b.url())
	require.NoError(t, s.Connect())
	c := b.accept(t)

	send(t, c, streaming.TypeFrame, streaming.FramePayload{Frame: testFrame(1, 42)})
	require.Eventually(t, func() bool { return s.FramesReceived() == 1 }, 2*time.Second, 5*time.Millisecond)

	// Drop the connection from the bridge side.
	require.NoError(t, c.Close())
	require.Eventually(t, func() bool {
		_, ok := s.Bodies()
		return !ok
	}, 2*time.Second, 5*time.Millisecond)

	c2 := b.accept(t)
	require.Eventually(t, s.Connected, 2*time.Second, 5*time.Millisecond)
	send(t, c2, streaming.TypeFrame, streaming.FramePayload{Frame: testFrame(2, 42)})
	require.Eventually(t, func() bool {
		_, ok := s.Bodies()
		return ok
	}, 2*time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, s.dials.Load(), int64(2))
}

func TestSource_CloseIsIdempotent(t *testing.T) {
	b := newBridge(t)
	s := newTestSource(t, b.url())
	require.NoError(t, s.Connect())
	b.accept(t)

	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
	assert.False(t, s.Connected())
	assert.Error(t, s.Connect())
}

func TestSource_ConnectFails(t *testing.T) {
	s := newTestSource(t, "ws://127.0.0.1:1/bodies")
	assert.Error(t, s.Connect())
}
