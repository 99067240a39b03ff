package monitor

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readStatus(t *testing.T, path string) Status {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var st Status
	require.NoError(t, json.Unmarshal(data, &st))
	return st
}

func TestWriteStatus(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")
	s := NewService(Dependencies{
		Path:   path,
		Status: func() Status { return Status{Session: "take", Frames: 12, Live: 2} },
	})

	require.NoError(t, s.WriteStatus())
	st := readStatus(t, path)
	assert.Equal(t, "take", st.Session)
	assert.Equal(t, uint64(12), st.Frames)
	assert.Equal(t, int64(2), st.Live)
	assert.False(t, st.Time.IsZero())

	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestStartStop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")
	var frames atomic.Uint64
	s := NewService(Dependencies{
		Path:     path,
		Interval: 5 * time.Millisecond,
		Status:   func() Status { return Status{Frames: frames.Add(1)} },
	})

	require.NoError(t, s.Start())
	require.NoError(t, s.Start())
	assert.True(t, s.IsRunning())

	assert.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, time.Second, 5*time.Millisecond)

	s.Stop()
	assert.False(t, s.IsRunning())
	final := readStatus(t, path).Frames
	assert.Equal(t, frames.Load(), final)

	s.Stop()
}

func TestStart_RequiresStatusFunc(t *testing.T) {
	s := NewService(Dependencies{Path: filepath.Join(t.TempDir(), "status.json")})
	assert.Error(t, s.Start())
	assert.False(t, s.IsRunning())
}
