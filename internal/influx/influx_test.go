package influx

import (
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/rigsync/internal/frameloop"
	"github.com/OCAP2/rigsync/internal/rig"
)

var _ frameloop.Observer = (*Manager)(nil)

func readBackup(t *testing.T, path string) string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	zr, err := gzip.NewReader(f)
	require.NoError(t, err)
	data, err := io.ReadAll(zr)
	require.NoError(t, err)
	return string(data)
}

func TestConnect_Disabled(t *testing.T) {
	viper.Reset()
	viper.Set("influx.enabled", false)

	m := NewManager(zerolog.Nop(), filepath.Join(t.TempDir(), "backup.gz"))
	assert.Error(t, m.Connect(context.Background()))
	assert.False(t, m.IsValid)
}

func TestConnect_UnreachableFallsBackToBackup(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set("influx.enabled", true)
	viper.Set("influx.protocol", "http")
	viper.Set("influx.host", "127.0.0.1")
	viper.Set("influx.port", "1")

	backup := filepath.Join(t.TempDir(), "backup.gz")
	m := NewManager(zerolog.Nop(), backup)
	m.Session = "take-1"
	require.NoError(t, m.Connect(context.Background()))
	assert.False(t, m.IsValid)
	require.NotNil(t, m.BackupWriter)

	ts := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	m.ObserveFrame(context.Background(), rig.FrameResult{
		Frame: 7, Time: ts, Bodies: 2, Tracked: 1, Created: 1, Duration: 3 * time.Millisecond,
	})
	m.ObserveFrame(context.Background(), rig.FrameResult{Frame: 8, Skipped: true})
	require.NoError(t, m.Close())

	lines := strings.Split(strings.TrimSpace(readBackup(t, backup)), "\n")
	require.Len(t, lines, 1)
	assert.True(t, strings.HasPrefix(lines[0], "rig_performance,session=take-1 "), lines[0])
	assert.Contains(t, lines[0], "bodies=2i")
	assert.Contains(t, lines[0], "sync_ms=3")
	assert.True(t, strings.HasSuffix(lines[0], " 1705314600000000000"), lines[0])
}

func TestWritePoint_NoBackend(t *testing.T) {
	m := NewManager(zerolog.Nop(), "")
	err := m.WritePoint(PerformanceBucket, m.PerformancePoint(rig.FrameResult{Frame: 1}))
	assert.Error(t, err)
	assert.NoError(t, m.Close())
}

func TestPerformancePoint_Fields(t *testing.T) {
	m := NewManager(zerolog.Nop(), "")
	m.Session = "s"
	p := m.PerformancePoint(rig.FrameResult{Frame: 3, Destroyed: 2, Errors: 1})

	assert.Equal(t, PerformanceMeasurement, p.Name())
	fields := map[string]any{}
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	assert.Equal(t, int64(2), fields["destroyed"])
	assert.Equal(t, int64(1), fields["errors"])
	assert.Equal(t, uint64(3), fields["frame"])
	assert.False(t, p.Time().IsZero())
}
