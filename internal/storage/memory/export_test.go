// internal/storage/memory/export_test.go
package memory

import (
	"compress/gzip"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/rigsync/internal/config"
	"github.com/OCAP2/rigsync/pkg/core"
)

func recordSession(t *testing.T, b *Backend) uuid.UUID {
	t.Helper()
	start := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	require.NoError(t, b.StartSession(&core.Session{
		Name:      "Studio Take: 3",
		Asset:     "humanoid",
		Source:    "replay",
		StartTime: start,
	}))

	rep := uuid.New()
	require.NoError(t, b.RecordLifecycle(&core.LifecycleEvent{Frame: 1, TrackingID: 42, RepresentationID: rep, Kind: core.LifecycleCreated}))
	for f := uint64(1); f <= 3; f++ {
		require.NoError(t, b.RecordPose(&core.PoseSample{
			Frame:            f,
			TrackingID:       42,
			RepresentationID: rep,
			Nodes: map[string]core.Position3D{
				"spine": {Y: 10},
				"hips":  {Y: 9, Z: float64(f)},
			},
		}))
		perf := core.FramePerformance{
			Frame:    f,
			Time:     start.Add(time.Duration(f) * time.Second / 30),
			Tracked:  1,
			Duration: time.Duration(f) * time.Millisecond,
		}
		if f == 1 {
			perf.Created = 1
		}
		if f == 2 {
			perf.Errors = 1
		}
		require.NoError(t, b.RecordPerformance(&perf))
	}
	require.NoError(t, b.RecordLifecycle(&core.LifecycleEvent{Frame: 4, TrackingID: 42, RepresentationID: rep, Kind: core.LifecycleDestroyed}))
	return rep
}

func TestBuildExport(t *testing.T) {
	b := New(config.MemoryConfig{})
	rep := recordSession(t, b)

	export := b.buildExport()
	assert.Equal(t, ExportVersion, export.Version)
	assert.Equal(t, "Studio Take: 3", export.SessionName)
	assert.Equal(t, "humanoid", export.Asset)
	assert.Equal(t, uint64(4), export.EndFrame)

	require.Len(t, export.Bodies, 1)
	body := export.Bodies[0]
	assert.Equal(t, uint64(42), body.TrackingID)
	require.Len(t, body.Representations, 1)

	r := body.Representations[0]
	assert.Equal(t, rep.String(), r.ID)
	assert.Equal(t, uint64(1), r.StartFrame)
	assert.Equal(t, uint64(4), r.EndFrame)
	assert.Equal(t, []string{"hips", "spine"}, r.Nodes)
	require.Len(t, r.Poses, 3)
	assert.Equal(t, uint64(2), r.Poses[1][0])
	assert.Equal(t, [3]float64{0, 9, 2}, r.Poses[1][1].(map[string][3]float64)["hips"])

	perf := export.Performance
	assert.Equal(t, 3, perf.Frames)
	assert.Equal(t, 1, perf.ErrorFrames)
	assert.Equal(t, 1, perf.MaxTracked)
	assert.Equal(t, 1, perf.Created)
	assert.InDelta(t, 2.0, perf.AvgSyncMs, 1e-9)
	assert.InDelta(t, 3.0, perf.MaxSyncMs, 1e-9)
}

func TestEndSession_WritesGzip(t *testing.T) {
	dir := t.TempDir()
	b := New(config.MemoryConfig{OutputDir: dir, CompressOutput: true})
	recordSession(t, b)

	require.NoError(t, b.EndSession())

	path := b.GetExportedFilePath()
	assert.Equal(t, filepath.Join(dir, "Studio_Take__3_20240115_103000.json.gz"), path)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	defer gz.Close()

	var export SessionExport
	require.NoError(t, json.NewDecoder(gz).Decode(&export))
	assert.Equal(t, "Studio Take: 3", export.SessionName)
	require.Len(t, export.Bodies, 1)
	assert.Len(t, export.Bodies[0].Representations[0].Poses, 3)
}

func TestEndSession_WritesPlainJSON(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "out")
	b := New(config.MemoryConfig{OutputDir: dir, CompressOutput: false})
	recordSession(t, b)

	require.NoError(t, b.EndSession())

	data, err := os.ReadFile(filepath.Join(dir, "Studio_Take__3_20240115_103000.json"))
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, float64(1), raw["version"])
	assert.Contains(t, raw, "performance")
}

func TestExport_EmptySession(t *testing.T) {
	b := New(config.MemoryConfig{OutputDir: t.TempDir()})
	require.NoError(t, b.StartSession(&core.Session{Name: "empty"}))

	export := b.buildExport()
	assert.NotNil(t, export.Bodies)
	assert.Empty(t, export.Bodies)
	assert.Zero(t, export.Performance.AvgSyncMs)
	require.NoError(t, b.EndSession())
}
