package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/rigsync/internal/config"
	"github.com/OCAP2/rigsync/internal/frameloop"
	"github.com/OCAP2/rigsync/internal/logging"
	intOtel "github.com/OCAP2/rigsync/internal/otel"
	"github.com/OCAP2/rigsync/internal/rig"
	"github.com/OCAP2/rigsync/internal/scene/memory"
	"github.com/OCAP2/rigsync/internal/source"
	"github.com/OCAP2/rigsync/internal/source/replay"
	"github.com/OCAP2/rigsync/internal/storage"
	memstorage "github.com/OCAP2/rigsync/internal/storage/memory"
	sqlitestorage "github.com/OCAP2/rigsync/internal/storage/sqlite"
	"github.com/OCAP2/rigsync/pkg/core"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// loadDefaults resets viper to the default configuration.
func loadDefaults(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	require.ErrorIs(t, config.Load(t.TempDir()), config.ErrNotFound)
	viper.Set("logsDir", t.TempDir())
}

func newTestApp(t *testing.T) *app {
	t.Helper()
	provider, err := intOtel.New(intOtel.Config{})
	require.NoError(t, err)

	m := logging.NewSlogManager()
	m.Setup(io.Discard, "error", nil)
	return &app{
		Start:        time.Now(),
		SlogManager:  m,
		Logger:       m.Logger(),
		Zerolog:      zerolog.Nop(),
		OTelProvider: provider,
	}
}

func TestCreateStorageBackend(t *testing.T) {
	loadDefaults(t)

	b, err := createStorageBackend(config.StorageConfig{Type: "none"}, discard, zerolog.Nop())
	require.NoError(t, err)
	assert.Nil(t, b)

	b, err = createStorageBackend(config.StorageConfig{Type: "memory"}, discard, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &memstorage.Backend{}, b)
	_, uploadable := b.(storage.Uploadable)
	assert.True(t, uploadable)

	b, err = createStorageBackend(config.StorageConfig{Type: "sqlite"}, discard, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &sqlitestorage.Backend{}, b)

	_, err = createStorageBackend(config.StorageConfig{Type: "cassandra"}, discard, zerolog.Nop())
	assert.ErrorContains(t, err, "cassandra")
}

func TestSessionNameFromPath(t *testing.T) {
	assert.Equal(t, "take3", sessionNameFromPath("/data/take3.jsonl.gz"))
	assert.Equal(t, "take3", sessionNameFromPath("take3.json"))
	assert.Equal(t, "take3", sessionNameFromPath("take3"))
}

func TestPrintTables(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printTables(&buf))

	out := buf.String()
	assert.Contains(t, out, "SpineBase -> SpineMid: B-hips -> B-spine\n")
	assert.Contains(t, out, "HandLeft -> ThumbLeft: B-hand_L -> B-thumb_03_L\n")
	for _, n := range rig.NodeNames() {
		assert.Contains(t, out, "\n"+n+"\n")
	}
	assert.Equal(t, len(rig.Segments())+len(rig.NodeNames())+2, strings.Count(out, "\n"))
}

func TestLoadAsset_DefaultHumanoidCarriesEveryNode(t *testing.T) {
	p, err := loadAsset(config.AssetConfig{Name: "humanoid"})
	require.NoError(t, err)
	assert.Equal(t, "humanoid", p.Name)
	assert.ElementsMatch(t, rig.NodeNames(), p.NodeNames())
}

func TestLoadAsset_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "humanoid.json")
	require.NoError(t, writeDefaultPrefab(path))

	p, err := loadAsset(config.AssetConfig{Name: "ignored", PrefabPath: path})
	require.NoError(t, err)
	assert.Equal(t, "humanoid", p.Name)

	_, err = memory.LoadPrefab(path)
	assert.NoError(t, err)
}

func writeRecording(t *testing.T, path string, frames int) {
	t.Helper()
	w, err := replay.Create(path)
	require.NoError(t, err)

	joints := map[core.JointType]core.Joint{}
	for _, j := range core.AllJoints() {
		joints[j] = core.Joint{Type: j, Position: core.Position3D{X: 0.1, Y: float64(j) / 10}}
	}
	start := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	for i := 0; i < frames; i++ {
		bodies := []core.Body{{TrackingID: 42, IsTracked: true, Joints: joints}}
		if i >= frames/2 {
			bodies = append(bodies, core.Body{TrackingID: 7, IsTracked: true, Joints: joints})
		}
		require.NoError(t, w.Write(core.Frame{
			Number: uint64(i + 1),
			Time:   start.Add(time.Duration(i) * 33 * time.Millisecond),
			Bodies: bodies,
		}))
	}
	require.NoError(t, w.Close())
}

func TestRunSession_ReplayToMemoryExport(t *testing.T) {
	loadDefaults(t)
	out := t.TempDir()
	viper.Set("storage.memory.outputDir", out)

	rec := filepath.Join(t.TempDir(), "take.jsonl.gz")
	writeRecording(t, rec, 10)

	src, err := replay.Open(rec, replay.Options{Logger: discard})
	require.NoError(t, err)
	defer src.Close()

	a := newTestApp(t)
	err = runSession(context.Background(), a, sessionOptions{
		Name:   "take",
		Source: src,
		Label:  "replay:" + rec,
		Stop:   src.Done(),
		Frames: math.MaxInt,
	})
	require.NoError(t, err)
	assert.NoError(t, src.Err())
	assert.Equal(t, uint64(10), src.Played())

	files, err := filepath.Glob(filepath.Join(out, "take_*.json.gz"))
	require.NoError(t, err)
	require.Len(t, files, 1)
	info, err := os.Stat(files[0])
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	data, err := os.ReadFile(filepath.Join(config.GetString("logsDir"), "status.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"frames": 11`)
	assert.Contains(t, string(data), `"live": 0`)
}

func TestRunSession_RecordFramesObserver(t *testing.T) {
	loadDefaults(t)
	viper.Set("storage.type", "none")

	bodies := []core.Body{{TrackingID: 42, IsTracked: true}}
	src := source.Func(func() ([]core.Body, bool) { return bodies, true })

	outPath := filepath.Join(t.TempDir(), "out.jsonl")
	w, err := replay.Create(outPath)
	require.NoError(t, err)

	a := newTestApp(t)
	err = runSession(context.Background(), a, sessionOptions{
		Name:      "rec",
		Source:    src,
		Frames:    3,
		Observers: []frameloop.Observer{recordFrames(w, src, a)},
	})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	assert.Equal(t, uint64(3), w.Frames())

	src2, err := replay.Open(outPath, replay.Options{Logger: discard})
	require.NoError(t, err)
	defer src2.Close()
	f, err := src2.Next()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), f.Number)
	assert.Equal(t, bodies[0].TrackingID, f.Bodies[0].TrackingID)
}
