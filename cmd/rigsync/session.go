package main

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/OCAP2/rigsync/internal/api"
	"github.com/OCAP2/rigsync/internal/config"
	"github.com/OCAP2/rigsync/internal/frameloop"
	"github.com/OCAP2/rigsync/internal/influx"
	"github.com/OCAP2/rigsync/internal/logging"
	"github.com/OCAP2/rigsync/internal/monitor"
	"github.com/OCAP2/rigsync/internal/rig"
	"github.com/OCAP2/rigsync/internal/scene/memory"
	"github.com/OCAP2/rigsync/internal/source"
	"github.com/OCAP2/rigsync/internal/storage"
	"github.com/OCAP2/rigsync/pkg/core"
)

// sessionOptions describes one synchronizer run.
type sessionOptions struct {
	Name   string
	Source source.Source
	Label  string // source description stored with the session

	Stop   <-chan struct{} // closed when the source has nothing more to give
	Frames int             // run this many frames without sleeping; 0 runs at frameRate

	// Extra observers, called after the built-in ones.
	Observers []frameloop.Observer
}

// queuedBackend is implemented by backends that write in the background.
type queuedBackend interface {
	Pending() int
	GetLastDBWriteDuration() time.Duration
}

// loadAsset returns the prefab instantiated per tracked body: the configured
// JSON prefab, or a humanoid carrying every node the synchronizer writes.
func loadAsset(cfg config.AssetConfig) (memory.Prefab, error) {
	if cfg.PrefabPath != "" {
		return memory.LoadPrefab(cfg.PrefabPath)
	}
	root, children := rig.Hierarchy()
	p := memory.PrefabFromHierarchy(cfg.Name, root, children)
	return p, p.Validate()
}

// runSession wires scene graph, storage, metrics and the frame loop around
// one synchronizer and runs it until ctx is cancelled or opts.Stop closes.
func runSession(ctx context.Context, a *app, opts sessionOptions) error {
	prefab, err := loadAsset(config.GetAssetConfig())
	if err != nil {
		return fmt.Errorf("loading asset: %w", err)
	}
	graph := memory.NewGraph()
	if err := graph.Register(prefab); err != nil {
		return err
	}

	var live atomic.Int64
	a.withContext(logging.SessionContext(opts.Name, live.Load))
	logger := a.Logger

	backend, err := createStorageBackend(config.GetStorageConfig(), logger, a.Zerolog)
	if err != nil {
		return err
	}
	if backend != nil {
		if err := backend.Init(); err != nil {
			return fmt.Errorf("failed to initialize storage backend: %w", err)
		}
		defer func() {
			if err := backend.Close(); err != nil {
				logger.Error("Failed to close storage backend", "error", err)
			}
		}()

		sess := &core.Session{
			Name:      opts.Name,
			Asset:     prefab.Name,
			Source:    opts.Label,
			StartTime: time.Now(),
		}
		if err := backend.StartSession(sess); err != nil {
			return fmt.Errorf("failed to start session: %w", err)
		}
		logger.Info("Session started", "sessionId", sess.ID, "asset", prefab.Name, "source", opts.Label)
	}

	deps := rig.Dependencies{
		Source:        opts.Source,
		Runtime:       graph,
		Asset:         prefab.Name,
		Logger:        logger,
		MeterProvider: a.OTelProvider.MeterProvider(),
	}
	if backend != nil {
		deps.Recorder = backend
	}
	syncer, err := rig.New(deps)
	if err != nil {
		return err
	}

	observers := []frameloop.Observer{
		frameloop.ObserverFunc(func(_ context.Context, _ rig.FrameResult) {
			live.Store(int64(len(syncer.Tracked())))
		}),
	}
	if backend != nil {
		observers = append(observers, frameloop.ObserverFunc(func(_ context.Context, res rig.FrameResult) {
			if res.Skipped {
				return
			}
			perf := res.Performance()
			if err := backend.RecordPerformance(&perf); err != nil {
				logger.Warn("Failed to record frame performance", "frame", res.Frame, "error", err)
			}
		}))
	}
	if im := connectInflux(ctx, a, opts.Name); im != nil {
		defer func() {
			if err := im.Close(); err != nil {
				logger.Warn("Failed to close InfluxDB writer", "error", err)
			}
		}()
		observers = append(observers, im)
	}
	observers = append(observers, opts.Observers...)

	loop := &frameloop.Loop{
		Sync:      syncer,
		Rate:      config.GetFloat64("frameRate"),
		Observers: observers,
		Logger:    logger,
		Stop:      opts.Stop,
	}

	if logsDir := config.GetString("logsDir"); logsDir != "" {
		mon := monitor.NewService(monitor.Dependencies{
			Path:   filepath.Join(logsDir, "status.json"),
			Logger: logger,
			Status: func() monitor.Status {
				frames, failed := loop.Stats()
				st := monitor.Status{
					Session:      opts.Name,
					Frames:       frames,
					FailedFrames: failed,
					Live:         live.Load(),
				}
				if q, ok := backend.(queuedBackend); ok {
					st.Pending = q.Pending()
					st.LastWriteMs = float32(q.GetLastDBWriteDuration().Seconds() * 1000)
				}
				return st
			},
		})
		if err := mon.Start(); err != nil {
			logger.Warn("Status monitor not started", "error", err)
		}
		defer mon.Stop()
	}

	logger.Info("Frame loop starting", "rate", loop.Rate, "frames", opts.Frames)
	if opts.Frames > 0 {
		err = loop.RunFrames(ctx, opts.Frames)
	} else {
		err = loop.Run(ctx)
	}
	if err != nil && ctx.Err() == nil {
		return err
	}

	// Shut down with a fresh context; ctx is usually cancelled by now.
	syncer.Close(context.Background())
	live.Store(0)

	frames, failed := loop.Stats()
	logger.Info("Session finished", "frames", frames, "failedFrames", failed)

	if backend == nil {
		return nil
	}
	if err := backend.EndSession(); err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	if ex, ok := backend.(interface{ GetExportedFilePath() string }); ok && ex.GetExportedFilePath() != "" {
		logger.Info("Session file", "path", ex.GetExportedFilePath())
	}
	if up, ok := backend.(storage.Uploadable); ok {
		uploadExport(a, up)
	}
	return nil
}

// connectInflux returns a performance writer, or nil when InfluxDB is
// disabled or cannot be set up.
func connectInflux(ctx context.Context, a *app, session string) *influx.Manager {
	if !config.GetBool("influx.enabled") {
		return nil
	}
	backup := filepath.Join(config.GetString("logsDir"), fmt.Sprintf("influx_backup_%s.lp.gz", a.Start.Format("20060102_150405")))
	m := influx.NewManager(a.Zerolog, backup)
	m.Session = session
	if err := m.Connect(ctx); err != nil {
		a.Logger.Warn("InfluxDB writer unavailable", "error", err)
		return nil
	}
	return m
}

// uploadExport sends the exported session file to the recordings server.
// Failures are logged only; the export stays on disk.
func uploadExport(a *app, up storage.Uploadable) {
	path := up.GetExportedFilePath()
	apiCfg := config.GetAPIConfig()
	if path == "" || !apiCfg.Enabled {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	client := api.New(apiCfg.ServerURL, apiCfg.APIKey)
	if err := client.Healthcheck(ctx); err != nil {
		a.Logger.Warn("Recordings server unreachable, skipping upload", "url", apiCfg.ServerURL, "error", err)
		return
	}
	if err := client.Upload(ctx, path, up.GetExportMetadata()); err != nil {
		a.Logger.Error("Failed to upload session", "path", path, "error", err)
		return
	}
	a.Logger.Info("Session uploaded", "url", apiCfg.ServerURL)
}
