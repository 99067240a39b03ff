package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/OCAP2/rigsync/internal/config"
	"github.com/OCAP2/rigsync/internal/frameloop"
	"github.com/OCAP2/rigsync/internal/logging"
	"github.com/OCAP2/rigsync/internal/rig"
	"github.com/OCAP2/rigsync/internal/source"
	"github.com/OCAP2/rigsync/internal/source/replay"
	"github.com/OCAP2/rigsync/internal/source/websocket"
	"github.com/OCAP2/rigsync/pkg/core"
)

var (
	flagURL    string
	flagRecord string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Drive rigs from a live sensor bridge",
	Long:  "Connects to a sensor bridge over WebSocket and synchronizes rigs at frameRate until interrupted.",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&flagURL, "url", "", "bridge WebSocket URL (default: source.websocket.url)")
	serveCmd.Flags().StringVar(&flagRecord, "record", "", "also write the frames seen to this session file for later replay")
	serveCmd.Flags().StringVar(&flagName, "name", "", "session name (default: live-<start time>)")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	url := config.GetSourceConfig().WebSocketURL
	if flagURL != "" {
		url = flagURL
	}

	src, err := websocket.New(websocket.Config{
		URL:            url,
		Logger:         a.Logger,
		DispatchLogger: logging.NewDispatcherLogger(a.Zerolog),
	})
	if err != nil {
		return err
	}
	if err := src.Connect(); err != nil {
		return fmt.Errorf("connecting to bridge: %w", err)
	}
	defer src.Close()

	name := flagName
	if name == "" {
		name = "live-" + a.Start.Format("20060102_150405")
	}

	opts := sessionOptions{
		Name:   name,
		Source: src,
		Label:  "websocket:" + url,
	}
	if flagRecord != "" {
		w, err := replay.Create(flagRecord)
		if err != nil {
			return err
		}
		defer func() {
			if err := w.Close(); err != nil {
				a.Logger.Error("Failed to close session file", "path", flagRecord, "error", err)
			}
			a.Logger.Info("Session file written", "path", flagRecord, "frames", w.Frames())
		}()
		opts.Observers = append(opts.Observers, recordFrames(w, src, a))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = runSession(ctx, a, opts)
	a.Logger.Info("Bridge stats", "framesReceived", src.FramesReceived(), "sensor", src.Sensor().Sensor)
	return err
}

// recordFrames returns an observer writing the snapshot each frame saw, so
// the file replays at the rate it was synchronized.
func recordFrames(w *replay.Writer, src source.Source, a *app) frameloop.Observer {
	return frameloop.ObserverFunc(func(_ context.Context, res rig.FrameResult) {
		if res.Skipped {
			return
		}
		bodies, ok := src.Bodies()
		if !ok {
			return
		}
		ts := res.Time
		if ts.IsZero() {
			ts = time.Now()
		}
		if err := w.Write(core.Frame{Number: res.Frame, Time: ts, Bodies: bodies}); err != nil {
			a.Logger.Warn("Failed to write session frame", "frame", res.Frame, "error", err)
		}
	})
}
