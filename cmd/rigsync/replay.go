package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/OCAP2/rigsync/internal/config"
	"github.com/OCAP2/rigsync/internal/source/replay"
)

var (
	flagLoop   bool
	flagFast   bool
	flagFrames int
	flagName   string
)

var replayCmd = &cobra.Command{
	Use:   "replay [file]",
	Short: "Drive rigs from a recorded session file",
	Long:  "Plays a JSON-lines session file (optionally gzipped) one frame per tick. The file defaults to source.replay.path from the config.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runReplay,
}

func init() {
	replayCmd.Flags().BoolVar(&flagLoop, "loop", false, "rewind at the end instead of stopping (default: source.replay.loop)")
	replayCmd.Flags().BoolVar(&flagFast, "fast", false, "run frames back to back instead of at frameRate")
	replayCmd.Flags().IntVar(&flagFrames, "frames", 0, "stop after this many frames (implies --fast)")
	replayCmd.Flags().StringVar(&flagName, "name", "", "session name (default: file name)")
}

func runReplay(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	srcCfg := config.GetSourceConfig()
	path := srcCfg.ReplayPath
	if len(args) > 0 {
		path = args[0]
	}
	if path == "" {
		return fmt.Errorf("no session file given and source.replay.path is empty")
	}
	loop := srcCfg.ReplayLoop
	if cmd.Flags().Changed("loop") {
		loop = flagLoop
	}

	src, err := replay.Open(path, replay.Options{Loop: loop, Logger: a.Logger})
	if err != nil {
		return err
	}
	defer src.Close()

	name := flagName
	if name == "" {
		name = sessionNameFromPath(path)
	}

	frames := flagFrames
	if frames <= 0 && flagFast {
		frames = math.MaxInt
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = runSession(ctx, a, sessionOptions{
		Name:   name,
		Source: src,
		Label:  "replay:" + path,
		Stop:   src.Done(),
		Frames: frames,
	})
	if err != nil {
		return err
	}
	if err := src.Err(); err != nil {
		return fmt.Errorf("replay stopped early: %w", err)
	}
	a.Logger.Info("Replay finished", "played", src.Played())
	return nil
}

// sessionNameFromPath strips directories and recording extensions.
func sessionNameFromPath(path string) string {
	name := filepath.Base(path)
	for _, ext := range []string{".gz", ".jsonl", ".json"} {
		name = strings.TrimSuffix(name, ext)
	}
	return name
}
