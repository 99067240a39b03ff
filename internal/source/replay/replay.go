// Package replay plays back and records skeleton sessions stored as JSON
// lines, one core.Frame per line. Files ending in .gz are compressed.
package replay

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/OCAP2/rigsync/pkg/core"
)

// ErrEndOfRecording is returned by Next once the last frame has been read
// and looping is off.
var ErrEndOfRecording = errors.New("replay: end of recording")

const maxLineSize = 4 << 20

// Options configures playback.
type Options struct {
	Loop   bool
	Logger *slog.Logger
}

// Source plays a recording back one frame per Bodies call.
type Source struct {
	path   string
	opts   Options
	logger *slog.Logger

	mu      sync.Mutex
	file    *os.File
	gz      *gzip.Reader
	scanner *bufio.Scanner
	line    int
	played  uint64
	loops   int
	ended   bool
	err     error
	done    chan struct{}
}

// Open opens a recording. The first frame is validated eagerly so a broken
// file fails here rather than on the first tick.
func Open(path string, opts Options) (*Source, error) {
	if path == "" {
		return nil, errors.New("replay: path is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Source{
		path:   path,
		opts:   opts,
		logger: opts.Logger.With("component", "replay", "path", path),
		done:   make(chan struct{}),
	}
	if err := s.rewind(); err != nil {
		return nil, err
	}
	if _, err := s.peekFirst(); err != nil {
		_ = s.closeFile()
		return nil, err
	}
	return s, nil
}

// peekFirst checks that the file holds at least one frame and rewinds.
func (s *Source) peekFirst() (core.Frame, error) {
	f, err := s.read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return f, fmt.Errorf("replay: %s holds no frames", s.path)
		}
		return f, err
	}
	return f, s.rewind()
}

func (s *Source) rewind() error {
	if err := s.closeFile(); err != nil {
		return err
	}

	file, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("replay: open: %w", err)
	}

	var r io.Reader = file
	if strings.HasSuffix(s.path, ".gz") {
		gz, err := gzip.NewReader(file)
		if err != nil {
			_ = file.Close()
			return fmt.Errorf("replay: gzip: %w", err)
		}
		s.gz = gz
		r = gz
	}

	s.file = file
	s.scanner = bufio.NewScanner(r)
	s.scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	s.line = 0
	return nil
}

func (s *Source) closeFile() error {
	var errs []error
	if s.gz != nil {
		errs = append(errs, s.gz.Close())
		s.gz = nil
	}
	if s.file != nil {
		errs = append(errs, s.file.Close())
		s.file = nil
	}
	s.scanner = nil
	return errors.Join(errs...)
}

// read returns the next frame in the file, skipping blank lines.
// io.EOF means the file is exhausted.
func (s *Source) read() (core.Frame, error) {
	var f core.Frame
	for s.scanner.Scan() {
		s.line++
		line := s.scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		if err := json.Unmarshal(line, &f); err != nil {
			return f, fmt.Errorf("replay: %s line %d: %w", s.path, s.line, err)
		}
		return f, nil
	}
	if err := s.scanner.Err(); err != nil {
		return f, fmt.Errorf("replay: %s line %d: %w", s.path, s.line+1, err)
	}
	return f, io.EOF
}

// Next returns the next frame, rewinding at the end when looping.
func (s *Source) Next() (core.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return core.Frame{}, s.endErr()
	}

	f, err := s.read()
	if errors.Is(err, io.EOF) && s.opts.Loop {
		s.loops++
		s.logger.Debug("Looping recording", "loop", s.loops, "framesPlayed", s.played)
		if err = s.rewind(); err == nil {
			f, err = s.read()
		}
	}
	if err != nil {
		s.ended = true
		if !errors.Is(err, io.EOF) {
			s.err = err
		}
		close(s.done)
		_ = s.closeFile()
		return core.Frame{}, s.endErr()
	}

	s.played++
	return f, nil
}

func (s *Source) endErr() error {
	if s.err != nil {
		return s.err
	}
	return ErrEndOfRecording
}

// Bodies implements source.Source. Each call consumes one frame. Once the
// recording is exhausted the source reports unavailable.
func (s *Source) Bodies() ([]core.Body, bool) {
	f, err := s.Next()
	if err != nil {
		return nil, false
	}
	if f.Bodies == nil {
		return []core.Body{}, true
	}
	return f.Bodies, true
}

// Done is closed when playback has ended.
func (s *Source) Done() <-chan struct{} {
	return s.done
}

// Err returns the error that ended playback, or nil while frames remain or
// when the recording ended normally.
func (s *Source) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Played returns how many frames have been handed out.
func (s *Source) Played() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.played
}

// Close releases the underlying file.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeFile()
}
