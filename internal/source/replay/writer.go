package replay

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/OCAP2/rigsync/pkg/core"
)

// Writer records frames in the format Open reads.
type Writer struct {
	mu     sync.Mutex
	file   *os.File
	gz     *gzip.Writer
	buf    *bufio.Writer
	enc    *json.Encoder
	frames uint64
}

// Create creates (or truncates) a recording at path, compressing when the
// path ends in .gz.
func Create(path string) (*Writer, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("replay: create dir: %w", err)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("replay: create: %w", err)
	}

	w := &Writer{file: file}
	if strings.HasSuffix(path, ".gz") {
		w.gz = gzip.NewWriter(file)
		w.buf = bufio.NewWriter(w.gz)
	} else {
		w.buf = bufio.NewWriter(file)
	}
	w.enc = json.NewEncoder(w.buf)
	return w, nil
}

// Write appends one frame.
func (w *Writer) Write(f core.Frame) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return errors.New("replay: writer closed")
	}
	if err := w.enc.Encode(f); err != nil {
		return fmt.Errorf("replay: encode frame %d: %w", f.Number, err)
	}
	w.frames++
	return nil
}

// Frames returns the number of frames written.
func (w *Writer) Frames() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.frames
}

// Close flushes and closes the file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}

	var errs []error
	errs = append(errs, w.buf.Flush())
	if w.gz != nil {
		errs = append(errs, w.gz.Close())
	}
	errs = append(errs, w.file.Close())
	w.file = nil
	return errors.Join(errs...)
}
