// internal/storage/memory/export.go
package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/OCAP2/rigsync/pkg/core"
)

// ExportVersion is bumped whenever the JSON layout changes.
const ExportVersion = 1

// SessionExport is the root JSON structure
type SessionExport struct {
	Version     int                `json:"version"`
	SessionName string             `json:"sessionName"`
	Asset       string             `json:"asset"`
	Source      string             `json:"source"`
	StartTime   time.Time          `json:"startTime"`
	EndFrame    uint64             `json:"endFrame"`
	Bodies      []BodyJSON         `json:"bodies"`
	Performance PerformanceSummary `json:"performance"`
}

// BodyJSON represents one tracking id
type BodyJSON struct {
	TrackingID      uint64               `json:"trackingId"`
	Representations []RepresentationJSON `json:"representations"`
}

// RepresentationJSON represents one owned scene object and its poses.
// Poses rows are [frame, {node: [x, y, z]}].
type RepresentationJSON struct {
	ID         string   `json:"id"`
	StartFrame uint64   `json:"startFrame"`
	EndFrame   uint64   `json:"endFrame,omitempty"`
	Nodes      []string `json:"nodes"`
	Poses      [][]any  `json:"poses"`
}

// PerformanceSummary aggregates the per-frame metrics
type PerformanceSummary struct {
	Frames      int     `json:"frames"`
	ErrorFrames int     `json:"errorFrames"`
	MaxTracked  int     `json:"maxTracked"`
	Created     int     `json:"created"`
	Destroyed   int     `json:"destroyed"`
	AvgSyncMs   float64 `json:"avgSyncMs"`
	MaxSyncMs   float64 `json:"maxSyncMs"`
}

// exportJSON writes the session data to a (optionally gzipped) JSON file
func (b *Backend) exportJSON() error {
	export := b.buildExport()

	// Build filename
	sessionName := strings.ReplaceAll(b.session.Name, " ", "_")
	sessionName = strings.ReplaceAll(sessionName, ":", "_")
	sessionName = strings.ReplaceAll(sessionName, string(filepath.Separator), "_")
	timestamp := b.session.StartTime.Format("20060102_150405")

	var filename string
	if b.cfg.CompressOutput {
		filename = fmt.Sprintf("%s_%s.json.gz", sessionName, timestamp)
	} else {
		filename = fmt.Sprintf("%s_%s.json", sessionName, timestamp)
	}

	outputPath := filepath.Join(b.cfg.OutputDir, filename)

	// Ensure output directory exists
	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	// Write file
	if b.cfg.CompressOutput {
		if err := b.writeGzipJSON(outputPath, export); err != nil {
			return err
		}
	} else {
		if err := b.writeJSON(outputPath, export); err != nil {
			return err
		}
	}

	b.lastExportPath = outputPath
	return nil
}

func (b *Backend) buildExport() SessionExport {
	export := SessionExport{
		Version:     ExportVersion,
		SessionName: b.session.Name,
		Asset:       b.session.Asset,
		Source:      b.session.Source,
		StartTime:   b.session.StartTime,
		EndFrame:    b.lastFrame,
		Bodies:      make([]BodyJSON, 0, len(b.bodyOrder)),
		Performance: summarize(b.performance),
	}

	for _, id := range b.bodyOrder {
		rec := b.bodies[id]
		body := BodyJSON{
			TrackingID:      rec.TrackingID,
			Representations: make([]RepresentationJSON, 0, len(rec.Representations)),
		}
		for _, rep := range rec.Representations {
			body.Representations = append(body.Representations, representationJSON(rep))
		}
		export.Bodies = append(export.Bodies, body)
	}

	return export
}

func representationJSON(rep *RepresentationRecord) RepresentationJSON {
	out := RepresentationJSON{
		ID:         rep.ID.String(),
		StartFrame: rep.CreatedFrame,
		EndFrame:   rep.DestroyedFrame,
		Nodes:      make([]string, 0),
		Poses:      make([][]any, 0, len(rep.Poses)),
	}

	seen := make(map[string]struct{})
	for _, pose := range rep.Poses {
		nodes := make(map[string][3]float64, len(pose.Nodes))
		for name, p := range pose.Nodes {
			nodes[name] = [3]float64{p.X, p.Y, p.Z}
			if _, ok := seen[name]; !ok {
				seen[name] = struct{}{}
				out.Nodes = append(out.Nodes, name)
			}
		}
		out.Poses = append(out.Poses, []any{pose.Frame, nodes})
	}
	sort.Strings(out.Nodes)
	return out
}

func summarize(perf []core.FramePerformance) PerformanceSummary {
	var s PerformanceSummary
	var total float64
	for _, p := range perf {
		s.Frames++
		if p.Errors > 0 {
			s.ErrorFrames++
		}
		if p.Tracked > s.MaxTracked {
			s.MaxTracked = p.Tracked
		}
		s.Created += p.Created
		s.Destroyed += p.Destroyed

		ms := float64(p.Duration) / float64(time.Millisecond)
		total += ms
		if ms > s.MaxSyncMs {
			s.MaxSyncMs = ms
		}
	}
	if s.Frames > 0 {
		s.AvgSyncMs = total / float64(s.Frames)
	}
	return s
}

func (b *Backend) writeJSON(path string, data SessionExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	return encoder.Encode(data)
}

func (b *Backend) writeGzipJSON(path string, data SessionExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	gzWriter := gzip.NewWriter(f)
	defer gzWriter.Close()

	encoder := json.NewEncoder(gzWriter)
	return encoder.Encode(data)
}
