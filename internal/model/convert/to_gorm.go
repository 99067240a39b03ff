// Package convert provides functions to convert core recording types to GORM models
package convert

import (
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"

	"github.com/OCAP2/rigsync/internal/model"
	"github.com/OCAP2/rigsync/pkg/core"
)

// CoreToSession converts a core.Session to a GORM model.Session
func CoreToSession(s core.Session) model.Session {
	return model.Session{
		ID:        s.ID,
		Name:      s.Name,
		Asset:     s.Asset,
		Source:    s.Source,
		StartTime: s.StartTime,
	}
}

// CoreToLifecycleEvent converts a core.LifecycleEvent to a GORM model.LifecycleEvent
func CoreToLifecycleEvent(e core.LifecycleEvent) model.LifecycleEvent {
	return model.LifecycleEvent{
		Time:             e.Time,
		Frame:            e.Frame,
		TrackingID:       e.TrackingID,
		RepresentationID: e.RepresentationID.String(),
		Kind:             string(e.Kind),
	}
}

// CoreToPoseSample converts a core.PoseSample to a GORM model.PoseSample
func CoreToPoseSample(s core.PoseSample) (model.PoseSample, error) {
	nodes, err := nodesToJSON(s.Nodes)
	if err != nil {
		return model.PoseSample{}, fmt.Errorf("pose of tracking id %d: %w", s.TrackingID, err)
	}
	return model.PoseSample{
		Time:             s.Time,
		Frame:            s.Frame,
		TrackingID:       s.TrackingID,
		RepresentationID: s.RepresentationID.String(),
		Nodes:            nodes,
	}, nil
}

// CoreToFramePerformance converts a core.FramePerformance to a GORM model.FramePerformance
func CoreToFramePerformance(p core.FramePerformance) model.FramePerformance {
	return model.FramePerformance{
		Time:      p.Time,
		Frame:     p.Frame,
		Bodies:    p.Bodies,
		Tracked:   p.Tracked,
		Created:   p.Created,
		Destroyed: p.Destroyed,
		Errors:    p.Errors,
		SyncMs:    float32(p.Duration.Seconds() * 1000),
	}
}

// nodesToJSON converts node positions to datatypes.JSON for DB storage.
func nodesToJSON(nodes map[string]core.Position3D) (datatypes.JSON, error) {
	if len(nodes) == 0 {
		return datatypes.JSON("{}"), nil
	}
	data, err := json.Marshal(nodes)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(data), nil
}
