// pkg/core/body.go
package core

import (
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

// Position3D is a point in sensor camera space, in metres.
type Position3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Vec converts the position to a gonum vector.
func (p Position3D) Vec() r3.Vec {
	return r3.Vec{X: p.X, Y: p.Y, Z: p.Z}
}

// PositionFromVec converts a gonum vector to a Position3D.
func PositionFromVec(v r3.Vec) Position3D {
	return Position3D{X: v.X, Y: v.Y, Z: v.Z}
}

// Joint is a single tracked landmark of a body.
type Joint struct {
	Type     JointType  `json:"type"`
	Position Position3D `json:"position"`
}

// Body is one skeleton instance from a sensor frame.
// TrackingID is stable only while IsTracked stays true.
type Body struct {
	TrackingID uint64              `json:"trackingId"`
	IsTracked  bool                `json:"tracked"`
	Joints     map[JointType]Joint `json:"joints"`
}

// Joint returns the joint of the given type and whether the body carries it.
func (b Body) Joint(t JointType) (Joint, bool) {
	j, ok := b.Joints[t]
	return j, ok
}

// Frame is a complete sensor snapshot.
type Frame struct {
	Number uint64    `json:"frame"`
	Time   time.Time `json:"time"`
	Bodies []Body    `json:"bodies"`
}

// TrackedIDs returns the tracking ids of the tracked bodies in the order they
// appear in the frame.
func (f Frame) TrackedIDs() []uint64 {
	ids := make([]uint64, 0, len(f.Bodies))
	for _, b := range f.Bodies {
		if b.IsTracked {
			ids = append(ids, b.TrackingID)
		}
	}
	return ids
}
