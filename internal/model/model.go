package model

import (
	"time"

	"gorm.io/datatypes"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []any{
	&Session{},
	&LifecycleEvent{},
	&PoseSample{},
	&FramePerformance{},
}

// Session is one recording run of the rig synchronizer.
type Session struct {
	ID        uint       `json:"id" gorm:"primarykey;autoIncrement"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	Name      string     `json:"name" gorm:"size:127;index:idx_session_name"`
	Asset     string     `json:"asset" gorm:"size:127"`
	Source    string     `json:"source" gorm:"size:255"`
	StartTime time.Time  `json:"startTime"`
	EndTime   *time.Time `json:"endTime"`
	Frames    uint64     `json:"frames"`
}

func (*Session) TableName() string {
	return "sessions"
}

// LifecycleEvent records a representation being created or destroyed.
type LifecycleEvent struct {
	ID               uint      `json:"id" gorm:"primarykey;autoIncrement"`
	SessionID        uint      `json:"sessionId" gorm:"index:idx_lifecycle_session_id"`
	Time             time.Time `json:"time"`
	Frame            uint64    `json:"frame" gorm:"index:idx_lifecycle_frame"`
	TrackingID       uint64    `json:"trackingId" gorm:"index:idx_lifecycle_tracking_id"`
	RepresentationID string    `json:"representationId" gorm:"size:36"`
	Kind             string    `json:"kind" gorm:"size:16"`
}

func (*LifecycleEvent) TableName() string {
	return "lifecycle_events"
}

// PoseSample holds the node positions written for one body in one frame.
// Nodes is a JSON object of node name -> {x, y, z}.
type PoseSample struct {
	ID               uint           `json:"id" gorm:"primarykey;autoIncrement"`
	SessionID        uint           `json:"sessionId" gorm:"index:idx_pose_session_id"`
	Time             time.Time      `json:"time"`
	Frame            uint64         `json:"frame" gorm:"index:idx_pose_frame"`
	TrackingID       uint64         `json:"trackingId" gorm:"index:idx_pose_tracking_id"`
	RepresentationID string         `json:"representationId" gorm:"size:36"`
	Nodes            datatypes.JSON `json:"nodes"`
}

func (*PoseSample) TableName() string {
	return "pose_samples"
}

// FramePerformance is the model for per-frame synchronizer metrics
type FramePerformance struct {
	ID        uint      `json:"id" gorm:"primarykey;autoIncrement"`
	SessionID uint      `json:"sessionId" gorm:"index:idx_performance_session_id"`
	Time      time.Time `json:"time" gorm:"index:idx_performance_time"`
	Frame     uint64    `json:"frame"`
	Bodies    int       `json:"bodies"`
	Tracked   int       `json:"tracked"`
	Created   int       `json:"created"`
	Destroyed int       `json:"destroyed"`
	Errors    int       `json:"errors"`
	SyncMs    float32   `json:"syncMs"`
}

func (*FramePerformance) TableName() string {
	return "frame_performances"
}
