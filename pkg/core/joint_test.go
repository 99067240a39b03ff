package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJointType_StringAndParse(t *testing.T) {
	for _, j := range AllJoints() {
		parsed, err := ParseJointType(j.String())
		require.NoError(t, err)
		assert.Equal(t, j, parsed)
	}
}

func TestJointType_Ordering(t *testing.T) {
	assert.Equal(t, JointType(0), JointSpineBase)
	assert.Equal(t, JointType(20), JointSpineShoulder)
	assert.Equal(t, JointType(24), JointThumbRight)
	assert.Equal(t, 25, JointCount)
}

func TestJointType_Invalid(t *testing.T) {
	j := JointType(99)
	assert.False(t, j.Valid())
	assert.Equal(t, "JointType(99)", j.String())

	_, err := j.MarshalText()
	assert.Error(t, err)

	_, err = ParseJointType("Tail")
	assert.Error(t, err)
}

func TestBody_JSONUsesJointNames(t *testing.T) {
	body := Body{
		TrackingID: 42,
		IsTracked:  true,
		Joints: map[JointType]Joint{
			JointHead: {Type: JointHead, Position: Position3D{X: 0.1, Y: 1.6, Z: 2}},
		},
	}

	data, err := json.Marshal(body)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"Head":{"type":"Head"`)

	var decoded Body
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, body, decoded)
}

func TestFrame_TrackedIDs(t *testing.T) {
	f := Frame{Bodies: []Body{
		{TrackingID: 1, IsTracked: true},
		{TrackingID: 2, IsTracked: false},
		{TrackingID: 3, IsTracked: true},
	}}

	assert.Equal(t, []uint64{1, 3}, f.TrackedIDs())
}

func TestPosition3D_Vec(t *testing.T) {
	p := Position3D{X: 1, Y: -2, Z: 3.5}
	assert.Equal(t, p, PositionFromVec(p.Vec()))
}
