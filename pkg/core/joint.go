// pkg/core/joint.go
package core

import "fmt"

// JointType identifies an anatomical landmark reported by the body sensor.
// Values follow the sensor SDK ordering, which is also the iteration order
// used when syncing a rig.
type JointType uint8

const (
	JointSpineBase JointType = iota
	JointSpineMid
	JointNeck
	JointHead
	JointShoulderLeft
	JointElbowLeft
	JointWristLeft
	JointHandLeft
	JointShoulderRight
	JointElbowRight
	JointWristRight
	JointHandRight
	JointHipLeft
	JointKneeLeft
	JointAnkleLeft
	JointFootLeft
	JointHipRight
	JointKneeRight
	JointAnkleRight
	JointFootRight
	JointSpineShoulder
	JointHandTipLeft
	JointThumbLeft
	JointHandTipRight
	JointThumbRight

	// JointCount is the number of joints in a full body.
	JointCount = int(JointThumbRight) + 1
)

var jointNames = [JointCount]string{
	"SpineBase",
	"SpineMid",
	"Neck",
	"Head",
	"ShoulderLeft",
	"ElbowLeft",
	"WristLeft",
	"HandLeft",
	"ShoulderRight",
	"ElbowRight",
	"WristRight",
	"HandRight",
	"HipLeft",
	"KneeLeft",
	"AnkleLeft",
	"FootLeft",
	"HipRight",
	"KneeRight",
	"AnkleRight",
	"FootRight",
	"SpineShoulder",
	"HandTipLeft",
	"ThumbLeft",
	"HandTipRight",
	"ThumbRight",
}

// Valid reports whether j is one of the known joint types.
func (j JointType) Valid() bool {
	return int(j) < JointCount
}

func (j JointType) String() string {
	if !j.Valid() {
		return fmt.Sprintf("JointType(%d)", uint8(j))
	}
	return jointNames[j]
}

// MarshalText encodes the joint by name so recordings stay readable and
// map[JointType]Joint serializes with string keys.
func (j JointType) MarshalText() ([]byte, error) {
	if !j.Valid() {
		return nil, fmt.Errorf("invalid joint type %d", uint8(j))
	}
	return []byte(jointNames[j]), nil
}

// UnmarshalText decodes a joint name produced by MarshalText.
func (j *JointType) UnmarshalText(text []byte) error {
	parsed, err := ParseJointType(string(text))
	if err != nil {
		return err
	}
	*j = parsed
	return nil
}

// ParseJointType returns the joint type with the given SDK name.
func ParseJointType(name string) (JointType, error) {
	for i, n := range jointNames {
		if n == name {
			return JointType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown joint type %q", name)
}

// AllJoints returns every joint type in enumeration order.
func AllJoints() []JointType {
	joints := make([]JointType, JointCount)
	for i := range joints {
		joints[i] = JointType(i)
	}
	return joints
}
