package rig

import (
	"sort"

	"github.com/OCAP2/rigsync/pkg/core"
)

// PositionScale is the uniform factor applied to sensor positions (metres)
// before they are written to rig nodes.
const PositionScale = 10.0

// FirstJoint and LastJoint bound the joint types visited during a node sync.
const (
	FirstJoint = core.JointSpineBase
	LastJoint  = core.JointThumbRight
)

// topology maps a joint to the child joints it drives; every (joint, child)
// pair is one bone segment. Tip joints, the head and the feet are only ever
// children. Children are listed in joint order.
var topology = map[core.JointType][]core.JointType{
	core.JointSpineBase:     {core.JointSpineMid, core.JointHipLeft, core.JointHipRight},
	core.JointSpineMid:      {core.JointSpineShoulder},
	core.JointNeck:          {core.JointHead},
	core.JointSpineShoulder: {core.JointNeck, core.JointShoulderLeft, core.JointShoulderRight},

	core.JointShoulderLeft: {core.JointElbowLeft},
	core.JointElbowLeft:    {core.JointHandLeft},
	core.JointHandLeft:     {core.JointHandTipLeft, core.JointThumbLeft},

	core.JointShoulderRight: {core.JointElbowRight},
	core.JointElbowRight:    {core.JointHandRight},
	core.JointHandRight:     {core.JointHandTipRight, core.JointThumbRight},

	core.JointHipLeft:   {core.JointKneeLeft},
	core.JointKneeLeft:  {core.JointAnkleLeft},
	core.JointAnkleLeft: {core.JointFootLeft},

	core.JointHipRight:   {core.JointKneeRight},
	core.JointKneeRight:  {core.JointAnkleRight},
	core.JointAnkleRight: {core.JointFootRight},
}

// nodeNames maps a joint to the bone node that represents it in the character
// asset. The wrists have no bone of their own; the hand bone follows the hand
// joint.
var nodeNames = map[core.JointType]string{
	core.JointSpineBase:     "B-hips",
	core.JointSpineMid:      "B-spine",
	core.JointSpineShoulder: "B-upperChest",
	core.JointNeck:          "B-neck",
	core.JointHead:          "B-head",

	core.JointShoulderLeft: "B-shoulder_L",
	core.JointElbowLeft:    "B-forearm_L",
	core.JointHandLeft:     "B-hand_L",
	core.JointHandTipLeft:  "B-f_middle_03_L",
	core.JointThumbLeft:    "B-thumb_03_L",

	core.JointShoulderRight: "B-shoulder_R",
	core.JointElbowRight:    "B-forearm_R",
	core.JointHandRight:     "B-hand_R",
	core.JointHandTipRight:  "B-f_middle_03_R",
	core.JointThumbRight:    "B-thumb_03_R",

	core.JointHipLeft:   "B-thigh_L",
	core.JointKneeLeft:  "B-shin_L",
	core.JointAnkleLeft: "B-foot_L",
	core.JointFootLeft:  "B-toe_L",

	core.JointHipRight:   "B-thigh_R",
	core.JointKneeRight:  "B-shin_R",
	core.JointAnkleRight: "B-foot_R",
	core.JointFootRight:  "B-toe_R",
}

// nodeNameSet holds every value of nodeNames for subtree filtering.
var nodeNameSet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(nodeNames))
	for _, n := range nodeNames {
		set[n] = struct{}{}
	}
	return set
}()

// Children returns a copy of the joints driven by j.
func Children(j core.JointType) []core.JointType {
	return append([]core.JointType(nil), topology[j]...)
}

// NodeName returns the node name representing j, if any.
func NodeName(j core.JointType) (string, bool) {
	n, ok := nodeNames[j]
	return n, ok
}

// IsNodeName reports whether name is a node the rig writes to.
func IsNodeName(name string) bool {
	_, ok := nodeNameSet[name]
	return ok
}

// Segment is a parent/child pair of the topology.
type Segment struct {
	Parent core.JointType
	Child  core.JointType
}

// Segments returns the topology in joint order.
func Segments() []Segment {
	var segs []Segment
	for j := FirstJoint; j <= LastJoint; j++ {
		for _, c := range topology[j] {
			segs = append(segs, Segment{Parent: j, Child: c})
		}
	}
	return segs
}

// NodeNames returns every node name the rig writes to, sorted.
func NodeNames() []string {
	names := make([]string, 0, len(nodeNames))
	for _, n := range nodeNames {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Hierarchy returns the node-name tree of the default character asset:
// the root node name and a parent -> children map following the topology.
func Hierarchy() (root string, children map[string][]string) {
	children = make(map[string][]string)
	for _, seg := range Segments() {
		pn := nodeNames[seg.Parent]
		children[pn] = append(children[pn], nodeNames[seg.Child])
	}
	return nodeNames[FirstJoint], children
}
