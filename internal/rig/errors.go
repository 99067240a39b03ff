package rig

import (
	"errors"
	"fmt"

	"github.com/OCAP2/rigsync/pkg/core"
)

// ErrNodeMissing is wrapped by NodeMissingError. Use errors.Is to detect an
// asset that does not match the node-name table.
var ErrNodeMissing = errors.New("representation node missing")

// NodeMissingError reports a representation whose subtree lacks a node the
// rig needs. Retrying does not help until the asset is fixed.
type NodeMissingError struct {
	TrackingID uint64
	Asset      string
	Node       string
	Joint      core.JointType
}

func (e *NodeMissingError) Error() string {
	return fmt.Sprintf("asset %q for tracking id %d has no node %q (joint %s)",
		e.Asset, e.TrackingID, e.Node, e.Joint)
}

func (e *NodeMissingError) Unwrap() error {
	return ErrNodeMissing
}
