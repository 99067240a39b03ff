// Package scene defines the scene-graph operations the rig synchronizer
// depends on. Implementations own object storage, transform hierarchy and
// teardown timing.
package scene

import (
	"errors"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

var (
	// ErrUnknownAsset is returned when instantiating an asset the runtime has no template for.
	ErrUnknownAsset = errors.New("unknown asset")

	// ErrDestroyed is returned when operating on an object that was already destroyed.
	ErrDestroyed = errors.New("object destroyed")
)

// Identity is the orientation with no rotation applied.
var Identity = quat.Number{Real: 1}

// Origin is the world origin.
var Origin = r3.Vec{}

// Node is a named element of an object's subtree.
type Node interface {
	Name() string
	WorldPosition() r3.Vec
	SetWorldPosition(p r3.Vec)
}

// Object is an instantiated copy of an asset.
type Object interface {
	Node
	ID() uuid.UUID
}

// Runtime is the subset of a scene-graph runtime used to manage
// representations.
type Runtime interface {
	// Instantiate creates a fresh copy of the named asset at the given
	// world position and orientation.
	Instantiate(asset string, position r3.Vec, rotation quat.Number) (Object, error)

	// Destroy releases the object. The runtime may defer the actual teardown.
	Destroy(obj Object) error

	// Descendants returns every node below obj, depth first.
	Descendants(obj Object) []Node
}
