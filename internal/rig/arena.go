package rig

import (
	"sort"

	"github.com/OCAP2/rigsync/internal/scene"
)

// representation is a scene object owned on behalf of one tracked body.
type representation struct {
	trackingID   uint64
	obj          scene.Object
	createdFrame uint64
}

// arena is the association table: tracking id -> owned representation.
// It is only touched from the frame loop, so it carries no lock.
type arena struct {
	reps map[uint64]*representation
}

func newArena() *arena {
	return &arena{reps: make(map[uint64]*representation)}
}

func (a *arena) get(id uint64) (*representation, bool) {
	r, ok := a.reps[id]
	return r, ok
}

func (a *arena) put(r *representation) {
	a.reps[r.trackingID] = r
}

// remove drops the entry and hands the representation back to the caller
// for destruction.
func (a *arena) remove(id uint64) (*representation, bool) {
	r, ok := a.reps[id]
	if ok {
		delete(a.reps, id)
	}
	return r, ok
}

// ids returns the associated tracking ids in ascending order.
func (a *arena) ids() []uint64 {
	ids := make([]uint64, 0, len(a.reps))
	for id := range a.reps {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (a *arena) len() int {
	return len(a.reps)
}
