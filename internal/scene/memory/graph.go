// Package memory is an in-process scene graph. It backs the CLI and the
// tests; a real engine binding implements scene.Runtime the same way.
package memory

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/OCAP2/rigsync/internal/scene"
)

// node is a live scene node.
type node struct {
	mu       *sync.Mutex
	id       uuid.UUID
	name     string
	position r3.Vec
	children []*node
}

func (n *node) Name() string { return n.name }

func (n *node) WorldPosition() r3.Vec {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.position
}

func (n *node) SetWorldPosition(p r3.Vec) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.position = p
}

// Instance is an instantiated prefab.
type Instance struct {
	node
	asset     string
	destroyed bool
}

// ID returns the unique id assigned at instantiation.
func (i *Instance) ID() uuid.UUID { return i.id }

// Asset returns the name of the prefab this instance was copied from.
func (i *Instance) Asset() string { return i.asset }

// Destroyed reports whether the instance has been destroyed.
func (i *Instance) Destroyed() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.destroyed
}

// Graph holds prefab templates and the live instances created from them.
type Graph struct {
	mu        sync.Mutex
	prefabs   map[string]Prefab
	live      map[uuid.UUID]*Instance
	created   int
	destroyed int
}

// NewGraph creates an empty scene graph.
func NewGraph() *Graph {
	return &Graph{
		prefabs: make(map[string]Prefab),
		live:    make(map[uuid.UUID]*Instance),
	}
}

// Register adds or replaces a prefab template.
func (g *Graph) Register(p Prefab) error {
	if err := p.Validate(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prefabs[p.Name] = p
	return nil
}

// Instantiate copies the named prefab. Node positions are the prefab offsets
// rotated by rotation and translated by position.
func (g *Graph) Instantiate(asset string, position r3.Vec, rotation quat.Number) (scene.Object, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	p, ok := g.prefabs[asset]
	if !ok {
		return nil, fmt.Errorf("%w: %s", scene.ErrUnknownAsset, asset)
	}

	inst := &Instance{
		node: node{
			mu:       &g.mu,
			id:       uuid.New(),
			name:     p.Name,
			position: position,
		},
		asset: asset,
	}

	var build func(src []PrefabNode) []*node
	build = func(src []PrefabNode) []*node {
		out := make([]*node, 0, len(src))
		for _, pn := range src {
			offset := rotate(rotation, pn.Position.Vec())
			out = append(out, &node{
				mu:       &g.mu,
				id:       uuid.New(),
				name:     pn.Name,
				position: r3.Add(position, offset),
				children: build(pn.Children),
			})
		}
		return out
	}
	inst.children = build(p.Nodes)

	g.live[inst.id] = inst
	g.created++
	return inst, nil
}

// Destroy removes the instance from the live set.
func (g *Graph) Destroy(obj scene.Object) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	inst, ok := g.live[obj.ID()]
	if !ok {
		return fmt.Errorf("%w: %s", scene.ErrDestroyed, obj.ID())
	}
	inst.destroyed = true
	delete(g.live, obj.ID())
	g.destroyed++
	return nil
}

// Descendants returns every node below obj, depth first, excluding obj itself.
func (g *Graph) Descendants(obj scene.Object) []scene.Node {
	inst, ok := obj.(*Instance)
	if !ok {
		return nil
	}

	var out []scene.Node
	var walk func(nodes []*node)
	walk = func(nodes []*node) {
		for _, n := range nodes {
			out = append(out, n)
			walk(n.children)
		}
	}
	walk(inst.children)
	return out
}

// Find returns the first descendant of obj with the given name.
func (g *Graph) Find(obj scene.Object, name string) (scene.Node, bool) {
	for _, n := range g.Descendants(obj) {
		if n.Name() == name {
			return n, true
		}
	}
	return nil, false
}

// Live returns the ids of all live instances, sorted.
func (g *Graph) Live() []uuid.UUID {
	g.mu.Lock()
	defer g.mu.Unlock()

	ids := make([]uuid.UUID, 0, len(g.live))
	for id := range g.live {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

// Stats returns how many instances were created and destroyed over the
// lifetime of the graph.
func (g *Graph) Stats() (created, destroyed int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.created, g.destroyed
}

// rotate applies the rotation q to v (q * v * q^-1).
func rotate(q quat.Number, v r3.Vec) r3.Vec {
	if q == (quat.Number{}) || q == scene.Identity {
		return v
	}
	p := quat.Mul(quat.Mul(q, quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}), quat.Inv(q))
	return r3.Vec{X: p.Imag, Y: p.Jmag, Z: p.Kmag}
}
