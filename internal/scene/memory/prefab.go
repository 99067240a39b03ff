package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/OCAP2/rigsync/pkg/core"
)

// PrefabNode is one node of a prefab template. Position is relative to the
// instance origin.
type PrefabNode struct {
	Name     string          `json:"name"`
	Position core.Position3D `json:"position"`
	Children []PrefabNode    `json:"children,omitempty"`
}

// Prefab is a named template that Graph.Instantiate copies.
type Prefab struct {
	Name  string       `json:"name"`
	Nodes []PrefabNode `json:"nodes"`
}

// Validate checks the prefab has a name and that every node is named.
func (p Prefab) Validate() error {
	if p.Name == "" {
		return errors.New("prefab name is empty")
	}
	var walk func(nodes []PrefabNode, path string) error
	walk = func(nodes []PrefabNode, path string) error {
		for i, n := range nodes {
			if n.Name == "" {
				return fmt.Errorf("prefab %q: unnamed node at %s[%d]", p.Name, path, i)
			}
			if err := walk(n.Children, path+"/"+n.Name); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(p.Nodes, "")
}

// NodeNames returns the names of every node in the prefab, depth first.
func (p Prefab) NodeNames() []string {
	var names []string
	var walk func(nodes []PrefabNode)
	walk = func(nodes []PrefabNode) {
		for _, n := range nodes {
			names = append(names, n.Name)
			walk(n.Children)
		}
	}
	walk(p.Nodes)
	return names
}

// LoadPrefab reads a JSON prefab definition from disk.
func LoadPrefab(path string) (Prefab, error) {
	var p Prefab

	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("error reading prefab: %w", err)
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("error unmarshalling prefab %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}

// PrefabFromHierarchy builds a prefab whose node tree starts at root and
// follows children (parent name -> child names). Sibling order is sorted so
// the result is deterministic.
func PrefabFromHierarchy(name, root string, children map[string][]string) Prefab {
	var build func(n string) PrefabNode
	build = func(n string) PrefabNode {
		kids := append([]string(nil), children[n]...)
		sort.Strings(kids)

		node := PrefabNode{Name: n}
		for _, k := range kids {
			node.Children = append(node.Children, build(k))
		}
		return node
	}

	return Prefab{
		Name:  name,
		Nodes: []PrefabNode{build(root)},
	}
}
