package memory

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/OCAP2/rigsync/internal/scene"
	"github.com/OCAP2/rigsync/pkg/core"
)

// Compile-time interface check
var _ scene.Runtime = (*Graph)(nil)

func testPrefab() Prefab {
	return Prefab{
		Name: "stick",
		Nodes: []PrefabNode{
			{
				Name:     "hips",
				Position: core.Position3D{Y: 1},
				Children: []PrefabNode{
					{Name: "spine", Position: core.Position3D{Y: 1.5}},
					{Name: "leftUpperLeg", Position: core.Position3D{X: 0.2, Y: 0.9}},
				},
			},
		},
	}
}

func TestGraph_InstantiateUnknownAsset(t *testing.T) {
	g := NewGraph()

	_, err := g.Instantiate("missing", scene.Origin, scene.Identity)
	require.Error(t, err)
	assert.ErrorIs(t, err, scene.ErrUnknownAsset)
}

func TestGraph_InstantiateCopiesPrefab(t *testing.T) {
	g := NewGraph()
	require.NoError(t, g.Register(testPrefab()))

	obj, err := g.Instantiate("stick", scene.Origin, scene.Identity)
	require.NoError(t, err)

	names := []string{}
	for _, n := range g.Descendants(obj) {
		names = append(names, n.Name())
	}
	assert.Equal(t, []string{"hips", "spine", "leftUpperLeg"}, names)

	spine, ok := g.Find(obj, "spine")
	require.True(t, ok)
	assert.Equal(t, r3.Vec{Y: 1.5}, spine.WorldPosition())
}

func TestGraph_InstancesAreIndependent(t *testing.T) {
	g := NewGraph()
	require.NoError(t, g.Register(testPrefab()))

	a, err := g.Instantiate("stick", scene.Origin, scene.Identity)
	require.NoError(t, err)
	b, err := g.Instantiate("stick", scene.Origin, scene.Identity)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID(), b.ID())

	hipsA, _ := g.Find(a, "hips")
	hipsA.SetWorldPosition(r3.Vec{X: 5})

	hipsB, _ := g.Find(b, "hips")
	assert.Equal(t, r3.Vec{Y: 1}, hipsB.WorldPosition())
}

func TestGraph_InstantiateAppliesTransform(t *testing.T) {
	g := NewGraph()
	require.NoError(t, g.Register(testPrefab()))

	// 90 degrees about Y maps +X to -Z.
	half := math.Pi / 4
	rot := quat.Number{Real: math.Cos(half), Jmag: math.Sin(half)}

	obj, err := g.Instantiate("stick", r3.Vec{X: 10}, rot)
	require.NoError(t, err)

	leg, ok := g.Find(obj, "leftUpperLeg")
	require.True(t, ok)
	p := leg.WorldPosition()
	assert.InDelta(t, 10.0, p.X, 1e-9)
	assert.InDelta(t, 0.9, p.Y, 1e-9)
	assert.InDelta(t, -0.2, p.Z, 1e-9)
}

func TestGraph_Destroy(t *testing.T) {
	g := NewGraph()
	require.NoError(t, g.Register(testPrefab()))

	obj, err := g.Instantiate("stick", scene.Origin, scene.Identity)
	require.NoError(t, err)
	assert.Len(t, g.Live(), 1)

	require.NoError(t, g.Destroy(obj))
	assert.Empty(t, g.Live())
	assert.True(t, obj.(*Instance).Destroyed())

	err = g.Destroy(obj)
	assert.ErrorIs(t, err, scene.ErrDestroyed)

	created, destroyed := g.Stats()
	assert.Equal(t, 1, created)
	assert.Equal(t, 1, destroyed)
}

func TestPrefab_Validate(t *testing.T) {
	assert.Error(t, Prefab{}.Validate())

	p := Prefab{Name: "x", Nodes: []PrefabNode{{Name: "a", Children: []PrefabNode{{}}}}}
	err := p.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unnamed node")
}

func TestLoadPrefab(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stick.json")
	data := `{"name":"stick","nodes":[{"name":"hips","children":[{"name":"spine","position":{"x":0,"y":1,"z":0}}]}]}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	p, err := LoadPrefab(path)
	require.NoError(t, err)
	assert.Equal(t, "stick", p.Name)
	assert.Equal(t, []string{"hips", "spine"}, p.NodeNames())
}

func TestLoadPrefab_Errors(t *testing.T) {
	_, err := LoadPrefab("/nonexistent/prefab.json")
	assert.Error(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{`), 0644))
	_, err = LoadPrefab(path)
	assert.Error(t, err)
}

func TestPrefabFromHierarchy(t *testing.T) {
	p := PrefabFromHierarchy("rig", "hips", map[string][]string{
		"hips":  {"spine", "leftUpperLeg"},
		"spine": {"neck"},
	})

	assert.Equal(t, "rig", p.Name)
	assert.Equal(t, []string{"hips", "leftUpperLeg", "spine", "neck"}, p.NodeNames())
	assert.NoError(t, p.Validate())
}
