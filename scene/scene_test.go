package scene

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bumpforge/core"
	"bumpforge/texture"
)

const quadOBJ = `# quad
o Quad
v -1 -1 0
v 1 -1 0
v 1 1 0
v -1 1 0
vt 0 0
vt 1 0
vt 1 1
vt 0 1
f 1/1 2/2 3/3 4/4
`

func TestParseOBJ(t *testing.T) {
	m, err := ParseOBJ(strings.NewReader(quadOBJ))
	require.NoError(t, err)
	assert.Equal(t, "Quad", m.Name)
	assert.Len(t, m.Vertices, 4)
	assert.Len(t, m.Indices, 6)
	assert.Equal(t, mgl32.Vec3{-1, -1, 0}, m.Bounds.Min)
	assert.Equal(t, mgl32.Vec3{1, 1, 0}, m.Bounds.Max)

	// No normals in the file: generated from winding.
	for _, v := range m.Vertices {
		assert.InDelta(t, 1, v.Normal.Z(), 1e-5)
	}
	// V is flipped to image space.
	assert.Equal(t, mgl32.Vec2{0, 1}, m.Vertices[0].UV)
}

func TestParseOBJNegativeIndices(t *testing.T) {
	src := "v 0 0 0\nv 1 0 0\nv 0 1 0\nf -3 -2 -1\n"
	m, err := ParseOBJ(strings.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 1, 2}, m.Indices)
	assert.Equal(t, mgl32.Vec3{1, 0, 0}, m.Vertices[1].Position)
}

func TestParseOBJEmpty(t *testing.T) {
	_, err := ParseOBJ(strings.NewReader("# nothing\nv 0 0 0\n"))
	assert.Error(t, err)
}

func TestTangentsOrthonormal(t *testing.T) {
	for _, m := range []*Mesh{CreatePlane(2), CreateCube(1), CreateSphere(1, 16, 8)} {
		for i, v := range m.Vertices {
			assert.InDelta(t, 1, v.Tangent.Len(), 1e-4, "%s vertex %d", m.Name, i)
			assert.InDelta(t, 0, v.Tangent.Dot(v.Normal), 1e-4, "%s vertex %d", m.Name, i)
			assert.InDelta(t, 1, v.Bitangent.Len(), 1e-4, "%s vertex %d", m.Name, i)
			assert.InDelta(t, 0, v.Bitangent.Dot(v.Tangent), 1e-4, "%s vertex %d", m.Name, i)
		}
	}
	p := CreatePlane(2)
	// +U runs along +X on the plane, +V down the screen.
	assert.InDelta(t, 1, p.Vertices[0].Tangent.X(), 1e-5)
	assert.InDelta(t, -1, p.Vertices[0].Bitangent.Y(), 1e-5)
}

func TestTangentsFollowMirroredUVs(t *testing.T) {
	n := mgl32.Vec3{0, 0, 1}
	m := CreateMeshFromData("mirrored", []core.Vertex{
		{Position: mgl32.Vec3{0, 0, 0}, Normal: n, UV: mgl32.Vec2{1, 0}},
		{Position: mgl32.Vec3{1, 0, 0}, Normal: n, UV: mgl32.Vec2{0, 0}},
		{Position: mgl32.Vec3{0, 1, 0}, Normal: n, UV: mgl32.Vec2{1, 1}},
	}, nil)
	ComputeTangents(m)
	for _, v := range m.Vertices {
		assert.InDelta(t, -1, v.Tangent.X(), 1e-5)
		assert.InDelta(t, 1, v.Bitangent.Y(), 1e-5)
	}

	// No UV area: any frame around the normal.
	flat := CreateMeshFromData("flat", []core.Vertex{
		{Position: mgl32.Vec3{0, 0, 0}, Normal: n},
		{Position: mgl32.Vec3{1, 0, 0}, Normal: n},
		{Position: mgl32.Vec3{0, 1, 0}, Normal: n},
	}, nil)
	ComputeTangents(flat)
	v := flat.Vertices[0]
	assert.InDelta(t, 0, v.Tangent.Dot(n), 1e-5)
	assert.InDelta(t, 1, v.Bitangent.Len(), 1e-5)
}

func TestMeshNormalize(t *testing.T) {
	m := CreateCube(4)
	for i := range m.Vertices {
		m.Vertices[i].Position = m.Vertices[i].Position.Add(mgl32.Vec3{10, 0, 0})
	}
	m.Bounds = computeBounds(m.Vertices)

	m.Normalize()
	assert.InDelta(t, 1, m.Bounds.Radius(), 1e-5)
	c := m.Bounds.Center()
	assert.InDelta(t, 0, c.Len(), 1e-5)
}

func TestFlattenGLTF(t *testing.T) {
	doc := gltf.NewDocument()
	pos := modeler.WritePosition(doc, [][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}})
	idx := modeler.WriteIndices(doc, []uint16{0, 1, 2})
	doc.Meshes = []*gltf.Mesh{{
		Name: "tri",
		Primitives: []*gltf.Primitive{{
			Indices:    gltf.Index(idx),
			Attributes: map[string]int{"POSITION": pos},
		}},
	}}
	doc.Nodes = []*gltf.Node{
		{Name: "root", Translation: [3]float64{5, 0, 0}, Children: []int{1}},
		{Name: "child", Mesh: gltf.Index(0), Scale: [3]float64{2, 2, 2}},
	}
	doc.Scenes[0].Nodes = []int{0}

	m, err := flattenGLTF(doc)
	require.NoError(t, err)
	require.Len(t, m.Vertices, 3)
	assert.Equal(t, []uint32{0, 1, 2}, m.Indices)
	assert.InDelta(t, 5, m.Vertices[0].Position.X(), 1e-5)
	assert.InDelta(t, 7, m.Vertices[1].Position.X(), 1e-5)
	assert.InDelta(t, 2, m.Vertices[2].Position.Y(), 1e-5)
}

func TestLoadMeshUnsupported(t *testing.T) {
	_, err := LoadMesh("model.fbx")
	assert.ErrorIs(t, err, ErrUnsupportedMesh)
}

func TestLoadMeshOBJ(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quad.obj")
	require.NoError(t, os.WriteFile(path, []byte(quadOBJ), 0o644))
	m, err := LoadMesh(path)
	require.NoError(t, err)
	assert.InDelta(t, 1, m.Bounds.Radius(), 1e-5)
}

func TestCameraInterpolator(t *testing.T) {
	cam := NewOrbitCamera(DefaultPose(), 60, 1)
	var ci CameraInterpolator
	from := Pose{Distance: 2}
	to := Pose{Distance: 4, Yaw: 1}
	ci.Start(from, to, 4)

	steps := 0
	for ci.Step(cam) {
		steps++
		p := ci.Progress()
		assert.True(t, p >= 0 && p <= 1)
	}
	assert.Equal(t, 3, steps)
	assert.Equal(t, float32(1), ci.Progress())
	assert.False(t, ci.Active())
	assert.Equal(t, to, cam.Pose)

	// Further steps are no-ops.
	assert.False(t, ci.Step(cam))
	assert.Equal(t, to, cam.Pose)
}

func TestCameraInterpolatorZeroFrames(t *testing.T) {
	cam := NewOrbitCamera(DefaultPose(), 60, 1)
	var ci CameraInterpolator
	target := Pose{Distance: 5}
	ci.Start(cam.Pose, target, 0)
	assert.False(t, ci.Step(cam))
	assert.Equal(t, target, cam.Pose)
}

func TestOrbitClamps(t *testing.T) {
	cam := NewOrbitCamera(DefaultPose(), 60, 1)
	cam.Orbit(0, 1e6)
	assert.Equal(t, float32(maxPitch), cam.Pitch)
	cam.Zoom(1e3)
	assert.Equal(t, float32(minDistance), cam.Distance)
}

func TestScreenToRayCenter(t *testing.T) {
	cam := NewOrbitCamera(Pose{Distance: 3}, 60, 1)
	ray := ScreenToRay(50, 50, 100, 100, &cam.Camera)
	// Looking down -Z from (0,0,3).
	assert.InDelta(t, -1, ray.Direction.Z(), 1e-3)

	d, ok := IntersectMesh(ray, CreatePlane(2))
	require.True(t, ok)
	assert.InDelta(t, 3, ray.Origin.Add(ray.Direction.Mul(d)).Sub(cam.Position).Len(), 1e-2)
}

func TestScreenToRayMiss(t *testing.T) {
	cam := NewOrbitCamera(Pose{Distance: 3}, 60, 1)
	ray := ScreenToRay(0, 0, 100, 100, &cam.Camera)
	_, ok := IntersectMesh(ray, CreatePlane(0.5))
	assert.False(t, ok)
}

func TestEnvCache(t *testing.T) {
	var c EnvCache
	assert.True(t, c.Stale())
	c.MarkBaked()
	assert.False(t, c.Stale())
	c.Invalidate()
	assert.True(t, c.Stale())
	c.MarkBaked()
	assert.False(t, c.Stale())
}

func TestLoadCubemap(t *testing.T) {
	dir := t.TempDir()
	for _, name := range CubeFaces[:5] {
		img := texture.Filled(4, 4, [4]float32{1, 0, 0, 1})
		require.NoError(t, texture.Save(filepath.Join(dir, name+".png"), img, texture.FormatPNG))
	}
	_, err := LoadCubemap(dir)
	assert.ErrorIs(t, err, ErrIncompleteCubemap)

	img := texture.Filled(4, 4, [4]float32{0, 0, 1, 1})
	require.NoError(t, texture.Save(filepath.Join(dir, "negz.png"), img, texture.FormatPNG))
	faces, err := LoadCubemap(dir)
	require.NoError(t, err)
	assert.Equal(t, 4, faces[5].Width)
}
