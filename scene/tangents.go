package scene

import (
	"github.com/go-gl/mathgl/mgl32"

	"bumpforge/core"
)

// minFrameLen2 is the squared length below which an accumulated tangent is
// treated as missing.
const minFrameLen2 = 1e-8

// ComputeTangents fills the tangent frame the preview shader uses to bend
// normals read from the normal channel. Tangents follow +U and bitangents
// follow +V of the texture, so a flipped UV island keeps its handedness.
// Faces with no UV area contribute nothing.
func ComputeTangents(m *Mesh) {
	tangents := make([]mgl32.Vec3, len(m.Vertices))
	bitangents := make([]mgl32.Vec3, len(m.Vertices))

	eachTriangle(m, func(tri [3]uint32) {
		t, b, ok := uvGradients(m.Vertices[tri[0]], m.Vertices[tri[1]], m.Vertices[tri[2]])
		if !ok {
			return
		}
		for _, i := range tri {
			tangents[i] = tangents[i].Add(t)
			bitangents[i] = bitangents[i].Add(b)
		}
	})

	for i := range m.Vertices {
		v := &m.Vertices[i]
		v.Tangent, v.Bitangent = orthonormalFrame(v.Normal, tangents[i], bitangents[i])
	}
}

// eachTriangle visits indexed triangles, or consecutive vertex triples for
// meshes without indices.
func eachTriangle(m *Mesh, fn func([3]uint32)) {
	if len(m.Indices) == 0 {
		for i := uint32(0); int(i)+2 < len(m.Vertices); i += 3 {
			fn([3]uint32{i, i + 1, i + 2})
		}
		return
	}
	for i := 0; i+2 < len(m.Indices); i += 3 {
		fn([3]uint32{m.Indices[i], m.Indices[i+1], m.Indices[i+2]})
	}
}

// uvGradients solves the edge equations for dP/du and dP/dv.
func uvGradients(a, b, c core.Vertex) (mgl32.Vec3, mgl32.Vec3, bool) {
	e1, e2 := b.Position.Sub(a.Position), c.Position.Sub(a.Position)
	d1, d2 := b.UV.Sub(a.UV), c.UV.Sub(a.UV)
	det := d1.X()*d2.Y() - d2.X()*d1.Y()
	if det == 0 {
		return mgl32.Vec3{}, mgl32.Vec3{}, false
	}
	inv := 1 / det
	t := e1.Mul(d2.Y()).Sub(e2.Mul(d1.Y())).Mul(inv)
	bt := e2.Mul(d1.X()).Sub(e1.Mul(d2.X())).Mul(inv)
	return t, bt, true
}

// orthonormalFrame projects t onto the plane of n and rebuilds the
// bitangent from n x t, keeping the side b points to.
func orthonormalFrame(n, t, b mgl32.Vec3) (mgl32.Vec3, mgl32.Vec3) {
	t = t.Sub(n.Mul(n.Dot(t)))
	if t.Dot(t) < minFrameLen2 {
		t = anyPerpendicular(n)
	}
	t = t.Normalize()

	nb := n.Cross(t)
	if b.Dot(b) >= minFrameLen2 && nb.Dot(b) < 0 {
		nb = nb.Mul(-1)
	}
	return t, nb.Normalize()
}

func anyPerpendicular(n mgl32.Vec3) mgl32.Vec3 {
	axis := mgl32.Vec3{1, 0, 0}
	if mgl32.Abs(n.X()) >= 0.9 {
		axis = mgl32.Vec3{0, 1, 0}
	}
	return axis.Sub(n.Mul(n.Dot(axis)))
}
