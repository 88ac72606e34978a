package scene

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Ray represents a ray in 3D space
type Ray struct {
	Origin    mgl32.Vec3
	Direction mgl32.Vec3
}

// ScreenToRay converts a window-space cursor position (origin top-left) to a
// world-space ray leaving the camera.
func ScreenToRay(mouseX, mouseY, screenWidth, screenHeight float32, camera *Camera) Ray {
	// GL window coordinates have their origin bottom-left.
	winY := screenHeight - mouseY
	view := camera.GetViewMatrix()
	proj := camera.GetProjectionMatrix()
	w, h := int(screenWidth), int(screenHeight)

	near, errNear := mgl32.UnProject(mgl32.Vec3{mouseX, winY, 0}, view, proj, 0, 0, w, h)
	far, errFar := mgl32.UnProject(mgl32.Vec3{mouseX, winY, 1}, view, proj, 0, 0, w, h)
	if errNear != nil || errFar != nil {
		return Ray{Origin: camera.Position, Direction: camera.GetForward()}
	}
	return Ray{Origin: near, Direction: far.Sub(near).Normalize()}
}

// UnprojectDepth returns the world position under the cursor given the depth
// buffer value read back at that pixel.
func UnprojectDepth(mouseX, mouseY, depth, screenWidth, screenHeight float32, camera *Camera) (mgl32.Vec3, error) {
	return mgl32.UnProject(
		mgl32.Vec3{mouseX, screenHeight - mouseY, depth},
		camera.GetViewMatrix(), camera.GetProjectionMatrix(),
		0, 0, int(screenWidth), int(screenHeight),
	)
}

// IntersectMesh returns the distance to the closest triangle hit, or false.
func IntersectMesh(ray Ray, m *Mesh) (float32, bool) {
	if _, ok := rayAABBIntersect(ray, m.Bounds); !ok {
		return 0, false
	}
	closest := float32(math.MaxFloat32)
	hit := false
	for i := 0; i+2 < len(m.Indices); i += 3 {
		v0 := m.Vertices[m.Indices[i]].Position
		v1 := m.Vertices[m.Indices[i+1]].Position
		v2 := m.Vertices[m.Indices[i+2]].Position
		if t, ok := rayTriangleIntersect(ray, v0, v1, v2); ok && t < closest {
			closest, hit = t, true
		}
	}
	return closest, hit
}

// rayAABBIntersect uses the slab method.
func rayAABBIntersect(ray Ray, box AABB) (float32, bool) {
	tmin := float32(-math.MaxFloat32)
	tmax := float32(math.MaxFloat32)
	for i := 0; i < 3; i++ {
		if ray.Direction[i] == 0 {
			if ray.Origin[i] < box.Min[i] || ray.Origin[i] > box.Max[i] {
				return 0, false
			}
			continue
		}
		inv := 1 / ray.Direction[i]
		t1 := (box.Min[i] - ray.Origin[i]) * inv
		t2 := (box.Max[i] - ray.Origin[i]) * inv
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tmin = max(tmin, t1)
		tmax = min(tmax, t2)
		if tmin > tmax || tmax < 0 {
			return 0, false
		}
	}
	return tmin, true
}

// rayTriangleIntersect is Möller-Trumbore.
func rayTriangleIntersect(ray Ray, v0, v1, v2 mgl32.Vec3) (float32, bool) {
	const epsilon = 1e-7
	e1 := v1.Sub(v0)
	e2 := v2.Sub(v0)
	h := ray.Direction.Cross(e2)
	a := e1.Dot(h)
	if a > -epsilon && a < epsilon {
		return 0, false
	}
	f := 1 / a
	s := ray.Origin.Sub(v0)
	u := f * s.Dot(h)
	if u < 0 || u > 1 {
		return 0, false
	}
	q := s.Cross(e1)
	v := f * ray.Direction.Dot(q)
	if v < 0 || u+v > 1 {
		return 0, false
	}
	t := f * e2.Dot(q)
	if t <= epsilon {
		return 0, false
	}
	return t, true
}
