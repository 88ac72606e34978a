package scene

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Camera represents a perspective view camera.
type Camera struct {
	Position    mgl32.Vec3
	Target      mgl32.Vec3
	Up          mgl32.Vec3
	FOV         float32 // vertical, degrees
	AspectRatio float32
	NearPlane   float32
	FarPlane    float32
}

func NewCamera(fov, aspectRatio, nearPlane, farPlane float32) *Camera {
	return &Camera{
		Position:    mgl32.Vec3{0, 0, 1},
		Up:          mgl32.Vec3{0, 1, 0},
		FOV:         fov,
		AspectRatio: aspectRatio,
		NearPlane:   nearPlane,
		FarPlane:    farPlane,
	}
}

func (c *Camera) UpdateAspectRatio(width, height float32) {
	if height > 0 {
		c.AspectRatio = width / height
	}
}

func (c *Camera) GetViewMatrix() mgl32.Mat4 {
	return mgl32.LookAtV(c.Position, c.Target, c.Up)
}

func (c *Camera) GetProjectionMatrix() mgl32.Mat4 {
	return mgl32.Perspective(mgl32.DegToRad(c.FOV), c.AspectRatio, c.NearPlane, c.FarPlane)
}

func (c *Camera) GetViewProjectionMatrix() mgl32.Mat4 {
	return c.GetProjectionMatrix().Mul4(c.GetViewMatrix())
}

func (c *Camera) GetForward() mgl32.Vec3 {
	return c.Target.Sub(c.Position).Normalize()
}

// ── Orbit camera ─────────────────────────────────────────────────────────────

// Pose is the orbit state of a camera, the unit of camera interpolation.
type Pose struct {
	Target   mgl32.Vec3
	Distance float32
	Yaw      float32
	Pitch    float32
}

// DefaultPose frames a unit-radius mesh from the front.
func DefaultPose() Pose {
	return Pose{Distance: 3, Pitch: 0.3}
}

// OrbitCamera is a specialized camera for orbiting around a target
type OrbitCamera struct {
	Camera
	Pose
	Sensitivity float32
}

func NewOrbitCamera(pose Pose, fov, aspectRatio float32) *OrbitCamera {
	c := &OrbitCamera{
		Camera:      *NewCamera(fov, aspectRatio, 0.05, 100.0),
		Pose:        pose,
		Sensitivity: 0.01,
	}
	c.UpdatePosition()
	return c
}

const (
	maxPitch    = 1.5
	minDistance = 0.1
)

func (c *OrbitCamera) UpdatePosition() {
	c.Pitch = max(-maxPitch, min(maxPitch, c.Pitch))
	c.Distance = max(minDistance, c.Distance)

	// Calculate position from spherical coordinates
	cosPitch := float32(math.Cos(float64(c.Pitch)))
	sinPitch := float32(math.Sin(float64(c.Pitch)))
	cosYaw := float32(math.Cos(float64(c.Yaw)))
	sinYaw := float32(math.Sin(float64(c.Yaw)))

	offset := mgl32.Vec3{
		c.Distance * cosPitch * sinYaw,
		c.Distance * sinPitch,
		c.Distance * cosPitch * cosYaw,
	}
	c.Camera.Target = c.Pose.Target
	c.Position = c.Pose.Target.Add(offset)
}

// Orbit rotates by a mouse delta in pixels, scaled by Sensitivity.
func (c *OrbitCamera) Orbit(dx, dy float32) {
	c.Yaw += dx * c.Sensitivity
	c.Pitch += dy * c.Sensitivity
	c.UpdatePosition()
}

func (c *OrbitCamera) Zoom(delta float32) {
	c.Distance *= float32(math.Pow(0.9, float64(delta)))
	c.UpdatePosition()
}

func (c *OrbitCamera) SetPose(p Pose) {
	c.Pose = p
	c.UpdatePosition()
}

// ── Interpolation ────────────────────────────────────────────────────────────

// CameraInterpolator animates an orbit camera between two poses over a fixed
// number of frames. Progress runs from 0 to 1 and never leaves that range.
type CameraInterpolator struct {
	from, to Pose
	frames   int
	frame    int
	active   bool
}

// Start begins a transition. frames < 1 jumps on the next Step.
func (ci *CameraInterpolator) Start(from, to Pose, frames int) {
	ci.from, ci.to = from, to
	ci.frames = max(1, frames)
	ci.frame = 0
	ci.active = true
}

func (ci *CameraInterpolator) Active() bool { return ci.active }

func (ci *CameraInterpolator) Progress() float32 {
	if ci.frames == 0 {
		return 0
	}
	return float32(ci.frame) / float32(ci.frames)
}

// Step advances one frame and applies the interpolated pose to cam.
// It reports whether the transition is still running.
func (ci *CameraInterpolator) Step(cam *OrbitCamera) bool {
	if !ci.active {
		return false
	}
	ci.frame = min(ci.frame+1, ci.frames)
	t := ci.Progress()
	s := t * t * (3 - 2*t)
	cam.SetPose(Pose{
		Target:   ci.from.Target.Add(ci.to.Target.Sub(ci.from.Target).Mul(s)),
		Distance: lerp(ci.from.Distance, ci.to.Distance, s),
		Yaw:      lerp(ci.from.Yaw, ci.to.Yaw, s),
		Pitch:    lerp(ci.from.Pitch, ci.to.Pitch, s),
	})
	if ci.frame == ci.frames {
		ci.active = false
	}
	return ci.active
}

func lerp(a, b, t float32) float32 { return a + (b-a)*t }
