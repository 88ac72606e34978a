package core

import (
	"github.com/go-gl/mathgl/mgl32"
)

type Color struct {
	R, G, B, A float32
}

var (
	ColorWhite = Color{1, 1, 1, 1}
	ColorBlack = Color{0, 0, 0, 1}
	ColorGray  = Color{0.5, 0.5, 0.5, 1}
)

func (c Color) Vec4() [4]float32 { return [4]float32{c.R, c.G, c.B, c.A} }

func (c Color) Vec3() mgl32.Vec3 { return mgl32.Vec3{c.R, c.G, c.B} }

func ColorFromVec4(v [4]float32) Color { return Color{v[0], v[1], v[2], v[3]} }

// Vertex is the interleaved layout uploaded for the preview mesh.
type Vertex struct {
	Position  mgl32.Vec3
	Normal    mgl32.Vec3
	UV        mgl32.Vec2
	Tangent   mgl32.Vec3
	Bitangent mgl32.Vec3
}

// VertexFloats is the number of float32 values per Vertex.
const VertexFloats = 14
