// Package pipeline implements the texture conversion engine: a store of
// per-channel surfaces, the channel dependency graph, and the passes that
// derive one channel from another. Passes run on a Device, either the GL
// backend or the software reference implementation.
//
// Engine, Store and Device are bound to the thread that owns the GL
// context and are not safe for concurrent use.
package pipeline

import (
	"bumpforge/texture"
)

// Surface is a device-resident RGBA float image.
type Surface interface {
	Size() (w, h int)
}

// Device executes passes over surfaces.
type Device interface {
	NewSurface(w, h int) (Surface, error)
	Release(s Surface)
	// Upload replaces the contents of s; img must match its size.
	Upload(s Surface, img *texture.Image) error
	Download(s Surface) (*texture.Image, error)
	Fill(s Surface, c [4]float32) error
	// Run renders pass p into dst. Inputs are sampled by normalized
	// coordinates with repeat addressing, so they may differ in size from dst.
	// Run leaves dst bound as the current target.
	Run(p Pass, dst Surface, inputs []Surface, u Uniforms) error
	// Target is the currently bound render target, nil for the display.
	Target() Surface
	SetTarget(s Surface)
}

// Pass names one fragment program.
type Pass int

const (
	// PassCopy resamples input 0 into dst.
	PassCopy Pass = iota
	// PassHeightToNormal: input 0 height; "strength".
	PassHeightToNormal
	// PassNormalToGradient: input 0 normal map; writes dh/dx, dh/dy per texel to RG.
	PassNormalToGradient
	// PassDownsample averages 2×2 blocks of input 0.
	PassDownsample
	// PassRelax is one damped Jacobi sweep: input 0 height, input 1 gradient;
	// "scale" (texel size relative to the finest level), "omega".
	PassRelax
	// PassLevels maps ["min","max"] of the red channel onto [0,1] gray.
	PassLevels
	// PassGaussian is one axis of a separable blur: "direction", "sigma" in texels.
	PassGaussian
	// PassLuminanceHeight builds a height proxy from input 0 (diffuse) and
	// input 1 (its low-pass): "detail", "shape", "contrast", "invert".
	PassLuminanceHeight
	// PassGrayCurve: "brightness", "contrast", "saturation", "invert", "gray".
	PassGrayCurve
	// PassOcclusion: input 0 height, input 1 normal; "radius", "depth",
	// "directions", "steps", "strength".
	PassOcclusion
	// PassGrungeBlend overlays input 1 on input 0 by "weight".
	PassGrungeBlend
	// PassSeamlessSimple: "radius", "direction".
	PassSeamlessSimple
	// PassSeamlessMirror: "axis".
	PassSeamlessMirror
	// PassSeamlessRandom: "inner", "outer", "phase", "grid", "angles".
	PassSeamlessRandom
	// PassContrast: input 0 source, input 1 control; "strength", "power".
	PassContrast
	// PassMaterialMask: input 0 diffuse; "keys", "count", "tolerance".
	PassMaterialMask
	// PassRegionBlend mixes input 1 over input 0 where input 2 matches "key".
	PassRegionBlend
	// PassFill writes "color".
	PassFill

	NumPasses
)

var passNames = [NumPasses]string{
	"copy", "height_to_normal", "normal_to_gradient", "downsample", "relax",
	"levels", "gaussian", "luminance_height", "gray_curve", "occlusion",
	"grunge_blend", "seamless_simple", "seamless_mirror", "seamless_random",
	"contrast", "material_mask", "region_blend", "fill",
}

func (p Pass) String() string {
	if p < 0 || p >= NumPasses {
		return "pass(?)"
	}
	return passNames[p]
}

// MaxMaterialKeys caps the number of region colours a mask pass matches.
const MaxMaterialKeys = 16

// Uniforms carries pass parameters. Values are float32, int32, [2]float32,
// [4]float32, []float32 or [][4]float32.
type Uniforms map[string]any

func (u Uniforms) Float(name string, def float32) float32 {
	if v, ok := u[name].(float32); ok {
		return v
	}
	return def
}

func (u Uniforms) Int(name string, def int32) int32 {
	if v, ok := u[name].(int32); ok {
		return v
	}
	return def
}

func (u Uniforms) Bool(name string) bool { return u.Int(name, 0) != 0 }

func (u Uniforms) Vec2(name string, def [2]float32) [2]float32 {
	if v, ok := u[name].([2]float32); ok {
		return v
	}
	return def
}

func (u Uniforms) Vec4(name string, def [4]float32) [4]float32 {
	if v, ok := u[name].([4]float32); ok {
		return v
	}
	return def
}

func (u Uniforms) Floats(name string) []float32 {
	v, _ := u[name].([]float32)
	return v
}

func (u Uniforms) Vec4s(name string) [][4]float32 {
	v, _ := u[name].([][4]float32)
	return v
}

func boolInt(b bool) int32 {
	if b {
		return 1
	}
	return 0
}
