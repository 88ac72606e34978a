package opengl

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

func TestPlanStages(t *testing.T) {
	all := DefaultPostSettings()
	all.DOF = true
	all.LensFlare = true

	tests := []struct {
		name string
		ps   PostSettings
		want []stage
	}{
		{"all", all, []stage{stageDOF, stageGlow, stageLensFlare, stageToneMap, stageScreen}},
		{"defaults", DefaultPostSettings(), []stage{stageGlow, stageToneMap, stageScreen}},
		{"none", PostSettings{}, []stage{stageScreen}},
		{"zero strength skips", PostSettings{Glow: true, LensFlare: true, DOF: true}, []stage{stageScreen}},
		{"tone only", PostSettings{ToneMapping: true}, []stage{stageToneMap, stageScreen}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := planStages(tt.ps)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, stageScreen, got[len(got)-1])
		})
	}
}

func TestGlowSizes(t *testing.T) {
	assert.Equal(t, [glowLevels][2]int{{640, 360}, {320, 180}, {160, 90}, {80, 45}}, glowSizes(1280, 720))
	assert.Equal(t, [glowLevels][2]int{{2, 1}, {1, 1}, {1, 1}, {1, 1}}, glowSizes(4, 2))
}

func TestToneLevels(t *testing.T) {
	tests := []struct {
		w, h         int
		size, levels int
	}{
		{1920, 1080, 512, 10},
		{300, 200, 256, 9},
		{1, 1, 1, 1},
		{0, 0, 1, 1},
		{64, 64, 64, 7},
	}
	for _, tt := range tests {
		size, levels := toneLevels(tt.w, tt.h)
		assert.Equal(t, tt.size, size, "%dx%d", tt.w, tt.h)
		assert.Equal(t, tt.levels, levels, "%dx%d", tt.w, tt.h)
		assert.LessOrEqual(t, levels, maxToneMips)
	}
}

func TestCaptureViewsFaceForward(t *testing.T) {
	dirs := [6]mgl32.Vec3{{1, 0, 0}, {-1, 0, 0}, {0, 1, 0}, {0, -1, 0}, {0, 0, 1}, {0, 0, -1}}
	for i, v := range captureViews() {
		got := v.Mul4x1(dirs[i].Vec4(0)).Vec3()
		assert.InDelta(t, 0, got.X(), 1e-5, "face %d", i)
		assert.InDelta(t, 0, got.Y(), 1e-5, "face %d", i)
		assert.InDelta(t, -1, got.Z(), 1e-5, "face %d", i)
	}
}

func TestPrefilterRoughness(t *testing.T) {
	assert.Equal(t, float32(0), prefilterRoughness(0))
	assert.Equal(t, float32(1), prefilterRoughness(prefilterMips-1))
}

func TestTexelAt(t *testing.T) {
	x, y := texelAt([2]float32{0, 0}, 8, 4)
	assert.Equal(t, [2]int{0, 0}, [2]int{x, y})
	x, y = texelAt([2]float32{0.999, 0.5}, 8, 4)
	assert.Equal(t, [2]int{7, 2}, [2]int{x, y})
	x, y = texelAt([2]float32{1, 1}, 8, 4)
	assert.Equal(t, [2]int{7, 3}, [2]int{x, y})
}

func TestUniformName(t *testing.T) {
	assert.Equal(t, "u_min", uniformName("min"))
}
