package pipeline_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bumpforge/pipeline"
	"bumpforge/texture"
)

var (
	red4  = [4]float32{1, 0, 0, 1}
	blue4 = [4]float32{0, 0, 1, 1}
)

// split is red on the left half and blue on the right.
func split(w, h int) *texture.Image {
	img := texture.NewImage(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := red4
			if x >= w/2 {
				c = blue4
			}
			img.Set(x, y, c)
		}
	}
	return img
}

func TestPartitionFindsUniqueColors(t *testing.T) {
	m := pipeline.NewMaterialIndex()
	regions := m.Partition(split(8, 4))
	require.Len(t, regions, 2)
	assert.Equal(t, red4, regions[0].Key)
	assert.Equal(t, 16, regions[0].Pixels)
	assert.Equal(t, blue4, regions[1].Key)
}

func TestPartitionCapsRegionCount(t *testing.T) {
	img := texture.NewImage(32, 1)
	for x := 0; x < 32; x++ {
		v := float32(x) / 31
		img.Set(x, 0, [4]float32{v, 0, 0, 1})
	}
	m := pipeline.NewMaterialIndex()
	m.SetTolerance(0)
	assert.Len(t, m.Partition(img), pipeline.MaxMaterialKeys)
	assert.Equal(t, 32-pipeline.MaxMaterialKeys, m.Overflow())
}

func TestPartitionTolerance(t *testing.T) {
	img := texture.NewImage(2, 1)
	img.Set(0, 0, [4]float32{0.5, 0.5, 0.5, 1})
	img.Set(1, 0, [4]float32{0.52, 0.5, 0.5, 1})

	m := pipeline.NewMaterialIndex()
	m.SetTolerance(0)
	assert.Len(t, m.Partition(img), 2)
	m.SetTolerance(0.05)
	assert.Len(t, m.Partition(img), 1)
}

func TestPickSelectsRegion(t *testing.T) {
	m := pipeline.NewMaterialIndex()
	m.Partition(split(4, 4))
	i, ok := m.Pick(blue4)
	require.True(t, ok)
	assert.Equal(t, 1, i)
	assert.Equal(t, 1, m.Current())

	_, ok = m.Pick([4]float32{0, 1, 0, 1})
	assert.False(t, ok)
	assert.Equal(t, 1, m.Current())
}

func TestOverrideNeedsSelection(t *testing.T) {
	m := pipeline.NewMaterialIndex()
	m.Partition(split(4, 4))
	assert.ErrorIs(t, m.SetOverride(texture.Roughness, pipeline.DefaultAdjust()), pipeline.ErrNoMaterial)
	require.NoError(t, m.Select(0))
	assert.ErrorIs(t, m.SetOverride(texture.Normal, pipeline.DefaultAdjust()), texture.ErrUnsupportedChannel)
	assert.Error(t, m.Select(5))
}

func TestMaterialsToggleRestoresConversionFlag(t *testing.T) {
	for _, flag := range []bool{true, false} {
		_, e := newEngine(t, 8, 8)
		e.State().Diffuse.EnableConversion = flag

		require.NoError(t, e.EnableMaterials())
		assert.False(t, e.State().Diffuse.EnableConversion)
		assert.True(t, e.State().MaterialsEnabled)
		assert.ErrorIs(t, e.Convert(pipeline.ConvertDiffuseToOthers, texture.Diffuse), pipeline.ErrConversionLocked)

		require.NoError(t, e.DisableMaterials())
		assert.Equal(t, flag, e.State().Diffuse.EnableConversion)
		assert.False(t, e.State().MaterialsEnabled)
	}
}

func TestRegionOverrideStaysInsideMask(t *testing.T) {
	_, e := newEngine(t, 8, 8)
	e.State().Diffuse.EnableConversion = false
	require.NoError(t, e.LoadImage(texture.Diffuse, split(8, 8)))
	require.NoError(t, e.State().SetSource(texture.Roughness, pipeline.SourceDiffuse))
	require.NoError(t, e.EnableMaterials())
	before := output(t, e, texture.Roughness)

	i, ok := e.PickMaterial(red4)
	require.True(t, ok)
	assert.Equal(t, i, e.State().MaterialIndex)
	require.NoError(t, e.SetMaterialOverride(texture.Roughness, pipeline.AdjustParams{Contrast: 1, Invert: true}))

	after := output(t, e, texture.Roughness)
	assert.InDelta(t, 1-before.At(1, 1)[0], after.At(1, 1)[0], 1e-6, "inside the red region")
	assert.Equal(t, before.At(6, 1), after.At(6, 1), "blue region untouched")

	mat := output(t, e, texture.Material)
	assert.Equal(t, red4, mat.At(0, 0))
	assert.Equal(t, blue4, mat.At(7, 7))
}

func TestResizeKeepsMaterialSelection(t *testing.T) {
	_, e := newEngine(t, 8, 8)
	e.State().Diffuse.EnableConversion = false
	require.NoError(t, e.LoadImage(texture.Diffuse, split(8, 8)))
	require.NoError(t, e.EnableMaterials())
	_, ok := e.PickMaterial(blue4)
	require.True(t, ok)

	require.NoError(t, e.Resize(16, 16))
	assert.True(t, e.Materials().Enabled())
	assert.Equal(t, 1, e.Materials().Current())
	assert.False(t, e.State().Diffuse.EnableConversion)
}

func TestRegionOverrideReplacesBaseAdjust(t *testing.T) {
	_, e := newEngine(t, 8, 8)
	e.State().Diffuse.EnableConversion = false
	require.NoError(t, e.LoadImage(texture.Diffuse, split(8, 8)))
	require.NoError(t, e.State().SetSource(texture.Roughness, pipeline.SourceDiffuse))
	require.NoError(t, e.Replot(texture.Roughness))
	raw := output(t, e, texture.Roughness)
	inside, outside := raw.At(1, 1)[0], raw.At(6, 1)[0]

	e.State().Channels[texture.Roughness].Adjust.Brightness = 0.3
	require.NoError(t, e.EnableMaterials())
	_, ok := e.PickMaterial(red4)
	require.True(t, ok)
	require.NoError(t, e.SetMaterialOverride(texture.Roughness, pipeline.DefaultAdjust()))

	got := output(t, e, texture.Roughness)
	assert.InDelta(t, inside, got.At(1, 1)[0], 1e-5, "identity override shows the raw value")
	assert.InDelta(t, min(outside+0.3, 1), got.At(6, 1)[0], 1e-5, "base adjustment outside the region")

	a, ok := e.MaterialOverride(texture.Roughness)
	require.True(t, ok)
	assert.Equal(t, pipeline.DefaultAdjust(), a)

	require.NoError(t, e.ClearMaterialOverride(texture.Roughness))
	_, ok = e.MaterialOverride(texture.Roughness)
	assert.False(t, ok)
	assert.InDelta(t, min(inside+0.3, 1), output(t, e, texture.Roughness).At(1, 1)[0], 1e-5)
}

func TestFailedResizeKeepsMaterialsEnabled(t *testing.T) {
	_, e := newEngine(t, 8, 8)
	e.State().Diffuse.EnableConversion = true
	require.NoError(t, e.LoadImage(texture.Diffuse, split(8, 8)))
	require.NoError(t, e.EnableMaterials())
	_, ok := e.PickMaterial(blue4)
	require.True(t, ok)

	assert.Error(t, e.Resize(0, 8))
	assert.True(t, e.Materials().Enabled())
	assert.Equal(t, 1, e.Materials().Current())
	assert.False(t, e.State().Diffuse.EnableConversion)
	w, h := e.Store().Size()
	assert.Equal(t, [2]int{8, 8}, [2]int{w, h})

	require.NoError(t, e.DisableMaterials())
	assert.True(t, e.State().Diffuse.EnableConversion)
}
