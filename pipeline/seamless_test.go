package pipeline_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bumpforge/internal/software"
	"bumpforge/pipeline"
	"bumpforge/texture"
)

func applySeamless(t *testing.T, mode pipeline.SeamlessMode, p pipeline.SeamlessParams, img *texture.Image) *texture.Image {
	t.Helper()
	dev := software.New()
	src, err := dev.NewSurface(img.Width, img.Height)
	require.NoError(t, err)
	require.NoError(t, dev.Upload(src, img))
	dst, err := dev.NewSurface(img.Width, img.Height)
	require.NoError(t, err)

	s := pipeline.NewSeamless(dev)
	require.NoError(t, s.Apply(mode, p, src, nil, dst))
	out, err := dev.Download(dst)
	require.NoError(t, err)
	return out
}

func symmetric(w, h int) *texture.Image {
	base := noise(w, h, 21)
	img := texture.NewImage(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sx, sy := x, y
			if sx >= w/2 {
				sx = w - 1 - sx
			}
			if sy >= h/2 {
				sy = h - 1 - sy
			}
			img.Set(x, y, base.At(sx, sy))
		}
	}
	return img
}

func TestMirrorFixedPoint(t *testing.T) {
	for _, axis := range []pipeline.MirrorAxis{pipeline.MirrorXY, pipeline.MirrorX, pipeline.MirrorY} {
		img := symmetric(16, 10)
		p := pipeline.DefaultSeamlessParams()
		p.Mirror.Axis = axis
		got := applySeamless(t, pipeline.SeamlessMirror, p, img)
		assert.True(t, img.Equal(got), "axis %d", axis)
	}
}

func TestMirrorReflectsLeftHalf(t *testing.T) {
	img := noise(8, 4, 5)
	p := pipeline.DefaultSeamlessParams()
	p.Mirror.Axis = pipeline.MirrorX
	got := applySeamless(t, pipeline.SeamlessMirror, p, img)
	for y := 0; y < 4; y++ {
		for x := 0; x < 8; x++ {
			assert.Equal(t, got.At(x, y), got.At(7-x, y))
		}
		assert.Equal(t, img.At(1, y), got.At(1, y))
	}
}

func TestContrastIdentityAtZeroStrength(t *testing.T) {
	img := noise(12, 12, 8)
	got := applySeamless(t, pipeline.SeamlessNone, pipeline.DefaultSeamlessParams(), img)
	assert.True(t, img.Equal(got))
}

func TestContrastSkippedInMirrorAndRandom(t *testing.T) {
	img := symmetric(8, 8)
	p := pipeline.DefaultSeamlessParams()
	p.Contrast.Strength = 2
	got := applySeamless(t, pipeline.SeamlessMirror, p, img)
	assert.True(t, img.Equal(got))

	a := applySeamless(t, pipeline.SeamlessRandom, p, img)
	p.Contrast.Strength = 0
	b := applySeamless(t, pipeline.SeamlessRandom, p, img)
	assert.True(t, a.Equal(b))
}

func TestContrastOrderMatters(t *testing.T) {
	img := noise(16, 16, 13)
	p := pipeline.DefaultSeamlessParams()
	p.Contrast.Strength = 1.5
	p.Simple.Radius = 0.3
	before := applySeamless(t, pipeline.SeamlessSimple, p, img)
	p.TranslationsFirst = true
	after := applySeamless(t, pipeline.SeamlessSimple, p, img)
	assert.False(t, before.Equal(after))
	requireInRange(t, before, "contrast first")
	requireInRange(t, after, "translations first")
}

// seam is the mean absolute difference across the wrap boundary.
func seam(img *texture.Image) float32 {
	var sum float32
	for y := 0; y < img.Height; y++ {
		a, b := img.At(0, y), img.At(img.Width-1, y)
		for i := 0; i < 3; i++ {
			d := a[i] - b[i]
			if d < 0 {
				d = -d
			}
			sum += d
		}
	}
	return sum / float32(img.Height*3)
}

func TestSimpleReducesSeam(t *testing.T) {
	img := texture.NewImage(32, 32)
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			v := float32(x) / 31
			img.Set(x, y, [4]float32{v, v, v, 1})
		}
	}
	p := pipeline.DefaultSeamlessParams()
	p.Simple.Radius = 0.25
	p.Simple.Direction = pipeline.DirectionX
	got := applySeamless(t, pipeline.SeamlessSimple, p, img)
	assert.Less(t, seam(got), seam(img)/4)

	// Rows are untouched by an X-only blend in the middle of the image.
	assert.Equal(t, img.At(16, 5), got.At(16, 5))
}

func TestRandomIsReproducible(t *testing.T) {
	img := noise(32, 32, 17)
	p := pipeline.DefaultSeamlessParams()
	a := applySeamless(t, pipeline.SeamlessRandom, p, img)
	b := applySeamless(t, pipeline.SeamlessRandom, p, img)
	assert.True(t, a.Equal(b))

	p.Random.Randomize()
	c := applySeamless(t, pipeline.SeamlessRandom, p, img)
	assert.False(t, a.Equal(c))
}

func TestRandomizeAndReset(t *testing.T) {
	_, e := newEngine(t, 16, 16)
	e.State().Diffuse.EnableConversion = false
	require.NoError(t, e.LoadImage(texture.Diffuse, noise(16, 16, 2)))
	require.NoError(t, e.SelectSeamlessMode(pipeline.SeamlessRandom))
	first := output(t, e, texture.Diffuse)
	seed := e.State().Seamless.Random.Seed

	require.NoError(t, e.Randomize())
	assert.NotEqual(t, seed, e.State().Seamless.Random.Seed)
	assert.False(t, first.Equal(output(t, e, texture.Diffuse)))

	require.NoError(t, e.RandomReset())
	assert.Equal(t, pipeline.DefaultRandomParams(), e.State().Seamless.Random)
	assert.True(t, first.Equal(output(t, e, texture.Diffuse)))
}

func TestSelectModeResetsOtherGroups(t *testing.T) {
	_, e := newEngine(t, 8, 8)
	st := e.State()
	st.Seamless.Simple.Radius = 0.4
	st.Seamless.Mirror.Axis = pipeline.MirrorY
	st.Seamless.Random.Inner = 0.1

	require.NoError(t, e.SelectSeamlessMode(pipeline.SeamlessMirror))
	assert.Equal(t, pipeline.DefaultSimpleParams(), st.Seamless.Simple)
	assert.Equal(t, pipeline.MirrorY, st.Seamless.Mirror.Axis)
	assert.Equal(t, pipeline.DefaultRandomParams(), st.Seamless.Random)
}

func TestAnglesDependOnSeed(t *testing.T) {
	p := pipeline.DefaultRandomParams()
	a := p.Angles()
	assert.Len(t, a, p.Grid*p.Grid)
	assert.Equal(t, a, p.Angles())
	for _, v := range a {
		assert.LessOrEqual(t, v, p.MaxAngle)
		assert.GreaterOrEqual(t, v, -p.MaxAngle)
	}
	p.Seed++
	assert.NotEqual(t, a, p.Angles())
}
