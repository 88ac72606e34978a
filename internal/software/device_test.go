package software

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bumpforge/pipeline"
	"bumpforge/texture"
)

func run(t *testing.T, p pipeline.Pass, w, h int, u pipeline.Uniforms, in ...*texture.Image) *texture.Image {
	t.Helper()
	d := New()
	var surfaces []pipeline.Surface
	for _, img := range in {
		s, err := d.NewSurface(img.Width, img.Height)
		require.NoError(t, err)
		require.NoError(t, d.Upload(s, img))
		surfaces = append(surfaces, s)
	}
	dst, err := d.NewSurface(w, h)
	require.NoError(t, err)
	require.NoError(t, d.Run(p, dst, surfaces, u))
	assert.Same(t, dst, d.Target())
	out, err := d.Download(dst)
	require.NoError(t, err)
	return out
}

func TestUploadSizeMismatch(t *testing.T) {
	d := New()
	s, err := d.NewSurface(2, 2)
	require.NoError(t, err)
	assert.Error(t, d.Upload(s, texture.NewImage(3, 2)))
}

func TestRunChecksArity(t *testing.T) {
	d := New()
	s, err := d.NewSurface(2, 2)
	require.NoError(t, err)
	assert.Error(t, d.Run(pipeline.PassRelax, s, []pipeline.Surface{s}, nil))
}

func TestForeignSurface(t *testing.T) {
	type fake struct{ pipeline.Surface }
	d := New()
	assert.ErrorIs(t, d.Fill(fake{}, [4]float32{}), errForeignSurface)
}

func TestDownsampleAverages(t *testing.T) {
	src := texture.NewImage(4, 2)
	for i := 0; i < 8; i++ {
		v := float32(i)
		src.Set(i%4, i/4, [4]float32{v, v, v, 1})
	}
	out := run(t, pipeline.PassDownsample, 2, 1, nil, src)
	assert.InDelta(t, (0+1+4+5)/4.0, out.At(0, 0)[0], 1e-6)
	assert.InDelta(t, (2+3+6+7)/4.0, out.At(1, 0)[0], 1e-6)
}

func TestGaussianKeepsConstant(t *testing.T) {
	src := texture.Filled(9, 9, [4]float32{0.25, 0.5, 0.75, 1})
	out := run(t, pipeline.PassGaussian, 9, 9, pipeline.Uniforms{"direction": [2]float32{0, 1}, "sigma": float32(3)}, src)
	for _, v := range [][4]float32{out.At(0, 0), out.At(4, 8)} {
		assert.InDelta(t, 0.25, v[0], 1e-5)
		assert.InDelta(t, 0.75, v[2], 1e-5)
		assert.InDelta(t, 1, v[3], 1e-5)
	}
}

func TestLevelsStretches(t *testing.T) {
	src := texture.NewImage(2, 1)
	src.Set(0, 0, [4]float32{-2, 0, 0, 1})
	src.Set(1, 0, [4]float32{6, 0, 0, 1})
	out := run(t, pipeline.PassLevels, 2, 1, pipeline.Uniforms{"min": float32(-2), "max": float32(6)}, src)
	assert.Equal(t, [4]float32{0, 0, 0, 1}, out.At(0, 0))
	assert.Equal(t, [4]float32{1, 1, 1, 1}, out.At(1, 0))

	flat := run(t, pipeline.PassLevels, 2, 1, pipeline.Uniforms{"min": float32(3), "max": float32(3)}, src)
	assert.Equal(t, [4]float32{0, 0, 0, 1}, flat.At(1, 0))
}

func TestOcclusionDarkensPit(t *testing.T) {
	hgt := texture.Filled(16, 16, [4]float32{1, 1, 1, 1})
	hgt.Set(8, 8, [4]float32{0, 0, 0, 1})
	nrm := texture.Filled(16, 16, texture.Normal.Neutral())
	u := pipeline.Uniforms{
		"radius": float32(0.1), "depth": float32(1), "strength": float32(1),
		"directions": int32(8), "steps": int32(4),
	}
	out := run(t, pipeline.PassOcclusion, 16, 16, u, hgt, nrm)
	assert.Less(t, out.At(8, 8)[0], float32(0.5))
	assert.InDelta(t, 1, out.At(2, 2)[0], 1e-6)
}

func TestGrungeNeutralIsIdentity(t *testing.T) {
	base := texture.NewImage(3, 1)
	base.Set(0, 0, [4]float32{0.1, 0.4, 0.9, 1})
	base.Set(1, 0, [4]float32{0.6, 0.5, 0.2, 1})
	base.Set(2, 0, [4]float32{1, 0, 0.5, 1})
	grunge := texture.Filled(5, 5, texture.Grunge.Neutral())
	out := run(t, pipeline.PassGrungeBlend, 3, 1, pipeline.Uniforms{"weight": float32(1)}, base, grunge)
	for x := 0; x < 3; x++ {
		for i := 0; i < 4; i++ {
			assert.InDelta(t, base.At(x, 0)[i], out.At(x, 0)[i], 1e-6)
		}
	}
}

func TestMaterialMaskUnmatchedIsTransparent(t *testing.T) {
	src := texture.NewImage(2, 1)
	src.Set(0, 0, [4]float32{1, 0, 0, 1})
	src.Set(1, 0, [4]float32{0, 1, 0, 1})
	u := pipeline.Uniforms{
		"keys":      [][4]float32{{1, 0, 0, 1}},
		"count":     int32(1),
		"tolerance": float32(0.01),
	}
	out := run(t, pipeline.PassMaterialMask, 2, 1, u, src)
	assert.Equal(t, [4]float32{1, 0, 0, 1}, out.At(0, 0))
	assert.Equal(t, [4]float32{}, out.At(1, 0))
}

func TestRunCounts(t *testing.T) {
	d := New()
	s, err := d.NewSurface(1, 1)
	require.NoError(t, err)
	require.NoError(t, d.Run(pipeline.PassFill, s, nil, pipeline.Uniforms{"color": [4]float32{1, 0, 0, 1}}))
	assert.Equal(t, 1, d.Runs(pipeline.PassFill))
	d.Release(s)
	assert.Zero(t, d.Live())
	assert.Nil(t, d.Target())
}
