package pipeline_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bumpforge/internal/software"
	"bumpforge/pipeline"
	"bumpforge/texture"
)

func TestConvertNeutralInputs(t *testing.T) {
	modes := []pipeline.ConversionMode{
		pipeline.ConvertNone,
		pipeline.ConvertHeightToNormal,
		pipeline.ConvertNormalToHeight,
		pipeline.ConvertDiffuseToOthers,
		pipeline.ConvertHeightNormalToOcclusion,
	}
	for _, mode := range modes {
		t.Run(mode.String(), func(t *testing.T) {
			_, e := newEngine(t, 16, 12)
			require.NoError(t, e.Convert(mode, texture.Diffuse))

			for _, ch := range texture.All() {
				img := output(t, e, ch)
				assert.Equal(t, 16, img.Width, ch.String())
				assert.Equal(t, 12, img.Height, ch.String())
				requireInRange(t, img, ch.String())
			}
			n := output(t, e, texture.Normal).At(5, 5)
			assert.InDelta(t, 0.5, n[0], 1e-4)
			assert.InDelta(t, 0.5, n[1], 1e-4)
			assert.InDelta(t, 1, n[2], 1e-4)
			assert.InDelta(t, 1, output(t, e, texture.Occlusion).At(3, 7)[0], 1e-4)
		})
	}
}

func TestConvertModeResetsAfterRun(t *testing.T) {
	_, e := newEngine(t, 8, 8)
	require.NoError(t, e.Convert(pipeline.ConvertDiffuseToOthers, texture.Normal))
	assert.Equal(t, pipeline.ConvertNone, e.State().Mode)
	assert.Equal(t, texture.Normal, e.Active())
}

func TestHeightToNormalSlope(t *testing.T) {
	_, e := newEngine(t, 8, 8)
	ramp := texture.NewImage(8, 8)
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			// Rises to the right in the interior; the wrap seam is ignored.
			v := float32(x) / 10
			ramp.Set(x, y, [4]float32{v, v, v, 1})
		}
	}
	require.NoError(t, e.LoadImage(texture.Height, ramp))
	require.NoError(t, e.Convert(pipeline.ConvertHeightToNormal, texture.Normal))

	n := output(t, e, texture.Normal).At(4, 4)
	assert.Less(t, n[0], float32(0.5), "normal leans against the slope")
	assert.InDelta(t, 0.5, n[1], 1e-5)
	assert.InDelta(t, 0.4, n[3], 1e-5, "alpha carries height")
	assert.Equal(t, pipeline.SourceOwn, e.State().Source(texture.Normal))
	assert.True(t, e.Store().HasInput(texture.Normal))
}

func TestNormalHeightRoundTrip(t *testing.T) {
	_, e := newEngine(t, 64, 64)
	e.State().Height.Iterations = 60
	h0 := bumps(64, 64)

	require.NoError(t, e.LoadImage(texture.Height, h0))
	require.NoError(t, e.Convert(pipeline.ConvertHeightToNormal, texture.Normal))
	require.NoError(t, e.Convert(pipeline.ConvertNormalToHeight, texture.Height))

	got := output(t, e, texture.Height)
	requireInRange(t, got, "height")
	rho := spearman(red(h0), red(got))
	assert.GreaterOrEqual(t, rho, 0.9)
}

func TestReplotAllIsIdempotent(t *testing.T) {
	_, e := newEngine(t, 32, 32)
	st := e.State()
	st.Diffuse.EnableConversion = false
	require.NoError(t, e.LoadImage(texture.Diffuse, noise(32, 32, 3)))
	require.NoError(t, e.LoadImage(texture.Grunge, noise(16, 16, 4)))

	require.NoError(t, st.SetSource(texture.Height, pipeline.SourceDiffuse))
	require.NoError(t, st.SetSource(texture.Normal, pipeline.SourceHeight))
	require.NoError(t, st.SetSource(texture.Occlusion, pipeline.SourceHeightNormal))
	require.NoError(t, st.SetSource(texture.Specular, pipeline.SourceDiffuse))
	require.NoError(t, st.SetSource(texture.Roughness, pipeline.SourceHeight))
	st.Channels[texture.Diffuse].Adjust.GrungeWeight = 0.4
	st.Channels[texture.Height].Adjust = pipeline.AdjustParams{Brightness: 0.1, Contrast: 1.3}
	st.SeamlessMode = pipeline.SeamlessSimple
	st.Seamless.Contrast.Strength = 0.5

	require.NoError(t, e.ReplotAll())
	first := make(map[texture.Channel]*texture.Image)
	for _, ch := range texture.All() {
		first[ch] = output(t, e, ch)
	}
	require.NoError(t, e.ReplotAll())
	for _, ch := range texture.All() {
		assert.True(t, first[ch].Equal(output(t, e, ch)), ch.String())
	}
}

func TestReplotAfterDiffuseToOthersIsStable(t *testing.T) {
	_, e := newEngine(t, 24, 24)
	require.NoError(t, e.LoadImage(texture.Diffuse, noise(24, 24, 11)))
	before := output(t, e, texture.Normal)
	require.NoError(t, e.ReplotAll())
	assert.True(t, before.Equal(output(t, e, texture.Normal)))
	for _, ch := range []texture.Channel{texture.Height, texture.Normal, texture.Occlusion, texture.Specular} {
		assert.Equal(t, pipeline.SourceOwn, e.State().Source(ch), ch.String())
		assert.True(t, e.Store().HasInput(ch), ch.String())
	}
}

func TestDiffuseToOthersLeavesGrunge(t *testing.T) {
	_, e := newEngine(t, 16, 16)
	require.NoError(t, e.LoadImage(texture.Grunge, noise(8, 8, 5)))
	g := output(t, e, texture.Grunge)

	require.NoError(t, e.Convert(pipeline.ConvertDiffuseToOthers, texture.Diffuse))
	assert.True(t, g.Equal(output(t, e, texture.Grunge)))
}

func TestLoadDiffuseSetsResolution(t *testing.T) {
	_, e := newEngine(t, 8, 8)
	e.State().Diffuse.EnableConversion = false
	require.NoError(t, e.LoadImage(texture.Diffuse, noise(20, 10, 1)))
	w, h := e.Store().Size()
	assert.Equal(t, 20, w)
	assert.Equal(t, 10, h)
	assert.Equal(t, 20, output(t, e, texture.Normal).Width)
}

func TestLoadRejectsDerivedOnlyChannel(t *testing.T) {
	_, e := newEngine(t, 8, 8)
	err := e.LoadImage(texture.Material, noise(8, 8, 1))
	assert.ErrorIs(t, err, texture.ErrUnsupportedChannel)
}

func TestReplotPropagatesToDependents(t *testing.T) {
	_, e := newEngine(t, 16, 16)
	st := e.State()
	require.NoError(t, st.SetSource(texture.Normal, pipeline.SourceHeight))
	require.NoError(t, e.ReplotAll())
	flat := output(t, e, texture.Normal)

	require.NoError(t, e.LoadImage(texture.Height, bumps(16, 16)))
	assert.False(t, flat.Equal(output(t, e, texture.Normal)), "normal follows its height source")
}

func TestShadowRenderRestoresTarget(t *testing.T) {
	p := &recordingPresenter{}
	dev, e := newEngine(t, 8, 8, pipeline.WithPresenter(p))
	marker, err := dev.NewSurface(2, 2)
	require.NoError(t, err)
	dev.SetTarget(marker)

	require.NoError(t, e.Convert(pipeline.ConvertHeightToNormal, texture.Normal, pipeline.WithShadowRender()))
	assert.Same(t, marker, dev.Target())
	assert.Empty(t, p.shown)
	assert.False(t, e.Shadowed())

	require.NoError(t, e.ReplotAll())
	assert.Equal(t, []texture.Channel{texture.Normal}, p.shown)
}

type failingDevice struct {
	*software.Device
	fail pipeline.Pass
}

func (d *failingDevice) Run(p pipeline.Pass, dst pipeline.Surface, in []pipeline.Surface, u pipeline.Uniforms) error {
	if p == d.fail {
		return errors.New("boom")
	}
	return d.Device.Run(p, dst, in, u)
}

func TestShadowGuardReleasedOnError(t *testing.T) {
	dev := &failingDevice{Device: software.New(), fail: pipeline.PassHeightToNormal}
	store, err := pipeline.NewStore(dev, 8, 8)
	require.NoError(t, err)
	defer store.Destroy()
	e := pipeline.NewEngine(store, nil)
	defer e.Release()

	marker, err := dev.NewSurface(1, 1)
	require.NoError(t, err)
	dev.SetTarget(marker)

	err = e.Convert(pipeline.ConvertHeightToNormal, texture.Normal, pipeline.WithShadowRender())
	require.Error(t, err)
	assert.False(t, e.Shadowed())
	assert.Same(t, marker, dev.Target())
	assert.Equal(t, pipeline.ConvertNone, e.State().Mode)
}

func TestReplotRejectsInvalidSource(t *testing.T) {
	_, e := newEngine(t, 8, 8)
	e.State().Channels[texture.Height].Source = pipeline.SourceHeightNormal
	assert.ErrorIs(t, e.ReplotAll(), texture.ErrUnsupportedChannel)
	assert.False(t, e.Shadowed())
}

func TestShadowGuardNests(t *testing.T) {
	_, e := newEngine(t, 4, 4)
	outer := e.ShadowRender()
	inner := e.ShadowRender()
	inner.Release()
	inner.Release()
	assert.True(t, e.Shadowed())
	outer.Release()
	assert.False(t, e.Shadowed())
}

func TestResizeKeepsGrungeAndRescaleDoesNot(t *testing.T) {
	_, e := newEngine(t, 16, 16)
	require.NoError(t, e.LoadImage(texture.Grunge, noise(8, 8, 2)))

	require.NoError(t, e.Resize(32, 24))
	assert.Equal(t, 32, output(t, e, texture.Height).Width)
	assert.Equal(t, 24, output(t, e, texture.Height).Height)
	assert.Equal(t, 8, output(t, e, texture.Grunge).Width)

	require.NoError(t, e.Rescale(0.5, 0.5))
	assert.Equal(t, 16, output(t, e, texture.Height).Width)
	assert.Equal(t, 4, output(t, e, texture.Grunge).Width)
}

func TestResizeRoundTripThroughExtremeAspect(t *testing.T) {
	_, e := newEngine(t, 16, 12)
	require.NoError(t, e.LoadImage(texture.Diffuse, noise(16, 12, 5)))

	for _, size := range [][2]int{{5, 40}, {64, 1}, {16, 12}} {
		require.NoError(t, e.Resize(size[0], size[1]))
		w, h := e.Store().Size()
		require.Equal(t, size, [2]int{w, h})
		for _, ch := range texture.All() {
			img := output(t, e, ch)
			requireInRange(t, img, ch.String())
			if ch != texture.Grunge {
				assert.Equal(t, size, [2]int{img.Width, img.Height}, ch.String())
			}
		}
	}
	require.NoError(t, e.Convert(pipeline.ConvertDiffuseToOthers, texture.Diffuse))
	assert.Equal(t, 16, output(t, e, texture.Normal).Width)
}

func TestApplySeamlessBakesDiffuse(t *testing.T) {
	_, e := newEngine(t, 16, 16)
	e.State().Diffuse.EnableConversion = false
	require.NoError(t, e.LoadImage(texture.Diffuse, noise(16, 16, 4)))
	require.NoError(t, e.SelectSeamlessMode(pipeline.SeamlessRandom))
	tiled := output(t, e, texture.Diffuse)
	before := output(t, e, texture.Normal)

	require.NoError(t, e.ApplySeamless())
	assert.Equal(t, pipeline.SeamlessNone, e.State().SeamlessMode)
	assert.Equal(t, pipeline.DefaultSeamlessParams(), e.State().Seamless)
	assert.False(t, e.State().Diffuse.EnableConversion)

	got := output(t, e, texture.Diffuse)
	for i := range tiled.Pix {
		require.InDelta(t, tiled.Pix[i], got.Pix[i], 1e-5, "texel %d", i)
	}
	assert.NotEqual(t, before.Pix, output(t, e, texture.Normal).Pix)

	require.NoError(t, e.EnableMaterials())
	assert.ErrorIs(t, e.ApplySeamless(), pipeline.ErrConversionLocked)
}

func TestEngineReleasesScratch(t *testing.T) {
	dev := software.New()
	store, err := pipeline.NewStore(dev, 16, 16)
	require.NoError(t, err)
	e := pipeline.NewEngine(store, nil)
	require.NoError(t, e.LoadImage(texture.Diffuse, noise(16, 16, 9)))
	e.Release()
	store.Destroy()
	assert.Zero(t, dev.Live())
}
