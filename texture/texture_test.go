package texture

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseChannel(t *testing.T) {
	for _, c := range All() {
		got, err := ParseChannel(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}
	_, err := ParseChannel("albedo")
	assert.ErrorIs(t, err, ErrUnsupportedChannel)
}

func TestNeutralValuesInRange(t *testing.T) {
	for _, c := range All() {
		for _, v := range c.Neutral() {
			assert.GreaterOrEqual(t, v, float32(0), c.String())
			assert.LessOrEqual(t, v, float32(1), c.String())
		}
	}
	assert.Equal(t, [4]float32{0.5, 0.5, 1, 1}, Normal.Neutral())
	assert.Equal(t, [4]float32{1, 1, 1, 1}, Occlusion.Neutral())
}

func TestSampleAtTexelCentreIsExact(t *testing.T) {
	m := NewImage(5, 3)
	for i := range m.Pix {
		m.Pix[i] = float32(i) * 0.01
	}
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			u := (float32(x) + 0.5) / float32(m.Width)
			v := (float32(y) + 0.5) / float32(m.Height)
			assert.Equal(t, m.At(x, y), m.Sample(u, v))
		}
	}
}

func TestSampleWraps(t *testing.T) {
	m := NewImage(2, 1)
	m.Set(0, 0, [4]float32{0, 0, 0, 1})
	m.Set(1, 0, [4]float32{1, 1, 1, 1})
	// Halfway between the last and first texel across the seam.
	got := m.Sample(1, 0.5)
	assert.InDelta(t, 0.5, got[0], 1e-6)
}

func TestWrap(t *testing.T) {
	assert.Equal(t, 3, Wrap(-1, 4))
	assert.Equal(t, 0, Wrap(4, 4))
	assert.Equal(t, 2, Wrap(2, 4))
}

func TestSaveLoadPNG(t *testing.T) {
	m := NewImage(4, 4)
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			m.Set(x, y, [4]float32{float32(x) / 3, float32(y) / 3, 0.5, 1})
		}
	}
	path := filepath.Join(t.TempDir(), OutputName("brick", Normal.DefaultSuffix(), FormatPNG))
	assert.Equal(t, "brick_n.png", filepath.Base(path))
	require.NoError(t, Save(path, m, FormatPNG))

	got, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 4, got.Width)
	for i := range m.Pix {
		assert.InDelta(t, m.Pix[i], got.Pix[i], 1.0/255)
	}
}

func TestSaveAllFormats(t *testing.T) {
	m := Filled(8, 8, [4]float32{0.2, 0.4, 0.6, 1})
	dir := t.TempDir()
	for _, f := range []Format{FormatPNG, FormatJPEG, FormatBMP, FormatTGA, FormatWebP} {
		require.NoError(t, Save(filepath.Join(dir, "x"+f.Ext()), m, f), string(f))
	}
	for _, f := range []Format{FormatPNG, FormatJPEG, FormatBMP, FormatTGA} {
		got, err := Load(filepath.Join(dir, "x"+f.Ext()))
		require.NoError(t, err, string(f))
		require.Equal(t, 8, got.Width, string(f))
		require.Equal(t, 8, got.Height, string(f))
		c := got.At(3, 3)
		assert.InDelta(t, 0.2, c[0], 0.03, string(f))
		assert.InDelta(t, 0.4, c[1], 0.03, string(f))
		assert.InDelta(t, 0.6, c[2], 0.03, string(f))
	}
}

func TestDecodeIgnoresRegisteredFormats(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, Filled(2, 2, [4]float32{1, 0, 0, 1}), FormatPNG))
	got, err := Decode(bytes.NewReader(buf.Bytes()), ".PNG")
	require.NoError(t, err)
	assert.InDelta(t, 1, got.At(0, 0)[0], 1e-6)
	_, err = Decode(bytes.NewReader(buf.Bytes()), ".webp")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestLoadRejectsUnknownExtension(t *testing.T) {
	_, err := Load("foo.xcf")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestParseExported(t *testing.T) {
	all, err := ParseExported(" ")
	require.NoError(t, err)
	assert.Equal(t, Exported(), all)

	got, err := ParseExported("Height, normal,height")
	require.NoError(t, err)
	assert.Equal(t, []Channel{Normal, Height}, got)

	_, err = ParseExported("normal,grunge")
	assert.ErrorIs(t, err, ErrUnsupportedChannel)
	_, err = ParseExported("albedo")
	assert.ErrorIs(t, err, ErrUnsupportedChannel)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat(".JPEG")
	require.NoError(t, err)
	assert.Equal(t, FormatJPEG, f)
	_, err = ParseFormat("exr")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestResize(t *testing.T) {
	m := Filled(16, 8, [4]float32{0.5, 0.5, 0.5, 1})
	r := Resize(m, 4, 2)
	assert.Equal(t, 4, r.Width)
	assert.Equal(t, 2, r.Height)
	assert.InDelta(t, 0.5, r.At(1, 1)[0], 1.0/255)
}

func TestBaseName(t *testing.T) {
	assert.Equal(t, "rock", BaseName("/tmp/in/rock.png"))
}
