package texture

import (
	"image"
	"image/color"
	"math"
)

// Image is a float RGBA image, rows stored top to bottom, four floats per
// texel. Values of colour channels are nominally in [0,1].
type Image struct {
	Width  int
	Height int
	Pix    []float32
}

func NewImage(w, h int) *Image {
	return &Image{Width: w, Height: h, Pix: make([]float32, w*h*4)}
}

// Filled returns a w×h image with every texel set to c.
func Filled(w, h int, c [4]float32) *Image {
	m := NewImage(w, h)
	for i := 0; i < len(m.Pix); i += 4 {
		copy(m.Pix[i:i+4], c[:])
	}
	return m
}

func (m *Image) Offset(x, y int) int { return (y*m.Width + x) * 4 }

func (m *Image) At(x, y int) [4]float32 {
	o := m.Offset(x, y)
	return [4]float32{m.Pix[o], m.Pix[o+1], m.Pix[o+2], m.Pix[o+3]}
}

func (m *Image) Set(x, y int, c [4]float32) {
	o := m.Offset(x, y)
	copy(m.Pix[o:o+4], c[:])
}

// AtWrap fetches with repeat addressing.
func (m *Image) AtWrap(x, y int) [4]float32 {
	return m.At(Wrap(x, m.Width), Wrap(y, m.Height))
}

// Wrap maps i into [0,n).
func Wrap(i, n int) int {
	i %= n
	if i < 0 {
		i += n
	}
	return i
}

// Sample reads the image at normalized coordinates with bilinear filtering
// and repeat addressing, matching a GL_LINEAR / GL_REPEAT sampler.
func (m *Image) Sample(u, v float32) [4]float32 {
	fx := u*float32(m.Width) - 0.5
	fy := v*float32(m.Height) - 0.5
	x0 := int(math.Floor(float64(fx)))
	y0 := int(math.Floor(float64(fy)))
	tx := fx - float32(x0)
	ty := fy - float32(y0)
	// Texel-centred lookups return the texel unchanged.
	const snap = 1e-4
	if tx > 1-snap {
		x0, tx = x0+1, 0
	}
	if ty > 1-snap {
		y0, ty = y0+1, 0
	}
	if tx < snap && ty < snap {
		return m.AtWrap(x0, y0)
	}
	a := m.AtWrap(x0, y0)
	b := m.AtWrap(x0+1, y0)
	c := m.AtWrap(x0, y0+1)
	d := m.AtWrap(x0+1, y0+1)
	var out [4]float32
	for i := range out {
		top := a[i] + (b[i]-a[i])*tx
		bot := c[i] + (d[i]-c[i])*tx
		out[i] = top + (bot-top)*ty
	}
	return out
}

func (m *Image) Clone() *Image {
	out := &Image{Width: m.Width, Height: m.Height, Pix: make([]float32, len(m.Pix))}
	copy(out.Pix, m.Pix)
	return out
}

// Equal reports bit-for-bit equality.
func (m *Image) Equal(o *Image) bool {
	if m.Width != o.Width || m.Height != o.Height || len(m.Pix) != len(o.Pix) {
		return false
	}
	for i := range m.Pix {
		if m.Pix[i] != o.Pix[i] {
			return false
		}
	}
	return true
}

// FromImage converts any decoded image, un-premultiplying alpha.
func FromImage(src image.Image) *Image {
	b := src.Bounds()
	out := NewImage(b.Dx(), b.Dy())
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			c := color.NRGBA64Model.Convert(src.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA64)
			out.Set(x, y, [4]float32{
				float32(c.R) / 0xffff,
				float32(c.G) / 0xffff,
				float32(c.B) / 0xffff,
				float32(c.A) / 0xffff,
			})
		}
	}
	return out
}

// ToNRGBA quantizes to 8 bits per channel, clamping out-of-range values.
func (m *Image) ToNRGBA() *image.NRGBA {
	out := image.NewNRGBA(image.Rect(0, 0, m.Width, m.Height))
	for i, v := range m.Pix {
		out.Pix[i] = quantize(v)
	}
	return out
}

func quantize(v float32) uint8 {
	if v != v || v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(v*255 + 0.5)
}
