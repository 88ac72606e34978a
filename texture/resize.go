package texture

import (
	"github.com/anthonynsimon/bild/transform"
)

// Resize resamples m to w×h. Downscaling of loaded inputs goes through an
// 8-bit intermediate, which is what the files held to begin with.
func Resize(m *Image, w, h int) *Image {
	if m.Width == w && m.Height == h {
		return m.Clone()
	}
	rgba := transform.Resize(m.ToNRGBA(), w, h, transform.Linear)
	return FromImage(rgba)
}
