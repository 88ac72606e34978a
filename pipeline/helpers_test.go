package pipeline_test

import (
	"math"
	"math/rand/v2"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"bumpforge/internal/software"
	"bumpforge/pipeline"
	"bumpforge/texture"
)

func newEngine(t *testing.T, w, h int, opts ...pipeline.Option) (*software.Device, *pipeline.Engine) {
	t.Helper()
	dev := software.New()
	store, err := pipeline.NewStore(dev, w, h)
	require.NoError(t, err)
	t.Cleanup(store.Destroy)
	e := pipeline.NewEngine(store, pipeline.DefaultState(), opts...)
	t.Cleanup(e.Release)
	return dev, e
}

func output(t *testing.T, e *pipeline.Engine, ch texture.Channel) *texture.Image {
	t.Helper()
	img, err := e.Store().Image(ch)
	require.NoError(t, err)
	return img
}

func noise(w, h int, seed uint64) *texture.Image {
	r := rand.New(rand.NewPCG(seed, 7))
	img := texture.NewImage(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, [4]float32{r.Float32(), r.Float32(), r.Float32(), 1})
		}
	}
	return img
}

// bumps is a tileable height field.
func bumps(w, h int) *texture.Image {
	img := texture.NewImage(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			fx := 2 * math.Pi * float64(x) / float64(w)
			fy := 2 * math.Pi * float64(y) / float64(h)
			v := float32(0.5 + 0.2*math.Sin(fx)*math.Cos(2*fy) + 0.15*math.Cos(fx+fy))
			img.Set(x, y, [4]float32{v, v, v, 1})
		}
	}
	return img
}

func red(img *texture.Image) []float64 {
	out := make([]float64, 0, img.Width*img.Height)
	for i := 0; i < len(img.Pix); i += 4 {
		out = append(out, float64(img.Pix[i]))
	}
	return out
}

func ranks(v []float64) []float64 {
	idx := make([]int, len(v))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return v[idx[a]] < v[idx[b]] })
	r := make([]float64, len(v))
	for i := 0; i < len(idx); {
		j := i
		for j+1 < len(idx) && v[idx[j+1]] == v[idx[i]] {
			j++
		}
		avg := float64(i+j) / 2
		for k := i; k <= j; k++ {
			r[idx[k]] = avg
		}
		i = j + 1
	}
	return r
}

func spearman(a, b []float64) float64 {
	ra, rb := ranks(a), ranks(b)
	var ma, mb float64
	for i := range ra {
		ma += ra[i]
		mb += rb[i]
	}
	ma /= float64(len(ra))
	mb /= float64(len(rb))
	var cov, va, vb float64
	for i := range ra {
		da, db := ra[i]-ma, rb[i]-mb
		cov += da * db
		va += da * da
		vb += db * db
	}
	return cov / math.Sqrt(va*vb)
}

func requireInRange(t *testing.T, img *texture.Image, name string) {
	t.Helper()
	for i, v := range img.Pix {
		require.False(t, v != v, "%s: NaN at %d", name, i)
		require.GreaterOrEqual(t, v, float32(0), "%s at %d", name, i)
		require.LessOrEqual(t, v, float32(1), "%s at %d", name, i)
	}
}

type recordingPresenter struct {
	shown []texture.Channel
}

func (p *recordingPresenter) Present(ch texture.Channel, _ pipeline.Surface) {
	p.shown = append(p.shown, ch)
}
