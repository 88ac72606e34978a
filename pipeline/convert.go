package pipeline

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"bumpforge/texture"
)

type convertOptions struct {
	shadow bool
}

type ConvertOption func(*convertOptions)

// WithShadowRender keeps the conversion off screen: nothing is displayed
// and the previous render target is restored afterwards.
func WithShadowRender() ConvertOption {
	return func(o *convertOptions) { o.shadow = true }
}

// Convert runs a one-shot conversion. The result is baked into the target
// channel's input, the target's source becomes SourceOwn, every channel
// is replotted and active is displayed.
func (e *Engine) Convert(mode ConversionMode, active texture.Channel, opts ...ConvertOption) error {
	var o convertOptions
	for _, fn := range opts {
		fn(&o)
	}
	if !active.Valid() {
		return fmt.Errorf("convert: %w: %s", texture.ErrUnsupportedChannel, active)
	}
	if mode == ConvertDiffuseToOthers && e.materials.Enabled() {
		return ErrConversionLocked
	}
	if o.shadow {
		guard := e.ShadowRender()
		defer guard.Release()
	}

	e.state.Mode = mode
	defer func() { e.state.Mode = ConvertNone }()

	var err error
	switch mode {
	case ConvertNone:
	case ConvertHeightToNormal:
		err = e.bakeFrom(texture.Normal, func(dst Surface) error {
			return e.heightToNormal(e.store.Output(texture.Height), dst)
		})
	case ConvertNormalToHeight:
		err = e.bakeFrom(texture.Height, func(dst Surface) error {
			return e.normalToHeight(e.store.Output(texture.Normal), dst)
		})
	case ConvertHeightNormalToOcclusion:
		err = e.bakeFrom(texture.Occlusion, func(dst Surface) error {
			return e.occlusion(e.store.Output(texture.Height), e.store.Output(texture.Normal), dst)
		})
	case ConvertDiffuseToOthers:
		err = e.diffuseToOthers()
	default:
		err = fmt.Errorf("unknown mode %d", mode)
	}
	if err != nil {
		return fmt.Errorf("convert %s: %w", mode, err)
	}
	e.log.Debug("converted", zap.Stringer("mode", mode), zap.Stringer("active", active))

	e.active = active
	if err := e.ReplotAll(); err != nil {
		return fmt.Errorf("convert %s: %w", mode, err)
	}
	return nil
}

func (e *Engine) bakeFrom(ch texture.Channel, produce func(dst Surface) error) error {
	err := e.withScratch(e.store.Output(ch), func(tmp Surface) error {
		guard := e.ShadowRender()
		defer guard.Release()
		if err := produce(tmp); err != nil {
			return err
		}
		return e.store.bakeInput(ch, tmp)
	})
	if err != nil {
		return err
	}
	e.state.Channels[ch].Source = SourceOwn
	return nil
}

// diffuseTargets are the channels derived by the diffuse to others chain
// and the source each one takes while it runs.
var diffuseTargets = map[texture.Channel]InputSource{
	texture.Height:    SourceDiffuse,
	texture.Normal:    SourceHeight,
	texture.Occlusion: SourceHeightNormal,
	texture.Specular:  SourceDiffuse,
	texture.Roughness: SourceDiffuse,
	texture.Metallic:  SourceDiffuse,
}

func (e *Engine) diffuseToOthers() error {
	saved := make(map[texture.Channel]InputSource, len(diffuseTargets))
	bake := make(map[texture.Channel]bool, len(diffuseTargets))
	for ch, src := range diffuseTargets {
		saved[ch] = e.state.Channels[ch].Source
		e.state.Channels[ch].Source = src
		bake[ch] = true
	}

	g, err := BuildGraph(e.state)
	if err == nil {
		var order []texture.Channel
		order, err = g.Order(func(ch texture.Channel) bool { return ch == texture.Grunge })
		if err == nil {
			err = e.replot(order, bake)
		}
	}
	if err != nil {
		for ch, src := range saved {
			e.state.Channels[ch].Source = src
		}
		return err
	}
	for ch := range diffuseTargets {
		e.state.Channels[ch].Source = SourceOwn
	}
	return nil
}

// ── Passes ───────────────────────────────────────────────────────────────────

func (e *Engine) heightToNormal(height, dst Surface) error {
	u := Uniforms{"strength": e.state.Normal.Strength}
	return e.dev.Run(PassHeightToNormal, dst, []Surface{height}, u)
}

// heightFromDiffuse builds the height proxy: high-passed luminance for
// detail plus low-passed luminance for large-scale shape.
func (e *Engine) heightFromDiffuse(dst Surface) error {
	p := e.state.Diffuse
	diffuse := e.store.Output(texture.Diffuse)
	w, h := dst.Size()
	a, err := e.pool.get(w, h)
	if err != nil {
		return err
	}
	defer e.pool.put(a)
	b, err := e.pool.get(w, h)
	if err != nil {
		return err
	}
	defer e.pool.put(b)

	sigma := max(p.ShapeRadius, 0.5)
	if err := e.dev.Run(PassGaussian, a, []Surface{diffuse}, Uniforms{"direction": [2]float32{1, 0}, "sigma": sigma}); err != nil {
		return err
	}
	if err := e.dev.Run(PassGaussian, b, []Surface{a}, Uniforms{"direction": [2]float32{0, 1}, "sigma": sigma}); err != nil {
		return err
	}
	u := Uniforms{
		"detail":   p.Detail,
		"shape":    p.Shape,
		"contrast": p.Contrast,
		"invert":   boolInt(p.Invert),
	}
	return e.dev.Run(PassLuminanceHeight, dst, []Surface{diffuse, b}, u)
}

func (e *Engine) occlusion(height, normal, dst Surface) error {
	p := e.state.Occlusion
	u := Uniforms{
		"radius":     p.Radius,
		"depth":      p.Depth,
		"strength":   p.Strength,
		"directions": int32(max(p.Directions, 1)),
		"steps":      int32(max(p.Steps, 1)),
	}
	return e.dev.Run(PassOcclusion, dst, []Surface{height, normal}, u)
}

// normalToHeight integrates the gradient field encoded by a normal map.
// Gradients are averaged down a pyramid, the coarsest level is relaxed
// from zero, and each level seeds the next finer one.
func (e *Engine) normalToHeight(normal, dst Surface) error {
	p := e.state.Height
	w, h := dst.Size()

	grad, err := e.pool.get(w, h)
	if err != nil {
		return err
	}
	if err := e.dev.Run(PassNormalToGradient, grad, []Surface{normal}, nil); err != nil {
		e.pool.put(grad)
		return err
	}
	grads := []Surface{grad}
	sizes := [][2]int{{w, h}}
	defer func() { e.pool.put(grads...) }()

	for len(grads) < max(p.Levels, 1) {
		cw, ch := sizes[len(sizes)-1][0], sizes[len(sizes)-1][1]
		if min(cw, ch)/2 < max(p.MinSize, 1) {
			break
		}
		next, err := e.pool.get(cw/2, ch/2)
		if err != nil {
			return err
		}
		grads = append(grads, next)
		if err := e.dev.Run(PassDownsample, next, []Surface{grads[len(grads)-2]}, nil); err != nil {
			return err
		}
		sizes = append(sizes, [2]int{cw / 2, ch / 2})
	}

	last := len(grads) - 1
	cur, err := e.pool.get(sizes[last][0], sizes[last][1])
	if err != nil {
		return err
	}
	if err := e.dev.Fill(cur, [4]float32{0, 0, 0, 1}); err != nil {
		e.pool.put(cur)
		return err
	}
	for lvl := last; lvl >= 0; lvl-- {
		lw, lh := sizes[lvl][0], sizes[lvl][1]
		if lvl != last {
			up, err := e.pool.get(lw, lh)
			if err != nil {
				e.pool.put(cur)
				return err
			}
			if err := e.dev.Run(PassCopy, up, []Surface{cur}, nil); err != nil {
				e.pool.put(cur, up)
				return err
			}
			e.pool.put(cur)
			cur = up
		}
		other, err := e.pool.get(lw, lh)
		if err != nil {
			e.pool.put(cur)
			return err
		}
		u := Uniforms{"scale": float32(int(1) << lvl), "omega": p.Omega}
		for i := 0; i < p.Iterations; i++ {
			if err := e.dev.Run(PassRelax, other, []Surface{cur, grads[lvl]}, u); err != nil {
				e.pool.put(cur, other)
				return err
			}
			cur, other = other, cur
		}
		e.pool.put(other)
	}
	defer e.pool.put(cur)

	img, err := e.dev.Download(cur)
	if err != nil {
		return err
	}
	lo, hi := redRange(img)
	return e.dev.Run(PassLevels, dst, []Surface{cur}, Uniforms{"min": lo, "max": hi})
}

func redRange(img *texture.Image) (lo, hi float32) {
	lo, hi = math.MaxFloat32, -math.MaxFloat32
	for i := 0; i < len(img.Pix); i += 4 {
		v := img.Pix[i]
		lo = min(lo, v)
		hi = max(hi, v)
	}
	return lo, hi
}
