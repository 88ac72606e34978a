package pipeline

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"bumpforge/texture"
)

// ErrConversionLocked is returned for diffuse conversions while material
// regions are being edited.
var ErrConversionLocked = errors.New("diffuse conversion disabled while materials are enabled")

// Presenter shows a channel's output, e.g. in the 2D preview.
type Presenter interface {
	Present(ch texture.Channel, s Surface)
}

type Option func(*Engine)

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.log = l }
}

func WithPresenter(p Presenter) Option {
	return func(e *Engine) { e.presenter = p }
}

// Engine recomputes channel outputs from their sources and runs the
// one-shot conversions.
type Engine struct {
	dev       Device
	store     *Store
	state     *PipelineState
	log       *zap.Logger
	presenter Presenter
	pool      *surfacePool
	seamless  *Seamless
	materials *MaterialIndex

	active texture.Channel
	shadow int
}

func NewEngine(store *Store, state *PipelineState, opts ...Option) *Engine {
	if state == nil {
		state = DefaultState()
	}
	pool := newSurfacePool(store.Device())
	e := &Engine{
		dev:       store.Device(),
		store:     store,
		state:     state,
		log:       zap.NewNop(),
		pool:      pool,
		seamless:  newSeamlessWithPool(pool),
		materials: NewMaterialIndex(),
		active:    texture.Diffuse,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Engine) Store() *Store { return e.store }

func (e *Engine) State() *PipelineState { return e.state }

func (e *Engine) Materials() *MaterialIndex { return e.materials }

func (e *Engine) Active() texture.Channel { return e.active }

// SetActive selects the channel shown by the presenter.
func (e *Engine) SetActive(ch texture.Channel) error {
	if !ch.Valid() {
		return fmt.Errorf("%w: %s", texture.ErrUnsupportedChannel, ch)
	}
	e.active = ch
	e.display(ch)
	return nil
}

// Release frees the engine's scratch surfaces. The store is not touched.
func (e *Engine) Release() { e.pool.drain() }

func (e *Engine) display(ch texture.Channel) {
	if e.shadow > 0 || e.presenter == nil {
		return
	}
	e.presenter.Present(ch, e.store.Output(ch))
}

// ── Loading ──────────────────────────────────────────────────────────────────

// LoadImage makes img the content of ch. A new diffuse image sets the
// shared resolution and, with EnableConversion on, derives every other
// channel from it.
func (e *Engine) LoadImage(ch texture.Channel, img *texture.Image) error {
	if !ch.Valid() || !ValidSource(ch, SourceOwn) {
		return fmt.Errorf("load: %w: %s", texture.ErrUnsupportedChannel, ch)
	}
	resized := false
	if ch == texture.Diffuse {
		if w, h := e.store.Size(); w != img.Width || h != img.Height {
			if err := e.store.Resize(img.Width, img.Height); err != nil {
				return fmt.Errorf("load: %w", err)
			}
			e.pool.drain()
			resized = true
		}
	}
	if err := e.store.SetInput(ch, img); err != nil {
		return fmt.Errorf("load: %w", err)
	}
	e.state.Channels[ch].Source = SourceOwn
	e.log.Debug("image loaded", zap.Stringer("channel", ch), zap.Int("width", img.Width), zap.Int("height", img.Height))

	if ch == texture.Diffuse {
		if e.materials.Enabled() {
			if err := e.repartition(); err != nil {
				return err
			}
		}
		if e.state.Diffuse.EnableConversion {
			return e.Convert(ConvertDiffuseToOthers, texture.Diffuse)
		}
	}
	if resized {
		return e.ReplotAll()
	}
	return e.Replot(ch)
}

// ── Replot ───────────────────────────────────────────────────────────────────

// ReplotAll recomputes every channel in dependency order and redisplays
// the active channel. Grunge is left untouched while the diffuse to
// others conversion is running.
func (e *Engine) ReplotAll() error {
	g, err := BuildGraph(e.state)
	if err != nil {
		return err
	}
	order, err := g.Order(func(ch texture.Channel) bool {
		return ch == texture.Grunge && e.state.Mode == ConvertDiffuseToOthers
	})
	if err != nil {
		return err
	}
	if err := e.replot(order, nil); err != nil {
		return err
	}
	e.display(e.active)
	return nil
}

// Replot recomputes ch and every channel that depends on it.
func (e *Engine) Replot(ch texture.Channel) error {
	if !ch.Valid() {
		return fmt.Errorf("replot: %w: %s", texture.ErrUnsupportedChannel, ch)
	}
	g, err := BuildGraph(e.state)
	if err != nil {
		return err
	}
	deps, err := g.Dependents(ch)
	if err != nil {
		return err
	}
	if err := e.replot(append([]texture.Channel{ch}, deps...), nil); err != nil {
		return err
	}
	e.display(e.active)
	return nil
}

// replot updates the channels in order under a shadow guard. Channels in
// bake also get their derived content stored as their input.
func (e *Engine) replot(order []texture.Channel, bake map[texture.Channel]bool) error {
	guard := e.ShadowRender()
	defer guard.Release()

	for _, ch := range order {
		if err := e.updateChannel(ch, bake[ch]); err != nil {
			return fmt.Errorf("replot %s: %w", ch, err)
		}
	}
	e.log.Debug("replot", zap.Int("channels", len(order)))
	return nil
}

func (e *Engine) updateChannel(ch texture.Channel, bake bool) error {
	w, h := e.store.Output(ch).Size()
	derived, err := e.pool.get(w, h)
	if err != nil {
		return err
	}
	defer e.pool.put(derived)

	if err := e.derive(ch, derived); err != nil {
		return err
	}
	if bake {
		if err := e.store.bakeInput(ch, derived); err != nil {
			return err
		}
	}
	return e.finish(ch, derived)
}

// derive writes the raw content of ch, before adjustments, into dst.
func (e *Engine) derive(ch texture.Channel, dst Surface) error {
	src := e.state.Source(ch)
	switch {
	case ch == texture.Material:
		return e.materialMask(dst)

	case src == SourceOwn:
		in := e.store.Input(ch)
		if in == nil {
			return e.dev.Fill(dst, ch.Neutral())
		}
		if ch == texture.Diffuse {
			ctrl := e.store.Input(e.state.Seamless.Contrast.Input)
			return e.seamless.Apply(e.state.SeamlessMode, e.state.Seamless, in, ctrl, dst)
		}
		return e.dev.Run(PassCopy, dst, []Surface{in}, nil)

	case ch == texture.Height && src == SourceDiffuse:
		return e.heightFromDiffuse(dst)

	case ch == texture.Normal && src == SourceDiffuse:
		return e.withScratch(dst, func(height Surface) error {
			if err := e.heightFromDiffuse(height); err != nil {
				return err
			}
			return e.heightToNormal(height, dst)
		})

	case ch == texture.Normal && src == SourceHeight:
		return e.heightToNormal(e.store.Output(texture.Height), dst)

	case ch == texture.Occlusion && src == SourceHeightNormal:
		return e.occlusion(e.store.Output(texture.Height), e.store.Output(texture.Normal), dst)

	case ch == texture.Occlusion && src == SourceDiffuse:
		return e.withScratch(dst, func(height Surface) error {
			if err := e.heightFromDiffuse(height); err != nil {
				return err
			}
			return e.withScratch(dst, func(normal Surface) error {
				if err := e.heightToNormal(height, normal); err != nil {
					return err
				}
				return e.occlusion(height, normal, dst)
			})
		})

	case src == SourceDiffuse || src == SourceHeight:
		curve, ok := e.curve(ch)
		if !ok {
			break
		}
		from := e.store.Output(texture.Diffuse)
		if src == SourceHeight {
			from = e.store.Output(texture.Height)
		}
		return e.dev.Run(PassGrayCurve, dst, []Surface{from}, curveUniforms(curve, true))
	}
	return fmt.Errorf("%w: %s from %s", texture.ErrUnsupportedChannel, ch, src)
}

// finish applies the tone adjustment, grunge overlay and region overrides
// and writes the result into the channel output.
func (e *Engine) finish(ch texture.Channel, derived Surface) error {
	adj := e.state.Channels[ch].Adjust
	w, h := derived.Size()
	cur := derived
	var temps []Surface
	defer func() { e.pool.put(temps...) }()

	step := func(p Pass, inputs []Surface, u Uniforms) error {
		next, err := e.pool.get(w, h)
		if err != nil {
			return err
		}
		temps = append(temps, next)
		if err := e.dev.Run(p, next, inputs, u); err != nil {
			return err
		}
		cur = next
		return nil
	}

	tonal := ch != texture.Normal && ch != texture.Material
	if tonal && !adj.Identity() {
		if err := step(PassGrayCurve, []Surface{cur}, adjustUniforms(adj, ch.Grayscale())); err != nil {
			return err
		}
	}
	if tonal && ch != texture.Grunge && adj.GrungeWeight > 0 {
		grunge := e.store.Output(texture.Grunge)
		if err := step(PassGrungeBlend, []Surface{cur, grunge}, Uniforms{"weight": adj.GrungeWeight}); err != nil {
			return err
		}
	}
	if e.materials.Enabled() {
		regions := e.materials.overridesFor(ch)
		if len(regions) > 0 {
			mask, err := e.pool.get(w, h)
			if err != nil {
				return err
			}
			temps = append(temps, mask)
			if err := e.materialMask(mask); err != nil {
				return err
			}
			// An override replaces the channel adjustment, so it starts
			// from the raw content.
			for _, r := range regions {
				base := cur
				ov := r.Overrides[ch]
				if err := step(PassGrayCurve, []Surface{derived}, adjustUniforms(ov, ch.Grayscale())); err != nil {
					return err
				}
				if ch != texture.Grunge && ov.GrungeWeight > 0 {
					grunge := e.store.Output(texture.Grunge)
					if err := step(PassGrungeBlend, []Surface{cur, grunge}, Uniforms{"weight": ov.GrungeWeight}); err != nil {
						return err
					}
				}
				processed := cur
				u := Uniforms{"key": r.Key, "tolerance": e.materials.tolerance + 0.5/255}
				if err := step(PassRegionBlend, []Surface{base, processed, mask}, u); err != nil {
					return err
				}
			}
		}
	}
	return e.dev.Run(PassCopy, e.store.Output(ch), []Surface{cur}, nil)
}

func (e *Engine) withScratch(like Surface, fn func(Surface) error) error {
	w, h := like.Size()
	s, err := e.pool.get(w, h)
	if err != nil {
		return err
	}
	defer e.pool.put(s)
	return fn(s)
}

func (e *Engine) curve(ch texture.Channel) (CurveParams, bool) {
	switch ch {
	case texture.Specular:
		return e.state.Diffuse.Specular, true
	case texture.Roughness:
		return e.state.Diffuse.Roughness, true
	case texture.Metallic:
		return e.state.Diffuse.Metallic, true
	}
	return CurveParams{}, false
}

func curveUniforms(c CurveParams, gray bool) Uniforms {
	return Uniforms{
		"brightness": c.Brightness,
		"contrast":   c.Contrast,
		"saturation": c.Saturation,
		"invert":     boolInt(c.Invert),
		"gray":       boolInt(gray),
	}
}

func adjustUniforms(a AdjustParams, gray bool) Uniforms {
	return curveUniforms(CurveParams{Brightness: a.Brightness, Contrast: a.Contrast, Invert: a.Invert}, gray)
}

func (e *Engine) materialMask(dst Surface) error {
	keys := e.materials.keys()
	if !e.materials.Enabled() {
		keys = nil
	}
	u := Uniforms{
		"keys":      keys,
		"count":     int32(len(keys)),
		"tolerance": e.materials.tolerance + 0.5/255,
	}
	return e.dev.Run(PassMaterialMask, dst, []Surface{e.store.Output(texture.Diffuse)}, u)
}

// ── Geometry ─────────────────────────────────────────────────────────────────

// Resize changes the shared resolution and replots. Material editing is
// suspended around the resize and the selected region restored after.
func (e *Engine) Resize(w, h int) error {
	return e.reshape(func() error { return e.store.Resize(w, h) })
}

// Rescale multiplies every surface size, Grunge included, and replots.
func (e *Engine) Rescale(sx, sy float64) error {
	return e.reshape(func() error { return e.store.Rescale(sx, sy) })
}

func (e *Engine) reshape(fn func() error) error {
	wasEnabled := e.materials.Enabled()
	index := e.materials.Current()
	if wasEnabled {
		if err := e.DisableMaterials(); err != nil {
			return err
		}
	}
	err := fn()
	if err == nil {
		e.pool.drain()
		err = e.ReplotAll()
	}
	if !wasEnabled {
		return err
	}
	if rerr := e.EnableMaterials(); rerr != nil {
		return errors.Join(err, rerr)
	}
	if index >= 0 && index < len(e.materials.Regions()) {
		if serr := e.materials.Select(index); serr != nil {
			return errors.Join(err, serr)
		}
		e.state.MaterialIndex = index
	}
	return err
}

// ── Seamless ─────────────────────────────────────────────────────────────────

// SelectSeamlessMode switches the tiling mode, resetting the parameters of
// the other modes, and replots.
func (e *Engine) SelectSeamlessMode(m SeamlessMode) error {
	if m < SeamlessNone || m > SeamlessRandom {
		return fmt.Errorf("seamless: unknown mode %d", m)
	}
	e.state.SeamlessMode = m
	e.state.Seamless.ResetExcept(m)
	return e.ReplotAll()
}

// Randomize draws a new patch seed and replots.
func (e *Engine) Randomize() error {
	e.state.Seamless.Random.Randomize()
	return e.ReplotAll()
}

// RandomReset restores the default patch parameters and replots.
func (e *Engine) RandomReset() error {
	e.state.Seamless.Random = DefaultRandomParams()
	return e.ReplotAll()
}

// ApplySeamless makes the tiled diffuse the new diffuse input, turns
// tiling off and derives every other channel from the result.
func (e *Engine) ApplySeamless() error {
	if e.materials.Enabled() {
		return ErrConversionLocked
	}
	if e.state.Source(texture.Diffuse) != SourceOwn {
		return fmt.Errorf("seamless: diffuse source is %s", e.state.Source(texture.Diffuse))
	}
	guard := e.ShadowRender()
	err := e.updateChannel(texture.Diffuse, true)
	guard.Release()
	if err != nil {
		return fmt.Errorf("seamless: %w", err)
	}
	applied := e.state.SeamlessMode
	e.state.SeamlessMode = SeamlessNone
	e.state.Seamless = DefaultSeamlessParams()
	e.log.Debug("seamless applied", zap.Stringer("mode", applied))
	return e.Convert(ConvertDiffuseToOthers, texture.Diffuse)
}

// ── Materials ────────────────────────────────────────────────────────────────

// EnableMaterials partitions the diffuse output into regions and turns
// off automatic diffuse conversion until DisableMaterials.
func (e *Engine) EnableMaterials() error {
	if e.materials.enabled {
		return nil
	}
	if err := e.repartitionFrom(texture.Diffuse); err != nil {
		return err
	}
	e.materials.savedConversion = e.state.Diffuse.EnableConversion
	e.state.Diffuse.EnableConversion = false
	e.materials.enabled = true
	e.state.MaterialsEnabled = true
	e.log.Debug("materials enabled", zap.Int("regions", len(e.materials.regions)))
	return e.ReplotAll()
}

// DisableMaterials restores the conversion flag saved by EnableMaterials.
func (e *Engine) DisableMaterials() error {
	if !e.materials.enabled {
		return nil
	}
	e.state.Diffuse.EnableConversion = e.materials.savedConversion
	e.materials.enabled = false
	e.state.MaterialsEnabled = false
	return e.ReplotAll()
}

// PickMaterial selects the region whose key matches c.
func (e *Engine) PickMaterial(c [4]float32) (int, bool) {
	i, ok := e.materials.Pick(c)
	if ok {
		e.state.MaterialIndex = i
	}
	return i, ok
}

// SetMaterialOverride changes ch inside the current region only.
func (e *Engine) SetMaterialOverride(ch texture.Channel, a AdjustParams) error {
	if err := e.materials.SetOverride(ch, a); err != nil {
		return err
	}
	return e.Replot(ch)
}

// MaterialOverride returns the override of ch in the current region.
func (e *Engine) MaterialOverride(ch texture.Channel) (AdjustParams, bool) {
	i := e.materials.Current()
	if i < 0 || i >= len(e.materials.regions) {
		return AdjustParams{}, false
	}
	a, ok := e.materials.regions[i].Overrides[ch]
	return a, ok
}

// ClearMaterialOverride drops the override of ch in the current region.
func (e *Engine) ClearMaterialOverride(ch texture.Channel) error {
	if e.materials.Current() < 0 {
		return ErrNoMaterial
	}
	e.materials.ClearOverride(ch)
	return e.Replot(ch)
}

func (e *Engine) repartition() error {
	// The diffuse output is stale until replotted.
	if err := e.updateChannel(texture.Diffuse, false); err != nil {
		return err
	}
	return e.repartitionFrom(texture.Diffuse)
}

func (e *Engine) repartitionFrom(ch texture.Channel) error {
	img, err := e.store.Image(ch)
	if err != nil {
		return err
	}
	e.materials.Partition(img)
	return nil
}
