package opengl

import (
	"fmt"
	"math/bits"

	gl "github.com/go-gl/gl/v4.1-core/gl"
	"go.uber.org/zap"

	"bumpforge/pipeline"
)

// PostSettings toggles and tunes the post-processing stages.
type PostSettings struct {
	DOF           bool
	FocusDistance float32 // view-space distance in focus
	Aperture      float32 // blur growth per unit of defocus
	DOFRadius     float32 // maximum blur sigma in pixels

	Glow          bool
	GlowThreshold float32 // luminance cut-off of the bright pass
	GlowStrength  float32

	LensFlare     bool
	FlareStrength float32
	FlareGhosts   int32

	ToneMapping bool
	Key         float32 // middle-gray target of the exposure curve
	Gamma       float32
}

func DefaultPostSettings() PostSettings {
	return PostSettings{
		FocusDistance: 3,
		Aperture:      0.5,
		DOFRadius:     4,
		Glow:          true,
		GlowThreshold: 1,
		GlowStrength:  0.4,
		FlareStrength: 0.2,
		FlareGhosts:   4,
		ToneMapping:   true,
		Key:           0.18,
		Gamma:         2.2,
	}
}

// stage is one step of the post chain.
type stage int

const (
	stageDOF stage = iota
	stageGlow
	stageLensFlare
	stageToneMap
	stageScreen
)

var stageNames = [...]string{"dof", "glow", "lens_flare", "tone_map", "screen"}

func (s stage) String() string { return stageNames[s] }

// planStages lists the enabled stages in execution order. The last entry is
// always stageScreen, which writes the default framebuffer.
func planStages(ps PostSettings) []stage {
	var plan []stage
	if ps.DOF && ps.DOFRadius > 0 {
		plan = append(plan, stageDOF)
	}
	if ps.Glow && ps.GlowStrength > 0 {
		plan = append(plan, stageGlow)
	}
	if ps.LensFlare && ps.FlareStrength > 0 {
		plan = append(plan, stageLensFlare)
	}
	if ps.ToneMapping {
		plan = append(plan, stageToneMap)
	}
	return append(plan, stageScreen)
}

const (
	glowLevels   = 4
	maxToneMips  = 10
	maxLumSize   = 1 << (maxToneMips - 1)
	flareDivisor = 2
)

// glowSizes halves the frame once per pyramid level, never below 1×1.
func glowSizes(w, h int) [glowLevels][2]int {
	var out [glowLevels][2]int
	for i := range out {
		w, h = max(w/2, 1), max(h/2, 1)
		out[i] = [2]int{w, h}
	}
	return out
}

// toneLevels picks the square luminance texture size (a power of two no
// larger than the frame) and the length of its mip chain, at most maxToneMips.
func toneLevels(w, h int) (size, levels int) {
	m := min(max(w, h, 1), maxLumSize)
	size = 1 << (bits.Len(uint(m)) - 1)
	return size, bits.Len(uint(size))
}

// ── Shaders ───────────────────────────────────────────────────────────────────

const brightBody = `
uniform float u_threshold;
void main() {
    vec3 c = texture(uTex0, vUV).rgb;
    outColor = vec4(c * step(u_threshold, luma(c)), 1.0);
}
`

// dofBody mixes the sharp frame with its blur by circle of confusion.
// uTex0 sharp, uTex1 blurred, uTex2 depth.
const dofBody = `
uniform float u_focus;
uniform float u_aperture;
uniform float u_near;
uniform float u_far;
void main() {
    float z = texture(uTex2, vUV).r * 2.0 - 1.0;
    float dist = 2.0 * u_near * u_far / (u_far + u_near - z * (u_far - u_near));
    float coc = clamp(abs(dist - u_focus) * u_aperture, 0.0, 1.0);
    outColor = mix(texture(uTex0, vUV), texture(uTex1, vUV), coc);
}
`

// addBody adds u_strength times uTex1 onto uTex0.
const addBody = `
uniform float u_strength;
void main() {
    outColor = vec4(texture(uTex0, vUV).rgb + texture(uTex1, vUV).rgb * u_strength, 1.0);
}
`

// glowComposeBody sums the blurred pyramid levels bound to units 1 and 2
// over the frame; called once per pair of levels.
const glowComposeBody = `
uniform float u_strength;
void main() {
    vec3 glow = texture(uTex1, vUV).rgb + texture(uTex2, vUV).rgb;
    outColor = vec4(texture(uTex0, vUV).rgb + glow * u_strength, 1.0);
}
`

const flareBody = `
uniform int u_ghosts;
void main() {
    vec2 uv = vec2(1.0) - vUV;
    vec2 ghostVec = (vec2(0.5) - uv) * 0.35;
    vec3 result = vec3(0.0);
    for (int i = 0; i < u_ghosts; i++) {
        vec2 off = fract(uv + ghostVec * float(i));
        float w = pow(1.0 - length(vec2(0.5) - off) / 0.7071, 10.0);
        result += texture(uTex0, off).rgb * w;
    }
    vec2 halo = normalize(ghostVec) * 0.45;
    float hw = pow(1.0 - length(vec2(0.5) - fract(uv + halo)) / 0.7071, 5.0);
    result += texture(uTex0, fract(uv + halo)).rgb * hw;
    outColor = vec4(result, 1.0);
}
`

const logLumBody = `
void main() {
    outColor = vec4(vec3(log(luma(texture(uTex0, vUV).rgb) + 1e-4)), 1.0);
}
`

// toneBody maps exposure from the average log luminance in the top mip of uTex1.
const toneBody = `
uniform float u_key;
uniform float u_lod;
void main() {
    float avg = exp(textureLod(uTex1, vec2(0.5), u_lod).r);
    vec3 c = texture(uTex0, vUV).rgb * (u_key / max(avg, 1e-4));
    outColor = vec4(c / (1.0 + c), 1.0);
}
`

const screenBody = `
uniform float u_gamma;
void main() {
    vec3 c = texture(uTex0, vUV).rgb;
    outColor = vec4(pow(max(c, vec3(0.0)), vec3(1.0 / u_gamma)), 1.0);
}
`

// ── Chain ─────────────────────────────────────────────────────────────────────

// PostProcessChain turns the HDR scene color into the final frame:
// DOF → glow → lens flare → tone mapping → screen.
type PostProcessChain struct {
	dev *Device
	log *zap.Logger

	bright, dof, add, glowCompose, flare, logLum, tone, screen *program

	w, h    int
	buf     [2]*Surface             // full-resolution ping-pong
	aux     *Surface                // full-resolution blur scratch
	glow    [glowLevels][2]*Surface // per level: result, blur scratch
	flareRT [2]*Surface
	lum     *Surface
	lumMips int

	Settings PostSettings
}

func NewPostProcessChain(dev *Device, w, h int, log *zap.Logger) (*PostProcessChain, error) {
	pc := &PostProcessChain{dev: dev, log: log, Settings: DefaultPostSettings()}
	progs := []struct {
		dst  **program
		body string
	}{
		{&pc.bright, brightBody},
		{&pc.dof, dofBody},
		{&pc.add, addBody},
		{&pc.glowCompose, glowComposeBody},
		{&pc.flare, flareBody},
		{&pc.logLum, logLumBody},
		{&pc.tone, toneBody},
		{&pc.screen, screenBody},
	}
	for _, p := range progs {
		prog, err := dev.compile(p.body)
		if err != nil {
			pc.Destroy()
			return nil, fmt.Errorf("post-process shader: %w", err)
		}
		*p.dst = prog
	}
	if err := pc.Resize(w, h); err != nil {
		pc.Destroy()
		return nil, err
	}
	return pc, nil
}

// Resize reallocates every intermediate target for a new frame size.
func (pc *PostProcessChain) Resize(w, h int) error {
	pc.freeTargets()
	pc.w, pc.h = w, h

	alloc := func(w, h int) (*Surface, error) {
		s, err := pc.dev.NewSurface(w, h)
		if err != nil {
			return nil, err
		}
		return s.(*Surface), nil
	}
	var err error
	for i := range pc.buf {
		if pc.buf[i], err = alloc(w, h); err != nil {
			return err
		}
	}
	if pc.aux, err = alloc(w, h); err != nil {
		return err
	}
	for i, sz := range glowSizes(w, h) {
		for j := range pc.glow[i] {
			if pc.glow[i][j], err = alloc(sz[0], sz[1]); err != nil {
				return err
			}
		}
	}
	for i := range pc.flareRT {
		if pc.flareRT[i], err = alloc(max(w/flareDivisor, 1), max(h/flareDivisor, 1)); err != nil {
			return err
		}
	}
	size, levels := toneLevels(w, h)
	if pc.lum, err = alloc(size, size); err != nil {
		return err
	}
	pc.lumMips = levels
	gl.BindTexture(gl.TEXTURE_2D, pc.lum.Tex)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.LINEAR_MIPMAP_LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAX_LEVEL, int32(levels-1))
	gl.BindTexture(gl.TEXTURE_2D, 0)
	pc.log.Debug("post chain resized", zap.Int("width", w), zap.Int("height", h), zap.Int("tone_mips", levels))
	return nil
}

func (pc *PostProcessChain) freeTargets() {
	release := func(s **Surface) {
		if *s != nil {
			pc.dev.Release(*s)
			*s = nil
		}
	}
	for i := range pc.buf {
		release(&pc.buf[i])
	}
	release(&pc.aux)
	for i := range pc.glow {
		for j := range pc.glow[i] {
			release(&pc.glow[i][j])
		}
	}
	for i := range pc.flareRT {
		release(&pc.flareRT[i])
	}
	release(&pc.lum)
}

// Frame is the input of one post-processing run.
type Frame struct {
	Color uint32 // HDR scene color
	Depth uint32 // scene depth, sampled by DOF
	Near  float32
	Far   float32
	// ScreenW and ScreenH size the default framebuffer viewport.
	ScreenW, ScreenH int
}

// Run executes the planned stages and leaves the result on screen.
func (pc *PostProcessChain) Run(f Frame) error {
	ps := pc.Settings
	src := f.Color
	next := 0
	target := func() *Surface {
		s := pc.buf[next]
		next = 1 - next
		return s
	}

	for _, st := range planStages(ps) {
		var err error
		switch st {
		case stageDOF:
			err = pc.blur(src, pc.aux, pc.buf[next], ps.DOFRadius)
			if err == nil {
				// The blurred copy sits in buf[next]; write the mix into the other buffer.
				blurred := pc.buf[next]
				next = 1 - next
				dst := target()
				err = pc.dev.draw(pc.dof, dst.fbo, dst.w, dst.h, []uint32{src, blurred.Tex, f.Depth}, pipeline.Uniforms{
					"focus": ps.FocusDistance, "aperture": ps.Aperture, "near": f.Near, "far": f.Far,
				})
				src = dst.Tex
			}
		case stageGlow:
			var dst *Surface
			dst, err = pc.runGlow(src, target())
			if err == nil {
				src = dst.Tex
			}
		case stageLensFlare:
			dst := target()
			err = pc.runFlare(src, dst)
			src = dst.Tex
		case stageToneMap:
			dst := target()
			err = pc.runTone(src, dst)
			src = dst.Tex
		case stageScreen:
			err = pc.dev.draw(pc.screen, 0, f.ScreenW, f.ScreenH, []uint32{src}, pipeline.Uniforms{"gamma": ps.Gamma})
		}
		if err != nil {
			return fmt.Errorf("post stage %s: %w", st, err)
		}
	}
	pc.dev.SetTarget(nil)
	return nil
}

// blur runs the separable Gaussian shared with the conversion passes:
// horizontal into scratch, vertical into dst.
func (pc *PostProcessChain) blur(src uint32, scratch, dst *Surface, sigma float32) error {
	gauss := pc.dev.programs[pipeline.PassGaussian]
	if err := pc.dev.draw(gauss, scratch.fbo, scratch.w, scratch.h, []uint32{src},
		pipeline.Uniforms{"direction": [2]float32{1, 0}, "sigma": sigma}); err != nil {
		return err
	}
	return pc.dev.draw(gauss, dst.fbo, dst.w, dst.h, []uint32{scratch.Tex},
		pipeline.Uniforms{"direction": [2]float32{0, 1}, "sigma": sigma})
}

// runGlow: bright pass into level 0, downsample through the pyramid,
// blur each level, then add all levels over src into dst.
func (pc *PostProcessChain) runGlow(src uint32, dst *Surface) (*Surface, error) {
	ps := pc.Settings
	l0 := pc.glow[0][0]
	if err := pc.dev.draw(pc.bright, l0.fbo, l0.w, l0.h, []uint32{src}, pipeline.Uniforms{"threshold": ps.GlowThreshold}); err != nil {
		return nil, err
	}
	down := pc.dev.programs[pipeline.PassDownsample]
	for i := 1; i < glowLevels; i++ {
		lv := pc.glow[i][0]
		if err := pc.dev.draw(down, lv.fbo, lv.w, lv.h, []uint32{pc.glow[i-1][0].Tex}, nil); err != nil {
			return nil, err
		}
	}
	for i := range pc.glow {
		if err := pc.blur(pc.glow[i][0].Tex, pc.glow[i][1], pc.glow[i][0], 2); err != nil {
			return nil, err
		}
	}

	// Two levels per composite draw, ping-ponging through dst and aux.
	cur, out := src, dst
	other := pc.aux
	for i := 0; i < glowLevels; i += 2 {
		if err := pc.dev.draw(pc.glowCompose, out.fbo, out.w, out.h,
			[]uint32{cur, pc.glow[i][0].Tex, pc.glow[i+1][0].Tex},
			pipeline.Uniforms{"strength": ps.GlowStrength}); err != nil {
			return nil, err
		}
		cur = out.Tex
		out, other = other, out
	}
	return other, nil
}

func (pc *PostProcessChain) runFlare(src uint32, dst *Surface) error {
	ps := pc.Settings
	bright, ghosts := pc.flareRT[0], pc.flareRT[1]
	if err := pc.dev.draw(pc.bright, bright.fbo, bright.w, bright.h, []uint32{src}, pipeline.Uniforms{"threshold": ps.GlowThreshold}); err != nil {
		return err
	}
	if err := pc.dev.draw(pc.flare, ghosts.fbo, ghosts.w, ghosts.h, []uint32{bright.Tex}, pipeline.Uniforms{"ghosts": ps.FlareGhosts}); err != nil {
		return err
	}
	if err := pc.blur(ghosts.Tex, bright, ghosts, 3); err != nil {
		return err
	}
	return pc.dev.draw(pc.add, dst.fbo, dst.w, dst.h, []uint32{src, ghosts.Tex}, pipeline.Uniforms{"strength": ps.FlareStrength})
}

func (pc *PostProcessChain) runTone(src uint32, dst *Surface) error {
	if err := pc.dev.draw(pc.logLum, pc.lum.fbo, pc.lum.w, pc.lum.h, []uint32{src}, nil); err != nil {
		return err
	}
	gl.BindTexture(gl.TEXTURE_2D, pc.lum.Tex)
	gl.GenerateMipmap(gl.TEXTURE_2D)
	gl.BindTexture(gl.TEXTURE_2D, 0)
	return pc.dev.draw(pc.tone, dst.fbo, dst.w, dst.h, []uint32{src, pc.lum.Tex}, pipeline.Uniforms{
		"key": pc.Settings.Key, "lod": float32(pc.lumMips - 1),
	})
}

// Destroy frees all GPU resources owned by the chain.
func (pc *PostProcessChain) Destroy() {
	pc.freeTargets()
	for _, p := range []*program{pc.bright, pc.dof, pc.add, pc.glowCompose, pc.flare, pc.logLum, pc.tone, pc.screen} {
		if p != nil {
			p.destroy()
		}
	}
}
