package opengl

import (
	"errors"
	"fmt"
	"slices"

	gl "github.com/go-gl/gl/v4.1-core/gl"
	"go.uber.org/zap"

	"bumpforge/pipeline"
	"bumpforge/texture"
)

var errForeignSurface = errors.New("surface does not belong to this device")

// Surface is an RGBA32F texture with its own framebuffer.
type Surface struct {
	Tex uint32
	fbo uint32
	w   int
	h   int
}

func (s *Surface) Size() (int, int) { return s.w, s.h }

// Device runs conversion passes as fullscreen fragment programs.
// All calls must come from the thread owning the GL context.
type Device struct {
	programs [pipeline.NumPasses]*program
	vao      uint32 // empty; the fullscreen triangle is generated in the shader
	target   *Surface
	live     int
	log      *zap.Logger
}

// NewDevice compiles every pass program. Init must have been called.
func NewDevice(log *zap.Logger) (*Device, error) {
	d := &Device{log: log}
	for p := pipeline.Pass(0); p < pipeline.NumPasses; p++ {
		prog, err := d.compile(passBodies[p])
		if err != nil {
			d.Destroy()
			return nil, fmt.Errorf("pass %s: %w", p, err)
		}
		d.programs[p] = prog
	}
	gl.GenVertexArrays(1, &d.vao)
	log.Debug("conversion passes compiled", zap.Int("count", int(pipeline.NumPasses)))
	return d, nil
}

func (d *Device) NewSurface(w, h int) (pipeline.Surface, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("surface size %dx%d", w, h)
	}
	s := &Surface{w: w, h: h}
	gl.GenTextures(1, &s.Tex)
	gl.BindTexture(gl.TEXTURE_2D, s.Tex)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA32F, int32(w), int32(h), 0, gl.RGBA, gl.FLOAT, nil)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.REPEAT)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.REPEAT)
	gl.BindTexture(gl.TEXTURE_2D, 0)

	gl.GenFramebuffers(1, &s.fbo)
	gl.BindFramebuffer(gl.FRAMEBUFFER, s.fbo)
	gl.FramebufferTexture2D(gl.FRAMEBUFFER, gl.COLOR_ATTACHMENT0, gl.TEXTURE_2D, s.Tex, 0)
	status := gl.CheckFramebufferStatus(gl.FRAMEBUFFER)
	d.bind(d.target)
	if status != gl.FRAMEBUFFER_COMPLETE {
		d.destroySurface(s)
		return nil, fmt.Errorf("surface framebuffer incomplete: 0x%x", status)
	}
	d.live++
	return s, nil
}

func (d *Device) Release(s pipeline.Surface) {
	gs, ok := s.(*Surface)
	if !ok || gs == nil || gs.fbo == 0 {
		return
	}
	if d.target == gs {
		d.SetTarget(nil)
	}
	d.destroySurface(gs)
	d.live--
}

func (d *Device) destroySurface(s *Surface) {
	gl.DeleteFramebuffers(1, &s.fbo)
	gl.DeleteTextures(1, &s.Tex)
	s.fbo, s.Tex = 0, 0
}

func (d *Device) Upload(s pipeline.Surface, img *texture.Image) error {
	gs, err := d.unwrap(s)
	if err != nil {
		return err
	}
	if img.Width != gs.w || img.Height != gs.h {
		return fmt.Errorf("upload %dx%d into %dx%d surface", img.Width, img.Height, gs.w, gs.h)
	}
	gl.BindTexture(gl.TEXTURE_2D, gs.Tex)
	gl.TexSubImage2D(gl.TEXTURE_2D, 0, 0, 0, int32(gs.w), int32(gs.h), gl.RGBA, gl.FLOAT, gl.Ptr(img.Pix))
	gl.BindTexture(gl.TEXTURE_2D, 0)
	return nil
}

func (d *Device) Download(s pipeline.Surface) (*texture.Image, error) {
	gs, err := d.unwrap(s)
	if err != nil {
		return nil, err
	}
	img := texture.NewImage(gs.w, gs.h)
	gl.BindFramebuffer(gl.READ_FRAMEBUFFER, gs.fbo)
	gl.ReadPixels(0, 0, int32(gs.w), int32(gs.h), gl.RGBA, gl.FLOAT, gl.Ptr(img.Pix))
	gl.BindFramebuffer(gl.READ_FRAMEBUFFER, 0)
	d.bind(d.target)
	return img, nil
}

func (d *Device) Fill(s pipeline.Surface, c [4]float32) error {
	gs, err := d.unwrap(s)
	if err != nil {
		return err
	}
	gl.BindFramebuffer(gl.FRAMEBUFFER, gs.fbo)
	gl.ClearColor(c[0], c[1], c[2], c[3])
	gl.Clear(gl.COLOR_BUFFER_BIT)
	d.bind(d.target)
	return nil
}

func (d *Device) Run(p pipeline.Pass, dst pipeline.Surface, inputs []pipeline.Surface, u pipeline.Uniforms) error {
	if p < 0 || p >= pipeline.NumPasses {
		return fmt.Errorf("unknown pass %d", p)
	}
	out, err := d.unwrap(dst)
	if err != nil {
		return err
	}
	if len(inputs) > 3 {
		return fmt.Errorf("pass %s: %d inputs", p, len(inputs))
	}
	ins := make([]*Surface, len(inputs))
	for i, s := range inputs {
		if ins[i], err = d.unwrap(s); err != nil {
			return fmt.Errorf("pass %s input %d: %w", p, i, err)
		}
	}

	// Sampling dst while rendering into it is undefined; go through a scratch.
	render := out
	if slices.Contains(ins, out) {
		tmp, err := d.NewSurface(out.w, out.h)
		if err != nil {
			return err
		}
		defer d.Release(tmp)
		render = tmp.(*Surface)
	}

	texs := make([]uint32, len(ins))
	for i, s := range ins {
		texs[i] = s.Tex
	}
	if err := d.draw(d.programs[p], render.fbo, render.w, render.h, texs, u); err != nil {
		return fmt.Errorf("pass %s: %w", p, err)
	}

	if render != out {
		blit(render.fbo, out.fbo, out.w, out.h, out.w, out.h, gl.NEAREST)
	}
	d.SetTarget(out)

	if code := gl.GetError(); code != gl.NO_ERROR {
		return fmt.Errorf("pass %s: gl error 0x%x", p, code)
	}
	return nil
}

func (d *Device) Target() pipeline.Surface {
	if d.target == nil {
		return nil
	}
	return d.target
}

// SetTarget binds s as the draw framebuffer; nil binds the window.
func (d *Device) SetTarget(s pipeline.Surface) {
	gs, _ := s.(*Surface)
	d.target = gs
	d.bind(gs)
}

func (d *Device) bind(s *Surface) {
	if s == nil {
		gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
		return
	}
	gl.BindFramebuffer(gl.FRAMEBUFFER, s.fbo)
	gl.Viewport(0, 0, int32(s.w), int32(s.h))
}

// Live reports surfaces created and not yet released.
func (d *Device) Live() int { return d.live }

func (d *Device) unwrap(s pipeline.Surface) (*Surface, error) {
	gs, ok := s.(*Surface)
	if !ok || gs == nil || gs.fbo == 0 {
		return nil, errForeignSurface
	}
	return gs, nil
}

// Destroy releases the pass programs. Surfaces are owned by their Store.
func (d *Device) Destroy() {
	for i, p := range d.programs {
		if p != nil {
			p.destroy()
			d.programs[i] = nil
		}
	}
	if d.vao != 0 {
		gl.DeleteVertexArrays(1, &d.vao)
		d.vao = 0
	}
}

// draw renders the fullscreen triangle with prog into fbo (0 = window),
// binding texs to units 0.. in order.
func (d *Device) draw(prog *program, fbo uint32, w, h int, texs []uint32, u pipeline.Uniforms) error {
	prog.use()
	if err := prog.setUniforms(u); err != nil {
		return err
	}
	for i, t := range texs {
		gl.ActiveTexture(gl.TEXTURE0 + uint32(i))
		gl.BindTexture(gl.TEXTURE_2D, t)
	}

	gl.Disable(gl.DEPTH_TEST)
	gl.Disable(gl.BLEND)
	gl.BindFramebuffer(gl.FRAMEBUFFER, fbo)
	gl.Viewport(0, 0, int32(w), int32(h))
	gl.BindVertexArray(d.vao)
	gl.DrawArrays(gl.TRIANGLES, 0, 3)
	gl.BindVertexArray(0)

	for i := range texs {
		gl.ActiveTexture(gl.TEXTURE0 + uint32(i))
		gl.BindTexture(gl.TEXTURE_2D, 0)
	}
	gl.ActiveTexture(gl.TEXTURE0)
	return nil
}

// compile builds a fullscreen program from a fragment body written against
// the pass prelude.
func (d *Device) compile(body string) (*program, error) {
	prog, err := newCachedProgram(fullscreenVertSrc, passPrelude+body+"\x00")
	if err != nil {
		return nil, err
	}
	prog.use()
	for i := 0; i < 3; i++ {
		gl.Uniform1i(prog.loc(fmt.Sprintf("uTex%d", i)), int32(i))
	}
	return prog, nil
}

// blit copies the color attachment of one framebuffer to another.
func blit(src, dst uint32, sw, sh, dw, dh int, filter uint32) {
	gl.BindFramebuffer(gl.READ_FRAMEBUFFER, src)
	gl.BindFramebuffer(gl.DRAW_FRAMEBUFFER, dst)
	gl.BlitFramebuffer(0, 0, int32(sw), int32(sh), 0, 0, int32(dw), int32(dh), gl.COLOR_BUFFER_BIT, filter)
	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
}
