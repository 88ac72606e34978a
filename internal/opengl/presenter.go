package opengl

import (
	"go.uber.org/zap"

	"bumpforge/pipeline"
	"bumpforge/texture"
)

// viewBody shows one channel in the 2D preview, tiled by u_tiles and
// flipped so row 0 of the image is at the top of the window.
const viewBody = `
uniform float u_tiles;
void main() {
    vec2 uv = vec2(vUV.x, 1.0 - vUV.y) * u_tiles;
    outColor = vec4(texture(uTex0, uv).rgb, 1.0);
}
`

// Presenter keeps the most recently displayed channel and draws it in the
// 2D view. It implements pipeline.Presenter.
type Presenter struct {
	dev  *Device
	prog *program
	log  *zap.Logger

	channel texture.Channel
	surface *Surface

	// Tiles repeats the texture to inspect seams.
	Tiles float32
}

func NewPresenter(dev *Device, log *zap.Logger) (*Presenter, error) {
	prog, err := dev.compile(viewBody)
	if err != nil {
		return nil, err
	}
	return &Presenter{dev: dev, prog: prog, log: log, Tiles: 1}, nil
}

func (p *Presenter) Present(ch texture.Channel, s pipeline.Surface) {
	gs, ok := s.(*Surface)
	if !ok {
		p.log.Warn("present: foreign surface", zap.Stringer("channel", ch))
		return
	}
	p.channel, p.surface = ch, gs
}

// Channel is the channel currently on display.
func (p *Presenter) Channel() texture.Channel { return p.channel }

// Draw renders the current channel to the window.
func (p *Presenter) Draw(screenW, screenH int) error {
	if p.surface == nil || p.surface.fbo == 0 {
		return nil
	}
	return p.dev.draw(p.prog, 0, screenW, screenH, []uint32{p.surface.Tex}, pipeline.Uniforms{"tiles": p.Tiles})
}

func (p *Presenter) Destroy() { p.prog.destroy() }
