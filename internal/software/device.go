// Package software is a CPU implementation of pipeline.Device. Every pass
// mirrors the GL fragment program of the same name; it backs headless runs
// without a GL context and the pipeline tests.
package software

import (
	"errors"
	"fmt"

	"bumpforge/pipeline"
	"bumpforge/texture"
)

var errForeignSurface = errors.New("software: surface not created by this device")

type surface struct {
	img *texture.Image
}

func (s *surface) Size() (int, int) { return s.img.Width, s.img.Height }

// Device runs passes on the CPU. The zero value is not usable; call New.
type Device struct {
	target pipeline.Surface
	live   int
	runs   [pipeline.NumPasses]int
}

func New() *Device { return &Device{} }

func (d *Device) NewSurface(w, h int) (pipeline.Surface, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("software: invalid surface size %dx%d", w, h)
	}
	d.live++
	return &surface{img: texture.NewImage(w, h)}, nil
}

func (d *Device) Release(s pipeline.Surface) {
	if s == nil {
		return
	}
	if d.target == s {
		d.target = nil
	}
	d.live--
}

func (d *Device) Upload(s pipeline.Surface, img *texture.Image) error {
	dst, err := unwrap(s)
	if err != nil {
		return err
	}
	if dst.Width != img.Width || dst.Height != img.Height {
		return fmt.Errorf("software: upload %dx%d into %dx%d surface", img.Width, img.Height, dst.Width, dst.Height)
	}
	copy(dst.Pix, img.Pix)
	return nil
}

func (d *Device) Download(s pipeline.Surface) (*texture.Image, error) {
	src, err := unwrap(s)
	if err != nil {
		return nil, err
	}
	return src.Clone(), nil
}

func (d *Device) Fill(s pipeline.Surface, c [4]float32) error {
	dst, err := unwrap(s)
	if err != nil {
		return err
	}
	for i := 0; i < len(dst.Pix); i += 4 {
		copy(dst.Pix[i:i+4], c[:])
	}
	return nil
}

func (d *Device) Run(p pipeline.Pass, dst pipeline.Surface, inputs []pipeline.Surface, u pipeline.Uniforms) error {
	out, err := unwrap(dst)
	if err != nil {
		return err
	}
	k, ok := kernels[p]
	if !ok {
		return fmt.Errorf("software: no kernel for pass %s", p)
	}
	if len(inputs) < arity[p] {
		return fmt.Errorf("software: pass %s wants %d inputs, got %d", p, arity[p], len(inputs))
	}
	in := make([]*texture.Image, len(inputs))
	for i, s := range inputs {
		if in[i], err = unwrap(s); err != nil {
			return err
		}
	}
	if u == nil {
		u = pipeline.Uniforms{}
	}
	// Kernels write into a fresh buffer so dst may also be an input.
	res := texture.NewImage(out.Width, out.Height)
	k(res, in, u)
	copy(out.Pix, res.Pix)
	d.target = dst
	d.runs[p]++
	return nil
}

func (d *Device) Target() pipeline.Surface { return d.target }

func (d *Device) SetTarget(s pipeline.Surface) { d.target = s }

// Live is the number of surfaces created and not yet released.
func (d *Device) Live() int { return d.live }

// Runs counts the executions of pass p.
func (d *Device) Runs(p pipeline.Pass) int { return d.runs[p] }

func unwrap(s pipeline.Surface) (*texture.Image, error) {
	sf, ok := s.(*surface)
	if !ok || sf == nil {
		return nil, errForeignSurface
	}
	return sf.img, nil
}
