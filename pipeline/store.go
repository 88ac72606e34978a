package pipeline

import (
	"fmt"
	"math"

	"bumpforge/texture"
)

// Store owns one output surface per channel at the shared resolution and
// an optional input surface at the loaded image's native size. Grunge is
// sized independently: its output follows its input and Resize leaves it
// alone.
type Store struct {
	dev     Device
	width   int
	height  int
	outputs [texture.NumChannels]Surface
	inputs  [texture.NumChannels]Surface
}

// NewStore allocates every output and fills it with the channel's neutral value.
func NewStore(dev Device, w, h int) (*Store, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("store: invalid size %dx%d", w, h)
	}
	s := &Store{dev: dev, width: w, height: h}
	for _, ch := range texture.All() {
		out, err := dev.NewSurface(w, h)
		if err != nil {
			s.Destroy()
			return nil, fmt.Errorf("store: %s output: %w", ch, err)
		}
		if err := dev.Fill(out, ch.Neutral()); err != nil {
			s.Destroy()
			return nil, fmt.Errorf("store: %s output: %w", ch, err)
		}
		s.outputs[ch] = out
	}
	return s, nil
}

func (s *Store) Device() Device { return s.dev }

func (s *Store) Size() (int, int) { return s.width, s.height }

func (s *Store) Output(ch texture.Channel) Surface { return s.outputs[ch] }

// Input is nil when nothing was loaded or baked into ch.
func (s *Store) Input(ch texture.Channel) Surface { return s.inputs[ch] }

func (s *Store) HasInput(ch texture.Channel) bool { return s.inputs[ch] != nil }

// SetInput uploads img as the content of ch.
func (s *Store) SetInput(ch texture.Channel, img *texture.Image) error {
	if !ch.Valid() || ch == texture.Material {
		return fmt.Errorf("store: set input: %w: %s", texture.ErrUnsupportedChannel, ch)
	}
	surf, err := s.dev.NewSurface(img.Width, img.Height)
	if err != nil {
		return fmt.Errorf("store: %s input: %w", ch, err)
	}
	if err := s.dev.Upload(surf, img); err != nil {
		s.dev.Release(surf)
		return fmt.Errorf("store: %s input: %w", ch, err)
	}
	s.replaceInput(ch, surf)
	if ch == texture.Grunge {
		return s.resizeOutput(ch, img.Width, img.Height)
	}
	return nil
}

// bakeInput copies src into a fresh input surface for ch.
func (s *Store) bakeInput(ch texture.Channel, src Surface) error {
	w, h := src.Size()
	surf, err := s.dev.NewSurface(w, h)
	if err != nil {
		return fmt.Errorf("store: bake %s: %w", ch, err)
	}
	if err := s.dev.Run(PassCopy, surf, []Surface{src}, nil); err != nil {
		s.dev.Release(surf)
		return fmt.Errorf("store: bake %s: %w", ch, err)
	}
	s.replaceInput(ch, surf)
	return nil
}

func (s *Store) replaceInput(ch texture.Channel, surf Surface) {
	if old := s.inputs[ch]; old != nil {
		s.dev.Release(old)
	}
	s.inputs[ch] = surf
}

// ClearInput drops the loaded content of ch; it reverts to neutral on replot.
func (s *Store) ClearInput(ch texture.Channel) {
	s.replaceInput(ch, nil)
}

// Resize changes the shared resolution. Every output except Grunge is
// resampled into the new size.
func (s *Store) Resize(w, h int) error {
	if w <= 0 || h <= 0 {
		return fmt.Errorf("store: invalid size %dx%d", w, h)
	}
	for _, ch := range texture.All() {
		if ch == texture.Grunge {
			continue
		}
		if err := s.resizeOutput(ch, w, h); err != nil {
			return err
		}
	}
	s.width, s.height = w, h
	return nil
}

// Rescale multiplies every output size by (sx, sy), Grunge included.
func (s *Store) Rescale(sx, sy float64) error {
	if sx <= 0 || sy <= 0 {
		return fmt.Errorf("store: invalid scale %gx%g", sx, sy)
	}
	for _, ch := range texture.All() {
		w, h := s.outputs[ch].Size()
		if err := s.resizeOutput(ch, scaleDim(w, sx), scaleDim(h, sy)); err != nil {
			return err
		}
	}
	s.width, s.height = scaleDim(s.width, sx), scaleDim(s.height, sy)
	return nil
}

func scaleDim(n int, f float64) int {
	return max(1, int(math.Round(float64(n)*f)))
}

func (s *Store) resizeOutput(ch texture.Channel, w, h int) error {
	old := s.outputs[ch]
	if ow, oh := old.Size(); ow == w && oh == h {
		return nil
	}
	surf, err := s.dev.NewSurface(w, h)
	if err != nil {
		return fmt.Errorf("store: resize %s: %w", ch, err)
	}
	if err := s.dev.Run(PassCopy, surf, []Surface{old}, nil); err != nil {
		s.dev.Release(surf)
		return fmt.Errorf("store: resize %s: %w", ch, err)
	}
	s.dev.Release(old)
	s.outputs[ch] = surf
	return nil
}

// Image reads back the output of ch.
func (s *Store) Image(ch texture.Channel) (*texture.Image, error) {
	if !ch.Valid() {
		return nil, fmt.Errorf("store: %w: %s", texture.ErrUnsupportedChannel, ch)
	}
	img, err := s.dev.Download(s.outputs[ch])
	if err != nil {
		return nil, fmt.Errorf("store: read %s: %w", ch, err)
	}
	return img, nil
}

// Destroy releases every surface.
func (s *Store) Destroy() {
	for i := range s.outputs {
		if s.outputs[i] != nil {
			s.dev.Release(s.outputs[i])
			s.outputs[i] = nil
		}
		if s.inputs[i] != nil {
			s.dev.Release(s.inputs[i])
			s.inputs[i] = nil
		}
	}
}
