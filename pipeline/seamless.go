package pipeline

import (
	"fmt"
	"math"
	"math/rand/v2"

	"bumpforge/texture"
)

// SeamlessMode selects the tiling transform applied to the diffuse input.
type SeamlessMode int

const (
	SeamlessNone SeamlessMode = iota
	SeamlessSimple
	SeamlessMirror
	SeamlessRandom
)

func (m SeamlessMode) String() string {
	switch m {
	case SeamlessNone:
		return "none"
	case SeamlessSimple:
		return "simple"
	case SeamlessMirror:
		return "mirror"
	case SeamlessRandom:
		return "random"
	}
	return fmt.Sprintf("seamless(%d)", int(m))
}

// ParseSeamlessMode accepts the names printed by String.
func ParseSeamlessMode(s string) (SeamlessMode, error) {
	for m := SeamlessNone; m <= SeamlessRandom; m++ {
		if m.String() == s {
			return m, nil
		}
	}
	return SeamlessNone, fmt.Errorf("unknown seamless mode %q", s)
}

// Direction restricts the simple blend to one axis.
type Direction int

const (
	DirectionXY Direction = iota
	DirectionX
	DirectionY
)

// MirrorAxis selects which halves are reflected.
type MirrorAxis int

const (
	MirrorXY MirrorAxis = iota
	MirrorX
	MirrorY
)

type SimpleParams struct {
	// Radius is the width of the blended edge band in UV units.
	Radius    float32
	Direction Direction
}

type MirrorParams struct {
	Axis MirrorAxis
}

// RandomParams describes the rotated-patch transform. Radii are in patch
// units where 0.5 touches the patch border.
type RandomParams struct {
	Inner    float32
	Outer    float32
	Phase    float32
	MaxAngle float32
	Grid     int
	Seed     uint64
}

type ContrastParams struct {
	Strength float32
	Power    float32
	// Input is the channel whose loaded image drives the contrast.
	Input texture.Channel
}

type SeamlessParams struct {
	Simple   SimpleParams
	Mirror   MirrorParams
	Random   RandomParams
	Contrast ContrastParams
	// TranslationsFirst runs the geometric transform before contrast.
	TranslationsFirst bool
}

const defaultSeed = 1

func DefaultSimpleParams() SimpleParams { return SimpleParams{Radius: 0.15} }

func DefaultRandomParams() RandomParams {
	return RandomParams{Inner: 0.2, Outer: 0.5, MaxAngle: math.Pi, Grid: 4, Seed: defaultSeed}
}

func DefaultContrastParams() ContrastParams {
	return ContrastParams{Power: 1, Input: texture.Diffuse}
}

func DefaultSeamlessParams() SeamlessParams {
	return SeamlessParams{
		Simple:   DefaultSimpleParams(),
		Random:   DefaultRandomParams(),
		Contrast: DefaultContrastParams(),
	}
}

// ResetExcept restores the parameter groups of every mode other than keep.
func (p *SeamlessParams) ResetExcept(keep SeamlessMode) {
	if keep != SeamlessSimple {
		p.Simple = DefaultSimpleParams()
	}
	if keep != SeamlessMirror {
		p.Mirror = MirrorParams{}
	}
	if keep != SeamlessRandom {
		p.Random = DefaultRandomParams()
	}
}

// Angles returns one rotation per patch, reproducible from Seed.
func (p RandomParams) Angles() []float32 {
	n := max(p.Grid, 1)
	r := rand.New(rand.NewPCG(p.Seed, p.Seed^0x9e3779b97f4a7c15))
	out := make([]float32, n*n)
	for i := range out {
		out[i] = (r.Float32()*2 - 1) * p.MaxAngle
	}
	return out
}

// Randomize advances to the next seed of the sequence.
func (p *RandomParams) Randomize() {
	r := rand.New(rand.NewPCG(p.Seed, 0x2545f4914f6cdd1d))
	p.Seed = r.Uint64()
}

// Seamless runs the tiling transform as device passes.
type Seamless struct {
	dev  Device
	pool *surfacePool
}

func NewSeamless(dev Device) *Seamless {
	return &Seamless{dev: dev, pool: newSurfacePool(dev)}
}

func newSeamlessWithPool(p *surfacePool) *Seamless {
	return &Seamless{dev: p.dev, pool: p}
}

// Apply transforms src into dst. ctrl drives the contrast stage and may be
// nil, in which case src drives it. The contrast stage is skipped in
// mirror and random modes.
func (s *Seamless) Apply(mode SeamlessMode, p SeamlessParams, src, ctrl, dst Surface) error {
	if ctrl == nil {
		ctrl = src
	}
	contrast := p.Contrast.Strength != 0 && (mode == SeamlessNone || mode == SeamlessSimple)
	if !contrast {
		return s.geometric(mode, p, src, dst)
	}

	w, h := dst.Size()
	tmp, err := s.pool.get(w, h)
	if err != nil {
		return fmt.Errorf("seamless: %w", err)
	}
	defer s.pool.put(tmp)

	if p.TranslationsFirst {
		if err := s.geometric(mode, p, src, tmp); err != nil {
			return err
		}
		return s.contrast(p.Contrast, tmp, ctrl, dst)
	}
	if err := s.contrast(p.Contrast, src, ctrl, tmp); err != nil {
		return err
	}
	return s.geometric(mode, p, tmp, dst)
}

func (s *Seamless) geometric(mode SeamlessMode, p SeamlessParams, src, dst Surface) error {
	var (
		pass Pass
		u    Uniforms
	)
	switch mode {
	case SeamlessNone:
		pass = PassCopy
	case SeamlessSimple:
		pass = PassSeamlessSimple
		u = Uniforms{"radius": p.Simple.Radius, "direction": int32(p.Simple.Direction)}
	case SeamlessMirror:
		pass = PassSeamlessMirror
		u = Uniforms{"axis": int32(p.Mirror.Axis)}
	case SeamlessRandom:
		pass = PassSeamlessRandom
		u = Uniforms{
			"inner":  p.Random.Inner,
			"outer":  p.Random.Outer,
			"phase":  p.Random.Phase,
			"grid":   int32(max(p.Random.Grid, 1)),
			"angles": p.Random.Angles(),
		}
	default:
		return fmt.Errorf("seamless: unknown mode %d", mode)
	}
	if err := s.dev.Run(pass, dst, []Surface{src}, u); err != nil {
		return fmt.Errorf("seamless %s: %w", mode, err)
	}
	return nil
}

func (s *Seamless) contrast(c ContrastParams, src, ctrl, dst Surface) error {
	u := Uniforms{"strength": c.Strength, "power": c.Power}
	if err := s.dev.Run(PassContrast, dst, []Surface{src, ctrl}, u); err != nil {
		return fmt.Errorf("seamless contrast: %w", err)
	}
	return nil
}

// Release returns the pooled scratch surfaces to the device.
func (s *Seamless) Release() { s.pool.drain() }
