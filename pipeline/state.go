package pipeline

import (
	"fmt"

	"bumpforge/texture"
)

// ConversionMode selects which derivation Convert performs.
type ConversionMode int

const (
	ConvertNone ConversionMode = iota
	ConvertHeightToNormal
	ConvertNormalToHeight
	ConvertDiffuseToOthers
	ConvertHeightNormalToOcclusion
)

func (m ConversionMode) String() string {
	switch m {
	case ConvertNone:
		return "none"
	case ConvertHeightToNormal:
		return "height-to-normal"
	case ConvertNormalToHeight:
		return "normal-to-height"
	case ConvertDiffuseToOthers:
		return "diffuse-to-others"
	case ConvertHeightNormalToOcclusion:
		return "height-normal-to-occlusion"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// ParseConversionMode accepts the names printed by String.
func ParseConversionMode(s string) (ConversionMode, error) {
	for m := ConvertNone; m <= ConvertHeightNormalToOcclusion; m++ {
		if m.String() == s {
			return m, nil
		}
	}
	return ConvertNone, fmt.Errorf("unknown conversion mode %q", s)
}

// InputSource is the dependency edge of a channel: where its content
// comes from when replotted.
type InputSource int

const (
	SourceOwn InputSource = iota
	SourceDiffuse
	SourceHeight
	SourceHeightNormal
)

func (s InputSource) String() string {
	switch s {
	case SourceOwn:
		return "own"
	case SourceDiffuse:
		return "diffuse"
	case SourceHeight:
		return "height"
	case SourceHeightNormal:
		return "height+normal"
	}
	return fmt.Sprintf("source(%d)", int(s))
}

// AllowedSources lists the sources a channel can take.
func AllowedSources(ch texture.Channel) []InputSource {
	switch ch {
	case texture.Diffuse, texture.Grunge:
		return []InputSource{SourceOwn}
	case texture.Height:
		return []InputSource{SourceOwn, SourceDiffuse}
	case texture.Normal, texture.Specular, texture.Roughness, texture.Metallic:
		return []InputSource{SourceOwn, SourceDiffuse, SourceHeight}
	case texture.Occlusion:
		return []InputSource{SourceOwn, SourceDiffuse, SourceHeightNormal}
	case texture.Material:
		return []InputSource{SourceDiffuse}
	}
	return nil
}

func ValidSource(ch texture.Channel, s InputSource) bool {
	for _, a := range AllowedSources(ch) {
		if a == s {
			return true
		}
	}
	return false
}

// AdjustParams is the per-channel finishing stage applied after a channel's
// content has been loaded or derived.
type AdjustParams struct {
	Brightness   float32
	Contrast     float32
	Invert       bool
	GrungeWeight float32
}

func DefaultAdjust() AdjustParams { return AdjustParams{Contrast: 1} }

// Identity reports whether the tone part of the adjustment is a no-op.
func (a AdjustParams) Identity() bool {
	return a.Brightness == 0 && a.Contrast == 1 && !a.Invert
}

// CurveParams maps diffuse or height luminance onto a grayscale channel.
type CurveParams struct {
	Brightness float32
	Contrast   float32
	// Saturation blends the luminance towards the source saturation.
	Saturation float32
	Invert     bool
}

type NormalParams struct {
	Strength float32
}

// HeightParams drives the multi-scale normal to height solver.
type HeightParams struct {
	Levels     int
	Iterations int
	Omega      float32
	MinSize    int
}

// DiffuseParams holds every coefficient of the diffuse to others chain.
type DiffuseParams struct {
	EnableConversion bool

	Detail      float32
	Shape       float32
	ShapeRadius float32
	Contrast    float32
	Invert      bool

	Specular  CurveParams
	Roughness CurveParams
	Metallic  CurveParams
}

type OcclusionParams struct {
	Radius     float32
	Depth      float32
	Strength   float32
	Directions int
	Steps      int
}

type ChannelProps struct {
	Source InputSource
	Adjust AdjustParams
}

// PipelineState is all mutable pipeline configuration, passed explicitly
// to the engine.
type PipelineState struct {
	Mode     ConversionMode
	Channels [texture.NumChannels]ChannelProps

	Normal    NormalParams
	Height    HeightParams
	Diffuse   DiffuseParams
	Occlusion OcclusionParams

	SeamlessMode SeamlessMode
	Seamless     SeamlessParams

	MaterialIndex    int
	MaterialsEnabled bool
}

func DefaultNormalParams() NormalParams { return NormalParams{Strength: 8} }

func DefaultHeightParams() HeightParams {
	return HeightParams{Levels: 6, Iterations: 40, Omega: 0.8, MinSize: 8}
}

func DefaultDiffuseParams() DiffuseParams {
	return DiffuseParams{
		EnableConversion: true,
		Detail:           1.5,
		Shape:            0.6,
		ShapeRadius:      8,
		Contrast:         1,
		Specular:         CurveParams{Brightness: -0.2, Contrast: 1.2},
		Roughness:        CurveParams{Brightness: 0, Contrast: 0.8, Invert: true},
		Metallic:         CurveParams{Brightness: -0.4, Contrast: 1.5, Saturation: -0.5},
	}
}

func DefaultOcclusionParams() OcclusionParams {
	return OcclusionParams{Radius: 0.03, Depth: 4, Strength: 1, Directions: 8, Steps: 6}
}

func DefaultState() *PipelineState {
	st := &PipelineState{
		Normal:        DefaultNormalParams(),
		Height:        DefaultHeightParams(),
		Diffuse:       DefaultDiffuseParams(),
		Occlusion:     DefaultOcclusionParams(),
		Seamless:      DefaultSeamlessParams(),
		MaterialIndex: -1,
	}
	for i := range st.Channels {
		st.Channels[i] = ChannelProps{Source: SourceOwn, Adjust: DefaultAdjust()}
	}
	st.Channels[texture.Material].Source = SourceDiffuse
	return st
}

// SetSource changes a channel's dependency edge.
func (st *PipelineState) SetSource(ch texture.Channel, s InputSource) error {
	if !ch.Valid() || !ValidSource(ch, s) {
		return fmt.Errorf("%w: %s cannot take %s", texture.ErrUnsupportedChannel, ch, s)
	}
	st.Channels[ch].Source = s
	return nil
}

func (st *PipelineState) Source(ch texture.Channel) InputSource {
	return st.Channels[ch].Source
}
