package pipeline

import (
	"errors"
	"fmt"

	"bumpforge/texture"
)

// ErrNoMaterial is returned when a region edit is made with no region selected.
var ErrNoMaterial = errors.New("no material region selected")

// Region is one colour-keyed area of the diffuse image.
type Region struct {
	Key     [4]float32
	Enabled bool
	Pixels  int
	// Overrides replace a channel's adjustment inside this region only.
	Overrides map[texture.Channel]AdjustParams
}

// MaterialIndex partitions the diffuse image into regions of matching
// colour and carries per-region channel adjustments.
type MaterialIndex struct {
	regions    []Region
	current    int
	tolerance  float32
	maxRegions int
	overflow   int

	enabled         bool
	savedConversion bool
}

// DefaultMaterialTolerance matches colours that differ by at most one
// 8-bit step per component.
const DefaultMaterialTolerance = 1.0 / 255

func NewMaterialIndex() *MaterialIndex {
	return &MaterialIndex{current: -1, tolerance: DefaultMaterialTolerance, maxRegions: MaxMaterialKeys}
}

// SetTolerance sets the per-component match distance; 0 means exact match.
func (m *MaterialIndex) SetTolerance(t float32) { m.tolerance = max(t, 0) }

func (m *MaterialIndex) Tolerance() float32 { return m.tolerance }

func (m *MaterialIndex) Enabled() bool { return m.enabled }

func (m *MaterialIndex) Regions() []Region { return m.regions }

func (m *MaterialIndex) Current() int { return m.current }

// Overflow counts the pixels left unassigned because the region cap was reached.
func (m *MaterialIndex) Overflow() int { return m.overflow }

// Partition rebuilds the regions from img in order of first occurrence.
// Overrides of regions whose key survives are kept.
func (m *MaterialIndex) Partition(img *texture.Image) []Region {
	old := m.regions
	m.regions = nil
	m.overflow = 0
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			c := img.At(x, y)
			if i := m.find(c); i >= 0 {
				m.regions[i].Pixels++
				continue
			}
			if len(m.regions) >= m.maxRegions {
				m.overflow++
				continue
			}
			m.regions = append(m.regions, Region{
				Key:       [4]float32{c[0], c[1], c[2], 1},
				Enabled:   true,
				Pixels:    1,
				Overrides: map[texture.Channel]AdjustParams{},
			})
		}
	}
	for _, o := range old {
		if i := m.find(o.Key); i >= 0 {
			m.regions[i].Overrides = o.Overrides
			m.regions[i].Enabled = o.Enabled
		}
	}
	if m.current >= len(m.regions) {
		m.current = -1
	}
	return m.regions
}

func (m *MaterialIndex) find(c [4]float32) int {
	for i, r := range m.regions {
		if colorMatch(r.Key, c, m.tolerance) {
			return i
		}
	}
	return -1
}

func colorMatch(a, b [4]float32, tol float32) bool {
	for i := 0; i < 3; i++ {
		d := a[i] - b[i]
		if d < 0 {
			d = -d
		}
		// Half a quantization step absorbs float round-off.
		if d > tol+0.5/255 {
			return false
		}
	}
	return true
}

// Pick selects the region matching c.
func (m *MaterialIndex) Pick(c [4]float32) (int, bool) {
	i := m.find(c)
	if i < 0 {
		return -1, false
	}
	m.current = i
	return i, true
}

// Select makes region i current; -1 clears the selection.
func (m *MaterialIndex) Select(i int) error {
	if i < -1 || i >= len(m.regions) {
		return fmt.Errorf("material index %d out of range [0,%d)", i, len(m.regions))
	}
	m.current = i
	return nil
}

// SetRegionEnabled toggles whether overrides of region i are applied.
func (m *MaterialIndex) SetRegionEnabled(i int, on bool) error {
	if i < 0 || i >= len(m.regions) {
		return fmt.Errorf("material index %d out of range [0,%d)", i, len(m.regions))
	}
	m.regions[i].Enabled = on
	return nil
}

// SetOverride replaces the adjustment of ch inside the current region.
func (m *MaterialIndex) SetOverride(ch texture.Channel, a AdjustParams) error {
	if m.current < 0 {
		return ErrNoMaterial
	}
	if !overridable(ch) {
		return fmt.Errorf("material override: %w: %s", texture.ErrUnsupportedChannel, ch)
	}
	m.regions[m.current].Overrides[ch] = a
	return nil
}

func (m *MaterialIndex) ClearOverride(ch texture.Channel) {
	if m.current >= 0 {
		delete(m.regions[m.current].Overrides, ch)
	}
}

// overridable channels are the grayscale ones derived downstream of diffuse.
func overridable(ch texture.Channel) bool {
	switch ch {
	case texture.Specular, texture.Height, texture.Occlusion, texture.Roughness, texture.Metallic:
		return true
	}
	return false
}

func (m *MaterialIndex) keys() [][4]float32 {
	out := make([][4]float32, len(m.regions))
	for i, r := range m.regions {
		out[i] = r.Key
	}
	return out
}

// overridesFor lists the enabled regions carrying an override for ch.
func (m *MaterialIndex) overridesFor(ch texture.Channel) []Region {
	var out []Region
	for _, r := range m.regions {
		if _, ok := r.Overrides[ch]; ok && r.Enabled {
			out = append(out, r)
		}
	}
	return out
}
