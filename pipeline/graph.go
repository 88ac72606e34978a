package pipeline

import (
	"errors"
	"fmt"
	"slices"

	"bumpforge/texture"
)

// ErrCycle is returned when the channel dependencies do not form a DAG.
var ErrCycle = errors.New("channel graph has a cycle")

// canonicalOrder breaks ties between channels that are ready at the same
// time, which keeps replot order stable.
var canonicalOrder = [texture.NumChannels]texture.Channel{
	texture.Grunge,
	texture.Diffuse,
	texture.Roughness,
	texture.Metallic,
	texture.Height,
	texture.Normal,
	texture.Occlusion,
	texture.Specular,
	texture.Material,
}

var canonicalRank = func() (r [texture.NumChannels]int) {
	for i, ch := range canonicalOrder {
		r[ch] = i
	}
	return r
}()

// Graph is the channel dependency graph: deps[c] lists the channels whose
// outputs c reads when it is recomputed.
type Graph struct {
	deps [texture.NumChannels][]texture.Channel
}

func NewGraph() *Graph { return &Graph{} }

// BuildGraph derives the edges from the channel sources and adjustments.
func BuildGraph(st *PipelineState) (*Graph, error) {
	g := NewGraph()
	for _, ch := range texture.All() {
		props := st.Channels[ch]
		if !ValidSource(ch, props.Source) {
			return nil, fmt.Errorf("graph: %w: %s cannot take %s", texture.ErrUnsupportedChannel, ch, props.Source)
		}
		switch props.Source {
		case SourceDiffuse:
			g.AddDependency(ch, texture.Diffuse)
		case SourceHeight:
			g.AddDependency(ch, texture.Height)
		case SourceHeightNormal:
			g.AddDependency(ch, texture.Height)
			g.AddDependency(ch, texture.Normal)
		}
		if ch != texture.Grunge && props.Adjust.GrungeWeight > 0 {
			g.AddDependency(ch, texture.Grunge)
		}
		// Region masks are matched against the diffuse output.
		if st.MaterialsEnabled && ch != texture.Grunge && ch != texture.Diffuse {
			g.AddDependency(ch, texture.Diffuse)
		}
	}
	return g, nil
}

// AddDependency records that ch reads dep.
func (g *Graph) AddDependency(ch, dep texture.Channel) {
	if !slices.Contains(g.deps[ch], dep) {
		g.deps[ch] = append(g.deps[ch], dep)
	}
}

func (g *Graph) Deps(ch texture.Channel) []texture.Channel { return g.deps[ch] }

// Order returns a topological order of every channel not skipped. Skipped
// channels are treated as already computed.
func (g *Graph) Order(skip func(texture.Channel) bool) ([]texture.Channel, error) {
	include := func(ch texture.Channel) bool { return skip == nil || !skip(ch) }

	var indeg [texture.NumChannels]int
	for _, ch := range texture.All() {
		if !include(ch) {
			continue
		}
		for _, d := range g.deps[ch] {
			if include(d) && d != ch {
				indeg[ch]++
			} else if d == ch {
				return nil, fmt.Errorf("%w: %s depends on itself", ErrCycle, ch)
			}
		}
	}

	var (
		order []texture.Channel
		done  [texture.NumChannels]bool
	)
	want := 0
	for _, ch := range texture.All() {
		if include(ch) {
			want++
		}
	}
	for len(order) < want {
		next := texture.Channel(-1)
		for _, ch := range canonicalOrder {
			if include(ch) && !done[ch] && indeg[ch] == 0 {
				next = ch
				break
			}
		}
		if next < 0 {
			return nil, ErrCycle
		}
		done[next] = true
		order = append(order, next)
		for _, ch := range texture.All() {
			if include(ch) && !done[ch] && slices.Contains(g.deps[ch], next) {
				indeg[ch]--
			}
		}
	}
	return order, nil
}

// Dependents returns every channel that transitively reads ch, in
// topological order.
func (g *Graph) Dependents(ch texture.Channel) ([]texture.Channel, error) {
	var dirty [texture.NumChannels]bool
	dirty[ch] = true
	for changed := true; changed; {
		changed = false
		for _, c := range texture.All() {
			if dirty[c] {
				continue
			}
			for _, d := range g.deps[c] {
				if dirty[d] {
					dirty[c] = true
					changed = true
					break
				}
			}
		}
	}
	order, err := g.Order(nil)
	if err != nil {
		return nil, err
	}
	var out []texture.Channel
	for _, c := range order {
		if c != ch && dirty[c] {
			out = append(out, c)
		}
	}
	return out, nil
}

// Rank is the canonical position of ch.
func Rank(ch texture.Channel) int { return canonicalRank[ch] }
