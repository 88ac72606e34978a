package pipeline_test

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bumpforge/pipeline"
	"bumpforge/texture"
)

func TestDefaultOrderIsCanonical(t *testing.T) {
	g, err := pipeline.BuildGraph(pipeline.DefaultState())
	require.NoError(t, err)
	order, err := g.Order(nil)
	require.NoError(t, err)
	assert.Equal(t, []texture.Channel{
		texture.Grunge, texture.Diffuse, texture.Roughness, texture.Metallic,
		texture.Height, texture.Normal, texture.Occlusion, texture.Specular, texture.Material,
	}, order)
}

func TestOrderRespectsDependencies(t *testing.T) {
	cases := map[string]func(st *pipeline.PipelineState){
		"roughness from height": func(st *pipeline.PipelineState) {
			st.Channels[texture.Height].Source = pipeline.SourceDiffuse
			st.Channels[texture.Roughness].Source = pipeline.SourceHeight
		},
		"occlusion from height and normal": func(st *pipeline.PipelineState) {
			st.Channels[texture.Normal].Source = pipeline.SourceHeight
			st.Channels[texture.Occlusion].Source = pipeline.SourceHeightNormal
		},
		"grunge overlay on diffuse": func(st *pipeline.PipelineState) {
			st.Channels[texture.Diffuse].Adjust.GrungeWeight = 0.5
			st.Channels[texture.Metallic].Source = pipeline.SourceHeight
		},
		"materials enabled": func(st *pipeline.PipelineState) {
			st.MaterialsEnabled = true
			st.Channels[texture.Specular].Source = pipeline.SourceHeight
		},
	}
	for name, setup := range cases {
		t.Run(name, func(t *testing.T) {
			st := pipeline.DefaultState()
			setup(st)
			g, err := pipeline.BuildGraph(st)
			require.NoError(t, err)
			order, err := g.Order(nil)
			require.NoError(t, err)
			require.Len(t, order, texture.NumChannels)
			for i, ch := range order {
				for _, d := range g.Deps(ch) {
					assert.Less(t, slices.Index(order, d), i, "%s before %s", d, ch)
				}
			}
		})
	}
}

func TestOrderSkipsChannels(t *testing.T) {
	g, err := pipeline.BuildGraph(pipeline.DefaultState())
	require.NoError(t, err)
	order, err := g.Order(func(ch texture.Channel) bool { return ch == texture.Grunge })
	require.NoError(t, err)
	assert.NotContains(t, order, texture.Grunge)
	assert.Len(t, order, texture.NumChannels-1)
}

func TestOrderDetectsCycle(t *testing.T) {
	g := pipeline.NewGraph()
	g.AddDependency(texture.Height, texture.Normal)
	g.AddDependency(texture.Normal, texture.Height)
	_, err := g.Order(nil)
	assert.ErrorIs(t, err, pipeline.ErrCycle)

	g = pipeline.NewGraph()
	g.AddDependency(texture.Height, texture.Height)
	_, err = g.Order(nil)
	assert.ErrorIs(t, err, pipeline.ErrCycle)
}

func TestDependentsAreTransitive(t *testing.T) {
	st := pipeline.DefaultState()
	st.Channels[texture.Height].Source = pipeline.SourceDiffuse
	st.Channels[texture.Normal].Source = pipeline.SourceHeight
	st.Channels[texture.Occlusion].Source = pipeline.SourceHeightNormal
	g, err := pipeline.BuildGraph(st)
	require.NoError(t, err)

	deps, err := g.Dependents(texture.Diffuse)
	require.NoError(t, err)
	assert.Equal(t, []texture.Channel{texture.Height, texture.Normal, texture.Occlusion, texture.Material}, deps)

	deps, err = g.Dependents(texture.Specular)
	require.NoError(t, err)
	assert.Empty(t, deps)
}

func TestBuildGraphRejectsInvalidSource(t *testing.T) {
	st := pipeline.DefaultState()
	st.Channels[texture.Diffuse].Source = pipeline.SourceHeight
	_, err := pipeline.BuildGraph(st)
	assert.ErrorIs(t, err, texture.ErrUnsupportedChannel)
}

func TestSetSourceValidates(t *testing.T) {
	st := pipeline.DefaultState()
	assert.ErrorIs(t, st.SetSource(texture.Grunge, pipeline.SourceDiffuse), texture.ErrUnsupportedChannel)
	require.NoError(t, st.SetSource(texture.Occlusion, pipeline.SourceHeightNormal))
	assert.Equal(t, pipeline.SourceHeightNormal, st.Source(texture.Occlusion))
}
