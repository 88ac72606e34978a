package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"bumpforge/core"
	"bumpforge/pipeline"
	"bumpforge/texture"
)

func TestChannelKeysCoverEveryChannel(t *testing.T) {
	seen := map[texture.Channel]bool{}
	for _, ch := range channelKeys {
		seen[ch] = true
	}
	for _, ch := range texture.All() {
		assert.True(t, seen[ch], ch.String())
	}
}

func TestConvertInputs(t *testing.T) {
	for mode, ch := range convertInput {
		assert.True(t, pipeline.ValidSource(ch, pipeline.SourceOwn), "%s reads %s", mode, ch)
	}
	_, ok := convertInput[pipeline.ConvertNone]
	assert.False(t, ok)
}

func TestCycles(t *testing.T) {
	m := pipeline.SeamlessNone
	var seq []pipeline.SeamlessMode
	for range 5 {
		m = nextSeamlessMode(m)
		seq = append(seq, m)
	}
	assert.Equal(t, []pipeline.SeamlessMode{
		pipeline.SeamlessSimple, pipeline.SeamlessMirror, pipeline.SeamlessRandom,
		pipeline.SeamlessNone, pipeline.SeamlessSimple,
	}, seq)

	assert.Equal(t, float32(2), nextTiles(1))
	assert.Equal(t, float32(1), nextTiles(3))

	assert.Equal(t, 0.5, rescaleFactor(core.KeyLeftBracket))
	assert.Equal(t, 2.0, rescaleFactor(core.KeyRightBracket))
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, n := range []string{"view", "batch", "convert", "config"} {
		assert.True(t, names[n], n)
	}
	for cmd, bindings := range commandBindings {
		for _, b := range bindings {
			assert.NotNil(t, cmd.Flags().Lookup(b.flag), "%s --%s", cmd.Name(), b.flag)
		}
	}
}
