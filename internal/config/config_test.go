package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bumpforge/pipeline"
	"bumpforge/texture"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(New(), filepath.Join(t.TempDir(), "absent.ini"))
	require.NoError(t, err)

	assert.Equal(t, "png", cfg.Output.Format)
	assert.Equal(t, 1280, cfg.Window.Width)
	assert.Equal(t, 4, cfg.GL.Major)
	assert.Equal(t, 1, cfg.GL.Minor)
	assert.InDelta(t, 0.01, cfg.Camera.Sensitivity, 1e-6)
	for _, ch := range texture.Exported() {
		assert.Equal(t, ch.DefaultSuffix(), cfg.Suffix(ch), ch.String())
	}
}

func TestLoadINI(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.ini")
	ini := "[suffixes]\nnormal = _nrm\n\n[output]\nformat = webp\nchannels = normal,height\n\n" +
		"[seamless]\nmode = mirror\nmirror_axis = y\nsimple_radius = 0.25\n"
	require.NoError(t, os.WriteFile(path, []byte(ini), 0o644))

	cfg, err := Load(New(), path)
	require.NoError(t, err)
	assert.Equal(t, "_nrm", cfg.Suffix(texture.Normal))
	assert.Equal(t, "_h", cfg.Suffix(texture.Height))

	f, err := cfg.Format()
	require.NoError(t, err)
	assert.Equal(t, texture.FormatWebP, f)
	chs, err := cfg.Channels()
	require.NoError(t, err)
	assert.Equal(t, []texture.Channel{texture.Normal, texture.Height}, chs)

	st := pipeline.DefaultState()
	require.NoError(t, cfg.Apply(st))
	assert.Equal(t, pipeline.SeamlessMirror, st.SeamlessMode)
	assert.Equal(t, pipeline.MirrorY, st.Seamless.Mirror.Axis)
	assert.InDelta(t, 0.25, st.Seamless.Simple.Radius, 1e-6)
	assert.Equal(t, texture.Diffuse, st.Seamless.Contrast.Input)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.ini")
	v := New()
	v.Set("window.width", 800)
	v.Set("seamless.seed", 42)
	require.NoError(t, Save(v, path))
	assert.True(t, Exists(path))

	cfg, err := Load(New(), path)
	require.NoError(t, err)
	assert.Equal(t, 800, cfg.Window.Width)
	assert.Equal(t, uint64(42), cfg.Seamless.Seed)
	assert.Equal(t, 720, cfg.Window.Height)
}

func TestApplyRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"mode", "seamless.mode", "spiral"},
		{"direction", "seamless.direction", "z"},
		{"axis", "seamless.mirror_axis", "diagonal"},
		{"contrast input", "seamless.contrast_input", "metallic"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New()
			v.Set(tt.key, tt.val)
			cfg, err := Load(v, "")
			require.NoError(t, err)
			assert.Error(t, cfg.Apply(pipeline.DefaultState()))
		})
	}
}

func TestWindowConfig(t *testing.T) {
	v := New()
	v.Set("window.height", 600)
	v.Set("gl.major", 3)
	v.Set("gl.minor", 3)
	cfg, err := Load(v, "")
	require.NoError(t, err)

	wc := cfg.WindowConfig()
	assert.Equal(t, 600, wc.Height)
	assert.Equal(t, 3, wc.GLMajor)
	assert.Equal(t, 3, wc.GLMinor)
}
