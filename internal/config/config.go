// Package config reads and writes the INI settings file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/viper"

	"bumpforge/core"
	"bumpforge/pipeline"
	"bumpforge/texture"
)

const DefaultFile = "config.ini"

// Config mirrors the sections of config.ini.
type Config struct {
	Suffixes Suffixes `mapstructure:"suffixes"`
	Output   Output   `mapstructure:"output"`
	Batch    Batch    `mapstructure:"batch"`
	Seamless Seamless `mapstructure:"seamless"`
	Preview  Preview  `mapstructure:"preview"`
	Camera   Camera   `mapstructure:"camera"`
	Window   Window   `mapstructure:"window"`
	GL       GL       `mapstructure:"gl"`
	Log      Log      `mapstructure:"log"`
}

type Suffixes struct {
	Diffuse   string `mapstructure:"diffuse"`
	Normal    string `mapstructure:"normal"`
	Specular  string `mapstructure:"specular"`
	Height    string `mapstructure:"height"`
	Occlusion string `mapstructure:"occlusion"`
	Roughness string `mapstructure:"roughness"`
	Metallic  string `mapstructure:"metallic"`
}

type Output struct {
	Format string `mapstructure:"format"`
	// Channels is a comma separated subset of the saved channels; empty saves all.
	Channels string `mapstructure:"channels"`
}

type Batch struct {
	Source string `mapstructure:"source"`
	Dest   string `mapstructure:"dest"`
}

type Seamless struct {
	Mode              string  `mapstructure:"mode"`
	SimpleRadius      float32 `mapstructure:"simple_radius"`
	Direction         string  `mapstructure:"direction"`
	MirrorAxis        string  `mapstructure:"mirror_axis"`
	RandomInner       float32 `mapstructure:"random_inner"`
	RandomOuter       float32 `mapstructure:"random_outer"`
	RandomPhase       float32 `mapstructure:"random_phase"`
	Seed              uint64  `mapstructure:"seed"`
	ContrastStrength  float32 `mapstructure:"contrast_strength"`
	ContrastPower     float32 `mapstructure:"contrast_power"`
	ContrastInput     string  `mapstructure:"contrast_input"`
	TranslationsFirst bool    `mapstructure:"translations_first"`
}

// Preview holds the UV tiling of the 3D view.
type Preview struct {
	UVScale    float32 `mapstructure:"uv_scale"`
	UVOffsetX  float32 `mapstructure:"uv_offset_x"`
	UVOffsetY  float32 `mapstructure:"uv_offset_y"`
	DepthScale float32 `mapstructure:"depth_scale"`
	Shading    string  `mapstructure:"shading"`
}

type Camera struct {
	Sensitivity float32 `mapstructure:"sensitivity"`
	FOV         float32 `mapstructure:"fov"`
	// Frames is the length of a camera transition.
	Frames int `mapstructure:"frames"`
}

type Window struct {
	Width  int `mapstructure:"width"`
	Height int `mapstructure:"height"`
}

type GL struct {
	Major int `mapstructure:"major"`
	Minor int `mapstructure:"minor"`
}

type Log struct {
	Path    string `mapstructure:"path"`
	Verbose bool   `mapstructure:"verbose"`
}

// SetDefaults registers every key with its default value.
func SetDefaults(v *viper.Viper) {
	for _, ch := range texture.Exported() {
		v.SetDefault("suffixes."+strings.ToLower(ch.String()), ch.DefaultSuffix())
	}
	v.SetDefault("output.format", string(texture.FormatPNG))
	v.SetDefault("output.channels", "")
	v.SetDefault("batch.source", "")
	v.SetDefault("batch.dest", "")

	sp := pipeline.DefaultSeamlessParams()
	v.SetDefault("seamless.mode", pipeline.SeamlessNone.String())
	v.SetDefault("seamless.simple_radius", sp.Simple.Radius)
	v.SetDefault("seamless.direction", "xy")
	v.SetDefault("seamless.mirror_axis", "xy")
	v.SetDefault("seamless.random_inner", sp.Random.Inner)
	v.SetDefault("seamless.random_outer", sp.Random.Outer)
	v.SetDefault("seamless.random_phase", sp.Random.Phase)
	v.SetDefault("seamless.seed", sp.Random.Seed)
	v.SetDefault("seamless.contrast_strength", sp.Contrast.Strength)
	v.SetDefault("seamless.contrast_power", sp.Contrast.Power)
	v.SetDefault("seamless.contrast_input", strings.ToLower(sp.Contrast.Input.String()))
	v.SetDefault("seamless.translations_first", sp.TranslationsFirst)

	v.SetDefault("preview.uv_scale", 1.0)
	v.SetDefault("preview.uv_offset_x", 0.0)
	v.SetDefault("preview.uv_offset_y", 0.0)
	v.SetDefault("preview.depth_scale", 0.05)
	v.SetDefault("preview.shading", "roughness")

	v.SetDefault("camera.sensitivity", 0.01)
	v.SetDefault("camera.fov", 45.0)
	v.SetDefault("camera.frames", 30)

	wc := core.DefaultWindowConfig()
	v.SetDefault("window.width", wc.Width)
	v.SetDefault("window.height", wc.Height)
	v.SetDefault("gl.major", wc.GLMajor)
	v.SetDefault("gl.minor", wc.GLMinor)

	v.SetDefault("log.path", "bumpforge.log")
	v.SetDefault("log.verbose", false)
}

// New returns a viper instance with defaults registered for INI files.
func New() *viper.Viper {
	v := viper.New()
	v.SetConfigType("ini")
	SetDefaults(v)
	return v
}

// Load reads path into v and decodes the result. A missing file is not an
// error; the defaults are used.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	return &cfg, nil
}

// Save writes every setting, including defaults, to path.
func Save(v *viper.Viper, path string) error {
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// Exists reports whether path names a regular file.
func Exists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.Mode().IsRegular()
}

// ── Conversions into domain types ────────────────────────────────────────────

// Suffix returns the file name suffix for ch, falling back to the built-in
// one for channels the file does not list.
func (c *Config) Suffix(ch texture.Channel) string {
	var s string
	switch ch {
	case texture.Diffuse:
		s = c.Suffixes.Diffuse
	case texture.Normal:
		s = c.Suffixes.Normal
	case texture.Specular:
		s = c.Suffixes.Specular
	case texture.Height:
		s = c.Suffixes.Height
	case texture.Occlusion:
		s = c.Suffixes.Occlusion
	case texture.Roughness:
		s = c.Suffixes.Roughness
	case texture.Metallic:
		s = c.Suffixes.Metallic
	}
	if s == "" {
		return ch.DefaultSuffix()
	}
	return s
}

func (c *Config) Format() (texture.Format, error) {
	return texture.ParseFormat(c.Output.Format)
}

// Channels lists the channels a save writes.
func (c *Config) Channels() ([]texture.Channel, error) {
	chs, err := texture.ParseExported(c.Output.Channels)
	if err != nil {
		return nil, fmt.Errorf("config: output.channels: %w", err)
	}
	return chs, nil
}

// Apply copies the seamless settings into st.
func (c *Config) Apply(st *pipeline.PipelineState) error {
	mode, err := pipeline.ParseSeamlessMode(c.Seamless.Mode)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	dir, err := parseDirection(c.Seamless.Direction)
	if err != nil {
		return err
	}
	axis, err := parseMirrorAxis(c.Seamless.MirrorAxis)
	if err != nil {
		return err
	}
	input, err := texture.ParseChannel(c.Seamless.ContrastInput)
	if err != nil {
		return fmt.Errorf("config: contrast input: %w", err)
	}
	switch input {
	case texture.Height, texture.Diffuse, texture.Normal, texture.Occlusion:
	default:
		return fmt.Errorf("config: contrast input: %w: %s", texture.ErrUnsupportedChannel, input)
	}

	st.SeamlessMode = mode
	p := &st.Seamless
	p.Simple.Radius = c.Seamless.SimpleRadius
	p.Simple.Direction = dir
	p.Mirror.Axis = axis
	p.Random.Inner = c.Seamless.RandomInner
	p.Random.Outer = c.Seamless.RandomOuter
	p.Random.Phase = c.Seamless.RandomPhase
	p.Random.Seed = c.Seamless.Seed
	p.Contrast.Strength = c.Seamless.ContrastStrength
	p.Contrast.Power = c.Seamless.ContrastPower
	p.Contrast.Input = input
	p.TranslationsFirst = c.Seamless.TranslationsFirst
	return nil
}

func (c *Config) WindowConfig() core.WindowConfig {
	wc := core.DefaultWindowConfig()
	if c.Window.Width > 0 {
		wc.Width = c.Window.Width
	}
	if c.Window.Height > 0 {
		wc.Height = c.Window.Height
	}
	if c.GL.Major > 0 {
		wc.GLMajor, wc.GLMinor = c.GL.Major, c.GL.Minor
	}
	return wc
}

func parseDirection(s string) (pipeline.Direction, error) {
	switch strings.ToLower(s) {
	case "", "xy":
		return pipeline.DirectionXY, nil
	case "x":
		return pipeline.DirectionX, nil
	case "y":
		return pipeline.DirectionY, nil
	}
	return 0, fmt.Errorf("config: unknown direction %q", s)
}

func parseMirrorAxis(s string) (pipeline.MirrorAxis, error) {
	switch strings.ToLower(s) {
	case "", "xy":
		return pipeline.MirrorXY, nil
	case "x":
		return pipeline.MirrorX, nil
	case "y":
		return pipeline.MirrorY, nil
	}
	return 0, fmt.Errorf("config: unknown mirror axis %q", s)
}
