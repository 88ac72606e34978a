package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"bumpforge/core"
	"bumpforge/internal/batch"
	"bumpforge/internal/opengl"
	"bumpforge/pipeline"
	"bumpforge/scene"
	"bumpforge/texture"
)

var viewCmd = &cobra.Command{
	Use:   "view [image]",
	Short: "Open the interactive 2D / 3D preview",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runView,
}

func init() {
	rootCmd.AddCommand(viewCmd)

	viewCmd.Flags().String("mesh", "", "OBJ, glTF or GLB mesh for the 3D view (default: plane)")
	viewCmd.Flags().String("skybox", "", "Directory holding the six cube map faces posx..negz")
	viewCmd.Flags().String("dest", "", "Directory the S key saves the texture set to (default: next to the image)")
	viewCmd.Flags().String("channels", "", "Comma separated channels to save, e.g. normal,height (default: all)")
	viewCmd.Flags().Int("width", 0, "Window width")
	viewCmd.Flags().Int("height", 0, "Window height")

	commandBindings[viewCmd] = []flagBinding{
		{"batch.dest", "dest"},
		{"output.channels", "channels"},
		{"window.width", "width"},
		{"window.height", "height"},
	}
}

const controls = `
  Space        toggle 2D / 3D
  1-9          show diffuse, normal, specular, height, occlusion, roughness, metallic, grunge, material
  B            derive every channel from the diffuse map
  H / N / O    height to normal, normal to height, height and normal to occlusion
  F5           next seamless mode          R / F2   randomize / reset random patches
  A            bake the seamless diffuse and derive the other channels
  [ / ]        halve / double the texture size
  M            toggle material regions     right click (3D)   pick color / region
  I / U        invert / clear the shown channel inside the picked region
  T            cycle 2D tiling             P        toggle roughness / glossiness shading
  G / D / L / K  glow, depth of field, lens flare, tone mapping
  F1           reset camera                S        save the texture set
  drop files   image = diffuse, .obj/.gltf/.glb = mesh, directory = skybox
  Esc          quit
`

// viewer is the state of the interactive preview.
type viewer struct {
	win      *core.Window
	dev      *opengl.Device
	store    *pipeline.Store
	eng      *pipeline.Engine
	present  *opengl.Presenter
	renderer *opengl.SceneRenderer

	mesh   *scene.Mesh
	cam    *scene.OrbitCamera
	interp scene.CameraInterpolator
	frames int

	mode3D bool
	base   string
	dest   string

	lastX, lastY float64
	dragging     bool
	rightWasDown bool
}

func runView(cmd *cobra.Command, args []string) error {
	meshPath, _ := cmd.Flags().GetString("mesh")
	skyDir, _ := cmd.Flags().GetString("skybox")

	wc := cfg.WindowConfig()
	wc.Title = "bumpforge"
	win, err := core.NewWindow(wc)
	if err != nil {
		return err
	}
	defer win.Destroy()
	if err := opengl.Init(logger); err != nil {
		return err
	}

	v, err := newViewer(win)
	if err != nil {
		return err
	}
	defer v.destroy()

	if meshPath != "" {
		v.loadMesh(meshPath)
	}
	if skyDir != "" {
		v.loadSkybox(skyDir)
	}
	v.dest = cfg.Batch.Dest
	if len(args) == 1 {
		v.loadImage(args[0])
	} else if err := v.eng.ReplotAll(); err != nil {
		return err
	}

	fmt.Print(controls)
	v.run()
	return nil
}

func newViewer(win *core.Window) (*viewer, error) {
	v := &viewer{win: win, frames: cfg.Camera.Frames, base: "untitled"}
	var err error
	if v.dev, err = opengl.NewDevice(logger); err != nil {
		return nil, err
	}
	if v.present, err = opengl.NewPresenter(v.dev, logger); err != nil {
		v.destroy()
		return nil, err
	}
	fw, fh := win.GetFramebufferSize()
	if v.renderer, err = opengl.NewSceneRenderer(v.dev, max(fw, 1), max(fh, 1), logger); err != nil {
		v.destroy()
		return nil, err
	}
	if v.store, err = pipeline.NewStore(v.dev, 512, 512); err != nil {
		v.destroy()
		return nil, err
	}
	state := pipeline.DefaultState()
	if err := cfg.Apply(state); err != nil {
		v.destroy()
		return nil, err
	}
	v.eng = pipeline.NewEngine(v.store, state, pipeline.WithLogger(logger), pipeline.WithPresenter(v.present))

	rs := &v.renderer.Settings
	rs.UVScale = cfg.Preview.UVScale
	rs.UVOffset = mgl32.Vec2{cfg.Preview.UVOffsetX, cfg.Preview.UVOffsetY}
	rs.DepthScale = cfg.Preview.DepthScale
	if strings.EqualFold(cfg.Preview.Shading, "glossiness") {
		rs.Shading = opengl.ShadingGlossiness
	}

	v.mesh = scene.CreatePlane(2)
	v.cam = scene.NewOrbitCamera(scene.DefaultPose(), cfg.Camera.FOV, float32(max(fw, 1))/float32(max(fh, 1)))
	if cfg.Camera.Sensitivity > 0 {
		v.cam.Sensitivity = cfg.Camera.Sensitivity
	}

	win.SetKeyCallback(v.onKey)
	win.SetScrollCallback(func(_, yoff float64) {
		if v.mode3D {
			v.cam.Zoom(float32(yoff))
		}
	})
	win.SetDropCallback(v.onDrop)
	return v, nil
}

func (v *viewer) destroy() {
	if v.eng != nil {
		v.eng.Release()
	}
	if v.store != nil {
		v.store.Destroy()
	}
	if v.renderer != nil {
		v.renderer.Destroy()
	}
	if v.present != nil {
		v.present.Destroy()
	}
	if v.dev != nil {
		v.dev.Destroy()
	}
}

func (v *viewer) run() {
	for !v.win.ShouldClose() {
		v.win.PollEvents()
		fw, fh := v.win.GetFramebufferSize()
		if fw == 0 || fh == 0 {
			continue
		}
		v.updateMouse(fw, fh)

		if v.mode3D {
			v.cam.UpdateAspectRatio(float32(fw), float32(fh))
			v.interp.Step(v.cam)
			if err := v.renderer.Resize(fw, fh); err != nil {
				v.report("resize", err)
				return
			}
			if err := v.renderer.Render(v.store, v.mesh, v.cam); err != nil {
				v.report("render", err)
			}
		} else if err := v.present.Draw(fw, fh); err != nil {
			v.report("draw", err)
		}
		v.win.SwapBuffers()
	}
}

func (v *viewer) report(what string, err error) {
	logger.Error(what, zap.Error(err))
	fmt.Fprintf(os.Stderr, "%s: %v\n", what, err)
}

// ── Input ────────────────────────────────────────────────────────────────────

// channelKeys maps the number row to channels.
var channelKeys = map[int]texture.Channel{
	core.Key1: texture.Diffuse,
	core.Key2: texture.Normal,
	core.Key3: texture.Specular,
	core.Key4: texture.Height,
	core.Key5: texture.Occlusion,
	core.Key6: texture.Roughness,
	core.Key7: texture.Metallic,
	core.Key8: texture.Grunge,
	core.Key9: texture.Material,
}

// conversionKeys maps a key to a conversion and the channel shown after it.
var conversionKeys = map[int]struct {
	mode   pipeline.ConversionMode
	active texture.Channel
}{
	core.KeyB: {pipeline.ConvertDiffuseToOthers, texture.Diffuse},
	core.KeyH: {pipeline.ConvertHeightToNormal, texture.Normal},
	core.KeyN: {pipeline.ConvertNormalToHeight, texture.Height},
	core.KeyO: {pipeline.ConvertHeightNormalToOcclusion, texture.Occlusion},
}

func nextSeamlessMode(m pipeline.SeamlessMode) pipeline.SeamlessMode {
	if m >= pipeline.SeamlessRandom {
		return pipeline.SeamlessNone
	}
	return m + 1
}

func nextTiles(t float32) float32 {
	if t >= 3 {
		return 1
	}
	return t + 1
}

func (v *viewer) onKey(key int) {
	if ch, ok := channelKeys[key]; ok {
		if err := v.eng.SetActive(ch); err != nil {
			v.report("select channel", err)
		}
		return
	}
	if c, ok := conversionKeys[key]; ok {
		if err := v.eng.Convert(c.mode, c.active); err != nil {
			v.report("convert", err)
		}
		return
	}

	post := &v.renderer.Settings.Post
	var err error
	switch key {
	case core.KeyEscape:
		v.win.SetShouldClose(true)
	case core.KeySpace:
		v.mode3D = !v.mode3D
	case core.KeyF5:
		m := nextSeamlessMode(v.eng.State().SeamlessMode)
		err = v.eng.SelectSeamlessMode(m)
		fmt.Println("seamless:", m)
	case core.KeyR:
		err = v.eng.Randomize()
	case core.KeyF2:
		err = v.eng.RandomReset()
	case core.KeyA:
		err = v.eng.ApplySeamless()
	case core.KeyLeftBracket, core.KeyRightBracket:
		f := rescaleFactor(key)
		err = v.eng.Rescale(f, f)
		w, h := v.store.Size()
		fmt.Printf("size %dx%d\n", w, h)
	case core.KeyM:
		if v.eng.Materials().Enabled() {
			err = v.eng.DisableMaterials()
		} else {
			err = v.eng.EnableMaterials()
		}
	case core.KeyI:
		err = v.invertRegion(v.eng.Active())
	case core.KeyU:
		err = v.eng.ClearMaterialOverride(v.eng.Active())
	case core.KeyT:
		v.present.Tiles = nextTiles(v.present.Tiles)
	case core.KeyP:
		if v.renderer.Settings.Shading == opengl.ShadingGlossiness {
			v.renderer.Settings.Shading = opengl.ShadingRoughnessSpecular
		} else {
			v.renderer.Settings.Shading = opengl.ShadingGlossiness
		}
	case core.KeyG:
		post.Glow = !post.Glow
	case core.KeyD:
		post.DOF = !post.DOF
	case core.KeyL:
		post.LensFlare = !post.LensFlare
	case core.KeyK:
		post.ToneMapping = !post.ToneMapping
	case core.KeyF1:
		v.interp.Start(v.cam.Pose, scene.DefaultPose(), v.frames)
	case core.KeyS:
		v.save()
	}
	if err != nil {
		v.report("key", err)
	}
}

// rescaleFactor maps the bracket keys to a size factor.
func rescaleFactor(key int) float64 {
	if key == core.KeyLeftBracket {
		return 0.5
	}
	return 2
}

// invertRegion toggles inversion of ch inside the picked region. A new
// override starts from the channel's own adjustment.
func (v *viewer) invertRegion(ch texture.Channel) error {
	a, ok := v.eng.MaterialOverride(ch)
	if !ok {
		a = v.eng.State().Channels[ch].Adjust
	}
	a.Invert = !a.Invert
	return v.eng.SetMaterialOverride(ch, a)
}

func (v *viewer) updateMouse(fw, fh int) {
	x, y := v.win.GetCursorPos()
	if v.win.IsMouseButtonPressed(core.MouseButtonLeft) && v.mode3D {
		if v.dragging && !v.interp.Active() {
			v.cam.Orbit(float32(x-v.lastX), float32(y-v.lastY))
		}
		v.dragging = true
	} else {
		v.dragging = false
	}
	v.lastX, v.lastY = x, y

	right := v.win.IsMouseButtonPressed(core.MouseButtonRight)
	if right && !v.rightWasDown && v.mode3D {
		// Cursor positions are in window units, the render targets in pixels.
		sx := float64(fw) / float64(max(v.win.Width, 1))
		sy := float64(fh) / float64(max(v.win.Height, 1))
		v.pick(int(x*sx), int(y*sy), fw, fh)
	}
	v.rightWasDown = right
}

func (v *viewer) pick(px, py, fw, fh int) {
	ray := scene.ScreenToRay(float32(px), float32(py), float32(fw), float32(fh), &v.cam.Camera)
	if t, ok := scene.IntersectMesh(ray, v.mesh); ok {
		p := ray.Origin.Add(ray.Direction.Mul(t))
		logger.Debug("picked surface", zap.Float32s("position", p[:]))
	}
	c, ok := v.renderer.PickColor(v.store, px, py)
	if !ok {
		return
	}
	if !v.eng.Materials().Enabled() {
		fmt.Printf("color %.3f %.3f %.3f\n", c[0], c[1], c[2])
		return
	}
	if i, ok := v.eng.PickMaterial(c); ok {
		fmt.Println("material region", i)
	}
}

// ── Files ────────────────────────────────────────────────────────────────────

func (v *viewer) onDrop(paths []string) {
	for _, p := range paths {
		st, err := os.Stat(p)
		switch {
		case err != nil:
			v.report("open", err)
		case st.IsDir():
			v.loadSkybox(p)
		case texture.InputExt(filepath.Ext(p)):
			v.loadImage(p)
		default:
			v.loadMesh(p)
		}
	}
}

func (v *viewer) loadImage(path string) {
	img, err := texture.Load(path)
	if err != nil {
		v.report("load image", err)
		return
	}
	if err := v.eng.LoadImage(texture.Diffuse, img); err != nil {
		v.report("load image", err)
		return
	}
	v.base = texture.BaseName(path)
	if v.dest == "" {
		v.dest = filepath.Dir(path)
	}
	v.win.SetTitle("bumpforge - " + filepath.Base(path))
}

// loadMesh keeps the previous mesh when the file cannot be read.
func (v *viewer) loadMesh(path string) {
	m, err := scene.LoadMesh(path)
	if err != nil {
		v.report("load mesh", err)
		return
	}
	v.renderer.ReleaseMesh(v.mesh)
	v.mesh = m
	v.interp.Start(v.cam.Pose, scene.DefaultPose(), v.frames)
	logger.Info("mesh loaded", zap.String("path", path), zap.Int("vertices", len(m.Vertices)))
}

func (v *viewer) loadSkybox(dir string) {
	faces, err := scene.LoadCubemap(dir)
	if err != nil {
		v.report("load skybox", err)
		return
	}
	if err := v.renderer.SetSkybox(faces); err != nil {
		v.report("load skybox", err)
	}
}

func (v *viewer) save() {
	f, err := cfg.Format()
	if err != nil {
		v.report("save", err)
		return
	}
	chs, err := cfg.Channels()
	if err != nil {
		v.report("save", err)
		return
	}
	dest := v.dest
	if dest == "" {
		dest = "."
	}
	written, err := batch.WriteSet(v.store, v.base, batch.Options{Dest: dest, Format: f, Suffix: cfg.Suffix, Channels: chs})
	if err != nil {
		v.report("save", err)
		return
	}
	fmt.Printf("saved %d files to %s\n", len(written), dest)
}
