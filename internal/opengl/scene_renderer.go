package opengl

import (
	"fmt"
	"unsafe"

	gl "github.com/go-gl/gl/v4.1-core/gl"
	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"bumpforge/core"
	"bumpforge/pipeline"
	"bumpforge/scene"
	"bumpforge/texture"
)

// GPUMesh holds the OpenGL buffer objects for an uploaded mesh.
type GPUMesh struct {
	VAO        uint32
	VBO        uint32
	EBO        uint32
	IndexCount int32
}

// ShadingModel selects how the roughness channel is interpreted.
type ShadingModel int32

const (
	// ShadingRoughnessSpecular reads roughness directly and mixes the
	// specular channel with albedo by metallic for F0.
	ShadingRoughnessSpecular ShadingModel = iota
	// ShadingGlossiness treats the roughness channel as glossiness.
	ShadingGlossiness
)

// RenderSettings configures the 3D preview.
type RenderSettings struct {
	Shading    ShadingModel
	LightDir   mgl32.Vec3
	LightColor core.Color
	// DepthScale displaces vertices along the normal by the height channel.
	DepthScale float32
	UVScale    float32
	UVOffset   mgl32.Vec2
	// EnvIntensity scales the image-based ambient term.
	EnvIntensity float32
	Post         PostSettings
}

func DefaultRenderSettings() RenderSettings {
	return RenderSettings{
		LightDir:     mgl32.Vec3{-0.4, 0.6, 0.7}.Normalize(),
		LightColor:   core.ColorWhite,
		DepthScale:   0.05,
		UVScale:      1,
		EnvIntensity: 1,
		Post:         DefaultPostSettings(),
	}
}

// previewChannels are bound to texture units 0.. in this order.
var previewChannels = []texture.Channel{
	texture.Diffuse, texture.Normal, texture.Specular, texture.Height,
	texture.Occlusion, texture.Roughness, texture.Metallic,
}

const (
	unitIrradiance = 7
	unitPrefilter  = 8
)

// ── Shaders ───────────────────────────────────────────────────────────────────

const meshVertSrc = `
#version 410 core
layout(location = 0) in vec3 inPosition;
layout(location = 1) in vec3 inNormal;
layout(location = 2) in vec2 inUV;
layout(location = 3) in vec3 inTangent;
layout(location = 4) in vec3 inBitangent;

uniform mat4 u_mvp;
uniform mat4 u_model;
uniform float u_depthScale;
uniform float u_uvScale;
uniform vec2 u_uvOffset;
uniform sampler2D u_height;

out vec2 fragUV;
out vec3 fragWorldPos;
out mat3 fragTBN;

void main() {
    fragUV = inUV * u_uvScale + u_uvOffset;
    float h = textureLod(u_height, fragUV, 0.0).r;
    vec3 pos = inPosition + inNormal * (h - 0.5) * u_depthScale;

    mat3 nm = mat3(u_model);
    fragTBN = mat3(normalize(nm * inTangent), normalize(nm * inBitangent), normalize(nm * inNormal));
    fragWorldPos = (u_model * vec4(pos, 1.0)).xyz;
    gl_Position = u_mvp * vec4(pos, 1.0);
}
` + "\x00"

const meshFragSrc = `
#version 410 core
in vec2 fragUV;
in vec3 fragWorldPos;
in mat3 fragTBN;

layout(location = 0) out vec4 outColor;
layout(location = 1) out vec4 outUV;

uniform sampler2D u_diffuse;
uniform sampler2D u_normal;
uniform sampler2D u_specular;
uniform sampler2D u_height;
uniform sampler2D u_occlusion;
uniform sampler2D u_roughness;
uniform sampler2D u_metallic;
uniform samplerCube u_irradiance;
uniform samplerCube u_prefilter;

uniform int u_shading;
uniform int u_hasEnv;
uniform vec3 u_cameraPos;
uniform vec3 u_lightDir;
uniform vec3 u_lightColor;
uniform float u_envIntensity;

const float PI = 3.14159265359;

float DistributionGGX(float NdH, float roughness) {
    float a  = roughness * roughness;
    float a2 = a * a;
    float d  = NdH * NdH * (a2 - 1.0) + 1.0;
    return a2 / (PI * d * d);
}

float GeometrySchlickGGX(float cosTheta, float roughness) {
    float r = roughness + 1.0;
    float k = (r * r) / 8.0;
    return cosTheta / (cosTheta * (1.0 - k) + k);
}

vec3 FresnelSchlick(float cosTheta, vec3 F0) {
    return F0 + (1.0 - F0) * pow(clamp(1.0 - cosTheta, 0.0, 1.0), 5.0);
}

void main() {
    vec3 albedo = pow(texture(u_diffuse, fragUV).rgb, vec3(2.2));
    vec3 tn = texture(u_normal, fragUV).rgb * 2.0 - 1.0;
    vec3 N = normalize(fragTBN * tn);
    float spec = texture(u_specular, fragUV).r;
    float ao = texture(u_occlusion, fragUV).r;
    float rough = texture(u_roughness, fragUV).r;
    if (u_shading == 1) rough = 1.0 - rough;
    rough = clamp(rough, 0.04, 1.0);
    float metal = texture(u_metallic, fragUV).r;

    vec3 V = normalize(u_cameraPos - fragWorldPos);
    vec3 L = normalize(u_lightDir);
    vec3 H = normalize(V + L);
    float NdL = max(dot(N, L), 0.0);
    float NdV = max(dot(N, V), 1e-4);

    vec3 F0 = mix(vec3(0.04 + 0.96 * spec * 0.08), albedo, metal);
    vec3 F = FresnelSchlick(max(dot(H, V), 0.0), F0);
    float D = DistributionGGX(max(dot(N, H), 0.0), rough);
    float G = GeometrySchlickGGX(NdV, rough) * GeometrySchlickGGX(NdL, rough);
    vec3 kD = (vec3(1.0) - F) * (1.0 - metal);
    vec3 direct = (kD * albedo / PI + D * G * F / max(4.0 * NdV * NdL, 1e-3)) * u_lightColor * NdL;

    vec3 ambient = albedo * 0.03;
    if (u_hasEnv != 0) {
        vec3 R = reflect(-V, N);
        vec3 irr = texture(u_irradiance, N).rgb;
        vec3 pre = textureLod(u_prefilter, R, rough * 4.0).rgb;
        ambient = (kD * irr * albedo + pre * F) * u_envIntensity;
    }

    outColor = vec4(direct + ambient * ao, 1.0);
    outUV = vec4(fract(fragUV), 0.0, 1.0);
}
` + "\x00"

// ── SceneRenderer ─────────────────────────────────────────────────────────────

// SceneRenderer shades a mesh with the generated channels into an HDR color
// target plus a UV attachment used for picking, then hands the frame to the
// post-processing chain.
type SceneRenderer struct {
	dev  *Device
	prog *program
	log  *zap.Logger

	fbo      uint32
	colorTex uint32
	uvTex    uint32
	depthTex uint32
	w, h     int

	gpuMeshes map[*scene.Mesh]*GPUMesh

	Skybox   *Skybox
	Baker    *EnvironmentBaker
	EnvCache scene.EnvCache
	Post     *PostProcessChain

	Settings RenderSettings
}

// NewSceneRenderer must be called after Init with the context current.
func NewSceneRenderer(dev *Device, w, h int, log *zap.Logger) (*SceneRenderer, error) {
	prog, err := newCachedProgram(meshVertSrc, meshFragSrc)
	if err != nil {
		return nil, fmt.Errorf("mesh shader: %w", err)
	}
	r := &SceneRenderer{
		dev:       dev,
		prog:      prog,
		log:       log,
		gpuMeshes: make(map[*scene.Mesh]*GPUMesh),
		Settings:  DefaultRenderSettings(),
	}
	prog.use()
	names := []string{"u_diffuse", "u_normal", "u_specular", "u_height", "u_occlusion", "u_roughness", "u_metallic"}
	for i, n := range names {
		gl.Uniform1i(prog.loc(n), int32(i))
	}
	gl.Uniform1i(prog.loc("u_irradiance"), unitIrradiance)
	gl.Uniform1i(prog.loc("u_prefilter"), unitPrefilter)

	if r.Skybox, err = NewSkybox(); err != nil {
		r.Destroy()
		return nil, err
	}
	if r.Baker, err = NewEnvironmentBaker(); err != nil {
		r.Destroy()
		return nil, err
	}
	if r.Post, err = NewPostProcessChain(dev, w, h, log); err != nil {
		r.Destroy()
		return nil, err
	}
	if err := r.allocTargets(w, h); err != nil {
		r.Destroy()
		return nil, err
	}
	return r, nil
}

func (r *SceneRenderer) allocTargets(w, h int) error {
	r.w, r.h = w, h
	tex := func(id *uint32, internal int32, format, xtype uint32) {
		gl.GenTextures(1, id)
		gl.BindTexture(gl.TEXTURE_2D, *id)
		gl.TexImage2D(gl.TEXTURE_2D, 0, internal, int32(w), int32(h), 0, format, xtype, nil)
		gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.LINEAR)
		gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.LINEAR)
		gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
		gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
	}
	tex(&r.colorTex, gl.RGBA16F, gl.RGBA, gl.FLOAT)
	tex(&r.uvTex, gl.RGBA32F, gl.RGBA, gl.FLOAT)
	tex(&r.depthTex, gl.DEPTH_COMPONENT32F, gl.DEPTH_COMPONENT, gl.FLOAT)
	gl.BindTexture(gl.TEXTURE_2D, 0)

	gl.GenFramebuffers(1, &r.fbo)
	gl.BindFramebuffer(gl.FRAMEBUFFER, r.fbo)
	gl.FramebufferTexture2D(gl.FRAMEBUFFER, gl.COLOR_ATTACHMENT0, gl.TEXTURE_2D, r.colorTex, 0)
	gl.FramebufferTexture2D(gl.FRAMEBUFFER, gl.COLOR_ATTACHMENT1, gl.TEXTURE_2D, r.uvTex, 0)
	gl.FramebufferTexture2D(gl.FRAMEBUFFER, gl.DEPTH_ATTACHMENT, gl.TEXTURE_2D, r.depthTex, 0)
	drawBufs := []uint32{gl.COLOR_ATTACHMENT0, gl.COLOR_ATTACHMENT1}
	gl.DrawBuffers(int32(len(drawBufs)), &drawBufs[0])
	status := gl.CheckFramebufferStatus(gl.FRAMEBUFFER)
	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
	if status != gl.FRAMEBUFFER_COMPLETE {
		return fmt.Errorf("scene framebuffer incomplete: 0x%x", status)
	}
	return nil
}

func (r *SceneRenderer) freeTargets() {
	if r.fbo != 0 {
		gl.DeleteFramebuffers(1, &r.fbo)
		r.fbo = 0
	}
	DeleteTexture(&r.colorTex)
	DeleteTexture(&r.uvTex)
	DeleteTexture(&r.depthTex)
}

// Resize follows the window framebuffer.
func (r *SceneRenderer) Resize(w, h int) error {
	if w == r.w && h == r.h {
		return nil
	}
	r.freeTargets()
	if err := r.allocTargets(w, h); err != nil {
		return err
	}
	return r.Post.Resize(w, h)
}

// SetSkybox uploads new faces and schedules an environment re-bake.
func (r *SceneRenderer) SetSkybox(faces [6]*texture.Image) error {
	return r.Skybox.SetFaces(faces, &r.EnvCache)
}

// Render draws one frame: mesh → skybox → post chain → screen.
func (r *SceneRenderer) Render(store *pipeline.Store, mesh *scene.Mesh, cam *scene.OrbitCamera) error {
	if r.Baker.Bake(r.Skybox.Cubemap, &r.EnvCache) {
		r.log.Debug("environment maps baked")
	}
	s := r.Settings
	r.Post.Settings = s.Post

	gl.BindFramebuffer(gl.FRAMEBUFFER, r.fbo)
	gl.Viewport(0, 0, int32(r.w), int32(r.h))
	gl.Enable(gl.DEPTH_TEST)
	gl.DepthFunc(gl.LESS)
	gl.Disable(gl.CULL_FACE)
	gl.ClearColor(0.12, 0.12, 0.14, 1)
	gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)

	view := cam.GetViewMatrix()
	proj := cam.GetProjectionMatrix()
	if gpu := r.ensureUploaded(mesh); gpu != nil {
		if err := r.drawMesh(gpu, store, cam, view, proj); err != nil {
			return err
		}
	}
	r.Skybox.Draw(view, proj)

	return r.Post.Run(Frame{
		Color: r.colorTex, Depth: r.depthTex,
		Near: cam.NearPlane, Far: cam.FarPlane,
		ScreenW: r.w, ScreenH: r.h,
	})
}

func (r *SceneRenderer) drawMesh(gpu *GPUMesh, store *pipeline.Store, cam *scene.OrbitCamera, view, proj mgl32.Mat4) error {
	s := r.Settings
	model := mgl32.Ident4()
	mvp := proj.Mul4(view).Mul4(model)

	r.prog.use()
	gl.UniformMatrix4fv(r.prog.loc("u_mvp"), 1, false, &mvp[0])
	gl.UniformMatrix4fv(r.prog.loc("u_model"), 1, false, &model[0])
	if err := r.prog.setUniforms(pipeline.Uniforms{
		"depthScale":   s.DepthScale,
		"uvScale":      s.UVScale,
		"uvOffset":     [2]float32(s.UVOffset),
		"shading":      int32(s.Shading),
		"envIntensity": s.EnvIntensity,
	}); err != nil {
		return err
	}
	gl.Uniform3f(r.prog.loc("u_cameraPos"), cam.Position.X(), cam.Position.Y(), cam.Position.Z())
	gl.Uniform3f(r.prog.loc("u_lightColor"), s.LightColor.R, s.LightColor.G, s.LightColor.B)
	gl.Uniform3f(r.prog.loc("u_lightDir"), s.LightDir.X(), s.LightDir.Y(), s.LightDir.Z())

	for i, ch := range previewChannels {
		surf, ok := store.Output(ch).(*Surface)
		if !ok {
			return fmt.Errorf("channel %s: %w", ch, errForeignSurface)
		}
		gl.ActiveTexture(gl.TEXTURE0 + uint32(i))
		gl.BindTexture(gl.TEXTURE_2D, surf.Tex)
	}
	var hasEnv int32
	if r.Skybox.Cubemap != 0 && !r.EnvCache.Stale() {
		hasEnv = 1
	}
	gl.Uniform1i(r.prog.loc("u_hasEnv"), hasEnv)
	gl.ActiveTexture(gl.TEXTURE0 + unitIrradiance)
	gl.BindTexture(gl.TEXTURE_CUBE_MAP, r.Baker.Irradiance)
	gl.ActiveTexture(gl.TEXTURE0 + unitPrefilter)
	gl.BindTexture(gl.TEXTURE_CUBE_MAP, r.Baker.Prefilter)

	gl.BindVertexArray(gpu.VAO)
	gl.DrawElements(gl.TRIANGLES, gpu.IndexCount, gl.UNSIGNED_INT, nil)
	gl.BindVertexArray(0)

	for i := 0; i <= unitPrefilter; i++ {
		gl.ActiveTexture(gl.TEXTURE0 + uint32(i))
		gl.BindTexture(gl.TEXTURE_2D, 0)
		gl.BindTexture(gl.TEXTURE_CUBE_MAP, 0)
	}
	gl.ActiveTexture(gl.TEXTURE0)
	return nil
}

// ── Picking ───────────────────────────────────────────────────────────────────

// PickUV reads the UV attachment under a cursor position (origin top-left).
// ok is false over the background.
func (r *SceneRenderer) PickUV(x, y int) (uv [2]float32, ok bool) {
	if x < 0 || y < 0 || x >= r.w || y >= r.h {
		return uv, false
	}
	var px [4]float32
	gl.BindFramebuffer(gl.READ_FRAMEBUFFER, r.fbo)
	gl.ReadBuffer(gl.COLOR_ATTACHMENT1)
	gl.ReadPixels(int32(x), int32(r.h-1-y), 1, 1, gl.RGBA, gl.FLOAT, unsafe.Pointer(&px[0]))
	gl.ReadBuffer(gl.COLOR_ATTACHMENT0)
	gl.BindFramebuffer(gl.READ_FRAMEBUFFER, 0)
	if px[3] == 0 {
		return uv, false
	}
	return [2]float32{px[0], px[1]}, true
}

// PickColor returns the diffuse output texel under the cursor.
func (r *SceneRenderer) PickColor(store *pipeline.Store, x, y int) ([4]float32, bool) {
	uv, ok := r.PickUV(x, y)
	if !ok {
		return [4]float32{}, false
	}
	surf, ok := store.Output(texture.Diffuse).(*Surface)
	if !ok {
		return [4]float32{}, false
	}
	tx, ty := texelAt(uv, surf.w, surf.h)
	var px [4]float32
	gl.BindFramebuffer(gl.READ_FRAMEBUFFER, surf.fbo)
	gl.ReadPixels(int32(tx), int32(ty), 1, 1, gl.RGBA, gl.FLOAT, unsafe.Pointer(&px[0]))
	gl.BindFramebuffer(gl.READ_FRAMEBUFFER, 0)
	return px, true
}

// texelAt maps a UV in [0,1) to the texel containing it.
func texelAt(uv [2]float32, w, h int) (int, int) {
	tx := min(max(int(uv[0]*float32(w)), 0), w-1)
	ty := min(max(int(uv[1]*float32(h)), 0), h-1)
	return tx, ty
}

// ── Resource management ───────────────────────────────────────────────────────

// ensureUploaded uploads vertex/index data if not already done.
func (r *SceneRenderer) ensureUploaded(mesh *scene.Mesh) *GPUMesh {
	if mesh == nil || len(mesh.Vertices) == 0 || len(mesh.Indices) == 0 {
		return nil
	}
	if gpu, ok := r.gpuMeshes[mesh]; ok {
		return gpu
	}

	stride := int32(unsafe.Sizeof(core.Vertex{}))
	gpu := &GPUMesh{IndexCount: int32(len(mesh.Indices))}

	gl.GenVertexArrays(1, &gpu.VAO)
	gl.GenBuffers(1, &gpu.VBO)
	gl.BindVertexArray(gpu.VAO)

	gl.BindBuffer(gl.ARRAY_BUFFER, gpu.VBO)
	gl.BufferData(gl.ARRAY_BUFFER, len(mesh.Vertices)*int(stride), gl.Ptr(mesh.Vertices), gl.STATIC_DRAW)

	var v core.Vertex
	attrs := []struct {
		size int32
		off  uintptr
	}{
		{3, unsafe.Offsetof(v.Position)},
		{3, unsafe.Offsetof(v.Normal)},
		{2, unsafe.Offsetof(v.UV)},
		{3, unsafe.Offsetof(v.Tangent)},
		{3, unsafe.Offsetof(v.Bitangent)},
	}
	for i, a := range attrs {
		gl.EnableVertexAttribArray(uint32(i))
		gl.VertexAttribPointer(uint32(i), a.size, gl.FLOAT, false, stride, gl.PtrOffset(int(a.off)))
	}

	gl.GenBuffers(1, &gpu.EBO)
	gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, gpu.EBO)
	gl.BufferData(gl.ELEMENT_ARRAY_BUFFER, len(mesh.Indices)*4, gl.Ptr(mesh.Indices), gl.STATIC_DRAW)

	gl.BindVertexArray(0)

	r.gpuMeshes[mesh] = gpu
	mesh.GPUData = gpu
	return gpu
}

// ReleaseMesh frees GPU buffers for the given mesh.
func (r *SceneRenderer) ReleaseMesh(mesh *scene.Mesh) {
	if gpu, ok := r.gpuMeshes[mesh]; ok {
		gl.DeleteVertexArrays(1, &gpu.VAO)
		gl.DeleteBuffers(1, &gpu.VBO)
		gl.DeleteBuffers(1, &gpu.EBO)
		delete(r.gpuMeshes, mesh)
		mesh.GPUData = nil
	}
}

// Destroy releases all GPU resources.
func (r *SceneRenderer) Destroy() {
	for mesh := range r.gpuMeshes {
		r.ReleaseMesh(mesh)
	}
	r.freeTargets()
	if r.Post != nil {
		r.Post.Destroy()
	}
	if r.Baker != nil {
		r.Baker.Destroy()
	}
	if r.Skybox != nil {
		r.Skybox.Destroy()
	}
	r.prog.destroy()
}
