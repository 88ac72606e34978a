package opengl

import (
	"fmt"

	gl "github.com/go-gl/gl/v4.1-core/gl"
	"github.com/go-gl/mathgl/mgl32"

	"bumpforge/scene"
	"bumpforge/texture"
)

// Skybox renders a cube-map environment on an inverted unit cube.
// The cube vertex shader uses the xyww trick (gl_Position.z = gl_Position.w)
// so every fragment lands at NDC depth 1.0, always behind the mesh.
type Skybox struct {
	vao  uint32
	vbo  uint32
	prog *program

	// Cubemap is the environment texture; 0 until SetFaces succeeds.
	Cubemap uint32
	// Exposure scales the sky before post-processing.
	Exposure float32
}

// ── Shaders ───────────────────────────────────────────────────────────────────

// cubeVertSrc transforms cube vertices with a view matrix that has its
// translation stripped, then forces depth = 1.0 via the xyww trick.
const cubeVertSrc = `
#version 410 core
layout(location = 0) in vec3 inPosition;

uniform mat4 u_skyVP;

out vec3 fragDir;

void main() {
    fragDir = inPosition;
    vec4 pos = u_skyVP * vec4(inPosition, 1.0);
    gl_Position = pos.xyww;
}
` + "\x00"

const skyFragSrc = `
#version 410 core
in vec3 fragDir;
out vec4 outColor;

uniform samplerCube u_env;
uniform float u_exposure;

void main() {
    outColor = vec4(texture(u_env, normalize(fragDir)).rgb * u_exposure, 1.0);
}
` + "\x00"

// irradianceFragSrc integrates the cosine-weighted hemisphere around N.
const irradianceFragSrc = `
#version 410 core
in vec3 fragDir;
out vec4 outColor;

uniform samplerCube u_env;

const float PI = 3.14159265359;

void main() {
    vec3 N = normalize(fragDir);
    vec3 up = abs(N.y) < 0.999 ? vec3(0.0, 1.0, 0.0) : vec3(1.0, 0.0, 0.0);
    vec3 right = normalize(cross(up, N));
    up = cross(N, right);

    vec3 irradiance = vec3(0.0);
    float samples = 0.0;
    const float delta = 0.05;
    for (float phi = 0.0; phi < 2.0 * PI; phi += delta) {
        for (float theta = 0.0; theta < 0.5 * PI; theta += delta) {
            vec3 t = vec3(sin(theta) * cos(phi), sin(theta) * sin(phi), cos(theta));
            vec3 dir = t.x * right + t.y * up + t.z * N;
            irradiance += textureLod(u_env, dir, 2.0).rgb * cos(theta) * sin(theta);
            samples += 1.0;
        }
    }
    outColor = vec4(PI * irradiance / samples, 1.0);
}
` + "\x00"

// prefilterFragSrc importance-samples the GGX lobe for one roughness level.
const prefilterFragSrc = `
#version 410 core
in vec3 fragDir;
out vec4 outColor;

uniform samplerCube u_env;
uniform float u_roughness;

const float PI = 3.14159265359;
const uint SAMPLES = 128u;

float radicalInverse(uint bits) {
    bits = (bits << 16u) | (bits >> 16u);
    bits = ((bits & 0x55555555u) << 1u) | ((bits & 0xAAAAAAAAu) >> 1u);
    bits = ((bits & 0x33333333u) << 2u) | ((bits & 0xCCCCCCCCu) >> 2u);
    bits = ((bits & 0x0F0F0F0Fu) << 4u) | ((bits & 0xF0F0F0F0u) >> 4u);
    bits = ((bits & 0x00FF00FFu) << 8u) | ((bits & 0xFF00FF00u) >> 8u);
    return float(bits) * 2.3283064365386963e-10;
}

vec3 importanceGGX(vec2 xi, vec3 N, float roughness) {
    float a = roughness * roughness;
    float phi = 2.0 * PI * xi.x;
    float cosTheta = sqrt((1.0 - xi.y) / (1.0 + (a * a - 1.0) * xi.y));
    float sinTheta = sqrt(1.0 - cosTheta * cosTheta);
    vec3 H = vec3(cos(phi) * sinTheta, sin(phi) * sinTheta, cosTheta);
    vec3 up = abs(N.z) < 0.999 ? vec3(0.0, 0.0, 1.0) : vec3(1.0, 0.0, 0.0);
    vec3 tx = normalize(cross(up, N));
    vec3 ty = cross(N, tx);
    return normalize(tx * H.x + ty * H.y + N * H.z);
}

void main() {
    vec3 N = normalize(fragDir);
    vec3 color = vec3(0.0);
    float weight = 0.0;
    for (uint i = 0u; i < SAMPLES; i++) {
        vec2 xi = vec2(float(i) / float(SAMPLES), radicalInverse(i));
        vec3 H = importanceGGX(xi, N, u_roughness);
        vec3 L = normalize(2.0 * dot(N, H) * H - N);
        float NdL = dot(N, L);
        if (NdL > 0.0) {
            color += textureLod(u_env, L, u_roughness * 4.0).rgb * NdL;
            weight += NdL;
        }
    }
    outColor = vec4(color / max(weight, 1e-4), 1.0);
}
` + "\x00"

// ── Cube geometry ─────────────────────────────────────────────────────────────

// 36 positions (xyz) for a unit cube, CCW winding from the outside.
// Face culling is disabled during draw so we see the inside faces.
var skyboxVerts = []float32{
	// -Z face
	-1, -1, -1, 1, 1, -1, 1, -1, -1,
	1, 1, -1, -1, -1, -1, -1, 1, -1,
	// +Z face
	-1, -1, 1, 1, -1, 1, 1, 1, 1,
	1, 1, 1, -1, 1, 1, -1, -1, 1,
	// -X face
	-1, 1, 1, -1, 1, -1, -1, -1, -1,
	-1, -1, -1, -1, -1, 1, -1, 1, 1,
	// +X face
	1, 1, 1, 1, -1, -1, 1, 1, -1,
	1, -1, -1, 1, 1, 1, 1, -1, 1,
	// -Y face
	-1, -1, -1, 1, -1, -1, 1, -1, 1,
	1, -1, 1, -1, -1, 1, -1, -1, -1,
	// +Y face
	-1, 1, -1, 1, 1, 1, 1, 1, -1,
	1, 1, 1, -1, 1, -1, -1, 1, 1,
}

func newCubeVAO() (vao, vbo uint32) {
	gl.GenVertexArrays(1, &vao)
	gl.GenBuffers(1, &vbo)
	gl.BindVertexArray(vao)
	gl.BindBuffer(gl.ARRAY_BUFFER, vbo)
	gl.BufferData(gl.ARRAY_BUFFER, len(skyboxVerts)*4, gl.Ptr(skyboxVerts), gl.STATIC_DRAW)
	gl.EnableVertexAttribArray(0)
	gl.VertexAttribPointer(0, 3, gl.FLOAT, false, 12, gl.PtrOffset(0))
	gl.BindVertexArray(0)
	return vao, vbo
}

// ── Skybox ────────────────────────────────────────────────────────────────────

func NewSkybox() (*Skybox, error) {
	prog, err := newCachedProgram(cubeVertSrc, skyFragSrc)
	if err != nil {
		return nil, fmt.Errorf("skybox shader: %w", err)
	}
	sb := &Skybox{prog: prog, Exposure: 1}
	sb.vao, sb.vbo = newCubeVAO()
	return sb, nil
}

// SetFaces replaces the environment and invalidates cache so the baked maps
// are rebuilt on the next frame.
func (sb *Skybox) SetFaces(faces [6]*texture.Image, cache *scene.EnvCache) error {
	id, err := UploadCubemap(faces)
	if err != nil {
		return fmt.Errorf("skybox: %w", err)
	}
	DeleteTexture(&sb.Cubemap)
	sb.Cubemap = id
	cache.Invalidate()
	return nil
}

// Draw renders the sky. view keeps its rotation only.
func (sb *Skybox) Draw(view, proj mgl32.Mat4) {
	if sb.Cubemap == 0 {
		return
	}
	skyVP := proj.Mul4(view.Mat3().Mat4())

	// Depth LEQUAL so depth=1.0 fragments pass against the cleared depth value (1.0).
	gl.DepthFunc(gl.LEQUAL)
	gl.DepthMask(false)

	sb.prog.use()
	gl.UniformMatrix4fv(sb.prog.loc("u_skyVP"), 1, false, &skyVP[0])
	gl.Uniform1f(sb.prog.loc("u_exposure"), sb.Exposure)
	gl.ActiveTexture(gl.TEXTURE0)
	gl.BindTexture(gl.TEXTURE_CUBE_MAP, sb.Cubemap)
	gl.Uniform1i(sb.prog.loc("u_env"), 0)

	gl.BindVertexArray(sb.vao)
	gl.DrawArrays(gl.TRIANGLES, 0, 36)
	gl.BindVertexArray(0)
	gl.BindTexture(gl.TEXTURE_CUBE_MAP, 0)

	gl.DepthMask(true)
	gl.DepthFunc(gl.LESS)
}

// Destroy frees all GPU resources owned by this skybox.
func (sb *Skybox) Destroy() {
	gl.DeleteVertexArrays(1, &sb.vao)
	gl.DeleteBuffers(1, &sb.vbo)
	DeleteTexture(&sb.Cubemap)
	sb.prog.destroy()
}

// ── Environment baking ───────────────────────────────────────────────────────

const (
	irradianceSize = 32
	prefilterSize  = 128
	prefilterMips  = 5
)

// captureProjection and captureViews look at each cube face from the origin
// in GL_TEXTURE_CUBE_MAP_POSITIVE_X order.
var captureProjection = mgl32.Perspective(mgl32.DegToRad(90), 1, 0.1, 10)

func captureViews() [6]mgl32.Mat4 {
	eye := mgl32.Vec3{}
	return [6]mgl32.Mat4{
		mgl32.LookAtV(eye, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, -1, 0}),
		mgl32.LookAtV(eye, mgl32.Vec3{-1, 0, 0}, mgl32.Vec3{0, -1, 0}),
		mgl32.LookAtV(eye, mgl32.Vec3{0, 1, 0}, mgl32.Vec3{0, 0, 1}),
		mgl32.LookAtV(eye, mgl32.Vec3{0, -1, 0}, mgl32.Vec3{0, 0, -1}),
		mgl32.LookAtV(eye, mgl32.Vec3{0, 0, 1}, mgl32.Vec3{0, -1, 0}),
		mgl32.LookAtV(eye, mgl32.Vec3{0, 0, -1}, mgl32.Vec3{0, -1, 0}),
	}
}

// prefilterRoughness is the GGX roughness baked into one mip level.
func prefilterRoughness(mip int) float32 {
	return float32(mip) / float32(prefilterMips-1)
}

// EnvironmentBaker renders irradiance and prefiltered specular cube maps
// from the skybox.
type EnvironmentBaker struct {
	vao, vbo   uint32
	fbo        uint32
	irrProg    *program
	filterProg *program

	Irradiance uint32
	Prefilter  uint32
}

func NewEnvironmentBaker() (*EnvironmentBaker, error) {
	irr, err := newCachedProgram(cubeVertSrc, irradianceFragSrc)
	if err != nil {
		return nil, fmt.Errorf("irradiance shader: %w", err)
	}
	pf, err := newCachedProgram(cubeVertSrc, prefilterFragSrc)
	if err != nil {
		irr.destroy()
		return nil, fmt.Errorf("prefilter shader: %w", err)
	}
	b := &EnvironmentBaker{irrProg: irr, filterProg: pf}
	b.vao, b.vbo = newCubeVAO()
	gl.GenFramebuffers(1, &b.fbo)
	b.Irradiance = allocCubemap(irradianceSize, false)
	b.Prefilter = allocCubemap(prefilterSize, true)
	return b, nil
}

// Bake rebuilds both maps from env when cache reports the skybox changed.
// It reports whether any work was done.
func (b *EnvironmentBaker) Bake(env uint32, cache *scene.EnvCache) bool {
	if env == 0 || !cache.Stale() {
		return false
	}

	var prevFBO int32
	var prevViewport [4]int32
	gl.GetIntegerv(gl.FRAMEBUFFER_BINDING, &prevFBO)
	gl.GetIntegerv(gl.VIEWPORT, &prevViewport[0])

	gl.Disable(gl.DEPTH_TEST)
	gl.Disable(gl.CULL_FACE)
	gl.BindFramebuffer(gl.FRAMEBUFFER, b.fbo)
	gl.ActiveTexture(gl.TEXTURE0)
	gl.BindTexture(gl.TEXTURE_CUBE_MAP, env)

	b.renderFaces(b.irrProg, b.Irradiance, 0, irradianceSize, nil)
	for mip := 0; mip < prefilterMips; mip++ {
		size := max(prefilterSize>>mip, 1)
		r := prefilterRoughness(mip)
		b.renderFaces(b.filterProg, b.Prefilter, mip, size, func(p *program) {
			gl.Uniform1f(p.loc("u_roughness"), r)
		})
	}

	gl.BindTexture(gl.TEXTURE_CUBE_MAP, 0)
	gl.BindFramebuffer(gl.FRAMEBUFFER, uint32(prevFBO))
	gl.Viewport(prevViewport[0], prevViewport[1], prevViewport[2], prevViewport[3])
	gl.Enable(gl.DEPTH_TEST)

	cache.MarkBaked()
	return true
}

func (b *EnvironmentBaker) renderFaces(p *program, dst uint32, mip, size int, setup func(*program)) {
	p.use()
	gl.Uniform1i(p.loc("u_env"), 0)
	if setup != nil {
		setup(p)
	}
	gl.Viewport(0, 0, int32(size), int32(size))
	gl.BindVertexArray(b.vao)
	for face, view := range captureViews() {
		vp := captureProjection.Mul4(view)
		gl.UniformMatrix4fv(p.loc("u_skyVP"), 1, false, &vp[0])
		gl.FramebufferTexture2D(gl.FRAMEBUFFER, gl.COLOR_ATTACHMENT0,
			gl.TEXTURE_CUBE_MAP_POSITIVE_X+uint32(face), dst, int32(mip))
		gl.Clear(gl.COLOR_BUFFER_BIT)
		gl.DrawArrays(gl.TRIANGLES, 0, 36)
	}
	gl.BindVertexArray(0)
}

func (b *EnvironmentBaker) Destroy() {
	gl.DeleteVertexArrays(1, &b.vao)
	gl.DeleteBuffers(1, &b.vbo)
	gl.DeleteFramebuffers(1, &b.fbo)
	DeleteTexture(&b.Irradiance)
	DeleteTexture(&b.Prefilter)
	b.irrProg.destroy()
	b.filterProg.destroy()
}
