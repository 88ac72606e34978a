package opengl

import (
	"fmt"
	"strings"

	gl "github.com/go-gl/gl/v4.1-core/gl"
	"go.uber.org/zap"

	"bumpforge/pipeline"
)

// Init loads GL entry points. Must be called after the GLFW window context
// is made current.
func Init(log *zap.Logger) error {
	if err := gl.Init(); err != nil {
		return fmt.Errorf("failed to initialize OpenGL: %w", err)
	}
	log.Info("opengl ready",
		zap.String("version", gl.GoStr(gl.GetString(gl.VERSION))),
		zap.String("renderer", gl.GoStr(gl.GetString(gl.RENDERER))))
	return nil
}

// ── Shader helpers ────────────────────────────────────────────────────────────

func newProgram(vertSrc, fragSrc string) (uint32, error) {
	vert, err := compileShader(vertSrc, gl.VERTEX_SHADER)
	if err != nil {
		return 0, fmt.Errorf("vertex: %w", err)
	}
	frag, err := compileShader(fragSrc, gl.FRAGMENT_SHADER)
	if err != nil {
		gl.DeleteShader(vert)
		return 0, fmt.Errorf("fragment: %w", err)
	}

	prog := gl.CreateProgram()
	gl.AttachShader(prog, vert)
	gl.AttachShader(prog, frag)
	gl.LinkProgram(prog)
	gl.DeleteShader(vert)
	gl.DeleteShader(frag)

	var status int32
	gl.GetProgramiv(prog, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var logLen int32
		gl.GetProgramiv(prog, gl.INFO_LOG_LENGTH, &logLen)
		log := strings.Repeat("\x00", int(logLen+1))
		gl.GetProgramInfoLog(prog, logLen, nil, gl.Str(log))
		gl.DeleteProgram(prog)
		return 0, fmt.Errorf("link failed: %v", log)
	}
	return prog, nil
}

func compileShader(src string, shaderType uint32) (uint32, error) {
	shader := gl.CreateShader(shaderType)
	csrc, free := gl.Strs(src)
	gl.ShaderSource(shader, 1, csrc, nil)
	free()
	gl.CompileShader(shader)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var logLen int32
		gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &logLen)
		log := strings.Repeat("\x00", int(logLen+1))
		gl.GetShaderInfoLog(shader, logLen, nil, gl.Str(log))
		gl.DeleteShader(shader)
		return 0, fmt.Errorf("compile failed: %v", log)
	}
	return shader, nil
}

// ── Uniforms ──────────────────────────────────────────────────────────────────

// uniformPrefix keeps pass parameter names clear of GLSL built-ins (min, max).
const uniformPrefix = "u_"

// maxUniformArray bounds the array uniforms declared by the pass shaders.
const maxUniformArray = 64

func uniformName(name string) string { return uniformPrefix + name }

// program wraps a linked program with a lazily filled location cache.
type program struct {
	id   uint32
	locs map[string]int32
}

func newCachedProgram(vertSrc, fragSrc string) (*program, error) {
	id, err := newProgram(vertSrc, fragSrc)
	if err != nil {
		return nil, err
	}
	return &program{id: id, locs: map[string]int32{}}, nil
}

func (p *program) loc(name string) int32 {
	if l, ok := p.locs[name]; ok {
		return l
	}
	l := gl.GetUniformLocation(p.id, gl.Str(name+"\x00"))
	p.locs[name] = l
	return l
}

func (p *program) use() { gl.UseProgram(p.id) }

func (p *program) destroy() {
	if p.id != 0 {
		gl.DeleteProgram(p.id)
		p.id = 0
	}
}

// setUniforms uploads pass parameters. Names the shader does not declare
// resolve to location -1 and are ignored by GL.
func (p *program) setUniforms(u pipeline.Uniforms) error {
	for name, v := range u {
		l := p.loc(uniformName(name))
		switch v := v.(type) {
		case float32:
			gl.Uniform1f(l, v)
		case int32:
			gl.Uniform1i(l, v)
		case [2]float32:
			gl.Uniform2f(l, v[0], v[1])
		case [4]float32:
			gl.Uniform4f(l, v[0], v[1], v[2], v[3])
		case []float32:
			if n := min(len(v), maxUniformArray); n > 0 {
				gl.Uniform1fv(l, int32(n), &v[0])
			}
		case [][4]float32:
			if n := min(len(v), maxUniformArray); n > 0 {
				gl.Uniform4fv(l, int32(n), &v[0][0])
			}
		default:
			return fmt.Errorf("uniform %q: unsupported type %T", name, v)
		}
	}
	return nil
}
