package core

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/go-gl/glfw/v3.3/glfw"
)

func init() {
	runtime.LockOSThread()
}

// ErrGLVersion is returned when the driver cannot provide the requested
// OpenGL core profile.
var ErrGLVersion = errors.New("unsupported OpenGL version")

type Window struct {
	Handle *glfw.Window
	Width  int
	Height int
	Title  string
}

type WindowConfig struct {
	Width     int
	Height    int
	Title     string
	Resizable bool
	VSync     bool
	// Hidden creates an invisible window whose context is used for
	// off-screen work such as batch conversion.
	Hidden  bool
	GLMajor int
	GLMinor int
}

func DefaultWindowConfig() WindowConfig {
	return WindowConfig{
		Width:     1280,
		Height:    720,
		Title:     "bumpforge",
		Resizable: true,
		VSync:     true,
		GLMajor:   4,
		GLMinor:   1,
	}
}

// NewWindow creates a window with a current OpenGL core context.
func NewWindow(config WindowConfig) (*Window, error) {
	if err := glfw.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize GLFW: %w", err)
	}

	glfw.WindowHint(glfw.ContextVersionMajor, config.GLMajor)
	glfw.WindowHint(glfw.ContextVersionMinor, config.GLMinor)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)
	glfw.WindowHint(glfw.Resizable, boolToInt(config.Resizable))
	glfw.WindowHint(glfw.Visible, boolToInt(!config.Hidden))

	handle, err := glfw.CreateWindow(config.Width, config.Height, config.Title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, fmt.Errorf("%w: %d.%d core: %v", ErrGLVersion, config.GLMajor, config.GLMinor, err)
	}
	handle.MakeContextCurrent()

	major := handle.GetAttrib(glfw.ContextVersionMajor)
	minor := handle.GetAttrib(glfw.ContextVersionMinor)
	if err := CheckVersion(major, minor, config.GLMajor, config.GLMinor); err != nil {
		handle.Destroy()
		glfw.Terminate()
		return nil, err
	}
	if config.VSync {
		glfw.SwapInterval(1)
	} else {
		glfw.SwapInterval(0)
	}

	window := &Window{
		Handle: handle,
		Width:  config.Width,
		Height: config.Height,
		Title:  config.Title,
	}

	handle.SetSizeCallback(func(w *glfw.Window, width, height int) {
		window.Width = width
		window.Height = height
	})

	return window, nil
}

// CheckVersion compares a context version against the minimum required.
func CheckVersion(major, minor, wantMajor, wantMinor int) error {
	if major > wantMajor || (major == wantMajor && minor >= wantMinor) {
		return nil
	}
	return fmt.Errorf("%w: got %d.%d, need %d.%d", ErrGLVersion, major, minor, wantMajor, wantMinor)
}

func (w *Window) ShouldClose() bool {
	return w.Handle.ShouldClose()
}

func (w *Window) SetShouldClose(v bool) {
	w.Handle.SetShouldClose(v)
}

func (w *Window) PollEvents() {
	glfw.PollEvents()
}

func (w *Window) SwapBuffers() {
	w.Handle.SwapBuffers()
}

func (w *Window) GetFramebufferSize() (int, int) {
	return w.Handle.GetFramebufferSize()
}

func (w *Window) Destroy() {
	w.Handle.Destroy()
	glfw.Terminate()
}

func (w *Window) IsKeyPressed(key int) bool {
	return w.Handle.GetKey(glfw.Key(key)) == glfw.Press
}

func (w *Window) SetTitle(title string) {
	w.Handle.SetTitle(title)
	w.Title = title
}

func (w *Window) IsMouseButtonPressed(button int) bool {
	return w.Handle.GetMouseButton(glfw.MouseButton(button)) == glfw.Press
}

func (w *Window) GetCursorPos() (float64, float64) {
	return w.Handle.GetCursorPos()
}

// ScrollCallback is the type for scroll event handlers
type ScrollCallback func(xoff, yoff float64)

func (w *Window) SetScrollCallback(cb ScrollCallback) {
	w.Handle.SetScrollCallback(func(win *glfw.Window, xoff, yoff float64) {
		cb(xoff, yoff)
	})
}

// KeyCallback receives key presses only.
type KeyCallback func(key int)

func (w *Window) SetKeyCallback(cb KeyCallback) {
	w.Handle.SetKeyCallback(func(win *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
		if action == glfw.Press {
			cb(int(key))
		}
	})
}

// DropCallback receives the paths of files dropped on the window.
type DropCallback func(paths []string)

func (w *Window) SetDropCallback(cb DropCallback) {
	w.Handle.SetDropCallback(func(win *glfw.Window, names []string) {
		cb(names)
	})
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

const (
	MouseButtonLeft  = int(glfw.MouseButtonLeft)
	MouseButtonRight = int(glfw.MouseButtonRight)
)

const (
	KeySpace = int(glfw.KeySpace)
	Key1     = int(glfw.Key1)
	Key2     = int(glfw.Key2)
	Key3     = int(glfw.Key3)
	Key4     = int(glfw.Key4)
	Key5     = int(glfw.Key5)
	Key6     = int(glfw.Key6)
	Key7     = int(glfw.Key7)
	Key8     = int(glfw.Key8)
	Key9     = int(glfw.Key9)
	KeyA     = int(glfw.KeyA)
	KeyB     = int(glfw.KeyB)
	KeyD     = int(glfw.KeyD)
	KeyG     = int(glfw.KeyG)
	KeyH     = int(glfw.KeyH)
	KeyI     = int(glfw.KeyI)
	KeyK     = int(glfw.KeyK)
	KeyL     = int(glfw.KeyL)
	KeyM     = int(glfw.KeyM)
	KeyN     = int(glfw.KeyN)
	KeyO     = int(glfw.KeyO)
	KeyP     = int(glfw.KeyP)
	KeyR     = int(glfw.KeyR)
	KeyS     = int(glfw.KeyS)
	KeyT     = int(glfw.KeyT)
	KeyU     = int(glfw.KeyU)

	KeyLeftBracket  = int(glfw.KeyLeftBracket)
	KeyRightBracket = int(glfw.KeyRightBracket)

	KeyEscape = int(glfw.KeyEscape)
	KeyF1     = int(glfw.KeyF1)
	KeyF2     = int(glfw.KeyF2)
	KeyF3     = int(glfw.KeyF3)
	KeyF4     = int(glfw.KeyF4)
	KeyF5     = int(glfw.KeyF5)
)
