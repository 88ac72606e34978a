package main

import (
	"errors"

	"go.uber.org/zap"

	"bumpforge/core"
	"bumpforge/internal/opengl"
	"bumpforge/internal/software"
	"bumpforge/pipeline"
)

// headless owns the device used by batch and convert.
type headless struct {
	dev     pipeline.Device
	store   *pipeline.Store
	engine  *pipeline.Engine
	cleanup []func()
}

// openHeadless creates a hidden GL context, or the CPU device when forced
// or when no display is available. An OpenGL version below the configured
// minimum is fatal.
func openHeadless(forceSoftware bool) (*headless, error) {
	h := &headless{}
	if forceSoftware {
		h.dev = software.New()
		logger.Info("using software device")
	} else if err := h.openGL(); err != nil {
		if errors.Is(err, core.ErrGLVersion) {
			return nil, err
		}
		logger.Warn("no OpenGL context, using software device", zap.Error(err))
		h.dev = software.New()
	}

	store, err := pipeline.NewStore(h.dev, 256, 256)
	if err != nil {
		h.Close()
		return nil, err
	}
	h.store = store
	h.cleanup = append(h.cleanup, store.Destroy)

	state := pipeline.DefaultState()
	if err := cfg.Apply(state); err != nil {
		h.Close()
		return nil, err
	}
	h.engine = pipeline.NewEngine(store, state, pipeline.WithLogger(logger))
	h.cleanup = append(h.cleanup, h.engine.Release)
	return h, nil
}

func (h *headless) openGL() error {
	wc := cfg.WindowConfig()
	wc.Hidden = true
	wc.Width, wc.Height = 64, 64
	win, err := core.NewWindow(wc)
	if err != nil {
		return err
	}
	if err := opengl.Init(logger); err != nil {
		win.Destroy()
		return err
	}
	dev, err := opengl.NewDevice(logger)
	if err != nil {
		win.Destroy()
		return err
	}
	h.dev = dev
	h.cleanup = append(h.cleanup, win.Destroy, dev.Destroy)
	return nil
}

// Close releases in reverse order of acquisition.
func (h *headless) Close() {
	for i := len(h.cleanup) - 1; i >= 0; i-- {
		h.cleanup[i]()
	}
	h.cleanup = nil
}
