package pipeline

// ShadowGuard suppresses display while passes render into channel
// surfaces. Release restores the render target that was bound when the
// guard was taken. Guards nest; display resumes when the last one is
// released.
type ShadowGuard struct {
	e        *Engine
	prev     Surface
	released bool
}

// ShadowRender takes a guard; callers release it with defer.
func (e *Engine) ShadowRender() *ShadowGuard {
	e.shadow++
	return &ShadowGuard{e: e, prev: e.dev.Target()}
}

// Release is idempotent.
func (g *ShadowGuard) Release() {
	if g.released {
		return
	}
	g.released = true
	g.e.shadow--
	g.e.dev.SetTarget(g.prev)
}

// Shadowed reports whether a shadow render is in progress.
func (e *Engine) Shadowed() bool { return e.shadow > 0 }
