package scene

// EnvCache tracks whether the baked environment maps match the current
// skybox. The renderer bakes only when Stale reports true.
type EnvCache struct {
	version uint64 // bumped on every skybox change
	baked   uint64
	valid   bool
}

// Invalidate records a skybox change.
func (c *EnvCache) Invalidate() { c.version++ }

func (c *EnvCache) Stale() bool { return !c.valid || c.baked != c.version }

// MarkBaked records that the maps were rebuilt for the current skybox.
func (c *EnvCache) MarkBaked() {
	c.baked = c.version
	c.valid = true
}
