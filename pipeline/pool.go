package pipeline

// surfacePool recycles scratch surfaces by size.
type surfacePool struct {
	dev  Device
	free map[[2]int][]Surface
}

func newSurfacePool(dev Device) *surfacePool {
	return &surfacePool{dev: dev, free: make(map[[2]int][]Surface)}
}

func (p *surfacePool) get(w, h int) (Surface, error) {
	k := [2]int{w, h}
	if l := p.free[k]; len(l) > 0 {
		s := l[len(l)-1]
		p.free[k] = l[:len(l)-1]
		return s, nil
	}
	return p.dev.NewSurface(w, h)
}

func (p *surfacePool) put(ss ...Surface) {
	for _, s := range ss {
		if s == nil {
			continue
		}
		w, h := s.Size()
		k := [2]int{w, h}
		p.free[k] = append(p.free[k], s)
	}
}

func (p *surfacePool) drain() {
	for k, l := range p.free {
		for _, s := range l {
			p.dev.Release(s)
		}
		delete(p.free, k)
	}
}
