package software

import (
	"github.com/chewxy/math32"

	"bumpforge/pipeline"
	"bumpforge/texture"
)

type kernel func(dst *texture.Image, in []*texture.Image, u pipeline.Uniforms)

var kernels = map[pipeline.Pass]kernel{
	pipeline.PassCopy:             copyKernel,
	pipeline.PassFill:             fillKernel,
	pipeline.PassHeightToNormal:   heightToNormal,
	pipeline.PassNormalToGradient: normalToGradient,
	pipeline.PassDownsample:       downsample,
	pipeline.PassRelax:            relax,
	pipeline.PassLevels:           levels,
	pipeline.PassGaussian:         gaussian,
	pipeline.PassLuminanceHeight:  luminanceHeight,
	pipeline.PassGrayCurve:        grayCurve,
	pipeline.PassOcclusion:        occlusion,
	pipeline.PassGrungeBlend:      grungeBlend,
	pipeline.PassSeamlessSimple:   seamlessSimple,
	pipeline.PassSeamlessMirror:   seamlessMirror,
	pipeline.PassSeamlessRandom:   seamlessRandom,
	pipeline.PassContrast:         contrast,
	pipeline.PassMaterialMask:     materialMask,
	pipeline.PassRegionBlend:      regionBlend,
}

var arity = map[pipeline.Pass]int{
	pipeline.PassCopy:             1,
	pipeline.PassHeightToNormal:   1,
	pipeline.PassNormalToGradient: 1,
	pipeline.PassDownsample:       1,
	pipeline.PassRelax:            2,
	pipeline.PassLevels:           1,
	pipeline.PassGaussian:         1,
	pipeline.PassLuminanceHeight:  2,
	pipeline.PassGrayCurve:        1,
	pipeline.PassOcclusion:        2,
	pipeline.PassGrungeBlend:      2,
	pipeline.PassSeamlessSimple:   1,
	pipeline.PassSeamlessMirror:   1,
	pipeline.PassSeamlessRandom:   1,
	pipeline.PassContrast:         2,
	pipeline.PassMaterialMask:     1,
	pipeline.PassRegionBlend:      3,
}

// ── Helpers ──────────────────────────────────────────────────────────────────

func each(dst *texture.Image, fn func(x, y int, u, v float32) [4]float32) {
	w, h := float32(dst.Width), float32(dst.Height)
	for y := 0; y < dst.Height; y++ {
		for x := 0; x < dst.Width; x++ {
			dst.Set(x, y, fn(x, y, (float32(x)+0.5)/w, (float32(y)+0.5)/h))
		}
	}
}

// fetch reads src at the texel under dst(x,y) offset by (dx,dy) source
// texels. Same-sized images are read exactly.
func fetch(src, dst *texture.Image, x, y, dx, dy int) [4]float32 {
	if src.Width == dst.Width && src.Height == dst.Height {
		return src.AtWrap(x+dx, y+dy)
	}
	u := (float32(x)+0.5)/float32(dst.Width) + float32(dx)/float32(src.Width)
	v := (float32(y)+0.5)/float32(dst.Height) + float32(dy)/float32(src.Height)
	return src.Sample(u, v)
}

func fract(x float32) float32 { return x - math32.Floor(x) }

func clamp01(x float32) float32 {
	if x != x || x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

func smoothstep(e0, e1, x float32) float32 {
	if e1 <= e0 {
		if x < e0 {
			return 0
		}
		return 1
	}
	t := clamp01((x - e0) / (e1 - e0))
	return t * t * (3 - 2*t)
}

func luma(c [4]float32) float32 {
	return 0.299*c[0] + 0.587*c[1] + 0.114*c[2]
}

func gray(v float32) [4]float32 { return [4]float32{v, v, v, 1} }

func mix(a, b [4]float32, t float32) [4]float32 {
	var out [4]float32
	for i := range out {
		out[i] = a[i] + (b[i]-a[i])*t
	}
	return out
}

// ── Kernels ──────────────────────────────────────────────────────────────────

func copyKernel(dst *texture.Image, in []*texture.Image, _ pipeline.Uniforms) {
	src := in[0]
	each(dst, func(x, y int, _, _ float32) [4]float32 { return fetch(src, dst, x, y, 0, 0) })
}

func fillKernel(dst *texture.Image, _ []*texture.Image, u pipeline.Uniforms) {
	c := u.Vec4("color", [4]float32{0, 0, 0, 1})
	each(dst, func(int, int, float32, float32) [4]float32 { return c })
}

func heightToNormal(dst *texture.Image, in []*texture.Image, u pipeline.Uniforms) {
	src := in[0]
	s := u.Float("strength", 1)
	each(dst, func(x, y int, _, _ float32) [4]float32 {
		dx := (fetch(src, dst, x, y, 1, 0)[0] - fetch(src, dst, x, y, -1, 0)[0]) / 2
		dy := (fetch(src, dst, x, y, 0, 1)[0] - fetch(src, dst, x, y, 0, -1)[0]) / 2
		nx, ny, nz := -s*dx, -s*dy, float32(1)
		l := math32.Sqrt(nx*nx + ny*ny + nz*nz)
		return [4]float32{
			nx/l*0.5 + 0.5,
			ny/l*0.5 + 0.5,
			nz/l*0.5 + 0.5,
			fetch(src, dst, x, y, 0, 0)[0],
		}
	})
}

func normalToGradient(dst *texture.Image, in []*texture.Image, _ pipeline.Uniforms) {
	src := in[0]
	each(dst, func(x, y int, _, _ float32) [4]float32 {
		c := fetch(src, dst, x, y, 0, 0)
		nx, ny, nz := c[0]*2-1, c[1]*2-1, c[2]*2-1
		nz = max(nz, 0.05)
		return [4]float32{-nx / nz, -ny / nz, 0, 1}
	})
}

func downsample(dst *texture.Image, in []*texture.Image, _ pipeline.Uniforms) {
	src := in[0]
	for y := 0; y < dst.Height; y++ {
		for x := 0; x < dst.Width; x++ {
			sx := x * src.Width / dst.Width
			sy := y * src.Height / dst.Height
			a := src.AtWrap(sx, sy)
			b := src.AtWrap(sx+1, sy)
			c := src.AtWrap(sx, sy+1)
			d := src.AtWrap(sx+1, sy+1)
			var out [4]float32
			for i := range out {
				out[i] = (a[i] + b[i] + c[i] + d[i]) / 4
			}
			dst.Set(x, y, out)
		}
	}
}

// relax is one damped Jacobi sweep of the discrete Poisson problem whose
// right-hand side is the divergence of the gradient field. Each neighbour
// predicts the centre height along the averaged gradient of the edge.
func relax(dst *texture.Image, in []*texture.Image, u pipeline.Uniforms) {
	hgt, grad := in[0], in[1]
	s := u.Float("scale", 1)
	omega := u.Float("omega", 0.8)
	each(dst, func(x, y int, _, _ float32) [4]float32 {
		hi := fetch(hgt, dst, x, y, 0, 0)[0]
		gi := fetch(grad, dst, x, y, 0, 0)
		gl := fetch(grad, dst, x, y, -1, 0)
		gr := fetch(grad, dst, x, y, 1, 0)
		gu := fetch(grad, dst, x, y, 0, -1)
		gd := fetch(grad, dst, x, y, 0, 1)

		sum := fetch(hgt, dst, x, y, -1, 0)[0] + (gl[0]+gi[0])/2*s
		sum += fetch(hgt, dst, x, y, 1, 0)[0] - (gr[0]+gi[0])/2*s
		sum += fetch(hgt, dst, x, y, 0, -1)[0] + (gu[1]+gi[1])/2*s
		sum += fetch(hgt, dst, x, y, 0, 1)[0] - (gd[1]+gi[1])/2*s

		h := (1-omega)*hi + omega*sum/4
		return [4]float32{h, h, h, 1}
	})
}

func levels(dst *texture.Image, in []*texture.Image, u pipeline.Uniforms) {
	src := in[0]
	lo, hi := u.Float("min", 0), u.Float("max", 1)
	each(dst, func(x, y int, _, _ float32) [4]float32 {
		if hi-lo < 1e-6 {
			return gray(0)
		}
		return gray(clamp01((fetch(src, dst, x, y, 0, 0)[0] - lo) / (hi - lo)))
	})
}

func gaussian(dst *texture.Image, in []*texture.Image, u pipeline.Uniforms) {
	src := in[0]
	dir := u.Vec2("direction", [2]float32{1, 0})
	sigma := max(u.Float("sigma", 1), 0.1)
	radius := int(math32.Ceil(sigma * 2.5))
	weights := make([]float32, radius+1)
	var total float32
	for i := range weights {
		weights[i] = math32.Exp(-float32(i*i) / (2 * sigma * sigma))
		if i == 0 {
			total += weights[i]
		} else {
			total += 2 * weights[i]
		}
	}
	dx, dy := int(dir[0]), int(dir[1])
	each(dst, func(x, y int, _, _ float32) [4]float32 {
		var acc [4]float32
		for i := -radius; i <= radius; i++ {
			c := fetch(src, dst, x, y, i*dx, i*dy)
			w := weights[abs(i)] / total
			for k := range acc {
				acc[k] += c[k] * w
			}
		}
		return acc
	})
}

func abs(i int) int {
	if i < 0 {
		return -i
	}
	return i
}

func luminanceHeight(dst *texture.Image, in []*texture.Image, u pipeline.Uniforms) {
	diffuse, low := in[0], in[1]
	detail := u.Float("detail", 1)
	shape := u.Float("shape", 1)
	k := u.Float("contrast", 1)
	invert := u.Bool("invert")
	each(dst, func(x, y int, _, _ float32) [4]float32 {
		l := luma(fetch(diffuse, dst, x, y, 0, 0))
		lp := luma(fetch(low, dst, x, y, 0, 0))
		h := 0.5 + k*(detail*(l-lp)+shape*(lp-0.5))
		if invert {
			h = 1 - h
		}
		return gray(clamp01(h))
	})
}

func grayCurve(dst *texture.Image, in []*texture.Image, u pipeline.Uniforms) {
	src := in[0]
	b := u.Float("brightness", 0)
	k := u.Float("contrast", 1)
	sat := u.Float("saturation", 0)
	invert := u.Bool("invert")
	asGray := u.Bool("gray")
	curve := func(v float32) float32 {
		v = clamp01((v-0.5)*k + 0.5 + b)
		if invert {
			v = 1 - v
		}
		return v
	}
	each(dst, func(x, y int, _, _ float32) [4]float32 {
		c := fetch(src, dst, x, y, 0, 0)
		if asGray {
			v := luma(c)
			if sat != 0 {
				s := max(c[0], c[1], c[2]) - min(c[0], c[1], c[2])
				v += sat * (s - v)
			}
			return gray(curve(v))
		}
		return [4]float32{curve(c[0]), curve(c[1]), curve(c[2]), c[3]}
	})
}

// occlusion marches each direction over the height field and keeps the
// steepest horizon. Directions facing away from the surface normal weigh
// more.
func occlusion(dst *texture.Image, in []*texture.Image, u pipeline.Uniforms) {
	hgt, nrm := in[0], in[1]
	radius := u.Float("radius", 0.03)
	depth := u.Float("depth", 1)
	strength := u.Float("strength", 1)
	dirs := int(u.Int("directions", 8))
	steps := int(u.Int("steps", 6))
	each(dst, func(x, y int, uu, vv float32) [4]float32 {
		h0 := fetch(hgt, dst, x, y, 0, 0)[0]
		n := fetch(nrm, dst, x, y, 0, 0)
		nx, ny := n[0]*2-1, n[1]*2-1
		var occ, wsum float32
		for d := 0; d < dirs; d++ {
			a := 2 * math32.Pi * float32(d) / float32(dirs)
			cx, cy := math32.Cos(a), math32.Sin(a)
			var horizon float32
			for s := 1; s <= steps; s++ {
				t := float32(s) / float32(steps)
				hs := hgt.Sample(uu+cx*radius*t, vv+cy*radius*t)[0]
				horizon = max(horizon, (hs-h0)*depth/t)
			}
			w := max(1-(nx*cx+ny*cy), 0)
			occ += w * horizon / math32.Sqrt(1+horizon*horizon)
			wsum += w
		}
		if wsum == 0 {
			return gray(1)
		}
		return gray(clamp01(1 - strength*occ/wsum))
	})
}

func grungeBlend(dst *texture.Image, in []*texture.Image, u pipeline.Uniforms) {
	base, grunge := in[0], in[1]
	w := u.Float("weight", 0)
	each(dst, func(x, y int, uu, vv float32) [4]float32 {
		b := fetch(base, dst, x, y, 0, 0)
		g := grunge.Sample(uu, vv)
		out := b
		for i := 0; i < 3; i++ {
			var o float32
			if b[i] < 0.5 {
				o = 2 * b[i] * g[i]
			} else {
				o = 1 - 2*(1-b[i])*(1-g[i])
			}
			out[i] = b[i] + (o-b[i])*w
		}
		return out
	})
}

func seamlessSimple(dst *texture.Image, in []*texture.Image, u pipeline.Uniforms) {
	src := in[0]
	radius := u.Float("radius", 0.15)
	dir := pipeline.Direction(u.Int("direction", 0))
	each(dst, func(x, y int, uu, vv float32) [4]float32 {
		c := fetch(src, dst, x, y, 0, 0)
		if radius <= 0 {
			return c
		}
		wx := 1 - smoothstep(0, radius, min(uu, 1-uu))
		wy := 1 - smoothstep(0, radius, min(vv, 1-vv))
		var w, sx, sy float32
		switch dir {
		case pipeline.DirectionX:
			w, sx = wx, 0.5
		case pipeline.DirectionY:
			w, sy = wy, 0.5
		default:
			w, sx, sy = max(wx, wy), 0.5, 0.5
		}
		if w == 0 {
			return c
		}
		return mix(c, src.Sample(fract(uu+sx), fract(vv+sy)), w)
	})
}

func seamlessMirror(dst *texture.Image, in []*texture.Image, u pipeline.Uniforms) {
	src := in[0]
	axis := pipeline.MirrorAxis(u.Int("axis", 0))
	mx := axis == pipeline.MirrorXY || axis == pipeline.MirrorX
	my := axis == pipeline.MirrorXY || axis == pipeline.MirrorY
	same := src.Width == dst.Width && src.Height == dst.Height
	each(dst, func(x, y int, uu, vv float32) [4]float32 {
		if same {
			if mx && x >= dst.Width/2 {
				x = dst.Width - 1 - x
			}
			if my && y >= dst.Height/2 {
				y = dst.Height - 1 - y
			}
			return src.At(x, y)
		}
		if mx && uu > 0.5 {
			uu = 1 - uu
		}
		if my && vv > 0.5 {
			vv = 1 - vv
		}
		return src.Sample(uu, vv)
	})
}

func seamlessRandom(dst *texture.Image, in []*texture.Image, u pipeline.Uniforms) {
	src := in[0]
	inner := u.Float("inner", 0.2)
	outer := u.Float("outer", 0.5)
	phase := u.Float("phase", 0)
	grid := int(max(u.Int("grid", 4), 1))
	angles := u.Floats("angles")
	g := float32(grid)
	each(dst, func(x, y int, uu, vv float32) [4]float32 {
		px, py := uu*g, vv*g
		cx, cy := math32.Floor(px), math32.Floor(py)
		lx, ly := px-cx-0.5, py-cy-0.5
		r := math32.Sqrt(lx*lx + ly*ly)
		t := 1 - smoothstep(inner, outer, r)
		if t == 0 {
			return fetch(src, dst, x, y, 0, 0)
		}
		var a float32
		if i := (int(cy)%grid)*grid + int(cx)%grid; i < len(angles) {
			a = angles[i]
		}
		theta := (a + phase) * t
		s, c := math32.Sin(theta), math32.Cos(theta)
		rx, ry := c*lx-s*ly, s*lx+c*ly
		return src.Sample((cx+0.5+rx)/g, (cy+0.5+ry)/g)
	})
}

func contrast(dst *texture.Image, in []*texture.Image, u pipeline.Uniforms) {
	src, ctrl := in[0], in[1]
	strength := u.Float("strength", 0)
	power := u.Float("power", 1)
	each(dst, func(x, y int, _, _ float32) [4]float32 {
		c := fetch(src, dst, x, y, 0, 0)
		f := 1 + strength*math32.Pow(clamp01(luma(fetch(ctrl, dst, x, y, 0, 0))), power)
		return [4]float32{
			clamp01((c[0]-0.5)*f + 0.5),
			clamp01((c[1]-0.5)*f + 0.5),
			clamp01((c[2]-0.5)*f + 0.5),
			c[3],
		}
	})
}

func keyMatch(c, k [4]float32, tol float32) bool {
	return math32.Abs(c[0]-k[0]) <= tol && math32.Abs(c[1]-k[1]) <= tol && math32.Abs(c[2]-k[2]) <= tol
}

func materialMask(dst *texture.Image, in []*texture.Image, u pipeline.Uniforms) {
	src := in[0]
	keys := u.Vec4s("keys")
	n := min(int(u.Int("count", 0)), len(keys), pipeline.MaxMaterialKeys)
	tol := u.Float("tolerance", 0)
	each(dst, func(x, y int, _, _ float32) [4]float32 {
		c := fetch(src, dst, x, y, 0, 0)
		for i := 0; i < n; i++ {
			if keyMatch(c, keys[i], tol) {
				return [4]float32{keys[i][0], keys[i][1], keys[i][2], 1}
			}
		}
		return [4]float32{}
	})
}

func regionBlend(dst *texture.Image, in []*texture.Image, u pipeline.Uniforms) {
	base, processed, mask := in[0], in[1], in[2]
	key := u.Vec4("key", [4]float32{})
	const tol = 1e-3
	each(dst, func(x, y int, _, _ float32) [4]float32 {
		m := fetch(mask, dst, x, y, 0, 0)
		if m[3] > 0.5 && keyMatch(m, key, tol) {
			return fetch(processed, dst, x, y, 0, 0)
		}
		return fetch(base, dst, x, y, 0, 0)
	})
}
