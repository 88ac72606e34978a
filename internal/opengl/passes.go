package opengl

import "bumpforge/pipeline"

// ── Pass shaders ──────────────────────────────────────────────────────────────

// fullscreenVertSrc draws one oversized triangle from gl_VertexID; no vertex
// buffer is bound. vUV runs over [0,1] in texture memory order.
const fullscreenVertSrc = `
#version 410 core
out vec2 vUV;
void main() {
    vec2 p = vec2((gl_VertexID << 1) & 2, gl_VertexID & 2);
    vUV = p;
    gl_Position = vec4(p * 2.0 - 1.0, 0.0, 1.0);
}
` + "\x00"

// passPrelude is shared by every pass. Inputs use repeat addressing and
// linear filtering so same-size reads at texel centres are exact.
const passPrelude = `
#version 410 core
in vec2 vUV;
out vec4 outColor;
uniform sampler2D uTex0;
uniform sampler2D uTex1;
uniform sampler2D uTex2;

const float PI = 3.14159265359;

vec4 fetchAt(sampler2D s, vec2 d) {
    return texture(s, vUV + d / vec2(textureSize(s, 0)));
}
float luma(vec3 c) { return dot(c, vec3(0.299, 0.587, 0.114)); }
vec4 gray(float v) { return vec4(v, v, v, 1.0); }
bool keyMatch(vec3 c, vec3 k, float tol) { return all(lessThanEqual(abs(c - k), vec3(tol))); }
`

var passBodies = [pipeline.NumPasses]string{
	pipeline.PassCopy: `
void main() { outColor = texture(uTex0, vUV); }
`,
	pipeline.PassFill: `
uniform vec4 u_color;
void main() { outColor = u_color; }
`,
	pipeline.PassHeightToNormal: `
uniform float u_strength;
void main() {
    float dx = (fetchAt(uTex0, vec2(1, 0)).r - fetchAt(uTex0, vec2(-1, 0)).r) * 0.5;
    float dy = (fetchAt(uTex0, vec2(0, 1)).r - fetchAt(uTex0, vec2(0, -1)).r) * 0.5;
    vec3 n = normalize(vec3(-u_strength * dx, -u_strength * dy, 1.0));
    outColor = vec4(n * 0.5 + 0.5, texture(uTex0, vUV).r);
}
`,
	pipeline.PassNormalToGradient: `
void main() {
    vec3 n = texture(uTex0, vUV).rgb * 2.0 - 1.0;
    float nz = max(n.z, 0.05);
    outColor = vec4(-n.x / nz, -n.y / nz, 0.0, 1.0);
}
`,
	pipeline.PassDownsample: `
void main() { outColor = texture(uTex0, vUV); }
`,
	pipeline.PassRelax: `
uniform float u_scale;
uniform float u_omega;
void main() {
    float hi = texture(uTex0, vUV).r;
    vec2 gi = texture(uTex1, vUV).rg;
    vec2 gw = fetchAt(uTex1, vec2(-1, 0)).rg;
    vec2 ge = fetchAt(uTex1, vec2(1, 0)).rg;
    vec2 gn = fetchAt(uTex1, vec2(0, -1)).rg;
    vec2 gs = fetchAt(uTex1, vec2(0, 1)).rg;
    float sum = fetchAt(uTex0, vec2(-1, 0)).r + (gw.x + gi.x) * 0.5 * u_scale;
    sum += fetchAt(uTex0, vec2(1, 0)).r - (ge.x + gi.x) * 0.5 * u_scale;
    sum += fetchAt(uTex0, vec2(0, -1)).r + (gn.y + gi.y) * 0.5 * u_scale;
    sum += fetchAt(uTex0, vec2(0, 1)).r - (gs.y + gi.y) * 0.5 * u_scale;
    float h = (1.0 - u_omega) * hi + u_omega * sum * 0.25;
    outColor = gray(h);
}
`,
	pipeline.PassLevels: `
uniform float u_min;
uniform float u_max;
void main() {
    if (u_max - u_min < 1e-6) { outColor = gray(0.0); return; }
    outColor = gray(clamp((texture(uTex0, vUV).r - u_min) / (u_max - u_min), 0.0, 1.0));
}
`,
	pipeline.PassGaussian: `
uniform vec2 u_direction;
uniform float u_sigma;
void main() {
    float sigma = max(u_sigma, 0.1);
    int radius = int(ceil(sigma * 2.5));
    vec4 acc = vec4(0.0);
    float total = 0.0;
    for (int i = -radius; i <= radius; i++) {
        float w = exp(-float(i * i) / (2.0 * sigma * sigma));
        acc += fetchAt(uTex0, u_direction * float(i)) * w;
        total += w;
    }
    outColor = acc / total;
}
`,
	pipeline.PassLuminanceHeight: `
uniform float u_detail;
uniform float u_shape;
uniform float u_contrast;
uniform int u_invert;
void main() {
    float l = luma(texture(uTex0, vUV).rgb);
    float lp = luma(texture(uTex1, vUV).rgb);
    float h = 0.5 + u_contrast * (u_detail * (l - lp) + u_shape * (lp - 0.5));
    if (u_invert != 0) h = 1.0 - h;
    outColor = gray(clamp(h, 0.0, 1.0));
}
`,
	pipeline.PassGrayCurve: `
uniform float u_brightness;
uniform float u_contrast;
uniform float u_saturation;
uniform int u_invert;
uniform int u_gray;
float curve(float v) {
    v = clamp((v - 0.5) * u_contrast + 0.5 + u_brightness, 0.0, 1.0);
    return u_invert != 0 ? 1.0 - v : v;
}
void main() {
    vec4 c = texture(uTex0, vUV);
    if (u_gray != 0) {
        float v = luma(c.rgb);
        if (u_saturation != 0.0) {
            float s = max(c.r, max(c.g, c.b)) - min(c.r, min(c.g, c.b));
            v += u_saturation * (s - v);
        }
        outColor = gray(curve(v));
        return;
    }
    outColor = vec4(curve(c.r), curve(c.g), curve(c.b), c.a);
}
`,
	pipeline.PassOcclusion: `
uniform float u_radius;
uniform float u_depth;
uniform float u_strength;
uniform int u_directions;
uniform int u_steps;
void main() {
    float h0 = texture(uTex0, vUV).r;
    vec2 n = texture(uTex1, vUV).rg * 2.0 - 1.0;
    float occ = 0.0;
    float wsum = 0.0;
    for (int d = 0; d < u_directions; d++) {
        float a = 2.0 * PI * float(d) / float(u_directions);
        vec2 dir = vec2(cos(a), sin(a));
        float horizon = 0.0;
        for (int s = 1; s <= u_steps; s++) {
            float t = float(s) / float(u_steps);
            float hs = texture(uTex0, vUV + dir * u_radius * t).r;
            horizon = max(horizon, (hs - h0) * u_depth / t);
        }
        float w = max(1.0 - dot(n, dir), 0.0);
        occ += w * horizon / sqrt(1.0 + horizon * horizon);
        wsum += w;
    }
    outColor = wsum == 0.0 ? gray(1.0) : gray(clamp(1.0 - u_strength * occ / wsum, 0.0, 1.0));
}
`,
	pipeline.PassGrungeBlend: `
uniform float u_weight;
void main() {
    vec4 b = texture(uTex0, vUV);
    vec3 g = texture(uTex1, vUV).rgb;
    vec3 o = mix(2.0 * b.rgb * g, 1.0 - 2.0 * (1.0 - b.rgb) * (1.0 - g), step(0.5, b.rgb));
    outColor = vec4(mix(b.rgb, o, u_weight), b.a);
}
`,
	pipeline.PassSeamlessSimple: `
uniform float u_radius;
uniform int u_direction;
void main() {
    vec4 c = texture(uTex0, vUV);
    if (u_radius <= 0.0) { outColor = c; return; }
    float wx = 1.0 - smoothstep(0.0, u_radius, min(vUV.x, 1.0 - vUV.x));
    float wy = 1.0 - smoothstep(0.0, u_radius, min(vUV.y, 1.0 - vUV.y));
    float w;
    vec2 shift;
    if (u_direction == 1) { w = wx; shift = vec2(0.5, 0.0); }
    else if (u_direction == 2) { w = wy; shift = vec2(0.0, 0.5); }
    else { w = max(wx, wy); shift = vec2(0.5); }
    outColor = mix(c, texture(uTex0, fract(vUV + shift)), w);
}
`,
	pipeline.PassSeamlessMirror: `
uniform int u_axis;
void main() {
    vec2 uv = vUV;
    if ((u_axis == 0 || u_axis == 1) && uv.x > 0.5) uv.x = 1.0 - uv.x;
    if ((u_axis == 0 || u_axis == 2) && uv.y > 0.5) uv.y = 1.0 - uv.y;
    outColor = texture(uTex0, uv);
}
`,
	pipeline.PassSeamlessRandom: `
uniform float u_inner;
uniform float u_outer;
uniform float u_phase;
uniform int u_grid;
uniform float u_angles[64];
void main() {
    int grid = max(u_grid, 1);
    float g = float(grid);
    vec2 p = vUV * g;
    vec2 cell = floor(p);
    vec2 l = p - cell - 0.5;
    float t = 1.0 - smoothstep(u_inner, u_outer, length(l));
    if (t == 0.0) { outColor = texture(uTex0, vUV); return; }
    int i = (int(cell.y) % grid) * grid + int(cell.x) % grid;
    float a = i < 64 ? u_angles[i] : 0.0;
    float theta = (a + u_phase) * t;
    float s = sin(theta);
    float c = cos(theta);
    vec2 r = vec2(c * l.x - s * l.y, s * l.x + c * l.y);
    outColor = texture(uTex0, (cell + 0.5 + r) / g);
}
`,
	pipeline.PassContrast: `
uniform float u_strength;
uniform float u_power;
void main() {
    vec4 c = texture(uTex0, vUV);
    float f = 1.0 + u_strength * pow(clamp(luma(texture(uTex1, vUV).rgb), 0.0, 1.0), u_power);
    outColor = vec4(clamp((c.rgb - 0.5) * f + 0.5, 0.0, 1.0), c.a);
}
`,
	pipeline.PassMaterialMask: `
uniform vec4 u_keys[16];
uniform int u_count;
uniform float u_tolerance;
void main() {
    vec3 c = texture(uTex0, vUV).rgb;
    outColor = vec4(0.0);
    for (int i = 0; i < min(u_count, 16); i++) {
        if (keyMatch(c, u_keys[i].rgb, u_tolerance)) {
            outColor = vec4(u_keys[i].rgb, 1.0);
            return;
        }
    }
}
`,
	pipeline.PassRegionBlend: `
uniform vec4 u_key;
void main() {
    vec4 m = texture(uTex2, vUV);
    bool inside = m.a > 0.5 && keyMatch(m.rgb, u_key.rgb, 1e-3);
    outColor = inside ? texture(uTex1, vUV) : texture(uTex0, vUV);
}
`,
}
