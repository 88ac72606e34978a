package scene

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"bumpforge/texture"
)

// ErrIncompleteCubemap is returned when a face is missing or the faces differ in size.
var ErrIncompleteCubemap = errors.New("incomplete cubemap")

// CubeFaces lists face base names in GL_TEXTURE_CUBE_MAP_POSITIVE_X order.
var CubeFaces = [6]string{"posx", "negx", "posy", "negy", "posz", "negz"}

// LoadCubemap reads the six faces of a skybox from dir. Each face may use
// any supported input extension.
func LoadCubemap(dir string) ([6]*texture.Image, error) {
	var faces [6]*texture.Image
	entries, err := os.ReadDir(dir)
	if err != nil {
		return faces, fmt.Errorf("read skybox dir %q: %w", dir, err)
	}
	byBase := map[string]string{}
	for _, e := range entries {
		if e.IsDir() || !texture.InputExt(filepath.Ext(e.Name())) {
			continue
		}
		base := strings.ToLower(strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())))
		byBase[base] = filepath.Join(dir, e.Name())
	}

	for i, name := range CubeFaces {
		path, ok := byBase[name]
		if !ok {
			return faces, fmt.Errorf("%w: %s missing in %q", ErrIncompleteCubemap, name, dir)
		}
		img, err := texture.Load(path)
		if err != nil {
			return faces, fmt.Errorf("skybox face %s: %w", name, err)
		}
		if i > 0 && (img.Width != faces[0].Width || img.Height != faces[0].Height) {
			return faces, fmt.Errorf("%w: %s is %dx%d, want %dx%d", ErrIncompleteCubemap,
				name, img.Width, img.Height, faces[0].Width, faces[0].Height)
		}
		faces[i] = img
	}
	return faces, nil
}
