package scene

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrUnsupportedMesh is returned for mesh files with an unknown extension.
var ErrUnsupportedMesh = errors.New("unsupported mesh format")

// LoadMesh picks a loader by extension and normalizes the result to unit
// radius around the origin.
func LoadMesh(path string) (*Mesh, error) {
	var (
		m   *Mesh
		err error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".obj":
		m, err = LoadOBJ(path)
	case ".gltf", ".glb":
		m, err = LoadGLTF(path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMesh, ext)
	}
	if err != nil {
		return nil, err
	}
	m.Normalize()
	return m, nil
}
