package opengl

import (
	"fmt"

	gl "github.com/go-gl/gl/v4.1-core/gl"

	"bumpforge/texture"
)

// UploadImage uploads img as a mipmapped, repeating RGBA32F 2D texture and
// returns its GL name.
func UploadImage(img *texture.Image) (uint32, error) {
	if img == nil || len(img.Pix) == 0 {
		return 0, fmt.Errorf("empty image")
	}

	var id uint32
	gl.GenTextures(1, &id)
	gl.BindTexture(gl.TEXTURE_2D, id)

	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.REPEAT)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.REPEAT)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.LINEAR_MIPMAP_LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.LINEAR)

	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA32F,
		int32(img.Width), int32(img.Height), 0,
		gl.RGBA, gl.FLOAT, gl.Ptr(img.Pix))
	gl.GenerateMipmap(gl.TEXTURE_2D)

	gl.BindTexture(gl.TEXTURE_2D, 0)
	return id, nil
}

// UploadCubemap uploads six equally sized faces in +X, -X, +Y, -Y, +Z, -Z order.
func UploadCubemap(faces [6]*texture.Image) (uint32, error) {
	for i, f := range faces {
		if f == nil || len(f.Pix) == 0 {
			return 0, fmt.Errorf("cubemap face %d empty", i)
		}
	}

	var id uint32
	gl.GenTextures(1, &id)
	gl.BindTexture(gl.TEXTURE_CUBE_MAP, id)
	for i, f := range faces {
		gl.TexImage2D(gl.TEXTURE_CUBE_MAP_POSITIVE_X+uint32(i), 0, gl.RGBA32F,
			int32(f.Width), int32(f.Height), 0,
			gl.RGBA, gl.FLOAT, gl.Ptr(f.Pix))
	}
	setCubeParams(true)
	gl.GenerateMipmap(gl.TEXTURE_CUBE_MAP)
	gl.BindTexture(gl.TEXTURE_CUBE_MAP, 0)
	return id, nil
}

// allocCubemap creates an empty RGBA16F cube map with an optional mip chain.
func allocCubemap(size int, mips bool) uint32 {
	var id uint32
	gl.GenTextures(1, &id)
	gl.BindTexture(gl.TEXTURE_CUBE_MAP, id)
	for i := uint32(0); i < 6; i++ {
		gl.TexImage2D(gl.TEXTURE_CUBE_MAP_POSITIVE_X+i, 0, gl.RGBA16F,
			int32(size), int32(size), 0, gl.RGBA, gl.FLOAT, nil)
	}
	setCubeParams(mips)
	if mips {
		gl.GenerateMipmap(gl.TEXTURE_CUBE_MAP)
	}
	gl.BindTexture(gl.TEXTURE_CUBE_MAP, 0)
	return id
}

func setCubeParams(mips bool) {
	minFilter := int32(gl.LINEAR)
	if mips {
		minFilter = gl.LINEAR_MIPMAP_LINEAR
	}
	gl.TexParameteri(gl.TEXTURE_CUBE_MAP, gl.TEXTURE_MIN_FILTER, minFilter)
	gl.TexParameteri(gl.TEXTURE_CUBE_MAP, gl.TEXTURE_MAG_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_CUBE_MAP, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_CUBE_MAP, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_CUBE_MAP, gl.TEXTURE_WRAP_R, gl.CLAMP_TO_EDGE)
}

// DeleteTexture frees a texture and zeroes the name.
func DeleteTexture(id *uint32) {
	if id == nil || *id == 0 {
		return
	}
	gl.DeleteTextures(1, id)
	*id = 0
}
