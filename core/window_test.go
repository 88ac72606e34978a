package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckVersion(t *testing.T) {
	assert.NoError(t, CheckVersion(4, 1, 4, 1))
	assert.NoError(t, CheckVersion(4, 6, 4, 1))
	assert.NoError(t, CheckVersion(5, 0, 4, 1))
	assert.ErrorIs(t, CheckVersion(3, 3, 4, 1), ErrGLVersion)
	assert.ErrorIs(t, CheckVersion(4, 0, 4, 1), ErrGLVersion)
}

func TestColorVec4(t *testing.T) {
	c := ColorFromVec4([4]float32{0.1, 0.2, 0.3, 1})
	assert.Equal(t, [4]float32{0.1, 0.2, 0.3, 1}, c.Vec4())
}
