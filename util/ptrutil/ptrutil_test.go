package ptrutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToPtr(t *testing.T) {
	value := int64(300)
	ptr := ToPtr(value)
	value = 0

	assert.Equal(t, int64(300), *ptr, "the pointer must not alias the argument")
}

func TestValueOrDefault(t *testing.T) {
	assert.Equal(t, int64(250), ValueOrDefault(ToPtr[int64](250)))
	assert.Equal(t, int64(0), ValueOrDefault[int64](nil))
	assert.Equal(t, "", ValueOrDefault[string](nil))
}
