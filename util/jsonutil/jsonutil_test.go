package jsonutil

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string `json:"name"`
	Count int    `json:"count,omitempty"`
}

func TestUnmarshal(t *testing.T) {
	var s sample
	require.NoError(t, Unmarshal([]byte(`{"name":"a","count":2}`), &s))
	assert.Equal(t, sample{Name: "a", Count: 2}, s)
}

func TestUnmarshalError(t *testing.T) {
	var s sample
	err := Unmarshal([]byte(`{"name":1}`), &s)

	require.Error(t, err)
	assert.True(t, IsUnmarshalError(err))
	assert.Contains(t, err.Error(), "cannot unmarshal")
	assert.NotContains(t, err.Error(), "error found in #")
}

func TestIsUnmarshalErrorOnOtherErrors(t *testing.T) {
	assert.False(t, IsUnmarshalError(errors.New("other")))
}

func TestMarshal(t *testing.T) {
	b, err := Marshal(sample{Name: "a"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"a"}`, string(b))
}
