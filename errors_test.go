package kubeflux

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusCode_NoneAttached(t *testing.T) {
	_, ok := StatusCode(errors.New("plain"))
	assert.False(t, ok)
}

func TestStatusCode_Attached(t *testing.T) {
	err := wrapStatus(ErrRequestFailed, 409, "conflict: %s", "web-0")
	code, ok := StatusCode(err)
	assert.True(t, ok)
	assert.Equal(t, 409, code)
	assert.ErrorIs(t, err, ErrRequestFailed)
	assert.Contains(t, err.Error(), "web-0")
}
