package kubeflux

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChain_GetNotFoundClassifiesAsNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{
			"kind": "Status", "apiVersion": "v1", "status": "Failure",
			"message": "pods \"web-0\" not found", "reason": "NotFound", "code": 404
		}`))
	})
	_, err := client.K8s(Pod).InNamespace("default").Get(t.Context(), "web-0")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.False(t, IsConflict(err))
	assert.ErrorIs(t, err, ErrRequestFailed)

	code, ok := StatusCode(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestChain_CreateConflictClassifiesAsAlreadyExists(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{
			"kind": "Status", "apiVersion": "v1", "status": "Failure",
			"message": "pods \"web-0\" already exists", "reason": "AlreadyExists", "code": 409
		}`))
	})
	_, err := client.K8s(Pod).InNamespace("default").Create(t.Context(), NewObject(map[string]any{
		"apiVersion": "v1", "kind": "Pod", "metadata": map[string]any{"name": "web-0"},
	}))
	require.Error(t, err)
	assert.True(t, IsAlreadyExists(err))
	assert.False(t, IsNotFound(err))
}

func TestChain_FailureWithoutStatusBodyStillClassifiesByCode(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("internal error"))
	})
	_, err := client.K8s(Pod).InNamespace("default").Get(t.Context(), "web-0")
	require.Error(t, err)
	assert.False(t, IsNotFound(err))
	code, ok := StatusCode(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusInternalServerError, code)
}
