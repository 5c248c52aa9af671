package kubeflux

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func podObject() *Object {
	return NewObject(map[string]any{
		"apiVersion": "v1",
		"kind":       "Pod",
		"metadata": map[string]any{
			"name":       "web-0",
			"namespace":  "default",
			"uid":        "abc-123",
			"finalizers": []any{"kubeflux.io/cleanup"},
		},
		"status": map[string]any{"phase": "Running"},
	})
}

func TestObject_Accessors(t *testing.T) {
	o := podObject()
	assert.Equal(t, "web-0", o.Name())
	assert.Equal(t, "default", o.Namespace())
	assert.Equal(t, "Pod", o.Kind())
	assert.Equal(t, "abc-123", o.UID())
	assert.True(t, o.HasFinalizer("kubeflux.io/cleanup"))
	assert.False(t, o.HasFinalizer("other"))

	status, ok := o.Status()
	assert.True(t, ok)
	assert.Equal(t, "Running", status["phase"])
}

func TestObject_NestedStringMap(t *testing.T) {
	o := NewObject(map[string]any{
		"spec": map[string]any{"selector": map[string]any{"app": "web"}},
	})
	m, ok := o.NestedStringMap("spec", "selector")
	assert.True(t, ok)
	assert.Equal(t, map[string]string{"app": "web"}, m)
}

func TestObject_DeepCopyIsIndependent(t *testing.T) {
	o := podObject()
	cp := o.DeepCopy()
	cp.SetName("other")
	assert.Equal(t, "web-0", o.Name())
	assert.Equal(t, "other", cp.Name())
}

func TestObject_StripControllerFieldsKeepsNameAndNamespace(t *testing.T) {
	o := podObject()
	o.stripControllerFields()
	assert.Equal(t, "web-0", o.Name())
	assert.Equal(t, "default", o.Namespace())
	assert.Empty(t, o.UID())
	assert.Empty(t, o.Finalizers())
}
