package kubeflux

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_LookupBuiltin(t *testing.T) {
	r := NewRegistry()
	gvk, err := r.Lookup(Pod)
	require.NoError(t, err)
	assert.Equal(t, GVK{Group: "", Version: "v1", Kind: "Pod"}, gvk)
}

func TestRegistry_LookupUnknown(t *testing.T) {
	r := NewRegistry()
	_, err := r.Lookup("Widget")
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestRegistry_RegisterRejectsDuplicate(t *testing.T) {
	r := NewRegistry()
	gvk := GVK{Group: "widgets.example.com", Version: "v1", Kind: "Widget"}

	require.NoError(t, r.Register("Widget", gvk))
	err := r.Register("Widget", gvk)
	assert.ErrorIs(t, err, ErrAlreadyRegistered)
}

func TestRegistry_RegisterRejectsOverridingBuiltin(t *testing.T) {
	r := NewRegistry()
	err := r.Register(Pod, GVK{Group: "custom.io", Version: "v1", Kind: "Pod"})
	assert.ErrorIs(t, err, ErrAlreadyRegistered)
}

func TestGVK_NamespacedDefaults(t *testing.T) {
	tests := []struct {
		kind string
		want bool
	}{
		{kind: "Pod", want: true},
		{kind: "Deployment", want: true},
		{kind: "Node", want: false},
		{kind: "Namespace", want: false},
		{kind: "ClusterRole", want: false},
		{kind: "Widget", want: true},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			assert.Equal(t, tt.want, GVK{Kind: tt.kind}.Namespaced())
		})
	}
}

func TestGVK_PluralDefault(t *testing.T) {
	assert.Equal(t, "pods", GVK{Kind: "Pod"}.plural())
	assert.Equal(t, "endpoints", GVK{Kind: "Endpoints", Plural: "endpoints"}.plural())
}
