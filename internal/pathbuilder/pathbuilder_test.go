package pathbuilder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild(t *testing.T) {
	tests := []struct {
		name       string
		gvk        GVK
		filter     Filter
		opts       Options
		wantPath   string
		wantQuery  string
		wantErr    bool
	}{
		{
			name:     "core group namespaced with name",
			gvk:      GVK{Version: "v1", Kind: "Pod", Namespaced: true},
			filter:   Filter{Name: "web-0", Namespace: "default"},
			wantPath: "/api/v1/namespaces/default/pods/web-0",
		},
		{
			name:     "named group",
			gvk:      GVK{Group: "apps", Version: "v1", Kind: "Deployment", Namespaced: true},
			filter:   Filter{Namespace: "default"},
			wantPath: "/apis/apps/v1/namespaces/default/deployments",
		},
		{
			name:     "cluster scoped ignores namespace",
			gvk:      GVK{Version: "v1", Kind: "Node", Namespaced: false},
			filter:   Filter{Namespace: "default"},
			wantPath: "/api/v1/nodes",
		},
		{
			name:     "exclude name for create",
			gvk:      GVK{Version: "v1", Kind: "Pod", Namespaced: true},
			filter:   Filter{Name: "web-0", Namespace: "default"},
			opts:     Options{ExcludeName: true},
			wantPath: "/api/v1/namespaces/default/pods",
		},
		{
			name:     "explicit plural overrides default",
			gvk:      GVK{Version: "v1", Kind: "Endpoints", Plural: "endpoints", Namespaced: true},
			filter:   Filter{Namespace: "default"},
			wantPath: "/api/v1/namespaces/default/endpoints",
		},
		{
			name:    "named group missing version is an error",
			gvk:     GVK{Group: "apps", Kind: "Deployment"},
			wantErr: true,
		},
		{
			name:      "field and label selectors sorted and comma-joined",
			gvk:       GVK{Version: "v1", Kind: "Pod", Namespaced: true},
			filter:    Filter{Namespace: "default", Fields: map[string]string{"status.phase": "Running", "metadata.name": "web-0"}, Labels: map[string]string{"app": "web", "tier": ""}},
			wantPath:  "/api/v1/namespaces/default/pods",
			wantQuery: "fieldSelector=metadata.name%3Dweb-0%2Cstatus.phase%3DRunning&labelSelector=app%3Dweb%2Ctier",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := Build("https://cluster.example", tt.gvk, tt.filter, tt.opts)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantPath, u.Path)
			assert.Equal(t, tt.wantQuery, u.RawQuery)
		})
	}
}

func TestBuildIsIdempotent(t *testing.T) {
	gvk := GVK{Group: "apps", Version: "v1", Kind: "Deployment", Namespaced: true}
	filter := Filter{Namespace: "default", Labels: map[string]string{"app": "web"}}

	first, err := Build("https://cluster.example", gvk, filter, Options{})
	require.NoError(t, err)
	second, err := Build("https://cluster.example", gvk, filter, Options{})
	require.NoError(t, err)

	assert.Equal(t, first.String(), second.String())
}

func TestJoinSelector(t *testing.T) {
	tests := []struct {
		name string
		m    map[string]string
		want string
	}{
		{name: "empty", m: nil, want: ""},
		{name: "single bare key", m: map[string]string{"app": ""}, want: "app"},
		{name: "mixed", m: map[string]string{"b": "2", "a": ""}, want: "a,b=2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, joinSelector(tt.m, "="))
		})
	}
}
