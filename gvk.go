package kubeflux

import (
	"strings"

	"k8s.io/apimachinery/pkg/runtime/schema"
)

// GVK is a Kubernetes resource coordinate: group, version, kind, and the
// plural form used in REST paths. Plural defaults to lowercase(Kind)+"s"
// when empty.
type GVK struct {
	Group   string
	Version string
	Kind    string
	Plural  string
}

// schemaGVK returns the apimachinery schema.GroupVersionKind equivalent,
// dropping Plural.
func (g GVK) schemaGVK() schema.GroupVersionKind {
	return schema.GroupVersionKind{Group: g.Group, Version: g.Version, Kind: g.Kind}
}

// plural returns g.Plural if set, else the lowercased Kind with a trailing "s".
func (g GVK) plural() string {
	if g.Plural != "" {
		return g.Plural
	}
	return strings.ToLower(g.Kind) + "s"
}

// Namespaced reports whether this GVK is expected to live under a namespace
// path segment. A handful of cluster-scoped kinds are special-cased; every
// other registered kind is treated as namespaced, matching the Kubernetes
// API server's own default.
func (g GVK) Namespaced() bool {
	switch g.Kind {
	case "Namespace", "Node", "PersistentVolume", "ClusterRole", "ClusterRoleBinding",
		"CustomResourceDefinition", "StorageClass", "PriorityClass", "APIService":
		return false
	default:
		return true
	}
}

// Filter is the accumulated selector/scope state of a fluent chain. Zero
// value is the empty filter: no namespace, no name, no selectors.
type Filter struct {
	KindOverride *GVK
	Fields       map[string]string
	Labels       map[string]string
	Name         string
	Namespace    string

	// nameFromUser tracks whether Name was set by the caller (an explicit
	// Named call on the chain) as opposed to being filled in
	// transiently by a terminal verb's own argument. Only a user-set name
	// triggers ErrNameAlreadySet on a subsequent name-taking verb.
	nameFromUser bool
	// namespaceSet distinguishes "namespace explicitly set to ''" from
	// "namespace never set", though in practice both are treated alike.
	namespaceSet bool
}

// clone returns a deep-enough copy so that mutating the copy's maps never
// leaks back into the original chain.
func (f Filter) clone() Filter {
	cp := f
	if f.Fields != nil {
		cp.Fields = make(map[string]string, len(f.Fields))
		for k, v := range f.Fields {
			cp.Fields[k] = v
		}
	}
	if f.Labels != nil {
		cp.Labels = make(map[string]string, len(f.Labels))
		for k, v := range f.Labels {
			cp.Labels[k] = v
		}
	}
	return cp
}
