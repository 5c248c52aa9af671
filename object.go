package kubeflux

import (
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// Object is a structural view over an arbitrary Kubernetes object. It
// preserves apiVersion, kind, and the full metadata submapping opaquely,
// while giving typed accessors for the metadata fields the engine and
// request executor need to reason about. spec/status and any other top
// level fields are carried untouched in Raw.
type Object struct {
	Raw *unstructured.Unstructured
}

// NewObject wraps an in-memory map as an Object. The map is used directly,
// not copied.
func NewObject(content map[string]any) *Object {
	return &Object{Raw: &unstructured.Unstructured{Object: content}}
}

// FromUnstructured wraps an existing *unstructured.Unstructured.
func FromUnstructured(u *unstructured.Unstructured) *Object {
	return &Object{Raw: u}
}

func (o *Object) GroupVersionKind() GVK {
	gvk := o.Raw.GroupVersionKind()
	return GVK{Group: gvk.Group, Version: gvk.Version, Kind: gvk.Kind}
}

func (o *Object) APIVersion() string { return o.Raw.GetAPIVersion() }
func (o *Object) Kind() string       { return o.Raw.GetKind() }
func (o *Object) Name() string       { return o.Raw.GetName() }
func (o *Object) Namespace() string  { return o.Raw.GetNamespace() }
func (o *Object) UID() string        { return string(o.Raw.GetUID()) }
func (o *Object) ResourceVersion() string { return o.Raw.GetResourceVersion() }
func (o *Object) Generation() int64  { return o.Raw.GetGeneration() }
func (o *Object) Labels() map[string]string      { return o.Raw.GetLabels() }
func (o *Object) Annotations() map[string]string { return o.Raw.GetAnnotations() }
func (o *Object) Finalizers() []string           { return o.Raw.GetFinalizers() }

func (o *Object) SetNamespace(ns string) { o.Raw.SetNamespace(ns) }
func (o *Object) SetName(name string)    { o.Raw.SetName(name) }
func (o *Object) SetFinalizers(f []string) { o.Raw.SetFinalizers(f) }

// HasFinalizer reports whether name is present in metadata.finalizers.
func (o *Object) HasFinalizer(name string) bool {
	for _, f := range o.Finalizers() {
		if f == name {
			return true
		}
	}
	return false
}

// Status returns the opaque status submapping, or nil if absent.
func (o *Object) Status() (map[string]any, bool) {
	v, ok, _ := unstructured.NestedMap(o.Raw.Object, "status")
	return v, ok
}

// NestedStringMap reads a nested map[string]string at the given path,
// e.g. ("spec", "selector", "matchLabels").
func (o *Object) NestedStringMap(path ...string) (map[string]string, bool) {
	v, ok, _ := unstructured.NestedStringMap(o.Raw.Object, path...)
	return v, ok
}

// MarshalJSON delegates to the wrapped unstructured object so Object can be
// used directly as an http request body.
func (o *Object) MarshalJSON() ([]byte, error) { return o.Raw.MarshalJSON() }

// DeepCopy returns an independent copy of the object.
func (o *Object) DeepCopy() *Object { return &Object{Raw: o.Raw.DeepCopy()} }

// stripControllerFields removes the metadata fields the server owns
// (managedFields, resourceVersion, uid, creationTimestamp, generation) plus
// finalizers, per Finalize's re-apply contract (§4.4).
func (o *Object) stripControllerFields() {
	meta, ok, _ := unstructured.NestedMap(o.Raw.Object, "metadata")
	if !ok {
		return
	}
	for _, k := range []string{"managedFields", "resourceVersion", "uid", "creationTimestamp", "generation", "finalizers"} {
		delete(meta, k)
	}
	_ = unstructured.SetNestedMap(o.Raw.Object, meta, "metadata")
}

// List is a Kubernetes list envelope: kind/apiVersion, list metadata
// (resourceVersion, continue), and the decoded items.
type List struct {
	Kind            string
	APIVersion      string
	ResourceVersion string
	Continue        string
	Items           []*Object
}

// listEnvelope is the wire shape decoded from a list response body.
type listEnvelope struct {
	Kind       string `json:"kind"`
	APIVersion string `json:"apiVersion"`
	Metadata   struct {
		ResourceVersion string `json:"resourceVersion"`
		Continue        string `json:"continue"`
	} `json:"metadata"`
	Items []map[string]any `json:"items"`
}

func newListFromEnvelope(env listEnvelope) *List {
	l := &List{
		Kind:            env.Kind,
		APIVersion:      env.APIVersion,
		ResourceVersion: env.Metadata.ResourceVersion,
		Continue:        env.Metadata.Continue,
		Items:           make([]*Object, 0, len(env.Items)),
	}
	for _, item := range env.Items {
		l.Items = append(l.Items, NewObject(item))
	}
	return l
}
