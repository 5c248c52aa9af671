// Package pathbuilder builds canonical Kubernetes REST URLs from a GVK and
// a filter set. It is pure: the same inputs always produce the same URL.
package pathbuilder

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// GVK is the path builder's view of a Kubernetes resource coordinate.
type GVK struct {
	Group      string
	Version    string
	Kind       string
	Plural     string
	Namespaced bool
}

func (g GVK) plural() string {
	if g.Plural != "" {
		return g.Plural
	}
	return strings.ToLower(g.Kind) + "s"
}

// Filter carries the scoping/selector state of a single request.
type Filter struct {
	Fields    map[string]string
	Labels    map[string]string
	Name      string
	Namespace string
}

// Options toggles builder behavior that isn't part of the filter itself.
type Options struct {
	// ExcludeName omits the trailing /<name> segment even if Filter.Name is set,
	// used by verbs that POST to the collection endpoint.
	ExcludeName bool
}

// Build constructs the path and RawQuery for serverURL + gvk + filter.
// A trailing slash on serverURL's path is trimmed before the segments are
// joined.
func Build(serverURL string, gvk GVK, filter Filter, opts Options) (*url.URL, error) {
	base, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL %q: %w", serverURL, err)
	}

	apiBase, err := basePath(gvk)
	if err != nil {
		return nil, err
	}

	segments := []string{strings.TrimSuffix(base.Path, "/"), apiBase}
	if gvk.Namespaced && filter.Namespace != "" {
		segments = append(segments, "namespaces", filter.Namespace)
	}
	segments = append(segments, gvk.plural())
	if filter.Name != "" && !opts.ExcludeName {
		segments = append(segments, filter.Name)
	}

	base.Path = strings.Join(trimEmpty(segments), "/")
	base.RawQuery = buildQuery(filter).Encode()
	return base, nil
}

// basePath returns "/api/v1" for the core group, or "/apis/<group>/<version>"
// otherwise. A non-core group with no version is ErrInvalidKind territory,
// signaled here via a plain error the caller wraps.
func basePath(gvk GVK) (string, error) {
	if gvk.Group == "" {
		return "/api/v1", nil
	}
	if gvk.Version == "" {
		return "", fmt.Errorf("missing version for group %q kind %q", gvk.Group, gvk.Kind)
	}
	return fmt.Sprintf("/apis/%s/%s", gvk.Group, gvk.Version), nil
}

func trimEmpty(segs []string) []string {
	out := segs[:0]
	for _, s := range segs {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// buildQuery turns Fields/Labels into the canonical fieldSelector and
// labelSelector query params. Keys are sorted so repeated builds with the
// same filter are byte-identical.
func buildQuery(filter Filter) url.Values {
	q := url.Values{}
	if len(filter.Fields) > 0 {
		q.Set("fieldSelector", joinSelector(filter.Fields, "="))
	}
	if len(filter.Labels) > 0 {
		q.Set("labelSelector", joinSelector(filter.Labels, "="))
	}
	return q
}

// joinSelector comma-joins a selector map's entries in key order. An entry
// with an empty value emits the bare key (set-based "Exists").
func joinSelector(m map[string]string, sep string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v := m[k]
		if v == "" {
			parts = append(parts, k)
			continue
		}
		parts = append(parts, k+sep+v)
	}
	return strings.Join(parts, ",")
}
