package kubeflux

import (
	"context"
	"encoding/json"
	"fmt"

	"sigs.k8s.io/yaml"

	"github.com/hashmap-kz/kubeflux/internal/executor"
	"github.com/hashmap-kz/kubeflux/internal/pathbuilder"
)

// Chain is an immutable-per-call filter chain: every builder method
// (WithField, WithLabel, InNamespace, Named) returns a new Chain carrying
// the extra state, leaving the receiver untouched. Only the terminal verbs
// perform I/O.
type Chain struct {
	client *Client
	gvk    GVK
	filter Filter
	err    error
}

func (ch *Chain) clone() *Chain {
	return &Chain{client: ch.client, gvk: ch.gvk, filter: ch.filter.clone(), err: ch.err}
}

// WithField adds a fieldSelector term. Repeated keys overwrite.
func (ch *Chain) WithField(key, value string) *Chain {
	if ch.err != nil {
		return ch
	}
	next := ch.clone()
	if next.filter.Fields == nil {
		next.filter.Fields = map[string]string{}
	}
	next.filter.Fields[key] = value
	return next
}

// WithLabel adds a labelSelector term. An omitted or empty value emits the
// bare key (set-based "Exists"). Repeated keys overwrite.
func (ch *Chain) WithLabel(key string, value ...string) *Chain {
	if ch.err != nil {
		return ch
	}
	v := ""
	if len(value) > 0 {
		v = value[0]
	}
	next := ch.clone()
	if next.filter.Labels == nil {
		next.filter.Labels = map[string]string{}
	}
	next.filter.Labels[key] = v
	return next
}

// InNamespace scopes the chain to a namespace. A chain may only be scoped
// once; a second call fails with ErrNamespaceAlreadySet.
func (ch *Chain) InNamespace(ns string) *Chain {
	if ch.err != nil {
		return ch
	}
	next := ch.clone()
	if next.filter.namespaceSet {
		next.err = ErrNamespaceAlreadySet
		return next
	}
	next.filter.Namespace = ns
	next.filter.namespaceSet = true
	return next
}

// Named pins the chain to a single object name, distinct from the
// per-call name argument terminal verbs accept (see Get/Delete/Logs). A
// chain may only be named once; a second call fails with ErrNameAlreadySet.
func (ch *Chain) Named(name string) *Chain {
	if ch.err != nil {
		return ch
	}
	next := ch.clone()
	if next.filter.nameFromUser {
		next.err = ErrNameAlreadySet
		return next
	}
	next.filter.Name = name
	next.filter.nameFromUser = true
	return next
}

// resolveName returns the effective name for a single terminal call without
// mutating the chain: a per-call argName always wins, but only one of
// {Named, argName} may be in play at once.
func (ch *Chain) resolveName(argName string) (string, error) {
	if argName != "" {
		if ch.filter.nameFromUser {
			return "", ErrNameAlreadySet
		}
		return argName, nil
	}
	return ch.filter.Name, nil
}

func (ch *Chain) pbGVK() pathbuilder.GVK {
	g := ch.gvk
	return pathbuilder.GVK{Group: g.Group, Version: g.Version, Kind: g.Kind, Plural: g.Plural, Namespaced: g.Namespaced()}
}

func (ch *Chain) pbFilter(name string) pathbuilder.Filter {
	return pathbuilder.Filter{Fields: ch.filter.Fields, Labels: ch.filter.Labels, Name: name, Namespace: ch.filter.Namespace}
}

// mapExecErr translates an internal/executor error into one of the
// package's exported sentinel kinds, attaching the HTTP status code (when
// one is known) so callers can recover it with StatusCode.
func mapExecErr(err error) error {
	if err == nil {
		return nil
	}
	if executor.IsInvalidKind(err) {
		return fmt.Errorf("%w: %v", ErrInvalidKind, err)
	}
	if executor.IsUnsupportedSubresource(err) {
		return fmt.Errorf("%w: %v", ErrUnsupportedSubresource, err)
	}
	if he, ok := executor.AsHTTPError(err); ok {
		base := wrapStatus(ErrRequestFailed, he.Status, "%s", he.Text)
		if se := statusErrorFromHTTPError(he); se != nil {
			return fmt.Errorf("%w: %w", base, se)
		}
		return base
	}
	return err
}

// Get fetches a single object by name. When no name is given and the chain
// was never Named, it issues the collection GET but does not return the
// list: it returns an error instead; List returns the collection.
func (ch *Chain) Get(ctx context.Context, name ...string) (*Object, error) {
	if ch.err != nil {
		return nil, ch.err
	}
	arg := firstOrEmpty(name)
	resolved, err := ch.resolveName(arg)
	if err != nil {
		return nil, err
	}

	verb := executor.VerbGet
	if resolved == "" {
		verb = executor.VerbList
	}
	res, err := ch.client.executor.Execute(ctx, executor.Request{
		Verb: verb, GVK: ch.pbGVK(), Filter: ch.pbFilter(resolved),
	})
	if err != nil {
		return nil, mapExecErr(err)
	}
	if verb == executor.VerbList {
		return nil, fmt.Errorf("kubeflux: Get() with no name returns a list; use List()")
	}
	return objectFromJSON(res.Object)
}

// List fetches the collection as a List envelope.
func (ch *Chain) List(ctx context.Context) (*List, error) {
	if ch.err != nil {
		return nil, ch.err
	}
	res, err := ch.client.executor.Execute(ctx, executor.Request{
		Verb: executor.VerbList, GVK: ch.pbGVK(), Filter: ch.pbFilter(""),
	})
	if err != nil {
		return nil, mapExecErr(err)
	}
	var env listEnvelope
	if err := json.Unmarshal(res.Object, &env); err != nil {
		return nil, fmt.Errorf("kubeflux: decoding list: %w", err)
	}
	return newListFromEnvelope(env), nil
}

// Create POSTs a new object to the collection endpoint.
func (ch *Chain) Create(ctx context.Context, obj *Object) (*Object, error) {
	if ch.err != nil {
		return nil, ch.err
	}
	body, err := obj.MarshalJSON()
	if err != nil {
		return nil, err
	}
	res, err := ch.client.executor.Execute(ctx, executor.Request{
		Verb: executor.VerbCreate, GVK: ch.pbGVK(), Filter: ch.pbFilter(""), Body: body,
	})
	if err != nil {
		return nil, mapExecErr(err)
	}
	return objectFromJSON(res.Object)
}

// ApplyOptions configures server-side apply.
type ApplyOptions struct {
	Force bool
}

// Apply performs a server-side apply PATCH. obj's metadata.name is used as
// the path name; if obj has no name, the chain's Named name is used. If both
// are set, Apply fails with ErrNameAlreadySet.
func (ch *Chain) Apply(ctx context.Context, obj *Object, opts ApplyOptions) (*Object, error) {
	if ch.err != nil {
		return nil, ch.err
	}
	name, err := ch.resolveName(obj.Name())
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, fmt.Errorf("kubeflux: Apply requires a name (metadata.name or a named chain)")
	}
	jsonBody, err := obj.MarshalJSON()
	if err != nil {
		return nil, err
	}
	body, err := yaml.JSONToYAML(jsonBody)
	if err != nil {
		return nil, fmt.Errorf("kubeflux: encode apply payload: %w", err)
	}
	res, err := ch.client.executor.Execute(ctx, executor.Request{
		Verb: executor.VerbApply, GVK: ch.pbGVK(), Filter: ch.pbFilter(name), Body: body, Force: opts.Force,
	})
	if err != nil {
		return nil, mapExecErr(err)
	}
	return objectFromJSON(res.Object)
}

// PatchOp is one RFC 6902 JSON-Patch operation.
type PatchOp struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value,omitempty"`
}

// Patch applies a JSON-Patch document to a single named object.
func (ch *Chain) Patch(ctx context.Context, name string, ops []PatchOp) (*Object, error) {
	if ch.err != nil {
		return nil, ch.err
	}
	resolved, err := ch.resolveName(name)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(ops)
	if err != nil {
		return nil, err
	}
	res, err := ch.client.executor.Execute(ctx, executor.Request{
		Verb: executor.VerbPatch, GVK: ch.pbGVK(), Filter: ch.pbFilter(resolved), Body: body,
	})
	if err != nil {
		return nil, mapExecErr(err)
	}
	return objectFromJSON(res.Object)
}

// PatchStatus merge-patches {status: status} onto the object's /status
// subresource.
func (ch *Chain) PatchStatus(ctx context.Context, name string, status map[string]any) (*Object, error) {
	if ch.err != nil {
		return nil, ch.err
	}
	resolved, err := ch.resolveName(name)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(map[string]any{"status": status})
	if err != nil {
		return nil, err
	}
	res, err := ch.client.executor.Execute(ctx, executor.Request{
		Verb: executor.VerbPatchStatus, GVK: ch.pbGVK(), Filter: ch.pbFilter(resolved), Body: body,
	})
	if err != nil {
		return nil, mapExecErr(err)
	}
	return objectFromJSON(res.Object)
}

// Delete removes a named object. A 404 is swallowed, matching the
// "DELETE never fails on not-found" contract.
func (ch *Chain) Delete(ctx context.Context, name string) error {
	if ch.err != nil {
		return ch.err
	}
	resolved, err := ch.resolveName(name)
	if err != nil {
		return err
	}
	_, err = ch.client.executor.Execute(ctx, executor.Request{
		Verb: executor.VerbDelete, GVK: ch.pbGVK(), Filter: ch.pbFilter(resolved),
	})
	return mapExecErr(err)
}

// Evict POSTs a policy/v1 Eviction for the object. A 404 is swallowed.
func (ch *Chain) Evict(ctx context.Context, name, namespace string) error {
	if ch.err != nil {
		return ch.err
	}
	resolved, err := ch.resolveName(name)
	if err != nil {
		return err
	}
	body, err := json.Marshal(map[string]any{
		"apiVersion": "policy/v1",
		"kind":       "Eviction",
		"metadata":   map[string]any{"name": resolved, "namespace": namespace},
	})
	if err != nil {
		return err
	}
	f := ch.pbFilter(resolved)
	f.Namespace = namespace
	_, err = ch.client.executor.Execute(ctx, executor.Request{
		Verb: executor.VerbEvict, GVK: ch.pbGVK(), Filter: f, Body: body,
	})
	return mapExecErr(err)
}

// Scale patches spec.replicas via a JSON-Patch replace operation. Only
// valid for Deployment, ReplicaSet, and StatefulSet.
func (ch *Chain) Scale(ctx context.Context, name string, replicas int32) error {
	if ch.err != nil {
		return ch.err
	}
	resolved, err := ch.resolveName(name)
	if err != nil {
		return err
	}
	body, err := json.Marshal([]PatchOp{{Op: "replace", Path: "/spec/replicas", Value: replicas}})
	if err != nil {
		return err
	}
	_, err = ch.client.executor.Execute(ctx, executor.Request{
		Verb: executor.VerbScale, GVK: ch.pbGVK(), Filter: ch.pbFilter(resolved), Body: body,
	})
	return mapExecErr(err)
}

// Proxy fetches a raw response from the kind's /proxy subresource. Only
// valid for Pod, Service, and Node. port is optional ("" for none).
func (ch *Chain) Proxy(ctx context.Context, name, port string) (string, error) {
	if ch.err != nil {
		return "", ch.err
	}
	resolved, err := ch.resolveName(name)
	if err != nil {
		return "", err
	}
	res, err := ch.client.executor.Execute(ctx, executor.Request{
		Verb: executor.VerbProxy, GVK: ch.pbGVK(), Filter: ch.pbFilter(resolved), ProxyPort: port,
	})
	if err != nil {
		return "", mapExecErr(err)
	}
	return res.Text, nil
}

// Logs returns a Pod's container log text. For a non-Pod kind, it resolves
// the kind's pod selector (spec.selector.matchLabels, falling back to
// spec.selector), lists the matching Pods in the same namespace, and
// concatenates each pod's log, prefixed "[pod/<name>] ".
func (ch *Chain) Logs(ctx context.Context, name string) (string, error) {
	if ch.err != nil {
		return "", ch.err
	}
	resolved, err := ch.resolveName(name)
	if err != nil {
		return "", err
	}

	if ch.gvk.Kind == Pod {
		res, err := ch.client.executor.Execute(ctx, executor.Request{
			Verb: executor.VerbLogs, GVK: ch.pbGVK(), Filter: ch.pbFilter(resolved),
		})
		if err != nil {
			return "", mapExecErr(err)
		}
		return res.Text, nil
	}

	obj, err := ch.client.K8sGVK(ch.gvk).InNamespace(ch.filter.Namespace).Get(ctx, resolved)
	if err != nil {
		return "", err
	}
	selector, ok := obj.NestedStringMap("spec", "selector", "matchLabels")
	if !ok {
		selector, ok = obj.NestedStringMap("spec", "selector")
	}
	if !ok || len(selector) == 0 {
		return "", fmt.Errorf("kubeflux: %s/%s has no pod selector to fetch logs from", ch.gvk.Kind, resolved)
	}

	pods := ch.client.K8s(Pod).InNamespace(obj.Namespace())
	for k, v := range selector {
		pods = pods.WithLabel(k, v)
	}
	list, err := pods.List(ctx)
	if err != nil {
		return "", err
	}

	var out []byte
	for _, pod := range list.Items {
		res, err := ch.client.executor.Execute(ctx, executor.Request{
			Verb: executor.VerbLogs,
			GVK:  pathbuilder.GVK{Kind: Pod, Plural: "pods", Namespaced: true},
			Filter: pathbuilder.Filter{Name: pod.Name(), Namespace: pod.Namespace()},
		})
		if err != nil {
			return "", mapExecErr(err)
		}
		for _, line := range splitNonEmptyLines(res.Text) {
			out = append(out, fmt.Sprintf("[pod/%s] %s\n", pod.Name(), line)...)
		}
	}
	return string(out), nil
}

// FinalizeOp selects whether Finalize adds or removes a finalizer.
type FinalizeOp int

const (
	FinalizeAdd FinalizeOp = iota
	FinalizeRemove
)

// Finalize GETs the object and ensures finalizer's presence matches op: a
// no-op if it already does, otherwise it strips controller-owned metadata
// and re-applies the object with the finalizer added or removed, forced.
func (ch *Chain) Finalize(ctx context.Context, op FinalizeOp, finalizer string, name ...string) (*Object, error) {
	if ch.err != nil {
		return nil, ch.err
	}
	resolved, err := ch.resolveName(firstOrEmpty(name))
	if err != nil {
		return nil, err
	}
	if resolved == "" {
		return nil, fmt.Errorf("kubeflux: Finalize requires a name (a named chain or a per-call name)")
	}

	getRes, err := ch.client.executor.Execute(ctx, executor.Request{
		Verb: executor.VerbGet, GVK: ch.pbGVK(), Filter: ch.pbFilter(resolved),
	})
	if err != nil {
		return nil, mapExecErr(err)
	}
	obj, err := objectFromJSON(getRes.Object)
	if err != nil {
		return nil, err
	}

	has := obj.HasFinalizer(finalizer)
	if (op == FinalizeAdd) == has {
		return obj, nil
	}

	next := applyFinalizerOp(obj.Finalizers(), op, finalizer)
	obj.stripControllerFields()
	obj.SetFinalizers(next)

	jsonBody, err := obj.MarshalJSON()
	if err != nil {
		return nil, err
	}
	body, err := yaml.JSONToYAML(jsonBody)
	if err != nil {
		return nil, fmt.Errorf("kubeflux: encode apply payload: %w", err)
	}
	applyRes, err := ch.client.executor.Execute(ctx, executor.Request{
		Verb: executor.VerbApply, GVK: ch.pbGVK(), Filter: ch.pbFilter(resolved), Body: body, Force: true,
	})
	if err != nil {
		return nil, mapExecErr(err)
	}
	return objectFromJSON(applyRes.Object)
}

func applyFinalizerOp(current []string, op FinalizeOp, finalizer string) []string {
	if op == FinalizeAdd {
		return append(current, finalizer)
	}
	next := make([]string, 0, len(current))
	for _, f := range current {
		if f != finalizer {
			next = append(next, f)
		}
	}
	return next
}

func splitNonEmptyLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == '\n' {
			if i > start {
				lines = append(lines, s[start:i])
			}
			start = i + 1
		}
	}
	return lines
}

// Raw performs a request against the server URL with no kind/path
// inference. method defaults to GET.
func (ch *Chain) Raw(ctx context.Context, path, method string, body []byte) ([]byte, error) {
	res, err := ch.client.executor.Execute(ctx, executor.Request{
		Verb: executor.VerbRaw, RawPath: path, RawMethod: method, Body: body,
	})
	if err != nil {
		return nil, mapExecErr(err)
	}
	return res.Object, nil
}

func firstOrEmpty(s []string) string {
	if len(s) > 0 {
		return s[0]
	}
	return ""
}

func objectFromJSON(raw []byte) (*Object, error) {
	var content map[string]any
	if err := json.Unmarshal(raw, &content); err != nil {
		return nil, fmt.Errorf("kubeflux: decoding object: %w", err)
	}
	return NewObject(content), nil
}
