package kubeflux

import (
	"fmt"
	"sync"
)

// Registry translates a type identifier — a well-known Kubernetes model
// name, or a user-registered symbol — to a GVK. It is append-only: once a
// symbol is bound, registering it again fails rather than silently
// overwriting the mapping (last-write-wins is forbidden).
type Registry struct {
	mu      sync.RWMutex
	entries map[string]GVK
}

// NewRegistry returns a Registry pre-seeded with the built-in Kubernetes
// kinds. Most callers use the process-wide DefaultRegistry instead of
// constructing their own.
func NewRegistry() *Registry {
	r := &Registry{entries: make(map[string]GVK, len(builtinKinds))}
	for symbol, gvk := range builtinKinds {
		r.entries[symbol] = gvk
	}
	return r
}

// Register binds symbol to gvk. It fails with ErrAlreadyRegistered if the
// symbol is already bound, including to a built-in.
func (r *Registry) Register(symbol string, gvk GVK) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[symbol]; ok {
		return fmt.Errorf("%w: %q", ErrAlreadyRegistered, symbol)
	}
	r.entries[symbol] = gvk
	return nil
}

// Lookup resolves symbol to its GVK. It fails with ErrUnknownKind if the
// symbol was never registered and is not a built-in.
func (r *Registry) Lookup(symbol string) (GVK, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	gvk, ok := r.entries[symbol]
	if !ok {
		return GVK{}, fmt.Errorf("%w: %q", ErrUnknownKind, symbol)
	}
	return gvk, nil
}

// DefaultRegistry is the process-wide Kind Registry consulted by K8s and
// Client.K8s (unless ClientOptions.Registry overrides it) when a fluent
// chain is constructed from a symbol rather than an explicit GVK. It is
// safe for concurrent use.
var DefaultRegistry = NewRegistry()

// RegisterKind registers symbol against DefaultRegistry.
func RegisterKind(symbol string, gvk GVK) error {
	return DefaultRegistry.Register(symbol, gvk)
}

// Well-known Kind constants, usable directly with K8s() without a prior
// Register call.
const (
	Pod                      = "Pod"
	Deployment               = "Deployment"
	ReplicaSet               = "ReplicaSet"
	StatefulSet              = "StatefulSet"
	DaemonSet                = "DaemonSet"
	Job                      = "Job"
	CronJob                  = "CronJob"
	Service                  = "Service"
	Endpoints                = "Endpoints"
	ConfigMap                = "ConfigMap"
	Secret                   = "Secret"
	Namespace                = "Namespace"
	Node                     = "Node"
	PersistentVolume         = "PersistentVolume"
	PersistentVolumeClaim    = "PersistentVolumeClaim"
	ServiceAccount           = "ServiceAccount"
	Role                     = "Role"
	RoleBinding              = "RoleBinding"
	ClusterRole              = "ClusterRole"
	ClusterRoleBinding       = "ClusterRoleBinding"
	Ingress                  = "Ingress"
	NetworkPolicy            = "NetworkPolicy"
	CustomResourceDefinition = "CustomResourceDefinition"
	StorageClass             = "StorageClass"
	PriorityClass            = "PriorityClass"
	HorizontalPodAutoscaler  = "HorizontalPodAutoscaler"
	PodDisruptionBudget      = "PodDisruptionBudget"
	Event                    = "Event"
)

// builtinKinds is the default symbol -> GVK table. Plural is left empty where
// GVK.plural()'s lowercase(Kind)+"s" is the REST plural, and set explicitly
// for the kinds whose plural is irregular.
var builtinKinds = map[string]GVK{
	Pod:                      {Group: "", Version: "v1", Kind: "Pod"},
	Service:                  {Group: "", Version: "v1", Kind: "Service"},
	Endpoints:                {Group: "", Version: "v1", Kind: "Endpoints", Plural: "endpoints"},
	ConfigMap:                {Group: "", Version: "v1", Kind: "ConfigMap"},
	Secret:                   {Group: "", Version: "v1", Kind: "Secret"},
	Namespace:                {Group: "", Version: "v1", Kind: "Namespace"},
	Node:                     {Group: "", Version: "v1", Kind: "Node"},
	PersistentVolume:         {Group: "", Version: "v1", Kind: "PersistentVolume"},
	PersistentVolumeClaim:    {Group: "", Version: "v1", Kind: "PersistentVolumeClaim"},
	ServiceAccount:           {Group: "", Version: "v1", Kind: "ServiceAccount"},
	Event:                    {Group: "", Version: "v1", Kind: "Event"},
	Deployment:               {Group: "apps", Version: "v1", Kind: "Deployment"},
	ReplicaSet:               {Group: "apps", Version: "v1", Kind: "ReplicaSet"},
	StatefulSet:              {Group: "apps", Version: "v1", Kind: "StatefulSet"},
	DaemonSet:                {Group: "apps", Version: "v1", Kind: "DaemonSet"},
	Job:                      {Group: "batch", Version: "v1", Kind: "Job"},
	CronJob:                  {Group: "batch", Version: "v1", Kind: "CronJob"},
	Role:                     {Group: "rbac.authorization.k8s.io", Version: "v1", Kind: "Role"},
	RoleBinding:              {Group: "rbac.authorization.k8s.io", Version: "v1", Kind: "RoleBinding"},
	ClusterRole:              {Group: "rbac.authorization.k8s.io", Version: "v1", Kind: "ClusterRole"},
	ClusterRoleBinding:       {Group: "rbac.authorization.k8s.io", Version: "v1", Kind: "ClusterRoleBinding"},
	Ingress:                  {Group: "networking.k8s.io", Version: "v1", Kind: "Ingress", Plural: "ingresses"},
	NetworkPolicy:            {Group: "networking.k8s.io", Version: "v1", Kind: "NetworkPolicy", Plural: "networkpolicies"},
	CustomResourceDefinition: {Group: "apiextensions.k8s.io", Version: "v1", Kind: "CustomResourceDefinition"},
	StorageClass:             {Group: "storage.k8s.io", Version: "v1", Kind: "StorageClass", Plural: "storageclasses"},
	PriorityClass:            {Group: "scheduling.k8s.io", Version: "v1", Kind: "PriorityClass", Plural: "priorityclasses"},
	HorizontalPodAutoscaler:  {Group: "autoscaling", Version: "v2", Kind: "HorizontalPodAutoscaler"},
	PodDisruptionBudget:      {Group: "policy", Version: "v1", Kind: "PodDisruptionBudget"},
}
