// Package kubeflux is a fluent Kubernetes client built around a resilient
// list-then-watch reflector. It turns the Kubernetes API's at-most-once
// event stream into an at-least-once, cache-consistent stream of typed
// object updates, and exposes a chainable request builder for the common
// CRUD, apply, patch, eviction, log, scale, and proxy verbs.
//
// kubeflux does not parse kubeconfig or manage TLS/auth itself: callers
// hand it a *rest.Config (or a bare server URL plus bearer-token source)
// produced by the standard client-go config loaders.
package kubeflux
