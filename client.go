package kubeflux

import (
	"fmt"
	"net/http"

	"k8s.io/client-go/rest"

	"github.com/hashmap-kz/kubeflux/internal/executor"
	"github.com/hashmap-kz/kubeflux/internal/fetch"
)

// ClientOptions configures a Client beyond what a *rest.Config carries.
type ClientOptions struct {
	// Registry overrides DefaultRegistry for kind lookups from this client.
	Registry *Registry
	// BearerToken, if set, is sent instead of reading the serviceaccount
	// token file.
	BearerToken string
}

// Client is the fluent entry point bound to a single Kubernetes API
// server. It owns no cache or background goroutines of its own — those
// belong to the Watchers it creates.
type Client struct {
	serverURL string
	executor  *executor.Executor
	registry  *Registry
}

// NewForConfig builds a Client from a *rest.Config the way the standard
// Kubernetes config loaders produce it (kubeconfig, in-cluster, or
// exec/token plugins): TLS and auth are entirely delegated to
// rest.TransportFor.
func NewForConfig(cfg *rest.Config, opts ClientOptions) (*Client, error) {
	transport, err := rest.TransportFor(cfg)
	if err != nil {
		return nil, fmt.Errorf("kubeflux: building transport: %w", err)
	}
	httpClient := &http.Client{Transport: transport}
	return NewForURL(cfg.Host, httpClient, opts), nil
}

// NewForURL builds a Client directly from a server URL and an already
// wired *http.Client (TLS, proxies, etc. already configured). If
// httpClient is nil, http.DefaultClient is used.
func NewForURL(serverURL string, httpClient *http.Client, opts ClientOptions) *Client {
	reg := opts.Registry
	if reg == nil {
		reg = DefaultRegistry
	}
	exec := executor.New(serverURL, fetch.New(httpClient, executor.UserAgent))
	exec.BearerToken = opts.BearerToken
	return &Client{serverURL: serverURL, executor: exec, registry: reg}
}

// K8s starts a fluent chain for the given kind symbol (a registry key, e.g.
// kubeflux.Pod, or a previously-registered custom kind).
func (c *Client) K8s(symbol string) *Chain {
	gvk, err := c.registry.Lookup(symbol)
	ch := &Chain{client: c, gvk: gvk, err: err}
	return ch
}

// K8sGVK starts a fluent chain for an explicit GVK, bypassing the registry.
func (c *Client) K8sGVK(gvk GVK) *Chain {
	return &Chain{client: c, gvk: gvk}
}

// DefaultClient is the package-level client used by the free function K8s.
// Callers that only ever talk to one cluster can set this once at startup;
// everyone else should call Client.K8s directly.
var DefaultClient *Client

// K8s starts a fluent chain against DefaultClient. It panics if
// DefaultClient has not been set — this mirrors the package's other
// "configure once at process init" pattern (the Kind Registry).
func K8s(symbol string) *Chain {
	if DefaultClient == nil {
		panic("kubeflux: DefaultClient is nil; call kubeflux.NewForConfig and assign it, or use Client.K8s")
	}
	return DefaultClient.K8s(symbol)
}
