// Package executor applies method-specific URL/header/body transformations
// for each Kubernetes verb (get, create, apply, patch, patch-status,
// eviction, log, scale, proxy, delete) and performs the HTTP round-trip.
package executor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"k8s.io/apimachinery/pkg/types"

	"github.com/hashmap-kz/kubeflux/internal/fetch"
	"github.com/hashmap-kz/kubeflux/internal/pathbuilder"
)

// maxRetryAfter caps how long a single 429 retry will sleep, regardless of
// what the server asks for.
const maxRetryAfter = 5 * time.Second

// Verb identifies which transformation table row to apply.
type Verb string

const (
	VerbGet         Verb = "get"
	VerbList        Verb = "list"
	VerbCreate      Verb = "create"
	VerbDelete      Verb = "delete"
	VerbPatch       Verb = "patch"
	VerbPatchStatus Verb = "patch_status"
	VerbApply       Verb = "apply"
	VerbEvict       Verb = "eviction"
	VerbLogs        Verb = "log"
	VerbScale       Verb = "scale"
	VerbProxy       Verb = "proxy"
	VerbRaw         Verb = "raw"
)

// FieldManager is the field manager identity used on server-side apply.
const FieldManager = "kubeflux"

// UserAgent is sent on every request the executor issues.
const UserAgent = "kubeflux-go-client/1"

// DefaultTokenFile is the path the Kubernetes serviceaccount projects its
// bearer token at, read lazily per request per §6.
const DefaultTokenFile = "/var/run/secrets/kubernetes.io/serviceaccount/token"

var scaleableKinds = map[string]bool{"Deployment": true, "ReplicaSet": true, "StatefulSet": true}
var proxyableKinds = map[string]bool{"Pod": true, "Service": true, "Node": true}

// Request describes a single call to Execute.
type Request struct {
	Verb      Verb
	GVK       pathbuilder.GVK
	Filter    pathbuilder.Filter
	Body      []byte // pre-encoded JSON object/patch body, verb-dependent
	Force     bool   // APPLY: force=true on conflict
	ProxyPort string // PROXY: optional :port suffix before /proxy
	Continue  string // LIST: page continuation token
	Limit     int64  // LIST: page size, 0 means server default

	// RawPath/RawMethod are used only for VerbRaw, which bypasses GVK/path
	// inference entirely.
	RawPath   string
	RawMethod string
}

// Result is the decoded outcome of a successful call. At most one of
// Object/Text is populated depending on the verb (neither for DELETE,
// EVICT, or SCALE).
type Result struct {
	Status     int
	Object     []byte // JSON body of a single object (GET/CREATE/PATCH/APPLY/RAW)
	Text       string // raw text body (LOG/PROXY)
	NotFound   bool   // DELETE/EVICT swallowed a 404
	StatusHint string // not set by Execute; the PATCH_STATUS 404 hint is in HTTPError.Text
}

// Executor performs the HTTP round-trip for a fully-formed Request against
// a single Kubernetes API server.
type Executor struct {
	ServerURL     string
	Fetch         *fetch.Client
	BearerToken   string // explicit token; takes precedence over the token file
	TokenFilePath string // defaults to DefaultTokenFile when empty
}

// New returns an Executor. fetchClient may be nil to use fetch.New(nil, UserAgent).
func New(serverURL string, fetchClient *fetch.Client) *Executor {
	if fetchClient == nil {
		fetchClient = fetch.New(nil, UserAgent)
	}
	return &Executor{ServerURL: serverURL, Fetch: fetchClient, TokenFilePath: DefaultTokenFile}
}

// Execute dispatches req to the right transformation and performs the call.
func (e *Executor) Execute(ctx context.Context, req Request) (*Result, error) {
	if req.Verb == VerbScale && !scaleableKinds[req.GVK.Kind] {
		return nil, fmt.Errorf("scale: %w: %s", errUnsupportedSubresource, req.GVK.Kind)
	}
	if req.Verb == VerbProxy && !proxyableKinds[req.GVK.Kind] {
		return nil, fmt.Errorf("proxy: %w: %s", errUnsupportedSubresource, req.GVK.Kind)
	}

	if req.Verb == VerbRaw {
		return e.doRaw(ctx, req)
	}

	method, rawURL, body, headers, err := e.buildRequest(req)
	if err != nil {
		return nil, err
	}

	r := e.doWithRetry(ctx, method, rawURL, body, headers)

	switch req.Verb {
	case VerbDelete, VerbEvict:
		if r.Status == http.StatusNotFound {
			return &Result{Status: r.Status, NotFound: true}, nil
		}
		if !r.Ok {
			return nil, &HTTPError{Verb: req.Verb, Status: r.Status, Text: r.StatusText, Raw: r.Raw}
		}
		return &Result{Status: r.Status}, nil

	case VerbPatchStatus:
		if r.Status == http.StatusNotFound {
			return nil, &HTTPError{Verb: req.Verb, Status: r.Status, Text: r.StatusText + " (resource may not have a /status subresource)", Raw: r.Raw}
		}
		if !r.Ok {
			return nil, &HTTPError{Verb: req.Verb, Status: r.Status, Text: r.StatusText, Raw: r.Raw}
		}
		return &Result{Status: r.Status, Object: r.Raw}, nil

	case VerbLogs, VerbProxy:
		if !r.Ok {
			return nil, &HTTPError{Verb: req.Verb, Status: r.Status, Text: r.StatusText, Raw: r.Raw}
		}
		return &Result{Status: r.Status, Text: string(r.Raw)}, nil

	case VerbScale:
		if !r.Ok {
			return nil, &HTTPError{Verb: req.Verb, Status: r.Status, Text: r.StatusText, Raw: r.Raw}
		}
		return &Result{Status: r.Status}, nil

	default: // Get, List, Create, Patch, Apply
		if !r.Ok {
			return nil, &HTTPError{Verb: req.Verb, Status: r.Status, Text: r.StatusText, Raw: r.Raw}
		}
		return &Result{Status: r.Status, Object: r.Raw}, nil
	}
}

func (e *Executor) doRaw(ctx context.Context, req Request) (*Result, error) {
	method := req.RawMethod
	if method == "" {
		method = http.MethodGet
	}
	rawURL := strings.TrimSuffix(e.ServerURL, "/") + req.RawPath
	headers := e.headers("application/json")
	r := e.doWithRetry(ctx, method, rawURL, req.Body, headers)
	if !r.Ok {
		return nil, &HTTPError{Verb: VerbRaw, Status: r.Status, Text: fmt.Sprintf("%s %s: %s", method, req.RawPath, r.StatusText), Raw: r.Raw}
	}
	return &Result{Status: r.Status, Object: r.Raw}, nil
}

// doWithRetry performs a single HTTP call, retrying exactly once if the
// server responds 429 with a Retry-After header. The wait is capped at
// maxRetryAfter and abandoned early if ctx is cancelled.
func (e *Executor) doWithRetry(ctx context.Context, method, rawURL string, body []byte, headers http.Header) *fetch.Response {
	r := e.Fetch.Do(ctx, method, rawURL, bytes.NewReader(body), headers)
	if r.Status != http.StatusTooManyRequests {
		return r
	}
	delay, ok := retryAfterDelay(r.Header.Get("Retry-After"))
	if !ok {
		return r
	}
	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return r
	}
	return e.Fetch.Do(ctx, method, rawURL, bytes.NewReader(body), headers)
}

// retryAfterDelay parses a Retry-After header value (seconds only, per the
// Kubernetes API server) and caps it at maxRetryAfter.
func retryAfterDelay(header string) (time.Duration, bool) {
	if header == "" {
		return 0, false
	}
	secs, err := strconv.Atoi(header)
	if err != nil || secs < 0 {
		return 0, false
	}
	delay := time.Duration(secs) * time.Second
	if delay > maxRetryAfter {
		delay = maxRetryAfter
	}
	return delay, true
}

// buildRequest returns the method, URL, body, and headers for every verb
// except Raw.
func (e *Executor) buildRequest(req Request) (method, rawURL string, body []byte, headers http.Header, err error) {
	gvk := req.GVK
	filter := req.Filter
	opts := pathbuilder.Options{}

	switch req.Verb {
	case VerbGet:
		method = http.MethodGet
	case VerbList:
		method = http.MethodGet
		opts.ExcludeName = true
	case VerbCreate:
		method = http.MethodPost
		opts.ExcludeName = true
	case VerbDelete:
		method = http.MethodDelete
	case VerbPatch:
		method = http.MethodPatch
	case VerbPatchStatus:
		method = http.MethodPatch
	case VerbApply:
		method = http.MethodPatch
	case VerbEvict:
		method = http.MethodPost
	case VerbLogs:
		method = http.MethodGet
	case VerbScale:
		method = http.MethodPatch
	case VerbProxy:
		method = http.MethodGet
	default:
		return "", "", nil, nil, fmt.Errorf("unsupported verb %q", req.Verb)
	}

	u, berr := pathbuilder.Build(e.ServerURL, gvk, filter, opts)
	if berr != nil {
		return "", "", nil, nil, fmt.Errorf("%w: %v", errInvalidKind, berr)
	}

	switch req.Verb {
	case VerbPatchStatus:
		u.Path += "/status"
	case VerbEvict:
		u.Path += "/eviction"
	case VerbLogs:
		u.Path += "/log"
	case VerbScale:
		u.Path += "/scale"
	case VerbProxy:
		if req.ProxyPort != "" {
			u.Path += ":" + req.ProxyPort
		}
		u.Path += "/proxy"
	}

	if req.Verb == VerbApply {
		q := u.Query()
		q.Set("fieldManager", FieldManager)
		q.Set("fieldValidation", "Strict")
		if req.Force {
			q.Set("force", "true")
		}
		u.RawQuery = q.Encode()
	}

	if req.Verb == VerbList && (req.Continue != "" || req.Limit > 0) {
		q := u.Query()
		if req.Continue != "" {
			q.Set("continue", req.Continue)
		}
		if req.Limit > 0 {
			q.Set("limit", fmt.Sprintf("%d", req.Limit))
		}
		u.RawQuery = q.Encode()
	}

	contentType := ""
	switch req.Verb {
	case VerbCreate:
		contentType = "application/json"
	case VerbPatch:
		contentType = string(types.JSONPatchType)
	case VerbPatchStatus:
		contentType = string(types.MergePatchType)
	case VerbApply:
		contentType = string(types.ApplyPatchType)
	case VerbEvict:
		contentType = "application/json"
	case VerbScale:
		contentType = string(types.JSONPatchType)
	}

	return method, u.String(), req.Body, e.headers(contentType), nil
}

func (e *Executor) headers(contentType string) http.Header {
	h := http.Header{}
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	if tok := e.bearerToken(); tok != "" {
		h.Set("Authorization", "Bearer "+tok)
	}
	return h
}

// OpenWatch opens a long-lived NDJSON watch stream at resourceVersion for
// gvk/filter. The caller owns the returned stream and must close it.
func (e *Executor) OpenWatch(ctx context.Context, gvk pathbuilder.GVK, filter pathbuilder.Filter, resourceVersion string) (io.ReadCloser, error) {
	u, err := pathbuilder.Build(e.ServerURL, gvk, filter, pathbuilder.Options{ExcludeName: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidKind, err)
	}
	q := u.Query()
	q.Set("watch", "true")
	if resourceVersion != "" {
		q.Set("resourceVersion", resourceVersion)
	}
	q.Set("allowWatchBookmarks", "true")
	u.RawQuery = q.Encode()

	resp, err := e.Fetch.OpenStream(ctx, http.MethodGet, u.String(), e.headers(""))
	if err != nil {
		return nil, fmt.Errorf("open watch: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		defer resp.Body.Close()
		return nil, fmt.Errorf("open watch: unexpected status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// bearerToken resolves the Authorization bearer per §4.3/§6: an explicit
// token always wins; otherwise the serviceaccount token file is read fresh
// on every call (stateless, independent reads).
func (e *Executor) bearerToken() string {
	if e.BearerToken != "" {
		return e.BearerToken
	}
	path := e.TokenFilePath
	if path == "" {
		path = DefaultTokenFile
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
