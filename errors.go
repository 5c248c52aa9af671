package kubeflux

import (
	"errors"
	"fmt"
)

// Sentinel error kinds. Use errors.Is against these, not string matching;
// a failure of one of these kinds wraps the matching sentinel. Other
// failures (e.g. a missing name on Apply, or an undecodable response body)
// are returned as plain errors.
var (
	// ErrAlreadyRegistered is returned by Registry.Register when the symbol
	// already has a bound GVK.
	ErrAlreadyRegistered = errors.New("kind already registered")

	// ErrUnknownKind is returned by Registry.Lookup when the symbol is
	// neither a built-in nor previously registered.
	ErrUnknownKind = errors.New("unknown kind")

	// ErrInvalidKind is returned by the path builder when a GVK cannot be
	// turned into a REST path, e.g. a non-core group with no version.
	ErrInvalidKind = errors.New("invalid kind")

	// ErrUnsupportedSubresource is returned when Scale or Proxy is invoked
	// against a kind that does not support the subresource.
	ErrUnsupportedSubresource = errors.New("unsupported subresource for kind")

	// ErrNameAlreadySet is returned by a terminal, name-taking verb when the
	// chain already carries a user-supplied name.
	ErrNameAlreadySet = errors.New("name already set on this chain")

	// ErrNamespaceAlreadySet is returned by InNamespace when called twice on
	// the same chain.
	ErrNamespaceAlreadySet = errors.New("namespace already set on this chain")

	// ErrTooOld signals a 410 Gone response: the watch resourceVersion fell
	// outside the server's retained history.
	ErrTooOld = errors.New("resource version too old")

	// ErrGiveUp signals that the watch engine exceeded resyncFailureMax
	// consecutive reconnect attempts and has closed.
	ErrGiveUp = errors.New("watch gave up after repeated failures")

	// ErrRequestFailed is the generic kind wrapped around a non-2xx response
	// that did not match a more specific sentinel. Use StatusCode to recover
	// the HTTP status.
	ErrRequestFailed = errors.New("request failed")
)

// statusError carries an HTTP status code alongside a wrapped sentinel so
// callers that care can recover it with errors.As.
type statusError struct {
	kind    error
	status  int
	message string
}

func (e *statusError) Error() string {
	if e.message == "" {
		return e.kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.kind.Error(), e.message)
}

func (e *statusError) Unwrap() error { return e.kind }

// StatusCode returns the HTTP status code carried by err, if any was
// attached by the request executor, and whether one was found.
func StatusCode(err error) (int, bool) {
	var se *statusError
	if errors.As(err, &se) {
		return se.status, true
	}
	return 0, false
}

func wrapStatus(kind error, status int, format string, args ...any) error {
	return &statusError{kind: kind, status: status, message: fmt.Sprintf(format, args...)}
}
