package executor

import (
	"errors"
	"fmt"
)

// Sentinel errors the root package maps onto its own exported error kinds.
var (
	errInvalidKind            = errors.New("invalid kind")
	errUnsupportedSubresource = errors.New("unsupported subresource for kind")
)

// IsInvalidKind reports whether err (or a wrapped cause) is an invalid-kind error.
func IsInvalidKind(err error) bool { return errors.Is(err, errInvalidKind) }

// IsUnsupportedSubresource reports whether err is an unsupported-subresource error.
func IsUnsupportedSubresource(err error) bool { return errors.Is(err, errUnsupportedSubresource) }

// HTTPError carries the status code and server-reported text of a failed
// request, so callers that care can recover it without parsing Error().
// Raw holds the unparsed response body, which is typically a
// metav1.Status JSON document the root package decodes for typed
// classification (NotFound, Conflict, AlreadyExists, ...).
type HTTPError struct {
	Verb   Verb
	Status int
	Text   string
	Raw    []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s failed (%d): %s", e.Verb, e.Status, e.Text)
}

// AsHTTPError reports whether err (or a wrapped cause) is an *HTTPError.
func AsHTTPError(err error) (*HTTPError, bool) {
	var he *HTTPError
	if errors.As(err, &he) {
		return he, true
	}
	return nil, false
}
