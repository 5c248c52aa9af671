package kubeflux

import (
	"encoding/json"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/hashmap-kz/kubeflux/internal/executor"
)

// statusErrorFromHTTPError decodes he.Raw as a metav1.Status document and
// returns the equivalent *apierrors.StatusError, or nil if the body isn't
// one (e.g. an apiserver in front of a proxy returned plain text).
func statusErrorFromHTTPError(he *executor.HTTPError) *apierrors.StatusError {
	if len(he.Raw) == 0 {
		return nil
	}
	var status metav1.Status
	if err := json.Unmarshal(he.Raw, &status); err != nil {
		return nil
	}
	if status.Status == "" && status.Reason == "" {
		return nil
	}
	if status.Code == 0 {
		status.Code = int32(he.Status)
	}
	return &apierrors.StatusError{ErrStatus: status}
}

// IsNotFound reports whether err represents a 404 Not Found response from
// the API server.
func IsNotFound(err error) bool { return apierrors.IsNotFound(err) }

// IsConflict reports whether err represents a 409 Conflict response,
// typically a stale resourceVersion on update.
func IsConflict(err error) bool { return apierrors.IsConflict(err) }

// IsAlreadyExists reports whether err represents a 409 AlreadyExists
// response from a Create call.
func IsAlreadyExists(err error) bool { return apierrors.IsAlreadyExists(err) }

// IsForbidden reports whether err represents a 403 Forbidden response.
func IsForbidden(err error) bool { return apierrors.IsForbidden(err) }

// IsInvalid reports whether err represents a 422 Invalid response, e.g. a
// schema validation failure on Create or Apply.
func IsInvalid(err error) bool { return apierrors.IsInvalid(err) }
