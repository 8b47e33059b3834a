package shopify

import (
	"fmt"
	"net/http"

	pkgerrors "github.com/angelmondragon/bargaining-backend/pkg/errors"
)

type ErrorKind string

const (
	KindUnauthorized ErrorKind = "unauthorized"
	KindNotFound     ErrorKind = "not_found"
	KindTimeout      ErrorKind = "timeout"
	KindMalformed    ErrorKind = "malformed"
	KindOther        ErrorKind = "other"
)

// UpstreamError is the raw failure observed against the Admin API. It is
// always returned wrapped in a typed error carrying the matching code.
type UpstreamError struct {
	Kind   ErrorKind
	Status int
	Body   string
	Err    error
}

func (e *UpstreamError) Error() string {
	if e == nil {
		return ""
	}
	switch {
	case e.Err != nil && e.Status > 0:
		return fmt.Sprintf("commerce api %s (status %d): %v", e.Kind, e.Status, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("commerce api %s: %v", e.Kind, e.Err)
	case e.Body != "":
		return fmt.Sprintf("commerce api %s (status %d): %s", e.Kind, e.Status, e.Body)
	default:
		return fmt.Sprintf("commerce api %s (status %d)", e.Kind, e.Status)
	}
}

func (e *UpstreamError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func kindForStatus(status int) ErrorKind {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindUnauthorized
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusGatewayTimeout, http.StatusRequestTimeout:
		return KindTimeout
	default:
		return KindOther
	}
}

func codeForKind(kind ErrorKind) pkgerrors.Code {
	switch kind {
	case KindUnauthorized:
		return pkgerrors.CodeUpstreamAuth
	case KindNotFound:
		return pkgerrors.CodeUpstreamNotFound
	case KindTimeout:
		return pkgerrors.CodeUpstreamTimeout
	case KindMalformed:
		return pkgerrors.CodeUpstreamMalformed
	default:
		return pkgerrors.CodeUpstream
	}
}

func upstreamFailure(resource string, upErr *UpstreamError) *pkgerrors.Error {
	details := map[string]any{"resource": resource}
	if upErr.Status > 0 {
		details["upstream_status"] = upErr.Status
	}
	return pkgerrors.Wrap(codeForKind(upErr.Kind), upErr, fmt.Sprintf("fetch %s", resource)).WithDetails(details)
}
