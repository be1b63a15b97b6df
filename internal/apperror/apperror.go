// Package apperror defines the error-kind taxonomy shared by every core
// component (storage, catalog, auth, api): a stable Kind plus a human
// message plus an optionally wrapped cause.
package apperror

import "fmt"

// Kind identifies the category of a core error. Callers switch on Kind,
// never on the error's formatted message.
type Kind string

const (
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"

	KindFolderNotFound  Kind = "folder_not_found"
	KindAssetNotFound   Kind = "asset_not_found"
	KindVersionNotFound Kind = "version_not_found"
	KindIntentNotFound  Kind = "intent_not_found"

	KindFolderExists   Kind = "folder_exists"
	KindAssetExists    Kind = "asset_exists"
	KindIntentConsumed Kind = "intent_consumed"
	KindParentMissing  Kind = "parent_missing"

	KindInvalidPath          Kind = "invalid_path"
	KindInvalidBasename      Kind = "invalid_basename"
	KindInvalidUploadResp    Kind = "invalid_upload_response"
	KindBasenameTooLong      Kind = "basename_too_long"
	KindInvalidArgument      Kind = "invalid_argument"

	KindBackendFailure Kind = "backend_failure"
	KindTransient      Kind = "transient"

	KindInternal Kind = "internal"

	// KindNotImplemented marks operations that are wired and authorized
	// but whose behavior is explicitly deferred to a later revision
	// (e.g. folder rename).
	KindNotImplemented Kind = "not_implemented"
)

// Error is the concrete error type returned by core operations.
type Error struct {
	Kind    Kind
	Message string
	Backend string // populated for KindBackendFailure
	Err     error
}

func (e *Error) Error() string {
	if e.Backend != "" {
		if e.Err != nil {
			return fmt.Sprintf("%s (%s): %s: %v", e.Kind, e.Backend, e.Message, e.Err)
		}
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.Backend, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match on Kind alone (ignoring Message/Err/Backend),
// so callers can do errors.Is(err, apperror.New(apperror.KindAssetNotFound, "")).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func FromBackend(backend, op string, err error) *Error {
	return &Error{Kind: KindBackendFailure, Backend: backend, Message: op, Err: err}
}

// KindOf returns the Kind of err if it (or something it wraps) is an
// *Error, and ("", false) otherwise.
func KindOf(err error) (Kind, bool) {
	var appErr *Error
	if ok := asError(err, &appErr); ok {
		return appErr.Kind, true
	}
	return "", false
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// HTTPStatus maps a Kind to the status code the server layer should use.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindUnauthorized:
		return 401
	case KindForbidden:
		return 403
	case KindFolderNotFound, KindAssetNotFound, KindVersionNotFound, KindIntentNotFound:
		return 404
	case KindFolderExists, KindAssetExists, KindIntentConsumed:
		return 409
	case KindInvalidPath, KindInvalidBasename, KindInvalidUploadResp, KindBasenameTooLong,
		KindInvalidArgument, KindParentMissing:
		return 400
	case KindBackendFailure, KindTransient:
		return 502
	case KindNotImplemented:
		return 501
	default:
		return 500
	}
}
