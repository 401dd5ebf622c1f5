package core

import (
	"errors"
	"fmt"
)

// ErrorKind is the sync error taxonomy
type ErrorKind string

const (
	KindConfiguration      ErrorKind = "CONFIGURATION_ERROR"
	KindInvalidURL         ErrorKind = "INVALID_URL"
	KindAuthFailed         ErrorKind = "AUTH_FAILED"
	KindRateLimited        ErrorKind = "RATE_LIMITED"
	KindNotFound           ErrorKind = "NOT_FOUND"
	KindTransient          ErrorKind = "TRANSIENT"
	KindMalformedResponse  ErrorKind = "MALFORMED_RESPONSE"
	KindSyncInProgress     ErrorKind = "SYNC_IN_PROGRESS"
	KindInvalidContentItem ErrorKind = "INVALID_CONTENT_ITEM"
	KindInvalidPlatform    ErrorKind = "INVALID_PLATFORM"
)

// Sentinel errors, one per kind. Match with errors.Is.
var (
	ErrNotConfigured      = &SyncError{Kind: KindConfiguration}
	ErrInvalidURL         = &SyncError{Kind: KindInvalidURL}
	ErrAuthFailed         = &SyncError{Kind: KindAuthFailed}
	ErrRateLimited        = &SyncError{Kind: KindRateLimited}
	ErrNotFound           = &SyncError{Kind: KindNotFound}
	ErrTransient          = &SyncError{Kind: KindTransient}
	ErrMalformedResponse  = &SyncError{Kind: KindMalformedResponse}
	ErrSyncInProgress     = &SyncError{Kind: KindSyncInProgress}
	ErrInvalidContentItem = &SyncError{Kind: KindInvalidContentItem}
	ErrInvalidPlatform    = &SyncError{Kind: KindInvalidPlatform}
)

// SyncError carries a taxonomy kind plus the platform and operation that failed
type SyncError struct {
	Kind     ErrorKind
	Platform string
	Op       string
	Cause    error
}

func (e *SyncError) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Platform != "" {
		msg = e.Platform + " " + msg
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *SyncError) Unwrap() error {
	return e.Cause
}

// Is matches any SyncError of the same kind when target is a bare sentinel
func (e *SyncError) Is(target error) bool {
	t, ok := target.(*SyncError)
	if !ok {
		return false
	}
	if t.Platform == "" && t.Op == "" && t.Cause == nil {
		return t.Kind == e.Kind
	}
	return t == e
}

// NewSyncError creates a new sync error
func NewSyncError(kind ErrorKind, platform, op string, cause error) *SyncError {
	return &SyncError{
		Kind:     kind,
		Platform: platform,
		Op:       op,
		Cause:    cause,
	}
}

// Errorf builds a SyncError whose cause is a formatted message
func Errorf(kind ErrorKind, platform, op, format string, args ...interface{}) *SyncError {
	return NewSyncError(kind, platform, op, fmt.Errorf(format, args...))
}

// KindOf extracts the taxonomy kind of err. Unclassified errors are TRANSIENT.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var se *SyncError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindTransient
}

// IsKind reports whether err carries the given kind
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}
