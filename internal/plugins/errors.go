package plugins

import (
	"fmt"
)

// Error types for registry operations
var (
	ErrPlatformNotFound = fmt.Errorf("platform not found")
	ErrPlatformExists   = fmt.Errorf("platform already registered")
	ErrPlatformDisabled = fmt.Errorf("platform is disabled")
)

// PlatformError represents a platform-specific registry error
type PlatformError struct {
	PlatformID string
	Operation  string
	Cause      error
}

func (e *PlatformError) Error() string {
	if e.PlatformID != "" {
		return fmt.Sprintf("platform %s: %s failed: %v", e.PlatformID, e.Operation, e.Cause)
	}
	return fmt.Sprintf("%s failed: %v", e.Operation, e.Cause)
}

func (e *PlatformError) Unwrap() error {
	return e.Cause
}

// NewPlatformError creates a new platform error
func NewPlatformError(platformID, operation string, cause error) *PlatformError {
	return &PlatformError{
		PlatformID: platformID,
		Operation:  operation,
		Cause:      cause,
	}
}
