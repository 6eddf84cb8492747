package capacity

import (
	"errors"
	"fmt"
)

var (
	// ErrBackendNotFound is returned when a backend id does not exist,
	// or when no backend matches a filter (e.g. no active backend).
	ErrBackendNotFound = errors.New("backend not found")

	// ErrInvalidStatus is returned for a status outside
	// {active, inactive, full}.
	ErrInvalidStatus = errors.New("invalid backend status")
)

// ConfigurationError means required credentials or owner settings are
// missing. It is raised before any remote call is attempted.
type ConfigurationError struct {
	Missing string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("missing required configuration: %s", e.Missing)
}

// ProvisionError means remote backend creation failed after the
// credential checks passed.
type ProvisionError struct {
	Name string
	Err  error
}

func (e *ProvisionError) Error() string {
	return fmt.Sprintf("failed to provision backend %s: %v", e.Name, e.Err)
}

func (e *ProvisionError) Unwrap() error { return e.Err }

// CapacityError means no backend had room for an allocation and
// provisioning a new one also failed.
type CapacityError struct {
	Requested int64
	Err       error
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("no backend can hold %d bytes and provisioning failed: %v", e.Requested, e.Err)
}

func (e *CapacityError) Unwrap() error { return e.Err }
