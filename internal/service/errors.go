package service

import (
	"errors"
	"fmt"
)

// --- Error Definitions ---
var (
	// ErrInvalidInput: missing ids or out-of-range values. Rejected before any write.
	ErrInvalidInput = errors.New("invalid input")
	// ErrDependencyUnavailable: a catalog, user or course lookup failed. Safe to retry.
	ErrDependencyUnavailable = errors.New("dependency unavailable")
	// ErrStorageFailure: any storage error other than a resolved uniqueness conflict.
	ErrStorageFailure = errors.New("storage failure")

	ErrNotEligible         = errors.New("course is not complete for this user")
	ErrCertificateNotFound = errors.New("certificate not found")
	ErrCertificateRevoked  = errors.New("certificate has been revoked")
)

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func storageFailure(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorageFailure, op, err)
}

func dependencyUnavailable(what string, err error) error {
	if err == nil {
		return fmt.Errorf("%w: %s", ErrDependencyUnavailable, what)
	}
	return fmt.Errorf("%w: %s: %w", ErrDependencyUnavailable, what, err)
}
