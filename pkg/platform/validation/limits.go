package validation

import (
	"fmt"

	"cms/pkg/platform/sentinel"
)

// Collection limits for a single consent.
const (
	// MaxPsuDataPerConsent bounds multilevel SCA; every listed PSU must authorise.
	MaxPsuDataPerConsent = 20

	// MaxAccountReferences bounds each of accounts, balances and transactions.
	MaxAccountReferences = 100
)

// String length limits.
const (
	MaxRedirectURILength   = 2048
	MaxAuthorisationNumber = 140
	MaxPsuIdentifierLength = 255
)

// CheckSliceCount validates that a slice does not exceed the maximum count.
func CheckSliceCount(fieldName string, count, max int) error {
	if count > max {
		return fmt.Errorf("too many %s: max %d allowed: %w", fieldName, max, sentinel.ErrInvalidInput)
	}
	return nil
}

// CheckStringLength validates that a string does not exceed the maximum length.
func CheckStringLength(fieldName, value string, max int) error {
	if len(value) > max {
		return fmt.Errorf("%s exceeds max length of %d: %w", fieldName, max, sentinel.ErrInvalidInput)
	}
	return nil
}

// FirstError returns the first non-nil error, so a request can list its
// checks in field order.
func FirstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
