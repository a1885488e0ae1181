// Package store persists consents and authorisations.
//
// Backends implement Repository: plain reads plus insert and compare-and-swap
// writes keyed on the stored checksum. Guarded layers the checksum verification
// on top and is the only write path the lifecycle code uses.
package store

import (
	"context"

	"cms/internal/consent/models"
)

// Repository is implemented by every storage backend.
//
// Finds return sentinel.ErrNotFound when nothing matches a single-row lookup.
// Inserts return sentinel.ErrConflict on a duplicate external id.
// CompareAndSwap writes replace the row only while its stored checksum still
// equals expectedChecksum and return sentinel.ErrConflict otherwise.
type Repository interface {
	FindConsentByExternalID(ctx context.Context, externalID, instanceID string) (*models.Consent, error)
	FindConsentsByPsu(ctx context.Context, q models.PsuConsentQuery) ([]*models.Consent, error)
	FindOldConsents(ctx context.Context, q models.OldConsentQuery) ([]*models.Consent, error)
	FindAuthorisationByExternalID(ctx context.Context, externalID, instanceID string) (*models.Authorisation, error)
	FindAuthorisationsByParent(ctx context.Context, q models.ParentQuery) ([]*models.Authorisation, error)

	InsertConsent(ctx context.Context, consent *models.Consent) error
	CompareAndSwapConsent(ctx context.Context, consent *models.Consent, expectedChecksum string) error
	InsertAuthorisation(ctx context.Context, auth *models.Authorisation) error
	CompareAndSwapAuthorisation(ctx context.Context, auth *models.Authorisation, expectedChecksum string) error
}
