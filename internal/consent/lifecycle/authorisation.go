package lifecycle

import (
	"context"
	"fmt"
	"log/slog"

	"cms/internal/consent/models"
	dErrors "cms/pkg/domain-errors"
	"cms/pkg/platform/middleware/requesttime"
)

// RedirectExpiredError reports a closed redirect window. The authorisation has
// already been marked FAILED when this error is returned.
type RedirectExpiredError struct {
	AuthorisationID string
	NokRedirectURI  string
}

func (e *RedirectExpiredError) Error() string {
	return fmt.Sprintf("redirect url for authorisation %s has expired", e.AuthorisationID)
}

// Unwrap exposes the domain code so dErrors.HasCode(err, CodeRedirectExpired) holds.
func (e *RedirectExpiredError) Unwrap() error {
	return dErrors.New(dErrors.CodeRedirectExpired, "redirect url expired")
}

// AuthorisationMachine applies SCA status updates and expiry rules.
type AuthorisationMachine struct {
	store AuthorisationWriter
	options
}

// NewAuthorisationMachine creates an authorisation state machine writing through store.
func NewAuthorisationMachine(store AuthorisationWriter, opts ...Option) *AuthorisationMachine {
	return &AuthorisationMachine{store: store, options: newOptions(opts)}
}

// UpdateScaStatusAndAuthenticationData moves auth to newStatus and merges any
// non-empty authentication data.
//
// A finalised authorisation yields false without mutation. An expired one
// yields CodeAuthorisationExpired. Store errors, including CodeWrongChecksum,
// are returned unchanged.
func (m *AuthorisationMachine) UpdateScaStatusAndAuthenticationData(ctx context.Context, newStatus models.ScaStatus, auth *models.Authorisation, authData *models.AuthenticationData) (bool, error) {
	if auth == nil || auth.IsFinalised() {
		return false, nil
	}
	if auth.IsExpiredAt(requesttime.Now(ctx)) {
		if m.metrics != nil {
			m.metrics.IncrementExpired("authorisation")
		}
		m.log(ctx, slog.LevelInfo, "authorisation expired",
			"authorisation_id", auth.ExternalID,
			"instance_id", auth.InstanceID,
		)
		return false, dErrors.New(dErrors.CodeAuthorisationExpired,
			fmt.Sprintf("authorisation %s has expired", auth.ExternalID))
	}

	next := auth.Clone()
	next.ScaStatus = newStatus
	if authData != nil {
		if authData.AuthenticationMethodID != "" {
			next.AuthenticationMethodID = authData.AuthenticationMethodID
		}
		if authData.ScaAuthenticationData != "" {
			next.ScaAuthenticationData = authData.ScaAuthenticationData
		}
	}
	if err := m.save(ctx, auth, next); err != nil {
		return false, err
	}
	return true, nil
}

// CheckRedirect fails the authorisation when its redirect window has closed.
// A nil error means the redirect is still usable. Finalised authorisations are
// left alone.
func (m *AuthorisationMachine) CheckRedirect(ctx context.Context, auth *models.Authorisation) error {
	if auth.IsFinalised() || !auth.IsRedirectExpiredAt(requesttime.Now(ctx)) {
		return nil
	}
	next := auth.Clone()
	next.ScaStatus = models.ScaStatusFailed
	if err := m.save(ctx, auth, next); err != nil {
		return err
	}
	if m.metrics != nil {
		m.metrics.IncrementRedirectExpired()
	}
	m.log(ctx, slog.LevelInfo, "redirect url expired",
		"authorisation_id", auth.ExternalID,
		"instance_id", auth.InstanceID,
	)
	return &RedirectExpiredError{AuthorisationID: auth.ExternalID, NokRedirectURI: auth.TppNokRedirectURI}
}

// FailAuthorisation marks a non-finalised authorisation FAILED.
func (m *AuthorisationMachine) FailAuthorisation(ctx context.Context, auth *models.Authorisation) (bool, error) {
	if auth == nil || auth.IsFinalised() {
		return false, nil
	}
	next := auth.Clone()
	next.ScaStatus = models.ScaStatusFailed
	if err := m.save(ctx, auth, next); err != nil {
		return false, err
	}
	return true, nil
}

func (m *AuthorisationMachine) save(ctx context.Context, auth, next *models.Authorisation) error {
	if _, err := m.store.VerifyAndUpdateAuthorisation(ctx, next); err != nil {
		return err
	}
	*auth = *next
	if m.metrics != nil {
		m.metrics.IncrementScaTransition(string(next.ScaStatus))
	}
	m.log(ctx, slog.LevelInfo, "sca status changed",
		"authorisation_id", auth.ExternalID,
		"instance_id", auth.InstanceID,
		"sca_status", next.ScaStatus,
	)
	return nil
}
