package lifecycle

import (
	"context"
	"log/slog"

	"cms/internal/consent/models"
	"cms/pkg/platform/middleware/requesttime"
)

// consentTransitions lists the moves allowed out of each non-finalised status,
// in addition to the closing moves every non-finalised status allows.
var consentTransitions = map[models.ConsentStatus]map[models.ConsentStatus]bool{
	models.ConsentStatusReceived: {
		models.ConsentStatusValid:               true,
		models.ConsentStatusPartiallyAuthorised: true,
		models.ConsentStatusRejected:            true,
	},
	models.ConsentStatusPartiallyAuthorised: {
		models.ConsentStatusValid:               true,
		models.ConsentStatusPartiallyAuthorised: true,
	},
}

var closingStatuses = map[models.ConsentStatus]bool{
	models.ConsentStatusRevokedByPsu:    true,
	models.ConsentStatusTerminatedByTpp: true,
	models.ConsentStatusExpired:         true,
}

// CanTransition reports whether a consent in status from may move to status to.
func CanTransition(from, to models.ConsentStatus) bool {
	if from.IsFinalised() {
		return false
	}
	if closingStatuses[to] {
		return true
	}
	return consentTransitions[from][to]
}

// ConsentMachine applies consent status transitions.
type ConsentMachine struct {
	store ConsentWriter
	options
}

// NewConsentMachine creates a consent state machine writing through store.
func NewConsentMachine(store ConsentWriter, opts ...Option) *ConsentMachine {
	return &ConsentMachine{store: store, options: newOptions(opts)}
}

// Confirm moves the consent to VALID. Multilevel completeness is not checked
// here; callers confirm only once they consider all authorisations done.
func (m *ConsentMachine) Confirm(ctx context.Context, consent *models.Consent) (bool, error) {
	return m.transition(ctx, consent, models.ConsentStatusValid, nil)
}

// Reject moves the consent to REJECTED.
func (m *ConsentMachine) Reject(ctx context.Context, consent *models.Consent) (bool, error) {
	return m.transition(ctx, consent, models.ConsentStatusRejected, nil)
}

// Revoke moves the consent to REVOKED_BY_PSU.
func (m *ConsentMachine) Revoke(ctx context.Context, consent *models.Consent) (bool, error) {
	return m.transition(ctx, consent, models.ConsentStatusRevokedByPsu, nil)
}

// AuthorisePartially moves the consent to PARTIALLY_AUTHORISED and marks it multilevel.
func (m *ConsentMachine) AuthorisePartially(ctx context.Context, consent *models.Consent) (bool, error) {
	return m.transition(ctx, consent, models.ConsentStatusPartiallyAuthorised, func(c *models.Consent) {
		c.MultilevelScaRequired = true
	})
}

// Terminate moves the consent to TERMINATED_BY_TPP.
func (m *ConsentMachine) Terminate(ctx context.Context, consent *models.Consent) (bool, error) {
	return m.transition(ctx, consent, models.ConsentStatusTerminatedByTpp, nil)
}

// Expire moves the consent to EXPIRED.
func (m *ConsentMachine) Expire(ctx context.Context, consent *models.Consent) (bool, error) {
	return m.transition(ctx, consent, models.ConsentStatusExpired, nil)
}

// ExpireIfNeeded expires a non-finalised consent whose validity date has passed
// at the request time. It returns true only when it changed the status.
func (m *ConsentMachine) ExpireIfNeeded(ctx context.Context, consent *models.Consent) (bool, error) {
	if consent.IsFinalised() || !consent.IsExpiredAt(requesttime.Now(ctx)) {
		return false, nil
	}
	expired, err := m.Expire(ctx, consent)
	if err != nil {
		return false, err
	}
	if expired && m.metrics != nil {
		m.metrics.IncrementExpired("consent")
	}
	return expired, nil
}

func (m *ConsentMachine) transition(ctx context.Context, consent *models.Consent, to models.ConsentStatus, mutate func(*models.Consent)) (bool, error) {
	if consent == nil {
		return false, nil
	}
	if !CanTransition(consent.Status, to) {
		if m.metrics != nil {
			m.metrics.IncrementConsentTransitionDenied(string(to))
		}
		m.log(ctx, slog.LevelInfo, "consent transition refused",
			"consent_id", consent.ExternalID,
			"instance_id", consent.InstanceID,
			"from", consent.Status,
			"to", to,
		)
		return false, nil
	}

	now := requesttime.Now(ctx)
	next := consent.Clone()
	next.Status = to
	next.StatusChangeTimestamp = now
	next.LastActionDate = now
	if mutate != nil {
		mutate(next)
	}
	if _, err := m.store.VerifyAndUpdate(ctx, next); err != nil {
		return false, err
	}
	*consent = *next

	if m.metrics != nil {
		m.metrics.IncrementConsentTransition(string(to))
	}
	m.log(ctx, slog.LevelInfo, "consent status changed",
		"consent_id", consent.ExternalID,
		"instance_id", consent.InstanceID,
		"status", to,
	)
	return true, nil
}
