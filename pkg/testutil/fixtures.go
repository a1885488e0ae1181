package testutil

import (
	"time"

	"github.com/google/uuid"

	"cms/internal/consent/models"
)

// DefaultInstance is the instance id used when a test does not care about tenancy.
const DefaultInstance = "UNDEFINED"

// FixedNow is a stable request time for tests that compare timestamps.
var FixedNow = time.Date(2026, 6, 15, 9, 0, 0, 0, time.UTC)

// ConsentBuilder provides a fluent interface for building test consents.
type ConsentBuilder struct {
	consent *models.Consent
}

// NewConsentBuilder creates a RECEIVED AIS consent valid for one month after FixedNow.
func NewConsentBuilder() *ConsentBuilder {
	return &ConsentBuilder{
		consent: &models.Consent{
			ExternalID:            uuid.NewString(),
			InstanceID:            DefaultInstance,
			Type:                  models.ConsentTypeAIS,
			Status:                models.ConsentStatusReceived,
			ValidUntil:            models.Day(FixedNow).AddDate(0, 1, 0),
			FrequencyPerDay:       4,
			Usages:                map[string]int{},
			TppInfo:               models.TppInfo{AuthorisationNumber: "PSDDE-BAFIN-000001"},
			CreationTimestamp:     FixedNow,
			StatusChangeTimestamp: FixedNow,
			LastActionDate:        FixedNow,
		},
	}
}

func (b *ConsentBuilder) WithExternalID(id string) *ConsentBuilder {
	b.consent.ExternalID = id
	return b
}

func (b *ConsentBuilder) WithInstance(instanceID string) *ConsentBuilder {
	b.consent.InstanceID = instanceID
	return b
}

func (b *ConsentBuilder) WithType(t models.ConsentType) *ConsentBuilder {
	b.consent.Type = t
	return b
}

func (b *ConsentBuilder) WithStatus(status models.ConsentStatus) *ConsentBuilder {
	b.consent.Status = status
	return b
}

func (b *ConsentBuilder) WithValidUntil(t time.Time) *ConsentBuilder {
	b.consent.ValidUntil = models.Day(t)
	return b
}

func (b *ConsentBuilder) WithPsu(psuIDs ...string) *ConsentBuilder {
	for _, id := range psuIDs {
		b.consent.PsuDataList = append(b.consent.PsuDataList, models.PsuData{PsuID: id})
	}
	return b
}

func (b *ConsentBuilder) WithTpp(authorisationNumber string) *ConsentBuilder {
	b.consent.TppInfo.AuthorisationNumber = authorisationNumber
	return b
}

func (b *ConsentBuilder) Recurring() *ConsentBuilder {
	b.consent.RecurringIndicator = true
	return b
}

func (b *ConsentBuilder) CreatedAt(t time.Time) *ConsentBuilder {
	b.consent.CreationTimestamp = t
	b.consent.StatusChangeTimestamp = t
	b.consent.LastActionDate = t
	return b
}

// Build returns a fresh copy so one builder can seed several consents.
func (b *ConsentBuilder) Build() *models.Consent {
	return b.consent.Clone()
}

// AuthorisationBuilder provides a fluent interface for building test authorisations.
type AuthorisationBuilder struct {
	auth *models.Authorisation
}

// NewAuthorisationBuilder creates a RECEIVED AIS authorisation of parent whose
// redirect closes ten minutes and whose flow closes one hour after FixedNow.
func NewAuthorisationBuilder(parent *models.Consent) *AuthorisationBuilder {
	return &AuthorisationBuilder{
		auth: &models.Authorisation{
			ExternalID:             uuid.NewString(),
			ParentExternalID:       parent.ExternalID,
			InstanceID:             parent.InstanceID,
			Type:                   models.AuthorisationTypeAIS,
			ScaStatus:              models.ScaStatusReceived,
			RedirectURLExpiresAt:   FixedNow.Add(10 * time.Minute),
			AuthorisationExpiresAt: FixedNow.Add(time.Hour),
			TppOkRedirectURI:       "https://tpp.example/ok",
			TppNokRedirectURI:      "https://tpp.example/nok",
			CreatedAt:              FixedNow,
		},
	}
}

func (b *AuthorisationBuilder) WithType(t models.AuthorisationType) *AuthorisationBuilder {
	b.auth.Type = t
	return b
}

func (b *AuthorisationBuilder) WithScaStatus(status models.ScaStatus) *AuthorisationBuilder {
	b.auth.ScaStatus = status
	return b
}

func (b *AuthorisationBuilder) WithPsu(psuID string) *AuthorisationBuilder {
	b.auth.PsuData = &models.PsuData{PsuID: psuID}
	return b
}

func (b *AuthorisationBuilder) RedirectExpiresAt(t time.Time) *AuthorisationBuilder {
	b.auth.RedirectURLExpiresAt = t
	return b
}

func (b *AuthorisationBuilder) ExpiresAt(t time.Time) *AuthorisationBuilder {
	b.auth.AuthorisationExpiresAt = t
	return b
}

func (b *AuthorisationBuilder) CreatedAt(t time.Time) *AuthorisationBuilder {
	b.auth.CreatedAt = t
	return b
}

func (b *AuthorisationBuilder) Build() *models.Authorisation {
	return b.auth.Clone()
}
