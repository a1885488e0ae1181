// Package checksum computes the optimistic-concurrency tokens stored alongside
// consents and authorisations.
//
// A token is "<version>_<base64 sha512>" over the entity's significant fields
// and its revision. Timestamps are normalised to UTC microseconds so a value
// survives a round trip through any of the store backends unchanged.
package checksum

import (
	"crypto/sha512"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"cms/internal/consent/models"
)

// Version prefixes every token produced by this package.
const Version = "001"

const separator = "_"

type psuIdentity struct {
	ID              string `json:"id"`
	IDType          string `json:"idType"`
	CorporateID     string `json:"corporateId"`
	CorporateIDType string `json:"corporateIdType"`
}

type consentFields struct {
	ExternalID            string               `json:"externalId"`
	InstanceID            string               `json:"instanceId"`
	Type                  models.ConsentType   `json:"type"`
	Status                models.ConsentStatus `json:"status"`
	ValidUntil            string               `json:"validUntil"`
	FrequencyPerDay       int                  `json:"frequencyPerDay"`
	Usages                map[string]int       `json:"usages"`
	Psus                  []psuIdentity        `json:"psus"`
	MultilevelScaRequired bool                 `json:"multilevel"`
	RecurringIndicator    bool                 `json:"recurring"`
	AspspAccess           models.AccountAccess `json:"aspspAccess"`
	TppAccess             models.AccountAccess `json:"tppAccess"`
	TppInfo               models.TppInfo       `json:"tppInfo"`
	Data                  string               `json:"data"`
	StatusChangeTimestamp string               `json:"statusChangedAt"`
	Revision              int64                `json:"revision"`
}

type authorisationFields struct {
	ExternalID             string                   `json:"externalId"`
	ParentExternalID       string                   `json:"parentExternalId"`
	InstanceID             string                   `json:"instanceId"`
	Type                   models.AuthorisationType `json:"type"`
	ScaStatus              models.ScaStatus         `json:"scaStatus"`
	Psu                    *psuIdentity             `json:"psu"`
	RedirectURLExpiresAt   string                   `json:"redirectExpiresAt"`
	AuthorisationExpiresAt string                   `json:"authorisationExpiresAt"`
	AuthenticationMethodID string                   `json:"authenticationMethodId"`
	ScaAuthenticationData  string                   `json:"scaAuthenticationData"`
	Revision               int64                    `json:"revision"`
}

// ForConsent returns the token for c at its current Revision.
func ForConsent(c *models.Consent) string {
	fields := consentFields{
		ExternalID:            c.ExternalID,
		InstanceID:            c.InstanceID,
		Type:                  c.Type,
		Status:                c.Status,
		ValidUntil:            date(c.ValidUntil),
		FrequencyPerDay:       c.FrequencyPerDay,
		Usages:                nonNilUsages(c.Usages),
		Psus:                  identities(c.PsuDataList),
		MultilevelScaRequired: c.MultilevelScaRequired,
		RecurringIndicator:    c.RecurringIndicator,
		AspspAccess:           c.AspspAccountAccesses,
		TppAccess:             c.TppAccountAccesses,
		TppInfo:               c.TppInfo,
		Data:                  base64.StdEncoding.EncodeToString(c.Data),
		StatusChangeTimestamp: instant(c.StatusChangeTimestamp),
		Revision:              c.Revision,
	}
	return digest(fields)
}

// ForAuthorisation returns the token for a at its current Revision.
func ForAuthorisation(a *models.Authorisation) string {
	fields := authorisationFields{
		ExternalID:             a.ExternalID,
		ParentExternalID:       a.ParentExternalID,
		InstanceID:             a.InstanceID,
		Type:                   a.Type,
		ScaStatus:              a.ScaStatus,
		RedirectURLExpiresAt:   instant(a.RedirectURLExpiresAt),
		AuthorisationExpiresAt: instant(a.AuthorisationExpiresAt),
		AuthenticationMethodID: a.AuthenticationMethodID,
		ScaAuthenticationData:  a.ScaAuthenticationData,
		Revision:               a.Revision,
	}
	if a.PsuData != nil {
		p := identityOf(*a.PsuData)
		fields.Psu = &p
	}
	return digest(fields)
}

// Matches reports whether token was produced for the same content as expected.
// Tokens from an unknown version never match.
func Matches(token, expected string) bool {
	if !strings.HasPrefix(token, Version+separator) {
		return false
	}
	return token == expected
}

func digest(v any) string {
	// Marshalling plain structs of strings, ints and maps with string keys cannot fail.
	body, _ := json.Marshal(v)
	sum := sha512.Sum512(body)
	return Version + separator + base64.StdEncoding.EncodeToString(sum[:])
}

func identityOf(p models.PsuData) psuIdentity {
	return psuIdentity{
		ID:              p.PsuID,
		IDType:          p.PsuIDType,
		CorporateID:     p.PsuCorporateID,
		CorporateIDType: p.PsuCorporateIDType,
	}
}

func identities(list []models.PsuData) []psuIdentity {
	out := make([]psuIdentity, 0, len(list))
	for _, p := range list {
		out = append(out, identityOf(p))
	}
	return out
}

func nonNilUsages(u map[string]int) map[string]int {
	if u == nil {
		return map[string]int{}
	}
	return u
}

func date(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(models.DateLayout)
}

func instant(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Truncate(time.Microsecond).Format(time.RFC3339Nano)
}
