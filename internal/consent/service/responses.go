package service

import "cms/internal/consent/models"

// RedirectResponse is the result of a successful redirect check.
type RedirectResponse struct {
	Consent           *models.Consent
	AuthorisationID   string
	TppOkRedirectURI  string
	TppNokRedirectURI string
}

// PsuDataAuthorisation pairs an authorisation with the PSU that performs it.
type PsuDataAuthorisation struct {
	AuthorisationID string
	Type            models.AuthorisationType
	ScaStatus       models.ScaStatus
	PsuData         models.PsuData
}
