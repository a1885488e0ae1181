package models

import (
	"time"

	"github.com/google/uuid"
)

// Authorisation is one SCA attempt tied to a parent consent.
type Authorisation struct {
	ID                     uuid.UUID
	ExternalID             string
	ParentExternalID       string
	InstanceID             string
	Type                   AuthorisationType
	ScaStatus              ScaStatus
	PsuData                *PsuData
	RedirectURLExpiresAt   time.Time
	AuthorisationExpiresAt time.Time
	AuthenticationMethodID string
	ScaAuthenticationData  string
	TppOkRedirectURI       string
	TppNokRedirectURI      string
	CreatedAt              time.Time

	Revision int64
	Checksum string
}

// IsFinalised reports whether the SCA flow has ended.
func (a *Authorisation) IsFinalised() bool {
	return a == nil || a.ScaStatus.IsFinalised()
}

// IsRedirectExpiredAt reports whether the redirect window closed before now.
func (a *Authorisation) IsRedirectExpiredAt(now time.Time) bool {
	return !a.RedirectURLExpiresAt.IsZero() && a.RedirectURLExpiresAt.Before(now)
}

// IsExpiredAt reports whether the authorisation itself expired before now.
func (a *Authorisation) IsExpiredAt(now time.Time) bool {
	return !a.AuthorisationExpiresAt.IsZero() && a.AuthorisationExpiresAt.Before(now)
}

// Clone returns a deep copy of the authorisation.
func (a *Authorisation) Clone() *Authorisation {
	if a == nil {
		return nil
	}
	cp := *a
	if a.PsuData != nil {
		psu := *a.PsuData
		cp.PsuData = &psu
	}
	return &cp
}

// AuthenticationData carries the optional SCA details merged on a status update.
type AuthenticationData struct {
	AuthenticationMethodID string
	ScaAuthenticationData  string
}
