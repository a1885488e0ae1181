package models

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"cms/pkg/platform/sentinel"
	"cms/pkg/platform/validation"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// CreateConsentRequest describes a new consent as received on initiation.
type CreateConsentRequest struct {
	InstanceID         string      `validate:"required"`
	Type               ConsentType `validate:"required,oneof=AIS PIS PIIS"`
	ValidUntil         time.Time   `validate:"required"`
	FrequencyPerDay    int         `validate:"gte=1"`
	RecurringIndicator bool
	PsuDataList        []PsuData
	TppInfo            TppInfo
	TppAccess          AccountAccess
	Data               ConsentData
}

// Validate checks that the request is well-formed.
func (r *CreateConsentRequest) Validate() error {
	if r == nil {
		return fmt.Errorf("request is required: %w", sentinel.ErrInvalidInput)
	}
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%s: %w", err.Error(), sentinel.ErrInvalidInput)
	}
	if r.TppInfo.AuthorisationNumber == "" {
		return fmt.Errorf("tpp authorisation number is required: %w", sentinel.ErrInvalidInput)
	}
	if err := validation.FirstError(
		validation.CheckStringLength("tpp authorisation number", r.TppInfo.AuthorisationNumber, validation.MaxAuthorisationNumber),
		validation.CheckStringLength("tpp redirect uri", r.TppInfo.RedirectURI, validation.MaxRedirectURILength),
		validation.CheckStringLength("tpp nok redirect uri", r.TppInfo.NokRedirectURI, validation.MaxRedirectURILength),
		validation.CheckSliceCount("psu data", len(r.PsuDataList), validation.MaxPsuDataPerConsent),
		checkAccessLimits(r.TppAccess),
	); err != nil {
		return err
	}
	for _, p := range r.PsuDataList {
		if err := checkPsuLimits(&p); err != nil {
			return err
		}
	}
	return nil
}

func checkAccessLimits(a AccountAccess) error {
	return validation.FirstError(
		validation.CheckSliceCount("accounts", len(a.Accounts), validation.MaxAccountReferences),
		validation.CheckSliceCount("balances", len(a.Balances), validation.MaxAccountReferences),
		validation.CheckSliceCount("transactions", len(a.Transactions), validation.MaxAccountReferences),
	)
}

func checkPsuLimits(p *PsuData) error {
	if p == nil {
		return nil
	}
	return validation.FirstError(
		validation.CheckStringLength("psu id", p.PsuID, validation.MaxPsuIdentifierLength),
		validation.CheckStringLength("psu corporate id", p.PsuCorporateID, validation.MaxPsuIdentifierLength),
	)
}

// CreateAuthorisationRequest starts a new SCA flow for an existing consent.
type CreateAuthorisationRequest struct {
	ParentExternalID  string            `validate:"required"`
	InstanceID        string            `validate:"required"`
	Type              AuthorisationType `validate:"required,oneof=AIS PIS_CREATION PIS_CANCELLATION CONSENT PIIS"`
	ScaStatus         ScaStatus
	PsuData           *PsuData
	TppOkRedirectURI  string `validate:"omitempty,url"`
	TppNokRedirectURI string `validate:"omitempty,url"`
}

// Normalize applies business defaults.
func (r *CreateAuthorisationRequest) Normalize() {
	if r == nil {
		return
	}
	if r.ScaStatus == "" {
		r.ScaStatus = ScaStatusReceived
	}
	if r.PsuData.IsEmpty() {
		r.PsuData = nil
	}
}

// Validate checks that the request is well-formed.
func (r *CreateAuthorisationRequest) Validate() error {
	if r == nil {
		return fmt.Errorf("request is required: %w", sentinel.ErrInvalidInput)
	}
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%s: %w", err.Error(), sentinel.ErrInvalidInput)
	}
	if !r.ScaStatus.IsValid() {
		return fmt.Errorf("invalid sca status %q: %w", r.ScaStatus, sentinel.ErrInvalidInput)
	}
	return validation.FirstError(
		validation.CheckStringLength("tpp ok redirect uri", r.TppOkRedirectURI, validation.MaxRedirectURILength),
		validation.CheckStringLength("tpp nok redirect uri", r.TppNokRedirectURI, validation.MaxRedirectURILength),
		checkPsuLimits(r.PsuData),
	)
}

// UpdateAccountAccessRequest replaces the access scope, validity and quota of a consent.
type UpdateAccountAccessRequest struct {
	Access          AccountAccess
	ValidUntil      time.Time `validate:"required"`
	FrequencyPerDay int       `validate:"gte=0"`
}

// Validate checks that the request is well-formed.
func (r *UpdateAccountAccessRequest) Validate() error {
	if r == nil {
		return fmt.Errorf("request is required: %w", sentinel.ErrInvalidInput)
	}
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%s: %w", err.Error(), sentinel.ErrInvalidInput)
	}
	return checkAccessLimits(r.Access)
}
