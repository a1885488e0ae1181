package models

// ConsentType identifies which open-finance domain a consent belongs to.
type ConsentType string

const (
	ConsentTypeAIS  ConsentType = "AIS"
	ConsentTypePIS  ConsentType = "PIS"
	ConsentTypePIIS ConsentType = "PIIS"
)

// IsValid checks if the consent type is one of the supported enum values.
func (t ConsentType) IsValid() bool {
	return t == ConsentTypeAIS || t == ConsentTypePIS || t == ConsentTypePIIS
}

// ConsentStatus represents the lifecycle state of a consent.
type ConsentStatus string

const (
	ConsentStatusReceived            ConsentStatus = "RECEIVED"
	ConsentStatusValid               ConsentStatus = "VALID"
	ConsentStatusPartiallyAuthorised ConsentStatus = "PARTIALLY_AUTHORISED"
	ConsentStatusRejected            ConsentStatus = "REJECTED"
	ConsentStatusExpired             ConsentStatus = "EXPIRED"
	ConsentStatusRevokedByPsu        ConsentStatus = "REVOKED_BY_PSU"
	ConsentStatusTerminatedByTpp     ConsentStatus = "TERMINATED_BY_TPP"
)

// finalisedConsentStatuses is the single source of truth for terminal consent states.
var finalisedConsentStatuses = map[ConsentStatus]bool{
	ConsentStatusRejected:        true,
	ConsentStatusExpired:         true,
	ConsentStatusRevokedByPsu:    true,
	ConsentStatusTerminatedByTpp: true,
}

// IsValid checks if the status is one of the supported enum values.
func (s ConsentStatus) IsValid() bool {
	switch s {
	case ConsentStatusReceived, ConsentStatusValid, ConsentStatusPartiallyAuthorised:
		return true
	}
	return finalisedConsentStatuses[s]
}

// IsFinalised reports whether the status is terminal. Unknown or empty
// statuses count as finalised so that no transition is ever applied to them.
func (s ConsentStatus) IsFinalised() bool {
	if !s.IsValid() {
		return true
	}
	return finalisedConsentStatuses[s]
}

// ScaStatus represents the state of one strong-customer-authentication flow.
type ScaStatus string

const (
	ScaStatusReceived          ScaStatus = "RECEIVED"
	ScaStatusPsuIdentified     ScaStatus = "PSUIDENTIFIED"
	ScaStatusPsuAuthenticated  ScaStatus = "PSUAUTHENTICATED"
	ScaStatusScaMethodSelected ScaStatus = "SCAMETHODSELECTED"
	ScaStatusFinalised         ScaStatus = "FINALISED"
	ScaStatusFailed            ScaStatus = "FAILED"
)

// IsValid checks if the SCA status is one of the supported enum values.
func (s ScaStatus) IsValid() bool {
	switch s {
	case ScaStatusReceived, ScaStatusPsuIdentified, ScaStatusPsuAuthenticated,
		ScaStatusScaMethodSelected, ScaStatusFinalised, ScaStatusFailed:
		return true
	}
	return false
}

// IsFinalised reports whether no further SCA status update may be applied.
func (s ScaStatus) IsFinalised() bool {
	return s == ScaStatusFinalised || s == ScaStatusFailed
}

// AuthorisationType names the flow an authorisation belongs to.
type AuthorisationType string

const (
	AuthorisationTypeAIS             AuthorisationType = "AIS"
	AuthorisationTypePISCreation     AuthorisationType = "PIS_CREATION"
	AuthorisationTypePISCancellation AuthorisationType = "PIS_CANCELLATION"
	AuthorisationTypeConsent         AuthorisationType = "CONSENT"
	AuthorisationTypePIIS            AuthorisationType = "PIIS"
)

// IsValid checks if the authorisation type is one of the supported enum values.
func (t AuthorisationType) IsValid() bool {
	switch t {
	case AuthorisationTypeAIS, AuthorisationTypePISCreation, AuthorisationTypePISCancellation,
		AuthorisationTypeConsent, AuthorisationTypePIIS:
		return true
	}
	return false
}

// AccountAccessType is the bulk access flag an AIS consent can request instead
// of enumerating accounts.
type AccountAccessType string

const (
	AccountAccessAllAccounts      AccountAccessType = "ALL_ACCOUNTS"
	AccountAccessAllAccountsOwner AccountAccessType = "ALL_ACCOUNTS_WITH_OWNER_NAME"
)
