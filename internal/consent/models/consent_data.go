package models

import (
	"encoding/json"
	"fmt"

	"cms/pkg/platform/sentinel"
)

// Stored consent data blobs start with a schema version byte followed by JSON.
const (
	ConsentDataV1 byte = 1
	ConsentDataV2 byte = 2

	CurrentConsentDataVersion = ConsentDataV2
)

// ConsentData is the in-memory shape of the opaque per-consent payload.
type ConsentData struct {
	CombinedServiceIndicator     bool              `json:"combinedServiceIndicator"`
	AvailableAccounts            AccountAccessType `json:"availableAccounts,omitempty"`
	AvailableAccountsWithBalance AccountAccessType `json:"availableAccountsWithBalance,omitempty"`
	AllPsd2                      AccountAccessType `json:"allPsd2,omitempty"`
	AdditionalInformation        map[string]string `json:"additionalInformation,omitempty"`
}

type consentDataV1 struct {
	CombinedServiceIndicator bool              `json:"combinedServiceIndicator"`
	AvailableAccounts        AccountAccessType `json:"availableAccounts,omitempty"`
}

// upgradeV1 lifts a v1 payload into the v2 shape. Fields introduced in v2 stay empty.
func upgradeV1(v1 consentDataV1) ConsentData {
	return ConsentData{
		CombinedServiceIndicator: v1.CombinedServiceIndicator,
		AvailableAccounts:        v1.AvailableAccounts,
	}
}

// EncodeConsentData always writes the current schema version.
func EncodeConsentData(d ConsentData) ([]byte, error) {
	body, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode consent data: %w", err)
	}
	return append([]byte{CurrentConsentDataVersion}, body...), nil
}

// DecodeConsentData dispatches on the version byte and upgrades older payloads
// in memory. The stored blob is never rewritten here.
func DecodeConsentData(blob []byte) (ConsentData, error) {
	if len(blob) == 0 {
		return ConsentData{}, nil
	}
	version, body := blob[0], blob[1:]
	switch version {
	case ConsentDataV1:
		var v1 consentDataV1
		if err := json.Unmarshal(body, &v1); err != nil {
			return ConsentData{}, fmt.Errorf("decode consent data v1: %w", err)
		}
		return upgradeV1(v1), nil
	case ConsentDataV2:
		var d ConsentData
		if err := json.Unmarshal(body, &d); err != nil {
			return ConsentData{}, fmt.Errorf("decode consent data v2: %w", err)
		}
		return d, nil
	default:
		return ConsentData{}, fmt.Errorf("unknown consent data version %d: %w", version, sentinel.ErrInvalidInput)
	}
}

// ConsentDataVersion returns the schema version stored in blob, or 0 when empty.
func ConsentDataVersion(blob []byte) byte {
	if len(blob) == 0 {
		return 0
	}
	return blob[0]
}
