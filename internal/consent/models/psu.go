package models

import (
	"log/slog"

	"github.com/google/uuid"

	"cms/internal/platform/privacy"
)

// PsuData identifies a payment service user. PsuIPAddress varies per call and
// is never part of identity comparisons.
type PsuData struct {
	ID                 uuid.UUID `json:"id"`
	PsuID              string    `json:"psuId,omitempty"`
	PsuIDType          string    `json:"psuIdType,omitempty"`
	PsuCorporateID     string    `json:"psuCorporateId,omitempty"`
	PsuCorporateIDType string    `json:"psuCorporateIdType,omitempty"`
	PsuIPAddress       string    `json:"psuIpAddress,omitempty"`
}

// IsEmpty reports whether none of the identity fields are set.
func (p *PsuData) IsEmpty() bool {
	return p == nil || (p.PsuID == "" && p.PsuIDType == "" && p.PsuCorporateID == "" && p.PsuCorporateIDType == "")
}

// LogValue keeps raw identifiers out of logs.
func (p PsuData) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("psu_hash", privacy.HashIdentifier(p.PsuID)),
		slog.String("psu_id_type", p.PsuIDType),
		slog.String("corporate_hash", privacy.HashIdentifier(p.PsuCorporateID)),
		slog.String("ip", privacy.AnonymizeIP(p.PsuIPAddress)),
	)
}
