package models

import (
	"time"

	"github.com/google/uuid"
)

// DateLayout is the calendar-day format used for usage counters and validity dates.
const DateLayout = "2006-01-02"

// Consent is a stored grant of access scope together with its lifecycle state.
//
// Once Status is finalised the record is frozen: the lifecycle machines refuse
// every further transition and the store never deletes the row.
type Consent struct {
	ID                    uuid.UUID
	ExternalID            string
	InstanceID            string
	Type                  ConsentType
	Status                ConsentStatus
	ValidUntil            time.Time
	FrequencyPerDay       int
	Usages                map[string]int
	PsuDataList           []PsuData
	MultilevelScaRequired bool
	RecurringIndicator    bool
	AspspAccountAccesses  AccountAccess
	TppAccountAccesses    AccountAccess
	TppInfo               TppInfo
	Data                  []byte
	CreationTimestamp     time.Time
	StatusChangeTimestamp time.Time
	LastActionDate        time.Time

	// Revision and Checksum form the optimistic-concurrency token captured at load time.
	Revision int64
	Checksum string
}

// IsFinalised reports whether the consent has reached a terminal status.
func (c *Consent) IsFinalised() bool {
	return c == nil || c.Status.IsFinalised()
}

// IsExpiredAt reports whether the validity date lies before the calendar day of now.
// A consent stays valid for the whole of its ValidUntil day.
func (c *Consent) IsExpiredAt(now time.Time) bool {
	if c == nil || c.ValidUntil.IsZero() {
		return false
	}
	return Day(c.ValidUntil).Before(Day(now))
}

// UsageOn returns the recorded access count for the given day.
func (c *Consent) UsageOn(day time.Time) int {
	if c == nil || c.Usages == nil {
		return 0
	}
	return c.Usages[day.Format(DateLayout)]
}

// Clone returns a deep copy so callers never share slices or maps with a store.
func (c *Consent) Clone() *Consent {
	if c == nil {
		return nil
	}
	cp := *c
	if c.Usages != nil {
		cp.Usages = make(map[string]int, len(c.Usages))
		for k, v := range c.Usages {
			cp.Usages[k] = v
		}
	}
	if c.PsuDataList != nil {
		cp.PsuDataList = append([]PsuData(nil), c.PsuDataList...)
	}
	cp.AspspAccountAccesses = c.AspspAccountAccesses.Clone()
	cp.TppAccountAccesses = c.TppAccountAccesses.Clone()
	if c.Data != nil {
		cp.Data = append([]byte(nil), c.Data...)
	}
	return &cp
}

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
