// Package quota tracks per-day access counts against a consent's allowance.
package quota

import (
	"time"

	"cms/internal/consent/models"
)

// Remaining returns the accesses left for day. It never goes below zero.
func Remaining(frequencyPerDay int, usages map[string]int, day time.Time) int {
	left := frequencyPerDay - usages[day.Format(models.DateLayout)]
	if left < 0 {
		return 0
	}
	return left
}

// RemainingQuota returns the accesses left on consent for day.
func RemainingQuota(consent *models.Consent, day time.Time) int {
	if consent == nil {
		return 0
	}
	return Remaining(consent.FrequencyPerDay, consent.Usages, day)
}

// Reset drops all recorded usage. Called when the quota itself is replaced.
func Reset(consent *models.Consent) {
	if consent == nil {
		return
	}
	consent.Usages = map[string]int{}
}
