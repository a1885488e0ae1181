// Package psu reconciles payment service user identities across authorisation
// attempts. Identity is the tuple of the four id fields; the IP address is
// ignored everywhere.
package psu

import "cms/internal/consent/models"

type identity struct {
	id, idType, corporateID, corporateIDType string
}

func identityOf(p models.PsuData) identity {
	return identity{p.PsuID, p.PsuIDType, p.PsuCorporateID, p.PsuCorporateIDType}
}

// Matches reports whether a and b denote the same PSU.
func Matches(a, b *models.PsuData) bool {
	if a == nil || b == nil {
		return false
	}
	return identityOf(*a) == identityOf(*b)
}

// ContainsIdentity reports whether list holds an entry matching candidate.
func ContainsIdentity(list []models.PsuData, candidate *models.PsuData) bool {
	return indexOf(list, candidate) >= 0
}

func indexOf(list []models.PsuData, candidate *models.PsuData) int {
	if candidate == nil {
		return -1
	}
	for i := range list {
		if Matches(&list[i], candidate) {
			return i
		}
	}
	return -1
}

// DefinePsuDataForAuthorisation returns the existing list entry matching
// candidate, keeping its store-assigned id, or candidate itself when the PSU
// is new to the list.
func DefinePsuDataForAuthorisation(candidate *models.PsuData, list []models.PsuData) *models.PsuData {
	if candidate == nil {
		return nil
	}
	if i := indexOf(list, candidate); i >= 0 {
		existing := list[i]
		return &existing
	}
	cp := *candidate
	return &cp
}

// EnrichPsuData returns a new list with candidate appended when no entry
// matches it. Otherwise the original list is returned unchanged.
func EnrichPsuData(candidate *models.PsuData, list []models.PsuData) []models.PsuData {
	if candidate == nil || ContainsIdentity(list, candidate) {
		return list
	}
	out := make([]models.PsuData, 0, len(list)+1)
	out = append(out, list...)
	return append(out, *candidate)
}

// IsPsuDataNew reports whether candidate is absent from list. A nil candidate is never new.
func IsPsuDataNew(candidate *models.PsuData, list []models.PsuData) bool {
	if candidate == nil {
		return false
	}
	return !ContainsIdentity(list, candidate)
}

// IsPsuDataListEqual compares two lists as sets of identities, ignoring order,
// duplicates, ids and IP addresses.
func IsPsuDataListEqual(a, b []models.PsuData) bool {
	return sameSet(identitySet(a), identitySet(b))
}

func identitySet(list []models.PsuData) map[identity]struct{} {
	set := make(map[identity]struct{}, len(list))
	for _, p := range list {
		set[identityOf(p)] = struct{}{}
	}
	return set
}

func sameSet(a, b map[identity]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
