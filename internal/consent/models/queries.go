package models

// Page selects a window of a list result. A zero Size means no limit.
type Page struct {
	Number int
	Size   int
}

// Bounds returns the half-open [start, end) slice bounds for a list of n items.
func (p Page) Bounds(n int) (int, int) {
	if p.Size <= 0 {
		return 0, n
	}
	start := p.Number * p.Size
	if p.Number < 0 || start >= n {
		return n, n
	}
	end := start + p.Size
	if end > n {
		end = n
	}
	return start, end
}

// Offset returns the row offset for SQL paging.
func (p Page) Offset() int {
	if p.Size <= 0 || p.Number < 0 {
		return 0
	}
	return p.Number * p.Size
}

// PsuConsentQuery selects consents of one PSU within an instance.
type PsuConsentQuery struct {
	Psu        PsuData
	InstanceID string
	Type       ConsentType
	Page       Page
}

// OldConsentQuery selects non-finalised consents of one TPP that a newer
// recurring consent may supersede.
type OldConsentQuery struct {
	TppAuthorisationNumber string
	InstanceID             string
	Type                   ConsentType
	ExcludeExternalID      string
}

// ParentQuery selects the authorisations of one consent. An empty Type matches all types.
type ParentQuery struct {
	ParentExternalID string
	InstanceID       string
	Type             AuthorisationType
	Page             Page
}
