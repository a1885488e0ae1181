package models

// AccountReference points at one account by any of the supported identifiers.
type AccountReference struct {
	ResourceID string `json:"resourceId,omitempty"`
	IBAN       string `json:"iban,omitempty"`
	BBAN       string `json:"bban,omitempty"`
	PAN        string `json:"pan,omitempty"`
	MaskedPAN  string `json:"maskedPan,omitempty"`
	MSISDN     string `json:"msisdn,omitempty"`
	Currency   string `json:"currency,omitempty"`
}

// AccountAccess is the access scope granted (or requested) by an AIS consent.
type AccountAccess struct {
	Accounts             []AccountReference `json:"accounts,omitempty"`
	Balances             []AccountReference `json:"balances,omitempty"`
	Transactions         []AccountReference `json:"transactions,omitempty"`
	AvailableAccounts    AccountAccessType  `json:"availableAccounts,omitempty"`
	AllPsd2              AccountAccessType  `json:"allPsd2,omitempty"`
	AvailableWithBalance AccountAccessType  `json:"availableAccountsWithBalance,omitempty"`
}

// IsEmpty reports whether the access grants nothing.
func (a AccountAccess) IsEmpty() bool {
	return len(a.Accounts) == 0 && len(a.Balances) == 0 && len(a.Transactions) == 0 &&
		a.AvailableAccounts == "" && a.AllPsd2 == "" && a.AvailableWithBalance == ""
}

// Clone returns a copy that shares no slices with a.
func (a AccountAccess) Clone() AccountAccess {
	return AccountAccess{
		Accounts:             cloneRefs(a.Accounts),
		Balances:             cloneRefs(a.Balances),
		Transactions:         cloneRefs(a.Transactions),
		AvailableAccounts:    a.AvailableAccounts,
		AllPsd2:              a.AllPsd2,
		AvailableWithBalance: a.AvailableWithBalance,
	}
}

func cloneRefs(in []AccountReference) []AccountReference {
	if in == nil {
		return nil
	}
	return append([]AccountReference(nil), in...)
}

// TppInfo describes the third-party provider that initiated the consent.
type TppInfo struct {
	AuthorisationNumber string `json:"authorisationNumber"`
	RedirectURI         string `json:"redirectUri,omitempty"`
	NokRedirectURI      string `json:"nokRedirectUri,omitempty"`
}
