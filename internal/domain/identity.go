package domain

// Identity is an authenticated principal. PublicKey is the stable identifier
// and the only credential checked for ownership.
type Identity struct {
	Alias     string `json:"alias"`
	PublicKey string `json:"public_key"`
}

// IsZero reports whether no identity is set.
func (i Identity) IsZero() bool {
	return i.PublicKey == ""
}
