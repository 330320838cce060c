package domain

// FederatedTokenTTLSeconds is the fixed lifetime of a freshly minted federated
// token set.
const FederatedTokenTTLSeconds = 3600

// PoolTokenSet is the opaque session material issued for one authenticated
// session. All three token strings are non-empty and ExpiresIn is positive
// whenever a PoolTokenSet is returned without error.
type PoolTokenSet struct {
	AccessToken  string `json:"access_token"`
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// Complete reports whether every field carries a usable value.
func (t *PoolTokenSet) Complete() bool {
	return t != nil &&
		t.AccessToken != "" &&
		t.IDToken != "" &&
		t.RefreshToken != "" &&
		t.ExpiresIn > 0
}
