package pool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMintDecodeRoundTrip(t *testing.T) {
	at := time.UnixMilli(1700000000000)
	token := MintToken(KindAccess, "identity-abc", at)

	decoded, err := DecodeToken(token)
	require.NoError(t, err)
	assert.Equal(t, KindAccess, decoded.Kind)
	assert.Equal(t, "identity-abc", decoded.IdentityID)
	assert.True(t, decoded.IssuedAt.Equal(at))
}

func TestDecodeIdentityIDWithUnderscores(t *testing.T) {
	at := time.UnixMilli(1700000000000)
	token := MintToken(KindRefresh, "google_g-123456789", at)

	decoded, err := DecodeToken(token)
	require.NoError(t, err)
	assert.Equal(t, "google_g-123456789", decoded.IdentityID)
	assert.Equal(t, KindRefresh, decoded.Kind)
}

func TestDecodeRejectsBadShapes(t *testing.T) {
	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"no separators", "accessidentity1700000000000"},
		{"one separator", "access_1700000000000"},
		{"unknown kind", "session_identity-abc_1700000000000"},
		{"non-numeric timestamp", "access_identity-abc_later"},
		{"zero timestamp", "access_identity-abc_0"},
		{"trailing separator", "access_identity-abc_"},
		{"leading separator", "_identity-abc_1700000000000"},
		{"jwt", "eyJhbGciOi.eyJzdWIiOi.sig"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeToken(tt.token)
			assert.ErrorIs(t, err, ErrNotFederatedToken)
			assert.False(t, IsFederatedShape(tt.token))
		})
	}
}

func TestExpiryBoundary(t *testing.T) {
	minted := time.UnixMilli(1700000000000)
	decoded := &DecodedToken{Kind: KindAccess, IdentityID: "id", IssuedAt: minted}

	// One millisecond under the window is still valid; reaching it is not.
	assert.False(t, decoded.Expired(minted.Add(MaxTokenAge-time.Millisecond)))
	assert.True(t, decoded.Expired(minted.Add(MaxTokenAge)))
	assert.True(t, decoded.Expired(minted.Add(MaxTokenAge+time.Hour)))
}

func TestMintTokenSetSharesTimestamp(t *testing.T) {
	at := time.UnixMilli(1700000000000)
	set := MintTokenSet("identity-abc", at)

	require.True(t, set.Complete())
	assert.Equal(t, 3600, set.ExpiresIn)

	for _, token := range []string{set.AccessToken, set.IDToken, set.RefreshToken} {
		decoded, err := DecodeToken(token)
		require.NoError(t, err)
		assert.Equal(t, "identity-abc", decoded.IdentityID)
		assert.True(t, decoded.IssuedAt.Equal(at))
	}

	access, _ := DecodeToken(set.AccessToken)
	id, _ := DecodeToken(set.IDToken)
	refresh, _ := DecodeToken(set.RefreshToken)
	assert.Equal(t, KindAccess, access.Kind)
	assert.Equal(t, KindID, id.Kind)
	assert.Equal(t, KindRefresh, refresh.Kind)
}
