package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	require.NoError(t, Init(0))

	id := Identity{CommunityID: "comm-1", MemberID: "alice"}
	token, err := CreateToken(id)
	require.NoError(t, err)

	got, err := VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestVerifyTokenRejectsGarbage(t *testing.T) {
	require.NoError(t, Init(0))

	_, err := VerifyToken("not-a-jwt")
	assert.Error(t, err)

	_, err = VerifyToken("")
	assert.Error(t, err)
}

func TestVerifyTokenRejectsExpired(t *testing.T) {
	require.NoError(t, Init(-time.Hour))

	token, err := CreateToken(Identity{CommunityID: "comm-1", MemberID: "alice"})
	require.NoError(t, err)

	_, err = VerifyToken(token)
	assert.Error(t, err)
}

func TestVerifyTokenRejectsForeignKey(t *testing.T) {
	require.NoError(t, Init(0))
	token, err := CreateToken(Identity{CommunityID: "comm-1", MemberID: "alice"})
	require.NoError(t, err)

	// Rotating the key pair invalidates previously issued tokens.
	require.NoError(t, Init(0))
	_, err = VerifyToken(token)
	assert.Error(t, err)
}

func TestGenerateCodeShape(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		code, err := generateCode()
		require.NoError(t, err)
		assert.Len(t, code, codeLength)
		for _, r := range code {
			assert.True(t, strings.ContainsRune(codeAlphabet, r), "unexpected rune %q", r)
		}
		seen[code] = true
	}
	assert.Greater(t, len(seen), 1, "codes should not repeat constantly")
}

func TestPairingKeyIsDeterministicAndOpaque(t *testing.T) {
	k1 := pairingKey("ABCD2345")
	k2 := pairingKey("ABCD2345")
	k3 := pairingKey("ABCD2346")

	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
	assert.True(t, strings.HasPrefix(k1, "pairing:"))
	assert.NotContains(t, k1, "ABCD2345")
}
