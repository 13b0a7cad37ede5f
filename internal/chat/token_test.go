package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObfuscateTokenRoundTrip(t *testing.T) {
	secret := []byte("app-shared-secret")

	credential, err := ObfuscateToken("shpat_abc123", secret)
	require.NoError(t, err)
	assert.NotContains(t, credential, "shpat_abc123")

	token, err := DeobfuscateToken(credential, secret)
	require.NoError(t, err)
	assert.Equal(t, "shpat_abc123", token)
}

func TestObfuscateTokenIsNonDeterministic(t *testing.T) {
	secret := []byte("app-shared-secret")

	a, err := ObfuscateToken("shpat_abc123", secret)
	require.NoError(t, err)
	b, err := ObfuscateToken("shpat_abc123", secret)
	require.NoError(t, err)

	assert.NotEqual(t, a, b, "a fresh nonce must be used for every credential")
}

func TestDeobfuscateTokenWrongSecret(t *testing.T) {
	credential, err := ObfuscateToken("shpat_abc123", []byte("right-secret"))
	require.NoError(t, err)

	_, err = DeobfuscateToken(credential, []byte("wrong-secret"))
	assert.Error(t, err)
}

func TestDeobfuscateTokenGarbage(t *testing.T) {
	_, err := DeobfuscateToken("not base64!!", []byte("secret"))
	assert.Error(t, err)

	_, err = DeobfuscateToken("c2hvcnQ=", []byte("secret"))
	assert.Error(t, err, "input shorter than the nonce must be rejected")
}
