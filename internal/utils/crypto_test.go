// internal/utils/crypto_test.go
package utils

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealSecret(t *testing.T) {
	sealed, err := SealSecret("settings-key", "sk_test_123")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "sk_test_123")

	again, err := SealSecret("settings-key", "sk_test_123")
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "every seal uses a fresh nonce")

	opened, err := OpenSecret("settings-key", sealed)
	require.NoError(t, err)
	assert.Equal(t, "sk_test_123", opened)

	_, err = OpenSecret("other-key", sealed)
	assert.ErrorIs(t, err, ErrSealedSecret)

	data, err := base64.StdEncoding.DecodeString(sealed)
	require.NoError(t, err)
	data[len(data)-1] ^= 0xff
	_, err = OpenSecret("settings-key", base64.StdEncoding.EncodeToString(data))
	assert.ErrorIs(t, err, ErrSealedSecret)

	_, err = OpenSecret("settings-key", "not base64!")
	assert.ErrorIs(t, err, ErrSealedSecret)

	_, err = SealSecret("", "sk_test_123")
	assert.Error(t, err)
}

func TestFingerprint(t *testing.T) {
	assert.Empty(t, Fingerprint(""))
	assert.Len(t, Fingerprint("sk_test_123"), 12)
	assert.Equal(t, Fingerprint("sk_test_123"), Fingerprint("sk_test_123"))
	assert.NotEqual(t, Fingerprint("sk_test_123"), Fingerprint("sk_test_456"))
}
