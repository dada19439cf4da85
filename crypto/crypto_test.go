package crypto

import (
	"encoding/base64"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/variable-kang/0.9to0.10MirrorMaker/constants"
)

func TestDecryptConfigPassthroughWithoutKey(t *testing.T) {
	viper.Set(constants.EncryptionKey, "")

	raw := `{"source":{"bootstrap_servers":"localhost:9092"}}`
	out, err := DecryptConfig(raw)
	require.NoError(t, err)
	assert.Equal(t, raw, out)
}

func TestLocalRoundTrip(t *testing.T) {
	viper.Set(constants.EncryptionKey, "unit-test-passphrase")

	plaintext := `{"sasl_password":"hunter2"}`
	ciphertext, err := Encrypt([]byte(plaintext))
	require.NoError(t, err)

	decrypted, err := Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestDecryptConfigBase64(t *testing.T) {
	viper.Set(constants.EncryptionKey, "unit-test-passphrase")

	plaintext := `{"streams":4}`
	ciphertext, err := Encrypt([]byte(plaintext))
	require.NoError(t, err)

	out, err := DecryptConfig(base64.URLEncoding.EncodeToString(ciphertext))
	require.NoError(t, err)
	assert.Equal(t, plaintext, out)
}

func TestDecryptRejectsShortCiphertext(t *testing.T) {
	viper.Set(constants.EncryptionKey, "unit-test-passphrase")

	_, err := Decrypt([]byte{0x01, 0x02})
	assert.Error(t, err)
}
