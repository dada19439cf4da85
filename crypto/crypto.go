package crypto

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/goccy/go-json"
	"github.com/spf13/viper"
	"github.com/variable-kang/0.9to0.10MirrorMaker/constants"
)

var (
	kmsClient *kms.Client
	localKey  []byte
	useKMS    bool
	once      sync.Once
)

// initEncryption selects KMS or local AES-GCM mode from ENCRYPTION_KEY. A key
// shaped like a KMS ARN routes decryption through AWS; anything else becomes a
// SHA-256 derived local key.
func initEncryption() error {
	key := viper.GetString(constants.EncryptionKey)
	var initErr error

	once.Do(func() {
		if strings.HasPrefix(key, "arn:aws:kms:") {
			cfg, err := config.LoadDefaultConfig(context.Background())
			if err != nil {
				initErr = fmt.Errorf("failed to load AWS config: %w", err)
				return
			}
			kmsClient = kms.NewFromConfig(cfg)
			useKMS = true
		} else {
			hash := sha256.Sum256([]byte(key))
			localKey = hash[:]
			useKMS = false
		}
	})

	return initErr
}

// Decrypt decrypts cipherData with whichever mode initEncryption selected.
func Decrypt(cipherData []byte) (string, error) {
	if err := initEncryption(); err != nil {
		return "", fmt.Errorf("decryption failed: %w", err)
	}

	if useKMS {
		out, err := kmsClient.Decrypt(context.Background(), &kms.DecryptInput{
			CiphertextBlob: cipherData,
		})
		if err != nil {
			return "", fmt.Errorf("decryption failed: %w", err)
		}
		return string(out.Plaintext), nil
	}

	block, err := aes.NewCipher(localKey)
	if err != nil {
		return "", err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonceSize := aead.NonceSize()
	if len(cipherData) < nonceSize {
		return "", errors.New("ciphertext too short")
	}
	nonce, ciphertext := cipherData[:nonceSize], cipherData[nonceSize:]

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decryption failed: %w", err)
	}
	return string(plaintext), nil
}

// DecryptConfig decodes a base64 encrypted config blob and decrypts it. With
// no encryption key configured the input passes through untouched, so plain
// JSON configs keep working.
func DecryptConfig(encryptedConfig string) (string, error) {
	if strings.TrimSpace(viper.GetString(constants.EncryptionKey)) == "" {
		return encryptedConfig, nil
	}

	// handle a JSON-quoted blob
	var unquoted string
	if err := json.Unmarshal([]byte(encryptedConfig), &unquoted); err != nil {
		unquoted = encryptedConfig
	}

	encryptedData, err := base64.URLEncoding.DecodeString(strings.TrimSpace(unquoted))
	if err != nil {
		return "", fmt.Errorf("failed to decode base64 data: %w", err)
	}

	decrypted, err := Decrypt(encryptedData)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt config: %w", err)
	}
	return decrypted, nil
}

// Encrypt is the local-mode inverse of Decrypt, used by tests and by
// operators preparing encrypted configs.
func Encrypt(plaintext []byte) ([]byte, error) {
	if err := initEncryption(); err != nil {
		return nil, fmt.Errorf("encryption failed: %w", err)
	}
	if useKMS {
		return nil, errors.New("encrypt is only supported in local key mode")
	}

	block, err := aes.NewCipher(localKey)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}
