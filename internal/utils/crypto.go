// internal/utils/crypto.go
package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

var ErrSealedSecret = errors.New("sealed secret cannot be opened")

func HashBytes(data []byte) string {
	hasher := sha256.New()
	hasher.Write(data)
	return hex.EncodeToString(hasher.Sum(nil))
}

// Fingerprint identifies a secret in responses and logs without revealing it.
func Fingerprint(secret string) string {
	if secret == "" {
		return ""
	}
	return HashBytes([]byte(secret))[:12]
}

// SealSecret encrypts a secret for storage. The result is base64 of the
// random nonce followed by the secretbox.
func SealSecret(passphrase, plaintext string) (string, error) {
	key, err := deriveKey(passphrase)
	if err != nil {
		return "", err
	}

	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	box := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, key)
	return base64.StdEncoding.EncodeToString(box), nil
}

func OpenSecret(passphrase, sealed string) (string, error) {
	key, err := deriveKey(passphrase)
	if err != nil {
		return "", err
	}

	data, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil || len(data) < nonceSize+secretbox.Overhead {
		return "", ErrSealedSecret
	}

	var nonce [nonceSize]byte
	copy(nonce[:], data[:nonceSize])
	plaintext, ok := secretbox.Open(nil, data[nonceSize:], &nonce, key)
	if !ok {
		return "", ErrSealedSecret
	}
	return string(plaintext), nil
}

func deriveKey(passphrase string) (*[32]byte, error) {
	if passphrase == "" {
		return nil, errors.New("settings encryption key is not configured")
	}

	var key [32]byte
	reader := hkdf.New(sha256.New, []byte(passphrase), nil, []byte("admin-settings"))
	if _, err := io.ReadFull(reader, key[:]); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	return &key, nil
}
