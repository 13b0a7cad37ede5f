package chat

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// hkdfInfo binds derived keys to this channel so the same shared secret can
// be reused for other purposes without key reuse.
const hkdfInfo = "fishook-chat-token"

// deriveKey stretches the app shared secret into a 32 byte AES key.
func deriveKey(secret []byte) ([]byte, error) {
	key := make([]byte, 32)
	r := hkdf.New(sha256.New, secret, nil, []byte(hkdfInfo))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("hkdf: %w", err)
	}
	return key, nil
}

// ObfuscateToken seals the platform access token with AES-256-GCM under a key
// derived from the app shared secret. The nonce is prefixed to the ciphertext
// and the whole credential is base64-encoded for the bearer header.
func ObfuscateToken(accessToken string, secret []byte) (string, error) {
	key, err := deriveKey(secret)
	if err != nil {
		return "", err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("cipher.NewGCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(accessToken), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// DeobfuscateToken reverses ObfuscateToken. The backend performs this on its
// side; the client keeps it for round-trip tests.
func DeobfuscateToken(credential string, secret []byte) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(credential)
	if err != nil {
		return "", fmt.Errorf("base64 decode: %w", err)
	}
	key, err := deriveKey(secret)
	if err != nil {
		return "", err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("cipher.NewGCM: %w", err)
	}
	if len(sealed) < gcm.NonceSize() {
		return "", fmt.Errorf("credential shorter than nonce")
	}
	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("gcm.Open: %w", err)
	}
	return string(plain), nil
}
