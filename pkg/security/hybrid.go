package security

import (
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// Algorithm identifies the hybrid construction in envelope metadata
const Algorithm = "RSA-OAEP-256+A256GCM"

// ContentKeySize is the size of the per-message AES-256 key
const ContentKeySize = 32

var (
	// ErrSeal is returned when an envelope cannot be sealed
	ErrSeal = errors.New("seal failed")
	// ErrUnseal is returned when an envelope cannot be unsealed
	ErrUnseal = errors.New("unseal failed")
)

// b64 rejects non-canonical padding bits so that any change to the text
// changes the decoded bytes.
var b64 = base64.StdEncoding.Strict()

// oaepOptions are passed to crypto.Decrypter implementations, which lets a
// token-held key unwrap content keys without exposing the key.
var oaepOptions = &rsa.OAEPOptions{Hash: crypto.SHA256}

// Sealed is the ciphertext pair produced by Seal. Both halves are base64 text.
type Sealed struct {
	EncryptedPayload string
	EncryptedKey     string
}

// Seal encrypts plaintext under a fresh AES-256 key and wraps that key for
// wrapKey with RSA-OAEP-SHA256.
func Seal(plaintext []byte, wrapKey *rsa.PublicKey) (*Sealed, error) {
	return sealWith(rand.Reader, plaintext, wrapKey)
}

func sealWith(random io.Reader, plaintext []byte, wrapKey *rsa.PublicKey) (*Sealed, error) {
	if wrapKey == nil {
		return nil, fmt.Errorf("%w: wrap key is required", ErrSeal)
	}

	contentKey := make([]byte, ContentKeySize)
	if _, err := io.ReadFull(random, contentKey); err != nil {
		return nil, fmt.Errorf("%w: generating content key: %v", ErrSeal, err)
	}
	defer clear(contentKey)

	gcm, err := newGCM(contentKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSeal, err)
	}

	nonce := make([]byte, gcm.NonceSize(), gcm.NonceSize()+len(plaintext)+gcm.Overhead())
	if _, err := io.ReadFull(random, nonce); err != nil {
		return nil, fmt.Errorf("%w: generating nonce: %v", ErrSeal, err)
	}
	body := gcm.Seal(nonce, nonce, plaintext, nil)

	wrapped, err := rsa.EncryptOAEP(sha256.New(), random, wrapKey, contentKey, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: wrapping content key: %v", ErrSeal, err)
	}

	return &Sealed{
		EncryptedPayload: b64.EncodeToString(body),
		EncryptedKey:     b64.EncodeToString(wrapped),
	}, nil
}

// Unseal unwraps the content key with unwrapKey and decrypts the payload.
// Any failure yields ErrUnseal and no partial plaintext.
func Unseal(encryptedPayload, encryptedKey string, unwrapKey crypto.Decrypter) ([]byte, error) {
	if unwrapKey == nil {
		return nil, fmt.Errorf("%w: unwrap key is required", ErrUnseal)
	}

	wrapped, err := b64.DecodeString(encryptedKey)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding encrypted key: %v", ErrUnseal, err)
	}
	contentKey, err := unwrapKey.Decrypt(rand.Reader, wrapped, oaepOptions)
	if err != nil {
		return nil, fmt.Errorf("%w: unwrapping content key: %v", ErrUnseal, err)
	}
	defer clear(contentKey)
	if len(contentKey) != ContentKeySize {
		return nil, fmt.Errorf("%w: content key has %d bytes, want %d", ErrUnseal, len(contentKey), ContentKeySize)
	}

	body, err := b64.DecodeString(encryptedPayload)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding encrypted payload: %v", ErrUnseal, err)
	}

	gcm, err := newGCM(contentKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnseal, err)
	}
	if len(body) < gcm.NonceSize()+gcm.Overhead() {
		return nil, fmt.Errorf("%w: encrypted payload too short", ErrUnseal)
	}

	nonce, ciphertext := body[:gcm.NonceSize()], body[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: AES-GCM decryption failed: %v", ErrUnseal, err)
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}
