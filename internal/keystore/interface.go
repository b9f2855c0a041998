// Package keystore loads and holds the key material used to seal and unseal
// envelopes.
//
// A KeyStore holds exactly one local private key, used to unwrap the content
// key of inbound envelopes, and one counterparty public key, used to wrap the
// content key of outbound envelopes. Keys are loaded from PEM sources:
//
//   - Local private key: PKCS#1 ("RSA PRIVATE KEY") or PKCS#8 ("PRIVATE KEY")
//   - Counterparty public key: PKIX ("PUBLIC KEY"), PKCS#1 ("RSA PUBLIC KEY"),
//     a key-pair record (public half is used) or an X.509 certificate
//
// The local private key can also live in a PKCS#11 token when the binary is
// built with the pkcs11 tag.
//
// Handles are immutable. Rotating the counterparty key swaps the handle held
// by the store; callers that already obtained a handle keep using it.
package keystore

import (
	"crypto"
	"crypto/rsa"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// MinRSAKeyBits is the smallest accepted RSA modulus
const MinRSAKeyBits = 2048

// Common errors
var (
	ErrKeyNotFound = errors.New("key not found")
	ErrKeyFormat   = errors.New("unsupported key format")
)

// Source supplies PEM encoded key material
type Source interface {
	// Name identifies the source in errors and logs
	Name() string
	// Read returns the raw PEM bytes
	Read() ([]byte, error)
}

type fileSource string

// FileSource reads key material from a file on disk
func FileSource(path string) Source {
	return fileSource(path)
}

func (f fileSource) Name() string { return string(f) }

func (f fileSource) Read() ([]byte, error) {
	return os.ReadFile(string(f))
}

type bytesSource struct {
	name string
	data []byte
}

// BytesSource serves key material held in memory
func BytesSource(name string, pemData []byte) Source {
	return &bytesSource{name: name, data: pemData}
}

func (b *bytesSource) Name() string { return b.name }

func (b *bytesSource) Read() ([]byte, error) {
	if b.data == nil {
		return nil, os.ErrNotExist
	}
	return b.data, nil
}

// PrivateKey is the handle to the local private key. It implements
// crypto.Decrypter so it can be handed directly to envelope unsealing.
type PrivateKey struct {
	decrypter crypto.Decrypter
	public    *rsa.PublicKey
	source    string
}

// NewPrivateKey wraps an RSA decrypter, which may be an *rsa.PrivateKey or a
// token-held key.
func NewPrivateKey(d crypto.Decrypter, source string) (*PrivateKey, error) {
	if d == nil {
		return nil, fmt.Errorf("%w: nil private key", ErrKeyNotFound)
	}
	pub, ok := d.Public().(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: %s: RSA key required, got %T", ErrKeyFormat, source, d.Public())
	}
	if err := checkKeySize(pub, source); err != nil {
		return nil, err
	}
	return &PrivateKey{decrypter: d, public: pub, source: source}, nil
}

// Public implements crypto.Decrypter
func (k *PrivateKey) Public() crypto.PublicKey {
	return k.public
}

// Decrypt implements crypto.Decrypter
func (k *PrivateKey) Decrypt(rand io.Reader, ciphertext []byte, opts crypto.DecrypterOpts) ([]byte, error) {
	return k.decrypter.Decrypt(rand, ciphertext, opts)
}

// Source returns the name of the source the key was loaded from
func (k *PrivateKey) Source() string {
	return k.source
}

// Size returns the modulus size in bits
func (k *PrivateKey) Size() int {
	return k.public.N.BitLen()
}

// PublicKey is the handle to a counterparty public key
type PublicKey struct {
	key      *rsa.PublicKey
	source   string
	loadedAt time.Time
}

// NewPublicKey wraps an RSA public key
func NewPublicKey(pub *rsa.PublicKey, source string) (*PublicKey, error) {
	if pub == nil {
		return nil, fmt.Errorf("%w: nil public key", ErrKeyNotFound)
	}
	if err := checkKeySize(pub, source); err != nil {
		return nil, err
	}
	return &PublicKey{key: pub, source: source, loadedAt: time.Now().UTC()}, nil
}

// RSA returns the wrapped RSA public key
func (k *PublicKey) RSA() *rsa.PublicKey {
	return k.key
}

// Source returns the name of the source the key was loaded from
func (k *PublicKey) Source() string {
	return k.source
}

// LoadedAt returns when the key was loaded
func (k *PublicKey) LoadedAt() time.Time {
	return k.loadedAt
}

// Size returns the modulus size in bits
func (k *PublicKey) Size() int {
	return k.key.N.BitLen()
}

func checkKeySize(pub *rsa.PublicKey, source string) error {
	if bits := pub.N.BitLen(); bits < MinRSAKeyBits {
		return fmt.Errorf("%w: %s: RSA key is %d bits, minimum is %d", ErrKeyFormat, source, bits, MinRSAKeyBits)
	}
	return nil
}
