//go:build !pkcs11

// Package keystore provides a stub for PKCS#11 when not compiled with the pkcs11 tag.
package keystore

import (
	"errors"
	"io"
)

// PKCS11Config holds configuration for a token-held private key
type PKCS11Config struct {
	ModulePath string
	SlotID     *uint
	SlotLabel  string
	PIN        string
	KeyLabel   string
}

// ErrPKCS11NotSupported is returned when PKCS#11 operations are attempted
// but the binary was not compiled with PKCS#11 support.
var ErrPKCS11NotSupported = errors.New("PKCS#11 support not compiled in (build with -tags pkcs11)")

// LoadPKCS11PrivateKey returns an error because PKCS#11 is not compiled in.
func LoadPKCS11PrivateKey(cfg *PKCS11Config) (*PrivateKey, io.Closer, error) {
	return nil, nil, ErrPKCS11NotSupported
}
