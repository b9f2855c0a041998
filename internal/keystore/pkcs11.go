//go:build pkcs11

// Package keystore provides the PKCS#11 private key implementation
package keystore

import (
	"crypto"
	"fmt"
	"io"

	"github.com/ThalesGroup/crypto11"
)

// PKCS11Config holds configuration for a token-held private key
type PKCS11Config struct {
	// ModulePath is the path to the PKCS#11 library (.so/.dylib/.dll)
	ModulePath string

	// SlotID is the slot number to use (optional if SlotLabel is provided)
	SlotID *uint

	// SlotLabel is the token label to search for (optional if SlotID is provided)
	SlotLabel string

	// PIN is the user PIN for authentication
	PIN string

	// KeyLabel is the label of the RSA key pair on the token
	KeyLabel string
}

// LoadPKCS11PrivateKey finds an RSA key pair on a PKCS#11 token and returns it
// as a private key handle. The returned closer ends the token session.
func LoadPKCS11PrivateKey(cfg *PKCS11Config) (*PrivateKey, io.Closer, error) {
	config := &crypto11.Config{
		Path: cfg.ModulePath,
		Pin:  cfg.PIN,
	}

	if cfg.SlotID != nil {
		slotID := int(*cfg.SlotID)
		config.SlotNumber = &slotID
	}
	if cfg.SlotLabel != "" {
		config.TokenLabel = cfg.SlotLabel
	}

	ctx, err := crypto11.Configure(config)
	if err != nil {
		return nil, nil, fmt.Errorf("configuring PKCS#11: %w", err)
	}

	key, err := ctx.FindKeyPair(nil, []byte(cfg.KeyLabel))
	if err != nil {
		ctx.Close()
		return nil, nil, fmt.Errorf("finding key pair: %w", err)
	}
	if key == nil {
		ctx.Close()
		return nil, nil, fmt.Errorf("%w: no key pair labelled %q", ErrKeyNotFound, cfg.KeyLabel)
	}

	decrypter, ok := key.(crypto.Decrypter)
	if !ok {
		ctx.Close()
		return nil, nil, fmt.Errorf("%w: token key %q cannot decrypt", ErrKeyFormat, cfg.KeyLabel)
	}

	handle, err := NewPrivateKey(decrypter, "pkcs11:"+cfg.KeyLabel)
	if err != nil {
		ctx.Close()
		return nil, nil, err
	}
	return handle, ctx, nil
}
