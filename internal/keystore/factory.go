package keystore

import (
	"fmt"

	"github.com/ianmp91/sqs-consumer-producer-micro/internal/config"
)

// NewFromConfig creates a KeyStore with both keys loaded. A failure to load
// either key is fatal for the capability that needs it, so both are required
// here.
func NewFromConfig(cfg *config.KeysConfig) (*KeyStore, error) {
	ks := New()

	switch cfg.Mode {
	case "pkcs11":
		if err := ks.loadPKCS11(cfg); err != nil {
			ks.Close()
			return nil, err
		}
	case "file", "":
		if _, err := ks.LoadLocalPrivateKey(FileSource(cfg.PrivateKey)); err != nil {
			return nil, fmt.Errorf("loading local private key: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown key mode: %s", cfg.Mode)
	}

	if _, err := ks.LoadCounterpartyPublicKey(FileSource(cfg.CounterpartyPublicKey)); err != nil {
		ks.Close()
		return nil, fmt.Errorf("loading counterparty public key: %w", err)
	}

	return ks, nil
}

func (s *KeyStore) loadPKCS11(cfg *config.KeysConfig) error {
	p11cfg := &PKCS11Config{
		ModulePath: cfg.PKCS11.ModulePath,
		SlotLabel:  cfg.PKCS11.SlotLabel,
		PIN:        cfg.PKCS11.PIN,
		KeyLabel:   cfg.PKCS11.KeyLabel,
	}
	if cfg.PKCS11.SlotID > 0 {
		slotID := cfg.PKCS11.SlotID
		p11cfg.SlotID = &slotID
	}

	key, closer, err := LoadPKCS11PrivateKey(p11cfg)
	if err != nil {
		return fmt.Errorf("loading local private key from token: %w", err)
	}
	s.addCloser(closer)
	s.SetLocalPrivateKey(key)
	return nil
}
