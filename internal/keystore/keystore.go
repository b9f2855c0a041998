package keystore

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

// KeyStore holds the local private key and the counterparty public key.
//
// KeyStore is safe for concurrent use. Readers obtain a handle once per
// operation; a concurrent rotation never changes a handle already returned.
type KeyStore struct {
	mu           sync.RWMutex
	local        *PrivateKey
	counterparty *PublicKey
	closers      []io.Closer
}

// New creates an empty KeyStore
func New() *KeyStore {
	return &KeyStore{}
}

// LoadLocalPrivateKey reads and installs the local private key.
// Loading the same source again yields an equivalent handle.
func (s *KeyStore) LoadLocalPrivateKey(src Source) (*PrivateKey, error) {
	data, err := readSource(src)
	if err != nil {
		return nil, err
	}
	key, err := parsePrivateKey(data, src.Name())
	if err != nil {
		return nil, err
	}
	handle, err := NewPrivateKey(key, src.Name())
	if err != nil {
		return nil, err
	}
	s.SetLocalPrivateKey(handle)
	return handle, nil
}

// SetLocalPrivateKey installs an already constructed private key handle
func (s *KeyStore) SetLocalPrivateKey(k *PrivateKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.local = k
}

// LoadCounterpartyPublicKey reads the counterparty public key and replaces the
// current one for all subsequent callers.
func (s *KeyStore) LoadCounterpartyPublicKey(src Source) (*PublicKey, error) {
	data, err := readSource(src)
	if err != nil {
		return nil, err
	}
	pub, err := parsePublicKey(data, src.Name())
	if err != nil {
		return nil, err
	}
	handle, err := NewPublicKey(pub, src.Name())
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.counterparty = handle
	s.mu.Unlock()

	return handle, nil
}

// LocalPrivateKey returns the current local private key handle
func (s *KeyStore) LocalPrivateKey() (*PrivateKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.local == nil {
		return nil, fmt.Errorf("%w: local private key not loaded", ErrKeyNotFound)
	}
	return s.local, nil
}

// CounterpartyPublicKey returns the current counterparty public key handle
func (s *KeyStore) CounterpartyPublicKey() (*PublicKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.counterparty == nil {
		return nil, fmt.Errorf("%w: counterparty public key not loaded", ErrKeyNotFound)
	}
	return s.counterparty, nil
}

// Close releases token sessions held by the store
func (s *KeyStore) Close() error {
	s.mu.Lock()
	closers := s.closers
	s.closers = nil
	s.mu.Unlock()

	var errs []error
	for _, c := range closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *KeyStore) addCloser(c io.Closer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closers = append(s.closers, c)
}

func readSource(src Source) ([]byte, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: no key source configured", ErrKeyNotFound)
	}
	data, err := src.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrKeyNotFound, src.Name(), err)
	}
	return data, nil
}
