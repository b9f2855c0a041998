package keystore

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
)

// PEM block types
const (
	pemRSAPrivateKey = "RSA PRIVATE KEY"
	pemPrivateKey    = "PRIVATE KEY"
	pemRSAPublicKey  = "RSA PUBLIC KEY"
	pemPublicKey     = "PUBLIC KEY"
	pemCertificate   = "CERTIFICATE"
)

// nextKeyBlock returns the first PEM block whose type is in accepted,
// skipping parameter blocks and other leading records.
func nextKeyBlock(data []byte, name string, accepted ...string) (*pem.Block, error) {
	rest := data
	found := false
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		found = true
		for _, t := range accepted {
			if block.Type == t {
				if _, encrypted := block.Headers["DEK-Info"]; encrypted {
					return nil, fmt.Errorf("%w: %s: encrypted PEM blocks are not supported", ErrKeyFormat, name)
				}
				return block, nil
			}
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: %s: no PEM block found", ErrKeyFormat, name)
	}
	return nil, fmt.Errorf("%w: %s: no supported key block (expected one of %v)", ErrKeyFormat, name, accepted)
}

func parsePrivateKey(data []byte, name string) (*rsa.PrivateKey, error) {
	block, err := nextKeyBlock(data, name, pemRSAPrivateKey, pemPrivateKey)
	if err != nil {
		return nil, err
	}
	return parsePrivateBlock(block, name)
}

func parsePrivateBlock(block *pem.Block, name string) (*rsa.PrivateKey, error) {
	switch block.Type {
	case pemRSAPrivateKey:
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrKeyFormat, name, err)
		}
		return key, nil
	default:
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrKeyFormat, name, err)
		}
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%w: %s: RSA key required, got %T", ErrKeyFormat, name, key)
		}
		return rsaKey, nil
	}
}

func parsePublicKey(data []byte, name string) (*rsa.PublicKey, error) {
	block, err := nextKeyBlock(data, name,
		pemPublicKey, pemRSAPublicKey, pemCertificate, pemRSAPrivateKey, pemPrivateKey)
	if err != nil {
		return nil, err
	}

	var key interface{}
	switch block.Type {
	case pemPublicKey:
		key, err = x509.ParsePKIXPublicKey(block.Bytes)
	case pemRSAPublicKey:
		key, err = x509.ParsePKCS1PublicKey(block.Bytes)
	case pemCertificate:
		var cert *x509.Certificate
		cert, err = x509.ParseCertificate(block.Bytes)
		if err == nil {
			key = cert.PublicKey
		}
	default:
		// key-pair record: use the public half
		priv, perr := parsePrivateBlock(block, name)
		if perr != nil {
			return nil, perr
		}
		key = &priv.PublicKey
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrKeyFormat, name, err)
	}

	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: %s: RSA key required, got %T", ErrKeyFormat, name, key)
	}
	return rsaKey, nil
}
