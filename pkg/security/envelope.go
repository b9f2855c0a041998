package security

import (
	"crypto"
	"crypto/rsa"
	"fmt"

	"github.com/ianmp91/sqs-consumer-producer-micro/pkg/message"
)

// SealEnvelope seals plaintext and builds an outbound envelope around the
// result. The algorithm identifier is recorded in the metadata; opts may add
// further metadata and the correlation identifier.
func SealEnvelope(plaintext []byte, wrapKey *rsa.PublicKey, opts ...message.Option) (*message.SealedEnvelope, error) {
	sealed, err := Seal(plaintext, wrapKey)
	if err != nil {
		return nil, err
	}

	opts = append(opts[:len(opts):len(opts)], message.WithMetadata(message.MetaAlgorithm, Algorithm))
	env, err := message.NewSealedEnvelope(sealed.EncryptedPayload, sealed.EncryptedKey, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSeal, err)
	}
	return env, nil
}

// UnsealEnvelope recovers the plaintext carried by env. Envelopes that
// announce a different algorithm are rejected before any key operation.
func UnsealEnvelope(env *message.SealedEnvelope, unwrapKey crypto.Decrypter) ([]byte, error) {
	if env == nil {
		return nil, fmt.Errorf("%w: no envelope", ErrUnseal)
	}
	if alg, ok := env.Meta(message.MetaAlgorithm); ok && alg != Algorithm {
		return nil, fmt.Errorf("%w: unsupported algorithm %q", ErrUnseal, alg)
	}
	return Unseal(env.EncryptedPayload(), env.EncryptedKey(), unwrapKey)
}
