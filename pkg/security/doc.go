// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package security implements the hybrid seal/unseal construction used for
every envelope exchanged between nodes.

# Construction

Each call to Seal generates a fresh 256-bit AES key from crypto/rand. The
payload is encrypted with AES-256-GCM under a random 96-bit nonce and the key
is wrapped for the counterparty with RSA-OAEP (SHA-256, MGF1-SHA-256):

	encryptedPayload = base64(nonce || ciphertext || tag)
	encryptedKey     = base64(RSA-OAEP(aesKey))

The RSA primitive is used only for key transport and the AES primitive only
for the payload body. No key or nonce is ever reused across calls.

# Usage

	sealed, err := security.Seal(body, counterparty.RSA())

	plaintext, err := security.Unseal(env.EncryptedPayload(), env.EncryptedKey(), localKey)

SealEnvelope and UnsealEnvelope work directly on message.SealedEnvelope and
record the algorithm identifier (RSA-OAEP-256+A256GCM) under the "enc"
metadata key.

Unseal accepts any crypto.Decrypter, so a key held in a PKCS#11 token can
unwrap content keys without leaving the token.

# Errors

All unseal failures (malformed base64, wrong key, corrupted or truncated
ciphertext) are reported as ErrUnseal and no partial plaintext is returned.
Seal failures are reported as ErrSeal.

# Compatibility

This construction is not wire-compatible with producers that use RSA PKCS#1
v1.5 key transport and AES in ECB mode.
*/
package security
