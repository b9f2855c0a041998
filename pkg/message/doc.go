// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package message provides the sealed envelope exchanged over the queues.

A SealedEnvelope carries three things:

  - Metadata: string key/value routing and correlation hints
  - EncryptedPayload: base64 symmetric ciphertext of the document body
  - EncryptedKey: base64 asymmetric ciphertext of the one-time content key

plus an optional correlation identifier that is propagated unchanged from an
inbound envelope to the response built for it.

# Wire Form

Envelopes travel as JSON:

	{
	  "metadata": {"message_type": "IATA_AIDX_FlightLegRQ", "correlation_id": "c-1"},
	  "encryptedPayload": "...",
	  "encryptedKey": "...",
	  "correlationId": "corr-42"
	}

The correlationId field is omitted when absent and is never defaulted. The
legacy field name keyId is accepted as an alias for encryptedKey on input.

# Building Envelopes

	env, err := message.NewSealedEnvelope(payloadB64, keyB64,
	    message.WithMetadata(message.MetaMessageType, "IATA_AIDX_FlightLegRS"),
	    message.WithCorrelationID(inbound.CorrelationID),
	)

Envelopes are immutable once built; accessors return copies.
*/
package message
