// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package sqsmicro implements a queue-driven processor for IATA AIDX flight leg
messages exchanged between airports.

# Overview

Each inbound message is a sealed envelope: a JSON record carrying an
AES-256-GCM encrypted XML payload, the one-time content key wrapped with
RSA-OAEP-SHA256 for the receiving airport, and routing metadata. The
processor unseals the payload with its local private key, classifies the
AIDX document, builds a FlightLegRS answer, seals it for the counterparty
airport and forwards it to the producer queue.

	SQS consumer queue
	      │
	      ▼
	 unseal ──► classify ──► compose ──► forward
	(local key)  (AIDX)    (counterparty   (SQS or
	                          key)          HTTPS)

Failures are contained per message. A message that fails at any stage is
logged with its stage and correlation identifier, recorded, and removed from
the queue; it never blocks or alters the processing of other messages.

# Package Structure

	github.com/ianmp91/sqs-consumer-producer-micro/pkg/message     - Sealed envelope and delivery types
	github.com/ianmp91/sqs-consumer-producer-micro/pkg/security    - Hybrid RSA-OAEP + AES-GCM sealing
	github.com/ianmp91/sqs-consumer-producer-micro/pkg/compression - GZIP payload compression
	github.com/ianmp91/sqs-consumer-producer-micro/pkg/aidx        - AIDX document types, codec and response builder
	github.com/ianmp91/sqs-consumer-producer-micro/pkg/classify    - Payload classification
	github.com/ianmp91/sqs-consumer-producer-micro/pkg/compose     - Response envelope composition
	github.com/ianmp91/sqs-consumer-producer-micro/pkg/dispatch    - Per-message pipeline and target resolution
	github.com/ianmp91/sqs-consumer-producer-micro/pkg/transport   - SQS, HTTPS and in-memory transports, consumer pool

Service internals live under internal/: configuration, the key store (PEM
files or PKCS#11 tokens), dispatch record storage (memory or MongoDB) and
the server that wires everything together. The cmd/sqs-micro command runs
the service.

# Quick Start

Seal a payload for a recipient and open it again:

	env, err := security.SealEnvelope(xmlPayload, recipientPublicKey,
	    message.WithMetadata(message.MetaCorrelationID, "corr-42"),
	)

	plaintext, err := security.UnsealEnvelope(env, recipientPrivateKey)

Run the processor over in-memory queues (see examples/basic):

	dispatcher, _ := dispatch.New(dispatch.Config{
	    Keys:     ks,
	    Decoder:  aidx.NewCodec(),
	    Composer: composer,
	    Sender:   queues,
	    Resolver: dispatch.NewStaticResolver("airport-b-outbound"),
	})

# Key Management

The local private key may be an RSA PEM file (PKCS#1 or PKCS#8) or a key
held on a PKCS#11 token (build tag pkcs11). The counterparty public key is
read from PEM (SubjectPublicKeyInfo, PKCS#1 or an X.509 certificate) and can
be reloaded at runtime with SIGHUP. Keys shorter than 2048 bits are rejected.
*/
package sqsmicro
