// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package dispatch orchestrates the handling of one inbound envelope.

Every delivery moves through a fixed sequence of states:

	Received -> Unsealed -> Classified -> Composed -> Forwarded

or ends in Failed, tagged with the stage that failed (unseal, classify,
compose or forward).

  - Received -> Unsealed: the payload is decrypted with the local private key
    and inflated if it carries content_encoding=gzip.
  - Unsealed -> Classified: the payload is decoded and classified. A decode
    error or an absent payload fails the classify stage. An unsupported
    payload type ends the pipeline in Classified without an error: it is
    logged and dropped.
  - Classified -> Composed: the response envelope is built and sealed for the
    counterparty.
  - Composed -> Forwarded: the destination is resolved and the envelope is
    handed to the outbound transport.

# Failure isolation

Process returns a Report and never an error. A failure is logged with its
stage and cause, handed to the optional Recorder, and processing of the next
message is unaffected. No retry is attempted; redelivery is left to the
inbound transport.

# Usage

	d, err := dispatch.New(dispatch.Config{
	    Keys:     keys,
	    Decoder:  aidx.NewCodec(),
	    Composer: composer,
	    Sender:   sender,
	    Resolver: dispatch.NewStaticResolver("airport-b-in"),
	})

	report := d.Process(ctx, message.NewDelivery("airport-c-in", env))
*/
package dispatch
