// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package transport moves sealed envelopes between the processor and its peers.

Envelopes always travel in their JSON wire form. Three transports are
provided:

  - SQS: Amazon SQS queues via aws-sdk-go-v2 (long polling receive,
    delete after handling, send)
  - Memory: in-process queues for tests and demos
  - HTTPS: a JSON POST sender for https:// destinations and an ingress
    server accepting envelopes on /envelopes

# Consuming

A Consumer polls a Receiver and hands each delivery to a Handler on a
bounded worker pool. Deliveries are acknowledged once the handler returns,
so one failed envelope never blocks the rest of a batch. Receive errors are
retried with exponential backoff:

	consumer, _ := transport.NewConsumer(transport.ConsumerConfig{
	    Receiver: sqsTransport.Receiver("airport-c-inbound"),
	    Handler:  dispatcher,
	    Workers:  8,
	})
	consumer.Start(ctx)
	defer consumer.Stop()

# Routing

Router selects a Sender by destination prefix:

	router := transport.NewRouter(sqsTransport)
	router.Route("https://", transport.NewHTTPSSender(nil))

# TLS Configuration

HTTPS defaults to TLS 1.2 minimum with TLS 1.3 preferred. For TLS 1.2 the
ECDHE AES-GCM cipher suites in RecommendedTLS12CipherSuites are used.
*/
package transport
