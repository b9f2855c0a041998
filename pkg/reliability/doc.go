// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package reliability provides duplicate detection for inbound deliveries.

Standard SQS queues deliver at least once, and producers may resend an
envelope after a timeout. Processing the same envelope twice would send
the counterparty two responses, so deliveries can be passed through a
DeliveryFilter that remembers what it has seen for a configurable window.

# Delivery Filter

Envelopes are identified by a hash of their wrapped content key and
encrypted payload. A delivery that fails is forgotten, so only successfully
handled envelopes suppress later copies:

	filter := reliability.NewDeliveryFilter(15 * time.Minute)
	defer filter.Close()

	handler := reliability.Deduplicate(func(ctx context.Context, d *message.Delivery) bool {
		return dispatcher.Process(ctx, d).Failed()
	}, filter, logger)

Duplicates seen within the window are logged and dropped; the transport
still acknowledges them.
*/
package reliability
