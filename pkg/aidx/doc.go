// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package aidx implements the IATA AIDX flight leg messages exchanged between
airports, together with the codec and response builder used by the
dispatcher.

# Documents

  - FlightLegRQ (IATA_AIDX_FlightLegRQ): request for flight leg information
  - FlightLegNotifRQ (IATA_AIDX_FlightLegNotifRQ): notification of a change
  - FlightLegRS (IATA_AIDX_FlightLegRS): response to either of the above

All documents live in the http://www.iata.org/IATA/2007/00 namespace.

# Codec

	codec := aidx.NewCodec()
	doc, err := codec.Decode(payload) // *FlightLegRQ, *FlightLegNotifRQ, *FlightLegRS or nil
	xml, err := codec.Encode(rs)

An empty payload decodes to nil. Unknown root elements and malformed XML
yield ErrDecode.

# Responses

ResponseBuilder copies the message attributes of the inbound document
(Version, CorrelationID, TransactionIdentifier, SequenceNmbr, Target), sets
TransactionStatusCode to Success and adds an empty Success element.

# References

  - IATA Aviation Information Data Exchange (AIDX): https://www.iata.org/en/publications/info-data-exchange/
*/
package aidx
