// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package compression provides gzip payload compression for envelopes.

When compression is enabled the composer gzips the serialized response before
sealing it and marks the envelope with content_encoding=gzip:

	compressor := compression.NewCompressor()
	compressed, err := compressor.Compress(body)

The receiving side inflates the unsealed payload according to the marker.
Inflation is bounded (16 MiB by default) so a small ciphertext cannot expand
without limit:

	body, err := compressor.Decode(encoding, unsealed)

# References

  - GZIP RFC 1952: https://datatracker.ietf.org/doc/html/rfc1952
*/
package compression
