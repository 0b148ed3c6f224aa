// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package token implements the capability token wire format.
//
// A token authorizes one subject to act on one resource. It is issued
// by the holder of the trust-anchor key and may then pass through a
// service chain, each hop appending a signed link that names the next
// participant. This package only encodes and decodes: it never checks
// a signature or a validity window. See lib/signature for that.
//
// # Wire format
//
// The text form is unpadded base64url of a CBOR envelope:
//
//	{1: version, 2: [block, block, ...]}
//
// Each block is a CBOR byte string holding a CBOR payload followed by a
// 64-byte Ed25519 signature over the payload bytes:
//
//	[CBOR payload bytes] [64-byte Ed25519 signature]
//
// Block 0 carries the [Claims] and is signed by the trust anchor.
// Blocks 1..N are chain links ([Link]). Link 0 is also signed by the
// trust anchor and declares the first hop; link i names its signer,
// which must be the component declared by link i-1. Every link records
// the BLAKE3 digest of the block before it, so links cannot be reordered
// or spliced between tokens.
//
// # Totality
//
// [Decode] either returns a fully populated [Token] or an error matching
// [ErrMalformed]. It never returns a partial result.
//
// # Issuance
//
// [Mint] and [Token.Attest] exist for fixtures and the development CLI.
// Production issuance lives with whoever holds the signing keys.
package token
