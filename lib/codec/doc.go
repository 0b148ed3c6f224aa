// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the CBOR encoding configuration shared by every
// captoken package that touches the token wire format.
//
// Tokens are signed over their exact payload bytes, so the encoder uses
// Core Deterministic Encoding (RFC 8949 §4.2): sorted map keys, smallest
// integer encoding, no indefinite-length items. Minting the same claims
// twice produces the same payload.
//
// The decoder is the first thing untrusted input reaches. It is bounded
// (nesting depth, array and map sizes), rejects duplicate map keys and
// indefinite-length items, and fails on trailing bytes. A token payload
// either decodes completely or not at all.
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// Struct tags follow one rule: wire types use integer keys
// (`cbor:"1,keyasint"`) so payloads stay small and field renames never
// change the encoding.
package codec
