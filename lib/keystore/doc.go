// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package keystore loads and holds the public keys that verify token
// signatures.
//
// A [PublicKey] is an immutable handle: it is fully validated when it
// is created and never modified afterwards, so a single handle can be
// shared by any number of concurrent verifications. The caller that
// loaded a key owns it and calls [PublicKey.Release] exactly once when
// it is done. Release never touches the key material, so a release that
// races a verification cannot corrupt it; verifications that start after
// the release fail with [ErrReleased].
//
// # Accepted encodings
//
//   - PEM "PUBLIC KEY" (PKIX) or "CERTIFICATE" blocks
//   - The text form "ed25519/<64 hex digits>", used in service-node lists
//   - OpenSSH authorized_keys lines ("ssh-ed25519 AAAA... comment")
//   - Raw 32-byte key files
//
// Only Ed25519 is supported. Anything else fails with an error that
// matches [ErrKeyLoad] under errors.Is, and no handle is returned.
package keystore
