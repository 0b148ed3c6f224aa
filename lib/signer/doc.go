// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package signer holds Ed25519 signing keys for issuing tokens in
// development and test environments: the trust anchor that mints
// tokens and the component keys that attest chain links.
//
// A [Key] keeps its 32-byte seed in memory allocated outside the Go
// heap via mmap(MAP_ANONYMOUS), locked into RAM (mlock) and excluded
// from core dumps (MADV_DONTDUMP). Close zeroes, unlocks, and unmaps
// it. Key implements crypto.Signer, so it plugs into token.Mint and
// Token.Attest directly.
//
// On disk a key is either a raw seed file (mode 0600) or, when
// recipients are given, an age-encrypted file that only the holders of
// the matching age identities can open:
//
//	signing-key       raw 32-byte seed
//	signing-key.age   age ciphertext of the seed
//	signing-key.pub   PEM "PUBLIC KEY" for the verifier side
//
// Verification never needs this package.
package signer
