// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package signature verifies the cryptographic integrity of a decoded
// token: the authority block and every delegation link.
//
// The walk is index-ordered from the root link to the leaf. The
// authority block and link 0 verify under the trust anchor. Link i
// must name the previous link's component as its signer and verifies
// under that component's key, which comes from one of two places:
//
//   - Embedded mode (Options.Nodes nil): the previous link's
//     component_key field.
//   - Service-chain mode: a caller-supplied [KeyResolver], typically a
//     parsed service-node list. Embedded keys are ignored, and every
//     declared component, including the last, must resolve.
//
// Each link also carries the digest of the block before it, so links
// cannot be reordered, dropped from the middle, or spliced between
// tokens. Validity windows are checked only after every signature
// passes, so a correctly signed but expired token reports [ErrExpired]
// rather than [ErrSignatureInvalid].
package signature
