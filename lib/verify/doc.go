// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package verify is the single entry point for token verification. It
// runs the pipeline shared by both verification protocols:
//
//  1. Key resolution: the caller's trust-anchor handle must be present
//     and not released (and, for service chains, the service-node list
//     must parse).
//  2. Decode (lib/token).
//  3. Signature check (lib/signature), including the validity window.
//  4. Policy check (lib/policy).
//
// Every failure maps to exactly one [Code] from a closed set, and every
// stage runs at most once. A [Verifier] holds no per-call state and is
// safe for concurrent use; many goroutines may share one Verifier and
// one trust-anchor key. Verification never modifies the key.
//
// Panics inside a verification call are recovered and reported as
// [InternalError]. No code path returns [Success] unless every check
// passed.
package verify
