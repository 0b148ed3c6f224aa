// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for captoken packages.
//
// [NewIdentity], [Mint], and [Delegate] build signed tokens for the
// verification tests: a trust anchor, a set of component identities,
// and chains where each hop is signed by the previous hop's key.
// [ServiceNodes] renders the matching service-node JSON and
// [Tamper] flips one signature byte of an encoded token.
//
// [WriteFile] places fixture files (keys, node lists) in t.TempDir.
//
// [RequireReceive] and [RequireClosed] bound channel waits in
// concurrency tests. [UniqueID] hands out collision-free names.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
package testutil
