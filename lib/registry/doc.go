// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package registry stores named trust-anchor keys and named service
// chains in SQLite, so hosts can verify by name instead of passing
// key paths and service-node JSON on every call.
//
// Two tables:
//
//	public_keys(key_name, public_key, is_default)
//	service_chains(service_name, service_chain)
//
// public_key holds the "ed25519/<hex>" text form. At most one key is
// the default; [Registry.PutKey] with makeDefault clears the flag on
// every other row in the same transaction. service_chain holds the
// {"service_nodes": [...]} JSON and is validated on write.
//
// [Registry.VerifyServiceChainByName] resolves the default key and a
// named chain, then runs service-chain verification. A missing default
// key reports [verify.KeyLoadError]; an unknown chain reports
// [verify.Broken], since none of its components can be resolved.
//
// Connections come from a zombiezen sqlitex pool with WAL journaling.
// Each connection is prepared once with the standard pragmas and the
// schema. Callers never see connections.
package registry
