// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports build information for captoken binaries.
//
// [GitCommit], [BuildTime] and [Version] may be injected with
// -ldflags -X. When the commit is not injected, [Commit] falls back to
// the vcs.revision recorded by the Go toolchain in the binary's build
// info, so plain "go build" from a checkout still reports a commit.
//
//   - [Info] is the one-line form printed by --version
//   - [Full] adds the Go version, platform, and the versions of the
//     cryptographic dependencies the binary was linked against
package version
