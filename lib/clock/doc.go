// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// Verification reads the current time exactly once per call, after all
// signatures have been checked, to evaluate the validity window. Code
// that needs the time accepts a Clock instead of calling time.Now, so
// tests can pin the instant a token is evaluated at:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	verifier := verify.New(verify.Config{Clock: c})
//	c.Advance(10 * time.Minute) // the next verification sees the later time
package clock
