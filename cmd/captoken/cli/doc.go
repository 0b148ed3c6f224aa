// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the small command framework behind the captoken
// binary: a tree of [Command] values, each with an optional pflag
// FlagSet, dispatched by the first positional argument.
//
// Unknown commands and flags produce an error with the closest match
// (edit distance at most 3) and a pointer to --help. Commands whose
// non-zero exit is an expected outcome (a denied token) return
// [ExitError] so main exits with that code without printing the error
// again.
package cli
