// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package permission matches permission strings against the patterns
// carried in a token's claims and link attenuations.
//
// Permissions are "/"-separated hierarchies ("orders/read",
// "billing/invoice/issue"). Patterns are segment globs:
//
//   - Exact match: "orders/read" matches only "orders/read"
//   - Single-segment wildcard: "orders/*" matches "orders/read" but not "orders/a/b"
//   - Recursive wildcard: "orders/**" matches "orders/read", "orders/a/b", and "orders"
//   - Universal: "**" matches any permission
//   - Character wildcards: "?" matches one non-slash character
//
// A malformed pattern (unmatched bracket, empty segment) never matches:
// a broken pattern must never grant anything.
package permission

import (
	"path"
	"slices"
	"strings"
)

// Match reports whether permission matches pattern. A permission with
// an empty segment matches nothing.
func Match(pattern, permission string) bool {
	if pattern == "" || permission == "" {
		return false
	}
	segments := strings.Split(permission, "/")
	if slices.Contains(segments, "") {
		return false
	}
	if pattern == "**" {
		return true
	}
	return matchSegments(strings.Split(pattern, "/"), segments)
}

// MatchAny reports whether permission matches any of patterns. An empty
// pattern list matches nothing.
func MatchAny(patterns []string, permission string) bool {
	for _, pattern := range patterns {
		if Match(pattern, permission) {
			return true
		}
	}
	return false
}

// matchSegments walks pattern and permission segments in lockstep. A
// "**" segment consumes zero or more permission segments. Only the most
// recent "**" is ever retried, so a match costs at most
// O(len(pattern) * len(permission)) segment comparisons.
func matchSegments(pattern, permission []string) bool {
	patternIndex, permissionIndex := 0, 0
	starIndex, starResume := -1, 0

	for permissionIndex < len(permission) {
		if patternIndex < len(pattern) {
			head := pattern[patternIndex]
			if head == "**" {
				starIndex = patternIndex
				starResume = permissionIndex
				patternIndex++
				continue
			}
			if matchSegment(head, permission[permissionIndex]) {
				patternIndex++
				permissionIndex++
				continue
			}
		}
		if starIndex < 0 {
			return false
		}
		// Let the last "**" absorb one more segment and retry.
		starResume++
		patternIndex = starIndex + 1
		permissionIndex = starResume
	}

	for patternIndex < len(pattern) && pattern[patternIndex] == "**" {
		patternIndex++
	}
	return patternIndex == len(pattern)
}

func matchSegment(pattern, segment string) bool {
	if pattern == "" {
		return false
	}
	matched, err := path.Match(pattern, segment)
	return err == nil && matched
}
