// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package policy decides whether a verified token authorizes a request.
// It assumes the token's signatures and validity window have already
// been checked (see lib/signature) and looks only at claims.
//
// Evaluation, in order:
//  1. The token subject must equal the requested subject exactly.
//  2. The token resource must equal the requested resource exactly.
//  3. If the request names a permission, it must match one of the
//     authority's permission patterns and one pattern of every link
//     attenuation. If it names none, the subject and resource match is
//     the authorization, unless a link attenuated the permission set
//     to nothing.
//  4. In chain mode, the target component must be one of the
//     components the chain delegated to.
//
// Permission failures report [ErrResourceMismatch]: the permission is
// part of what the token grants on its resource.
package policy

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/captoken/lib/permission"
	"github.com/bureau-foundation/captoken/lib/token"
)

var (
	// ErrSubjectMismatch means the token was issued to someone else.
	ErrSubjectMismatch = errors.New("policy: subject mismatch")

	// ErrResourceMismatch means the token does not grant the requested
	// resource or permission.
	ErrResourceMismatch = errors.New("policy: resource mismatch")

	// ErrComponentNotFound means the target component did not take
	// part in the delegation chain.
	ErrComponentNotFound = errors.New("policy: component not found in chain")
)

// Request is what the caller wants to do.
type Request struct {
	// Subject is the principal presenting the token.
	Subject string

	// Resource is the resource being accessed.
	Resource string

	// Permission is the optional action on Resource, matched against
	// the token's permission patterns. Empty means any.
	Permission string
}

// Authorize checks a request against the token's claims and attenuations.
func Authorize(tok *token.Token, request Request) error {
	if tok.Claims.Subject != request.Subject {
		return fmt.Errorf("%w: token issued to %q, request from %q",
			ErrSubjectMismatch, tok.Claims.Subject, request.Subject)
	}
	if tok.Claims.Resource != request.Resource {
		return fmt.Errorf("%w: token grants %q, request for %q",
			ErrResourceMismatch, tok.Claims.Resource, request.Resource)
	}

	if request.Permission != "" && !permission.MatchAny(tok.Claims.Permissions, request.Permission) {
		return fmt.Errorf("%w: permission %q not granted", ErrResourceMismatch, request.Permission)
	}

	for index, link := range tok.Chain {
		if link.Attenuation == nil {
			continue
		}
		if request.Permission == "" {
			if len(link.Attenuation.Permissions) == 0 {
				return fmt.Errorf("%w: link %d (%s) attenuated all permissions",
					ErrResourceMismatch, index, link.Component)
			}
			continue
		}
		if !permission.MatchAny(link.Attenuation.Permissions, request.Permission) {
			return fmt.Errorf("%w: permission %q attenuated by link %d (%s)",
				ErrResourceMismatch, request.Permission, index, link.Component)
		}
	}
	return nil
}

// AuthorizeChain applies Authorize and additionally requires component
// to be a declared participant of the delegation chain.
func AuthorizeChain(tok *token.Token, request Request, component string) error {
	if err := Authorize(tok, request); err != nil {
		return err
	}
	if component == "" {
		return fmt.Errorf("%w: no component named", ErrComponentNotFound)
	}
	for _, participant := range tok.Components() {
		if participant == component {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrComponentNotFound, component)
}
