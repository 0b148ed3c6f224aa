// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package verify

import (
	"errors"

	"github.com/bureau-foundation/captoken/lib/keystore"
	"github.com/bureau-foundation/captoken/lib/policy"
	"github.com/bureau-foundation/captoken/lib/servicenode"
	"github.com/bureau-foundation/captoken/lib/signature"
	"github.com/bureau-foundation/captoken/lib/token"
)

// Code is the outcome of a verification. The integer values are stable:
// they cross the C boundary and appear in logs.
type Code int

const (
	// Success means every check passed.
	Success Code = 0

	// KeyLoadError means key material was unreadable, malformed, of an
	// unsupported algorithm, or the handle was released.
	KeyLoadError Code = 1

	// MalformedToken means the token or the service-node list failed
	// to parse.
	MalformedToken Code = 2

	// SignatureInvalid means a signature or chaining digest failed.
	SignatureInvalid Code = 3

	// Expired means the signatures are valid but the token is outside
	// its validity window.
	Expired Code = 4

	// Broken means a link's signer could not be resolved to a key or
	// does not follow from the previous link.
	Broken Code = 5

	// SubjectMismatch means the token was issued to another subject.
	SubjectMismatch Code = 6

	// ResourceMismatch means the token does not grant the requested
	// resource or permission.
	ResourceMismatch Code = 7

	// ComponentNotFound means the target component is not part of the
	// verified chain.
	ComponentNotFound Code = 8

	// InternalError means an unexpected fault in the engine.
	InternalError Code = 9
)

// codeNames holds the stable identifiers used in logs and CLI output.
var codeNames = [...]string{
	Success:           "success",
	KeyLoadError:      "key_load_error",
	MalformedToken:    "malformed_token",
	SignatureInvalid:  "signature_invalid",
	Expired:           "expired",
	Broken:            "broken",
	SubjectMismatch:   "subject_mismatch",
	ResourceMismatch:  "resource_mismatch",
	ComponentNotFound: "component_not_found",
	InternalError:     "internal_error",
}

var codeMessages = [...]string{
	Success:           "token verified",
	KeyLoadError:      "public key could not be loaded",
	MalformedToken:    "token or service node list is malformed",
	SignatureInvalid:  "token signature is invalid",
	Expired:           "token is outside its validity window",
	Broken:            "service chain is broken",
	SubjectMismatch:   "token subject does not match",
	ResourceMismatch:  "token does not grant the requested resource",
	ComponentNotFound: "component not found in service chain",
	InternalError:     "internal verification error",
}

// Valid reports whether c is one of the defined codes.
func (c Code) Valid() bool {
	return c >= Success && c <= InternalError
}

// String returns the stable snake_case name of the code.
func (c Code) String() string {
	if !c.Valid() {
		return "unknown"
	}
	return codeNames[c]
}

// Message returns a human-readable description of the code.
func (c Code) Message() string {
	if !c.Valid() {
		return "unknown verification result"
	}
	return codeMessages[c]
}

// Classify maps an error from the verification pipeline to its Code.
// A nil error is Success; an unrecognised error is InternalError.
func Classify(err error) Code {
	switch {
	case err == nil:
		return Success
	case errors.Is(err, keystore.ErrKeyLoad), errors.Is(err, keystore.ErrReleased):
		return KeyLoadError
	case errors.Is(err, token.ErrMalformed), errors.Is(err, servicenode.ErrMalformed):
		return MalformedToken
	case errors.Is(err, signature.ErrSignatureInvalid):
		return SignatureInvalid
	case errors.Is(err, signature.ErrExpired):
		return Expired
	case errors.Is(err, signature.ErrBroken):
		return Broken
	case errors.Is(err, policy.ErrSubjectMismatch):
		return SubjectMismatch
	case errors.Is(err, policy.ErrResourceMismatch):
		return ResourceMismatch
	case errors.Is(err, policy.ErrComponentNotFound):
		return ComponentNotFound
	default:
		return InternalError
	}
}

// Result is the immutable outcome of one verification call.
type Result struct {
	// Code classifies the outcome.
	Code Code

	// Err carries the detailed cause. Nil on Success.
	Err error
}

// OK reports whether the token was verified and authorized.
func (r Result) OK() bool {
	return r.Code == Success && r.Err == nil
}

// Message returns the detailed error text when available, otherwise
// the code's generic message.
func (r Result) Message() string {
	if r.Err != nil {
		return r.Err.Error()
	}
	return r.Code.Message()
}

// resultOf classifies err into a Result.
func resultOf(err error) Result {
	return Result{Code: Classify(err), Err: err}
}
