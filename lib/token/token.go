// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package token

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"time"
)

// Version is the only envelope version this package reads or writes.
const Version = 1

// signatureSize is the fixed size of an Ed25519 signature.
const signatureSize = ed25519.SignatureSize

// DigestSize is the size of a link's Previous digest.
const DigestSize = 32

// Decoding limits.
const (
	// MaxLinks bounds the length of a delegation chain.
	MaxLinks = 32

	// MaxEncodedLength bounds the text form of a token.
	MaxEncodedLength = 64 << 10
)

// ErrMalformed matches every structural decoding failure.
var ErrMalformed = errors.New("token: malformed token")

// Claims is the authority block payload.
type Claims struct {
	// ID is an opaque token identifier chosen by the issuer (hex
	// string). Used in logs only.
	ID string `cbor:"1,keyasint,omitempty"`

	// Subject is the principal the token was issued to. Required.
	Subject string `cbor:"2,keyasint"`

	// Resource is the resource the token grants access to. Required.
	Resource string `cbor:"3,keyasint"`

	// Permissions are permission patterns (see lib/permission)
	// granted on Resource.
	Permissions []string `cbor:"4,keyasint,omitempty"`

	// IssuedAt is a Unix timestamp (seconds).
	IssuedAt int64 `cbor:"5,keyasint,omitempty"`

	// NotBefore is a Unix timestamp before which the token is not
	// yet valid. Zero means no lower bound.
	NotBefore int64 `cbor:"6,keyasint,omitempty"`

	// ExpiresAt is a Unix timestamp at and after which the token is
	// no longer valid. Zero means no expiry.
	ExpiresAt int64 `cbor:"7,keyasint,omitempty"`
}

// Attenuation narrows the permissions a token carries past the link
// that declares it. An attenuation with no permissions grants nothing.
type Attenuation struct {
	Permissions []string `cbor:"1,keyasint"`
}

// Link is the payload of one delegation chain block.
type Link struct {
	// Signer is the identity whose key signed this link. Empty for
	// the first link, which the trust anchor signs.
	Signer string `cbor:"1,keyasint,omitempty"`

	// Component is the identity this link hands the token to: the
	// next hop in the chain. Required.
	Component string `cbor:"2,keyasint"`

	// ComponentKey optionally embeds the raw Ed25519 public key of
	// Component, so the next link can be verified without an
	// out-of-band service-node list.
	ComponentKey []byte `cbor:"3,keyasint,omitempty"`

	// Previous is the BLAKE3 digest of the block before this one.
	Previous []byte `cbor:"4,keyasint"`

	// Attenuation, when present, restricts permissions from this
	// link onward.
	Attenuation *Attenuation `cbor:"5,keyasint,omitempty"`

	// ExpiresAt, when non-zero, shortens the validity window.
	ExpiresAt int64 `cbor:"6,keyasint,omitempty"`
}

// Block is one signed unit of a token: a payload and the signature
// over it. The accessors return copies; a Block's bytes cannot be
// changed once decoded or signed.
type Block struct {
	raw []byte
}

// Payload returns a copy of the signed payload bytes.
func (b Block) Payload() []byte { return bytes.Clone(b.payload()) }

// Signature returns a copy of the 64-byte signature.
func (b Block) Signature() []byte { return bytes.Clone(b.signature()) }

// Raw returns a copy of payload and signature as they appear on the
// wire.
func (b Block) Raw() []byte { return bytes.Clone(b.raw) }

func (b Block) payload() []byte { return b.raw[:len(b.raw)-signatureSize] }

func (b Block) signature() []byte { return b.raw[len(b.raw)-signatureSize:] }

// SignedLink is a decoded chain link together with its block.
type SignedLink struct {
	Link
	Block Block
}

// Token is a decoded token. Tokens returned by this package are never
// modified afterwards and are safe to share between goroutines; callers
// must treat the exported fields as read-only.
type Token struct {
	// Claims is the decoded authority payload.
	Claims Claims

	// Authority is the signed authority block.
	Authority Block

	// Chain holds the delegation links in order, root first. Empty
	// for a token that has not been delegated.
	Chain []SignedLink
}

// Chained reports whether the token carries any delegation links.
func (t *Token) Chained() bool { return len(t.Chain) > 0 }

// Components returns the identities declared by the chain, in order.
func (t *Token) Components() []string {
	components := make([]string, len(t.Chain))
	for index, link := range t.Chain {
		components[index] = link.Component
	}
	return components
}

// lastBlock returns the most recently appended block.
func (t *Token) lastBlock() Block {
	if len(t.Chain) == 0 {
		return t.Authority
	}
	return t.Chain[len(t.Chain)-1].Block
}

// ExpiresAt returns the effective expiry: the earliest non-zero expiry
// of the claims and every link. The zero time means no expiry.
func (t *Token) ExpiresAt() time.Time {
	earliest := t.Claims.ExpiresAt
	for _, link := range t.Chain {
		if link.ExpiresAt != 0 && (earliest == 0 || link.ExpiresAt < earliest) {
			earliest = link.ExpiresAt
		}
	}
	if earliest == 0 {
		return time.Time{}
	}
	return time.Unix(earliest, 0)
}

// NotBefore returns the start of the validity window, or the zero time.
func (t *Token) NotBefore() time.Time {
	if t.Claims.NotBefore == 0 {
		return time.Time{}
	}
	return time.Unix(t.Claims.NotBefore, 0)
}
