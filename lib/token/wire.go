// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package token

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/bureau-foundation/captoken/lib/codec"
)

// envelope is the outermost CBOR structure of a token.
type envelope struct {
	Version int      `cbor:"1,keyasint"`
	Blocks  [][]byte `cbor:"2,keyasint"`
}

// Decode parses the text form of a token. Decode is purely syntactic:
// it does not verify signatures, chain continuity, or validity windows.
func Decode(text string) (*Token, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty token", ErrMalformed)
	}
	if len(text) > MaxEncodedLength {
		return nil, fmt.Errorf("%w: token is %d bytes, limit %d", ErrMalformed, len(text), MaxEncodedLength)
	}

	data, err := decodeBase64(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return DecodeBytes(data)
}

// DecodeBytes parses the binary (CBOR envelope) form of a token.
func DecodeBytes(data []byte) (*Token, error) {
	var wire envelope
	if err := codec.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("%w: decoding envelope: %w", ErrMalformed, err)
	}
	if wire.Version != Version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrMalformed, wire.Version)
	}
	if len(wire.Blocks) == 0 {
		return nil, fmt.Errorf("%w: no authority block", ErrMalformed)
	}
	if len(wire.Blocks)-1 > MaxLinks {
		return nil, fmt.Errorf("%w: chain has %d links, limit %d", ErrMalformed, len(wire.Blocks)-1, MaxLinks)
	}

	authority, err := splitBlock(wire.Blocks[0])
	if err != nil {
		return nil, fmt.Errorf("%w: authority block: %w", ErrMalformed, err)
	}
	var claims Claims
	if err := codec.Unmarshal(authority.payload(), &claims); err != nil {
		return nil, fmt.Errorf("%w: decoding claims: %w", ErrMalformed, err)
	}
	if err := validateClaims(&claims); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	chain := make([]SignedLink, 0, len(wire.Blocks)-1)
	for index, raw := range wire.Blocks[1:] {
		block, err := splitBlock(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: link %d: %w", ErrMalformed, index, err)
		}
		var link Link
		if err := codec.Unmarshal(block.payload(), &link); err != nil {
			return nil, fmt.Errorf("%w: decoding link %d: %w", ErrMalformed, index, err)
		}
		if err := validateLink(index, &link); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		chain = append(chain, SignedLink{Link: link, Block: block})
	}

	return &Token{
		Claims:    claims,
		Authority: authority,
		Chain:     chain,
	}, nil
}

// Encode returns the text form of the token.
func (t *Token) Encode() (string, error) {
	data, err := t.EncodeBytes()
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// EncodeBytes returns the binary (CBOR envelope) form of the token.
func (t *Token) EncodeBytes() ([]byte, error) {
	blocks := make([][]byte, 0, 1+len(t.Chain))
	blocks = append(blocks, t.Authority.raw)
	for _, link := range t.Chain {
		blocks = append(blocks, link.Block.raw)
	}
	return marshalEnvelope(blocks)
}

// EncodeBlocks returns the text form of an envelope holding raw blocks,
// authority first. The blocks are neither split nor verified; pass the
// result to Decode to check its structure.
func EncodeBlocks(blocks [][]byte) (string, error) {
	data, err := marshalEnvelope(blocks)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

func marshalEnvelope(blocks [][]byte) ([]byte, error) {
	data, err := codec.Marshal(envelope{Version: Version, Blocks: blocks})
	if err != nil {
		return nil, fmt.Errorf("token: encoding envelope: %w", err)
	}
	return data, nil
}

// decodeBase64 accepts unpadded or padded base64url, and standard
// base64 for tokens that passed through tools that re-encode them.
func decodeBase64(text string) ([]byte, error) {
	encodings := []*base64.Encoding{
		base64.RawURLEncoding,
		base64.URLEncoding,
		base64.RawStdEncoding,
		base64.StdEncoding,
	}
	var firstErr error
	for _, encoding := range encodings {
		data, err := encoding.Strict().DecodeString(text)
		if err == nil {
			return data, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, fmt.Errorf("decoding base64: %w", firstErr)
}

// splitBlock separates payload and signature. The block must hold at
// least one payload byte.
func splitBlock(raw []byte) (Block, error) {
	if len(raw) <= signatureSize {
		return Block{}, fmt.Errorf("block is %d bytes, too short for a signature", len(raw))
	}
	owned := bytes.Clone(raw)
	return Block{raw: owned}, nil
}

func validateClaims(claims *Claims) error {
	if claims.Subject == "" {
		return fmt.Errorf("claims: missing subject")
	}
	if claims.Resource == "" {
		return fmt.Errorf("claims: missing resource")
	}
	if err := validatePermissions(claims.Permissions); err != nil {
		return fmt.Errorf("claims: %w", err)
	}
	if claims.ExpiresAt < 0 || claims.NotBefore < 0 || claims.IssuedAt < 0 {
		return fmt.Errorf("claims: negative timestamp")
	}
	if claims.ExpiresAt != 0 && claims.NotBefore != 0 && claims.NotBefore >= claims.ExpiresAt {
		return fmt.Errorf("claims: not_before %d is not before expires_at %d", claims.NotBefore, claims.ExpiresAt)
	}
	return nil
}

func validateLink(index int, link *Link) error {
	if link.Component == "" {
		return fmt.Errorf("link %d: missing component", index)
	}
	if index == 0 && link.Signer != "" {
		return fmt.Errorf("link 0: root link must not name a signer, got %q", link.Signer)
	}
	if index > 0 && link.Signer == "" {
		return fmt.Errorf("link %d: missing signer", index)
	}
	if len(link.Previous) != DigestSize {
		return fmt.Errorf("link %d: previous digest is %d bytes, want %d", index, len(link.Previous), DigestSize)
	}
	if link.ComponentKey != nil && len(link.ComponentKey) != 32 {
		return fmt.Errorf("link %d: component key is %d bytes, want 32", index, len(link.ComponentKey))
	}
	if link.Attenuation != nil {
		if err := validatePermissions(link.Attenuation.Permissions); err != nil {
			return fmt.Errorf("link %d: attenuation: %w", index, err)
		}
	}
	if link.ExpiresAt < 0 {
		return fmt.Errorf("link %d: negative expiry", index)
	}
	return nil
}

func validatePermissions(permissions []string) error {
	for index, permission := range permissions {
		if permission == "" {
			return fmt.Errorf("permission %d is empty", index)
		}
	}
	return nil
}
