// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package token

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/bureau-foundation/captoken/lib/codec"
)

// Mint signs claims with the trust-anchor key and returns an undelegated
// token. A random ID is assigned when claims.ID is empty.
func Mint(anchor crypto.Signer, claims Claims) (*Token, error) {
	if claims.ID == "" {
		id, err := randomID()
		if err != nil {
			return nil, err
		}
		claims.ID = id
	}
	if err := validateClaims(&claims); err != nil {
		return nil, fmt.Errorf("token: %w", err)
	}

	block, err := signPayload(anchor, claims)
	if err != nil {
		return nil, err
	}
	return &Token{Claims: claims, Authority: block}, nil
}

// Attest appends a link signed by key and returns the extended token.
// The receiver is not modified. Previous is filled in automatically.
//
// The first link must be signed by the trust anchor and leave Signer
// empty; later links must be signed by the key of the component the
// previous link declared, with Signer set to that component.
func (t *Token) Attest(key crypto.Signer, link Link) (*Token, error) {
	if len(t.Chain) >= MaxLinks {
		return nil, fmt.Errorf("token: chain already has %d links", len(t.Chain))
	}
	link.Previous = t.lastBlock().Digest()
	if err := validateLink(len(t.Chain), &link); err != nil {
		return nil, fmt.Errorf("token: %w", err)
	}

	block, err := signPayload(key, link)
	if err != nil {
		return nil, err
	}

	chain := make([]SignedLink, len(t.Chain), len(t.Chain)+1)
	copy(chain, t.Chain)
	chain = append(chain, SignedLink{Link: link, Block: block})
	return &Token{Claims: t.Claims, Authority: t.Authority, Chain: chain}, nil
}

// signPayload CBOR-encodes payload and signs it with key.
func signPayload(key crypto.Signer, payload any) (Block, error) {
	encoded, err := codec.Marshal(payload)
	if err != nil {
		return Block{}, fmt.Errorf("token: encoding payload: %w", err)
	}
	if _, ok := key.Public().(ed25519.PublicKey); !ok {
		return Block{}, fmt.Errorf("token: signing key is %T, want Ed25519", key.Public())
	}
	signature, err := key.Sign(rand.Reader, encoded, crypto.Hash(0))
	if err != nil {
		return Block{}, fmt.Errorf("token: signing payload: %w", err)
	}
	if len(signature) != signatureSize {
		return Block{}, fmt.Errorf("token: signature is %d bytes, want %d", len(signature), signatureSize)
	}

	raw := make([]byte, len(encoded)+signatureSize)
	copy(raw, encoded)
	copy(raw[len(encoded):], signature)
	return Block{raw: raw}, nil
}

func randomID() (string, error) {
	var id [16]byte
	if _, err := rand.Read(id[:]); err != nil {
		return "", fmt.Errorf("token: generating id: %w", err)
	}
	return hex.EncodeToString(id[:]), nil
}
