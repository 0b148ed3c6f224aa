// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package signature

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/bureau-foundation/captoken/lib/keystore"
	"github.com/bureau-foundation/captoken/lib/token"
)

var (
	// ErrSignatureInvalid means a block's signature or chaining digest
	// did not verify.
	ErrSignatureInvalid = errors.New("signature: invalid signature")

	// ErrExpired means every signature verified but the current time
	// is outside the token's validity window.
	ErrExpired = errors.New("signature: token outside its validity window")

	// ErrBroken means a link's signer does not follow from the previous
	// link, or its key could not be resolved.
	ErrBroken = errors.New("signature: delegation chain broken")
)

// KeyResolver maps a component identity to its public key.
type KeyResolver interface {
	Key(component string) (*keystore.PublicKey, bool)
}

// Options controls a single chain verification.
type Options struct {
	// Now is the verification time. Required for validity checks.
	Now time.Time

	// Leeway widens the validity window on both ends to absorb clock
	// skew between issuer and verifier.
	Leeway time.Duration

	// Nodes, when non-nil, selects service-chain mode.
	Nodes KeyResolver
}

// VerifyChain checks every signature of tok against anchor and the
// keys of the declared chain participants, then the validity window.
// It returns nil only when all checks pass. Errors wrap one of
// [ErrSignatureInvalid], [ErrBroken], [ErrExpired], or
// [keystore.ErrReleased] when the anchor has been released.
func VerifyChain(tok *token.Token, anchor *keystore.PublicKey, options Options) error {
	if tok == nil {
		return fmt.Errorf("%w: nil token", ErrSignatureInvalid)
	}
	if anchor == nil {
		return fmt.Errorf("signature: nil trust anchor")
	}

	if err := verifyBlock(anchor, tok.Authority); err != nil {
		return fmt.Errorf("authority block: %w", err)
	}

	previous := tok.Authority
	for index, link := range tok.Chain {
		if !bytes.Equal(link.Previous, previous.Digest()) {
			return fmt.Errorf("%w: link %d (%s) does not chain from the previous block",
				ErrSignatureInvalid, index, link.Component)
		}

		key, err := linkKey(tok, index, anchor, options.Nodes)
		if err != nil {
			return err
		}
		if err := verifyBlock(key, link.Block); err != nil {
			return fmt.Errorf("link %d (%s): %w", index, link.Component, err)
		}
		previous = link.Block
	}

	if options.Nodes != nil && tok.Chained() {
		last := tok.Chain[len(tok.Chain)-1].Component
		if _, ok := options.Nodes.Key(last); !ok {
			return fmt.Errorf("%w: component %q has no service node", ErrBroken, last)
		}
	}

	return checkWindow(tok, options.Now, options.Leeway)
}

// linkKey returns the key that must have signed link index.
func linkKey(tok *token.Token, index int, anchor *keystore.PublicKey, nodes KeyResolver) (*keystore.PublicKey, error) {
	link := tok.Chain[index]
	if index == 0 {
		return anchor, nil
	}

	expected := tok.Chain[index-1].Component
	if link.Signer != expected {
		return nil, fmt.Errorf("%w: link %d signed by %q, previous link delegated to %q",
			ErrBroken, index, link.Signer, expected)
	}

	if nodes != nil {
		key, ok := nodes.Key(link.Signer)
		if !ok {
			return nil, fmt.Errorf("%w: signer %q of link %d has no service node",
				ErrBroken, link.Signer, index)
		}
		return key, nil
	}

	embedded := tok.Chain[index-1].ComponentKey
	if len(embedded) == 0 {
		return nil, fmt.Errorf("%w: link %d delegated to %q without a component key",
			ErrBroken, index-1, expected)
	}
	key, err := keystore.FromEd25519(ed25519.PublicKey(embedded))
	if err != nil {
		return nil, fmt.Errorf("%w: component key of %q: %w", ErrBroken, expected, err)
	}
	return key, nil
}

func verifyBlock(key *keystore.PublicKey, block token.Block) error {
	valid, err := key.Verify(block.Payload(), block.Signature())
	if err != nil {
		return err
	}
	if !valid {
		return ErrSignatureInvalid
	}
	return nil
}

// checkWindow applies the effective expiry (earliest of claims and
// links) and not-before bound. A token is expired at and after its
// expiry instant.
func checkWindow(tok *token.Token, now time.Time, leeway time.Duration) error {
	if expires := tok.ExpiresAt(); !expires.IsZero() && !now.Before(expires.Add(leeway)) {
		return fmt.Errorf("%w: expired at %s", ErrExpired, expires.UTC().Format(time.RFC3339))
	}
	if notBefore := tok.NotBefore(); !notBefore.IsZero() && now.Add(leeway).Before(notBefore) {
		return fmt.Errorf("%w: not valid before %s", ErrExpired, notBefore.UTC().Format(time.RFC3339))
	}
	return nil
}
