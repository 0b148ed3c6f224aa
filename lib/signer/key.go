// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package signer

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/bureau-foundation/captoken/lib/keystore"
)

// ErrClosed is returned when signing with a closed key.
var ErrClosed = errors.New("signer: key has been closed")

// Key is an Ed25519 signing key held in locked memory. Safe for
// concurrent use. The caller must call Close when done.
type Key struct {
	seed   *lockedBuffer
	public ed25519.PublicKey
}

// Generate creates a new random signing key.
func Generate() (*Key, error) {
	seed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(rand.Reader, seed); err != nil {
		return nil, fmt.Errorf("signer: generating seed: %w", err)
	}
	return FromSeed(seed)
}

// FromSeed builds a key from a 32-byte seed. The seed slice is zeroed.
func FromSeed(seed []byte) (*Key, error) {
	if len(seed) != ed25519.SeedSize {
		size := len(seed)
		zero(seed)
		return nil, fmt.Errorf("signer: seed has %d bytes, want %d", size, ed25519.SeedSize)
	}

	private := ed25519.NewKeyFromSeed(seed)
	public := make(ed25519.PublicKey, ed25519.PublicKeySize)
	copy(public, private.Public().(ed25519.PublicKey))
	zero(private)

	buffer, err := newLockedBuffer(seed)
	if err != nil {
		zero(seed)
		return nil, err
	}
	return &Key{seed: buffer, public: public}, nil
}

// Public implements crypto.Signer. The result is an ed25519.PublicKey.
func (k *Key) Public() crypto.PublicKey {
	public := make(ed25519.PublicKey, len(k.public))
	copy(public, k.public)
	return public
}

// PublicKey returns the verification handle for this key.
func (k *Key) PublicKey() *keystore.PublicKey {
	key, err := keystore.FromEd25519(k.public)
	if err != nil {
		panic("signer: public key of wrong size: " + err.Error())
	}
	return key
}

// Sign implements crypto.Signer. Only pure Ed25519 (opts.HashFunc() ==
// 0) is supported.
func (k *Key) Sign(_ io.Reader, message []byte, opts crypto.SignerOpts) ([]byte, error) {
	if opts != nil && opts.HashFunc() != crypto.Hash(0) {
		return nil, fmt.Errorf("signer: Ed25519 signs unhashed messages, got hash %v", opts.HashFunc())
	}
	var signature []byte
	err := k.seed.with(func(seed []byte) error {
		private := ed25519.NewKeyFromSeed(seed)
		signature = ed25519.Sign(private, message)
		zero(private)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return signature, nil
}

// Close releases the seed memory. Idempotent.
func (k *Key) Close() error {
	return k.seed.Close()
}
