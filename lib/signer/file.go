// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package signer

import (
	"bytes"
	"crypto/ed25519"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"filippo.io/age"
)

const (
	privateKeyFile       = "signing-key"
	sealedPrivateKeyFile = "signing-key.age"
	publicKeyFile        = "signing-key.pub"
)

// ageHeader starts every binary age file.
var ageHeader = []byte("age-encryption.org/v1\n")

// Paths reports where SaveFiles wrote a key.
type Paths struct {
	Private string
	Public  string
}

// SaveFiles writes key into directory. With no recipients the seed is
// written in the clear (mode 0600); otherwise it is age-encrypted to
// every recipient (age1... strings). The public key is written as PEM
// (mode 0644).
func SaveFiles(directory string, key *Key, recipients []string) (Paths, error) {
	var paths Paths

	parsed := make([]age.Recipient, 0, len(recipients))
	for _, recipient := range recipients {
		value, err := age.ParseX25519Recipient(strings.TrimSpace(recipient))
		if err != nil {
			return paths, fmt.Errorf("parsing recipient %q: %w", recipient, err)
		}
		parsed = append(parsed, value)
	}

	err := key.seed.with(func(seed []byte) error {
		if len(parsed) == 0 {
			paths.Private = filepath.Join(directory, privateKeyFile)
			return writeFile(paths.Private, seed, 0o600)
		}

		var ciphertext bytes.Buffer
		writer, err := age.Encrypt(&ciphertext, parsed...)
		if err != nil {
			return fmt.Errorf("creating age encryptor: %w", err)
		}
		if _, err := writer.Write(seed); err != nil {
			return fmt.Errorf("writing seed to age encryptor: %w", err)
		}
		if err := writer.Close(); err != nil {
			return fmt.Errorf("finalizing age encryption: %w", err)
		}
		paths.Private = filepath.Join(directory, sealedPrivateKeyFile)
		return writeFile(paths.Private, ciphertext.Bytes(), 0o600)
	})
	if err != nil {
		return Paths{}, err
	}

	encoded, err := key.PublicKey().EncodePEM()
	if err != nil {
		return Paths{}, err
	}
	paths.Public = filepath.Join(directory, publicKeyFile)
	if err := writeFile(paths.Public, encoded, 0o644); err != nil {
		return Paths{}, err
	}
	return paths, nil
}

// LoadFile reads a signing key written by SaveFiles. Sealed files need
// at least one matching age identity. A 64-byte Ed25519 private key
// file is also accepted.
func LoadFile(path string, identities ...age.Identity) (*Key, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading signing key: %w", err)
	}
	defer zero(data)

	if bytes.HasPrefix(data, ageHeader) {
		if len(identities) == 0 {
			return nil, fmt.Errorf("%s is age-encrypted and no identity was given", path)
		}
		reader, err := age.Decrypt(bytes.NewReader(data), identities...)
		if err != nil {
			return nil, fmt.Errorf("decrypting %s: %w", path, err)
		}
		plaintext, err := io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("reading decrypted %s: %w", path, err)
		}
		defer zero(plaintext)
		return fromFileBytes(path, plaintext)
	}
	return fromFileBytes(path, data)
}

// LoadIdentities parses an age identity file (AGE-SECRET-KEY-1 lines).
func LoadIdentities(path string) ([]age.Identity, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening identity file: %w", err)
	}
	defer file.Close()

	identities, err := age.ParseIdentities(file)
	if err != nil {
		return nil, fmt.Errorf("parsing identity file %s: %w", path, err)
	}
	return identities, nil
}

func fromFileBytes(path string, data []byte) (*Key, error) {
	switch len(data) {
	case ed25519.SeedSize:
		seed := make([]byte, ed25519.SeedSize)
		copy(seed, data)
		return FromSeed(seed)
	case ed25519.PrivateKeySize:
		seed := make([]byte, ed25519.SeedSize)
		copy(seed, ed25519.PrivateKey(data).Seed())
		return FromSeed(seed)
	default:
		return nil, fmt.Errorf("%s: signing key has %d bytes, want %d or %d",
			path, len(data), ed25519.SeedSize, ed25519.PrivateKeySize)
	}
}

func writeFile(path string, data []byte, mode os.FileMode) error {
	if err := os.WriteFile(path, data, mode); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
