// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package keystore

import (
	"bytes"
	"crypto/ed25519"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/ssh"
)

// Algorithm identifies the signature algorithm a key belongs to.
type Algorithm string

// Ed25519 is the only algorithm tokens are signed with.
const Ed25519 Algorithm = "ed25519"

// textPrefix introduces the text form of an Ed25519 key.
const textPrefix = string(Ed25519) + "/"

// maxKeyFileSize bounds how much of a key file is read. PEM certificates
// are the largest accepted input and stay well under this.
const maxKeyFileSize = 64 << 10

var (
	// ErrKeyLoad matches every error returned while loading or
	// parsing key material.
	ErrKeyLoad = errors.New("keystore: cannot load public key")

	// ErrUnsupportedAlgorithm is returned (wrapped with ErrKeyLoad)
	// for well-formed keys of an algorithm other than Ed25519.
	ErrUnsupportedAlgorithm = errors.New("keystore: unsupported key algorithm")

	// ErrReleased is returned by operations on a released key.
	ErrReleased = errors.New("keystore: public key has been released")
)

// fingerprintDomain is the BLAKE3 key for key fingerprints: the ASCII
// domain name zero-padded to 32 bytes.
var fingerprintDomain = [32]byte{
	'c', 'a', 'p', 't', 'o', 'k', 'e', 'n', '.', 'k', 'e', 'y', '.',
	'f', 'i', 'n', 'g', 'e', 'r', 'p', 'r', 'i', 'n', 't',
}

// PublicKey is an immutable public key handle.
type PublicKey struct {
	algorithm Algorithm
	material  ed25519.PublicKey
	id        string
	released  atomic.Bool
}

// LoadFile reads and parses the key at path.
func LoadFile(path string) (*PublicKey, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeyLoad, err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxKeyFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrKeyLoad, path, err)
	}
	if len(data) > maxKeyFileSize {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrKeyLoad, path, maxKeyFileSize)
	}

	key, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return key, nil
}

// Parse decodes key material in any of the accepted encodings.
func Parse(data []byte) (*PublicKey, error) {
	if block, _ := pem.Decode(data); block != nil {
		return parsePEMBlock(block)
	}

	trimmed := bytes.TrimSpace(data)
	switch {
	case bytes.HasPrefix(trimmed, []byte(textPrefix)):
		return ParseText(string(trimmed))
	case bytes.HasPrefix(trimmed, []byte("ssh-")):
		return parseAuthorizedKey(trimmed)
	case len(data) == ed25519.PublicKeySize:
		return FromEd25519(ed25519.PublicKey(data))
	}
	return nil, fmt.Errorf("%w: unrecognized key encoding (%d bytes)", ErrKeyLoad, len(data))
}

// ParseText decodes the "ed25519/<hex>" text form. PEM and OpenSSH
// encodings passed as text are accepted too.
func ParseText(text string) (*PublicKey, error) {
	text = strings.TrimSpace(text)
	encoded, found := strings.CutPrefix(text, textPrefix)
	if !found {
		if text == "" {
			return nil, fmt.Errorf("%w: empty key", ErrKeyLoad)
		}
		if strings.HasPrefix(text, "-----BEGIN") || strings.HasPrefix(text, "ssh-") {
			return Parse([]byte(text))
		}
		algorithm, _, _ := strings.Cut(text, "/")
		return nil, fmt.Errorf("%w: %w %q", ErrKeyLoad, ErrUnsupportedAlgorithm, algorithm)
	}

	material, err := hex.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding hex key: %w", ErrKeyLoad, err)
	}
	return FromEd25519(material)
}

// FromEd25519 wraps raw Ed25519 key bytes. The bytes are copied.
func FromEd25519(material ed25519.PublicKey) (*PublicKey, error) {
	if len(material) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: Ed25519 key has %d bytes, want %d", ErrKeyLoad, len(material), ed25519.PublicKeySize)
	}
	owned := make(ed25519.PublicKey, ed25519.PublicKeySize)
	copy(owned, material)
	return &PublicKey{
		algorithm: Ed25519,
		material:  owned,
		id:        fingerprint(owned),
	}, nil
}

func parsePEMBlock(block *pem.Block) (*PublicKey, error) {
	var parsed any
	var err error
	switch block.Type {
	case "PUBLIC KEY":
		parsed, err = x509.ParsePKIXPublicKey(block.Bytes)
	case "CERTIFICATE":
		var certificate *x509.Certificate
		certificate, err = x509.ParseCertificate(block.Bytes)
		if err == nil {
			parsed = certificate.PublicKey
		}
	default:
		return nil, fmt.Errorf("%w: unsupported PEM block type %q", ErrKeyLoad, block.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: parsing %s block: %w", ErrKeyLoad, block.Type, err)
	}
	return fromCryptoKey(parsed)
}

func parseAuthorizedKey(line []byte) (*PublicKey, error) {
	parsed, _, _, _, err := ssh.ParseAuthorizedKey(line)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing OpenSSH key: %w", ErrKeyLoad, err)
	}
	cryptoKey, ok := parsed.(ssh.CryptoPublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: %w %q", ErrKeyLoad, ErrUnsupportedAlgorithm, parsed.Type())
	}
	return fromCryptoKey(cryptoKey.CryptoPublicKey())
}

func fromCryptoKey(parsed any) (*PublicKey, error) {
	material, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: %w %T", ErrKeyLoad, ErrUnsupportedAlgorithm, parsed)
	}
	return FromEd25519(material)
}

// fingerprint returns the hex BLAKE3 keyed digest of the key material,
// truncated to 16 bytes. Used for logging and registry listings.
func fingerprint(material []byte) string {
	hasher, err := blake3.NewKeyed(fingerprintDomain[:])
	if err != nil {
		// Only fails for keys that are not 32 bytes.
		panic("keystore: BLAKE3 keyed hasher: " + err.Error())
	}
	hasher.Write(material)
	sum := hasher.Sum(nil)
	return hex.EncodeToString(sum[:16])
}

// Algorithm returns the key's algorithm tag.
func (k *PublicKey) Algorithm() Algorithm { return k.algorithm }

// ID returns a short stable fingerprint of the key, safe to log.
func (k *PublicKey) ID() string { return k.id }

// Verify reports whether signature is a valid signature of message
// under this key. Returns ErrReleased after Release.
func (k *PublicKey) Verify(message, signature []byte) (bool, error) {
	if k.released.Load() {
		return false, ErrReleased
	}
	if len(signature) != ed25519.SignatureSize {
		return false, nil
	}
	return ed25519.Verify(k.material, message, signature), nil
}

// Ed25519 returns a copy of the raw key bytes.
func (k *PublicKey) Ed25519() ed25519.PublicKey {
	owned := make(ed25519.PublicKey, len(k.material))
	copy(owned, k.material)
	return owned
}

// Equal reports whether two handles hold the same key material.
func (k *PublicKey) Equal(other *PublicKey) bool {
	if k == nil || other == nil {
		return k == other
	}
	return k.algorithm == other.algorithm && k.material.Equal(other.material)
}

// String returns the "ed25519/<hex>" text form.
func (k *PublicKey) String() string {
	return textPrefix + hex.EncodeToString(k.material)
}

// MarshalText implements encoding.TextMarshaler with the text form.
func (k *PublicKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// EncodePEM returns the key as a PEM "PUBLIC KEY" block.
func (k *PublicKey) EncodePEM() ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(k.material)
	if err != nil {
		return nil, fmt.Errorf("keystore: encoding public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// Release marks the handle as no longer usable. Safe to call more than
// once; only the first call has an effect.
func (k *PublicKey) Release() {
	k.released.Store(true)
}

// Released reports whether Release has been called.
func (k *PublicKey) Released() bool {
	return k.released.Load()
}
