// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package signer

import (
	"bytes"
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"filippo.io/age"

	"github.com/bureau-foundation/captoken/lib/keystore"
	"github.com/bureau-foundation/captoken/lib/token"
)

func generate(t *testing.T) *Key {
	t.Helper()
	key, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	t.Cleanup(func() { key.Close() })
	return key
}

func TestSignVerifies(t *testing.T) {
	key := generate(t)
	message := []byte("authority block payload")

	signature, err := key.Sign(rand.Reader, message, crypto.Hash(0))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	public := key.Public().(ed25519.PublicKey)
	if !ed25519.Verify(public, message, signature) {
		t.Error("signature does not verify under Public()")
	}
	valid, err := key.PublicKey().Verify(message, signature)
	if err != nil || !valid {
		t.Errorf("keystore Verify = %v, %v", valid, err)
	}
}

func TestSignRejectsHashedMessages(t *testing.T) {
	key := generate(t)
	digest := sha256.Sum256([]byte("payload"))
	if _, err := key.Sign(rand.Reader, digest[:], crypto.SHA256); err == nil {
		t.Error("Sign with SHA256 opts should fail")
	}
}

func TestFromSeedDeterministic(t *testing.T) {
	seed := bytes.Repeat([]byte{7}, ed25519.SeedSize)
	expected := ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey)

	source := bytes.Clone(seed)
	key, err := FromSeed(source)
	if err != nil {
		t.Fatalf("FromSeed: %v", err)
	}
	defer key.Close()

	if !key.Public().(ed25519.PublicKey).Equal(expected) {
		t.Error("public key does not match the seed")
	}
	if !bytes.Equal(source, make([]byte, ed25519.SeedSize)) {
		t.Error("FromSeed did not zero the caller's seed")
	}

	if _, err := FromSeed(make([]byte, 16)); err == nil {
		t.Error("FromSeed should reject a short seed")
	}
}

func TestClose(t *testing.T) {
	key, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if err := key.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := key.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := key.Sign(rand.Reader, []byte("x"), crypto.Hash(0)); !errors.Is(err, ErrClosed) {
		t.Errorf("Sign after Close error = %v, want ErrClosed", err)
	}
}

func TestConcurrentSign(t *testing.T) {
	key := generate(t)
	public := key.Public().(ed25519.PublicKey)

	var wait sync.WaitGroup
	for worker := range 8 {
		wait.Add(1)
		go func() {
			defer wait.Done()
			message := []byte{byte(worker)}
			signature, err := key.Sign(rand.Reader, message, crypto.Hash(0))
			if err != nil {
				t.Errorf("Sign: %v", err)
				return
			}
			if !ed25519.Verify(public, message, signature) {
				t.Errorf("worker %d: signature does not verify", worker)
			}
		}()
	}
	wait.Wait()
}

func TestMintWithKey(t *testing.T) {
	key := generate(t)
	minted, err := token.Mint(key, token.Claims{Subject: "svc-a", Resource: "/orders"})
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	valid, err := key.PublicKey().Verify(minted.Authority.Payload(), minted.Authority.Signature())
	if err != nil || !valid {
		t.Errorf("authority block does not verify: %v, %v", valid, err)
	}
}

func TestSaveLoadPlain(t *testing.T) {
	key := generate(t)
	directory := t.TempDir()

	paths, err := SaveFiles(directory, key, nil)
	if err != nil {
		t.Fatalf("SaveFiles: %v", err)
	}
	if filepath.Base(paths.Private) != privateKeyFile {
		t.Errorf("private path = %s", paths.Private)
	}
	info, err := os.Stat(paths.Private)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("private key mode = %v, want 0600", info.Mode().Perm())
	}

	loaded, err := LoadFile(paths.Private)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	defer loaded.Close()
	if !loaded.PublicKey().Equal(key.PublicKey()) {
		t.Error("loaded key differs from saved key")
	}

	public, err := keystore.LoadFile(paths.Public)
	if err != nil {
		t.Fatalf("keystore.LoadFile: %v", err)
	}
	if !public.Equal(key.PublicKey()) {
		t.Error("public key file does not match")
	}
}

func TestSaveLoadSealed(t *testing.T) {
	key := generate(t)
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		t.Fatalf("GenerateX25519Identity: %v", err)
	}
	other, err := age.GenerateX25519Identity()
	if err != nil {
		t.Fatalf("GenerateX25519Identity: %v", err)
	}

	paths, err := SaveFiles(t.TempDir(), key, []string{identity.Recipient().String()})
	if err != nil {
		t.Fatalf("SaveFiles: %v", err)
	}
	if filepath.Base(paths.Private) != sealedPrivateKeyFile {
		t.Errorf("private path = %s", paths.Private)
	}
	ciphertext, err := os.ReadFile(paths.Private)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.HasPrefix(ciphertext, ageHeader) {
		t.Error("sealed key is not an age file")
	}

	if _, err := LoadFile(paths.Private); err == nil {
		t.Error("LoadFile without identity should fail")
	}
	if _, err := LoadFile(paths.Private, other); err == nil {
		t.Error("LoadFile with the wrong identity should fail")
	}

	identityPath := filepath.Join(t.TempDir(), "identity.txt")
	if err := os.WriteFile(identityPath, []byte("# operator\n"+identity.String()+"\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	identities, err := LoadIdentities(identityPath)
	if err != nil {
		t.Fatalf("LoadIdentities: %v", err)
	}
	loaded, err := LoadFile(paths.Private, identities...)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	defer loaded.Close()
	if !loaded.PublicKey().Equal(key.PublicKey()) {
		t.Error("unsealed key differs from saved key")
	}
}

func TestSaveRejectsBadRecipient(t *testing.T) {
	key := generate(t)
	if _, err := SaveFiles(t.TempDir(), key, []string{"age1notarecipient"}); err == nil {
		t.Error("SaveFiles should reject an invalid recipient")
	}
}

func TestLoadFileFormats(t *testing.T) {
	_, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	directory := t.TempDir()

	fullPath := filepath.Join(directory, "full")
	if err := os.WriteFile(fullPath, private, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	loaded, err := LoadFile(fullPath)
	if err != nil {
		t.Fatalf("LoadFile 64-byte key: %v", err)
	}
	defer loaded.Close()
	if !loaded.Public().(ed25519.PublicKey).Equal(private.Public()) {
		t.Error("64-byte private key loaded incorrectly")
	}

	shortPath := filepath.Join(directory, "short")
	if err := os.WriteFile(shortPath, []byte("short"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := LoadFile(shortPath); err == nil {
		t.Error("LoadFile should reject a 5-byte file")
	}
	if _, err := LoadFile(filepath.Join(directory, "missing")); err == nil {
		t.Error("LoadFile should fail for a missing file")
	}
}
