// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"crypto/ed25519"
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/bureau-foundation/captoken/lib/keystore"
	"github.com/bureau-foundation/captoken/lib/servicenode"
	"github.com/bureau-foundation/captoken/lib/token"
)

// Identity is a named signing keypair.
type Identity struct {
	Name    string
	Public  *keystore.PublicKey
	Private ed25519.PrivateKey
}

// NewIdentity generates a fresh Ed25519 identity.
func NewIdentity(t testing.TB, name string) Identity {
	t.Helper()
	public, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generating key for %s: %v", name, err)
	}
	key, err := keystore.FromEd25519(public)
	if err != nil {
		t.Fatalf("wrapping key for %s: %v", name, err)
	}
	return Identity{Name: name, Public: key, Private: private}
}

// Mint signs claims with the anchor identity.
func Mint(t testing.TB, anchor Identity, claims token.Claims) *token.Token {
	t.Helper()
	minted, err := token.Mint(anchor.Private, claims)
	if err != nil {
		t.Fatalf("minting token: %v", err)
	}
	return minted
}

// Delegate extends tok with one link per hop: the first signed by
// anchor, each following one by the previous hop. Every link embeds
// the component key of its hop.
func Delegate(t testing.TB, tok *token.Token, anchor Identity, hops ...Identity) *token.Token {
	t.Helper()
	signer := anchor
	signerName := ""
	if tok.Chained() {
		t.Fatalf("Delegate expects an undelegated token")
	}
	for _, hop := range hops {
		next, err := tok.Attest(signer.Private, token.Link{
			Signer:       signerName,
			Component:    hop.Name,
			ComponentKey: hop.Public.Ed25519(),
		})
		if err != nil {
			t.Fatalf("attesting link to %s: %v", hop.Name, err)
		}
		tok = next
		signer = hop
		signerName = hop.Name
	}
	return tok
}

// Encode returns the text form of tok.
func Encode(t testing.TB, tok *token.Token) string {
	t.Helper()
	text, err := tok.Encode()
	if err != nil {
		t.Fatalf("encoding token: %v", err)
	}
	return text
}

// Tamper returns the text form of tok with the last signature byte of
// block flipped. Block 0 is the authority block; block i is link i-1.
// tok itself is left unchanged.
func Tamper(t testing.TB, tok *token.Token, block int) string {
	t.Helper()
	if block < 0 || block > len(tok.Chain) {
		t.Fatalf("token has no block %d", block)
	}
	blocks := make([][]byte, 0, 1+len(tok.Chain))
	blocks = append(blocks, tok.Authority.Raw())
	for _, link := range tok.Chain {
		blocks = append(blocks, link.Block.Raw())
	}
	target := blocks[block]
	target[len(target)-1] ^= 0x01

	text, err := token.EncodeBlocks(blocks)
	if err != nil {
		t.Fatalf("encoding tampered token: %v", err)
	}
	return text
}

// ServiceNodes renders the service-node JSON list for identities.
func ServiceNodes(t testing.TB, identities ...Identity) []byte {
	t.Helper()
	nodes := make([]servicenode.Node, len(identities))
	for index, identity := range identities {
		nodes[index] = servicenode.Node{
			Component: identity.Name,
			PublicKey: identity.Public.String(),
		}
	}
	data, err := servicenode.Marshal(nodes)
	if err != nil {
		t.Fatalf("encoding service nodes: %v", err)
	}
	return data
}

// WriteFile writes data to name inside a fresh temporary directory and
// returns the path.
func WriteFile(t testing.TB, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	return path
}
