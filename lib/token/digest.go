// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package token

import "github.com/zeebo/blake3"

// linkDomain is the BLAKE3 key for chain digests: the ASCII domain name
// zero-padded to 32 bytes. Changing it invalidates every issued chain.
var linkDomain = [32]byte{
	'c', 'a', 'p', 't', 'o', 'k', 'e', 'n', '.', 'c', 'h', 'a', 'i', 'n', '.',
	'l', 'i', 'n', 'k',
}

// Digest returns the BLAKE3 keyed digest a following link must carry
// in its Previous field.
func (b Block) Digest() []byte {
	hasher, err := blake3.NewKeyed(linkDomain[:])
	if err != nil {
		panic("token: BLAKE3 keyed hasher: " + err.Error())
	}
	hasher.Write(b.raw)
	return hasher.Sum(nil)
}
