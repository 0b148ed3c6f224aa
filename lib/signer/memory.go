// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package signer

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// lockedBuffer holds secret bytes in an anonymous mmap region that is
// locked against swap and excluded from core dumps. It must not be
// copied after creation.
type lockedBuffer struct {
	mu     sync.Mutex
	data   []byte
	closed bool
}

// newLockedBuffer copies source into protected memory and zeroes
// source in place.
func newLockedBuffer(source []byte) (*lockedBuffer, error) {
	if len(source) == 0 {
		return nil, fmt.Errorf("signer: cannot protect empty secret")
	}

	data, err := unix.Mmap(-1, 0, len(source), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("signer: mmap failed: %w", err)
	}
	if err := unix.Mlock(data); err != nil {
		unix.Munmap(data)
		return nil, fmt.Errorf("signer: mlock failed: %w", err)
	}
	if err := unix.Madvise(data, unix.MADV_DONTDUMP); err != nil {
		unix.Munlock(data)
		unix.Munmap(data)
		return nil, fmt.Errorf("signer: madvise(MADV_DONTDUMP) failed: %w", err)
	}

	copy(data, source)
	zero(source)
	return &lockedBuffer{data: data}, nil
}

// with calls fn with the secret bytes while holding the buffer lock.
// fn must not retain the slice.
func (b *lockedBuffer) with(fn func([]byte) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	return fn(b.data)
}

// Close zeroes, unlocks and unmaps the memory. Idempotent.
func (b *lockedBuffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	zero(b.data)

	var firstError error
	if err := unix.Munlock(b.data); err != nil {
		firstError = fmt.Errorf("signer: munlock failed: %w", err)
	}
	if err := unix.Munmap(b.data); err != nil && firstError == nil {
		firstError = fmt.Errorf("signer: munmap failed: %w", err)
	}
	b.data = nil
	return firstError
}

func zero(data []byte) {
	for index := range data {
		data[index] = 0
	}
}
