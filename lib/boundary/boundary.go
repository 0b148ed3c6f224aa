// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package boundary implements the operations exported to C callers by
// cmd/libcaptoken, in plain Go so they can be tested without cgo.
//
// Public keys cross the boundary as opaque [Handle] values: indices
// into a table owned by the [Engine], never Go pointers. Zero is never
// a valid handle. The caller owns each handle from a successful load
// until it calls [Engine.KeyFree] exactly once; freeing an unknown or
// already freed handle is a no-op, and verifying with one reports
// [verify.KeyLoadError].
//
// Result codes are the integers of [verify.Code].
package boundary

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/bureau-foundation/captoken/lib/keystore"
	"github.com/bureau-foundation/captoken/lib/policy"
	"github.com/bureau-foundation/captoken/lib/verify"
)

// Handle identifies a loaded public key across the boundary.
type Handle uint64

// Engine owns the key handle table and the verifier shared by all
// boundary calls. Safe for concurrent use.
type Engine struct {
	verifier *verify.Verifier
	logger   *slog.Logger

	mu   sync.RWMutex
	keys map[Handle]*keystore.PublicKey
	next atomic.Uint64
}

// NewEngine returns an Engine that verifies with verifier. A nil
// logger discards.
func NewEngine(verifier *verify.Verifier, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{
		verifier: verifier,
		logger:   logger,
		keys:     make(map[Handle]*keystore.PublicKey),
	}
}

// KeyFromFile loads the public key at path and returns its handle. On
// failure the handle is zero and the result carries KeyLoadError.
func (e *Engine) KeyFromFile(path string) (Handle, verify.Result) {
	key, err := keystore.LoadFile(path)
	if err != nil {
		e.logger.Warn("loading public key failed", "path", path, "error", err)
		return 0, verify.Result{Code: verify.KeyLoadError, Err: err}
	}
	handle := e.register(key)
	e.logger.Debug("public key loaded", "path", path, "key_id", key.ID(), "handle", uint64(handle))
	return handle, verify.Result{Code: verify.Success}
}

// KeyFromBytes parses key material and returns its handle.
func (e *Engine) KeyFromBytes(data []byte) (Handle, verify.Result) {
	key, err := keystore.Parse(data)
	if err != nil {
		return 0, verify.Result{Code: verify.KeyLoadError, Err: err}
	}
	return e.register(key), verify.Result{Code: verify.Success}
}

func (e *Engine) register(key *keystore.PublicKey) Handle {
	handle := Handle(e.next.Add(1))
	e.mu.Lock()
	e.keys[handle] = key
	e.mu.Unlock()
	return handle
}

// KeyFree releases the key behind handle. Unknown handles are ignored.
func (e *Engine) KeyFree(handle Handle) {
	e.mu.Lock()
	key, ok := e.keys[handle]
	delete(e.keys, handle)
	e.mu.Unlock()
	if ok {
		key.Release()
	}
}

// Len returns the number of live handles.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.keys)
}

func (e *Engine) lookup(handle Handle) (*keystore.PublicKey, error) {
	e.mu.RLock()
	key, ok := e.keys[handle]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: unknown key handle %d", keystore.ErrKeyLoad, uint64(handle))
	}
	return key, nil
}

// TokenVerify verifies a simple token for (subject, resource).
func (e *Engine) TokenVerify(tokenText string, handle Handle, subject, resource string) verify.Result {
	key, err := e.lookup(handle)
	if err != nil {
		return verify.Result{Code: verify.KeyLoadError, Err: err}
	}
	return e.verifier.Verify(tokenText, key, policy.Request{Subject: subject, Resource: resource})
}

// TokenVerifyServiceChain verifies a service-chain token. serviceNodes
// is the JSON service-node list; component must have taken part in
// the chain.
func (e *Engine) TokenVerifyServiceChain(tokenText string, handle Handle, subject, resource, serviceNodes, component string) verify.Result {
	key, err := e.lookup(handle)
	if err != nil {
		return verify.Result{Code: verify.KeyLoadError, Err: err}
	}
	return e.verifier.VerifyServiceChain(tokenText, key,
		policy.Request{Subject: subject, Resource: resource},
		[]byte(serviceNodes), component)
}

// ErrorMessage returns the message for a result code received across
// the boundary. Unknown codes get a generic message.
func ErrorMessage(code int) string {
	return verify.Code(code).Message()
}
