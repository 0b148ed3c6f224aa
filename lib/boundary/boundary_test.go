// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package boundary

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/captoken/lib/clock"
	"github.com/bureau-foundation/captoken/lib/testutil"
	"github.com/bureau-foundation/captoken/lib/token"
	"github.com/bureau-foundation/captoken/lib/verify"
)

var issuedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	engine  *Engine
	anchor  testutil.Identity
	keyPath string
	text    string
	nodes   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	anchor := testutil.NewIdentity(t, "root")
	gateway := testutil.NewIdentity(t, "gateway")
	billing := testutil.NewIdentity(t, "billing")

	encoded, err := anchor.Public.EncodePEM()
	if err != nil {
		t.Fatalf("EncodePEM: %v", err)
	}
	minted := testutil.Mint(t, anchor, token.Claims{
		Subject:   "svc-a",
		Resource:  "/orders",
		ExpiresAt: issuedAt.Add(time.Hour).Unix(),
	})
	return &fixture{
		engine:  NewEngine(verify.New(verify.Config{Clock: clock.Fake(issuedAt)}), nil),
		anchor:  anchor,
		keyPath: testutil.WriteFile(t, "anchor.pem", encoded),
		text:    testutil.Encode(t, testutil.Delegate(t, minted, anchor, gateway, billing)),
		nodes:   string(testutil.ServiceNodes(t, gateway, billing)),
	}
}

func TestKeyLifecycle(t *testing.T) {
	f := newFixture(t)

	handle, result := f.engine.KeyFromFile(f.keyPath)
	if !result.OK() {
		t.Fatalf("KeyFromFile: %s", result.Message())
	}
	if handle == 0 {
		t.Fatal("KeyFromFile returned the zero handle")
	}
	if f.engine.Len() != 1 {
		t.Errorf("Len = %d, want 1", f.engine.Len())
	}

	if result := f.engine.TokenVerify(f.text, handle, "svc-a", "/orders"); !result.OK() {
		t.Errorf("TokenVerify: %s", result.Message())
	}
	if result := f.engine.TokenVerifyServiceChain(f.text, handle, "svc-a", "/orders", f.nodes, "billing"); !result.OK() {
		t.Errorf("TokenVerifyServiceChain: %s", result.Message())
	}

	f.engine.KeyFree(handle)
	f.engine.KeyFree(handle)
	if f.engine.Len() != 0 {
		t.Errorf("Len after free = %d, want 0", f.engine.Len())
	}
	if result := f.engine.TokenVerify(f.text, handle, "svc-a", "/orders"); result.Code != verify.KeyLoadError {
		t.Errorf("freed handle: code = %s, want key_load_error", result.Code)
	}
}

func TestKeyFromFileFailures(t *testing.T) {
	f := newFixture(t)

	paths := map[string]string{
		"missing":   filepath.Join(t.TempDir(), "missing.pem"),
		"garbage":   testutil.WriteFile(t, "garbage.pem", []byte("-----BEGIN PUBLIC KEY-----\nnope\n-----END PUBLIC KEY-----\n")),
		"empty":     testutil.WriteFile(t, "empty.pem", nil),
		"directory": t.TempDir(),
	}
	for name, path := range paths {
		t.Run(name, func(t *testing.T) {
			handle, result := f.engine.KeyFromFile(path)
			if handle != 0 {
				t.Errorf("handle = %d, want 0", handle)
			}
			if result.Code != verify.KeyLoadError {
				t.Errorf("code = %s, want key_load_error", result.Code)
			}
			if result.Message() == "" {
				t.Error("empty message")
			}
		})
	}
	if f.engine.Len() != 0 {
		t.Errorf("failed loads left %d handles", f.engine.Len())
	}
}

func TestUnknownHandles(t *testing.T) {
	f := newFixture(t)
	for _, handle := range []Handle{0, 1, 999} {
		if result := f.engine.TokenVerify(f.text, handle, "svc-a", "/orders"); result.Code != verify.KeyLoadError {
			t.Errorf("TokenVerify(%d): code = %s", handle, result.Code)
		}
		if result := f.engine.TokenVerifyServiceChain(f.text, handle, "svc-a", "/orders", f.nodes, "billing"); result.Code != verify.KeyLoadError {
			t.Errorf("TokenVerifyServiceChain(%d): code = %s", handle, result.Code)
		}
		f.engine.KeyFree(handle)
	}
}

func TestHandlesAreDistinct(t *testing.T) {
	f := newFixture(t)
	raw := f.anchor.Public.Ed25519()

	seen := make(map[Handle]bool)
	var mu sync.Mutex
	var wait sync.WaitGroup
	for range 32 {
		wait.Add(1)
		go func() {
			defer wait.Done()
			handle, result := f.engine.KeyFromBytes(raw)
			if !result.OK() {
				t.Errorf("KeyFromBytes: %s", result.Message())
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if seen[handle] {
				t.Errorf("handle %d issued twice", handle)
			}
			seen[handle] = true
		}()
	}
	wait.Wait()

	// Freeing one handle must not affect another holding the same key.
	var first, second Handle
	for handle := range seen {
		if first == 0 {
			first = handle
		} else if second == 0 {
			second = handle
		}
	}
	f.engine.KeyFree(first)
	if result := f.engine.TokenVerify(f.text, second, "svc-a", "/orders"); !result.OK() {
		t.Errorf("sibling handle after free: %s", result.Message())
	}
}

func TestServiceChainResults(t *testing.T) {
	f := newFixture(t)
	handle, result := f.engine.KeyFromFile(f.keyPath)
	if !result.OK() {
		t.Fatalf("KeyFromFile: %s", result.Message())
	}
	defer f.engine.KeyFree(handle)

	tests := []struct {
		name      string
		nodes     string
		subject   string
		component string
		want      verify.Code
	}{
		{"billing", f.nodes, "svc-a", "billing", verify.Success},
		{"auditor", f.nodes, "svc-a", "auditor", verify.ComponentNotFound},
		{"wrong subject", f.nodes, "svc-b", "billing", verify.SubjectMismatch},
		{"bad json", "{not json", "svc-a", "billing", verify.MalformedToken},
		{"no nodes", "[]", "svc-a", "billing", verify.Broken},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := f.engine.TokenVerifyServiceChain(f.text, handle, test.subject, "/orders", test.nodes, test.component)
			if result.Code != test.want {
				t.Errorf("code = %s (%s), want %s", result.Code, result.Message(), test.want)
			}
		})
	}
}

func TestErrorMessage(t *testing.T) {
	for code := 0; code <= 9; code++ {
		if ErrorMessage(code) != verify.Code(code).Message() {
			t.Errorf("ErrorMessage(%d) = %q", code, ErrorMessage(code))
		}
	}
	if ErrorMessage(42) == "" {
		t.Error("unknown code has an empty message")
	}
}
