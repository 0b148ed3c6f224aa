// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"filippo.io/age"

	"github.com/bureau-foundation/captoken/cmd/captoken/cli"
	"github.com/bureau-foundation/captoken/lib/clock"
	"github.com/bureau-foundation/captoken/lib/config"
	"github.com/bureau-foundation/captoken/lib/keystore"
	"github.com/bureau-foundation/captoken/lib/servicenode"
)

func TestMain(m *testing.M) {
	// Commands fall back to CAPTOKEN_CONFIG; tests that need it set it
	// themselves.
	os.Unsetenv(config.EnvironmentVariable)
	os.Exit(m.Run())
}

type harness struct {
	app    *app
	stdout bytes.Buffer
	stderr bytes.Buffer
	clock  *clock.FakeClock
}

func newHarness() *harness {
	h := &harness{clock: clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))}
	h.app = &app{
		stdin:  strings.NewReader(""),
		stdout: &h.stdout,
		stderr: &h.stderr,
		clock:  h.clock,
	}
	return h
}

// run executes the CLI with fresh output buffers.
func (h *harness) run(args ...string) error {
	h.stdout.Reset()
	h.stderr.Reset()
	return run(h.app, args)
}

// mustRun fails the test when the command fails and returns trimmed stdout.
func (h *harness) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	if err := h.run(args...); err != nil {
		t.Fatalf("captoken %s: %v\nstderr: %s", strings.Join(args, " "), err, h.stderr.String())
	}
	return strings.TrimSpace(h.stdout.String())
}

func exitCode(err error) int {
	var exit *cli.ExitError
	if errors.As(err, &exit) {
		return exit.Code
	}
	if err != nil {
		return cli.ExitUsage
	}
	return cli.ExitOK
}

// keygen generates a key into a fresh directory and returns it.
func (h *harness) keygen(t *testing.T) string {
	t.Helper()
	directory := t.TempDir()
	h.mustRun(t, "keygen", "--out", directory)
	return directory
}

func TestVerifySimpleToken(t *testing.T) {
	h := newHarness()
	anchor := h.keygen(t)
	text := h.mustRun(t, "mint",
		"--key", filepath.Join(anchor, "signing-key"),
		"--subject", "svc-a", "--resource", "/orders",
		"--permission", "orders/read")

	tests := []struct {
		name     string
		args     []string
		wantCode int
		wantErr  string
	}{
		{"granted", []string{"--subject", "svc-a", "--resource", "/orders"}, cli.ExitOK, ""},
		{"permission", []string{"--subject", "svc-a", "--resource", "/orders", "--permission", "orders/read"}, cli.ExitOK, ""},
		{"missing permission", []string{"--subject", "svc-a", "--resource", "/orders", "--permission", "orders/write"}, cli.ExitDenied, "resource_mismatch"},
		{"wrong subject", []string{"--subject", "svc-b", "--resource", "/orders"}, cli.ExitDenied, "subject_mismatch"},
		{"wrong resource", []string{"--subject", "svc-a", "--resource", "/invoices"}, cli.ExitDenied, "resource_mismatch"},
		{"missing key file", []string{"--subject", "svc-a", "--resource", "/orders", "--key", filepath.Join(anchor, "absent.pem")}, cli.ExitDenied, "key_load_error"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			args := append([]string{"verify", "--key", filepath.Join(anchor, "signing-key.pub")}, test.args...)
			args = append(args, text)
			err := h.run(args...)
			if got := exitCode(err); got != test.wantCode {
				t.Fatalf("exit code = %d (%v), want %d\nstderr: %s", got, err, test.wantCode, h.stderr.String())
			}
			if test.wantErr != "" && !strings.Contains(h.stderr.String(), "denied: "+test.wantErr) {
				t.Errorf("stderr = %q, want denial %q", h.stderr.String(), test.wantErr)
			}
			if test.wantCode == cli.ExitOK && strings.TrimSpace(h.stdout.String()) != "granted" {
				t.Errorf("stdout = %q, want granted", h.stdout.String())
			}
		})
	}
}

func TestVerifyReadsStdinAndReportsJSON(t *testing.T) {
	h := newHarness()
	anchor := h.keygen(t)
	text := h.mustRun(t, "mint", "--key", filepath.Join(anchor, "signing-key"),
		"--subject", "svc-a", "--resource", "/orders", "--ttl", "10m")

	h.clock.Advance(time.Hour)
	h.app.stdin = strings.NewReader(text + "\n")
	err := h.run("verify", "--json", "--key", filepath.Join(anchor, "signing-key.pub"),
		"--subject", "svc-a", "--resource", "/orders", "-")
	if exitCode(err) != cli.ExitDenied {
		t.Fatalf("exit code = %d (%v), want %d", exitCode(err), err, cli.ExitDenied)
	}

	var output resultOutput
	if err := json.Unmarshal(h.stdout.Bytes(), &output); err != nil {
		t.Fatalf("decoding JSON result %q: %v", h.stdout.String(), err)
	}
	if output.Code != 4 || output.Name != "expired" {
		t.Errorf("result = %+v, want code 4 expired", output)
	}
}

func TestVerifyUsageErrors(t *testing.T) {
	h := newHarness()
	tests := []struct {
		name string
		args []string
	}{
		{"missing subject", []string{"verify", "--resource", "/orders", "tok"}},
		{"missing token", []string{"verify", "--subject", "a", "--resource", "/orders"}},
		{"two tokens", []string{"verify", "--subject", "a", "--resource", "/orders", "one", "two"}},
		{"chain without source", []string{"verify-chain", "--subject", "a", "--resource", "r", "--component", "c", "tok"}},
		{"chain with both sources", []string{"verify-chain", "--subject", "a", "--resource", "r", "--component", "c", "--nodes", "n.json", "--chain", "x", "tok"}},
		{"unknown command", []string{"verfiy"}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := exitCode(h.run(test.args...)); got != cli.ExitUsage {
				t.Errorf("exit code = %d, want %d", got, cli.ExitUsage)
			}
		})
	}
}

// chainFixture mints a token for svc-a on /orders delegated
// anchor -> gateway -> billing with embedded component keys.
type chainFixture struct {
	anchor, gateway, billing string
	text                     string
	nodesPath                string
}

func newChainFixture(t *testing.T, h *harness) *chainFixture {
	t.Helper()
	f := &chainFixture{anchor: h.keygen(t), gateway: h.keygen(t), billing: h.keygen(t)}

	rootLinked := h.mustRun(t, "mint",
		"--key", filepath.Join(f.anchor, "signing-key"),
		"--subject", "svc-a", "--resource", "/orders",
		"--next", "gateway", "--next-key", filepath.Join(f.gateway, "signing-key.pub"))
	f.text = h.mustRun(t, "attest",
		"--key", filepath.Join(f.gateway, "signing-key"),
		"--signer", "gateway", "--component", "billing",
		"--component-key", filepath.Join(f.billing, "signing-key.pub"),
		rootLinked)

	var nodes []servicenode.Node
	for _, identity := range []struct{ name, directory string }{{"gateway", f.gateway}, {"billing", f.billing}} {
		key, err := keystore.LoadFile(filepath.Join(identity.directory, "signing-key.pub"))
		if err != nil {
			t.Fatalf("loading %s key: %v", identity.name, err)
		}
		nodes = append(nodes, servicenode.Node{Component: identity.name, PublicKey: key.String()})
	}
	data, err := servicenode.Marshal(nodes)
	if err != nil {
		t.Fatalf("encoding nodes: %v", err)
	}
	f.nodesPath = filepath.Join(t.TempDir(), "nodes.json")
	if err := os.WriteFile(f.nodesPath, data, 0o600); err != nil {
		t.Fatalf("writing nodes: %v", err)
	}
	return f
}

func TestVerifyChainWithNodesFile(t *testing.T) {
	h := newHarness()
	f := newChainFixture(t, h)

	tests := []struct {
		component string
		wantCode  int
		wantErr   string
	}{
		{"billing", cli.ExitOK, ""},
		{"gateway", cli.ExitOK, ""},
		{"auditor", cli.ExitDenied, "component_not_found"},
	}
	for _, test := range tests {
		t.Run(test.component, func(t *testing.T) {
			err := h.run("verify-chain",
				"--key", filepath.Join(f.anchor, "signing-key.pub"),
				"--subject", "svc-a", "--resource", "/orders",
				"--component", test.component, "--nodes", f.nodesPath, f.text)
			if got := exitCode(err); got != test.wantCode {
				t.Fatalf("exit code = %d (%v), want %d\nstderr: %s", got, err, test.wantCode, h.stderr.String())
			}
			if test.wantErr != "" && !strings.Contains(h.stderr.String(), test.wantErr) {
				t.Errorf("stderr = %q, want %q", h.stderr.String(), test.wantErr)
			}
		})
	}

	// Embedded keys also let the plain verify command walk the chain.
	h.mustRun(t, "verify", "--key", filepath.Join(f.anchor, "signing-key.pub"),
		"--subject", "svc-a", "--resource", "/orders", f.text)
}

func TestVerifyChainMalformedNodes(t *testing.T) {
	h := newHarness()
	f := newChainFixture(t, h)
	bad := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(bad, []byte(`{"nodes": []}`), 0o600); err != nil {
		t.Fatal(err)
	}

	err := h.run("verify-chain", "--key", filepath.Join(f.anchor, "signing-key.pub"),
		"--subject", "svc-a", "--resource", "/orders", "--component", "billing",
		"--nodes", bad, f.text)
	if got := exitCode(err); got != cli.ExitDenied {
		t.Fatalf("exit code = %d (%v), want %d", got, err, cli.ExitDenied)
	}
	if !strings.Contains(h.stderr.String(), "malformed_token") {
		t.Errorf("stderr = %q, want malformed_token", h.stderr.String())
	}
}

func TestRegistryWorkflow(t *testing.T) {
	h := newHarness()
	f := newChainFixture(t, h)
	database := filepath.Join(t.TempDir(), "registry.db")
	verifyArgs := []string{"verify-chain", "--registry", database, "--chain", "orders",
		"--subject", "svc-a", "--resource", "/orders", "--component", "billing", f.text}

	if got := exitCode(h.run(verifyArgs...)); got != cli.ExitDenied {
		t.Fatalf("empty registry: exit code = %d, want %d", got, cli.ExitDenied)
	}
	if !strings.Contains(h.stderr.String(), "key_load_error") {
		t.Errorf("empty registry: stderr = %q, want key_load_error", h.stderr.String())
	}

	h.mustRun(t, "registry", "add-key", "--registry", database,
		"--name", "root", "--key", filepath.Join(f.anchor, "signing-key.pub"), "--default")

	if got := exitCode(h.run(verifyArgs...)); got != cli.ExitDenied {
		t.Fatalf("no chain: exit code = %d, want %d", got, cli.ExitDenied)
	}
	if !strings.Contains(h.stderr.String(), "broken") {
		t.Errorf("no chain: stderr = %q, want broken", h.stderr.String())
	}

	h.mustRun(t, "registry", "add-chain", "--registry", database, "--name", "orders", "--nodes", f.nodesPath)
	if out := h.mustRun(t, verifyArgs...); out != "granted" {
		t.Errorf("stdout = %q, want granted", out)
	}

	listed := h.mustRun(t, "registry", "list", "--registry", database, "--json")
	var result listing
	if err := json.Unmarshal([]byte(listed), &result); err != nil {
		t.Fatalf("decoding list output %q: %v", listed, err)
	}
	if len(result.Keys) != 1 || result.Keys[0].Name != "root" || !result.Keys[0].Default {
		t.Errorf("keys = %+v", result.Keys)
	}
	if len(result.Chains) != 1 || strings.Join(result.Chains[0].Components, ",") != "gateway,billing" {
		t.Errorf("chains = %+v", result.Chains)
	}

	h.mustRun(t, "registry", "remove-chain", "--registry", database, "orders")
	if got := exitCode(h.run("registry", "remove-chain", "--registry", database, "orders")); got != cli.ExitUsage {
		t.Errorf("second remove: exit code = %d, want %d", got, cli.ExitUsage)
	}
}

func TestAttestAttenuation(t *testing.T) {
	h := newHarness()
	anchor := h.keygen(t)
	minted := h.mustRun(t, "mint", "--key", filepath.Join(anchor, "signing-key"),
		"--subject", "svc-a", "--resource", "/orders", "--permission", "orders/**")
	narrowed := h.mustRun(t, "attest", "--key", filepath.Join(anchor, "signing-key"),
		"--component", "gateway", "--no-permissions", minted)

	err := h.run("verify", "--key", filepath.Join(anchor, "signing-key.pub"),
		"--subject", "svc-a", "--resource", "/orders", narrowed)
	if got := exitCode(err); got != cli.ExitDenied {
		t.Fatalf("exit code = %d (%v), want %d", got, err, cli.ExitDenied)
	}

	if got := exitCode(h.run("attest", "--key", filepath.Join(anchor, "signing-key"),
		"--component", "gateway", "--no-permissions", "--permission", "x", minted)); got != cli.ExitUsage {
		t.Errorf("conflicting attenuation flags: exit code = %d, want %d", got, cli.ExitUsage)
	}
}

func TestSealedSigningKey(t *testing.T) {
	h := newHarness()
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		t.Fatalf("generating age identity: %v", err)
	}
	identityPath := filepath.Join(t.TempDir(), "identity.txt")
	if err := os.WriteFile(identityPath, []byte(identity.String()+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	directory := t.TempDir()
	h.mustRun(t, "keygen", "--out", directory, "--seal-to", identity.Recipient().String())
	sealed := filepath.Join(directory, "signing-key.age")

	if got := exitCode(h.run("mint", "--key", sealed, "--subject", "a", "--resource", "r")); got != cli.ExitUsage {
		t.Fatalf("mint without identity: exit code = %d, want %d", got, cli.ExitUsage)
	}
	text := h.mustRun(t, "mint", "--key", sealed, "--identity", identityPath, "--subject", "a", "--resource", "r")
	h.mustRun(t, "verify", "--key", filepath.Join(directory, "signing-key.pub"), "--subject", "a", "--resource", "r", text)
}

func TestInspect(t *testing.T) {
	h := newHarness()
	f := newChainFixture(t, h)

	out := h.mustRun(t, "inspect", f.text)
	for _, want := range []string{"svc-a", "/orders", "link 0: (trust anchor) -> gateway", "link 1: gateway -> billing", "authority payload:"} {
		if !strings.Contains(out, want) {
			t.Errorf("inspect output missing %q:\n%s", want, out)
		}
	}

	var view inspection
	if err := json.Unmarshal([]byte(h.mustRun(t, "inspect", "--json", f.text)), &view); err != nil {
		t.Fatalf("decoding inspect JSON: %v", err)
	}
	if view.Subject != "svc-a" || len(view.Links) != 2 || len(view.Diagnostics) != 3 {
		t.Errorf("inspection = %+v", view)
	}
	if !strings.HasPrefix(view.Links[1].ComponentKey, "ed25519/") {
		t.Errorf("link 1 component key = %q", view.Links[1].ComponentKey)
	}

	if got := exitCode(h.run("inspect", "not-a-token")); got != cli.ExitUsage {
		t.Errorf("malformed inspect: exit code = %d, want %d", got, cli.ExitUsage)
	}
}

func TestConfigFile(t *testing.T) {
	h := newHarness()
	anchor := h.keygen(t)
	text := h.mustRun(t, "mint", "--key", filepath.Join(anchor, "signing-key"),
		"--subject", "svc-a", "--resource", "/orders")

	configPath := filepath.Join(t.TempDir(), "captoken.yaml")
	contents := "trust_anchor:\n  path: " + filepath.Join(anchor, "signing-key.pub") + "\nlog:\n  level: warn\n"
	if err := os.WriteFile(configPath, []byte(contents), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(config.EnvironmentVariable, configPath)

	if out := h.mustRun(t, "verify", "--subject", "svc-a", "--resource", "/orders", text); out != "granted" {
		t.Errorf("stdout = %q, want granted", out)
	}

	if err := os.WriteFile(configPath, []byte("log:\n  level: loud\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if got := exitCode(h.run("verify", "--subject", "svc-a", "--resource", "/orders", text)); got != cli.ExitUsage {
		t.Errorf("invalid config: exit code = %d, want %d", got, cli.ExitUsage)
	}

	// --config wins over the environment.
	flagPath := filepath.Join(t.TempDir(), "flag.yaml")
	if err := os.WriteFile(flagPath, []byte(contents), 0o600); err != nil {
		t.Fatal(err)
	}
	if out := h.mustRun(t, "verify", "--config", flagPath, "--subject", "svc-a", "--resource", "/orders", text); out != "granted" {
		t.Errorf("--config over invalid environment: stdout = %q, want granted", out)
	}
}

func TestVersion(t *testing.T) {
	h := newHarness()
	if out := h.mustRun(t, "--version"); !strings.HasPrefix(out, "captoken ") {
		t.Errorf("--version = %q", out)
	}
	if out := h.mustRun(t, "version", "--full"); !strings.Contains(out, "Platform:") {
		t.Errorf("version --full = %q", out)
	}
}
