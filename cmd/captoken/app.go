// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"filippo.io/age"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/captoken/cmd/captoken/cli"
	"github.com/bureau-foundation/captoken/lib/clock"
	"github.com/bureau-foundation/captoken/lib/config"
	"github.com/bureau-foundation/captoken/lib/keystore"
	"github.com/bureau-foundation/captoken/lib/signer"
	"github.com/bureau-foundation/captoken/lib/token"
	"github.com/bureau-foundation/captoken/lib/verify"
)

// app holds the process-level dependencies of every command.
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	clock  clock.Clock
}

func newApp() *app {
	return &app{
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
		clock:  clock.Real(),
	}
}

// loadConfig reads path, else CAPTOKEN_CONFIG, else the defaults.
func (a *app) loadConfig(path string) (*config.Config, error) {
	var cfg *config.Config
	var err error
	switch {
	case path != "":
		cfg, err = config.LoadFile(path)
	case os.Getenv(config.EnvironmentVariable) != "":
		cfg, err = config.Load()
	default:
		return config.Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (a *app) logger(cfg *config.Config) (*slog.Logger, error) {
	level, err := cfg.LogLevel()
	if err != nil {
		return nil, err
	}
	return cli.NewCommandLogger(a.stderr, level, cfg.Log.Format), nil
}

// session is the configuration-derived state of a verification command.
type session struct {
	config   *config.Config
	logger   *slog.Logger
	verifier *verify.Verifier
}

func (a *app) session(configPath string) (*session, error) {
	cfg, err := a.loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	logger, err := a.logger(cfg)
	if err != nil {
		return nil, err
	}
	leeway, err := cfg.Leeway()
	if err != nil {
		return nil, err
	}
	return &session{
		config:   cfg,
		logger:   logger,
		verifier: verify.New(verify.Config{Clock: a.clock, Logger: logger, Leeway: leeway}),
	}, nil
}

// loadAnchor loads the trust anchor from keyPath, or from the
// configured path when keyPath is empty. Failure is a KeyLoadError
// result rather than a usage error.
func (s *session) loadAnchor(keyPath string) (*keystore.PublicKey, verify.Result) {
	if keyPath == "" {
		keyPath = s.config.TrustAnchorPath()
	}
	key, err := keystore.LoadFile(keyPath)
	if err != nil {
		return nil, verify.Result{Code: verify.KeyLoadError, Err: err}
	}
	return key, verify.Result{}
}

// readToken returns the single TOKEN argument, reading stdin for "-".
func (a *app) readToken(args []string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("expected exactly one TOKEN argument (use - for stdin), got %d", len(args))
	}
	if args[0] != "-" {
		return args[0], nil
	}
	data, err := io.ReadAll(io.LimitReader(a.stdin, token.MaxEncodedLength+1))
	if err != nil {
		return "", fmt.Errorf("reading token from stdin: %w", err)
	}
	return string(bytes.TrimSpace(data)), nil
}

// loadSigningKey loads a signing key, decrypting it with the age
// identities in identityPath when given.
func loadSigningKey(keyPath, identityPath string) (*signer.Key, error) {
	if keyPath == "" {
		return nil, fmt.Errorf("--key is required")
	}
	var identities []age.Identity
	if identityPath != "" {
		loaded, err := signer.LoadIdentities(identityPath)
		if err != nil {
			return nil, err
		}
		identities = loaded
	}
	return signer.LoadFile(keyPath, identities...)
}

// loadPublicKey accepts either a key file path or the ed25519/<hex>
// text form.
func loadPublicKey(value string) (*keystore.PublicKey, error) {
	if strings.HasPrefix(value, string(keystore.Ed25519)+"/") {
		return keystore.ParseText(value)
	}
	return keystore.LoadFile(value)
}

// resultOutput is the --json form of a verification result.
type resultOutput struct {
	Code    int    `json:"code"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

// report prints result and converts a denial into exit code 1.
func (a *app) report(result verify.Result, jsonOutput bool) error {
	if jsonOutput {
		output := resultOutput{Code: int(result.Code), Name: result.Code.String(), Message: result.Message()}
		if err := cli.WriteJSON(a.stdout, output); err != nil {
			return err
		}
	} else if result.OK() {
		fmt.Fprintln(a.stdout, "granted")
	} else {
		fmt.Fprintf(a.stderr, "denied: %s: %s\n", result.Code, result.Message())
	}
	if !result.OK() {
		return &cli.ExitError{Code: cli.ExitDenied}
	}
	return nil
}

func addConfigFlag(flagSet *pflag.FlagSet, target *string) {
	flagSet.StringVar(target, "config", "", "config file (default: $CAPTOKEN_CONFIG, else built-in defaults)")
}

// requireFlags reports every empty value among name, value pairs.
func requireFlags(pairs ...string) error {
	var missing []string
	for index := 0; index+1 < len(pairs); index += 2 {
		if pairs[index+1] == "" {
			missing = append(missing, "--"+pairs[index])
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required flags: %s", strings.Join(missing, ", "))
	}
	return nil
}
