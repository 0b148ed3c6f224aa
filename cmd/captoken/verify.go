// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/captoken/cmd/captoken/cli"
	"github.com/bureau-foundation/captoken/lib/config"
	"github.com/bureau-foundation/captoken/lib/policy"
	"github.com/bureau-foundation/captoken/lib/registry"
	"github.com/bureau-foundation/captoken/lib/servicenode"
	"github.com/bureau-foundation/captoken/lib/verify"
)

func verifyCommand(a *app) *cli.Command {
	var (
		configPath string
		keyPath    string
		request    policy.Request
		jsonOutput bool
	)

	return &cli.Command{
		Name:    "verify",
		Summary: "Verify a token against the trust anchor",
		Description: `Verify a token's signatures, validity window and authorization for
a subject and resource. Delegated tokens are accepted when every link
embeds the key of its component.`,
		Usage: "captoken verify [flags] TOKEN|-",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("verify", pflag.ContinueOnError)
			addConfigFlag(flagSet, &configPath)
			addRequestFlags(flagSet, &keyPath, &request, &jsonOutput)
			return flagSet
		},
		Run: func(args []string) error {
			if err := requireFlags("subject", request.Subject, "resource", request.Resource); err != nil {
				return err
			}
			tokenText, err := a.readToken(args)
			if err != nil {
				return err
			}
			session, err := a.session(configPath)
			if err != nil {
				return err
			}

			key, result := session.loadAnchor(keyPath)
			if key == nil {
				return a.report(result, jsonOutput)
			}
			defer key.Release()

			return a.report(session.verifier.Verify(tokenText, key, request), jsonOutput)
		},
	}
}

func verifyChainCommand(a *app) *cli.Command {
	var (
		configPath   string
		keyPath      string
		request      policy.Request
		jsonOutput   bool
		component    string
		nodesPath    string
		registryPath string
		chainName    string
	)

	return &cli.Command{
		Name:    "verify-chain",
		Summary: "Verify a delegated token against a service-node list",
		Description: `Verify a delegated token for one component of a service chain. Link
keys come from the service-node list (--nodes), or from a chain stored
in the registry (--chain), in which case the registry's default key is
the trust anchor.`,
		Usage: "captoken verify-chain [flags] TOKEN|-",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("verify-chain", pflag.ContinueOnError)
			addConfigFlag(flagSet, &configPath)
			addRequestFlags(flagSet, &keyPath, &request, &jsonOutput)
			flagSet.StringVar(&component, "component", "", "component the token is presented to (required)")
			flagSet.StringVar(&nodesPath, "nodes", "", "service-node JSON file")
			flagSet.StringVar(&registryPath, "registry", "", "registry database (default: registry.path)")
			flagSet.StringVar(&chainName, "chain", "", "service chain stored in the registry")
			return flagSet
		},
		Run: func(args []string) error {
			if err := requireFlags("subject", request.Subject, "resource", request.Resource, "component", component); err != nil {
				return err
			}
			if (nodesPath == "") == (chainName == "") {
				return fmt.Errorf("exactly one of --nodes or --chain is required")
			}
			if chainName != "" && keyPath != "" {
				return fmt.Errorf("--key cannot be combined with --chain; the registry's default key is used")
			}
			tokenText, err := a.readToken(args)
			if err != nil {
				return err
			}
			session, err := a.session(configPath)
			if err != nil {
				return err
			}

			if chainName != "" {
				store, err := a.openRegistry(session.config, session.logger, registryPath)
				if err != nil {
					return err
				}
				defer store.Close()
				result := store.VerifyServiceChainByName(context.Background(), session.verifier, tokenText, request, chainName, component)
				return a.report(result, jsonOutput)
			}

			nodes, err := servicenode.ParseFile(nodesPath)
			if err != nil {
				if code := verify.Classify(err); code != verify.InternalError {
					return a.report(verify.Result{Code: code, Err: err}, jsonOutput)
				}
				return err
			}
			key, result := session.loadAnchor(keyPath)
			if key == nil {
				return a.report(result, jsonOutput)
			}
			defer key.Release()

			return a.report(session.verifier.VerifyServiceChainNodes(tokenText, key, request, nodes, component), jsonOutput)
		},
	}
}

func addRequestFlags(flagSet *pflag.FlagSet, keyPath *string, request *policy.Request, jsonOutput *bool) {
	flagSet.StringVar(keyPath, "key", "", "trust-anchor public key file (default: trust_anchor.path)")
	flagSet.StringVar(&request.Subject, "subject", "", "subject the token must be issued to (required)")
	flagSet.StringVar(&request.Resource, "resource", "", "resource the token must grant (required)")
	flagSet.StringVar(&request.Permission, "permission", "", "permission the token must carry")
	flagSet.BoolVar(jsonOutput, "json", false, "print the result as JSON")
}

// openRegistry opens registryPath, or the configured registry.
func (a *app) openRegistry(cfg *config.Config, logger *slog.Logger, registryPath string) (*registry.Registry, error) {
	if registryPath == "" {
		registryPath = cfg.Registry.Path
	}
	if registryPath == "" {
		return nil, fmt.Errorf("no registry: pass --registry or set registry.path")
	}
	return registry.Open(registry.Config{
		Path:     registryPath,
		PoolSize: cfg.Registry.PoolSize,
		Logger:   logger,
	})
}
