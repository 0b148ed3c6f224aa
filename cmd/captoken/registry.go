// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/captoken/cmd/captoken/cli"
	"github.com/bureau-foundation/captoken/lib/registry"
	"github.com/bureau-foundation/captoken/lib/servicenode"
)

func registryCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:    "registry",
		Summary: "Manage named trust anchors and service chains",
		Description: `Manage the SQLite registry of named public keys and named service
chains used by "verify-chain --chain".`,
		Subcommands: []*cli.Command{
			registryAddKeyCommand(a),
			registryAddChainCommand(a),
			registryListCommand(a),
			registryRemoveCommand(a, "remove-key", "Remove a named key", (*registry.Registry).DeleteKey),
			registryRemoveCommand(a, "remove-chain", "Remove a named service chain", (*registry.Registry).DeleteChain),
		},
	}
}

// registryFlags are shared by every registry subcommand.
type registryFlags struct {
	configPath   string
	registryPath string
}

func (f *registryFlags) add(flagSet *pflag.FlagSet) {
	addConfigFlag(flagSet, &f.configPath)
	flagSet.StringVar(&f.registryPath, "registry", "", "registry database (default: registry.path)")
}

// withRegistry opens the registry for the duration of fn.
func (a *app) withRegistry(flags *registryFlags, fn func(context.Context, *registry.Registry) error) error {
	cfg, err := a.loadConfig(flags.configPath)
	if err != nil {
		return err
	}
	logger, err := a.logger(cfg)
	if err != nil {
		return err
	}
	store, err := a.openRegistry(cfg, logger, flags.registryPath)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(context.Background(), store)
}

func registryAddKeyCommand(a *app) *cli.Command {
	var (
		flags       registryFlags
		name        string
		keyPath     string
		makeDefault bool
	)

	return &cli.Command{
		Name:    "add-key",
		Summary: "Store a public key under a name",
		Usage:   "captoken registry add-key --name NAME --key FILE [--default]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("add-key", pflag.ContinueOnError)
			flags.add(flagSet)
			flagSet.StringVar(&name, "name", "", "key name (required)")
			flagSet.StringVar(&keyPath, "key", "", "public key file or ed25519/<hex> (required)")
			flagSet.BoolVar(&makeDefault, "default", false, "make this the default trust anchor")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}
			if err := requireFlags("name", name, "key", keyPath); err != nil {
				return err
			}
			key, err := loadPublicKey(keyPath)
			if err != nil {
				return err
			}
			return a.withRegistry(&flags, func(ctx context.Context, store *registry.Registry) error {
				if err := store.PutKey(ctx, name, key, makeDefault); err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "stored key %s (%s)\n", name, key.ID())
				return nil
			})
		},
	}
}

func registryAddChainCommand(a *app) *cli.Command {
	var (
		flags     registryFlags
		name      string
		nodesPath string
	)

	return &cli.Command{
		Name:    "add-chain",
		Summary: "Store a service-node list under a name",
		Usage:   "captoken registry add-chain --name NAME --nodes FILE",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("add-chain", pflag.ContinueOnError)
			flags.add(flagSet)
			flagSet.StringVar(&name, "name", "", "chain name (required)")
			flagSet.StringVar(&nodesPath, "nodes", "", "service-node JSON file (required)")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}
			if err := requireFlags("name", name, "nodes", nodesPath); err != nil {
				return err
			}
			nodes, err := servicenode.ParseFile(nodesPath)
			if err != nil {
				return err
			}
			return a.withRegistry(&flags, func(ctx context.Context, store *registry.Registry) error {
				if err := store.PutChain(ctx, name, nodes.Nodes()); err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "stored chain %s (%d nodes)\n", name, nodes.Len())
				return nil
			})
		},
	}
}

// listing is the --json form of "registry list".
type listing struct {
	Keys   []keyListing   `json:"keys"`
	Chains []chainListing `json:"chains"`
}

type keyListing struct {
	Name    string `json:"name"`
	Key     string `json:"key"`
	KeyID   string `json:"key_id"`
	Default bool   `json:"default"`
}

type chainListing struct {
	Name       string   `json:"name"`
	Components []string `json:"components"`
}

func registryListCommand(a *app) *cli.Command {
	var (
		flags      registryFlags
		jsonOutput bool
	)

	return &cli.Command{
		Name:    "list",
		Summary: "List stored keys and service chains",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("list", pflag.ContinueOnError)
			flags.add(flagSet)
			flagSet.BoolVar(&jsonOutput, "json", false, "print as JSON")
			return flagSet
		},
		Run: func(args []string) error {
			return a.withRegistry(&flags, func(ctx context.Context, store *registry.Registry) error {
				keys, err := store.Keys(ctx)
				if err != nil {
					return err
				}
				chains, err := store.Chains(ctx)
				if err != nil {
					return err
				}

				result := listing{Keys: []keyListing{}, Chains: []chainListing{}}
				for _, entry := range keys {
					result.Keys = append(result.Keys, keyListing{
						Name:    entry.Name,
						Key:     entry.Key.String(),
						KeyID:   entry.Key.ID(),
						Default: entry.Default,
					})
				}
				for _, entry := range chains {
					components := make([]string, len(entry.Nodes))
					for index, node := range entry.Nodes {
						components[index] = node.Component
					}
					result.Chains = append(result.Chains, chainListing{Name: entry.Name, Components: components})
				}

				if jsonOutput {
					return cli.WriteJSON(a.stdout, result)
				}
				tw := tabwriter.NewWriter(a.stdout, 2, 0, 3, ' ', 0)
				fmt.Fprintln(tw, "KEY\tID\tDEFAULT")
				for _, entry := range result.Keys {
					marker := ""
					if entry.Default {
						marker = "*"
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\n", entry.Name, entry.KeyID, marker)
				}
				fmt.Fprintln(tw)
				fmt.Fprintln(tw, "CHAIN\tCOMPONENTS\t")
				for _, entry := range result.Chains {
					fmt.Fprintf(tw, "%s\t%v\t\n", entry.Name, entry.Components)
				}
				return tw.Flush()
			})
		},
	}
}

func registryRemoveCommand(a *app, name, summary string, remove func(*registry.Registry, context.Context, string) error) *cli.Command {
	var flags registryFlags

	return &cli.Command{
		Name:    name,
		Summary: summary,
		Usage:   fmt.Sprintf("captoken registry %s [flags] NAME", name),
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet(name, pflag.ContinueOnError)
			flags.add(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected exactly one NAME argument")
			}
			return a.withRegistry(&flags, func(ctx context.Context, store *registry.Registry) error {
				if err := remove(store, ctx, args[0]); err != nil {
					return fmt.Errorf("%s %q: %w", name, args[0], err)
				}
				fmt.Fprintf(a.stdout, "removed %s\n", args[0])
				return nil
			})
		},
	}
}
