// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/captoken/cmd/captoken/cli"
	"github.com/bureau-foundation/captoken/lib/version"
)

func versionCommand(a *app) *cli.Command {
	var full bool

	return &cli.Command{
		Name:    "version",
		Summary: "Print version information",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("version", pflag.ContinueOnError)
			flagSet.BoolVar(&full, "full", false, "include Go, platform and dependency versions")
			return flagSet
		},
		Run: func(args []string) error {
			return printVersion(a, full)
		},
	}
}

func printVersion(a *app, full bool) error {
	if full {
		fmt.Fprintf(a.stdout, "captoken %s\n", version.Full())
		return nil
	}
	fmt.Fprintf(a.stdout, "captoken %s\n", version.Info())
	return nil
}
