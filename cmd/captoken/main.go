// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// captoken verifies, inspects and issues capability tokens.
//
// Verification commands exit 0 when the token is granted, 1 when it is
// denied (the result code and message go to stderr), and 2 on usage or
// I/O errors. Configuration is read from --config or CAPTOKEN_CONFIG
// when either is set; otherwise built-in defaults apply.
package main

import (
	"fmt"
	"os"

	"github.com/bureau-foundation/captoken/cmd/captoken/cli"
)

func main() {
	if err := run(newApp(), os.Args[1:]); err != nil {
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(cli.ExitUsage)
	}
}

func run(a *app, args []string) error {
	if len(args) > 0 && args[0] == "--version" {
		return printVersion(a, false)
	}
	return rootCommand(a).Execute(args)
}

func rootCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:        "captoken",
		Description: "Verify, inspect and issue capability tokens.",
		HelpOutput:  a.stderr,
		Subcommands: []*cli.Command{
			verifyCommand(a),
			verifyChainCommand(a),
			inspectCommand(a),
			keygenCommand(a),
			mintCommand(a),
			attestCommand(a),
			registryCommand(a),
			versionCommand(a),
		},
		Examples: []cli.Example{
			{
				Description: "Verify a token read from stdin",
				Command:     "captoken verify --key anchor.pem --subject svc-a --resource /orders -",
			},
			{
				Description: "Verify a delegated token for the billing component",
				Command:     "captoken verify-chain --key anchor.pem --subject svc-a --resource /orders --component billing --nodes nodes.json TOKEN",
			},
		},
	}
}
