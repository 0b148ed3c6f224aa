// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/captoken/cmd/captoken/cli"
	"github.com/bureau-foundation/captoken/lib/signer"
)

func keygenCommand(a *app) *cli.Command {
	var (
		outDirectory string
		sealTo       []string
	)

	return &cli.Command{
		Name:    "keygen",
		Summary: "Generate an Ed25519 signing key",
		Description: `Generate an Ed25519 signing key and write it to --out together with
its PEM public key. With --seal-to the private key is age-encrypted to
each recipient instead of written in the clear.`,
		Usage: "captoken keygen --out DIR [--seal-to RECIPIENT ...]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("keygen", pflag.ContinueOnError)
			flagSet.StringVar(&outDirectory, "out", "", "directory to write the key files to (required)")
			flagSet.StringArrayVar(&sealTo, "seal-to", nil, "age recipient (age1...) to encrypt the private key to; repeatable")
			return flagSet
		},
		Examples: []cli.Example{
			{
				Description: "Generate a trust anchor sealed to an operator's age key",
				Command:     "captoken keygen --out /etc/captoken/anchor --seal-to age1ql3z7hjy54pw3hyww5ayyfg7zqgvc7w3j2elw8zmrj2kg5sfn9aqmcac8p",
			},
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}
			if err := requireFlags("out", outDirectory); err != nil {
				return err
			}
			if err := os.MkdirAll(outDirectory, 0o700); err != nil {
				return fmt.Errorf("creating %s: %w", outDirectory, err)
			}

			key, err := signer.Generate()
			if err != nil {
				return err
			}
			defer key.Close()

			paths, err := signer.SaveFiles(outDirectory, key, sealTo)
			if err != nil {
				return err
			}
			public := key.PublicKey()
			fmt.Fprintf(a.stdout, "private key: %s\n", paths.Private)
			fmt.Fprintf(a.stdout, "public key:  %s\n", paths.Public)
			fmt.Fprintf(a.stdout, "key:         %s\n", public)
			fmt.Fprintf(a.stdout, "key id:      %s\n", public.ID())
			return nil
		},
	}
}
