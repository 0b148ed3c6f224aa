// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/captoken/cmd/captoken/cli"
	"github.com/bureau-foundation/captoken/lib/token"
)

func mintCommand(a *app) *cli.Command {
	var (
		keyPath      string
		identityPath string
		claims       token.Claims
		ttl          time.Duration
		notBefore    time.Duration
		next         string
		nextKey      string
	)

	return &cli.Command{
		Name:    "mint",
		Summary: "Issue a token signed by a trust-anchor key",
		Description: `Issue a token signed by the trust-anchor signing key. With --next the
token is also handed to its first component: a root link naming that
component, and embedding its key when --next-key is given, is appended.`,
		Usage: "captoken mint --key FILE --subject S --resource R [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("mint", pflag.ContinueOnError)
			addSigningFlags(flagSet, &keyPath, &identityPath)
			flagSet.StringVar(&claims.ID, "id", "", "token identifier (default: random)")
			flagSet.StringVar(&claims.Subject, "subject", "", "subject the token is issued to (required)")
			flagSet.StringVar(&claims.Resource, "resource", "", "resource the token grants (required)")
			flagSet.StringArrayVar(&claims.Permissions, "permission", nil, "permission pattern to grant; repeatable")
			flagSet.DurationVar(&ttl, "ttl", time.Hour, "validity period; 0 for no expiry")
			flagSet.DurationVar(&notBefore, "not-before", 0, "delay before the token becomes valid")
			flagSet.StringVar(&next, "next", "", "first component to delegate the token to")
			flagSet.StringVar(&nextKey, "next-key", "", "public key (file or ed25519/<hex>) of --next to embed")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}
			if err := requireFlags("subject", claims.Subject, "resource", claims.Resource); err != nil {
				return err
			}
			if ttl < 0 || notBefore < 0 {
				return fmt.Errorf("--ttl and --not-before must not be negative")
			}
			if nextKey != "" && next == "" {
				return fmt.Errorf("--next-key requires --next")
			}

			key, err := loadSigningKey(keyPath, identityPath)
			if err != nil {
				return err
			}
			defer key.Close()

			now := a.clock.Now()
			claims.IssuedAt = now.Unix()
			if notBefore > 0 {
				claims.NotBefore = now.Add(notBefore).Unix()
			}
			if ttl > 0 {
				claims.ExpiresAt = now.Add(ttl).Unix()
			}
			minted, err := token.Mint(key, claims)
			if err != nil {
				return err
			}

			if next != "" {
				link := token.Link{Component: next}
				if nextKey != "" {
					public, err := loadPublicKey(nextKey)
					if err != nil {
						return err
					}
					link.ComponentKey = public.Ed25519()
				}
				if minted, err = minted.Attest(key, link); err != nil {
					return err
				}
			}
			return printToken(a, minted)
		},
	}
}

func attestCommand(a *app) *cli.Command {
	var (
		keyPath       string
		identityPath  string
		signerName    string
		component     string
		componentKey  string
		attenuate     []string
		noPermissions bool
		ttl           time.Duration
	)

	return &cli.Command{
		Name:    "attest",
		Summary: "Append a delegation link to a token",
		Description: `Append one delegation link to a token. The first link is signed with
the trust-anchor key and has no --signer; every later link is signed by
the component the previous link named, with --signer set to that name.

--permission narrows the token's permissions from this link onward;
--no-permissions attenuates them to nothing.`,
		Usage: "captoken attest --key FILE --component NAME [flags] TOKEN|-",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("attest", pflag.ContinueOnError)
			addSigningFlags(flagSet, &keyPath, &identityPath)
			flagSet.StringVar(&signerName, "signer", "", "identity signing this link (empty for the first link)")
			flagSet.StringVar(&component, "component", "", "component to hand the token to (required)")
			flagSet.StringVar(&componentKey, "component-key", "", "public key (file or ed25519/<hex>) of --component to embed")
			flagSet.StringArrayVar(&attenuate, "permission", nil, "attenuate to this permission pattern; repeatable")
			flagSet.BoolVar(&noPermissions, "no-permissions", false, "attenuate to an empty permission set")
			flagSet.DurationVar(&ttl, "ttl", 0, "shorten the token's validity to this period from now")
			return flagSet
		},
		Run: func(args []string) error {
			if err := requireFlags("component", component); err != nil {
				return err
			}
			if noPermissions && len(attenuate) > 0 {
				return fmt.Errorf("--no-permissions cannot be combined with --permission")
			}
			if ttl < 0 {
				return fmt.Errorf("--ttl must not be negative")
			}
			tokenText, err := a.readToken(args)
			if err != nil {
				return err
			}
			decoded, err := token.Decode(tokenText)
			if err != nil {
				return err
			}

			link := token.Link{Signer: signerName, Component: component}
			if componentKey != "" {
				public, err := loadPublicKey(componentKey)
				if err != nil {
					return err
				}
				link.ComponentKey = public.Ed25519()
			}
			if noPermissions || len(attenuate) > 0 {
				link.Attenuation = &token.Attenuation{Permissions: attenuate}
				if link.Attenuation.Permissions == nil {
					link.Attenuation.Permissions = []string{}
				}
			}
			if ttl > 0 {
				link.ExpiresAt = a.clock.Now().Add(ttl).Unix()
			}

			key, err := loadSigningKey(keyPath, identityPath)
			if err != nil {
				return err
			}
			defer key.Close()

			extended, err := decoded.Attest(key, link)
			if err != nil {
				return err
			}
			return printToken(a, extended)
		},
	}
}

func addSigningFlags(flagSet *pflag.FlagSet, keyPath, identityPath *string) {
	flagSet.StringVar(keyPath, "key", "", "signing key file written by keygen (required)")
	flagSet.StringVar(identityPath, "identity", "", "age identity file for a sealed signing key")
}

func printToken(a *app, tok *token.Token) error {
	text, err := tok.Encode()
	if err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, text)
	return nil
}
