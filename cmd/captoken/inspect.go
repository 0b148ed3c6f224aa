// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/captoken/cmd/captoken/cli"
	"github.com/bureau-foundation/captoken/lib/codec"
	"github.com/bureau-foundation/captoken/lib/keystore"
	"github.com/bureau-foundation/captoken/lib/token"
)

// inspection is the decoded, unverified view of a token.
type inspection struct {
	ID          string           `json:"id,omitempty"`
	Subject     string           `json:"subject"`
	Resource    string           `json:"resource"`
	Permissions []string         `json:"permissions"`
	IssuedAt    string           `json:"issued_at,omitempty"`
	NotBefore   string           `json:"not_before,omitempty"`
	ExpiresAt   string           `json:"expires_at,omitempty"`
	Effective   string           `json:"effective_expires_at,omitempty"`
	Links       []linkInspection `json:"links"`
	Diagnostics []string         `json:"diagnostics"`
}

type linkInspection struct {
	Signer       string   `json:"signer"`
	Component    string   `json:"component"`
	ComponentKey string   `json:"component_key,omitempty"`
	Previous     string   `json:"previous"`
	Permissions  []string `json:"attenuation,omitempty"`
	Attenuated   bool     `json:"attenuated"`
	ExpiresAt    string   `json:"expires_at,omitempty"`
}

func inspectCommand(a *app) *cli.Command {
	var jsonOutput bool

	return &cli.Command{
		Name:    "inspect",
		Summary: "Decode a token without verifying it",
		Description: `Decode a token and print its claims, delegation links and the CBOR
diagnostic notation of every block payload. Nothing is verified: the
output shows what the token claims, not what it proves.`,
		Usage: "captoken inspect [flags] TOKEN|-",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("inspect", pflag.ContinueOnError)
			flagSet.BoolVar(&jsonOutput, "json", false, "print as JSON")
			return flagSet
		},
		Run: func(args []string) error {
			tokenText, err := a.readToken(args)
			if err != nil {
				return err
			}
			decoded, err := token.Decode(tokenText)
			if err != nil {
				return err
			}
			view, err := inspect(decoded)
			if err != nil {
				return err
			}
			if jsonOutput {
				return cli.WriteJSON(a.stdout, view)
			}
			printInspection(a.stdout, view)
			return nil
		},
	}
}

func inspect(decoded *token.Token) (*inspection, error) {
	claims := decoded.Claims
	view := &inspection{
		ID:          claims.ID,
		Subject:     claims.Subject,
		Resource:    claims.Resource,
		Permissions: claims.Permissions,
		IssuedAt:    formatUnix(claims.IssuedAt),
		NotBefore:   formatUnix(claims.NotBefore),
		ExpiresAt:   formatUnix(claims.ExpiresAt),
	}
	if view.Permissions == nil {
		view.Permissions = []string{}
	}
	if expires := decoded.ExpiresAt(); !expires.IsZero() {
		view.Effective = expires.UTC().Format(time.RFC3339)
	}

	blocks := []token.Block{decoded.Authority}
	view.Links = make([]linkInspection, 0, len(decoded.Chain))
	for _, link := range decoded.Chain {
		entry := linkInspection{
			Signer:    link.Signer,
			Component: link.Component,
			Previous:  hex.EncodeToString(link.Previous),
			ExpiresAt: formatUnix(link.ExpiresAt),
		}
		if len(link.ComponentKey) > 0 {
			key, err := keystore.FromEd25519(link.ComponentKey)
			if err != nil {
				return nil, err
			}
			entry.ComponentKey = key.String()
		}
		if link.Attenuation != nil {
			entry.Attenuated = true
			entry.Permissions = link.Attenuation.Permissions
		}
		view.Links = append(view.Links, entry)
		blocks = append(blocks, link.Block)
	}

	view.Diagnostics = make([]string, len(blocks))
	for index, block := range blocks {
		diagnostic, err := codec.Diagnose(block.Payload())
		if err != nil {
			return nil, fmt.Errorf("block %d: %w", index, err)
		}
		view.Diagnostics[index] = diagnostic
	}
	return view, nil
}

func printInspection(w io.Writer, view *inspection) {
	tw := tabwriter.NewWriter(w, 2, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "id:\t%s\n", orNone(view.ID))
	fmt.Fprintf(tw, "subject:\t%s\n", view.Subject)
	fmt.Fprintf(tw, "resource:\t%s\n", view.Resource)
	fmt.Fprintf(tw, "permissions:\t%s\n", orNone(strings.Join(view.Permissions, ", ")))
	fmt.Fprintf(tw, "issued at:\t%s\n", orNone(view.IssuedAt))
	fmt.Fprintf(tw, "not before:\t%s\n", orNone(view.NotBefore))
	fmt.Fprintf(tw, "expires at:\t%s\n", orNone(view.ExpiresAt))
	fmt.Fprintf(tw, "effective expiry:\t%s\n", orNone(view.Effective))
	tw.Flush()

	for index, link := range view.Links {
		signer := link.Signer
		if signer == "" {
			signer = "(trust anchor)"
		}
		fmt.Fprintf(w, "\nlink %d: %s -> %s\n", index, signer, link.Component)
		if link.ComponentKey != "" {
			fmt.Fprintf(w, "  component key: %s\n", link.ComponentKey)
		}
		if link.Attenuated {
			fmt.Fprintf(w, "  attenuation:   %s\n", orNone(strings.Join(link.Permissions, ", ")))
		}
		if link.ExpiresAt != "" {
			fmt.Fprintf(w, "  expires at:    %s\n", link.ExpiresAt)
		}
		fmt.Fprintf(w, "  previous:      %s\n", link.Previous)
	}

	for index, diagnostic := range view.Diagnostics {
		label := "authority"
		if index > 0 {
			label = fmt.Sprintf("link %d", index-1)
		}
		fmt.Fprintf(w, "\n%s payload:\n  %s\n", label, diagnostic)
	}
}

func formatUnix(seconds int64) string {
	if seconds == 0 {
		return ""
	}
	return time.Unix(seconds, 0).UTC().Format(time.RFC3339)
}

func orNone(value string) string {
	if value == "" {
		return "(none)"
	}
	return value
}
