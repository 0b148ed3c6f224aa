// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"errors"
	"testing"

	"github.com/bureau-foundation/captoken/lib/token"
)

// chainToken builds an unsigned token for svc-a on /orders. Policy
// evaluation never looks at signatures.
func chainToken(permissions []string, links ...token.Link) *token.Token {
	tok := &token.Token{
		Claims: token.Claims{
			Subject:     "svc-a",
			Resource:    "/orders",
			Permissions: permissions,
		},
	}
	for _, link := range links {
		tok.Chain = append(tok.Chain, token.SignedLink{Link: link})
	}
	return tok
}

func TestAuthorize(t *testing.T) {
	readOnly := &token.Attenuation{Permissions: []string{"orders/read"}}
	nothing := &token.Attenuation{Permissions: []string{}}

	tests := []struct {
		name    string
		token   *token.Token
		request Request
		wantErr error
	}{
		{
			name:    "subject and resource",
			token:   chainToken(nil),
			request: Request{Subject: "svc-a", Resource: "/orders"},
		},
		{
			name:    "wrong subject",
			token:   chainToken(nil),
			request: Request{Subject: "svc-b", Resource: "/orders"},
			wantErr: ErrSubjectMismatch,
		},
		{
			name:    "wrong resource",
			token:   chainToken(nil),
			request: Request{Subject: "svc-a", Resource: "/orders/42"},
			wantErr: ErrResourceMismatch,
		},
		{
			name:    "subject checked before resource",
			token:   chainToken(nil),
			request: Request{Subject: "svc-b", Resource: "/invoices"},
			wantErr: ErrSubjectMismatch,
		},
		{
			name:    "resource is case sensitive",
			token:   chainToken(nil),
			request: Request{Subject: "svc-a", Resource: "/Orders"},
			wantErr: ErrResourceMismatch,
		},
		{
			name:    "granted permission",
			token:   chainToken([]string{"orders/read"}),
			request: Request{Subject: "svc-a", Resource: "/orders", Permission: "orders/read"},
		},
		{
			name:    "glob permission",
			token:   chainToken([]string{"orders/**"}),
			request: Request{Subject: "svc-a", Resource: "/orders", Permission: "orders/line/write"},
		},
		{
			name:    "missing permission",
			token:   chainToken([]string{"orders/read"}),
			request: Request{Subject: "svc-a", Resource: "/orders", Permission: "orders/write"},
			wantErr: ErrResourceMismatch,
		},
		{
			name:    "permission with no grants",
			token:   chainToken(nil),
			request: Request{Subject: "svc-a", Resource: "/orders", Permission: "orders/read"},
			wantErr: ErrResourceMismatch,
		},
		{
			name:    "attenuation keeps permission",
			token:   chainToken([]string{"orders/*"}, token.Link{Component: "gateway", Attenuation: readOnly}),
			request: Request{Subject: "svc-a", Resource: "/orders", Permission: "orders/read"},
		},
		{
			name:    "attenuation removes permission",
			token:   chainToken([]string{"orders/*"}, token.Link{Component: "gateway", Attenuation: readOnly}),
			request: Request{Subject: "svc-a", Resource: "/orders", Permission: "orders/write"},
			wantErr: ErrResourceMismatch,
		},
		{
			name: "later attenuation removes permission",
			token: chainToken([]string{"**"},
				token.Link{Component: "gateway", Attenuation: &token.Attenuation{Permissions: []string{"orders/*"}}},
				token.Link{Signer: "gateway", Component: "billing", Attenuation: readOnly}),
			request: Request{Subject: "svc-a", Resource: "/orders", Permission: "orders/write"},
			wantErr: ErrResourceMismatch,
		},
		{
			name:    "attenuation cannot widen",
			token:   chainToken([]string{"orders/read"}, token.Link{Component: "gateway", Attenuation: &token.Attenuation{Permissions: []string{"**"}}}),
			request: Request{Subject: "svc-a", Resource: "/orders", Permission: "orders/write"},
			wantErr: ErrResourceMismatch,
		},
		{
			name:    "no permission requested with attenuation",
			token:   chainToken(nil, token.Link{Component: "gateway", Attenuation: readOnly}),
			request: Request{Subject: "svc-a", Resource: "/orders"},
		},
		{
			name:    "no permission requested with empty attenuation",
			token:   chainToken(nil, token.Link{Component: "gateway", Attenuation: nothing}),
			request: Request{Subject: "svc-a", Resource: "/orders"},
			wantErr: ErrResourceMismatch,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := Authorize(test.token, test.request)
			if test.wantErr == nil {
				if err != nil {
					t.Fatalf("Authorize: %v", err)
				}
				return
			}
			if !errors.Is(err, test.wantErr) {
				t.Fatalf("error = %v, want %v", err, test.wantErr)
			}
		})
	}
}

func TestAuthorizeChain(t *testing.T) {
	tok := chainToken(nil,
		token.Link{Component: "gateway"},
		token.Link{Signer: "gateway", Component: "billing"},
	)
	request := Request{Subject: "svc-a", Resource: "/orders"}

	for _, component := range []string{"gateway", "billing"} {
		if err := AuthorizeChain(tok, request, component); err != nil {
			t.Errorf("AuthorizeChain(%q): %v", component, err)
		}
	}
	for _, component := range []string{"auditor", "", "Billing"} {
		if err := AuthorizeChain(tok, request, component); !errors.Is(err, ErrComponentNotFound) {
			t.Errorf("AuthorizeChain(%q) error = %v, want ErrComponentNotFound", component, err)
		}
	}

	// Simple-mode failures take precedence over component lookup.
	if err := AuthorizeChain(tok, Request{Subject: "svc-b", Resource: "/orders"}, "auditor"); !errors.Is(err, ErrSubjectMismatch) {
		t.Errorf("error = %v, want ErrSubjectMismatch", err)
	}

	// An undelegated token has no participants.
	if err := AuthorizeChain(chainToken(nil), request, "gateway"); !errors.Is(err, ErrComponentNotFound) {
		t.Errorf("unchained: error = %v, want ErrComponentNotFound", err)
	}
}
