// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package verify

import (
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/bureau-foundation/captoken/lib/clock"
	"github.com/bureau-foundation/captoken/lib/keystore"
	"github.com/bureau-foundation/captoken/lib/policy"
	"github.com/bureau-foundation/captoken/lib/servicenode"
	"github.com/bureau-foundation/captoken/lib/signature"
	"github.com/bureau-foundation/captoken/lib/token"
)

// errNilKey is reported as KeyLoadError.
var errNilKey = fmt.Errorf("%w: no public key", keystore.ErrKeyLoad)

// Config configures a Verifier. The zero value is usable.
type Config struct {
	// Clock supplies the verification time. Nil uses the real clock.
	Clock clock.Clock

	// Logger receives one debug record per denied verification and an
	// error record per recovered panic. Nil discards.
	Logger *slog.Logger

	// Leeway widens validity windows to absorb clock skew.
	Leeway time.Duration
}

// Verifier runs verification calls. Create with New.
type Verifier struct {
	clock  clock.Clock
	logger *slog.Logger
	leeway time.Duration
}

// New returns a Verifier for config.
func New(config Config) *Verifier {
	verifier := &Verifier{
		clock:  config.Clock,
		logger: config.Logger,
		leeway: config.Leeway,
	}
	if verifier.clock == nil {
		verifier.clock = clock.Real()
	}
	if verifier.logger == nil {
		verifier.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if verifier.leeway < 0 {
		verifier.leeway = 0
	}
	return verifier
}

// Verify checks a simple (subject, resource) token. Tokens that carry a
// delegation chain are accepted when every link verifies from keys
// embedded in the chain.
func (v *Verifier) Verify(tokenText string, key *keystore.PublicKey, request policy.Request) Result {
	return v.run("verify", key, func() error {
		if err := checkKey(key); err != nil {
			return err
		}
		tok, err := token.Decode(tokenText)
		if err != nil {
			return err
		}
		if err := signature.VerifyChain(tok, key, signature.Options{
			Now:    v.clock.Now(),
			Leeway: v.leeway,
		}); err != nil {
			return err
		}
		return policy.Authorize(tok, request)
	})
}

// VerifyServiceChain checks a service-chain token. serviceNodes is the
// JSON service-node list (see lib/servicenode) mapping each chain
// component to its key; component is the participant that must appear
// in the verified chain.
func (v *Verifier) VerifyServiceChain(tokenText string, key *keystore.PublicKey, request policy.Request, serviceNodes []byte, component string) Result {
	return v.run("verify_service_chain", key, func() error {
		if err := checkKey(key); err != nil {
			return err
		}
		nodes, err := servicenode.Parse(serviceNodes)
		if err != nil {
			return err
		}
		return v.serviceChain(tokenText, key, request, nodes, component)
	})
}

// VerifyServiceChainNodes is VerifyServiceChain with an already parsed
// service-node list, for callers that verify many tokens against the
// same chain.
func (v *Verifier) VerifyServiceChainNodes(tokenText string, key *keystore.PublicKey, request policy.Request, nodes *servicenode.Set, component string) Result {
	return v.run("verify_service_chain", key, func() error {
		if err := checkKey(key); err != nil {
			return err
		}
		if nodes == nil {
			return fmt.Errorf("%w: no service node list", servicenode.ErrMalformed)
		}
		return v.serviceChain(tokenText, key, request, nodes, component)
	})
}

func (v *Verifier) serviceChain(tokenText string, key *keystore.PublicKey, request policy.Request, nodes *servicenode.Set, component string) error {
	tok, err := token.Decode(tokenText)
	if err != nil {
		return err
	}
	if err := signature.VerifyChain(tok, key, signature.Options{
		Now:    v.clock.Now(),
		Leeway: v.leeway,
		Nodes:  nodes,
	}); err != nil {
		return err
	}
	return policy.AuthorizeChain(tok, request, component)
}

// checkKey fails for a missing or released trust anchor.
func checkKey(key *keystore.PublicKey) error {
	if key == nil {
		return errNilKey
	}
	if key.Released() {
		return keystore.ErrReleased
	}
	return nil
}

// run executes one verification pipeline, converting its error (or a
// recovered panic) into a Result.
func (v *Verifier) run(operation string, key *keystore.PublicKey, pipeline func() error) (result Result) {
	defer func() {
		if recovered := recover(); recovered != nil {
			v.logger.Error("verification panicked",
				"operation", operation,
				"panic", fmt.Sprint(recovered),
				"stack", string(debug.Stack()),
			)
			result = Result{
				Code: InternalError,
				Err:  fmt.Errorf("verify: internal error: %v", recovered),
			}
		}
	}()

	err := pipeline()
	result = resultOf(err)
	if !result.OK() {
		attributes := []any{
			"operation", operation,
			"code", result.Code.String(),
			"error", err,
		}
		if key != nil {
			attributes = append(attributes, "key_id", key.ID())
		}
		v.logger.Debug("token verification denied", attributes...)
	}
	return result
}
