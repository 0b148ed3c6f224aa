// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/captoken/lib/keystore"
	"github.com/bureau-foundation/captoken/lib/policy"
	"github.com/bureau-foundation/captoken/lib/servicenode"
	"github.com/bureau-foundation/captoken/lib/signature"
	"github.com/bureau-foundation/captoken/lib/verify"
)

// ErrNotFound is returned when a named key or chain does not exist.
var ErrNotFound = errors.New("registry: not found")

// Config holds the parameters for opening a registry.
type Config struct {
	// Path is the database file. The parent directory must exist.
	Path string

	// PoolSize is the number of pooled connections. Zero means 4.
	PoolSize int

	// Logger receives open/close and write records. Nil discards.
	Logger *slog.Logger
}

// KeyEntry is one row of the key table.
type KeyEntry struct {
	Name    string
	Key     *keystore.PublicKey
	Default bool
}

// ChainEntry is one row of the chain table.
type ChainEntry struct {
	Name  string
	Nodes []servicenode.Node
}

// Registry is a SQLite-backed store of named keys and service chains.
// Safe for concurrent use.
type Registry struct {
	pool   *sqlitex.Pool
	logger *slog.Logger
	path   string
}

// Open opens (creating if needed) the registry database. The caller
// must call Close.
func Open(cfg Config) (*Registry, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("registry: Path is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	pool, poolSize, err := openPool(cfg.Path, cfg.PoolSize)
	if err != nil {
		return nil, err
	}
	logger.Info("registry opened", "path", cfg.Path, "pool_size", poolSize)
	return &Registry{pool: pool, logger: logger, path: cfg.Path}, nil
}

// Close closes every pooled connection. Blocks until borrowed
// connections are returned.
func (r *Registry) Close() error {
	if err := r.pool.Close(); err != nil {
		r.logger.Error("registry close error", "path", r.path, "error", err)
		return fmt.Errorf("registry: closing %s: %w", r.path, err)
	}
	r.logger.Info("registry closed", "path", r.path)
	return nil
}

// withConn borrows a connection for the duration of fn.
func (r *Registry) withConn(ctx context.Context, fn func(*sqlite.Conn) error) error {
	conn, err := r.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("registry: take: %w", err)
	}
	defer r.pool.Put(conn)
	return fn(conn)
}

// PutKey inserts or replaces the key stored under name. When
// makeDefault is set, the key becomes the only default key.
func (r *Registry) PutKey(ctx context.Context, name string, key *keystore.PublicKey, makeDefault bool) error {
	if name == "" {
		return fmt.Errorf("registry: key name is required")
	}
	if key == nil {
		return fmt.Errorf("registry: key %q is nil", name)
	}

	var isDefault int64
	if makeDefault {
		isDefault = 1
	}

	err := r.withConn(ctx, func(conn *sqlite.Conn) (err error) {
		endTransaction, err := sqlitex.ImmediateTransaction(conn)
		if err != nil {
			return fmt.Errorf("registry: begin transaction: %w", err)
		}
		defer endTransaction(&err)

		if makeDefault {
			if err := sqlitex.Execute(conn, "UPDATE public_keys SET is_default = 0 WHERE is_default = 1", nil); err != nil {
				return fmt.Errorf("registry: clearing default key: %w", err)
			}
		}
		return sqlitex.Execute(conn,
			`INSERT INTO public_keys (key_name, public_key, is_default) VALUES (?, ?, ?)
			 ON CONFLICT(key_name) DO UPDATE SET
			   public_key = excluded.public_key,
			   is_default = excluded.is_default`,
			&sqlitex.ExecOptions{Args: []any{name, key.String(), isDefault}})
	})
	if err != nil {
		return fmt.Errorf("registry: storing key %q: %w", name, err)
	}
	r.logger.Info("key stored", "name", name, "key_id", key.ID(), "default", makeDefault)
	return nil
}

// Key returns the key stored under name.
func (r *Registry) Key(ctx context.Context, name string) (*keystore.PublicKey, error) {
	return r.queryKey(ctx, "SELECT public_key FROM public_keys WHERE key_name = ?", name)
}

// DefaultKey returns the key flagged as default.
func (r *Registry) DefaultKey(ctx context.Context) (*keystore.PublicKey, error) {
	return r.queryKey(ctx, "SELECT public_key FROM public_keys WHERE is_default = 1")
}

func (r *Registry) queryKey(ctx context.Context, query string, args ...any) (*keystore.PublicKey, error) {
	var text string
	found := false
	err := r.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
			Args: args,
			ResultFunc: func(stmt *sqlite.Stmt) error {
				text = stmt.ColumnText(0)
				found = true
				return nil
			},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("registry: querying key: %w", err)
	}
	if !found {
		return nil, ErrNotFound
	}
	return keystore.ParseText(text)
}

// Keys lists every stored key ordered by name.
func (r *Registry) Keys(ctx context.Context) ([]KeyEntry, error) {
	var entries []KeyEntry
	err := r.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			"SELECT key_name, public_key, is_default FROM public_keys ORDER BY key_name",
			&sqlitex.ExecOptions{
				ResultFunc: func(stmt *sqlite.Stmt) error {
					key, err := keystore.ParseText(stmt.ColumnText(1))
					if err != nil {
						return fmt.Errorf("key %q: %w", stmt.ColumnText(0), err)
					}
					entries = append(entries, KeyEntry{
						Name:    stmt.ColumnText(0),
						Key:     key,
						Default: stmt.ColumnInt64(2) != 0,
					})
					return nil
				},
			})
	})
	if err != nil {
		return nil, fmt.Errorf("registry: listing keys: %w", err)
	}
	return entries, nil
}

// DeleteKey removes the key stored under name.
func (r *Registry) DeleteKey(ctx context.Context, name string) error {
	return r.delete(ctx, "DELETE FROM public_keys WHERE key_name = ?", name)
}

// PutChain validates nodes and stores them under name, replacing any
// existing chain.
func (r *Registry) PutChain(ctx context.Context, name string, nodes []servicenode.Node) error {
	if name == "" {
		return fmt.Errorf("registry: chain name is required")
	}
	if _, err := servicenode.New(nodes); err != nil {
		return fmt.Errorf("registry: chain %q: %w", name, err)
	}
	encoded, err := servicenode.Marshal(nodes)
	if err != nil {
		return err
	}

	err = r.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`INSERT INTO service_chains (service_name, service_chain) VALUES (?, ?)
			 ON CONFLICT(service_name) DO UPDATE SET service_chain = excluded.service_chain`,
			&sqlitex.ExecOptions{Args: []any{name, string(encoded)}})
	})
	if err != nil {
		return fmt.Errorf("registry: storing chain %q: %w", name, err)
	}
	r.logger.Info("service chain stored", "name", name, "nodes", len(nodes))
	return nil
}

// Chain returns the parsed service-node set stored under name.
func (r *Registry) Chain(ctx context.Context, name string) (*servicenode.Set, error) {
	var encoded string
	found := false
	err := r.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			"SELECT service_chain FROM service_chains WHERE service_name = ?",
			&sqlitex.ExecOptions{
				Args: []any{name},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					encoded = stmt.ColumnText(0)
					found = true
					return nil
				},
			})
	})
	if err != nil {
		return nil, fmt.Errorf("registry: querying chain %q: %w", name, err)
	}
	if !found {
		return nil, ErrNotFound
	}
	return servicenode.Parse([]byte(encoded))
}

// Chains lists every stored chain ordered by name.
func (r *Registry) Chains(ctx context.Context) ([]ChainEntry, error) {
	var entries []ChainEntry
	err := r.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			"SELECT service_name, service_chain FROM service_chains ORDER BY service_name",
			&sqlitex.ExecOptions{
				ResultFunc: func(stmt *sqlite.Stmt) error {
					set, err := servicenode.Parse([]byte(stmt.ColumnText(1)))
					if err != nil {
						return fmt.Errorf("chain %q: %w", stmt.ColumnText(0), err)
					}
					entries = append(entries, ChainEntry{Name: stmt.ColumnText(0), Nodes: set.Nodes()})
					return nil
				},
			})
	})
	if err != nil {
		return nil, fmt.Errorf("registry: listing chains: %w", err)
	}
	return entries, nil
}

// DeleteChain removes the chain stored under name.
func (r *Registry) DeleteChain(ctx context.Context, name string) error {
	return r.delete(ctx, "DELETE FROM service_chains WHERE service_name = ?", name)
}

func (r *Registry) delete(ctx context.Context, query, name string) error {
	var changes int
	err := r.withConn(ctx, func(conn *sqlite.Conn) error {
		if err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{Args: []any{name}}); err != nil {
			return err
		}
		changes = conn.Changes()
		return nil
	})
	if err != nil {
		return fmt.Errorf("registry: deleting %q: %w", name, err)
	}
	if changes == 0 {
		return ErrNotFound
	}
	return nil
}

// VerifyServiceChainByName verifies a service-chain token against the
// default key and the chain stored under chainName.
func (r *Registry) VerifyServiceChainByName(ctx context.Context, verifier *verify.Verifier, tokenText string, request policy.Request, chainName, component string) verify.Result {
	key, err := r.DefaultKey(ctx)
	if errors.Is(err, ErrNotFound) {
		return verify.Result{
			Code: verify.KeyLoadError,
			Err:  fmt.Errorf("%w: no default key in registry", keystore.ErrKeyLoad),
		}
	}
	if err != nil {
		return verify.Result{Code: verify.Classify(err), Err: err}
	}

	nodes, err := r.Chain(ctx, chainName)
	if errors.Is(err, ErrNotFound) {
		return verify.Result{
			Code: verify.Broken,
			Err:  fmt.Errorf("%w: no service chain named %q", signature.ErrBroken, chainName),
		}
	}
	if err != nil {
		return verify.Result{Code: verify.Classify(err), Err: err}
	}

	return verifier.VerifyServiceChainNodes(tokenText, key, request, nodes, component)
}
