// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// defaultPoolSize applies when Config.PoolSize is zero or negative.
// Registry traffic is a handful of lookups per verification host.
const defaultPoolSize = 4

const schema = `
CREATE TABLE IF NOT EXISTS public_keys (
	key_name   TEXT PRIMARY KEY,
	public_key TEXT NOT NULL,
	is_default INTEGER NOT NULL DEFAULT 0
);
CREATE UNIQUE INDEX IF NOT EXISTS public_keys_single_default
	ON public_keys(is_default) WHERE is_default = 1;
CREATE TABLE IF NOT EXISTS service_chains (
	service_name  TEXT PRIMARY KEY,
	service_chain TEXT NOT NULL
);
`

// pragmas are applied to every pooled connection.
var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA foreign_keys=OFF",
	"PRAGMA temp_store=MEMORY",
}

func openPool(path string, poolSize int) (*sqlitex.Pool, int, error) {
	if poolSize <= 0 {
		poolSize = defaultPoolSize
	}
	pool, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		PoolSize:    poolSize,
		PrepareConn: prepareConnection,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("registry: opening %s: %w", path, err)
	}
	return pool, poolSize, nil
}

// prepareConnection runs once per connection, on first use.
func prepareConnection(conn *sqlite.Conn) error {
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("registry: %s: %w", pragma, err)
		}
	}
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return fmt.Errorf("registry: creating schema: %w", err)
	}
	return nil
}
