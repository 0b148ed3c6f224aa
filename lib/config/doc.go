// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for captoken
// tools and hosts.
//
// Configuration is loaded from a single file specified by either the
// CAPTOKEN_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There are no fallbacks, no ~/.config discovery,
// and no automatic file search.
//
// The configuration file supports environment-specific sections
// (development, staging, production) that override base values when
// [Config].Environment matches. Production defaults are stricter: no
// clock-skew leeway and JSON logs.
//
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${CAPTOKEN_ROOT}, and ${VAR:-default} patterns are expanded.
// No other environment variables override config values.
//
// The verification engine never reads configuration itself. Callers
// resolve the trust-anchor path and leeway here and pass the results
// explicitly.
package config
