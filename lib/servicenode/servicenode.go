// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package servicenode parses the service-node lists that accompany
// service-chain verification: the mapping from each component identity
// in a delegation chain to the public key that signs on its behalf.
//
// Two JSON shapes are accepted, a bare array and an object wrapping the
// array under "service_nodes":
//
//	[{"component": "gateway", "public_key": "ed25519/1f2e..."}]
//	{"service_nodes": [{"component": "gateway", "public_key": "ed25519/1f2e..."}]}
//
// Key values use any text encoding [keystore.ParseText] understands.
// Structural problems (bad JSON, missing fields, duplicate components)
// wrap [ErrMalformed]; unparseable key values wrap [keystore.ErrKeyLoad].
package servicenode

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/tidwall/jsonc"

	"github.com/bureau-foundation/captoken/lib/keystore"
)

// MaxNodes bounds the number of entries in one list.
const MaxNodes = 256

// ErrMalformed matches every structural parse failure.
var ErrMalformed = errors.New("servicenode: malformed service node list")

// Node is one entry of a service-node list.
type Node struct {
	Component string `json:"component"`
	PublicKey string `json:"public_key"`
}

// wrapped is the object form used by the database deployment.
type wrapped struct {
	ServiceNodes *[]Node `json:"service_nodes"`
}

// Set is a parsed, validated service-node list. It is immutable and
// safe for concurrent use.
type Set struct {
	nodes []Node
	keys  map[string]*keystore.PublicKey
}

// Parse parses a JSON service-node list in either accepted shape.
func Parse(data []byte) (*Set, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrMalformed)
	}

	var nodes []Node
	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &nodes); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
		}
	case '{':
		var object wrapped
		if err := json.Unmarshal(trimmed, &object); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		if object.ServiceNodes == nil {
			return nil, fmt.Errorf("%w: object has no \"service_nodes\" array", ErrMalformed)
		}
		nodes = *object.ServiceNodes
	default:
		return nil, fmt.Errorf("%w: expected a JSON array or object", ErrMalformed)
	}
	return New(nodes)
}

// ParseFile reads a service-node list from path. Files may contain
// comments and trailing commas (JSONC).
func ParseFile(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	set, err := Parse(jsonc.ToJSON(data))
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return set, nil
}

// New validates nodes and parses their keys.
func New(nodes []Node) (*Set, error) {
	if len(nodes) > MaxNodes {
		return nil, fmt.Errorf("%w: %d nodes, limit %d", ErrMalformed, len(nodes), MaxNodes)
	}

	set := &Set{
		nodes: make([]Node, len(nodes)),
		keys:  make(map[string]*keystore.PublicKey, len(nodes)),
	}
	copy(set.nodes, nodes)

	for index, node := range nodes {
		if node.Component == "" {
			return nil, fmt.Errorf("%w: node %d: missing component", ErrMalformed, index)
		}
		if node.PublicKey == "" {
			return nil, fmt.Errorf("%w: node %d (%s): missing public_key", ErrMalformed, index, node.Component)
		}
		if _, exists := set.keys[node.Component]; exists {
			return nil, fmt.Errorf("%w: duplicate component %q", ErrMalformed, node.Component)
		}
		key, err := keystore.ParseText(node.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("node %d (%s): %w", index, node.Component, err)
		}
		set.keys[node.Component] = key
	}
	return set, nil
}

// Key returns the public key registered for component.
func (s *Set) Key(component string) (*keystore.PublicKey, bool) {
	key, ok := s.keys[component]
	return key, ok
}

// Len returns the number of nodes.
func (s *Set) Len() int { return len(s.nodes) }

// Nodes returns a copy of the entries in their original order.
func (s *Set) Nodes() []Node {
	nodes := make([]Node, len(s.nodes))
	copy(nodes, s.nodes)
	return nodes
}

// Marshal encodes nodes in the object form, the shape stored in the
// chain registry.
func Marshal(nodes []Node) ([]byte, error) {
	if nodes == nil {
		nodes = []Node{}
	}
	data, err := json.Marshal(wrapped{ServiceNodes: &nodes})
	if err != nil {
		return nil, fmt.Errorf("servicenode: encoding: %w", err)
	}
	return data, nil
}
