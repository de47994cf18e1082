// Copyright (c) 2026 Sigma. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package configstore abstracts the hierarchical configuration tree that drives
the gateway: endpoint definitions, JSON Schemas, enum wiring, and globals.

Architecture:

  - Store: a narrow interface over a ZooKeeper-shaped KV tree with recursive
    change watches. Two implementations exist: zkstore (production) and
    memstore (tests and local development).
  - Snapshot: an immutable path→bytes map consumed by higher layers. Watchers
    rebuild derived state (endpoint registry, schema cache) and publish new
    snapshots atomically; readers never observe a torn view.

Bad nodes are the consumer's concern: a malformed endpoint is logged and
skipped so the remaining tree stays serviceable.
*/
package configstore

import (
	"context"
	"errors"
	"sort"
	"strings"
)

// ErrNoNode is returned by Read when the path does not exist.
var ErrNoNode = errors.New("configstore: node does not exist")

// EventType classifies a change notification.
type EventType int

const (
	NodeCreated EventType = iota + 1
	NodeChanged
	NodeDeleted
	ChildrenChanged
)

// String returns the log-friendly name of the event type.
func (t EventType) String() string {
	switch t {
	case NodeCreated:
		return "NodeCreated"
	case NodeChanged:
		return "NodeChanged"
	case NodeDeleted:
		return "NodeDeleted"
	case ChildrenChanged:
		return "ChildrenChanged"
	default:
		return "Unknown"
	}
}

// Event is one change notification delivered to a watch callback.
type Event struct {
	Type EventType
	Path string
}

// WatchFunc receives change events. Callbacks must be fast; heavy rebuild work
// should be handed to the consumer's own goroutine.
type WatchFunc func(Event)

// Store is the hierarchical byte-array KV contract.
type Store interface {
	// Exists reports whether the node at path exists.
	Exists(ctx context.Context, path string) (bool, error)

	// Read returns the node's value, or [ErrNoNode].
	Read(ctx context.Context, path string) ([]byte, error)

	// Children returns the names of the node's direct children.
	Children(ctx context.Context, path string) ([]string, error)

	// ReadSubtree returns every node under root (inclusive) as a snapshot.
	ReadSubtree(ctx context.Context, root string) (Snapshot, error)

	// Watch registers a recursive watch under root. The watch re-arms itself
	// after firing and after session reconnect, and stops when ctx is done.
	Watch(ctx context.Context, root string, fn WatchFunc) error

	// Close releases the underlying session.
	Close() error
}

// # Snapshot

// Snapshot is an immutable view of a subtree: absolute path → value.
type Snapshot map[string][]byte

// Get returns the string value at path.
func (s Snapshot) Get(path string) (string, bool) {
	v, ok := s[path]
	if !ok {
		return "", false
	}
	return string(v), true
}

// GetOr returns the string value at path, or fallback when absent or empty.
func (s Snapshot) GetOr(path, fallback string) string {
	if v, ok := s.Get(path); ok && v != "" {
		return v
	}
	return fallback
}

// ChildNames returns the sorted direct child names under prefix.
func (s Snapshot) ChildNames(prefix string) []string {
	prefix = strings.TrimSuffix(prefix, "/") + "/"
	seen := map[string]bool{}
	for path := range s {
		if !strings.HasPrefix(path, prefix) {
			continue
		}
		rest := strings.TrimPrefix(path, prefix)
		name, _, _ := strings.Cut(rest, "/")
		if name != "" {
			seen[name] = true
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
