// Copyright (c) 2026 Sigma. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package configstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
)

// MemStore is an in-memory [Store] used by tests and local development.
// Mutations fire registered watches synchronously, which makes reload
// behavior deterministic under test.
type MemStore struct {
	mu       sync.RWMutex
	nodes    map[string][]byte
	watchers []memWatcher
}

type memWatcher struct {
	root string
	fn   WatchFunc
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{nodes: map[string][]byte{}}
}

// NewMemStoreFromFile seeds a store from a JSON object of path→string pairs.
// Used by the CONFIG_BOOTSTRAP development mode.
func NewMemStoreFromFile(path string) (*MemStore, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("configstore: read bootstrap file: %w", err)
	}

	var seed map[string]string
	if err := json.Unmarshal(raw, &seed); err != nil {
		return nil, fmt.Errorf("configstore: parse bootstrap file: %w", err)
	}

	store := NewMemStore()
	for nodePath, value := range seed {
		store.Set(nodePath, []byte(value))
	}
	return store, nil
}

// Set creates or updates a node, materializing missing ancestors.
func (s *MemStore) Set(path string, value []byte) {
	s.mu.Lock()

	eventType := NodeChanged
	if _, exists := s.nodes[path]; !exists {
		eventType = NodeCreated
	}
	s.nodes[path] = value

	// Materialize ancestors so Children and subtree walks behave like ZK.
	for parent := parentPath(path); parent != "" && parent != "/"; parent = parentPath(parent) {
		if _, ok := s.nodes[parent]; !ok {
			s.nodes[parent] = nil
		}
	}

	watchers := append([]memWatcher(nil), s.watchers...)
	s.mu.Unlock()

	s.notify(watchers, Event{Type: eventType, Path: path})
}

// Delete removes a node and its subtree.
func (s *MemStore) Delete(path string) {
	s.mu.Lock()
	prefix := path + "/"
	for p := range s.nodes {
		if p == path || strings.HasPrefix(p, prefix) {
			delete(s.nodes, p)
		}
	}
	watchers := append([]memWatcher(nil), s.watchers...)
	s.mu.Unlock()

	s.notify(watchers, Event{Type: NodeDeleted, Path: path})
}

func (s *MemStore) notify(watchers []memWatcher, ev Event) {
	for _, w := range watchers {
		if ev.Path == w.root || strings.HasPrefix(ev.Path, w.root+"/") {
			w.fn(ev)
		}
	}
}

// Exists reports whether the node at path exists.
func (s *MemStore) Exists(_ context.Context, path string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.nodes[path]
	return ok, nil
}

// Read returns the node's value, or [ErrNoNode].
func (s *MemStore) Read(_ context.Context, path string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.nodes[path]
	if !ok {
		return nil, ErrNoNode
	}
	return value, nil
}

// Children returns the names of the node's direct children.
func (s *MemStore) Children(_ context.Context, path string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot(s.nodes).ChildNames(path), nil
}

// ReadSubtree returns every node under root (inclusive) as a snapshot copy.
func (s *MemStore) ReadSubtree(_ context.Context, root string) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := Snapshot{}
	prefix := root + "/"
	for path, value := range s.nodes {
		if path == root || strings.HasPrefix(path, prefix) {
			snapshot[path] = value
		}
	}
	return snapshot, nil
}

// Watch registers a recursive watch under root.
func (s *MemStore) Watch(_ context.Context, root string, fn WatchFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchers = append(s.watchers, memWatcher{root: root, fn: fn})
	return nil
}

// Close is a no-op for the in-memory store.
func (s *MemStore) Close() error { return nil }

// parentPath returns the parent of a slash path, or "" at the root.
func parentPath(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx <= 0 {
		return ""
	}
	return path[:idx]
}
