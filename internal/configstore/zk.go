// Copyright (c) 2026 Sigma. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package configstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-zookeeper/zk"
)

const (
	zkSessionTimeout = 10 * time.Second
	// zkRetryDelay spaces watch re-arm attempts after a session hiccup.
	zkRetryDelay = 2 * time.Second
)

// ZKStore implements [Store] over a ZooKeeper ensemble.
//
// # Watches
//
// ZooKeeper watches are one-shot. ZKStore re-arms a data watch and a children
// watch per node after every fire, and discovers new children as they appear,
// so a single Watch call behaves like a persistent recursive watch.
type ZKStore struct {
	conn *zk.Conn
	log  *slog.Logger
}

// NewZKStore connects to the ensemble given as a comma-separated server list.
func NewZKStore(ctx context.Context, servers string, logger *slog.Logger) (*ZKStore, error) {
	hosts := strings.Split(servers, ",")
	for i := range hosts {
		hosts[i] = strings.TrimSpace(hosts[i])
	}

	conn, events, err := zk.Connect(hosts, zkSessionTimeout, zk.WithLogInfo(false))
	if err != nil {
		return nil, fmt.Errorf("configstore: zk connect: %w", err)
	}

	// Wait for the session to come up before serving reads.
	for {
		select {
		case <-ctx.Done():
			conn.Close()
			return nil, fmt.Errorf("configstore: zk session: %w", ctx.Err())
		case ev := <-events:
			if ev.State == zk.StateHasSession {
				logger.Info("zookeeper_session_established", slog.String("servers", servers))
				return &ZKStore{conn: conn, log: logger}, nil
			}
		}
	}
}

// Exists reports whether the node at path exists.
func (s *ZKStore) Exists(_ context.Context, path string) (bool, error) {
	ok, _, err := s.conn.Exists(path)
	if err != nil {
		return false, fmt.Errorf("configstore: exists %s: %w", path, err)
	}
	return ok, nil
}

// Read returns the node's value, or [ErrNoNode].
func (s *ZKStore) Read(_ context.Context, path string) ([]byte, error) {
	data, _, err := s.conn.Get(path)
	if errors.Is(err, zk.ErrNoNode) {
		return nil, ErrNoNode
	}
	if err != nil {
		return nil, fmt.Errorf("configstore: read %s: %w", path, err)
	}
	return data, nil
}

// Children returns the names of the node's direct children.
func (s *ZKStore) Children(_ context.Context, path string) ([]string, error) {
	children, _, err := s.conn.Children(path)
	if errors.Is(err, zk.ErrNoNode) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("configstore: children %s: %w", path, err)
	}
	return children, nil
}

// ReadSubtree walks the tree under root and returns it as a snapshot.
// Nodes that vanish mid-walk are skipped; the snapshot is eventually
// consistent with the tree, which is all the registry rebuild needs.
func (s *ZKStore) ReadSubtree(ctx context.Context, root string) (Snapshot, error) {
	snapshot := Snapshot{}
	if err := s.walk(ctx, root, snapshot); err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (s *ZKStore) walk(ctx context.Context, path string, into Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := s.Read(ctx, path)
	if errors.Is(err, ErrNoNode) {
		return nil
	}
	if err != nil {
		return err
	}
	into[path] = data

	children, err := s.Children(ctx, path)
	if err != nil {
		return err
	}
	for _, child := range children {
		if err := s.walk(ctx, path+"/"+child, into); err != nil {
			return err
		}
	}
	return nil
}

// Watch registers a persistent recursive watch under root.
func (s *ZKStore) Watch(ctx context.Context, root string, fn WatchFunc) error {
	watcher := &zkWatcher{store: s, fn: fn, watched: map[string]bool{}}
	watcher.ensure(ctx, root)
	return nil
}

// Close releases the ZooKeeper session.
func (s *ZKStore) Close() error {
	s.conn.Close()
	return nil
}

// # Recursive Watcher

type zkWatcher struct {
	store *ZKStore
	fn    WatchFunc

	mu      sync.Mutex
	watched map[string]bool
}

// ensure starts the per-node watch loop for path exactly once.
func (w *zkWatcher) ensure(ctx context.Context, path string) {
	w.mu.Lock()
	if w.watched[path] {
		w.mu.Unlock()
		return
	}
	w.watched[path] = true
	w.mu.Unlock()

	go w.watchNode(ctx, path)
}

// watchNode arms one-shot data and children watches on a single node and
// re-arms them after every fire. New children get their own loops.
func (w *zkWatcher) watchNode(ctx context.Context, path string) {
	for {
		if ctx.Err() != nil {
			return
		}

		_, _, dataEvents, err := w.store.conn.GetW(path)
		if errors.Is(err, zk.ErrNoNode) {
			// Arm an existence watch so a recreated node resumes the loop.
			_, _, existEvents, exErr := w.store.conn.ExistsW(path)
			if exErr != nil {
				w.backoff(ctx, path, exErr)
				continue
			}
			select {
			case <-ctx.Done():
				return
			case ev := <-existEvents:
				if ev.Type == zk.EventNodeCreated {
					w.fn(Event{Type: NodeCreated, Path: path})
				}
			}
			continue
		}
		if err != nil {
			w.backoff(ctx, path, err)
			continue
		}

		children, _, childEvents, err := w.store.conn.ChildrenW(path)
		if err != nil {
			w.backoff(ctx, path, err)
			continue
		}
		for _, child := range children {
			w.ensure(ctx, path+"/"+child)
		}

		select {
		case <-ctx.Done():
			return
		case ev := <-dataEvents:
			w.dispatch(ev)
		case ev := <-childEvents:
			w.dispatch(ev)
		}
	}
}

// dispatch translates a ZooKeeper event into the store-neutral form.
func (w *zkWatcher) dispatch(ev zk.Event) {
	switch ev.Type {
	case zk.EventNodeCreated:
		w.fn(Event{Type: NodeCreated, Path: ev.Path})
	case zk.EventNodeDataChanged:
		w.fn(Event{Type: NodeChanged, Path: ev.Path})
	case zk.EventNodeDeleted:
		w.fn(Event{Type: NodeDeleted, Path: ev.Path})
	case zk.EventNodeChildrenChanged:
		w.fn(Event{Type: ChildrenChanged, Path: ev.Path})
	case zk.EventSession, zk.EventNotWatching:
		// Session expiry invalidates server-side watches; the loop re-arms on
		// the next iteration once the session is back.
	}
}

// backoff logs a watch failure and waits before the next re-arm attempt.
func (w *zkWatcher) backoff(ctx context.Context, path string, err error) {
	w.store.log.Warn("zookeeper_watch_rearm_failed",
		slog.String("path", path),
		slog.Any("error", err),
	)
	select {
	case <-ctx.Done():
	case <-time.After(zkRetryDelay):
	}
}
