// Package filegraph serves follow edges from a JSON document mapping each
// user to their followers:
//
//	{"bob": ["alice", "carol"]}
//
// Watch reloads the document whenever it changes on disk, so an operator can
// edit the file while the server runs. Follow and Unfollow rewrite the file
// atomically.
package filegraph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/ggoodman/toolwire/socialgraph"
)

var _ socialgraph.Store = (*Graph)(nil)

type Graph struct {
	path string
	log  *slog.Logger

	mu        sync.RWMutex
	followers map[string][]string
	// writeMu serializes rewrites of the file.
	writeMu sync.Mutex
}

// Open loads path. A missing file is treated as an empty graph.
func Open(path string, log *slog.Logger) (*Graph, error) {
	if log == nil {
		log = slog.Default()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("filegraph: resolve path: %w", err)
	}
	g := &Graph{path: abs, log: log, followers: map[string][]string{}}
	if err := g.Reload(); err != nil {
		return nil, err
	}
	return g, nil
}

// Reload re-reads the document from disk.
func (g *Graph) Reload() error {
	b, err := os.ReadFile(g.path)
	if errors.Is(err, fs.ErrNotExist) {
		g.mu.Lock()
		g.followers = map[string][]string{}
		g.mu.Unlock()
		return nil
	}
	if err != nil {
		return fmt.Errorf("filegraph: read %s: %w", g.path, err)
	}
	doc := map[string][]string{}
	if len(b) > 0 {
		if err := json.Unmarshal(b, &doc); err != nil {
			return fmt.Errorf("filegraph: parse %s: %w", g.path, err)
		}
	}
	for followee, followers := range doc {
		doc[followee] = normalize(followee, followers)
	}
	g.mu.Lock()
	g.followers = doc
	g.mu.Unlock()
	return nil
}

// Watch reloads the document on change until ctx is done. The parent
// directory is watched so editors that replace the file are observed.
func (g *Graph) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("filegraph: watcher: %w", err)
	}
	defer func() {
		_ = w.Close()
	}()
	if err := w.Add(filepath.Dir(g.path)); err != nil {
		return fmt.Errorf("filegraph: watch %s: %w", filepath.Dir(g.path), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != g.path {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if err := g.Reload(); err != nil {
				g.log.WarnContext(ctx, "filegraph.reload.fail", slog.String("err", err.Error()))
				continue
			}
			g.log.DebugContext(ctx, "filegraph.reload.ok", slog.String("path", g.path))
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			g.log.DebugContext(ctx, "filegraph.watch.error", slog.String("err", err.Error()))
		}
	}
}

func (g *Graph) Followers(_ context.Context, userID string) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string{}, g.followers[userID]...), nil
}

func (g *Graph) Following(_ context.Context, userID string) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := []string{}
	for followee, followers := range g.followers {
		if contains(followers, userID) {
			out = append(out, followee)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (g *Graph) Follow(_ context.Context, followerID, followeeID string) (bool, error) {
	if followerID == followeeID {
		return false, socialgraph.ErrSelfFollow
	}
	return g.mutate(func(doc map[string][]string) bool {
		if contains(doc[followeeID], followerID) {
			return false
		}
		doc[followeeID] = normalize(followeeID, append(doc[followeeID], followerID))
		return true
	})
}

func (g *Graph) Unfollow(_ context.Context, followerID, followeeID string) (bool, error) {
	return g.mutate(func(doc map[string][]string) bool {
		cur := doc[followeeID]
		if !contains(cur, followerID) {
			return false
		}
		next := make([]string, 0, len(cur)-1)
		for _, f := range cur {
			if f != followerID {
				next = append(next, f)
			}
		}
		if len(next) == 0 {
			delete(doc, followeeID)
		} else {
			doc[followeeID] = next
		}
		return true
	})
}

// mutate applies fn to a copy of the document and persists it when fn
// reports a change.
func (g *Graph) mutate(fn func(doc map[string][]string) bool) (bool, error) {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()

	g.mu.RLock()
	doc := make(map[string][]string, len(g.followers))
	for k, v := range g.followers {
		doc[k] = append([]string(nil), v...)
	}
	g.mu.RUnlock()

	if !fn(doc) {
		return false, nil
	}
	if err := g.persist(doc); err != nil {
		return false, err
	}
	g.mu.Lock()
	g.followers = doc
	g.mu.Unlock()
	return true, nil
}

func (g *Graph) persist(doc map[string][]string) error {
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("filegraph: encode: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(g.path), ".filegraph-*")
	if err != nil {
		return fmt.Errorf("filegraph: temp file: %w", err)
	}
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("filegraph: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("filegraph: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), g.path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("filegraph: rename: %w", err)
	}
	return nil
}

func normalize(followee string, followers []string) []string {
	seen := make(map[string]struct{}, len(followers))
	out := make([]string, 0, len(followers))
	for _, f := range followers {
		if f == "" || f == followee {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
