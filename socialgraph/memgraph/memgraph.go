// Package memgraph is an in-memory socialgraph.Store.
package memgraph

import (
	"context"
	"sort"
	"sync"

	"github.com/ggoodman/toolwire/socialgraph"
)

var _ socialgraph.Store = (*Graph)(nil)

// Graph keeps follow edges in two adjacency maps.
type Graph struct {
	mu        sync.RWMutex
	followers map[string]map[string]struct{}
	following map[string]map[string]struct{}
}

func New() *Graph {
	return &Graph{
		followers: make(map[string]map[string]struct{}),
		following: make(map[string]map[string]struct{}),
	}
}

// Seed adds edges from a followee -> followers map.
func (g *Graph) Seed(edges map[string][]string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for followee, followers := range edges {
		for _, f := range followers {
			if f != followee {
				g.add(f, followee)
			}
		}
	}
}

func (g *Graph) Followers(_ context.Context, userID string) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return keys(g.followers[userID]), nil
}

func (g *Graph) Following(_ context.Context, userID string) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return keys(g.following[userID]), nil
}

func (g *Graph) Follow(_ context.Context, followerID, followeeID string) (bool, error) {
	if followerID == followeeID {
		return false, socialgraph.ErrSelfFollow
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.add(followerID, followeeID), nil
}

func (g *Graph) Unfollow(_ context.Context, followerID, followeeID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	set, ok := g.followers[followeeID]
	if !ok {
		return false, nil
	}
	if _, ok := set[followerID]; !ok {
		return false, nil
	}
	delete(set, followerID)
	if len(set) == 0 {
		delete(g.followers, followeeID)
	}
	if out := g.following[followerID]; out != nil {
		delete(out, followeeID)
		if len(out) == 0 {
			delete(g.following, followerID)
		}
	}
	return true, nil
}

func (g *Graph) add(followerID, followeeID string) bool {
	set, ok := g.followers[followeeID]
	if !ok {
		set = make(map[string]struct{})
		g.followers[followeeID] = set
	}
	if _, dup := set[followerID]; dup {
		return false
	}
	set[followerID] = struct{}{}
	out, ok := g.following[followerID]
	if !ok {
		out = make(map[string]struct{})
		g.following[followerID] = out
	}
	out[followeeID] = struct{}{}
	return true
}

func keys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
