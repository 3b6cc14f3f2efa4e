// Package socialgraph defines the follower relationship queried by the event
// fan-out engine and maintained by the social domain.
//
// Implementations
//
//	memgraph    : in-memory, for tests and single-process development
//	redisgraph  : Redis sets, shared between processes
//	sqlitegraph : a follows table in SQLite
//	filegraph   : a JSON document on disk, reloaded when it changes
package socialgraph

import (
	"context"
	"errors"
)

// ErrSelfFollow is returned when a user attempts to follow themselves.
var ErrSelfFollow = errors.New("socialgraph: cannot follow self")

// Graph answers who follows a user.
type Graph interface {
	// Followers returns the ids of users following userID, sorted.
	Followers(ctx context.Context, userID string) ([]string, error)
}

// Store is a mutable Graph.
type Store interface {
	Graph
	// Following returns the ids userID follows, sorted.
	Following(ctx context.Context, userID string) ([]string, error)
	// Follow records followerID following followeeID. It reports whether the
	// edge is new.
	Follow(ctx context.Context, followerID, followeeID string) (bool, error)
	// Unfollow removes the edge and reports whether it existed.
	Unfollow(ctx context.Context, followerID, followeeID string) (bool, error)
}

// GraphFunc adapts a function to Graph.
type GraphFunc func(ctx context.Context, userID string) ([]string, error)

func (f GraphFunc) Followers(ctx context.Context, userID string) ([]string, error) {
	return f(ctx, userID)
}
