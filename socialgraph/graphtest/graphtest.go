// Package graphtest is a conformance suite for socialgraph.Store
// implementations.
package graphtest

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ggoodman/toolwire/socialgraph"
)

// StoreFactory creates a new, empty Store for testing.
type StoreFactory func(t *testing.T) socialgraph.Store

// RunStoreTests runs the complete Store test suite against the provided factory.
func RunStoreTests(t *testing.T, factory StoreFactory) {
	t.Run("Follow_AddsBothDirections", func(t *testing.T) { testFollowBothDirections(t, factory) })
	t.Run("Follow_IsIdempotent", func(t *testing.T) { testFollowIdempotent(t, factory) })
	t.Run("Follow_RejectsSelf", func(t *testing.T) { testFollowSelf(t, factory) })
	t.Run("Unfollow_RemovesEdge", func(t *testing.T) { testUnfollow(t, factory) })
	t.Run("Followers_UnknownUserIsEmpty", func(t *testing.T) { testUnknownUser(t, factory) })
	t.Run("Followers_Sorted", func(t *testing.T) { testSorted(t, factory) })
}

func ctx(t *testing.T) context.Context {
	t.Helper()
	c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return c
}

func mustFollow(t *testing.T, s socialgraph.Store, follower, followee string) bool {
	t.Helper()
	added, err := s.Follow(ctx(t), follower, followee)
	if err != nil {
		t.Fatalf("Follow(%s, %s): %v", follower, followee, err)
	}
	return added
}

func join(ids []string) string { return strings.Join(ids, ",") }

func testFollowBothDirections(t *testing.T, factory StoreFactory) {
	s := factory(t)
	if !mustFollow(t, s, "alice", "bob") {
		t.Fatalf("expected new edge")
	}
	followers, err := s.Followers(ctx(t), "bob")
	if err != nil {
		t.Fatalf("Followers: %v", err)
	}
	if join(followers) != "alice" {
		t.Fatalf("unexpected followers of bob: %v", followers)
	}
	following, err := s.Following(ctx(t), "alice")
	if err != nil {
		t.Fatalf("Following: %v", err)
	}
	if join(following) != "bob" {
		t.Fatalf("unexpected following of alice: %v", following)
	}
}

func testFollowIdempotent(t *testing.T, factory StoreFactory) {
	s := factory(t)
	mustFollow(t, s, "alice", "bob")
	if mustFollow(t, s, "alice", "bob") {
		t.Fatalf("expected second follow to report existing edge")
	}
	followers, _ := s.Followers(ctx(t), "bob")
	if len(followers) != 1 {
		t.Fatalf("expected one follower, got %v", followers)
	}
}

func testFollowSelf(t *testing.T, factory StoreFactory) {
	s := factory(t)
	if _, err := s.Follow(ctx(t), "alice", "alice"); !errors.Is(err, socialgraph.ErrSelfFollow) {
		t.Fatalf("expected ErrSelfFollow, got %v", err)
	}
}

func testUnfollow(t *testing.T, factory StoreFactory) {
	s := factory(t)
	mustFollow(t, s, "alice", "bob")
	removed, err := s.Unfollow(ctx(t), "alice", "bob")
	if err != nil || !removed {
		t.Fatalf("Unfollow: removed=%v err=%v", removed, err)
	}
	removed, err = s.Unfollow(ctx(t), "alice", "bob")
	if err != nil || removed {
		t.Fatalf("second Unfollow: removed=%v err=%v", removed, err)
	}
	followers, _ := s.Followers(ctx(t), "bob")
	if len(followers) != 0 {
		t.Fatalf("expected no followers, got %v", followers)
	}
	following, _ := s.Following(ctx(t), "alice")
	if len(following) != 0 {
		t.Fatalf("expected no following, got %v", following)
	}
}

func testUnknownUser(t *testing.T, factory StoreFactory) {
	s := factory(t)
	followers, err := s.Followers(ctx(t), "nobody")
	if err != nil {
		t.Fatalf("Followers: %v", err)
	}
	if len(followers) != 0 {
		t.Fatalf("expected empty, got %v", followers)
	}
}

func testSorted(t *testing.T, factory StoreFactory) {
	s := factory(t)
	for _, f := range []string{"zed", "amy", "mia"} {
		mustFollow(t, s, f, "bob")
	}
	followers, _ := s.Followers(ctx(t), "bob")
	if join(followers) != "amy,mia,zed" {
		t.Fatalf("expected sorted followers, got %v", followers)
	}
}
