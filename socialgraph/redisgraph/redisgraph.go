// Package redisgraph stores follow edges in Redis sets so several toolwire
// processes can share one graph.
//
// Keys
//
//	<prefix>followers:<user>  set of follower ids
//	<prefix>following:<user>  set of followee ids
package redisgraph

import (
	"context"
	"fmt"
	"sort"

	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"

	"github.com/ggoodman/toolwire/socialgraph"
)

var _ socialgraph.Store = (*Graph)(nil)

// Config for the Redis-backed graph. Defaults can be loaded via envdecode.
type Config struct {
	// RedisAddr like "localhost:6379". ENV: REDIS_ADDR
	RedisAddr string `env:"REDIS_ADDR,default=localhost:6379"`
	// KeyPrefix for all keys. ENV: SOCIALGRAPH_KEY_PREFIX
	KeyPrefix string `env:"SOCIALGRAPH_KEY_PREFIX,default=toolwire:graph:"`
}

type Graph struct {
	client    *redis.Client
	keyPrefix string
}

// New connects to Redis and verifies the connection with a ping.
func New(ctx context.Context, cfg Config) (*Graph, error) {
	addr := cfg.RedisAddr
	if addr == "" {
		addr = "localhost:6379"
	}
	cl := redis.NewClient(&redis.Options{Addr: addr})
	if err := cl.Ping(ctx).Err(); err != nil {
		_ = cl.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "toolwire:graph:"
	}
	return &Graph{client: cl, keyPrefix: prefix}, nil
}

// NewFromEnv builds a Graph using envdecode to populate Config.
func NewFromEnv(ctx context.Context) (*Graph, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && err != envdecode.ErrNoTargetFieldsAreSet {
		return nil, fmt.Errorf("redisgraph config: %w", err)
	}
	return New(ctx, cfg)
}

// Close closes the Redis client.
func (g *Graph) Close() error { return g.client.Close() }

func (g *Graph) followersKey(userID string) string { return g.keyPrefix + "followers:" + userID }
func (g *Graph) followingKey(userID string) string { return g.keyPrefix + "following:" + userID }

func (g *Graph) Followers(ctx context.Context, userID string) ([]string, error) {
	return g.members(ctx, g.followersKey(userID))
}

func (g *Graph) Following(ctx context.Context, userID string) ([]string, error) {
	return g.members(ctx, g.followingKey(userID))
}

func (g *Graph) members(ctx context.Context, key string) ([]string, error) {
	ids, err := g.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redisgraph: smembers %s: %w", key, err)
	}
	sort.Strings(ids)
	return ids, nil
}

func (g *Graph) Follow(ctx context.Context, followerID, followeeID string) (bool, error) {
	if followerID == followeeID {
		return false, socialgraph.ErrSelfFollow
	}
	var added *redis.IntCmd
	_, err := g.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		added = p.SAdd(ctx, g.followersKey(followeeID), followerID)
		p.SAdd(ctx, g.followingKey(followerID), followeeID)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("redisgraph: follow: %w", err)
	}
	return added.Val() > 0, nil
}

func (g *Graph) Unfollow(ctx context.Context, followerID, followeeID string) (bool, error) {
	var removed *redis.IntCmd
	_, err := g.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		removed = p.SRem(ctx, g.followersKey(followeeID), followerID)
		p.SRem(ctx, g.followingKey(followerID), followeeID)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("redisgraph: unfollow: %w", err)
	}
	return removed.Val() > 0, nil
}
