// Package store implements the Blocklist Store, Hop Counter, Frequency
// Tracker and IP-reputation cache as thin contracts over Redis, each in
// its own logical database so an outage or flush in one never disturbs
// the others.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client wraps a go-redis connection pool with the dial/read/write
// timeouts and startup ping the rest of this codebase's infra adapters
// use.
type Client struct {
	rdb *redis.Client
	db  int
}

// Dial connects to addr/db and verifies connectivity with a short-timeout
// Ping. The caller decides whether to fall back to an in-memory store on
// error, matching the degrade-on-connect idiom used throughout this
// codebase's service bootstraps.
func Dial(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     20,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed (%s db=%d): %w", addr, db, err)
	}

	slog.Info("redis connected", "addr", addr, "db", db)
	return &Client{rdb: rdb, db: db}, nil
}

func (c *Client) Close() error { return c.rdb.Close() }

func (c *Client) Raw() *redis.Client { return c.rdb }
