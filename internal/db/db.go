// Package db provides database utilities and connection handling for AgentRank.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	// Postgres driver, registered as "postgres".
	_ "github.com/lib/pq"
)

// Connection pool defaults. The ranker runs bounded worker pools against the
// pool, so MaxOpenConns must stay comfortably above the worker count.
const (
	DefaultMaxOpenConns    = 25
	DefaultMaxIdleConns    = 5
	DefaultConnMaxLifetime = 5 * time.Minute
	DefaultPingTimeout     = 5 * time.Second
)

// Open connects to Postgres using the given URL and verifies the connection
// with a ping. The returned handle is safe for concurrent use.
func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	conn, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(DefaultMaxOpenConns)
	conn.SetMaxIdleConns(DefaultMaxIdleConns)
	conn.SetConnMaxLifetime(DefaultConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, DefaultPingTimeout)
	defer cancel()

	if err := conn.PingContext(pingCtx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return conn, nil
}
