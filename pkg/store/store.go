// Package store owns the optional external connections: a SQL datastore
// and a redis cache. Neither is required for the bot to serve; whatever
// was opened is what the shutdown hook closes.
package store

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // postgres driver
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	_ "modernc.org/sqlite" // pure Go SQLite driver

	"github.com/nimslack/schedbot/pkg/config"
)

// Group bundles whatever external connections the configuration asked for
type Group struct {
	DB    *sqlx.DB
	Redis *redis.Client

	closeOnce sync.Once
}

// Open connects to the configured stores. A SQL connection is made only
// when the database settings resolve to a DSN; the redis client is always
// constructed (connections are lazy) but pinged only when a URL was set
// explicitly.
func Open(ctx context.Context, dbCfg config.DatabaseSettings, redisCfg config.RedisSettings) (*Group, error) {
	g := &Group{}

	if dsn := dbCfg.DSN(); dsn != "" {
		conn, err := sqlx.Open(driverFor(dsn), dsn)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		conn.SetMaxOpenConns(10)
		conn.SetMaxIdleConns(5)
		conn.SetConnMaxLifetime(time.Hour)

		if err := conn.PingContext(ctx); err != nil {
			conn.Close() //nolint:errcheck
			return nil, fmt.Errorf("ping database: %w", err)
		}
		g.DB = conn
		log.Printf("[INFO] connected to database")
	}

	if redisCfg.URL != "" {
		opts, err := redis.ParseURL(redisCfg.URL)
		if err != nil {
			g.Close()
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		g.Redis = redis.NewClient(opts)
		if err := g.Redis.Ping(ctx).Err(); err != nil {
			g.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		log.Printf("[INFO] connected to redis at %s", opts.Addr)
	} else {
		g.Redis = redis.NewClient(&redis.Options{Addr: redisCfg.Addr(), Password: redisCfg.Password})
	}

	return g, nil
}

// driverFor picks the sql driver from the DSN scheme
func driverFor(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "pgx"
	}
	return "sqlite"
}

// Close tears down whatever Open established. Safe to call more than once
// and on a zero-value group.
func (g *Group) Close() {
	if g == nil {
		return
	}
	g.closeOnce.Do(func() {
		if g.DB != nil {
			if err := g.DB.Close(); err != nil {
				log.Printf("[WARN] database close: %v", err)
			}
		}
		if g.Redis != nil {
			if err := g.Redis.Close(); err != nil {
				log.Printf("[WARN] redis close: %v", err)
			}
		}
	})
}

// Cache returns a TTL cache backed by the group's redis client
func (g *Group) Cache(ttl time.Duration) *Cache {
	if g == nil || g.Redis == nil {
		return nil
	}
	return &Cache{client: g.Redis, ttl: ttl}
}
