package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// runner is the query surface shared by *sql.DB and *sql.Tx; resolution takes
// whichever the caller is working in so lookups inside a transaction observe
// its snapshot.
type runner interface {
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
	Exec(query string, args ...interface{}) (sql.Result, error)
}

const resolverCacheTTL = time.Hour

// Resolver maps externally visible UUIDs to internal surrogate keys and back.
// Soft-deleted rows never resolve. The redis cache is optional; a nil client
// disables it (tests, cache-less deployments).
type Resolver struct {
	PG    *sql.DB
	Redis *redis.Client
}

func NewResolver(pg *sql.DB, rdb *redis.Client) *Resolver {
	return &Resolver{PG: pg, Redis: rdb}
}

// ID resolves an external UUID to the internal id of a live row in table.
// Returns ErrNotFound if the UUID does not resolve.
func (r *Resolver) ID(q runner, table, externalUUID string) (int64, error) {
	if id, ok := r.cachedID(table, externalUUID); ok {
		return id, nil
	}

	var id int64
	query := fmt.Sprintf("SELECT id FROM %s WHERE external_uuid = $1 AND NOT deleted", table)
	err := q.QueryRow(query, externalUUID).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}

	r.cacheID(table, externalUUID, id)
	return id, nil
}

// UUID resolves an internal id back to its external UUID.
func (r *Resolver) UUID(q runner, table string, id int64) (string, error) {
	var externalUUID string
	query := fmt.Sprintf("SELECT external_uuid FROM %s WHERE id = $1 AND NOT deleted", table)
	err := q.QueryRow(query, id).Scan(&externalUUID)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return externalUUID, err
}

// Forget drops a cached mapping; called after deletes and identifier moves.
func (r *Resolver) Forget(table, externalUUID string) {
	if r.Redis == nil {
		return
	}
	r.Redis.Del(context.Background(), cacheKey(table, externalUUID))
}

func (r *Resolver) cachedID(table, externalUUID string) (int64, bool) {
	if r.Redis == nil {
		return 0, false
	}
	id, err := r.Redis.Get(context.Background(), cacheKey(table, externalUUID)).Int64()
	if err != nil {
		return 0, false
	}
	return id, true
}

func (r *Resolver) cacheID(table, externalUUID string, id int64) {
	if r.Redis == nil {
		return
	}
	r.Redis.Set(context.Background(), cacheKey(table, externalUUID), id, resolverCacheTTL)
}

func cacheKey(table, externalUUID string) string {
	return "resolve:" + table + ":" + externalUUID
}
