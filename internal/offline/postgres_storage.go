package offline

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// PostgresStorage はcache_collections / cache_entriesテーブルを使うCacheStorage。
// 複数のサーバープロセスで同じキャッシュを共有できる。
type PostgresStorage struct {
	db *sql.DB
}

// NewPostgresStorage はPostgresStorageを生成する。
func NewPostgresStorage(db *sql.DB) *PostgresStorage {
	return &PostgresStorage{db: db}
}

// Open は指定名のコレクションを返す。存在しない場合は作成する。
func (s *PostgresStorage) Open(ctx context.Context, name string) (Cache, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cache_collections (name, created_at) VALUES ($1, $2)
		 ON CONFLICT (name) DO NOTHING`,
		name, time.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache collection: %w", err)
	}
	return &postgresCache{db: s.db, name: name}, nil
}

// Has は指定名のコレクションが存在するかを返す。
func (s *PostgresStorage) Has(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM cache_collections WHERE name = $1)`,
		name,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check cache collection: %w", err)
	}
	return exists, nil
}

// Keys は全コレクション名を作成順に返す。
func (s *PostgresStorage) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM cache_collections ORDER BY created_at, name`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list cache collections: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan cache collection: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cache collections: %w", err)
	}
	return names, nil
}

// Delete はコレクションを削除する。エントリはCASCADE削除される。
func (s *PostgresStorage) Delete(ctx context.Context, name string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_collections WHERE name = $1`,
		name,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete cache collection: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

type postgresCache struct {
	db   *sql.DB
	name string
}

func (c *postgresCache) Match(ctx context.Context, key string) (*Response, error) {
	var (
		status int
		header []byte
		body   []byte
	)
	err := c.db.QueryRowContext(ctx,
		`SELECT status, header, body FROM cache_entries
		 WHERE collection = $1 AND request_key = $2`,
		c.name, key,
	).Scan(&status, &header, &body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to match cache entry: %w", err)
	}

	h := http.Header{}
	if err := json.Unmarshal(header, &h); err != nil {
		return nil, fmt.Errorf("failed to decode cached header: %w", err)
	}
	return &Response{Status: status, Header: h, Body: body}, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (c *postgresCache) put(ctx context.Context, ex execer, key string, resp *Response) error {
	header, err := json.Marshal(resp.Header)
	if err != nil {
		return fmt.Errorf("failed to encode header: %w", err)
	}
	body := resp.Body
	if body == nil {
		body = []byte{}
	}
	_, err = ex.ExecContext(ctx,
		`INSERT INTO cache_entries (collection, request_key, status, header, body, cached_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (collection, request_key) DO UPDATE SET
		   status = EXCLUDED.status,
		   header = EXCLUDED.header,
		   body = EXCLUDED.body,
		   cached_at = EXCLUDED.cached_at`,
		c.name, key, resp.Status, header, body, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to put cache entry %s: %w", key, err)
	}
	return nil
}

func (c *postgresCache) Put(ctx context.Context, key string, resp *Response) error {
	return c.put(ctx, c.db, key, resp)
}

// AddAll は全エントリを1トランザクションで保存する。
func (c *postgresCache) AddAll(ctx context.Context, entries []Entry) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, e := range entries {
		if err := c.put(ctx, tx, e.Key, e.Response); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// compile-time interface check
var _ CacheStorage = (*PostgresStorage)(nil)
