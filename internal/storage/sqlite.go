package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/bringyour/kvbroker/internal/document"
)

// SQLite backs the "sqlite" capability declared to react-native and nodejs
// sessions with a real embedded database, using the pure-Go
// driver modernc.org/sqlite — the same driver destiny-lucas's internal/hub
// package and Oremus-Labs-ol-model-manager depend on. There is no schema
// enforcement or query language beyond flat equality:
// values are stored as opaque JSON text and QUERY still filters in Go after
// a collection-scoped SELECT, matching the other adapters' semantics.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers; keep it simple.
	const schema = `CREATE TABLE IF NOT EXISTS kv (
		collection TEXT NOT NULL,
		key        TEXT NOT NULL,
		value      TEXT NOT NULL,
		PRIMARY KEY (collection, key)
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: create schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (self *SQLite) Get(ctx context.Context, collection, key string, opts Options) (document.Value, error) {
	row := self.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE collection = ? AND key = ?`, collection, key)
	var raw string
	if err := row.Scan(&raw); err == sql.ErrNoRows {
		return document.Null, nil
	} else if err != nil {
		return document.Null, err
	}
	var v document.Value
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return document.Null, fmt.Errorf("sqlite: decode %s/%s: %w", collection, key, err)
	}
	return v, nil
}

func (self *SQLite) Set(ctx context.Context, collection, key string, value document.Value, opts Options) (SetResult, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return SetResult{}, err
	}
	_, err = self.db.ExecContext(ctx,
		`INSERT INTO kv (collection, key, value) VALUES (?, ?, ?)
		 ON CONFLICT(collection, key) DO UPDATE SET value = excluded.value`,
		collection, key, string(raw))
	if err != nil {
		return SetResult{}, err
	}
	return SetResult{Success: true, Key: key, Timestamp: time.Now().UnixMilli()}, nil
}

func (self *SQLite) Delete(ctx context.Context, collection, key string, opts Options) (DeleteResult, error) {
	if _, err := self.db.ExecContext(ctx, `DELETE FROM kv WHERE collection = ? AND key = ?`, collection, key); err != nil {
		return DeleteResult{}, err
	}
	return DeleteResult{Deleted: key}, nil
}

func (self *SQLite) Query(ctx context.Context, collection string, predicate map[string]document.Value, opts Options) ([]Row, error) {
	rows, err := self.db.QueryContext(ctx, `SELECT key, value FROM kv WHERE collection = ? ORDER BY key`, collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, err
		}
		var v document.Value
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			continue
		}
		fields := fieldsOf(v)
		if matches(fields, predicate) {
			out = append(out, Row{Key: key, Fields: fields})
		}
	}
	return out, rows.Err()
}

func (self *SQLite) Close() error {
	return self.db.Close()
}
