package cachestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
)

const (
	encodingZstd = "zstd"
)

// SQLite stores entries in the cache_entries table. Values are written
// zstd-compressed; rows with any other encoding are returned as stored.
type SQLite struct {
	db      *sql.DB
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func NewSQLite(database *sql.DB) (*SQLite, error) {
	if database == nil {
		return nil, errors.New("database is required")
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return &SQLite{db: database, encoder: encoder, decoder: decoder}, nil
}

func (s *SQLite) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	var encoding string
	err := s.db.QueryRowContext(
		ctx,
		"SELECT value, encoding FROM cache_entries WHERE key = ?",
		key,
	).Scan(&value, &encoding)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get cache entry %s: %w", key, err)
	}

	if !strings.EqualFold(encoding, encodingZstd) {
		return value, nil
	}

	decoded, err := s.decoder.DecodeAll(value, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress cache entry %s: %w", key, err)
	}
	return decoded, nil
}

func (s *SQLite) Put(ctx context.Context, key string, value []byte) error {
	compressed := s.encoder.EncodeAll(value, make([]byte, 0, len(value)/2))

	if _, err := s.db.ExecContext(
		ctx,
		`INSERT INTO cache_entries(key, value, encoding, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, encoding = excluded.encoding, updated_at = excluded.updated_at`,
		key,
		compressed,
		encodingZstd,
		time.Now().UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("put cache entry %s: %w", key, err)
	}
	return nil
}

func (s *SQLite) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM cache_entries WHERE key = ?", key); err != nil {
		return fmt.Errorf("delete cache entry %s: %w", key, err)
	}
	return nil
}

// Keys lists stored keys with the given prefix in lexical order.
func (s *SQLite) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(
		ctx,
		"SELECT key FROM cache_entries WHERE substr(key, 1, ?) = ? ORDER BY key",
		len(prefix),
		prefix,
	)
	if err != nil {
		return nil, fmt.Errorf("list cache keys: %w", err)
	}
	defer rows.Close()

	keys := make([]string, 0)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan cache key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cache keys: %w", err)
	}

	return keys, nil
}

func (s *SQLite) Close() error {
	s.decoder.Close()
	return s.encoder.Close()
}
