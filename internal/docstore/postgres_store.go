package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore keeps each document as a JSONB row keyed by (namespace, key).
type PostgresStore struct {
	db DB
}

func NewPostgresStore(db DB) Store {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, namespace, key string, out any) error {
	query := `
		SELECT doc FROM documents
		WHERE namespace = $1 AND key = $2
	`

	var raw []byte
	err := s.db.QueryRow(ctx, query, namespace, key).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to get document %s/%s: %w", namespace, key, err)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode document %s/%s: %w", namespace, key, err)
	}
	return nil
}

func (s *PostgresStore) Put(ctx context.Context, namespace, key string, doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document %s/%s: %w", namespace, key, err)
	}

	query := `
		INSERT INTO documents (namespace, key, doc, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (namespace, key) DO UPDATE SET doc = $3, updated_at = now()
	`
	if _, err := s.db.Exec(ctx, query, namespace, key, raw); err != nil {
		return fmt.Errorf("failed to put document %s/%s: %w", namespace, key, err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, namespace, key string) error {
	query := `DELETE FROM documents WHERE namespace = $1 AND key = $2`
	tag, err := s.db.Exec(ctx, query, namespace, key)
	if err != nil {
		return fmt.Errorf("failed to delete document %s/%s: %w", namespace, key, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, namespace string) ([]string, error) {
	query := `SELECT key FROM documents WHERE namespace = $1 ORDER BY key`
	rows, err := s.db.Query(ctx, query, namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to list namespace %s: %w", namespace, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating keys: %w", err)
	}
	return keys, nil
}
