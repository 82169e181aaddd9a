package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/innovatehubph/inno-ai-gateway/internal/docstore"
)

const keyNamespace = "api-keys"

// DocStore keeps API key records in the document store, addressed by
// key hash.
type DocStore struct {
	store docstore.Store
}

func NewDocStore(store docstore.Store) *DocStore {
	return &DocStore{store: store}
}

func (s *DocStore) GetByKey(ctx context.Context, key string) (*APIKey, error) {
	return s.GetByHash(ctx, HashKey(key))
}

// GetByHash loads a key record directly by its storage address. The
// usage pipeline resolves events this way since it never sees raw keys.
func (s *DocStore) GetByHash(ctx context.Context, keyHash string) (*APIKey, error) {
	var record APIKey
	if err := s.store.Get(ctx, keyNamespace, keyHash, &record); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("failed to load api key: %w", err)
	}
	if !record.Active {
		return nil, ErrKeyNotFound
	}
	return &record, nil
}

func (s *DocStore) Create(ctx context.Context, apiKey *APIKey) error {
	if apiKey.KeyHash == "" {
		return fmt.Errorf("api key record missing key hash")
	}
	if apiKey.CreatedAt.IsZero() {
		apiKey.CreatedAt = time.Now().UTC()
	}
	if err := s.store.Put(ctx, keyNamespace, apiKey.KeyHash, apiKey); err != nil {
		return fmt.Errorf("failed to store api key: %w", err)
	}
	return nil
}

func (s *DocStore) Revoke(ctx context.Context, keyHash string) error {
	record, err := s.GetByHash(ctx, keyHash)
	if err != nil {
		return err
	}
	record.Active = false
	if err := s.store.Put(ctx, keyNamespace, keyHash, record); err != nil {
		return fmt.Errorf("failed to revoke api key: %w", err)
	}
	return nil
}

func (s *DocStore) RecordUse(ctx context.Context, keyHash string, tokens int64) error {
	var record APIKey
	if err := s.store.Get(ctx, keyNamespace, keyHash, &record); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return ErrKeyNotFound
		}
		return fmt.Errorf("failed to load api key: %w", err)
	}

	record.RequestCount++
	record.TokensUsed += tokens
	record.LastUsedAt = time.Now().UTC()

	if err := s.store.Put(ctx, keyNamespace, keyHash, &record); err != nil {
		return fmt.Errorf("failed to update api key counters: %w", err)
	}
	return nil
}
