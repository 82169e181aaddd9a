package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"
)

var ErrKeyNotFound = errors.New("api key not found")

// APIKey is the stored record for one issued key. The raw key never
// persists; records are addressed by its SHA-256 hash.
type APIKey struct {
	ID           string    `json:"id"`
	CustomerID   string    `json:"customer_id"`
	KeyHash      string    `json:"key_hash"`
	Name         string    `json:"name"`
	Active       bool      `json:"active"`
	RateLimitRPM int64     `json:"rate_limit_rpm"` // 0 means use the plan limit
	RequestCount int64     `json:"request_count"`
	TokensUsed   int64     `json:"tokens_used"`
	CreatedAt    time.Time `json:"created_at"`
	LastUsedAt   time.Time `json:"last_used_at"`
}

// MarshalBinary implements encoding.BinaryMarshaler for Redis
func (a *APIKey) MarshalBinary() ([]byte, error) {
	return json.Marshal(a)
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler for Redis
func (a *APIKey) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, a)
}

type Store interface {
	GetByKey(ctx context.Context, key string) (*APIKey, error)
	Create(ctx context.Context, apiKey *APIKey) error
	Revoke(ctx context.Context, keyID string) error
	// RecordUse bumps the request and token counters on a key.
	RecordUse(ctx context.Context, keyHash string, tokens int64) error
}

// HashKey derives the storage address of a raw API key.
func HashKey(key string) string {
	h := sha256.New()
	h.Write([]byte(key))
	return hex.EncodeToString(h.Sum(nil))
}

type contextKey string

const (
	customerIDKey contextKey = "customer_id"
	apiKeyKey     contextKey = "api_key"
	requestIDKey  contextKey = "request_id"
)

// Helpers to extract from context
func GetCustomerID(ctx context.Context) string {
	if id, ok := ctx.Value(customerIDKey).(string); ok {
		return id
	}
	return ""
}

func GetAPIKey(ctx context.Context) *APIKey {
	if k, ok := ctx.Value(apiKeyKey).(*APIKey); ok {
		return k
	}
	return nil
}

func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// Helpers for testing
func WithCustomerID(ctx context.Context, customerID string) context.Context {
	return context.WithValue(ctx, customerIDKey, customerID)
}

func WithAPIKey(ctx context.Context, key *APIKey) context.Context {
	return context.WithValue(ctx, apiKeyKey, key)
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}
