package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/innovatehubph/inno-ai-gateway/internal/ratelimit"
)

type Middleware func(next http.Handler) http.Handler

// MiddlewareConfig wires key lookup, the shared cache and the request
// limiter into one authentication layer.
type MiddlewareConfig struct {
	Store   Store
	Cache   *redis.Client
	Limiter ratelimit.Limiter
	// PlanRPM resolves the per-minute cap of the customer's plan. Keys
	// with their own RateLimitRPM bypass it.
	PlanRPM func(ctx context.Context, customerID string) int64
	// DefaultRPM applies when neither the key nor the plan sets a cap.
	DefaultRPM int64
}

// NewMiddleware authenticates via Authorization: Bearer or X-Api-Key,
// then enforces the per-key fixed-window limit. Every response carries
// X-RateLimit headers; 401s and 429s use the gateway error envelope.
func NewMiddleware(cfg MiddlewareConfig) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			requestID := uuid.New().String()
			ctx = context.WithValue(ctx, requestIDKey, requestID)
			w.Header().Set("X-Request-ID", requestID)

			key := extractKey(r)
			if key == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized", "missing API key")
				return
			}

			apiKey, err := lookupKey(ctx, cfg, key)
			if err != nil {
				if err == ErrKeyNotFound {
					writeError(w, http.StatusUnauthorized, "unauthorized", "invalid API key")
					return
				}
				writeError(w, http.StatusInternalServerError, "internal_error", "authentication backend unavailable")
				return
			}

			limit := apiKey.RateLimitRPM
			if limit == 0 && cfg.PlanRPM != nil {
				limit = cfg.PlanRPM(ctx, apiKey.CustomerID)
			}
			if limit == 0 {
				limit = cfg.DefaultRPM
			}

			if cfg.Limiter != nil && limit > 0 {
				result, err := cfg.Limiter.Allow(ctx, apiKey.KeyHash, limit)
				if err != nil {
					// A broken limiter must not take the gateway down.
					log.Printf("auth: rate limiter error: %v", err)
				} else {
					w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(result.Limit, 10))
					w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
					w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetTime.Unix(), 10))
					if !result.Allowed {
						w.Header().Set("Retry-After", strconv.FormatInt(int64(time.Until(result.ResetTime).Seconds())+1, 10))
						writeError(w, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded, retry after the window resets")
						return
					}
				}
			}

			ctx = context.WithValue(ctx, customerIDKey, apiKey.CustomerID)
			ctx = context.WithValue(ctx, apiKeyKey, apiKey)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractKey(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return r.Header.Get("X-Api-Key")
}

func lookupKey(ctx context.Context, cfg MiddlewareConfig, key string) (*APIKey, error) {
	keyHash := HashKey(key)

	if cfg.Cache != nil {
		redisKey := fmt.Sprintf("auth:%s", keyHash)
		var cached APIKey
		err := cfg.Cache.Get(ctx, redisKey).Scan(&cached)
		if err == nil {
			return &cached, nil
		}
		if err != redis.Nil {
			log.Printf("auth: redis error: %v", err)
		}

		apiKey, err := cfg.Store.GetByKey(ctx, key)
		if err != nil {
			return nil, err
		}
		_ = cfg.Cache.Set(ctx, redisKey, apiKey, 5*time.Minute).Err()
		return apiKey, nil
	}

	return cfg.Store.GetByKey(ctx, key)
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	var env errorEnvelope
	env.Error.Code = code
	env.Error.Message = message

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(env)
}
