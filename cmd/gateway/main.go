package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"github.com/innovatehubph/inno-ai-gateway/config"
	"github.com/innovatehubph/inno-ai-gateway/internal/auth"
	"github.com/innovatehubph/inno-ai-gateway/internal/billing"
	"github.com/innovatehubph/inno-ai-gateway/internal/customer"
	"github.com/innovatehubph/inno-ai-gateway/internal/dispatch"
	"github.com/innovatehubph/inno-ai-gateway/internal/docstore"
	"github.com/innovatehubph/inno-ai-gateway/internal/gateway"
	"github.com/innovatehubph/inno-ai-gateway/internal/pricing"
	"github.com/innovatehubph/inno-ai-gateway/internal/provider/agentcli"
	"github.com/innovatehubph/inno-ai-gateway/internal/provider/antigravity"
	"github.com/innovatehubph/inno-ai-gateway/internal/provider/huggingface"
	"github.com/innovatehubph/inno-ai-gateway/internal/provider/moonshot"
	"github.com/innovatehubph/inno-ai-gateway/internal/provider/openrouter"
	"github.com/innovatehubph/inno-ai-gateway/internal/provider/replicate"
	"github.com/innovatehubph/inno-ai-gateway/internal/ratelimit"
	"github.com/innovatehubph/inno-ai-gateway/internal/seeder"
	"github.com/innovatehubph/inno-ai-gateway/internal/telemetry"
	"github.com/innovatehubph/inno-ai-gateway/internal/usage"
)

const documentsSchema = `
CREATE TABLE IF NOT EXISTS documents (
	namespace  TEXT NOT NULL,
	key        TEXT NOT NULL,
	doc        JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (namespace, key)
)`

func main() {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// 2. Init telemetry
	shutdownTracer, err := telemetry.InitTracer("inno-ai-gateway", cfg)
	if err != nil {
		log.Fatalf("failed to init tracer: %v", err)
	}
	defer shutdownTracer()

	// 3. Connect PostgreSQL
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("failed to connect postgres: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("failed to ping postgres: %v", err)
	}
	if _, err := pool.Exec(ctx, documentsSchema); err != nil {
		log.Fatalf("failed to ensure schema: %v", err)
	}
	log.Println("PostgreSQL connected")

	// 4. Connect Redis
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to ping redis: %v", err)
	}
	log.Println("Redis connected")

	// 5. Stores
	documents := docstore.NewPostgresStore(pool)
	keyStore := auth.NewDocStore(documents)
	customers := customer.NewStore(documents)

	// 6. Pricing and billing
	pricingSvc := pricing.NewService("USD")
	var billingSvc *billing.Service
	if cfg.StripeAPIKey != "" {
		checkout, err := billing.NewStripeCheckout(cfg.StripeAPIKey)
		if err != nil {
			log.Fatalf("failed to init stripe: %v", err)
		}
		billingSvc = billing.NewService(documents, customers, pricingSvc, checkout)
	} else {
		log.Println("STRIPE_API_KEY not set, billing endpoints disabled")
	}

	// 7. Auth middleware with plan-derived limits
	limiter := ratelimit.NewRedisLimiter(rdb)
	authMiddleware := auth.NewMiddleware(auth.MiddlewareConfig{
		Store:   keyStore,
		Cache:   rdb,
		Limiter: limiter,
		PlanRPM: func(ctx context.Context, customerID string) int64 {
			cust, err := customers.Get(ctx, customerID)
			if err != nil {
				return 0
			}
			return pricing.GetPlan(cust.Plan).MaxRequestsPerMinute
		},
		DefaultRPM: cfg.DefaultRateLimitRPM,
	})

	// 8. Providers and dispatcher
	dispatcher := dispatch.New(dispatch.Options{
		OpenRouter:  openrouter.New(cfg.OpenRouterAPIKey),
		HuggingFace: huggingface.New(cfg.HuggingFaceToken),
		Moonshot:    moonshot.New(cfg.MoonshotAPIKey),
		Antigravity: antigravity.New(cfg.AntigravityCreds),
		Agent:       agentcli.New(cfg.AgentCLIBinary),
		Media:       replicate.New(cfg.ReplicateAPIKey),
		Raw:         huggingface.New(cfg.HuggingFaceToken),
	})

	// 9. Usage pipeline
	queue := usage.NewMemoryQueue()
	accountant := usage.NewAccountant(queue, keyStore, customers, pricingSvc, documents, cfg.AccountantInterval)

	accountantCtx, stopAccountant := context.WithCancel(ctx)
	accountantDone := make(chan struct{})
	go func() {
		defer close(accountantDone)
		accountant.Run(accountantCtx)
	}()

	// 10. Seed test account if RUN_SEED=true
	if os.Getenv("RUN_SEED") == "true" {
		seeder.SeedTestAccount(ctx, customers, keyStore)
	}

	// 11. HTTP surface
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalf("failed to create data dir: %v", err)
	}

	tracer := otel.GetTracerProvider().Tracer("inno-ai-gateway")
	handler := gateway.NewHandler(gateway.Options{
		Dispatcher: dispatcher,
		Queue:      queue,
		Accountant: accountant,
		Billing:    billingSvc,
		Customers:  customers,
		Tracer:     tracer,
		DataDir:    cfg.DataDir,
	})
	router := gateway.NewRouter(handler, authMiddleware)

	// 12. Graceful shutdown
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 180 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("InnoAI Gateway starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-quit
	log.Println("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}

	// The accountant drains whatever the handlers queued before exit.
	stopAccountant()
	<-accountantDone
	log.Println("Server stopped")
}
