package seeder

import (
	"context"
	"log"

	"github.com/innovatehubph/inno-ai-gateway/internal/auth"
	"github.com/innovatehubph/inno-ai-gateway/internal/customer"
)

const (
	TestAPIKey     = "test-api-key-12345"
	TestCustomerID = "00000000-0000-0000-0000-000000000001"
)

// SeedTestAccount creates a development customer on the pro plan with a
// well-known API key. Existing records are left alone.
func SeedTestAccount(ctx context.Context, customers *customer.Store, keys auth.Store) {
	if _, err := customers.Get(ctx, TestCustomerID); err != nil {
		cust := &customer.Customer{
			ID:       TestCustomerID,
			Name:     "Test Customer",
			Email:    "test@innovatehub.ph",
			Plan:     "pro",
			Currency: "PHP",
			Active:   true,
		}
		if err := customers.Put(ctx, cust); err != nil {
			log.Printf("[Seeder] failed to create test customer: %v", err)
			return
		}
	}

	apiKey := &auth.APIKey{
		ID:         "test-key",
		CustomerID: TestCustomerID,
		KeyHash:    auth.HashKey(TestAPIKey),
		Name:       "development",
		Active:     true,
	}
	if err := keys.Create(ctx, apiKey); err != nil {
		log.Printf("[Seeder] API key may already exist, skipping: %v", err)
		return
	}
	log.Printf("[Seeder] Test API key created successfully")
	log.Printf("[Seeder] Key: %s", TestAPIKey)
	log.Printf("[Seeder] CustomerID: %s", TestCustomerID)
}
