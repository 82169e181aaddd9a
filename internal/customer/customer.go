package customer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/innovatehubph/inno-ai-gateway/internal/docstore"
)

var ErrNotFound = errors.New("customer not found")

const customerNamespace = "customers"

// Customer is one billing account. Plan names the subscription tier;
// Currency is what their invoices and usage reports are denominated in.
type Customer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Plan      string    `json:"plan"`
	Currency  string    `json:"currency"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	// StripeCustomerID links the account to its payment profile.
	StripeCustomerID string `json:"stripe_customer_id,omitempty"`
	// SubscriptionID is the active subscription, empty on the free plan.
	SubscriptionID string `json:"subscription_id,omitempty"`
}

type Store struct {
	store docstore.Store
}

func NewStore(store docstore.Store) *Store {
	return &Store{store: store}
}

func (s *Store) Get(ctx context.Context, id string) (*Customer, error) {
	var c Customer
	if err := s.store.Get(ctx, customerNamespace, id, &c); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load customer: %w", err)
	}
	return &c, nil
}

func (s *Store) Put(ctx context.Context, c *Customer) error {
	if c.ID == "" {
		return fmt.Errorf("customer missing id")
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	if err := s.store.Put(ctx, customerNamespace, c.ID, c); err != nil {
		return fmt.Errorf("failed to store customer: %w", err)
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]string, error) {
	ids, err := s.store.List(ctx, customerNamespace)
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	return ids, nil
}
