package billing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/innovatehubph/inno-ai-gateway/internal/customer"
	"github.com/innovatehubph/inno-ai-gateway/internal/docstore"
	"github.com/innovatehubph/inno-ai-gateway/internal/pricing"
)

var (
	ErrInvalidPlan     = errors.New("invalid plan")
	ErrInvoiceNotFound = errors.New("invoice not found")
	ErrNoSubscription  = errors.New("no subscription found")
)

const (
	subscriptionNamespace = "subscriptions"
	invoiceNamespace      = "invoices"
)

// Invoice statuses move pending -> paid; failed and cancelled are
// terminal.
const (
	InvoicePending   = "pending"
	InvoicePaid      = "paid"
	InvoiceFailed    = "failed"
	InvoiceCancelled = "cancelled"
)

const (
	CycleMonthly = "monthly"
	CycleYearly  = "yearly"
)

// Invoice is one billable subscription period awaiting (or past)
// payment.
type Invoice struct {
	ID              string    `json:"id"`
	CustomerID      string    `json:"customer_id"`
	PlanID          string    `json:"plan_id"`
	BillingCycle    string    `json:"billing_cycle"`
	Amount          float64   `json:"amount"`
	Currency        string    `json:"currency"`
	Status          string    `json:"status"`
	Description     string    `json:"description"`
	CreatedAt       time.Time `json:"created_at"`
	PaidAt          time.Time `json:"paid_at,omitempty"`
	StripeSessionID string    `json:"stripe_session_id,omitempty"`
	CheckoutURL     string    `json:"checkout_url,omitempty"`
}

// Subscription tracks one customer's current plan period. A cancelled
// subscription keeps its period end so access runs out rather than
// stopping immediately.
type Subscription struct {
	CustomerID         string    `json:"customer_id"`
	Plan               string    `json:"plan"`
	Status             string    `json:"status"`
	BillingCycle       string    `json:"billing_cycle"`
	StartedAt          time.Time `json:"started_at"`
	CurrentPeriodStart time.Time `json:"current_period_start"`
	CurrentPeriodEnd   time.Time `json:"current_period_end"`
	Amount             float64   `json:"amount"`
	Currency           string    `json:"currency"`
	PaymentReference   string    `json:"payment_reference,omitempty"`
	AutoRenew          bool      `json:"auto_renew"`
	LastPaymentAt      time.Time `json:"last_payment_at,omitempty"`
	CancelledAt        time.Time `json:"cancelled_at,omitempty"`
}

// CheckoutResult is what a customer needs to complete payment.
type CheckoutResult struct {
	InvoiceID   string  `json:"invoice_id"`
	CheckoutURL string  `json:"checkout_url,omitempty"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	Activated   bool    `json:"activated"`
}

// Checkout creates a hosted payment session for an invoice. The stripe
// implementation lives in stripe.go; tests substitute a fake.
type Checkout interface {
	CreateSession(ctx context.Context, invoice *Invoice, cust *customer.Customer) (sessionID, url string, err error)
}

// Service manages subscriptions and invoices. Plan definitions and
// currency conversion come from the pricing service; payment collection
// goes through the configured Checkout.
type Service struct {
	store     docstore.Store
	customers *customer.Store
	pricing   *pricing.Service
	checkout  Checkout
	now       func() time.Time
}

func NewService(store docstore.Store, customers *customer.Store, pricingSvc *pricing.Service, checkout Checkout) *Service {
	return &Service{
		store:     store,
		customers: customers,
		pricing:   pricingSvc,
		checkout:  checkout,
		now:       time.Now,
	}
}

// CreateSubscription starts a plan change. The free plan activates
// immediately; paid plans get an invoice and a checkout session, and
// activation waits for HandlePaymentSuccess.
func (s *Service) CreateSubscription(ctx context.Context, customerID, planID, cycle string) (*CheckoutResult, error) {
	plan, ok := pricing.Plans()[planID]
	if !ok {
		return nil, ErrInvalidPlan
	}
	if cycle != CycleYearly {
		cycle = CycleMonthly
	}

	cust, err := s.customers.Get(ctx, customerID)
	if err != nil {
		return nil, err
	}

	if planID == "free" {
		if err := s.activate(ctx, cust, planID, cycle, 0, currencyOf(cust), ""); err != nil {
			return nil, err
		}
		return &CheckoutResult{Activated: true, Currency: currencyOf(cust)}, nil
	}

	priceUSD := plan.MonthlyPriceUSD
	if cycle == CycleYearly {
		priceUSD = plan.YearlyPriceUSD
	}
	if priceUSD <= 0 {
		return nil, fmt.Errorf("%w: %s is not self-serve", ErrInvalidPlan, planID)
	}

	currency := currencyOf(cust)
	invoice := &Invoice{
		ID:           fmt.Sprintf("INV-%d-%s", s.now().UnixMilli(), shortID(customerID)),
		CustomerID:   customerID,
		PlanID:       planID,
		BillingCycle: cycle,
		Amount:       pricing.Convert(priceUSD, "USD", currency),
		Currency:     currency,
		Status:       InvoicePending,
		Description:  fmt.Sprintf("InnoAI Gateway %s plan, %s", plan.Name, cycle),
		CreatedAt:    s.now().UTC(),
	}

	sessionID, url, err := s.checkout.CreateSession(ctx, invoice, cust)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}
	invoice.StripeSessionID = sessionID
	invoice.CheckoutURL = url

	if err := s.store.Put(ctx, invoiceNamespace, invoice.ID, invoice); err != nil {
		return nil, fmt.Errorf("failed to store invoice: %w", err)
	}

	return &CheckoutResult{
		InvoiceID:   invoice.ID,
		CheckoutURL: url,
		Amount:      invoice.Amount,
		Currency:    invoice.Currency,
	}, nil
}

// HandlePaymentSuccess settles a paid invoice and activates its plan.
// Re-delivered webhooks for an already-paid invoice are acknowledged
// without side effects.
func (s *Service) HandlePaymentSuccess(ctx context.Context, invoiceID, paymentReference string) (*Subscription, error) {
	var invoice Invoice
	if err := s.store.Get(ctx, invoiceNamespace, invoiceID, &invoice); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("failed to load invoice: %w", err)
	}

	if invoice.Status == InvoicePaid {
		return s.GetSubscription(ctx, invoice.CustomerID)
	}

	invoice.Status = InvoicePaid
	invoice.PaidAt = s.now().UTC()
	if err := s.store.Put(ctx, invoiceNamespace, invoice.ID, &invoice); err != nil {
		return nil, fmt.Errorf("failed to update invoice: %w", err)
	}

	cust, err := s.customers.Get(ctx, invoice.CustomerID)
	if err != nil {
		return nil, err
	}
	if err := s.activate(ctx, cust, invoice.PlanID, invoice.BillingCycle, invoice.Amount, invoice.Currency, paymentReference); err != nil {
		return nil, err
	}
	return s.GetSubscription(ctx, invoice.CustomerID)
}

func (s *Service) activate(ctx context.Context, cust *customer.Customer, planID, cycle string, amount float64, currency, paymentReference string) error {
	now := s.now().UTC()
	sub := &Subscription{
		CustomerID:         cust.ID,
		Plan:               planID,
		Status:             "active",
		BillingCycle:       cycle,
		StartedAt:          now,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   periodEnd(now, cycle),
		Amount:             amount,
		Currency:           currency,
		PaymentReference:   paymentReference,
		AutoRenew:          planID != "free",
	}
	if paymentReference != "" {
		sub.LastPaymentAt = now
	}

	if err := s.store.Put(ctx, subscriptionNamespace, cust.ID, sub); err != nil {
		return fmt.Errorf("failed to store subscription: %w", err)
	}

	cust.Plan = planID
	if planID == "free" {
		cust.SubscriptionID = ""
	} else {
		cust.SubscriptionID = cust.ID
	}
	if err := s.customers.Put(ctx, cust); err != nil {
		return fmt.Errorf("failed to update customer plan: %w", err)
	}
	return nil
}

// CancelSubscription flips the subscription to cancelled but leaves the
// current period end intact; the customer keeps access until then.
func (s *Service) CancelSubscription(ctx context.Context, customerID string) (*Subscription, error) {
	sub, err := s.GetSubscription(ctx, customerID)
	if err != nil {
		return nil, err
	}
	sub.Status = "cancelled"
	sub.CancelledAt = s.now().UTC()
	sub.AutoRenew = false
	if err := s.store.Put(ctx, subscriptionNamespace, customerID, sub); err != nil {
		return nil, fmt.Errorf("failed to update subscription: %w", err)
	}
	return sub, nil
}

func (s *Service) GetSubscription(ctx context.Context, customerID string) (*Subscription, error) {
	var sub Subscription
	if err := s.store.Get(ctx, subscriptionNamespace, customerID, &sub); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, ErrNoSubscription
		}
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}
	return &sub, nil
}

// HasActiveSubscription reports whether the customer's current period
// is still running. Missing or errored lookups count as inactive.
func (s *Service) HasActiveSubscription(ctx context.Context, customerID string) bool {
	sub, err := s.GetSubscription(ctx, customerID)
	if err != nil {
		return false
	}
	if sub.Status != "active" {
		return false
	}
	return !s.now().UTC().After(sub.CurrentPeriodEnd)
}

// BillingHistory lists a customer's invoices, newest first.
func (s *Service) BillingHistory(ctx context.Context, customerID string) ([]*Invoice, error) {
	ids, err := s.store.List(ctx, invoiceNamespace)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	var invoices []*Invoice
	for _, id := range ids {
		var inv Invoice
		if err := s.store.Get(ctx, invoiceNamespace, id, &inv); err != nil {
			continue
		}
		if inv.CustomerID == customerID {
			invoices = append(invoices, &inv)
		}
	}
	sort.Slice(invoices, func(i, j int) bool {
		return invoices[i].CreatedAt.After(invoices[j].CreatedAt)
	})
	return invoices, nil
}

func periodEnd(from time.Time, cycle string) time.Time {
	if cycle == CycleYearly {
		return from.AddDate(1, 0, 0)
	}
	return from.AddDate(0, 1, 0)
}

func currencyOf(cust *customer.Customer) string {
	if cust.Currency != "" {
		return cust.Currency
	}
	return "USD"
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
