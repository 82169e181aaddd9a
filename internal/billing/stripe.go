package billing

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/client"

	"github.com/innovatehubph/inno-ai-gateway/internal/customer"
)

const (
	successURL = "https://ai-gateway.innoserver.cloud/portal/payment/success?invoice={INVOICE_ID}"
	cancelURL  = "https://ai-gateway.innoserver.cloud/portal/payment/cancel?invoice={INVOICE_ID}"
)

// StripeCheckout collects invoice payments through Stripe Checkout
// hosted sessions.
type StripeCheckout struct {
	client *client.API
}

func NewStripeCheckout(apiKey string) (*StripeCheckout, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("stripe API key is required")
	}
	api := &client.API{}
	api.Init(apiKey, nil)
	return &StripeCheckout{client: api}, nil
}

// CreateSession opens a one-off payment session for the invoice. The
// invoice ID rides along as the client reference so the webhook handler
// can settle the right invoice.
func (s *StripeCheckout) CreateSession(ctx context.Context, invoice *Invoice, cust *customer.Customer) (string, string, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(invoice.ID),
		SuccessURL:        stripe.String(strings.ReplaceAll(successURL, "{INVOICE_ID}", invoice.ID)),
		CancelURL:         stripe.String(strings.ReplaceAll(cancelURL, "{INVOICE_ID}", invoice.ID)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(strings.ToLower(invoice.Currency)),
					UnitAmount: stripe.Int64(toMinorUnits(invoice.Amount)),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(invoice.Description),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
	}
	if cust.Email != "" {
		params.CustomerEmail = stripe.String(cust.Email)
	}
	if cust.StripeCustomerID != "" {
		params.Customer = stripe.String(cust.StripeCustomerID)
		params.CustomerEmail = nil
	}
	params.Context = ctx

	session, err := s.client.CheckoutSessions.New(params)
	if err != nil {
		return "", "", fmt.Errorf("stripe checkout session: %w", err)
	}
	return session.ID, session.URL, nil
}

// toMinorUnits converts a major-unit amount to the cent amounts Stripe
// expects.
func toMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
