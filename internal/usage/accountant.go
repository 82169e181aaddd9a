package usage

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/innovatehubph/inno-ai-gateway/internal/auth"
	"github.com/innovatehubph/inno-ai-gateway/internal/customer"
	"github.com/innovatehubph/inno-ai-gateway/internal/docstore"
	"github.com/innovatehubph/inno-ai-gateway/internal/metrics"
	"github.com/innovatehubph/inno-ai-gateway/internal/pricing"
)

// KeyResolver maps a key hash back to its record.
type KeyResolver interface {
	GetByHash(ctx context.Context, keyHash string) (*auth.APIKey, error)
	RecordUse(ctx context.Context, keyHash string, tokens int64) error
}

// CustomerResolver loads the customer a key belongs to.
type CustomerResolver interface {
	Get(ctx context.Context, id string) (*customer.Customer, error)
}

// Accountant settles queued usage events on a fixed tick. Each tick
// drains a full snapshot; an event that fails settlement goes back on
// the queue until its retry budget runs out. Events whose key no longer
// resolves to a customer are dropped silently, matching key revocation
// mid-flight.
type Accountant struct {
	queue     Queue
	keys      KeyResolver
	customers CustomerResolver
	pricing   *pricing.Service
	ledger    docstore.Store
	interval  time.Duration
	now       func() time.Time
}

func NewAccountant(queue Queue, keys KeyResolver, customers CustomerResolver, pricingSvc *pricing.Service, ledger docstore.Store, interval time.Duration) *Accountant {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Accountant{
		queue:     queue,
		keys:      keys,
		customers: customers,
		pricing:   pricingSvc,
		ledger:    ledger,
		interval:  interval,
		now:       time.Now,
	}
}

// Run processes the queue until the context is canceled, then performs
// one final drain so shutdown loses nothing already queued.
func (a *Accountant) Run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.processTick(context.Background())
			return
		case <-ticker.C:
			a.processTick(ctx)
		}
	}
}

func (a *Accountant) processTick(ctx context.Context) {
	events := a.queue.Drain()
	metrics.SetUsageQueueDepth(len(events))
	for _, event := range events {
		if err := a.settle(ctx, event); err != nil {
			log.Printf("usage: failed to settle event %s: %v", event.RequestID, err)
			if event.Retries < maxRetries {
				event.Retries++
				a.queue.Enqueue(event)
			} else {
				log.Printf("usage: dropping event %s after %d retries", event.RequestID, event.Retries)
			}
		}
	}
}

func (a *Accountant) settle(ctx context.Context, event *Event) error {
	key, err := a.keys.GetByHash(ctx, event.KeyHash)
	if err != nil {
		if errors.Is(err, auth.ErrKeyNotFound) {
			// Orphaned event: the key was revoked after the request.
			return nil
		}
		return err
	}

	cust, err := a.customers.Get(ctx, key.CustomerID)
	if err != nil {
		if errors.Is(err, customer.ErrNotFound) {
			return nil
		}
		return err
	}

	plan := pricing.GetPlan(cust.Plan)
	currency := cust.Currency
	cost := a.pricing.CalculateCost(event.Model, event.Usage.PromptTokens, event.Usage.CompletionTokens, plan.ID, currency)

	timestamp := event.Timestamp
	if timestamp.IsZero() {
		timestamp = a.now().UTC()
	}

	ledgerKey := MonthKey(cust.ID, timestamp)
	var ledger MonthlyLedger
	if err := a.ledger.Get(ctx, ledgerNamespace, ledgerKey, &ledger); err != nil {
		if !errors.Is(err, docstore.ErrNotFound) {
			return err
		}
		ledger = MonthlyLedger{
			CustomerID: cust.ID,
			Month:      timestamp.UTC().Format("2006-01"),
			Currency:   cost.Currency,
		}
	}

	tokens := int64(event.Usage.TotalTokens)
	overage := a.applyAllowances(&ledger, plan, event, tokens)

	ledger.Requests++
	ledger.Tokens += tokens
	ledger.Images += event.Images
	ledger.AudioMinutes += event.AudioMinutes
	ledger.VideoSeconds += event.VideoSeconds
	ledger.Cost += cost.TotalCost
	ledger.OverageCost += overage
	ledger.UpdatedAt = a.now().UTC()
	ledger.appendLog(LogEntry{
		Timestamp: timestamp,
		RequestID: event.RequestID,
		Model:     event.Model,
		Tokens:    tokens,
		Cost:      cost.TotalCost,
		Currency:  cost.Currency,
	})

	if err := a.ledger.Put(ctx, ledgerNamespace, ledgerKey, &ledger); err != nil {
		return err
	}

	audit := AuditEntry{
		LogEntry: LogEntry{
			Timestamp: timestamp,
			RequestID: event.RequestID,
			Model:     event.Model,
			Tokens:    tokens,
			Cost:      cost.TotalCost,
			Currency:  cost.Currency,
		},
		CustomerID: cust.ID,
		Plan:       plan.ID,
	}
	if err := a.ledger.Put(ctx, costLogNamespace, event.RequestID, &audit); err != nil {
		// The monthly roll-up already committed; keep the audit write advisory.
		log.Printf("usage: failed to write cost log for %s: %v", event.RequestID, err)
	}

	if err := a.keys.RecordUse(ctx, event.KeyHash, tokens); err != nil {
		// Counters are advisory; the ledger already holds the money.
		log.Printf("usage: failed to bump key counters for %s: %v", event.RequestID, err)
	}

	return nil
}

// applyAllowances splits each dimension of the event against what is
// left of the plan's monthly allowance and prices the overage portion.
// Overage is billed fail-open: a pricing error logs and costs zero
// rather than blocking settlement.
func (a *Accountant) applyAllowances(ledger *MonthlyLedger, plan *pricing.Plan, event *Event, tokens int64) float64 {
	var total float64

	charge := func(dimension string, amount, current, limit int64) int64 {
		_, over := pricing.SplitAllowance(amount, current, limit)
		if over == 0 {
			return 0
		}
		cost, err := pricing.OverageCost(plan.ID, dimension, over)
		if err != nil {
			log.Printf("usage: overage pricing error (%s): %v", dimension, err)
			return over
		}
		total += pricing.Convert(cost, "USD", ledger.Currency)
		return over
	}

	ledger.OverageTokens += charge("tokens", tokens, ledger.Tokens, plan.Allowances.TokensPerMonth)
	ledger.OverageImages += charge("images", event.Images, ledger.Images, plan.Allowances.ImagesPerMonth)
	ledger.OverageAudioMinutes += charge("audio_minutes", event.AudioMinutes, ledger.AudioMinutes, plan.Allowances.AudioMinutesPerMonth)
	ledger.OverageVideoSeconds += charge("video_seconds", event.VideoSeconds, ledger.VideoSeconds, plan.Allowances.VideoSecondsPerMonth)

	return total
}

// Ledger returns one customer's ledger for the month containing t.
func (a *Accountant) Ledger(ctx context.Context, customerID string, t time.Time) (*MonthlyLedger, error) {
	var ledger MonthlyLedger
	if err := a.ledger.Get(ctx, ledgerNamespace, MonthKey(customerID, t), &ledger); err != nil {
		return nil, err
	}
	return &ledger, nil
}
