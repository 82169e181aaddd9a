package usage

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/innovatehubph/inno-ai-gateway/internal/auth"
	"github.com/innovatehubph/inno-ai-gateway/internal/customer"
	"github.com/innovatehubph/inno-ai-gateway/internal/docstore"
	"github.com/innovatehubph/inno-ai-gateway/internal/pricing"
	"github.com/innovatehubph/inno-ai-gateway/internal/provider"
)

type fakeKeys struct {
	records map[string]*auth.APIKey
	uses    map[string]int64
	err     error
}

func (f *fakeKeys) GetByHash(ctx context.Context, keyHash string) (*auth.APIKey, error) {
	if f.err != nil {
		return nil, f.err
	}
	if k, ok := f.records[keyHash]; ok {
		return k, nil
	}
	return nil, auth.ErrKeyNotFound
}

func (f *fakeKeys) RecordUse(ctx context.Context, keyHash string, tokens int64) error {
	if f.uses == nil {
		f.uses = make(map[string]int64)
	}
	f.uses[keyHash] += tokens
	return nil
}

type fakeCustomers struct {
	records map[string]*customer.Customer
}

func (f *fakeCustomers) Get(ctx context.Context, id string) (*customer.Customer, error) {
	if c, ok := f.records[id]; ok {
		return c, nil
	}
	return nil, customer.ErrNotFound
}

func testAccountant(keys *fakeKeys, customers *fakeCustomers) (*Accountant, *MemoryQueue, *docstore.MemoryStore) {
	queue := NewMemoryQueue()
	ledger := docstore.NewMemoryStore()
	acct := NewAccountant(queue, keys, customers, pricing.NewService("USD"), ledger, time.Second)
	return acct, queue, ledger
}

func chatEvent(keyHash string, promptTokens, completionTokens int) *Event {
	return &Event{
		RequestID: "req-1",
		KeyHash:   keyHash,
		Model:     "inno-ai-boyong-mini",
		Usage: provider.Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
		Timestamp: time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestMemoryQueue_DrainSnapshot(t *testing.T) {
	q := NewMemoryQueue()
	q.Enqueue(&Event{RequestID: "a"})
	q.Enqueue(&Event{RequestID: "b"})

	first := q.Drain()
	if len(first) != 2 {
		t.Fatalf("expected 2 events, got %d", len(first))
	}

	q.Enqueue(&Event{RequestID: "c"})
	second := q.Drain()
	if len(second) != 1 || second[0].RequestID != "c" {
		t.Errorf("drain leaked earlier events: %v", second)
	}

	if len(q.Drain()) != 0 {
		t.Error("empty queue should drain nothing")
	}
}

func TestSettle_WritesLedger(t *testing.T) {
	keys := &fakeKeys{records: map[string]*auth.APIKey{
		"hash-1": {ID: "key-1", CustomerID: "cust-1", KeyHash: "hash-1", Active: true},
	}}
	customers := &fakeCustomers{records: map[string]*customer.Customer{
		"cust-1": {ID: "cust-1", Plan: "starter", Currency: "USD", Active: true},
	}}
	acct, queue, ledgerStore := testAccountant(keys, customers)

	queue.Enqueue(chatEvent("hash-1", 300, 200))
	acct.processTick(context.Background())

	var ledger MonthlyLedger
	if err := ledgerStore.Get(context.Background(), "usage", "cust-1/2026-09", &ledger); err != nil {
		t.Fatalf("ledger not written: %v", err)
	}

	if ledger.Requests != 1 {
		t.Errorf("requests: got %d", ledger.Requests)
	}
	if ledger.Tokens != 500 {
		t.Errorf("tokens: got %d", ledger.Tokens)
	}
	if ledger.Cost <= 0 {
		t.Errorf("expected positive cost, got %v", ledger.Cost)
	}
	// 500 tokens is well inside the starter allowance of 100K.
	if ledger.OverageTokens != 0 || ledger.OverageCost != 0 {
		t.Errorf("unexpected overage: tokens=%d cost=%v", ledger.OverageTokens, ledger.OverageCost)
	}
	if len(ledger.RequestLog) != 1 || ledger.RequestLog[0].RequestID != "req-1" {
		t.Errorf("request log: %+v", ledger.RequestLog)
	}
	if keys.uses["hash-1"] != 500 {
		t.Errorf("key counters not bumped: %v", keys.uses)
	}

	var audit AuditEntry
	if err := ledgerStore.Get(context.Background(), "cost-log", "req-1", &audit); err != nil {
		t.Fatalf("cost log not written: %v", err)
	}
	if audit.CustomerID != "cust-1" || audit.Plan != "starter" || audit.Tokens != 500 {
		t.Errorf("cost log entry: %+v", audit)
	}
}

func TestSettle_OverageStraddlesAllowance(t *testing.T) {
	keys := &fakeKeys{records: map[string]*auth.APIKey{
		"hash-1": {ID: "key-1", CustomerID: "cust-1", KeyHash: "hash-1", Active: true},
	}}
	customers := &fakeCustomers{records: map[string]*customer.Customer{
		"cust-1": {ID: "cust-1", Plan: "free", Currency: "USD", Active: true},
	}}
	acct, queue, ledgerStore := testAccountant(keys, customers)

	// Free plan allows 10000 tokens per month. First event consumes
	// 9000, second straddles the boundary with 2000 more.
	queue.Enqueue(chatEvent("hash-1", 5000, 4000))
	acct.processTick(context.Background())
	queue.Enqueue(chatEvent("hash-1", 1500, 500))
	acct.processTick(context.Background())

	var ledger MonthlyLedger
	if err := ledgerStore.Get(context.Background(), "usage", "cust-1/2026-09", &ledger); err != nil {
		t.Fatalf("ledger not written: %v", err)
	}

	if ledger.Tokens != 11000 {
		t.Errorf("tokens: got %d", ledger.Tokens)
	}
	if ledger.OverageTokens != 1000 {
		t.Errorf("expected 1000 overage tokens, got %d", ledger.OverageTokens)
	}
	// Free plan overage: $0.005 per 1K tokens.
	want := 0.005
	if diff := ledger.OverageCost - want; diff < -1e-9 || diff > 1e-9 {
		t.Errorf("overage cost: got %v, want %v", ledger.OverageCost, want)
	}
}

func TestSettle_OrphanedKeyDropped(t *testing.T) {
	keys := &fakeKeys{records: map[string]*auth.APIKey{}}
	customers := &fakeCustomers{records: map[string]*customer.Customer{}}
	acct, queue, _ := testAccountant(keys, customers)

	queue.Enqueue(chatEvent("hash-gone", 100, 100))
	acct.processTick(context.Background())

	// Dropped, not retried.
	if remaining := queue.Drain(); len(remaining) != 0 {
		t.Errorf("orphaned event requeued: %v", remaining)
	}
}

func TestSettle_RetriesThenDrops(t *testing.T) {
	keys := &fakeKeys{err: errors.New("store down")}
	customers := &fakeCustomers{}
	acct, queue, _ := testAccountant(keys, customers)

	queue.Enqueue(chatEvent("hash-1", 10, 10))

	for i := 1; i <= maxRetries; i++ {
		acct.processTick(context.Background())
		remaining := queue.Drain()
		if len(remaining) != 1 {
			t.Fatalf("tick %d: expected requeued event, got %d", i, len(remaining))
		}
		if remaining[0].Retries != i {
			t.Errorf("tick %d: retries = %d", i, remaining[0].Retries)
		}
		queue.Enqueue(remaining[0])
	}

	// Fourth failure exhausts the budget.
	acct.processTick(context.Background())
	if remaining := queue.Drain(); len(remaining) != 0 {
		t.Errorf("event should be dropped after %d retries: %v", maxRetries, remaining)
	}
}

func TestSettle_RequestLogCapped(t *testing.T) {
	ledger := MonthlyLedger{}
	for i := 0; i < maxRequestLog+50; i++ {
		ledger.appendLog(LogEntry{RequestID: fmt.Sprintf("req-%d", i)})
	}
	if len(ledger.RequestLog) != maxRequestLog {
		t.Fatalf("log length: got %d", len(ledger.RequestLog))
	}
	// The oldest entries fall off, the newest survive.
	if ledger.RequestLog[len(ledger.RequestLog)-1].RequestID != fmt.Sprintf("req-%d", maxRequestLog+49) {
		t.Errorf("newest entry missing: %s", ledger.RequestLog[len(ledger.RequestLog)-1].RequestID)
	}
}

func TestSettle_MediaDimensions(t *testing.T) {
	keys := &fakeKeys{records: map[string]*auth.APIKey{
		"hash-1": {ID: "key-1", CustomerID: "cust-1", KeyHash: "hash-1", Active: true},
	}}
	customers := &fakeCustomers{records: map[string]*customer.Customer{
		"cust-1": {ID: "cust-1", Plan: "free", Currency: "USD", Active: true},
	}}
	acct, queue, ledgerStore := testAccountant(keys, customers)

	// Free plan allows 10 images. 12 in one event splits 10/2.
	queue.Enqueue(&Event{
		RequestID: "req-img",
		KeyHash:   "hash-1",
		Model:     "image-3",
		Images:    12,
		Timestamp: time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC),
	})
	acct.processTick(context.Background())

	var ledger MonthlyLedger
	if err := ledgerStore.Get(context.Background(), "usage", "cust-1/2026-09", &ledger); err != nil {
		t.Fatalf("ledger not written: %v", err)
	}
	if ledger.Images != 12 {
		t.Errorf("images: got %d", ledger.Images)
	}
	if ledger.OverageImages != 2 {
		t.Errorf("overage images: got %d", ledger.OverageImages)
	}
	// Free plan: $0.05 per overage image.
	want := 0.10
	if diff := ledger.OverageCost - want; diff < -1e-9 || diff > 1e-9 {
		t.Errorf("overage cost: got %v, want %v", ledger.OverageCost, want)
	}
}
