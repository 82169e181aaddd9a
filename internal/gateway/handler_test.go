package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace/noop"

	"github.com/innovatehubph/inno-ai-gateway/internal/auth"
	"github.com/innovatehubph/inno-ai-gateway/internal/billing"
	"github.com/innovatehubph/inno-ai-gateway/internal/customer"
	"github.com/innovatehubph/inno-ai-gateway/internal/dispatch"
	"github.com/innovatehubph/inno-ai-gateway/internal/docstore"
	"github.com/innovatehubph/inno-ai-gateway/internal/pricing"
	"github.com/innovatehubph/inno-ai-gateway/internal/provider"
	"github.com/innovatehubph/inno-ai-gateway/internal/usage"
)

type fakeChat struct {
	name  string
	reply *provider.ChatResult
	err   error
}

func (f *fakeChat) Name() string { return f.name }

func (f *fakeChat) Chat(ctx context.Context, model string, messages []provider.Message, params provider.Params) (*provider.ChatResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := *f.reply
	out.Model = model
	return &out, nil
}

type fakeMedia struct {
	result *provider.MediaResult
	err    error
}

func (f *fakeMedia) Name() string { return "replicate" }

func (f *fakeMedia) Generate(ctx context.Context, model string, input provider.MediaInput) (*provider.MediaResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeRaw struct {
	output []byte
	err    error
}

func (f *fakeRaw) Name() string { return "huggingface" }

func (f *fakeRaw) Infer(ctx context.Context, model string, payload []byte) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.output, nil
}

type testEnv struct {
	handler   *Handler
	queue     *usage.MemoryQueue
	customers *customer.Store
}

func setupTest(t *testing.T, opts dispatch.Options) *testEnv {
	t.Helper()
	store := docstore.NewMemoryStore()
	customers := customer.NewStore(store)
	if err := customers.Put(context.Background(), &customer.Customer{
		ID: "cust-1", Plan: "pro", Currency: "USD", Active: true,
	}); err != nil {
		t.Fatal(err)
	}

	queue := usage.NewMemoryQueue()
	handler := NewHandler(Options{
		Dispatcher: dispatch.New(opts),
		Queue:      queue,
		Customers:  customers,
		Tracer:     noop.NewTracerProvider().Tracer("test"),
	})
	return &testEnv{handler: handler, queue: queue, customers: customers}
}

func authedRequest(method, target string, body []byte) *http.Request {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	ctx := auth.WithCustomerID(req.Context(), "cust-1")
	ctx = auth.WithAPIKey(ctx, &auth.APIKey{ID: "key-1", CustomerID: "cust-1", KeyHash: "hash-1", Active: true})
	ctx = auth.WithRequestID(ctx, "req-test")
	return req.WithContext(ctx)
}

func TestHandleChatCompletions(t *testing.T) {
	env := setupTest(t, dispatch.Options{
		Agent: &fakeChat{
			name: "agentcli",
			reply: &provider.ChatResult{
				Text:     "Mabuhay!",
				Provider: "agentcli",
				Usage:    provider.Usage{PromptTokens: 8, CompletionTokens: 3, TotalTokens: 11},
			},
		},
	})

	body, _ := json.Marshal(map[string]any{
		"messages": []map[string]string{{"role": "user", "content": "hello"}},
	})
	w := httptest.NewRecorder()
	env.handler.HandleChatCompletions(w, authedRequest("POST", "/v1/chat/completions", body))

	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", w.Code, w.Body.String())
	}

	var resp chatCompletionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Object != "chat.completion" {
		t.Errorf("object: got %q", resp.Object)
	}
	if !strings.HasPrefix(resp.ID, "chatcmpl-") {
		t.Errorf("id: got %q", resp.ID)
	}
	// An empty model field routes to the default branded model.
	if resp.Model != "inno-ai-boyong-4.5" {
		t.Errorf("model: got %q", resp.Model)
	}
	if resp.Choices[0].Message.Content != "Mabuhay!" || resp.Choices[0].FinishReason != "stop" {
		t.Errorf("choices: %+v", resp.Choices)
	}
	if resp.Usage.TotalTokens != 11 {
		t.Errorf("usage: %+v", resp.Usage)
	}

	events := env.queue.Drain()
	if len(events) != 1 {
		t.Fatalf("expected 1 usage event, got %d", len(events))
	}
	if events[0].KeyHash != "hash-1" || events[0].Usage.TotalTokens != 11 {
		t.Errorf("usage event: %+v", events[0])
	}
}

func TestHandleChatCompletions_MissingMessages(t *testing.T) {
	env := setupTest(t, dispatch.Options{})

	w := httptest.NewRecorder()
	env.handler.HandleChatCompletions(w, authedRequest("POST", "/v1/chat/completions", []byte(`{"model":"inno-ai-boyong-4.5"}`)))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d", w.Code)
	}
	var env2 errorEnvelope
	json.Unmarshal(w.Body.Bytes(), &env2)
	if env2.Error.Code != "bad_request" {
		t.Errorf("code: got %q", env2.Error.Code)
	}
}

func TestHandleChatCompletions_FreePlanWhitelist(t *testing.T) {
	env := setupTest(t, dispatch.Options{
		OpenRouter: &fakeChat{name: "openrouter", reply: &provider.ChatResult{Text: "hi", Provider: "openrouter"}},
	})
	if err := env.customers.Put(context.Background(), &customer.Customer{
		ID: "cust-1", Plan: "free", Currency: "USD", Active: true,
	}); err != nil {
		t.Fatal(err)
	}

	body, _ := json.Marshal(map[string]any{
		"model":    "inno-ai-boyong-4.5",
		"messages": []map[string]string{{"role": "user", "content": "hello"}},
	})
	w := httptest.NewRecorder()
	env.handler.HandleChatCompletions(w, authedRequest("POST", "/v1/chat/completions", body))

	if w.Code != http.StatusForbidden {
		t.Fatalf("top-tier model on the free plan: got %d", w.Code)
	}

	// The free tier's own models still work.
	body, _ = json.Marshal(map[string]any{
		"model":    "inno-ai-boyong-mini",
		"messages": []map[string]string{{"role": "user", "content": "hello"}},
	})
	w = httptest.NewRecorder()
	env.handler.HandleChatCompletions(w, authedRequest("POST", "/v1/chat/completions", body))
	if w.Code != http.StatusOK {
		t.Fatalf("whitelisted model: got %d, body %s", w.Code, w.Body.String())
	}
}

func TestHandleChatCompletions_Unconfigured(t *testing.T) {
	env := setupTest(t, dispatch.Options{
		OpenRouter: &fakeChat{name: "openrouter", err: &provider.AdapterError{Provider: "openrouter", Err: provider.ErrUnconfigured}},
	})

	body, _ := json.Marshal(map[string]any{
		"model":    "or-openai/gpt-4o",
		"messages": []map[string]string{{"role": "user", "content": "hello"}},
	})
	w := httptest.NewRecorder()
	env.handler.HandleChatCompletions(w, authedRequest("POST", "/v1/chat/completions", body))

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status: got %d", w.Code)
	}
	var envlp errorEnvelope
	json.Unmarshal(w.Body.Bytes(), &envlp)
	if envlp.Error.Code != "provider_unconfigured" {
		t.Errorf("code: got %q", envlp.Error.Code)
	}
}

func TestHandleChatCompletions_Stream(t *testing.T) {
	env := setupTest(t, dispatch.Options{
		Agent: &fakeChat{
			name:  "agentcli",
			reply: &provider.ChatResult{Text: "The quick brown fox", Provider: "agentcli"},
		},
	})

	body, _ := json.Marshal(map[string]any{
		"stream":   true,
		"messages": []map[string]string{{"role": "user", "content": "hello"}},
	})
	w := httptest.NewRecorder()
	env.handler.HandleChatCompletions(w, authedRequest("POST", "/v1/chat/completions", body))

	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type: got %q", ct)
	}

	var rebuilt strings.Builder
	var sawDone bool
	for _, line := range strings.Split(w.Body.String(), "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			sawDone = true
			break
		}
		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			t.Fatalf("bad chunk %q: %v", data, err)
		}
		if chunk.Object != "chat.completion.chunk" {
			t.Errorf("chunk object: got %q", chunk.Object)
		}
		rebuilt.WriteString(chunk.Choices[0].Delta.Content)
	}

	if rebuilt.String() != "The quick brown fox" {
		t.Errorf("reassembled stream: got %q", rebuilt.String())
	}
	if !sawDone {
		t.Error("stream did not terminate with [DONE]")
	}
	if events := env.queue.Drain(); len(events) != 1 {
		t.Errorf("expected a usage event after streaming, got %d", len(events))
	}
}

func TestHandleImageGenerations_B64(t *testing.T) {
	artifact := bytes.Repeat([]byte{0x89}, 2048)
	env := setupTest(t, dispatch.Options{
		Media: &fakeMedia{result: &provider.MediaResult{
			Outputs:  [][]byte{artifact},
			Provider: "replicate",
			Format:   "png",
		}},
	})

	body, _ := json.Marshal(map[string]any{
		"prompt":          "a jeepney at sunset",
		"model":           "image-3",
		"response_format": "b64_json",
	})
	w := httptest.NewRecorder()
	env.handler.HandleImageGenerations(w, authedRequest("POST", "/v1/images/generations", body))

	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", w.Code, w.Body.String())
	}

	var resp mediaGenerationResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Model != "image-3" {
		t.Errorf("model: got %q", resp.Model)
	}
	if len(resp.Data) != 1 {
		t.Fatalf("data: %+v", resp.Data)
	}
	decoded, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil || !bytes.Equal(decoded, artifact) {
		t.Error("artifact bytes did not round-trip")
	}

	events := env.queue.Drain()
	if len(events) != 1 || events[0].Images != 1 {
		t.Errorf("usage events: %+v", events)
	}
}

func TestHandleImageGenerations_MissingPrompt(t *testing.T) {
	env := setupTest(t, dispatch.Options{})
	w := httptest.NewRecorder()
	env.handler.HandleImageGenerations(w, authedRequest("POST", "/v1/images/generations", []byte(`{}`)))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d", w.Code)
	}
}

func TestHandleVideoGenerations_UnknownModel(t *testing.T) {
	env := setupTest(t, dispatch.Options{
		Media: &fakeMedia{err: fmt.Errorf("should not be called")},
	})

	body, _ := json.Marshal(map[string]any{"prompt": "waves", "model": "video-99"})
	w := httptest.NewRecorder()
	env.handler.HandleVideoGenerations(w, authedRequest("POST", "/v1/video/generations", body))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, body %s", w.Code, w.Body.String())
	}
}

func TestHandleEmbeddings(t *testing.T) {
	env := setupTest(t, dispatch.Options{
		Raw: &fakeRaw{output: []byte(`[[0.1,0.2],[0.3,0.4]]`)},
	})

	body, _ := json.Marshal(map[string]any{"input": []string{"hello", "world"}})
	w := httptest.NewRecorder()
	env.handler.HandleEmbeddings(w, authedRequest("POST", "/v1/embeddings", body))

	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", w.Code, w.Body.String())
	}

	var resp struct {
		Object string `json:"object"`
		Data   []struct {
			Object    string    `json:"object"`
			Embedding []float64 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
		Model string `json:"model"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Object != "list" || len(resp.Data) != 2 {
		t.Fatalf("response: %+v", resp)
	}
	if resp.Data[1].Index != 1 || len(resp.Data[1].Embedding) != 2 {
		t.Errorf("second embedding: %+v", resp.Data[1])
	}

	// Tokens are estimated at four characters per token over the raw
	// input, and the same figure reaches the usage queue.
	wantTokens := len(`["hello","world"]`) / 4
	var respUsage struct {
		Usage struct {
			PromptTokens int `json:"prompt_tokens"`
			TotalTokens  int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &respUsage); err != nil {
		t.Fatal(err)
	}
	if respUsage.Usage.PromptTokens != wantTokens || respUsage.Usage.TotalTokens != wantTokens {
		t.Errorf("response usage: %+v, want %d tokens", respUsage.Usage, wantTokens)
	}

	events := env.queue.Drain()
	if len(events) != 1 {
		t.Fatalf("queued events: got %d", len(events))
	}
	if events[0].Usage.TotalTokens != wantTokens {
		t.Errorf("queued usage: %+v, want %d tokens", events[0].Usage, wantTokens)
	}
}

func TestHandleAudioTranscriptions(t *testing.T) {
	env := setupTest(t, dispatch.Options{
		Raw: &fakeRaw{output: []byte(`{"text":"kumusta ka"}`)},
	})

	w := httptest.NewRecorder()
	env.handler.HandleAudioTranscriptions(w, authedRequest("POST", "/v1/audio/transcriptions", []byte("fake-audio-bytes")))

	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", w.Code, w.Body.String())
	}
	var resp map[string]string
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["text"] != "kumusta ka" {
		t.Errorf("text: got %q", resp["text"])
	}
	if events := env.queue.Drain(); len(events) != 1 || events[0].AudioMinutes != 1 {
		t.Errorf("usage events: %+v", events)
	}
}

func TestHandleImageModels(t *testing.T) {
	env := setupTest(t, dispatch.Options{})
	w := httptest.NewRecorder()
	env.handler.HandleImageModels(w, httptest.NewRequest("GET", "/v1/images/models", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var resp struct {
		Object  string            `json:"object"`
		Data    []modelListing    `json:"data"`
		Aliases map[string]string `json:"aliases"`
		Default string            `json:"default"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Default != "image-3" || len(resp.Data) == 0 {
		t.Errorf("listing: default=%q tiers=%d", resp.Default, len(resp.Data))
	}
	for _, m := range resp.Data {
		if strings.Contains(m.ReplicateModel, ":") {
			t.Errorf("version pin leaked into listing: %q", m.ReplicateModel)
		}
	}
}

func TestHandleStripeWebhook_SettlesInvoice(t *testing.T) {
	store := docstore.NewMemoryStore()
	customers := customer.NewStore(store)
	if err := customers.Put(context.Background(), &customer.Customer{
		ID: "cust-1", Plan: "free", Currency: "USD", Active: true,
	}); err != nil {
		t.Fatal(err)
	}
	checkout := &staticCheckout{}
	billingSvc := billing.NewService(store, customers, pricing.NewService("USD"), checkout)
	handler := NewHandler(Options{Billing: billingSvc, Customers: customers})

	result, err := billingSvc.CreateSubscription(context.Background(), "cust-1", "starter", billing.CycleMonthly)
	if err != nil {
		t.Fatal(err)
	}

	payload, _ := json.Marshal(map[string]any{
		"type": "checkout.session.completed",
		"data": map[string]any{
			"object": map[string]any{
				"client_reference_id": result.InvoiceID,
				"payment_intent":      "pi_42",
			},
		},
	})
	w := httptest.NewRecorder()
	handler.HandleStripeWebhook(w, httptest.NewRequest("POST", "/webhooks/stripe", bytes.NewReader(payload)))

	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", w.Code, w.Body.String())
	}
	cust, err := customers.Get(context.Background(), "cust-1")
	if err != nil {
		t.Fatal(err)
	}
	if cust.Plan != "starter" {
		t.Errorf("plan after webhook: got %q", cust.Plan)
	}
}

func TestHandleStripeWebhook_IgnoresOtherEvents(t *testing.T) {
	store := docstore.NewMemoryStore()
	customers := customer.NewStore(store)
	billingSvc := billing.NewService(store, customers, pricing.NewService("USD"), &staticCheckout{})
	handler := NewHandler(Options{Billing: billingSvc})

	payload := []byte(`{"type":"invoice.created","data":{"object":{}}}`)
	w := httptest.NewRecorder()
	handler.HandleStripeWebhook(w, httptest.NewRequest("POST", "/webhooks/stripe", bytes.NewReader(payload)))

	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var resp map[string]string
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["status"] != "ignored" {
		t.Errorf("status field: got %q", resp["status"])
	}
}

type staticCheckout struct{}

func (staticCheckout) CreateSession(ctx context.Context, invoice *billing.Invoice, cust *customer.Customer) (string, string, error) {
	return "cs_static", "https://checkout.stripe.com/pay/cs_static", nil
}

func TestHandleUsage_EmptyMonth(t *testing.T) {
	store := docstore.NewMemoryStore()
	queue := usage.NewMemoryQueue()
	acct := usage.NewAccountant(queue, nil, nil, pricing.NewService("USD"), store, time.Second)
	handler := NewHandler(Options{Accountant: acct})

	w := httptest.NewRecorder()
	handler.HandleUsage(w, authedRequest("GET", "/v1/usage", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var ledger usage.MonthlyLedger
	if err := json.Unmarshal(w.Body.Bytes(), &ledger); err != nil {
		t.Fatal(err)
	}
	if ledger.CustomerID != "cust-1" || ledger.Tokens != 0 {
		t.Errorf("ledger: %+v", ledger)
	}
}

func TestHandleHealthz(t *testing.T) {
	handler := NewHandler(Options{})
	w := httptest.NewRecorder()
	handler.HandleHealthz(w, httptest.NewRequest("GET", "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
}
