package gateway

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/innovatehubph/inno-ai-gateway/internal/auth"
	"github.com/innovatehubph/inno-ai-gateway/internal/billing"
	"github.com/innovatehubph/inno-ai-gateway/internal/customer"
	"github.com/innovatehubph/inno-ai-gateway/internal/dispatch"
	"github.com/innovatehubph/inno-ai-gateway/internal/metrics"
	"github.com/innovatehubph/inno-ai-gateway/internal/pricing"
	"github.com/innovatehubph/inno-ai-gateway/internal/provider"
	"github.com/innovatehubph/inno-ai-gateway/internal/usage"
)

const defaultChatModel = "inno-ai-boyong-4.5"

// Handler serves the public API. Every billable response enqueues a
// usage event; settlement happens off the request path.
type Handler struct {
	dispatcher *dispatch.Dispatcher
	queue      usage.Queue
	accountant *usage.Accountant
	billing    *billing.Service
	customers  *customer.Store
	tracer     trace.Tracer
	dataDir    string
}

type Options struct {
	Dispatcher *dispatch.Dispatcher
	Queue      usage.Queue
	Accountant *usage.Accountant
	Billing    *billing.Service
	Customers  *customer.Store
	Tracer     trace.Tracer
	// DataDir is where generated media artifacts are written for URL
	// responses. Empty means b64_json only.
	DataDir string
}

func NewHandler(opts Options) *Handler {
	return &Handler{
		dispatcher: opts.Dispatcher,
		queue:      opts.Queue,
		accountant: opts.Accountant,
		billing:    opts.Billing,
		customers:  opts.Customers,
		tracer:     opts.Tracer,
		dataDir:    opts.DataDir,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatCompletionResponse struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Created int64          `json:"created"`
	Model   string         `json:"model"`
	Choices []chatChoice   `json:"choices"`
	Usage   provider.Usage `json:"usage"`
}

func (h *Handler) HandleChatCompletions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req chatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "messages is required")
		return
	}
	if req.Model == "" {
		req.Model = defaultChatModel
	}

	if !h.modelAllowed(r, req.Model) {
		writeError(w, http.StatusForbidden, "model_not_allowed", "model is not available on your plan")
		return
	}

	if h.tracer != nil {
		var span trace.Span
		ctx, span = h.tracer.Start(ctx, "gateway.chat_completions")
		defer span.End()
		span.SetAttributes(
			attribute.String("customer_id", auth.GetCustomerID(ctx)),
			attribute.String("request_id", auth.GetRequestID(ctx)),
			attribute.String("model", req.Model),
			attribute.Bool("stream", req.Stream),
		)
		r = r.WithContext(ctx)
	}

	messages := make([]provider.Message, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = provider.Message{Role: m.Role, Content: m.Content}
	}
	params := provider.Params{Temperature: req.Temperature, MaxTokens: req.MaxTokens}

	if req.Stream {
		h.streamChat(w, r, req.Model, messages, params)
		return
	}

	result, err := h.dispatcher.Chat(ctx, req.Model, messages, params)
	if err != nil {
		metrics.ObserveProviderCall(req.Model, "error")
		writeProviderError(w, err)
		return
	}
	metrics.ObserveProviderCall(result.Provider, "success")
	metrics.AddTokens(result.Usage.PromptTokens, result.Usage.CompletionTokens)

	h.enqueueUsage(r, &usage.Event{
		RequestID: auth.GetRequestID(ctx),
		Model:     result.Model,
		Usage:     result.Usage,
		Timestamp: time.Now().UTC(),
	})

	writeJSON(w, http.StatusOK, chatCompletionResponse{
		ID:      "chatcmpl-" + auth.GetRequestID(ctx),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   result.Model,
		Choices: []chatChoice{
			{
				Index:        0,
				Message:      chatMessage{Role: "assistant", Content: result.Text},
				FinishReason: "stop",
			},
		},
		Usage: result.Usage,
	})
}

type streamDelta struct {
	Content string `json:"content,omitempty"`
}

type streamChoice struct {
	Index        int         `json:"index"`
	Delta        streamDelta `json:"delta"`
	FinishReason *string     `json:"finish_reason"`
}

type streamChunk struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Created int64          `json:"created"`
	Model   string         `json:"model"`
	Choices []streamChoice `json:"choices"`
}

func (h *Handler) streamChat(w http.ResponseWriter, r *http.Request, model string, messages []provider.Message, params provider.Params) {
	ctx := r.Context()

	ch, err := h.dispatcher.ChatStream(ctx, model, messages, params)
	if err != nil {
		metrics.ObserveProviderCall(model, "error")
		writeProviderError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal_error", "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	res := h.dispatcher.ResolveChat(model)
	id := "chatcmpl-" + auth.GetRequestID(ctx)
	created := time.Now().Unix()
	var streamed int

	writeChunk := func(delta string, finish *string) {
		chunk := streamChunk{
			ID:      id,
			Object:  "chat.completion.chunk",
			Created: created,
			Model:   res.BrandedModel,
			Choices: []streamChoice{{Index: 0, Delta: streamDelta{Content: delta}, FinishReason: finish}},
		}
		data, _ := json.Marshal(chunk)
		w.Write([]byte("data: "))
		w.Write(data)
		w.Write([]byte("\n\n"))
		flusher.Flush()
	}

	for chunk := range ch {
		if chunk.Err != nil {
			data, _ := json.Marshal(map[string]string{"error": chunk.Err.Error()})
			w.Write([]byte("event: error\ndata: "))
			w.Write(data)
			w.Write([]byte("\n\n"))
			flusher.Flush()
			return
		}
		if chunk.Done {
			break
		}
		streamed += len(chunk.Delta)
		writeChunk(chunk.Delta, nil)
	}

	stop := "stop"
	writeChunk("", &stop)
	w.Write([]byte("data: [DONE]\n\n"))
	flusher.Flush()

	// Upstream token counts are unavailable mid-stream; estimate from
	// the character count at roughly four characters per token.
	h.enqueueUsage(r, &usage.Event{
		RequestID: auth.GetRequestID(ctx),
		Model:     res.BrandedModel,
		Usage:     provider.Usage{CompletionTokens: streamed / 4, TotalTokens: streamed / 4},
		Timestamp: time.Now().UTC(),
	})
}

// modelAllowed enforces per-plan model whitelists. Plans without a
// whitelist allow everything; lookup failures fail open.
func (h *Handler) modelAllowed(r *http.Request, model string) bool {
	if h.customers == nil {
		return true
	}
	cust, err := h.customers.Get(r.Context(), auth.GetCustomerID(r.Context()))
	if err != nil {
		log.Printf("gateway: customer lookup failed: %v", err)
		return true
	}
	plan := pricing.GetPlan(cust.Plan)
	if len(plan.Models) == 0 {
		return true
	}
	for _, allowed := range plan.Models {
		if allowed == model {
			return true
		}
	}
	return false
}

func (h *Handler) enqueueUsage(r *http.Request, event *usage.Event) {
	if h.queue == nil {
		return
	}
	if key := auth.GetAPIKey(r.Context()); key != nil {
		event.KeyHash = key.KeyHash
	}
	h.queue.Enqueue(event)
}

func (h *Handler) HandleUsage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	customerID := auth.GetCustomerID(ctx)

	at := time.Now()
	if month := r.URL.Query().Get("month"); month != "" {
		parsed, err := time.Parse("2006-01", month)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "invalid month, use YYYY-MM")
			return
		}
		at = parsed
	}

	ledger, err := h.accountant.Ledger(ctx, customerID, at)
	if err != nil {
		// No settled usage yet reads as an empty month, not an error.
		ledger = &usage.MonthlyLedger{
			CustomerID: customerID,
			Month:      at.UTC().Format("2006-01"),
		}
	}
	writeJSON(w, http.StatusOK, ledger)
}

func (h *Handler) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
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
	writeJSON(w, status, env)
}

// writeProviderError maps dispatch failures onto the error taxonomy:
// missing credentials read as 503, an emptied fallback chain and
// upstream failures as 500.
func writeProviderError(w http.ResponseWriter, err error) {
	var adapterErr *provider.AdapterError
	switch {
	case errors.Is(err, dispatch.ErrUnknownModel):
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, provider.ErrUnconfigured):
		writeError(w, http.StatusServiceUnavailable, "provider_unconfigured", err.Error())
	case errors.Is(err, dispatch.ErrExhausted):
		writeError(w, http.StatusInternalServerError, "all_fallbacks_exhausted", err.Error())
	case errors.As(err, &adapterErr):
		writeError(w, http.StatusInternalServerError, "adapter_error", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
