package pricing

import (
	"fmt"
	"sync"
)

// Unlimited marks an allowance dimension with no monthly cap.
const Unlimited = -1

// Rate is a per-1K-token price pair in USD.
type Rate struct {
	Input  float64 `json:"input"`
	Output float64 `json:"output"`
}

// Allowances are the monthly included quantities for a plan. A value of
// Unlimited means the dimension is never billed as overage.
type Allowances struct {
	TokensPerMonth       int64 `json:"tokens_per_month"`
	ImagesPerMonth       int64 `json:"images_per_month"`
	AudioMinutesPerMonth int64 `json:"audio_minutes_per_month"`
	VideoSecondsPerMonth int64 `json:"video_seconds_per_month"`
}

// OverageRates price usage beyond the plan allowance, in USD.
type OverageRates struct {
	TokensPer1K    float64 `json:"tokens_per_1k"`
	Images         float64 `json:"images"`
	AudioPerMinute float64 `json:"audio_per_minute"`
	VideoPerSecond float64 `json:"video_per_second"`
}

type Plan struct {
	ID                   string       `json:"id"`
	Name                 string       `json:"name"`
	Description          string       `json:"description"`
	MonthlyPriceUSD      float64      `json:"monthly_price_usd"`
	YearlyPriceUSD       float64      `json:"yearly_price_usd"`
	Allowances           Allowances   `json:"allowances"`
	OverageRates         OverageRates `json:"overage_rates"`
	MarkupPercent        float64      `json:"markup_percent"`
	MaxRequestsPerMinute int64        `json:"max_requests_per_minute"`
	// Models restricts the plan to specific gateway model IDs.
	// Empty means every model is available.
	Models []string `json:"models,omitempty"`
}

type Currency struct {
	Code   string  `json:"code"`
	Rate   float64 `json:"rate"` // units per USD
	Symbol string  `json:"symbol"`
	Name   string  `json:"name"`
}

// CostBreakdown is the priced result of one request.
type CostBreakdown struct {
	Model        string  `json:"model"`
	Plan         string  `json:"plan"`
	Currency     string  `json:"currency"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	InputCost    float64 `json:"input_cost"`
	OutputCost   float64 `json:"output_cost"`
	TotalCost    float64 `json:"total_cost"`
	InputPer1K   float64 `json:"input_per_1k"`
	OutputPer1K  float64 `json:"output_per_1k"`
	Custom       bool    `json:"custom"`
}

var plans = map[string]*Plan{
	"free": {
		ID:              "free",
		Name:            "Free",
		Description:     "Get started with AI",
		MonthlyPriceUSD: 0,
		YearlyPriceUSD:  0,
		Allowances: Allowances{
			TokensPerMonth:       10000,
			ImagesPerMonth:       10,
			AudioMinutesPerMonth: 5,
			VideoSecondsPerMonth: 0,
		},
		OverageRates: OverageRates{
			TokensPer1K:    0.005,
			Images:         0.05,
			AudioPerMinute: 0.10,
			VideoPerSecond: 0.50,
		},
		MarkupPercent:        100,
		MaxRequestsPerMinute: 10,
		Models:               []string{"inno-ai-boyong-mini", "inno-ai-gemini-flash", "inno-ai-llama-70b"},
	},
	"starter": {
		ID:              "starter",
		Name:            "Starter",
		Description:     "For developers and small projects",
		MonthlyPriceUSD: 9,
		YearlyPriceUSD:  90,
		Allowances: Allowances{
			TokensPerMonth:       100000,
			ImagesPerMonth:       100,
			AudioMinutesPerMonth: 60,
			VideoSecondsPerMonth: 30,
		},
		OverageRates: OverageRates{
			TokensPer1K:    0.003,
			Images:         0.04,
			AudioPerMinute: 0.08,
			VideoPerSecond: 0.40,
		},
		MarkupPercent:        50,
		MaxRequestsPerMinute: 60,
	},
	"pro": {
		ID:              "pro",
		Name:            "Pro",
		Description:     "For growing teams",
		MonthlyPriceUSD: 29,
		YearlyPriceUSD:  290,
		Allowances: Allowances{
			TokensPerMonth:       500000,
			ImagesPerMonth:       500,
			AudioMinutesPerMonth: 300,
			VideoSecondsPerMonth: 180,
		},
		OverageRates: OverageRates{
			TokensPer1K:    0.0025,
			Images:         0.035,
			AudioPerMinute: 0.07,
			VideoPerSecond: 0.35,
		},
		MarkupPercent:        40,
		MaxRequestsPerMinute: 300,
	},
	"business": {
		ID:              "business",
		Name:            "Business",
		Description:     "For businesses",
		MonthlyPriceUSD: 99,
		YearlyPriceUSD:  990,
		Allowances: Allowances{
			TokensPerMonth:       2000000,
			ImagesPerMonth:       2000,
			AudioMinutesPerMonth: 1200,
			VideoSecondsPerMonth: 600,
		},
		OverageRates: OverageRates{
			TokensPer1K:    0.002,
			Images:         0.03,
			AudioPerMinute: 0.06,
			VideoPerSecond: 0.30,
		},
		MarkupPercent:        30,
		MaxRequestsPerMinute: 1000,
	},
	"enterprise": {
		ID:              "enterprise",
		Name:            "Enterprise",
		Description:     "Custom solutions",
		MonthlyPriceUSD: 0, // negotiated, not self-serve
		YearlyPriceUSD:  0,
		Allowances: Allowances{
			TokensPerMonth:       Unlimited,
			ImagesPerMonth:       Unlimited,
			AudioMinutesPerMonth: Unlimited,
			VideoSecondsPerMonth: Unlimited,
		},
		OverageRates:         OverageRates{},
		MarkupPercent:        20,
		MaxRequestsPerMinute: 5000,
	},
}

var currencies = map[string]*Currency{
	"USD": {Code: "USD", Rate: 1.0, Symbol: "$", Name: "US Dollar"},
	"PHP": {Code: "PHP", Rate: 56.5, Symbol: "₱", Name: "Philippine Peso"},
}

// providerCosts are approximate upstream rates per 1K tokens, in USD.
var providerCosts = map[string]map[string]Rate{
	"openrouter": {
		"anthropic/claude-3-opus":   {Input: 0.015, Output: 0.075},
		"anthropic/claude-3-sonnet": {Input: 0.003, Output: 0.015},
		"anthropic/claude-3-haiku":  {Input: 0.00025, Output: 0.00125},
		"openai/gpt-4o":             {Input: 0.005, Output: 0.015},
		"openai/gpt-4-turbo":        {Input: 0.01, Output: 0.03},
		"google/gemini-1.5-pro":     {Input: 0.0035, Output: 0.0105},
		"google/gemini-1.5-flash":   {Input: 0.00035, Output: 0.00105},
		"default":                   {Input: 0.005, Output: 0.015},
	},
	"huggingface": {
		"default": {Input: 0, Output: 0},
	},
	"moonshot": {
		"default": {Input: 0.003, Output: 0.009},
	},
	"antigravity": {
		"default": {Input: 0.003, Output: 0.015},
	},
	"agentcli": {
		"default": {Input: 0, Output: 0},
	},
}

// fallbackRate prices models of unknown provenance rather than refusing.
var fallbackRate = Rate{Input: 0.005, Output: 0.015}

// brandedUpstreams maps branded chat model IDs to the upstream model whose
// cost table row they are priced from.
var brandedUpstreams = map[string]struct{ Provider, Model string }{
	"inno-ai-boyong-4.5":   {"openrouter", "anthropic/claude-3-opus"},
	"inno-ai-boyong-4.0":   {"openrouter", "anthropic/claude-3-sonnet"},
	"inno-ai-boyong-mini":  {"openrouter", "anthropic/claude-3-haiku"},
	"inno-ai-gpt-4o":       {"openrouter", "openai/gpt-4o"},
	"inno-ai-gpt-4":        {"openrouter", "openai/gpt-4-turbo"},
	"inno-ai-gemini-pro":   {"openrouter", "google/gemini-1.5-pro"},
	"inno-ai-gemini-flash": {"openrouter", "google/gemini-1.5-flash"},
	"inno-ai-llama-70b":    {"huggingface", "meta-llama/Llama-2-70b-chat-hf"},
}

// Service prices requests. Provider costs and plan tables are static;
// custom per-model overrides can be installed at runtime and take
// precedence over the markup calculation.
type Service struct {
	mu              sync.RWMutex
	customPrices    map[string]Rate
	defaultCurrency string
}

func NewService(defaultCurrency string) *Service {
	if _, ok := currencies[defaultCurrency]; !ok {
		defaultCurrency = "USD"
	}
	return &Service{
		customPrices:    make(map[string]Rate),
		defaultCurrency: defaultCurrency,
	}
}

// GetPlan returns the named plan, falling back to the free plan for
// unknown IDs so a corrupted customer record never escalates privileges.
func GetPlan(id string) *Plan {
	if p, ok := plans[id]; ok {
		return p
	}
	return plans["free"]
}

// Plans returns every plan keyed by ID.
func Plans() map[string]*Plan {
	return plans
}

// Currencies returns the supported currency table.
func Currencies() map[string]*Currency {
	return currencies
}

// Convert translates an amount between currencies by pivoting through USD.
// Unknown codes use rate 1.0 rather than failing a billable request.
func Convert(amount float64, from, to string) float64 {
	if from == to {
		return amount
	}
	fromRate := 1.0
	if c, ok := currencies[from]; ok {
		fromRate = c.Rate
	}
	toRate := 1.0
	if c, ok := currencies[to]; ok {
		toRate = c.Rate
	}
	return amount / fromRate * toRate
}

// SetCustomPrice installs a per-model override, in USD per 1K tokens.
func (s *Service) SetCustomPrice(model string, rate Rate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customPrices[model] = rate
}

// RemoveCustomPrice deletes a per-model override.
func (s *Service) RemoveCustomPrice(model string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.customPrices, model)
}

// providerCost resolves the upstream rate for a gateway model ID.
func providerCost(model string) Rate {
	if up, ok := brandedUpstreams[model]; ok {
		if table, ok := providerCosts[up.Provider]; ok {
			if r, ok := table[up.Model]; ok {
				return r
			}
			if r, ok := table["default"]; ok {
				return r
			}
		}
	}
	return fallbackRate
}

// PriceFor returns the customer-facing per-1K rate for a model under a
// plan, converted to the given currency. Custom overrides bypass the
// markup calculation entirely; override rates are stored in USD.
func (s *Service) PriceFor(model, planID, currency string) (Rate, bool) {
	if currency == "" {
		currency = s.defaultCurrency
	}
	plan := GetPlan(planID)

	s.mu.RLock()
	custom, hasCustom := s.customPrices[model]
	s.mu.RUnlock()

	if hasCustom {
		return Rate{
			Input:  Convert(custom.Input, "USD", currency),
			Output: Convert(custom.Output, "USD", currency),
		}, true
	}

	base := providerCost(model)
	multiplier := 1 + plan.MarkupPercent/100
	return Rate{
		Input:  Convert(base.Input*multiplier, "USD", currency),
		Output: Convert(base.Output*multiplier, "USD", currency),
	}, false
}

// CalculateCost prices one chat request. Token counts divide by 1000
// before multiplying so sub-1K requests bill fractionally.
func (s *Service) CalculateCost(model string, inputTokens, outputTokens int, planID, currency string) *CostBreakdown {
	if currency == "" {
		currency = s.defaultCurrency
	}
	rate, custom := s.PriceFor(model, planID, currency)

	inputCost := float64(inputTokens) / 1000 * rate.Input
	outputCost := float64(outputTokens) / 1000 * rate.Output

	return &CostBreakdown{
		Model:        model,
		Plan:         GetPlan(planID).ID,
		Currency:     currency,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		InputCost:    inputCost,
		OutputCost:   outputCost,
		TotalCost:    inputCost + outputCost,
		InputPer1K:   rate.Input,
		OutputPer1K:  rate.Output,
		Custom:       custom,
	}
}

// SplitAllowance divides a usage amount into the part covered by the
// remaining monthly allowance and the part billed as overage.
// limit < 0 (Unlimited) absorbs everything; current at or past the limit
// sends everything to overage.
func SplitAllowance(amount, current, limit int64) (within, overage int64) {
	if limit < 0 {
		return amount, 0
	}
	headroom := limit - current
	if headroom < 0 {
		headroom = 0
	}
	if amount <= headroom {
		return amount, 0
	}
	return headroom, amount - headroom
}

// OverageCost prices the overage portion of one usage dimension in USD.
func OverageCost(planID, dimension string, overage int64) (float64, error) {
	if overage <= 0 {
		return 0, nil
	}
	rates := GetPlan(planID).OverageRates
	switch dimension {
	case "tokens":
		return float64(overage) / 1000 * rates.TokensPer1K, nil
	case "images":
		return float64(overage) * rates.Images, nil
	case "audio_minutes":
		return float64(overage) * rates.AudioPerMinute, nil
	case "video_seconds":
		return float64(overage) * rates.VideoPerSecond, nil
	default:
		return 0, fmt.Errorf("unknown usage dimension %q", dimension)
	}
}
