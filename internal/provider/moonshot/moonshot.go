package moonshot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/innovatehubph/inno-ai-gateway/internal/provider"
)

const chatTimeout = 120 * time.Second

// MoonshotProvider serves the Kimi model family over Moonshot's
// OpenAI-compatible chat endpoint.
type MoonshotProvider struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

type msRequest struct {
	Model       string      `json:"model"`
	Messages    []msMessage `json:"messages"`
	MaxTokens   int         `json:"max_tokens,omitempty"`
	Temperature float64     `json:"temperature,omitempty"`
}

type msMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type msResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message msMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func New(apiKey string) *MoonshotProvider {
	return &MoonshotProvider{
		apiKey:  apiKey,
		baseURL: "https://api.moonshot.cn/v1",
		client:  &http.Client{Timeout: chatTimeout},
	}
}

func (p *MoonshotProvider) Name() string {
	return "moonshot"
}

func (p *MoonshotProvider) Chat(ctx context.Context, model string, messages []provider.Message, params provider.Params) (*provider.ChatResult, error) {
	if p.apiKey == "" {
		return nil, &provider.AdapterError{Provider: p.Name(), Err: provider.ErrUnconfigured}
	}

	msgs := make([]msMessage, 0, len(messages))
	for _, m := range messages {
		msgs = append(msgs, msMessage{Role: m.Role, Content: m.Content})
	}

	maxTokens := params.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}
	temperature := params.Temperature
	if temperature == 0 {
		temperature = 0.7
	}

	body, err := json.Marshal(msRequest{
		Model:       model,
		Messages:    msgs,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return nil, &provider.AdapterError{Provider: p.Name(), Err: err}
	}

	url := fmt.Sprintf("%s/chat/completions", p.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return nil, &provider.AdapterError{Provider: p.Name(), Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", p.apiKey))

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, &provider.AdapterError{Provider: p.Name(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, &provider.AdapterError{
			Provider: p.Name(),
			Err:      fmt.Errorf("moonshot api error (status %d): %s", resp.StatusCode, string(respBody)),
		}
	}

	var msResp msResponse
	if err := json.NewDecoder(resp.Body).Decode(&msResp); err != nil {
		return nil, &provider.AdapterError{Provider: p.Name(), Err: err}
	}

	if len(msResp.Choices) == 0 {
		return nil, &provider.AdapterError{Provider: p.Name(), Err: fmt.Errorf("moonshot returned no choices")}
	}

	usage := provider.Usage{
		PromptTokens:     msResp.Usage.PromptTokens,
		CompletionTokens: msResp.Usage.CompletionTokens,
		TotalTokens:      msResp.Usage.TotalTokens,
	}
	if usage.TotalTokens == 0 {
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}

	return &provider.ChatResult{
		ID:       msResp.ID,
		Text:     strings.TrimSpace(msResp.Choices[0].Message.Content),
		Model:    msResp.Model,
		Provider: p.Name(),
		Usage:    usage,
	}, nil
}
