package huggingface

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

const (
	chatTimeout  = 120 * time.Second
	inferTimeout = 120 * time.Second
)

// HuggingFaceProvider talks to the HF inference router. Chat uses the
// OpenAI-compatible surface; Infer posts task payloads to the raw
// per-model endpoint and returns the response body untouched, which for
// image models is the PNG itself.
type HuggingFaceProvider struct {
	token   string
	baseURL string
	client  *http.Client
}

type hfChatRequest struct {
	Model       string      `json:"model"`
	Messages    []hfMessage `json:"messages"`
	MaxTokens   int         `json:"max_tokens,omitempty"`
	Temperature float64     `json:"temperature,omitempty"`
}

type hfMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type hfChatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message hfMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func New(token string) *HuggingFaceProvider {
	return &HuggingFaceProvider{
		token:   token,
		baseURL: "https://router.huggingface.co",
		client:  &http.Client{Timeout: chatTimeout},
	}
}

func (p *HuggingFaceProvider) Name() string {
	return "huggingface"
}

func (p *HuggingFaceProvider) Chat(ctx context.Context, model string, messages []provider.Message, params provider.Params) (*provider.ChatResult, error) {
	if p.token == "" {
		return nil, &provider.AdapterError{Provider: p.Name(), Err: provider.ErrUnconfigured}
	}

	msgs := make([]hfMessage, 0, len(messages))
	for _, m := range messages {
		msgs = append(msgs, hfMessage{Role: m.Role, Content: m.Content})
	}

	maxTokens := params.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}
	temperature := params.Temperature
	if temperature == 0 {
		temperature = 0.7
	}

	body, err := json.Marshal(hfChatRequest{
		Model:       model,
		Messages:    msgs,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return nil, &provider.AdapterError{Provider: p.Name(), Err: err}
	}

	url := fmt.Sprintf("%s/v1/chat/completions", p.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return nil, &provider.AdapterError{Provider: p.Name(), Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", p.token))

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, &provider.AdapterError{Provider: p.Name(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, &provider.AdapterError{
			Provider: p.Name(),
			Err:      fmt.Errorf("huggingface api error (status %d): %s", resp.StatusCode, string(respBody)),
		}
	}

	var hfResp hfChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&hfResp); err != nil {
		return nil, &provider.AdapterError{Provider: p.Name(), Err: err}
	}

	if len(hfResp.Choices) == 0 {
		return nil, &provider.AdapterError{Provider: p.Name(), Err: fmt.Errorf("huggingface returned no choices")}
	}

	usage := provider.Usage{
		PromptTokens:     hfResp.Usage.PromptTokens,
		CompletionTokens: hfResp.Usage.CompletionTokens,
		TotalTokens:      hfResp.Usage.TotalTokens,
	}
	if usage.TotalTokens == 0 {
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}

	return &provider.ChatResult{
		ID:       hfResp.ID,
		Text:     strings.TrimSpace(hfResp.Choices[0].Message.Content),
		Model:    hfResp.Model,
		Provider: p.Name(),
		Usage:    usage,
	}, nil
}

// Infer posts the payload to the per-model inference endpoint and returns
// the raw body. Callers interpret it by task: image bytes, waveform JSON,
// embedding vectors.
func (p *HuggingFaceProvider) Infer(ctx context.Context, model string, payload []byte) ([]byte, error) {
	if p.token == "" {
		return nil, &provider.AdapterError{Provider: p.Name(), Err: provider.ErrUnconfigured}
	}

	url := fmt.Sprintf("%s/hf-inference/models/%s", p.baseURL, model)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(payload))
	if err != nil {
		return nil, &provider.AdapterError{Provider: p.Name(), Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", p.token))

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, &provider.AdapterError{Provider: p.Name(), Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &provider.AdapterError{Provider: p.Name(), Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &provider.AdapterError{
			Provider: p.Name(),
			Err:      fmt.Errorf("huggingface api error (status %d): %s", resp.StatusCode, string(respBody)),
		}
	}

	return respBody, nil
}
