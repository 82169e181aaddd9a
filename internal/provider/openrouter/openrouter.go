package openrouter

import (
	"bufio"
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

type OpenRouterProvider struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

type orRequest struct {
	Model       string      `json:"model"`
	Messages    []orMessage `json:"messages"`
	MaxTokens   int         `json:"max_tokens,omitempty"`
	Temperature float64     `json:"temperature,omitempty"`
	Stream      bool        `json:"stream,omitempty"`
}

type orMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type orResponse struct {
	ID      string     `json:"id"`
	Choices []orChoice `json:"choices"`
	Usage   orUsage    `json:"usage"`
	Model   string     `json:"model"`
}

type orChoice struct {
	Message orMessage `json:"message"`
	Delta   orDelta   `json:"delta"`
}

type orDelta struct {
	Content string `json:"content"`
}

type orUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func New(apiKey string) *OpenRouterProvider {
	return &OpenRouterProvider{
		apiKey:  apiKey,
		baseURL: "https://openrouter.ai/api/v1",
		client:  &http.Client{Timeout: chatTimeout},
	}
}

func (p *OpenRouterProvider) Name() string {
	return "openrouter"
}

func (p *OpenRouterProvider) Chat(ctx context.Context, model string, messages []provider.Message, params provider.Params) (*provider.ChatResult, error) {
	if p.apiKey == "" {
		return nil, &provider.AdapterError{Provider: p.Name(), Err: provider.ErrUnconfigured}
	}

	body, err := json.Marshal(p.mapRequest(model, messages, params, false))
	if err != nil {
		return nil, &provider.AdapterError{Provider: p.Name(), Err: err}
	}

	resp, err := p.post(ctx, bytes.NewBuffer(body))
	if err != nil {
		return nil, &provider.AdapterError{Provider: p.Name(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, &provider.AdapterError{
			Provider: p.Name(),
			Err:      fmt.Errorf("openrouter api error (status %d): %s", resp.StatusCode, string(respBody)),
		}
	}

	var orResp orResponse
	if err := json.NewDecoder(resp.Body).Decode(&orResp); err != nil {
		return nil, &provider.AdapterError{Provider: p.Name(), Err: err}
	}

	if len(orResp.Choices) == 0 {
		return nil, &provider.AdapterError{Provider: p.Name(), Err: fmt.Errorf("openrouter returned no choices")}
	}

	usage := provider.Usage{
		PromptTokens:     orResp.Usage.PromptTokens,
		CompletionTokens: orResp.Usage.CompletionTokens,
		TotalTokens:      orResp.Usage.TotalTokens,
	}
	if usage.TotalTokens == 0 {
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}

	return &provider.ChatResult{
		ID:       orResp.ID,
		Text:     strings.TrimSpace(orResp.Choices[0].Message.Content),
		Model:    orResp.Model,
		Provider: p.Name(),
		Usage:    usage,
	}, nil
}

func (p *OpenRouterProvider) ChatStream(ctx context.Context, model string, messages []provider.Message, params provider.Params) (<-chan *provider.Chunk, error) {
	if p.apiKey == "" {
		return nil, &provider.AdapterError{Provider: p.Name(), Err: provider.ErrUnconfigured}
	}

	body, err := json.Marshal(p.mapRequest(model, messages, params, true))
	if err != nil {
		return nil, &provider.AdapterError{Provider: p.Name(), Err: err}
	}

	ch := make(chan *provider.Chunk)

	go func() {
		defer close(ch)

		resp, err := p.post(ctx, bytes.NewBuffer(body))
		if err != nil {
			select {
			case ch <- &provider.Chunk{Err: &provider.AdapterError{Provider: p.Name(), Err: err}}:
			case <-ctx.Done():
			}
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			respBody, _ := io.ReadAll(resp.Body)
			select {
			case ch <- &provider.Chunk{Err: &provider.AdapterError{
				Provider: p.Name(),
				Err:      fmt.Errorf("openrouter api error (status %d): %s", resp.StatusCode, string(respBody)),
			}}:
			case <-ctx.Done():
			}
			return
		}

		reader := bufio.NewReader(resp.Body)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				if err == io.EOF {
					select {
					case ch <- &provider.Chunk{Done: true}:
					case <-ctx.Done():
					}
					return
				}
				select {
				case ch <- &provider.Chunk{Err: &provider.AdapterError{Provider: p.Name(), Err: err}}:
				case <-ctx.Done():
				}
				return
			}

			line = strings.TrimSpace(line)
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			data := strings.TrimPrefix(line, "data: ")
			if data == "[DONE]" {
				select {
				case ch <- &provider.Chunk{Done: true}:
				case <-ctx.Done():
				}
				return
			}

			var orResp orResponse
			if err := json.Unmarshal([]byte(data), &orResp); err != nil {
				continue
			}
			if len(orResp.Choices) > 0 && orResp.Choices[0].Delta.Content != "" {
				select {
				case ch <- &provider.Chunk{Delta: orResp.Choices[0].Delta.Content}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return ch, nil
}

func (p *OpenRouterProvider) post(ctx context.Context, body io.Reader) (*http.Response, error) {
	url := fmt.Sprintf("%s/chat/completions", p.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", p.apiKey))
	httpReq.Header.Set("HTTP-Referer", "https://ai-gateway.innoserver.cloud")
	httpReq.Header.Set("X-Title", "InnovateHub AI Gateway")
	return p.client.Do(httpReq)
}

func (p *OpenRouterProvider) mapRequest(model string, messages []provider.Message, params provider.Params, stream bool) orRequest {
	msgs := make([]orMessage, 0, len(messages))
	for _, m := range messages {
		msgs = append(msgs, orMessage{Role: m.Role, Content: m.Content})
	}

	maxTokens := params.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}
	temperature := params.Temperature
	if temperature == 0 {
		temperature = 0.7
	}

	return orRequest{
		Model:       model,
		Messages:    msgs,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		Stream:      stream,
	}
}
