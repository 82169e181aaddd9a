package antigravity

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/innovatehubph/inno-ai-gateway/internal/provider"
)

const (
	chatTimeout   = 120 * time.Second
	clientVersion = "1.15.8"
)

var defaultEndpoints = []string{
	"https://daily-cloudcode-pa.sandbox.googleapis.com",
	"https://cloudcode-pa.googleapis.com",
}

// Credentials are read from the agent-CLI account file rather than an
// environment variable. The file may hold either a JSON array of accounts
// or an object keyed by account ID.
type Credentials struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ProjectID    string `json:"projectId"`
	Email        string `json:"email"`
	Enabled      *bool  `json:"enabled,omitempty"`
}

// AntigravityProvider reaches Gemini-family models through the Cloud Code
// private API. Requests are Gemini-shaped; the SSE response is aggregated
// into a single completion because the upstream reports no usage counts.
type AntigravityProvider struct {
	credsPath string
	endpoints []string
	client    *http.Client
}

type agPart struct {
	Text string `json:"text"`
}

type agContent struct {
	Role  string   `json:"role"`
	Parts []agPart `json:"parts"`
}

type agRequest struct {
	Project     string  `json:"project"`
	Model       string  `json:"model"`
	Request     agInner `json:"request"`
	RequestType string  `json:"requestType"`
	UserAgent   string  `json:"userAgent"`
	RequestID   string  `json:"requestId"`
}

type agInner struct {
	Contents          []agContent `json:"contents"`
	GenerationConfig  agGenConfig `json:"generationConfig"`
	SystemInstruction *agContent  `json:"systemInstruction,omitempty"`
}

type agGenConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type agChunk struct {
	Response *agResponseBody `json:"response"`
	// Some endpoints send the body unwrapped.
	Candidates []agCandidate `json:"candidates"`
}

type agResponseBody struct {
	Candidates []agCandidate `json:"candidates"`
}

type agCandidate struct {
	Content agContent `json:"content"`
}

func New(credsPath string) *AntigravityProvider {
	if credsPath == "" {
		credsPath = "/root/.config/opencode/antigravity-accounts.json"
	}
	return &AntigravityProvider{
		credsPath: credsPath,
		endpoints: defaultEndpoints,
		client:    &http.Client{Timeout: chatTimeout},
	}
}

func (p *AntigravityProvider) Name() string {
	return "antigravity"
}

// loadCredentials picks the first enabled account from the accounts file.
func (p *AntigravityProvider) loadCredentials() (*Credentials, error) {
	data, err := os.ReadFile(p.credsPath)
	if err != nil {
		return nil, provider.ErrUnconfigured
	}

	var accounts []Credentials
	if err := json.Unmarshal(data, &accounts); err == nil && len(accounts) > 0 {
		for i := range accounts {
			if accounts[i].Enabled == nil || *accounts[i].Enabled {
				return &accounts[i], nil
			}
		}
		return &accounts[0], nil
	}

	var keyed struct {
		Accounts map[string]Credentials `json:"accounts"`
	}
	if err := json.Unmarshal(data, &keyed); err == nil {
		for _, acct := range keyed.Accounts {
			a := acct
			return &a, nil
		}
	}

	return nil, provider.ErrUnconfigured
}

func (p *AntigravityProvider) Chat(ctx context.Context, model string, messages []provider.Message, params provider.Params) (*provider.ChatResult, error) {
	creds, err := p.loadCredentials()
	if err != nil {
		return nil, &provider.AdapterError{Provider: p.Name(), Err: err}
	}

	var contents []agContent
	var system *agContent
	for _, m := range messages {
		if m.Role == "system" {
			system = &agContent{Role: "user", Parts: []agPart{{Text: m.Content}}}
			continue
		}
		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}
		contents = append(contents, agContent{Role: role, Parts: []agPart{{Text: m.Content}}})
	}

	maxTokens := params.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}
	temperature := params.Temperature
	if temperature == 0 {
		temperature = 0.7
	}

	reqID := fmt.Sprintf("agent-%d-%s", time.Now().UnixMilli(), uuid.New().String()[:9])
	body, err := json.Marshal(agRequest{
		Project: creds.ProjectID,
		Model:   model,
		Request: agInner{
			Contents: contents,
			GenerationConfig: agGenConfig{
				Temperature:     temperature,
				MaxOutputTokens: maxTokens,
			},
			SystemInstruction: system,
		},
		RequestType: "agent",
		UserAgent:   "antigravity",
		RequestID:   reqID,
	})
	if err != nil {
		return nil, &provider.AdapterError{Provider: p.Name(), Err: err}
	}

	var lastErr error
	for _, endpoint := range p.endpoints {
		text, err := p.callEndpoint(ctx, endpoint, creds.AccessToken, body)
		if err != nil {
			lastErr = err
			continue
		}
		return &provider.ChatResult{
			ID:       reqID,
			Text:     strings.TrimSpace(text),
			Model:    model,
			Provider: p.Name(),
			// The private API does not report token counts.
			Usage: provider.Usage{},
		}, nil
	}

	return nil, &provider.AdapterError{
		Provider: p.Name(),
		Err:      fmt.Errorf("all endpoints failed: %w", lastErr),
	}
}

func (p *AntigravityProvider) callEndpoint(ctx context.Context, endpoint, token string, body []byte) (string, error) {
	url := fmt.Sprintf("%s/v1internal:streamGenerateContent?alt=sse", endpoint)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))
	httpReq.Header.Set("User-Agent", fmt.Sprintf("antigravity/%s darwin/arm64", clientVersion))
	httpReq.Header.Set("X-Goog-Api-Client", "google-cloud-sdk vscode_cloudshelleditor/0.1")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("antigravity api error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var full strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "" || data == "[DONE]" {
			continue
		}

		var chunk agChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			// Malformed lines are skipped, not fatal.
			continue
		}
		candidates := chunk.Candidates
		if chunk.Response != nil {
			candidates = chunk.Response.Candidates
		}
		for _, c := range candidates {
			for _, part := range c.Content.Parts {
				full.WriteString(part.Text)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}

	return full.String(), nil
}
