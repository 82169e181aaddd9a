package replicate

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

const predictionTimeout = 300 * time.Second

var pollInterval = 2 * time.Second

// ReplicateProvider runs image, 3D and video models through the
// predictions API. Model refs of the form "owner/name" hit the model
// predictions endpoint; refs carrying ":version" pin a version through
// the generic endpoint. Output URLs are fetched so callers receive
// artifact bytes, never upstream links.
type ReplicateProvider struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

type predictionRequest struct {
	Version string         `json:"version,omitempty"`
	Input   map[string]any `json:"input"`
}

type prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  string          `json:"error"`
	URLs   struct {
		Get string `json:"get"`
	} `json:"urls"`
}

func New(apiKey string) *ReplicateProvider {
	return &ReplicateProvider{
		apiKey:  apiKey,
		baseURL: "https://api.replicate.com/v1",
		client:  &http.Client{Timeout: predictionTimeout},
	}
}

func (p *ReplicateProvider) Name() string {
	return "replicate"
}

func (p *ReplicateProvider) Generate(ctx context.Context, model string, input provider.MediaInput) (*provider.MediaResult, error) {
	if p.apiKey == "" {
		return nil, &provider.AdapterError{Provider: p.Name(), Err: provider.ErrUnconfigured}
	}

	pred, err := p.createPrediction(ctx, model, buildInput(input))
	if err != nil {
		return nil, &provider.AdapterError{Provider: p.Name(), Err: err}
	}

	pred, err = p.waitForPrediction(ctx, pred)
	if err != nil {
		return nil, &provider.AdapterError{Provider: p.Name(), Err: err}
	}

	urls, err := outputURLs(pred.Output)
	if err != nil {
		return nil, &provider.AdapterError{Provider: p.Name(), Err: err}
	}

	outputs := make([][]byte, 0, len(urls))
	for _, u := range urls {
		data, err := p.fetchArtifact(ctx, u)
		if err != nil {
			return nil, &provider.AdapterError{Provider: p.Name(), Err: err}
		}
		outputs = append(outputs, data)
	}

	return &provider.MediaResult{
		Outputs:  outputs,
		Model:    model,
		Provider: p.Name(),
		Format:   formatFromURL(urls),
	}, nil
}

func buildInput(in provider.MediaInput) map[string]any {
	input := map[string]any{"prompt": in.Prompt}
	if in.Image != "" {
		input["image"] = in.Image
	}
	if in.Width > 0 {
		input["width"] = in.Width
	}
	if in.Height > 0 {
		input["height"] = in.Height
	}
	if in.N > 1 {
		input["num_outputs"] = in.N
	}
	if in.Duration > 0 {
		input["duration"] = in.Duration
	}
	return input
}

func (p *ReplicateProvider) createPrediction(ctx context.Context, model string, input map[string]any) (*prediction, error) {
	var url string
	req := predictionRequest{Input: input}
	if idx := strings.Index(model, ":"); idx >= 0 {
		req.Version = model[idx+1:]
		url = fmt.Sprintf("%s/predictions", p.baseURL)
	} else {
		url = fmt.Sprintf("%s/models/%s/predictions", p.baseURL, model)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", p.apiKey))
	httpReq.Header.Set("Prefer", "wait")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("replicate api error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var pred prediction
	if err := json.NewDecoder(resp.Body).Decode(&pred); err != nil {
		return nil, err
	}
	return &pred, nil
}

// waitForPrediction polls until the prediction reaches a terminal state.
// Prefer: wait usually returns a finished prediction, so most calls never
// loop here.
func (p *ReplicateProvider) waitForPrediction(ctx context.Context, pred *prediction) (*prediction, error) {
	for {
		switch pred.Status {
		case "succeeded":
			return pred, nil
		case "failed", "canceled":
			return nil, fmt.Errorf("prediction %s %s: %s", pred.ID, pred.Status, pred.Error)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}

		httpReq, err := http.NewRequestWithContext(ctx, "GET", pred.URLs.Get, nil)
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", p.apiKey))

		resp, err := p.client.Do(httpReq)
		if err != nil {
			return nil, err
		}

		var next prediction
		err = json.NewDecoder(resp.Body).Decode(&next)
		resp.Body.Close()
		if err != nil {
			return nil, err
		}
		pred = &next
	}
}

// outputURLs normalizes replicate's output field, which is either a
// single URL string or an array of them depending on the model.
func outputURLs(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("prediction produced no output")
	}

	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return []string{single}, nil
	}

	var many []string
	if err := json.Unmarshal(raw, &many); err == nil {
		if len(many) == 0 {
			return nil, fmt.Errorf("prediction produced no output")
		}
		return many, nil
	}

	return nil, fmt.Errorf("unrecognized prediction output shape: %s", string(raw))
}

func (p *ReplicateProvider) fetchArtifact(ctx context.Context, url string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("artifact fetch failed (status %d)", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

func formatFromURL(urls []string) string {
	if len(urls) == 0 {
		return ""
	}
	u := urls[0]
	if idx := strings.LastIndex(u, "."); idx >= 0 && idx < len(u)-1 {
		ext := u[idx+1:]
		if q := strings.Index(ext, "?"); q >= 0 {
			ext = ext[:q]
		}
		if len(ext) <= 4 {
			return ext
		}
	}
	return "png"
}
