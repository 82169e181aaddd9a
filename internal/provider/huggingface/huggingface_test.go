package huggingface

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/innovatehubph/inno-ai-gateway/internal/provider"
)

func testProvider(upstream *httptest.Server) *HuggingFaceProvider {
	p := New("test-token")
	p.baseURL = upstream.URL
	p.client = upstream.Client()
	return p
}

func TestChat(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("unexpected auth header: %s", got)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"id":    "hf-1",
			"model": "mistralai/Mistral-7B-Instruct-v0.2",
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "bonjour"}},
			},
			"usage": map[string]int{"prompt_tokens": 4, "completion_tokens": 2},
		})
	}))
	defer upstream.Close()

	p := testProvider(upstream)
	result, err := p.Chat(context.Background(), "mistralai/Mistral-7B-Instruct-v0.2",
		[]provider.Message{{Role: "user", Content: "salut"}}, provider.Params{})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}

	if result.Text != "bonjour" {
		t.Errorf("unexpected text: %q", result.Text)
	}
	// Total must be derived when the upstream omits it.
	if result.Usage.TotalTokens != 6 {
		t.Errorf("expected derived total 6, got %d", result.Usage.TotalTokens)
	}
}

func TestInfer_RawBytes(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a}

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/hf-inference/models/stabilityai/stable-diffusion-xl-base-1.0" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if !bytes.Contains(body, []byte("a red fox")) {
			t.Errorf("payload not forwarded: %s", body)
		}
		w.Write(png)
	}))
	defer upstream.Close()

	p := testProvider(upstream)
	payload, _ := json.Marshal(map[string]string{"inputs": "a red fox"})
	out, err := p.Infer(context.Background(), "stabilityai/stable-diffusion-xl-base-1.0", payload)
	if err != nil {
		t.Fatalf("Infer failed: %v", err)
	}
	if !bytes.Equal(out, png) {
		t.Errorf("body not returned verbatim: %v", out)
	}
}

func TestInfer_UpstreamError(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":"model is loading"}`))
	}))
	defer upstream.Close()

	p := testProvider(upstream)
	_, err := p.Infer(context.Background(), "some/model", []byte(`{}`))
	if err == nil {
		t.Fatal("expected error from 503")
	}
	var adapterErr *provider.AdapterError
	if !errors.As(err, &adapterErr) {
		t.Fatalf("expected AdapterError, got %T", err)
	}
}

func TestChat_MissingToken(t *testing.T) {
	p := New("")
	_, err := p.Chat(context.Background(), "m",
		[]provider.Message{{Role: "user", Content: "x"}}, provider.Params{})
	if !errors.Is(err, provider.ErrUnconfigured) {
		t.Errorf("expected ErrUnconfigured, got %v", err)
	}
}
