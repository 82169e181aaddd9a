package replicate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/innovatehubph/inno-ai-gateway/internal/provider"
)

func TestGenerate_ModelEndpoint(t *testing.T) {
	artifact := []byte("fake-png-bytes")

	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/models/black-forest-labs/flux-schnell/predictions", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Prefer"); got != "wait" {
			t.Errorf("missing Prefer: wait header, got %q", got)
		}
		var req predictionRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Input["prompt"] != "a lighthouse" {
			t.Errorf("prompt not forwarded: %v", req.Input)
		}
		if req.Input["width"] != float64(512) {
			t.Errorf("width not forwarded: %v", req.Input)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"id":     "pred-1",
			"status": "succeeded",
			"output": []string{srv.URL + "/files/out.png"},
		})
	})
	mux.HandleFunc("/files/out.png", func(w http.ResponseWriter, r *http.Request) {
		w.Write(artifact)
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	p := New("test-key")
	p.baseURL = srv.URL
	p.client = srv.Client()

	result, err := p.Generate(context.Background(), "black-forest-labs/flux-schnell", provider.MediaInput{
		Prompt: "a lighthouse",
		Width:  512,
		Height: 512,
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if len(result.Outputs) != 1 || !bytes.Equal(result.Outputs[0], artifact) {
		t.Errorf("artifact bytes not fetched: %v", result.Outputs)
	}
	if result.Format != "png" {
		t.Errorf("unexpected format: %q", result.Format)
	}
}

func TestGenerate_PollsUntilTerminal(t *testing.T) {
	oldInterval := pollInterval
	pollInterval = 10 * time.Millisecond
	defer func() { pollInterval = oldInterval }()

	polls := 0
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/models/luma/ray-2-720p/predictions", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"id":     "pred-2",
			"status": "processing",
			"urls":   map[string]string{"get": srv.URL + "/predictions/pred-2"},
		})
	})
	mux.HandleFunc("/predictions/pred-2", func(w http.ResponseWriter, r *http.Request) {
		polls++
		if polls < 2 {
			json.NewEncoder(w).Encode(map[string]any{
				"id":     "pred-2",
				"status": "processing",
				"urls":   map[string]string{"get": srv.URL + "/predictions/pred-2"},
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id":     "pred-2",
			"status": "succeeded",
			"output": srv.URL + "/files/clip.mp4",
		})
	})
	mux.HandleFunc("/files/clip.mp4", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("video"))
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	p := New("test-key")
	p.baseURL = srv.URL
	p.client = srv.Client()

	result, err := p.Generate(context.Background(), "luma/ray-2-720p", provider.MediaInput{
		Prompt:   "waves",
		Duration: 5,
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if polls < 2 {
		t.Errorf("expected at least 2 polls, got %d", polls)
	}
	if result.Format != "mp4" {
		t.Errorf("unexpected format: %q", result.Format)
	}
}

func TestGenerate_FailedPrediction(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/models/stability-ai/stable-diffusion-3/predictions", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"id":     "pred-3",
			"status": "failed",
			"error":  "NSFW content detected",
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := New("test-key")
	p.baseURL = srv.URL
	p.client = srv.Client()

	_, err := p.Generate(context.Background(), "stability-ai/stable-diffusion-3", provider.MediaInput{Prompt: "x"})
	if err == nil {
		t.Fatal("expected failed prediction error")
	}
}

func TestGenerate_VersionPinnedRef(t *testing.T) {
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/predictions", func(w http.ResponseWriter, r *http.Request) {
		var req predictionRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Version != "abc123" {
			t.Errorf("version not extracted: %q", req.Version)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id":     "pred-4",
			"status": "succeeded",
			"output": fmt.Sprintf("%s/files/mesh.glb", srv.URL),
		})
	})
	mux.HandleFunc("/files/mesh.glb", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("gltf"))
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	p := New("test-key")
	p.baseURL = srv.URL
	p.client = srv.Client()

	result, err := p.Generate(context.Background(), "owner/model:abc123", provider.MediaInput{Prompt: "a chair"})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if result.Format != "glb" {
		t.Errorf("unexpected format: %q", result.Format)
	}
}
