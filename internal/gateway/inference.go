package gateway

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/innovatehubph/inno-ai-gateway/internal/auth"
	"github.com/innovatehubph/inno-ai-gateway/internal/metrics"
	"github.com/innovatehubph/inno-ai-gateway/internal/provider"
	"github.com/innovatehubph/inno-ai-gateway/internal/usage"
)

const maxAudioUpload = 25 << 20

type embeddingsRequest struct {
	Input json.RawMessage `json:"input"`
	Model string          `json:"model"`
}

type embeddingObject struct {
	Object    string          `json:"object"`
	Embedding json.RawMessage `json:"embedding"`
	Index     int             `json:"index"`
}

// HandleEmbeddings forwards text through the embeddings model and
// reshapes the raw vector output into the list contract.
func (h *Handler) HandleEmbeddings(w http.ResponseWriter, r *http.Request) {
	var req embeddingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if len(req.Input) == 0 || string(req.Input) == "null" {
		writeError(w, http.StatusBadRequest, "bad_request", "input is required")
		return
	}

	payload, err := json.Marshal(map[string]any{
		"inputs":  req.Input,
		"options": map[string]bool{"wait_for_model": true},
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to encode payload")
		return
	}

	raw, err := h.dispatcher.Infer(r.Context(), "embeddings", payload)
	if err != nil {
		metrics.ObserveProviderCall("huggingface", "error")
		writeProviderError(w, err)
		return
	}
	metrics.ObserveProviderCall("huggingface", "success")

	// The upstream returns either one vector or a batch of them.
	var batch []json.RawMessage
	var data []embeddingObject
	if err := json.Unmarshal(raw, &batch); err == nil && len(batch) > 0 && len(batch[0]) > 0 && batch[0][0] == '[' {
		for i, emb := range batch {
			data = append(data, embeddingObject{Object: "embedding", Embedding: emb, Index: i})
		}
	} else {
		data = []embeddingObject{{Object: "embedding", Embedding: raw, Index: 0}}
	}

	// Upstream reports no token counts; estimate from the input size at
	// roughly four characters per token.
	inputTokens := len(req.Input) / 4
	if inputTokens < 1 {
		inputTokens = 1
	}
	h.enqueueUsage(r, &usage.Event{
		RequestID: auth.GetRequestID(r.Context()),
		Model:     "inno-ai-embed-1",
		Usage: provider.Usage{
			PromptTokens: inputTokens,
			TotalTokens:  inputTokens,
		},
		Timestamp: time.Now().UTC(),
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"object": "list",
		"data":   data,
		"model":  "inno-ai-embed-1",
		"usage": map[string]int{
			"prompt_tokens": inputTokens,
			"total_tokens":  inputTokens,
		},
	})
}

// HandleAudioTranscriptions accepts an audio upload (multipart "file"
// field, or the raw body) and returns the transcript.
func (h *Handler) HandleAudioTranscriptions(w http.ResponseWriter, r *http.Request) {
	audio, err := readAudio(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if len(audio) == 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "audio file is required")
		return
	}

	raw, err := h.dispatcher.Infer(r.Context(), "stt", audio)
	if err != nil {
		metrics.ObserveProviderCall("huggingface", "error")
		writeProviderError(w, err)
		return
	}
	metrics.ObserveProviderCall("huggingface", "success")

	var parsed struct {
		Text string `json:"text"`
	}
	_ = json.Unmarshal(raw, &parsed)

	h.enqueueUsage(r, &usage.Event{
		RequestID: auth.GetRequestID(r.Context()),
		Model:     "inno-ai-whisper-1",
		// Upstream does not report duration; bill a minimum minute.
		AudioMinutes: 1,
		Timestamp:    time.Now().UTC(),
	})

	writeJSON(w, http.StatusOK, map[string]string{"text": parsed.Text})
}

func readAudio(r *http.Request) ([]byte, error) {
	if err := r.ParseMultipartForm(maxAudioUpload); err == nil {
		file, _, err := r.FormFile("file")
		if err == nil {
			defer file.Close()
			return io.ReadAll(io.LimitReader(file, maxAudioUpload))
		}
	}
	return io.ReadAll(io.LimitReader(r.Body, maxAudioUpload))
}
