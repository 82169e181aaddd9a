package gateway

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/innovatehubph/inno-ai-gateway/internal/auth"
	"github.com/innovatehubph/inno-ai-gateway/internal/dispatch"
	"github.com/innovatehubph/inno-ai-gateway/internal/metrics"
	"github.com/innovatehubph/inno-ai-gateway/internal/provider"
	"github.com/innovatehubph/inno-ai-gateway/internal/usage"
)

type imageGenerationRequest struct {
	Prompt         string `json:"prompt"`
	N              int    `json:"n"`
	Size           string `json:"size"`
	ResponseFormat string `json:"response_format"`
	Model          string `json:"model"`
}

type mediaArtifact struct {
	URL     string `json:"url,omitempty"`
	B64JSON string `json:"b64_json,omitempty"`
	Format  string `json:"format,omitempty"`
}

type mediaGenerationResponse struct {
	Created  int64           `json:"created"`
	Model    string          `json:"model"`
	Tier     string          `json:"tier,omitempty"`
	Fallback bool            `json:"fallback,omitempty"`
	Data     []mediaArtifact `json:"data"`
}

func (h *Handler) HandleImageGenerations(w http.ResponseWriter, r *http.Request) {
	var req imageGenerationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if req.Prompt == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "prompt is required")
		return
	}
	if req.N <= 0 {
		req.N = 1
	}
	if req.Size == "" {
		req.Size = "1024x1024"
	}
	if req.Model == "" {
		req.Model = "image-3"
	}

	width, height := parseSize(req.Size)
	resp, err := h.dispatcher.GenerateMedia(r.Context(), dispatch.MediaRequest{
		Family: "image",
		Model:  strings.ToLower(req.Model),
		Input: provider.MediaInput{
			Prompt: req.Prompt,
			Width:  width,
			Height: height,
			N:      req.N,
		},
	})
	if err != nil {
		metrics.ObserveProviderCall("replicate", "error")
		writeProviderError(w, err)
		return
	}
	metrics.ObserveProviderCall(resp.Provider, "success")

	h.enqueueUsage(r, &usage.Event{
		RequestID: auth.GetRequestID(r.Context()),
		Model:     resp.Model,
		Images:    int64(len(resp.Outputs)),
		Timestamp: time.Now().UTC(),
	})

	h.writeMediaResponse(w, r, resp, req.ResponseFormat, "image")
}

type threeDGenerationRequest struct {
	Prompt string `json:"prompt"`
	Image  string `json:"image"`
	Model  string `json:"model"`
}

func (h *Handler) HandleThreeDGenerations(w http.ResponseWriter, r *http.Request) {
	var req threeDGenerationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if req.Prompt == "" && req.Image == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "prompt or image is required")
		return
	}
	if req.Model == "" {
		req.Model = "3d-2"
	}

	image := req.Image
	if image != "" && !strings.HasPrefix(image, "http") && !strings.HasPrefix(image, "data:") {
		image = "data:image/png;base64," + image
	}

	resp, err := h.dispatcher.GenerateMedia(r.Context(), dispatch.MediaRequest{
		Family: "3d",
		Model:  strings.ToLower(req.Model),
		Input:  provider.MediaInput{Prompt: req.Prompt, Image: image},
	})
	if err != nil {
		metrics.ObserveProviderCall("replicate", "error")
		writeProviderError(w, err)
		return
	}
	metrics.ObserveProviderCall(resp.Provider, "success")

	h.enqueueUsage(r, &usage.Event{
		RequestID: auth.GetRequestID(r.Context()),
		Model:     resp.Model,
		Timestamp: time.Now().UTC(),
	})

	h.writeMediaResponse(w, r, resp, "url", "model")
}

type videoGenerationRequest struct {
	Prompt   string `json:"prompt"`
	Image    string `json:"image"`
	Model    string `json:"model"`
	Duration int    `json:"duration"`
}

func (h *Handler) HandleVideoGenerations(w http.ResponseWriter, r *http.Request) {
	var req videoGenerationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if req.Prompt == "" && req.Image == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "prompt or image is required")
		return
	}
	if req.Model == "" {
		req.Model = "video-2"
	}
	if req.Duration <= 0 {
		req.Duration = 5
	}

	resp, err := h.dispatcher.GenerateMedia(r.Context(), dispatch.MediaRequest{
		Family: "video",
		Model:  strings.ToLower(req.Model),
		Input: provider.MediaInput{
			Prompt:   req.Prompt,
			Image:    req.Image,
			Duration: req.Duration,
		},
	})
	if err != nil {
		metrics.ObserveProviderCall("replicate", "error")
		writeProviderError(w, err)
		return
	}
	metrics.ObserveProviderCall(resp.Provider, "success")

	h.enqueueUsage(r, &usage.Event{
		RequestID:    auth.GetRequestID(r.Context()),
		Model:        resp.Model,
		VideoSeconds: int64(req.Duration),
		Timestamp:    time.Now().UTC(),
	})

	h.writeMediaResponse(w, r, resp, "url", "video")
}

// writeMediaResponse renders artifacts either inline as base64 or as
// files under the data directory served at /data/.
func (h *Handler) writeMediaResponse(w http.ResponseWriter, r *http.Request, resp *dispatch.MediaResponse, format, kind string) {
	out := mediaGenerationResponse{
		Created:  time.Now().Unix(),
		Model:    resp.Model,
		Tier:     resp.Tier.Name,
		Fallback: resp.Fallback,
	}

	requestID := auth.GetRequestID(r.Context())
	for i, artifact := range resp.Outputs {
		if format == "b64_json" || h.dataDir == "" {
			out.Data = append(out.Data, mediaArtifact{
				B64JSON: base64.StdEncoding.EncodeToString(artifact),
				Format:  resp.Format,
			})
			continue
		}
		name := fmt.Sprintf("%s_%s_%d.%s", kind, requestID, i, resp.Format)
		if err := os.WriteFile(filepath.Join(h.dataDir, name), artifact, 0o644); err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to persist artifact")
			return
		}
		out.Data = append(out.Data, mediaArtifact{URL: "/data/" + name, Format: resp.Format})
	}

	writeJSON(w, http.StatusOK, out)
}

type modelListing struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Description    string `json:"description"`
	Speed          string `json:"speed"`
	Cost           string `json:"cost"`
	Quality        string `json:"quality"`
	ReplicateModel string `json:"replicate_model"`
}

func (h *Handler) HandleImageModels(w http.ResponseWriter, r *http.Request) {
	writeModelListing(w, dispatch.ImageTiers(), dispatch.ImageAliases(), "image-3")
}

func (h *Handler) HandleThreeDModels(w http.ResponseWriter, r *http.Request) {
	writeModelListing(w, dispatch.ThreeDTiers(), dispatch.ThreeDAliases(), "3d-2")
}

func (h *Handler) HandleVideoModels(w http.ResponseWriter, r *http.Request) {
	writeModelListing(w, dispatch.VideoTiers(), dispatch.VideoAliases(), "video-2")
}

func writeModelListing(w http.ResponseWriter, tiers map[string]dispatch.Tier, aliases map[string]string, defaultModel string) {
	models := make([]modelListing, 0, len(tiers))
	for id, tier := range tiers {
		// Version pins stay internal; clients see the bare model ref.
		ref := tier.Model
		if idx := strings.Index(ref, ":"); idx >= 0 {
			ref = ref[:idx]
		}
		models = append(models, modelListing{
			ID:             id,
			Name:           tier.Name,
			Description:    tier.Description,
			Speed:          tier.Speed,
			Cost:           tier.Cost,
			Quality:        tier.Quality,
			ReplicateModel: ref,
		})
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })

	writeJSON(w, http.StatusOK, map[string]any{
		"object":  "list",
		"data":    models,
		"aliases": aliases,
		"default": defaultModel,
	})
}

func parseSize(size string) (width, height int) {
	parts := strings.SplitN(size, "x", 2)
	if len(parts) != 2 {
		return 1024, 1024
	}
	w, err1 := strconv.Atoi(parts[0])
	h, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || w <= 0 || h <= 0 {
		return 1024, 1024
	}
	return w, h
}
