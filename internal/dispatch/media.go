package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/sony/gobreaker"

	"github.com/innovatehubph/inno-ai-gateway/internal/provider"
)

// suspectPayloadBytes is the size under which a media response gets
// inspected for an embedded upstream error instead of artifact bytes.
const suspectPayloadBytes = 1000

// MediaRequest is a normalized generation request for any media family.
type MediaRequest struct {
	Family string // "image", "3d", "video"
	Model  string // tier ID or alias
	Input  provider.MediaInput
}

// MediaResponse carries the winning artifact and which rung of the
// fallback chain produced it.
type MediaResponse struct {
	Outputs  [][]byte
	Tier     Tier
	Model    string
	Provider string
	Format   string
	Fallback bool
}

// GenerateMedia resolves the tier and walks the fallback chain: the
// Replicate tier first, then for images the free HuggingFace models.
// Failures accumulate; the last one is reported when the chain empties.
func (d *Dispatcher) GenerateMedia(ctx context.Context, req MediaRequest) (*MediaResponse, error) {
	tier, ok := d.resolveMediaTier(req.Family, req.Model)
	if !ok {
		return nil, fmt.Errorf("%w: no %s tier matches %q", ErrUnknownModel, req.Family, req.Model)
	}

	var lastErr error

	resp, err := d.runReplicateTier(ctx, tier, req.Input)
	if err == nil {
		return resp, nil
	}
	lastErr = err

	if req.Family == "image" {
		for _, task := range []string{"image", "image_alt"} {
			out, err := d.runImageFallback(ctx, hfModels[task], req.Input.Prompt)
			if err != nil {
				lastErr = err
				continue
			}
			return &MediaResponse{
				Outputs:  [][]byte{out},
				Tier:     tier,
				Model:    "image-free",
				Provider: "huggingface",
				Format:   "png",
				Fallback: true,
			}, nil
		}
	}

	return nil, fmt.Errorf("%w: %v", ErrExhausted, lastErr)
}

func (d *Dispatcher) resolveMediaTier(family, model string) (Tier, bool) {
	switch family {
	case "image":
		return resolveTier(imageTiers, imageAliases, model)
	case "3d":
		return resolveTier(threeDTiers, threeDAliases, model)
	case "video":
		return resolveTier(videoTiers, videoAliases, model)
	}
	return Tier{}, false
}

func (d *Dispatcher) runReplicateTier(ctx context.Context, tier Tier, input provider.MediaInput) (*MediaResponse, error) {
	cb := d.breakers["replicate"]
	result, err := cb.Execute(func() (interface{}, error) {
		return d.media.Generate(ctx, tier.Model, input)
	})
	if err != nil {
		return nil, err
	}

	mr := result.(*provider.MediaResult)
	for _, out := range mr.Outputs {
		if err := validateArtifact(out); err != nil {
			return nil, err
		}
	}

	return &MediaResponse{
		Outputs:  mr.Outputs,
		Tier:     tier,
		Model:    tier.ID,
		Provider: mr.Provider,
		Format:   mr.Format,
		Fallback: false,
	}, nil
}

func (d *Dispatcher) runImageFallback(ctx context.Context, model, prompt string) ([]byte, error) {
	if d.raw == nil {
		return nil, fmt.Errorf("no raw inference provider configured")
	}

	cb := d.breakers["huggingface"]
	if cb.State() == gobreaker.StateOpen {
		return nil, fmt.Errorf("circuit breaker is open for provider: huggingface")
	}

	payload, err := json.Marshal(map[string]string{"inputs": prompt})
	if err != nil {
		return nil, err
	}

	result, err := cb.Execute(func() (interface{}, error) {
		out, err := d.raw.Infer(ctx, model, payload)
		if err != nil {
			return nil, err
		}
		if err := validateArtifact(out); err != nil {
			return nil, err
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

// validateArtifact rejects tiny payloads that are really JSON error or
// model-loading notices dressed up as artifact bytes.
func validateArtifact(data []byte) error {
	if len(data) >= suspectPayloadBytes {
		return nil
	}
	if bytes.Contains(data, []byte("error")) || bytes.Contains(data, []byte("loading")) {
		return fmt.Errorf("upstream returned an error payload: %s", data)
	}
	return nil
}
