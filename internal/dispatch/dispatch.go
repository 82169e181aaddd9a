package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/innovatehubph/inno-ai-gateway/internal/provider"
)

// ErrExhausted means every provider in a fallback chain failed.
var ErrExhausted = errors.New("all fallbacks exhausted")

// ErrUnknownModel means the requested model matches no tier or alias.
var ErrUnknownModel = errors.New("unknown model")

// Resolution names the provider family and upstream model chosen for a
// chat request, plus the branded model name reported back to the client.
type Resolution struct {
	Provider      provider.ChatProvider
	UpstreamModel string
	BrandedModel  string
}

// Dispatcher resolves gateway model IDs to provider adapters and runs
// calls through per-family circuit breakers. Resolution is by prefix
// first, then catalog lookup, then the agent CLI as the terminal
// fallback, so a given model ID always lands on the same family.
type Dispatcher struct {
	openRouter  provider.ChatProvider
	huggingFace provider.ChatProvider
	moonshot    provider.ChatProvider
	antigravity provider.ChatProvider
	agent       provider.ChatProvider
	media       provider.MediaProvider
	raw         provider.RawProvider

	breakers map[string]*gobreaker.CircuitBreaker
}

type Options struct {
	OpenRouter  provider.ChatProvider
	HuggingFace provider.ChatProvider
	Moonshot    provider.ChatProvider
	Antigravity provider.ChatProvider
	Agent       provider.ChatProvider
	Media       provider.MediaProvider
	Raw         provider.RawProvider
}

func New(opts Options) *Dispatcher {
	d := &Dispatcher{
		openRouter:  opts.OpenRouter,
		huggingFace: opts.HuggingFace,
		moonshot:    opts.Moonshot,
		antigravity: opts.Antigravity,
		agent:       opts.Agent,
		media:       opts.Media,
		raw:         opts.Raw,
		breakers:    make(map[string]*gobreaker.CircuitBreaker),
	}

	for _, name := range []string{"openrouter", "huggingface", "moonshot", "antigravity", "agentcli", "replicate"} {
		settings := gobreaker.Settings{
			Name:        name,
			MaxRequests: 3,
			Interval:    5 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}
		d.breakers[name] = gobreaker.NewCircuitBreaker(settings)
	}

	return d
}

// ResolveChat picks the provider family and upstream model for a chat
// request. Unknown models fall through to the agent CLI rather than
// erroring, so the gateway always answers.
func (d *Dispatcher) ResolveChat(model string) Resolution {
	switch {
	case strings.HasPrefix(model, "hf-"):
		return Resolution{
			Provider:      d.huggingFace,
			UpstreamModel: strings.TrimPrefix(model, "hf-"),
			BrandedModel:  model,
		}
	case strings.HasPrefix(model, "or-"):
		return Resolution{
			Provider:      d.openRouter,
			UpstreamModel: strings.TrimPrefix(model, "or-"),
			BrandedModel:  model,
		}
	case strings.HasPrefix(model, "kimi-"):
		// Moonshot model IDs carry the kimi- prefix natively.
		return Resolution{
			Provider:      d.moonshot,
			UpstreamModel: model,
			BrandedModel:  model,
		}
	case strings.HasPrefix(model, "antigravity-"):
		return Resolution{
			Provider:      d.antigravity,
			UpstreamModel: strings.TrimPrefix(model, "antigravity-"),
			BrandedModel:  model,
		}
	case strings.Contains(model, "claude"):
		return Resolution{
			Provider:      d.openRouter,
			UpstreamModel: model,
			BrandedModel:  model,
		}
	}

	if up, ok := brandedChatUpstreams[model]; ok {
		return Resolution{
			Provider:      d.chatFamily(up.Family),
			UpstreamModel: up.Model,
			BrandedModel:  model,
		}
	}

	// Compatibility names rebrand first, then dispatch like the catalog
	// model they map to.
	if branded, ok := modelBranding[model]; ok {
		if up, ok := brandedChatUpstreams[branded]; ok {
			return Resolution{
				Provider:      d.chatFamily(up.Family),
				UpstreamModel: up.Model,
				BrandedModel:  branded,
			}
		}
	}

	if strings.HasPrefix(model, "gpt-") {
		// GPT variants outside the rebrand table still reach a real
		// GPT upstream.
		return Resolution{
			Provider:      d.openRouter,
			UpstreamModel: "openai/" + model,
			BrandedModel:  model,
		}
	}

	return Resolution{
		Provider:      d.agent,
		UpstreamModel: "inno-ai-boyong-4.5",
		BrandedModel:  "inno-ai-boyong-4.5",
	}
}

func (d *Dispatcher) chatFamily(name string) provider.ChatProvider {
	if name == "huggingface" {
		return d.huggingFace
	}
	return d.openRouter
}

// Chat resolves and executes a chat request through the family breaker.
func (d *Dispatcher) Chat(ctx context.Context, model string, messages []provider.Message, params provider.Params) (*provider.ChatResult, error) {
	res := d.ResolveChat(model)
	cb := d.breakers[res.Provider.Name()]

	result, err := cb.Execute(func() (interface{}, error) {
		return res.Provider.Chat(ctx, res.UpstreamModel, messages, params)
	})
	if err != nil {
		return nil, err
	}

	chatResult := result.(*provider.ChatResult)
	chatResult.Model = res.BrandedModel
	return chatResult, nil
}

// ChatStream streams a chat response. Families with native streaming are
// passed through; everyone else gets the full completion replayed as a
// synthesized stream, so callers see one contract either way.
func (d *Dispatcher) ChatStream(ctx context.Context, model string, messages []provider.Message, params provider.Params) (<-chan *provider.Chunk, error) {
	res := d.ResolveChat(model)
	cb := d.breakers[res.Provider.Name()]

	if streamer, ok := res.Provider.(provider.StreamingChatProvider); ok {
		if cb.State() == gobreaker.StateOpen {
			return nil, fmt.Errorf("circuit breaker is open for provider: %s", res.Provider.Name())
		}

		origCh, err := streamer.ChatStream(ctx, res.UpstreamModel, messages, params)
		if err != nil {
			_, _ = cb.Execute(func() (interface{}, error) {
				return nil, err
			})
			return nil, err
		}

		wrappedCh := make(chan *provider.Chunk)
		go func() {
			defer close(wrappedCh)
			for chunk := range origCh {
				if chunk.Err != nil {
					_, _ = cb.Execute(func() (interface{}, error) {
						return nil, chunk.Err
					})
				}
				select {
				case wrappedCh <- chunk:
				case <-ctx.Done():
					return
				}
			}
		}()
		return wrappedCh, nil
	}

	result, err := cb.Execute(func() (interface{}, error) {
		return res.Provider.Chat(ctx, res.UpstreamModel, messages, params)
	})
	if err != nil {
		return nil, err
	}

	return SynthesizeStream(ctx, result.(*provider.ChatResult).Text), nil
}

// Infer forwards a raw inference payload to the HuggingFace router.
func (d *Dispatcher) Infer(ctx context.Context, task string, payload []byte) ([]byte, error) {
	model, ok := hfModels[task]
	if !ok {
		return nil, fmt.Errorf("unknown inference task %q", task)
	}

	cb := d.breakers["huggingface"]
	result, err := cb.Execute(func() (interface{}, error) {
		return d.raw.Infer(ctx, model, payload)
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}
